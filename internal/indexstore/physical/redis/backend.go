// Package redis provides a Redis-backed index storage backend.
package redis

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"sort"
	"strconv"
	"strings"
	"sync/atomic"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/corknet/cork-node/pkg/reference"

	"github.com/corknet/cork-node/internal/indexstore/physical"
	"github.com/corknet/cork-node/internal/storage"
)

const (
	KeyAddr         = "addr"
	KeyPassword     = "password"
	KeyDB           = "db"
	KeyMaxRetries   = "max_retries"
	KeyDialTimeout  = "dial_timeout"
	KeyReadTimeout  = "read_timeout"
	KeyWriteTimeout = "write_timeout"
	KeyPoolSize     = "pool_size"
	KeyKeyPrefix    = "key_prefix"

	pipelineBatchSize = 1000
)

func init() {
	physical.Register("redis", NewFactory, Defaults)
}

// Defaults returns the default configuration for the Redis backend.
func Defaults() map[string]string {
	return map[string]string{
		KeyAddr:         "localhost:6379",
		KeyPassword:     "",
		KeyDB:           "1",
		KeyMaxRetries:   "3",
		KeyDialTimeout:  "5s",
		KeyReadTimeout:  "3s",
		KeyWriteTimeout: "3s",
		KeyPoolSize:     "0",
		KeyKeyPrefix:    "cork:",
	}
}

// NewFactory creates a new Redis backend from a configuration map.
func NewFactory(_ context.Context, config map[string]string) (physical.Backend, error) {
	addr := storage.GetString(config, KeyAddr, "")
	if addr == "" {
		return nil, storage.NewConfigError("redis", KeyAddr, "cannot be empty")
	}

	db, err := storage.GetInt(config, KeyDB, 1)
	if err != nil {
		return nil, storage.NewConfigErrorWithValue("redis", KeyDB, config[KeyDB], err.Error())
	}
	if db < 0 {
		return nil, storage.NewConfigErrorWithValue("redis", KeyDB, config[KeyDB], "must be non-negative")
	}

	maxRetries, err := storage.GetInt(config, KeyMaxRetries, 3)
	if err != nil {
		return nil, storage.NewConfigErrorWithValue("redis", KeyMaxRetries, config[KeyMaxRetries], err.Error())
	}

	dialTimeout, err := storage.GetDuration(config, KeyDialTimeout, 5*time.Second)
	if err != nil {
		return nil, storage.NewConfigErrorWithValue("redis", KeyDialTimeout, config[KeyDialTimeout], err.Error())
	}

	readTimeout, err := storage.GetDuration(config, KeyReadTimeout, 3*time.Second)
	if err != nil {
		return nil, storage.NewConfigErrorWithValue("redis", KeyReadTimeout, config[KeyReadTimeout], err.Error())
	}

	writeTimeout, err := storage.GetDuration(config, KeyWriteTimeout, 3*time.Second)
	if err != nil {
		return nil, storage.NewConfigErrorWithValue("redis", KeyWriteTimeout, config[KeyWriteTimeout], err.Error())
	}

	poolSize, err := storage.GetInt(config, KeyPoolSize, 0)
	if err != nil {
		return nil, storage.NewConfigErrorWithValue("redis", KeyPoolSize, config[KeyPoolSize], err.Error())
	}

	password := storage.GetString(config, KeyPassword, "")
	keyPrefix := storage.GetString(config, KeyKeyPrefix, "cork:")

	opts := &redis.Options{
		Addr:         addr,
		Password:     password,
		DB:           db,
		MaxRetries:   maxRetries,
		DialTimeout:  dialTimeout,
		ReadTimeout:  readTimeout,
		WriteTimeout: writeTimeout,
	}
	if poolSize > 0 {
		opts.PoolSize = poolSize
	}

	client := redis.NewClient(opts)

	pingCtx, cancel := context.WithTimeout(context.Background(), dialTimeout)
	defer cancel()
	if err := client.Ping(pingCtx).Err(); err != nil {
		_ = client.Close()
		return nil, storage.NewConfigErrorWithCause("redis", KeyAddr, "failed to connect", err)
	}

	slog.Info("redis indexstore initialized", "addr", addr, "db", db, "key_prefix", keyPrefix)

	return &Backend{
		client: client,
		prefix: keyPrefix,
	}, nil
}

// Backend is a Redis implementation of physical.Backend.
type Backend struct {
	client *redis.Client
	prefix string
	closed atomic.Bool
}

// NewWithClient creates a new backend with an existing Redis client.
func NewWithClient(client *redis.Client, prefix string) *Backend {
	if prefix == "" {
		prefix = "cork:"
	}
	return &Backend{
		client: client,
		prefix: prefix,
	}
}

func (b *Backend) entryKey(refHex string) string {
	return b.prefix + "entry:" + refHex
}

func (b *Backend) entriesByTimeKey() string {
	return b.prefix + "by_time"
}

func (b *Backend) labelKey(k, v string) string {
	return b.prefix + "label:" + k + ":" + v
}

func (b *Backend) labelTsKey(k, v string) string {
	return b.prefix + "label_ts:" + k + ":" + v
}

// Put stores an entry.
func (b *Backend) Put(ctx context.Context, entry *physical.Entry) error {
	if b.closed.Load() {
		return physical.ErrClosed
	}

	pipe := b.client.TxPipeline()
	if err := b.putInPipe(ctx, pipe, entry); err != nil {
		return err
	}
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("redis put: %w", err)
	}
	return nil
}

// PutBatch stores multiple entries in a single transaction pipeline.
func (b *Backend) PutBatch(ctx context.Context, entries []*physical.Entry) error {
	if b.closed.Load() {
		return physical.ErrClosed
	}

	// Batch GET old entries for index cleanup before rewriting.
	refHexes := make([]string, len(entries))
	getPipe := b.client.Pipeline()
	getCmds := make([]*redis.StringCmd, len(entries))
	for i, entry := range entries {
		refHexes[i] = reference.Hex(entry.Ref)
		getCmds[i] = getPipe.Get(ctx, b.entryKey(refHexes[i]))
	}
	_, _ = getPipe.Exec(ctx)

	pipe := b.client.TxPipeline()
	for i, entry := range entries {
		refHex := refHexes[i]

		oldData, err := getCmds[i].Bytes()
		if err == nil {
			var oldEntry physical.Entry
			if json.Unmarshal(oldData, &oldEntry) == nil {
				b.cleanupOldEntry(ctx, pipe, refHex, &oldEntry)
			}
		}

		if err := b.writeEntry(ctx, pipe, refHex, entry); err != nil {
			return err
		}
	}

	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("redis put batch: %w", err)
	}
	return nil
}

func (b *Backend) putInPipe(ctx context.Context, pipe redis.Pipeliner, entry *physical.Entry) error {
	refHex := reference.Hex(entry.Ref)

	oldData, err := b.client.Get(ctx, b.entryKey(refHex)).Bytes()
	if err == nil {
		var oldEntry physical.Entry
		if json.Unmarshal(oldData, &oldEntry) == nil {
			b.cleanupOldEntry(ctx, pipe, refHex, &oldEntry)
		}
	} else if err != redis.Nil {
		return fmt.Errorf("check existing entry: %w", err)
	}

	return b.writeEntry(ctx, pipe, refHex, entry)
}

func (b *Backend) writeEntry(ctx context.Context, pipe redis.Pipeliner, refHex string, entry *physical.Entry) error {
	data, err := json.Marshal(entry)
	if err != nil {
		return fmt.Errorf("encode entry: %w", err)
	}

	pipe.Set(ctx, b.entryKey(refHex), data, 0)
	pipe.ZAdd(ctx, b.entriesByTimeKey(), redis.Z{
		Score:  float64(entry.Timestamp),
		Member: refHex,
	})

	for k, v := range entry.Labels {
		pipe.SAdd(ctx, b.labelKey(k, v), refHex)
		pipe.ZAdd(ctx, b.labelTsKey(k, v), redis.Z{
			Score:  float64(entry.Timestamp),
			Member: refHex,
		})
	}
	return nil
}

func (b *Backend) cleanupOldEntry(ctx context.Context, pipe redis.Pipeliner, refHex string, oldEntry *physical.Entry) {
	pipe.ZRem(ctx, b.entriesByTimeKey(), refHex)
	for k, v := range oldEntry.Labels {
		pipe.SRem(ctx, b.labelKey(k, v), refHex)
		pipe.ZRem(ctx, b.labelTsKey(k, v), refHex)
	}
}

// Get retrieves an entry by reference.
func (b *Backend) Get(ctx context.Context, r reference.Reference) (*physical.Entry, error) {
	if b.closed.Load() {
		return nil, physical.ErrClosed
	}

	data, err := b.client.Get(ctx, b.entryKey(reference.Hex(r))).Bytes()
	if err == redis.Nil {
		return nil, physical.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("redis get: %w", err)
	}

	var entry physical.Entry
	if err := json.Unmarshal(data, &entry); err != nil {
		return nil, fmt.Errorf("decode entry: %w", err)
	}
	return &entry, nil
}

// Delete removes an entry by reference.
func (b *Backend) Delete(ctx context.Context, r reference.Reference) error {
	if b.closed.Load() {
		return physical.ErrClosed
	}

	refHex := reference.Hex(r)

	data, err := b.client.Get(ctx, b.entryKey(refHex)).Bytes()
	if err == redis.Nil {
		return nil
	}
	if err != nil {
		return fmt.Errorf("redis get for delete: %w", err)
	}

	var entry physical.Entry
	if err = json.Unmarshal(data, &entry); err != nil {
		b.client.Del(ctx, b.entryKey(refHex))
		return nil
	}

	pipe := b.client.TxPipeline()
	pipe.Del(ctx, b.entryKey(refHex))
	pipe.ZRem(ctx, b.entriesByTimeKey(), refHex)
	for k, v := range entry.Labels {
		pipe.SRem(ctx, b.labelKey(k, v), refHex)
		pipe.ZRem(ctx, b.labelTsKey(k, v), refHex)
	}

	if _, err = pipe.Exec(ctx); err != nil {
		return fmt.Errorf("redis delete: %w", err)
	}
	return nil
}

type entryWithRef struct {
	entry  *physical.Entry
	refHex string
}

// Query returns entries matching the given options.
func (b *Backend) Query(ctx context.Context, opts *physical.QueryOptions) (*physical.QueryResult, error) {
	if b.closed.Load() {
		return nil, physical.ErrClosed
	}

	if opts == nil {
		opts = &physical.QueryOptions{}
	}

	limit := opts.Limit
	if limit <= 0 {
		limit = 1000
	}

	var cursorTs int64
	var cursorRef string
	var hasCursor bool
	if opts.Cursor != "" {
		cursorTs, cursorRef, hasCursor = parseCursor(opts.Cursor)
	}

	minScore := "-inf"
	maxScore := "+inf"
	if opts.After > 0 {
		minScore = "(" + strconv.FormatInt(opts.After, 10)
	}
	if opts.Before > 0 {
		maxScore = "(" + strconv.FormatInt(opts.Before, 10)
	}

	// Narrow the range server-side at the cursor timestamp; ties are
	// filtered client-side.
	if hasCursor {
		cursorScoreStr := strconv.FormatInt(cursorTs, 10)
		if opts.Descending {
			maxScore = cursorScoreStr
		} else {
			minScore = cursorScoreStr
		}
	}

	candidateRefs, err := b.candidateRefs(ctx, opts, minScore, maxScore, limit, hasCursor)
	if err != nil {
		return nil, err
	}
	if len(candidateRefs) == 0 {
		return &physical.QueryResult{}, nil
	}

	// Pipelined GETs in batches.
	candidates := make([]entryWithRef, 0, min(len(candidateRefs), limit+1))
	for batchStart := 0; batchStart < len(candidateRefs); batchStart += pipelineBatchSize {
		batchEnd := min(batchStart+pipelineBatchSize, len(candidateRefs))
		batch := candidateRefs[batchStart:batchEnd]

		pipe := b.client.Pipeline()
		cmds := make([]*redis.StringCmd, len(batch))
		for i, refHex := range batch {
			cmds[i] = pipe.Get(ctx, b.entryKey(refHex))
		}
		_, _ = pipe.Exec(ctx)

		for i, cmd := range cmds {
			data, err := cmd.Bytes()
			if err != nil {
				continue
			}

			var entry physical.Entry
			if err := json.Unmarshal(data, &entry); err != nil {
				continue
			}

			if !matchesLabels(&entry, opts.Labels) {
				continue
			}

			if hasCursor {
				cmp := compareCursor(entry.Timestamp, batch[i], cursorTs, cursorRef)
				if opts.Descending {
					if cmp >= 0 {
						continue
					}
				} else if cmp <= 0 {
					continue
				}
			}

			candidates = append(candidates, entryWithRef{entry: &entry, refHex: batch[i]})
		}
	}

	if len(candidates) == 0 {
		return &physical.QueryResult{}, nil
	}

	sortEntries(candidates, opts.Descending)

	hasMore := len(candidates) > limit
	if hasMore {
		candidates = candidates[:limit]
	}

	entries := make([]*physical.Entry, len(candidates))
	for i, c := range candidates {
		entries[i] = c.entry
	}

	var nextCursor string
	if hasMore && len(entries) > 0 {
		last := candidates[len(candidates)-1]
		nextCursor = fmt.Sprintf("%016x/%s", last.entry.Timestamp, last.refHex)
	}

	return &physical.QueryResult{
		Entries:    entries,
		NextCursor: nextCursor,
		HasMore:    hasMore,
	}, nil
}

// candidateRefs fetches candidate reference hexes from the time-ordered
// zsets, driving from the smallest label zset when labels are present.
func (b *Backend) candidateRefs(ctx context.Context, opts *physical.QueryOptions, minScore, maxScore string, limit int, hasCursor bool) ([]string, error) {
	count := int64(limit + 1)
	if hasCursor {
		count += 100
	}

	key := b.entriesByTimeKey()
	if len(opts.Labels) > 0 {
		var bestKey string
		var bestCard int64 = -1
		for k, v := range opts.Labels {
			card, err := b.client.ZCard(ctx, b.labelTsKey(k, v)).Result()
			if err != nil {
				continue
			}
			if bestCard < 0 || card < bestCard {
				bestCard = card
				bestKey = b.labelTsKey(k, v)
			}
		}
		if bestKey != "" {
			key = bestKey
		}
	}

	rangeOpts := &redis.ZRangeBy{
		Min:   minScore,
		Max:   maxScore,
		Count: count,
	}

	var zRange *redis.ZSliceCmd
	if opts.Descending {
		zRange = b.client.ZRevRangeByScoreWithScores(ctx, key, rangeOpts)
	} else {
		zRange = b.client.ZRangeByScoreWithScores(ctx, key, rangeOpts)
	}

	results, err := zRange.Result()
	if err != nil {
		return nil, fmt.Errorf("redis zrange: %w", err)
	}

	refs := make([]string, 0, len(results))
	for _, z := range results {
		if s, ok := z.Member.(string); ok {
			refs = append(refs, s)
		}
	}
	return refs, nil
}

// Count returns the number of entries matching the given options.
func (b *Backend) Count(ctx context.Context, opts *physical.QueryOptions) (int64, error) {
	if b.closed.Load() {
		return 0, physical.ErrClosed
	}

	if opts == nil {
		opts = &physical.QueryOptions{}
	}

	minScore := "-inf"
	maxScore := "+inf"
	if opts.After > 0 {
		minScore = "(" + strconv.FormatInt(opts.After, 10)
	}
	if opts.Before > 0 {
		maxScore = "(" + strconv.FormatInt(opts.Before, 10)
	}

	// Single-label counts come straight from the label zset; multi-label
	// counts fall back to fetching and filtering.
	if len(opts.Labels) <= 1 {
		key := b.entriesByTimeKey()
		for k, v := range opts.Labels {
			key = b.labelTsKey(k, v)
		}
		count, err := b.client.ZCount(ctx, key, minScore, maxScore).Result()
		if err != nil {
			return 0, fmt.Errorf("redis zcount: %w", err)
		}
		return count, nil
	}

	result, err := b.Query(ctx, &physical.QueryOptions{
		Labels: opts.Labels,
		After:  opts.After,
		Before: opts.Before,
		Limit:  1 << 20,
	})
	if err != nil {
		return 0, err
	}
	return int64(len(result.Entries)), nil
}

// Stats returns storage statistics.
func (b *Backend) Stats(ctx context.Context) (*physical.Stats, error) {
	if b.closed.Load() {
		return nil, physical.ErrClosed
	}

	size, err := b.client.DBSize(ctx).Result()
	if err != nil {
		return nil, fmt.Errorf("redis dbsize: %w", err)
	}

	return &physical.Stats{
		SizeBytes:   size,
		BackendType: "redis",
	}, nil
}

// Close closes the Redis client.
func (b *Backend) Close() error {
	if b.closed.Swap(true) {
		return nil
	}
	return b.client.Close()
}

func matchesLabels(entry *physical.Entry, labels map[string]string) bool {
	for k, v := range labels {
		if entry.Labels[k] != v {
			return false
		}
	}
	return true
}

// parseCursor parses "{timestampHex}/{refHex}".
func parseCursor(cursor string) (int64, string, bool) {
	parts := strings.SplitN(cursor, "/", 2)
	if len(parts) != 2 {
		return 0, "", false
	}
	ts, err := strconv.ParseUint(parts[0], 16, 64)
	if err != nil {
		return 0, "", false
	}
	return int64(ts), parts[1], true
}

// compareCursor compares an entry position against a cursor position.
func compareCursor(ts int64, refHex string, cursorTs int64, cursorRef string) int {
	if ts != cursorTs {
		if ts < cursorTs {
			return -1
		}
		return 1
	}
	return strings.Compare(refHex, cursorRef)
}

func sortEntries(entries []entryWithRef, descending bool) {
	sort.Slice(entries, func(i, j int) bool {
		if entries[i].entry.Timestamp == entries[j].entry.Timestamp {
			if descending {
				return entries[i].refHex > entries[j].refHex
			}
			return entries[i].refHex < entries[j].refHex
		}
		if descending {
			return entries[i].entry.Timestamp > entries[j].entry.Timestamp
		}
		return entries[i].entry.Timestamp < entries[j].entry.Timestamp
	})
}
