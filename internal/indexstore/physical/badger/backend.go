// Package badger provides a BadgerDB-backed index storage backend.
package badger

import (
	"context"
	"encoding/binary"
	"encoding/hex"
	"fmt"
	"log/slog"
	"os"
	"sync/atomic"

	"github.com/dgraph-io/badger/v4"

	"github.com/corknet/cork-node/pkg/reference"

	"github.com/corknet/cork-node/internal/indexstore/physical"
	"github.com/corknet/cork-node/internal/storage"
)

const (
	prefixLabel = "label/"
	prefixRef   = "ref/"
	prefixMeta  = "meta/"
)

const (
	KeyPath       = "path"
	KeySyncWrites = "sync_writes"
	KeyInMemory   = "in_memory"
)

func init() {
	physical.Register("badger", NewFactory, Defaults)
}

// Defaults returns the default configuration for the BadgerDB backend.
func Defaults() map[string]string {
	return map[string]string{
		KeyPath:       "~/.cork/index",
		KeySyncWrites: "false",
		KeyInMemory:   "false",
	}
}

// NewFactory creates a new BadgerDB backend from a configuration map.
func NewFactory(_ context.Context, config map[string]string) (physical.Backend, error) {
	inMemory, err := storage.GetBool(config, KeyInMemory, false)
	if err != nil {
		return nil, storage.NewConfigErrorWithValue("badger", KeyInMemory, config[KeyInMemory], err.Error())
	}

	if inMemory {
		return newInMemory()
	}

	path := storage.GetString(config, KeyPath, "")
	if path == "" {
		return nil, storage.NewConfigError("badger", KeyPath, "cannot be empty")
	}
	path = storage.ExpandPath(path)

	if err := os.MkdirAll(path, 0o700); err != nil {
		return nil, storage.NewConfigErrorWithCause("badger", KeyPath, "failed to create directory", err)
	}

	syncWrites, err := storage.GetBool(config, KeySyncWrites, false)
	if err != nil {
		return nil, storage.NewConfigErrorWithValue("badger", KeySyncWrites, config[KeySyncWrites], err.Error())
	}

	opts := badger.DefaultOptions(path)
	opts.Logger = nil
	opts.SyncWrites = syncWrites

	db, err := badger.Open(opts)
	if err != nil {
		return nil, storage.NewConfigErrorWithCause("badger", KeyPath, "failed to open database", err)
	}

	slog.Info("badger indexstore initialized", "path", path, "sync_writes", syncWrites)
	return NewWithDB(db), nil
}

func newInMemory() (*Backend, error) {
	opts := badger.DefaultOptions("").
		WithInMemory(true).
		WithLogger(nil)

	db, err := badger.Open(opts)
	if err != nil {
		return nil, storage.NewConfigErrorWithCause("badger", KeyInMemory, "failed to open in-memory database", err)
	}

	return NewWithDB(db), nil
}

// Backend is a BadgerDB implementation of physical.Backend.
//
// Keys:
//
//	ref/<refHex>                       -> tsHex (locator)
//	meta/<tsHex>/<refHex>              -> encoded labels
//	label/<k>/<v>/<tsHex>/<refHex>     -> nil
type Backend struct {
	db     *badger.DB
	closed atomic.Bool
}

// NewWithDB creates a new backend with an existing BadgerDB instance.
func NewWithDB(db *badger.DB) *Backend {
	return &Backend{db: db}
}

// Put stores an entry, replacing any previous labels for the same reference.
func (b *Backend) Put(_ context.Context, entry *physical.Entry) error {
	if b.closed.Load() {
		return physical.ErrClosed
	}

	return b.db.Update(func(txn *badger.Txn) error {
		return putInTxn(txn, entry)
	})
}

// PutBatch stores multiple entries in a single transaction.
func (b *Backend) PutBatch(_ context.Context, entries []*physical.Entry) error {
	if b.closed.Load() {
		return physical.ErrClosed
	}

	return b.db.Update(func(txn *badger.Txn) error {
		for _, entry := range entries {
			if err := putInTxn(txn, entry); err != nil {
				return err
			}
		}
		return nil
	})
}

func putInTxn(txn *badger.Txn, entry *physical.Entry) error {
	refHex := reference.Hex(entry.Ref)
	tsHex := timestampToHex(entry.Timestamp)

	if err := deleteInTxn(txn, entry.Ref); err != nil {
		return err
	}

	suffix := tsHex + "/" + refHex

	if err := txn.Set([]byte(prefixMeta+suffix), encodeLabels(entry.Labels)); err != nil {
		return err
	}
	if err := txn.Set([]byte(prefixRef+refHex), []byte(tsHex)); err != nil {
		return err
	}
	for k, v := range entry.Labels {
		if err := txn.Set([]byte(prefixLabel+k+"/"+v+"/"+suffix), nil); err != nil {
			return err
		}
	}
	return nil
}

// Get retrieves an entry by reference.
func (b *Backend) Get(_ context.Context, r reference.Reference) (*physical.Entry, error) {
	if b.closed.Load() {
		return nil, physical.ErrClosed
	}

	refHex := reference.Hex(r)
	var entry physical.Entry

	err := b.db.View(func(txn *badger.Txn) error {
		item, getErr := txn.Get([]byte(prefixRef + refHex))
		if getErr == badger.ErrKeyNotFound {
			return physical.ErrNotFound
		}
		if getErr != nil {
			return getErr
		}

		var tsHex string
		if valErr := item.Value(func(val []byte) error {
			tsHex = string(val)
			return nil
		}); valErr != nil {
			return valErr
		}

		metaItem, metaErr := txn.Get([]byte(prefixMeta + tsHex + "/" + refHex))
		if metaErr != nil {
			return metaErr
		}

		return metaItem.Value(func(val []byte) error {
			built, buildErr := entryFromSuffix(tsHex+"/"+refHex, val)
			if buildErr != nil {
				return buildErr
			}
			entry = *built
			return nil
		})
	})
	if err == physical.ErrNotFound {
		return nil, err
	}
	if err != nil {
		return nil, fmt.Errorf("badger get: %w", err)
	}
	return &entry, nil
}

// Delete removes an entry by reference.
func (b *Backend) Delete(_ context.Context, r reference.Reference) error {
	if b.closed.Load() {
		return physical.ErrClosed
	}

	return b.db.Update(func(txn *badger.Txn) error {
		return deleteInTxn(txn, r)
	})
}

func deleteInTxn(txn *badger.Txn, r reference.Reference) error {
	refHex := reference.Hex(r)
	refKey := []byte(prefixRef + refHex)

	item, getErr := txn.Get(refKey)
	if getErr == badger.ErrKeyNotFound {
		return nil
	}
	if getErr != nil {
		return getErr
	}

	var tsHex string
	if valErr := item.Value(func(val []byte) error {
		tsHex = string(val)
		return nil
	}); valErr != nil {
		return valErr
	}

	suffix := tsHex + "/" + refHex
	metaKey := []byte(prefixMeta + suffix)

	metaItem, metaErr := txn.Get(metaKey)
	if metaErr == nil {
		if valErr := metaItem.Value(func(val []byte) error {
			labels, decErr := decodeLabels(val)
			if decErr != nil {
				return decErr
			}
			for k, v := range labels {
				if delErr := txn.Delete([]byte(prefixLabel + k + "/" + v + "/" + suffix)); delErr != nil {
					return delErr
				}
			}
			return nil
		}); valErr != nil {
			return valErr
		}
	} else if metaErr != badger.ErrKeyNotFound {
		return metaErr
	}

	if delErr := txn.Delete(metaKey); delErr != nil && delErr != badger.ErrKeyNotFound {
		return delErr
	}
	return txn.Delete(refKey)
}

// Query returns entries matching the given options.
func (b *Backend) Query(_ context.Context, opts *physical.QueryOptions) (*physical.QueryResult, error) {
	if b.closed.Load() {
		return nil, physical.ErrClosed
	}

	if opts == nil {
		opts = &physical.QueryOptions{}
	}

	if len(opts.Labels) > 0 {
		return b.queryByLabel(opts)
	}
	return b.queryByEntry(opts)
}

func (b *Backend) queryByEntry(opts *physical.QueryOptions) (*physical.QueryResult, error) {
	limit := opts.Limit
	if limit <= 0 {
		limit = 1000
	}

	var results []*physical.Entry
	hasMore := false

	err := b.db.View(func(txn *badger.Txn) error {
		prefix := []byte(prefixMeta)

		iterOpts := badger.DefaultIteratorOptions
		iterOpts.PrefetchValues = true
		iterOpts.PrefetchSize = 20
		iterOpts.Prefix = prefix
		iterOpts.Reverse = opts.Descending

		it := txn.NewIterator(iterOpts)
		defer it.Close()

		seekKey, skipFirst := seekKeyFor(prefix, string(prefix), opts)

		for it.Seek(seekKey); it.ValidForPrefix(prefix); it.Next() {
			if skipFirst {
				skipFirst = false
				continue
			}

			key := it.Item().Key()
			suffix := string(key[len(prefixMeta):])
			if len(suffix) < 81 {
				continue
			}
			if stop := outOfRange(suffix[:16], opts); stop {
				break
			}

			if len(results) >= limit {
				hasMore = true
				break
			}

			var entry *physical.Entry
			if err := it.Item().Value(func(val []byte) error {
				var buildErr error
				entry, buildErr = entryFromSuffix(suffix, val)
				return buildErr
			}); err != nil {
				slog.Warn("failed to decode meta", "key", string(key), "error", err)
				continue
			}

			results = append(results, entry)
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("badger query: %w", err)
	}

	return resultWithCursor(results, hasMore), nil
}

// pickDrivingLabel selects the label with the fewest index entries.
func pickDrivingLabel(db *badger.DB, labels map[string]string) (string, string) {
	if len(labels) <= 1 {
		for k, v := range labels {
			return k, v
		}
		return "", ""
	}

	const sampleLimit = 101
	bestKey, bestVal := "", ""
	bestCount := int(^uint(0) >> 1)

	_ = db.View(func(txn *badger.Txn) error {
		for k, v := range labels {
			prefix := []byte(prefixLabel + k + "/" + v + "/")
			opts := badger.DefaultIteratorOptions
			opts.PrefetchValues = false
			opts.Prefix = prefix

			it := txn.NewIterator(opts)
			count := 0
			for it.Seek(prefix); it.ValidForPrefix(prefix) && count < sampleLimit; it.Next() {
				count++
			}
			it.Close()

			if count < bestCount {
				bestCount = count
				bestKey = k
				bestVal = v
			}
			if bestCount == 0 {
				break
			}
		}
		return nil
	})

	return bestKey, bestVal
}

func (b *Backend) queryByLabel(opts *physical.QueryOptions) (*physical.QueryResult, error) {
	limit := opts.Limit
	if limit <= 0 {
		limit = 1000
	}

	dk, dv := pickDrivingLabel(b.db, opts.Labels)

	var results []*physical.Entry
	hasMore := false

	err := b.db.View(func(txn *badger.Txn) error {
		labelPrefix := []byte(prefixLabel + dk + "/" + dv + "/")

		iterOpts := badger.DefaultIteratorOptions
		iterOpts.PrefetchValues = false
		iterOpts.Prefix = labelPrefix
		iterOpts.Reverse = opts.Descending

		it := txn.NewIterator(iterOpts)
		defer it.Close()

		seekKey, skipFirst := seekKeyFor(labelPrefix, string(labelPrefix), opts)

		for it.Seek(seekKey); it.ValidForPrefix(labelPrefix); it.Next() {
			if skipFirst {
				skipFirst = false
				continue
			}

			key := it.Item().Key()
			suffix := string(key[len(labelPrefix):])
			if len(suffix) < 17 {
				continue
			}
			if stop := outOfRange(suffix[:16], opts); stop {
				break
			}

			metaItem, metaGetErr := txn.Get([]byte(prefixMeta + suffix))
			if metaGetErr != nil {
				continue
			}

			var skip bool
			var entry *physical.Entry
			if metaDecErr := metaItem.Value(func(val []byte) error {
				labels, decErr := decodeLabels(val)
				if decErr != nil {
					return decErr
				}
				for k, v := range opts.Labels {
					if labels[k] != v {
						skip = true
						return nil
					}
				}
				if len(results) >= limit {
					return nil
				}
				built, buildErr := entryFromSuffixLabels(suffix, labels)
				if buildErr != nil {
					return buildErr
				}
				entry = built
				return nil
			}); metaDecErr != nil {
				slog.Warn("failed to decode meta", "suffix", suffix, "error", metaDecErr)
				continue
			}
			if skip {
				continue
			}

			if len(results) >= limit {
				hasMore = true
				break
			}

			results = append(results, entry)
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("badger query: %w", err)
	}

	return resultWithCursor(results, hasMore), nil
}

// Count returns the number of entries matching the given options.
func (b *Backend) Count(_ context.Context, opts *physical.QueryOptions) (int64, error) {
	if b.closed.Load() {
		return 0, physical.ErrClosed
	}
	if opts == nil {
		opts = &physical.QueryOptions{}
	}

	var count int64
	err := b.db.View(func(txn *badger.Txn) error {
		var scanPrefix string
		needValidate := false
		if len(opts.Labels) > 0 {
			dk, dv := pickDrivingLabel(b.db, opts.Labels)
			scanPrefix = prefixLabel + dk + "/" + dv + "/"
			needValidate = len(opts.Labels) > 1
		} else {
			scanPrefix = prefixMeta
		}
		prefix := []byte(scanPrefix)

		iterOpts := badger.DefaultIteratorOptions
		iterOpts.PrefetchValues = false
		iterOpts.Prefix = prefix

		it := txn.NewIterator(iterOpts)
		defer it.Close()

		var seekKey []byte
		if opts.After > 0 {
			seekKey = []byte(scanPrefix + timestampToHex(opts.After))
		} else {
			seekKey = prefix
		}

		for it.Seek(seekKey); it.ValidForPrefix(prefix); it.Next() {
			key := it.Item().Key()
			suffix := string(key[len(prefix):])
			if len(suffix) < 17 {
				continue
			}
			if opts.Before > 0 && suffix[:16] >= timestampToHex(opts.Before) {
				break
			}

			if needValidate {
				metaItem, err := txn.Get([]byte(prefixMeta + suffix))
				if err != nil {
					continue
				}
				var skip bool
				if err := metaItem.Value(func(val []byte) error {
					labels, decErr := decodeLabels(val)
					if decErr != nil {
						return decErr
					}
					for k, v := range opts.Labels {
						if labels[k] != v {
							skip = true
							return nil
						}
					}
					return nil
				}); err != nil || skip {
					continue
				}
			}

			count++
		}
		return nil
	})
	if err != nil {
		return 0, fmt.Errorf("badger count: %w", err)
	}
	return count, nil
}

// Stats returns storage statistics.
func (b *Backend) Stats(_ context.Context) (*physical.Stats, error) {
	if b.closed.Load() {
		return nil, physical.ErrClosed
	}

	lsm, vlog := b.db.Size()
	return &physical.Stats{
		SizeBytes:   lsm + vlog,
		BackendType: "badger",
	}, nil
}

// ScanPrefix returns references matching the given hex prefix.
func (b *Backend) ScanPrefix(_ context.Context, hexPrefix string, limit int) ([]reference.Reference, error) {
	if b.closed.Load() {
		return nil, physical.ErrClosed
	}

	var refs []reference.Reference
	prefix := []byte(prefixRef + hexPrefix)

	err := b.db.View(func(txn *badger.Txn) error {
		opts := badger.DefaultIteratorOptions
		opts.PrefetchValues = false
		opts.Prefix = prefix
		it := txn.NewIterator(opts)
		defer it.Close()

		for it.Seek(prefix); it.ValidForPrefix(prefix); it.Next() {
			key := string(it.Item().Key())
			ref, err := reference.FromHex(key[len(prefixRef):])
			if err != nil {
				continue
			}
			refs = append(refs, ref)
			if len(refs) >= limit {
				break
			}
		}
		return nil
	})
	return refs, err
}

// Close closes the BadgerDB database.
func (b *Backend) Close() error {
	if b.closed.Swap(true) {
		return nil
	}
	return b.db.Close()
}

func seekKeyFor(prefix []byte, prefixStr string, opts *physical.QueryOptions) (seekKey []byte, skipFirst bool) {
	switch {
	case opts.Cursor != "":
		seekKey = []byte(prefixStr + opts.Cursor)
		if opts.Descending {
			seekKey = append(seekKey, 0xFF)
		}
		return seekKey, true
	case opts.Descending:
		if opts.Before > 0 {
			seekKey = []byte(prefixStr + timestampToHex(opts.Before))
			return append(seekKey, 0xFF), false
		}
		return prefixEndKey(prefix), false
	default:
		if opts.After > 0 {
			return []byte(prefixStr + timestampToHex(opts.After)), false
		}
		return prefix, false
	}
}

// outOfRange reports whether the scan has crossed the time-range boundary
// in the current direction.
func outOfRange(tsHex string, opts *physical.QueryOptions) bool {
	if !opts.Descending && opts.Before > 0 && tsHex >= timestampToHex(opts.Before) {
		return true
	}
	if opts.Descending && opts.After > 0 && tsHex <= timestampToHex(opts.After) {
		return true
	}
	return false
}

func resultWithCursor(results []*physical.Entry, hasMore bool) *physical.QueryResult {
	var nextCursor string
	if hasMore && len(results) > 0 {
		last := results[len(results)-1]
		nextCursor = timestampToHex(last.Timestamp) + "/" + reference.Hex(last.Ref)
	}
	return &physical.QueryResult{
		Entries:    results,
		NextCursor: nextCursor,
		HasMore:    hasMore,
	}
}

// encodeLabels encodes a label map into a compact binary format.
func encodeLabels(labels map[string]string) []byte {
	size := 2
	for k, v := range labels {
		size += 2 + len(k) + 2 + len(v)
	}
	buf := make([]byte, size)
	binary.BigEndian.PutUint16(buf[0:2], uint16(len(labels)))
	off := 2
	for k, v := range labels {
		binary.BigEndian.PutUint16(buf[off:off+2], uint16(len(k)))
		off += 2
		copy(buf[off:], k)
		off += len(k)
		binary.BigEndian.PutUint16(buf[off:off+2], uint16(len(v)))
		off += 2
		copy(buf[off:], v)
		off += len(v)
	}
	return buf
}

func decodeLabels(data []byte) (map[string]string, error) {
	if len(data) < 2 {
		return nil, fmt.Errorf("meta too short: %d", len(data))
	}
	count := int(binary.BigEndian.Uint16(data[0:2]))
	labels := make(map[string]string, count)
	off := 2
	for i := 0; i < count; i++ {
		if off+2 > len(data) {
			return nil, fmt.Errorf("meta truncated at label %d key length", i)
		}
		kl := int(binary.BigEndian.Uint16(data[off : off+2]))
		off += 2
		if off+kl > len(data) {
			return nil, fmt.Errorf("meta truncated at label %d key", i)
		}
		k := string(data[off : off+kl])
		off += kl
		if off+2 > len(data) {
			return nil, fmt.Errorf("meta truncated at label %d value length", i)
		}
		vl := int(binary.BigEndian.Uint16(data[off : off+2]))
		off += 2
		if off+vl > len(data) {
			return nil, fmt.Errorf("meta truncated at label %d value", i)
		}
		labels[k] = string(data[off : off+vl])
		off += vl
	}
	return labels, nil
}

func prefixEndKey(prefix []byte) []byte {
	end := make([]byte, len(prefix))
	copy(end, prefix)
	end[len(end)-1]++
	return end
}

func timestampToHex(ts int64) string {
	return fmt.Sprintf("%016x", uint64(ts))
}

func hexToTimestamp(h string) (int64, error) {
	b, err := hex.DecodeString(h)
	if err != nil || len(b) != 8 {
		return 0, fmt.Errorf("invalid timestamp hex: %s", h)
	}
	return int64(binary.BigEndian.Uint64(b)), nil
}

func entryFromSuffix(suffix string, metaBytes []byte) (*physical.Entry, error) {
	labels, err := decodeLabels(metaBytes)
	if err != nil {
		return nil, err
	}
	return entryFromSuffixLabels(suffix, labels)
}

func entryFromSuffixLabels(suffix string, labels map[string]string) (*physical.Entry, error) {
	ts, err := hexToTimestamp(suffix[:16])
	if err != nil {
		return nil, err
	}
	ref, err := reference.FromHex(suffix[17:])
	if err != nil {
		return nil, err
	}
	return &physical.Entry{
		Ref:       ref,
		Timestamp: ts,
		Labels:    labels,
	}, nil
}
