// Package node wires configuration into opened stores and the board service.
package node

import (
	"context"
	"fmt"
	"io"
	"path/filepath"

	"github.com/corknet/cork-node/internal/board"
	"github.com/corknet/cork-node/internal/chainstore"
	"github.com/corknet/cork-node/internal/config"
	"github.com/corknet/cork-node/internal/indexstore"
	indexphysical "github.com/corknet/cork-node/internal/indexstore/physical"
	"github.com/corknet/cork-node/internal/observability"
	"github.com/corknet/cork-node/internal/recordstore"
	recordphysical "github.com/corknet/cork-node/internal/recordstore/physical"
	"github.com/corknet/cork-node/internal/registry"

	// Storage backends register themselves on import.
	_ "github.com/corknet/cork-node/internal/indexstore/physical/badger"
	_ "github.com/corknet/cork-node/internal/indexstore/physical/memory"
	_ "github.com/corknet/cork-node/internal/indexstore/physical/redis"
	_ "github.com/corknet/cork-node/internal/indexstore/physical/sqlite"
	_ "github.com/corknet/cork-node/internal/recordstore/physical/badger"
	_ "github.com/corknet/cork-node/internal/recordstore/physical/fs"
	_ "github.com/corknet/cork-node/internal/recordstore/physical/memory"
	_ "github.com/corknet/cork-node/internal/recordstore/physical/s3"
)

// Node is an opened cork node: configured backends, the stores layered on
// top of them, and the board service.
type Node struct {
	Config   config.Config
	Obs      *observability.Observability
	Records  *recordstore.Store
	Index    *indexstore.IndexStore
	Chains   *chainstore.Store
	Registry *registry.Registry
	Board    *board.Service

	recordBackend recordphysical.Backend
}

// Open initializes observability and storage from the configuration and
// assembles the service stack. logWriter receives log output.
func Open(ctx context.Context, cfg config.Config, logWriter io.Writer) (*Node, error) {
	obs, err := observability.New(ctx, observability.ObsConfig{
		LogLevel:       cfg.Observability.LogLevel,
		LogFormat:      cfg.Observability.LogFormat,
		OTLPEndpoint:   cfg.Observability.OTLPEndpoint,
		OTLPProtocol:   cfg.Observability.OTLPProtocol,
		ServiceName:    cfg.Observability.ServiceName,
		ServiceVersion: cfg.Observability.ServiceVersion,
	}, logWriter)
	if err != nil {
		return nil, err
	}

	recordCfg := backendConfig(cfg.Storage.Record.Config, cfg.DataDir, "records")
	recordBackend, err := recordphysical.New(ctx, cfg.Storage.Record.Backend, recordCfg)
	if err != nil {
		return nil, fmt.Errorf("open record backend: %w", err)
	}

	indexCfg := backendConfig(cfg.Storage.Index.Config, cfg.DataDir, "index")
	indexBackend, err := indexphysical.New(ctx, cfg.Storage.Index.Backend, indexCfg)
	if err != nil {
		recordBackend.Close()
		return nil, fmt.Errorf("open index backend: %w", err)
	}

	records := recordstore.New(recordBackend, obs.Metrics)
	index, err := indexstore.New(indexBackend, obs.Metrics)
	if err != nil {
		recordBackend.Close()
		indexBackend.Close()
		return nil, err
	}

	chains := chainstore.New(records, index, obs.Metrics)
	reg := registry.New(chains, index, obs.Metrics)

	return &Node{
		Config:        cfg,
		Obs:           obs,
		Records:       records,
		Index:         index,
		Chains:        chains,
		Registry:      reg,
		Board:         board.New(chains, index, reg, obs.Metrics),
		recordBackend: recordBackend,
	}, nil
}

// Close releases the storage backends and flushes observability state.
func (n *Node) Close(ctx context.Context) error {
	var firstErr error
	if err := n.Index.Close(); err != nil && firstErr == nil {
		firstErr = err
	}
	if err := n.recordBackend.Close(); err != nil && firstErr == nil {
		firstErr = err
	}
	if err := n.Obs.Close(ctx); err != nil && firstErr == nil {
		firstErr = err
	}
	return firstErr
}

// backendConfig fills in the default on-disk path for a backend that has
// none configured. Backends that ignore paths just never read the key.
func backendConfig(cfg map[string]string, dataDir, sub string) map[string]string {
	merged := make(map[string]string, len(cfg)+1)
	for k, v := range cfg {
		merged[k] = v
	}
	if merged["path"] == "" {
		if dataDir == "" {
			dataDir = config.DefaultDataDir()
		}
		merged["path"] = filepath.Join(dataDir, sub)
	}
	return merged
}
