package databases

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"

	"continuum/internal/config"
)

// NewManager constructs the memory-tier storage backends from
// configuration. An empty DefaultDSN selects the in-memory backend
// (suitable for tests and single-node development); a non-empty DSN
// selects Postgres and runs InitSchema.
func NewManager(ctx context.Context, cfg config.DatabasesConfig) (Manager, error) {
	var m Manager
	if cfg.DefaultDSN == "" {
		m.Agents = NewMemoryAgentStore()
		m.WorkingContext = NewMemoryWorkingContextStore()
		m.FIFOQueue = NewMemoryFIFOQueueStore()
		m.Recall = NewMemoryRecallStore()
		m.ChatLog = NewMemoryChatLogStore()
	} else {
		pool, err := newPgPool(ctx, cfg.DefaultDSN)
		if err != nil {
			return Manager{}, fmt.Errorf("connect postgres: %w", err)
		}
		if err := InitSchema(ctx, pool); err != nil {
			pool.Close()
			return Manager{}, fmt.Errorf("init schema: %w", err)
		}
		m.Agents = NewPostgresAgentStore(pool)
		m.WorkingContext = NewPostgresWorkingContextStore(pool)
		m.FIFOQueue = NewPostgresFIFOQueueStore(pool)
		m.Recall = NewPostgresRecallStore(pool)
		m.ChatLog = NewPostgresChatLogStore(pool)
	}

	if cfg.QdrantDSN == "" {
		m.Vector = noopVector{}
	} else {
		v, err := NewQdrantVector(cfg.QdrantDSN, cfg.QdrantCollection, cfg.QdrantDimensions, cfg.QdrantMetric)
		if err != nil {
			return Manager{}, fmt.Errorf("connect qdrant: %w", err)
		}
		m.Vector = v
	}
	return m, nil
}

type noopVector struct{}

func (noopVector) Upsert(context.Context, string, []float32, map[string]string) error { return nil }
func (noopVector) Delete(context.Context, string) error                               { return nil }
func (noopVector) SimilaritySearch(context.Context, []float32, int, map[string]string) ([]VectorResult, error) {
	return nil, nil
}

func newPgPool(ctx context.Context, dsn string) (*pgxpool.Pool, error) {
	pcfg, err := pgxpool.ParseConfig(dsn)
	if err != nil {
		return nil, err
	}
	pcfg.MaxConns = 8
	pcfg.MinConns = 0
	pcfg.MaxConnLifetime = time.Hour
	pcfg.MaxConnIdleTime = 5 * time.Minute
	pool, err := pgxpool.NewWithConfig(ctx, pcfg)
	if err != nil {
		return nil, err
	}
	cctx, cancel := context.WithTimeout(ctx, 3*time.Second)
	defer cancel()
	if err := pool.Ping(cctx); err != nil {
		pool.Close()
		return nil, err
	}
	return pool, nil
}
