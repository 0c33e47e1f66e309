package postgres

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"pairpool/internal/event"
)

// Store provides Postgres persistence for pool metadata and emitted
// events.
type Store struct {
	pool *pgxpool.Pool
}

func NewStore(ctx context.Context, dsn string) (*Store, error) {
	if dsn == "" {
		return nil, fmt.Errorf("pg dsn is required")
	}
	pool, err := pgxpool.New(ctx, dsn)
	if err != nil {
		return nil, err
	}
	return &Store{pool: pool}, nil
}

func (s *Store) Close() {
	if s.pool != nil {
		s.pool.Close()
	}
}

// UpsertPools inserts or updates pool metadata.
func (s *Store) UpsertPools(ctx context.Context, pools []event.PoolInfo) error {
	if len(pools) == 0 {
		return nil
	}
	batch := &pgx.Batch{}
	for _, p := range pools {
		batch.Queue(`
			INSERT INTO pools (
				pool_address, asset_a, asset_b, symbol_a, symbol_b, created_at, updated_at
			) VALUES ($1, $2, $3, $4, $5, now(), now())
			ON CONFLICT (pool_address)
			DO UPDATE SET
				asset_a = EXCLUDED.asset_a,
				asset_b = EXCLUDED.asset_b,
				symbol_a = EXCLUDED.symbol_a,
				symbol_b = EXCLUDED.symbol_b,
				updated_at = now()
		`,
			p.Address,
			p.AssetA,
			p.AssetB,
			p.SymbolA,
			p.SymbolB,
		)
	}

	br := s.pool.SendBatch(ctx, batch)
	defer br.Close()

	for range pools {
		if _, err := br.Exec(); err != nil {
			return err
		}
	}
	return nil
}

// InsertEvents writes a batch of emitted pool events. The (pool, seq)
// key makes re-inserts from a replayed scenario idempotent.
func (s *Store) InsertEvents(ctx context.Context, events []event.Record) error {
	if len(events) == 0 {
		return nil
	}
	batch := &pgx.Batch{}
	for _, e := range events {
		batch.Queue(`
			INSERT INTO pool_events (
				pool_address, seq, kind, event_ts, payload, created_at
			) VALUES ($1, $2, $3, $4, $5, now())
			ON CONFLICT (pool_address, seq) DO NOTHING
		`,
			e.Pool,
			int64(e.Sequence),
			e.Kind,
			int64(e.Timestamp),
			[]byte(e.Payload),
		)
	}

	br := s.pool.SendBatch(ctx, batch)
	defer br.Close()

	for range events {
		if _, err := br.Exec(); err != nil {
			return err
		}
	}
	return nil
}

// LoadState returns the last applied operation index for a name.
func (s *Store) LoadState(ctx context.Context, name string) (uint64, bool, error) {
	if name == "" {
		return 0, false, fmt.Errorf("state name required")
	}
	var idx uint64
	row := s.pool.QueryRow(ctx, `SELECT last_applied_op FROM replay_state WHERE name=$1`, name)
	if err := row.Scan(&idx); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return 0, false, nil
		}
		return 0, false, err
	}
	return idx, true, nil
}

// SaveState upserts the last applied operation index for a name.
func (s *Store) SaveState(ctx context.Context, name string, idx uint64) error {
	if name == "" {
		return fmt.Errorf("state name required")
	}
	_, err := s.pool.Exec(ctx, `
		INSERT INTO replay_state (name, last_applied_op, updated_at)
		VALUES ($1, $2, now())
		ON CONFLICT (name) DO UPDATE
		SET last_applied_op = EXCLUDED.last_applied_op, updated_at = now()
	`, name, idx)
	return err
}
