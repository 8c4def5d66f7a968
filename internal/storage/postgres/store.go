package postgres

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"poolledger/internal/model"
)

// Store provides Postgres persistence for pool snapshots and share balances.
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

// UpsertPoolState writes one pool snapshot and replaces its share-balance
// rows inside a single transaction.
func (s *Store) UpsertPoolState(ctx context.Context, snapshot model.PoolSnapshot) error {
	return pgx.BeginFunc(ctx, s.pool, func(tx pgx.Tx) error {
		return upsertPoolState(ctx, tx, snapshot)
	})
}

// UpsertPoolStates writes a batch of pool snapshots in one transaction.
func (s *Store) UpsertPoolStates(ctx context.Context, snapshots []model.PoolSnapshot) error {
	if len(snapshots) == 0 {
		return nil
	}
	return pgx.BeginFunc(ctx, s.pool, func(tx pgx.Tx) error {
		for _, snapshot := range snapshots {
			if err := upsertPoolState(ctx, tx, snapshot); err != nil {
				return err
			}
		}
		return nil
	})
}

func upsertPoolState(ctx context.Context, tx pgx.Tx, snapshot model.PoolSnapshot) error {
	if _, err := tx.Exec(ctx, `
		INSERT INTO pools (
			pair, asset0, asset1, reserve0, reserve1, total_shares, created_at, updated_at
		) VALUES ($1, $2, $3, $4, $5, $6, now(), now())
		ON CONFLICT (pair)
		DO UPDATE SET
			reserve0 = EXCLUDED.reserve0,
			reserve1 = EXCLUDED.reserve1,
			total_shares = EXCLUDED.total_shares,
			updated_at = now()
	`,
		snapshot.Pair,
		snapshot.Asset0,
		snapshot.Asset1,
		snapshot.Reserve0,
		snapshot.Reserve1,
		snapshot.TotalShares,
	); err != nil {
		return fmt.Errorf("upsert pool %s: %w", snapshot.Pair, err)
	}

	if _, err := tx.Exec(ctx, `DELETE FROM share_balances WHERE pair = $1`, snapshot.Pair); err != nil {
		return fmt.Errorf("clear balances %s: %w", snapshot.Pair, err)
	}

	batch := &pgx.Batch{}
	for _, balance := range snapshot.Balances {
		batch.Queue(`
			INSERT INTO share_balances (pair, holder, shares, updated_at)
			VALUES ($1, $2, $3, now())
		`,
			balance.Pair,
			balance.Holder,
			balance.Shares,
		)
	}

	br := tx.SendBatch(ctx, batch)
	defer br.Close()

	for range snapshot.Balances {
		if _, err := br.Exec(); err != nil {
			return fmt.Errorf("insert balances %s: %w", snapshot.Pair, err)
		}
	}
	return nil
}

// MaxOperationSeq returns the highest stored operation sequence, or zero when
// no operations are stored.
func (s *Store) MaxOperationSeq(ctx context.Context) (uint64, error) {
	var seq int64
	if err := s.pool.QueryRow(ctx, `SELECT COALESCE(MAX(seq), 0) FROM operations`).Scan(&seq); err != nil {
		return 0, fmt.Errorf("max operation seq: %w", err)
	}
	return uint64(seq), nil
}

// InsertOperations appends journaled operations, skipping sequence numbers
// already stored.
func (s *Store) InsertOperations(ctx context.Context, records []model.OperationRecord) error {
	if len(records) == 0 {
		return nil
	}
	batch := &pgx.Batch{}
	for _, record := range records {
		batch.Queue(`
			INSERT INTO operations (
				seq, kind, pair, asset_a, asset_b, amount_a, amount_b, shares,
				asset_in, asset_out, amount_in, amount_out, caller, recipient, ts, created_at
			) VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13,$14,$15,now())
			ON CONFLICT (seq) DO NOTHING
		`,
			int64(record.Seq),
			record.Kind,
			record.Pair,
			record.AssetA,
			record.AssetB,
			record.AmountA,
			record.AmountB,
			record.Shares,
			record.AssetIn,
			record.AssetOut,
			record.AmountIn,
			record.AmountOut,
			record.Caller,
			record.Recipient,
			record.Timestamp,
		)
	}

	br := s.pool.SendBatch(ctx, batch)
	defer br.Close()

	for range records {
		if _, err := br.Exec(); err != nil {
			return err
		}
	}
	return nil
}
