package store

import (
	"context"
	"fmt"

	"github.com/JonMunkholm/deliveryingest/internal/core"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"
)

// Store implements core.Store on a pgx pool.
type Store struct {
	pool *pgxpool.Pool
	q    *Queries
}

var _ core.Store = (*Store)(nil)

// NewStore wraps pool.
func NewStore(pool *pgxpool.Pool) *Store {
	return &Store{pool: pool, q: New(pool)}
}

// Queries exposes the pool-bound queries for admin and report callers.
func (s *Store) Queries() *Queries {
	return s.q
}

// Ping checks the database connection.
func (s *Store) Ping(ctx context.Context) error {
	return s.pool.Ping(ctx)
}

// InTx runs fn in a single transaction. Any error from fn rolls back.
func (s *Store) InTx(ctx context.Context, fn func(tx core.TxStore) error) error {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("begin transaction: %w", err)
	}
	defer tx.Rollback(ctx)

	if err := fn(&txStore{q: s.q.WithTx(tx)}); err != nil {
		return err
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("commit transaction: %w", err)
	}
	return nil
}

func (s *Store) ListActiveIntegrations(ctx context.Context) ([]core.Integration, error) {
	return s.q.ListActiveIntegrations(ctx)
}

func (s *Store) FindIntegrationByName(ctx context.Context, name string) (core.Integration, error) {
	return s.q.FindIntegrationByName(ctx, name)
}

func (s *Store) IsFileAlreadyProcessed(ctx context.Context, integrationID int64, fileHash string) (bool, error) {
	return s.q.IsFileAlreadyProcessed(ctx, integrationID, fileHash)
}

func (s *Store) CreateJob(ctx context.Context, integrationID int64, filePath string, totalRows int) (uuid.UUID, error) {
	return s.q.CreateJob(ctx, integrationID, filePath, totalRows)
}

func (s *Store) UpdateJob(ctx context.Context, id uuid.UUID, update core.JobUpdate) error {
	return s.q.UpdateJob(ctx, id, update)
}

// txStore is the transaction-bound write side handed to InTx callbacks.
type txStore struct {
	q *Queries
}

func (t *txStore) UpsertRestaurant(ctx context.Context, p core.RestaurantParams) (int64, bool, error) {
	return t.q.UpsertRestaurant(ctx, p)
}

func (t *txStore) UpsertOrder(ctx context.Context, p core.OrderParams) (int64, bool, error) {
	return t.q.UpsertOrder(ctx, p)
}

func (t *txStore) UpsertRating(ctx context.Context, p core.RatingParams) (int64, bool, error) {
	return t.q.UpsertRating(ctx, p)
}

func (t *txStore) RecordProcessedFile(ctx context.Context, f core.ProcessedFile) error {
	return t.q.RecordProcessedFile(ctx, f)
}
