package core

import (
	"context"
	"errors"
	"fmt"
	"maps"
	"sort"
	"sync"

	"github.com/google/uuid"
)

// memStore is an in-memory Store. Writes inside InTx are staged and only
// applied when the callback returns nil.
type memStore struct {
	mu sync.Mutex

	integrations []Integration
	restaurants  map[string]int64 // platform|external -> id
	orders       map[string]OrderParams
	ratings      map[string]RatingParams
	ledger       map[string]ProcessedFile // integration|hash
	jobs         map[uuid.UUID]*IngestionJob
	nextID       int64

	listCalls int
	failOrder string // platform_order_id whose upsert fails
}

func newMemStore(integrations ...Integration) *memStore {
	return &memStore{
		integrations: integrations,
		restaurants:  make(map[string]int64),
		orders:       make(map[string]OrderParams),
		ratings:      make(map[string]RatingParams),
		ledger:       make(map[string]ProcessedFile),
		jobs:         make(map[uuid.UUID]*IngestionJob),
	}
}

func (m *memStore) ListActiveIntegrations(ctx context.Context) ([]Integration, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.listCalls++

	var out []Integration
	for _, i := range m.integrations {
		if i.IsActive {
			out = append(out, i)
		}
	}
	sort.SliceStable(out, func(a, b int) bool { return out[a].ID < out[b].ID })
	return out, nil
}

func (m *memStore) FindIntegrationByName(ctx context.Context, name string) (Integration, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, i := range m.integrations {
		if i.Name == name {
			return i, nil
		}
	}
	return Integration{}, ErrNotFound
}

func (m *memStore) IsFileAlreadyProcessed(ctx context.Context, integrationID int64, hash string) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	_, ok := m.ledger[fmt.Sprintf("%d|%s", integrationID, hash)]
	return ok, nil
}

func (m *memStore) CreateJob(ctx context.Context, integrationID int64, path string, totalRows int) (uuid.UUID, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	id := uuid.New()
	m.jobs[id] = &IngestionJob{
		ID:            id,
		IntegrationID: integrationID,
		FilePath:      path,
		Status:        JobPending,
		TotalRows:     totalRows,
	}
	return id, nil
}

func (m *memStore) UpdateJob(ctx context.Context, id uuid.UUID, u JobUpdate) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	job, ok := m.jobs[id]
	if !ok {
		return ErrNotFound
	}
	job.Status = u.Status
	job.TotalRows = u.TotalRows
	job.ProcessedRows = u.ProcessedRows
	job.InsertedRows = u.InsertedRows
	job.ErrorRows = u.ErrorRows
	job.ErrorMessage = u.ErrorMessage
	return nil
}

func (m *memStore) InTx(ctx context.Context, fn func(tx TxStore) error) error {
	m.mu.Lock()
	tx := &memTx{
		store:       m,
		restaurants: maps.Clone(m.restaurants),
		orders:      maps.Clone(m.orders),
		ratings:     maps.Clone(m.ratings),
		ledger:      maps.Clone(m.ledger),
		nextID:      m.nextID,
	}
	m.mu.Unlock()

	if err := fn(tx); err != nil {
		return err
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	m.restaurants, m.orders, m.ratings, m.ledger, m.nextID = tx.restaurants, tx.orders, tx.ratings, tx.ledger, tx.nextID
	return nil
}

func (m *memStore) job(t interface{ Fatalf(string, ...any) }, id uuid.UUID) IngestionJob {
	m.mu.Lock()
	defer m.mu.Unlock()
	job, ok := m.jobs[id]
	if !ok {
		t.Fatalf("job %s not found", id)
	}
	return *job
}

type memTx struct {
	store       *memStore
	restaurants map[string]int64
	orders      map[string]OrderParams
	ratings     map[string]RatingParams
	ledger      map[string]ProcessedFile
	nextID      int64
}

func (tx *memTx) UpsertRestaurant(ctx context.Context, p RestaurantParams) (int64, bool, error) {
	key := fmt.Sprintf("%d|%s", p.PlatformID, p.ExternalID)
	if id, ok := tx.restaurants[key]; ok {
		return id, false, nil
	}
	tx.nextID++
	tx.restaurants[key] = tx.nextID
	return tx.nextID, true, nil
}

func (tx *memTx) UpsertOrder(ctx context.Context, p OrderParams) (int64, bool, error) {
	if tx.store.failOrder != "" && p.PlatformOrderID == tx.store.failOrder {
		return 0, false, errors.New("connection reset by peer")
	}
	key := fmt.Sprintf("%d|%s", p.PlatformID, p.PlatformOrderID)
	_, exists := tx.orders[key]
	tx.orders[key] = p
	tx.nextID++
	return tx.nextID, !exists, nil
}

func (tx *memTx) UpsertRating(ctx context.Context, p RatingParams) (int64, bool, error) {
	key := fmt.Sprintf("%d|%s", p.PlatformID, p.PlatformOrderID)
	_, exists := tx.ratings[key]
	tx.ratings[key] = p
	tx.nextID++
	return tx.nextID, !exists, nil
}

func (tx *memTx) RecordProcessedFile(ctx context.Context, f ProcessedFile) error {
	key := fmt.Sprintf("%d|%s", f.IntegrationID, f.FileHash)
	if _, ok := tx.ledger[key]; ok {
		return errors.New("duplicate key value violates unique constraint \"processed_files_integration_hash_key\"")
	}
	tx.ledger[key] = f
	return nil
}
