//go:build integration

package store

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/JonMunkholm/deliveryingest/internal/core"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/testcontainers/testcontainers-go"
	tcpostgres "github.com/testcontainers/testcontainers-go/modules/postgres"
	"github.com/testcontainers/testcontainers-go/wait"
)

func newTestStore(t *testing.T) *Store {
	t.Helper()
	ctx := context.Background()

	container, err := tcpostgres.Run(ctx,
		"postgres:16-alpine",
		tcpostgres.WithDatabase("ingest_test"),
		tcpostgres.WithUsername("postgres"),
		tcpostgres.WithPassword("postgres"),
		testcontainers.WithWaitStrategy(
			wait.ForLog("database system is ready to accept connections").
				WithOccurrence(2).
				WithStartupTimeout(60*time.Second)),
	)
	require.NoError(t, err, "start postgres container")
	t.Cleanup(func() { _ = container.Terminate(context.Background()) })

	dsn, err := container.ConnectionString(ctx, "sslmode=disable")
	require.NoError(t, err)

	m, err := NewMigrator(dsn)
	require.NoError(t, err)
	require.NoError(t, m.Up())
	version, dirty, err := m.Version()
	require.NoError(t, err)
	assert.Equal(t, uint(1), version)
	assert.False(t, dirty)
	require.NoError(t, m.Close())

	pool, err := pgxpool.New(ctx, dsn)
	require.NoError(t, err)
	t.Cleanup(pool.Close)

	return NewStore(pool)
}

func seedIntegration(t *testing.T, s *Store) core.Integration {
	t.Helper()
	ctx := context.Background()

	require.NoError(t, s.Queries().UpsertPlatform(ctx, UpsertPlatformParams{ID: 1, Code: "alpha", Name: "Alpha Eats"}))

	integ := core.Integration{
		Name:         "alpha_orders",
		PlatformID:   1,
		SourceFormat: core.FormatOrderHistory,
		Tables:       []string{core.TableRestaurants, core.TableOrders},
		IsActive:     true,
		FieldMapping: core.FieldMapping{
			{Column: "Order ID", Spec: core.FieldSpec{Target: core.FieldPlatformOrderID, Required: true}},
			{Column: "Store ID", Spec: core.FieldSpec{Target: core.FieldRestaurantExternalID}},
			{Column: "Store Name", Spec: core.FieldSpec{Target: core.FieldRestaurantName}},
			{Column: "Status", Spec: core.FieldSpec{Target: core.FieldOrderStatus}},
			{Column: "Subtotal", Spec: core.FieldSpec{Target: core.FieldOrderValue, Type: core.FieldNumber}},
		},
	}
	id, err := s.Queries().UpsertIntegration(ctx, integ)
	require.NoError(t, err)
	integ.ID = id
	return integ
}

func TestStore_Integrations(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	want := seedIntegration(t, s)

	got, err := s.FindIntegrationByName(ctx, "alpha_orders")
	require.NoError(t, err)
	assert.Equal(t, want.ID, got.ID)
	assert.Equal(t, want.FieldMapping.Columns(), got.FieldMapping.Columns(), "mapping order survives storage")
	assert.Equal(t, want.Tables, got.Tables)

	_, err = s.FindIntegrationByName(ctx, "missing")
	assert.True(t, errors.Is(err, core.ErrNotFound))

	// Re-seeding by name updates in place.
	want.IsActive = false
	id, err := s.Queries().UpsertIntegration(ctx, want)
	require.NoError(t, err)
	assert.Equal(t, want.ID, id)

	active, err := s.ListActiveIntegrations(ctx)
	require.NoError(t, err)
	assert.Empty(t, active)
}

func TestStore_UpsertsReportInserted(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	seedIntegration(t, s)

	value := 18.5
	err := s.InTx(ctx, func(tx core.TxStore) error {
		rid, inserted, err := tx.UpsertRestaurant(ctx, core.RestaurantParams{PlatformID: 1, ExternalID: "S1", Name: "Pizza Place"})
		require.NoError(t, err)
		assert.True(t, inserted)

		again, inserted, err := tx.UpsertRestaurant(ctx, core.RestaurantParams{PlatformID: 1, ExternalID: "S1", Name: "Pizza Place"})
		require.NoError(t, err)
		assert.False(t, inserted)
		assert.Equal(t, rid, again)

		_, inserted, err = tx.UpsertOrder(ctx, core.OrderParams{
			PlatformID:      1,
			PlatformOrderID: "A-1",
			RestaurantID:    &rid,
			Status:          core.StatusCompleted,
			DeliveryType:    "DELIVERY",
			OrderValue:      &value,
			Attributes:      core.NormalizedRecord{"tip": 2.5},
		})
		require.NoError(t, err)
		assert.True(t, inserted)

		_, inserted, err = tx.UpsertOrder(ctx, core.OrderParams{
			PlatformID:      1,
			PlatformOrderID: "A-1",
			Status:          core.StatusCancelledCustomer,
		})
		require.NoError(t, err)
		assert.False(t, inserted)

		_, inserted, err = tx.UpsertRating(ctx, core.RatingParams{PlatformID: 1, PlatformOrderID: "A-1", RestaurantID: &rid, Rating: 4.5})
		require.NoError(t, err)
		assert.True(t, inserted)
		return nil
	})
	require.NoError(t, err)

	counts, err := s.Queries().CountRows(ctx)
	require.NoError(t, err)
	assert.Equal(t, RowCounts{Restaurants: 1, Orders: 1, Ratings: 1}, counts)

	statuses, err := s.Queries().StatusCounts(ctx)
	require.NoError(t, err)
	require.Len(t, statuses, 1)
	assert.Equal(t, StatusCountRow{Platform: "Alpha Eats", Status: "CANCELLED_CUSTOMER", Orders: 1}, statuses[0])

	types, err := s.Queries().DeliveryTypeCounts(ctx)
	require.NoError(t, err)
	require.Len(t, types, 1)
	assert.Equal(t, "UNKNOWN", types[0].DeliveryType, "a later upsert without delivery type resets it")

	ratings, err := s.Queries().RatingsByRestaurant(ctx, 10)
	require.NoError(t, err)
	require.Len(t, ratings, 1)
	assert.Equal(t, "4.5", ratings[0].AvgRating.String())
}

func TestStore_InTxRollsBack(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	seedIntegration(t, s)

	boom := errors.New("boom")
	err := s.InTx(ctx, func(tx core.TxStore) error {
		_, _, err := tx.UpsertRestaurant(ctx, core.RestaurantParams{PlatformID: 1, ExternalID: "S1", Name: "x"})
		require.NoError(t, err)
		return boom
	})
	assert.ErrorIs(t, err, boom)

	counts, err := s.Queries().CountRows(ctx)
	require.NoError(t, err)
	assert.Zero(t, counts.Restaurants)
}

func TestStore_JobsAndLedger(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	integ := seedIntegration(t, s)

	id, err := s.CreateJob(ctx, integ.ID, "/tmp/orders.csv", 0)
	require.NoError(t, err)

	processed, err := s.IsFileAlreadyProcessed(ctx, integ.ID, "abc")
	require.NoError(t, err)
	assert.False(t, processed)

	require.NoError(t, s.InTx(ctx, func(tx core.TxStore) error {
		return tx.RecordProcessedFile(ctx, core.ProcessedFile{
			IntegrationID: integ.ID, FilePath: "/tmp/orders.csv", FileHash: "abc", TotalRows: 2, JobID: id,
		})
	}))

	processed, err = s.IsFileAlreadyProcessed(ctx, integ.ID, "abc")
	require.NoError(t, err)
	assert.True(t, processed)

	err = s.InTx(ctx, func(tx core.TxStore) error {
		return tx.RecordProcessedFile(ctx, core.ProcessedFile{
			IntegrationID: integ.ID, FilePath: "/tmp/copy.csv", FileHash: "abc", TotalRows: 2, JobID: id,
		})
	})
	assert.Error(t, err, "ledger is unique per integration and hash")

	require.NoError(t, s.UpdateJob(ctx, id, core.JobUpdate{
		Status: core.JobCompleted, TotalRows: 2, ProcessedRows: 1, InsertedRows: 1, ErrorRows: 1,
	}))

	jobs, err := s.Queries().ListJobs(ctx, 5)
	require.NoError(t, err)
	require.Len(t, jobs, 1)
	assert.Equal(t, id, jobs[0].ID)
	assert.Equal(t, "alpha_orders", jobs[0].Integration)
	assert.Equal(t, core.JobCompleted, jobs[0].Status)
	assert.NotNil(t, jobs[0].CompletedAt)

	require.NoError(t, s.Queries().ResetData(ctx))
	counts, err := s.Queries().CountRows(ctx)
	require.NoError(t, err)
	assert.Equal(t, RowCounts{}, counts)

	_, err = s.FindIntegrationByName(ctx, "alpha_orders")
	assert.NoError(t, err, "reset keeps integrations")
}

func TestStore_ProcessFileEndToEnd(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	seedIntegration(t, s)

	path := filepath.Join(t.TempDir(), "orders.csv")
	content := "Order ID,Store ID,Store Name,Status,Subtotal\n" +
		"A-1,S1,Pizza Place,COMPLETED,12.00\n" +
		",S1,Pizza Place,COMPLETED,3.00\n"
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))

	svc := core.NewService(s, core.ServiceConfig{})
	res, err := svc.ProcessFile(ctx, core.ProcessRequest{Path: path})
	require.NoError(t, err)
	assert.Equal(t, 1, res.Processed)
	assert.Equal(t, 1, res.Skipped)

	again, err := svc.ProcessFile(ctx, core.ProcessRequest{Path: path})
	require.NoError(t, err)
	assert.True(t, again.Duplicate)

	counts, err := s.Queries().CountRows(ctx)
	require.NoError(t, err)
	assert.Equal(t, RowCounts{Restaurants: 1, Orders: 1, Jobs: 1, ProcessedFiles: 1}, counts)
}
