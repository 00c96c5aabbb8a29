package core

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
)

const orderHistoryHeader = "Order ID,Store ID,Store Name,Status,Order Type,Placed At,Prep Time,Subtotal,Cancelled By,Completed\n"

// eventRecorder collects observer events.
type eventRecorder struct {
	mu     sync.Mutex
	events []JobEvent
}

func (r *eventRecorder) JobFinished(_ context.Context, ev JobEvent) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, ev)
}

func (r *eventRecorder) last(t *testing.T) JobEvent {
	t.Helper()
	r.mu.Lock()
	defer r.mu.Unlock()
	if len(r.events) == 0 {
		t.Fatal("no observer events")
	}
	return r.events[len(r.events)-1]
}

func newTestService(store *memStore) (*Service, *eventRecorder) {
	rec := &eventRecorder{}
	svc := NewService(store, ServiceConfig{Observer: rec})
	return svc, rec
}

func TestProcessFile_EndToEnd(t *testing.T) {
	store := newMemStore(orderHistoryIntegration(), aggregateCountsIntegration())
	svc, events := newTestService(store)

	path := writeCSV(t, "orders.csv", orderHistoryHeader+
		"A-1,S1,Pizza Place,Delivered,delivery,15/03/2024 18:45:10,0:12:30,€23.50,,yes\n"+
		",S1,Pizza Place,Delivered,delivery,15/03/2024 19:00:00,10,9.00,,yes\n")

	res, err := svc.ProcessFile(context.Background(), ProcessRequest{Path: path})
	if err != nil {
		t.Fatalf("ProcessFile() error: %v", err)
	}

	if res.Integration != "platform1_orders" {
		t.Errorf("integration = %q", res.Integration)
	}
	if res.TotalRows != 2 || res.Processed != 1 || res.Skipped != 1 || res.Inserted != 1 {
		t.Errorf("counts = total %d processed %d skipped %d inserted %d, want 2/1/1/1",
			res.TotalRows, res.Processed, res.Skipped, res.Inserted)
	}
	if res.Duplicate {
		t.Error("first run reported as duplicate")
	}
	if len(res.FileHash) != 64 {
		t.Errorf("file hash = %q", res.FileHash)
	}

	if len(store.restaurants) != 1 {
		t.Errorf("restaurants = %d, want 1", len(store.restaurants))
	}
	if len(store.orders) != 1 {
		t.Fatalf("orders = %d, want 1", len(store.orders))
	}
	if len(store.ledger) != 1 {
		t.Errorf("ledger entries = %d, want 1", len(store.ledger))
	}

	order := store.orders["1|A-1"]
	if order.Status != StatusCompleted {
		t.Errorf("order status = %s, want COMPLETED", order.Status)
	}
	if order.RestaurantID == nil {
		t.Error("order not linked to its restaurant")
	}
	if order.PrepTimeMinutes == nil || *order.PrepTimeMinutes != 13 {
		t.Errorf("prep minutes = %v, want 13", order.PrepTimeMinutes)
	}
	if order.OrderValue == nil || *order.OrderValue != 23.5 {
		t.Errorf("order value = %v, want 23.5", order.OrderValue)
	}
	if order.DeliveryType != "DELIVERY" {
		t.Errorf("delivery type = %q", order.DeliveryType)
	}

	job := store.job(t, res.JobID)
	if job.Status != JobCompleted {
		t.Errorf("job status = %s, want completed", job.Status)
	}
	if job.TotalRows != 2 || job.ProcessedRows != 1 || job.InsertedRows != 1 || job.ErrorRows != 1 {
		t.Errorf("job counts = %+v", job)
	}

	ev := events.last(t)
	if ev.Outcome != OutcomeCompleted || ev.JobID != res.JobID || ev.PlatformID != 1 {
		t.Errorf("event = %+v", ev)
	}
}

func TestProcessFile_DuplicateIsSkipped(t *testing.T) {
	store := newMemStore(orderHistoryIntegration())
	svc, events := newTestService(store)

	path := writeCSV(t, "orders.csv", orderHistoryHeader+
		"A-1,S1,Pizza Place,Delivered,delivery,15/03/2024 18:45:10,10,12.00,,yes\n")

	first, err := svc.ProcessFile(context.Background(), ProcessRequest{Path: path})
	if err != nil {
		t.Fatalf("first run: %v", err)
	}

	second, err := svc.ProcessFile(context.Background(), ProcessRequest{Path: path, SourcePath: "s3://bucket/orders.csv"})
	if err != nil {
		t.Fatalf("second run: %v", err)
	}
	if !second.Duplicate {
		t.Error("second run not reported as duplicate")
	}
	if second.JobID != uuid.Nil {
		t.Error("duplicate run created a job")
	}
	if second.FileHash != first.FileHash {
		t.Error("hash changed between runs")
	}
	if second.FilePath != "s3://bucket/orders.csv" {
		t.Errorf("file path = %q, want source path", second.FilePath)
	}
	if len(store.jobs) != 1 {
		t.Errorf("jobs = %d, want 1", len(store.jobs))
	}
	if ev := events.last(t); ev.Outcome != OutcomeDuplicate {
		t.Errorf("event outcome = %s, want duplicate", ev.Outcome)
	}
}

func TestProcessFile_RerunAfterEditIsNotDuplicate(t *testing.T) {
	store := newMemStore(orderHistoryIntegration())
	svc, _ := newTestService(store)
	ctx := context.Background()

	path := writeCSV(t, "orders.csv", orderHistoryHeader+
		"A-1,S1,Pizza Place,Accepted,pickup,15/03/2024 18:45:10,10,12.00,,no\n")
	if _, err := svc.ProcessFile(ctx, ProcessRequest{Path: path}); err != nil {
		t.Fatalf("first run: %v", err)
	}

	// Same order, new status: the upsert updates in place.
	if err := os.WriteFile(path, []byte(orderHistoryHeader+
		"A-1,S1,Pizza Place,Delivered,pickup,15/03/2024 18:45:10,10,12.00,,yes\n"), 0o644); err != nil {
		t.Fatal(err)
	}
	res, err := svc.ProcessFile(ctx, ProcessRequest{Path: path})
	if err != nil {
		t.Fatalf("second run: %v", err)
	}
	if res.Duplicate {
		t.Fatal("edited file treated as duplicate")
	}
	if res.Processed != 1 || res.Inserted != 0 {
		t.Errorf("processed %d inserted %d, want 1/0", res.Processed, res.Inserted)
	}
	if got := store.orders["1|A-1"].Status; got != StatusCompleted {
		t.Errorf("status = %s, want COMPLETED after update", got)
	}
	if len(store.ledger) != 2 {
		t.Errorf("ledger entries = %d, want 2", len(store.ledger))
	}
}

func TestProcessFile_ValidationErrors(t *testing.T) {
	store := newMemStore(orderHistoryIntegration())
	svc := NewService(store, ServiceConfig{MaxFileSize: 256})

	dir := t.TempDir()
	dirCSV := filepath.Join(dir, "folder.csv")
	if err := os.Mkdir(dirCSV, 0o755); err != nil {
		t.Fatal(err)
	}

	tests := []struct {
		name    string
		path    string
		wantErr error
	}{
		{"no path", "", ErrNoFile},
		{"wrong extension", writeCSV(t, "orders.txt", orderHistoryHeader), ErrUnsupportedFileType},
		{"missing file", filepath.Join(dir, "missing.csv"), ErrFileNotFound},
		{"directory", dirCSV, ErrNotRegularFile},
		{"zero bytes", writeCSV(t, "empty.csv", ""), ErrEmptyFile},
		{"only a BOM", writeCSV(t, "bom.csv", "\ufeff"), ErrEmptyFile},
		{"too large", writeCSV(t, "big.csv", strings.Repeat("x", 300)), ErrFileTooLarge},
		{"no matching integration", writeCSV(t, "other.csv", "foo,bar\n1,2\n"), ErrNoMatchingIntegration},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := svc.ProcessFile(context.Background(), ProcessRequest{Path: tt.path})
			if !errors.Is(err, tt.wantErr) {
				t.Fatalf("err = %v, want %v", err, tt.wantErr)
			}
			var ve *ValidationError
			if !errors.As(err, &ve) {
				t.Errorf("err = %T, want *ValidationError", err)
			}
		})
	}

	if len(store.jobs) != 0 {
		t.Errorf("validation failures created %d jobs", len(store.jobs))
	}
}

func TestProcessFile_TransformFailureRollsBack(t *testing.T) {
	store := newMemStore(orderHistoryIntegration())
	svc, events := newTestService(store)

	path := writeCSV(t, "orders.csv", orderHistoryHeader+
		"A-1,S1,Pizza Place,Delivered,delivery,15/03/2024 18:45:10,10,12.00,,yes\n"+
		"A-2,S1,Pizza Place,Delivered,delivery,15/03/2024 18:50:00,12:75,8.00,,yes\n"+
		"A-3,S1,Pizza Place,Delivered,delivery,15/03/2024 18:55:00,5,8.00,,yes\n")

	res, err := svc.ProcessFile(context.Background(), ProcessRequest{Path: path})
	if err == nil {
		t.Fatal("ProcessFile() expected error")
	}

	var pe *ProcessingError
	if !errors.As(err, &pe) {
		t.Fatalf("err = %T, want *ProcessingError", err)
	}
	if pe.Row != 3 || pe.Value != "12:75" || pe.Integration != "platform1_orders" {
		t.Errorf("ProcessingError = %+v", pe)
	}
	if code := MapError(err).Code; code != "ING001" {
		t.Errorf("MapError code = %s, want ING001", code)
	}

	if len(store.orders) != 0 || len(store.restaurants) != 0 {
		t.Errorf("rows committed after failure: %d orders, %d restaurants", len(store.orders), len(store.restaurants))
	}
	if len(store.ledger) != 0 {
		t.Error("ledger entry written for a failed file")
	}
	if res == nil || res.Inserted != 0 {
		t.Errorf("result = %+v, want inserted 0", res)
	}

	job := store.job(t, res.JobID)
	if job.Status != JobFailed {
		t.Errorf("job status = %s, want failed", job.Status)
	}
	if !strings.Contains(job.ErrorMessage, "12:75") {
		t.Errorf("job error = %q, want the offending value", job.ErrorMessage)
	}
	if ev := events.last(t); ev.Outcome != OutcomeFailed || ev.Error == "" {
		t.Errorf("event = %+v", ev)
	}
}

func TestProcessFile_ValueOutOfRange(t *testing.T) {
	tests := []struct {
		name      string
		integ     Integration
		content   string
		wantField string
		wantValue string
	}{
		{
			name:      "prep time past int4",
			integ:     orderHistoryIntegration(),
			content:   orderHistoryHeader + "A-1,S1,Pizza Place,Delivered,delivery,15/03/2024 18:45:10,3000000000,12.00,,yes\n",
			wantField: FieldPrepTimeMinutes,
			wantValue: "3e+09",
		},
		{
			name:      "order value past numeric(12,2)",
			integ:     orderHistoryIntegration(),
			content:   orderHistoryHeader + "A-1,S1,Pizza Place,Delivered,delivery,15/03/2024 18:45:10,10,12345678901.50,,yes\n",
			wantField: FieldOrderValue,
			wantValue: "1.23456789015e+10",
		},
		{
			name:      "rating past numeric(4,2)",
			integ:     segmentReportIntegration(),
			content:   "Order Number,Prep Minutes,Stars,Feedback\nS-1,5,150,great\n",
			wantField: FieldRating,
			wantValue: "150",
		},
		{
			name:      "rating rounding up to the limit",
			integ:     segmentReportIntegration(),
			content:   "Order Number,Prep Minutes,Stars,Feedback\nS-1,5,99.999,great\n",
			wantField: FieldRating,
			wantValue: "99.999",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			store := newMemStore(tt.integ)
			svc, _ := newTestService(store)

			res, err := svc.ProcessFile(context.Background(), ProcessRequest{Path: writeCSV(t, "export.csv", tt.content)})

			var pe *ProcessingError
			if !errors.As(err, &pe) {
				t.Fatalf("err = %v, want *ProcessingError", err)
			}
			var re *RangeError
			if !errors.As(err, &re) || re.Field != tt.wantField {
				t.Fatalf("err = %v, want RangeError on %s", err, tt.wantField)
			}
			if pe.Row != 2 || pe.Value != tt.wantValue {
				t.Errorf("ProcessingError = %+v, want line 2 value %s", pe, tt.wantValue)
			}
			if !errors.Is(err, ErrValueOutOfRange) {
				t.Error("error does not match ErrValueOutOfRange")
			}
			if code := MapError(err).Code; code != "ING007" {
				t.Errorf("MapError code = %s, want ING007", code)
			}
			if len(store.orders) != 0 || len(store.ratings) != 0 {
				t.Error("rows committed for an out of range value")
			}
			if job := store.job(t, res.JobID); job.Status != JobFailed {
				t.Errorf("job status = %s, want failed", job.Status)
			}
		})
	}
}

func TestCheckLimits_InRange(t *testing.T) {
	rec := NormalizedRecord{
		FieldPrepTimeMinutes: float64(maxPrepTimeMinutes),
		FieldOrderValue:      9999999999.99,
		FieldRating:          99.99,
	}
	integ := Integration{Tables: []string{TableOrders, TableRatings}}
	if err := checkLimits(integ, rec); err != nil {
		t.Errorf("checkLimits() = %v, want nil", err)
	}

	rec[FieldRating] = 500.0
	if err := checkLimits(Integration{Tables: []string{TableOrders}}, rec); err != nil {
		t.Errorf("rating checked for an integration without ratings: %v", err)
	}
}

func TestProcessFile_StoreFailure(t *testing.T) {
	store := newMemStore(orderHistoryIntegration())
	store.failOrder = "A-2"
	svc, _ := newTestService(store)

	path := writeCSV(t, "orders.csv", orderHistoryHeader+
		"A-1,S1,Pizza Place,Delivered,delivery,15/03/2024 18:45:10,10,12.00,,yes\n"+
		"A-2,S1,Pizza Place,Delivered,delivery,15/03/2024 18:50:00,10,8.00,,yes\n")

	res, err := svc.ProcessFile(context.Background(), ProcessRequest{Path: path})

	var se *StorageError
	if !errors.As(err, &se) {
		t.Fatalf("err = %v, want a *StorageError", err)
	}
	if code := MapError(err).Code; code != "DB005" {
		t.Errorf("MapError code = %s, want DB005", code)
	}
	if len(store.orders) != 0 {
		t.Error("first row committed despite failure")
	}
	if job := store.job(t, res.JobID); job.Status != JobFailed || job.TotalRows != 2 {
		t.Errorf("job = %+v", job)
	}
}

func TestProcessFile_IntegrationKey(t *testing.T) {
	store := newMemStore(orderHistoryIntegration(), segmentReportIntegration())
	svc, _ := newTestService(store)
	ctx := context.Background()

	// Headers only partly match; the explicit key selects the integration.
	path := writeCSV(t, "segments.csv", "Order Number,Stars\nC-1,4.5\n")

	if _, err := svc.ProcessFile(ctx, ProcessRequest{Path: path}); !errors.Is(err, ErrNoMatchingIntegration) {
		t.Fatalf("auto-detect err = %v, want ErrNoMatchingIntegration", err)
	}

	res, err := svc.ProcessFile(ctx, ProcessRequest{Path: path, IntegrationKey: "platform3_segments"})
	if err != nil {
		t.Fatalf("ProcessFile() error: %v", err)
	}
	if res.Processed != 1 || res.Inserted != 1 {
		t.Errorf("processed %d inserted %d, want 1/1", res.Processed, res.Inserted)
	}
	if _, ok := store.ratings["3|C-1"]; !ok {
		t.Error("rating not stored")
	}
	if got := store.orders["3|C-1"].Status; got != StatusCompleted {
		t.Errorf("status = %s, want COMPLETED without prep time", got)
	}

	if _, err := svc.ProcessFile(ctx, ProcessRequest{Path: path, IntegrationKey: "nope"}); !errors.Is(err, ErrIntegrationNotFound) {
		t.Errorf("unknown key err = %v, want ErrIntegrationNotFound", err)
	}
}

func TestProcessFile_SpreadsheetArtifacts(t *testing.T) {
	store := newMemStore(segmentReportIntegration())
	svc, _ := newTestService(store)

	// BOM, formula-wrapped headers, an invalid UTF-8 byte and CRLF endings.
	content := "\ufeff=\"Order Number\",\"Prep Minutes\",Stars,Feedback\r\n" +
		"C-9,7,5,Great \xffpizza\r\n"
	path := writeCSV(t, "report.csv", content)

	res, err := svc.ProcessFile(context.Background(), ProcessRequest{Path: path})
	if err != nil {
		t.Fatalf("ProcessFile() error: %v", err)
	}
	if res.Processed != 1 {
		t.Fatalf("processed = %d, want 1", res.Processed)
	}

	rating := store.ratings["3|C-9"]
	if rating.Comment == nil || *rating.Comment != "Great ?pizza" {
		t.Errorf("comment = %v, want sanitized text", rating.Comment)
	}
	if got := store.orders["3|C-9"].Status; got != StatusAccepted {
		t.Errorf("status = %s, want ACCEPTED with prep time", got)
	}
}

func TestProcessFile_HeaderOnlyCompletes(t *testing.T) {
	store := newMemStore(orderHistoryIntegration())
	svc, _ := newTestService(store)

	res, err := svc.ProcessFile(context.Background(), ProcessRequest{Path: writeCSV(t, "h.csv", orderHistoryHeader)})
	if err != nil {
		t.Fatalf("ProcessFile() error: %v", err)
	}
	if res.TotalRows != 0 || res.Processed != 0 {
		t.Errorf("counts = %+v", res)
	}
	if job := store.job(t, res.JobID); job.Status != JobCompleted {
		t.Errorf("job status = %s", job.Status)
	}
}

func TestProcessFile_BusyLimiter(t *testing.T) {
	store := newMemStore(orderHistoryIntegration())
	limiter := NewIngestLimiter(1, 20*time.Millisecond)
	svc := NewService(store, ServiceConfig{Limiter: limiter})

	if !limiter.TryAcquire() {
		t.Fatal("TryAcquire() failed on an idle limiter")
	}
	defer limiter.Release()

	path := writeCSV(t, "orders.csv", orderHistoryHeader)
	_, err := svc.ProcessFile(context.Background(), ProcessRequest{Path: path})
	if !errors.Is(err, ErrIngestBusy) {
		t.Errorf("err = %v, want ErrIngestBusy", err)
	}
}

func TestProcessFile_CancelledContext(t *testing.T) {
	store := newMemStore(orderHistoryIntegration())
	svc, _ := newTestService(store)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := svc.ProcessFile(ctx, ProcessRequest{Path: writeCSV(t, "orders.csv", orderHistoryHeader)})
	if !errors.Is(err, context.Canceled) {
		t.Errorf("err = %v, want context.Canceled", err)
	}
}
