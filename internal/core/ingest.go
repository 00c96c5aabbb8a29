package core

import (
	"context"
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/JonMunkholm/deliveryingest/internal/logging"
)

// DefaultMaxFileSize is the largest file accepted when ServiceConfig leaves
// MaxFileSize unset (100MB).
const DefaultMaxFileSize int64 = 100 * 1024 * 1024

// DefaultProgressInterval is how many rows pass between progress logs.
const DefaultProgressInterval = 1000

// ServiceConfig tunes a Service. Zero values select defaults.
type ServiceConfig struct {
	MaxFileSize      int64
	ProgressInterval int
	// Observer is told about every finished run. May be nil.
	Observer Observer
	// Limiter bounds concurrent runs. Defaults to one file at a time.
	Limiter *IngestLimiter
}

// Service runs the ingestion pipeline against a Store.
type Service struct {
	store    Store
	resolver *Resolver
	cfg      ServiceConfig
}

// NewService creates a Service. The service owns a Resolver, and with it the
// header cache, for its whole lifetime.
func NewService(store Store, cfg ServiceConfig) *Service {
	if cfg.MaxFileSize <= 0 {
		cfg.MaxFileSize = DefaultMaxFileSize
	}
	if cfg.ProgressInterval <= 0 {
		cfg.ProgressInterval = DefaultProgressInterval
	}
	if cfg.Observer == nil {
		cfg.Observer = Observers(nil)
	}
	if cfg.Limiter == nil {
		cfg.Limiter = NewIngestLimiter(DefaultMaxConcurrentIngests, DefaultMaxIngestWait)
	}
	return &Service{
		store:    store,
		resolver: NewResolver(store),
		cfg:      cfg,
	}
}

// Resolver returns the service's integration resolver.
func (s *Service) Resolver() *Resolver {
	return s.resolver
}

// Limiter returns the limiter guarding ProcessFile.
func (s *Service) Limiter() *IngestLimiter {
	return s.cfg.Limiter
}

// ProcessRequest names the file to ingest.
type ProcessRequest struct {
	// Path is the local file to read.
	Path string
	// SourcePath is recorded on the job and ledger. Defaults to Path.
	SourcePath string
	// IntegrationKey selects an integration by name. Empty means detect it
	// from the header row.
	IntegrationKey string
}

// Result summarizes a file run.
type Result struct {
	JobID       uuid.UUID     `json:"jobId"`
	Integration string        `json:"integration"`
	FilePath    string        `json:"filePath"`
	FileHash    string        `json:"fileHash"`
	TotalRows   int           `json:"totalRows"`
	Processed   int           `json:"processed"`
	Inserted    int           `json:"inserted"`
	Skipped     int           `json:"skipped"`
	Duplicate   bool          `json:"duplicate"`
	Duration    time.Duration `json:"durationNs"`
}

// ProcessFile ingests one CSV file.
//
// The file is hashed, its integration resolved from the header row (or
// req.IntegrationKey) and checked against the dedup ledger before a job is
// created. All rows and the ledger entry commit in one transaction. Input
// problems return a *ValidationError and create no job; a failure after the
// job exists marks it failed and returns the error.
func (s *Service) ProcessFile(ctx context.Context, req ProcessRequest) (*Result, error) {
	if err := s.cfg.Limiter.Acquire(ctx); err != nil {
		return nil, err
	}
	defer s.cfg.Limiter.Release()

	start := time.Now()
	if req.SourcePath == "" {
		req.SourcePath = req.Path
	}

	in, err := s.openInput(req.Path)
	if err != nil {
		return nil, err
	}
	defer in.Close()
	header, reader, hash := in.header, in.reader, in.hash

	integ, err := s.resolver.Resolve(ctx, header, req.IntegrationKey)
	if err != nil {
		return nil, err
	}

	logger := logging.WithFields(ctx,
		"integration", integ.Name,
		"file", req.SourcePath,
		"trigger", TriggerFromContext(ctx).Source,
	)

	result := &Result{
		Integration: integ.Name,
		FilePath:    req.SourcePath,
		FileHash:    hash,
	}

	done, err := s.store.IsFileAlreadyProcessed(ctx, integ.ID, hash)
	if err != nil {
		return nil, storageErr("check processed file", err)
	}
	if done {
		result.Duplicate = true
		result.Duration = time.Since(start)
		logger.Warn("file already processed, skipping", "file_hash", hash)
		s.notify(ctx, integ, result, OutcomeDuplicate, nil)
		return result, nil
	}

	jobID, err := s.store.CreateJob(ctx, integ.ID, req.SourcePath, 0)
	if err != nil {
		return nil, storageErr("create job", err)
	}
	result.JobID = jobID
	logger = logger.With("job_id", jobID)
	logger.Info("ingestion started", "file_hash", hash, "bytes", in.info.Size())

	run := &fileRun{
		mapper:   NewMapper(integ),
		integ:    integ,
		header:   header,
		index:    MakeHeaderIndex(header),
		reader:   reader,
		counter:  in.counter,
		result:   result,
		logger:   logger,
		interval: s.cfg.ProgressInterval,
	}

	err = s.store.InTx(ctx, func(tx TxStore) error {
		if err := run.rows(ctx, tx); err != nil {
			return err
		}
		return tx.RecordProcessedFile(ctx, ProcessedFile{
			IntegrationID: integ.ID,
			FilePath:      req.SourcePath,
			FileHash:      hash,
			TotalRows:     result.TotalRows,
			JobID:         jobID,
		})
	})
	result.Duration = time.Since(start)

	if err != nil {
		err = classifyRunError(integ.Name, err)
		// Nothing from the transaction was committed.
		result.Inserted = 0
		s.finishJob(ctx, jobID, JobUpdate{
			Status:        JobFailed,
			TotalRows:     result.TotalRows,
			ProcessedRows: result.Processed,
			ErrorRows:     result.Skipped,
			ErrorMessage:  err.Error(),
		}, logger)
		logger.Error("ingestion failed", "error", err, "rows_read", result.TotalRows)
		s.notify(ctx, integ, result, OutcomeFailed, err)
		return result, err
	}

	if err := s.store.UpdateJob(ctx, jobID, JobUpdate{
		Status:        JobCompleted,
		TotalRows:     result.TotalRows,
		ProcessedRows: result.Processed,
		InsertedRows:  result.Inserted,
		ErrorRows:     result.Skipped,
	}); err != nil {
		err = storageErr("update job", err)
		logger.Error("ingestion committed but job update failed", "error", err)
		s.notify(ctx, integ, result, OutcomeFailed, err)
		return result, err
	}

	logger.Info("ingestion completed",
		"total_rows", result.TotalRows,
		"processed", result.Processed,
		"inserted", result.Inserted,
		"skipped", result.Skipped,
		"duration_ms", result.Duration.Milliseconds(),
	)
	s.notify(ctx, integ, result, OutcomeCompleted, nil)
	return result, nil
}

// finishJob writes a failed job's terminal state. The update runs on a
// context detached from cancellation so a cancelled run is still recorded.
func (s *Service) finishJob(ctx context.Context, id uuid.UUID, update JobUpdate, logger *slog.Logger) {
	ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 10*time.Second)
	defer cancel()

	if err := s.store.UpdateJob(ctx, id, update); err != nil {
		logger.Error("mark job failed", "error", err)
	}
}

func (s *Service) notify(ctx context.Context, integ Integration, r *Result, outcome Outcome, err error) {
	ev := JobEvent{
		JobID:         r.JobID,
		Integration:   integ.Name,
		PlatformID:    integ.PlatformID,
		FilePath:      r.FilePath,
		FileHash:      r.FileHash,
		Outcome:       outcome,
		TotalRows:     r.TotalRows,
		ProcessedRows: r.Processed,
		InsertedRows:  r.Inserted,
		ErrorRows:     r.Skipped,
		Duration:      r.Duration,
		FinishedAt:    time.Now().UTC(),
		Trigger:       TriggerFromContext(ctx),
	}
	if err != nil {
		ev.Error = err.Error()
	}
	s.cfg.Observer.JobFinished(context.WithoutCancel(ctx), ev)
}

// input is a validated CSV file positioned after its header row.
type input struct {
	file    *os.File
	info    fs.FileInfo
	hash    string
	reader  *csv.Reader
	header  []string
	counter *CountingReader
}

func (in *input) Close() error {
	return in.file.Close()
}

// openInput validates and hashes path, then reads its header row.
func (s *Service) openInput(path string) (*input, error) {
	info, err := s.validateFile(path)
	if err != nil {
		return nil, err
	}

	hash, err := hashFile(path)
	if err != nil {
		return nil, err
	}

	f, err := os.Open(path)
	if err != nil {
		return nil, &ValidationError{Input: path, Err: fmt.Errorf("%w: %v", ErrFileNotFound, err)}
	}

	stream, counter := WrapForStreaming(f, info.Size())
	reader := csv.NewReader(stream)
	reader.FieldsPerRecord = -1
	reader.LazyQuotes = true
	reader.ReuseRecord = true

	header, err := reader.Read()
	if err != nil {
		f.Close()
		if errors.Is(err, io.EOF) {
			return nil, &ValidationError{Input: path, Err: ErrEmptyFile}
		}
		return nil, &ValidationError{Input: path, Err: fmt.Errorf("read header: %w", err)}
	}

	return &input{
		file:    f,
		info:    info,
		hash:    hash,
		reader:  reader,
		header:  append([]string(nil), header...),
		counter: counter,
	}, nil
}

// validateFile checks the path before any work starts.
func (s *Service) validateFile(path string) (fs.FileInfo, error) {
	if strings.TrimSpace(path) == "" {
		return nil, &ValidationError{Err: ErrNoFile}
	}
	if !strings.EqualFold(filepath.Ext(path), ".csv") {
		return nil, &ValidationError{Input: path, Err: ErrUnsupportedFileType}
	}

	info, err := os.Stat(path)
	if errors.Is(err, fs.ErrNotExist) {
		return nil, &ValidationError{Input: path, Err: ErrFileNotFound}
	}
	if err != nil {
		return nil, &ValidationError{Input: path, Err: fmt.Errorf("stat: %w", err)}
	}
	if !info.Mode().IsRegular() {
		return nil, &ValidationError{Input: path, Err: ErrNotRegularFile}
	}
	if info.Size() == 0 {
		return nil, &ValidationError{Input: path, Err: ErrEmptyFile}
	}
	if info.Size() > s.cfg.MaxFileSize {
		return nil, &ValidationError{
			Input: path,
			Err:   fmt.Errorf("%w: %d bytes exceeds %d", ErrFileTooLarge, info.Size(), s.cfg.MaxFileSize),
		}
	}
	return info, nil
}

func hashFile(path string) (string, error) {
	f, err := os.Open(path)
	if err != nil {
		return "", &ValidationError{Input: path, Err: fmt.Errorf("%w: %v", ErrFileNotFound, err)}
	}
	defer f.Close()
	return ContentHash(f)
}

// classifyRunError makes sure anything escaping the row transaction is a
// ProcessingError or a StorageError.
func classifyRunError(integration string, err error) error {
	var (
		pe *ProcessingError
		se *StorageError
	)
	if errors.As(err, &pe) || errors.As(err, &se) {
		return err
	}
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return &ProcessingError{Integration: integration, Err: err}
	}
	return storageErr("transaction", err)
}

// fileRun holds the per-file state of the row loop.
type fileRun struct {
	mapper   *Mapper
	integ    Integration
	header   []string
	index    HeaderIndex
	reader   *csv.Reader
	counter  *CountingReader
	result   *Result
	logger   *slog.Logger
	interval int
}

// rows reads, maps and persists data rows one at a time until EOF.
func (r *fileRun) rows(ctx context.Context, tx TxStore) error {
	for {
		if err := ctx.Err(); err != nil {
			return &ProcessingError{Row: r.result.TotalRows + 1, Integration: r.integ.Name, Err: err}
		}

		cells, err := r.reader.Read()
		if errors.Is(err, io.EOF) {
			return nil
		}
		if err != nil {
			line := r.result.TotalRows + 2
			var pe *csv.ParseError
			if errors.As(err, &pe) {
				line = pe.StartLine
			}
			return &ProcessingError{Row: line, Integration: r.integ.Name, Err: fmt.Errorf("parse csv: %w", err)}
		}
		line, _ := r.reader.FieldPos(0)
		r.result.TotalRows++

		rec, err := r.mapper.Map(NewRawRecord(r.header, r.index, cells))
		if err != nil {
			value := ""
			var fe *FieldError
			if errors.As(err, &fe) {
				value = fe.Value
			}
			return &ProcessingError{Row: line, Integration: r.integ.Name, Value: value, Err: err}
		}
		if rec == nil {
			r.result.Skipped++
			continue
		}
		if err := checkLimits(r.integ, rec); err != nil {
			return &ProcessingError{Row: line, Integration: r.integ.Name, Value: err.Value, Err: err}
		}

		inserted, err := persistRecord(ctx, tx, r.integ, rec)
		if err != nil {
			return &ProcessingError{Row: line, Integration: r.integ.Name, Err: storageErr("persist row", err)}
		}
		r.result.Processed++
		if inserted {
			r.result.Inserted++
		}

		if r.result.TotalRows%r.interval == 0 {
			r.logger.Info("ingestion progress",
				"rows", r.result.TotalRows,
				"processed", r.result.Processed,
				"skipped", r.result.Skipped,
				"percent", r.counter.Progress(),
			)
		}
	}
}
