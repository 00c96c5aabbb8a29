package web

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/JonMunkholm/deliveryingest/internal/core"
	"github.com/JonMunkholm/deliveryingest/internal/logging"
	"github.com/JonMunkholm/deliveryingest/internal/report"
	"github.com/JonMunkholm/deliveryingest/internal/source"
)

const maxLimit = 100

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	if s.deps.DB != nil {
		ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
		defer cancel()
		if err := s.deps.DB.Ping(ctx); err != nil {
			logging.FromContext(r.Context()).Warn("health check failed", "error", err)
			writeJSON(w, http.StatusServiceUnavailable, map[string]string{"status": "unavailable"})
			return
		}
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// parseLimit reads ?limit=, defaulting to report.DefaultLimit.
func parseLimit(r *http.Request) (int, error) {
	raw := strings.TrimSpace(r.URL.Query().Get("limit"))
	if raw == "" {
		return report.DefaultLimit, nil
	}
	n, err := strconv.Atoi(raw)
	if err != nil || n <= 0 || n > maxLimit {
		return 0, errors.New("limit must be an integer between 1 and 100")
	}
	return n, nil
}

func (s *Server) buildReport(w http.ResponseWriter, r *http.Request) (*report.Report, bool) {
	limit, err := parseLimit(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error(), "VAL004")
		return nil, false
	}
	rep, err := report.Build(r.Context(), s.deps.Reports, report.Options{Limit: limit})
	if err != nil {
		s.respondError(w, r, err)
		return nil, false
	}
	return rep, true
}

func (s *Server) handleReport(w http.ResponseWriter, r *http.Request) {
	if rep, ok := s.buildReport(w, r); ok {
		writeJSON(w, http.StatusOK, rep)
	}
}

type reportSection func(*report.Report) any

var (
	sectionStatuses    reportSection = func(r *report.Report) any { return r.Statuses }
	sectionDeliveryMix reportSection = func(r *report.Report) any { return r.DeliveryMix }
	sectionPrepTimes   reportSection = func(r *report.Report) any { return r.PrepTimes }
	sectionRatings     reportSection = func(r *report.Report) any { return r.Ratings }
)

func (s *Server) handleReportSection(section reportSection) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		rep, ok := s.buildReport(w, r)
		if !ok {
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{
			"generatedAt": rep.GeneratedAt,
			"items":       section(rep),
		})
	}
}

func (s *Server) handleListJobs(w http.ResponseWriter, r *http.Request) {
	limit, err := parseLimit(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error(), "VAL004")
		return
	}
	jobs, err := s.deps.Reports.ListJobs(r.Context(), limit)
	if err != nil {
		s.respondError(w, r, err)
		return
	}
	if jobs == nil {
		jobs = []core.IngestionJob{}
	}
	writeJSON(w, http.StatusOK, map[string]any{"jobs": jobs})
}

// CreateJobRequest is the body of POST /api/jobs.
type CreateJobRequest struct {
	// Path is a file under the inbox directory (absolute or relative to it)
	// or an s3://bucket/key URI.
	Path string `json:"path"`
	// Integration optionally names the integration to use.
	Integration string `json:"integration,omitempty"`
}

func decodeJobRequest(w http.ResponseWriter, r *http.Request) (CreateJobRequest, bool) {
	var req CreateJobRequest
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, 64<<10))
	dec.DisallowUnknownFields()
	if err := dec.Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "request body must be JSON with a path", "VAL004")
		return req, false
	}
	return req, true
}

// allowedPath confines a request path to what the API may read: s3:// URIs,
// or local files under the inbox directory. Relative paths are read from the
// inbox. Without an inbox directory only s3:// URIs are accepted.
func (s *Server) allowedPath(ref string) (string, error) {
	ref = strings.TrimSpace(ref)
	if ref == "" {
		return "", &core.ValidationError{Err: core.ErrNoFile}
	}
	if source.IsS3URI(ref) {
		return ref, nil
	}

	denied := &core.ValidationError{Input: ref, Err: core.ErrPathNotAllowed}
	if s.cfg.Inbox.Dir == "" {
		return "", denied
	}
	root, err := filepath.Abs(s.cfg.Inbox.Dir)
	if err != nil {
		return "", fmt.Errorf("resolve inbox dir: %w", err)
	}

	path := ref
	if !filepath.IsAbs(path) {
		path = filepath.Join(root, path)
	}
	path = filepath.Clean(path)
	if !within(root, path) {
		return "", denied
	}

	// A symlink inside the inbox must not lead out of it.
	if real, err := filepath.EvalSymlinks(path); err == nil {
		realRoot := root
		if r, err := filepath.EvalSymlinks(root); err == nil {
			realRoot = r
		}
		if !within(realRoot, real) {
			return "", denied
		}
	}
	return path, nil
}

func within(root, path string) bool {
	rel, err := filepath.Rel(root, path)
	if err != nil || filepath.IsAbs(rel) {
		return false
	}
	return rel != ".." && !strings.HasPrefix(rel, ".."+string(filepath.Separator))
}

// fetch checks ref with allowedPath and resolves it through the Fetcher when
// one is configured. The caller closes the returned file.
func (s *Server) fetch(ctx context.Context, ref string) (*source.File, error) {
	path, err := s.allowedPath(ref)
	if err != nil {
		return nil, err
	}
	if s.deps.Fetcher == nil {
		return &source.File{Path: path, SourcePath: path}, nil
	}
	return s.deps.Fetcher.Fetch(ctx, path)
}

func (s *Server) handleCreateJob(w http.ResponseWriter, r *http.Request) {
	req, ok := decodeJobRequest(w, r)
	if !ok {
		return
	}

	ctx := core.ContextWithTrigger(r.Context(), core.Trigger{Source: core.TriggerAPI, ClientIP: clientIP(r)})
	if s.cfg.Ingest.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, s.cfg.Ingest.Timeout)
		defer cancel()
	}

	file, err := s.fetch(ctx, req.Path)
	if err != nil {
		s.respondError(w, r, err)
		return
	}
	defer file.Close()

	res, err := s.deps.Ingester.ProcessFile(ctx, core.ProcessRequest{
		Path:           file.Path,
		SourcePath:     file.SourcePath,
		IntegrationKey: req.Integration,
	})
	if err != nil {
		s.respondError(w, r, err)
		return
	}

	status := http.StatusCreated
	if res.Duplicate {
		status = http.StatusOK
	}
	writeJSON(w, status, res)
}

// handlePreviewJob dry-runs a file: nothing is written and no job is created.
func (s *Server) handlePreviewJob(w http.ResponseWriter, r *http.Request) {
	req, ok := decodeJobRequest(w, r)
	if !ok {
		return
	}

	file, err := s.fetch(r.Context(), req.Path)
	if err != nil {
		s.respondError(w, r, err)
		return
	}
	defer file.Close()

	samples, _ := strconv.Atoi(r.URL.Query().Get("samples"))
	resp, err := s.deps.Ingester.Preview(r.Context(), core.PreviewRequest{
		Path:           file.Path,
		IntegrationKey: req.Integration,
		Samples:        min(samples, maxLimit),
	})
	if err != nil {
		s.respondError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, resp)
}
