package core

import (
	"context"
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"sort"
	"time"
)

// DefaultPreviewSamples is how many rows of each kind a preview keeps.
const DefaultPreviewSamples = 5

// PreviewRequest names the file to dry-run.
type PreviewRequest struct {
	Path           string
	IntegrationKey string
	// Samples caps each sample list (default: DefaultPreviewSamples).
	Samples int
}

// PreviewSummary counts what an ingestion of the file would do.
type PreviewSummary struct {
	TotalRows       int `json:"totalRows"`
	MappedRows      int `json:"mappedRows"`
	SkippedRows     int `json:"skippedRows"`
	DuplicateInFile int `json:"duplicateInFile"`
}

// RowPreview is one normalized row.
type RowPreview struct {
	LineNumber int              `json:"lineNumber"`
	RowKey     string           `json:"rowKey,omitempty"`
	Values     NormalizedRecord `json:"values"`
}

// SkippedPreview is a row the required-field filter would drop.
type SkippedPreview struct {
	LineNumber int               `json:"lineNumber"`
	Values     map[string]string `json:"values"`
}

// DuplicatePreview is a row key that appears on more than one line.
type DuplicatePreview struct {
	RowKey      string `json:"rowKey"`
	LineNumbers []int  `json:"lineNumbers"`
}

// ErrorPreview is the row that would abort the run.
type ErrorPreview struct {
	LineNumber int    `json:"lineNumber"`
	Value      string `json:"value,omitempty"`
	Error      string `json:"error"`
}

// PreviewResponse is the result of a dry run.
type PreviewResponse struct {
	Integration      string             `json:"integration"`
	SourceFormat     string             `json:"sourceFormat"`
	HeaderScore      float64            `json:"headerScore"`
	FileHash         string             `json:"fileHash"`
	AlreadyIngested  bool               `json:"alreadyIngested"`
	Summary          PreviewSummary     `json:"summary"`
	Samples          []RowPreview       `json:"samples"`
	SkippedSamples   []SkippedPreview   `json:"skippedSamples"`
	DuplicateSamples []DuplicatePreview `json:"duplicateSamples"`
	Error            *ErrorPreview      `json:"error,omitempty"`
	ProcessingTimeMs int64              `json:"processingTimeMs"`
}

// Preview maps a file exactly as ProcessFile would but writes nothing and
// creates no job. A row that would fail the run stops the preview and is
// reported in Error; input problems are returned as errors like ProcessFile.
func (s *Service) Preview(ctx context.Context, req PreviewRequest) (*PreviewResponse, error) {
	start := time.Now()
	if req.Samples <= 0 {
		req.Samples = DefaultPreviewSamples
	}

	in, err := s.openInput(req.Path)
	if err != nil {
		return nil, err
	}
	defer in.Close()

	integ, err := s.resolver.Resolve(ctx, in.header, req.IntegrationKey)
	if err != nil {
		return nil, err
	}

	done, err := s.store.IsFileAlreadyProcessed(ctx, integ.ID, in.hash)
	if err != nil {
		return nil, storageErr("check processed file", err)
	}

	resp := &PreviewResponse{
		Integration:      integ.Name,
		SourceFormat:     FormatFor(integ.SourceFormat).Name(),
		HeaderScore:      ScoreHeaders(in.header, integ.FieldMapping),
		FileHash:         in.hash,
		AlreadyIngested:  done,
		Samples:          []RowPreview{},
		SkippedSamples:   []SkippedPreview{},
		DuplicateSamples: []DuplicatePreview{},
	}

	mapper := NewMapper(integ)
	index := MakeHeaderIndex(in.header)
	seen := make(map[string][]int)

	for {
		if err := ctx.Err(); err != nil {
			return nil, err
		}

		cells, err := in.reader.Read()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			line := resp.Summary.TotalRows + 2
			var pe *csv.ParseError
			if errors.As(err, &pe) {
				line = pe.StartLine
			}
			resp.Error = &ErrorPreview{LineNumber: line, Error: fmt.Sprintf("parse csv: %v", err)}
			break
		}
		line, _ := in.reader.FieldPos(0)
		resp.Summary.TotalRows++

		raw := NewRawRecord(in.header, index, cells)
		rec, err := mapper.Map(raw)
		if err != nil {
			ep := &ErrorPreview{LineNumber: line, Error: err.Error()}
			var fe *FieldError
			if errors.As(err, &fe) {
				ep.Value = fe.Value
			}
			resp.Error = ep
			break
		}
		if rec == nil {
			resp.Summary.SkippedRows++
			if len(resp.SkippedSamples) < req.Samples {
				resp.SkippedSamples = append(resp.SkippedSamples, SkippedPreview{
					LineNumber: line,
					Values:     rawValues(in.header, cells),
				})
			}
			continue
		}

		if err := checkLimits(integ, rec); err != nil {
			resp.Error = &ErrorPreview{LineNumber: line, Value: err.Value, Error: err.Error()}
			break
		}

		resp.Summary.MappedRows++
		key := rowKey(rec)
		if key != "" {
			seen[key] = append(seen[key], line)
		}
		if len(resp.Samples) < req.Samples {
			resp.Samples = append(resp.Samples, RowPreview{LineNumber: line, RowKey: key, Values: rec})
		}
	}

	resp.Summary.DuplicateInFile, resp.DuplicateSamples = duplicates(seen, req.Samples)
	resp.ProcessingTimeMs = time.Since(start).Milliseconds()
	return resp, nil
}

// rowKey identifies the row an upsert would target.
func rowKey(rec NormalizedRecord) string {
	for _, field := range []string{FieldPlatformOrderID, FieldRestaurantExternalID} {
		if v, ok := rec[field]; ok && v != nil {
			if s := fmt.Sprint(v); s != "" {
				return s
			}
		}
	}
	return ""
}

// duplicates counts rows beyond the first for each repeated key and returns
// up to limit examples ordered by first occurrence.
func duplicates(seen map[string][]int, limit int) (int, []DuplicatePreview) {
	var (
		count int
		out   = []DuplicatePreview{}
	)
	for key, lines := range seen {
		if len(lines) < 2 {
			continue
		}
		count += len(lines) - 1
		out = append(out, DuplicatePreview{RowKey: key, LineNumbers: lines})
	}
	sort.Slice(out, func(i, j int) bool {
		return out[i].LineNumbers[0] < out[j].LineNumbers[0]
	})
	if len(out) > limit {
		out = out[:limit]
	}
	return count, out
}

func rawValues(header, cells []string) map[string]string {
	values := make(map[string]string, len(header))
	for i, h := range header {
		if i < len(cells) {
			values[h] = cells[i]
		}
	}
	return values
}
