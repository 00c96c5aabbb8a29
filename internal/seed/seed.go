// Package seed loads platform and integration definitions from YAML and
// upserts them into the store.
package seed

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"strings"

	"github.com/JonMunkholm/deliveryingest/internal/core"
	"github.com/JonMunkholm/deliveryingest/internal/store"
	"github.com/JonMunkholm/deliveryingest/internal/transform"
	"gopkg.in/yaml.v3"
)

// File is the top level of a seed document.
type File struct {
	Platforms    []Platform    `yaml:"platforms"`
	Integrations []Integration `yaml:"integrations"`
}

type Platform struct {
	ID   int    `yaml:"id"`
	Code string `yaml:"code"`
	Name string `yaml:"name"`
}

type Integration struct {
	Name         string            `yaml:"name"`
	Platform     string            `yaml:"platform"`
	SourceFormat string            `yaml:"sourceFormat"`
	Tables       []string          `yaml:"tables"`
	Active       *bool             `yaml:"active"`
	FieldMapping core.FieldMapping `yaml:"fieldMapping"`
}

// Seeder is the write side Apply needs. *store.Queries satisfies it.
type Seeder interface {
	UpsertPlatform(ctx context.Context, arg store.UpsertPlatformParams) error
	UpsertIntegration(ctx context.Context, i core.Integration) (int64, error)
}

// Summary counts what Apply wrote.
type Summary struct {
	Platforms    int
	Integrations int
}

// LoadFile reads and validates a seed file.
func LoadFile(path string) (*File, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read seed file: %w", err)
	}
	f, err := Parse(data)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return f, nil
}

// Parse decodes and validates a seed document.
func Parse(data []byte) (*File, error) {
	var f File
	if err := yaml.Unmarshal(data, &f); err != nil {
		return nil, fmt.Errorf("parse seed: %w", err)
	}
	if err := f.Validate(); err != nil {
		return nil, err
	}
	return &f, nil
}

// Validate reports every problem in f at once.
func (f *File) Validate() error {
	var errs []error

	codes := make(map[string]int, len(f.Platforms))
	ids := make(map[int]bool, len(f.Platforms))
	for i, p := range f.Platforms {
		switch {
		case p.ID <= 0:
			errs = append(errs, fmt.Errorf("platforms[%d]: id must be positive", i))
		case ids[p.ID]:
			errs = append(errs, fmt.Errorf("platforms[%d]: duplicate id %d", i, p.ID))
		}
		ids[p.ID] = true

		code := strings.TrimSpace(p.Code)
		if code == "" {
			errs = append(errs, fmt.Errorf("platforms[%d]: code is required", i))
			continue
		}
		if _, dup := codes[code]; dup {
			errs = append(errs, fmt.Errorf("platforms[%d]: duplicate code %q", i, code))
		}
		codes[code] = p.ID
	}

	names := make(map[string]bool, len(f.Integrations))
	for i, in := range f.Integrations {
		label := fmt.Sprintf("integrations[%d]", i)
		if in.Name != "" {
			label = fmt.Sprintf("integration %q", in.Name)
		}

		if strings.TrimSpace(in.Name) == "" {
			errs = append(errs, fmt.Errorf("%s: name is required", label))
		} else if names[in.Name] {
			errs = append(errs, fmt.Errorf("%s: duplicate name", label))
		}
		names[in.Name] = true

		if _, ok := codes[strings.TrimSpace(in.Platform)]; !ok {
			errs = append(errs, fmt.Errorf("%s: unknown platform %q", label, in.Platform))
		}
		if in.SourceFormat != "" {
			if _, ok := core.LookupFormat(in.SourceFormat); !ok {
				errs = append(errs, fmt.Errorf("%s: unknown source format %q (known: %s)",
					label, in.SourceFormat, strings.Join(core.FormatNames(), ", ")))
			}
		}

		if len(in.Tables) == 0 {
			errs = append(errs, fmt.Errorf("%s: at least one table is required", label))
		}
		for _, t := range in.Tables {
			switch strings.ToLower(strings.TrimSpace(t)) {
			case core.TableRestaurants, core.TableOrders, core.TableRatings:
			default:
				errs = append(errs, fmt.Errorf("%s: unknown table %q", label, t))
			}
		}

		if len(in.FieldMapping) == 0 {
			errs = append(errs, fmt.Errorf("%s: fieldMapping is empty", label))
		}
		for _, e := range in.FieldMapping {
			if strings.TrimSpace(e.Spec.Target) == "" {
				errs = append(errs, fmt.Errorf("%s: column %q has no target", label, e.Column))
			}
			if e.Spec.Type == core.FieldEnum && len(e.Spec.EnumValues) == 0 {
				errs = append(errs, fmt.Errorf("%s: enum column %q has no enumValues", label, e.Column))
			}
		}
	}

	return errors.Join(errs...)
}

// Apply upserts every platform, then every integration. Platforms are
// written first so integrations can reference them.
func Apply(ctx context.Context, s Seeder, f *File, logger *slog.Logger) (Summary, error) {
	if logger == nil {
		logger = slog.Default()
	}

	var sum Summary
	codes := make(map[string]int, len(f.Platforms))

	for _, p := range f.Platforms {
		code := strings.TrimSpace(p.Code)
		if err := s.UpsertPlatform(ctx, store.UpsertPlatformParams{ID: p.ID, Code: code, Name: p.Name}); err != nil {
			return sum, err
		}
		codes[code] = p.ID
		sum.Platforms++
	}

	for _, in := range f.Integrations {
		integ := in.toCore(codes[strings.TrimSpace(in.Platform)])

		for _, e := range integ.FieldMapping {
			if e.Spec.Transform != "" && !transform.Has(e.Spec.Transform) {
				logger.Warn("unknown transform, raw values will pass through",
					"integration", integ.Name,
					"column", e.Column,
					"transform", e.Spec.Transform,
				)
			}
		}

		id, err := s.UpsertIntegration(ctx, integ)
		if err != nil {
			return sum, err
		}
		logger.Info("seeded integration",
			"integration", integ.Name,
			"id", id,
			"format", integ.SourceFormat,
			"columns", len(integ.FieldMapping),
		)
		sum.Integrations++
	}

	return sum, nil
}

func (in Integration) toCore(platformID int) core.Integration {
	active := true
	if in.Active != nil {
		active = *in.Active
	}

	format := in.SourceFormat
	if format == "" {
		format = core.FormatGeneric
	}

	tables := make([]string, len(in.Tables))
	for i, t := range in.Tables {
		tables[i] = strings.ToLower(strings.TrimSpace(t))
	}

	return core.Integration{
		Name:         strings.TrimSpace(in.Name),
		PlatformID:   platformID,
		SourceFormat: format,
		FieldMapping: in.FieldMapping,
		Tables:       tables,
		IsActive:     active,
	}
}
