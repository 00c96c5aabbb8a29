package core

import (
	"context"
	"errors"
	"testing"
)

func mappingOf(cols ...string) FieldMapping {
	m := make(FieldMapping, len(cols))
	for i, c := range cols {
		m[i] = MappingEntry{Column: c, Spec: FieldSpec{Target: c}}
	}
	return m
}

func TestScoreHeaders(t *testing.T) {
	mapping := mappingOf("Order ID", "Store ID", "Status", "Subtotal")

	tests := []struct {
		name    string
		headers []string
		want    float64
	}{
		{"all present", []string{"Order ID", "Store ID", "Status", "Subtotal"}, 1},
		{"case and whitespace ignored", []string{" order id ", "STORE ID", "status", "subtotal"}, 1},
		{"extra headers do not count", []string{"Order ID", "Store ID", "Status", "Subtotal", "Tip", "Notes"}, 1},
		{"three of four", []string{"Order ID", "Store ID", "Status"}, 0.75},
		{"none", []string{"a", "b"}, 0},
		{"empty header row", nil, 0},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := ScoreHeaders(tt.headers, mapping); got != tt.want {
				t.Errorf("ScoreHeaders() = %v, want %v", got, tt.want)
			}
		})
	}

	if got := ScoreHeaders([]string{"x"}, nil); got != 0 {
		t.Errorf("ScoreHeaders(empty mapping) = %v, want 0", got)
	}
}

func TestResolver_FindIntegrationByHeaders(t *testing.T) {
	ctx := context.Background()

	tests := []struct {
		name         string
		integrations []Integration
		headers      []string
		wantName     string
		wantFound    bool
	}{
		{
			name: "exact match",
			integrations: []Integration{
				{ID: 1, Name: "a", IsActive: true, FieldMapping: mappingOf("x", "y")},
			},
			headers:   []string{"x", "y"},
			wantName:  "a",
			wantFound: true,
		},
		{
			name: "score equal to threshold does not match",
			integrations: []Integration{
				{ID: 1, Name: "a", IsActive: true, FieldMapping: mappingOf("c1", "c2", "c3", "c4", "c5", "c6", "c7", "c8", "c9", "c10")},
			},
			headers:   []string{"c1", "c2", "c3", "c4", "c5", "c6", "c7"},
			wantFound: false,
		},
		{
			name: "score just above threshold matches",
			integrations: []Integration{
				{ID: 1, Name: "a", IsActive: true, FieldMapping: mappingOf("c1", "c2", "c3", "c4")},
			},
			headers:   []string{"c1", "c2", "c3"},
			wantName:  "a",
			wantFound: true,
		},
		{
			name: "best score wins",
			integrations: []Integration{
				{ID: 1, Name: "partial", IsActive: true, FieldMapping: mappingOf("x", "y", "z", "w")},
				{ID: 2, Name: "full", IsActive: true, FieldMapping: mappingOf("x", "y", "z")},
			},
			headers:   []string{"x", "y", "z"},
			wantName:  "full",
			wantFound: true,
		},
		{
			name: "tie keeps lowest id",
			integrations: []Integration{
				{ID: 7, Name: "second", IsActive: true, FieldMapping: mappingOf("x", "y")},
				{ID: 3, Name: "first", IsActive: true, FieldMapping: mappingOf("y", "x")},
			},
			headers:   []string{"x", "y"},
			wantName:  "first",
			wantFound: true,
		},
		{
			name: "inactive integrations are ignored",
			integrations: []Integration{
				{ID: 1, Name: "off", IsActive: false, FieldMapping: mappingOf("x", "y")},
			},
			headers:   []string{"x", "y"},
			wantFound: false,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r := NewResolver(newMemStore(tt.integrations...))

			got, found, err := r.FindIntegrationByHeaders(ctx, tt.headers)
			if err != nil {
				t.Fatalf("FindIntegrationByHeaders() error: %v", err)
			}
			if found != tt.wantFound {
				t.Fatalf("found = %v, want %v", found, tt.wantFound)
			}
			if found && got.Name != tt.wantName {
				t.Errorf("matched %q, want %q", got.Name, tt.wantName)
			}
		})
	}
}

func TestResolver_CachesHitsOnly(t *testing.T) {
	ctx := context.Background()
	store := newMemStore(Integration{ID: 1, Name: "a", IsActive: true, FieldMapping: mappingOf("x", "y")})
	r := NewResolver(store)

	for i := 0; i < 3; i++ {
		if _, ok, _ := r.FindIntegrationByHeaders(ctx, []string{"Y", "x"}); !ok {
			t.Fatal("expected a match")
		}
	}
	// Same header set in another order and case is the same cache key.
	if _, ok, _ := r.FindIntegrationByHeaders(ctx, []string{" x ", "y", "x"}); !ok {
		t.Fatal("expected a match")
	}
	if store.listCalls != 1 {
		t.Errorf("ListActiveIntegrations called %d times, want 1", store.listCalls)
	}
	if r.Cache().Len() != 1 {
		t.Errorf("cache has %d entries, want 1", r.Cache().Len())
	}

	for i := 0; i < 2; i++ {
		if _, ok, _ := r.FindIntegrationByHeaders(ctx, []string{"q"}); ok {
			t.Fatal("unexpected match")
		}
	}
	if store.listCalls != 3 {
		t.Errorf("misses should not be cached: list calls = %d, want 3", store.listCalls)
	}
}

func TestResolver_FindIntegrationByName(t *testing.T) {
	ctx := context.Background()
	r := NewResolver(newMemStore(
		Integration{ID: 1, Name: "live", IsActive: true},
		Integration{ID: 2, Name: "retired", IsActive: false},
	))

	if got, err := r.FindIntegrationByName(ctx, "live"); err != nil || got.ID != 1 {
		t.Errorf("FindIntegrationByName(live) = %+v, %v", got, err)
	}

	_, err := r.FindIntegrationByName(ctx, "missing")
	var ve *ValidationError
	if !errors.As(err, &ve) || !errors.Is(err, ErrIntegrationNotFound) {
		t.Errorf("missing: err = %v, want ValidationError wrapping ErrIntegrationNotFound", err)
	}

	if _, err := r.FindIntegrationByName(ctx, "retired"); !errors.Is(err, ErrIntegrationInactive) {
		t.Errorf("retired: err = %v, want ErrIntegrationInactive", err)
	}
}

func TestResolver_Resolve(t *testing.T) {
	ctx := context.Background()
	r := NewResolver(newMemStore(
		Integration{ID: 1, Name: "a", IsActive: true, FieldMapping: mappingOf("x", "y")},
		Integration{ID: 2, Name: "b", IsActive: true, FieldMapping: mappingOf("p", "q")},
	))

	// An explicit key overrides header matching.
	got, err := r.Resolve(ctx, []string{"x", "y"}, " b ")
	if err != nil || got.Name != "b" {
		t.Errorf("Resolve(key=b) = %q, %v", got.Name, err)
	}

	got, err = r.Resolve(ctx, []string{"x", "y"}, "")
	if err != nil || got.Name != "a" {
		t.Errorf("Resolve(headers) = %q, %v", got.Name, err)
	}

	_, err = r.Resolve(ctx, []string{"nothing"}, "")
	if !errors.Is(err, ErrNoMatchingIntegration) {
		t.Errorf("Resolve(no match) err = %v, want ErrNoMatchingIntegration", err)
	}
}
