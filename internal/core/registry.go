package core

import (
	"fmt"
	"sort"
	"strings"
	"sync"
)

var (
	formats   = make(map[string]Format)
	formatsMu sync.RWMutex
)

func init() {
	registerFormat(genericFormat{})
	registerFormat(orderHistoryFormat{})
	registerFormat(aggregateCountsFormat{})
	registerFormat(segmentReportFormat{})
}

// registerFormat adds a format to the registry.
// Panics if a format with the same name is already registered.
func registerFormat(f Format) {
	formatsMu.Lock()
	defer formatsMu.Unlock()

	if _, exists := formats[f.Name()]; exists {
		panic(fmt.Sprintf("format already registered: %s", f.Name()))
	}
	formats[f.Name()] = f
}

// LookupFormat returns the format registered under name (case-insensitive).
// Returns false if not found.
func LookupFormat(name string) (Format, bool) {
	formatsMu.RLock()
	defer formatsMu.RUnlock()

	f, ok := formats[strings.ToLower(strings.TrimSpace(name))]
	return f, ok
}

// FormatFor returns the format for an integration's sourceFormat, falling
// back to the generic format for unknown names.
func FormatFor(name string) Format {
	if f, ok := LookupFormat(name); ok {
		return f
	}
	return genericFormat{}
}

// FormatNames returns all registered format names.
// Sorted alphabetically.
func FormatNames() []string {
	formatsMu.RLock()
	defer formatsMu.RUnlock()

	names := make([]string, 0, len(formats))
	for name := range formats {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}
