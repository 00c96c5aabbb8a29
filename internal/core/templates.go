package core

import (
	"encoding/csv"
	"fmt"
	"io"
	"regexp"
	"strings"
)

// WriteTemplate writes a header-only CSV an integration will accept: its
// mapping's source columns in mapping order. A file built from it always
// scores 1.0 against the integration.
func WriteTemplate(w io.Writer, integ Integration) error {
	if len(integ.FieldMapping) == 0 {
		return fmt.Errorf("integration %q has no field mapping", integ.Name)
	}

	cw := csv.NewWriter(w)
	if err := cw.Write(integ.FieldMapping.Columns()); err != nil {
		return fmt.Errorf("write template header: %w", err)
	}
	cw.Flush()
	return cw.Error()
}

var unsafeFileChars = regexp.MustCompile(`[^A-Za-z0-9._-]+`)

// TemplateFileName is the download name for an integration's template.
func TemplateFileName(integ Integration) string {
	name := strings.Trim(unsafeFileChars.ReplaceAllString(integ.Name, "_"), "_")
	if name == "" {
		name = "integration"
	}
	return name + "_template.csv"
}
