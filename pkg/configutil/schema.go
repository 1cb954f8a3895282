package configutil

import (
	"fmt"
	"sort"
	"strings"
)

// Schema lists the settings keys a vendor understands.
type Schema struct {
	Required     []string
	Optional     []string
	AllowUnknown bool
}

// SettingsError describes a vendor settings map that does not fit its
// schema.
type SettingsError struct {
	Vendor  string
	Missing []string
	Unknown []string
}

func (e *SettingsError) Error() string {
	var parts []string
	if len(e.Missing) > 0 {
		parts = append(parts, "missing "+strings.Join(e.Missing, ", "))
	}
	if len(e.Unknown) > 0 {
		parts = append(parts, "unknown "+strings.Join(e.Unknown, ", "))
	}
	vendor := e.Vendor
	if vendor == "" {
		vendor = "vendor"
	}
	return fmt.Sprintf("%s settings: %s", vendor, strings.Join(parts, "; "))
}

// ValidateVendor checks the settings of one vendor against schema. Keys
// match regardless of case, underscores and hyphens. Failures are returned
// as *SettingsError naming the vendor.
func ValidateVendor(vendor string, input map[string]any, schema Schema) error {
	known := make(map[string]string, len(schema.Required)+len(schema.Optional))
	for _, k := range schema.Optional {
		known[normalizeKey(k)] = k
	}
	for _, k := range schema.Required {
		known[normalizeKey(k)] = k
	}

	present := make(map[string]bool, len(input))
	var unknown []string
	for k, v := range input {
		nk := normalizeKey(k)
		if _, ok := known[nk]; !ok {
			if !schema.AllowUnknown {
				unknown = append(unknown, k)
			}
			continue
		}
		present[nk] = !isBlank(v)
	}

	var missing []string
	for _, k := range schema.Required {
		if !present[normalizeKey(k)] {
			missing = append(missing, k)
		}
	}
	if len(missing) == 0 && len(unknown) == 0 {
		return nil
	}
	sort.Strings(missing)
	sort.Strings(unknown)
	return &SettingsError{Vendor: vendor, Missing: missing, Unknown: unknown}
}

func isBlank(v any) bool {
	if v == nil {
		return true
	}
	if s, ok := v.(string); ok {
		return strings.TrimSpace(s) == ""
	}
	return false
}
