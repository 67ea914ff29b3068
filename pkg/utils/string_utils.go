package utils

import "strings"

// NormalizeBarcode trims whitespace around a scanned or typed barcode.
func NormalizeBarcode(s string) string {
	return strings.TrimSpace(s)
}

// ContainsFold reports whether substr is within s, ignoring case.
func ContainsFold(s, substr string) bool {
	return strings.Contains(strings.ToLower(s), strings.ToLower(substr))
}
