// internal/model/record.go
package model

import (
	"regexp"
	"strings"
)

// RequiredScanCount is the number of data matrix codes captured per board
const RequiredScanCount = 2

var (
	// Codes are printable ASCII without whitespace, as printed by the label writer.
	scanCodePattern = regexp.MustCompile(`^[!-~]{1,128}$`)

	macPattern = regexp.MustCompile(`^[0-9A-Fa-f]{2}(?::[0-9A-Fa-f]{2}){5}$`)

	// MACPattern matches hex-colon MAC addresses embedded in free text,
	// such as kernel boot lines arriving over UART.
	MACPattern = regexp.MustCompile(`\b[0-9A-Fa-f]{2}(?::[0-9A-Fa-f]{2}){5}\b`)
)

// ValidateScanCode checks a captured code against the expected label format
func ValidateScanCode(code string) error {
	if !scanCodePattern.MatchString(code) {
		return &ScanFormatError{Code: code, Reason: "must be 1-128 printable characters without whitespace"}
	}
	return nil
}

// NormalizeMAC validates a MAC address and returns its canonical
// lowercase hex-colon form.
func NormalizeMAC(mac string) (string, error) {
	trimmed := strings.TrimSpace(mac)
	if !macPattern.MatchString(trimmed) {
		return "", &ScanFormatError{Code: mac, Reason: "not a hex-colon MAC address"}
	}
	return strings.ToLower(trimmed), nil
}

// ScanResult is the ordered set of codes captured during one run.
// The workflow freezes it once the required count is reached.
type ScanResult struct {
	Codes []string `json:"codes"`
}

// Complete reports whether all required codes have been captured
func (sr *ScanResult) Complete() bool {
	return len(sr.Codes) >= RequiredScanCount
}

// ServerRecord holds the expected identity returned by the code server
// for a pair of scanned codes. Read-only after the fetch completes.
type ServerRecord struct {
	Serial string   `json:"serial"`
	MACs   []string `json:"macs"`
}

// ContainsMAC reports whether mac belongs to the expected set.
// Comparison is case-insensitive.
func (r *ServerRecord) ContainsMAC(mac string) bool {
	canonical, err := NormalizeMAC(mac)
	if err != nil {
		return false
	}
	for _, expected := range r.MACs {
		if expected == canonical {
			return true
		}
	}
	return false
}

// MatchesMACs reports whether observed is exactly the expected set,
// ignoring order, case and duplicates. Subsets and supersets do not match.
func (r *ServerRecord) MatchesMACs(observed []string) bool {
	seen := make(map[string]bool, len(r.MACs))
	for _, mac := range observed {
		canonical, err := NormalizeMAC(mac)
		if err != nil {
			return false
		}
		if !r.ContainsMAC(canonical) {
			return false
		}
		seen[canonical] = true
	}
	return len(seen) == len(r.MACs)
}
