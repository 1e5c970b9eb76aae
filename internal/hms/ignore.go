package hms

import "strings"

// IgnoreList suppresses configured alert codes at ingestion so they
// never consume a store slot. Matching follows the device behavior: the
// formatted display code is looked up as a substring of the normalized
// ignore text.
type IgnoreList struct {
	norm string
}

// NewIgnoreList normalizes the configured entries into one uppercase
// comma-joined string
func NewIgnoreList(entries []string) IgnoreList {
	cleaned := make([]string, 0, len(entries))
	for _, e := range entries {
		e = strings.ToUpper(strings.TrimSpace(e))
		if e != "" {
			cleaned = append(cleaned, e)
		}
	}
	return IgnoreList{norm: strings.Join(cleaned, ",")}
}

// Empty reports whether no entries are configured
func (l IgnoreList) Empty() bool {
	return l.norm == ""
}

// Match reports whether the display code is ignored
func (l IgnoreList) Match(displayCode string) bool {
	if l.norm == "" {
		return false
	}
	return strings.Contains(l.norm, displayCode)
}
