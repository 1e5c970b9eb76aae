package models

// ProgressUnknown is the sentinel for a progress field no report has
// carried yet.
const ProgressUnknown uint8 = 255

// StatusSnapshot holds the non-authoritative device counters extracted
// from the report stream. Each report overwrites only the fields it
// carries; the rest keep their last known value.
type StatusSnapshot struct {
	PrintState       string  `json:"printState"`
	PrintProgress    uint8   `json:"printProgress"`
	DownloadProgress uint8   `json:"downloadProgress"`
	BedTemp          float64 `json:"bedTemp"`
	BedTarget        float64 `json:"bedTarget"`
	BedValid         bool    `json:"bedValid"`
}

// NewStatusSnapshot returns a snapshot with the progress fields set to
// the unknown sentinel
func NewStatusSnapshot() StatusSnapshot {
	return StatusSnapshot{
		PrintProgress:    ProgressUnknown,
		DownloadProgress: ProgressUnknown,
	}
}
