package models

import (
	"fmt"
	"time"
)

// AlertIdentity identifies one class of machine-health condition. Two
// alerts are the same entity iff attribute and code are both equal.
// The zero value is reserved as the "empty slot" sentinel, so a real
// alert with attr=0 and code=0 cannot be tracked.
type AlertIdentity struct {
	Attr uint32 `json:"attr"`
	Code uint32 `json:"code"`
}

// NewAlertIdentity builds the identity for an (attribute, code) pair
func NewAlertIdentity(attr, code uint32) AlertIdentity {
	return AlertIdentity{Attr: attr, Code: code}
}

// IsZero reports whether the identity is the empty-slot sentinel
func (id AlertIdentity) IsZero() bool {
	return id.Attr == 0 && id.Code == 0
}

// Packed returns the identity packed as (attr<<32)|code
func (id AlertIdentity) Packed() uint64 {
	return uint64(id.Attr)<<32 | uint64(id.Code)
}

// Display renders the identity in the printer's documented form, four
// 16-bit hex groups of the packed value, most significant first:
// HMS_XXXX_XXXX_XXXX_XXXX.
func (id AlertIdentity) Display() string {
	full := id.Packed()
	return fmt.Sprintf("HMS_%04X_%04X_%04X_%04X",
		uint16(full>>48), uint16(full>>32), uint16(full>>16), uint16(full))
}

// AlertEvent is one tracked machine-health alert. A slot stays
// allocated with its history after expiry until the slot is reused for
// a new identity.
type AlertEvent struct {
	Identity    AlertIdentity `json:"identity"`
	DisplayCode string        `json:"displayCode"`
	Severity    Severity      `json:"severity"`
	FirstSeenAt time.Time     `json:"firstSeenAt"`
	LastSeenAt  time.Time     `json:"lastSeenAt"`
	Count       uint32        `json:"count"`
	Active      bool          `json:"active"`
}
