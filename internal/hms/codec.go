// Package hms implements the alert-event engine for Bambu HMS codes:
// severity classification and the bounded, time-decayed event store.
package hms

import (
	"github.com/bambubeacon/bambubeacon-server/internal/models"
)

// Classify derives the severity from the top 16 bits of the alert code.
// Anything outside the documented 1..4 range maps to None.
func Classify(code uint32) models.Severity {
	switch code >> 16 {
	case 1:
		return models.SeverityFatal
	case 2:
		return models.SeverityError
	case 3:
		return models.SeverityWarning
	case 4:
		return models.SeverityInfo
	default:
		return models.SeverityNone
	}
}

// DisplayCode formats an (attribute, code) pair as the printer's
// documented HMS code string.
func DisplayCode(attr, code uint32) string {
	return models.NewAlertIdentity(attr, code).Display()
}
