// Package indicator derives the at-a-glance device state shown in the
// web UI, the same signal the hardware drives its status LED from.
package indicator

import "github.com/bambubeacon/bambubeacon-server/internal/models"

// Level is the coarse state a user sees without reading any alert
type Level string

const (
	LevelUnconfigured Level = "unconfigured"
	LevelOffline      Level = "offline"
	LevelOK           Level = "ok"
	LevelInfo         Level = "info"
	LevelWarning      Level = "warning"
	LevelError        Level = "error"
	LevelFatal        Level = "fatal"
)

// State pairs a level with whether it should pulse for attention
type State struct {
	Level Level `json:"level"`
	Blink bool  `json:"blink"`
}

// Derive maps monitor state to an indicator. Missing settings beat a
// down connection, which beats any alert severity.
func Derive(ready, connected bool, top models.Severity) State {
	if !ready {
		return State{Level: LevelUnconfigured}
	}
	if !connected {
		return State{Level: LevelOffline, Blink: true}
	}

	switch top {
	case models.SeverityFatal:
		return State{Level: LevelFatal, Blink: true}
	case models.SeverityError:
		return State{Level: LevelError, Blink: true}
	case models.SeverityWarning:
		return State{Level: LevelWarning}
	case models.SeverityInfo:
		return State{Level: LevelInfo}
	default:
		return State{Level: LevelOK}
	}
}
