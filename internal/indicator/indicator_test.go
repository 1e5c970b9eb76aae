package indicator

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/bambubeacon/bambubeacon-server/internal/models"
)

func TestDerive(t *testing.T) {
	tests := []struct {
		name      string
		ready     bool
		connected bool
		top       models.Severity
		want      State
	}{
		{"unconfigured", false, false, models.SeverityNone, State{Level: LevelUnconfigured}},
		{"unconfigured beats connected", false, true, models.SeverityFatal, State{Level: LevelUnconfigured}},
		{"offline", true, false, models.SeverityNone, State{Level: LevelOffline, Blink: true}},
		{"offline beats alerts", true, false, models.SeverityFatal, State{Level: LevelOffline, Blink: true}},
		{"ok", true, true, models.SeverityNone, State{Level: LevelOK}},
		{"info", true, true, models.SeverityInfo, State{Level: LevelInfo}},
		{"warning", true, true, models.SeverityWarning, State{Level: LevelWarning}},
		{"error blinks", true, true, models.SeverityError, State{Level: LevelError, Blink: true}},
		{"fatal blinks", true, true, models.SeverityFatal, State{Level: LevelFatal, Blink: true}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, Derive(tt.ready, tt.connected, tt.top))
		})
	}
}
