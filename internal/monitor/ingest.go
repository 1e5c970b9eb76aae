package monitor

import (
	"encoding/json"
	"math"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/bambubeacon/bambubeacon-server/internal/hms"
)

// Ingest processes one report document: status fields first, then the
// alert array, then the observers. A document that fails to parse is
// dropped whole; a malformed alert entry is skipped on its own.
func (m *Monitor) Ingest(payload []byte, now time.Time) {
	var doc map[string]interface{}
	if err := json.Unmarshal(payload, &doc); err != nil {
		log.Warn().Err(err).Msg("Report parse failed")
		return
	}

	var notify []func()

	m.mu.Lock()
	if !m.ready || m.store == nil {
		m.mu.Unlock()
		return
	}
	m.applyStatusLocked(doc)
	m.applyAlertsLocked(doc, now)
	if fn := m.problemTransitionLocked(); fn != nil {
		notify = append(notify, fn)
	}
	if m.onReport != nil {
		fn := m.onReport
		notify = append(notify, func() { fn(doc) })
	}
	m.mu.Unlock()

	for _, fn := range notify {
		fn()
	}
}

// applyStatusLocked folds the status fields of a report into the
// snapshot. Reports are deltas: absent fields keep their last value.
func (m *Monitor) applyStatusLocked(doc map[string]interface{}) {
	section, _ := doc["print"].(map[string]interface{})

	if st, ok := reportString(section, doc, "gcode_state"); ok && st != "" {
		m.status.PrintState = st
	}
	if v, ok := reportPercent(section, doc, "mc_percent"); ok {
		m.status.PrintProgress = v
	}
	if v, ok := reportPercent(section, doc, "gcode_file_prepare_percent"); ok {
		m.status.DownloadProgress = v
	}
	if v, ok := reportNumber(section, doc, "bed_temper"); ok {
		m.status.BedTemp = v
		m.status.BedValid = true
	}
	if v, ok := reportNumber(section, doc, "bed_target_temper"); ok {
		m.status.BedTarget = v
		m.status.BedValid = true
	}
}

// applyAlertsLocked upserts the report's alert entries and then runs
// expiry, so one pass both refreshes and retires.
func (m *Monitor) applyAlertsLocked(doc map[string]interface{}, now time.Time) {
	arr, found := findAlertArray(doc)
	if !found {
		m.store.Expire(now, m.cfg.TTL)
		return
	}

	for _, el := range arr {
		obj, ok := el.(map[string]interface{})
		if !ok {
			continue
		}
		attr, ok := alertField(obj, "attr")
		if !ok {
			continue
		}
		code, ok := alertField(obj, "code")
		if !ok {
			continue
		}
		if m.ignore.Match(hms.DisplayCode(attr, code)) {
			continue
		}
		m.store.Upsert(attr, code, now)
	}

	m.store.Expire(now, m.cfg.TTL)
}

// findAlertArray locates the hms array. Firmware revisions have placed
// it at the top level, under print and under data.
func findAlertArray(doc map[string]interface{}) ([]interface{}, bool) {
	if arr, ok := doc["hms"].([]interface{}); ok {
		return arr, true
	}
	if section, ok := doc["print"].(map[string]interface{}); ok {
		if arr, ok := section["hms"].([]interface{}); ok {
			return arr, true
		}
	}
	if section, ok := doc["data"].(map[string]interface{}); ok {
		if arr, ok := section["hms"].([]interface{}); ok {
			return arr, true
		}
	}
	return nil, false
}

// alertField reads a strict uint32: a JSON number, integral, in range
func alertField(obj map[string]interface{}, key string) (uint32, bool) {
	f, ok := obj[key].(float64)
	if !ok {
		return 0, false
	}
	if f != math.Trunc(f) || f < 0 || f > math.MaxUint32 {
		return 0, false
	}
	return uint32(f), true
}

// reportField reads key from the print section first, then the root
func reportField(section, root map[string]interface{}, key string) (interface{}, bool) {
	if section != nil {
		if v, ok := section[key]; ok {
			return v, true
		}
	}
	if v, ok := root[key]; ok {
		return v, true
	}
	return nil, false
}

func reportString(section, root map[string]interface{}, key string) (string, bool) {
	v, ok := reportField(section, root, key)
	if !ok {
		return "", false
	}
	s, ok := v.(string)
	return s, ok
}

func reportNumber(section, root map[string]interface{}, key string) (float64, bool) {
	v, ok := reportField(section, root, key)
	if !ok {
		return 0, false
	}
	f, ok := v.(float64)
	return f, ok
}

func reportPercent(section, root map[string]interface{}, key string) (uint8, bool) {
	f, ok := reportNumber(section, root, key)
	if !ok || f < 0 || f > 100 {
		return 0, false
	}
	return uint8(f), true
}
