package monitor

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/bambubeacon/bambubeacon-server/internal/models"
)

func TestIngestAlertArrayLocations(t *testing.T) {
	docs := map[string]string{
		"root":  `{"hms":[{"attr":196608,"code":65538}]}`,
		"print": `{"print":{"hms":[{"attr":196608,"code":65538}]}}`,
		"data":  `{"data":{"hms":[{"attr":196608,"code":65538}]}}`,
	}

	for name, doc := range docs {
		t.Run(name, func(t *testing.T) {
			m, _ := setupMonitor(t, validSource(), Config{})
			require.True(t, m.Begin())

			m.Ingest([]byte(doc), time.Now())

			alerts := m.ActiveAlerts(10)
			require.Len(t, alerts, 1)
			assert.Equal(t, uint32(196608), alerts[0].Identity.Attr)
			assert.Equal(t, uint32(65538), alerts[0].Identity.Code)
			assert.Equal(t, "HMS_0003_0000_0001_0002", alerts[0].DisplayCode)
			assert.Equal(t, models.SeverityFatal, alerts[0].Severity)
			assert.Equal(t, uint32(1), alerts[0].Count)
		})
	}
}

func TestIngestSkipsMalformedEntries(t *testing.T) {
	m, _ := setupMonitor(t, validSource(), Config{})
	require.True(t, m.Begin())

	doc := `{"hms":[
		42,
		"HMS_0001_0002_0003_0004",
		[1, 2],
		{"attr":"7","code":196608},
		{"attr":7,"code":"196608"},
		{"attr":7.5,"code":196608},
		{"attr":-7,"code":196608},
		{"attr":7,"code":4294967296},
		{"attr":7},
		{"code":196608},
		{"attr":7,"code":196608}
	]}`
	m.Ingest([]byte(doc), time.Now())

	alerts := m.ActiveAlerts(20)
	require.Len(t, alerts, 1, "only the well-formed entry survives")
	assert.Equal(t, uint32(7), alerts[0].Identity.Attr)
	assert.Equal(t, uint32(196608), alerts[0].Identity.Code)
}

func TestIngestParseFailureChangesNothing(t *testing.T) {
	m, _ := setupMonitor(t, validSource(), Config{TTL: 20 * time.Second})
	require.True(t, m.Begin())

	base := time.Now()
	m.Ingest([]byte(fatalReport()), base)
	require.Equal(t, 1, m.CountActiveTotal())

	// A broken document is dropped before expiry runs, so even a stale
	// alert survives it.
	m.Ingest([]byte(`{"print":`), base.Add(25*time.Second))
	assert.Equal(t, 1, m.CountActiveTotal())

	// The next parseable document retires it.
	m.Ingest([]byte(`{"print":{"gcode_state":"IDLE"}}`), base.Add(25*time.Second))
	assert.Zero(t, m.CountActiveTotal())
}

func TestIngestMissingArrayStillExpires(t *testing.T) {
	m, _ := setupMonitor(t, validSource(), Config{TTL: 20 * time.Second})
	require.True(t, m.Begin())

	base := time.Now()
	m.Ingest([]byte(fatalReport()), base)
	require.Equal(t, 1, m.CountActiveTotal())

	// No hms key at all, then an empty array: both run expiry.
	m.Ingest([]byte(`{"print":{"mc_percent":10}}`), base.Add(10*time.Second))
	assert.Equal(t, 1, m.CountActiveTotal(), "still inside the ttl")

	m.Ingest([]byte(`{"print":{"hms":[]}}`), base.Add(21*time.Second))
	assert.Zero(t, m.CountActiveTotal())
}

func TestIngestRepeatKeepsAlertAlive(t *testing.T) {
	m, _ := setupMonitor(t, validSource(), Config{TTL: 20 * time.Second})
	require.True(t, m.Begin())

	base := time.Now()
	m.Ingest([]byte(fatalReport()), base)
	m.Ingest([]byte(fatalReport()), base.Add(15*time.Second))

	// 30s after first sight but only 15s after the refresh.
	m.Ingest([]byte(`{"print":{"hms":[]}}`), base.Add(30*time.Second))
	alerts := m.ActiveAlerts(10)
	require.Len(t, alerts, 1)
	assert.Equal(t, uint32(2), alerts[0].Count)
	assert.Equal(t, base, alerts[0].FirstSeenAt)
	assert.Equal(t, base.Add(15*time.Second), alerts[0].LastSeenAt)

	m.Ingest([]byte(`{"print":{"hms":[]}}`), base.Add(40*time.Second))
	assert.Zero(t, m.CountActiveTotal())
}

func TestIngestIgnoreList(t *testing.T) {
	src := validSource()
	src.ignored = []string{"hms_0300_0d00_0001_000b"}

	m, _ := setupMonitor(t, src, Config{})
	require.True(t, m.Begin())

	// 0x03000D00 / 0x0001000B renders as the ignored display code.
	doc := `{"hms":[
		{"attr":50334976,"code":65547},
		{"attr":196608,"code":65538}
	]}`
	m.Ingest([]byte(doc), time.Now())

	alerts := m.ActiveAlerts(10)
	require.Len(t, alerts, 1)
	assert.Equal(t, "HMS_0003_0000_0001_0002", alerts[0].DisplayCode)
}

func TestIngestStatusSnapshot(t *testing.T) {
	m, _ := setupMonitor(t, validSource(), Config{})
	require.True(t, m.Begin())

	// Nothing reported yet.
	st := m.Status()
	assert.Empty(t, st.PrintState)
	assert.Equal(t, models.ProgressUnknown, st.PrintProgress)
	assert.Equal(t, models.ProgressUnknown, st.DownloadProgress)
	assert.False(t, st.BedValid)

	m.Ingest([]byte(`{"print":{
		"gcode_state":"RUNNING",
		"mc_percent":42,
		"gcode_file_prepare_percent":7,
		"bed_temper":60.5,
		"bed_target_temper":65
	}}`), time.Now())

	st = m.Status()
	assert.Equal(t, "RUNNING", st.PrintState)
	assert.Equal(t, uint8(42), st.PrintProgress)
	assert.Equal(t, uint8(7), st.DownloadProgress)
	assert.Equal(t, 60.5, st.BedTemp)
	assert.Equal(t, 65.0, st.BedTarget)
	assert.True(t, st.BedValid)

	// Deltas only touch what they carry.
	m.Ingest([]byte(`{"print":{"mc_percent":43}}`), time.Now())
	st = m.Status()
	assert.Equal(t, "RUNNING", st.PrintState)
	assert.Equal(t, uint8(43), st.PrintProgress)
	assert.Equal(t, 60.5, st.BedTemp)

	// Root-level fields count too; empty and out-of-range values do not.
	m.Ingest([]byte(`{"gcode_state":"PAUSE","mc_percent":150}`), time.Now())
	st = m.Status()
	assert.Equal(t, "PAUSE", st.PrintState)
	assert.Equal(t, uint8(43), st.PrintProgress)

	m.Ingest([]byte(`{"print":{"gcode_state":""}}`), time.Now())
	assert.Equal(t, "PAUSE", m.Status().PrintState)
}

func TestIngestPrintSectionWinsOverRoot(t *testing.T) {
	m, _ := setupMonitor(t, validSource(), Config{})
	require.True(t, m.Begin())

	// When both levels carry a field, the print section is the one
	// that counts.
	m.Ingest([]byte(`{
		"gcode_state":"FINISH",
		"mc_percent":10,
		"print":{"gcode_state":"RUNNING","mc_percent":55}
	}`), time.Now())

	st := m.Status()
	assert.Equal(t, "RUNNING", st.PrintState)
	assert.Equal(t, uint8(55), st.PrintProgress)
	assert.Equal(t, "RUNNING", m.PrintState())
}

func TestIngestReportObserver(t *testing.T) {
	var seen []map[string]interface{}

	m, _ := setupMonitor(t, validSource(), Config{})
	m.SetOnReport(func(doc map[string]interface{}) { seen = append(seen, doc) })
	require.True(t, m.Begin())

	// Every parsed document reaches the observer, alerts or not.
	m.Ingest([]byte(fatalReport()), time.Now())
	m.Ingest([]byte(`{"print":{"gcode_state":"RUNNING"}}`), time.Now())
	require.Len(t, seen, 2)

	section, ok := seen[1]["print"].(map[string]interface{})
	require.True(t, ok)
	assert.Equal(t, "RUNNING", section["gcode_state"])

	// Broken documents do not.
	m.Ingest([]byte(`not json`), time.Now())
	assert.Len(t, seen, 2)
}

func TestIngestWhileIdle(t *testing.T) {
	called := false

	m, _ := setupMonitor(t, &fakeSource{}, Config{})
	m.SetOnReport(func(map[string]interface{}) { called = true })
	require.False(t, m.Begin())

	m.Ingest([]byte(fatalReport()), time.Now())
	assert.Zero(t, m.CountActiveTotal())
	assert.False(t, called)
}
