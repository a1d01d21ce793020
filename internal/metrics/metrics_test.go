package metrics

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCounters(t *testing.T) {
	m := New()

	m.Edges.WithLabelValues("direct").Add(3)
	m.Edges.WithLabelValues("type_evidenced").Inc()
	m.SkippedCalls.WithLabelValues("unresolved").Inc()
	m.Nodes.Set(7)

	assert.Equal(t, 3.0, testutil.ToFloat64(m.Edges.WithLabelValues("direct")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.SkippedCalls.WithLabelValues("unresolved")))
	assert.Equal(t, 7.0, testutil.ToFloat64(m.Nodes))
	assert.Equal(t, 2, testutil.CollectAndCount(m.Edges))
}

func TestSeparateRegistries(t *testing.T) {
	a, b := New(), New()
	a.Violations.WithLabelValues("thread").Inc()

	assert.Equal(t, 0, testutil.CollectAndCount(b.Violations))
}

func TestWriteTextfile(t *testing.T) {
	m := New()
	m.FilesParsed.WithLabelValues("ok").Add(2)
	m.ObservePhase("parse", time.Now().Add(-time.Second))

	path := filepath.Join(t.TempDir(), "gcg.prom")
	require.NoError(t, m.WriteTextfile(path))

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	text := string(data)
	assert.True(t, strings.Contains(text, `gcg_parse_files_total{result="ok"} 2`), text)
	assert.Contains(t, text, "gcg_run_duration_seconds_count{phase=\"parse\"} 1")
}

func TestWriteTextfileBadPath(t *testing.T) {
	err := New().WriteTextfile(filepath.Join(t.TempDir(), "missing", "gcg.prom"))
	assert.Error(t, err)
}
