package report

import (
	"bytes"
	"encoding/json"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"sla-clock/internal/evaluate"
	"sla-clock/internal/eventlog"
	"sla-clock/internal/sla"
)

func sampleBatch() *evaluate.Batch {
	return &evaluate.Batch{
		RunID:       "8d0c1b1e-0000-4000-8000-000000000001",
		EvaluatedAt: time.Date(2024, 7, 8, 5, 30, 0, 0, time.UTC),
		Outcomes: []evaluate.Outcome{
			{
				Ref:    eventlog.Ref{Source: eventlog.SourceJira, Key: "SUP-1"},
				Result: sla.Result{Priority: sla.P1, ElapsedSeconds: 3*3600 + 59, ThresholdSeconds: 16 * 3600},
			},
			{
				Ref:    eventlog.Ref{Source: eventlog.SourceGitHub, Key: "acme/support#4"},
				Result: sla.Result{Priority: sla.P2, ElapsedSeconds: 90000, ThresholdSeconds: 24 * 3600, Breached: true},
			},
			{
				Ref: eventlog.Ref{Source: eventlog.SourceJira, Key: "SUP-404"},
				Err: errors.New("jira resource not found"),
			},
		},
	}
}

func TestWriteResult(t *testing.T) {
	t.Parallel()

	var buf bytes.Buffer
	require.NoError(t, WriteResult(&buf, sla.Result{ElapsedSeconds: 7199, ThresholdSeconds: 3600, Breached: true}))
	assert.Equal(t, "Total Hours: 1\nTotal Seconds: 7199\nSLA Breached: Breached\n", buf.String())
}

func TestBuildAndWriteText(t *testing.T) {
	t.Parallel()

	r := Build(sampleBatch())
	require.Len(t, r.Results, 3)
	assert.Equal(t, "jira:SUP-1", r.Results[0].Issue)
	assert.Equal(t, sla.VerdictWithinSLA, r.Results[0].Verdict)
	assert.Equal(t, sla.VerdictBreached, r.Results[1].Verdict)
	assert.Equal(t, "jira resource not found", r.Results[2].Error)
	assert.Empty(t, r.Results[2].Verdict)

	var buf bytes.Buffer
	require.NoError(t, WriteText(&buf, r))
	out := buf.String()

	assert.Contains(t, out, "jira:SUP-1 [P1]\nTotal Hours: 3\nTotal Seconds: 10859\nSLA Breached: WithinSLA\n")
	assert.Contains(t, out, "github:acme/support#4 [P2]\nTotal Hours: 25\nTotal Seconds: 90000\nSLA Breached: Breached\n")
	assert.Contains(t, out, "jira:SUP-404\nError: jira resource not found\n")
	assert.True(t, strings.HasSuffix(out, "Evaluated: 2  Breached: 1  Failed: 1  Median Hours: 14.0\n"), out)
}

func TestWriteJSON(t *testing.T) {
	t.Parallel()

	var buf bytes.Buffer
	require.NoError(t, WriteJSON(&buf, Build(sampleBatch())))

	var decoded struct {
		RunID       string `json:"run_id"`
		EvaluatedAt string `json:"evaluated_at"`
		Results     []struct {
			Issue          string `json:"issue"`
			ElapsedSeconds int64  `json:"elapsed_seconds"`
			Breached       bool   `json:"breached"`
			Verdict        string `json:"verdict"`
			Error          string `json:"error"`
		} `json:"results"`
		Summary struct {
			Count    int     `json:"count"`
			Breached int     `json:"breached"`
			Median   float64 `json:"median_elapsed_seconds"`
		} `json:"summary"`
	}
	require.NoError(t, json.Unmarshal(buf.Bytes(), &decoded))

	assert.Equal(t, "8d0c1b1e-0000-4000-8000-000000000001", decoded.RunID)
	assert.Equal(t, "2024-07-08T05:30:00Z", decoded.EvaluatedAt)
	require.Len(t, decoded.Results, 3)
	assert.Equal(t, "Breached", decoded.Results[1].Verdict)
	assert.True(t, decoded.Results[1].Breached)
	assert.NotEmpty(t, decoded.Results[2].Error)
	assert.Equal(t, 2, decoded.Summary.Count)
	assert.InDelta(t, float64(10859+90000)/2, decoded.Summary.Median, 0.001)
}

func TestRegistryAndWriteMetrics(t *testing.T) {
	t.Parallel()

	r := Build(sampleBatch())
	reg := Registry(r)

	n, err := testutil.GatherAndCount(reg, "sla_elapsed_seconds", "sla_breached")
	require.NoError(t, err)
	assert.Equal(t, 4, n, "two evaluated issues, failed rows skipped")

	path := filepath.Join(t.TempDir(), "textfile", "sla.prom")
	require.NoError(t, WriteMetrics(path, r))

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	text := string(data)
	assert.Contains(t, text, `sla_breached{issue="github:acme/support#4",priority="P2"} 1`)
	assert.Contains(t, text, `sla_elapsed_seconds{issue="jira:SUP-1",priority="P1"} 10859`)
	assert.Contains(t, text, `sla_threshold_seconds{issue="jira:SUP-1",priority="P1"} 57600`)
	assert.NotContains(t, text, "SUP-404")
	assert.Contains(t, text, "sla_evaluation_timestamp_seconds 1.7204166e+09")
}
