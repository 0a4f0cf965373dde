package eventlog

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestReadEventFile(t *testing.T) {
	t.Parallel()

	path := filepath.Join(t.TempDir(), "events.json")
	body := `[
		{"label": "Triage", "timestamp": "2024-07-01T10:00:00+05:30", "sequence": 0},
		{"label": "Done", "timestamp": "2024-07-01T12:30:00Z", "sequence": 1}
	]`
	require.NoError(t, os.WriteFile(path, []byte(body), 0o644))

	events, err := ReadEventFile(path)
	require.NoError(t, err)
	require.Len(t, events, 2)
	assert.Equal(t, "Triage", events[0].Label)
	assert.True(t, events[0].Timestamp.Equal(time.Date(2024, 7, 1, 4, 30, 0, 0, time.UTC)))
	assert.Equal(t, 1, events[1].Sequence)
}

func TestDecodeEvents_Errors(t *testing.T) {
	t.Parallel()

	_, err := DecodeEvents([]byte(`[{"label": "Triage", "timestamp": "2024-07-01 10:00"}]`))
	assert.ErrorIs(t, err, ErrParse)

	_, err = DecodeEvents([]byte(`{"label": "Triage"}`))
	require.Error(t, err)
	assert.NotErrorIs(t, err, ErrParse)

	_, err = ReadEventFile(filepath.Join(t.TempDir(), "missing.json"))
	assert.ErrorIs(t, err, os.ErrNotExist)
}

func TestParseRef(t *testing.T) {
	t.Parallel()

	tests := []struct {
		in   string
		want Ref
	}{
		{"jira:SUP-1", Ref{Source: SourceJira, Key: "SUP-1"}},
		{"SUP-1", Ref{Source: SourceJira, Key: "SUP-1"}},
		{"GitHub:acme/support#3", Ref{Source: SourceGitHub, Key: "acme/support#3"}},
		{"file:./a/b.json", Ref{Source: SourceFile, Key: "./a/b.json"}},
	}
	for _, tt := range tests {
		got, err := ParseRef(tt.in)
		require.NoError(t, err, tt.in)
		assert.Equal(t, tt.want, got)
	}

	for _, bad := range []string{"", "acme/support#3", "svn:1", "jira:"} {
		_, err := ParseRef(bad)
		assert.ErrorIs(t, err, ErrInvalidRef, bad)
	}
	assert.Equal(t, "jira:SUP-1", Ref{Source: SourceJira, Key: "SUP-1"}.String())
}
