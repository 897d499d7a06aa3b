package log

import (
	"bytes"
	"encoding/json"
	"errors"
	"os"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseLevel(t *testing.T) {
	for in, want := range map[string]Level{
		"debug": LevelDebug, "INFO": LevelInfo, "": LevelInfo, "warning": LevelWarn, "Error": LevelError,
	} {
		got, err := ParseLevel(in)
		require.NoError(t, err, in)
		assert.Equal(t, want, got, in)
	}
	_, err := ParseLevel("loud")
	assert.Error(t, err)
}

func TestLevelFiltersAndJSON(t *testing.T) {
	var buf bytes.Buffer
	SetOutput(&buf, "json")
	SetLevel(LevelWarn)
	t.Cleanup(func() {
		SetOutput(os.Stderr, "text")
		SetLevel(LevelInfo)
	})

	Info("hidden", "k", 1)
	Error("import failed", errors.New("boom"), "source", "work")

	lines := bytes.Split(bytes.TrimSpace(buf.Bytes()), []byte("\n"))
	require.Len(t, lines, 1)

	var rec map[string]any
	require.NoError(t, json.Unmarshal(lines[0], &rec))
	assert.Equal(t, "import failed", rec["msg"])
	assert.Equal(t, "ERROR", rec["level"])
	assert.Equal(t, "boom", rec["err"])
	assert.Equal(t, "work", rec["source"])
}
