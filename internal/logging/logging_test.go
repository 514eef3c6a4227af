package logging

import (
	"bytes"
	"encoding/json"
	"strings"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestNewLogger_JSONLevels(t *testing.T) {
	var buf bytes.Buffer
	log := newLogger(&buf, false, "json")
	log.Debug("hidden")
	log.Info("scan started", "candidates", 2)

	lines := strings.Split(strings.TrimSpace(buf.String()), "\n")
	require.Len(t, lines, 1)

	var rec map[string]any
	require.NoError(t, json.Unmarshal([]byte(lines[0]), &rec))
	require.Equal(t, "scan started", rec["msg"])
	require.EqualValues(t, 2, rec["candidates"])
}

func TestNewLogger_VerboseText(t *testing.T) {
	var buf bytes.Buffer
	log := newLogger(&buf, true, "text")
	log.Debug("proxy dead", "proxy", "http://10.0.0.1:8080")
	require.Contains(t, buf.String(), "level=DEBUG")
	require.Contains(t, buf.String(), "proxy=http://10.0.0.1:8080")
}
