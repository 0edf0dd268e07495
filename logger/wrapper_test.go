package logger

import (
	"bytes"
	"strings"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
)

func TestHandleLogLine(t *testing.T) {
	var out bytes.Buffer
	var panicLogs strings.Builder
	nop := zerolog.Nop()

	found := handleLogLine(&out, []byte(`{"level_name":"info","message":"hi"}`), false, &panicLogs, nop)
	assert.False(t, found)
	assert.Equal(t, "{\"level_name\":\"info\",\"message\":\"hi\"}\n", out.String())

	found = handleLogLine(&out, []byte("panic: runtime error"), found, &panicLogs, nop)
	assert.True(t, found)

	found = handleLogLine(&out, []byte(`{"after":"panic"}`), found, &panicLogs, nop)
	assert.True(t, found)
	assert.Equal(t, "panic: runtime error\n{\"after\":\"panic\"}\n", panicLogs.String())

	found = handleLogLine(&out, nil, found, &panicLogs, nop)
	assert.True(t, found)
}

func TestParseLevel(t *testing.T) {
	assert.Equal(t, zerolog.DebugLevel, ParseLevel("debug"))
	assert.Equal(t, zerolog.ErrorLevel, ParseLevel(LOG_LEVEL_ERROR))
	assert.Equal(t, zerolog.InfoLevel, ParseLevel("verbose"))
}

func TestExitCodeOf(t *testing.T) {
	assert.Equal(t, 0, exitCodeOf(nil))
	assert.Equal(t, 1, exitCodeOf(assert.AnError))
}
