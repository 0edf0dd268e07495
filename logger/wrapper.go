package logger

import (
	"bufio"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"os/exec"
	"strings"

	"github.com/rs/zerolog"
)

// WrapProcess runs executable, forwards its JSON log lines from stderr to out
// and turns a Go panic dump into a single structured log record.
// It returns the child's exit code.
func WrapProcess(out io.Writer, executable string, arg ...string) (int, error) {
	wrapLogger := NewLogger("Logs wrapper")

	r, w, err := os.Pipe()
	if err != nil {
		wrapLogger.Error().Err(err).Msg("Could not create pipe for logs")
		return 1, err
	}
	defer r.Close()

	cmd := exec.Command(executable, arg...)
	cmd.Stderr = w
	if err = cmd.Start(); err != nil {
		_ = w.Close()
		wrapLogger.Error().Err(err).Msg("Could not launch main process")
		return 1, err
	}
	// the child holds its own copy; closing ours lets the scanner see EOF
	_ = w.Close()

	panicLogsBuilder := strings.Builder{}
	foundPanic := false
	scanner := bufio.NewScanner(r)
	for scanner.Scan() {
		foundPanic = handleLogLine(out, scanner.Bytes(), foundPanic, &panicLogsBuilder, wrapLogger)
	}
	if err := scanner.Err(); err != nil {
		wrapLogger.Error().Err(err).Msg("Error scanning piped main process's Stderr")
	}

	exitCode := exitCodeOf(cmd.Wait())
	if exitCode == 0 {
		wrapLogger.Info().Msg("Exited with code 0")
		return 0, nil
	}
	wrapLogger.Error().
		Err(errors.New(panicLogsBuilder.String())).
		Msgf("Panicked and exited with code: %d", exitCode)
	return exitCode, nil
}

func exitCodeOf(err error) int {
	if err == nil {
		return 0
	}
	var exitErr *exec.ExitError
	if errors.As(err, &exitErr) {
		return exitErr.ExitCode()
	}
	return 1
}

func handleLogLine(out io.Writer, logsLineBytes []byte, foundPanic bool, builder *strings.Builder, wrapLogger zerolog.Logger) bool {
	logsLine := string(logsLineBytes)
	if !foundPanic && strings.HasPrefix(logsLine, "panic") {
		foundPanic = true
	}
	switch {
	case len(logsLineBytes) == 0:
		return foundPanic
	case foundPanic:
		builder.WriteString(fmt.Sprintf("%s\n", logsLine))
	case isJSON(logsLineBytes):
		_, _ = fmt.Fprintln(out, logsLine)
	default:
		wrapLogger.Error().Msgf("Got log line that is not JSON formatted: '%s'", logsLine)
	}
	return foundPanic
}

func isJSON(b []byte) bool {
	var js json.RawMessage
	err := json.Unmarshal(b, &js)
	return err == nil && js != nil
}
