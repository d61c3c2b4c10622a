package sandbox

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/charmbracelet/x/ansi"
	"github.com/google/uuid"
)

// newSentinel returns a marker string that cannot plausibly appear in
// command output. The shell echoes it back followed by the exit status of
// the preceding command.
func newSentinel() string {
	return "__SBX_" + strings.ReplaceAll(uuid.New().String(), "-", "")
}

// sentinelLine is what the session writes to the shell after each command.
func sentinelLine(sentinel string) string {
	return fmt.Sprintf("echo %s $?\n", sentinel)
}

// cleanOutput strips terminal control sequences and normalizes line
// endings. Even with TERM=dumb, bash emits the odd escape sequence
// (bracketed paste probes, cursor queries) that would otherwise leak into
// recorded output.
func cleanOutput(raw string) string {
	s := ansi.Strip(raw)
	s = strings.ReplaceAll(s, "\r\n", "\n")
	s = strings.ReplaceAll(s, "\r", "\n")
	return s
}

// scanSentinel searches the accumulated session buffer for a line of the
// exact form "<sentinel> <status>". On a match it returns the output
// preceding the marker, the parsed exit status, and any bytes after the
// marker line (retained for the next command). The match requires the
// whole line, so a partially echoed command containing the sentinel text
// cannot terminate the scan early.
func scanSentinel(buf []byte, sentinel string) (output string, exitCode int, rest []byte, found bool) {
	cleaned := cleanOutput(string(buf))

	lines := strings.Split(cleaned, "\n")
	for i, line := range lines {
		trimmed := strings.TrimSpace(line)
		status, ok := strings.CutPrefix(trimmed, sentinel+" ")
		if !ok {
			continue
		}
		code, err := strconv.Atoi(status)
		if err != nil {
			continue
		}

		output = strings.Join(lines[:i], "\n")
		rest = []byte(strings.Join(lines[i+1:], "\n"))
		return output, code, rest, true
	}
	return "", 0, nil, false
}
