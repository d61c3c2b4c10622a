package sandbox

import (
	"strings"
	"testing"
)

func TestScanSentinelBasic(t *testing.T) {
	sentinel := newSentinel()
	buf := []byte("hello\nworld\n" + sentinel + " 0\n")

	out, code, rest, found := scanSentinel(buf, sentinel)
	if !found {
		t.Fatal("sentinel not found")
	}
	if out != "hello\nworld" {
		t.Errorf("output = %q", out)
	}
	if code != 0 {
		t.Errorf("exit code = %d", code)
	}
	if len(rest) != 0 {
		t.Errorf("rest = %q", rest)
	}
}

func TestScanSentinelNonZeroStatus(t *testing.T) {
	sentinel := newSentinel()
	buf := []byte("no such file\n" + sentinel + " 127\n")

	_, code, _, found := scanSentinel(buf, sentinel)
	if !found || code != 127 {
		t.Errorf("found=%v code=%d, want found=true code=127", found, code)
	}
}

func TestScanSentinelIncomplete(t *testing.T) {
	sentinel := newSentinel()
	// Marker has arrived but the status digits have not.
	buf := []byte("partial output\n" + sentinel)

	if _, _, _, found := scanSentinel(buf, sentinel); found {
		t.Error("matched a sentinel with no status")
	}
}

func TestScanSentinelIgnoresEchoedCommand(t *testing.T) {
	sentinel := newSentinel()
	// A terminal that echoes input would replay the command we wrote,
	// which itself contains the sentinel text. Only the bare
	// "<sentinel> <status>" line may terminate the scan.
	echoed := "echo " + sentinel + " $?"
	buf := []byte(echoed + "\nreal output\n" + sentinel + " 3\n")

	out, code, _, found := scanSentinel(buf, sentinel)
	if !found {
		t.Fatal("sentinel not found")
	}
	if code != 3 {
		t.Errorf("exit code = %d", code)
	}
	if !strings.Contains(out, "real output") {
		t.Errorf("output = %q, missing command output", out)
	}
}

func TestScanSentinelKeepsTrailingBytes(t *testing.T) {
	sentinel := newSentinel()
	buf := []byte("out\n" + sentinel + " 0\nstray bytes from next prompt")

	_, _, rest, found := scanSentinel(buf, sentinel)
	if !found {
		t.Fatal("sentinel not found")
	}
	if string(rest) != "stray bytes from next prompt" {
		t.Errorf("rest = %q", rest)
	}
}

func TestCleanOutputStripsANSI(t *testing.T) {
	raw := "\x1b[31mred\x1b[0m\r\nnext\rline"
	got := cleanOutput(raw)
	if got != "red\nnext\nline" {
		t.Errorf("cleanOutput = %q", got)
	}
}

func TestSentinelUniqueness(t *testing.T) {
	a, b := newSentinel(), newSentinel()
	if a == b {
		t.Error("sentinels collided")
	}
	if !strings.HasPrefix(a, "__SBX_") {
		t.Errorf("sentinel %q missing prefix", a)
	}
}
