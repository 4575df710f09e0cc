package metrics

import (
	"bytes"
	"strings"
	"testing"
)

func TestWriteTextIncludesIncrementedCounters(t *testing.T) {
	c := New()
	c.FramesSent.Add(3)
	c.Errors.Inc()

	var buf bytes.Buffer
	if err := c.WriteText(&buf); err != nil {
		t.Fatalf("WriteText: %v", err)
	}

	out := buf.String()
	if !strings.Contains(out, "sakuraedl_frames_sent_total 3") {
		t.Fatalf("output missing frames_sent counter: %s", out)
	}
	if !strings.Contains(out, "sakuraedl_errors_total 1") {
		t.Fatalf("output missing errors counter: %s", out)
	}
}
