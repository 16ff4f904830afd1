package worker

import (
	"bytes"
	"strings"
	"testing"
	"time"
)

func TestProgress_Update(t *testing.T) {
	p := NewProgress(10, false)

	p.Update(5, 10, 0)

	if p.completed != 5 {
		t.Errorf("Expected completed=5, got %d", p.completed)
	}
	if p.total != 10 {
		t.Errorf("Expected total=10, got %d", p.total)
	}
}

func TestProgress_Render(t *testing.T) {
	var buf bytes.Buffer

	p := NewProgress(10, true)
	p.out = &buf
	p.start = time.Now().Add(-10 * time.Second) // Simulate 10 seconds elapsed

	p.Update(5, 10, 1)

	output := buf.String()

	if !strings.Contains(output, "█") {
		t.Error("Expected progress bar in output")
	}
	if !strings.Contains(output, "50%") {
		t.Errorf("Expected '50%%' in output, got: %s", output)
	}
	if !strings.Contains(output, "5/10 tiles") {
		t.Errorf("Expected '5/10 tiles' in output, got: %s", output)
	}
	if !strings.Contains(output, "(1 failed)") {
		t.Errorf("Expected '(1 failed)' in output, got: %s", output)
	}
	if !strings.Contains(output, "tiles/sec") {
		t.Errorf("Expected 'tiles/sec' in output, got: %s", output)
	}
	if !strings.Contains(output, "ETA") {
		t.Errorf("Expected 'ETA' in output, got: %s", output)
	}
}

func TestProgress_ThrottlesRenders(t *testing.T) {
	var buf bytes.Buffer

	p := NewProgress(100, true)
	p.out = &buf

	p.Update(1, 100, 0)
	first := buf.Len()
	if first == 0 {
		t.Fatal("Expected the first update to render")
	}

	// A second update inside the render interval is swallowed.
	p.Update(2, 100, 0)
	if buf.Len() != first {
		t.Errorf("Expected throttled update to render nothing, buffer grew from %d to %d", first, buf.Len())
	}

	// The final update always renders.
	p.Update(100, 100, 0)
	if buf.Len() == first {
		t.Error("Expected the final update to render despite the throttle")
	}
}

func TestProgress_Done(t *testing.T) {
	var buf bytes.Buffer

	p := NewProgress(3, true)
	p.out = &buf
	p.start = time.Now().Add(-3 * time.Second)

	p.Update(3, 3, 0)
	buf.Reset() // Clear previous output

	p.Done()

	output := buf.String()

	if !strings.Contains(output, "done in") {
		t.Errorf("Expected 'done in' in output, got: %s", output)
	}
	if !strings.HasSuffix(output, "\n") {
		t.Error("Expected output to end with newline")
	}
}

func TestProgress_Summary(t *testing.T) {
	p := NewProgress(10, false)
	p.start = time.Now().Add(-10 * time.Second)

	p.Update(10, 10, 2)

	summary := p.Summary()

	if !strings.Contains(summary, "Processed 8/10 tiles") {
		t.Errorf("Expected 'Processed 8/10 tiles' in summary, got: %s", summary)
	}
	if !strings.Contains(summary, "2 failed") {
		t.Errorf("Expected '2 failed' in summary, got: %s", summary)
	}
}

func TestProgress_Disabled(t *testing.T) {
	var buf bytes.Buffer

	p := NewProgress(10, false) // Disabled
	p.out = &buf

	p.Update(5, 10, 0)
	p.Done()

	if buf.Len() != 0 {
		t.Errorf("Expected no output when disabled, got: %s", buf.String())
	}
}

func TestProgress_Callback(t *testing.T) {
	p := NewProgress(10, false)

	callback := p.Callback()

	callback(5, 10, 1)

	if p.completed != 5 {
		t.Errorf("Expected completed=5, got %d", p.completed)
	}
	if p.failed != 1 {
		t.Errorf("Expected failed=1, got %d", p.failed)
	}
}

func TestFormatDuration(t *testing.T) {
	tests := []struct {
		expected string
		duration time.Duration
	}{
		{duration: 30 * time.Second, expected: "30s"},
		{duration: 90 * time.Second, expected: "1m30s"},
		{duration: 5 * time.Minute, expected: "5m0s"},
		{duration: 65 * time.Minute, expected: "1h5m"},
		{duration: 2*time.Hour + 30*time.Minute, expected: "2h30m"},
	}

	for _, tt := range tests {
		t.Run(tt.expected, func(t *testing.T) {
			result := formatDuration(tt.duration)
			if result != tt.expected {
				t.Errorf("formatDuration(%v) = %s, want %s", tt.duration, result, tt.expected)
			}
		})
	}
}
