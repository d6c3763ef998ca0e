package main

import (
	"bytes"
	"strings"
	"testing"
	"time"
)

func TestRenderBar(t *testing.T) {
	tests := []struct {
		percent int
		filled  int
		label   string
	}{
		{0, 0, "  0%"},
		{50, 15, " 50%"},
		{100, 30, "100%"},
		{140, 30, "100%"},
		{-5, 0, "  0%"},
	}

	for _, tc := range tests {
		got := renderBar(tc.percent, 3*time.Second)
		if n := strings.Count(got, "="); n != tc.filled {
			t.Errorf("renderBar(%d): %d filled cells, want %d: %q", tc.percent, n, tc.filled, got)
		}
		if !strings.Contains(got, tc.label) {
			t.Errorf("renderBar(%d) = %q, missing %q", tc.percent, got, tc.label)
		}
		if !strings.Contains(got, "Elapsed: 3s") {
			t.Errorf("renderBar(%d) = %q, missing elapsed time", tc.percent, got)
		}
	}
}

func TestProgressBarSkipsRepeats(t *testing.T) {
	var out bytes.Buffer
	b := &progressBar{out: &out, enabled: true, started: time.Now(), last: -1}

	b.Update(10)
	b.Update(10)
	b.Update(20)
	b.Finish()

	if n := strings.Count(out.String(), "\r"); n != 2 {
		t.Fatalf("expected 2 redraws, got %d: %q", n, out.String())
	}
	if !strings.HasSuffix(out.String(), "\n") {
		t.Fatal("Finish must end the line")
	}
}

func TestDisabledProgressBarIsSilent(t *testing.T) {
	var out bytes.Buffer
	b := &progressBar{out: &out, enabled: false, last: -1}
	b.Update(50)
	b.Finish()
	if out.Len() != 0 {
		t.Fatalf("expected no output, got %q", out.String())
	}
}
