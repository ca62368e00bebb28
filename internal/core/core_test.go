package core

import (
	"testing"
	"time"
)

func TestRunDuration(t *testing.T) {
	start := time.Date(2025, 1, 2, 3, 4, 5, 0, time.UTC)

	run := Run{ID: "run-1", Status: RunRunning, StartedAt: start}
	if run.Duration() != 0 {
		t.Errorf("Expected zero duration while running, got %v", run.Duration())
	}

	run.Status = RunCompleted
	run.CompletedAt = start.Add(90 * time.Second)
	if run.Duration() != 90*time.Second {
		t.Errorf("Expected 90s duration, got %v", run.Duration())
	}
}
