package schedule

import (
	"testing"
	"time"
)

func TestEmptyGateAlwaysActive(t *testing.T) {
	gate, err := NewGate("")
	if err != nil {
		t.Fatalf("NewGate failed: %v", err)
	}
	if !gate.Active(time.Now()) {
		t.Error("empty gate should always be active")
	}
	if gate.String() != "always" {
		t.Errorf("expected \"always\", got %q", gate.String())
	}
}

func TestOfficeHoursGate(t *testing.T) {
	gate, err := NewGate("* 9-17 * * MON-FRI")
	if err != nil {
		t.Fatalf("NewGate failed: %v", err)
	}

	tests := []struct {
		name   string
		at     time.Time
		active bool
	}{
		{"monday morning", time.Date(2026, 3, 2, 10, 30, 0, 0, time.UTC), true},
		{"friday late afternoon", time.Date(2026, 3, 6, 17, 59, 0, 0, time.UTC), true},
		{"monday before hours", time.Date(2026, 3, 2, 8, 59, 0, 0, time.UTC), false},
		{"monday after hours", time.Date(2026, 3, 2, 18, 0, 0, 0, time.UTC), false},
		{"saturday", time.Date(2026, 3, 7, 10, 30, 0, 0, time.UTC), false},
		{"mid-minute still counts", time.Date(2026, 3, 2, 10, 30, 42, 0, time.UTC), true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := gate.Active(tt.at); got != tt.active {
				t.Errorf("Active(%s) = %v, want %v", tt.at, got, tt.active)
			}
		})
	}
}

func TestInvalidExpression(t *testing.T) {
	if _, err := NewGate("not a cron line"); err == nil {
		t.Error("expected error for invalid expression")
	}
}
