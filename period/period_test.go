package period_test

import (
	"testing"
	"time"

	"github.com/xraph/patron/period"
)

func TestParse(t *testing.T) {
	tests := []struct {
		name    string
		input   string
		want    period.Period
		wantErr bool
	}{
		{"valid", "2026-03", "2026-03", false},
		{"december", "2025-12", "2025-12", false},
		{"empty", "", "", true},
		{"garbage", "march", "", true},
		{"missing month", "2026", "", true},
		{"out of range month", "2026-13", "", true},
		{"full date", "2026-03-15", "", true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := period.Parse(tt.input)
			if tt.wantErr {
				if err == nil {
					t.Errorf("expected error for %q", tt.input)
				}
				return
			}
			if err != nil {
				t.Fatalf("Parse(%q) failed: %v", tt.input, err)
			}
			if got != tt.want {
				t.Errorf("got %q, want %q", got, tt.want)
			}
		})
	}
}

func TestFromTime(t *testing.T) {
	// Local time near a month boundary resolves by its UTC instant.
	loc := time.FixedZone("UTC+10", 10*3600)
	local := time.Date(2026, 4, 1, 5, 0, 0, 0, loc) // 2026-03-31T19:00Z

	if got := period.FromTime(local); got != "2026-03" {
		t.Errorf("got %q, want 2026-03", got)
	}
}

func TestStartEnd(t *testing.T) {
	p := period.MustParse("2026-02")

	wantStart := time.Date(2026, 2, 1, 0, 0, 0, 0, time.UTC)
	if !p.Start().Equal(wantStart) {
		t.Errorf("Start: got %v, want %v", p.Start(), wantStart)
	}

	wantEnd := time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC)
	if !p.End().Equal(wantEnd) {
		t.Errorf("End: got %v, want %v", p.End(), wantEnd)
	}
}

func TestNextPrev(t *testing.T) {
	tests := []struct {
		p    period.Period
		next period.Period
		prev period.Period
	}{
		{"2026-06", "2026-07", "2026-05"},
		{"2026-12", "2027-01", "2026-11"},
		{"2026-01", "2026-02", "2025-12"},
	}

	for _, tt := range tests {
		if got := tt.p.Next(); got != tt.next {
			t.Errorf("%s.Next(): got %q, want %q", tt.p, got, tt.next)
		}
		if got := tt.p.Prev(); got != tt.prev {
			t.Errorf("%s.Prev(): got %q, want %q", tt.p, got, tt.prev)
		}
	}
}

func TestContains(t *testing.T) {
	p := period.MustParse("2026-02")

	if !p.Contains(time.Date(2026, 2, 15, 12, 0, 0, 0, time.UTC)) {
		t.Error("expected mid-month instant to be contained")
	}
	if !p.Contains(p.Start()) {
		t.Error("expected Start to be contained")
	}
	if p.Contains(p.End()) {
		t.Error("End is exclusive")
	}
	if p.Contains(time.Date(2026, 1, 31, 23, 59, 59, 0, time.UTC)) {
		t.Error("previous month should not be contained")
	}
}

func TestOrdering(t *testing.T) {
	a := period.MustParse("2026-02")
	b := period.MustParse("2026-11")

	if !a.Before(b) {
		t.Error("expected 2026-02 before 2026-11")
	}
	if !b.After(a) {
		t.Error("expected 2026-11 after 2026-02")
	}
}

func TestTextRoundTrip(t *testing.T) {
	original := period.MustParse("2026-09")
	data, err := original.MarshalText()
	if err != nil {
		t.Fatalf("MarshalText failed: %v", err)
	}

	var restored period.Period
	if err := restored.UnmarshalText(data); err != nil {
		t.Fatalf("UnmarshalText failed: %v", err)
	}
	if restored != original {
		t.Errorf("mismatch: %q != %q", restored, original)
	}
}

func TestValueScan(t *testing.T) {
	original := period.MustParse("2026-09")
	val, err := original.Value()
	if err != nil {
		t.Fatalf("Value failed: %v", err)
	}

	var scanned period.Period
	if scanErr := scanned.Scan(val); scanErr != nil {
		t.Fatalf("Scan failed: %v", scanErr)
	}
	if scanned != original {
		t.Errorf("mismatch: %q != %q", scanned, original)
	}

	var empty period.Period
	if err := empty.Scan(nil); err != nil {
		t.Fatalf("Scan(nil) failed: %v", err)
	}
	if !empty.IsZero() {
		t.Error("expected zero period after scanning nil")
	}
}
