package clock

import (
	"testing"
	"time"
)

func TestFixed_ReturnsSameInstant(t *testing.T) {
	at := time.Date(2024, 3, 15, 14, 30, 0, 0, time.FixedZone("X", 3600))
	c := NewFixed(at)

	if !c.Now().Equal(at) {
		t.Errorf("expected %v, got %v", at, c.Now())
	}
	if c.Now().Location() != time.UTC {
		t.Errorf("expected UTC, got %v", c.Now().Location())
	}
}

func TestSystem_IsUTCAndCurrent(t *testing.T) {
	before := time.Now()
	got := NewSystem().Now()

	if got.Location() != time.UTC {
		t.Errorf("expected UTC, got %v", got.Location())
	}
	if got.Before(before.Add(-time.Second)) {
		t.Errorf("system clock lagging: %v before %v", got, before)
	}
}
