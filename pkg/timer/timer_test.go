package timer

import (
	"testing"
	"time"
)

func TestUnlimitedNeverExpires(t *testing.T) {
	tm := New()
	if got := tm.RemainingTime(); got != -1 {
		t.Errorf("RemainingTime = %v, want -1", got)
	}
	if tm.Expired() {
		t.Error("unlimited timer expired")
	}
	if !tm.FinishedInTime() {
		t.Error("unlimited timer not finished in time")
	}
}

func TestExpiry(t *testing.T) {
	tm := New()
	tm.SetTimer(0.001)
	tm.Start()
	time.Sleep(5 * time.Millisecond)

	if got := tm.RemainingTime(); got != 0 {
		t.Errorf("RemainingTime = %v, want 0", got)
	}
	if !tm.Expired() {
		t.Error("timer not expired")
	}
	if tm.FinishedInTime() {
		t.Error("expired timer claims to have finished in time")
	}
}

func TestSetTimerClearsExpiry(t *testing.T) {
	tm := New()
	tm.SetTimer(0)
	tm.Start()
	_ = tm.RemainingTime()
	if !tm.Expired() {
		t.Fatal("zero budget not expired")
	}

	tm.SetTimer(10)
	tm.Start()
	if tm.Expired() {
		t.Error("expiry flag survived SetTimer")
	}
	if rem := tm.RemainingTime(); rem <= 0 {
		t.Errorf("RemainingTime = %v, want positive", rem)
	}
}

func TestRemainingTimeDecreases(t *testing.T) {
	tm := New()
	tm.SetTimer(10)
	tm.Start()

	first := tm.RemainingTime()
	time.Sleep(2 * time.Millisecond)
	second := tm.RemainingTime()
	if second >= first {
		t.Errorf("remaining time did not decrease: %v then %v", first, second)
	}
}
