package arcade

import (
	"errors"
	"math"
	"testing"
)

func TestMulBps(t *testing.T) {
	tests := []struct {
		amount, bps, want uint64
	}{
		{100, 500, 5},
		{5, 5000, 2},
		{1000, 10_000, 1000},
		{0, 500, 0},
		{19, 500, 0},
		{math.MaxUint64, 10_000, math.MaxUint64},
		{math.MaxUint64, 5000, math.MaxUint64 / 2},
	}
	for _, tt := range tests {
		if got := mulBps(tt.amount, tt.bps); got != tt.want {
			t.Errorf("mulBps(%d, %d) = %d, want %d", tt.amount, tt.bps, got, tt.want)
		}
	}
}

func TestSaturatingCounters(t *testing.T) {
	if got := incSat32(math.MaxUint32); got != math.MaxUint32 {
		t.Errorf("incSat32 overflowed: %d", got)
	}
	if got := addSat(math.MaxUint64-1, 5); got != math.MaxUint64 {
		t.Errorf("addSat overflowed: %d", got)
	}
	if _, ok := addChecked(math.MaxUint64, 1); ok {
		t.Error("addChecked should report overflow")
	}
}

func TestErrorMatchesByCode(t *testing.T) {
	err := ErrAlreadyRefunded.With("session", "s1", "player", "p")
	if !errors.Is(err, ErrAlreadyRefunded) {
		t.Fatal("annotated error should match its sentinel")
	}
	if errors.Is(err, ErrNoDeposit) {
		t.Fatal("different codes must not match")
	}
	if got := err.Error(); got != "player already refunded for session (player=p, session=s1)" {
		t.Errorf("message: %q", got)
	}
	if len(ErrAlreadyRefunded.Metadata) != 0 {
		t.Error("With must not mutate the sentinel")
	}
}
