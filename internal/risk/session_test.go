package risk

import (
	"testing"
	"time"
)

func TestAccountSession_PeakEquityTracksHighWaterMark(t *testing.T) {
	s := newAccountSession()
	now := time.Date(2026, 7, 30, 10, 0, 0, 0, time.UTC)

	peak, _ := s.observe(now, 100_000)
	if peak != 100_000 {
		t.Fatalf("expected peak 100000, got %f", peak)
	}
	peak, _ = s.observe(now, 80_000)
	if peak != 100_000 {
		t.Fatalf("expected peak to remain 100000 after a drop, got %f", peak)
	}
	peak, _ = s.observe(now, 120_000)
	if peak != 120_000 {
		t.Fatalf("expected peak to rise to 120000, got %f", peak)
	}
}

func TestAccountSession_DailyLossResetsAtUTCMidnight(t *testing.T) {
	s := newAccountSession()
	day1 := time.Date(2026, 7, 30, 23, 0, 0, 0, time.UTC)
	s.recordRealized(day1, -1_000)
	_, pnl := s.observe(day1, 50_000)
	if pnl != -1_000 {
		t.Fatalf("expected pnl -1000, got %f", pnl)
	}

	day2 := time.Date(2026, 7, 31, 1, 0, 0, 0, time.UTC)
	_, pnl = s.observe(day2, 50_000)
	if pnl != 0 {
		t.Fatalf("expected pnl reset to 0 after UTC midnight, got %f", pnl)
	}
}

func TestAccountSession_TradeFrequencyRollingWindow(t *testing.T) {
	s := newAccountSession()
	base := time.Date(2026, 7, 30, 10, 0, 0, 0, time.UTC)

	for i := 0; i < 3; i++ {
		s.recordTrade(base)
	}
	if count := s.tradeCount(base); count != 3 {
		t.Fatalf("expected count 3, got %d", count)
	}

	later := base.Add(61 * time.Second)
	if count := s.tradeCount(later); count != 0 {
		t.Fatalf("expected window to have expired, got %d", count)
	}
}

func TestSessionStore_GetIsStableAcrossCalls(t *testing.T) {
	store := newSessionStore()
	a := store.get("acct-1")
	b := store.get("acct-1")
	if a != b {
		t.Fatal("expected the same session instance for the same account")
	}
}
