package heartbeat

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/dkeye/Hearing/internal/core"
	"github.com/dkeye/Hearing/internal/domain"
)

func openTestStore(t *testing.T) *SQLiteStore {
	t.Helper()
	s, err := OpenSQLite(context.Background(), filepath.Join(t.TempDir(), "hb.db"))
	if err != nil {
		t.Fatalf("OpenSQLite: %v", err)
	}
	t.Cleanup(func() { _ = s.Shutdown() })
	return s
}

func TestSQLiteStore_RecordAndRecent(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()
	base := time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC)

	for i := range 3 {
		hb := core.Heartbeat{
			ConferenceID:  "c1",
			ParticipantID: "p1",
			Metrics: domain.HeartbeatMetrics{
				OutgoingPacketsSent:  uint64(100 * (i + 1)),
				IncomingPacketsLost:  int64(i),
				RoundTripTimeSeconds: 0.05,
				UserAgent:            "agent/1",
			},
			ReceivedAt: base.Add(time.Duration(i) * time.Second),
		}
		if err := s.Record(ctx, hb); err != nil {
			t.Fatalf("Record: %v", err)
		}
	}
	if err := s.Record(ctx, core.Heartbeat{ConferenceID: "c2", ParticipantID: "p9", ReceivedAt: base}); err != nil {
		t.Fatal(err)
	}

	got, err := s.Recent(ctx, "c1", 2)
	if err != nil {
		t.Fatalf("Recent: %v", err)
	}
	if len(got) != 2 {
		t.Fatalf("got %d heartbeats, want 2", len(got))
	}
	if got[0].Metrics.OutgoingPacketsSent != 300 || got[1].Metrics.OutgoingPacketsSent != 200 {
		t.Fatalf("order = %+v", got)
	}
	if !got[0].ReceivedAt.Equal(base.Add(2*time.Second)) {
		t.Fatalf("received_at = %v", got[0].ReceivedAt)
	}
	if got[0].Metrics.UserAgent != "agent/1" || got[0].Metrics.IncomingPacketsLost != 2 {
		t.Fatalf("metrics = %+v", got[0].Metrics)
	}
}

func TestSQLiteStore_CancelledContext(t *testing.T) {
	s := openTestStore(t)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if err := s.Record(ctx, core.Heartbeat{ConferenceID: "c1", ParticipantID: "p1"}); err == nil {
		t.Fatal("expected error on cancelled context")
	}
}

func TestOpenSQLite_RequiresDSN(t *testing.T) {
	if _, err := OpenSQLite(context.Background(), " "); err == nil {
		t.Fatal("expected error")
	}
}

func TestLogStore_NeverFails(t *testing.T) {
	if err := (LogStore{}).Record(context.Background(), core.Heartbeat{}); err != nil {
		t.Fatal(err)
	}
}
