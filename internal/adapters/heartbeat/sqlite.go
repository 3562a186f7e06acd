package heartbeat

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	_ "modernc.org/sqlite"

	"github.com/dkeye/Hearing/internal/core"
)

const sqliteSchema = `CREATE TABLE IF NOT EXISTS heartbeats (
	id INTEGER PRIMARY KEY AUTOINCREMENT,
	conference_id TEXT NOT NULL,
	participant_id TEXT NOT NULL,
	outgoing_packets_sent INTEGER NOT NULL,
	outgoing_bytes_sent INTEGER NOT NULL,
	incoming_packets_received INTEGER NOT NULL,
	incoming_packets_lost INTEGER NOT NULL,
	incoming_jitter REAL NOT NULL,
	round_trip_time_seconds REAL NOT NULL,
	user_agent TEXT NOT NULL DEFAULT '',
	received_at INTEGER NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_heartbeats_conference ON heartbeats (conference_id, received_at DESC);`

type SQLiteStore struct {
	db *sql.DB
}

// OpenSQLite opens dsn with the modernc driver and creates the schema.
func OpenSQLite(ctx context.Context, dsn string) (*SQLiteStore, error) {
	if strings.TrimSpace(dsn) == "" {
		return nil, fmt.Errorf("sqlite dsn is required")
	}
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("open sqlite db: %w", err)
	}
	// one writer; also keeps a ":memory:" database alive across calls
	db.SetMaxOpenConns(1)
	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("ping sqlite db: %w", err)
	}
	if _, err := db.ExecContext(ctx, sqliteSchema); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("create schema: %w", err)
	}
	return &SQLiteStore{db: db}, nil
}

func (s *SQLiteStore) Record(ctx context.Context, hb core.Heartbeat) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	m := hb.Metrics
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO heartbeats (conference_id, participant_id, outgoing_packets_sent, outgoing_bytes_sent,
		   incoming_packets_received, incoming_packets_lost, incoming_jitter, round_trip_time_seconds,
		   user_agent, received_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		hb.ConferenceID, hb.ParticipantID, int64(m.OutgoingPacketsSent), int64(m.OutgoingBytesSent),
		int64(m.IncomingPacketsRecv), m.IncomingPacketsLost, m.IncomingJitter, m.RoundTripTimeSeconds,
		m.UserAgent, hb.ReceivedAt.UTC().UnixMilli())
	return err
}

func (s *SQLiteStore) Recent(ctx context.Context, conferenceID string, limit int) ([]core.Heartbeat, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT conference_id, participant_id, outgoing_packets_sent, outgoing_bytes_sent,
		   incoming_packets_received, incoming_packets_lost, incoming_jitter, round_trip_time_seconds,
		   user_agent, received_at
		 FROM heartbeats WHERE conference_id = ?
		 ORDER BY received_at DESC, id DESC LIMIT ?`,
		conferenceID, limit)
	if err != nil {
		return nil, err
	}
	defer func() {
		_ = rows.Close()
	}()

	var out []core.Heartbeat
	for rows.Next() {
		var hb core.Heartbeat
		var sent, bytes, recv, at int64
		if err := rows.Scan(&hb.ConferenceID, &hb.ParticipantID, &sent, &bytes, &recv,
			&hb.Metrics.IncomingPacketsLost, &hb.Metrics.IncomingJitter, &hb.Metrics.RoundTripTimeSeconds,
			&hb.Metrics.UserAgent, &at); err != nil {
			return nil, err
		}
		hb.Metrics.OutgoingPacketsSent = uint64(sent)
		hb.Metrics.OutgoingBytesSent = uint64(bytes)
		hb.Metrics.IncomingPacketsRecv = uint64(recv)
		hb.ReceivedAt = time.UnixMilli(at).UTC()
		out = append(out, hb)
	}
	return out, rows.Err()
}

func (s *SQLiteStore) Shutdown() error {
	return s.db.Close()
}
