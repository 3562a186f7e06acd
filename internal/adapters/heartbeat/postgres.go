// Package heartbeat records call-quality samples routed through the hub.
package heartbeat

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/dkeye/Hearing/internal/core"
)

var postgresMigrations = []string{
	`CREATE TABLE IF NOT EXISTS heartbeats (
		id BIGSERIAL PRIMARY KEY,
		conference_id TEXT NOT NULL,
		participant_id TEXT NOT NULL,
		outgoing_packets_sent BIGINT NOT NULL,
		outgoing_bytes_sent BIGINT NOT NULL,
		incoming_packets_received BIGINT NOT NULL,
		incoming_packets_lost BIGINT NOT NULL,
		incoming_jitter DOUBLE PRECISION NOT NULL,
		round_trip_time_seconds DOUBLE PRECISION NOT NULL,
		user_agent TEXT NOT NULL DEFAULT '',
		received_at TIMESTAMPTZ NOT NULL
	)`,
	`CREATE INDEX IF NOT EXISTS idx_heartbeats_conference ON heartbeats (conference_id, received_at DESC)`,
}

type PostgresStore struct {
	pool *pgxpool.Pool
}

// OpenPostgres connects, pings and migrates.
func OpenPostgres(ctx context.Context, dsn string) (*PostgresStore, error) {
	p, err := pgxpool.New(ctx, dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to connect database: %w", err)
	}
	if err := p.Ping(ctx); err != nil {
		p.Close()
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}
	for _, s := range postgresMigrations {
		if _, err := p.Exec(ctx, strings.TrimSpace(s)); err != nil {
			p.Close()
			return nil, fmt.Errorf("failed to run migration: %w", err)
		}
	}
	return &PostgresStore{pool: p}, nil
}

func (s *PostgresStore) Record(ctx context.Context, hb core.Heartbeat) error {
	m := hb.Metrics
	_, err := s.pool.Exec(ctx,
		`INSERT INTO heartbeats (conference_id, participant_id, outgoing_packets_sent, outgoing_bytes_sent,
		   incoming_packets_received, incoming_packets_lost, incoming_jitter, round_trip_time_seconds,
		   user_agent, received_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)`,
		hb.ConferenceID, hb.ParticipantID, int64(m.OutgoingPacketsSent), int64(m.OutgoingBytesSent),
		int64(m.IncomingPacketsRecv), m.IncomingPacketsLost, m.IncomingJitter, m.RoundTripTimeSeconds,
		m.UserAgent, hb.ReceivedAt.UTC())
	return err
}

func (s *PostgresStore) Recent(ctx context.Context, conferenceID string, limit int) ([]core.Heartbeat, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT conference_id, participant_id, outgoing_packets_sent, outgoing_bytes_sent,
		   incoming_packets_received, incoming_packets_lost, incoming_jitter, round_trip_time_seconds,
		   user_agent, received_at
		 FROM heartbeats WHERE conference_id = $1
		 ORDER BY received_at DESC LIMIT $2`,
		conferenceID, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []core.Heartbeat
	for rows.Next() {
		var hb core.Heartbeat
		var sent, bytes, recv int64
		var at time.Time
		if err := rows.Scan(&hb.ConferenceID, &hb.ParticipantID, &sent, &bytes, &recv,
			&hb.Metrics.IncomingPacketsLost, &hb.Metrics.IncomingJitter, &hb.Metrics.RoundTripTimeSeconds,
			&hb.Metrics.UserAgent, &at); err != nil {
			return nil, err
		}
		hb.Metrics.OutgoingPacketsSent = uint64(sent)
		hb.Metrics.OutgoingBytesSent = uint64(bytes)
		hb.Metrics.IncomingPacketsRecv = uint64(recv)
		hb.ReceivedAt = at.UTC()
		out = append(out, hb)
	}
	return out, rows.Err()
}

func (s *PostgresStore) Shutdown() {
	s.pool.Close()
}
