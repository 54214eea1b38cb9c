package archive

import (
	"context"
	"fmt"

	"github.com/avvvet/rockefeller-services/internal/room"
	"github.com/jackc/pgx/v5/pgconn"
	log "github.com/sirupsen/logrus"
)

var schema = []string{
	`CREATE TABLE IF NOT EXISTS room_events (
		id                     BIGSERIAL PRIMARY KEY,
		event_type             TEXT NOT NULL,
		room_id                TEXT NOT NULL,
		members                TEXT[] NOT NULL,
		host_player_id         TEXT,
		status                 TEXT,
		current_turn_player_id TEXT,
		turn_number            INT NOT NULL DEFAULT 0,
		version                BIGINT NOT NULL DEFAULT 0,
		occurred_at            TIMESTAMPTZ NOT NULL
	)`,
	`ALTER TABLE room_events ADD COLUMN IF NOT EXISTS version BIGINT NOT NULL DEFAULT 0`,
	`CREATE INDEX IF NOT EXISTS room_events_room_id_idx ON room_events (room_id, occurred_at)`,
}

const insertEvent = `INSERT INTO room_events
	(event_type, room_id, members, host_player_id, status, current_turn_player_id, turn_number, version, occurred_at)
	VALUES ($1, $2, $3, NULLIF($4, ''), NULLIF($5, ''), NULLIF($6, ''), $7, $8, $9)`

// Execer is satisfied by *pgxpool.Pool.
type Execer interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
}

type PostgresArchive struct {
	db Execer
}

// NewPostgresArchive creates the room_events table if it is missing.
func NewPostgresArchive(ctx context.Context, db Execer) (*PostgresArchive, error) {
	for _, stmt := range schema {
		if _, err := db.Exec(ctx, stmt); err != nil {
			return nil, fmt.Errorf("create room_events schema: %w", err)
		}
	}
	log.Info("room_events table ready")
	return &PostgresArchive{db: db}, nil
}

func (a *PostgresArchive) Notify(ctx context.Context, n room.Notification) error {
	rec := newRecord(n)
	_, err := a.db.Exec(ctx, insertEvent,
		rec.Type,
		rec.RoomID,
		rec.Members,
		rec.HostPlayerID,
		rec.Status,
		rec.CurrentTurnPlayerID,
		rec.TurnNumber,
		rec.Version,
		rec.OccurredAt,
	)
	if err != nil {
		return fmt.Errorf("archive %s for room %s: %w", rec.Type, rec.RoomID, err)
	}
	return nil
}
