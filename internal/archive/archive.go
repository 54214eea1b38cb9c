// Package archive keeps an append-only audit trail of room notifications.
// Nothing here is ever read back into the room store.
package archive

import (
	"time"

	"github.com/avvvet/rockefeller-services/internal/room"
)

const Collection = "room_events"

// Record is one archived notification.
type Record struct {
	Type                string    `bson:"type"`
	RoomID              string    `bson:"room_id"`
	Members             []string  `bson:"members"`
	HostPlayerID        string    `bson:"host_player_id,omitempty"`
	Status              string    `bson:"status,omitempty"`
	CurrentTurnPlayerID string    `bson:"current_turn_player_id,omitempty"`
	TurnNumber          int       `bson:"turn_number"`
	Version             int64     `bson:"version"`
	OccurredAt          time.Time `bson:"occurred_at"`
	ExpiresAt           time.Time `bson:"expires_at,omitempty"`
}

func newRecord(n room.Notification) Record {
	members := n.Members
	if members == nil {
		members = []string{}
	}
	at := n.At
	if at.IsZero() {
		at = time.Now()
	}
	return Record{
		Type:                n.Type,
		RoomID:              n.RoomID,
		Members:             members,
		HostPlayerID:        n.HostPlayerID,
		Status:              string(n.Status),
		CurrentTurnPlayerID: n.CurrentTurnPlayerID,
		TurnNumber:          n.TurnNumber,
		Version:             n.Version,
		OccurredAt:          at.UTC(),
	}
}
