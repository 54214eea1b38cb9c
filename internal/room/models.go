package room

import (
	"encoding/json"
	"fmt"
	"slices"
	"time"
)

type Status string

const (
	StatusWaiting  Status = "waiting"  // waiting for players to join
	StatusPlaying  Status = "playing"  // game in progress
	StatusFinished Status = "finished" // set by game logic outside this package
)

// ParseStatus accepts the wire form of a status. An empty string is not a status.
func ParseStatus(s string) (Status, error) {
	switch st := Status(s); st {
	case StatusWaiting, StatusPlaying, StatusFinished:
		return st, nil
	}
	return "", fmt.Errorf("invalid status: %q", s)
}

const (
	MinPlayers      = 2
	MaxPlayersLimit = 8
)

// Config is captured once per room at creation time and never mutated.
type Config struct {
	EvenBuild    bool `json:"even_build"`
	StartingCash int  `json:"starting_cash"`
	MaxPlayers   int  `json:"max_players"`
}

func DefaultConfig() Config {
	return Config{EvenBuild: true, StartingCash: 1500, MaxPlayers: 4}
}

func (c Config) Validate() error {
	if c.StartingCash <= 0 {
		return fmt.Errorf("%w: starting_cash must be positive, got %d", ErrInvalidConfig, c.StartingCash)
	}
	if c.MaxPlayers < MinPlayers || c.MaxPlayers > MaxPlayersLimit {
		return fmt.Errorf("%w: max_players must be between %d and %d, got %d",
			ErrInvalidConfig, MinPlayers, MaxPlayersLimit, c.MaxPlayers)
	}
	return nil
}

type Room struct {
	RoomID              string          `json:"room_id"`
	Name                string          `json:"name"`
	Status              Status          `json:"status"`
	Config              Config          `json:"config"`
	Players             []string        `json:"players"` // join order, doubles as turn order
	HostPlayerID        string          `json:"host_player_id"`
	CurrentTurnPlayerID string          `json:"current_turn_player_id,omitempty"`
	TurnNumber          int             `json:"turn_number"`
	CreatedAt           time.Time       `json:"created_at"`
	UpdatedAt           time.Time       `json:"updated_at"`
	MaxPlayers          int             `json:"max_players"`
	Version             int64           `json:"version"`
	GameState           json.RawMessage `json:"game_state,omitempty"`
}

func (r *Room) clone() *Room {
	c := *r
	c.Players = slices.Clone(r.Players)
	if c.Players == nil {
		c.Players = []string{}
	}
	c.GameState = slices.Clone(r.GameState)
	return &c
}

func (r *Room) HasPlayer(playerID string) bool {
	return slices.Contains(r.Players, playerID)
}

// Player is a room-scoped identity, not an account.
type Player struct {
	PlayerID string `json:"player_id"`
	Name     string `json:"name"`
	Cash     int    `json:"cash"`
}

func (p *Player) clone() *Player {
	c := *p
	return &c
}
