package room

import (
	"context"
	"encoding/json"
	"errors"
	"slices"
	"time"

	"github.com/google/uuid"
	log "github.com/sirupsen/logrus"
)

// GameStateFunc materializes the opaque game state attached to a room when
// play starts. It is called outside the store lock.
type GameStateFunc func(cfg Config) (json.RawMessage, error)

type CreateRequest struct {
	Name         string
	HostName     string
	HostPlayerID string // optional; a uuid is minted when empty
	Config       Config
}

type JoinRequest struct {
	PlayerName string
	PlayerID   string // optional; a uuid is minted when empty
}

// Membership describes a room after a player left it.
type Membership struct {
	RoomID              string   `json:"room_id"`
	Members             []string `json:"members"`
	HostPlayerID        string   `json:"host_player_id,omitempty"`
	CurrentTurnPlayerID string   `json:"current_turn_player_id,omitempty"`
	Deleted             bool     `json:"deleted"`
}

// Manager drives the room lifecycle. All state lives in the Store; the
// notifier is only called after the store lock has been released.
type Manager struct {
	store       *Store
	codes       CodeGenerator
	notifier    Notifier
	gameState   GameStateFunc
	now         func() time.Time
	newPlayerID func() string
}

type Option func(*Manager)

func WithNotifier(n Notifier) Option { return func(m *Manager) { m.notifier = n } }

func WithCodeGenerator(g CodeGenerator) Option { return func(m *Manager) { m.codes = g } }

func WithGameState(f GameStateFunc) Option { return func(m *Manager) { m.gameState = f } }

func WithClock(now func() time.Time) Option { return func(m *Manager) { m.now = now } }

func WithPlayerIDs(f func() string) Option { return func(m *Manager) { m.newPlayerID = f } }

func NewManager(store *Store, opts ...Option) *Manager {
	m := &Manager{
		store:       store,
		codes:       RandomCode{},
		notifier:    NoopNotifier{},
		gameState:   func(Config) (json.RawMessage, error) { return json.RawMessage(`{}`), nil },
		now:         time.Now,
		newPlayerID: func() string { return uuid.New().String() },
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// CreateRoom mints a room with the host as its only member. Nothing is
// broadcast since nobody else can be listening yet.
func (m *Manager) CreateRoom(req CreateRequest) (*Room, *Player, error) {
	cfg := req.Config
	if err := cfg.Validate(); err != nil {
		return nil, nil, err
	}

	hostID := req.HostPlayerID
	if hostID == "" {
		hostID = m.newPlayerID()
	}
	host := &Player{PlayerID: hostID, Name: req.HostName, Cash: cfg.StartingCash}
	at := m.now()

	r, err := m.store.Create(m.codes.Generate,
		func(roomID string) (*Room, []*Player) {
			return &Room{
				RoomID:       roomID,
				Name:         req.Name,
				Status:       StatusWaiting,
				Config:       cfg,
				Players:      []string{hostID},
				HostPlayerID: hostID,
				CreatedAt:    at,
				UpdatedAt:    at,
				MaxPlayers:   cfg.MaxPlayers,
			}, []*Player{host}
		},
		func(idx Index) error { return CanCreateOrJoin(idx, hostID) },
	)
	if err != nil {
		m.logFault("create", "", err)
		return nil, nil, err
	}

	log.Infof("room %s created by player %s (max %d players)", r.RoomID, hostID, r.MaxPlayers)
	return r, host.clone(), nil
}

func (m *Manager) JoinRoom(roomID string, req JoinRequest) (*Player, error) {
	playerID := req.PlayerID
	if playerID == "" {
		playerID = m.newPlayerID()
	}

	var p *Player
	r, err := m.store.AddPlayer(roomID, func(r *Room, idx Index) (*Player, error) {
		if r.Status != StatusWaiting {
			return nil, &StateError{RoomID: roomID, Status: r.Status, Op: "join"}
		}
		if len(r.Players) >= r.MaxPlayers {
			return nil, &RoomFullError{RoomID: roomID, MaxPlayers: r.MaxPlayers}
		}
		if err := CanCreateOrJoin(idx, playerID); err != nil {
			return nil, err
		}
		p = &Player{PlayerID: playerID, Name: req.PlayerName, Cash: r.Config.StartingCash}
		return p, nil
	}, m.now())
	if err != nil {
		m.logFault("join", roomID, err)
		return nil, err
	}

	log.Infof("player %s joined room %s (%d/%d)", playerID, roomID, len(r.Players), r.MaxPlayers)
	m.notify(EventPlayerJoined, r)
	return p.clone(), nil
}

// LeaveRoom removes a member. The room is deleted when it empties; otherwise
// a departing current-turn player hands the turn to the next surviving player
// in join order and a departing host hands over to the earliest joiner.
func (m *Manager) LeaveRoom(roomID, playerID string) (*Membership, error) {
	wasHost := false
	r, deleted, err := m.store.RemovePlayer(roomID, playerID, func(r *Room, removedAt int) {
		if r.HostPlayerID == playerID {
			wasHost = true
			r.HostPlayerID = r.Players[0]
		}
		if r.CurrentTurnPlayerID == playerID {
			r.CurrentTurnPlayerID = r.Players[removedAt%len(r.Players)]
		}
	}, m.now())
	if err != nil {
		m.logFault("leave", roomID, err)
		return nil, err
	}

	if deleted {
		log.Infof("player %s left room %s, room is empty and was deleted", playerID, roomID)
		m.notifyDeleted(EventPlayerLeft, r)
		return &Membership{RoomID: roomID, Members: []string{}, Deleted: true}, nil
	}

	log.Infof("player %s left room %s (%d remaining)", playerID, roomID, len(r.Players))
	if wasHost {
		log.Infof("room %s host handed over to %s", roomID, r.HostPlayerID)
	}
	m.notify(EventPlayerLeft, r)
	return &Membership{
		RoomID:              r.RoomID,
		Members:             r.Players,
		HostPlayerID:        r.HostPlayerID,
		CurrentTurnPlayerID: r.CurrentTurnPlayerID,
	}, nil
}

// StartGame moves a waiting room with at least MinPlayers members to playing.
// A nil error is the success case; the room is untouched otherwise.
func (m *Manager) StartGame(roomID string) error {
	snapshot, ok := m.store.Get(roomID)
	if !ok {
		return &NotFoundError{Kind: "room", ID: roomID}
	}
	if err := startable(snapshot); err != nil {
		return err
	}
	state, err := m.gameState(snapshot.Config)
	if err != nil {
		log.Errorf("room %s: building game state failed: %s", roomID, err)
		return err
	}

	at := m.now()
	r, err := m.store.Update(roomID, func(r *Room) error {
		if err := startable(r); err != nil {
			return err
		}
		r.Status = StatusPlaying
		r.CurrentTurnPlayerID = r.Players[0]
		r.GameState = state
		r.UpdatedAt = at
		return nil
	})
	if err != nil {
		m.logFault("start", roomID, err)
		return err
	}

	log.Infof("room %s started with %d players, %s to move", roomID, len(r.Players), r.CurrentTurnPlayerID)
	m.notify(EventGameStarted, r)
	return nil
}

func startable(r *Room) error {
	if r.Status != StatusWaiting {
		return &StateError{RoomID: r.RoomID, Status: r.Status, Op: "start"}
	}
	if len(r.Players) < MinPlayers {
		return &StateError{RoomID: r.RoomID, Status: r.Status, Op: "start", Reason: "not enough players"}
	}
	return nil
}

// EndTurn passes the turn round-robin in join order and bumps turn_number.
func (m *Manager) EndTurn(roomID string) error {
	at := m.now()
	r, err := m.store.Update(roomID, func(r *Room) error {
		if r.Status != StatusPlaying {
			return &StateError{RoomID: roomID, Status: r.Status, Op: "end turn"}
		}
		// -1 if the current player is unknown, which restarts at players[0]
		i := slices.Index(r.Players, r.CurrentTurnPlayerID)
		r.CurrentTurnPlayerID = r.Players[(i+1)%len(r.Players)]
		r.TurnNumber++
		r.UpdatedAt = at
		return nil
	})
	if err != nil {
		m.logFault("end turn", roomID, err)
		return err
	}

	log.Debugf("room %s turn %d: %s to move", roomID, r.TurnNumber, r.CurrentTurnPlayerID)
	m.notify(EventTurnEnded, r)
	return nil
}

// DeleteRoom removes a room administratively, releasing all of its members.
func (m *Manager) DeleteRoom(roomID string) (*Room, error) {
	r, err := m.store.Remove(roomID)
	if err != nil {
		return nil, err
	}
	log.Infof("room %s deleted with %d members", roomID, len(r.Players))
	m.notifyDeleted(EventRoomDeleted, r)
	return r, nil
}

// SweepIdle deletes waiting rooms not updated for maxIdle and returns their ids.
func (m *Manager) SweepIdle(maxIdle time.Duration) []string {
	cutoff := m.now().Add(-maxIdle)
	idle := func(r *Room) bool {
		return r.Status == StatusWaiting && r.UpdatedAt.Before(cutoff)
	}

	var removed []string
	for _, candidate := range m.store.List(idle) {
		// re-checked under the lock; the room may have changed since listing
		r, ok := m.store.RemoveIf(candidate.RoomID, idle)
		if !ok {
			continue
		}
		log.Infof("room %s idle since %s, deleted", r.RoomID, r.UpdatedAt.Format(time.RFC3339))
		m.notifyDeleted(EventRoomDeleted, r)
		removed = append(removed, r.RoomID)
	}
	return removed
}

// ListRooms returns a snapshot, filtered by status unless status is empty.
func (m *Manager) ListRooms(status Status) []*Room {
	if status == "" {
		return m.store.List(nil)
	}
	return m.store.List(func(r *Room) bool { return r.Status == status })
}

func (m *Manager) GetRoom(roomID string) (*Room, error) {
	r, ok := m.store.Get(roomID)
	if !ok {
		return nil, &NotFoundError{Kind: "room", ID: roomID}
	}
	return r, nil
}

func (m *Manager) GetPlayer(playerID string) (*Player, error) {
	p, ok := m.store.Player(playerID)
	if !ok {
		return nil, &NotFoundError{Kind: "player", ID: playerID}
	}
	return p, nil
}

func (m *Manager) PlayersInRoom(roomID string) ([]*Player, error) {
	players, ok := m.store.Players(roomID)
	if !ok {
		return nil, &NotFoundError{Kind: "room", ID: roomID}
	}
	return players, nil
}

func (m *Manager) notify(event string, r *Room) {
	m.publish(Notification{
		Type:                event,
		RoomID:              r.RoomID,
		Members:             slices.Clone(r.Players),
		HostPlayerID:        r.HostPlayerID,
		Status:              r.Status,
		CurrentTurnPlayerID: r.CurrentTurnPlayerID,
		TurnNumber:          r.TurnNumber,
		Version:             r.Version,
		At:                  r.UpdatedAt,
	})
}

// notifyDeleted announces a room that no longer exists: it has no members.
func (m *Manager) notifyDeleted(event string, r *Room) {
	m.publish(Notification{
		Type:       event,
		RoomID:     r.RoomID,
		Members:    []string{},
		Status:     r.Status,
		TurnNumber: r.TurnNumber,
		Version:    r.Version,
		At:         m.now(),
	})
}

func (m *Manager) publish(n Notification) {
	if n.Members == nil {
		n.Members = []string{}
	}
	if err := m.notifier.Notify(context.Background(), n); err != nil {
		log.Errorf("room %s: %s notification not delivered: %s", n.RoomID, n.Type, err)
	}
}

// logFault surfaces store invariant violations loudly; user errors stay quiet.
func (m *Manager) logFault(op, roomID string, err error) {
	var conflict *ConflictError
	if errors.As(err, &conflict) {
		log.Errorf("%s room %s: store invariant violated: %s", op, roomID, err)
	}
}
