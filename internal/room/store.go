package room

import (
	"cmp"
	"slices"
	"sync"
	"time"
)

// Index is a read-only view of the player -> room reverse index.
type Index interface {
	RoomOf(playerID string) (string, bool)
}

type indexView map[string]string

func (v indexView) RoomOf(playerID string) (string, bool) {
	roomID, ok := v[playerID]
	return roomID, ok
}

// Store is the authoritative in-memory table of rooms, their player records
// and the player -> room reverse index. One mutex guards all three maps so a
// reader never sees a player indexed to a room that does not list them.
//
// Every room returned by the store is a copy. Each committed mutation bumps
// the room's Version, removal included.
type Store struct {
	mu      sync.RWMutex
	rooms   map[string]*Room
	players map[string]*Player
	index   map[string]string
}

func NewStore() *Store {
	return &Store{
		rooms:   make(map[string]*Room),
		players: make(map[string]*Player),
		index:   make(map[string]string),
	}
}

func (s *Store) RoomOf(playerID string) (string, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	roomID, ok := s.index[playerID]
	return roomID, ok
}

func (s *Store) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.rooms)
}

// Insert adds a room together with the player records of its members.
func (s *Store) Insert(r *Room, players []*Player) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.insertLocked(r, players)
}

// Create runs guard, draws ids from newID until one is not taken, then builds
// and inserts the room, all inside one critical section.
func (s *Store) Create(newID func() string, build func(roomID string) (*Room, []*Player), guard func(Index) error) (*Room, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if guard != nil {
		if err := guard(indexView(s.index)); err != nil {
			return nil, err
		}
	}

	roomID := newID()
	for {
		if _, taken := s.rooms[roomID]; !taken {
			break
		}
		roomID = newID()
	}

	r, players := build(roomID)
	if err := s.insertLocked(r, players); err != nil {
		return nil, err
	}
	return r.clone(), nil
}

func (s *Store) insertLocked(r *Room, players []*Player) error {
	if _, ok := s.rooms[r.RoomID]; ok {
		return &ConflictError{RoomID: r.RoomID, Reason: "room id already exists"}
	}

	records := make(map[string]*Player, len(players))
	for _, p := range players {
		records[p.PlayerID] = p
	}
	seen := make(map[string]bool, len(r.Players))
	for _, id := range r.Players {
		if seen[id] {
			return &ConflictError{RoomID: r.RoomID, PlayerID: id, Reason: "duplicate member"}
		}
		seen[id] = true
		if _, ok := records[id]; !ok {
			return &ConflictError{RoomID: r.RoomID, PlayerID: id, Reason: "member has no player record"}
		}
		if other, ok := s.index[id]; ok {
			return &ConflictError{RoomID: r.RoomID, PlayerID: id, Reason: "player already mapped to room " + other}
		}
	}
	if len(records) != len(r.Players) {
		return &ConflictError{RoomID: r.RoomID, Reason: "player record without membership"}
	}
	if len(r.Players) > r.MaxPlayers {
		return &ConflictError{RoomID: r.RoomID, Reason: "members exceed max_players"}
	}

	r.Version = 1
	s.rooms[r.RoomID] = r.clone()
	for id, p := range records {
		s.players[id] = p.clone()
		s.index[id] = r.RoomID
	}
	return nil
}

func (s *Store) Get(roomID string) (*Room, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	r, ok := s.rooms[roomID]
	if !ok {
		return nil, false
	}
	return r.clone(), true
}

func (s *Store) Player(playerID string) (*Player, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	p, ok := s.players[playerID]
	if !ok {
		return nil, false
	}
	return p.clone(), true
}

// Players returns the player records of a room in join order.
func (s *Store) Players(roomID string) ([]*Player, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	r, ok := s.rooms[roomID]
	if !ok {
		return nil, false
	}
	players := make([]*Player, 0, len(r.Players))
	for _, id := range r.Players {
		players = append(players, s.players[id].clone())
	}
	return players, true
}

// List returns a snapshot of the rooms accepted by keep (all when keep is nil),
// ordered by creation time then id.
func (s *Store) List(keep func(*Room) bool) []*Room {
	s.mu.RLock()
	rooms := make([]*Room, 0, len(s.rooms))
	for _, r := range s.rooms {
		if keep == nil || keep(r) {
			rooms = append(rooms, r.clone())
		}
	}
	s.mu.RUnlock()

	slices.SortFunc(rooms, func(a, b *Room) int {
		if c := a.CreatedAt.Compare(b.CreatedAt); c != 0 {
			return c
		}
		return cmp.Compare(a.RoomID, b.RoomID)
	})
	return rooms
}

// Remove deletes a room and purges all of its members from the index.
func (s *Store) Remove(roomID string) (*Room, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	r, ok := s.rooms[roomID]
	if !ok {
		return nil, &NotFoundError{Kind: "room", ID: roomID}
	}
	s.removeLocked(r)
	return r.clone(), nil
}

// RemoveIf deletes the room only if pred holds for its current state.
func (s *Store) RemoveIf(roomID string, pred func(*Room) bool) (*Room, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	r, ok := s.rooms[roomID]
	if !ok || !pred(r) {
		return nil, false
	}
	s.removeLocked(r)
	return r.clone(), true
}

func (s *Store) removeLocked(r *Room) {
	r.Version++
	for _, id := range r.Players {
		delete(s.index, id)
		delete(s.players, id)
	}
	delete(s.rooms, r.RoomID)
}

// AddPlayer runs build under the lock against the live room and index; build
// checks preconditions without mutating and returns the player record to add.
// The record is appended to the membership and indexed in the same step.
func (s *Store) AddPlayer(roomID string, build func(r *Room, idx Index) (*Player, error), at time.Time) (*Room, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	r, ok := s.rooms[roomID]
	if !ok {
		return nil, &NotFoundError{Kind: "room", ID: roomID}
	}
	p, err := build(r, indexView(s.index))
	if err != nil {
		return nil, err
	}
	if other, ok := s.index[p.PlayerID]; ok {
		return nil, &ConflictError{RoomID: roomID, PlayerID: p.PlayerID, Reason: "player already mapped to room " + other}
	}
	if len(r.Players) >= r.MaxPlayers {
		return nil, &RoomFullError{RoomID: roomID, MaxPlayers: r.MaxPlayers}
	}

	r.Players = append(r.Players, p.PlayerID)
	s.players[p.PlayerID] = p.clone()
	s.index[p.PlayerID] = roomID
	r.UpdatedAt = at
	r.Version++
	return r.clone(), nil
}

// RemovePlayer drops playerID from the room and the index. An emptied room is
// deleted and deleted is reported true. Otherwise after runs under the lock
// with the index the player held, so turn and host can be fixed atomically.
func (s *Store) RemovePlayer(roomID, playerID string, after func(r *Room, removedAt int), at time.Time) (_ *Room, deleted bool, _ error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	r, ok := s.rooms[roomID]
	if !ok {
		return nil, false, &NotFoundError{Kind: "room", ID: roomID}
	}
	i := slices.Index(r.Players, playerID)
	if i < 0 {
		return nil, false, &NotFoundError{Kind: "player", ID: playerID}
	}

	r.Players = slices.Delete(r.Players, i, i+1)
	delete(s.index, playerID)
	delete(s.players, playerID)
	r.UpdatedAt = at
	r.Version++

	if len(r.Players) == 0 {
		delete(s.rooms, roomID)
		return r.clone(), true, nil
	}
	if after != nil {
		after(r, i)
	}
	return r.clone(), false, nil
}

// Update applies fn to a copy of the room and commits the copy only if fn
// succeeds. Membership may only change through AddPlayer and RemovePlayer.
func (s *Store) Update(roomID string, fn func(r *Room) error) (*Room, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	r, ok := s.rooms[roomID]
	if !ok {
		return nil, &NotFoundError{Kind: "room", ID: roomID}
	}
	next := r.clone()
	if err := fn(next); err != nil {
		return nil, err
	}
	if next.RoomID != r.RoomID || !slices.Equal(next.Players, r.Players) {
		return nil, &ConflictError{RoomID: roomID, Reason: "update changed room identity or membership"}
	}
	next.Version = r.Version + 1
	s.rooms[roomID] = next
	return next.clone(), nil
}
