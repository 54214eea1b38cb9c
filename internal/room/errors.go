package room

import (
	"errors"
	"fmt"
)

var (
	ErrNotFound      = errors.New("not found")
	ErrAlreadyInRoom = errors.New("player already in a room")
	ErrInvalidState  = errors.New("invalid room state")
	ErrRoomFull      = errors.New("room is full")
	ErrConflict      = errors.New("room store conflict")
	ErrInvalidConfig = errors.New("invalid room config")
)

// NotFoundError reports a missing room, or a player that is not a member.
type NotFoundError struct {
	Kind string // "room" or "player"
	ID   string
}

func (e *NotFoundError) Error() string {
	return fmt.Sprintf("%s %s not found", e.Kind, e.ID)
}

func (e *NotFoundError) Is(target error) bool { return target == ErrNotFound }

type AlreadyInRoomError struct {
	PlayerID string
	RoomID   string
}

func (e *AlreadyInRoomError) Error() string {
	return fmt.Sprintf("player %s is already in room %s", e.PlayerID, e.RoomID)
}

func (e *AlreadyInRoomError) Is(target error) bool { return target == ErrAlreadyInRoom }

// StateError is returned when the room status (or size) forbids the operation.
// The room is left unchanged.
type StateError struct {
	RoomID string
	Status Status
	Op     string
	Reason string
}

func (e *StateError) Error() string {
	if e.Reason != "" {
		return fmt.Sprintf("cannot %s room %s: %s", e.Op, e.RoomID, e.Reason)
	}
	return fmt.Sprintf("cannot %s room %s in status %s", e.Op, e.RoomID, e.Status)
}

func (e *StateError) Is(target error) bool { return target == ErrInvalidState }

type RoomFullError struct {
	RoomID     string
	MaxPlayers int
}

func (e *RoomFullError) Error() string {
	return fmt.Sprintf("room %s is full (%d players)", e.RoomID, e.MaxPlayers)
}

func (e *RoomFullError) Is(target error) bool { return target == ErrRoomFull }

// ConflictError means a store invariant would have been broken. Callers treat
// it as a programming fault, never as a user error.
type ConflictError struct {
	RoomID   string
	PlayerID string
	Reason   string
}

func (e *ConflictError) Error() string {
	if e.PlayerID != "" {
		return fmt.Sprintf("conflict on room %s, player %s: %s", e.RoomID, e.PlayerID, e.Reason)
	}
	return fmt.Sprintf("conflict on room %s: %s", e.RoomID, e.Reason)
}

func (e *ConflictError) Is(target error) bool { return target == ErrConflict }
