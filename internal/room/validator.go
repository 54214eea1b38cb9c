package room

// CanCreateOrJoin fails if playerID already belongs to a room. It only reads
// the index and is checked before every create and join.
func CanCreateOrJoin(idx Index, playerID string) error {
	if roomID, ok := idx.RoomOf(playerID); ok {
		return &AlreadyInRoomError{PlayerID: playerID, RoomID: roomID}
	}
	return nil
}
