package comm

import "encoding/json"

// message types exchanged over NATS and websocket
const (
	TypeRoomUpdate         = "room-update"
	TypeSubscribe          = "subscribe"
	TypeSubscribed         = "subscribed"
	TypeUnsubscribe        = "unsubscribe"
	TypePlayerDisconnected = "player-disconnected"
	TypeMembership         = "membership"
	TypeError              = "error"
)

// subjects
const (
	SocketServiceTopic = "socket.service"
	MembershipTopic    = "membership.check" // request/reply, answered by the room service
)

type WSMessage struct {
	Type     string          `json:"type"` // e.g. "subscribe", "room-update"
	Data     json.RawMessage `json:"data"`
	SocketId string          `json:"socketid,omitempty"`
}

// RoomSubscription binds a socket to a room's update channel.
type RoomSubscription struct {
	RoomID   string `json:"room_id"`
	PlayerID string `json:"player_id"`
}

type PlayerDisconnected struct {
	RoomID   string `json:"room_id"`
	PlayerID string `json:"player_id"`
	SocketId string `json:"socketid"`
}

type Membership struct {
	RoomID   string `json:"room_id"`
	PlayerID string `json:"player_id"`
	Member   bool   `json:"member"`
	Error    string `json:"error,omitempty"`
}

// Encode wraps data into a WSMessage and marshals the envelope.
func Encode(msgType string, data any, socketId string) ([]byte, error) {
	raw, err := json.Marshal(data)
	if err != nil {
		return nil, err
	}
	return json.Marshal(&WSMessage{Type: msgType, Data: raw, SocketId: socketId})
}

func Decode(payload []byte) (*WSMessage, error) {
	msg := &WSMessage{}
	if err := json.Unmarshal(payload, msg); err != nil {
		return nil, err
	}
	return msg, nil
}
