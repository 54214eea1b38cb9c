package ws

import (
	"encoding/json"
	"errors"
	"sync"

	"github.com/avvvet/rockefeller-services/internal/comm"
	"github.com/avvvet/rockefeller-services/internal/relay"
	"github.com/gorilla/websocket"
	log "github.com/sirupsen/logrus"
)

var ErrUnknownSocket = errors.New("unknown socket")

type Publisher interface {
	Publish(topic string, payload []byte) error
}

// TokenVerifier checks a relay connection token and returns its claims.
type TokenVerifier interface {
	Verify(token string) (*relay.Claims, error)
}

// MembershipChecker asks the room service whether a player is in a room.
type MembershipChecker interface {
	IsMember(roomId, playerId string) (bool, error)
}

// Client serializes writes to one websocket connection.
type Client struct {
	mu   sync.Mutex
	conn *websocket.Conn
}

func (c *Client) WriteJSON(v interface{}) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.conn.WriteJSON(v)
}

func (c *Client) Close() error {
	return c.conn.Close()
}

type subscribeRequest struct {
	comm.RoomSubscription
	Token string `json:"token,omitempty"`
}

type Ws struct {
	connMap sync.Map // to keep track of socket connection with socketId

	mu      sync.Mutex
	subs    map[string]comm.RoomSubscription // socketId -> subscription
	holders map[comm.RoomSubscription]int    // open sockets per (room, player)

	Broker  Publisher
	Tokens  TokenVerifier     // nil accepts any player id
	Members MembershipChecker // nil skips the membership check
}

func NewWs() *Ws {
	return &Ws{
		subs:    make(map[string]comm.RoomSubscription),
		holders: make(map[comm.RoomSubscription]int),
	}
}

// handle socket message from web clients
func (s *Ws) SocketMessage(socketId string, message *comm.WSMessage) {
	switch message.Type {
	case comm.TypeSubscribe:
		s.handleSubscribe(socketId, message)
	case comm.TypeUnsubscribe:
		s.dropRoom(socketId)
	default:
		log.Warnf("unknown event received: %s", message.Type)
		s.sendError(socketId, "unknown message type "+message.Type)
	}
}

func (s *Ws) handleSubscribe(socketId string, msg *comm.WSMessage) {
	var payload subscribeRequest
	if err := json.Unmarshal(msg.Data, &payload); err != nil {
		log.Errorf("Error: invalid subscribe data %s", err)
		s.sendError(socketId, "invalid subscribe payload")
		return
	}

	if payload.RoomID == "" || payload.PlayerID == "" {
		s.sendError(socketId, "room_id and player_id are required")
		return
	}

	if s.Tokens != nil {
		claims, err := s.Tokens.Verify(payload.Token)
		if err != nil || claims.Subject != payload.PlayerID || claims.Room != payload.RoomID {
			log.Warnf("socket %s: rejected subscription of %s to room %s", socketId, payload.PlayerID, payload.RoomID)
			s.sendError(socketId, "invalid connection token")
			return
		}
	}

	if s.Members != nil {
		member, err := s.Members.IsMember(payload.RoomID, payload.PlayerID)
		if err != nil {
			log.Errorf("socket %s: membership check of %s in room %s failed: %s", socketId, payload.PlayerID, payload.RoomID, err)
			s.sendError(socketId, "membership check failed")
			return
		}
		if !member {
			log.Warnf("socket %s: %s is not a member of room %s", socketId, payload.PlayerID, payload.RoomID)
			s.sendError(socketId, "player is not a member of the room")
			return
		}
	}

	s.StoreRoom(socketId, payload.RoomSubscription)
	log.Infof("socket %s subscribed player %s to room %s", socketId, payload.PlayerID, payload.RoomID)

	if err := s.Send(socketId, comm.TypeSubscribed, payload.RoomSubscription); err != nil {
		log.Errorf("socket %s: subscribe ack failed: %s", socketId, err)
	}
}

// HandleDisconnect forgets the socket. When it was the player's last socket
// in the room, the room service is told the player is gone.
func (s *Ws) HandleDisconnect(socketId string) {
	s.connMap.Delete(socketId)

	sub, last, ok := s.dropRoom(socketId)
	if !ok {
		return
	}
	if !last {
		log.Debugf("socket %s closed, player %s still connected to room %s", socketId, sub.PlayerID, sub.RoomID)
		return
	}

	payload, err := comm.Encode(comm.TypePlayerDisconnected, comm.PlayerDisconnected{
		RoomID:   sub.RoomID,
		PlayerID: sub.PlayerID,
		SocketId: socketId,
	}, socketId)
	if err != nil {
		log.Errorf("Failed to marshal player-disconnected: %v", err)
		return
	}

	if err := s.Broker.Publish(comm.SocketServiceTopic, payload); err != nil {
		log.Errorf("Failed to publish to NATS topic %s: %v", comm.SocketServiceTopic, err)
		return
	}
	log.Infof("player %s disconnected from room %s", sub.PlayerID, sub.RoomID)
}

func (s *Ws) Send(socketId, msgType string, data interface{}) error {
	raw, err := json.Marshal(data)
	if err != nil {
		return err
	}
	return s.Forward(socketId, &comm.WSMessage{Type: msgType, Data: raw})
}

// Forward writes an already built message to the socket.
func (s *Ws) Forward(socketId string, m *comm.WSMessage) error {
	c, ok := s.GetConnection(socketId)
	if !ok {
		return ErrUnknownSocket
	}
	return c.WriteJSON(m)
}

func (s *Ws) sendError(socketId, errorMsg string) {
	if err := s.Send(socketId, comm.TypeError, map[string]string{"error": errorMsg}); err != nil {
		log.Errorf("Failed to send error message to client: %v", err)
	}
}

func (s *Ws) StoreConnection(socketId string, conn *websocket.Conn) {
	s.connMap.Store(socketId, &Client{conn: conn})
}

func (s *Ws) GetConnection(socketId string) (*Client, bool) {
	c, ok := s.connMap.Load(socketId)
	if !ok {
		return nil, false
	}
	return c.(*Client), true
}

// StoreRoom binds the socket to sub, replacing any earlier subscription.
func (s *Ws) StoreRoom(socketId string, sub comm.RoomSubscription) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if old, ok := s.subs[socketId]; ok {
		s.releaseLocked(old)
	}
	s.subs[socketId] = sub
	s.holders[sub]++
}

// dropRoom unbinds the socket and reports whether it was the last socket
// holding its (room, player) pair.
func (s *Ws) dropRoom(socketId string) (sub comm.RoomSubscription, last bool, ok bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	sub, ok = s.subs[socketId]
	if !ok {
		return sub, false, false
	}
	delete(s.subs, socketId)
	return sub, s.releaseLocked(sub), true
}

func (s *Ws) releaseLocked(sub comm.RoomSubscription) bool {
	s.holders[sub]--
	if s.holders[sub] > 0 {
		return false
	}
	delete(s.holders, sub)
	return true
}

func (s *Ws) GetRoom(socketId string) (comm.RoomSubscription, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	sub, ok := s.subs[socketId]
	return sub, ok
}

func (s *Ws) GetRoomSockets(roomId string) ([]string, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var sockets []string
	for socketId, sub := range s.subs {
		if sub.RoomID == roomId {
			sockets = append(sockets, socketId)
		}
	}
	return sockets, len(sockets) > 0
}

// ReleaseRoom drops every subscription to a room that no longer exists.
func (s *Ws) ReleaseRoom(roomId string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for socketId, sub := range s.subs {
		if sub.RoomID == roomId {
			delete(s.subs, socketId)
			delete(s.holders, sub)
		}
	}
}
