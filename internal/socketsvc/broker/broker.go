package broker

import (
	"encoding/json"
	"errors"
	"strings"
	"sync"
	"time"

	"github.com/avvvet/rockefeller-services/internal/comm"
	"github.com/nats-io/nats.go"
	log "github.com/sirupsen/logrus"
)

// DefaultMembershipTimeout bounds a membership request to the room service.
const DefaultMembershipTimeout = 2 * time.Second

type Broker struct {
	Conn              *nats.Conn
	Prefix            string
	Forward           func(socketId string, m *comm.WSMessage) error
	GetRoomSockets    func(string) ([]string, bool)
	ReleaseRoom       func(string)
	MembershipTimeout time.Duration
	publish           func(subject string, payload []byte) error
	request           func(subject string, payload []byte, timeout time.Duration) (*nats.Msg, error)

	mu       sync.Mutex
	versions map[string]int64 // room id -> highest version forwarded
}

func NewBroker(conn *nats.Conn, prefix string,
	fncForward func(string, *comm.WSMessage) error,
	fncGetRoomSockets func(string) ([]string, bool),
	fncReleaseRoom func(string)) *Broker {
	return &Broker{
		Conn:           conn,
		Prefix:         prefix,
		Forward:        fncForward,
		GetRoomSockets: fncGetRoomSockets,
		ReleaseRoom:    fncReleaseRoom,
		publish:        conn.Publish,
		request:        conn.Request,
	}
}

// SubscribeRooms consumes updates of every room, `<prefix>.*`.
func (b *Broker) SubscribeRooms() (*nats.Subscription, error) {
	sub, err := b.Conn.Subscribe(b.Prefix+".*", b.handleMessages)
	if err != nil {
		return nil, err
	}

	return sub, nil
}

// publish message to room service
func (b *Broker) Publish(topic string, payload []byte) error {
	err := b.publish(topic, payload)
	if err != nil {
		log.Errorf("Error publishing to topic %s: %s", topic, err)
		return err
	}

	return nil
}

// IsMember asks the room service whether playerId belongs to roomId.
func (b *Broker) IsMember(roomId, playerId string) (bool, error) {
	payload, err := comm.Encode(comm.TypeMembership, comm.Membership{RoomID: roomId, PlayerID: playerId}, "")
	if err != nil {
		return false, err
	}

	timeout := b.MembershipTimeout
	if timeout <= 0 {
		timeout = DefaultMembershipTimeout
	}
	msgNats, err := b.request(comm.MembershipTopic, payload, timeout)
	if err != nil {
		return false, err
	}

	reply, err := comm.Decode(msgNats.Data)
	if err != nil {
		return false, err
	}
	var check comm.Membership
	if err := json.Unmarshal(reply.Data, &check); err != nil {
		return false, err
	}
	if check.Error != "" {
		return false, errors.New(check.Error)
	}
	return check.Member, nil
}

// handleMessages receive room updates from room service
func (b *Broker) handleMessages(msgNats *nats.Msg) {
	roomId, ok := strings.CutPrefix(msgNats.Subject, b.Prefix+".")
	if !ok || roomId == "" {
		log.Warnf("room update on unexpected subject %s", msgNats.Subject)
		return
	}

	message, err := comm.Decode(msgNats.Data)
	if err != nil {
		log.Errorf("Error %s", err)
		return
	}

	switch message.Type {
	case comm.TypeRoomUpdate:
		b.fanOut(roomId, message)
	default:
		log.Errorf("Unknown message %s", message.Type)
	}
}

// send the update to every socket subscribed to the room, unless a newer
// version of the room was already forwarded
func (b *Broker) fanOut(roomId string, m *comm.WSMessage) {
	var update struct {
		Members []string `json:"members"`
		Version int64    `json:"version"`
	}
	if err := json.Unmarshal(m.Data, &update); err != nil {
		log.Errorf("room %s: malformed update: %s", roomId, err)
		return
	}
	deleted := len(update.Members) == 0

	if !b.advance(roomId, update.Version, deleted) {
		log.Debugf("room %s: dropped stale update version %d", roomId, update.Version)
		return
	}

	sockets, _ := b.GetRoomSockets(roomId)
	for _, socketId := range sockets {
		if err := b.Forward(socketId, m); err != nil {
			log.Warnf("room %s: update not delivered to socket %s: %s", roomId, socketId, err)
		}
	}

	if deleted {
		b.ReleaseRoom(roomId)
	}
}

// advance records version as the room's newest and reports whether it is
// newer than anything seen. Unversioned updates always pass. A deleted room
// forgets its version so a reused room id starts over.
func (b *Broker) advance(roomId string, version int64, deleted bool) bool {
	if version == 0 {
		return true
	}

	b.mu.Lock()
	defer b.mu.Unlock()
	if b.versions == nil {
		b.versions = make(map[string]int64)
	}
	if version <= b.versions[roomId] {
		return false
	}
	if deleted {
		delete(b.versions, roomId)
	} else {
		b.versions[roomId] = version
	}
	return true
}
