package broker

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"slices"

	"github.com/avvvet/rockefeller-services/internal/comm"
	"github.com/avvvet/rockefeller-services/internal/room"
	"github.com/nats-io/nats.go"
	log "github.com/sirupsen/logrus"
)

// Rooms is the part of the lifecycle manager the broker drives.
type Rooms interface {
	LeaveRoom(roomID, playerID string) (*room.Membership, error)
	GetRoom(roomID string) (*room.Room, error)
}

// Broker publishes room updates to `<prefix>.<room_id>` and consumes socket
// service events. It implements room.Notifier.
type Broker struct {
	Conn    *nats.Conn
	Prefix  string
	Rooms   Rooms
	publish func(subject string, payload []byte) error
}

func NewBroker(nc *nats.Conn, prefix string, rooms Rooms) *Broker {
	return &Broker{
		Conn:    nc,
		Prefix:  prefix,
		Rooms:   rooms,
		publish: nc.Publish,
	}
}

func Subject(prefix, roomID string) string {
	return prefix + "." + roomID
}

// Notify sends the notification as a room-update envelope on the room's subject.
func (b *Broker) Notify(ctx context.Context, n room.Notification) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	payload, err := comm.Encode(comm.TypeRoomUpdate, n, "")
	if err != nil {
		return fmt.Errorf("encode %s for room %s: %w", n.Type, n.RoomID, err)
	}

	return b.Publish(Subject(b.Prefix, n.RoomID), payload)
}

// handles message coming from socket service
func (b *Broker) handleMessage(msgNat *nats.Msg) {
	msg, err := comm.Decode(msgNat.Data)
	if err != nil {
		log.Errorf("Error nats message %s", err)
		return
	}

	switch msg.Type {
	case comm.TypePlayerDisconnected:
		var request comm.PlayerDisconnected
		if err := json.Unmarshal(msg.Data, &request); err != nil {
			log.Errorf("Error unmarshalling player-disconnected: %s", err)
			return
		}
		b.playerDisconnected(request)
	default:
		log.Warnf("unknown message from socket service: %s", msg.Type)
	}
}

func (b *Broker) playerDisconnected(p comm.PlayerDisconnected) {
	if p.RoomID == "" || p.PlayerID == "" {
		log.Warnf("player-disconnected without room or player id (socket %s)", p.SocketId)
		return
	}

	_, err := b.Rooms.LeaveRoom(p.RoomID, p.PlayerID)
	switch {
	case err == nil:
		log.Infof("player %s removed from room %s after socket %s disconnected", p.PlayerID, p.RoomID, p.SocketId)
	case errors.Is(err, room.ErrNotFound):
		// already left, or the room is gone
		log.Debugf("disconnect of player %s ignored: %s", p.PlayerID, err)
	default:
		log.Errorf("Error removing disconnected player %s from room %s: %s", p.PlayerID, p.RoomID, err)
	}
}

// answers membership checks; a missing room is a plain "not a member"
func (b *Broker) handleMembership(msgNat *nats.Msg) {
	if msgNat.Reply == "" {
		log.Warnf("membership check without reply subject")
		return
	}

	payload, err := comm.Encode(comm.TypeMembership, b.membership(msgNat.Data), "")
	if err != nil {
		log.Errorf("Error encoding membership reply: %s", err)
		return
	}
	_ = b.Publish(msgNat.Reply, payload)
}

func (b *Broker) membership(data []byte) comm.Membership {
	var check comm.Membership
	msg, err := comm.Decode(data)
	if err == nil && msg.Type == comm.TypeMembership {
		err = json.Unmarshal(msg.Data, &check)
	}
	if err != nil || check.RoomID == "" || check.PlayerID == "" {
		check.Error = "room_id and player_id are required"
		return check
	}

	r, err := b.Rooms.GetRoom(check.RoomID)
	switch {
	case errors.Is(err, room.ErrNotFound):
		return check
	case err != nil:
		log.Errorf("membership check of %s in room %s: %s", check.PlayerID, check.RoomID, err)
		check.Error = err.Error()
		return check
	}
	check.Member = slices.Contains(r.Players, check.PlayerID)
	return check
}

// SubscribeMembership answers the socket service's membership checks.
func (b *Broker) SubscribeMembership() (*nats.Subscription, error) {
	return b.Conn.Subscribe(comm.MembershipTopic, b.handleMembership)
}

// consume message from socket service
func (b *Broker) SubscribeSocketService(topic string) (*nats.Subscription, error) {
	sub, err := b.Conn.Subscribe(topic, b.handleMessage)
	if err != nil {
		return nil, err
	}

	return sub, nil
}

func (b *Broker) Publish(topic string, payload []byte) error {
	err := b.publish(topic, payload)
	if err != nil {
		log.Errorf("Error publishing to topic %s: %s", topic, err)
		return err
	}

	return nil
}
