package room

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"time"

	log "github.com/sirupsen/logrus"
)

const (
	EventPlayerJoined = "player-joined"
	EventPlayerLeft   = "player-left"
	EventGameStarted  = "game-started"
	EventTurnEnded    = "turn-ended"
	EventRoomDeleted  = "room-deleted"
)

// Notification is the payload published on a room's channel. RoomID and
// Members are always set; Members is never nil. Version orders notifications
// of one room: a consumer keeps the highest it has seen.
type Notification struct {
	Type                string    `json:"type"`
	RoomID              string    `json:"room_id"`
	Members             []string  `json:"members"`
	HostPlayerID        string    `json:"host_player_id,omitempty"`
	Status              Status    `json:"status,omitempty"`
	CurrentTurnPlayerID string    `json:"current_turn_player_id,omitempty"`
	TurnNumber          int       `json:"turn_number"`
	Version             int64     `json:"version"`
	At                  time.Time `json:"at"`
}

// Notifier publishes room updates. Errors are reported to the manager only
// for logging; they never undo the mutation that caused the notification.
type Notifier interface {
	Notify(ctx context.Context, n Notification) error
}

type NotifierFunc func(ctx context.Context, n Notification) error

func (f NotifierFunc) Notify(ctx context.Context, n Notification) error { return f(ctx, n) }

type NoopNotifier struct{}

func (NoopNotifier) Notify(context.Context, Notification) error { return nil }

// MultiNotifier hands every notification to each sink in order.
type MultiNotifier []Notifier

func (m MultiNotifier) Notify(ctx context.Context, n Notification) error {
	var errs []error
	for _, sink := range m {
		if err := sink.Notify(ctx, n); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

var (
	ErrNotifierClosed  = errors.New("notifier closed")
	ErrNotifyQueueFull = errors.New("notification queue full")
)

// AsyncNotifier queues notifications for a single background worker so a slow
// relay never holds up the caller. When the queue is full the notification is
// dropped and counted.
type AsyncNotifier struct {
	next    Notifier
	timeout time.Duration
	queue   chan Notification
	done    chan struct{}

	mu     sync.RWMutex
	closed bool

	dropped atomic.Int64
	failed  atomic.Int64
}

func NewAsyncNotifier(next Notifier, size int, timeout time.Duration) *AsyncNotifier {
	if size <= 0 {
		size = 256
	}
	if timeout <= 0 {
		timeout = 5 * time.Second
	}
	a := &AsyncNotifier{
		next:    next,
		timeout: timeout,
		queue:   make(chan Notification, size),
		done:    make(chan struct{}),
	}
	go a.run()
	return a
}

func (a *AsyncNotifier) Notify(_ context.Context, n Notification) error {
	a.mu.RLock()
	defer a.mu.RUnlock()
	if a.closed {
		a.dropped.Add(1)
		return ErrNotifierClosed
	}
	select {
	case a.queue <- n:
		return nil
	default:
		a.dropped.Add(1)
		return ErrNotifyQueueFull
	}
}

func (a *AsyncNotifier) run() {
	defer close(a.done)
	for n := range a.queue {
		ctx, cancel := context.WithTimeout(context.Background(), a.timeout)
		err := a.next.Notify(ctx, n)
		cancel()
		if err != nil {
			a.failed.Add(1)
			log.Errorf("notify %s for room %s failed: %s", n.Type, n.RoomID, err)
		}
	}
}

// Close stops accepting notifications and waits for the queue to drain.
func (a *AsyncNotifier) Close() {
	a.mu.Lock()
	if !a.closed {
		a.closed = true
		close(a.queue)
	}
	a.mu.Unlock()
	<-a.done
}

// Stats reports how many notifications were dropped and how many failed downstream.
func (a *AsyncNotifier) Stats() (dropped, failed int64) {
	return a.dropped.Load(), a.failed.Load()
}
