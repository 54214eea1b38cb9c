package room

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type recorder struct {
	mu  sync.Mutex
	got []Notification
}

func (r *recorder) Notify(_ context.Context, n Notification) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.got = append(r.got, n)
	return nil
}

func (r *recorder) all() []Notification {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]Notification(nil), r.got...)
}

func (r *recorder) last() Notification {
	all := r.all()
	return all[len(all)-1]
}

type clock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *clock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *clock) Advance(d time.Duration) {
	c.mu.Lock()
	c.now = c.now.Add(d)
	c.mu.Unlock()
}

func seqIDs(prefix string) func() string {
	var n atomic.Int64
	return func() string { return fmt.Sprintf("%s%d", prefix, n.Add(1)) }
}

type fixture struct {
	m     *Manager
	store *Store
	rec   *recorder
	clk   *clock
}

func newFixture(opts ...Option) *fixture {
	f := &fixture{store: NewStore(), rec: &recorder{}, clk: &clock{now: t0}}
	base := []Option{
		WithNotifier(f.rec),
		WithClock(f.clk.Now),
		WithPlayerIDs(seqIDs("p")),
	}
	f.m = NewManager(f.store, append(base, opts...)...)
	return f
}

func (f *fixture) create(t *testing.T, host string, max int) *Room {
	t.Helper()
	cfg := DefaultConfig()
	cfg.MaxPlayers = max
	r, _, err := f.m.CreateRoom(CreateRequest{Name: "table", HostName: host, HostPlayerID: host, Config: cfg})
	require.NoError(t, err)
	return r
}

func (f *fixture) join(t *testing.T, roomID, id string) {
	t.Helper()
	_, err := f.m.JoinRoom(roomID, JoinRequest{PlayerName: id, PlayerID: id})
	require.NoError(t, err)
}

func TestCreateRoom(t *testing.T) {
	f := newFixture()
	cfg := Config{EvenBuild: false, StartingCash: 2000, MaxPlayers: 3}

	r, host, err := f.m.CreateRoom(CreateRequest{Name: "Test Room", HostName: "Host Player", Config: cfg})
	require.NoError(t, err)

	assert.Len(t, r.RoomID, CodeLength)
	assert.Equal(t, "Test Room", r.Name)
	assert.Equal(t, StatusWaiting, r.Status)
	assert.Equal(t, []string{host.PlayerID}, r.Players)
	assert.Equal(t, host.PlayerID, r.HostPlayerID)
	assert.Equal(t, cfg, r.Config)
	assert.Equal(t, 3, r.MaxPlayers)
	assert.Empty(t, r.CurrentTurnPlayerID)
	assert.Zero(t, r.TurnNumber)
	assert.Nil(t, r.GameState)
	assert.Equal(t, t0, r.CreatedAt)
	assert.Equal(t, t0, r.UpdatedAt)

	assert.Equal(t, "Host Player", host.Name)
	assert.Equal(t, 2000, host.Cash)

	assert.Empty(t, f.rec.all(), "create broadcasts nothing")
}

func TestCreateRoomRejectsBadConfig(t *testing.T) {
	f := newFixture()
	for _, cfg := range []Config{
		{StartingCash: 0, MaxPlayers: 4},
		{StartingCash: 1500, MaxPlayers: 1},
		{StartingCash: 1500, MaxPlayers: MaxPlayersLimit + 1},
	} {
		_, _, err := f.m.CreateRoom(CreateRequest{Name: "x", HostName: "h", Config: cfg})
		assert.ErrorIs(t, err, ErrInvalidConfig, "%+v", cfg)
	}
	assert.Equal(t, 0, f.store.Len())
}

func TestCreateRoomHostAlreadyInRoom(t *testing.T) {
	f := newFixture()
	r := f.create(t, "H", 4)

	_, _, err := f.m.CreateRoom(CreateRequest{Name: "second", HostName: "H", HostPlayerID: "H", Config: DefaultConfig()})
	var already *AlreadyInRoomError
	require.True(t, errors.As(err, &already))
	assert.Equal(t, r.RoomID, already.RoomID)
	assert.Equal(t, 1, f.store.Len())
}

func TestCreateRoomRetriesCollidingCodes(t *testing.T) {
	codes := []string{"AAAAAA", "AAAAAA", "AAAAAA", "BBBBBB"}
	var mu sync.Mutex
	gen := CodeGeneratorFunc(func() string {
		mu.Lock()
		defer mu.Unlock()
		c := codes[0]
		codes = codes[1:]
		return c
	})
	f := newFixture(WithCodeGenerator(gen))

	first := f.create(t, "H1", 4)
	second := f.create(t, "H2", 4)
	assert.Equal(t, "AAAAAA", first.RoomID)
	assert.Equal(t, "BBBBBB", second.RoomID)
}

func TestFreedRoomIDIsReusable(t *testing.T) {
	f := newFixture(WithCodeGenerator(CodeGeneratorFunc(func() string { return "SAME01" })))
	r := f.create(t, "H", 4)

	_, err := f.m.LeaveRoom(r.RoomID, "H")
	require.NoError(t, err)
	_, err = f.m.GetRoom(r.RoomID)
	require.ErrorIs(t, err, ErrNotFound)

	again := f.create(t, "H2", 4)
	assert.Equal(t, "SAME01", again.RoomID)
}

func TestJoinRoom(t *testing.T) {
	f := newFixture()
	cfg := Config{StartingCash: 2500, MaxPlayers: 4}
	r, _, err := f.m.CreateRoom(CreateRequest{Name: "t", HostName: "h", HostPlayerID: "H", Config: cfg})
	require.NoError(t, err)

	f.clk.Advance(time.Minute)
	p, err := f.m.JoinRoom(r.RoomID, JoinRequest{PlayerName: "New Player"})
	require.NoError(t, err)
	assert.Equal(t, "New Player", p.Name)
	assert.Equal(t, 2500, p.Cash)
	assert.NotEmpty(t, p.PlayerID)

	got, err := f.m.GetRoom(r.RoomID)
	require.NoError(t, err)
	assert.Equal(t, []string{"H", p.PlayerID}, got.Players)
	assert.Equal(t, t0.Add(time.Minute), got.UpdatedAt)

	stored, err := f.m.GetPlayer(p.PlayerID)
	require.NoError(t, err)
	assert.Equal(t, 2500, stored.Cash)

	n := f.rec.last()
	assert.Equal(t, EventPlayerJoined, n.Type)
	assert.Equal(t, r.RoomID, n.RoomID)
	assert.Equal(t, []string{"H", p.PlayerID}, n.Members)
}

func TestJoinRoomFailures(t *testing.T) {
	f := newFixture()

	_, err := f.m.JoinRoom("NOROOM", JoinRequest{PlayerName: "x"})
	assert.ErrorIs(t, err, ErrNotFound)

	r := f.create(t, "H", 2)
	f.join(t, r.RoomID, "P2")

	_, err = f.m.JoinRoom(r.RoomID, JoinRequest{PlayerName: "P3", PlayerID: "P3"})
	var full *RoomFullError
	require.True(t, errors.As(err, &full))
	assert.Equal(t, 2, full.MaxPlayers)

	other := f.create(t, "H2", 4)
	_, err = f.m.JoinRoom(other.RoomID, JoinRequest{PlayerName: "P2", PlayerID: "P2"})
	var already *AlreadyInRoomError
	require.True(t, errors.As(err, &already))
	assert.Equal(t, r.RoomID, already.RoomID)

	require.NoError(t, f.m.StartGame(r.RoomID))
	_, err = f.m.LeaveRoom(r.RoomID, "P2")
	require.NoError(t, err)
	_, err = f.m.JoinRoom(r.RoomID, JoinRequest{PlayerName: "late", PlayerID: "late"})
	assert.ErrorIs(t, err, ErrInvalidState)

	got, _ := f.m.GetRoom(r.RoomID)
	assert.Equal(t, []string{"H"}, got.Players, "rejected joins leave membership unchanged")
	_, ok := f.store.RoomOf("late")
	assert.False(t, ok)
}

func TestLeaveRoom(t *testing.T) {
	f := newFixture()
	r := f.create(t, "A", 4)
	f.join(t, r.RoomID, "B")
	f.join(t, r.RoomID, "C")

	ms, err := f.m.LeaveRoom(r.RoomID, "B")
	require.NoError(t, err)
	assert.Equal(t, []string{"A", "C"}, ms.Members)
	assert.False(t, ms.Deleted)
	_, ok := f.store.RoomOf("B")
	assert.False(t, ok)

	n := f.rec.last()
	assert.Equal(t, EventPlayerLeft, n.Type)
	assert.Equal(t, []string{"A", "C"}, n.Members)

	_, err = f.m.LeaveRoom(r.RoomID, "B")
	var nf *NotFoundError
	require.True(t, errors.As(err, &nf))
	assert.Equal(t, "player", nf.Kind)

	_, err = f.m.LeaveRoom("NOROOM", "A")
	require.True(t, errors.As(err, &nf))
	assert.Equal(t, "room", nf.Kind)
}

func TestLeaveRoomHandsOverHost(t *testing.T) {
	f := newFixture()
	r := f.create(t, "A", 4)
	f.join(t, r.RoomID, "B")
	f.join(t, r.RoomID, "C")

	ms, err := f.m.LeaveRoom(r.RoomID, "A")
	require.NoError(t, err)
	assert.Equal(t, "B", ms.HostPlayerID)

	got, _ := f.m.GetRoom(r.RoomID)
	assert.Equal(t, "B", got.HostPlayerID)
	assert.True(t, got.HasPlayer(got.HostPlayerID))
}

func TestLeaveLastPlayerDeletesRoom(t *testing.T) {
	f := newFixture()
	r := f.create(t, "A", 4)
	f.join(t, r.RoomID, "B")

	_, err := f.m.LeaveRoom(r.RoomID, "A")
	require.NoError(t, err)
	ms, err := f.m.LeaveRoom(r.RoomID, "B")
	require.NoError(t, err)
	assert.True(t, ms.Deleted)
	assert.Empty(t, ms.Members)

	_, err = f.m.GetRoom(r.RoomID)
	assert.ErrorIs(t, err, ErrNotFound)
	assert.Equal(t, 0, f.store.Len())

	n := f.rec.last()
	assert.Equal(t, EventPlayerLeft, n.Type)
	assert.NotNil(t, n.Members)
	assert.Empty(t, n.Members)
}

func TestLeaveDuringPlayReassignsTurn(t *testing.T) {
	f := newFixture()
	r := f.create(t, "A", 4)
	f.join(t, r.RoomID, "B")
	f.join(t, r.RoomID, "C")
	require.NoError(t, f.m.StartGame(r.RoomID))
	require.NoError(t, f.m.EndTurn(r.RoomID)) // B to move

	ms, err := f.m.LeaveRoom(r.RoomID, "B")
	require.NoError(t, err)
	assert.Equal(t, []string{"A", "C"}, ms.Members)
	assert.Equal(t, "C", ms.CurrentTurnPlayerID)

	got, _ := f.m.GetRoom(r.RoomID)
	assert.Equal(t, "C", got.CurrentTurnPlayerID)
	assert.Equal(t, 1, got.TurnNumber, "leaving does not count as a turn")
}

func TestLeaveDuringPlayWrapsTurn(t *testing.T) {
	f := newFixture()
	r := f.create(t, "A", 4)
	f.join(t, r.RoomID, "B")
	f.join(t, r.RoomID, "C")
	require.NoError(t, f.m.StartGame(r.RoomID))
	require.NoError(t, f.m.EndTurn(r.RoomID))
	require.NoError(t, f.m.EndTurn(r.RoomID)) // C to move

	ms, err := f.m.LeaveRoom(r.RoomID, "C")
	require.NoError(t, err)
	assert.Equal(t, "A", ms.CurrentTurnPlayerID)

	// a non-current player leaving keeps the turn where it is
	ms, err = f.m.LeaveRoom(r.RoomID, "B")
	require.NoError(t, err)
	assert.Equal(t, "A", ms.CurrentTurnPlayerID)
}

func TestStartGame(t *testing.T) {
	var calls atomic.Int32
	state := func(cfg Config) (json.RawMessage, error) {
		calls.Add(1)
		return json.RawMessage(fmt.Sprintf(`{"even_build":%t}`, cfg.EvenBuild)), nil
	}
	f := newFixture(WithGameState(state))
	r := f.create(t, "A", 4)

	err := f.m.StartGame(r.RoomID)
	assert.ErrorIs(t, err, ErrInvalidState, "one player is not enough")
	assert.Zero(t, calls.Load())

	f.join(t, r.RoomID, "B")
	f.clk.Advance(time.Second)
	require.NoError(t, f.m.StartGame(r.RoomID))

	got, _ := f.m.GetRoom(r.RoomID)
	assert.Equal(t, StatusPlaying, got.Status)
	assert.Equal(t, "A", got.CurrentTurnPlayerID)
	assert.Equal(t, 0, got.TurnNumber)
	assert.JSONEq(t, `{"even_build":true}`, string(got.GameState))
	assert.Equal(t, t0.Add(time.Second), got.UpdatedAt)
	assert.Equal(t, EventGameStarted, f.rec.last().Type)

	assert.ErrorIs(t, f.m.StartGame(r.RoomID), ErrInvalidState, "already playing")
	assert.ErrorIs(t, f.m.StartGame("NOROOM"), ErrNotFound)
	assert.EqualValues(t, 1, calls.Load(), "game state is built once")
}

func TestStartGameStateFailure(t *testing.T) {
	boom := errors.New("tables unavailable")
	f := newFixture(WithGameState(func(Config) (json.RawMessage, error) { return nil, boom }))
	r := f.create(t, "A", 4)
	f.join(t, r.RoomID, "B")

	assert.ErrorIs(t, f.m.StartGame(r.RoomID), boom)
	got, _ := f.m.GetRoom(r.RoomID)
	assert.Equal(t, StatusWaiting, got.Status)
}

func TestEndTurnRotation(t *testing.T) {
	f := newFixture()
	r := f.create(t, "A", 4)

	assert.ErrorIs(t, f.m.EndTurn(r.RoomID), ErrInvalidState)
	assert.ErrorIs(t, f.m.EndTurn("NOROOM"), ErrNotFound)

	f.join(t, r.RoomID, "B")
	f.join(t, r.RoomID, "C")
	require.NoError(t, f.m.StartGame(r.RoomID))

	for i, want := range []string{"B", "C", "A", "B"} {
		require.NoError(t, f.m.EndTurn(r.RoomID))
		got, _ := f.m.GetRoom(r.RoomID)
		assert.Equal(t, want, got.CurrentTurnPlayerID)
		assert.Equal(t, i+1, got.TurnNumber)

		n := f.rec.last()
		assert.Equal(t, EventTurnEnded, n.Type)
		assert.Equal(t, want, n.CurrentTurnPlayerID)
	}
}

func TestTwoPlayerScenario(t *testing.T) {
	f := newFixture()
	r := f.create(t, "H", 2)
	assert.Equal(t, StatusWaiting, r.Status)
	assert.Equal(t, []string{"H"}, r.Players)

	f.join(t, r.RoomID, "P2")
	got, _ := f.m.GetRoom(r.RoomID)
	assert.Equal(t, []string{"H", "P2"}, got.Players)

	require.NoError(t, f.m.StartGame(r.RoomID))
	got, _ = f.m.GetRoom(r.RoomID)
	assert.Equal(t, StatusPlaying, got.Status)
	assert.Equal(t, "H", got.CurrentTurnPlayerID)
	assert.Equal(t, 0, got.TurnNumber)

	require.NoError(t, f.m.EndTurn(r.RoomID))
	got, _ = f.m.GetRoom(r.RoomID)
	assert.Equal(t, "P2", got.CurrentTurnPlayerID)
	assert.Equal(t, 1, got.TurnNumber)

	require.NoError(t, f.m.EndTurn(r.RoomID))
	got, _ = f.m.GetRoom(r.RoomID)
	assert.Equal(t, "H", got.CurrentTurnPlayerID)
	assert.Equal(t, 2, got.TurnNumber)
}

func TestNotificationVersionsIncrease(t *testing.T) {
	f := newFixture()
	r := f.create(t, "H", 3)
	f.join(t, r.RoomID, "P2")
	f.join(t, r.RoomID, "P3")
	require.NoError(t, f.m.StartGame(r.RoomID))
	require.NoError(t, f.m.EndTurn(r.RoomID))
	_, err := f.m.LeaveRoom(r.RoomID, "P3")
	require.NoError(t, err)
	_, err = f.m.DeleteRoom(r.RoomID)
	require.NoError(t, err)

	all := f.rec.all()
	require.Len(t, all, 6)
	var prev int64 = 1
	for _, n := range all {
		assert.Greater(t, n.Version, prev, "%s after version %d", n.Type, prev)
		prev = n.Version
	}
	assert.Equal(t, EventRoomDeleted, all[len(all)-1].Type)
}

func TestDeleteRoom(t *testing.T) {
	f := newFixture()
	r := f.create(t, "A", 4)
	f.join(t, r.RoomID, "B")

	removed, err := f.m.DeleteRoom(r.RoomID)
	require.NoError(t, err)
	assert.Equal(t, []string{"A", "B"}, removed.Players)

	_, ok := f.store.RoomOf("A")
	assert.False(t, ok)
	_, err = f.m.GetPlayer("B")
	assert.ErrorIs(t, err, ErrNotFound)
	assert.Equal(t, EventRoomDeleted, f.rec.last().Type)

	_, err = f.m.DeleteRoom(r.RoomID)
	assert.ErrorIs(t, err, ErrNotFound)

	// released players may create again
	f.create(t, "A", 4)
}

func TestListRooms(t *testing.T) {
	f := newFixture()
	a := f.create(t, "A", 4)
	f.clk.Advance(time.Second)
	b := f.create(t, "B", 4)
	f.join(t, b.RoomID, "B2")
	require.NoError(t, f.m.StartGame(b.RoomID))

	all := f.m.ListRooms("")
	require.Len(t, all, 2)
	assert.Equal(t, a.RoomID, all[0].RoomID)

	waiting := f.m.ListRooms(StatusWaiting)
	require.Len(t, waiting, 1)
	assert.Equal(t, a.RoomID, waiting[0].RoomID)

	playing := f.m.ListRooms(StatusPlaying)
	require.Len(t, playing, 1)
	assert.Equal(t, b.RoomID, playing[0].RoomID)

	assert.Empty(t, f.m.ListRooms(StatusFinished))
}

func TestPlayersInRoom(t *testing.T) {
	f := newFixture()
	r := f.create(t, "A", 4)
	f.join(t, r.RoomID, "B")

	players, err := f.m.PlayersInRoom(r.RoomID)
	require.NoError(t, err)
	require.Len(t, players, 2)
	assert.Equal(t, "A", players[0].PlayerID)
	assert.Equal(t, "B", players[1].PlayerID)

	_, err = f.m.PlayersInRoom("NOROOM")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestSweepIdle(t *testing.T) {
	f := newFixture()
	stale := f.create(t, "A", 4)
	f.clk.Advance(10 * time.Minute)
	fresh := f.create(t, "B", 4)
	playing := f.create(t, "C", 4)
	f.join(t, playing.RoomID, "C2")
	require.NoError(t, f.m.StartGame(playing.RoomID))

	f.clk.Advance(6 * time.Minute)
	removed := f.m.SweepIdle(15 * time.Minute)
	assert.Equal(t, []string{stale.RoomID}, removed)

	_, err := f.m.GetRoom(fresh.RoomID)
	assert.NoError(t, err)
	_, err = f.m.GetRoom(playing.RoomID)
	assert.NoError(t, err)
	_, ok := f.store.RoomOf("A")
	assert.False(t, ok)
}

func TestNotifierFailureDoesNotRollBack(t *testing.T) {
	failing := NotifierFunc(func(context.Context, Notification) error { return errors.New("relay down") })
	f := newFixture(WithNotifier(failing))
	r := f.create(t, "A", 4)

	_, err := f.m.JoinRoom(r.RoomID, JoinRequest{PlayerName: "B", PlayerID: "B"})
	require.NoError(t, err)
	got, _ := f.m.GetRoom(r.RoomID)
	assert.Equal(t, []string{"A", "B"}, got.Players)
}

func TestConcurrentCreateSamePlayer(t *testing.T) {
	f := newFixture()
	const n = 50

	var wg sync.WaitGroup
	var ok, already atomic.Int32
	start := make(chan struct{})
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			<-start
			_, _, err := f.m.CreateRoom(CreateRequest{Name: "race", HostName: "X", HostPlayerID: "X", Config: DefaultConfig()})
			switch {
			case err == nil:
				ok.Add(1)
			case errors.Is(err, ErrAlreadyInRoom):
				already.Add(1)
			default:
				t.Errorf("unexpected error: %v", err)
			}
		}()
	}
	close(start)
	wg.Wait()

	assert.EqualValues(t, 1, ok.Load())
	assert.EqualValues(t, n-1, already.Load())
	assert.Equal(t, 1, f.store.Len())
}

func TestConcurrentJoinsRespectCapacity(t *testing.T) {
	f := newFixture()
	r := f.create(t, "H", 4)
	const n = 40

	var wg sync.WaitGroup
	var ok, full atomic.Int32
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			_, err := f.m.JoinRoom(r.RoomID, JoinRequest{PlayerName: "p", PlayerID: fmt.Sprintf("J%d", i)})
			switch {
			case err == nil:
				ok.Add(1)
			case errors.Is(err, ErrRoomFull):
				full.Add(1)
			default:
				t.Errorf("unexpected error: %v", err)
			}
		}(i)
	}
	wg.Wait()

	assert.EqualValues(t, 3, ok.Load())
	assert.EqualValues(t, n-3, full.Load())
	got, _ := f.m.GetRoom(r.RoomID)
	assert.Len(t, got.Players, 4)
	for _, id := range got.Players {
		roomID, ok := f.store.RoomOf(id)
		assert.True(t, ok)
		assert.Equal(t, r.RoomID, roomID)
	}
}

func TestConcurrentJoinSamePlayerTwoRooms(t *testing.T) {
	f := newFixture()
	rooms := []*Room{f.create(t, "H1", 4), f.create(t, "H2", 4)}

	var wg sync.WaitGroup
	var ok atomic.Int32
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			_, err := f.m.JoinRoom(rooms[i%2].RoomID, JoinRequest{PlayerName: "dup", PlayerID: "DUP"})
			if err == nil {
				ok.Add(1)
				return
			}
			assert.ErrorIs(t, err, ErrAlreadyInRoom)
		}(i)
	}
	wg.Wait()

	assert.EqualValues(t, 1, ok.Load())
	count := 0
	for _, r := range f.m.ListRooms("") {
		if r.HasPlayer("DUP") {
			count++
		}
	}
	assert.Equal(t, 1, count)
}

func TestConcurrentMixedOperationsKeepIndexConsistent(t *testing.T) {
	f := newFixture()
	var wg sync.WaitGroup
	for g := 0; g < 8; g++ {
		wg.Add(1)
		go func(g int) {
			defer wg.Done()
			host := fmt.Sprintf("H%d", g)
			for i := 0; i < 25; i++ {
				r, _, err := f.m.CreateRoom(CreateRequest{Name: "r", HostName: host, HostPlayerID: host, Config: DefaultConfig()})
				if !assert.NoError(t, err) {
					return
				}
				guest := fmt.Sprintf("G%d-%d", g, i)
				_, _ = f.m.JoinRoom(r.RoomID, JoinRequest{PlayerName: guest, PlayerID: guest})
				_ = f.m.StartGame(r.RoomID)
				_ = f.m.EndTurn(r.RoomID)
				_, _ = f.m.LeaveRoom(r.RoomID, guest)
				_, err = f.m.LeaveRoom(r.RoomID, host)
				assert.NoError(t, err)
			}
		}(g)
	}
	wg.Wait()

	assert.Equal(t, 0, f.store.Len())
	f.store.mu.RLock()
	defer f.store.mu.RUnlock()
	assert.Empty(t, f.store.index)
	assert.Empty(t, f.store.players)
}
