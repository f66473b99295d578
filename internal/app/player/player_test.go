package player_test

import (
	"context"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"stickychat/internal/app/channel"
	"stickychat/internal/app/data"
	"stickychat/internal/app/directory"
	"stickychat/internal/app/dm"
	"stickychat/internal/app/notify"
	"stickychat/internal/app/player"
	"stickychat/internal/app/priority"
	"stickychat/internal/app/user"
	"stickychat/internal/pkg/logx"
)

func TestMain(m *testing.M) {
	logx.Discard()
	m.Run()
}

type world struct {
	ctx  context.Context
	repo *data.MemoryRepository
	deps player.Deps
	view *directory.View
	sink *notify.Recorder
}

func newWorld() *world {
	sink := notify.NewRecorder()
	view := directory.NewMemory().View("alpha")
	repo := data.NewMemoryRepository()
	store := data.NewStore(repo)
	channels := channel.NewRegistry()
	return &world{
		ctx:  context.Background(),
		repo: repo,
		view: view,
		sink: sink,
		deps: player.Deps{
			Store:    store,
			Channels: channels,
			Relay:    channel.NewRelay(channels, sink, nil),
			Router:   dm.NewRouter(store, view, nil, sink, dm.DefaultOptions()),
		},
	}
}

func (w *world) join(t *testing.T, name string, level priority.Level) *player.Player {
	t.Helper()
	u := user.User{ID: uuid.New(), Name: name}
	require.NoError(t, w.view.Connect(w.ctx, u.ID, level))
	p, err := player.New(w.ctx, w.deps, u, level)
	require.NoError(t, err)
	return p
}

func TestNewAppliesSessionPriority(t *testing.T) {
	w := newWorld()
	staff := w.join(t, "mod", priority.Staff)

	assert.Equal(t, priority.Staff, staff.Priority())
	svc, ok := w.deps.Store.Lookup(staff.ID)
	require.True(t, ok)
	assert.Same(t, svc, staff.Data)
}

func TestDirectMessagesAndReply(t *testing.T) {
	w := newWorld()
	alice, bob := w.join(t, "alice", priority.Direct), w.join(t, "bob", priority.Direct)

	res, err := alice.SendTo(w.ctx, bob.ID, "hi bob")
	require.NoError(t, err)
	assert.Equal(t, dm.StatusDeliveredLocal, res.Status)

	res, err = bob.Reply(w.ctx, "hi alice")
	require.NoError(t, err)
	assert.Equal(t, alice.ID, res.Target)
	require.Len(t, w.sink.For(alice.ID), 1)
}

func TestBlockAndToggle(t *testing.T) {
	w := newWorld()
	alice, bob := w.join(t, "alice", priority.Direct), w.join(t, "bob", priority.Direct)

	changed, err := alice.Block(w.ctx, bob.ID)
	require.NoError(t, err)
	assert.True(t, changed)

	res, err := bob.SendTo(w.ctx, alice.ID, "hello?")
	require.NoError(t, err)
	assert.Equal(t, dm.StatusBlocked, res.Status)

	changed, err = alice.Unblock(w.ctx, bob.ID)
	require.NoError(t, err)
	assert.True(t, changed)

	changed, err = alice.SetDirectMessages(w.ctx, false)
	require.NoError(t, err)
	assert.True(t, changed)
	res, err = bob.SendTo(w.ctx, alice.ID, "hello?")
	require.NoError(t, err)
	assert.Equal(t, dm.StatusTargetDisabled, res.Status)

	changed, err = alice.SetDirectMessages(w.ctx, true)
	require.NoError(t, err)
	assert.True(t, changed)
}

func TestChannels(t *testing.T) {
	w := newWorld()
	alice, bob := w.join(t, "alice", priority.Direct), w.join(t, "bob", priority.Direct)

	assert.True(t, alice.Channel().IsGlobal())

	town := w.deps.Channels.Create(channel.TypeCustom, "town")
	_, err := alice.JoinChannel(town.ID())
	require.NoError(t, err)
	_, err = bob.JoinChannel(town.ID())
	require.NoError(t, err)

	c := alice.Say(w.ctx, "hello town")
	assert.Same(t, town, c)
	assert.Len(t, w.sink.For(bob.ID), 1)
	assert.Len(t, w.sink.For(alice.ID), 1)

	alice.Leave()
	assert.True(t, alice.Channel().IsGlobal())
	assert.False(t, town.HasMember(alice.ID))
}

func TestLeaveStopsTrackingButKeepsState(t *testing.T) {
	w := newWorld()
	alice, bob := w.join(t, "alice", priority.Direct), w.join(t, "bob", priority.Direct)

	_, err := alice.Block(w.ctx, bob.ID)
	require.NoError(t, err)

	alice.Leave()
	_, ok := w.deps.Store.Lookup(alice.ID)
	assert.False(t, ok)

	again, err := player.New(w.ctx, w.deps, alice.User, priority.Direct)
	require.NoError(t, err)
	assert.NotSame(t, alice.Data, again.Data)
	assert.True(t, again.Data.Blocked(bob.ID))
}

func TestAttachRestoresTracking(t *testing.T) {
	w := newWorld()
	old := w.join(t, "alice", priority.Direct)

	replacement, err := player.New(w.ctx, w.deps, old.User, priority.Staff)
	require.NoError(t, err)
	require.Same(t, old.Data, replacement.Data)

	// the previous session ends after the new one loaded its state.
	old.Leave()
	replacement.Attach()

	svc, ok := w.deps.Store.Lookup(old.ID)
	require.True(t, ok)
	assert.Same(t, replacement.Data, svc)
	assert.Equal(t, priority.Staff, svc.Priority())
}

func TestNewReloadsPersistedState(t *testing.T) {
	w := newWorld()
	alice, bob := w.join(t, "alice", priority.Direct), w.join(t, "bob", priority.Direct)

	// another instance writes through the shared repository.
	other := data.NewStore(w.repo)
	svc, err := other.Get(w.ctx, alice.ID)
	require.NoError(t, err)
	_, err = svc.Block(bob.ID)
	require.NoError(t, err)
	require.NoError(t, other.SaveBlock(w.ctx, svc, bob.ID, true))
	assert.False(t, alice.Data.Blocked(bob.ID))

	again, err := player.New(w.ctx, w.deps, alice.User, priority.Direct)
	require.NoError(t, err)
	assert.Same(t, alice.Data, again.Data)
	assert.True(t, alice.Data.Blocked(bob.ID))
}
