package channel

import (
	"context"
	"errors"
	"sync"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"stickychat/internal/app/notify"
	"stickychat/internal/pkg/errs"
	"stickychat/internal/pkg/logx"
)

func TestMain(m *testing.M) {
	logx.Discard()
	m.Run()
}

func TestGlobalChannelIsStable(t *testing.T) {
	r := NewRegistry()
	global := r.Global()

	require.NotNil(t, global)
	assert.Equal(t, GlobalID, global.ID())
	assert.Equal(t, TypeGlobal, global.Type())

	for i := 0; i < 10; i++ {
		c := r.Create(TypeCustom, "room")
		assert.True(t, r.Remove(c.ID()))
		assert.Same(t, global, r.Global())
	}

	got, ok := r.Get(GlobalID)
	require.True(t, ok)
	assert.Same(t, global, got)
}

func TestRemoveGlobalIsRejected(t *testing.T) {
	r := NewRegistry()

	assert.False(t, r.Remove(GlobalID))
	_, ok := r.Get(GlobalID)
	assert.True(t, ok)
	assert.NotNil(t, r.Global())
}

func TestRemoveUnknownReturnsFalse(t *testing.T) {
	r := NewRegistry()
	assert.False(t, r.Remove(uuid.New()))
}

func TestDuplicateNamesResolveIndependently(t *testing.T) {
	r := NewRegistry()

	a := r.Create(TypeCustom, "town")
	b := r.Create(TypeCustom, "town")
	require.NotEqual(t, a.ID(), b.ID())

	gotA, ok := r.Get(a.ID())
	require.True(t, ok)
	gotB, ok := r.Get(b.ID())
	require.True(t, ok)

	assert.Same(t, a, gotA)
	assert.Same(t, b, gotB)
}

func TestCreateRetriesOnCollision(t *testing.T) {
	r := NewRegistry()
	existing := r.Create(TypeCustom, "first")
	fresh := uuid.New()

	ids := []uuid.UUID{existing.ID(), GlobalID, fresh}
	r.newID = func() uuid.UUID {
		id := ids[0]
		ids = ids[1:]
		return id
	}

	c := r.Create(TypeLocal, "second")
	assert.Equal(t, fresh, c.ID())
	assert.Len(t, r.Channels(), 3)
}

func TestRestoreDuplicate(t *testing.T) {
	r := NewRegistry()
	id := uuid.New()

	_, err := r.Restore(id, TypeCustom, "staff")
	require.NoError(t, err)

	_, err = r.Restore(id, TypeCustom, "other")
	require.Error(t, err)
	assert.True(t, errors.Is(err, errs.NewError(errs.ErrDuplicateChannel)))

	_, err = r.Restore(GlobalID, TypeGlobal, "another global")
	assert.True(t, errs.HasCode(err, errs.ErrDuplicateChannel))
}

func TestOnlyReservedChannelIsGlobal(t *testing.T) {
	r := NewRegistry()

	_, err := r.Restore(uuid.New(), TypeGlobal, "shadow")
	assert.True(t, errs.HasCode(err, errs.ErrMalformedChannel))

	assert.Panics(t, func() { r.Create(TypeGlobal, "shadow") })

	require.Len(t, r.Channels(), 1)
	assert.True(t, r.Channels()[0].IsGlobal())
}

func TestDeserialize(t *testing.T) {
	id := uuid.New()

	tests := []struct {
		name    string
		key     string
		section map[string]any
		wantErr bool
	}{
		{"key as id", id.String(), map[string]any{"type": "custom", "name": "staff"}, false},
		{"explicit id", "staff", map[string]any{"id": id.String(), "type": "LOCAL", "name": "staff"}, false},
		{"missing type", id.String(), map[string]any{"name": "staff"}, true},
		{"unknown type", id.String(), map[string]any{"type": "party", "name": "staff"}, true},
		{"missing name", id.String(), map[string]any{"type": "custom"}, true},
		{"blank name", id.String(), map[string]any{"type": "custom", "name": "  "}, true},
		{"name not string", id.String(), map[string]any{"type": "custom", "name": 42}, true},
		{"bad id", "not-a-uuid", map[string]any{"type": "custom", "name": "staff"}, true},
		{"id not string", "x", map[string]any{"id": 7, "type": "custom", "name": "staff"}, true},
		{"second global", id.String(), map[string]any{"type": "global", "name": "staff"}, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r := NewRegistry()
			c, err := r.Deserialize(tt.key, tt.section)
			if tt.wantErr {
				require.Error(t, err)
				assert.True(t, errs.HasCode(err, errs.ErrMalformedChannel))
				assert.Len(t, r.Channels(), 1)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, id, c.ID())
			assert.Equal(t, "staff", c.Name())
		})
	}
}

func TestPlayerChannelDefaultsToGlobal(t *testing.T) {
	r := NewRegistry()
	player := uuid.New()

	assert.Same(t, r.Global(), r.PlayerChannel(player))

	town := r.Create(TypeCustom, "town")
	got, err := r.SetPlayerChannel(player, town.ID())
	require.NoError(t, err)
	assert.Same(t, town, got)
	assert.Same(t, town, r.PlayerChannel(player))
	assert.True(t, town.HasMember(player))

	_, err = r.SetPlayerChannel(player, uuid.New())
	assert.True(t, errs.HasCode(err, errs.ErrChannelNotFound))
	assert.Same(t, town, r.PlayerChannel(player))

	require.True(t, r.Remove(town.ID()))
	assert.Same(t, r.Global(), r.PlayerChannel(player))
}

func TestForgetPlayer(t *testing.T) {
	r := NewRegistry()
	player := uuid.New()
	a := r.Create(TypeCustom, "a")
	b := r.Create(TypeCustom, "b")

	_, err := r.SetPlayerChannel(player, a.ID())
	require.NoError(t, err)
	_, err = r.SetPlayerChannel(player, b.ID())
	require.NoError(t, err)
	assert.True(t, a.HasMember(player), "previous channel keeps membership")

	r.ForgetPlayer(player)
	assert.False(t, a.HasMember(player))
	assert.False(t, b.HasMember(player))
	assert.Same(t, r.Global(), r.PlayerChannel(player))
}

func TestChannelsSnapshotInInsertionOrder(t *testing.T) {
	r := NewRegistry()
	a := r.Create(TypeCustom, "a")
	b := r.Create(TypeCustom, "b")
	c, err := r.Restore(uuid.New(), TypeLocal, "c")
	require.NoError(t, err)

	snapshot := r.Channels()
	require.Len(t, snapshot, 4)
	assert.Same(t, r.Global(), snapshot[0])
	assert.Same(t, a, snapshot[1])
	assert.Same(t, b, snapshot[2])
	assert.Same(t, c, snapshot[3])

	r.Remove(a.ID())
	r.Create(TypeCustom, "d")
	assert.Len(t, snapshot, 4)
	assert.Same(t, a, snapshot[1])
}

func TestConcurrentCreateAndRead(t *testing.T) {
	r := NewRegistry()

	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		wg.Add(2)
		go func() {
			defer wg.Done()
			c := r.Create(TypeCustom, "load")
			got, ok := r.Get(c.ID())
			assert.True(t, ok)
			assert.Equal(t, "load", got.Name())
		}()
		go func() {
			defer wg.Done()
			for _, c := range r.Channels() {
				assert.NotEmpty(t, c.Name())
			}
		}()
	}
	wg.Wait()
	assert.Len(t, r.Channels(), 51)
}

func TestDeliver(t *testing.T) {
	ctx := context.Background()
	r := NewRegistry()
	sink := notify.NewRecorder()
	sender, member, outsider := uuid.New(), uuid.New(), uuid.New()

	town := r.Create(TypeCustom, "town")
	town.Join(sender)
	town.Join(member)

	town.Deliver(ctx, sink, sender, "hello town")
	require.Len(t, sink.For(member), 1)
	assert.Equal(t, "hello town", sink.For(member)[0].Content)
	assert.Equal(t, town.ID(), sink.For(member)[0].Channel)
	assert.Empty(t, sink.For(outsider))

	r.Global().Deliver(ctx, sink, sender, "hello world")
	require.Len(t, sink.Broadcasts(), 1)
	assert.Equal(t, notify.KindChannel, sink.Broadcasts()[0].Kind)
}

func TestGlobalDoesNotMaterializeMembers(t *testing.T) {
	global := NewRegistry().Global()
	player := uuid.New()

	assert.False(t, global.Join(player))
	assert.True(t, global.HasMember(player))
	assert.Empty(t, global.Members())
}
