package session

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/time/rate"

	"stickychat/internal/app/channel"
	"stickychat/internal/app/directory"
	"stickychat/internal/app/dm"
	"stickychat/internal/app/notify"
	"stickychat/internal/app/player"
	"stickychat/internal/app/priority"
	"stickychat/internal/app/user"
	"stickychat/internal/pkg/errs"
	"stickychat/internal/pkg/limiter"
)

// serve runs e behind a WebSocket endpoint identified by the uid and name query parameters.
func (e *env) serve(t *testing.T, opts ClientOptions) *httptest.Server {
	t.Helper()
	upgrader := websocket.Upgrader{}

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		id, err := uuid.Parse(r.URL.Query().Get("uid"))
		if err != nil {
			http.Error(w, "bad uid", http.StatusBadRequest)
			return
		}
		p, err := player.New(r.Context(), e.deps, user.User{ID: id, Name: r.URL.Query().Get("name")}, priority.Direct)
		if err != nil {
			http.Error(w, err.Error(), http.StatusInternalServerError)
			return
		}

		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			return
		}

		c := NewClient(e.hub, conn, p, opts)
		go c.WritePump()
		if err := e.hub.Register(r.Context(), c); err != nil {
			_ = conn.Close()
			return
		}
		c.ReadPump(context.Background())
	}))
	t.Cleanup(srv.Close)
	return srv
}

type peer struct {
	t    *testing.T
	id   user.ID
	conn *websocket.Conn
}

func dial(t *testing.T, srv *httptest.Server, id user.ID, name string) *peer {
	t.Helper()
	url := "ws" + strings.TrimPrefix(srv.URL, "http") + "/?uid=" + id.String() + "&name=" + name
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	require.NoError(t, err)
	t.Cleanup(func() { _ = conn.Close() })

	p := &peer{t: t, id: id, conn: conn}
	require.Equal(t, TypeInit, p.next().Type)
	return p
}

func (p *peer) next() wireFrame {
	p.t.Helper()
	require.NoError(p.t, p.conn.SetReadDeadline(time.Now().Add(2*time.Second)))
	var f wireFrame
	require.NoError(p.t, p.conn.ReadJSON(&f))
	return f
}

func (p *peer) write(t FrameType, tempID string, payload any) {
	p.t.Helper()
	require.NoError(p.t, p.conn.WriteJSON(map[string]any{
		"type":    t,
		"tempId":  tempID,
		"payload": payload,
	}))
}

func (p *peer) expectError(tempID string, code int) {
	p.t.Helper()
	f := p.next()
	require.Equal(p.t, TypeError, f.Type)
	var e ErrorPayload
	f.decode(p.t, &e)
	assert.Equal(p.t, tempID, e.TempID)
	assert.Equal(p.t, code, e.Code)
}

func TestDirectMessageAndReplyOverWebSocket(t *testing.T) {
	e := newEnv()
	srv := e.serve(t, ClientOptions{})
	alice := dial(t, srv, uuid.New(), "alice")
	bob := dial(t, srv, uuid.New(), "bob")

	alice.write(TypeDirect, "t1", DirectPayload{To: bob.id.String(), Content: "hi bob"})

	f := alice.next()
	require.Equal(t, TypeResult, f.Type)
	var res ResultPayload
	f.decode(t, &res)
	assert.Equal(t, "t1", res.TempID)
	assert.Equal(t, dm.StatusDeliveredLocal, res.Status)
	assert.Equal(t, bob.id, res.Target)
	assert.True(t, res.Delivered)

	f = bob.next()
	require.Equal(t, TypeNotification, f.Type)
	var n notify.Notification
	f.decode(t, &n)
	assert.Equal(t, notify.KindDirect, n.Kind)
	assert.Equal(t, alice.id, n.From)
	assert.Equal(t, "hi bob", n.Content)

	bob.write(TypeReply, "t2", ContentPayload{Content: "hi alice"})
	f = bob.next()
	require.Equal(t, TypeResult, f.Type)
	f.decode(t, &res)
	assert.Equal(t, alice.id, res.Target)

	f = alice.next()
	require.Equal(t, TypeNotification, f.Type)
	f.decode(t, &n)
	assert.Equal(t, "hi alice", n.Content)
}

func TestBlockOverWebSocket(t *testing.T) {
	e := newEnv()
	srv := e.serve(t, ClientOptions{})
	alice := dial(t, srv, uuid.New(), "alice")
	bob := dial(t, srv, uuid.New(), "bob")

	bob.write(TypeBlock, "b1", TargetPayload{Target: alice.id.String()})
	f := bob.next()
	require.Equal(t, TypeConfirm, f.Type)
	var confirm ConfirmPayload
	f.decode(t, &confirm)
	assert.True(t, confirm.Changed)

	alice.write(TypeDirect, "d1", DirectPayload{To: bob.id.String(), Content: "let me in"})
	f = alice.next()
	var res ResultPayload
	f.decode(t, &res)
	assert.Equal(t, dm.StatusBlocked, res.Status)
	assert.False(t, res.Delivered)

	bob.write(TypeBlock, "b2", TargetPayload{Target: bob.id.String()})
	bob.expectError("b2", errs.ErrSelfBlock)
}

func TestToggleOverWebSocket(t *testing.T) {
	e := newEnv()
	srv := e.serve(t, ClientOptions{})
	alice := dial(t, srv, uuid.New(), "alice")
	bob := dial(t, srv, uuid.New(), "bob")

	bob.write(TypeDMToggle, "x", TogglePayload{Enabled: false})
	var confirm ConfirmPayload
	bob.next().decode(t, &confirm)
	assert.True(t, confirm.Changed)

	alice.write(TypeDirect, "d1", DirectPayload{To: bob.id.String(), Content: "hello"})
	var res ResultPayload
	alice.next().decode(t, &res)
	assert.Equal(t, dm.StatusTargetDisabled, res.Status)
}

func TestChatAndJoinOverWebSocket(t *testing.T) {
	e := newEnv()
	town := e.deps.Channels.Create(channel.TypeCustom, "town")
	srv := e.serve(t, ClientOptions{})
	alice := dial(t, srv, uuid.New(), "alice")
	bob := dial(t, srv, uuid.New(), "bob")

	alice.write(TypeChat, "c1", ContentPayload{Content: "hello everyone"})
	assert.Equal(t, TypeNotification, alice.next().Type)
	f := alice.next()
	require.Equal(t, TypeConfirm, f.Type)
	var confirm ConfirmPayload
	f.decode(t, &confirm)
	require.NotNil(t, confirm.Channel)
	assert.Equal(t, channel.GlobalID, confirm.Channel.ID)
	assert.Equal(t, TypeNotification, bob.next().Type)

	alice.write(TypeJoin, "j1", JoinPayload{Channel: town.ID().String()})
	alice.next().decode(t, &confirm)
	require.NotNil(t, confirm.Channel)
	assert.Equal(t, town.ID(), confirm.Channel.ID)

	alice.write(TypeJoin, "j2", JoinPayload{Channel: uuid.NewString()})
	alice.expectError("j2", errs.ErrChannelNotFound)

	alice.write(TypeJoin, "j3", JoinPayload{Channel: "global"})
	alice.next().decode(t, &confirm)
	assert.Equal(t, channel.GlobalID, confirm.Channel.ID)
}

func TestInvalidFramesOverWebSocket(t *testing.T) {
	e := newEnv()
	srv := e.serve(t, ClientOptions{})
	alice := dial(t, srv, uuid.New(), "alice")

	require.NoError(t, alice.conn.WriteMessage(websocket.TextMessage, []byte("{not json")))
	alice.expectError("", errs.ErrInvalidJSONFormat)

	alice.write("DANCE", "u1", nil)
	alice.expectError("u1", errs.ErrInvalidParams)

	alice.write(TypeDirect, "d1", DirectPayload{To: "nobody", Content: "hi"})
	alice.expectError("d1", errs.ErrInvalidParams)

	alice.write(TypeDirect, "d2", DirectPayload{To: uuid.Nil.String(), Content: "hi"})
	alice.expectError("d2", errs.ErrInvalidParams)

	alice.write(TypeReply, "r1", ContentPayload{Content: "   "})
	alice.expectError("r1", errs.ErrMessageContentEmpty)

	alice.write(TypeChat, "c1", ContentPayload{Content: strings.Repeat("a", MaxContentBytes+1)})
	alice.expectError("c1", errs.ErrMessageContentTooLong)
}

func TestSendRateLimitOverWebSocket(t *testing.T) {
	e := newEnv()
	lim := limiter.NewKeyed("dm", rate.Limit(0.001), 1)
	t.Cleanup(lim.Close)
	srv := e.serve(t, ClientOptions{SendLimiter: lim})
	alice := dial(t, srv, uuid.New(), "alice")

	alice.write(TypeReply, "r1", ContentPayload{Content: "anyone?"})
	var res ResultPayload
	alice.next().decode(t, &res)
	assert.Equal(t, dm.StatusTargetUnavailable, res.Status)

	alice.write(TypeReply, "r2", ContentPayload{Content: "anyone?"})
	alice.expectError("r2", errs.ErrRateLimitExceeded)
}

func TestDuplicateConnectionKicksPrevious(t *testing.T) {
	e := newEnv()
	srv := e.serve(t, ClientOptions{})
	id := uuid.New()

	first := dial(t, srv, id, "alice")
	second := dial(t, srv, id, "alice")

	require.NoError(t, first.conn.SetReadDeadline(time.Now().Add(2*time.Second)))
	_, _, err := first.conn.ReadMessage()
	require.Error(t, err)
	assert.True(t, websocket.IsCloseError(err, WsCloseCodeSessionKicked), "unexpected error: %v", err)

	assert.Equal(t, 1, e.hub.Count())
	loc, err := e.view.Locate(e.ctx, id)
	require.NoError(t, err)
	assert.Equal(t, directory.Local, loc.Kind)

	second.write(TypeReply, "r1", ContentPayload{Content: "still here"})
	assert.Equal(t, TypeResult, second.next().Type)

	_, tracked := e.deps.Store.Lookup(id)
	assert.True(t, tracked)
}

func TestPresenceMovedClosesLocalConnection(t *testing.T) {
	e := newEnv()
	srv := e.serve(t, ClientOptions{})
	alice := dial(t, srv, uuid.New(), "alice")

	e.hub.PresenceMoved(alice.id)
	e.hub.PresenceMoved(uuid.New())

	require.NoError(t, alice.conn.SetReadDeadline(time.Now().Add(2*time.Second)))
	_, _, err := alice.conn.ReadMessage()
	require.Error(t, err)
	assert.True(t, websocket.IsCloseError(err, WsCloseCodeSessionKicked), "unexpected error: %v", err)

	require.Eventually(t, func() bool { return e.hub.Count() == 0 }, 2*time.Second, 10*time.Millisecond)
}

func TestDisconnectClearsPresence(t *testing.T) {
	e := newEnv()
	srv := e.serve(t, ClientOptions{})
	alice := dial(t, srv, uuid.New(), "alice")

	require.NoError(t, alice.conn.WriteMessage(websocket.CloseMessage,
		websocket.FormatCloseMessage(websocket.CloseNormalClosure, "bye")))

	require.Eventually(t, func() bool {
		loc, err := e.view.Locate(e.ctx, alice.id)
		return err == nil && loc.Kind == directory.Offline
	}, 2*time.Second, 10*time.Millisecond)
	assert.Equal(t, 0, e.hub.Count())

	_, tracked := e.deps.Store.Lookup(alice.id)
	assert.False(t, tracked)
}
