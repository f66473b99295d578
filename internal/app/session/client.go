package session

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"
	"unicode/utf8"

	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"

	"stickychat/internal/app/dm"
	"stickychat/internal/app/player"
	"stickychat/internal/pkg/auth/jwt"
	"stickychat/internal/pkg/errs"
	"stickychat/internal/pkg/limiter"
	"stickychat/internal/pkg/logx"
)

const (
	// timeout duration for writing to the WebSocket connection.
	writeWait = 10 * time.Second

	// maximum time allowed for the server to wait for a Pong message from the client.
	pongWait = 60 * time.Second

	// frequency at which the server sends a Ping message.
	pingPeriod = (pongWait * 9) / 10

	// maximum allowed size (in bytes) of a frame sent by the client.
	maxMessageSize = 8192

	// size of the outbound queue of each client.
	sendQueueSize = 256

	// MaxContentBytes is the maximum allowed size (in bytes) of message content.
	MaxContentBytes = 2000

	// WsCloseCodeSessionKicked is a custom WebSocket Close Code (4000-4999 range)
	// used to signal the client that the session was replaced by a new connection.
	WsCloseCodeSessionKicked = 4001

	// TokenRefreshWindow defines how much time before the token expires we should attempt to refresh it.
	TokenRefreshWindow = 2 * time.Minute
)

var errQueueClosed = errors.New("client send queue closed")

// ClientOptions carries the per-connection settings.
type ClientOptions struct {
	// JWTSecret signs refreshed session tokens; empty disables refresh.
	JWTSecret string

	// TokenExpiry is the expiration of the token the session was opened with.
	TokenExpiry time.Time

	// SendLimiter throttles DIRECT, REPLY and CHAT frames per player; nil disables it.
	SendLimiter *limiter.Keyed
}

// Client represents an active WebSocket connection and the player behind it.
type Client struct {
	hub *Hub

	// underlying WebSocket connection object.
	conn *websocket.Conn

	// the player's session context.
	player *player.Player

	opts ClientOptions

	// tokenExpiry is only touched by WritePump.
	tokenExpiry time.Time

	// a buffered channel used to queue frames waiting to be sent to the client.
	send chan []byte

	// mu guards closed; send is never written after closed is set.
	mu     sync.Mutex
	closed bool

	// structured logger with client context.
	logger zerolog.Logger
}

// NewClient constructs a Client for p on conn.
func NewClient(hub *Hub, conn *websocket.Conn, p *player.Player, opts ClientOptions) *Client {
	return &Client{
		hub:         hub,
		conn:        conn,
		player:      p,
		opts:        opts,
		tokenExpiry: opts.TokenExpiry,
		send:        make(chan []byte, sendQueueSize),
		logger: logx.Component("Client").With().
			Str("client_id", p.ID.String()).
			Logger(),
	}
}

// ReadPump handles reading frames from the WebSocket connection until it closes,
// then unregisters the client.
func (c *Client) ReadPump(ctx context.Context) {
	defer c.cleanupOnDisconnect(ctx)

	c.conn.SetReadLimit(maxMessageSize)

	if err := c.conn.SetReadDeadline(time.Now().Add(pongWait)); err != nil {
		c.logger.Error().Err(err).Msg("Failed to set read deadline")
		return
	}

	c.conn.SetPongHandler(func(string) error {
		return c.conn.SetReadDeadline(time.Now().Add(pongWait))
	})

	for {
		_, messageBytes, err := c.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				c.logger.Info().Err(err).Msg("Error reading message (Client close/going away)")
			}
			break
		}

		c.processInboundMessage(ctx, messageBytes)
	}
}

// cleanupOnDisconnect handles the necessary cleanup steps when the client's ReadPump terminates.
func (c *Client) cleanupOnDisconnect(ctx context.Context) {
	c.logger.Debug().Msg("Client connection cleanup starting.")

	c.hub.Unregister(context.WithoutCancel(ctx), c)

	if err := c.conn.Close(); err != nil {
		c.logger.Debug().Err(err).Msg("Client connection close error")
	}
}

// processInboundMessage decodes one frame and runs the command it carries.
func (c *Client) processInboundMessage(ctx context.Context, messageBytes []byte) {
	var in inboundFrame
	if err := json.Unmarshal(messageBytes, &in); err != nil {
		c.logger.Warn().Err(err).Msg("Client sent invalid JSON")
		c.SendError("", errs.NewError(errs.ErrInvalidJSONFormat))
		return
	}

	var err error
	switch in.Type {
	case TypeDirect:
		err = c.handleDirect(ctx, in)
	case TypeReply:
		err = c.handleReply(ctx, in)
	case TypeChat:
		err = c.handleChat(ctx, in)
	case TypeBlock, TypeUnblock:
		err = c.handleBlock(ctx, in)
	case TypeDMToggle:
		err = c.handleToggle(ctx, in)
	case TypeJoin:
		err = c.handleJoin(in)
	default:
		c.logger.Warn().Str("msg_type", string(in.Type)).Msg("Client sent unsupported frame type")
		err = errs.NewError(errs.ErrInvalidParams)
	}

	if err != nil {
		c.SendError(in.TempID, err)
	}
}

func decodePayload(raw json.RawMessage, dst any) error {
	if err := json.Unmarshal(raw, dst); err != nil {
		return errs.NewError(errs.ErrInvalidParams)
	}
	return nil
}

// checkContent validates message text and the player's send rate.
func (c *Client) checkContent(content string) error {
	if strings.TrimSpace(content) == "" {
		return errs.NewError(errs.ErrMessageContentEmpty)
	}
	if len(content) > MaxContentBytes || !utf8.ValidString(content) {
		return errs.NewError(errs.ErrMessageContentTooLong)
	}
	if c.opts.SendLimiter != nil && !c.opts.SendLimiter.Allow(c.player.ID.String()) {
		return errs.NewError(errs.ErrRateLimitExceeded)
	}
	return nil
}

func (c *Client) handleDirect(ctx context.Context, in inboundFrame) error {
	var p DirectPayload
	if err := decodePayload(in.Payload, &p); err != nil {
		return err
	}
	to, ok := parseID(p.To)
	if !ok {
		return errs.NewError(errs.ErrInvalidParams)
	}
	if err := c.checkContent(p.Content); err != nil {
		return err
	}

	res, err := c.player.SendTo(ctx, to, p.Content)
	if err != nil {
		return err
	}
	return c.sendResult(in.TempID, res)
}

func (c *Client) handleReply(ctx context.Context, in inboundFrame) error {
	var p ContentPayload
	if err := decodePayload(in.Payload, &p); err != nil {
		return err
	}
	if err := c.checkContent(p.Content); err != nil {
		return err
	}

	res, err := c.player.Reply(ctx, p.Content)
	if err != nil {
		return err
	}
	return c.sendResult(in.TempID, res)
}

func (c *Client) handleChat(ctx context.Context, in inboundFrame) error {
	var p ContentPayload
	if err := decodePayload(in.Payload, &p); err != nil {
		return err
	}
	if err := c.checkContent(p.Content); err != nil {
		return err
	}

	info := c.player.Say(ctx, p.Content).Info()
	return c.sendFrame(NewFrame(TypeConfirm, ConfirmPayload{TempID: in.TempID, Changed: true, Channel: &info}))
}

func (c *Client) handleBlock(ctx context.Context, in inboundFrame) error {
	var p TargetPayload
	if err := decodePayload(in.Payload, &p); err != nil {
		return err
	}
	target, ok := parseID(p.Target)
	if !ok {
		return errs.NewError(errs.ErrInvalidParams)
	}

	var (
		changed bool
		err     error
	)
	if in.Type == TypeBlock {
		changed, err = c.player.Block(ctx, target)
	} else {
		changed, err = c.player.Unblock(ctx, target)
	}
	if err != nil {
		return err
	}
	return c.sendFrame(NewFrame(TypeConfirm, ConfirmPayload{TempID: in.TempID, Changed: changed}))
}

func (c *Client) handleToggle(ctx context.Context, in inboundFrame) error {
	var p TogglePayload
	if err := decodePayload(in.Payload, &p); err != nil {
		return err
	}

	changed, err := c.player.SetDirectMessages(ctx, p.Enabled)
	if err != nil {
		return err
	}
	return c.sendFrame(NewFrame(TypeConfirm, ConfirmPayload{TempID: in.TempID, Changed: changed}))
}

func (c *Client) handleJoin(in inboundFrame) error {
	var p JoinPayload
	if err := decodePayload(in.Payload, &p); err != nil {
		return err
	}
	id, err := uuidOrGlobal(p.Channel)
	if err != nil {
		return err
	}

	ch, err := c.player.JoinChannel(id)
	if err != nil {
		return err
	}
	info := ch.Info()
	return c.sendFrame(NewFrame(TypeConfirm, ConfirmPayload{TempID: in.TempID, Changed: true, Channel: &info}))
}

func (c *Client) sendResult(tempID string, res dm.Result) error {
	return c.sendFrame(NewFrame(TypeResult, ResultPayload{
		TempID:    tempID,
		Status:    res.Status,
		Target:    res.Target,
		Delivered: res.Delivered(),
	}))
}

// WritePump handles writing frames from the send queue to the WebSocket connection.
func (c *Client) WritePump() {
	ticker := time.NewTicker(pingPeriod)

	defer func() {
		ticker.Stop()

		// ensure the connection is closed on exit
		if err := c.conn.Close(); err != nil {
			c.logger.Debug().Err(err).Msg("Client connection close error in WritePump")
		}
	}()

	for {
		select {
		case message, ok := <-c.send:
			if !c.writeQueuedMessage(message, ok) {
				return
			}

		case <-ticker.C:
			if !c.writePingMessage() {
				return
			}

			c.checkAndRefreshToken()
		}
	}
}

// writeQueuedMessage writes one queued frame. It returns false when the loop should stop.
func (c *Client) writeQueuedMessage(message []byte, ok bool) bool {
	if err := c.conn.SetWriteDeadline(time.Now().Add(writeWait)); err != nil {
		c.logger.Error().Err(err).Msg("Failed to set write deadline")
		return false
	}

	if !ok {
		if err := c.conn.WriteMessage(websocket.CloseMessage, []byte{}); err != nil {
			c.logger.Debug().Err(err).Msg("Error writing close message")
		}
		return false
	}

	if err := c.conn.WriteMessage(websocket.TextMessage, message); err != nil {
		c.logger.Error().Err(err).Msg("Error writing message")
		return false
	}

	return true
}

// writePingMessage sends a periodic WebSocket Ping message to maintain the connection heartbeat.
func (c *Client) writePingMessage() bool {
	if err := c.conn.SetWriteDeadline(time.Now().Add(writeWait)); err != nil {
		c.logger.Error().Err(err).Msg("Failed to set write deadline on ping")
		return false
	}

	if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
		c.logger.Error().Err(err).Msg("Error writing ping")
		return false
	}

	return true
}

// checkAndRefreshToken issues a new session token when the current one is close to expiry.
func (c *Client) checkAndRefreshToken() {
	if c.opts.JWTSecret == "" || c.tokenExpiry.IsZero() {
		return
	}
	if time.Now().Before(c.tokenExpiry.Add(-TokenRefreshWindow)) {
		return
	}

	c.logger.Info().
		Time("current_expiry", c.tokenExpiry).
		Dur("refresh_window", TokenRefreshWindow).
		Msg("JWT token is nearing expiry, attempting refresh.")

	payload := &jwt.Payload{
		ID:       c.player.ID.String(),
		Name:     c.player.Name,
		Priority: c.player.Priority().String(),
	}

	tokenString, err := jwt.GenerateToken(payload, c.opts.JWTSecret, jwt.SessionExpiration)
	if err != nil {
		c.logger.Error().Err(err).Msg("Failed to generate new token. Aborting refresh.")
		return
	}

	if err := c.sendFrame(NewFrame(TypeTokenUpdate, TokenUpdatePayload{Token: tokenString})); err != nil {
		c.logger.Error().Err(err).Msg("Failed to send token update to client.")
		return
	}

	c.tokenExpiry = payload.Expiry()
}

// sendFrame marshals f and queues it without blocking.
func (c *Client) sendFrame(f Frame) error {
	messageBytes, err := json.Marshal(f)
	if err != nil {
		return fmt.Errorf("marshal %s frame: %w", f.Type, err)
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	if c.closed {
		return errQueueClosed
	}

	select {
	case c.send <- messageBytes:
		return nil
	default:
		c.logger.Warn().Int("queue_len", len(c.send)).Msg("Client send channel full, dropping message")
		return fmt.Errorf("client send queue full")
	}
}

// closeSend closes the outbound queue once; WritePump then sends a close frame and exits.
func (c *Client) closeSend() {
	c.mu.Lock()
	defer c.mu.Unlock()

	if !c.closed {
		c.closed = true
		close(c.send)
	}
}

// SendError reports err to the client, mapping foreign errors to ErrUnknown.
func (c *Client) SendError(tempID string, err error) {
	customErr := errs.From(err)

	if sendErr := c.sendFrame(NewFrame(TypeError, ErrorPayload{
		TempID:  tempID,
		Code:    customErr.Code,
		Message: customErr.Message,
	})); sendErr != nil {
		c.logger.Error().Err(sendErr).Msg("Failed to queue error message")
	}
}

// Kick closes the connection with the given close code. WriteControl is safe to call
// concurrently with WritePump.
func (c *Client) Kick(code int, reason string) {
	c.logger.Warn().
		Int("close_code", code).
		Str("reason", reason).
		Msg("Sending WS close message and closing connection.")

	closeMessage := websocket.FormatCloseMessage(code, reason)
	if err := c.conn.WriteControl(websocket.CloseMessage, closeMessage, time.Now().Add(writeWait)); err != nil {
		c.logger.Debug().Err(err).Msg("Failed to send WS close message.")
	}

	c.closeSend()
}
