/*
Package session manages the WebSocket sessions of the players connected to this instance.

The Hub is the instance's notification sink: the routing core hands it notifications and it
queues them on the recipient's connection. It also records presence in the directory as
players connect and leave, and tells senders about remote deliveries that failed. Each
Client runs a read loop that turns inbound frames into commands on the player's context and a
write loop that drains its outbound queue.

This file defines the frames exchanged with clients.
*/
package session

import (
	"encoding/json"
	"strings"
	"time"

	"github.com/google/uuid"

	"stickychat/internal/app/channel"
	"stickychat/internal/app/dm"
	"stickychat/internal/app/user"
	"stickychat/internal/pkg/errs"
	"stickychat/internal/pkg/randx"
)

// FrameType names a frame.
type FrameType string

// Frames sent by clients.
const (
	TypeDirect   FrameType = "DIRECT"
	TypeReply    FrameType = "REPLY"
	TypeChat     FrameType = "CHAT"
	TypeBlock    FrameType = "BLOCK"
	TypeUnblock  FrameType = "UNBLOCK"
	TypeDMToggle FrameType = "DM_TOGGLE"
	TypeJoin     FrameType = "JOIN"
)

// Frames sent by the server.
const (
	TypeInit         FrameType = "INIT"
	TypeNotification FrameType = "NOTIFICATION"
	TypeResult       FrameType = "RESULT"
	TypeConfirm      FrameType = "CONFIRM"
	TypeError        FrameType = "ERROR"
	TypeTokenUpdate  FrameType = "TOKEN_UPDATE"
)

// Frame is a server-to-client message.
type Frame struct {
	ID        string    `json:"id"`
	Type      FrameType `json:"type"`
	Timestamp int64     `json:"timestamp"`
	Payload   any       `json:"payload,omitempty"`
}

// NewFrame stamps payload with a fresh identifier and the current time.
func NewFrame(t FrameType, payload any) Frame {
	return Frame{
		ID:        randx.MessageID(),
		Type:      t,
		Timestamp: time.Now().UnixMilli(),
		Payload:   payload,
	}
}

// inboundFrame is a client-to-server message. TempID lets the client match the answer.
type inboundFrame struct {
	Type    FrameType       `json:"type"`
	Payload json.RawMessage `json:"payload,omitempty"`
	TempID  string          `json:"tempId,omitempty"`
}

// DirectPayload asks for a direct message.
type DirectPayload struct {
	To      string `json:"to"`
	Content string `json:"content"`
}

// ContentPayload carries text for REPLY and CHAT.
type ContentPayload struct {
	Content string `json:"content"`
}

// TargetPayload names the player a BLOCK or UNBLOCK applies to.
type TargetPayload struct {
	Target string `json:"target"`
}

// TogglePayload turns direct messages on or off.
type TogglePayload struct {
	Enabled bool `json:"enabled"`
}

// JoinPayload selects the active channel.
type JoinPayload struct {
	Channel string `json:"channel"`
}

// InitPayload is sent once when the session starts.
type InitPayload struct {
	CurrentUser           user.User    `json:"currentUser"`
	Instance              string       `json:"instance"`
	Channel               channel.Info `json:"channel"`
	DirectMessagesEnabled bool         `json:"directMessagesEnabled"`
}

// ResultPayload answers DIRECT and REPLY frames with the routing outcome.
type ResultPayload struct {
	TempID    string    `json:"tempId,omitempty"`
	Status    dm.Status `json:"status"`
	Target    user.ID   `json:"target"`
	Delivered bool      `json:"delivered"`
}

// ConfirmPayload acknowledges CHAT, BLOCK, UNBLOCK, DM_TOGGLE and JOIN frames.
type ConfirmPayload struct {
	TempID  string        `json:"tempId,omitempty"`
	Changed bool          `json:"changed"`
	Channel *channel.Info `json:"channel,omitempty"`
}

// ErrorPayload reports a rejected frame.
type ErrorPayload struct {
	TempID  string `json:"tempId,omitempty"`
	Code    int    `json:"code"`
	Message string `json:"message"`
}

// TokenUpdatePayload hands the client a refreshed session token.
type TokenUpdatePayload struct {
	Token string `json:"token"`
}

func parseID(s string) (uuid.UUID, bool) {
	id, err := uuid.Parse(s)
	if err != nil || id == uuid.Nil {
		return uuid.Nil, false
	}
	return id, true
}

// uuidOrGlobal resolves a JOIN target. An empty value or the global channel's name selects
// the global channel.
func uuidOrGlobal(s string) (uuid.UUID, error) {
	if s == "" || strings.EqualFold(s, channel.GlobalName) {
		return channel.GlobalID, nil
	}
	id, err := uuid.Parse(s)
	if err != nil {
		return uuid.Nil, errs.NewError(errs.ErrInvalidParams)
	}
	return id, nil
}
