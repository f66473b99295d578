/*
Package notify defines the notification sink: the mechanism that actually puts a message
in front of a connected player. The routing core calls it fire-and-forget; rendering is
the sink's concern.
*/
package notify

import (
	"context"
	"sync"

	"github.com/google/uuid"

	"stickychat/internal/app/user"
)

// Type classifies how a notification should be presented.
type Type string

const (
	TypeSuccess Type = "success"
	TypeInfo    Type = "info"
	TypeQuiet   Type = "quiet"
	TypeError   Type = "error"
)

// Kind names the routing path that produced a notification.
type Kind string

const (
	KindDirect  Kind = "direct"
	KindChannel Kind = "channel"
	KindSystem  Kind = "system"
)

// Notification is the payload handed to a sink.
type Notification struct {
	Type    Type      `json:"type"`
	Kind    Kind      `json:"kind"`
	From    user.ID   `json:"from"`
	Channel uuid.UUID `json:"channel,omitempty"`
	Content string    `json:"content"`
}

// Sink delivers notifications to players connected to this instance.
type Sink interface {
	// Notify delivers n to recipient if they are connected here. It never blocks on the client.
	Notify(ctx context.Context, recipient user.ID, n Notification)

	// Broadcast delivers n to every player connected here.
	Broadcast(ctx context.Context, n Notification)
}

// Recorder is a Sink that keeps every notification in memory. It backs tests and
// headless deployments.
type Recorder struct {
	mu        sync.Mutex
	delivered map[user.ID][]Notification
	broadcast []Notification
}

// NewRecorder returns an empty Recorder.
func NewRecorder() *Recorder {
	return &Recorder{delivered: make(map[user.ID][]Notification)}
}

// Notify implements Sink.
func (r *Recorder) Notify(_ context.Context, recipient user.ID, n Notification) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.delivered[recipient] = append(r.delivered[recipient], n)
}

// Broadcast implements Sink.
func (r *Recorder) Broadcast(_ context.Context, n Notification) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.broadcast = append(r.broadcast, n)
}

// For returns a copy of the notifications delivered to recipient.
func (r *Recorder) For(recipient user.ID) []Notification {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]Notification, len(r.delivered[recipient]))
	copy(out, r.delivered[recipient])
	return out
}

// Broadcasts returns a copy of the broadcast notifications.
func (r *Recorder) Broadcasts() []Notification {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]Notification, len(r.broadcast))
	copy(out, r.broadcast)
	return out
}
