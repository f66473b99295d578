package dm

import "stickychat/internal/app/user"

// Status is the outcome of a single direct-message attempt. Non-delivered statuses
// are expected outcomes callers branch on, not failures of the router.
type Status string

const (
	StatusDeliveredLocal    Status = "DELIVERED_LOCAL"
	StatusDeliveredRemote   Status = "DELIVERED_REMOTE"
	StatusBlocked           Status = "BLOCKED"
	StatusTargetDisabled    Status = "TARGET_DISABLED"
	StatusPriorityDenied    Status = "PRIORITY_DENIED"
	StatusTargetUnavailable Status = "TARGET_UNAVAILABLE"
	StatusSelfTarget        Status = "SELF_TARGET"
)

// Delivered reports whether the message was delivered or handed off for delivery.
func (s Status) Delivered() bool {
	return s == StatusDeliveredLocal || s == StatusDeliveredRemote
}

// Result is the immutable outcome of one send attempt.
type Result struct {
	// Status is the routing outcome.
	Status Status `json:"status"`

	// Target is the resolved recipient; the zero ID when no target could be resolved.
	Target user.ID `json:"target"`
}

// Delivered reports whether the attempt delivered or handed off the message.
func (r Result) Delivered() bool {
	return r.Status.Delivered()
}

// Target selects a recipient: an explicit player or the sender's last contact.
type Target struct {
	id   user.ID
	last bool
}

// To targets an explicit player.
func To(id user.ID) Target {
	return Target{id: id}
}

// Last targets the sender's last-contacted player.
var Last = Target{last: true}
