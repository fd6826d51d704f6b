package coordinator

import (
	"github.com/p-blackswan/santa-bot/internal/matcher"
	"github.com/p-blackswan/santa-bot/internal/santa"
)

// Status tags the outcome of an operation.
type Status string

const (
	StatusOK             Status = "ok"
	StatusAlreadyExists  Status = "already_exists"
	StatusNotFound       Status = "not_found"
	StatusNotAuthorized  Status = "not_authorized"
	StatusGuardFailed    Status = "guard_failed"
	StatusPartialFailure Status = "partial_failure"
	StatusDraftingFailed Status = "drafting_failed"
	StatusUnavailable    Status = "unavailable"
)

// Reason details a StatusGuardFailed outcome.
type Reason string

const (
	ReasonAlreadyJoined  Reason = "already joined"
	ReasonFull           Reason = "participant limit reached"
	ReasonNotParticipant Reason = "not a participant"
	ReasonAlreadyStarted Reason = "already started"
	ReasonBelowMinimum   Reason = "below minimum participants"
	ReasonOddCount       Reason = "odd participant count"
	ReasonRevokeDisabled Reason = "revoke disabled"
	ReasonNotExpired     Reason = "not expired"
	ReasonSameRoom       Reason = "same room"
)

// Result describes what an operation did and what the transport must deliver.
type Result struct {
	Status Status `json:"status"`
	Reason Reason `json:"reason,omitempty"`
	// Notice is the short text shown to the actor.
	Notice string `json:"notice,omitempty"`
	// Unreachable lists participants that failed the reachability probe or
	// whose match could not be delivered.
	Unreachable []string `json:"unreachable,omitempty"`
	// Session is a snapshot taken after the operation.
	Session *santa.Session `json:"session,omitempty"`
	Plan    []Notification `json:"-"`
	Matches []matcher.Pair `json:"-"`
}

// OK reports whether the operation changed state as requested.
func (r Result) OK() bool { return r.Status == StatusOK }

// Kind tags a notification.
type Kind string

const (
	KindPostAnnouncement     Kind = "post_announcement"
	KindRenderAnnouncement   Kind = "render_announcement"
	KindReplaceAnnouncement  Kind = "replace_announcement"
	KindSendPrivate          Kind = "send_private"
	KindClearPrivateControls Kind = "clear_private_controls"
)

// Control is an interactive element attached to a message.
type Control string

const (
	ControlJoin   Control = "join"
	ControlLeave  Control = "leave"
	ControlStart  Control = "start"
	ControlCancel Control = "cancel"
	ControlRename Control = "rename"
)

// Notification is one outbound delivery.
//
// Room announcements use Room, Ref, Text and Controls. A render with an empty
// Ref targets the announcement posted earlier in the same plan. Private
// messages use Recipient, Text and optionally Ref, the message they answer or
// edit.
//
// Seq orders the announcement edits of a room in the order the coordinator
// committed them. An edit with a lower Seq than one already delivered for the
// room is stale.
type Notification struct {
	Kind      Kind
	Room      string
	SessionID string
	Recipient string
	Text      string
	Ref       string
	Controls  []Control
	Seq       uint64
	Session   *santa.Session
	// Bind, when set, asks the executor to record the delivered message ref.
	Bind *Binding
}

// BindKind names the message a Binding records.
type BindKind string

const (
	BindAnnouncement BindKind = "announcement"
	BindJoin         BindKind = "join"
	BindMatch        BindKind = "match"
)

// Binding links a delivered message back to the session.
type Binding struct {
	Kind        BindKind
	Room        string
	SessionID   string
	Participant string
	Ref         string
}
