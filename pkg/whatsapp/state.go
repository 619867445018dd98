package whatsapp

import (
	"strings"
	"time"
)

type State string

const (
	StateDisconnected State = "disconnected"
	StateConnecting   State = "connecting"
	StateQRPending    State = "qr_pending"
	StatePaired       State = "paired"
	StateConnected    State = "connected"
	StateLoggedOut    State = "logged_out"
)

const (
	ChallengeQR       = "qr"
	ChallengePairCode = "pair_code"
)

// Snapshot is the observable state of one instance.
type Snapshot struct {
	Instance      string    `json:"instance"`
	State         State     `json:"status"`
	Attempts      int       `json:"attempts"`
	JID           string    `json:"jid,omitempty"`
	PushName      string    `json:"push_name,omitempty"`
	Challenge     string    `json:"-"`
	ChallengeKind string    `json:"challenge,omitempty"`
	LastReason    string    `json:"last_reason,omitempty"`
	GaveUp        bool      `json:"gave_up"`
	UpdatedAt     time.Time `json:"updated_at"`
}

// Event is a lifecycle input for Transition.
type Event interface {
	event()
}

// EventStart is an explicit start request. It resets the retry counter.
type EventStart struct{}

// EventRetry is a governed reconnect attempt fired by the reconnect timer.
type EventRetry struct{}

// EventStop stops the session without counting a retry.
type EventStop struct{}

type EventQR struct{ Code string }

type EventPairCode struct{ Code string }

type EventPaired struct{ JID string }

type EventOpen struct {
	JID      string
	PushName string
}

type EventClose struct {
	Reason string
	Code   int
}

type EventCredentialsUpdated struct{ JID string }

type EventLogout struct{ Reason string }

func (EventStart) event()              {}
func (EventRetry) event()              {}
func (EventStop) event()               {}
func (EventQR) event()                 {}
func (EventPairCode) event()           {}
func (EventPaired) event()             {}
func (EventOpen) event()               {}
func (EventClose) event()              {}
func (EventCredentialsUpdated) event() {}
func (EventLogout) event()             {}

// Action is a side effect requested by Transition and executed by the Manager.
type Action interface {
	action()
}

type ActionConnect struct{}

// ActionDisconnect closes the live handle and cancels pending timers.
type ActionDisconnect struct{}

type ActionScheduleReconnect struct {
	Delay   time.Duration
	Attempt int
}

type ActionScheduleSync struct{ Delay time.Duration }

type ActionDeleteCredentials struct{}

type ActionPersistStatus struct{}

type ActionNotify struct{ Event string }

type ActionGiveUp struct{ Attempts int }

func (ActionConnect) action()           {}
func (ActionDisconnect) action()        {}
func (ActionScheduleReconnect) action() {}
func (ActionScheduleSync) action()      {}
func (ActionDeleteCredentials) action() {}
func (ActionPersistStatus) action()     {}
func (ActionNotify) action()            {}
func (ActionGiveUp) action()            {}

// Webhook event names emitted through ActionNotify.
const (
	NotifyConnectionUpdate = "connection.update"
	NotifyQRCodeUpdated    = "qrcode.updated"
	NotifyMessagesUpsert   = "messages.upsert"
	NotifyContactsUpsert   = "contacts.upsert"
	NotifySyncCompleted    = "sync.completed"
)

// IsAuthoritativeLogout reports whether a close means the credentials were revoked.
func IsAuthoritativeLogout(reason string, code int) bool {
	if code == 401 || code == 403 {
		return true
	}
	reason = strings.ToLower(reason)
	return strings.Contains(reason, "logged out") ||
		strings.Contains(reason, "401") ||
		strings.Contains(reason, "403")
}

// Transition is the only place instance state changes. It performs no I/O: the
// governor is the single piece of shared state it touches.
func Transition(cur Snapshot, ev Event, gov *Governor, syncDelay time.Duration) (Snapshot, []Action) {
	next := cur
	statusChanged := []Action{ActionPersistStatus{}, ActionNotify{Event: NotifyConnectionUpdate}}

	if cur.State == StateLoggedOut {
		if _, ok := ev.(EventStart); !ok {
			return cur, nil
		}
	}

	switch e := ev.(type) {
	case EventStart:
		switch cur.State {
		case "", StateDisconnected, StateLoggedOut:
			gov.Reset(cur.Instance)
			next.State = StateConnecting
			next.Attempts = 0
			next.GaveUp = false
			next.LastReason = ""
			next.clearChallenge()
			return next, append([]Action{ActionConnect{}}, statusChanged...)
		}
		return cur, nil

	case EventRetry:
		if cur.State != StateDisconnected || cur.GaveUp {
			return cur, nil
		}
		next.State = StateConnecting
		return next, []Action{ActionConnect{}, ActionPersistStatus{}}

	case EventStop:
		if cur.State == "" {
			return cur, nil
		}
		gov.Reset(cur.Instance)
		if cur.State == StateDisconnected {
			// a reconnect may still be pending
			next.Attempts = 0
			next.GaveUp = false
			return next, []Action{ActionDisconnect{}}
		}
		next.State = StateDisconnected
		next.Attempts = 0
		next.LastReason = "stopped"
		next.clearChallenge()
		return next, append([]Action{ActionDisconnect{}}, statusChanged...)

	case EventQR, EventPairCode:
		if cur.State != StateConnecting && cur.State != StateQRPending {
			return cur, nil
		}
		next.State = StateQRPending
		if qr, ok := e.(EventQR); ok {
			next.Challenge, next.ChallengeKind = qr.Code, ChallengeQR
		} else {
			next.Challenge, next.ChallengeKind = e.(EventPairCode).Code, ChallengePairCode
		}
		actions := []Action{ActionNotify{Event: NotifyQRCodeUpdated}}
		if cur.State != StateQRPending {
			actions = append(actions, statusChanged...)
		}
		return next, actions

	case EventPaired:
		if cur.State != StateConnecting && cur.State != StateQRPending {
			return cur, nil
		}
		next.State = StatePaired
		next.clearChallenge()
		if e.JID != "" {
			next.JID = e.JID
		}
		return next, statusChanged

	case EventOpen:
		gov.Reset(cur.Instance)
		next.State = StateConnected
		next.Attempts = 0
		next.GaveUp = false
		next.LastReason = ""
		next.clearChallenge()
		if e.JID != "" {
			next.JID = e.JID
		}
		if e.PushName != "" {
			next.PushName = e.PushName
		}
		if cur.State == StateConnected {
			return next, []Action{ActionPersistStatus{}}
		}
		return next, append(statusChanged, ActionScheduleSync{Delay: syncDelay})

	case EventClose:
		switch cur.State {
		case StateConnected, StateConnecting, StateQRPending, StatePaired:
		default:
			return cur, nil
		}
		next.clearChallenge()
		next.LastReason = e.Reason
		if IsAuthoritativeLogout(e.Reason, e.Code) {
			return loggedOut(next, gov, statusChanged)
		}

		next.State = StateDisconnected
		if !gov.ShouldRetry(cur.Instance) {
			gov.giveUp()
			next.GaveUp = true
			next.Attempts = gov.Attempts(cur.Instance)
			return next, append(statusChanged, ActionGiveUp{Attempts: next.Attempts})
		}
		next.Attempts = gov.RecordAttempt(cur.Instance)
		return next, append(statusChanged, ActionScheduleReconnect{Delay: gov.Delay(), Attempt: next.Attempts})

	case EventLogout:
		next.LastReason = e.Reason
		next.clearChallenge()
		return loggedOut(next, gov, statusChanged)

	case EventCredentialsUpdated:
		if e.JID == "" || e.JID == cur.JID {
			return cur, nil
		}
		next.JID = e.JID
		return next, []Action{ActionPersistStatus{}}
	}

	return cur, nil
}

func loggedOut(next Snapshot, gov *Governor, statusChanged []Action) (Snapshot, []Action) {
	gov.Reset(next.Instance)
	next.State = StateLoggedOut
	next.Attempts = 0
	next.GaveUp = false
	next.JID = ""
	next.PushName = ""
	return next, append([]Action{ActionDeleteCredentials{}}, statusChanged...)
}

func (s *Snapshot) clearChallenge() {
	s.Challenge = ""
	s.ChallengeKind = ""
}
