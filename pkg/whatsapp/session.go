package whatsapp

import (
	"sync"
	"time"
)

// session holds everything one instance owns. snap, transport and the timers
// are guarded by mu.
type session struct {
	m      *Manager
	name   string
	mirror *Mirror
	syncer *Syncer

	mu           sync.Mutex
	snap         Snapshot
	transport    Transport
	changed      chan struct{}
	reconnect    *time.Timer
	reconnectSeq uint64
	syncTimer    *time.Timer
	avatar       string
}

func newSession(m *Manager, name string) *session {
	s := &session{
		m:       m,
		name:    name,
		mirror:  NewMirror(),
		changed: make(chan struct{}),
		snap: Snapshot{
			Instance:  name,
			State:     StateDisconnected,
			UpdatedAt: time.Now(),
		},
	}
	s.syncer = NewSyncer(name, s.mirror, m.sink, func(st SyncStatus) {
		m.notifier.Notify(name, NotifySyncCompleted, map[string]interface{}{
			"completed":      st.Completed,
			"groupsSynced":   st.GroupsSynced,
			"contactsSynced": st.ContactsSynced,
			"error":          st.Error,
		})
	})
	return s
}

func (s *session) snapshot() Snapshot {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.snap
}

// watch returns the current snapshot and a channel closed on its next change.
func (s *session) watch() (Snapshot, <-chan struct{}) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.snap, s.changed
}

func (s *session) broadcastLocked() {
	close(s.changed)
	s.changed = make(chan struct{})
}

func (s *session) handle() Transport {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.transport
}

func (s *session) scheduleReconnect(delay time.Duration, fn func()) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.reconnect != nil {
		s.reconnect.Stop()
	}
	s.reconnectSeq++
	seq := s.reconnectSeq
	s.reconnect = time.AfterFunc(delay, func() {
		s.mu.Lock()
		current := s.reconnectSeq == seq
		if current {
			s.reconnect = nil
		}
		s.mu.Unlock()
		if current {
			fn()
		}
	})
}

func (s *session) scheduleSync(delay time.Duration, fn func()) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.syncTimer != nil {
		s.syncTimer.Stop()
	}
	s.syncTimer = time.AfterFunc(delay, fn)
}

func (s *session) stopReconnect() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.stopReconnectLocked()
}

func (s *session) stopReconnectLocked() {
	s.reconnectSeq++
	if s.reconnect != nil {
		s.reconnect.Stop()
		s.reconnect = nil
	}
}

func (s *session) stopTimers() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.stopTimersLocked()
}

func (s *session) stopTimersLocked() {
	s.stopReconnectLocked()
	if s.syncTimer != nil {
		s.syncTimer.Stop()
		s.syncTimer = nil
	}
}

// detach stops the timers and forgets the live handle, returning it so the
// caller can close it outside the lock.
func (s *session) detach() Transport {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.stopTimersLocked()
	t := s.transport
	s.transport = nil
	s.avatar = ""
	return t
}

func (s *session) HandleEvent(ev Event) {
	s.m.dispatch(s, ev)
}

func (s *session) HandleContacts(contacts []Contact, snapshot bool) {
	if len(contacts) == 0 {
		return
	}
	if snapshot {
		s.mirror.SetContacts(contacts)
		return
	}
	s.mirror.UpsertContacts(contacts)
	for _, c := range contacts {
		if IsGroupJID(c.JID) || IsBroadcastJID(c.JID) {
			continue
		}
		s.m.recorder.RecordContact(s.name, c.JID, c.Name, c.PushName)
	}
	s.m.notifier.Notify(s.name, NotifyContactsUpsert, map[string]interface{}{
		"contacts": contacts,
	})
}

func (s *session) HandleChats(chats []Chat, snapshot bool) {
	if len(chats) == 0 {
		return
	}
	if snapshot {
		s.mirror.SetChats(chats)
		return
	}
	s.mirror.UpsertChats(chats)
	for _, c := range chats {
		if IsGroupJID(c.JID) {
			s.m.recorder.RecordGroup(s.name, c.JID, c.Name, c.Participants)
		}
	}
}

func (s *session) HandleMessages(messages []Message, history bool) {
	if len(messages) == 0 {
		return
	}
	s.mirror.UpsertMessages(messages)
	if history {
		return
	}
	for _, msg := range messages {
		s.m.recorder.RecordMessage(s.name, msg.ID, msg.ChatJID, msg.FromMe, msg.Kind, msg.Raw, msg.Timestamp)
	}
	s.m.notifier.Notify(s.name, NotifyMessagesUpsert, map[string]interface{}{
		"messages": messages,
	})
}
