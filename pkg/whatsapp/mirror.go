package whatsapp

import (
	"sort"
	"sync"
	"sync/atomic"
	"time"
)

type Contact struct {
	JID      string `json:"jid"`
	Name     string `json:"name,omitempty"`
	PushName string `json:"push_name,omitempty"`
	IsGroup  bool   `json:"is_group,omitempty"`
}

type Chat struct {
	JID           string    `json:"jid"`
	Name          string    `json:"name,omitempty"`
	IsGroup       bool      `json:"is_group"`
	Participants  int       `json:"participants,omitempty"`
	LastMessageAt time.Time `json:"last_message_at,omitempty"`
}

type Message struct {
	ID        string    `json:"id"`
	ChatJID   string    `json:"chat"`
	Sender    string    `json:"sender,omitempty"`
	PushName  string    `json:"push_name,omitempty"`
	FromMe    bool      `json:"from_me"`
	Kind      string    `json:"kind"`
	Text      string    `json:"text,omitempty"`
	Timestamp time.Time `json:"timestamp"`
	Raw       []byte    `json:"-"`
}

type MirrorCounts struct {
	Contacts int    `json:"contacts"`
	Chats    int    `json:"chats"`
	Groups   int    `json:"groups"`
	Messages int    `json:"messages"`
	Sent     uint64 `json:"sent"`
}

// Mirror is the in-memory projection of one instance's contacts, chats and
// messages, built by folding transport events.
type Mirror struct {
	mu       sync.RWMutex
	contacts map[string]Contact
	chats    map[string]Chat
	messages map[string]Message

	sent atomic.Uint64
}

func NewMirror() *Mirror {
	return &Mirror{
		contacts: make(map[string]Contact),
		chats:    make(map[string]Chat),
		messages: make(map[string]Message),
	}
}

// SetContacts applies a snapshot: each named contact is replaced wholesale.
func (m *Mirror) SetContacts(contacts []Contact) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, c := range contacts {
		if c.JID == "" {
			continue
		}
		c.IsGroup = IsGroupJID(c.JID)
		m.contacts[c.JID] = c
	}
}

// UpsertContacts merges partial records; non-empty attributes win.
func (m *Mirror) UpsertContacts(contacts []Contact) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, c := range contacts {
		if c.JID == "" {
			continue
		}
		cur := m.contacts[c.JID]
		cur.JID = c.JID
		cur.IsGroup = IsGroupJID(c.JID)
		if c.Name != "" {
			cur.Name = c.Name
		}
		if c.PushName != "" {
			cur.PushName = c.PushName
		}
		m.contacts[c.JID] = cur
	}
}

func (m *Mirror) SetChats(chats []Chat) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, c := range chats {
		if c.JID == "" {
			continue
		}
		c.IsGroup = IsGroupJID(c.JID)
		m.chats[c.JID] = c
	}
}

func (m *Mirror) UpsertChats(chats []Chat) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, c := range chats {
		if c.JID == "" {
			continue
		}
		m.upsertChatLocked(c)
	}
}

func (m *Mirror) upsertChatLocked(c Chat) {
	cur := m.chats[c.JID]
	cur.JID = c.JID
	cur.IsGroup = IsGroupJID(c.JID)
	if c.Name != "" {
		cur.Name = c.Name
	}
	if c.Participants > 0 {
		cur.Participants = c.Participants
	}
	if !c.LastMessageAt.IsZero() {
		cur.LastMessageAt = c.LastMessageAt
	}
	m.chats[c.JID] = cur
}

// UpsertMessages stores messages by id. Redelivery overwrites the same entry.
// The chat of each message is registered as well.
func (m *Mirror) UpsertMessages(messages []Message) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, msg := range messages {
		if msg.ID == "" {
			continue
		}
		m.messages[msg.ID] = msg
		if msg.ChatJID != "" && !IsBroadcastJID(msg.ChatJID) {
			m.upsertChatLocked(Chat{JID: msg.ChatJID, LastMessageAt: msg.Timestamp})
		}
		if !msg.FromMe && msg.PushName != "" && msg.Sender != "" && !IsGroupJID(msg.Sender) {
			cur := m.contacts[msg.Sender]
			cur.JID = msg.Sender
			cur.PushName = msg.PushName
			m.contacts[msg.Sender] = cur
		}
	}
}

// Contacts lists known contacts merged with group chats, one entry per JID.
func (m *Mirror) Contacts() []Contact {
	m.mu.RLock()
	defer m.mu.RUnlock()

	merged := make(map[string]Contact, len(m.contacts))
	for jid, c := range m.contacts {
		merged[jid] = c
	}
	for jid, chat := range m.chats {
		if !chat.IsGroup {
			continue
		}
		c := merged[jid]
		c.JID = jid
		c.IsGroup = true
		if c.Name == "" {
			c.Name = chat.Name
		}
		merged[jid] = c
	}

	out := make([]Contact, 0, len(merged))
	for _, c := range merged {
		out = append(out, c)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].JID < out[j].JID })
	return out
}

func (m *Mirror) Groups() []Chat {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]Chat, 0)
	for _, chat := range m.chats {
		if chat.IsGroup {
			out = append(out, chat)
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Name != out[j].Name {
			return out[i].Name < out[j].Name
		}
		return out[i].JID < out[j].JID
	})
	return out
}

func (m *Mirror) Chats() []Chat {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]Chat, 0, len(m.chats))
	for _, chat := range m.chats {
		out = append(out, chat)
	}
	sort.Slice(out, func(i, j int) bool {
		if !out[i].LastMessageAt.Equal(out[j].LastMessageAt) {
			return out[i].LastMessageAt.After(out[j].LastMessageAt)
		}
		return out[i].JID < out[j].JID
	})
	return out
}

// Messages returns the messages of one chat, oldest first.
func (m *Mirror) Messages(jid string) []Message {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]Message, 0)
	for _, msg := range m.messages {
		if msg.ChatJID == jid {
			out = append(out, msg)
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if !out[i].Timestamp.Equal(out[j].Timestamp) {
			return out[i].Timestamp.Before(out[j].Timestamp)
		}
		return out[i].ID < out[j].ID
	})
	return out
}

// ContactCandidates is the set of person addresses worth persisting: every chat
// and contact JID except groups and broadcast lists.
func (m *Mirror) ContactCandidates() []Contact {
	m.mu.RLock()
	defer m.mu.RUnlock()

	seen := make(map[string]Contact, len(m.contacts)+len(m.chats))
	for jid, c := range m.contacts {
		seen[jid] = c
	}
	for jid, chat := range m.chats {
		if _, ok := seen[jid]; !ok {
			seen[jid] = Contact{JID: jid, Name: chat.Name}
		}
	}

	out := make([]Contact, 0, len(seen))
	for jid, c := range seen {
		if IsGroupJID(jid) || IsBroadcastJID(jid) {
			continue
		}
		out = append(out, c)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].JID < out[j].JID })
	return out
}

func (m *Mirror) Counts() MirrorCounts {
	m.mu.RLock()
	defer m.mu.RUnlock()
	groups := 0
	for _, chat := range m.chats {
		if chat.IsGroup {
			groups++
		}
	}
	return MirrorCounts{
		Contacts: len(m.contacts),
		Chats:    len(m.chats),
		Groups:   groups,
		Messages: len(m.messages),
		Sent:     m.sent.Load(),
	}
}

func (m *Mirror) Clear() {
	m.mu.Lock()
	m.contacts = make(map[string]Contact)
	m.chats = make(map[string]Chat)
	m.messages = make(map[string]Message)
	m.mu.Unlock()
	m.sent.Store(0)
}

func (m *Mirror) IncSent() uint64 {
	return m.sent.Add(1)
}

func (m *Mirror) Sent() uint64 {
	return m.sent.Load()
}
