package whatsapp

import (
	"context"
	"errors"
	"strconv"
	"sync"
	"time"

	"go.mau.fi/whatsmeow"
	"go.mau.fi/whatsmeow/proto/waE2E"
)

// fakeTransport drives a session by hand. onConnect runs inside Connect with
// the listener so tests can script the login handshake.
type fakeTransport struct {
	mu        sync.Mutex
	listener  Listener
	jid       string
	connected bool
	loggedIn  bool
	creds     bool
	connects  int
	sent      []*waE2E.Message
	sentTo    []string
	composing []bool
	logouts   int
	deleted   int
	groups    []GroupInfo
	groupsErr error
	avatar    string
	avatarN   int
	sendErr   error

	onConnect func(t *fakeTransport)
}

func (f *fakeTransport) Connect(ctx context.Context) error {
	f.mu.Lock()
	f.connects++
	hook := f.onConnect
	f.mu.Unlock()
	if hook != nil {
		hook(f)
	}
	return nil
}

func (f *fakeTransport) Disconnect() {
	f.mu.Lock()
	f.connected = false
	f.mu.Unlock()
}

func (f *fakeTransport) IsConnected() bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.connected
}

func (f *fakeTransport) IsLoggedIn() bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.loggedIn
}

func (f *fakeTransport) HasCredentials() bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.creds
}

func (f *fakeTransport) JID() string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.jid
}

func (f *fakeTransport) PushName() string { return "Acme" }

func (f *fakeTransport) PairPhone(ctx context.Context, phone string) (string, error) {
	return "ABCD-EFGH", nil
}

func (f *fakeTransport) Logout(ctx context.Context) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.logouts++
	f.connected, f.loggedIn = false, false
	return nil
}

func (f *fakeTransport) DeleteCredentials(ctx context.Context) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.deleted++
	f.creds = false
	return nil
}

func (f *fakeTransport) JoinedGroups(ctx context.Context) ([]GroupInfo, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.groups, f.groupsErr
}

func (f *fakeTransport) AvatarURL(ctx context.Context, jid string) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.avatarN++
	return f.avatar, nil
}

func (f *fakeTransport) Send(ctx context.Context, to string, msg *waE2E.Message) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.sendErr != nil {
		return "", f.sendErr
	}
	f.sent = append(f.sent, msg)
	f.sentTo = append(f.sentTo, to)
	return "MSG" + strconv.Itoa(len(f.sent)), nil
}

func (f *fakeTransport) Composing(ctx context.Context, to string, composing bool) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.composing = append(f.composing, composing)
	return nil
}

func (f *fakeTransport) Upload(ctx context.Context, data []byte, mediaType whatsmeow.MediaType) (whatsmeow.UploadResponse, error) {
	return whatsmeow.UploadResponse{URL: "https://mmg.example/" + string(mediaType), DirectPath: "/d"}, nil
}

// login simulates a scanned QR: credentials stored and the socket open.
func (f *fakeTransport) login(jid string) {
	f.mu.Lock()
	f.jid = jid
	f.connected, f.loggedIn, f.creds = true, true, true
	l := f.listener
	f.mu.Unlock()
	l.HandleEvent(EventPaired{JID: jid})
	l.HandleEvent(EventOpen{JID: jid, PushName: "Acme"})
}

type fakeDialer struct {
	mu         sync.Mutex
	transports []*fakeTransport
	dialedJIDs []string
	newFn      func() *fakeTransport
	err        error
}

func (d *fakeDialer) Dial(ctx context.Context, instance string, jid string, l Listener) (Transport, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.err != nil {
		return nil, d.err
	}
	t := &fakeTransport{}
	if d.newFn != nil {
		t = d.newFn()
	}
	t.listener = l
	if jid != "" {
		t.jid, t.creds = jid, true
	}
	d.transports = append(d.transports, t)
	d.dialedJIDs = append(d.dialedJIDs, jid)
	return t, nil
}

func (d *fakeDialer) last() *fakeTransport {
	d.mu.Lock()
	defer d.mu.Unlock()
	if len(d.transports) == 0 {
		return nil
	}
	return d.transports[len(d.transports)-1]
}

func (d *fakeDialer) count() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return len(d.transports)
}

type recordedMessage struct {
	instance, id, remote, kind string
	fromMe                     bool
}

type fakeRecorder struct {
	mu       sync.Mutex
	statuses []string
	avatars  []string
	contacts []string
	groups   []string
	messages []recordedMessage
}

func (r *fakeRecorder) RecordStatus(instance, status, jid, pushName string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.statuses = append(r.statuses, status)
}

func (r *fakeRecorder) RecordAvatar(instance, avatar string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.avatars = append(r.avatars, avatar)
}

func (r *fakeRecorder) RecordContact(instance, jid, name, pushName string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.contacts = append(r.contacts, jid)
}

func (r *fakeRecorder) RecordGroup(instance, jid, subject string, participants int) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.groups = append(r.groups, jid)
}

func (r *fakeRecorder) RecordMessage(instance, messageID, remoteJID string, fromMe bool, kind string, payload []byte, sentAt time.Time) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.messages = append(r.messages, recordedMessage{instance, messageID, remoteJID, kind, fromMe})
}

func (r *fakeRecorder) snapshot() fakeRecorder {
	r.mu.Lock()
	defer r.mu.Unlock()
	return fakeRecorder{
		statuses: append([]string(nil), r.statuses...),
		avatars:  append([]string(nil), r.avatars...),
		contacts: append([]string(nil), r.contacts...),
		groups:   append([]string(nil), r.groups...),
		messages: append([]recordedMessage(nil), r.messages...),
	}
}

type notification struct {
	instance, event string
	data            map[string]interface{}
}

type fakeNotifier struct {
	mu     sync.Mutex
	events []notification
}

func (n *fakeNotifier) Notify(instance, event string, data map[string]interface{}) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.events = append(n.events, notification{instance, event, data})
}

func (n *fakeNotifier) named(event string) []notification {
	n.mu.Lock()
	defer n.mu.Unlock()
	var out []notification
	for _, e := range n.events {
		if e.event == event {
			out = append(out, e)
		}
	}
	return out
}

type fakeSink struct {
	mu       sync.Mutex
	groups   []string
	contacts []string
	failJID  string
	block    chan struct{}
}

func (s *fakeSink) UpsertGroup(ctx context.Context, instance, jid, subject string, participants int) error {
	if s.block != nil {
		select {
		case <-s.block:
		case <-ctx.Done():
			return ctx.Err()
		}
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if jid == s.failJID {
		return errors.New("constraint violation")
	}
	s.groups = append(s.groups, jid)
	return nil
}

func (s *fakeSink) UpsertContact(ctx context.Context, instance, jid, name, pushName string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if jid == s.failJID {
		return errors.New("constraint violation")
	}
	s.contacts = append(s.contacts, jid)
	return nil
}

type fakeLister struct {
	groups []GroupInfo
	err    error
}

func (l fakeLister) JoinedGroups(ctx context.Context) ([]GroupInfo, error) {
	return l.groups, l.err
}

// eventually polls cond for up to a second. Used only where the code under
// test completes on its own goroutine.
func eventually(cond func() bool) bool {
	deadline := time.Now().Add(time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return true
		}
		time.Sleep(5 * time.Millisecond)
	}
	return cond()
}
