package whatsapp

import (
	"context"
	"errors"
	"fmt"
	"math/rand/v2"
	"net/http"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/sirupsen/logrus"
	"go.mau.fi/whatsmeow/proto/waE2E"
	"golang.org/x/sync/errgroup"
	"golang.org/x/sync/singleflight"

	"github.com/gdbrns/go-whatsapp-gateway-rest-api/pkg/log"
)

var (
	ErrUnknownInstance  = errors.New("unknown instance")
	ErrNotConnected     = errors.New("Disconnected")
	ErrAlreadyConnected = errors.New("instance is already connected")
	ErrNotReady         = errors.New("instance is not ready for pairing")
	ErrManagerClosed    = errors.New("session manager is shut down")
)

const credentialDeleteTimeout = 15 * time.Second

// Recorder receives the durable side effects of session activity. Every call
// is fire and forget.
type Recorder interface {
	RecordStatus(instance, status, jid, pushName string)
	RecordAvatar(instance, avatar string)
	RecordContact(instance, jid, name, pushName string)
	RecordGroup(instance, jid, subject string, participants int)
	RecordMessage(instance, messageID, remoteJID string, fromMe bool, kind string, payload []byte, sentAt time.Time)
}

// Notifier fans instance events out to webhook subscribers.
type Notifier interface {
	Notify(instance, event string, data map[string]interface{})
}

type Dependencies struct {
	Dialer   Dialer
	Recorder Recorder
	Sink     SyncSink
	Notifier Notifier
}

type noopRecorder struct{}

func (noopRecorder) RecordStatus(string, string, string, string)                           {}
func (noopRecorder) RecordAvatar(string, string)                                           {}
func (noopRecorder) RecordContact(string, string, string, string)                          {}
func (noopRecorder) RecordGroup(string, string, string, int)                               {}
func (noopRecorder) RecordMessage(string, string, string, bool, string, []byte, time.Time) {}

type noopNotifier struct{}

func (noopNotifier) Notify(string, string, map[string]interface{}) {}

// Manager owns every instance session. All lifecycle changes go through
// dispatch, which runs Transition under the session lock and executes the
// resulting actions after releasing it.
type Manager struct {
	cfg      Config
	dialer   Dialer
	recorder Recorder
	sink     SyncSink
	notifier Notifier
	governor *Governor

	ctx    context.Context
	cancel context.CancelFunc

	mu       sync.RWMutex
	sessions map[string]*session
	closed   bool

	avatars singleflight.Group
}

func NewManager(cfg Config, deps Dependencies) *Manager {
	cfg = cfg.withDefaults()
	ctx, cancel := context.WithCancel(context.Background())

	m := &Manager{
		cfg:      cfg,
		dialer:   deps.Dialer,
		recorder: deps.Recorder,
		sink:     deps.Sink,
		notifier: deps.Notifier,
		governor: NewGovernor(cfg.MaxAttempts, cfg.ReconnectDelay),
		ctx:      ctx,
		cancel:   cancel,
		sessions: make(map[string]*session),
	}
	if m.recorder == nil {
		m.recorder = noopRecorder{}
	}
	if m.notifier == nil {
		m.notifier = noopNotifier{}
	}
	return m
}

func (m *Manager) Governor() *Governor {
	return m.governor
}

func (m *Manager) lookup(name string) (*session, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	s, ok := m.sessions[name]
	if !ok {
		return nil, ErrUnknownInstance
	}
	return s, nil
}

func (m *Manager) ensure(name string) (*session, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.closed {
		return nil, ErrManagerClosed
	}
	s, ok := m.sessions[name]
	if !ok {
		s = newSession(m, name)
		m.sessions[name] = s
	}
	return s, nil
}

// Register creates the registry entry for an instance without connecting it.
// jid points at stored credentials, if any.
func (m *Manager) Register(name, jid string) error {
	s, err := m.ensure(name)
	if err != nil {
		return err
	}
	s.mu.Lock()
	if s.snap.JID == "" && jid != "" {
		s.snap.JID = jid
	}
	s.mu.Unlock()
	return nil
}

func (m *Manager) dispatch(s *session, ev Event) Snapshot {
	s.mu.Lock()
	prev := s.snap
	next, actions := Transition(prev, ev, m.governor, m.cfg.SyncDelay)
	if next != prev {
		next.UpdatedAt = time.Now()
		s.snap = next
		s.broadcastLocked()
	}
	s.mu.Unlock()

	for _, a := range actions {
		m.execute(s, next, a)
	}
	return next
}

func (m *Manager) execute(s *session, snap Snapshot, a Action) {
	logger := log.Instance(s.name)

	switch a := a.(type) {
	case ActionConnect:
		s.stopReconnect()
		go m.connect(s)

	case ActionDisconnect:
		s.stopTimers()
		s.syncer.Cancel()
		if t := s.handle(); t != nil {
			t.Disconnect()
		}

	case ActionScheduleReconnect:
		logger.WithFields(logrus.Fields{
			"attempt": a.Attempt,
			"max":     m.governor.MaxAttempts(),
			"reason":  snap.LastReason,
		}).Warn("connection closed, reconnecting")
		s.scheduleReconnect(a.Delay, func() { m.dispatch(s, EventRetry{}) })

	case ActionScheduleSync:
		s.scheduleSync(a.Delay, func() {
			if err := m.startSync(s); err != nil && !errors.Is(err, ErrSyncInProgress) {
				logger.WithError(err).Warn("scheduled sync not started")
			}
		})

	case ActionDeleteCredentials:
		t := s.detach()
		s.syncer.Cancel()
		s.mirror.Clear()
		if t != nil {
			go func() {
				t.Disconnect()
				ctx, cancel := context.WithTimeout(context.Background(), credentialDeleteTimeout)
				defer cancel()
				if err := t.DeleteCredentials(ctx); err != nil {
					logger.WithError(err).Warn("delete credentials failed")
				}
			}()
		}
		logger.WithField("reason", snap.LastReason).Info("session logged out")

	case ActionPersistStatus:
		m.recorder.RecordStatus(s.name, string(snap.State), snap.JID, snap.PushName)

	case ActionNotify:
		m.notify(s.name, a.Event, snap)

	case ActionGiveUp:
		logger.WithFields(logrus.Fields{
			"attempts": a.Attempts,
			"reason":   snap.LastReason,
		}).Error("reconnect attempts exhausted, giving up")
	}
}

func (m *Manager) notify(name, event string, snap Snapshot) {
	data := map[string]interface{}{
		"state":    snap.State,
		"jid":      snap.JID,
		"attempts": snap.Attempts,
	}
	if snap.LastReason != "" {
		data["reason"] = snap.LastReason
	}
	if event == NotifyQRCodeUpdated {
		data = map[string]interface{}{"kind": snap.ChallengeKind, "code": snap.Challenge}
		if snap.ChallengeKind == ChallengeQR {
			if png, err := EncodeQR(snap.Challenge); err == nil {
				data["qrcode"] = png
			}
		}
	}
	m.notifier.Notify(name, event, data)
}

// transport returns the live handle of s, dialing one if there is none.
func (m *Manager) transport(ctx context.Context, s *session) (Transport, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.transport != nil {
		return s.transport, nil
	}
	if m.dialer == nil {
		return nil, errors.New("no transport dialer configured")
	}
	t, err := m.dialer.Dial(ctx, s.name, s.snap.JID, s)
	if err != nil {
		return nil, fmt.Errorf("dial: %w", err)
	}
	s.transport = t
	return t, nil
}

func (m *Manager) connect(s *session) {
	t, err := m.transport(m.ctx, s)
	if err == nil {
		err = t.Connect(m.ctx)
	}
	if err != nil {
		log.Instance(s.name).WithError(err).Warn("connect failed")
		m.dispatch(s, EventClose{Reason: err.Error()})
	}
}

// await blocks until pred holds for the snapshot of s, the timeout elapses or
// ctx is done. The bool result reports whether pred held.
func (m *Manager) await(ctx context.Context, s *session, timeout time.Duration, pred func(Snapshot) bool) (Snapshot, bool, error) {
	timer := time.NewTimer(timeout)
	defer timer.Stop()

	for {
		snap, changed := s.watch()
		if pred(snap) {
			return snap, true, nil
		}
		select {
		case <-changed:
		case <-timer.C:
			return s.snapshot(), false, nil
		case <-ctx.Done():
			return s.snapshot(), false, ctx.Err()
		}
	}
}

const (
	StartConnected    = "CONNECTED"
	StartQRCode       = "QRCODE"
	StartPairCode     = "PAIRCODE"
	StartTimeout      = "TIMEOUT"
	StartDisconnected = "DISCONNECTED"
)

type StartResult struct {
	Status string `json:"status"`
	State  State  `json:"state"`
	JID    string `json:"jid,omitempty"`
	QRCode string `json:"qrcode,omitempty"`
	Code   string `json:"code,omitempty"`
	Reason string `json:"reason,omitempty"`
}

// Start connects an instance and waits until it is connected, has a login
// challenge, or the start wait elapses.
func (m *Manager) Start(ctx context.Context, name string) (StartResult, error) {
	s, err := m.ensure(name)
	if err != nil {
		return StartResult{}, err
	}

	snap := s.snapshot()
	if snap.State == StateConnected {
		if t := s.handle(); t != nil && t.IsConnected() && t.IsLoggedIn() {
			return startResult(snap), nil
		}
		// the socket went away without a close event
		m.dispatch(s, EventClose{Reason: "socket closed"})
	}
	if snap.State == StateQRPending && snap.Challenge != "" {
		return startResult(snap), nil
	}

	m.dispatch(s, EventStart{})

	snap, ok, err := m.await(ctx, s, m.cfg.StartWait, func(cur Snapshot) bool {
		switch cur.State {
		case StateConnected, StateLoggedOut:
			return true
		case StateQRPending:
			return cur.Challenge != ""
		case StateDisconnected:
			return cur.LastReason != ""
		}
		return false
	})
	if err != nil {
		return StartResult{}, err
	}
	if !ok {
		return StartResult{Status: StartTimeout, State: snap.State, JID: snap.JID}, nil
	}
	return startResult(snap), nil
}

func startResult(snap Snapshot) StartResult {
	res := StartResult{State: snap.State, JID: snap.JID}
	switch snap.State {
	case StateConnected:
		res.Status = StartConnected
	case StateQRPending:
		res.Code = snap.Challenge
		if snap.ChallengeKind == ChallengePairCode {
			res.Status = StartPairCode
			break
		}
		res.Status = StartQRCode
		if png, err := EncodeQR(snap.Challenge); err == nil {
			res.QRCode = png
		}
	default:
		res.Status = StartDisconnected
		res.Reason = snap.LastReason
	}
	return res
}

// PairCode requests a numeric pairing code for phone. The handle has to reach
// the QR stage first, which is when the server accepts a pairing request.
func (m *Manager) PairCode(ctx context.Context, name, phone string) (string, error) {
	s, err := m.ensure(name)
	if err != nil {
		return "", err
	}
	if s.snapshot().State == StateConnected {
		return "", ErrAlreadyConnected
	}

	m.dispatch(s, EventStart{})

	snap, ok, err := m.await(ctx, s, m.cfg.PairWait, func(cur Snapshot) bool {
		return cur.State == StateQRPending || cur.State == StateConnected
	})
	if err != nil {
		return "", err
	}
	if snap.State == StateConnected {
		return "", ErrAlreadyConnected
	}
	t := s.handle()
	if !ok || t == nil {
		return "", ErrNotReady
	}

	code, err := t.PairPhone(ctx, phone)
	if err != nil {
		return "", fmt.Errorf("pair phone: %w", err)
	}
	m.dispatch(s, EventPairCode{Code: code})
	return code, nil
}

// Logout unlinks the device and drops its credentials. The registry entry
// stays so status reads report logged_out.
func (m *Manager) Logout(ctx context.Context, name string) error {
	s, err := m.lookup(name)
	if err != nil {
		return err
	}
	t := s.handle()
	if t == nil && s.snapshot().JID != "" {
		// stored credentials without a live handle
		if dialed, err := m.transport(ctx, s); err == nil {
			t = dialed
		}
	}
	if t != nil && t.HasCredentials() {
		if err := t.Logout(ctx); err != nil {
			log.Instance(name).WithError(err).Warn("remote logout failed, dropping local credentials")
		}
	}
	m.dispatch(s, EventLogout{Reason: "logged out by request"})
	return nil
}

// Restart stops the instance and starts it again with a fresh retry budget.
func (m *Manager) Restart(ctx context.Context, name string) (StartResult, error) {
	s, err := m.lookup(name)
	if err != nil {
		return StartResult{}, err
	}
	m.dispatch(s, EventStop{})
	return m.Start(ctx, name)
}

// Stop disconnects the instance and cancels its timers without touching the
// stored credentials.
func (m *Manager) Stop(name string) error {
	s, err := m.lookup(name)
	if err != nil {
		return err
	}
	m.dispatch(s, EventStop{})
	return nil
}

// Remove logs the instance out when it is paired and forgets it.
func (m *Manager) Remove(ctx context.Context, name string) error {
	s, err := m.lookup(name)
	if err != nil {
		return err
	}
	t := s.handle()
	if s.snapshot().JID != "" || (t != nil && t.HasCredentials()) {
		if err := m.Logout(ctx, name); err != nil {
			return err
		}
	} else {
		m.dispatch(s, EventStop{})
	}

	s.stopTimers()
	s.syncer.Cancel()
	m.mu.Lock()
	delete(m.sessions, name)
	m.mu.Unlock()
	m.governor.Reset(name)
	return nil
}

func (m *Manager) Status(name string) (Snapshot, error) {
	s, err := m.lookup(name)
	if err != nil {
		return Snapshot{}, err
	}
	return s.snapshot(), nil
}

// List returns every snapshot ordered by instance name.
func (m *Manager) List() []Snapshot {
	var out []Snapshot
	m.Range(func(snap Snapshot) bool {
		out = append(out, snap)
		return true
	})
	sort.Slice(out, func(i, j int) bool { return out[i].Instance < out[j].Instance })
	return out
}

// Range calls fn for every instance until fn returns false.
func (m *Manager) Range(fn func(Snapshot) bool) {
	m.mu.RLock()
	sessions := make([]*session, 0, len(m.sessions))
	for _, s := range m.sessions {
		sessions = append(sessions, s)
	}
	m.mu.RUnlock()

	for _, s := range sessions {
		if !fn(s.snapshot()) {
			return
		}
	}
}

type Info struct {
	Instance string       `json:"instance"`
	Status   State        `json:"status"`
	JID      string       `json:"jid,omitempty"`
	Name     string       `json:"name,omitempty"`
	Avatar   string       `json:"avatar,omitempty"`
	Attempts int          `json:"attempts"`
	Counts   MirrorCounts `json:"counts"`
	Sync     SyncStatus   `json:"sync"`
}

func (m *Manager) Info(ctx context.Context, name string) (Info, error) {
	s, err := m.lookup(name)
	if err != nil {
		return Info{}, err
	}
	snap := s.snapshot()
	info := Info{
		Instance: name,
		Status:   snap.State,
		JID:      snap.JID,
		Name:     snap.PushName,
		Attempts: snap.Attempts,
		Counts:   s.mirror.Counts(),
		Sync:     s.syncer.Status(),
	}
	if snap.State == StateConnected && snap.JID != "" {
		info.Avatar = m.avatar(ctx, s, snap.JID)
	} else {
		s.mu.Lock()
		info.Avatar = s.avatar
		s.mu.Unlock()
	}
	return info, nil
}

func (m *Manager) avatar(ctx context.Context, s *session, jid string) string {
	t := s.handle()
	if t == nil {
		return ""
	}
	v, err, _ := m.avatars.Do(s.name, func() (interface{}, error) {
		return t.AvatarURL(ctx, jid)
	})

	s.mu.Lock()
	defer s.mu.Unlock()
	if err != nil {
		log.Instance(s.name).WithError(err).Debug("avatar lookup failed")
		return s.avatar
	}
	url, _ := v.(string)
	if url != s.avatar {
		s.avatar = url
		m.recorder.RecordAvatar(s.name, url)
	}
	return url
}

func (m *Manager) Contacts(name string) ([]Contact, error) {
	s, err := m.lookup(name)
	if err != nil {
		return nil, err
	}
	return s.mirror.Contacts(), nil
}

func (m *Manager) Chats(name string) ([]Chat, error) {
	s, err := m.lookup(name)
	if err != nil {
		return nil, err
	}
	return s.mirror.Chats(), nil
}

// Groups reads the mirror, falling back to a live listing when the mirror has
// no groups yet.
func (m *Manager) Groups(ctx context.Context, name string) ([]Chat, error) {
	s, err := m.lookup(name)
	if err != nil {
		return nil, err
	}
	groups := s.mirror.Groups()
	if len(groups) > 0 {
		return groups, nil
	}
	t := s.handle()
	if t == nil || s.snapshot().State != StateConnected {
		return groups, nil
	}

	live, err := t.JoinedGroups(ctx)
	if err != nil {
		return nil, err
	}
	chats := make([]Chat, 0, len(live))
	for _, g := range live {
		chats = append(chats, Chat{JID: g.JID, Name: g.Name, Participants: g.Participants})
	}
	s.mirror.UpsertChats(chats)
	return s.mirror.Groups(), nil
}

func (m *Manager) Messages(name, jid string) ([]Message, error) {
	s, err := m.lookup(name)
	if err != nil {
		return nil, err
	}
	normalized, err := NormalizeAddress(jid)
	if err != nil {
		return nil, err
	}
	return s.mirror.Messages(normalized), nil
}

// RequestSync starts a sync of the instance in the background.
func (m *Manager) RequestSync(name string) error {
	s, err := m.lookup(name)
	if err != nil {
		return err
	}
	if s.snapshot().State != StateConnected {
		return ErrNotConnected
	}
	return m.startSync(s)
}

func (m *Manager) SyncStatus(name string) (SyncStatus, error) {
	s, err := m.lookup(name)
	if err != nil {
		return SyncStatus{}, err
	}
	return s.syncer.Status(), nil
}

func (m *Manager) startSync(s *session) error {
	var lister GroupLister
	if t := s.handle(); t != nil {
		lister = t
	}
	return s.syncer.Start(m.ctx, lister)
}

type SendOptions struct {
	Delay time.Duration
}

type SendResult struct {
	ID        string    `json:"messageId"`
	To        string    `json:"to"`
	Kind      string    `json:"kind"`
	Timestamp time.Time `json:"timestamp"`
	TotalSent uint64    `json:"totalSent"`
}

// Send delivers msg to the normalized address. A delay shows the composing
// presence for that long first.
func (m *Manager) Send(ctx context.Context, name, to string, msg *waE2E.Message, kind string, opts SendOptions) (SendResult, error) {
	s, err := m.lookup(name)
	if err != nil {
		return SendResult{}, err
	}
	jid, err := NormalizeAddress(to)
	if err != nil {
		return SendResult{}, err
	}
	t := s.handle()
	if t == nil || s.snapshot().State != StateConnected || !t.IsConnected() {
		return SendResult{}, ErrNotConnected
	}

	if opts.Delay > 0 {
		delay := opts.Delay
		if delay > MaxSendDelay {
			delay = MaxSendDelay
		}
		if err := t.Composing(ctx, jid, true); err != nil {
			log.Instance(name).WithError(err).Debug("composing presence failed")
		}
		select {
		case <-time.After(delay):
		case <-ctx.Done():
			return SendResult{}, ctx.Err()
		}
		_ = t.Composing(ctx, jid, false)
	}

	id, err := t.Send(ctx, jid, msg)
	if err != nil {
		return SendResult{}, fmt.Errorf("send %s: %w", kind, err)
	}

	now := time.Now()
	total := s.mirror.IncSent()
	payload := marshalPayload(msg)
	s.mirror.UpsertMessages([]Message{{
		ID:        id,
		ChatJID:   jid,
		Sender:    t.JID(),
		FromMe:    true,
		Kind:      kind,
		Text:      MessageText(msg),
		Timestamp: now,
		Raw:       payload,
	}})
	m.recorder.RecordMessage(name, id, jid, true, kind, payload, now)

	log.Instance(name).WithFields(logrus.Fields{
		"to":   log.MaskJID(jid),
		"kind": kind,
		"id":   id,
	}).Info("message sent")

	return SendResult{ID: id, To: jid, Kind: kind, Timestamp: now, TotalSent: total}, nil
}

func (m *Manager) SendText(ctx context.Context, name, to, text string, opts SendOptions) (SendResult, error) {
	msg, err := BuildText(text)
	if err != nil {
		return SendResult{}, err
	}
	return m.Send(ctx, name, to, msg, KindText, opts)
}

func (m *Manager) SendButtons(ctx context.Context, name, to string, in ButtonsMessage, opts SendOptions) (SendResult, error) {
	msg, err := BuildButtons(in)
	if err != nil {
		return SendResult{}, err
	}
	return m.Send(ctx, name, to, msg, KindButtons, opts)
}

func (m *Manager) SendList(ctx context.Context, name, to string, in ListMessage, opts SendOptions) (SendResult, error) {
	msg, err := BuildList(in)
	if err != nil {
		return SendResult{}, err
	}
	return m.Send(ctx, name, to, msg, KindList, opts)
}

func (m *Manager) SendURLButton(ctx context.Context, name, to string, in URLButtonMessage, opts SendOptions) (SendResult, error) {
	msg, err := BuildURLButton(in)
	if err != nil {
		return SendResult{}, err
	}
	return m.Send(ctx, name, to, msg, KindURLButton, opts)
}

func (m *Manager) SendCopyButton(ctx context.Context, name, to string, in CopyButtonMessage, opts SendOptions) (SendResult, error) {
	msg, err := BuildCopyButton(in)
	if err != nil {
		return SendResult{}, err
	}
	return m.Send(ctx, name, to, msg, KindCopyButton, opts)
}

func (m *Manager) SendInteractive(ctx context.Context, name, to string, in Interactive, opts SendOptions) (SendResult, error) {
	msg, kind, err := BuildInteractive(in)
	if err != nil {
		return SendResult{}, err
	}
	if kind == KindButtons {
		kind = KindInteractive
	}
	return m.Send(ctx, name, to, msg, kind, opts)
}

// SendImage sends a base64 or data URL image.
func (m *Manager) SendImage(ctx context.Context, name, to, image, caption string, viewOnce bool, opts SendOptions) (SendResult, error) {
	data, mimetype, err := DecodeImage(image)
	if err != nil {
		return SendResult{}, err
	}
	return m.SendImageData(ctx, name, to, data, mimetype, caption, viewOnce, opts)
}

// SendImageData sends raw image bytes. An empty mimetype is sniffed.
func (m *Manager) SendImageData(ctx context.Context, name, to string, data []byte, mimetype, caption string, viewOnce bool, opts SendOptions) (SendResult, error) {
	s, err := m.lookup(name)
	if err != nil {
		return SendResult{}, err
	}
	t := s.handle()
	if t == nil || s.snapshot().State != StateConnected {
		return SendResult{}, ErrNotConnected
	}
	if _, err := NormalizeAddress(to); err != nil {
		return SendResult{}, err
	}
	if mimetype == "" {
		mimetype = http.DetectContentType(data)
	}
	if len(data) == 0 || !strings.HasPrefix(mimetype, "image/") {
		return SendResult{}, ErrInvalidImage
	}

	img, err := PrepareImage(data, mimetype, m.cfg.Image)
	if err != nil {
		return SendResult{}, err
	}
	msg, err := BuildImage(ctx, t, img, caption, viewOnce)
	if err != nil {
		return SendResult{}, err
	}
	return m.Send(ctx, name, to, msg, KindImage, opts)
}

func (m *Manager) SendReaction(ctx context.Context, name, to, messageID string, fromMe bool, emoji string) (SendResult, error) {
	chat, err := NormalizeAddress(to)
	if err != nil {
		return SendResult{}, err
	}
	msg, err := BuildReaction(chat, messageID, fromMe, emoji)
	if err != nil {
		return SendResult{}, err
	}
	return m.Send(ctx, name, chat, msg, KindReaction, SendOptions{})
}

// RestoreTarget is an instance known to durable storage at boot.
type RestoreTarget struct {
	Instance string
	JID      string
}

// Restore registers every target and starts the ones holding credentials,
// with bounded concurrency and a random pause before each start. It returns
// how many were started.
func (m *Manager) Restore(ctx context.Context, targets []RestoreTarget) (int, error) {
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(m.cfg.RestoreConcurrency)

	var (
		mu      sync.Mutex
		started int
	)
	for _, target := range targets {
		if err := m.Register(target.Instance, target.JID); err != nil {
			return started, err
		}
		if target.JID == "" {
			continue
		}
		name := target.Instance
		g.Go(func() error {
			if m.cfg.RestoreJitterMax > 0 {
				jitter := time.Duration(rand.Int64N(int64(m.cfg.RestoreJitterMax)))
				select {
				case <-time.After(jitter):
				case <-gctx.Done():
					return gctx.Err()
				}
			}
			s, err := m.lookup(name)
			if err != nil {
				return nil
			}
			m.dispatch(s, EventStart{})
			mu.Lock()
			started++
			mu.Unlock()
			log.Instance(name).Info("session restore started")
			return nil
		})
	}
	err := g.Wait()
	return started, err
}

// Shutdown stops every session. Stored credentials are kept.
func (m *Manager) Shutdown(ctx context.Context) {
	m.mu.Lock()
	m.closed = true
	sessions := make([]*session, 0, len(m.sessions))
	for _, s := range m.sessions {
		sessions = append(sessions, s)
	}
	m.mu.Unlock()

	done := make(chan struct{})
	go func() {
		defer close(done)
		for _, s := range sessions {
			m.dispatch(s, EventStop{})
			s.stopTimers()
			s.syncer.Cancel()
		}
	}()
	select {
	case <-done:
	case <-ctx.Done():
		log.SysErr("whatsapp shutdown", ctx.Err())
	}
	m.cancel()
}

type HealthReport struct {
	Instances    int      `json:"instances"`
	Connected    int      `json:"connected"`
	Disconnected int      `json:"disconnected"`
	LoggedOut    int      `json:"loggedOut"`
	GaveUp       []string `json:"gaveUp,omitempty"`
	Stale        []string `json:"stale,omitempty"`
}

// CheckHealth reconciles the recorded state with the live handles. A session
// that claims to be connected over a closed socket gets a close event.
func (m *Manager) CheckHealth() HealthReport {
	m.mu.RLock()
	sessions := make([]*session, 0, len(m.sessions))
	for _, s := range m.sessions {
		sessions = append(sessions, s)
	}
	m.mu.RUnlock()

	var report HealthReport
	for _, s := range sessions {
		report.Instances++
		snap := s.snapshot()
		switch snap.State {
		case StateConnected:
			if t := s.handle(); t == nil || !t.IsConnected() {
				report.Stale = append(report.Stale, s.name)
				m.dispatch(s, EventClose{Reason: "health check: socket closed"})
				continue
			}
			report.Connected++
		case StateLoggedOut:
			report.LoggedOut++
		case StateDisconnected:
			report.Disconnected++
			if snap.GaveUp {
				report.GaveUp = append(report.GaveUp, s.name)
			}
		}
	}
	sort.Strings(report.GaveUp)
	sort.Strings(report.Stale)
	return report
}

type Stats struct {
	Instances           int    `json:"instances"`
	Connected           int    `json:"connected"`
	ReconnectsExhausted uint64 `json:"reconnectsExhausted"`
}

func (m *Manager) Stats() Stats {
	st := Stats{ReconnectsExhausted: m.governor.Exhausted()}
	m.Range(func(snap Snapshot) bool {
		st.Instances++
		if snap.State == StateConnected {
			st.Connected++
		}
		return true
	})
	return st
}
