package whatsapp

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"
)

type managerFixture struct {
	m        *Manager
	dialer   *fakeDialer
	recorder *fakeRecorder
	notifier *fakeNotifier
	sink     *fakeSink
}

func newManagerFixture(t *testing.T, newFn func() *fakeTransport) managerFixture {
	t.Helper()
	f := managerFixture{
		dialer:   &fakeDialer{newFn: newFn},
		recorder: &fakeRecorder{},
		notifier: &fakeNotifier{},
		sink:     &fakeSink{},
	}
	f.m = NewManager(Config{
		MaxAttempts:    3,
		ReconnectDelay: 5 * time.Millisecond,
		SyncDelay:      10 * time.Millisecond,
		StartWait:      time.Second,
		PairWait:       time.Second,
	}, Dependencies{
		Dialer:   f.dialer,
		Recorder: f.recorder,
		Sink:     f.sink,
		Notifier: f.notifier,
	})
	t.Cleanup(func() { f.m.Shutdown(context.Background()) })
	return f
}

func qrOnConnect() *fakeTransport {
	return &fakeTransport{onConnect: func(ft *fakeTransport) {
		ft.mu.Lock()
		ft.connected = true
		l := ft.listener
		ft.mu.Unlock()
		l.HandleEvent(EventQR{Code: "2@ref,key,secret"})
	}}
}

func connectedFixture(t *testing.T) (managerFixture, *fakeTransport) {
	t.Helper()
	f := newManagerFixture(t, qrOnConnect)
	if _, err := f.m.Start(context.Background(), "acme"); err != nil {
		t.Fatal(err)
	}
	ft := f.dialer.last()
	ft.login("5511999999999@s.whatsapp.net")
	if st, _ := f.m.Status("acme"); st.State != StateConnected {
		t.Fatalf("state after login %s", st.State)
	}
	return f, ft
}

func TestManagerStartReturnsQRCodeThenConnects(t *testing.T) {
	f := newManagerFixture(t, func() *fakeTransport {
		ft := qrOnConnect()
		ft.groups = []GroupInfo{{JID: "10@g.us", Name: "Team", Participants: 3}}
		return ft
	})
	ctx := context.Background()

	res, err := f.m.Start(ctx, "acme")
	if err != nil {
		t.Fatal(err)
	}
	if res.Status != StartQRCode || res.Code != "2@ref,key,secret" || !strings.HasPrefix(res.QRCode, "data:image/png;base64,") {
		t.Fatalf("start result %+v", res)
	}
	if len(f.notifier.named(NotifyQRCodeUpdated)) != 1 {
		t.Fatal("qr webhook not sent")
	}

	// a second start while the QR is pending reuses the challenge
	again, err := f.m.Start(ctx, "acme")
	if err != nil || again.Status != StartQRCode || f.dialer.count() != 1 {
		t.Fatalf("second start %+v %v (dials %d)", again, err, f.dialer.count())
	}

	ft := f.dialer.last()
	ft.login("5511999999999@s.whatsapp.net")

	res, err = f.m.Start(ctx, "acme")
	if err != nil || res.Status != StartConnected || res.JID != "5511999999999@s.whatsapp.net" {
		t.Fatalf("start when connected %+v %v", res, err)
	}
	ft.mu.Lock()
	connects := ft.connects
	ft.mu.Unlock()
	if f.dialer.count() != 1 || connects != 1 {
		t.Fatalf("connected start touched the transport: dials %d connects %d", f.dialer.count(), connects)
	}

	if !eventually(func() bool {
		st, _ := f.m.SyncStatus("acme")
		return st.Completed
	}) {
		t.Fatal("sync did not run after connect")
	}
	st, _ := f.m.SyncStatus("acme")
	if st.GroupsSynced != 1 {
		t.Fatalf("sync status %+v", st)
	}
	if !eventually(func() bool { return len(f.notifier.named(NotifySyncCompleted)) == 1 }) {
		t.Fatal("sync.completed webhook missing")
	}

	statuses := f.recorder.snapshot().statuses
	if len(statuses) == 0 || statuses[len(statuses)-1] != string(StateConnected) {
		t.Fatalf("persisted statuses %v", statuses)
	}
}

func TestManagerStartTimesOut(t *testing.T) {
	f := newManagerFixture(t, nil)
	f.m.cfg.StartWait = 20 * time.Millisecond

	res, err := f.m.Start(context.Background(), "acme")
	if err != nil {
		t.Fatal(err)
	}
	if res.Status != StartTimeout || res.State != StateConnecting {
		t.Fatalf("result %+v", res)
	}
}

func TestManagerReconnectIsBounded(t *testing.T) {
	f := newManagerFixture(t, func() *fakeTransport {
		return &fakeTransport{onConnect: func(ft *fakeTransport) {
			go ft.listener.HandleEvent(EventClose{Reason: "connection lost"})
		}}
	})

	if _, err := f.m.Start(context.Background(), "acme"); err != nil {
		t.Fatal(err)
	}
	if !eventually(func() bool {
		st, _ := f.m.Status("acme")
		return st.GaveUp
	}) {
		st, _ := f.m.Status("acme")
		t.Fatalf("never gave up: %+v", st)
	}

	ft := f.dialer.last()
	ft.mu.Lock()
	connects := ft.connects
	ft.mu.Unlock()
	if connects != 4 || f.dialer.count() != 1 {
		t.Fatalf("connects %d dials %d, want 1 initial + 3 retries over one handle", connects, f.dialer.count())
	}
	if f.m.Stats().ReconnectsExhausted != 1 {
		t.Fatal("exhaustion not counted")
	}

	report := f.m.CheckHealth()
	if len(report.GaveUp) != 1 || report.GaveUp[0] != "acme" {
		t.Fatalf("health report %+v", report)
	}
}

func TestManagerSendText(t *testing.T) {
	f, ft := connectedFixture(t)
	ctx := context.Background()

	res, err := f.m.SendText(ctx, "acme", "+55 11 98888-7777", "hello", SendOptions{})
	if err != nil {
		t.Fatal(err)
	}
	if res.ID != "MSG1" || res.To != "5511988887777@s.whatsapp.net" || res.TotalSent != 1 {
		t.Fatalf("result %+v", res)
	}
	if ft.sentTo[0] != "5511988887777@s.whatsapp.net" || ft.sent[0].GetConversation() != "hello" {
		t.Fatalf("transport got %v %v", ft.sentTo, ft.sent)
	}

	msgs, err := f.m.Messages("acme", "5511988887777")
	if err != nil || len(msgs) != 1 || !msgs[0].FromMe || msgs[0].Text != "hello" {
		t.Fatalf("mirror messages %+v %v", msgs, err)
	}
	rec := f.recorder.snapshot().messages
	if len(rec) != 1 || rec[0].id != "MSG1" || rec[0].kind != KindText || !rec[0].fromMe {
		t.Fatalf("recorded %+v", rec)
	}

	if _, err := f.m.SendText(ctx, "acme", "", "hello", SendOptions{}); !errors.Is(err, ErrInvalidAddress) {
		t.Fatalf("empty address: %v", err)
	}
	if _, err := f.m.SendText(ctx, "acme", "1", "", SendOptions{}); !errors.Is(err, ErrEmptyText) {
		t.Fatalf("empty text: %v", err)
	}
	if _, err := f.m.SendText(ctx, "ghost", "1", "hi", SendOptions{}); !errors.Is(err, ErrUnknownInstance) {
		t.Fatalf("unknown instance: %v", err)
	}
}

func TestManagerSendWithDelayShowsComposing(t *testing.T) {
	f, ft := connectedFixture(t)

	_, err := f.m.SendButtons(context.Background(), "acme", "1", ButtonsMessage{
		Text:    "Pick",
		Buttons: []Button{{Text: "A"}},
	}, SendOptions{Delay: 10 * time.Millisecond})
	if err != nil {
		t.Fatal(err)
	}
	if len(ft.composing) != 2 || !ft.composing[0] || ft.composing[1] {
		t.Fatalf("composing %v", ft.composing)
	}
	if ft.sent[0].GetViewOnceMessage().GetMessage().GetInteractiveMessage() == nil {
		t.Fatal("buttons not sent as an interactive message")
	}
}

func TestManagerSendRequiresConnection(t *testing.T) {
	f := newManagerFixture(t, nil)
	if err := f.m.Register("acme", ""); err != nil {
		t.Fatal(err)
	}
	if _, err := f.m.SendText(context.Background(), "acme", "1", "hi", SendOptions{}); !errors.Is(err, ErrNotConnected) {
		t.Fatalf("send while disconnected: %v", err)
	}
	if err := f.m.RequestSync("acme"); !errors.Is(err, ErrNotConnected) {
		t.Fatalf("sync while disconnected: %v", err)
	}
}

func TestManagerStartReconnectsClosedSocket(t *testing.T) {
	f, ft := connectedFixture(t)
	ft.Disconnect()
	ft.mu.Lock()
	ft.onConnect = func(ft *fakeTransport) { ft.login("5511999999999@s.whatsapp.net") }
	ft.mu.Unlock()

	res, err := f.m.Start(context.Background(), "acme")
	if err != nil {
		t.Fatal(err)
	}
	ft.mu.Lock()
	connects := ft.connects
	ft.mu.Unlock()
	if res.Status != StartConnected || !ft.IsConnected() || connects != 2 {
		t.Fatalf("start over a closed socket: %+v connected=%v connects=%d", res, ft.IsConnected(), connects)
	}
}

func TestManagerLogout(t *testing.T) {
	f, ft := connectedFixture(t)
	ctx := context.Background()
	f.m.sessions["acme"].mirror.UpsertContacts([]Contact{{JID: "1@s.whatsapp.net"}})

	if err := f.m.Logout(ctx, "acme"); err != nil {
		t.Fatal(err)
	}
	st, err := f.m.Status("acme")
	if err != nil || st.State != StateLoggedOut || st.JID != "" {
		t.Fatalf("status after logout %+v %v", st, err)
	}
	if ft.logouts != 1 {
		t.Fatalf("transport logouts %d", ft.logouts)
	}
	if !eventually(func() bool {
		ft.mu.Lock()
		defer ft.mu.Unlock()
		return ft.deleted == 1
	}) {
		t.Fatal("credentials not deleted")
	}
	if c, _ := f.m.Contacts("acme"); len(c) != 0 {
		t.Fatalf("mirror kept %v", c)
	}

	// a fresh start dials a new device
	if _, err := f.m.Start(ctx, "acme"); err != nil {
		t.Fatal(err)
	}
	if f.dialer.count() != 2 || f.dialer.dialedJIDs[1] != "" {
		t.Fatalf("dials %v", f.dialer.dialedJIDs)
	}

	if err := f.m.Logout(ctx, "ghost"); !errors.Is(err, ErrUnknownInstance) {
		t.Fatalf("unknown logout: %v", err)
	}
}

func TestManagerRemoteLogoutEvent(t *testing.T) {
	f, ft := connectedFixture(t)
	ft.listener.HandleEvent(EventClose{Reason: "connect failure", Code: 401})

	st, _ := f.m.Status("acme")
	if st.State != StateLoggedOut {
		t.Fatalf("state %s", st.State)
	}
	if !eventually(func() bool {
		ft.mu.Lock()
		defer ft.mu.Unlock()
		return ft.deleted == 1
	}) {
		t.Fatal("credentials not deleted after a 401")
	}
}

func TestManagerPairCode(t *testing.T) {
	f := newManagerFixture(t, qrOnConnect)

	code, err := f.m.PairCode(context.Background(), "acme", "5511999999999")
	if err != nil {
		t.Fatal(err)
	}
	if code != "ABCD-EFGH" {
		t.Fatalf("code %q", code)
	}
	st, _ := f.m.Status("acme")
	if st.State != StateQRPending || st.ChallengeKind != ChallengePairCode || st.Challenge != code {
		t.Fatalf("status %+v", st)
	}

	res, err := f.m.Start(context.Background(), "acme")
	if err != nil || res.Status != StartPairCode || res.Code != code {
		t.Fatalf("start while pairing %+v %v", res, err)
	}
}

func TestManagerPairCodeWhenConnected(t *testing.T) {
	f, _ := connectedFixture(t)
	if _, err := f.m.PairCode(context.Background(), "acme", "1"); !errors.Is(err, ErrAlreadyConnected) {
		t.Fatalf("pair while connected: %v", err)
	}
}

func TestManagerRestore(t *testing.T) {
	f := newManagerFixture(t, nil)
	f.m.cfg.RestoreJitterMax = 5 * time.Millisecond

	started, err := f.m.Restore(context.Background(), []RestoreTarget{
		{Instance: "acme", JID: "1@s.whatsapp.net"},
		{Instance: "beta", JID: "2@s.whatsapp.net"},
		{Instance: "fresh"},
	})
	if err != nil {
		t.Fatal(err)
	}
	if started != 2 {
		t.Fatalf("started %d", started)
	}
	if !eventually(func() bool { return f.dialer.count() == 2 }) {
		t.Fatalf("dials %d", f.dialer.count())
	}
	for _, jid := range f.dialer.dialedJIDs {
		if jid == "" {
			t.Fatalf("restore dialed without credentials: %v", f.dialer.dialedJIDs)
		}
	}
	if st, err := f.m.Status("fresh"); err != nil || st.State != StateDisconnected {
		t.Fatalf("fresh instance %+v %v", st, err)
	}
	if len(f.m.List()) != 3 {
		t.Fatalf("list %v", f.m.List())
	}
}

func TestManagerHealthCheckClosesStaleSession(t *testing.T) {
	f, ft := connectedFixture(t)
	ft.Disconnect()

	report := f.m.CheckHealth()
	if len(report.Stale) != 1 || report.Connected != 0 {
		t.Fatalf("report %+v", report)
	}
	st, _ := f.m.Status("acme")
	if st.State == StateConnected || st.LastReason != "health check: socket closed" {
		t.Fatalf("status %+v", st)
	}
}

func TestManagerGroupsFallBackToLiveListing(t *testing.T) {
	f, ft := connectedFixture(t)
	ft.mu.Lock()
	ft.groups = []GroupInfo{{JID: "10@g.us", Name: "Team"}}
	ft.mu.Unlock()

	groups, err := f.m.Groups(context.Background(), "acme")
	if err != nil || len(groups) != 1 || groups[0].Name != "Team" {
		t.Fatalf("groups %+v %v", groups, err)
	}
}

func TestManagerInfoLooksUpAvatarOnce(t *testing.T) {
	f, ft := connectedFixture(t)
	ft.mu.Lock()
	ft.avatar = "https://pps.example/a.jpg"
	ft.mu.Unlock()

	for i := 0; i < 2; i++ {
		info, err := f.m.Info(context.Background(), "acme")
		if err != nil || info.Avatar != "https://pps.example/a.jpg" || info.Name != "Acme" {
			t.Fatalf("info %+v %v", info, err)
		}
	}
	if avatars := f.recorder.snapshot().avatars; len(avatars) != 1 {
		t.Fatalf("avatar persisted %d times", len(avatars))
	}
}

func TestManagerIncomingEventsReachMirrorAndRecorder(t *testing.T) {
	f, ft := connectedFixture(t)
	ft.listener.HandleContacts([]Contact{{JID: "1@s.whatsapp.net", Name: "Ana"}, {JID: "9@g.us", Name: "G"}}, false)
	ft.listener.HandleMessages([]Message{{ID: "in1", ChatJID: "1@s.whatsapp.net", Text: "oi", Timestamp: time.Now()}}, false)
	ft.listener.HandleMessages([]Message{{ID: "old", ChatJID: "1@s.whatsapp.net", Timestamp: time.Now().Add(-time.Hour)}}, true)

	msgs, _ := f.m.Messages("acme", "1@s.whatsapp.net")
	if len(msgs) != 2 || msgs[0].ID != "old" {
		t.Fatalf("messages %+v", msgs)
	}
	rec := f.recorder.snapshot()
	if len(rec.contacts) != 1 || len(rec.messages) != 1 || rec.messages[0].id != "in1" {
		t.Fatalf("recorded contacts %v messages %+v", rec.contacts, rec.messages)
	}
	if len(f.notifier.named(NotifyMessagesUpsert)) != 1 || len(f.notifier.named(NotifyContactsUpsert)) != 1 {
		t.Fatal("webhooks not emitted")
	}
}

func TestManagerRemoveForgetsInstance(t *testing.T) {
	f, _ := connectedFixture(t)
	if err := f.m.Remove(context.Background(), "acme"); err != nil {
		t.Fatal(err)
	}
	if _, err := f.m.Status("acme"); !errors.Is(err, ErrUnknownInstance) {
		t.Fatalf("status after remove: %v", err)
	}
}

func TestManagerShutdownRejectsNewInstances(t *testing.T) {
	f := newManagerFixture(t, nil)
	f.m.Shutdown(context.Background())
	if _, err := f.m.Start(context.Background(), "acme"); !errors.Is(err, ErrManagerClosed) {
		t.Fatalf("start after shutdown: %v", err)
	}
}
