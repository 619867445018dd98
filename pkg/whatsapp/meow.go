package whatsapp

import (
	"context"
	"errors"
	"fmt"
	"runtime"
	"sync"
	"time"

	_ "github.com/jackc/pgx/v5/stdlib"
	"github.com/sirupsen/logrus"
	"go.mau.fi/whatsmeow"
	"go.mau.fi/whatsmeow/proto/waCompanionReg"
	"go.mau.fi/whatsmeow/proto/waE2E"
	"go.mau.fi/whatsmeow/store"
	"go.mau.fi/whatsmeow/store/sqlstore"
	"go.mau.fi/whatsmeow/types"
	"go.mau.fi/whatsmeow/types/events"
	"google.golang.org/protobuf/encoding/protojson"
	"google.golang.org/protobuf/proto"

	"github.com/gdbrns/go-whatsapp-gateway-rest-api/pkg/log"
)

const (
	logoutRequestTimeout = 30 * time.Second
	contactsLoadTimeout  = 30 * time.Second
)

// MeowDialer opens whatsmeow clients backed by the sqlstore device container,
// which holds every instance's credentials.
type MeowDialer struct {
	container *sqlstore.Container
	proxyURL  string
}

func NewMeowDialer(ctx context.Context, dsn string, proxyURL string) (*MeowDialer, error) {
	container, err := sqlstore.New(ctx, "pgx", dsn, nil)
	if err != nil {
		return nil, fmt.Errorf("open whatsapp datastore: %w", err)
	}
	if err := container.Upgrade(ctx); err != nil {
		return nil, fmt.Errorf("upgrade whatsapp datastore: %w", err)
	}

	store.DeviceProps.Os = proto.String(runtime.GOOS)
	store.DeviceProps.PlatformType = waCompanionReg.DeviceProps_CHROME.Enum()
	store.DeviceProps.RequireFullSync = proto.Bool(false)

	return &MeowDialer{container: container, proxyURL: proxyURL}, nil
}

func (d *MeowDialer) Close() error {
	return d.container.Close()
}

func (d *MeowDialer) Dial(ctx context.Context, instance string, jid string, l Listener) (Transport, error) {
	var device *store.Device
	if jid != "" {
		parsed, err := types.ParseJID(jid)
		if err == nil {
			device, err = d.container.GetDevice(ctx, parsed)
			if err != nil {
				return nil, fmt.Errorf("load device: %w", err)
			}
		}
	}
	if device == nil {
		device = d.container.NewDevice()
	}

	client := whatsmeow.NewClient(device, nil)
	if d.proxyURL != "" {
		if err := client.SetProxyAddress(d.proxyURL); err != nil {
			return nil, fmt.Errorf("set proxy: %w", err)
		}
	}
	// Reconnects are governed by the session state machine.
	client.EnableAutoReconnect = false
	client.AutoTrustIdentity = true

	t := &meowTransport{instance: instance, client: client, listener: l}
	client.AddEventHandler(t.handle)
	return t, nil
}

type meowTransport struct {
	instance string
	client   *whatsmeow.Client
	listener Listener

	mu       sync.Mutex
	qrCancel context.CancelFunc
}

func (t *meowTransport) Connect(ctx context.Context) error {
	if t.client.IsConnected() {
		return nil
	}
	if t.client.Store.ID == nil {
		qrCtx, cancel := context.WithCancel(context.Background())
		qrChan, err := t.client.GetQRChannel(qrCtx)
		if err != nil {
			cancel()
			return err
		}
		t.mu.Lock()
		if t.qrCancel != nil {
			t.qrCancel()
		}
		t.qrCancel = cancel
		t.mu.Unlock()
		go t.forwardQR(qrChan)
	}
	return t.client.Connect()
}

func (t *meowTransport) forwardQR(ch <-chan whatsmeow.QRChannelItem) {
	for item := range ch {
		switch item.Event {
		case "code":
			t.listener.HandleEvent(EventQR{Code: item.Code})
		case whatsmeow.QRChannelSuccess.Event:
			return
		case whatsmeow.QRChannelTimeout.Event:
			t.listener.HandleEvent(EventClose{Reason: "qr code timed out"})
		case whatsmeow.QRChannelClientOutdated.Event:
			t.listener.HandleEvent(EventClose{Reason: "client version is outdated for QR pairing", Code: 405})
		case whatsmeow.QRChannelScannedWithoutMultidevice.Event:
			t.listener.HandleEvent(EventClose{Reason: "qr scanned without multi-device enabled"})
		case whatsmeow.QRChannelErrUnexpectedEvent.Event:
			t.listener.HandleEvent(EventClose{Reason: "qr channel entered an unexpected state"})
		case "error":
			reason := "qr channel reported an unspecified error"
			if item.Error != nil {
				reason = item.Error.Error()
			}
			t.listener.HandleEvent(EventClose{Reason: reason})
		}
	}
}

func (t *meowTransport) Disconnect() {
	t.mu.Lock()
	if t.qrCancel != nil {
		t.qrCancel()
		t.qrCancel = nil
	}
	t.mu.Unlock()
	t.client.Disconnect()
}

func (t *meowTransport) IsConnected() bool    { return t.client.IsConnected() }
func (t *meowTransport) IsLoggedIn() bool     { return t.client.IsLoggedIn() }
func (t *meowTransport) HasCredentials() bool { return t.client.Store.ID != nil }

func (t *meowTransport) JID() string {
	if t.client.Store.ID == nil {
		return ""
	}
	return t.client.Store.ID.String()
}

func (t *meowTransport) PushName() string {
	return t.client.Store.PushName
}

func (t *meowTransport) PairPhone(ctx context.Context, phone string) (string, error) {
	return t.client.PairPhone(ctx, phone, true, whatsmeow.PairClientChrome, "Chrome ("+runtime.GOOS+")")
}

// Logout unlinks the device. When the server call fails the local device store
// is deleted anyway so the credentials cannot be resumed.
func (t *meowTransport) Logout(ctx context.Context) error {
	if t.client.Store.ID == nil {
		return nil
	}
	_ = t.client.SendPresence(ctx, types.PresenceUnavailable)

	logoutCtx, cancel := context.WithTimeout(ctx, logoutRequestTimeout)
	defer cancel()
	if err := t.client.Logout(logoutCtx); err != nil {
		t.Disconnect()
		if err := t.client.Store.Delete(ctx); err != nil {
			return err
		}
	}
	return nil
}

func (t *meowTransport) DeleteCredentials(ctx context.Context) error {
	if t.client.Store.ID == nil {
		return nil
	}
	return t.client.Store.Delete(ctx)
}

func (t *meowTransport) JoinedGroups(ctx context.Context) ([]GroupInfo, error) {
	groups, err := t.client.GetJoinedGroups(ctx)
	if err != nil {
		return nil, err
	}
	out := make([]GroupInfo, 0, len(groups))
	for _, g := range groups {
		if g == nil {
			continue
		}
		out = append(out, GroupInfo{
			JID:          g.JID.String(),
			Name:         g.GroupName.Name,
			Participants: len(g.Participants),
		})
	}
	return out, nil
}

func (t *meowTransport) AvatarURL(ctx context.Context, jid string) (string, error) {
	parsed, err := types.ParseJID(jid)
	if err != nil {
		return "", ErrInvalidAddress
	}
	info, err := t.client.GetProfilePictureInfo(ctx, parsed.ToNonAD(), &whatsmeow.GetProfilePictureParams{Preview: false})
	if errors.Is(err, whatsmeow.ErrProfilePictureNotSet) || errors.Is(err, whatsmeow.ErrProfilePictureUnauthorized) {
		return "", nil
	}
	if err != nil {
		return "", err
	}
	if info == nil {
		return "", nil
	}
	return info.URL, nil
}

func (t *meowTransport) Send(ctx context.Context, to string, msg *waE2E.Message) (string, error) {
	jid, err := types.ParseJID(to)
	if err != nil {
		return "", ErrInvalidAddress
	}
	extra := whatsmeow.SendRequestExtra{ID: t.client.GenerateMessageID()}
	resp, err := t.client.SendMessage(ctx, jid, msg, extra)
	if err != nil {
		return "", err
	}
	return string(resp.ID), nil
}

func (t *meowTransport) Composing(ctx context.Context, to string, composing bool) error {
	jid, err := types.ParseJID(to)
	if err != nil {
		return ErrInvalidAddress
	}
	state := types.ChatPresencePaused
	if composing {
		state = types.ChatPresenceComposing
	}
	return t.client.SendChatPresence(ctx, jid, state, types.ChatPresenceMediaText)
}

func (t *meowTransport) Upload(ctx context.Context, data []byte, mediaType whatsmeow.MediaType) (whatsmeow.UploadResponse, error) {
	return t.client.Upload(ctx, data, mediaType)
}

func (t *meowTransport) handle(evt interface{}) {
	logger := log.Instance(t.instance)

	switch e := evt.(type) {
	case *events.PairSuccess:
		t.listener.HandleEvent(EventPaired{JID: e.ID.String()})
	case *events.Connected:
		t.listener.HandleEvent(EventOpen{JID: t.JID(), PushName: t.PushName()})
		go t.loadContacts()
	case *events.PushNameSetting:
		t.listener.HandleEvent(EventCredentialsUpdated{JID: t.JID()})
	case *events.Disconnected:
		t.listener.HandleEvent(EventClose{Reason: "connection lost"})
	case *events.StreamReplaced:
		t.listener.HandleEvent(EventClose{Reason: "stream replaced"})
	case *events.KeepAliveTimeout:
		logger.WithFields(logrus.Fields{
			"errors":       e.ErrorCount,
			"last_success": e.LastSuccess.Format(time.RFC3339),
		}).Warn("keepalive timeout")
	case *events.KeepAliveRestored:
		logger.Info("keepalive restored")
	case *events.TemporaryBan:
		t.listener.HandleEvent(EventClose{Reason: "temporary ban: " + e.String()})
	case *events.ConnectFailure:
		t.listener.HandleEvent(EventClose{Reason: e.Reason.String() + " " + e.Message, Code: int(e.Reason)})
	case *events.LoggedOut:
		t.listener.HandleEvent(EventLogout{Reason: "logged out: " + e.Reason.String()})
	case *events.Contact:
		t.listener.HandleContacts([]Contact{{JID: e.JID.String(), Name: e.Action.GetFullName()}}, false)
	case *events.PushName:
		t.listener.HandleContacts([]Contact{{JID: e.JID.String(), PushName: e.NewPushName}}, false)
	case *events.JoinedGroup:
		t.listener.HandleChats([]Chat{{
			JID:          e.JID.String(),
			Name:         e.GroupInfo.GroupName.Name,
			Participants: len(e.GroupInfo.Participants),
		}}, false)
	case *events.GroupInfo:
		if e.Name != nil {
			t.listener.HandleChats([]Chat{{JID: e.JID.String(), Name: e.Name.Name}}, false)
		}
	case *events.Message:
		t.listener.HandleMessages([]Message{toMessage(e)}, false)
	case *events.HistorySync:
		t.historySync(e)
	}
}

func (t *meowTransport) loadContacts() {
	ctx, cancel := context.WithTimeout(context.Background(), contactsLoadTimeout)
	defer cancel()

	all, err := t.client.Store.Contacts.GetAllContacts(ctx)
	if err != nil {
		log.Instance(t.instance).WithError(err).Warn("load stored contacts failed")
		return
	}
	contacts := make([]Contact, 0, len(all))
	for jid, info := range all {
		name := info.FullName
		if name == "" {
			name = info.FirstName
		}
		if name == "" {
			name = info.BusinessName
		}
		contacts = append(contacts, Contact{JID: jid.String(), Name: name, PushName: info.PushName})
	}
	t.listener.HandleContacts(contacts, true)
}

func (t *meowTransport) historySync(e *events.HistorySync) {
	data := e.Data
	chats := make([]Chat, 0, len(data.GetConversations()))
	messages := make([]Message, 0)
	for _, conv := range data.GetConversations() {
		chatJID, err := types.ParseJID(conv.GetID())
		if err != nil {
			continue
		}
		chats = append(chats, Chat{JID: chatJID.String(), Name: conv.GetName()})
		for _, hm := range conv.GetMessages() {
			evt, err := t.client.ParseWebMessage(chatJID, hm.GetMessage())
			if err != nil {
				continue
			}
			messages = append(messages, toMessage(evt))
		}
	}

	log.Instance(t.instance).WithFields(logrus.Fields{
		"conversations": len(chats),
		"messages":      len(messages),
	}).Debug("history sync received")

	t.listener.HandleChats(chats, true)
	t.listener.HandleMessages(messages, true)
}

func toMessage(e *events.Message) Message {
	msg := Message{
		ID:        string(e.Info.ID),
		ChatJID:   e.Info.Chat.String(),
		Sender:    e.Info.Sender.ToNonAD().String(),
		PushName:  e.Info.PushName,
		FromMe:    e.Info.IsFromMe,
		Kind:      MessageKind(e.Message),
		Text:      MessageText(e.Message),
		Timestamp: e.Info.Timestamp,
	}
	if e.Message != nil {
		msg.Raw = marshalPayload(e.Message)
	}
	return msg
}

func marshalPayload(msg *waE2E.Message) []byte {
	raw, err := protojson.Marshal(msg)
	if err != nil {
		return nil
	}
	return raw
}
