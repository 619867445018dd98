package whatsapp

import (
	"context"

	"go.mau.fi/whatsmeow"
	"go.mau.fi/whatsmeow/proto/waE2E"
)

type GroupInfo struct {
	JID          string `json:"jid"`
	Name         string `json:"name"`
	Participants int    `json:"participants"`
}

// Transport is one live protocol handle. Connect starts the handshake; login
// challenges and lifecycle changes arrive through the Listener.
type Transport interface {
	Connect(ctx context.Context) error
	Disconnect()
	IsConnected() bool
	IsLoggedIn() bool
	HasCredentials() bool
	JID() string
	PushName() string

	PairPhone(ctx context.Context, phone string) (string, error)
	Logout(ctx context.Context) error
	DeleteCredentials(ctx context.Context) error

	JoinedGroups(ctx context.Context) ([]GroupInfo, error)
	AvatarURL(ctx context.Context, jid string) (string, error)

	Send(ctx context.Context, to string, msg *waE2E.Message) (string, error)
	Composing(ctx context.Context, to string, composing bool) error
	Upload(ctx context.Context, data []byte, mediaType whatsmeow.MediaType) (whatsmeow.UploadResponse, error)
}

// Listener receives translated transport events for one instance.
type Listener interface {
	HandleEvent(ev Event)
	HandleContacts(contacts []Contact, snapshot bool)
	HandleChats(chats []Chat, snapshot bool)
	HandleMessages(messages []Message, history bool)
}

// Dialer opens a transport for an instance. jid selects stored credentials; an
// empty jid starts a fresh device.
type Dialer interface {
	Dial(ctx context.Context, instance string, jid string, l Listener) (Transport, error)
}
