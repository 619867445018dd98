package types

import (
	"strings"
	"time"

	pkgWhatsApp "github.com/gdbrns/go-whatsapp-gateway-rest-api/pkg/whatsapp"
)

// RequestTarget is embedded by every body that addresses a chat on an instance.
// "to" is accepted as an alias of "number".
type RequestTarget struct {
	Instance string `json:"instance"`
	Number   string `json:"number"`
	To       string `json:"to"`
	Delay    int    `json:"delay"`
}

func (r RequestTarget) Recipient() string {
	if n := strings.TrimSpace(r.Number); n != "" {
		return n
	}
	return strings.TrimSpace(r.To)
}

// Options converts the delay, given in seconds, into send options.
func (r RequestTarget) Options() pkgWhatsApp.SendOptions {
	if r.Delay <= 0 {
		return pkgWhatsApp.SendOptions{}
	}
	return pkgWhatsApp.SendOptions{Delay: time.Duration(r.Delay) * time.Second}
}

type RequestInstance struct {
	Instance string `json:"instance"`
}

type RequestPairCode struct {
	Instance string `json:"instance"`
	Phone    string `json:"phone"`
	Number   string `json:"number"`
}

func (r RequestPairCode) PhoneNumber() string {
	if p := strings.TrimSpace(r.Phone); p != "" {
		return strings.TrimPrefix(p, "+")
	}
	return strings.TrimPrefix(strings.TrimSpace(r.Number), "+")
}

type RequestSendText struct {
	RequestTarget
	Text string `json:"text"`
}

type RequestSendButtons struct {
	RequestTarget
	Title   string               `json:"title"`
	Message string               `json:"message"`
	Footer  string               `json:"footer"`
	Buttons []pkgWhatsApp.Button `json:"buttons"`
}

type RequestSendList struct {
	RequestTarget
	Title      string                    `json:"title"`
	Message    string                    `json:"message"`
	Footer     string                    `json:"footer"`
	ButtonText string                    `json:"buttonText"`
	Sections   []pkgWhatsApp.ListSection `json:"sections"`
}

type RequestSendURLButton struct {
	RequestTarget
	Title      string `json:"title"`
	Message    string `json:"message"`
	Footer     string `json:"footer"`
	ButtonText string `json:"buttonText"`
	URL        string `json:"url"`
}

type RequestSendCopyButton struct {
	RequestTarget
	Title      string `json:"title"`
	Message    string `json:"message"`
	Footer     string `json:"footer"`
	ButtonText string `json:"buttonText"`
	CopyCode   string `json:"copyCode"`
}

// RequestSendInteractive keeps the interactive payload at the top level of the
// body next to the target fields.
type RequestSendInteractive struct {
	RequestTarget
	pkgWhatsApp.Interactive
}

type RequestSendImage struct {
	RequestTarget
	Image    string `json:"image"`
	Caption  string `json:"caption"`
	ViewOnce bool   `json:"viewOnce"`
}

type RequestSendReaction struct {
	RequestTarget
	MessageID string `json:"messageId"`
	FromMe    bool   `json:"fromMe"`
	Emoji     string `json:"emoji"`
}
