package whatsapp

import (
	"encoding/json"
	"errors"
	"strconv"
	"strings"

	"go.mau.fi/whatsmeow/proto/waE2E"
	"google.golang.org/protobuf/proto"
)

const (
	DefaultFooter         = "NexusWA"
	DefaultBody           = "Selecione uma opção"
	DefaultListButtonText = "Selecionar"
	DefaultSectionTitle   = "Opções"
	DefaultURLButtonText  = "Acessar"
	DefaultCopyButtonText = "Copiar"
	DefaultInteractive    = "Mensagem interativa"

	MaxQuickReplyButtons = 3
)

const (
	KindText        = "text"
	KindButtons     = "buttons"
	KindList        = "list"
	KindURLButton   = "url_button"
	KindCopyButton  = "copy_button"
	KindInteractive = "interactive"
	KindImage       = "image"
	KindReaction    = "reaction"
)

var (
	ErrEmptyText       = errors.New("message text is required")
	ErrNoButtons       = errors.New("at least one button is required")
	ErrTooManyButtons  = errors.New("at most 3 quick reply buttons are allowed")
	ErrButtonText      = errors.New("every button needs a text")
	ErrNoSections      = errors.New("at least one section with rows is required")
	ErrMissingURL      = errors.New("url is required")
	ErrMissingCopyCode = errors.New("copy code is required")
)

type Button struct {
	ID   string `json:"id"`
	Text string `json:"text"`
}

type ButtonsMessage struct {
	Title   string
	Text    string
	Footer  string
	Buttons []Button
}

type ListRow struct {
	ID          string `json:"id"`
	RowID       string `json:"rowId"`
	Title       string `json:"title"`
	Description string `json:"description"`
}

type ListSection struct {
	Title string    `json:"title"`
	Rows  []ListRow `json:"rows"`
}

type ListMessage struct {
	Title      string
	Text       string
	Footer     string
	ButtonText string
	Sections   []ListSection
}

type URLButtonMessage struct {
	Title      string
	Text       string
	Footer     string
	ButtonText string
	URL        string
}

type CopyButtonMessage struct {
	Title      string
	Text       string
	Footer     string
	ButtonText string
	Code       string
}

// Interactive is the loosely shaped compatibility payload. Footer may be either
// {"text": "..."} or a plain string.
type Interactive struct {
	Header *struct {
		Text string `json:"text"`
	} `json:"header,omitempty"`
	Body *struct {
		Text string `json:"text"`
	} `json:"body,omitempty"`
	Text   string          `json:"text,omitempty"`
	Footer json.RawMessage `json:"footer,omitempty"`
	Action *struct {
		Buttons []InteractiveButton `json:"buttons"`
	} `json:"action,omitempty"`
}

type InteractiveButton struct {
	ID               string `json:"id"`
	ButtonParamsJSON string `json:"buttonParamsJson"`
	Name             string `json:"name"`
	Title            string `json:"title"`
	Text             string `json:"text"`
}

func BuildText(text string) (*waE2E.Message, error) {
	if strings.TrimSpace(text) == "" {
		return nil, ErrEmptyText
	}
	return &waE2E.Message{Conversation: proto.String(text)}, nil
}

func BuildButtons(in ButtonsMessage) (*waE2E.Message, error) {
	if len(in.Buttons) == 0 {
		return nil, ErrNoButtons
	}
	if len(in.Buttons) > MaxQuickReplyButtons {
		return nil, ErrTooManyButtons
	}

	buttons := make([]*waE2E.InteractiveMessage_NativeFlowMessage_NativeFlowButton, 0, len(in.Buttons))
	for i, b := range in.Buttons {
		if strings.TrimSpace(b.Text) == "" {
			return nil, ErrButtonText
		}
		id := b.ID
		if id == "" {
			id = "btn_" + strconv.Itoa(i+1)
		}
		button, err := nativeFlowButton("quick_reply", map[string]interface{}{
			"display_text": b.Text,
			"id":           id,
		})
		if err != nil {
			return nil, err
		}
		buttons = append(buttons, button)
	}
	return nativeFlowMessage(in.Title, orDefault(in.Text, DefaultBody), in.Footer, buttons), nil
}

func BuildList(in ListMessage) (*waE2E.Message, error) {
	type row struct {
		Title       string `json:"title"`
		Description string `json:"description"`
		ID          string `json:"id"`
	}
	type section struct {
		Title string `json:"title"`
		Rows  []row  `json:"rows"`
	}

	sections := make([]section, 0, len(in.Sections))
	rows := 0
	for _, s := range in.Sections {
		out := section{Title: orDefault(s.Title, DefaultSectionTitle), Rows: make([]row, 0, len(s.Rows))}
		for _, r := range s.Rows {
			out.Rows = append(out.Rows, row{
				Title:       r.Title,
				Description: r.Description,
				ID:          orDefault(r.ID, r.RowID),
			})
		}
		rows += len(out.Rows)
		sections = append(sections, out)
	}
	if rows == 0 {
		return nil, ErrNoSections
	}

	button, err := nativeFlowButton("single_select", map[string]interface{}{
		"title":    orDefault(in.ButtonText, DefaultListButtonText),
		"sections": sections,
	})
	if err != nil {
		return nil, err
	}
	return nativeFlowMessage(in.Title, orDefault(in.Text, DefaultBody), in.Footer,
		[]*waE2E.InteractiveMessage_NativeFlowMessage_NativeFlowButton{button}), nil
}

func BuildURLButton(in URLButtonMessage) (*waE2E.Message, error) {
	if strings.TrimSpace(in.URL) == "" {
		return nil, ErrMissingURL
	}
	button, err := nativeFlowButton("cta_url", map[string]interface{}{
		"display_text": orDefault(in.ButtonText, DefaultURLButtonText),
		"url":          in.URL,
		"merchant_url": in.URL,
	})
	if err != nil {
		return nil, err
	}
	return nativeFlowMessage(in.Title, in.Text, in.Footer,
		[]*waE2E.InteractiveMessage_NativeFlowMessage_NativeFlowButton{button}), nil
}

func BuildCopyButton(in CopyButtonMessage) (*waE2E.Message, error) {
	if strings.TrimSpace(in.Code) == "" {
		return nil, ErrMissingCopyCode
	}
	button, err := nativeFlowButton("cta_copy", map[string]interface{}{
		"display_text": orDefault(in.ButtonText, DefaultCopyButtonText),
		"copy_code":    in.Code,
	})
	if err != nil {
		return nil, err
	}
	return nativeFlowMessage(in.Title, in.Text, in.Footer,
		[]*waE2E.InteractiveMessage_NativeFlowMessage_NativeFlowButton{button}), nil
}

// BuildInteractive maps the compatibility payload onto quick reply buttons when
// it carries action.buttons, and onto a plain text message otherwise.
func BuildInteractive(in Interactive) (*waE2E.Message, string, error) {
	text := in.Text
	if in.Body != nil && in.Body.Text != "" {
		text = in.Body.Text
	}

	if in.Action != nil && in.Action.Buttons != nil {
		buttons := make([]Button, 0, len(in.Action.Buttons))
		for _, b := range in.Action.Buttons {
			buttons = append(buttons, Button{
				ID:   orDefault(b.ID, b.ButtonParamsJSON),
				Text: orDefault(b.Name, orDefault(b.Title, b.Text)),
			})
		}
		title := ""
		if in.Header != nil {
			title = in.Header.Text
		}
		msg, err := BuildButtons(ButtonsMessage{
			Title:   title,
			Text:    text,
			Footer:  in.footer(),
			Buttons: buttons,
		})
		return msg, KindButtons, err
	}

	msg, err := BuildText(orDefault(text, DefaultInteractive))
	return msg, KindText, err
}

func (in Interactive) footer() string {
	if len(in.Footer) == 0 {
		return ""
	}
	var obj struct {
		Text string `json:"text"`
	}
	if err := json.Unmarshal(in.Footer, &obj); err == nil {
		return obj.Text
	}
	var plain string
	if err := json.Unmarshal(in.Footer, &plain); err == nil {
		return plain
	}
	return ""
}

func nativeFlowButton(name string, params interface{}) (*waE2E.InteractiveMessage_NativeFlowMessage_NativeFlowButton, error) {
	raw, err := json.Marshal(params)
	if err != nil {
		return nil, err
	}
	return &waE2E.InteractiveMessage_NativeFlowMessage_NativeFlowButton{
		Name:             proto.String(name),
		ButtonParamsJSON: proto.String(string(raw)),
	}, nil
}

func nativeFlowMessage(title, body, footer string, buttons []*waE2E.InteractiveMessage_NativeFlowMessage_NativeFlowButton) *waE2E.Message {
	return &waE2E.Message{
		ViewOnceMessage: &waE2E.FutureProofMessage{
			Message: &waE2E.Message{
				MessageContextInfo: &waE2E.MessageContextInfo{
					DeviceListMetadata:        &waE2E.DeviceListMetadata{},
					DeviceListMetadataVersion: proto.Int32(2),
				},
				InteractiveMessage: &waE2E.InteractiveMessage{
					Header: &waE2E.InteractiveMessage_Header{
						Title:              proto.String(title),
						Subtitle:           proto.String(""),
						HasMediaAttachment: proto.Bool(false),
					},
					Body: &waE2E.InteractiveMessage_Body{
						Text: proto.String(body),
					},
					Footer: &waE2E.InteractiveMessage_Footer{
						Text: proto.String(orDefault(footer, DefaultFooter)),
					},
					InteractiveMessage: &waE2E.InteractiveMessage_NativeFlowMessage_{
						NativeFlowMessage: &waE2E.InteractiveMessage_NativeFlowMessage{
							Buttons: buttons,
						},
					},
				},
			},
		},
	}
}

// MessageText extracts the human readable text of a message, if any.
func MessageText(msg *waE2E.Message) string {
	if msg == nil {
		return ""
	}
	switch {
	case msg.GetConversation() != "":
		return msg.GetConversation()
	case msg.GetExtendedTextMessage() != nil:
		return msg.GetExtendedTextMessage().GetText()
	case msg.GetImageMessage() != nil:
		return msg.GetImageMessage().GetCaption()
	case msg.GetVideoMessage() != nil:
		return msg.GetVideoMessage().GetCaption()
	case msg.GetReactionMessage() != nil:
		return msg.GetReactionMessage().GetText()
	case msg.GetViewOnceMessage().GetMessage().GetInteractiveMessage() != nil:
		return msg.GetViewOnceMessage().GetMessage().GetInteractiveMessage().GetBody().GetText()
	case msg.GetButtonsResponseMessage() != nil:
		return msg.GetButtonsResponseMessage().GetSelectedDisplayText()
	case msg.GetListResponseMessage() != nil:
		return msg.GetListResponseMessage().GetTitle()
	}
	return ""
}

// MessageKind classifies a message for the durable log.
func MessageKind(msg *waE2E.Message) string {
	switch {
	case msg == nil:
		return "unknown"
	case msg.GetConversation() != "", msg.GetExtendedTextMessage() != nil:
		return KindText
	case msg.GetImageMessage() != nil:
		return KindImage
	case msg.GetVideoMessage() != nil:
		return "video"
	case msg.GetAudioMessage() != nil:
		return "audio"
	case msg.GetDocumentMessage() != nil:
		return "document"
	case msg.GetStickerMessage() != nil:
		return "sticker"
	case msg.GetReactionMessage() != nil:
		return KindReaction
	case msg.GetLocationMessage() != nil:
		return "location"
	case msg.GetContactMessage() != nil:
		return "contact"
	case msg.GetViewOnceMessage().GetMessage().GetInteractiveMessage() != nil, msg.GetInteractiveMessage() != nil:
		return KindInteractive
	case msg.GetProtocolMessage() != nil:
		return "protocol"
	}
	return "unknown"
}

// IsInputError reports whether err comes from a malformed send request rather
// than the session or the transport.
func IsInputError(err error) bool {
	for _, target := range []error{
		ErrInvalidAddress, ErrEmptyText, ErrNoButtons, ErrTooManyButtons, ErrButtonText,
		ErrNoSections, ErrMissingURL, ErrMissingCopyCode, ErrInvalidImage, ErrInvalidEmoji,
		ErrNoMessageID,
	} {
		if errors.Is(err, target) {
			return true
		}
	}
	return false
}

func orDefault(v, def string) string {
	if strings.TrimSpace(v) == "" {
		return def
	}
	return v
}
