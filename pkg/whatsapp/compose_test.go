package whatsapp

import (
	"encoding/json"
	"errors"
	"testing"

	"go.mau.fi/whatsmeow/proto/waE2E"
)

func nativeFlow(t *testing.T, msg *waE2E.Message) *waE2E.InteractiveMessage {
	t.Helper()
	im := msg.GetViewOnceMessage().GetMessage().GetInteractiveMessage()
	if im == nil {
		t.Fatalf("not a view once interactive message: %v", msg)
	}
	return im
}

func buttonParams(t *testing.T, b *waE2E.InteractiveMessage_NativeFlowMessage_NativeFlowButton) map[string]interface{} {
	t.Helper()
	var params map[string]interface{}
	if err := json.Unmarshal([]byte(b.GetButtonParamsJSON()), &params); err != nil {
		t.Fatalf("button params: %v", err)
	}
	return params
}

func TestBuildButtonsDefaults(t *testing.T) {
	msg, err := BuildButtons(ButtonsMessage{
		Buttons: []Button{{Text: "Yes"}, {ID: "no", Text: "No"}},
	})
	if err != nil {
		t.Fatal(err)
	}
	im := nativeFlow(t, msg)
	if im.GetFooter().GetText() != DefaultFooter {
		t.Fatalf("footer %q", im.GetFooter().GetText())
	}
	if im.GetBody().GetText() != DefaultBody {
		t.Fatalf("body %q", im.GetBody().GetText())
	}

	buttons := im.GetNativeFlowMessage().GetButtons()
	if len(buttons) != 2 || buttons[0].GetName() != "quick_reply" {
		t.Fatalf("buttons %v", buttons)
	}
	first := buttonParams(t, buttons[0])
	if first["id"] != "btn_1" || first["display_text"] != "Yes" {
		t.Fatalf("first button %v", first)
	}
	if second := buttonParams(t, buttons[1]); second["id"] != "no" {
		t.Fatalf("second button %v", second)
	}

	ctx := msg.GetViewOnceMessage().GetMessage().GetMessageContextInfo()
	if ctx.GetDeviceListMetadataVersion() != 2 {
		t.Fatalf("device list metadata version %d", ctx.GetDeviceListMetadataVersion())
	}
}

func TestBuildButtonsValidation(t *testing.T) {
	four := []Button{{Text: "1"}, {Text: "2"}, {Text: "3"}, {Text: "4"}}
	if _, err := BuildButtons(ButtonsMessage{Buttons: four}); !errors.Is(err, ErrTooManyButtons) {
		t.Fatalf("4 buttons: %v", err)
	}
	if _, err := BuildButtons(ButtonsMessage{}); !errors.Is(err, ErrNoButtons) {
		t.Fatalf("no buttons: %v", err)
	}
	if _, err := BuildButtons(ButtonsMessage{Buttons: []Button{{ID: "x"}}}); !errors.Is(err, ErrButtonText) {
		t.Fatalf("blank text: %v", err)
	}
}

func TestBuildList(t *testing.T) {
	msg, err := BuildList(ListMessage{
		Text:   "Pick one",
		Footer: "Shop",
		Sections: []ListSection{{
			Rows: []ListRow{
				{RowID: "r1", Title: "First"},
				{ID: "r2", RowID: "ignored", Title: "Second"},
			},
		}},
	})
	if err != nil {
		t.Fatal(err)
	}
	im := nativeFlow(t, msg)
	if im.GetFooter().GetText() != "Shop" {
		t.Fatalf("footer %q", im.GetFooter().GetText())
	}

	button := im.GetNativeFlowMessage().GetButtons()[0]
	if button.GetName() != "single_select" {
		t.Fatalf("button name %q", button.GetName())
	}
	var params struct {
		Title    string `json:"title"`
		Sections []struct {
			Title string `json:"title"`
			Rows  []struct {
				ID string `json:"id"`
			} `json:"rows"`
		} `json:"sections"`
	}
	if err := json.Unmarshal([]byte(button.GetButtonParamsJSON()), &params); err != nil {
		t.Fatal(err)
	}
	if params.Title != DefaultListButtonText || params.Sections[0].Title != DefaultSectionTitle {
		t.Fatalf("defaults not applied: %+v", params)
	}
	if params.Sections[0].Rows[0].ID != "r1" || params.Sections[0].Rows[1].ID != "r2" {
		t.Fatalf("row ids %+v", params.Sections[0].Rows)
	}

	if _, err := BuildList(ListMessage{Sections: []ListSection{{Title: "empty"}}}); !errors.Is(err, ErrNoSections) {
		t.Fatalf("empty list: %v", err)
	}
}

func TestBuildCallToActionButtons(t *testing.T) {
	msg, err := BuildURLButton(URLButtonMessage{Text: "Site", URL: "https://example.com"})
	if err != nil {
		t.Fatal(err)
	}
	b := nativeFlow(t, msg).GetNativeFlowMessage().GetButtons()[0]
	params := buttonParams(t, b)
	if b.GetName() != "cta_url" || params["display_text"] != DefaultURLButtonText || params["merchant_url"] != "https://example.com" {
		t.Fatalf("url button %s %v", b.GetName(), params)
	}

	msg, err = BuildCopyButton(CopyButtonMessage{Text: "Coupon", Code: "SAVE10"})
	if err != nil {
		t.Fatal(err)
	}
	b = nativeFlow(t, msg).GetNativeFlowMessage().GetButtons()[0]
	params = buttonParams(t, b)
	if b.GetName() != "cta_copy" || params["display_text"] != DefaultCopyButtonText || params["copy_code"] != "SAVE10" {
		t.Fatalf("copy button %s %v", b.GetName(), params)
	}

	if _, err := BuildURLButton(URLButtonMessage{}); !errors.Is(err, ErrMissingURL) {
		t.Fatalf("missing url: %v", err)
	}
	if _, err := BuildCopyButton(CopyButtonMessage{}); !errors.Is(err, ErrMissingCopyCode) {
		t.Fatalf("missing code: %v", err)
	}
}

func TestBuildInteractive(t *testing.T) {
	var withButtons Interactive
	raw := `{
		"header": {"text": "Hi"},
		"body": {"text": "Choose"},
		"footer": "Plain footer",
		"action": {"buttons": [{"buttonParamsJson": "opt-a", "title": "A"}, {"id": "b", "name": "B"}]}
	}`
	if err := json.Unmarshal([]byte(raw), &withButtons); err != nil {
		t.Fatal(err)
	}
	msg, kind, err := BuildInteractive(withButtons)
	if err != nil || kind != KindButtons {
		t.Fatalf("kind %q err %v", kind, err)
	}
	im := nativeFlow(t, msg)
	if im.GetHeader().GetTitle() != "Hi" || im.GetBody().GetText() != "Choose" || im.GetFooter().GetText() != "Plain footer" {
		t.Fatalf("header/body/footer not mapped: %v", im)
	}
	first := buttonParams(t, im.GetNativeFlowMessage().GetButtons()[0])
	if first["id"] != "opt-a" || first["display_text"] != "A" {
		t.Fatalf("first button %v", first)
	}

	var objectFooter Interactive
	if err := json.Unmarshal([]byte(`{"footer": {"text": "Obj"}, "action": {"buttons": [{"text": "Ok"}]}}`), &objectFooter); err != nil {
		t.Fatal(err)
	}
	msg, _, err = BuildInteractive(objectFooter)
	if err != nil {
		t.Fatal(err)
	}
	if nativeFlow(t, msg).GetFooter().GetText() != "Obj" {
		t.Fatal("object footer not read")
	}

	msg, kind, err = BuildInteractive(Interactive{})
	if err != nil || kind != KindText || msg.GetConversation() != DefaultInteractive {
		t.Fatalf("fallback: %q %q %v", kind, msg.GetConversation(), err)
	}
}

func TestBuildText(t *testing.T) {
	if _, err := BuildText("  "); !errors.Is(err, ErrEmptyText) {
		t.Fatalf("blank text: %v", err)
	}
	msg, err := BuildText("hello")
	if err != nil || MessageText(msg) != "hello" || MessageKind(msg) != KindText {
		t.Fatalf("text message %v %v", msg, err)
	}
}

func TestBuildReaction(t *testing.T) {
	msg, err := BuildReaction("1@s.whatsapp.net", "ABC", false, "👍")
	if err != nil {
		t.Fatal(err)
	}
	if msg.GetReactionMessage().GetKey().GetID() != "ABC" || MessageKind(msg) != KindReaction {
		t.Fatalf("reaction %v", msg)
	}
	if _, err := BuildReaction("1@s.whatsapp.net", "ABC", false, ""); err != nil {
		t.Fatalf("empty emoji removes a reaction: %v", err)
	}
	for _, bad := range []string{"ok", "👍👍", "a👍"} {
		if _, err := BuildReaction("1@s.whatsapp.net", "ABC", false, bad); !errors.Is(err, ErrInvalidEmoji) {
			t.Errorf("emoji %q accepted: %v", bad, err)
		}
	}
	if _, err := BuildReaction("1@s.whatsapp.net", "", false, "👍"); err == nil {
		t.Fatal("missing message id accepted")
	}
}

func TestDecodeImage(t *testing.T) {
	// 1x1 transparent PNG
	const pixel = "iVBORw0KGgoAAAANSUhEUgAAAAEAAAABCAQAAAC1HAwCAAAAC0lEQVR42mNkYAAAAAYAAjCB0C8AAAAASUVORK5CYII="

	data, mimetype, err := DecodeImage("data:image/png;base64," + pixel)
	if err != nil || mimetype != "image/png" || len(data) == 0 {
		t.Fatalf("data url: %q %v", mimetype, err)
	}
	if _, mimetype, err = DecodeImage(pixel); err != nil || mimetype != "image/png" {
		t.Fatalf("raw base64: %q %v", mimetype, err)
	}
	for _, bad := range []string{"", "not base64!", "data:image/png,abc", "aGVsbG8="} {
		if _, _, err := DecodeImage(bad); !errors.Is(err, ErrInvalidImage) {
			t.Errorf("DecodeImage(%q) = %v", bad, err)
		}
	}
}
