package whatsapp

import (
	"errors"
	"testing"
)

func TestNormalizeAddress(t *testing.T) {
	tests := []struct {
		in      string
		want    string
		wantErr bool
	}{
		{in: "5511999999999", want: "5511999999999@s.whatsapp.net"},
		{in: "+55 11 99999-9999", want: "5511999999999@s.whatsapp.net"},
		{in: "(11) 9999-9999", want: "1199999999@s.whatsapp.net"},
		{in: "5511999999999@s.whatsapp.net", want: "5511999999999@s.whatsapp.net"},
		{in: "120363000000000000@g.us", want: "120363000000000000@g.us"},
		{in: " 5511999999999 ", want: "5511999999999@s.whatsapp.net"},
		{in: "", wantErr: true},
		{in: "+", wantErr: true},
		{in: "@s.whatsapp.net", wantErr: true},
		{in: "5511@", wantErr: true},
	}
	for _, tt := range tests {
		got, err := NormalizeAddress(tt.in)
		if tt.wantErr {
			if !errors.Is(err, ErrInvalidAddress) {
				t.Errorf("NormalizeAddress(%q) error = %v, want ErrInvalidAddress", tt.in, err)
			}
			continue
		}
		if err != nil || got != tt.want {
			t.Errorf("NormalizeAddress(%q) = %q, %v; want %q", tt.in, got, err, tt.want)
		}
	}
}

func TestComposeJID(t *testing.T) {
	jid, err := ComposeJID("5511999999999")
	if err != nil {
		t.Fatal(err)
	}
	if jid.User != "5511999999999" || jid.Server != "s.whatsapp.net" {
		t.Fatalf("unexpected jid %+v", jid)
	}
	if DecomposeJID(jid.String()) != "5511999999999" {
		t.Fatalf("decompose %q", DecomposeJID(jid.String()))
	}
}

func TestAddressKinds(t *testing.T) {
	if !IsGroupJID("123@g.us") || IsGroupJID("123@s.whatsapp.net") {
		t.Fatal("group detection")
	}
	if !IsBroadcastJID("status@broadcast") || IsBroadcastJID("123@g.us") {
		t.Fatal("broadcast detection")
	}
}
