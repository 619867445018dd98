package log

import "testing"

func TestMaskJID(t *testing.T) {
	tests := map[string]string{
		"5511999999999@s.whatsapp.net": "551199999xxxx@s.whatsapp.net",
		"5511999999999":                "551199999xxxx",
		"123":                          "123",
		"":                             "",
	}
	for in, want := range tests {
		if got := MaskJID(in); got != want {
			t.Errorf("MaskJID(%q) = %q, want %q", in, got, want)
		}
	}
}
