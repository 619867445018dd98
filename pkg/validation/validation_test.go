package validation

import "testing"

func TestValidateInstanceName(t *testing.T) {
	tests := []struct {
		name    string
		wantErr bool
	}{
		{"acme", false},
		{"shop-01.main_2", false},
		{"", true},
		{"-acme", true},
		{"has space", true},
		{"a/b", true},
		{string(make([]byte, 65)), true},
	}
	for _, tt := range tests {
		if err := ValidateInstanceName(tt.name); (err != nil) != tt.wantErr {
			t.Errorf("ValidateInstanceName(%q) = %v", tt.name, err)
		}
	}
}

func TestValidateRecipient(t *testing.T) {
	tests := []struct {
		to      string
		wantErr bool
	}{
		{"6281234567890", false},
		{"+6281234567890", false},
		{"120363025246125486@g.us", false},
		{"081234567890", true},
		{"12ab", true},
		{"  ", true},
	}
	for _, tt := range tests {
		if err := ValidateRecipient(tt.to); (err != nil) != tt.wantErr {
			t.Errorf("ValidateRecipient(%q) = %v", tt.to, err)
		}
	}
}

func TestValidateWebhookURL(t *testing.T) {
	tests := []struct {
		raw     string
		wantErr bool
	}{
		{"", false},
		{"https://hooks.example.com/wa", false},
		{"http://10.0.0.5:8080/in", false},
		{"ftp://example.com", true},
		{"not a url", true},
		{"/relative", true},
	}
	for _, tt := range tests {
		if err := ValidateWebhookURL(tt.raw); (err != nil) != tt.wantErr {
			t.Errorf("ValidateWebhookURL(%q) = %v", tt.raw, err)
		}
	}
}
