package whatsapp

import (
	"errors"
	"strings"

	"go.mau.fi/whatsmeow/types"
)

var ErrInvalidAddress = errors.New("WhatsApp address is empty or malformed")

// NormalizeAddress turns a bare phone number into a user JID. Addresses that
// already carry a server part are returned as-is.
func NormalizeAddress(addr string) (string, error) {
	addr = strings.TrimSpace(addr)
	if addr == "" {
		return "", ErrInvalidAddress
	}
	if strings.Contains(addr, "@") {
		user, server, _ := strings.Cut(addr, "@")
		if user == "" || server == "" {
			return "", ErrInvalidAddress
		}
		return addr, nil
	}

	addr = strings.TrimPrefix(addr, "+")
	addr = strings.NewReplacer(" ", "", "-", "", "(", "", ")", "").Replace(addr)
	if addr == "" {
		return "", ErrInvalidAddress
	}
	return addr + "@" + types.DefaultUserServer, nil
}

// ComposeJID normalizes addr and parses it into a whatsmeow JID.
func ComposeJID(addr string) (types.JID, error) {
	normalized, err := NormalizeAddress(addr)
	if err != nil {
		return types.EmptyJID, err
	}
	jid, err := types.ParseJID(normalized)
	if err != nil {
		return types.EmptyJID, ErrInvalidAddress
	}
	return jid, nil
}

// DecomposeJID returns the user part of an address without a leading plus.
func DecomposeJID(id string) string {
	if strings.ContainsRune(id, '@') {
		id, _, _ = strings.Cut(id, "@")
	}
	return strings.TrimSpace(strings.TrimPrefix(id, "+"))
}

func IsGroupJID(jid string) bool {
	return strings.HasSuffix(jid, "@"+types.GroupServer)
}

func IsBroadcastJID(jid string) bool {
	return strings.HasSuffix(jid, "@"+types.BroadcastServer)
}
