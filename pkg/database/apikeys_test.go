package database

import (
	"strings"
	"testing"
	"time"
)

func TestGenerateKeyPrefixes(t *testing.T) {
	user, err := GenerateKey(RoleUser)
	if err != nil {
		t.Fatal(err)
	}
	admin, err := GenerateKey(RoleSuperAdmin)
	if err != nil {
		t.Fatal(err)
	}
	if !strings.HasPrefix(user, "nxus_") || len(user) != len("nxus_")+48 {
		t.Fatalf("unexpected user key %q", user)
	}
	if !strings.HasPrefix(admin, "nxsa_") {
		t.Fatalf("unexpected admin key %q", admin)
	}
	if DisplayPrefix(user) != user[:8] {
		t.Fatalf("display prefix = %q", DisplayPrefix(user))
	}
	if HashKey(user) == HashKey(admin) || len(HashKey(user)) != 64 {
		t.Fatal("hash must be a 64 char hex digest unique per key")
	}
}

func TestHashKeyIsStable(t *testing.T) {
	// sha256("abc")
	const want = "ba7816bf8f01cfea414140de5dae2223b00361a396177a9cb410ff61f20015ad"
	if got := HashKey("abc"); got != want {
		t.Fatalf("HashKey = %s", got)
	}
}

func TestParseValidity(t *testing.T) {
	now := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	for _, raw := range []string{"", "0", "never"} {
		exp, err := ParseValidity(raw, now)
		if err != nil || exp != nil {
			t.Fatalf("%q: got %v, %v", raw, exp, err)
		}
	}
	exp, err := ParseValidity("90", now)
	if err != nil || !exp.Equal(now.AddDate(0, 0, 90)) {
		t.Fatalf("90: got %v, %v", exp, err)
	}
	for _, raw := range []string{"7", "abc", "-30"} {
		if _, err := ParseValidity(raw, now); err != ErrInvalidValidity {
			t.Fatalf("%q: expected ErrInvalidValidity, got %v", raw, err)
		}
	}
}

func TestAPIKeyAccess(t *testing.T) {
	now := time.Now()
	past := now.Add(-time.Minute)
	standard := APIKey{Role: RoleUser, AllowedInstances: []string{"A"}}
	admin := APIKey{Role: RoleSuperAdmin}

	if !standard.CanAccess("A") || standard.CanAccess("B") {
		t.Fatal("standard key must be limited to its allow-list")
	}
	if !admin.CanAccess("anything") {
		t.Fatal("super admin bypasses scoping")
	}
	if standard.Expired(now) {
		t.Fatal("key without expiry never expires")
	}
	standard.ExpiresAt = &past
	if !standard.Expired(now) {
		t.Fatal("past expiry must be expired")
	}
}

func TestNormalizeRole(t *testing.T) {
	for in, want := range map[string]string{"": RoleUser, "standard": RoleUser, "Privileged": RoleSuperAdmin, "super_admin": RoleSuperAdmin} {
		got, err := NormalizeRole(in)
		if err != nil || got != want {
			t.Fatalf("NormalizeRole(%q) = %q, %v", in, got, err)
		}
	}
	if _, err := NormalizeRole("root"); err == nil {
		t.Fatal("unknown role accepted")
	}
}

func TestNormalizeDSN(t *testing.T) {
	got := NormalizeDSN("postgres://u:p@h/db?sslmode=disable")
	if !strings.Contains(got, "&statement_cache_capacity=0") || !strings.Contains(got, "default_query_exec_mode=simple_protocol") {
		t.Fatalf("unexpected dsn %q", got)
	}
	if NormalizeDSN("host=h user=u") != "host=h user=u" {
		t.Fatal("keyword DSNs must be left alone")
	}
	already := "postgres://h/db?statement_cache_capacity=10&default_query_exec_mode=exec"
	if NormalizeDSN(already) != already {
		t.Fatal("existing parameters must be kept")
	}
}
