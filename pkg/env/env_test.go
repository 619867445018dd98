package env

import (
	"reflect"
	"testing"
	"time"
)

func TestGetEnvDurationOrDefault(t *testing.T) {
	tests := []struct {
		name  string
		value string
		want  time.Duration
	}{
		{name: "unset", value: "", want: 7 * time.Second},
		{name: "go duration", value: "1m30s", want: 90 * time.Second},
		{name: "bare seconds", value: "3", want: 3 * time.Second},
		{name: "negative", value: "-1", want: 7 * time.Second},
		{name: "garbage", value: "soon", want: 7 * time.Second},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			t.Setenv("GW_TEST_DURATION", tc.value)
			if got := GetEnvDurationOrDefault("GW_TEST_DURATION", 7*time.Second); got != tc.want {
				t.Fatalf("got %v, want %v", got, tc.want)
			}
		})
	}
}

func TestGetEnvPositiveIntOrDefault(t *testing.T) {
	t.Setenv("GW_TEST_INT", "0")
	if got := GetEnvPositiveIntOrDefault("GW_TEST_INT", 10); got != 10 {
		t.Fatalf("zero should fall back, got %d", got)
	}
	t.Setenv("GW_TEST_INT", "4")
	if got := GetEnvPositiveIntOrDefault("GW_TEST_INT", 10); got != 4 {
		t.Fatalf("got %d, want 4", got)
	}
}

func TestGetEnvStringSliceOrDefault(t *testing.T) {
	t.Setenv("GW_TEST_SLICE", " a, ,b ,c")
	got := GetEnvStringSliceOrDefault("GW_TEST_SLICE", nil)
	if want := []string{"a", "b", "c"}; !reflect.DeepEqual(got, want) {
		t.Fatalf("got %v, want %v", got, want)
	}

	t.Setenv("GW_TEST_SLICE", " , ")
	got = GetEnvStringSliceOrDefault("GW_TEST_SLICE", []string{"x"})
	if !reflect.DeepEqual(got, []string{"x"}) {
		t.Fatalf("blank list should fall back, got %v", got)
	}
}

func TestMustGetEnvStringPanics(t *testing.T) {
	t.Setenv("GW_TEST_REQUIRED", "")
	defer func() {
		if recover() == nil {
			t.Fatal("expected panic for missing required variable")
		}
	}()
	MustGetEnvString("GW_TEST_REQUIRED")
}
