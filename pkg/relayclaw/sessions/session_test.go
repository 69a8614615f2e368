package sessions

import (
	"encoding/json"
	"testing"
)

func TestKeyStringAndParse(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name  string
		input string
		want  Key
		err   bool
	}{
		{"private chat", "12345:12345", Key{ChatID: "12345", UserID: "12345"}, false},
		{"supergroup", "-1001234567890:42", Key{ChatID: "-1001234567890", UserID: "42"}, false},
		{"cli", "cli:alice", Key{ChatID: "cli", UserID: "alice"}, false},
		{"missing user", "12345:", Key{}, true},
		{"no separator", "12345", Key{}, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			got, err := ParseKey(tt.input)
			if tt.err {
				if err == nil {
					t.Fatalf("ParseKey(%q) expected error", tt.input)
				}
				return
			}
			if err != nil {
				t.Fatalf("ParseKey(%q) error = %v", tt.input, err)
			}
			if got != tt.want {
				t.Errorf("ParseKey(%q) = %+v, want %+v", tt.input, got, tt.want)
			}
			if got.String() != tt.input {
				t.Errorf("String() = %q, want %q", got.String(), tt.input)
			}
		})
	}
}

func TestRecordUnmarshalLegacy(t *testing.T) {
	t.Parallel()

	raw := `{"1:1":"thread_legacy","2:2":{"handle":"thread_new","version":"v3"}}`
	var got map[string]Record
	if err := json.Unmarshal([]byte(raw), &got); err != nil {
		t.Fatalf("Unmarshal: %v", err)
	}

	legacy := got["1:1"]
	if legacy.Handle != "thread_legacy" || legacy.Version != "" {
		t.Errorf("legacy = %+v, want handle thread_legacy and empty version", legacy)
	}
	if legacy.Current("v3") || legacy.Current("") {
		t.Error("legacy record must never be current")
	}

	current := got["2:2"]
	if current.Handle != "thread_new" || current.Version != "v3" {
		t.Errorf("current = %+v", current)
	}
	if !current.Current("v3") {
		t.Error("expected record to be current for v3")
	}
	if current.Current("v4") {
		t.Error("expected record to be stale for v4")
	}
}
