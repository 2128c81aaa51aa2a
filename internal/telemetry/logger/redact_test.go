package logger

import (
	"bytes"
	"encoding/json"
	"testing"
)

func TestRedactsSensitiveKeys(t *testing.T) {
	var buf bytes.Buffer
	l, err := New(Config{Level: "info", Format: "json", Output: &buf})
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	l.Info("auth attempt", "auth_token", "supersecret")

	var entry map[string]any
	if err := json.Unmarshal(buf.Bytes(), &entry); err != nil {
		t.Fatalf("output is not JSON: %v", err)
	}
	if entry["auth_token"] != redactedValue {
		t.Fatalf("auth_token = %v, want redacted", entry["auth_token"])
	}
}

func TestNonSensitiveKeysPassThrough(t *testing.T) {
	var buf bytes.Buffer
	l, err := New(Config{Level: "info", Format: "json", Output: &buf})
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	l.Info("set", "key", "k1")

	var entry map[string]any
	if err := json.Unmarshal(buf.Bytes(), &entry); err != nil {
		t.Fatalf("output is not JSON: %v", err)
	}
	if entry["key"] != "k1" {
		t.Fatalf("key = %v, want k1", entry["key"])
	}
}

func TestIsSensitiveKey(t *testing.T) {
	cases := map[string]bool{
		"password":   true,
		"AuthToken":  true,
		"client_key": false, // "key" alone is not flagged; too noisy for a KV store
		"username":   false,
	}
	for key, want := range cases {
		if got := IsSensitiveKey(key); got != want {
			t.Errorf("IsSensitiveKey(%q) = %v, want %v", key, got, want)
		}
	}
}
