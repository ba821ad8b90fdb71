package middleware

import (
	"encoding/json"
	"testing"
)

func TestRedactAuditBodyActions(t *testing.T) {
	body := []byte(`{"action":"createOrder","payload":{"apiKey":"k","api_secret":"s","amount":"10"}}`)
	out := redactAuditBody("/v1/actions", body)

	var data map[string]any
	if err := json.Unmarshal([]byte(out), &data); err != nil {
		t.Fatalf("invalid json output: %v", err)
	}
	payload, ok := data["payload"].(map[string]any)
	if !ok {
		t.Fatalf("payload missing from redacted body")
	}
	if payload["apiKey"] == "k" || payload["api_secret"] == "s" {
		t.Fatalf("credentials not redacted: %v", payload)
	}
	if payload["amount"] != "10" {
		t.Fatalf("non-sensitive fields must survive redaction: %v", payload)
	}
}

func TestRedactAuditBodyNonSensitivePath(t *testing.T) {
	body := []byte(`{"ok":true}`)
	out := redactAuditBody("/health", body)
	if out != string(body) {
		t.Fatalf("unexpected redaction on non-sensitive path")
	}
}

func TestRedactAuditBodyInvalidJSON(t *testing.T) {
	out := redactAuditBody("/v1/actions", []byte("not-json"))
	if out != "[redacted]" {
		t.Fatalf("expected redacted placeholder for invalid json, got %q", out)
	}
}
