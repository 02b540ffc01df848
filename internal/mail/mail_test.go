package mail

import (
	"context"
	"strings"
	"testing"
)

func TestBuildMessagePrefersHTML(t *testing.T) {
	raw := string(buildMessage("Himmel <no-reply@himmel.app>", Message{
		To:      "reader@example.com",
		Subject: "Password changed",
		Text:    "plain",
		HTML:    "<p>rich</p>",
	}))
	if !strings.Contains(raw, "Content-Type: text/html") {
		t.Fatalf("expected html content type, got:\n%s", raw)
	}
	if !strings.Contains(raw, "<p>rich</p>") {
		t.Fatal("html body missing")
	}
	if !strings.Contains(raw, "Subject: Password changed\r\n") {
		t.Fatal("subject header missing")
	}
}

func TestEnvelopeAddress(t *testing.T) {
	cases := map[string]string{
		"Himmel <no-reply@himmel.app>": "no-reply@himmel.app",
		"no-reply@himmel.app":          "no-reply@himmel.app",
	}
	for input, expected := range cases {
		if got := envelopeAddress(input); got != expected {
			t.Fatalf("envelopeAddress(%q)=%q, want %q", input, got, expected)
		}
	}
}

func TestLogSenderNeverFails(t *testing.T) {
	if err := (LogSender{}).Send(context.Background(), Message{To: "x@y.z"}); err != nil {
		t.Fatalf("LogSender.Send: %v", err)
	}
}
