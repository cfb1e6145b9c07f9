package email

import (
	"context"
	"net/smtp"
	"strings"
	"testing"
)

func TestRenderTwoFactorTemplate(t *testing.T) {
	body, err := Render("two_factor_code", map[string]any{
		"name":               "Ana",
		"code":               "123456",
		"expires_in_minutes": 5,
	})
	if err != nil {
		t.Fatalf("render failed: %v", err)
	}
	if !strings.Contains(body, "123456") || !strings.Contains(body, "Ana") {
		t.Fatalf("expected code and name in body, got %s", body)
	}
}

func TestRenderUnknownTemplate(t *testing.T) {
	if _, err := Render("missing", nil); err == nil {
		t.Fatal("expected error for unknown template")
	}
}

func TestSendTemplateUsesDefaultSubject(t *testing.T) {
	var captured string
	p := NewSMTP(Config{Host: "localhost", Port: 2525, From: "no-reply@floodwatch.local"})
	p.send = func(addr string, a smtp.Auth, from string, to []string, msg []byte) error {
		if addr != "localhost:2525" {
			t.Fatalf("unexpected addr %s", addr)
		}
		captured = string(msg)
		return nil
	}

	err := p.SendTemplate(context.Background(), []string{"ana@x.com"}, "welcome", map[string]any{"name": "Ana"})
	if err != nil {
		t.Fatalf("send failed: %v", err)
	}
	if !strings.Contains(captured, "Subject: Welcome to Floodwatch") {
		t.Fatalf("expected default subject, got %s", captured)
	}
}
