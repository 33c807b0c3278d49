package email

import (
	"context"
	"strings"
	"testing"
)

func TestPasswordResetEmail(t *testing.T) {
	req, err := PasswordResetEmail("a@church.ua", "https://church.example/update-password?token=abc&x=1")
	if err != nil {
		t.Fatalf("PasswordResetEmail: %v", err)
	}
	if len(req.To) != 1 || req.To[0] != "a@church.ua" {
		t.Errorf("To=%v", req.To)
	}
	if !strings.Contains(req.HTML, "token=abc&amp;x=1") {
		t.Errorf("link must be attribute-escaped in HTML: %s", req.HTML)
	}
	if !strings.HasSuffix(req.Text, "token=abc&x=1") {
		t.Errorf("text body must end with the raw link: %q", req.Text)
	}
}

func TestConfirmationEmail(t *testing.T) {
	req, err := ConfirmationEmail("a@church.ua", "https://church.example/confirm-email?token=t")
	if err != nil {
		t.Fatalf("ConfirmationEmail: %v", err)
	}
	if req.Subject != "Підтвердження реєстрації" {
		t.Errorf("Subject=%q", req.Subject)
	}
}

func TestNoopSender(t *testing.T) {
	res, err := NewNoopSender().Send(context.Background(), SendRequest{To: []string{"a@b.c"}, Subject: "s"})
	if err != nil || !strings.HasPrefix(res.MessageID, "noop-") {
		t.Errorf("res=%+v err=%v", res, err)
	}
}
