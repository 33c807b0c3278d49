package account_test

import (
	"errors"
	"testing"

	"congregation/internal/domain/account"
)

// TestUser_Validate tests validation of User.
func TestUser_Validate(t *testing.T) {
	tests := []struct {
		name    string
		user    account.User
		wantErr error
	}{
		{"valid viewer", account.User{ID: "1", Email: "anna@church.ua", Role: account.RoleViewer}, nil},
		{"valid editor", account.User{ID: "2", Email: "ivan@church.ua", Role: account.RoleEditor}, nil},
		{"valid superadmin", account.User{ID: "3", Email: "root@church.ua", Role: account.RoleSuperadmin}, nil},
		{"empty email", account.User{ID: "4", Email: " ", Role: account.RoleViewer}, account.ErrEmptyEmail},
		{"email without domain", account.User{ID: "5", Email: "anna@", Role: account.RoleViewer}, account.ErrInvalidEmail},
		{"unknown role", account.User{ID: "6", Email: "anna@church.ua", Role: "admin"}, account.ErrInvalidRole},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.user.Validate()
			if !errors.Is(err, tt.wantErr) {
				t.Errorf("Validate() error = %v, want %v", err, tt.wantErr)
			}
		})
	}
}

func TestParseRole(t *testing.T) {
	for _, raw := range []string{"viewer", "editor", "superadmin", " editor "} {
		if _, err := account.ParseRole(raw); err != nil {
			t.Errorf("ParseRole(%q) unexpected error: %v", raw, err)
		}
	}
	for _, raw := range []string{"", "admin", "Viewer", "root"} {
		if _, err := account.ParseRole(raw); !errors.Is(err, account.ErrInvalidRole) {
			t.Errorf("ParseRole(%q) error = %v, want ErrInvalidRole", raw, err)
		}
	}
}

func TestRole_HomePath(t *testing.T) {
	cases := map[account.Role]string{
		account.RoleSuperadmin: "/admin",
		account.RoleEditor:     "/members",
		account.RoleViewer:     "/members",
	}
	for role, want := range cases {
		if got := role.HomePath(); got != want {
			t.Errorf("%s.HomePath() = %q, want %q", role, got, want)
		}
	}
}

func TestRole_CanEdit(t *testing.T) {
	if account.RoleViewer.CanEdit() {
		t.Error("viewer must not edit")
	}
	if !account.RoleEditor.CanEdit() || !account.RoleSuperadmin.CanEdit() {
		t.Error("editor and superadmin must edit")
	}
}

func TestCredentials_ValidateSignUp(t *testing.T) {
	tests := []struct {
		name    string
		creds   account.Credentials
		wantErr error
	}{
		{"valid", account.Credentials{Email: "a@b.ua", Password: "secret", ConfirmPassword: "secret"}, nil},
		{"short password", account.Credentials{Email: "a@b.ua", Password: "12345", ConfirmPassword: "12345"}, account.ErrPasswordTooShort},
		{"mismatch", account.Credentials{Email: "a@b.ua", Password: "secret1", ConfirmPassword: "secret2"}, account.ErrPasswordMismatch},
		{"bad email", account.Credentials{Email: "nope", Password: "secret", ConfirmPassword: "secret"}, account.ErrInvalidEmail},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if err := tt.creds.ValidateSignUp(); !errors.Is(err, tt.wantErr) {
				t.Errorf("ValidateSignUp() error = %v, want %v", err, tt.wantErr)
			}
		})
	}
}

func TestCredentials_ValidateSignIn_IgnoresConfirmation(t *testing.T) {
	c := account.Credentials{Email: "a@b.ua", Password: "secret", ConfirmPassword: "other"}
	if err := c.ValidateSignIn(); err != nil {
		t.Errorf("ValidateSignIn() unexpected error: %v", err)
	}
}

func TestCredentials_NormalizedEmail(t *testing.T) {
	c := account.Credentials{Email: "  Anna@Church.UA "}
	if got := c.NormalizedEmail(); got != "anna@church.ua" {
		t.Errorf("NormalizedEmail() = %q", got)
	}
}
