package account

import (
	"errors"
	"regexp"
	"strings"
	"time"
)

// Max length constants for user-editable fields.
const (
	MaxEmailLength    = 254
	MinPasswordLength = 6
)

// Role is a user's authorization level.
type Role string

// Role constants
const (
	RoleViewer     Role = "viewer"
	RoleEditor     Role = "editor"
	RoleSuperadmin Role = "superadmin"
)

// ValidRoles contains all valid role values.
var ValidRoles = []Role{RoleViewer, RoleEditor, RoleSuperadmin}

// Domain errors
var (
	ErrEmptyEmail       = errors.New("Введіть email")
	ErrInvalidEmail     = errors.New("Невірний формат email")
	ErrPasswordTooShort = errors.New("Пароль повинен містити щонайменше 6 символів")
	ErrPasswordMismatch = errors.New("Паролі не збігаються")
	ErrInvalidRole      = errors.New("Невалідна роль")

	// ErrNoRole means the identity exists but has no users row yet.
	ErrNoRole       = errors.New("user has no role record")
	ErrUserNotFound = errors.New("user not found")
)

var emailPattern = regexp.MustCompile(`^[^\s@]+@[^\s@]+\.[^\s@]+$`)

// User is an authenticated identity with a role record.
type User struct {
	ID        string
	Email     string
	Role      Role
	CreatedAt time.Time
}

// Credentials carries the fields of the sign-in and sign-up forms.
type Credentials struct {
	Email           string
	Password        string
	ConfirmPassword string
}

// ParseRole maps a raw string to one of the closed set of roles.
// PRE: none
// POST: returns ErrInvalidRole for anything outside ValidRoles
func ParseRole(raw string) (Role, error) {
	r := Role(strings.TrimSpace(raw))
	for _, valid := range ValidRoles {
		if r == valid {
			return r, nil
		}
	}
	return "", ErrInvalidRole
}

// Label returns the Ukrainian display name of the role.
func (r Role) Label() string {
	switch r {
	case RoleViewer:
		return "Переглядач"
	case RoleEditor:
		return "Редактор"
	case RoleSuperadmin:
		return "Суперадмін"
	}
	return string(r)
}

// HomePath is where a freshly signed-in user lands.
// INVARIANT: only superadmin lands on the admin console
func (r Role) HomePath() string {
	if r == RoleSuperadmin {
		return "/admin"
	}
	return "/members"
}

// CanEdit reports whether the role may create, edit or delete members.
func (r Role) CanEdit() bool {
	return r == RoleEditor || r == RoleSuperadmin
}

// Validate checks if the User has valid data.
// PRE: User struct is populated
// POST: Returns nil if valid, error otherwise
func (u *User) Validate() error {
	if err := ValidateEmail(u.Email); err != nil {
		return err
	}
	if _, err := ParseRole(string(u.Role)); err != nil {
		return err
	}
	return nil
}

// ValidateEmail checks the shape of an email address.
func ValidateEmail(email string) error {
	email = strings.TrimSpace(email)
	if email == "" {
		return ErrEmptyEmail
	}
	if len(email) > MaxEmailLength || !emailPattern.MatchString(email) {
		return ErrInvalidEmail
	}
	return nil
}

// ValidateSignIn checks the format of sign-in credentials.
// PRE: none
// POST: returns the first failing rule, nil if the backend may be called
func (c Credentials) ValidateSignIn() error {
	if err := ValidateEmail(c.Email); err != nil {
		return err
	}
	if len(c.Password) < MinPasswordLength {
		return ErrPasswordTooShort
	}
	return nil
}

// ValidateSignUp checks the format of sign-up credentials.
// PRE: none
// POST: returns the first failing rule, nil if the backend may be called
// INVARIANT: Password and ConfirmPassword must be equal
func (c Credentials) ValidateSignUp() error {
	if err := c.ValidateSignIn(); err != nil {
		return err
	}
	if c.Password != c.ConfirmPassword {
		return ErrPasswordMismatch
	}
	return nil
}

// NormalizedEmail returns the trimmed, lower-cased email.
func (c Credentials) NormalizedEmail() string {
	return strings.ToLower(strings.TrimSpace(c.Email))
}
