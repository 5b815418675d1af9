package blog

import (
	"errors"
	"regexp"
	"strings"
	"time"

	"github.com/google/uuid"
	"golang.org/x/crypto/bcrypt"
)

// PasswordCost is the bcrypt work factor used for new passwords.
var PasswordCost = 12

var (
	usernameRegex = regexp.MustCompile(`^[\w.@+-]+$`)
	emailRegex    = regexp.MustCompile(`^[a-zA-Z0-9._%+-]+@[a-zA-Z0-9.-]+\.[a-zA-Z]{2,}$`)
)

const (
	maxUsername = 150
	maxName     = 150
	maxEmail    = 254
	minPassword = 8
)

type User struct {
	ID        string    `json:"id"`
	Username  string    `json:"username"`
	Email     string    `json:"email"`
	FirstName string    `json:"first_name"`
	LastName  string    `json:"last_name"`
	Hash      []byte    `json:"-"`
	Created   time.Time `json:"created"`
	Updated   time.Time `json:"updated"`
}

func NewUser(username, email string) *User {
	now := time.Now().UTC()
	return &User{
		ID:       uuid.New().String(),
		Username: strings.TrimSpace(username),
		Email:    strings.ToLower(strings.TrimSpace(email)),
		Created:  now,
		Updated:  now,
	}
}

// FullName falls back to the username when no name was given.
func (u *User) FullName() string {
	name := strings.TrimSpace(u.FirstName + " " + u.LastName)
	if name == "" {
		return u.Username
	}
	return name
}

func (u *User) SetPassword(password string) error {
	hash, err := bcrypt.GenerateFromPassword([]byte(password), PasswordCost)
	if err != nil {
		return err
	}
	u.Hash = hash
	return nil
}

func (u *User) PasswordMatches(input string) (bool, error) {
	err := bcrypt.CompareHashAndPassword(u.Hash, []byte(input))
	if err != nil {
		switch {
		case errors.Is(err, bcrypt.ErrMismatchedHashAndPassword):
			return false, nil
		default:
			return false, err
		}
	}

	return true, nil
}

// Validate checks the editable profile fields and returns per-field messages.
func (u *User) Validate() map[string]string {
	errs := make(map[string]string)

	switch {
	case u.Username == "":
		errs["username"] = "Username cannot be empty"
	case len(u.Username) > maxUsername:
		errs["username"] = "Username is too long"
	case !usernameRegex.MatchString(u.Username):
		errs["username"] = "Username may contain only letters, digits and @/./+/-/_"
	}

	switch {
	case u.Email == "":
		errs["email"] = "Email cannot be empty"
	case len(u.Email) > maxEmail:
		errs["email"] = "Email is too long"
	case !emailRegex.MatchString(u.Email):
		errs["email"] = "Invalid email format"
	}

	if len(u.FirstName) > maxName {
		errs["first_name"] = "First name is too long"
	}
	if len(u.LastName) > maxName {
		errs["last_name"] = "Last name is too long"
	}
	return errs
}
