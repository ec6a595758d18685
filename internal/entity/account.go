package entity

import (
	"database/sql"
	"time"

	"github.com/studymate/backend/pkg/enum"
)

type Role string

var (
	UserRole  = enum.New(Role("USER"), "USER")
	AdminRole = enum.New(Role("ADMIN"), "ADMIN")
)

// Account is the internal user. Email is not unique: two providers may
// report the same address for different people until one is verified.
type Account struct {
	Base
	Email         string `gorm:"index"`
	DisplayName   string
	AvatarURL     string
	EmailVerified bool
	Role          Role `gorm:"default:USER"`
	LastLoginAt   sql.NullTime
	LastLoginIP   string
}

// WithProfile fills the blank profile fields of the account from a provider
// profile and leaves the ones already set untouched.
func (a Account) WithProfile(email, name, avatarURL string) Account {
	if a.Email == "" {
		a.Email = email
	}

	if a.DisplayName == "" {
		a.DisplayName = name
	}

	if a.AvatarURL == "" {
		a.AvatarURL = avatarURL
	}

	return a
}

func (a Account) IsAdmin() bool {
	return a.Role == AdminRole
}

func (a Account) LoggedIn(ip string, now time.Time) Account {
	a.LastLoginAt = sql.NullTime{Time: now, Valid: true}
	a.LastLoginIP = ip
	return a
}
