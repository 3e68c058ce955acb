package models

import (
	"strings"

	"gorm.io/datatypes"
	"gorm.io/gorm"
)

// User is owned by the account subsystem; the messaging core only reads it
// (identity, display name, push tokens, role).
type User struct {
	gorm.Model
	FirstName           string         `json:"firstName"`
	LastName            string         `json:"lastName"`
	Email               string         `json:"email"`
	AvatarURL           string         `json:"avatarURL"`
	PushTokens          datatypes.JSON `json:"pushTokens"`
	AllowsNotifications *bool          `json:"allowsNotifications"`
	IsActive            *bool          `json:"isActive"`
	Role                string         `json:"role" gorm:"type:varchar(20);default:user;index"` // user, host, admin, super_admin
}

func (u *User) FullName() string {
	return strings.TrimSpace(u.FirstName + " " + u.LastName)
}

func (u *User) IsAdmin() bool {
	return u.Role == "admin" || u.Role == "super_admin"
}

// Suspended users are rejected at connect time.
func (u *User) Suspended() bool {
	return u.IsActive != nil && !*u.IsActive
}
