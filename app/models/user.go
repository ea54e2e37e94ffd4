package models

import (
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"gorm.io/gorm"
)

const (
	ROLE_USER       = "user"
	ROLE_ADMIN      = "admin"
	STATUS_ACTIVE   = "active"
	STATUS_DISABLED = "disabled"
)

// User is the local mirror of an identity-provider account. Roles are stored
// here and only changed through the database, never derived from credentials.
type User struct {
	ID          uint           `gorm:"primaryKey" json:"id"`
	ExternalUID string         `gorm:"type:varchar(128);uniqueIndex;not null" json:"external_uid" validate:"required,max=128"`
	Email       string         `gorm:"type:varchar(200);index" json:"email" validate:"omitempty,email,max=200"`
	Name        string         `gorm:"type:varchar(150)" json:"name" validate:"max=150"`
	Role        string         `gorm:"type:varchar(50);default:'user'" json:"role" validate:"oneof=user admin"`
	Status      string         `gorm:"type:varchar(50);default:'active'" json:"status" validate:"oneof=active disabled"`
	LastLoginAt *time.Time     `gorm:"type:timestamp;default:null" json:"last_login_at"`
	CreatedAt   time.Time      `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt   time.Time      `gorm:"autoUpdateTime" json:"updated_at"`
	DeletedAt   gorm.DeletedAt `gorm:"index" json:"-"`
}

func (u *User) Validate() error {
	v := validator.New()

	return v.Struct(u)
}

// NewUserFromIdentity builds a regular user for a verified identity.
func NewUserFromIdentity(uid, email, name string) (*User, error) {
	u := &User{
		ExternalUID: strings.TrimSpace(uid),
		Email:       strings.ToLower(strings.TrimSpace(email)),
		Name:        strings.TrimSpace(name),
		Role:        ROLE_USER,
		Status:      STATUS_ACTIVE,
	}

	if err := u.Validate(); err != nil {
		return nil, err
	}

	return u, nil
}

// IsActive reports whether the user status is active
func (u *User) IsActive() bool {
	return u.Status == STATUS_ACTIVE
}

// IsAdmin reports whether the user carries the admin role
func (u *User) IsAdmin() bool {
	return u.Role == ROLE_ADMIN
}
