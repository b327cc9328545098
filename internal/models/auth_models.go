package models

import (
	"time"

	"github.com/shopspring/decimal"
)

// Role values carried in access tokens.
const (
	RoleUser = "user"
	RoleHost = "host"
)

// User is a guest account or a venue host.
type User struct {
	ID                 int64           `json:"id" db:"id"`
	PhoneNumber        *string         `json:"phone_number,omitempty" db:"phone_number"`
	FullName           string          `json:"full_name" db:"full_name"`
	Role               string          `json:"role" db:"role"`
	VenueID            *int64          `json:"venue_id,omitempty" db:"venue_id"`
	Balance            decimal.Decimal `json:"balance" db:"balance"`
	IsDeleted          bool            `json:"is_deleted" db:"is_deleted"`
	DeletedAt          *time.Time      `json:"deleted_at,omitempty" db:"deleted_at"`
	DeletedPhoneNumber *string         `json:"-" db:"deleted_phone_number"`
	CreatedAt          time.Time       `json:"created_at" db:"created_at"`
	UpdatedAt          time.Time       `json:"updated_at" db:"updated_at"`
}

// SoftDelete frees the phone number for re-registration and keeps it for audit.
func (u *User) SoftDelete(now time.Time) bool {
	if u.IsDeleted {
		return false
	}
	u.IsDeleted = true
	u.DeletedAt = stampOnce(u.DeletedAt, now)
	u.DeletedPhoneNumber = u.PhoneNumber
	u.PhoneNumber = nil
	return true
}
