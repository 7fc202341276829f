package models

import "time"

// Role is the closed set of roles an account can hold. Tokens carry the
// plain names; the auth gate adds the ROLE_ prefix.
type Role string

const (
	RoleUser  Role = "USER"
	RoleAdmin Role = "ADMIN"
)

func (r Role) Valid() bool {
	switch r {
	case RoleUser, RoleAdmin:
		return true
	}
	return false
}

type Account struct {
	ID           uint          `gorm:"primaryKey;autoIncrement"       json:"id"`
	Username     string        `gorm:"size:100;uniqueIndex;not null"  json:"username"`
	PasswordHash string        `gorm:"not null"                       json:"-"`
	Email        string        `gorm:"size:50"                        json:"email,omitempty"`
	FirstName    string        `gorm:"size:50"                        json:"firstName,omitempty"`
	LastName     string        `gorm:"size:50"                        json:"lastName,omitempty"`
	Enabled      bool          `gorm:"not null"                       json:"enabled"`
	TokenVersion int           `gorm:"not null;default:0"             json:"-"`
	Roles        []AccountRole `gorm:"constraint:OnDelete:CASCADE"    json:"roles"`
	CreatedAt    time.Time     `json:"createdAt"`
	UpdatedAt    time.Time     `json:"updatedAt"`
}

type AccountRole struct {
	ID        uint `gorm:"primaryKey;autoIncrement"                 json:"-"`
	AccountID uint `gorm:"not null;uniqueIndex:idx_account_role"    json:"-"`
	Role      Role `gorm:"size:30;not null;uniqueIndex:idx_account_role" json:"role"`
}

func (AccountRole) TableName() string { return "account_roles" }

// RoleNames returns the account roles in stored order.
func (a *Account) RoleNames() []string {
	out := make([]string, 0, len(a.Roles))
	for _, r := range a.Roles {
		out = append(out, string(r.Role))
	}
	return out
}

func (a *Account) HasRole(role Role) bool {
	for _, r := range a.Roles {
		if r.Role == role {
			return true
		}
	}
	return false
}

type Product struct {
	ID          uint      `gorm:"primaryKey;autoIncrement"      json:"id"`
	Name        string    `gorm:"size:50;uniqueIndex;not null"  json:"name"`
	Description string    `gorm:"size:200;not null"             json:"description"`
	Stock       int       `gorm:"not null"                      json:"stock"`
	Price       float64   `gorm:"not null"                      json:"price"`
	Active      bool      `gorm:"not null"                      json:"active"`
	CreatedAt   time.Time `json:"createdAt"`
	UpdatedAt   time.Time `json:"updatedAt"`
}
