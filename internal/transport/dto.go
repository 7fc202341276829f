package transport

import (
	"time"

	"github.com/Skotchmaster/apirest/internal/models"
	"github.com/Skotchmaster/apirest/internal/util"
)

type LoginRequest struct {
	Username string `json:"username" validate:"required,max=100"`
	Password string `json:"password" validate:"required,max=72"`
}

type RegisterRequest struct {
	Username  string `json:"username"  validate:"required,min=3,max=100"`
	Password  string `json:"password"  validate:"required,min=8,max=72"`
	Email     string `json:"email"     validate:"omitempty,email,max=50"`
	FirstName string `json:"firstName" validate:"omitempty,max=50"`
	LastName  string `json:"lastName"  validate:"omitempty,max=50"`
}

// TokenResponse is returned by login and refresh. RefreshToken serializes
// as null when refresh issuance is disabled.
type TokenResponse struct {
	AccessToken  string  `json:"accessToken"`
	ExpiresIn    int64   `json:"expiresIn"`
	RefreshToken *string `json:"refreshToken"`
}

type ProductRequest struct {
	Name        string  `json:"name"        validate:"required,max=50"`
	Description string  `json:"description" validate:"max=200"`
	Stock       int     `json:"stock"       validate:"gte=0"`
	Price       float64 `json:"price"       validate:"gte=0"`
}

type AccountResponse struct {
	ID        uint      `json:"id"`
	Username  string    `json:"username"`
	Email     string    `json:"email,omitempty"`
	FirstName string    `json:"firstName,omitempty"`
	LastName  string    `json:"lastName,omitempty"`
	Enabled   bool      `json:"enabled"`
	Roles     []string  `json:"roles"`
	CreatedAt time.Time `json:"createdAt"`
}

func NewAccountResponse(acc *models.Account) AccountResponse {
	return AccountResponse{
		ID:        acc.ID,
		Username:  acc.Username,
		Email:     acc.Email,
		FirstName: acc.FirstName,
		LastName:  acc.LastName,
		Enabled:   acc.Enabled,
		Roles:     acc.RoleNames(),
		CreatedAt: acc.CreatedAt,
	}
}

type MeResponse struct {
	Username string   `json:"username"`
	Roles    []string `json:"roles"`
}

type RevokeResponse struct {
	Username     string `json:"username"`
	TokenVersion int    `json:"tokenVersion"`
}

type PageMeta struct {
	Page       int   `json:"page"`
	Size       int   `json:"size"`
	Total      int64 `json:"total"`
	TotalPages int64 `json:"total_pages"`
	HasPrev    bool  `json:"has_prev"`
	HasNext    bool  `json:"has_next"`
}

type PageResponse[T any] struct {
	Data []T      `json:"data"`
	Meta PageMeta `json:"meta"`
}

func NewPage[T any](items []T, page, size int, total int64) PageResponse[T] {
	if items == nil {
		items = []T{}
	}
	return PageResponse[T]{
		Data: items,
		Meta: PageMeta{
			Page:       page,
			Size:       size,
			Total:      total,
			TotalPages: util.TotalPages(total, size),
			HasPrev:    page > 1,
			HasNext:    int64(page*size) < total,
		},
	}
}

// ErrorResponse is the body of every error the API returns.
type ErrorResponse struct {
	Error     string `json:"error"`
	Code      int    `json:"code"`
	Timestamp string `json:"timestamp"`
	Path      string `json:"path"`
}
