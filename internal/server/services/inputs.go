package services

import (
	"strings"
	"time"

	"github.com/dmitrijs2005/gophauth/internal/common"
	"github.com/dmitrijs2005/gophauth/internal/server/models"
)

// Request DTOs. Tags are checked by the validation package before any
// store is touched.

type SignUpInput struct {
	Email     string `json:"email" validate:"required,email,max=254"`
	Password  string `json:"password" validate:"required,min=8,max=128"`
	FirstName string `json:"first_name" validate:"notblank,max=100"`
	LastName  string `json:"last_name" validate:"notblank,max=100"`
}

func (in *SignUpInput) normalize() {
	in.Email = common.NormalizeEmail(in.Email)
	in.FirstName = strings.TrimSpace(in.FirstName)
	in.LastName = strings.TrimSpace(in.LastName)
}

type LoginInput struct {
	Email    string `json:"email" validate:"required,email,max=254"`
	Password string `json:"password" validate:"required,max=128"`
}

type ForgotPasswordInput struct {
	Email string `json:"email" validate:"required,email,max=254"`
}

type ResetPasswordInput struct {
	Token       string `json:"token" validate:"notblank"`
	NewPassword string `json:"new_password" validate:"required,min=8,max=128"`
}

type RefreshTokenInput struct {
	RefreshToken string `json:"refresh_token" validate:"notblank"`
}

// TokenPair bundles a short-lived access token and a long-lived refresh token.
type TokenPair struct {
	AccessToken  string
	RefreshToken string
	// ExpiresIn is the access token lifetime in seconds.
	ExpiresIn int64
	ExpiresAt time.Time
}

type LoginResult struct {
	TokenPair
	User *models.User
}
