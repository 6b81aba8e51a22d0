package models

import (
	"errors"
	"fmt"
	"strings"
	"time"

	goval "github.com/go-passwd/validator"
	ut "github.com/go-playground/universal-translator"
	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
	"github.com/leebenson/conform"
)

// User represents a registered account. The messaging core only ever reads
// the identity and display fields; credential handling lives in the auth shim.
type User struct {
	Model
	Name           string     `json:"name" binding:"required,min=2" conform:"trim"`
	Email          string     `json:"email" gorm:"unique;not null" binding:"required,email" conform:"email"`
	Password       string     `json:"password,omitempty" gorm:"-" validate:"omitempty,min=6"`
	HashedPassword string     `json:"-"`
	IsVerified     bool       `json:"is_verified"`
	Online         bool       `json:"online"`
	LastSeenAt     *time.Time `json:"last_seen_at,omitempty"`
}

// UserResponse is the directory projection exposed alongside messages.
type UserResponse struct {
	ID    uuid.UUID `json:"id"`
	Name  string    `json:"name"`
	Email string    `json:"email"`
}

func (u *User) Response() UserResponse {
	return UserResponse{
		ID:    u.ID,
		Name:  u.Name,
		Email: u.Email,
	}
}

type LoginRequest struct {
	Email    string `json:"email" binding:"required,email"`
	Password string `json:"password" binding:"required"`
}

type LoginResponse struct {
	User         UserResponse `json:"user"`
	AccessToken  string       `json:"access_token"`
	RefreshToken string       `json:"refresh_token"`
}

type RefreshRequest struct {
	RefreshToken string `json:"refresh_token" binding:"required"`
}

// RefreshToken is a persisted, rotating refresh credential.
type RefreshToken struct {
	Model
	UserID    uuid.UUID `gorm:"type:uuid;not null;index" json:"user_id"`
	Token     string    `gorm:"uniqueIndex;not null" json:"-"`
	ExpiresAt time.Time `json:"expires_at"`
}

// Blacklist holds access tokens invalidated by logout.
type Blacklist struct {
	Model
	Token string `gorm:"index;not null" json:"-"`
}

func ValidatePassword(password string) error {
	passwordValidator := goval.New(goval.MinLength(6, errors.New("password cant be less than 6 characters")),
		goval.MaxLength(64, errors.New("password cant be more than 64 characters")))
	return passwordValidator.Validate(password)
}

// ValidateStruct trims whitespace-only fields and runs the validator tags.
func ValidateStruct(req interface{}, trans ut.Translator) []error {
	if err := conform.Strings(req); err != nil {
		return []error{err}
	}
	validate := validator.New()
	err := validate.Struct(req)
	return translateError(err, trans)
}

func translateError(err error, trans ut.Translator) []error {
	if err == nil {
		return nil
	}
	var errs []error
	validatorErrs, ok := err.(validator.ValidationErrors)
	if !ok {
		return []error{err}
	}
	for _, e := range validatorErrs {
		if trans != nil {
			errs = append(errs, errors.New(e.Translate(trans)))
			continue
		}
		errs = append(errs, fmt.Errorf("%s failed on %s", strings.ToLower(e.Field()), e.Tag()))
	}
	return errs
}
