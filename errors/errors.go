package errors

import (
	"fmt"
	"net/http"
	"strings"

	ratelimit "github.com/JGLTechnologies/gin-rate-limit"
	"github.com/gin-gonic/gin"
)

// Error carries a message and the HTTP status it should surface with.
type Error struct {
	Message string `json:"message"`
	Status  int    `json:"status"`
}

func (e *Error) Error() string {
	return fmt.Sprintf("%d: %s", e.Status, e.Message)
}

func New(message string, status int) *Error {
	return &Error{
		Message: message,
		Status:  status,
	}
}

var (
	ErrNotFound            = New("resource not found", http.StatusNotFound)
	ErrUnauthorized        = New("unauthorized", http.StatusUnauthorized)
	ErrBadRequest          = New("bad request", http.StatusBadRequest)
	ErrInternalServerError = New("internal server error", http.StatusInternalServerError)
	ErrAlreadyProcessed    = New("already processed", http.StatusConflict)
	ErrDecryptionFailed    = New("message could not be decrypted", http.StatusInternalServerError)
	InActiveUserError      = New("user inactive", http.StatusUnauthorized)
)

// GetUniqueContraintError maps a postgres unique-violation into a 4xx error.
func GetUniqueContraintError(err error) *Error {
	if err == nil {
		return nil
	}
	msg := err.Error()
	if strings.Contains(msg, "duplicate key value violates unique constraint") {
		switch {
		case strings.Contains(msg, "email"):
			return New("user with this email already exists", http.StatusBadRequest)
		default:
			return New("record already exists", http.StatusConflict)
		}
	}
	return New(msg, http.StatusBadRequest)
}

// ErrorHandler is plugged into the gin rate limiter.
func ErrorHandler(c *gin.Context, info ratelimit.Info) {
	c.JSON(http.StatusTooManyRequests, gin.H{
		"message": "too many requests, try again later",
		"errors":  fmt.Sprintf("retry after %s", info.ResetTime.Format("15:04:05")),
		"status":  http.StatusText(http.StatusTooManyRequests),
	})
}
