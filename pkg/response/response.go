package response

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/vaultex/exchange-api/internal/types"
	"gorm.io/gorm"
)

// Response represents a standardized API response
type Response struct {
	Success bool        `json:"success"`
	Data    interface{} `json:"data,omitempty"`
	Error   *Error      `json:"error,omitempty"`
}

// Error represents an error response
type Error struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

// Common error codes
const (
	ErrCodeNotFound              = "NOT_FOUND"
	ErrCodeBadRequest            = "BAD_REQUEST"
	ErrCodeUnauthorized          = "UNAUTHORIZED"
	ErrCodeValidationFailed      = "VALIDATION_FAILED"
	ErrCodeInsufficientAllowance = "INSUFFICIENT_ALLOWANCE"
	ErrCodeInsufficientVault     = "INSUFFICIENT_VAULT_BALANCE"
	ErrCodeSettlementFailed      = "SETTLEMENT_FAILED"
	ErrCodeInternalError         = "INTERNAL_ERROR"
	ErrCodeDuplicateResource     = "DUPLICATE_RESOURCE"
)

// Handle maps core error kinds onto the response envelope.
func Handle(c *gin.Context, data interface{}, err error) {
	if err == nil {
		Success(c, data)
		return
	}

	switch {
	case errors.Is(err, types.ErrValidation):
		fail(c, http.StatusBadRequest, ErrCodeValidationFailed, err.Error())
	case errors.Is(err, types.ErrNotFound), errors.Is(err, gorm.ErrRecordNotFound):
		fail(c, http.StatusNotFound, ErrCodeNotFound, err.Error())
	case errors.Is(err, types.ErrInsufficientAllowance):
		fail(c, http.StatusUnprocessableEntity, ErrCodeInsufficientAllowance, err.Error())
	case errors.Is(err, types.ErrInsufficientVaultBalance):
		fail(c, http.StatusUnprocessableEntity, ErrCodeInsufficientVault, err.Error())
	case errors.Is(err, types.ErrSettlement):
		fail(c, http.StatusBadGateway, ErrCodeSettlementFailed, err.Error())
	case errors.Is(err, gorm.ErrDuplicatedKey):
		fail(c, http.StatusConflict, ErrCodeDuplicateResource, "resource already exists")
	default:
		InternalError(c, "an unexpected error occurred")
	}
}

// Success sends a successful response
func Success(c *gin.Context, data interface{}) {
	status := http.StatusOK
	if c.Request.Method == "POST" {
		status = http.StatusCreated
	}

	c.JSON(status, Response{
		Success: true,
		Data:    data,
	})
}

// NotFound sends a 404 response
func NotFound(c *gin.Context, message string) {
	fail(c, http.StatusNotFound, ErrCodeNotFound, message)
}

// BadRequest sends a 400 response
func BadRequest(c *gin.Context, message string) {
	fail(c, http.StatusBadRequest, ErrCodeBadRequest, message)
}

// Unauthorized sends a 401 response
func Unauthorized(c *gin.Context, message string) {
	fail(c, http.StatusUnauthorized, ErrCodeUnauthorized, message)
}

// InternalError sends a 500 response
func InternalError(c *gin.Context, message string) {
	fail(c, http.StatusInternalServerError, ErrCodeInternalError, message)
}

// Conflict sends a 409 response
func Conflict(c *gin.Context, message string) {
	fail(c, http.StatusConflict, ErrCodeDuplicateResource, message)
}

func fail(c *gin.Context, status int, code, message string) {
	c.JSON(status, Response{
		Success: false,
		Error: &Error{
			Code:    code,
			Message: message,
		},
	})
}
