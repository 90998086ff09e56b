// Package validation checks request input before it reaches the vault.
package validation

import (
	"net/http"
	"strings"

	"github.com/ethereum/go-ethereum/common"
	"github.com/gin-gonic/gin"

	"github.com/mbd888/sessionvault/internal/amount"
)

// MaxRequestSize is the default request body limit (64KB).
const MaxRequestSize = 64 << 10

// MaxTokenIDLength bounds the payment token identifier.
const MaxTokenIDLength = 128

// RequestSizeMiddleware limits request body size.
func RequestSizeMiddleware(maxSize int64) gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Request.Body = http.MaxBytesReader(c.Writer, c.Request.Body, maxSize)
		c.Next()
	}
}

// IsAddress reports whether addr is a 0x-prefixed 20-byte hex address.
func IsAddress(addr string) bool {
	return strings.HasPrefix(addr, "0x") && common.IsHexAddress(addr)
}

// NormalizeAddress trims and lowercases an address.
func NormalizeAddress(addr string) string {
	return strings.ToLower(strings.TrimSpace(addr))
}

// FieldError is one failed check.
type FieldError struct {
	Field   string `json:"field"`
	Message string `json:"message"`
}

// Errors is every failed check for a request.
type Errors []FieldError

func (e Errors) Error() string {
	if len(e) == 0 {
		return "validation failed"
	}
	return e[0].Field + ": " + e[0].Message
}

// Check is a deferred field check.
type Check func() *FieldError

// Validate runs checks and collects their failures.
func Validate(checks ...Check) Errors {
	var errs Errors
	for _, check := range checks {
		if err := check(); err != nil {
			errs = append(errs, *err)
		}
	}
	return errs
}

// Required fails when value is blank.
func Required(field, value string) Check {
	return func() *FieldError {
		if strings.TrimSpace(value) == "" {
			return &FieldError{Field: field, Message: "is required"}
		}
		return nil
	}
}

// Address fails unless value is a valid address. Empty values pass; combine
// with Required.
func Address(field, value string) Check {
	return func() *FieldError {
		if value == "" {
			return nil
		}
		if !IsAddress(strings.TrimSpace(value)) {
			return &FieldError{Field: field, Message: "must be a 0x-prefixed 20-byte hex address"}
		}
		return nil
	}
}

// Units fails unless value is a base-10 integer amount that is not negative.
func Units(field, value string) Check {
	return func() *FieldError {
		v, ok := amount.Parse(value)
		if !ok {
			return &FieldError{Field: field, Message: "must be an integer amount in base units"}
		}
		if v.Sign() < 0 {
			return &FieldError{Field: field, Message: "must not be negative"}
		}
		return nil
	}
}

// MaxLength fails when value is longer than max bytes.
func MaxLength(field, value string, max int) Check {
	return func() *FieldError {
		if len(value) > max {
			return &FieldError{Field: field, Message: "exceeds maximum length"}
		}
		return nil
	}
}

// AddressParamMiddleware rejects malformed :address URL parameters.
func AddressParamMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		addr := c.Param("address")
		if addr != "" && !IsAddress(addr) {
			c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{
				"error":   "invalid_address",
				"message": "address must be 0x followed by 40 hex characters",
			})
			return
		}
		c.Next()
	}
}

// Respond writes a 400 validation_error response for errs.
func Respond(c *gin.Context, errs Errors) {
	c.JSON(http.StatusBadRequest, gin.H{
		"error":   "validation_error",
		"message": errs.Error(),
		"details": errs,
	})
}
