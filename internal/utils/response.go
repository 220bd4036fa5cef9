package utils

import "github.com/gofiber/fiber/v2"

// Error codes returned alongside failed responses.
const (
	CodeValidation    = "validation_failed"
	CodeUnauthorized  = "unauthorized"
	CodeForbidden     = "forbidden"
	CodeNotFound      = "not_found"
	CodeConflict      = "conflict"
	CodeRuleViolation = "rule_violation"
	CodeRateLimited   = "rate_limited"
	CodeUnavailable   = "unavailable"
	CodeInternal      = "internal_error"
)

// APIResponse is the envelope every endpoint answers with.
type APIResponse struct {
	Success bool        `json:"success"`
	Data    interface{} `json:"data,omitempty"`
	Message string      `json:"message"`
	Code    string      `json:"code,omitempty"`
}

// SendSuccess answers 200 with data.
func SendSuccess(c *fiber.Ctx, message string, data interface{}) error {
	return SendSuccessWithStatus(c, fiber.StatusOK, message, data)
}

// SendSuccessWithStatus answers status with data. Empty values fall back to
// 200 and "success".
func SendSuccessWithStatus(c *fiber.Ctx, status int, message string, data interface{}) error {
	if message == "" {
		message = "success"
	}
	if status == 0 {
		status = fiber.StatusOK
	}
	return c.Status(status).JSON(APIResponse{Success: true, Data: data, Message: message})
}

// SendError answers a failure with the code implied by status.
func SendError(c *fiber.Ctx, status int, message string) error {
	return SendErrorCode(c, status, codeForStatus(status), message)
}

// SendErrorCode answers a failure with an explicit error code.
func SendErrorCode(c *fiber.Ctx, status int, code, message string) error {
	if message == "" {
		message = "error"
	}
	return c.Status(status).JSON(APIResponse{Success: false, Message: message, Code: code})
}

func codeForStatus(status int) string {
	switch status {
	case fiber.StatusBadRequest:
		return CodeValidation
	case fiber.StatusUnauthorized:
		return CodeUnauthorized
	case fiber.StatusForbidden:
		return CodeForbidden
	case fiber.StatusNotFound:
		return CodeNotFound
	case fiber.StatusConflict:
		return CodeConflict
	case fiber.StatusUnprocessableEntity:
		return CodeRuleViolation
	case fiber.StatusTooManyRequests:
		return CodeRateLimited
	case fiber.StatusServiceUnavailable:
		return CodeUnavailable
	default:
		if status >= fiber.StatusInternalServerError {
			return CodeInternal
		}
		return ""
	}
}
