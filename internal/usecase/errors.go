package usecase

import (
	"errors"
	"fmt"
	"net/http"
)

// エラー種別（レスポンスの"error"に入る）
const (
	CodeValidation        = "ValidationError"
	CodeNotFound          = "NotFound"
	CodeInsufficientStock = "InsufficientStock"
	CodeEmptyCart         = "EmptyCart"
	CodePaymentFailed     = "PaymentFailed"
	CodeInvalidTransition = "InvalidTransition"
	CodeAccessDenied      = "AccessDenied"
	CodeUnauthorized      = "Unauthorized"
	CodeConflict          = "Conflict"
	CodeServerError       = "ServerError"
)

type HTTPError struct {
	Status  int
	Code    string
	Message string
	Details map[string]interface{}
}

func (e *HTTPError) Error() string {
	return fmt.Sprintf("%d: %s", e.Status, e.Message)
}

// ステータスから種別を決める汎用版
func NewHTTPError(status int, message string) error {
	return &HTTPError{
		Status:  status,
		Code:    codeForStatus(status),
		Message: message,
	}
}

func AsHTTPError(err error) (*HTTPError, bool) {
	var he *HTTPError
	ok := errors.As(err, &he)
	return he, ok
}

func NewValidationError(message string) error {
	return &HTTPError{Status: http.StatusBadRequest, Code: CodeValidation, Message: message}
}

func NewNotFoundError(message string) error {
	return &HTTPError{Status: http.StatusNotFound, Code: CodeNotFound, Message: message}
}

func NewAccessDeniedError(message string) error {
	return &HTTPError{Status: http.StatusForbidden, Code: CodeAccessDenied, Message: message}
}

func NewUnauthorizedError(message string) error {
	return &HTTPError{Status: http.StatusUnauthorized, Code: CodeUnauthorized, Message: message}
}

func newInsufficientStockError(product string, available int64, requested int64) error {
	return &HTTPError{
		Status:  http.StatusBadRequest,
		Code:    CodeInsufficientStock,
		Message: fmt.Sprintf("insufficient stock for %s", product),
		Details: map[string]interface{}{
			"product":           product,
			"availableStock":    available,
			"requestedQuantity": requested,
		},
	}
}

func newEmptyCartError() error {
	return &HTTPError{Status: http.StatusBadRequest, Code: CodeEmptyCart, Message: "cart is empty"}
}

func newPaymentFailedError(reason string) error {
	return &HTTPError{
		Status:  http.StatusBadRequest,
		Code:    CodePaymentFailed,
		Message: "payment failed",
		Details: map[string]interface{}{"reason": reason},
	}
}

func newInvalidTransitionError(from string, to string) error {
	return &HTTPError{
		Status:  http.StatusBadRequest,
		Code:    CodeInvalidTransition,
		Message: fmt.Sprintf("cannot change order status from %s to %s", from, to),
		Details: map[string]interface{}{"from": from, "to": to},
	}
}

func newConflictError(message string) error {
	return &HTTPError{Status: http.StatusConflict, Code: CodeConflict, Message: message}
}

// 中身は外に出さない
func newServerError() error {
	return &HTTPError{Status: http.StatusInternalServerError, Code: CodeServerError, Message: "db error"}
}

func codeForStatus(status int) string {
	switch status {
	case http.StatusBadRequest:
		return CodeValidation
	case http.StatusUnauthorized:
		return CodeUnauthorized
	case http.StatusForbidden:
		return CodeAccessDenied
	case http.StatusNotFound:
		return CodeNotFound
	case http.StatusConflict:
		return CodeConflict
	default:
		return CodeServerError
	}
}
