package usecase

import (
	"context"
	"time"

	"storefront/internal/domain/model"

	"github.com/shopspring/decimal"
)

type PaymentStatus string

const (
	PaymentSucceeded      PaymentStatus = "succeeded"
	PaymentDeclined       PaymentStatus = "declined"
	PaymentRequiresAction PaymentStatus = "requires_action"
)

// 決済の作成と確定を同時に行うリクエスト
type PaymentRequest struct {
	Amount          decimal.Decimal
	Currency        string
	PaymentMethodID string
	// 決済側の冪等キーにもそのまま渡す
	IdempotencyKey string
	Metadata       map[string]string
}

type PaymentResult struct {
	Reference     string
	Status        PaymentStatus
	FailureReason string
}

// クライアント側で確定する決済（client secretを返す）
type PaymentIntentRequest struct {
	Amount   decimal.Decimal
	Currency string
	Metadata map[string]string
}

type PaymentIntent struct {
	Reference    string
	ClientSecret string
}

// 外部決済サービスの約束
type PaymentGateway interface {
	CreateAndConfirm(ctx context.Context, req PaymentRequest) (PaymentResult, error)
	CreateIntent(ctx context.Context, req PaymentIntentRequest) (PaymentIntent, error)
}

const (
	EventOrderConfirmed     = "order.confirmed"
	EventOrderStatusChanged = "order.status_changed"
)

type OrderEvent struct {
	Type           string          `json:"type"`
	OrderID        int64           `json:"orderId"`
	UserID         int64           `json:"userId"`
	Status         string          `json:"status"`
	PreviousStatus string          `json:"previousStatus,omitempty"`
	TotalAmount    decimal.Decimal `json:"totalAmount"`
	OccurredAt     time.Time       `json:"occurredAt"`
}

// コミット後に通知する。失敗しても注文は成功扱い
type OrderEventPublisher interface {
	Publish(ctx context.Context, ev OrderEvent) error
}

// JWT発行の約束
type TokenIssuer interface {
	Issue(user model.User) (string, time.Time, error)
}
