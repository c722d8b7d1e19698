package payment

import (
	"context"

	"storefront/internal/usecase"

	"github.com/google/uuid"
)

// Stripeキーが無い開発環境用。すべて承認する
type OfflineGateway struct{}

func NewOfflineGateway() *OfflineGateway {
	return &OfflineGateway{}
}

func (g *OfflineGateway) CreateAndConfirm(ctx context.Context, req usecase.PaymentRequest) (usecase.PaymentResult, error) {
	if err := ctx.Err(); err != nil {
		return usecase.PaymentResult{}, err
	}
	ref := "offline_" + uuid.NewString()
	if req.IdempotencyKey != "" {
		// 同じキーなら同じ参照
		ref = "offline_" + uuid.NewSHA1(uuid.NameSpaceOID, []byte(req.IdempotencyKey)).String()
	}
	return usecase.PaymentResult{Reference: ref, Status: usecase.PaymentSucceeded}, nil
}

func (g *OfflineGateway) CreateIntent(ctx context.Context, req usecase.PaymentIntentRequest) (usecase.PaymentIntent, error) {
	if err := ctx.Err(); err != nil {
		return usecase.PaymentIntent{}, err
	}
	id := "offline_" + uuid.NewString()
	return usecase.PaymentIntent{Reference: id, ClientSecret: id + "_secret"}, nil
}
