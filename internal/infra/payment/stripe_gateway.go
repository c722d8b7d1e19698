package payment

import (
	"context"
	"errors"
	"strings"

	"storefront/internal/usecase"

	"github.com/stripe/stripe-go/v76"
	"github.com/stripe/stripe-go/v76/client"
)

// Stripe PaymentIntentsを使う決済
type StripeGateway struct {
	sc        *client.API
	returnURL string
}

func NewStripeGateway(secretKey string, returnURL string) *StripeGateway {
	return &StripeGateway{sc: client.New(secretKey, nil), returnURL: returnURL}
}

// テストでAPIの向き先を差し替える
func newStripeGatewayWithBackends(secretKey string, returnURL string, backends *stripe.Backends) *StripeGateway {
	return &StripeGateway{sc: client.New(secretKey, backends), returnURL: returnURL}
}

// サーバー側で作成と確定を同時に行う（confirmation_method=manual）
func (g *StripeGateway) CreateAndConfirm(ctx context.Context, req usecase.PaymentRequest) (usecase.PaymentResult, error) {
	params := &stripe.PaymentIntentParams{
		Amount:             stripe.Int64(toMinorUnits(req.Amount, req.Currency)),
		Currency:           stripe.String(strings.ToLower(req.Currency)),
		PaymentMethod:      stripe.String(req.PaymentMethodID),
		ConfirmationMethod: stripe.String(string(stripe.PaymentIntentConfirmationMethodManual)),
		Confirm:            stripe.Bool(true),
		ReturnURL:          stripe.String(g.returnURL),
	}
	params.Context = ctx
	if req.IdempotencyKey != "" {
		params.SetIdempotencyKey(req.IdempotencyKey)
	}
	for k, v := range req.Metadata {
		params.AddMetadata(k, v)
	}

	pi, err := g.sc.PaymentIntents.New(params)
	if err != nil {
		// カード起因の失敗はエラーではなく「拒否」として返す
		var se *stripe.Error
		if errors.As(err, &se) && se.Type == stripe.ErrorTypeCard {
			return usecase.PaymentResult{Status: usecase.PaymentDeclined, FailureReason: se.Msg}, nil
		}
		return usecase.PaymentResult{}, err
	}

	return usecase.PaymentResult{
		Reference: pi.ID,
		Status:    mapIntentStatus(pi.Status),
	}, nil
}

// クライアントで確定するためのPaymentIntent
func (g *StripeGateway) CreateIntent(ctx context.Context, req usecase.PaymentIntentRequest) (usecase.PaymentIntent, error) {
	params := &stripe.PaymentIntentParams{
		Amount:   stripe.Int64(toMinorUnits(req.Amount, req.Currency)),
		Currency: stripe.String(strings.ToLower(req.Currency)),
	}
	params.Context = ctx
	for k, v := range req.Metadata {
		params.AddMetadata(k, v)
	}

	pi, err := g.sc.PaymentIntents.New(params)
	if err != nil {
		return usecase.PaymentIntent{}, err
	}
	return usecase.PaymentIntent{Reference: pi.ID, ClientSecret: pi.ClientSecret}, nil
}

func mapIntentStatus(s stripe.PaymentIntentStatus) usecase.PaymentStatus {
	switch s {
	case stripe.PaymentIntentStatusSucceeded:
		return usecase.PaymentSucceeded
	case stripe.PaymentIntentStatusRequiresAction:
		return usecase.PaymentRequiresAction
	default:
		return usecase.PaymentStatus(s)
	}
}
