package usecase

import (
	"context"
	"errors"
	"strconv"
	"strings"
	"time"

	"storefront/internal/domain/model"
	repo "storefront/internal/repository"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"
)

// 同じ冪等キーの注文が先にコミットされた
var errDuplicateSubmission = errors.New("duplicate submission")

type OrderSettings struct {
	Currency       string
	PaymentTimeout time.Duration
}

type OrderUsecase struct {
	tx         repo.TransactionManager
	orders     repo.OrderRepository
	orderItems repo.OrderItemRepository
	cartItems  repo.CartItemRepository
	payments   PaymentGateway
	events     OrderEventPublisher
	log        zerolog.Logger
	settings   OrderSettings
}

func NewOrderUsecase(
	tx repo.TransactionManager,
	orders repo.OrderRepository,
	orderItems repo.OrderItemRepository,
	cartItems repo.CartItemRepository,
	payments PaymentGateway,
	events OrderEventPublisher,
	log zerolog.Logger,
	settings OrderSettings,
) *OrderUsecase {
	return &OrderUsecase{
		tx:         tx,
		orders:     orders,
		orderItems: orderItems,
		cartItems:  cartItems,
		payments:   payments,
		events:     events,
		log:        log,
		settings:   settings,
	}
}

type PlaceOrderInput struct {
	ShippingAddress model.AddressSnapshot
	BillingAddress  model.AddressSnapshot
	PaymentMethodID string
	IdempotencyKey  string
}

type OrderItemOutput struct {
	ProductID  int64           `json:"productId"`
	Name       string          `json:"productName"`
	Price      decimal.Decimal `json:"price"`
	Quantity   int64           `json:"quantity"`
	TotalPrice decimal.Decimal `json:"totalPrice"`
}

type OrderOutput struct {
	ID               int64                 `json:"id"`
	UserID           int64                 `json:"userId"`
	Status           string                `json:"status"`
	TotalAmount      decimal.Decimal       `json:"totalAmount"`
	ShippingAddress  model.AddressSnapshot `json:"shippingAddress"`
	BillingAddress   model.AddressSnapshot `json:"billingAddress"`
	PaymentReference string                `json:"paymentReference"`
	CreatedAt        time.Time             `json:"createdAt"`
	UpdatedAt        time.Time             `json:"updatedAt"`
	Items            []OrderItemOutput     `json:"items"`
}

type PaymentOutput struct {
	ID     string `json:"id"`
	Status string `json:"status"`
}

type PlaceOrderOutput struct {
	Order   OrderOutput   `json:"order"`
	Payment PaymentOutput `json:"paymentIntent"`
}

type CheckoutOutput struct {
	ClientSecret string          `json:"clientSecret"`
	TotalAmount  decimal.Decimal `json:"totalAmount"`
}

type OrderListOutput struct {
	Orders     []OrderOutput `json:"orders"`
	Pagination Pagination    `json:"pagination"`
}

// 確定対象の1行（ロック済みの商品と数量）
type orderLine struct {
	product  model.Product
	quantity int64
}

// カートから注文を確定する。在庫確認・決済・注文作成・在庫減算・カート削除を1トランザクションで行う
func (u *OrderUsecase) PlaceOrder(ctx context.Context, userID int64, in PlaceOrderInput) (PlaceOrderOutput, error) {
	if userID <= 0 {
		return PlaceOrderOutput{}, NewUnauthorizedError("unauthorized")
	}
	if !in.ShippingAddress.IsComplete() {
		return PlaceOrderOutput{}, NewValidationError("shippingAddress is required")
	}
	if !in.BillingAddress.IsComplete() {
		return PlaceOrderOutput{}, NewValidationError("billingAddress is required")
	}
	if strings.TrimSpace(in.PaymentMethodID) == "" {
		return PlaceOrderOutput{}, NewValidationError("paymentMethodId is required")
	}
	key := strings.TrimSpace(in.IdempotencyKey)
	if len(key) > 255 {
		return PlaceOrderOutput{}, NewValidationError("invalid idempotency key")
	}
	if key == "" {
		key = uuid.NewString()
	}

	var (
		out      PlaceOrderOutput
		replayed bool
		captured *PaymentResult
	)

	err := u.tx.WithinTx(ctx, func(r repo.TxRepos) error {
		// 同じキーなら同じ結果
		existing, found, err := r.Orders().FindByIdempotencyKey(ctx, userID, key)
		if err != nil {
			return newServerError()
		}
		if found {
			items, err := r.OrderItems().ListByOrderID(ctx, existing.ID)
			if err != nil {
				return newServerError()
			}
			out = toPlaceOrderOutput(existing, items)
			replayed = true
			return nil
		}

		lines, err := lockCartLines(ctx, r, userID)
		if err != nil {
			return err
		}

		//在庫チェックと合計
		total := decimal.Zero
		for _, l := range lines {
			if l.quantity > l.product.StockQuantity {
				return newInsufficientStockError(l.product.Name, l.product.StockQuantity, l.quantity)
			}
			total = total.Add(l.product.Price.Mul(decimal.NewFromInt(l.quantity)))
		}
		if !total.IsPositive() {
			return NewValidationError("order total must be greater than zero")
		}

		//決済（タイムアウト付き）
		res, err := u.charge(ctx, PaymentRequest{
			Amount:          total,
			Currency:        u.settings.Currency,
			PaymentMethodID: strings.TrimSpace(in.PaymentMethodID),
			IdempotencyKey:  processorKey(userID, key),
			Metadata:        map[string]string{"user_id": strconv.FormatInt(userID, 10)},
		})
		if err != nil {
			return err
		}
		captured = &res

		// 注文作成
		order, err := r.Orders().Create(ctx, model.Order{
			UserID:           userID,
			TotalAmount:      total,
			Status:           model.OrderStatusConfirmed,
			ShippingAddress:  in.ShippingAddress,
			BillingAddress:   in.BillingAddress,
			PaymentReference: res.Reference,
			IdempotencyKey:   key,
		})
		if errors.Is(err, repo.ErrConflict) {
			return errDuplicateSubmission
		}
		if err != nil {
			return newServerError()
		}

		//スナップショット（購入時の名前と単価）
		items := make([]model.OrderItem, 0, len(lines))
		for _, l := range lines {
			items = append(items, model.OrderItem{
				ProductID:           l.product.ID,
				ProductNameSnapshot: l.product.Name,
				Quantity:            l.quantity,
				Price:               l.product.Price,
			})
		}
		if err := r.OrderItems().CreateBulk(ctx, order.ID, items); err != nil {
			return newServerError()
		}

		//在庫減算（ロック済みなので通常は失敗しない）
		for _, l := range lines {
			ok, err := r.Inventory().DecreaseStockIfEnough(ctx, l.product.ID, l.quantity)
			if err != nil {
				return newServerError()
			}
			if !ok {
				return newInsufficientStockError(l.product.Name, l.product.StockQuantity, l.quantity)
			}
		}

		if err := r.CartItems().DeleteByUserID(ctx, userID); err != nil {
			return newServerError()
		}

		out = toPlaceOrderOutput(order, items)
		out.Payment = PaymentOutput{ID: res.Reference, Status: string(res.Status)}
		return nil
	})

	if errors.Is(err, errDuplicateSubmission) {
		// 決済側も同じキーで再生されるので二重請求にはならない
		replay, ferr := u.findByKey(ctx, userID, key)
		if ferr != nil {
			u.logUnpersisted(ferr, userID, key, captured)
			return PlaceOrderOutput{}, ferr
		}
		return replay, nil
	}
	if err != nil {
		u.logUnpersisted(err, userID, key, captured)
		return PlaceOrderOutput{}, err
	}

	if !replayed {
		u.publish(ctx, OrderEvent{
			Type:        EventOrderConfirmed,
			OrderID:     out.Order.ID,
			UserID:      userID,
			Status:      out.Order.Status,
			TotalAmount: out.Order.TotalAmount,
			OccurredAt:  time.Now(),
		})
	}
	return out, nil
}

// カート金額でクライアント確定用の決済を作る
func (u *OrderUsecase) PrepareCheckout(ctx context.Context, userID int64) (CheckoutOutput, error) {
	if userID <= 0 {
		return CheckoutOutput{}, NewUnauthorizedError("unauthorized")
	}

	items, err := u.cartItems.ListByUserID(ctx, userID)
	if err != nil {
		return CheckoutOutput{}, newServerError()
	}
	_, total, _ := summarizeCart(items)
	if !total.IsPositive() {
		return CheckoutOutput{}, newEmptyCartError()
	}

	payCtx, cancel := context.WithTimeout(ctx, u.settings.PaymentTimeout)
	defer cancel()

	intent, err := u.payments.CreateIntent(payCtx, PaymentIntentRequest{
		Amount:   total,
		Currency: u.settings.Currency,
		Metadata: map[string]string{"user_id": strconv.FormatInt(userID, 10)},
	})
	if err != nil {
		u.log.Warn().Err(err).Int64("user_id", userID).Msg("create payment intent failed")
		return CheckoutOutput{}, newPaymentFailedError("could not create payment intent")
	}

	return CheckoutOutput{ClientSecret: intent.ClientSecret, TotalAmount: total}, nil
}

func (u *OrderUsecase) ListMyOrders(ctx context.Context, userID int64, page int, limit int) (OrderListOutput, error) {
	if userID <= 0 {
		return OrderListOutput{}, NewUnauthorizedError("unauthorized")
	}
	if page < 1 {
		return OrderListOutput{}, NewValidationError("invalid page")
	}
	if limit < 1 || limit > 100 {
		return OrderListOutput{}, NewValidationError("invalid limit")
	}

	orders, total, err := u.orders.ListByUserID(ctx, userID, page, limit)
	if err != nil {
		return OrderListOutput{}, newServerError()
	}

	ids := make([]int64, 0, len(orders))
	for _, o := range orders {
		ids = append(ids, o.ID)
	}
	items, err := u.orderItems.ListByOrderIDs(ctx, ids)
	if err != nil {
		return OrderListOutput{}, newServerError()
	}
	byOrder := make(map[int64][]model.OrderItem, len(orders))
	for _, it := range items {
		byOrder[it.OrderID] = append(byOrder[it.OrderID], it)
	}

	outs := make([]OrderOutput, 0, len(orders))
	for _, o := range orders {
		outs = append(outs, toOrderOutput(o, byOrder[o.ID]))
	}
	return OrderListOutput{Orders: outs, Pagination: newPagination(page, limit, total)}, nil
}

func (u *OrderUsecase) GetMyOrderDetail(ctx context.Context, userID int64, orderID int64) (OrderOutput, error) {
	if userID <= 0 {
		return OrderOutput{}, NewUnauthorizedError("unauthorized")
	}
	if orderID <= 0 {
		return OrderOutput{}, NewValidationError("invalid id")
	}

	o, err := u.orders.FindByID(ctx, orderID)
	if errors.Is(err, repo.ErrNotFound) {
		return OrderOutput{}, NewNotFoundError("order not found")
	}
	if err != nil {
		return OrderOutput{}, newServerError()
	}
	if o.UserID != userID {
		//他人の注文は「存在しない扱い」にする
		return OrderOutput{}, NewNotFoundError("order not found")
	}

	items, err := u.orderItems.ListByOrderID(ctx, orderID)
	if err != nil {
		return OrderOutput{}, newServerError()
	}
	return toOrderOutput(o, items), nil
}

// 決済済みで注文が残らなかったときの突合用ログ
func (u *OrderUsecase) logUnpersisted(err error, userID int64, key string, captured *PaymentResult) {
	if captured == nil {
		return
	}
	u.log.Error().
		Err(err).
		Int64("user_id", userID).
		Str("payment_reference", captured.Reference).
		Str("idempotency_key", key).
		Msg("payment captured but order was not persisted")
}

// 決済側のキーはアカウント全体で一意なのでユーザーIDを前に付ける
func processorKey(userID int64, key string) string {
	return "order:" + strconv.FormatInt(userID, 10) + ":" + key
}

// カート行→商品行の順にFOR UPDATEで押さえる。公開中でない商品の行は対象外
func lockCartLines(ctx context.Context, r repo.TxRepos, userID int64) ([]orderLine, error) {
	cart, err := r.CartItems().ListByUserIDForUpdate(ctx, userID)
	if err != nil {
		return nil, newServerError()
	}
	if len(cart) == 0 {
		return nil, newEmptyCartError()
	}

	ids := make([]int64, 0, len(cart))
	for _, ci := range cart {
		ids = append(ids, ci.ProductID)
	}
	products, err := r.Products().FindActiveByIDsForUpdate(ctx, ids)
	if err != nil {
		return nil, newServerError()
	}
	byID := make(map[int64]model.Product, len(products))
	for _, p := range products {
		byID[p.ID] = p
	}

	lines := make([]orderLine, 0, len(cart))
	for _, ci := range cart {
		p, ok := byID[ci.ProductID]
		if !ok {
			continue
		}
		lines = append(lines, orderLine{product: p, quantity: ci.Quantity})
	}
	if len(lines) == 0 {
		return nil, newEmptyCartError()
	}
	return lines, nil
}

func (u *OrderUsecase) charge(ctx context.Context, req PaymentRequest) (PaymentResult, error) {
	payCtx, cancel := context.WithTimeout(ctx, u.settings.PaymentTimeout)
	defer cancel()

	res, err := u.payments.CreateAndConfirm(payCtx, req)
	if err != nil {
		if errors.Is(err, context.DeadlineExceeded) || errors.Is(payCtx.Err(), context.DeadlineExceeded) {
			return PaymentResult{}, newPaymentFailedError("payment timed out")
		}
		u.log.Warn().Err(err).Str("idempotency_key", req.IdempotencyKey).Msg("payment request failed")
		return PaymentResult{}, newPaymentFailedError("payment processing failed")
	}
	if res.Status != PaymentSucceeded {
		reason := res.FailureReason
		if reason == "" {
			reason = "payment status: " + string(res.Status)
		}
		return PaymentResult{}, newPaymentFailedError(reason)
	}
	return res, nil
}

func (u *OrderUsecase) findByKey(ctx context.Context, userID int64, key string) (PlaceOrderOutput, error) {
	o, found, err := u.orders.FindByIdempotencyKey(ctx, userID, key)
	if err != nil || !found {
		return PlaceOrderOutput{}, newConflictError("idempotency conflict")
	}
	items, err := u.orderItems.ListByOrderID(ctx, o.ID)
	if err != nil {
		return PlaceOrderOutput{}, newServerError()
	}
	return toPlaceOrderOutput(o, items), nil
}

func (u *OrderUsecase) publish(ctx context.Context, ev OrderEvent) {
	if err := u.events.Publish(ctx, ev); err != nil {
		u.log.Warn().Err(err).Str("type", ev.Type).Int64("order_id", ev.OrderID).Msg("publish order event failed")
	}
}

func toPlaceOrderOutput(o model.Order, items []model.OrderItem) PlaceOrderOutput {
	return PlaceOrderOutput{
		Order:   toOrderOutput(o, items),
		Payment: PaymentOutput{ID: o.PaymentReference, Status: string(PaymentSucceeded)},
	}
}

func toOrderOutput(o model.Order, items []model.OrderItem) OrderOutput {
	outItems := make([]OrderItemOutput, 0, len(items))
	for _, it := range items {
		outItems = append(outItems, OrderItemOutput{
			ProductID:  it.ProductID,
			Name:       it.ProductNameSnapshot,
			Price:      it.Price,
			Quantity:   it.Quantity,
			TotalPrice: it.LineTotal(),
		})
	}

	return OrderOutput{
		ID:               o.ID,
		UserID:           o.UserID,
		Status:           string(o.Status),
		TotalAmount:      o.TotalAmount,
		ShippingAddress:  o.ShippingAddress,
		BillingAddress:   o.BillingAddress,
		PaymentReference: o.PaymentReference,
		CreatedAt:        o.CreatedAt,
		UpdatedAt:        o.UpdatedAt,
		Items:            outItems,
	}
}
