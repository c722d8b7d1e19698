package usecase_test

import (
	"bytes"
	"context"
	"errors"
	"net/http"
	"testing"
	"time"

	"storefront/internal/domain/model"
	repo "storefront/internal/repository"
	"storefront/internal/usecase"

	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

var testAddress = model.AddressSnapshot{
	FirstName: "Hanako",
	LastName:  "Yamada",
	Address:   "1-2-3 Shibuya",
	City:      "Tokyo",
	ZipCode:   "150-0002",
	Country:   "JP",
}

var testSettings = usecase.OrderSettings{Currency: "usd", PaymentTimeout: time.Second}

func newOrderUC(db *memDB, gw usecase.PaymentGateway, pub usecase.OrderEventPublisher, log zerolog.Logger, settings usecase.OrderSettings) *usecase.OrderUsecase {
	return usecase.NewOrderUsecase(db, db.Orders(), db.OrderItems(), db.CartItems(), gw, pub, log, settings)
}

func placeInput(key string) usecase.PlaceOrderInput {
	return usecase.PlaceOrderInput{
		ShippingAddress: testAddress,
		BillingAddress:  testAddress,
		PaymentMethodID: "pm_card_visa",
		IdempotencyKey:  key,
	}
}

// A: [A 10.00 x2]、在庫5 → 合計20.00、在庫3、カート空
func TestPlaceOrder_Success(t *testing.T) {
	db := newMemDB()
	db.addProduct(1, "Product A", "10.00", 5)
	db.putCart(7, 1, 2)

	gw := succeededGateway()
	pub := &recordingPublisher{}
	uc := newOrderUC(db, gw, pub, zerolog.Nop(), testSettings)

	out, err := uc.PlaceOrder(context.Background(), 7, placeInput("key-a"))
	require.NoError(t, err)

	assert.True(t, decimal.RequireFromString("20.00").Equal(out.Order.TotalAmount))
	assert.Equal(t, string(model.OrderStatusConfirmed), out.Order.Status)
	assert.Equal(t, "pi_order:7:key-a", out.Order.PaymentReference)
	assert.Equal(t, "succeeded", out.Payment.Status)
	require.Len(t, out.Order.Items, 1)
	assert.Equal(t, "Product A", out.Order.Items[0].Name)
	assert.Equal(t, int64(2), out.Order.Items[0].Quantity)

	assert.Equal(t, int64(3), db.stock(1))
	assert.Empty(t, db.cartOf(7))
	assert.Equal(t, 1, db.orderCount())

	//決済には合計と冪等キーが渡る
	require.Equal(t, 1, gw.calls())
	assert.True(t, decimal.RequireFromString("20").Equal(gw.requests[0].Amount))
	assert.Equal(t, "usd", gw.requests[0].Currency)
	//決済側のキーはユーザーごとに分ける
	assert.Equal(t, "order:7:key-a", gw.requests[0].IdempotencyKey)
	assert.Equal(t, "pm_card_visa", gw.requests[0].PaymentMethodID)

	events := pub.published()
	require.Len(t, events, 1)
	assert.Equal(t, usecase.EventOrderConfirmed, events[0].Type)
	assert.Equal(t, out.Order.ID, events[0].OrderID)
}

// B: [B x10]、在庫2 → InsufficientStock、何も変わらない
func TestPlaceOrder_InsufficientStock(t *testing.T) {
	db := newMemDB()
	db.addProduct(2, "Product B", "5.00", 2)
	db.putCart(7, 2, 10)

	gw := succeededGateway()
	pub := &recordingPublisher{}
	uc := newOrderUC(db, gw, pub, zerolog.Nop(), testSettings)

	_, err := uc.PlaceOrder(context.Background(), 7, placeInput("key-b"))
	he := requireHTTPError(t, err, usecase.CodeInsufficientStock, http.StatusBadRequest)
	assert.Equal(t, "Product B", he.Details["product"])
	assert.Equal(t, int64(2), he.Details["availableStock"])
	assert.Equal(t, int64(10), he.Details["requestedQuantity"])

	assert.Equal(t, int64(2), db.stock(2))
	assert.Equal(t, map[int64]int64{2: 10}, db.cartOf(7))
	assert.Zero(t, db.orderCount())
	assert.Zero(t, gw.calls())
	assert.Empty(t, pub.published())
}

// C: 決済失敗 → PaymentFailed、何も変わらない
func TestPlaceOrder_PaymentDeclined(t *testing.T) {
	db := newMemDB()
	db.addProduct(1, "Product A", "10.00", 5)
	db.putCart(7, 1, 2)

	gw := &stubGateway{result: usecase.PaymentResult{Status: usecase.PaymentDeclined, FailureReason: "Your card was declined."}}
	pub := &recordingPublisher{}
	uc := newOrderUC(db, gw, pub, zerolog.Nop(), testSettings)

	_, err := uc.PlaceOrder(context.Background(), 7, placeInput("key-c"))
	he := requireHTTPError(t, err, usecase.CodePaymentFailed, http.StatusBadRequest)
	assert.Equal(t, "Your card was declined.", he.Details["reason"])

	assert.Equal(t, int64(5), db.stock(1))
	assert.Equal(t, map[int64]int64{1: 2}, db.cartOf(7))
	assert.Zero(t, db.orderCount())
	assert.Empty(t, pub.published())
}

func TestPlaceOrder_GatewayError(t *testing.T) {
	db := newMemDB()
	db.addProduct(1, "Product A", "10.00", 5)
	db.putCart(7, 1, 1)

	gw := &stubGateway{err: errors.New("connection reset")}
	uc := newOrderUC(db, gw, &recordingPublisher{}, zerolog.Nop(), testSettings)

	_, err := uc.PlaceOrder(context.Background(), 7, placeInput("key-err"))
	requireHTTPError(t, err, usecase.CodePaymentFailed, http.StatusBadRequest)
	assert.Equal(t, int64(5), db.stock(1))
}

// 応答が無ければタイムアウトで失敗扱い
func TestPlaceOrder_PaymentTimeout(t *testing.T) {
	db := newMemDB()
	db.addProduct(1, "Product A", "10.00", 5)
	db.putCart(7, 1, 2)

	settings := usecase.OrderSettings{Currency: "usd", PaymentTimeout: 20 * time.Millisecond}
	uc := newOrderUC(db, hangingGateway{}, &recordingPublisher{}, zerolog.Nop(), settings)

	_, err := uc.PlaceOrder(context.Background(), 7, placeInput("key-timeout"))
	he := requireHTTPError(t, err, usecase.CodePaymentFailed, http.StatusBadRequest)
	assert.Equal(t, "payment timed out", he.Details["reason"])

	assert.Equal(t, int64(5), db.stock(1))
	assert.Equal(t, map[int64]int64{1: 2}, db.cartOf(7))
	assert.Zero(t, db.orderCount())
}

func TestPlaceOrder_EmptyCart(t *testing.T) {
	db := newMemDB()
	gw := succeededGateway()
	uc := newOrderUC(db, gw, &recordingPublisher{}, zerolog.Nop(), testSettings)

	_, err := uc.PlaceOrder(context.Background(), 7, placeInput("key-empty"))
	requireHTTPError(t, err, usecase.CodeEmptyCart, http.StatusBadRequest)
	assert.Zero(t, gw.calls())
}

// 非公開になった商品しか無いカートは空と同じ
func TestPlaceOrder_OnlyInactiveProducts(t *testing.T) {
	db := newMemDB()
	db.addProduct(1, "Product A", "10.00", 5)
	p := db.state.products[1]
	p.IsActive = false
	db.state.products[1] = p
	db.putCart(7, 1, 1)

	uc := newOrderUC(db, succeededGateway(), &recordingPublisher{}, zerolog.Nop(), testSettings)

	_, err := uc.PlaceOrder(context.Background(), 7, placeInput("key-inactive"))
	requireHTTPError(t, err, usecase.CodeEmptyCart, http.StatusBadRequest)
}

func TestPlaceOrder_Validation(t *testing.T) {
	uc := newOrderUC(newMemDB(), succeededGateway(), &recordingPublisher{}, zerolog.Nop(), testSettings)

	in := placeInput("k")
	in.ShippingAddress.City = ""
	_, err := uc.PlaceOrder(context.Background(), 7, in)
	requireHTTPError(t, err, usecase.CodeValidation, http.StatusBadRequest)

	in = placeInput("k")
	in.PaymentMethodID = " "
	_, err = uc.PlaceOrder(context.Background(), 7, in)
	requireHTTPError(t, err, usecase.CodeValidation, http.StatusBadRequest)

	_, err = uc.PlaceOrder(context.Background(), 0, placeInput("k"))
	requireHTTPError(t, err, usecase.CodeUnauthorized, http.StatusUnauthorized)
}

// 同じキーで再送しても注文は1件、決済も1回
func TestPlaceOrder_SameKeyReturnsSameOrder(t *testing.T) {
	db := newMemDB()
	db.addProduct(1, "Product A", "10.00", 5)
	db.putCart(7, 1, 2)

	gw := succeededGateway()
	pub := &recordingPublisher{}
	uc := newOrderUC(db, gw, pub, zerolog.Nop(), testSettings)

	first, err := uc.PlaceOrder(context.Background(), 7, placeInput("key-same"))
	require.NoError(t, err)

	// 2回目の前にカートへ入れ直しても再注文にはならない
	db.putCart(7, 1, 1)
	second, err := uc.PlaceOrder(context.Background(), 7, placeInput("key-same"))
	require.NoError(t, err)

	assert.Equal(t, first.Order.ID, second.Order.ID)
	assert.True(t, first.Order.TotalAmount.Equal(second.Order.TotalAmount))
	assert.Equal(t, 1, db.orderCount())
	assert.Equal(t, 1, gw.calls())
	assert.Equal(t, int64(3), db.stock(1))
	assert.Len(t, pub.published(), 1)
}

// キーを省略したら毎回別の注文
func TestPlaceOrder_GeneratesKeyWhenMissing(t *testing.T) {
	db := newMemDB()
	db.addProduct(1, "Product A", "10.00", 5)
	gw := succeededGateway()
	uc := newOrderUC(db, gw, &recordingPublisher{}, zerolog.Nop(), testSettings)

	db.putCart(7, 1, 1)
	_, err := uc.PlaceOrder(context.Background(), 7, placeInput(""))
	require.NoError(t, err)
	db.putCart(7, 1, 1)
	_, err = uc.PlaceOrder(context.Background(), 7, placeInput(""))
	require.NoError(t, err)

	assert.Equal(t, 2, db.orderCount())
	require.Equal(t, 2, gw.calls())
	assert.NotEmpty(t, gw.requests[0].IdempotencyKey)
	assert.NotEqual(t, gw.requests[0].IdempotencyKey, gw.requests[1].IdempotencyKey)
}

// 注文後に価格が変わっても合計は変わらない
func TestPlaceOrder_TotalIsSnapshot(t *testing.T) {
	db := newMemDB()
	db.addProduct(1, "Product A", "10.00", 5)
	db.addProduct(2, "Product B", "2.50", 5)
	db.putCart(7, 1, 2)
	db.putCart(7, 2, 3)

	uc := newOrderUC(db, succeededGateway(), &recordingPublisher{}, zerolog.Nop(), testSettings)

	out, err := uc.PlaceOrder(context.Background(), 7, placeInput("key-snap"))
	require.NoError(t, err)

	sum := decimal.Zero
	for _, it := range out.Order.Items {
		sum = sum.Add(it.Price.Mul(decimal.NewFromInt(it.Quantity)))
	}
	assert.True(t, sum.Equal(out.Order.TotalAmount))
	assert.True(t, decimal.RequireFromString("27.50").Equal(out.Order.TotalAmount))

	p := db.state.products[1]
	p.Price = decimal.RequireFromString("99.99")
	db.state.products[1] = p

	detail, err := uc.GetMyOrderDetail(context.Background(), 7, out.Order.ID)
	require.NoError(t, err)
	assert.True(t, decimal.RequireFromString("27.50").Equal(detail.TotalAmount))
	assert.True(t, decimal.RequireFromString("10.00").Equal(detail.Items[0].Price))
}

// 在庫1の最後の1個。2人目は減った在庫を見て在庫不足（同時実行はrepository_pg_testで確認）
func TestPlaceOrder_LastItemSecondBuyerFails(t *testing.T) {
	db := newMemDB()
	db.addProduct(1, "Last One", "10.00", 1)
	db.putCart(7, 1, 1)
	db.putCart(8, 1, 1)

	gw := succeededGateway()
	uc := newOrderUC(db, gw, &recordingPublisher{}, zerolog.Nop(), testSettings)

	_, err := uc.PlaceOrder(context.Background(), 7, placeInput(""))
	require.NoError(t, err)

	_, err = uc.PlaceOrder(context.Background(), 8, placeInput(""))
	he := requireHTTPError(t, err, usecase.CodeInsufficientStock, http.StatusBadRequest)
	assert.Equal(t, int64(0), he.Details["availableStock"])

	assert.Equal(t, int64(0), db.stock(1))
	assert.Equal(t, 1, db.orderCount())
	assert.Equal(t, map[int64]int64{1: 1}, db.cartOf(8))
	assert.Equal(t, 1, gw.calls())
}

// 冪等キーはユーザーごと。別ユーザーが同じキーを使っても別の注文になる
func TestPlaceOrder_SameKeyDifferentUsers(t *testing.T) {
	db := newMemDB()
	db.addProduct(1, "Product A", "10.00", 5)
	db.putCart(7, 1, 1)
	db.putCart(8, 1, 2)

	gw := succeededGateway()
	uc := newOrderUC(db, gw, &recordingPublisher{}, zerolog.Nop(), testSettings)

	first, err := uc.PlaceOrder(context.Background(), 7, placeInput("shared-key"))
	require.NoError(t, err)
	second, err := uc.PlaceOrder(context.Background(), 8, placeInput("shared-key"))
	require.NoError(t, err)

	assert.NotEqual(t, first.Order.ID, second.Order.ID)
	assert.Equal(t, int64(8), second.Order.UserID)
	assert.Equal(t, 2, db.orderCount())
	assert.Equal(t, int64(2), db.stock(1))

	require.Equal(t, 2, gw.calls())
	assert.NotEqual(t, gw.requests[0].IdempotencyKey, gw.requests[1].IdempotencyKey)
}

// 決済後にコミットできなかったら参照番号をエラーログに残す
func TestPlaceOrder_CommitFailureAfterCapture(t *testing.T) {
	db := newMemDB()
	db.addProduct(1, "Product A", "10.00", 5)
	db.putCart(7, 1, 2)
	db.commitErr = errors.New("connection lost")

	var buf bytes.Buffer
	pub := &recordingPublisher{}
	uc := newOrderUC(db, succeededGateway(), pub, zerolog.New(&buf), testSettings)

	_, err := uc.PlaceOrder(context.Background(), 7, placeInput("key-commit"))
	require.Error(t, err)

	assert.Contains(t, buf.String(), `"payment_reference":"pi_order:7:key-commit"`)
	assert.Contains(t, buf.String(), `"level":"error"`)
	assert.Equal(t, int64(5), db.stock(1))
	assert.Zero(t, db.orderCount())
	assert.Empty(t, pub.published())
}

// イベント送信に失敗しても注文は成功
func TestPlaceOrder_PublishFailureIsIgnored(t *testing.T) {
	db := newMemDB()
	db.addProduct(1, "Product A", "10.00", 5)
	db.putCart(7, 1, 1)

	pub := &recordingPublisher{err: errors.New("broker down")}
	uc := newOrderUC(db, succeededGateway(), pub, zerolog.Nop(), testSettings)

	_, err := uc.PlaceOrder(context.Background(), 7, placeInput("key-pub"))
	require.NoError(t, err)
	assert.Len(t, pub.published(), 1)
}

// 先に同じキーの注文がコミットされていたら、その注文を返す
func TestPlaceOrder_DuplicateSubmissionReturnsExisting(t *testing.T) {
	orders := new(orderRepoMock)
	orderItems := new(orderItemRepoMock)
	cartItems := new(cartItemRepoMock)
	products := new(productRepoMock)

	tx := &txManagerMock{Repos: &txReposMock{
		orders:     orders,
		orderItems: orderItems,
		cartItems:  cartItems,
		products:   products,
	}}
	tx.On("WithinTx", mock.Anything).Return(nil).Once()

	product := model.Product{ID: 1, Name: "Product A", Price: decimal.RequireFromString("10.00"), StockQuantity: 5, IsActive: true}
	existing := model.Order{ID: 42, UserID: 7, TotalAmount: decimal.RequireFromString("10.00"), Status: model.OrderStatusConfirmed, PaymentReference: "pi_dup", IdempotencyKey: "key-dup"}

	orders.On("FindByIdempotencyKey", mock.Anything, int64(7), "key-dup").Return(model.Order{}, false, nil).Once()
	cartItems.On("ListByUserIDForUpdate", mock.Anything, int64(7)).Return([]model.CartItem{{UserID: 7, ProductID: 1, Quantity: 1}}, nil)
	products.On("FindActiveByIDsForUpdate", mock.Anything, []int64{1}).Return([]model.Product{product}, nil)
	orders.On("Create", mock.Anything, mock.AnythingOfType("model.Order")).Return(model.Order{}, repo.ErrConflict)
	orders.On("FindByIdempotencyKey", mock.Anything, int64(7), "key-dup").Return(existing, true, nil).Once()
	orderItems.On("ListByOrderID", mock.Anything, int64(42)).Return([]model.OrderItem{
		{OrderID: 42, ProductID: 1, ProductNameSnapshot: "Product A", Quantity: 1, Price: decimal.RequireFromString("10.00")},
	}, nil)

	gw := succeededGateway()
	pub := &recordingPublisher{}
	uc := usecase.NewOrderUsecase(tx, orders, orderItems, cartItems, gw, pub, zerolog.Nop(), testSettings)

	out, err := uc.PlaceOrder(context.Background(), 7, placeInput("key-dup"))
	require.NoError(t, err)
	assert.Equal(t, int64(42), out.Order.ID)
	assert.Equal(t, "pi_dup", out.Payment.ID)
	assert.Empty(t, pub.published())

	tx.AssertExpectations(t)
	orders.AssertExpectations(t)
}

// 一意制約に当たったのに注文が見つからない。決済済みなら参照番号をログに残して409
func TestPlaceOrder_DuplicateLookupFailureLogsPayment(t *testing.T) {
	orders := new(orderRepoMock)
	cartItems := new(cartItemRepoMock)
	products := new(productRepoMock)

	tx := &txManagerMock{Repos: &txReposMock{
		orders:    orders,
		cartItems: cartItems,
		products:  products,
	}}
	tx.On("WithinTx", mock.Anything).Return(nil).Once()

	product := model.Product{ID: 1, Name: "Product A", Price: decimal.RequireFromString("10.00"), StockQuantity: 5, IsActive: true}
	orders.On("FindByIdempotencyKey", mock.Anything, int64(7), "key-lost").Return(model.Order{}, false, nil)
	cartItems.On("ListByUserIDForUpdate", mock.Anything, int64(7)).Return([]model.CartItem{{UserID: 7, ProductID: 1, Quantity: 1}}, nil)
	products.On("FindActiveByIDsForUpdate", mock.Anything, []int64{1}).Return([]model.Product{product}, nil)
	orders.On("Create", mock.Anything, mock.AnythingOfType("model.Order")).Return(model.Order{}, repo.ErrConflict)

	var buf bytes.Buffer
	uc := usecase.NewOrderUsecase(tx, orders, new(orderItemRepoMock), cartItems, succeededGateway(), &recordingPublisher{}, zerolog.New(&buf), testSettings)

	_, err := uc.PlaceOrder(context.Background(), 7, placeInput("key-lost"))
	requireHTTPError(t, err, usecase.CodeConflict, http.StatusConflict)

	assert.Contains(t, buf.String(), `"payment_reference":"pi_order:7:key-lost"`)
	assert.Contains(t, buf.String(), `"level":"error"`)
}

func TestPrepareCheckout(t *testing.T) {
	db := newMemDB()
	db.addProduct(1, "Product A", "10.00", 5)

	uc := newOrderUC(db, succeededGateway(), &recordingPublisher{}, zerolog.Nop(), testSettings)

	_, err := uc.PrepareCheckout(context.Background(), 7)
	requireHTTPError(t, err, usecase.CodeEmptyCart, http.StatusBadRequest)

	db.putCart(7, 1, 3)
	out, err := uc.PrepareCheckout(context.Background(), 7)
	require.NoError(t, err)
	assert.Equal(t, "pi_intent_secret", out.ClientSecret)
	assert.True(t, decimal.RequireFromString("30").Equal(out.TotalAmount))

	// intentを作るだけでは在庫もカートも変わらない
	assert.Equal(t, int64(5), db.stock(1))
	assert.Equal(t, map[int64]int64{1: 3}, db.cartOf(7))
}

func TestListMyOrders_AndDetailOwnership(t *testing.T) {
	db := newMemDB()
	db.addProduct(1, "Product A", "10.00", 10)
	uc := newOrderUC(db, succeededGateway(), &recordingPublisher{}, zerolog.Nop(), testSettings)

	for i := 0; i < 3; i++ {
		db.putCart(7, 1, 1)
		_, err := uc.PlaceOrder(context.Background(), 7, placeInput(""))
		require.NoError(t, err)
	}
	db.putCart(8, 1, 1)
	other, err := uc.PlaceOrder(context.Background(), 8, placeInput(""))
	require.NoError(t, err)

	list, err := uc.ListMyOrders(context.Background(), 7, 1, 2)
	require.NoError(t, err)
	assert.Len(t, list.Orders, 2)
	assert.Equal(t, int64(3), list.Pagination.TotalCount)
	assert.Equal(t, 2, list.Pagination.TotalPages)
	assert.True(t, list.Pagination.HasNext)
	assert.False(t, list.Pagination.HasPrev)

	_, err = uc.GetMyOrderDetail(context.Background(), 7, other.Order.ID)
	requireHTTPError(t, err, usecase.CodeNotFound, http.StatusNotFound)

	_, err = uc.ListMyOrders(context.Background(), 7, 1, 101)
	requireHTTPError(t, err, usecase.CodeValidation, http.StatusBadRequest)
}
