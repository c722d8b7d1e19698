package model

import (
	"time"

	"github.com/shopspring/decimal"
)

type OrderStatus string

const (
	OrderStatusPending   OrderStatus = "pending"
	OrderStatusConfirmed OrderStatus = "confirmed"
	OrderStatusShipped   OrderStatus = "shipped"
	OrderStatusDelivered OrderStatus = "delivered"
	OrderStatusCancelled OrderStatus = "cancelled"
)

// 許可する遷移
var orderTransitions = map[OrderStatus][]OrderStatus{
	OrderStatusPending:   {OrderStatusConfirmed, OrderStatusCancelled},
	OrderStatusConfirmed: {OrderStatusShipped, OrderStatusCancelled},
	OrderStatusShipped:   {OrderStatusDelivered},
}

func (s OrderStatus) IsValid() bool {
	switch s {
	case OrderStatusPending, OrderStatusConfirmed, OrderStatusShipped, OrderStatusDelivered, OrderStatusCancelled:
		return true
	}
	return false
}

// sからnextへ進めるか。同じステータスはfalse
func (s OrderStatus) CanTransitionTo(next OrderStatus) bool {
	for _, to := range orderTransitions[s] {
		if to == next {
			return true
		}
	}
	return false
}

// delivered/cancelledはもう動かない
func (s OrderStatus) IsTerminal() bool {
	return len(orderTransitions[s]) == 0
}

// 注文。TotalAmountは作成時に確定する
type Order struct {
	ID               int64           `gorm:"primaryKey;autoIncrement" json:"id"`
	UserID           int64           `gorm:"not null;index;uniqueIndex:idx_orders_user_idempotency,priority:1" json:"userId"`
	TotalAmount      decimal.Decimal `gorm:"type:numeric(10,2);not null" json:"totalAmount"`
	Status           OrderStatus     `gorm:"type:varchar(20);not null;default:'pending';index" json:"status"`
	ShippingAddress  AddressSnapshot `gorm:"serializer:json;type:text;not null" json:"shippingAddress"`
	BillingAddress   AddressSnapshot `gorm:"serializer:json;type:text;not null" json:"billingAddress"`
	PaymentReference string          `gorm:"column:payment_reference;type:varchar(255)" json:"paymentReference"`
	IdempotencyKey   string          `gorm:"type:varchar(255);not null;uniqueIndex:idx_orders_user_idempotency,priority:2" json:"-"`
	CreatedAt        time.Time       `gorm:"not null;autoCreateTime" json:"createdAt"`
	UpdatedAt        time.Time       `gorm:"not null;autoUpdateTime" json:"updatedAt"`
}
