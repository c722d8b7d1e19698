package usecase

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"storefront/internal/domain/model"
	repo "storefront/internal/repository"

	"github.com/rs/zerolog"
)

type AdminOrderUsecase struct {
	tx     repo.TransactionManager
	events OrderEventPublisher
	log    zerolog.Logger
}

func NewAdminOrderUsecase(tx repo.TransactionManager, events OrderEventPublisher, log zerolog.Logger) *AdminOrderUsecase {
	return &AdminOrderUsecase{tx: tx, events: events, log: log}
}

// ステータス更新（cancelledなら在庫戻し）。管理者チェックはmiddlewareで済んでいる
func (u *AdminOrderUsecase) UpdateStatus(ctx context.Context, actorAdminUserID int64, orderID int64, status string) (OrderOutput, error) {
	if actorAdminUserID <= 0 {
		return OrderOutput{}, NewUnauthorizedError("unauthorized")
	}
	if orderID <= 0 {
		return OrderOutput{}, NewValidationError("invalid id")
	}

	newStatus := model.OrderStatus(strings.ToLower(strings.TrimSpace(status)))
	if !newStatus.IsValid() {
		return OrderOutput{}, NewValidationError("invalid status")
	}

	var (
		out          OrderOutput
		beforeStatus model.OrderStatus
		changed      bool
	)

	err := u.tx.WithinTx(ctx, func(r repo.TxRepos) error {
		// 注文取得（同時更新を防ぐためロック）
		o, err := r.Orders().FindByIDForUpdate(ctx, orderID)
		if errors.Is(err, repo.ErrNotFound) {
			return NewNotFoundError("order not found")
		}
		if err != nil {
			return newServerError()
		}

		items, err := r.OrderItems().ListByOrderID(ctx, orderID)
		if err != nil {
			return newServerError()
		}

		// すでに同じなら何もしない（200）
		if o.Status == newStatus {
			out = toOrderOutput(o, items)
			return nil
		}
		if !o.Status.CanTransitionTo(newStatus) {
			return newInvalidTransitionError(string(o.Status), string(newStatus))
		}

		now := time.Now()

		// cancelledのときだけ在庫戻し
		if newStatus == model.OrderStatusCancelled {
			for _, it := range items {
				if err := r.Inventory().IncreaseStock(ctx, it.ProductID, it.Quantity); err != nil {
					if errors.Is(err, repo.ErrNotFound) {
						continue
					}
					return newServerError()
				}
				if err := r.Inventory().CreateAdjustment(ctx, model.InventoryAdjustment{
					ProductID:   it.ProductID,
					AdminUserID: actorAdminUserID,
					Delta:       it.Quantity,
					Reason:      fmt.Sprintf("order %d cancelled", orderID),
					CreatedAt:   now,
				}); err != nil {
					return newServerError()
				}
			}
		}

		// ステータス更新
		beforeStatus = o.Status
		if err := r.Orders().UpdateStatus(ctx, orderID, newStatus); err != nil {
			if errors.Is(err, repo.ErrNotFound) {
				return NewNotFoundError("order not found")
			}
			return newServerError()
		}

		// 監査ログ（UPDATE_ORDER_STATUS）
		if err := r.AuditLogs().Create(ctx, model.AuditLog{
			ActorUserID:  actorAdminUserID,
			Action:       model.AuditActionUpdateOrderStatus,
			ResourceType: model.AuditResourceOrder,
			ResourceID:   orderID,
			BeforeJSON:   `{"status":"` + string(beforeStatus) + `"}`,
			AfterJSON:    `{"status":"` + string(newStatus) + `"}`,
			CreatedAt:    now,
		}); err != nil {
			return newServerError()
		}

		o.Status = newStatus
		o.UpdatedAt = now
		out = toOrderOutput(o, items)
		changed = true
		return nil
	})
	if err != nil {
		return OrderOutput{}, err
	}

	if changed {
		ev := OrderEvent{
			Type:           EventOrderStatusChanged,
			OrderID:        out.ID,
			UserID:         out.UserID,
			Status:         out.Status,
			PreviousStatus: string(beforeStatus),
			TotalAmount:    out.TotalAmount,
			OccurredAt:     out.UpdatedAt,
		}
		if err := u.events.Publish(ctx, ev); err != nil {
			u.log.Warn().Err(err).Int64("order_id", out.ID).Msg("publish order event failed")
		}
	}
	return out, nil
}
