package repository

import (
	"context"

	"app/internal/domain/model"
)

type OrderRepository interface {
	FindByID(ctx context.Context, orderID int64) (model.Order, error)
	FindByTrackingID(ctx context.Context, trackingID string) (model.Order, error)
	ListByUserID(ctx context.Context, userID string, page int, limit int) ([]model.Order, int64, error)
	Create(ctx context.Context, order model.Order) (int64, error)
	UpdateStatus(ctx context.Context, orderID int64, status model.OrderStatus) error
	SetDeliveryDate(ctx context.Context, orderID int64) error

	//二重送信の検索（同じキーなら同じ結果を返す）
	FindByIdempotencyKey(ctx context.Context, userID string, key string) (model.Order, bool, error)
}
