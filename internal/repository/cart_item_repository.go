package repository

import (
	"context"

	"app/internal/domain/model"

	"github.com/shopspring/decimal"
)

type CartItemRepository interface {
	ListByCartID(ctx context.Context, cartID int64) ([]model.CartItem, error)
	FindByCartAndProduct(ctx context.Context, cartID int64, productID int64) (model.CartItem, error)
	// 同一商品はプラス
	UpsertByCartAndProduct(ctx context.Context, cartID int64, productID int64, addQty int64, unitPriceSnapshot decimal.Decimal) error
	UpdateQuantityByProduct(ctx context.Context, cartID int64, productID int64, qty int64) error
	DeleteByProduct(ctx context.Context, cartID int64, productID int64) error
}
