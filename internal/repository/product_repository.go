package repository

import (
	"context"
	"errors"

	"app/internal/domain/model"
)

var ErrNotFound = errors.New("not found")

// 一覧検索
type ProductListQuery struct {
	Page     int
	Limit    int
	Q        string
	Category string
	Sort     string
}

// 商品の永続化（保存・取得）だけを約束。
type ProductRepository interface {
	ListActive(ctx context.Context, q ProductListQuery) ([]model.Product, int64, error)
	ListCategories(ctx context.Context) ([]string, error)
	FindByID(ctx context.Context, id int64) (model.Product, error)

	Create(ctx context.Context, p model.Product) (model.Product, error)
	Update(ctx context.Context, p model.Product) error
	SoftDelete(ctx context.Context, id int64) error
}

// 在庫の読み書きをまとめた約束。
type InventoryRepository interface {
	SetStock(ctx context.Context, productID int64, newStock int64) error
	//在庫が足りるときだけ減らす（足りなければ false）
	DecreaseStockIfEnough(ctx context.Context, productID int64, qty int64) (bool, error)
	IncreaseStock(ctx context.Context, productID int64, qty int64) error
	CreateAdjustment(ctx context.Context, adj model.InventoryAdjustment) error
}
