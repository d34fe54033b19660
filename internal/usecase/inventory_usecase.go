package usecase

import (
	"context"
	"net/http"
	"strings"

	"app/internal/domain/model"
	repo "app/internal/repository"

	"github.com/shopspring/decimal"
)

// InventoryUsecase は管理者向けの在庫操作です。
type InventoryUsecase struct {
	productRepo repo.ProductRepository
	tx          repo.TransactionManager
}

func NewInventoryUsecase(productRepo repo.ProductRepository, tx repo.TransactionManager) *InventoryUsecase {
	return &InventoryUsecase{productRepo: productRepo, tx: tx}
}

type AddItemInput struct {
	Name        string
	Description string
	Category    string
	Price       decimal.Decimal
	Stock       int64
	Unit        string
	ImageURL    string
	IsActive    bool
}

func (u *InventoryUsecase) AddItem(ctx context.Context, adminUserID string, in AddItemInput) (model.Product, error) {
	if adminUserID == "" {
		return model.Product{}, NewHTTPError(http.StatusUnauthorized, "unauthorized")
	}

	name := strings.TrimSpace(in.Name)
	if name == "" || len(name) > 255 {
		return model.Product{}, NewHTTPError(http.StatusBadRequest, "invalid name")
	}
	if strings.TrimSpace(in.Category) == "" {
		return model.Product{}, NewHTTPError(http.StatusBadRequest, "invalid category")
	}
	if strings.TrimSpace(in.Unit) == "" {
		return model.Product{}, NewHTTPError(http.StatusBadRequest, "invalid unit")
	}
	if in.Price.IsNegative() {
		return model.Product{}, NewHTTPError(http.StatusBadRequest, "price must be >= 0")
	}
	if in.Stock < 0 {
		return model.Product{}, NewHTTPError(http.StatusBadRequest, "stock must be >= 0")
	}

	created, err := u.productRepo.Create(ctx, model.Product{
		Name:        name,
		Description: in.Description,
		Category:    strings.TrimSpace(in.Category),
		Price:       in.Price,
		Stock:       in.Stock,
		Unit:        strings.TrimSpace(in.Unit),
		ImageURL:    in.ImageURL,
		IsActive:    in.IsActive,
	})
	if err != nil {
		return model.Product{}, NewHTTPError(http.StatusInternalServerError, "db error")
	}

	return created, nil
}

type UpdateItemInput struct {
	Name        string
	Description string
	Category    string
	Price       decimal.Decimal
	Unit        string
	ImageURL    string
	IsActive    bool
}

// UpdateItem は商品情報を更新する（在庫数はUpdateStockで扱う）。
func (u *InventoryUsecase) UpdateItem(ctx context.Context, adminUserID string, productID int64, in UpdateItemInput) (model.Product, error) {
	if adminUserID == "" {
		return model.Product{}, NewHTTPError(http.StatusUnauthorized, "unauthorized")
	}
	if productID <= 0 {
		return model.Product{}, NewHTTPError(http.StatusBadRequest, "invalid id")
	}

	name := strings.TrimSpace(in.Name)
	if name == "" || len(name) > 255 {
		return model.Product{}, NewHTTPError(http.StatusBadRequest, "invalid name")
	}
	if strings.TrimSpace(in.Category) == "" {
		return model.Product{}, NewHTTPError(http.StatusBadRequest, "invalid category")
	}
	if strings.TrimSpace(in.Unit) == "" {
		return model.Product{}, NewHTTPError(http.StatusBadRequest, "invalid unit")
	}
	if in.Price.IsNegative() {
		return model.Product{}, NewHTTPError(http.StatusBadRequest, "price must be >= 0")
	}

	err := u.productRepo.Update(ctx, model.Product{
		ID:          productID,
		Name:        name,
		Description: in.Description,
		Category:    strings.TrimSpace(in.Category),
		Price:       in.Price,
		Unit:        strings.TrimSpace(in.Unit),
		ImageURL:    in.ImageURL,
		IsActive:    in.IsActive,
	})
	if err == repo.ErrNotFound {
		return model.Product{}, NewHTTPError(http.StatusNotFound, "not found")
	}
	if err != nil {
		return model.Product{}, NewHTTPError(http.StatusInternalServerError, "db error")
	}

	updated, err := u.productRepo.FindByID(ctx, productID)
	if err != nil {
		return model.Product{}, NewHTTPError(http.StatusInternalServerError, "db error")
	}
	return updated, nil
}

// RemoveItem は商品を論理削除する（注文履歴のスナップショットは残る）。
func (u *InventoryUsecase) RemoveItem(ctx context.Context, adminUserID string, productID int64) error {
	if adminUserID == "" {
		return NewHTTPError(http.StatusUnauthorized, "unauthorized")
	}
	if productID <= 0 {
		return NewHTTPError(http.StatusBadRequest, "invalid id")
	}

	err := u.productRepo.SoftDelete(ctx, productID)
	if err == repo.ErrNotFound {
		return NewHTTPError(http.StatusNotFound, "not found")
	}
	if err != nil {
		return NewHTTPError(http.StatusInternalServerError, "db error")
	}
	return nil
}

type UpdateStockInput struct {
	NewStock int64
	Reason   string
}

// UpdateStock は在庫の現在値を設定して調整履歴を残す。
func (u *InventoryUsecase) UpdateStock(ctx context.Context, adminUserID string, productID int64, in UpdateStockInput) error {
	if adminUserID == "" {
		return NewHTTPError(http.StatusUnauthorized, "unauthorized")
	}
	if productID <= 0 {
		return NewHTTPError(http.StatusBadRequest, "invalid id")
	}
	if in.NewStock < 0 {
		return NewHTTPError(http.StatusBadRequest, "stock must be >= 0")
	}

	reason := strings.TrimSpace(in.Reason)
	if reason == "" || len(reason) > 255 {
		return NewHTTPError(http.StatusBadRequest, "invalid reason")
	}

	//在庫設定と履歴は同一トランザクション
	return u.tx.WithinTx(ctx, func(r repo.TxRepos) error {
		p, err := r.Products().FindByID(ctx, productID)
		if err == repo.ErrNotFound {
			return NewHTTPError(http.StatusNotFound, "not found")
		}
		if err != nil {
			return NewHTTPError(http.StatusInternalServerError, "db error")
		}

		if err := r.Inventory().SetStock(ctx, productID, in.NewStock); err != nil {
			if err == repo.ErrNotFound {
				return NewHTTPError(http.StatusNotFound, "not found")
			}
			return NewHTTPError(http.StatusInternalServerError, "db error")
		}

		if err := r.Inventory().CreateAdjustment(ctx, model.InventoryAdjustment{
			ProductID:   productID,
			AdminUserID: adminUserID,
			Delta:       in.NewStock - p.Stock,
			Reason:      reason,
		}); err != nil {
			return NewHTTPError(http.StatusInternalServerError, "db error")
		}

		return nil
	})
}
