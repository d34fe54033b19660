package usecase

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"

	"app/internal/domain/model"
	repo "app/internal/repository"
)

type HTTPError struct {
	Status  int
	Message string
}

func (e *HTTPError) Error() string {
	return fmt.Sprintf("%d: %s", e.Status, e.Message)
}

func NewHTTPError(status int, message string) error {
	return &HTTPError{
		Status:  status,
		Message: message,
	}
}

func AsHTTPError(err error) (*HTTPError, bool) {
	var he *HTTPError
	ok := errors.As(err, &he)
	return he, ok
}

// CatalogUsecase は /inventory の公開側（閲覧・検索）の業務ロジックです。
type CatalogUsecase struct {
	productRepo repo.ProductRepository
}

// DI
func NewCatalogUsecase(productRepo repo.ProductRepository) *CatalogUsecase {
	return &CatalogUsecase{productRepo: productRepo}
}

// GET /inventory/itemsの入力DTO
type ListItemsInput struct {
	Page     int
	Limit    int
	Q        string
	Category string
	Sort     string
}

type ItemListOutput struct {
	Items []model.Product `json:"items"`
	Total int64           `json:"total"`
	Page  int             `json:"page"`
	Limit int             `json:"limit"`
}

func (u *CatalogUsecase) ListItems(ctx context.Context, in ListItemsInput) (ItemListOutput, error) {
	if in.Page < 1 {
		return ItemListOutput{}, NewHTTPError(http.StatusBadRequest, "invalid page")
	}
	if in.Limit < 1 || in.Limit > 100 {
		return ItemListOutput{}, NewHTTPError(http.StatusBadRequest, "invalid limit")
	}
	if len(in.Q) > 100 {
		return ItemListOutput{}, NewHTTPError(http.StatusBadRequest, "q too long")
	}
	if len(in.Category) > 100 {
		return ItemListOutput{}, NewHTTPError(http.StatusBadRequest, "category too long")
	}
	switch in.Sort {
	case "", "new", "price_asc", "price_desc", "name":
	default:
		return ItemListOutput{}, NewHTTPError(http.StatusBadRequest, "invalid sort")
	}

	items, total, err := u.productRepo.ListActive(ctx, repo.ProductListQuery{
		Page:     in.Page,
		Limit:    in.Limit,
		Q:        strings.TrimSpace(in.Q),
		Category: strings.TrimSpace(in.Category),
		Sort:     in.Sort,
	})
	if err != nil {
		return ItemListOutput{}, NewHTTPError(http.StatusInternalServerError, "db error")
	}

	return ItemListOutput{
		Items: items,
		Total: total,
		Page:  in.Page,
		Limit: in.Limit,
	}, nil
}

// カテゴリ一覧（販売中の商品から）
func (u *CatalogUsecase) ListCategories(ctx context.Context) ([]string, error) {
	categories, err := u.productRepo.ListCategories(ctx)
	if err != nil {
		return []string{}, NewHTTPError(http.StatusInternalServerError, "db error")
	}
	return categories, nil
}

// 商品詳細（販売中のみ）
func (u *CatalogUsecase) GetItem(ctx context.Context, id int64) (model.Product, error) {
	if id <= 0 {
		return model.Product{}, NewHTTPError(http.StatusBadRequest, "invalid id")
	}

	p, err := u.productRepo.FindByID(ctx, id)
	if err == repo.ErrNotFound {
		return model.Product{}, NewHTTPError(http.StatusNotFound, "not found")
	}
	if err != nil {
		return model.Product{}, NewHTTPError(http.StatusInternalServerError, "db error")
	}
	if !p.IsActive {
		return model.Product{}, NewHTTPError(http.StatusNotFound, "not found")
	}

	return p, nil
}

// 在庫が希望数量ぶんあるか（数量ステッパーの事前チェック用）
func (u *CatalogUsecase) StockCheck(ctx context.Context, id int64, quantity int64) (bool, error) {
	if id <= 0 {
		return false, NewHTTPError(http.StatusBadRequest, "invalid id")
	}
	if quantity < 1 {
		return false, NewHTTPError(http.StatusBadRequest, "invalid quantity")
	}

	p, err := u.productRepo.FindByID(ctx, id)
	if err == repo.ErrNotFound {
		return false, NewHTTPError(http.StatusNotFound, "not found")
	}
	if err != nil {
		return false, NewHTTPError(http.StatusInternalServerError, "db error")
	}

	return p.IsActive && p.Stock >= quantity, nil
}
