package usecase

import (
	"context"
	"errors"
	"net/http"
	"strconv"

	"app/internal/pricing"
	repo "app/internal/repository"

	"github.com/shopspring/decimal"
)

// CartUsecase は /cart の業務ロジックです。
// すべての変更は「永続化してから再取得・再集計」で応答を作ります
// （ローカルの増分更新はしない。更新競合を作らないため）。
type CartUsecase struct {
	cartRepo     repo.CartRepository
	cartItemRepo repo.CartItemRepository
	productRepo  repo.ProductRepository
	policy       pricing.Policy
}

func NewCartUsecase(
	cartRepo repo.CartRepository,
	cartItemRepo repo.CartItemRepository,
	productRepo repo.ProductRepository,
	policy pricing.Policy,
) *CartUsecase {
	return &CartUsecase{
		cartRepo:     cartRepo,
		cartItemRepo: cartItemRepo,
		productRepo:  productRepo,
		policy:       policy,
	}
}

// カート明細のレスポンス。
// inStock は読み取り時点の在庫から計算する（鮮度は保証しない）。
type CartItemResponse struct {
	ItemID     string          `json:"itemId"`
	Name       string          `json:"name"`
	Category   string          `json:"category"`
	Price      decimal.Decimal `json:"price"`
	Unit       string          `json:"unit"`
	Quantity   int64           `json:"quantity"`
	TotalPrice decimal.Decimal `json:"totalPrice"`
	InStock    bool            `json:"inStock"`
	ImageURL   string          `json:"imageUrl"`
}

type CartSummaryResponse struct {
	TotalItems  int64           `json:"totalItems"`
	TotalAmount decimal.Decimal `json:"totalAmount"`
	AllInStock  bool            `json:"allInStock"`
	ItemCount   int             `json:"itemCount"`
	CanCheckout bool            `json:"canCheckout"`
}

// itemIdをキーにしたマップで返す（フロントの持ち方に合わせる）
type CartResponse struct {
	Items   map[string]CartItemResponse `json:"items"`
	Summary CartSummaryResponse         `json:"summary"`
	Totals  pricing.OrderTotals         `json:"totals"`
}

type AddCartInput struct {
	ItemID   int64
	Quantity int64
}

type UpdateCartInput struct {
	ItemID   int64
	Quantity int64
}

// GetCart はカート取得（無ければACTIVEを作って空を返す）。
func (u *CartUsecase) GetCart(ctx context.Context, userID string) (CartResponse, error) {
	if userID == "" {
		return CartResponse{}, NewHTTPError(http.StatusUnauthorized, "unauthorized")
	}

	cart, err := u.cartRepo.GetOrCreateActiveByUserID(ctx, userID)
	if err != nil {
		return CartResponse{}, NewHTTPError(http.StatusInternalServerError, "db error")
	}

	return u.buildCartResponse(ctx, cart.ID)
}

// GetSummary はカートの集計のみを返す。
// 集計は明細からの再計算が唯一の正とする（別経路の事前計算は持たない）。
func (u *CartUsecase) GetSummary(ctx context.Context, userID string) (CartSummaryResponse, error) {
	if userID == "" {
		return CartSummaryResponse{}, NewHTTPError(http.StatusUnauthorized, "unauthorized")
	}

	cart, err := u.cartRepo.GetOrCreateActiveByUserID(ctx, userID)
	if err != nil {
		return CartSummaryResponse{}, NewHTTPError(http.StatusInternalServerError, "db error")
	}

	out, err := u.buildCartResponse(ctx, cart.ID)
	if err != nil {
		return CartSummaryResponse{}, err
	}
	return out.Summary, nil
}

// AddToCart はカートに追加（同一商品は数量加算）。
func (u *CartUsecase) AddToCart(ctx context.Context, userID string, in AddCartInput) (CartResponse, error) {
	if userID == "" {
		return CartResponse{}, NewHTTPError(http.StatusUnauthorized, "unauthorized")
	}
	if in.ItemID <= 0 {
		return CartResponse{}, NewHTTPError(http.StatusBadRequest, "invalid itemId")
	}
	if in.Quantity < 1 {
		return CartResponse{}, NewHTTPError(http.StatusBadRequest, "invalid quantity")
	}

	// ACTIVEカート取得（無ければ作成）
	cart, err := u.cartRepo.GetOrCreateActiveByUserID(ctx, userID)
	if err != nil {
		return CartResponse{}, NewHTTPError(http.StatusInternalServerError, "db error")
	}

	// 商品チェック（販売中のみ）
	p, err := u.productRepo.FindByID(ctx, in.ItemID)
	if err == repo.ErrNotFound {
		return CartResponse{}, NewHTTPError(http.StatusBadRequest, "product not available")
	}
	if err != nil {
		return CartResponse{}, NewHTTPError(http.StatusInternalServerError, "db error")
	}
	if !p.IsActive {
		return CartResponse{}, NewHTTPError(http.StatusBadRequest, "product not available")
	}

	// 既存数量を調べて、加算後の数量を在庫上限と照合する
	var existingQty int64 = 0
	item, err := u.cartItemRepo.FindByCartAndProduct(ctx, cart.ID, in.ItemID)
	if err == nil {
		existingQty = item.Quantity
	} else if err != repo.ErrNotFound {
		return CartResponse{}, NewHTTPError(http.StatusInternalServerError, "db error")
	}

	if err := pricing.ValidateQuantityChange(existingQty, existingQty+in.Quantity, p.Stock); err != nil {
		return CartResponse{}, quantityError(err)
	}

	// Upsert（同一商品は加算）
	// unit_price_snapshot は「追加時点の価格」を渡す
	if err := u.cartItemRepo.UpsertByCartAndProduct(ctx, cart.ID, in.ItemID, in.Quantity, p.Price); err != nil {
		return CartResponse{}, NewHTTPError(http.StatusInternalServerError, "db error")
	}

	return u.buildCartResponse(ctx, cart.ID)
}

// 数量変更（0は削除）。在庫上限を超える場合は拒否して知らせる。
func (u *CartUsecase) UpdateItem(ctx context.Context, userID string, in UpdateCartInput) (CartResponse, error) {
	if userID == "" {
		return CartResponse{}, NewHTTPError(http.StatusUnauthorized, "unauthorized")
	}
	if in.ItemID <= 0 {
		return CartResponse{}, NewHTTPError(http.StatusBadRequest, "invalid itemId")
	}

	cart, err := u.cartRepo.FindActiveByUserID(ctx, userID)
	if err == repo.ErrNotFound {
		return CartResponse{}, NewHTTPError(http.StatusNotFound, "not found")
	}
	if err != nil {
		return CartResponse{}, NewHTTPError(http.StatusInternalServerError, "db error")
	}

	item, err := u.cartItemRepo.FindByCartAndProduct(ctx, cart.ID, in.ItemID)
	if err == repo.ErrNotFound {
		return CartResponse{}, NewHTTPError(http.StatusNotFound, "not found")
	}
	if err != nil {
		return CartResponse{}, NewHTTPError(http.StatusInternalServerError, "db error")
	}

	//数量0は削除リクエスト
	if in.Quantity == 0 {
		if err := u.cartItemRepo.DeleteByProduct(ctx, cart.ID, in.ItemID); err != nil {
			if err == repo.ErrNotFound {
				return CartResponse{}, NewHTTPError(http.StatusNotFound, "not found")
			}
			return CartResponse{}, NewHTTPError(http.StatusInternalServerError, "db error")
		}
		return u.buildCartResponse(ctx, cart.ID)
	}

	//商品の在庫チェック
	p, err := u.productRepo.FindByID(ctx, in.ItemID)
	if err == repo.ErrNotFound {
		return CartResponse{}, NewHTTPError(http.StatusBadRequest, "product not available")
	}
	if err != nil {
		return CartResponse{}, NewHTTPError(http.StatusInternalServerError, "db error")
	}
	if !p.IsActive {
		return CartResponse{}, NewHTTPError(http.StatusBadRequest, "product not available")
	}

	if err := pricing.ValidateQuantityChange(item.Quantity, in.Quantity, p.Stock); err != nil {
		return CartResponse{}, quantityError(err)
	}

	if err := u.cartItemRepo.UpdateQuantityByProduct(ctx, cart.ID, in.ItemID, in.Quantity); err != nil {
		if err == repo.ErrNotFound {
			return CartResponse{}, NewHTTPError(http.StatusNotFound, "not found")
		}
		return CartResponse{}, NewHTTPError(http.StatusInternalServerError, "db error")
	}

	return u.buildCartResponse(ctx, cart.ID)
}

// 明細削除
func (u *CartUsecase) RemoveItem(ctx context.Context, userID string, itemID int64) (CartResponse, error) {
	if userID == "" {
		return CartResponse{}, NewHTTPError(http.StatusUnauthorized, "unauthorized")
	}
	if itemID <= 0 {
		return CartResponse{}, NewHTTPError(http.StatusBadRequest, "invalid itemId")
	}

	cart, err := u.cartRepo.FindActiveByUserID(ctx, userID)
	if err == repo.ErrNotFound {
		return CartResponse{}, NewHTTPError(http.StatusNotFound, "not found")
	}
	if err != nil {
		return CartResponse{}, NewHTTPError(http.StatusInternalServerError, "db error")
	}

	if err := u.cartItemRepo.DeleteByProduct(ctx, cart.ID, itemID); err != nil {
		if err == repo.ErrNotFound {
			return CartResponse{}, NewHTTPError(http.StatusNotFound, "not found")
		}
		return CartResponse{}, NewHTTPError(http.StatusInternalServerError, "db error")
	}

	return u.buildCartResponse(ctx, cart.ID)
}

// 全明細のクリア
func (u *CartUsecase) ClearCart(ctx context.Context, userID string) (CartResponse, error) {
	if userID == "" {
		return CartResponse{}, NewHTTPError(http.StatusUnauthorized, "unauthorized")
	}

	cart, err := u.cartRepo.GetOrCreateActiveByUserID(ctx, userID)
	if err != nil {
		return CartResponse{}, NewHTTPError(http.StatusInternalServerError, "db error")
	}

	if err := u.cartRepo.Clear(ctx, cart.ID); err != nil && err != repo.ErrNotFound {
		return CartResponse{}, NewHTTPError(http.StatusInternalServerError, "db error")
	}

	return u.buildCartResponse(ctx, cart.ID)
}

// buildCartResponse はcartIDの明細をまとめてCartResponseを作る。
// 集計と金額計算はここに集約し、画面ごとの独自計算を作らない。
func (u *CartUsecase) buildCartResponse(ctx context.Context, cartID int64) (CartResponse, error) {
	items, err := u.cartItemRepo.ListByCartID(ctx, cartID)
	if err != nil {
		return CartResponse{}, NewHTTPError(http.StatusInternalServerError, "db error")
	}

	respItems := make(map[string]CartItemResponse, len(items))
	lineItems := make([]pricing.LineItem, 0, len(items))

	for _, it := range items {
		key := strconv.FormatInt(it.ProductID, 10)
		lineTotal := it.UnitPriceSnapshot.Mul(decimal.NewFromInt(it.Quantity))

		resp := CartItemResponse{
			ItemID:     key,
			Price:      it.UnitPriceSnapshot,
			Quantity:   it.Quantity,
			TotalPrice: lineTotal,
		}

		//在庫フラグは今の在庫から計算する。商品が消えていたら在庫なし扱い。
		p, err := u.productRepo.FindByID(ctx, it.ProductID)
		switch {
		case err == nil:
			resp.Name = p.Name
			resp.Category = p.Category
			resp.Unit = p.Unit
			resp.ImageURL = p.ImageURL
			resp.InStock = p.IsActive && p.Stock >= it.Quantity
		case err == repo.ErrNotFound:
			resp.InStock = false
		default:
			return CartResponse{}, NewHTTPError(http.StatusInternalServerError, "db error")
		}

		respItems[key] = resp
		lineItems = append(lineItems, pricing.LineItem{
			ItemID:    key,
			Name:      resp.Name,
			Price:     it.UnitPriceSnapshot,
			Quantity:  it.Quantity,
			LineTotal: lineTotal,
			InStock:   resp.InStock,
		})
	}

	summary := pricing.Summarize(lineItems)

	totals, err := u.policy.OrderTotals(summary.TotalAmount)
	if err != nil {
		return CartResponse{}, NewHTTPError(http.StatusInternalServerError, "pricing error")
	}

	return CartResponse{
		Items: respItems,
		Summary: CartSummaryResponse{
			TotalItems:  summary.TotalItems,
			TotalAmount: summary.TotalAmount,
			AllInStock:  summary.AllInStock,
			ItemCount:   summary.ItemCount,
			CanCheckout: summary.CanCheckout(),
		},
		Totals: totals,
	}, nil
}

// pricingのsentinelをHTTPエラーへ変換
func quantityError(err error) error {
	switch {
	case errors.Is(err, pricing.ErrStockExceeded):
		return NewHTTPError(http.StatusBadRequest, "stock exceeded")
	case errors.Is(err, pricing.ErrNegativeQuantity):
		return NewHTTPError(http.StatusBadRequest, "invalid quantity")
	default:
		return NewHTTPError(http.StatusBadRequest, "invalid quantity")
	}
}
