package usecase

import (
	"context"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"app/internal/domain/model"
	"app/internal/pricing"
	repo "app/internal/repository"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

const (
	PaymentMethodOnline = "Online Payment"
	PaymentMethodCOD    = "Cash on Delivery"
)

type OrderUsecase struct {
	tx     repo.TransactionManager
	policy pricing.Policy
	events OrderEventPublisher
}

func NewOrderUsecase(tx repo.TransactionManager, policy pricing.Policy, events OrderEventPublisher) *OrderUsecase {
	return &OrderUsecase{tx: tx, policy: policy, events: events}
}

type CheckoutInput struct {
	DeliveryAddress string
	PaymentMethod   string
	IdempotencyKey  string
}

type OrderItemOutput struct {
	ProductID  int64           `json:"product_id"`
	Name       string          `json:"name"`
	Category   string          `json:"category"`
	Unit       string          `json:"unit"`
	Price      decimal.Decimal `json:"price"`
	Quantity   int64           `json:"quantity"`
	TotalPrice decimal.Decimal `json:"totalPrice"`
}

type OrderOutput struct {
	ID              int64               `json:"id"`
	TrackingID      string              `json:"tracking_id"`
	Status          string              `json:"status"`
	DeliveryAddress string              `json:"delivery_address"`
	PaymentMethod   string              `json:"payment_method"`
	Totals          pricing.OrderTotals `json:"totals"`
	OrderDate       time.Time           `json:"order_date"`
	DeliveryDate    *time.Time          `json:"delivery_date"`
	Items           []OrderItemOutput   `json:"items"`
}

type TrackingOutput struct {
	TrackingID   string     `json:"trackingId"`
	Status       string     `json:"status"`
	OrderDate    time.Time  `json:"orderDate"`
	DeliveryDate *time.Time `json:"deliveryDate"`
	IsDelivered  bool       `json:"isDelivered"`
}

// Checkout はカートから注文を作ります。
// 在庫は確定時に再チェックして同一トランザクションで減算し、
// 価格は在庫側の現在値で確定する（カートのスナップショットは表示用）。
func (u *OrderUsecase) Checkout(ctx context.Context, userID string, in CheckoutInput) (OrderOutput, error) {
	if userID == "" {
		return OrderOutput{}, NewHTTPError(http.StatusUnauthorized, "unauthorized")
	}

	address := strings.TrimSpace(in.DeliveryAddress)
	if address == "" || len(address) > 500 {
		return OrderOutput{}, NewHTTPError(http.StatusBadRequest, "invalid delivery_address")
	}

	payment := in.PaymentMethod
	if payment == "" {
		payment = PaymentMethodOnline
	}
	if payment != PaymentMethodOnline && payment != PaymentMethodCOD {
		return OrderOutput{}, NewHTTPError(http.StatusBadRequest, "invalid payment_method")
	}

	key := strings.TrimSpace(in.IdempotencyKey)
	if key == "" || len(key) > 255 {
		return OrderOutput{}, NewHTTPError(http.StatusBadRequest, "invalid idempotency_key")
	}

	var out OrderOutput
	var ev OrderPlacedEvent

	//注文処理はトランザクション
	err := u.tx.WithinTx(ctx, func(r repo.TxRepos) error {
		// 同じキーなら同じ結果
		existing, found, err := r.Orders().FindByIdempotencyKey(ctx, userID, key)
		if err != nil {
			return NewHTTPError(http.StatusInternalServerError, "db error")
		}
		if found {
			//既存注文を返す
			items, err := r.OrderItems().ListByOrderID(ctx, existing.ID)
			if err != nil {
				return NewHTTPError(http.StatusInternalServerError, "db error")
			}
			out = u.toOrderOutput(existing, items)
			return nil
		}

		//ACTIVEカート取得
		cart, err := r.Carts().FindActiveByUserID(ctx, userID)
		if err == repo.ErrNotFound {
			return NewHTTPError(http.StatusBadRequest, "cart empty")
		}
		if err != nil {
			return NewHTTPError(http.StatusInternalServerError, "db error")
		}

		//カート明細取得
		cartItems, err := r.CartItems().ListByCartID(ctx, cart.ID)
		if err != nil {
			return NewHTTPError(http.StatusInternalServerError, "db error")
		}
		if len(cartItems) == 0 {
			return NewHTTPError(http.StatusBadRequest, "cart empty")
		}

		//商品ごとに現況を確認して、問題はまとめて返す
		var issues []string
		lineItems := make([]pricing.LineItem, 0, len(cartItems))
		products := make(map[int64]model.Product, len(cartItems))

		for _, ci := range cartItems {
			p, err := r.Products().FindByID(ctx, ci.ProductID)
			if err == repo.ErrNotFound {
				issues = append(issues, "product not found")
				continue
			}
			if err != nil {
				return NewHTTPError(http.StatusInternalServerError, "db error")
			}
			if !p.IsActive {
				issues = append(issues, p.Name+" - no longer available")
				continue
			}
			if p.Stock < ci.Quantity {
				issues = append(issues, p.Name+" - out of stock")
				continue
			}

			products[ci.ProductID] = p
			lineItems = append(lineItems, pricing.LineItem{
				ItemID:   p.Name,
				Price:    p.Price,
				Quantity: ci.Quantity,
				InStock:  true,
			})
		}

		if len(issues) > 0 {
			return NewHTTPError(http.StatusBadRequest, "some items are not available: "+strings.Join(issues, ", "))
		}

		//チェックアウト可否は集計の判定だけを使う
		summary := pricing.Summarize(lineItems)
		if !summary.CanCheckout() {
			return NewHTTPError(http.StatusBadRequest, "cart empty")
		}

		totals, err := u.policy.OrderTotals(summary.TotalAmount)
		if err != nil {
			return NewHTTPError(http.StatusInternalServerError, "pricing error")
		}

		//在庫減算（足りないなら false）
		orderItems := make([]model.OrderItem, 0, len(cartItems))
		now := time.Now()

		for _, ci := range cartItems {
			p := products[ci.ProductID]

			ok, err := r.Inventory().DecreaseStockIfEnough(ctx, ci.ProductID, ci.Quantity)
			if err != nil {
				return NewHTTPError(http.StatusInternalServerError, "db error")
			}
			if !ok {
				return NewHTTPError(http.StatusBadRequest, "some items are not available: "+p.Name+" - out of stock")
			}

			//スナップショット（確定時の価格）
			orderItems = append(orderItems, model.OrderItem{
				ProductID:           ci.ProductID,
				ProductNameSnapshot: p.Name,
				CategorySnapshot:    p.Category,
				UnitSnapshot:        p.Unit,
				UnitPriceSnapshot:   p.Price,
				Quantity:            ci.Quantity,
				LineTotal:           p.Price.Mul(decimal.NewFromInt(ci.Quantity)),
				CreatedAt:           now,
			})
		}

		trackingID := "SKY" + strings.ToUpper(strings.ReplaceAll(uuid.NewString(), "-", ""))

		// 注文作成
		orderID, err := r.Orders().Create(ctx, model.Order{
			UserID:          userID,
			Status:          model.OrderStatusConfirmed,
			TrackingID:      trackingID,
			DeliveryAddress: address,
			PaymentMethod:   payment,
			ItemsTotal:      totals.ItemsTotal,
			DeliveryFee:     totals.DeliveryFee,
			PlatformFee:     totals.PlatformFee,
			Tax:             totals.Tax,
			GrandTotal:      totals.GrandTotal,
			FreeDelivery:    totals.FreeDelivery,
			Savings:         totals.Savings,
			IdempotencyKey:  key,
			CreatedAt:       now,
			UpdatedAt:       now,
		})
		if err != nil {
			//競合（同時で同じキーが入った等）はもう一回検索して同じ結果を返す
			ex2, found2, err2 := r.Orders().FindByIdempotencyKey(ctx, userID, key)
			if err2 == nil && found2 {
				items2, err3 := r.OrderItems().ListByOrderID(ctx, ex2.ID)
				if err3 != nil {
					return NewHTTPError(http.StatusInternalServerError, "db error")
				}
				out = u.toOrderOutput(ex2, items2)
				return nil
			}
			return NewHTTPError(http.StatusBadRequest, "idempotency conflict")
		}

		//注文明細一括作成
		if err := r.OrderItems().CreateBulk(ctx, orderID, orderItems); err != nil {
			return NewHTTPError(http.StatusInternalServerError, "db error")
		}

		//カートをCHECKED_OUTにして、明細をクリア（再注文防止）
		if err := r.Carts().Clear(ctx, cart.ID); err != nil {
			return NewHTTPError(http.StatusInternalServerError, "db error")
		}
		if err := r.Carts().UpdateStatus(ctx, cart.ID, model.CartStatusCheckedOut); err != nil {
			return NewHTTPError(http.StatusInternalServerError, "db error")
		}

		created := model.Order{
			ID:              orderID,
			UserID:          userID,
			Status:          model.OrderStatusConfirmed,
			TrackingID:      trackingID,
			DeliveryAddress: address,
			PaymentMethod:   payment,
			ItemsTotal:      totals.ItemsTotal,
			DeliveryFee:     totals.DeliveryFee,
			PlatformFee:     totals.PlatformFee,
			Tax:             totals.Tax,
			GrandTotal:      totals.GrandTotal,
			FreeDelivery:    totals.FreeDelivery,
			Savings:         totals.Savings,
			CreatedAt:       now,
		}
		out = u.toOrderOutput(created, orderItems)

		evItems := make([]OrderPlacedItem, 0, len(orderItems))
		for _, it := range orderItems {
			evItems = append(evItems, OrderPlacedItem{ProductID: it.ProductID, Quantity: it.Quantity})
		}
		ev = OrderPlacedEvent{
			OrderID:    orderID,
			TrackingID: trackingID,
			UserID:     userID,
			Items:      evItems,
		}
		return nil
	})

	if err != nil {
		return OrderOutput{}, err
	}

	//コミット後に発行。失敗しても注文は成立させる。
	if ev.OrderID != 0 {
		if err := u.events.PublishOrderPlaced(ctx, ev); err != nil {
			slog.Error("failed to publish order event", "order_id", ev.OrderID, "error", err)
		}
	}

	return out, nil
}

func (u *OrderUsecase) ListMyOrders(ctx context.Context, userID string) ([]OrderOutput, error) {
	if userID == "" {
		return []OrderOutput{}, NewHTTPError(http.StatusUnauthorized, "unauthorized")
	}

	//ページングはまず固定で取る
	var outs []OrderOutput

	err := u.tx.WithinTx(ctx, func(r repo.TxRepos) error {
		orders, _, err := r.Orders().ListByUserID(ctx, userID, 1, 50)
		if err != nil {
			return NewHTTPError(http.StatusInternalServerError, "db error")
		}

		outs = make([]OrderOutput, 0, len(orders))
		for _, o := range orders {
			items, err := r.OrderItems().ListByOrderID(ctx, o.ID)
			if err != nil {
				return NewHTTPError(http.StatusInternalServerError, "db error")
			}
			outs = append(outs, u.toOrderOutput(o, items))
		}
		return nil
	})

	if err != nil {
		return []OrderOutput{}, err
	}
	return outs, nil
}

func (u *OrderUsecase) GetMyOrderDetail(ctx context.Context, userID string, orderID int64) (OrderOutput, error) {
	if userID == "" {
		return OrderOutput{}, NewHTTPError(http.StatusUnauthorized, "unauthorized")
	}
	if orderID <= 0 {
		return OrderOutput{}, NewHTTPError(http.StatusBadRequest, "invalid id")
	}

	var out OrderOutput

	err := u.tx.WithinTx(ctx, func(r repo.TxRepos) error {
		o, err := r.Orders().FindByID(ctx, orderID)
		if err == repo.ErrNotFound {
			return NewHTTPError(http.StatusNotFound, "not found")
		}
		if err != nil {
			return NewHTTPError(http.StatusInternalServerError, "db error")
		}
		if o.UserID != userID {
			//他人の注文は「存在しない扱い」にする
			return NewHTTPError(http.StatusNotFound, "not found")
		}

		items, err := r.OrderItems().ListByOrderID(ctx, orderID)
		if err != nil {
			return NewHTTPError(http.StatusInternalServerError, "db error")
		}

		out = u.toOrderOutput(o, items)
		return nil
	})

	if err != nil {
		return OrderOutput{}, err
	}
	return out, nil
}

// 追跡IDで注文状況を返す（本人の注文のみ）
func (u *OrderUsecase) TrackOrder(ctx context.Context, userID string, trackingID string) (TrackingOutput, error) {
	if userID == "" {
		return TrackingOutput{}, NewHTTPError(http.StatusUnauthorized, "unauthorized")
	}
	if strings.TrimSpace(trackingID) == "" {
		return TrackingOutput{}, NewHTTPError(http.StatusBadRequest, "invalid trackingId")
	}

	var out TrackingOutput

	err := u.tx.WithinTx(ctx, func(r repo.TxRepos) error {
		o, err := r.Orders().FindByTrackingID(ctx, trackingID)
		if err == repo.ErrNotFound {
			return NewHTTPError(http.StatusNotFound, "not found")
		}
		if err != nil {
			return NewHTTPError(http.StatusInternalServerError, "db error")
		}
		if o.UserID != userID {
			return NewHTTPError(http.StatusNotFound, "not found")
		}

		out = TrackingOutput{
			TrackingID:   o.TrackingID,
			Status:       string(o.Status),
			OrderDate:    o.CreatedAt,
			DeliveryDate: o.DeliveryDate,
			IsDelivered:  o.Status == model.OrderStatusDelivered,
		}
		return nil
	})

	if err != nil {
		return TrackingOutput{}, err
	}
	return out, nil
}

type UpdateOrderStatusInput struct {
	Status string
}

// ステータス更新（管理者）。
// CANCELLEDは在庫を戻し、DELIVEREDは配達時刻を記録する。
func (u *OrderUsecase) UpdateStatus(ctx context.Context, orderID int64, in UpdateOrderStatusInput) error {
	if orderID <= 0 {
		return NewHTTPError(http.StatusBadRequest, "invalid id")
	}

	status := model.OrderStatus(in.Status)
	if !status.Valid() {
		return NewHTTPError(http.StatusBadRequest, "invalid status")
	}

	return u.tx.WithinTx(ctx, func(r repo.TxRepos) error {
		o, err := r.Orders().FindByID(ctx, orderID)
		if err == repo.ErrNotFound {
			return NewHTTPError(http.StatusNotFound, "not found")
		}
		if err != nil {
			return NewHTTPError(http.StatusInternalServerError, "db error")
		}

		if o.Status == status {
			return nil
		}

		//配達済み・キャンセル済みからは動かさない
		if o.Status == model.OrderStatusDelivered || o.Status == model.OrderStatusCancelled {
			return NewHTTPError(http.StatusBadRequest, "invalid transition")
		}

		if status == model.OrderStatusCancelled {
			//キャンセルは在庫を戻す
			items, err := r.OrderItems().ListByOrderID(ctx, orderID)
			if err != nil {
				return NewHTTPError(http.StatusInternalServerError, "db error")
			}
			for _, it := range items {
				if err := r.Inventory().IncreaseStock(ctx, it.ProductID, it.Quantity); err != nil && err != repo.ErrNotFound {
					return NewHTTPError(http.StatusInternalServerError, "db error")
				}
			}
		}

		if err := r.Orders().UpdateStatus(ctx, orderID, status); err != nil {
			if err == repo.ErrNotFound {
				return NewHTTPError(http.StatusNotFound, "not found")
			}
			return NewHTTPError(http.StatusInternalServerError, "db error")
		}

		if status == model.OrderStatusDelivered {
			if err := r.Orders().SetDeliveryDate(ctx, orderID); err != nil {
				return NewHTTPError(http.StatusInternalServerError, "db error")
			}
		}

		return nil
	})
}

func (u *OrderUsecase) toOrderOutput(o model.Order, items []model.OrderItem) OrderOutput {
	outItems := make([]OrderItemOutput, 0, len(items))
	for _, it := range items {
		outItems = append(outItems, OrderItemOutput{
			ProductID:  it.ProductID,
			Name:       it.ProductNameSnapshot,
			Category:   it.CategorySnapshot,
			Unit:       it.UnitSnapshot,
			Price:      it.UnitPriceSnapshot,
			Quantity:   it.Quantity,
			TotalPrice: it.LineTotal,
		})
	}

	return OrderOutput{
		ID:              o.ID,
		TrackingID:      o.TrackingID,
		Status:          string(o.Status),
		DeliveryAddress: o.DeliveryAddress,
		PaymentMethod:   o.PaymentMethod,
		Totals: pricing.OrderTotals{
			ItemsTotal:   o.ItemsTotal,
			DeliveryFee:  o.DeliveryFee,
			PlatformFee:  o.PlatformFee,
			Subtotal:     o.ItemsTotal.Add(o.DeliveryFee).Add(o.PlatformFee),
			Tax:          o.Tax,
			GrandTotal:   o.GrandTotal,
			FreeDelivery: o.FreeDelivery,
			//保存済みの値を使う。現在のポリシーから再計算しない
			//（後から配送料を変えても過去の注文が変わらないように）。
			Savings: o.Savings,
		},
		OrderDate:    o.CreatedAt,
		DeliveryDate: o.DeliveryDate,
		Items:        outItems,
	}
}
