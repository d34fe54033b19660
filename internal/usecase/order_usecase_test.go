package usecase_test

import (
	"context"
	"strings"
	"testing"

	"app/internal/domain/model"
	"app/internal/pricing"
	repo "app/internal/repository"
	"app/internal/usecase"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
)

// =====================
// Mocks（衝突回避の命名）
// =====================

type OrderRepoMock struct{ mock.Mock }

func (m *OrderRepoMock) FindByID(ctx context.Context, orderID int64) (model.Order, error) {
	args := m.Called(ctx, orderID)
	o, _ := args.Get(0).(model.Order)
	return o, args.Error(1)
}

func (m *OrderRepoMock) FindByTrackingID(ctx context.Context, trackingID string) (model.Order, error) {
	args := m.Called(ctx, trackingID)
	o, _ := args.Get(0).(model.Order)
	return o, args.Error(1)
}

func (m *OrderRepoMock) ListByUserID(ctx context.Context, userID string, page int, limit int) ([]model.Order, int64, error) {
	args := m.Called(ctx, userID, page, limit)
	orders, _ := args.Get(0).([]model.Order)
	return orders, args.Get(1).(int64), args.Error(2)
}

func (m *OrderRepoMock) Create(ctx context.Context, order model.Order) (int64, error) {
	args := m.Called(ctx, order)
	return args.Get(0).(int64), args.Error(1)
}

func (m *OrderRepoMock) UpdateStatus(ctx context.Context, orderID int64, status model.OrderStatus) error {
	args := m.Called(ctx, orderID, status)
	return args.Error(0)
}

func (m *OrderRepoMock) SetDeliveryDate(ctx context.Context, orderID int64) error {
	args := m.Called(ctx, orderID)
	return args.Error(0)
}

func (m *OrderRepoMock) FindByIdempotencyKey(ctx context.Context, userID string, key string) (model.Order, bool, error) {
	args := m.Called(ctx, userID, key)
	o, _ := args.Get(0).(model.Order)
	return o, args.Bool(1), args.Error(2)
}

type OrderItemRepoMock struct{ mock.Mock }

func (m *OrderItemRepoMock) CreateBulk(ctx context.Context, orderID int64, items []model.OrderItem) error {
	args := m.Called(ctx, orderID, items)
	return args.Error(0)
}

func (m *OrderItemRepoMock) ListByOrderID(ctx context.Context, orderID int64) ([]model.OrderItem, error) {
	args := m.Called(ctx, orderID)
	items, _ := args.Get(0).([]model.OrderItem)
	return items, args.Error(1)
}

type OrderInventoryRepoMock struct{ mock.Mock }

func (m *OrderInventoryRepoMock) SetStock(ctx context.Context, productID int64, newStock int64) error {
	panic("not used in OrderUsecase tests")
}

func (m *OrderInventoryRepoMock) DecreaseStockIfEnough(ctx context.Context, productID int64, qty int64) (bool, error) {
	args := m.Called(ctx, productID, qty)
	return args.Bool(0), args.Error(1)
}

func (m *OrderInventoryRepoMock) IncreaseStock(ctx context.Context, productID int64, qty int64) error {
	args := m.Called(ctx, productID, qty)
	return args.Error(0)
}

func (m *OrderInventoryRepoMock) CreateAdjustment(ctx context.Context, adj model.InventoryAdjustment) error {
	panic("not used in OrderUsecase tests")
}

type PublisherMock struct{ mock.Mock }

func (m *PublisherMock) PublishOrderPlaced(ctx context.Context, ev usecase.OrderPlacedEvent) error {
	args := m.Called(ctx, ev)
	return args.Error(0)
}

type orderMocks struct {
	tx    *TxManagerMock
	oRepo *OrderRepoMock
	iRepo *OrderItemRepoMock
	cRepo *CartRepoMock
	ciRep *CartItemRepoMock
	inv   *OrderInventoryRepoMock
	pRepo *CartProductRepoMock
	pub   *PublisherMock
}

func newOrderUsecase() (*usecase.OrderUsecase, orderMocks) {
	m := orderMocks{
		tx:    new(TxManagerMock),
		oRepo: new(OrderRepoMock),
		iRepo: new(OrderItemRepoMock),
		cRepo: new(CartRepoMock),
		ciRep: new(CartItemRepoMock),
		inv:   new(OrderInventoryRepoMock),
		pRepo: new(CartProductRepoMock),
		pub:   new(PublisherMock),
	}
	m.tx.Repos = &TxReposMock{
		orders:     m.oRepo,
		orderItems: m.iRepo,
		carts:      m.cRepo,
		cartItems:  m.ciRep,
		inventory:  m.inv,
		products:   m.pRepo,
	}
	uc := usecase.NewOrderUsecase(m.tx, pricing.DefaultPolicy(), m.pub)
	return uc, m
}

// =====================
// Checkout
// =====================

func TestOrderUsecase_Checkout_Success(t *testing.T) {
	ctx := context.Background()
	uc, m := newOrderUsecase()

	m.tx.On("WithinTx", mock.Anything).Return(nil)
	m.oRepo.On("FindByIdempotencyKey", mock.Anything, "u1", "key-1").Return(model.Order{}, false, nil)
	m.cRepo.On("FindActiveByUserID", mock.Anything, "u1").Return(model.Cart{ID: 1, UserID: "u1"}, nil)
	m.ciRep.On("ListByCartID", mock.Anything, int64(1)).Return([]model.CartItem{
		{CartID: 1, ProductID: 2, Quantity: 2, UnitPriceSnapshot: dec("40")},
	}, nil)
	m.pRepo.On("FindByID", mock.Anything, int64(2)).Return(model.Product{ID: 2, Name: "Milk", Category: "Dairy", Unit: "1L", Price: dec("40"), Stock: 5, IsActive: true}, nil)
	m.inv.On("DecreaseStockIfEnough", mock.Anything, int64(2), int64(2)).Return(true, nil)
	m.oRepo.On("Create", mock.Anything, mock.Anything).Return(int64(10), nil)
	m.iRepo.On("CreateBulk", mock.Anything, int64(10), mock.Anything).Return(nil)
	m.cRepo.On("Clear", mock.Anything, int64(1)).Return(nil)
	m.cRepo.On("UpdateStatus", mock.Anything, int64(1), model.CartStatusCheckedOut).Return(nil)
	m.pub.On("PublishOrderPlaced", mock.Anything, mock.Anything).Return(nil)

	out, err := uc.Checkout(ctx, "u1", usecase.CheckoutInput{
		DeliveryAddress: "12 Harbor Lane",
		PaymentMethod:   usecase.PaymentMethodCOD,
		IdempotencyKey:  "key-1",
	})
	assert.NoError(t, err)

	assert.Equal(t, int64(10), out.ID)
	assert.Equal(t, string(model.OrderStatusConfirmed), out.Status)
	assert.True(t, strings.HasPrefix(out.TrackingID, "SKY"))

	//80 → 送料30 + 手数料5 = 115、税5.75、合計120.75
	assertDecEqual(t, "80", out.Totals.ItemsTotal)
	assertDecEqual(t, "30", out.Totals.DeliveryFee)
	assertDecEqual(t, "5", out.Totals.PlatformFee)
	assertDecEqual(t, "115", out.Totals.Subtotal)
	assertDecEqual(t, "5.75", out.Totals.Tax)
	assertDecEqual(t, "120.75", out.Totals.GrandTotal)
	assert.False(t, out.Totals.FreeDelivery)

	assert.Equal(t, 1, len(out.Items))
	assertDecEqual(t, "80", out.Items[0].TotalPrice)

	m.oRepo.AssertExpectations(t)
	m.cRepo.AssertExpectations(t)
	m.inv.AssertExpectations(t)
	m.pub.AssertExpectations(t)
}

func TestOrderUsecase_Checkout_FreeDeliveryPersistsSavings(t *testing.T) {
	ctx := context.Background()
	uc, m := newOrderUsecase()

	m.tx.On("WithinTx", mock.Anything).Return(nil)
	m.oRepo.On("FindByIdempotencyKey", mock.Anything, "u1", "key-2").Return(model.Order{}, false, nil)
	m.cRepo.On("FindActiveByUserID", mock.Anything, "u1").Return(model.Cart{ID: 1, UserID: "u1"}, nil)
	m.ciRep.On("ListByCartID", mock.Anything, int64(1)).Return([]model.CartItem{
		{CartID: 1, ProductID: 2, Quantity: 3, UnitPriceSnapshot: dec("50")},
	}, nil)
	m.pRepo.On("FindByID", mock.Anything, int64(2)).Return(model.Product{ID: 2, Name: "Rice", Category: "Grains", Unit: "1kg", Price: dec("50"), Stock: 5, IsActive: true}, nil)
	m.inv.On("DecreaseStockIfEnough", mock.Anything, int64(2), int64(3)).Return(true, nil)

	//免除された配送料は注文行に保存される
	m.oRepo.On("Create", mock.Anything, mock.MatchedBy(func(o model.Order) bool {
		return o.FreeDelivery && o.Savings.Equal(dec("30"))
	})).Return(int64(11), nil)
	m.iRepo.On("CreateBulk", mock.Anything, int64(11), mock.Anything).Return(nil)
	m.cRepo.On("Clear", mock.Anything, int64(1)).Return(nil)
	m.cRepo.On("UpdateStatus", mock.Anything, int64(1), model.CartStatusCheckedOut).Return(nil)
	m.pub.On("PublishOrderPlaced", mock.Anything, mock.Anything).Return(nil)

	out, err := uc.Checkout(ctx, "u1", usecase.CheckoutInput{
		DeliveryAddress: "12 Harbor Lane",
		IdempotencyKey:  "key-2",
	})
	assert.NoError(t, err)
	assert.True(t, out.Totals.FreeDelivery)
	assertDecEqual(t, "30", out.Totals.Savings)

	m.oRepo.AssertExpectations(t)
}

func TestOrderUsecase_Checkout_IdempotentReplay(t *testing.T) {
	ctx := context.Background()
	uc, m := newOrderUsecase()

	existing := model.Order{ID: 10, UserID: "u1", Status: model.OrderStatusConfirmed, TrackingID: "SKYABC", GrandTotal: dec("120.75")}

	m.tx.On("WithinTx", mock.Anything).Return(nil)
	m.oRepo.On("FindByIdempotencyKey", mock.Anything, "u1", "key-1").Return(existing, true, nil)
	m.iRepo.On("ListByOrderID", mock.Anything, int64(10)).Return([]model.OrderItem{}, nil)

	out, err := uc.Checkout(ctx, "u1", usecase.CheckoutInput{
		DeliveryAddress: "12 Harbor Lane",
		IdempotencyKey:  "key-1",
	})
	assert.NoError(t, err)
	assert.Equal(t, int64(10), out.ID)
	assert.Equal(t, "SKYABC", out.TrackingID)

	//再送では新しい注文を作らないし、イベントも出さない
	m.oRepo.AssertNotCalled(t, "Create", mock.Anything, mock.Anything)
	m.pub.AssertNotCalled(t, "PublishOrderPlaced", mock.Anything, mock.Anything)
}

func TestOrderUsecase_Checkout_CollectsAllIssues(t *testing.T) {
	ctx := context.Background()
	uc, m := newOrderUsecase()

	m.tx.On("WithinTx", mock.Anything).Return(nil)
	m.oRepo.On("FindByIdempotencyKey", mock.Anything, "u1", "key-1").Return(model.Order{}, false, nil)
	m.cRepo.On("FindActiveByUserID", mock.Anything, "u1").Return(model.Cart{ID: 1}, nil)
	m.ciRep.On("ListByCartID", mock.Anything, int64(1)).Return([]model.CartItem{
		{CartID: 1, ProductID: 2, Quantity: 1},
		{CartID: 1, ProductID: 3, Quantity: 1},
		{CartID: 1, ProductID: 4, Quantity: 5},
	}, nil)
	m.pRepo.On("FindByID", mock.Anything, int64(2)).Return(model.Product{}, repo.ErrNotFound)
	m.pRepo.On("FindByID", mock.Anything, int64(3)).Return(model.Product{ID: 3, Name: "Bread", IsActive: false}, nil)
	m.pRepo.On("FindByID", mock.Anything, int64(4)).Return(model.Product{ID: 4, Name: "Eggs", Stock: 2, IsActive: true}, nil)

	_, err := uc.Checkout(ctx, "u1", usecase.CheckoutInput{
		DeliveryAddress: "12 Harbor Lane",
		IdempotencyKey:  "key-1",
	})

	//問題は1件目で止めず、全部まとめて返す
	assertErrContains(t, err, "some items are not available")
	assertErrContains(t, err, "product not found")
	assertErrContains(t, err, "Bread - no longer available")
	assertErrContains(t, err, "Eggs - out of stock")

	m.oRepo.AssertNotCalled(t, "Create", mock.Anything, mock.Anything)
	m.inv.AssertNotCalled(t, "DecreaseStockIfEnough", mock.Anything, mock.Anything, mock.Anything)
}

func TestOrderUsecase_Checkout_EmptyCart(t *testing.T) {
	ctx := context.Background()
	uc, m := newOrderUsecase()

	m.tx.On("WithinTx", mock.Anything).Return(nil)
	m.oRepo.On("FindByIdempotencyKey", mock.Anything, "u1", "key-1").Return(model.Order{}, false, nil)
	m.cRepo.On("FindActiveByUserID", mock.Anything, "u1").Return(model.Cart{ID: 1}, nil)
	m.ciRep.On("ListByCartID", mock.Anything, int64(1)).Return([]model.CartItem{}, nil)

	_, err := uc.Checkout(ctx, "u1", usecase.CheckoutInput{
		DeliveryAddress: "12 Harbor Lane",
		IdempotencyKey:  "key-1",
	})
	assertErrContains(t, err, "cart empty")
}

func TestOrderUsecase_Checkout_InvalidPaymentMethod(t *testing.T) {
	uc, _ := newOrderUsecase()

	_, err := uc.Checkout(context.Background(), "u1", usecase.CheckoutInput{
		DeliveryAddress: "12 Harbor Lane",
		PaymentMethod:   "Bank Transfer",
		IdempotencyKey:  "key-1",
	})
	assertErrContains(t, err, "invalid payment_method")
}

func TestOrderUsecase_Checkout_MissingIdempotencyKey(t *testing.T) {
	uc, _ := newOrderUsecase()

	_, err := uc.Checkout(context.Background(), "u1", usecase.CheckoutInput{
		DeliveryAddress: "12 Harbor Lane",
	})
	assertErrContains(t, err, "invalid idempotency_key")
}

// =====================
// History / Detail / Tracking
// =====================

func TestOrderUsecase_ListMyOrders(t *testing.T) {
	ctx := context.Background()
	uc, m := newOrderUsecase()

	m.tx.On("WithinTx", mock.Anything).Return(nil)
	m.oRepo.On("ListByUserID", mock.Anything, "u1", 1, 50).Return([]model.Order{
		{ID: 10, UserID: "u1"},
		{ID: 11, UserID: "u1"},
	}, int64(2), nil)
	m.iRepo.On("ListByOrderID", mock.Anything, int64(10)).Return([]model.OrderItem{}, nil)
	m.iRepo.On("ListByOrderID", mock.Anything, int64(11)).Return([]model.OrderItem{}, nil)

	outs, err := uc.ListMyOrders(ctx, "u1")
	assert.NoError(t, err)
	assert.Equal(t, 2, len(outs))

	m.oRepo.AssertExpectations(t)
	m.iRepo.AssertExpectations(t)
}

func TestOrderUsecase_GetMyOrderDetail_SavingsFromStoredOrder(t *testing.T) {
	ctx := context.Background()

	//注文後に配送料の設定が変わっても、過去の注文は保存済みの値で答える
	m := orderMocks{
		tx:    new(TxManagerMock),
		oRepo: new(OrderRepoMock),
		iRepo: new(OrderItemRepoMock),
	}
	m.tx.Repos = &TxReposMock{orders: m.oRepo, orderItems: m.iRepo}

	policy := pricing.DefaultPolicy()
	policy.StandardDeliveryFee = dec("99")
	uc := usecase.NewOrderUsecase(m.tx, policy, usecase.NoopPublisher{})

	m.tx.On("WithinTx", mock.Anything).Return(nil)
	m.oRepo.On("FindByID", mock.Anything, int64(10)).Return(model.Order{
		ID: 10, UserID: "u1", FreeDelivery: true, Savings: dec("30"),
	}, nil)
	m.iRepo.On("ListByOrderID", mock.Anything, int64(10)).Return([]model.OrderItem{}, nil)

	out, err := uc.GetMyOrderDetail(ctx, "u1", 10)
	assert.NoError(t, err)
	assertDecEqual(t, "30", out.Totals.Savings)
}

func TestOrderUsecase_GetMyOrderDetail_OtherUserHidden(t *testing.T) {
	ctx := context.Background()
	uc, m := newOrderUsecase()

	m.tx.On("WithinTx", mock.Anything).Return(nil)
	m.oRepo.On("FindByID", mock.Anything, int64(10)).Return(model.Order{ID: 10, UserID: "someone-else"}, nil)

	_, err := uc.GetMyOrderDetail(ctx, "u1", 10)
	assertErrContains(t, err, "not found")
}

func TestOrderUsecase_TrackOrder(t *testing.T) {
	ctx := context.Background()
	uc, m := newOrderUsecase()

	m.tx.On("WithinTx", mock.Anything).Return(nil)
	m.oRepo.On("FindByTrackingID", mock.Anything, "SKYABC").Return(model.Order{
		ID: 10, UserID: "u1", TrackingID: "SKYABC", Status: model.OrderStatusOutForDelivery,
	}, nil)

	out, err := uc.TrackOrder(ctx, "u1", "SKYABC")
	assert.NoError(t, err)
	assert.Equal(t, "SKYABC", out.TrackingID)
	assert.Equal(t, string(model.OrderStatusOutForDelivery), out.Status)
	assert.False(t, out.IsDelivered)
}

func TestOrderUsecase_TrackOrder_OtherUserHidden(t *testing.T) {
	ctx := context.Background()
	uc, m := newOrderUsecase()

	m.tx.On("WithinTx", mock.Anything).Return(nil)
	m.oRepo.On("FindByTrackingID", mock.Anything, "SKYABC").Return(model.Order{ID: 10, UserID: "someone-else", TrackingID: "SKYABC"}, nil)

	_, err := uc.TrackOrder(ctx, "u1", "SKYABC")
	assertErrContains(t, err, "not found")
}

// =====================
// UpdateStatus
// =====================

func TestOrderUsecase_UpdateStatus_CancelRestoresStock(t *testing.T) {
	ctx := context.Background()
	uc, m := newOrderUsecase()

	m.tx.On("WithinTx", mock.Anything).Return(nil)
	m.oRepo.On("FindByID", mock.Anything, int64(10)).Return(model.Order{ID: 10, Status: model.OrderStatusConfirmed}, nil)
	m.iRepo.On("ListByOrderID", mock.Anything, int64(10)).Return([]model.OrderItem{
		{OrderID: 10, ProductID: 2, Quantity: 2},
		{OrderID: 10, ProductID: 3, Quantity: 1},
	}, nil)
	m.inv.On("IncreaseStock", mock.Anything, int64(2), int64(2)).Return(nil)
	m.inv.On("IncreaseStock", mock.Anything, int64(3), int64(1)).Return(nil)
	m.oRepo.On("UpdateStatus", mock.Anything, int64(10), model.OrderStatusCancelled).Return(nil)

	err := uc.UpdateStatus(ctx, 10, usecase.UpdateOrderStatusInput{Status: "CANCELLED"})
	assert.NoError(t, err)

	m.inv.AssertExpectations(t)
	m.oRepo.AssertExpectations(t)
}

func TestOrderUsecase_UpdateStatus_DeliveredStampsDate(t *testing.T) {
	ctx := context.Background()
	uc, m := newOrderUsecase()

	m.tx.On("WithinTx", mock.Anything).Return(nil)
	m.oRepo.On("FindByID", mock.Anything, int64(10)).Return(model.Order{ID: 10, Status: model.OrderStatusOutForDelivery}, nil)
	m.oRepo.On("UpdateStatus", mock.Anything, int64(10), model.OrderStatusDelivered).Return(nil)
	m.oRepo.On("SetDeliveryDate", mock.Anything, int64(10)).Return(nil)

	err := uc.UpdateStatus(ctx, 10, usecase.UpdateOrderStatusInput{Status: "DELIVERED"})
	assert.NoError(t, err)

	m.oRepo.AssertExpectations(t)
}

func TestOrderUsecase_UpdateStatus_TerminalStateGuard(t *testing.T) {
	ctx := context.Background()
	uc, m := newOrderUsecase()

	m.tx.On("WithinTx", mock.Anything).Return(nil)
	m.oRepo.On("FindByID", mock.Anything, int64(10)).Return(model.Order{ID: 10, Status: model.OrderStatusDelivered}, nil)

	err := uc.UpdateStatus(ctx, 10, usecase.UpdateOrderStatusInput{Status: "PREPARING"})
	assertErrContains(t, err, "invalid transition")

	m.oRepo.AssertNotCalled(t, "UpdateStatus", mock.Anything, mock.Anything, mock.Anything)
}

func TestOrderUsecase_UpdateStatus_SameStatusNoop(t *testing.T) {
	ctx := context.Background()
	uc, m := newOrderUsecase()

	m.tx.On("WithinTx", mock.Anything).Return(nil)
	m.oRepo.On("FindByID", mock.Anything, int64(10)).Return(model.Order{ID: 10, Status: model.OrderStatusPreparing}, nil)

	err := uc.UpdateStatus(ctx, 10, usecase.UpdateOrderStatusInput{Status: "PREPARING"})
	assert.NoError(t, err)

	m.oRepo.AssertNotCalled(t, "UpdateStatus", mock.Anything, mock.Anything, mock.Anything)
}

func TestOrderUsecase_UpdateStatus_InvalidStatus(t *testing.T) {
	uc, _ := newOrderUsecase()

	err := uc.UpdateStatus(context.Background(), 10, usecase.UpdateOrderStatusInput{Status: "SHIPPED"})
	assertErrContains(t, err, "invalid status")
}
