package model

import (
	"time"

	"github.com/shopspring/decimal"
)

type OrderStatus string

const (
	OrderStatusPending        OrderStatus = "PENDING"
	OrderStatusConfirmed      OrderStatus = "CONFIRMED"
	OrderStatusPreparing      OrderStatus = "PREPARING"
	OrderStatusOutForDelivery OrderStatus = "OUT_FOR_DELIVERY"
	OrderStatusDelivered      OrderStatus = "DELIVERED"
	OrderStatusCancelled      OrderStatus = "CANCELLED"
)

// statusとして正しい値か
func (s OrderStatus) Valid() bool {
	switch s {
	case OrderStatusPending, OrderStatusConfirmed, OrderStatusPreparing,
		OrderStatusOutForDelivery, OrderStatusDelivered, OrderStatusCancelled:
		return true
	}
	return false
}

// 注文。金額内訳は作成時に確定してそのまま保存する。
type Order struct {
	ID     int64       `gorm:"primaryKey;autoIncrement" json:"id"`
	UserID string      `gorm:"type:varchar(128);not null;index;uniqueIndex:idx_orders_user_idem" json:"user_id"`
	Status OrderStatus `gorm:"type:varchar(20);not null;index" json:"status"`

	//追跡ID（SKY + uuid）
	TrackingID string `gorm:"type:varchar(64);not null;uniqueIndex" json:"tracking_id"`

	DeliveryAddress string `gorm:"type:varchar(500);not null" json:"delivery_address"`
	PaymentMethod   string `gorm:"type:varchar(50);not null" json:"payment_method"`

	//金額内訳（注文時点のポリシーで計算した値）
	ItemsTotal   decimal.Decimal `gorm:"type:numeric(12,2);not null" json:"items_total"`
	DeliveryFee  decimal.Decimal `gorm:"type:numeric(12,2);not null" json:"delivery_fee"`
	PlatformFee  decimal.Decimal `gorm:"type:numeric(12,2);not null" json:"platform_fee"`
	Tax          decimal.Decimal `gorm:"type:numeric(12,2);not null" json:"tax"`
	GrandTotal   decimal.Decimal `gorm:"type:numeric(12,2);not null" json:"grand_total"`
	FreeDelivery bool            `gorm:"not null;default:false" json:"free_delivery"`

	//無料適用で浮いた配送料（注文時点の通常配送料）
	Savings decimal.Decimal `gorm:"type:numeric(12,2);not null;default:0" json:"savings"`

	//二重送信キーはユーザー単位で一意（別ユーザーの同じキーは衝突しない）
	IdempotencyKey string `gorm:"type:varchar(255);not null;uniqueIndex:idx_orders_user_idem" json:"-"`

	DeliveryDate *time.Time `json:"delivery_date"`
	CreatedAt    time.Time  `gorm:"not null;autoCreateTime" json:"created_at"`
	UpdatedAt    time.Time  `gorm:"not null;autoUpdateTime" json:"updated_at"`
}
