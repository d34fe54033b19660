package model

import (
	"time"

	"github.com/shopspring/decimal"
)

// 注文明細。商品名・単価・単位は注文時点のスナップショット。
type OrderItem struct {
	ID                  int64           `gorm:"primaryKey;autoIncrement" json:"id"`
	OrderID             int64           `gorm:"not null;index" json:"order_id"`
	ProductID           int64           `gorm:"not null;index" json:"product_id"`
	ProductNameSnapshot string          `gorm:"type:varchar(255);not null" json:"product_name_snapshot"`
	CategorySnapshot    string          `gorm:"type:varchar(100);not null" json:"category_snapshot"`
	UnitSnapshot        string          `gorm:"type:varchar(30);not null" json:"unit_snapshot"`
	UnitPriceSnapshot   decimal.Decimal `gorm:"type:numeric(12,2);not null" json:"unit_price_snapshot"`
	Quantity            int64           `gorm:"not null" json:"quantity"`
	LineTotal           decimal.Decimal `gorm:"type:numeric(12,2);not null" json:"line_total"`
	CreatedAt           time.Time       `gorm:"not null;autoCreateTime" json:"created_at"`
}
