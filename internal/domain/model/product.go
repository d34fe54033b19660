package model

import (
	"time"

	"github.com/shopspring/decimal"
	"gorm.io/gorm"
)

// 食料品の在庫品目。価格・在庫の唯一の情報源。
type Product struct {
	ID          int64           `gorm:"primaryKey;autoIncrement" json:"id"`
	Name        string          `gorm:"type:varchar(255);not null" json:"name"`
	Description string          `gorm:"type:text" json:"description"`
	Category    string          `gorm:"type:varchar(100);not null;index" json:"category"`
	Price       decimal.Decimal `gorm:"type:numeric(12,2);not null" json:"price"`
	Stock       int64           `gorm:"not null" json:"stock"`

	//販売単位（kg / piece / liter など）
	Unit     string `gorm:"type:varchar(30);not null" json:"unit"`
	ImageURL string `gorm:"type:varchar(500)" json:"image_url"`
	IsActive bool   `gorm:"not null;default:false" json:"is_active"`

	CreatedAt time.Time      `gorm:"not null;autoCreateTime" json:"created_at"`
	UpdatedAt time.Time      `gorm:"not null;autoUpdateTime" json:"updated_at"`
	DeletedAt gorm.DeletedAt `gorm:"index" json:"-"`
}
