package pricing

import (
	"errors"

	"github.com/shopspring/decimal"
)

// 商品合計がマイナスのときに返す（呼び出し側の契約違反）
var ErrNegativeItemsTotal = errors.New("items total must not be negative")

// 注文金額の内訳。カート画面とチェックアウトで同じ計算を使う。
type OrderTotals struct {
	ItemsTotal  decimal.Decimal `json:"items_total"`
	DeliveryFee decimal.Decimal `json:"delivery_fee"`
	PlatformFee decimal.Decimal `json:"platform_fee"`
	Subtotal    decimal.Decimal `json:"subtotal"`
	Tax         decimal.Decimal `json:"tax"`
	GrandTotal  decimal.Decimal `json:"grand_total"`

	//配送料無料が適用されたか
	FreeDelivery bool `json:"free_delivery"`

	//無料適用で浮いた配送料
	Savings decimal.Decimal `json:"savings"`
}

// OrderTotals は商品合計から配送料・手数料・税・総額を計算します。
// 計算順は固定（丸めの再現性のため）:
//  1. deliveryFee = itemsTotal >= threshold ? 0 : standardFee
//  2. subtotal    = itemsTotal + deliveryFee + platformFee
//  3. tax         = subtotal * taxRate
//  4. grandTotal  = subtotal + tax
//
// itemsTotal < 0 は ErrNegativeItemsTotal（クランプはしない）。
func (p Policy) OrderTotals(itemsTotal decimal.Decimal) (OrderTotals, error) {
	if itemsTotal.IsNegative() {
		return OrderTotals{}, ErrNegativeItemsTotal
	}

	freeDelivery := itemsTotal.GreaterThanOrEqual(p.FreeDeliveryThreshold)

	deliveryFee := p.StandardDeliveryFee
	savings := decimal.Zero
	if freeDelivery {
		deliveryFee = decimal.Zero
		savings = p.StandardDeliveryFee
	}

	subtotal := itemsTotal.Add(deliveryFee).Add(p.PlatformFee)
	tax := subtotal.Mul(p.TaxRate)
	grandTotal := subtotal.Add(tax)

	return OrderTotals{
		ItemsTotal:   itemsTotal,
		DeliveryFee:  deliveryFee,
		PlatformFee:  p.PlatformFee,
		Subtotal:     subtotal,
		Tax:          tax,
		GrandTotal:   grandTotal,
		FreeDelivery: freeDelivery,
		Savings:      savings,
	}, nil
}
