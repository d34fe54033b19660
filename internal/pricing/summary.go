package pricing

import "github.com/shopspring/decimal"

// カートの1明細。集計中は読み取り専用。
type LineItem struct {
	ItemID   string
	Name     string
	Price    decimal.Decimal
	Quantity int64

	//上流が計算済みの明細合計。ゼロ値なら price × quantity で補完する。
	LineTotal decimal.Decimal

	//在庫読み取り時点のフラグ
	InStock bool
}

// カート全体の集計。毎回ゼロから再計算する（増分状態は持たない）。
type CartSummary struct {
	//数量の合計
	TotalItems int64 `json:"totalItems"`

	//明細合計の総和
	TotalAmount decimal.Decimal `json:"totalAmount"`

	//明細の件数
	ItemCount int `json:"itemCount"`

	//全明細が在庫ありか（空カートはtrue）
	AllInStock bool `json:"allInStock"`
}

// Summarize は明細からCartSummaryを作ります。
// すべて可換な集約なので入力の順序は結果に影響しません。
func Summarize(items []LineItem) CartSummary {
	s := CartSummary{
		TotalAmount: decimal.Zero,
		AllInStock:  true,
	}

	for _, it := range items {
		lineTotal := it.LineTotal
		if lineTotal.IsZero() {
			lineTotal = it.Price.Mul(decimal.NewFromInt(it.Quantity))
		}

		s.TotalItems += it.Quantity
		s.TotalAmount = s.TotalAmount.Add(lineTotal)
		s.ItemCount++

		if !it.InStock {
			s.AllInStock = false
		}
	}

	return s
}

// CanCheckout はチェックアウト可否の唯一の判定です。
// 明細が1件以上あり、かつ全明細が在庫ありのときだけtrue。
func (s CartSummary) CanCheckout() bool {
	return s.ItemCount > 0 && s.AllInStock
}
