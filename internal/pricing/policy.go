package pricing

import "github.com/shopspring/decimal"

// 料金ポリシー（配送料・手数料・税率）
// 値はすべて設定で差し替え可能。マジックナンバーを呼び出し側に書かない。
type Policy struct {
	//この金額以上で配送料無料
	FreeDeliveryThreshold decimal.Decimal

	//通常配送料
	StandardDeliveryFee decimal.Decimal

	//プラットフォーム手数料（固定）
	PlatformFee decimal.Decimal

	//税率（例: 0.05 = 5%）
	TaxRate decimal.Decimal
}

// デフォルトのポリシー
func DefaultPolicy() Policy {
	return Policy{
		FreeDeliveryThreshold: decimal.NewFromInt(100),
		StandardDeliveryFee:   decimal.NewFromInt(30),
		PlatformFee:           decimal.NewFromInt(5),
		TaxRate:               decimal.NewFromFloat(0.05),
	}
}
