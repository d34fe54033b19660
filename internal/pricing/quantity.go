package pricing

import "errors"

var (
	//提案数量がマイナス
	ErrNegativeQuantity = errors.New("quantity must not be negative")

	//在庫上限を超える
	ErrStockExceeded = errors.New("stock exceeded")
)

// ValidateQuantityChange は数量変更を在庫上限と照合します。
// proposed == 0 は「削除」の正当なリクエスト。
// 上限超過は拒否して利用者に知らせる（勝手に上限へ丸めない）。
func ValidateQuantityChange(current, proposed, stock int64) error {
	if proposed < 0 {
		return ErrNegativeQuantity
	}
	if proposed == 0 {
		return nil
	}
	if proposed > stock {
		return ErrStockExceeded
	}
	return nil
}
