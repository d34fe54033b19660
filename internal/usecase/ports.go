package usecase

import "context"

// 注文確定イベント（倉庫側が購読する）
type OrderPlacedEvent struct {
	OrderID    int64             `json:"order_id"`
	TrackingID string            `json:"tracking_id"`
	UserID     string            `json:"user_id"`
	Items      []OrderPlacedItem `json:"items"`
}

type OrderPlacedItem struct {
	ProductID int64 `json:"product_id"`
	Quantity  int64 `json:"quantity"`
}

// 注文イベントの発行先。ブローカー障害で注文を失敗させないため、
// 発行エラーは呼び出し側でログに残すだけにする。
type OrderEventPublisher interface {
	PublishOrderPlaced(ctx context.Context, ev OrderPlacedEvent) error
}

// ブローカー未設定のときに使う
type NoopPublisher struct{}

func (NoopPublisher) PublishOrderPlaced(ctx context.Context, ev OrderPlacedEvent) error {
	return nil
}
