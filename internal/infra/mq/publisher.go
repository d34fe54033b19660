package mq

import (
	"context"
	"encoding/json"

	"app/internal/usecase"

	amqp "github.com/rabbitmq/amqp091-go"
)

// RabbitMQへの注文イベント発行。
// 倉庫側のコンシューマが "orders" キューを購読する。
type AMQPPublisher struct {
	ch    *amqp.Channel
	queue string
}

// Connect はRabbitMQに接続してキューを宣言し、Publisherを返す。
func Connect(url string, queue string) (*AMQPPublisher, func(), error) {
	conn, err := amqp.Dial(url)
	if err != nil {
		return nil, nil, err
	}

	ch, err := conn.Channel()
	if err != nil {
		conn.Close()
		return nil, nil, err
	}

	//durableなキュー（倉庫コンシューマと同じ宣言）
	if _, err := ch.QueueDeclare(queue, true, false, false, false, nil); err != nil {
		ch.Close()
		conn.Close()
		return nil, nil, err
	}

	closeFn := func() {
		ch.Close()
		conn.Close()
	}

	return &AMQPPublisher{ch: ch, queue: queue}, closeFn, nil
}

func (p *AMQPPublisher) PublishOrderPlaced(ctx context.Context, ev usecase.OrderPlacedEvent) error {
	body, err := json.Marshal(ev)
	if err != nil {
		return err
	}

	return p.ch.PublishWithContext(
		ctx,
		"",
		p.queue,
		false,
		false,
		amqp.Publishing{
			ContentType: "application/json",
			Body:        body,
		},
	)
}
