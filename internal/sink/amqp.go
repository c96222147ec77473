package sink

import (
	"context"
	"time"

	amqp "github.com/rabbitmq/amqp091-go"
	"github.com/rotisserie/eris"
)

// DefaultQueue is the queue records are published to when none is configured.
const DefaultQueue = "trip-planner.trips"

// AMQPConfig describes the RabbitMQ connection.
type AMQPConfig struct {
	URL   string `yaml:"url" mapstructure:"url"`
	Queue string `yaml:"queue" mapstructure:"queue"`
}

// Publisher is the publishing half of *amqp.Channel.
type Publisher interface {
	PublishWithContext(ctx context.Context, exchange, key string, mandatory, immediate bool, msg amqp.Publishing) error
}

// AMQPSink publishes record bodies to a durable queue.
type AMQPSink struct {
	pub   Publisher
	queue string
	close func() error
}

// NewAMQPSink dials RabbitMQ and declares the durable queue.
func NewAMQPSink(cfg AMQPConfig) (*AMQPSink, error) {
	if cfg.URL == "" {
		return nil, eris.New("sink: amqp url is required")
	}
	queue := cfg.Queue
	if queue == "" {
		queue = DefaultQueue
	}
	conn, err := amqp.Dial(cfg.URL)
	if err != nil {
		return nil, eris.Wrap(err, "sink: amqp dial")
	}
	ch, err := conn.Channel()
	if err != nil {
		conn.Close() //nolint:errcheck
		return nil, eris.Wrap(err, "sink: amqp channel")
	}
	if _, err := ch.QueueDeclare(queue, true, false, false, false, nil); err != nil {
		ch.Close()   //nolint:errcheck
		conn.Close() //nolint:errcheck
		return nil, eris.Wrapf(err, "sink: declare queue %s", queue)
	}
	return &AMQPSink{
		pub:   ch,
		queue: queue,
		close: func() error {
			_ = ch.Close()
			return conn.Close()
		},
	}, nil
}

// NewAMQPSinkWithPublisher wraps an existing publisher.
func NewAMQPSinkWithPublisher(pub Publisher, queue string) *AMQPSink {
	if queue == "" {
		queue = DefaultQueue
	}
	return &AMQPSink{pub: pub, queue: queue}
}

// Accept publishes rec as a persistent message.
func (a *AMQPSink) Accept(ctx context.Context, rec Record) error {
	body, err := Body(rec)
	if err != nil {
		return err
	}
	err = a.pub.PublishWithContext(ctx, "", a.queue, false, false, amqp.Publishing{
		ContentType:  "application/json",
		DeliveryMode: amqp.Persistent,
		MessageId:    rec.RunID,
		Timestamp:    time.Now().UTC(),
		Body:         body,
	})
	if err != nil {
		return eris.Wrapf(err, "sink: publish run %s", rec.RunID)
	}
	return nil
}

// Close closes the channel and connection.
func (a *AMQPSink) Close() error {
	if a.close == nil {
		return nil
	}
	return a.close()
}
