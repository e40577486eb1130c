package kafka

import (
	"context"
	"strings"
	"time"

	"github.com/segmentio/kafka-go"
)

type Writer = kafka.Writer

// NewWriter cria um writer sem tópico fixo: cada mensagem informa o seu.
// Isso permite que o dispatcher do outbox use um único writer para todos os tópicos.
func NewWriter(brokers string) *kafka.Writer {
	return &kafka.Writer{
		Addr:                   kafka.TCP(strings.Split(brokers, ",")...),
		Balancer:               &kafka.Hash{}, // mesma chave (betId) -> mesma partição
		RequiredAcks:           kafka.RequireAll,
		MaxAttempts:            3,
		BatchTimeout:           50 * time.Millisecond,
		AllowAutoTopicCreation: true,
	}
}

// Publisher adapta o writer para publicação por tópico
type Publisher struct {
	w *kafka.Writer
}

func NewPublisher(w *kafka.Writer) *Publisher { return &Publisher{w: w} }

// Publish envia uma mensagem JSON para o tópico informado
func (p *Publisher) Publish(ctx context.Context, topic, key string, payload []byte) error {
	return WriteJSON(ctx, p.w, topic, key, payload)
}

// helper pra enviar mensagem simples
func WriteJSON(ctx context.Context, w *kafka.Writer, topic, key string, payload []byte) error {
	msg := kafka.Message{
		Topic: topic,
		Key:   []byte(key),
		Value: payload,
		Time:  time.Now(),
	}

	return w.WriteMessages(ctx, msg)
}
