// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 MentorHub Contributors

package mail

import (
	"context"
	"crypto/tls"
	"encoding/json"
	"time"

	"github.com/samber/oops"
	"github.com/segmentio/kafka-go"
	"github.com/segmentio/kafka-go/sasl/plain"

	"github.com/mentorhub/mentorhub/internal/auth"
)

// EventVerificationRequested is the type of events the KafkaPublisher emits.
const EventVerificationRequested = "verification_requested"

// VerificationRequested is the JSON payload published for a mail worker.
// It carries a live token, so the topic must be private to the platform.
type VerificationRequested struct {
	Type       string    `json:"type"`
	Email      string    `json:"email"`
	FullName   string    `json:"full_name"`
	Token      string    `json:"token"`
	VerifyURL  string    `json:"verify_url"`
	ExpiresAt  time.Time `json:"expires_at"`
	OccurredAt time.Time `json:"occurred_at"`
}

// KafkaOptions configures a KafkaPublisher.
type KafkaOptions struct {
	Brokers  []string
	Topic    string
	Username string
	Password string
	TLS      bool
}

// messageWriter is the part of *kafka.Writer the publisher drives.
type messageWriter interface {
	WriteMessages(ctx context.Context, msgs ...kafka.Message) error
	Close() error
}

// KafkaPublisher hands verification emails to an out-of-process mail
// worker. Writes are synchronous and wait for all in-sync replicas, so a nil
// error means the event is durable.
type KafkaPublisher struct {
	writer messageWriter
	topic  string
	links  LinkBuilder
	now    func() time.Time
}

// NewKafkaPublisher creates a KafkaPublisher. Username enables SASL/PLAIN.
func NewKafkaPublisher(opts KafkaOptions, links LinkBuilder) (*KafkaPublisher, error) {
	if len(opts.Brokers) == 0 || opts.Topic == "" {
		return nil, oops.Code("MAIL_CONFIG_INVALID").Errorf("kafka brokers and topic are required")
	}

	transport := &kafka.Transport{}
	if opts.Username != "" {
		transport.SASL = plain.Mechanism{Username: opts.Username, Password: opts.Password}
	}
	if opts.TLS {
		transport.TLS = &tls.Config{MinVersion: tls.VersionTLS12}
	}

	w := &kafka.Writer{
		Addr:         kafka.TCP(opts.Brokers...),
		Topic:        opts.Topic,
		Balancer:     &kafka.Hash{},
		RequiredAcks: kafka.RequireAll,
		Async:        false,
		Transport:    transport,
		WriteTimeout: 10 * time.Second,
	}
	return newKafkaPublisher(w, opts.Topic, links), nil
}

func newKafkaPublisher(w messageWriter, topic string, links LinkBuilder) *KafkaPublisher {
	return &KafkaPublisher{writer: w, topic: topic, links: links, now: time.Now}
}

// SendVerification publishes a verification_requested event keyed by the
// recipient, so one user's events stay ordered on a partition.
func (p *KafkaPublisher) SendVerification(ctx context.Context, msg auth.VerificationMessage) error {
	now := p.now().UTC()
	value, err := json.Marshal(VerificationRequested{
		Type:       EventVerificationRequested,
		Email:      msg.To,
		FullName:   msg.FullName,
		Token:      msg.Token,
		VerifyURL:  p.links.VerifyLink(msg.Token),
		ExpiresAt:  msg.ExpiresAt.UTC(),
		OccurredAt: now,
	})
	if err != nil {
		return oops.Code("MAIL_ENCODE_FAILED").Wrap(err)
	}

	err = p.writer.WriteMessages(ctx, kafka.Message{
		Key:   []byte(msg.To),
		Value: value,
		Time:  now,
		Headers: []kafka.Header{
			{Key: "event_type", Value: []byte(EventVerificationRequested)},
		},
	})
	if err != nil {
		return oops.Code("MAIL_PUBLISH_FAILED").With("topic", p.topic).Wrap(err)
	}
	return nil
}

// Close flushes and closes the writer.
func (p *KafkaPublisher) Close() error {
	if err := p.writer.Close(); err != nil {
		return oops.Code("MAIL_CLOSE_FAILED").With("topic", p.topic).Wrap(err)
	}
	return nil
}
