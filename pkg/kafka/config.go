package kafka

import (
	"context"
	"crypto/tls"
	"errors"
	"fmt"
	"time"

	kafkago "github.com/segmentio/kafka-go"
	"github.com/segmentio/kafka-go/sasl"
	"github.com/segmentio/kafka-go/sasl/plain"
	"github.com/segmentio/kafka-go/sasl/scram"
)

// Config holds Kafka connection parameters.
type Config struct {
	ConsumerGroup string

	// SASLMechanism is "PLAIN", "SCRAM-SHA-256" or "SCRAM-SHA-512".
	SASLMechanism string
	SASLUsername  string
	SASLPassword  string

	Brokers []string

	TLS         bool
	SASLEnabled bool
}

func (c Config) tlsConfig() *tls.Config {
	if !c.TLS {
		return nil
	}
	return &tls.Config{MinVersion: tls.VersionTLS12}
}

func (c Config) saslMechanism() (sasl.Mechanism, error) {
	if !c.SASLEnabled {
		return nil, nil
	}
	switch c.SASLMechanism {
	case "PLAIN", "":
		return plain.Mechanism{Username: c.SASLUsername, Password: c.SASLPassword}, nil
	case "SCRAM-SHA-256":
		return scram.Mechanism(scram.SHA256, c.SASLUsername, c.SASLPassword)
	case "SCRAM-SHA-512":
		return scram.Mechanism(scram.SHA512, c.SASLUsername, c.SASLPassword)
	default:
		return nil, fmt.Errorf("unsupported SASL mechanism %q", c.SASLMechanism)
	}
}

// dialer is used by readers.
func (c Config) dialer() (*kafkago.Dialer, error) {
	mechanism, err := c.saslMechanism()
	if err != nil {
		return nil, err
	}
	return &kafkago.Dialer{
		Timeout:       10 * time.Second,
		DualStack:     true,
		TLS:           c.tlsConfig(),
		SASLMechanism: mechanism,
	}, nil
}

// transport is used by writers.
func (c Config) transport() (*kafkago.Transport, error) {
	mechanism, err := c.saslMechanism()
	if err != nil {
		return nil, err
	}
	return &kafkago.Transport{
		TLS:  c.tlsConfig(),
		SASL: mechanism,
	}, nil
}

// Ping dials the first reachable broker.
func Ping(ctx context.Context, cfg Config) error {
	if len(cfg.Brokers) == 0 {
		return errors.New("no kafka brokers configured")
	}
	d, err := cfg.dialer()
	if err != nil {
		return err
	}
	var lastErr error
	for _, broker := range cfg.Brokers {
		conn, err := d.DialContext(ctx, "tcp", broker)
		if err != nil {
			lastErr = err
			continue
		}
		return conn.Close()
	}
	return fmt.Errorf("no kafka broker reachable: %w", lastErr)
}
