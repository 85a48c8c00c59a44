package lark

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/sony/gobreaker"
	"go.uber.org/zap"
)

// ErrUnavailable is returned while the circuit breaker is open
var ErrUnavailable = errors.New("lark messaging unavailable")

// Messenger sends text messages through a circuit breaker so a failing
// Lark endpoint is not hammered by every notification
type Messenger struct {
	sender        MessageSender
	receiveIDType string
	breaker       *gobreaker.CircuitBreaker
	logger        *zap.Logger
}

// NewMessenger creates a messenger on top of a sender
func NewMessenger(sender MessageSender, cfg Config, logger *zap.Logger) *Messenger {
	receiveIDType := cfg.ReceiveIDType
	if receiveIDType == "" {
		receiveIDType = "user_id"
	}
	failureLimit := cfg.BreakerFailureLimit
	if failureLimit == 0 {
		failureLimit = 5
	}

	m := &Messenger{
		sender:        sender,
		receiveIDType: receiveIDType,
		logger:        logger,
	}
	m.breaker = gobreaker.NewCircuitBreaker(gobreaker.Settings{
		Name:        "lark-im",
		MaxRequests: cfg.BreakerMaxRequests,
		Interval:    cfg.BreakerInterval,
		Timeout:     cfg.BreakerTimeout,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= failureLimit
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			logger.Warn("Circuit breaker state changed",
				zap.String("breaker", name),
				zap.String("from", from.String()),
				zap.String("to", to.String()))
		},
	})
	return m
}

// SendText sends a plain text message to a user
func (m *Messenger) SendText(ctx context.Context, userID, text string) error {
	if userID == "" {
		return fmt.Errorf("user id cannot be empty")
	}
	if text == "" {
		return fmt.Errorf("content cannot be empty")
	}

	content, err := json.Marshal(map[string]string{"text": text})
	if err != nil {
		return fmt.Errorf("failed to marshal text content: %w", err)
	}

	result, err := m.breaker.Execute(func() (interface{}, error) {
		return m.sender.Send(ctx, m.receiveIDType, userID, "text", string(content))
	})
	if errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests) {
		return fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	if err != nil {
		m.logger.Error("Failed to send message", zap.String("receive_id", userID), zap.Error(err))
		return err
	}

	m.logger.Debug("Message sent",
		zap.String("receive_id", userID),
		zap.String("message_id", result.(string)))
	return nil
}

// State reports the breaker state
func (m *Messenger) State() gobreaker.State {
	return m.breaker.State()
}
