package mailer

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"go.uber.org/zap"

	"github.com/noah-isme/teacher-transfer-api/pkg/config"
)

// ErrInvalidMessage is returned for messages without a recipient or subject.
var ErrInvalidMessage = errors.New("mailer: invalid message")

// Message is a single outbound notification.
type Message struct {
	EventID string `json:"eventId,omitempty"`
	Kind    string `json:"kind,omitempty"`
	To      string `json:"to"`
	Subject string `json:"subject"`
	Body    string `json:"body"`
}

func (m Message) validate() error {
	if strings.TrimSpace(m.To) == "" || strings.TrimSpace(m.Subject) == "" {
		return ErrInvalidMessage
	}
	return nil
}

// Sender delivers one message. Implementations must honour ctx cancellation.
type Sender interface {
	Send(ctx context.Context, msg Message) error
}

// Gateway is a Sender that owns resources released on Close.
type Gateway interface {
	Sender
	Close() error
}

// New selects a gateway implementation from configuration.
func New(cfg config.NotificationConfig, logger *zap.Logger) (Gateway, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	switch cfg.Driver {
	case "", config.NotificationDriverLog:
		return NewLogSender(logger), nil
	case config.NotificationDriverSMTP:
		return NewSMTPSender(cfg.SMTP), nil
	case config.NotificationDriverAMQP:
		return DialAMQP(cfg.AMQP, logger)
	default:
		return nil, fmt.Errorf("mailer: unknown driver %q", cfg.Driver)
	}
}

// LogSender writes messages to the logger instead of delivering them.
type LogSender struct {
	logger *zap.Logger
}

func NewLogSender(logger *zap.Logger) *LogSender {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &LogSender{logger: logger}
}

func (s *LogSender) Send(ctx context.Context, msg Message) error {
	if err := msg.validate(); err != nil {
		return err
	}
	if err := ctx.Err(); err != nil {
		return err
	}
	s.logger.Info("notification",
		zap.String("event_id", msg.EventID),
		zap.String("kind", msg.Kind),
		zap.String("to", msg.To),
		zap.String("subject", msg.Subject),
	)
	return nil
}

func (s *LogSender) Close() error { return nil }
