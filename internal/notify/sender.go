package notify

import (
	"context"

	"go.uber.org/zap"
)

// Channel identifies a delivery medium.
type Channel string

const (
	ChannelEmail Channel = "email"
	ChannelPush  Channel = "push"
	ChannelSMS   Channel = "sms"
	ChannelInApp Channel = "in_app"
)

// Sender delivers one rendered notification over one channel. Template
// rendering happens on the sender's side; the engine passes a template key
// plus structured data. Implementations must tolerate redelivery: the queue
// guarantees at-least-once.
type Sender interface {
	Send(ctx context.Context, channel Channel, recipient, templateKey string, data map[string]any) error
}

// LogSender is the development sender: it records deliveries instead of
// talking to a provider.
type LogSender struct {
	logger *zap.Logger
}

// NewLogSender builds the sender.
func NewLogSender(logger *zap.Logger) *LogSender {
	return &LogSender{logger: logger}
}

// Send logs the delivery and succeeds.
func (s *LogSender) Send(ctx context.Context, channel Channel, recipient, templateKey string, data map[string]any) error {
	s.logger.Info("notification delivered",
		zap.String("channel", string(channel)),
		zap.String("recipient", recipient),
		zap.String("template", templateKey),
		zap.Any("data", data))
	return nil
}
