package provider

import (
	"context"

	"go.uber.org/zap"
)

// LogSender writes messages to the log instead of delivering them.
// Used in development.
type LogSender struct {
	logger *zap.Logger
}

func NewLogSender(logger *zap.Logger) *LogSender {
	return &LogSender{logger: logger}
}

func (s *LogSender) Send(_ context.Context, msg *Message) (*SendResponse, error) {
	names := make([]string, 0, len(msg.Attachments))
	for _, a := range msg.Attachments {
		names = append(names, a.FileName)
	}
	s.logger.Info("notification delivered to log",
		zap.String("notification_id", msg.NotificationID),
		zap.String("kind", string(msg.Kind)),
		zap.String("to", msg.To),
		zap.String("subject", msg.Subject),
		zap.Strings("attachments", names),
	)
	return &SendResponse{MessageID: "log-" + msg.NotificationID, Status: "logged"}, nil
}

var _ Sender = (*LogSender)(nil)
