package provider

import (
	"bytes"
	"context"
	"fmt"
	"io"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/ses"
	"github.com/aws/aws-sdk-go-v2/service/ses/types"
	"go.uber.org/zap"
	"gopkg.in/gomail.v2"
)

// SESAPI is the subset of the SES client used by SESSender.
type SESAPI interface {
	SendRawEmail(ctx context.Context, params *ses.SendRawEmailInput, optFns ...func(*ses.Options)) (*ses.SendRawEmailOutput, error)
}

// SESSender delivers email through Amazon SES. Messages are built as raw
// MIME so attachments can be included.
type SESSender struct {
	client SESAPI
	from   string
	logger *zap.Logger
}

// NewSESSender loads AWS credentials from the default chain.
func NewSESSender(ctx context.Context, region, from string, logger *zap.Logger) (*SESSender, error) {
	awsCfg, err := config.LoadDefaultConfig(ctx, config.WithRegion(region))
	if err != nil {
		return nil, fmt.Errorf("failed to load default AWS config: %w", err)
	}
	return NewSESSenderWithClient(ses.NewFromConfig(awsCfg), from, logger), nil
}

func NewSESSenderWithClient(client SESAPI, from string, logger *zap.Logger) *SESSender {
	return &SESSender{client: client, from: from, logger: logger}
}

func (s *SESSender) Send(ctx context.Context, msg *Message) (*SendResponse, error) {
	raw, err := BuildMIME(s.from, msg)
	if err != nil {
		return nil, err
	}

	out, err := s.client.SendRawEmail(ctx, &ses.SendRawEmailInput{
		Source:       aws.String(s.from),
		Destinations: []string{msg.To},
		RawMessage:   &types.RawMessage{Data: raw},
	})
	if err != nil {
		return nil, fmt.Errorf("ses send raw email: %w", err)
	}

	id := aws.ToString(out.MessageId)
	s.logger.Debug("ses message accepted",
		zap.String("notification_id", msg.NotificationID),
		zap.String("ses_message_id", id),
	)
	return &SendResponse{MessageID: id, Status: "accepted"}, nil
}

// BuildMIME renders msg as a multipart MIME email.
func BuildMIME(from string, msg *Message) ([]byte, error) {
	m := gomail.NewMessage()
	m.SetHeader("From", from)
	m.SetHeader("To", msg.To)
	m.SetHeader("Subject", msg.Subject)
	m.SetHeader("X-Notification-ID", msg.NotificationID)
	m.SetBody("text/html", msg.HTMLBody)

	for _, a := range msg.Attachments {
		data := a.Data
		m.Attach(a.FileName,
			gomail.SetCopyFunc(func(w io.Writer) error {
				_, err := w.Write(data)
				return err
			}),
			gomail.SetHeader(map[string][]string{"Content-Type": {a.ContentType}}),
		)
	}

	var buf bytes.Buffer
	if _, err := m.WriteTo(&buf); err != nil {
		return nil, fmt.Errorf("build mime message: %w", err)
	}
	return buf.Bytes(), nil
}

var _ Sender = (*SESSender)(nil)
