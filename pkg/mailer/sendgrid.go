package mailer

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/sendgrid/sendgrid-go"
	"github.com/sendgrid/sendgrid-go/helpers/mail"
	"github.com/sethvargo/go-retry"

	"github.com/stonebridge-contracting/stonebridge-backend/pkg/config"
	"github.com/stonebridge-contracting/stonebridge-backend/pkg/logger"
)

// Sender delivers transactional email. Delivery is best-effort everywhere it
// is consumed; callers log failures and move on.
type Sender interface {
	Send(ctx context.Context, toAddress, subject, body string) error
}

type sendgridSender struct {
	client     *sendgrid.Client
	from       *mail.Email
	maxRetries uint64
	logg       *logger.Logger
}

// NewSendgridSender wires SendGrid from configuration.
func NewSendgridSender(cfg config.SendgridConfig, logg *logger.Logger) (Sender, error) {
	apiKey := strings.TrimSpace(cfg.APIKey)
	if apiKey == "" {
		return nil, errors.New("sendgrid api key is required")
	}
	if strings.TrimSpace(cfg.DefaultFrom) == "" {
		return nil, errors.New("sendgrid from email is required")
	}
	maxRetries := cfg.MaxRetries
	if maxRetries < 0 {
		maxRetries = 0
	}
	return &sendgridSender{
		client:     sendgrid.NewSendClient(apiKey),
		from:       mail.NewEmail(cfg.FromName, cfg.DefaultFrom),
		maxRetries: uint64(maxRetries),
		logg:       logg,
	}, nil
}

func (s *sendgridSender) Send(ctx context.Context, toAddress, subject, body string) error {
	if strings.TrimSpace(toAddress) == "" {
		return errors.New("recipient address is required")
	}

	message := mail.NewSingleEmail(s.from, subject, mail.NewEmail("", toAddress), body, body)

	backoff := retry.WithMaxRetries(s.maxRetries, retry.NewExponential(500*time.Millisecond))
	return retry.Do(ctx, backoff, func(ctx context.Context) error {
		resp, err := s.client.SendWithContext(ctx, message)
		if err != nil {
			return retry.RetryableError(err)
		}
		if resp.StatusCode >= http.StatusInternalServerError {
			return retry.RetryableError(fmt.Errorf("sendgrid responded %d", resp.StatusCode))
		}
		if resp.StatusCode >= http.StatusBadRequest {
			return fmt.Errorf("sendgrid rejected message: %d", resp.StatusCode)
		}
		return nil
	})
}
