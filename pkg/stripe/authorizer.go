package stripe

import (
	"context"
	"time"

	"github.com/stripe/stripe-go/v84"
	"github.com/stripe/stripe-go/v84/paymentintent"
)

const defaultRequestTimeout = 15 * time.Second

// Authorization is the processor-side view of a payment authorization.
type Authorization struct {
	ID           string
	ClientSecret string
	Status       stripe.PaymentIntentStatus
	AmountCents  int64
	Currency     string
	Metadata     map[string]string
}

// Settled reports whether the processor considers the authorization captured.
func (a *Authorization) Settled() bool {
	return a != nil && a.Status == stripe.PaymentIntentStatusSucceeded
}

// Authorizer is the payment-processor capability consumed by the acceptance
// coordinator. Calls carry a bounded timeout so confirmation handling can
// never hang a request.
type Authorizer interface {
	CreateAuthorization(ctx context.Context, amountCents int64, currency string, metadata map[string]string) (*Authorization, error)
	RetrieveAuthorization(ctx context.Context, id string) (*Authorization, error)
}

type paymentIntentAuthorizer struct {
	timeout time.Duration
}

// NewAuthorizer exposes payment intents as the authorization surface.
func NewAuthorizer(client *Client) Authorizer {
	if client == nil {
		return nil
	}
	timeout := client.cfg.RequestTimeout
	if timeout <= 0 {
		timeout = defaultRequestTimeout
	}
	return &paymentIntentAuthorizer{timeout: timeout}
}

func (a *paymentIntentAuthorizer) CreateAuthorization(ctx context.Context, amountCents int64, currency string, metadata map[string]string) (*Authorization, error) {
	ctx, cancel := context.WithTimeout(ctx, a.timeout)
	defer cancel()

	params := &stripe.PaymentIntentParams{
		Amount:   stripe.Int64(amountCents),
		Currency: stripe.String(currency),
		AutomaticPaymentMethods: &stripe.PaymentIntentAutomaticPaymentMethodsParams{
			Enabled: stripe.Bool(true),
		},
	}
	params.Context = ctx
	for key, value := range metadata {
		params.AddMetadata(key, value)
	}

	intent, err := paymentintent.New(params)
	if err != nil {
		return nil, err
	}
	return fromPaymentIntent(intent), nil
}

func (a *paymentIntentAuthorizer) RetrieveAuthorization(ctx context.Context, id string) (*Authorization, error) {
	ctx, cancel := context.WithTimeout(ctx, a.timeout)
	defer cancel()

	params := &stripe.PaymentIntentParams{}
	params.Context = ctx

	intent, err := paymentintent.Get(id, params)
	if err != nil {
		return nil, err
	}
	return fromPaymentIntent(intent), nil
}

func fromPaymentIntent(intent *stripe.PaymentIntent) *Authorization {
	if intent == nil {
		return nil
	}
	return &Authorization{
		ID:           intent.ID,
		ClientSecret: intent.ClientSecret,
		Status:       intent.Status,
		AmountCents:  intent.Amount,
		Currency:     string(intent.Currency),
		Metadata:     intent.Metadata,
	}
}
