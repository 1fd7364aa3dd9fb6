package stripewebhook

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"testing"

	"github.com/stripe/stripe-go/v84"

	"github.com/stonebridge-contracting/stonebridge-backend/internal/acceptance"
	"github.com/stonebridge-contracting/stonebridge-backend/pkg/logger"
)

type stubConfirmer struct {
	refs   []string
	result *acceptance.ConfirmationResult
	err    error
}

func (s *stubConfirmer) ConfirmPayment(ctx context.Context, ref, source string) (*acceptance.ConfirmationResult, error) {
	s.refs = append(s.refs, ref)
	if s.err != nil {
		return nil, s.err
	}
	if s.result != nil {
		return s.result, nil
	}
	return &acceptance.ConfirmationResult{}, nil
}

func quietLogger() *logger.Logger {
	return logger.New(logger.Options{ServiceName: "test", Output: io.Discard})
}

func paymentIntentEvent(t *testing.T, eventType stripe.EventType, id string) *stripe.Event {
	t.Helper()
	raw, err := json.Marshal(&stripe.PaymentIntent{ID: id})
	if err != nil {
		t.Fatalf("marshal intent: %v", err)
	}
	return &stripe.Event{
		Type: eventType,
		Data: &stripe.EventData{Raw: raw},
	}
}

func TestHandleEventConfirmsSucceededIntent(t *testing.T) {
	confirmer := &stubConfirmer{}
	svc, err := NewService(confirmer, quietLogger())
	if err != nil {
		t.Fatalf("setup service: %v", err)
	}

	event := paymentIntentEvent(t, stripe.EventTypePaymentIntentSucceeded, "pi_123")
	if err := svc.HandleEvent(context.Background(), event); err != nil {
		t.Fatalf("handle event: %v", err)
	}
	if len(confirmer.refs) != 1 || confirmer.refs[0] != "pi_123" {
		t.Fatalf("expected confirmation for pi_123, got %v", confirmer.refs)
	}
}

func TestHandleEventPropagatesConfirmationError(t *testing.T) {
	confirmer := &stubConfirmer{err: errors.New("db down")}
	svc, err := NewService(confirmer, quietLogger())
	if err != nil {
		t.Fatalf("setup service: %v", err)
	}

	event := paymentIntentEvent(t, stripe.EventTypePaymentIntentSucceeded, "pi_123")
	if err := svc.HandleEvent(context.Background(), event); err == nil {
		t.Fatal("expected confirmation error to surface so the processor retries")
	}
}

func TestHandleEventIgnoresUnrelatedEvents(t *testing.T) {
	confirmer := &stubConfirmer{}
	svc, err := NewService(confirmer, quietLogger())
	if err != nil {
		t.Fatalf("setup service: %v", err)
	}

	event := paymentIntentEvent(t, stripe.EventTypeCustomerCreated, "cus_123")
	if err := svc.HandleEvent(context.Background(), event); err != nil {
		t.Fatalf("unrelated event must be acknowledged: %v", err)
	}
	if len(confirmer.refs) != 0 {
		t.Fatal("unrelated event must not trigger confirmation")
	}
}

func TestHandleEventRejectsMissingData(t *testing.T) {
	svc, err := NewService(&stubConfirmer{}, quietLogger())
	if err != nil {
		t.Fatalf("setup service: %v", err)
	}
	if err := svc.HandleEvent(context.Background(), &stripe.Event{}); err == nil {
		t.Fatal("expected validation error for event without data")
	}
}
