package stripewebhook

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/stripe/stripe-go/v84"

	"github.com/stonebridge-contracting/stonebridge-backend/internal/acceptance"
	pkgerrors "github.com/stonebridge-contracting/stonebridge-backend/pkg/errors"
	"github.com/stonebridge-contracting/stonebridge-backend/pkg/logger"
)

// webhookSource labels confirmations arriving through the processor callback.
const webhookSource = "webhook"

type paymentConfirmer interface {
	ConfirmPayment(ctx context.Context, externalPaymentReference, source string) (*acceptance.ConfirmationResult, error)
}

// Service translates processor events into payment confirmations. Events that
// do not concern the quote pipeline are acknowledged without action so the
// processor stops retrying them.
type Service struct {
	confirmer paymentConfirmer
	logg      *logger.Logger
}

func NewService(confirmer paymentConfirmer, logg *logger.Logger) (*Service, error) {
	if confirmer == nil {
		return nil, pkgerrors.New(pkgerrors.CodeInternal, "payment confirmer required")
	}
	if logg == nil {
		return nil, pkgerrors.New(pkgerrors.CodeInternal, "logger required")
	}
	return &Service{confirmer: confirmer, logg: logg}, nil
}

func (s *Service) HandleEvent(ctx context.Context, event *stripe.Event) error {
	if event == nil || event.Data == nil {
		return pkgerrors.New(pkgerrors.CodeValidation, "stripe event data required")
	}

	switch event.Type {
	case stripe.EventTypePaymentIntentSucceeded:
		var intent stripe.PaymentIntent
		if err := json.Unmarshal(event.Data.Raw, &intent); err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "decode payment intent event")
		}
		if intent.ID == "" {
			return pkgerrors.New(pkgerrors.CodeValidation, "payment intent id missing")
		}
		result, err := s.confirmer.ConfirmPayment(ctx, intent.ID, webhookSource)
		if err != nil {
			return err
		}
		if result.Duplicate {
			s.logg.Info(ctx, fmt.Sprintf("payment intent %s already confirmed", intent.ID))
		}
		return nil
	case stripe.EventTypePaymentIntentPaymentFailed:
		ref := event.GetObjectValue("id")
		if ref != "" {
			s.logg.Warn(logCtx(ctx, s.logg, ref), "payment intent failed at processor")
		}
		return nil
	default:
		return nil
	}
}

func logCtx(ctx context.Context, logg *logger.Logger, ref string) context.Context {
	if logg == nil {
		return ctx
	}
	return logg.WithPaymentReference(ctx, ref)
}
