package billing

import (
	"context"
	"errors"
	"fmt"
	"net/http"

	"github.com/stripe/stripe-go/v79"
	"github.com/stripe/stripe-go/v79/customer"
	"github.com/stripe/stripe-go/v79/paymentintent"
)

// StripeCharger charges renewals off-session against the customer's default
// payment method.
type StripeCharger struct{}

// NewStripeCharger creates a Stripe-backed Charger.
//
// The secretKey is used to authenticate Stripe API calls.
func NewStripeCharger(secretKey string) *StripeCharger {
	stripe.Key = secretKey
	return &StripeCharger{}
}

// Charge creates and confirms a PaymentIntent for the renewal amount.
func (c *StripeCharger) Charge(ctx context.Context, p ChargeParams) error {
	if p.CustomerID == "" {
		return &ProviderError{Kind: ErrInsufficientFunds, Message: "no billing customer on file"}
	}

	custParams := &stripe.CustomerParams{}
	custParams.Context = ctx
	cust, err := customer.Get(p.CustomerID, custParams)
	if err != nil {
		return mapStripeError("stripe get customer", err)
	}

	paymentMethod := ""
	if cust.InvoiceSettings != nil && cust.InvoiceSettings.DefaultPaymentMethod != nil {
		paymentMethod = cust.InvoiceSettings.DefaultPaymentMethod.ID
	}
	if paymentMethod == "" {
		return &ProviderError{Kind: ErrInsufficientFunds, Message: "no default payment method on file"}
	}

	params := &stripe.PaymentIntentParams{
		Amount:        stripe.Int64(p.Amount),
		Currency:      stripe.String(p.Currency),
		Customer:      stripe.String(p.CustomerID),
		PaymentMethod: stripe.String(paymentMethod),
		Description:   stripe.String(p.Description),
		Confirm:       stripe.Bool(true),
		OffSession:    stripe.Bool(true),
	}
	params.Context = ctx
	if p.IdempotencyKey != "" {
		params.SetIdempotencyKey(p.IdempotencyKey)
	}

	pi, err := paymentintent.New(params)
	if err != nil {
		return mapStripeError("stripe create payment intent", err)
	}
	if pi.Status != stripe.PaymentIntentStatusSucceeded {
		return &ProviderError{
			Kind:    ErrInsufficientFunds,
			Message: fmt.Sprintf("payment intent ended in status %s", pi.Status),
		}
	}
	return nil
}

// mapStripeError classifies Stripe API errors into billing error kinds.
func mapStripeError(op string, err error) error {
	var se *stripe.Error
	if !errors.As(err, &se) {
		return fmt.Errorf("%s: %w", op, err)
	}

	switch {
	case se.HTTPStatusCode == http.StatusUnauthorized || se.HTTPStatusCode == http.StatusForbidden:
		return &ProviderError{Kind: ErrAuthentication, Message: se.Msg, Err: err}
	case se.Type == stripe.ErrorTypeCard || se.HTTPStatusCode == http.StatusPaymentRequired:
		return &ProviderError{Kind: ErrInsufficientFunds, Message: se.Msg, Err: err}
	default:
		return fmt.Errorf("%s: %w", op, err)
	}
}
