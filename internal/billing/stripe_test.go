package billing

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/stripe/stripe-go/v79"
)

func TestMapStripeError(t *testing.T) {
	t.Run("authentication", func(t *testing.T) {
		err := mapStripeError("op", &stripe.Error{HTTPStatusCode: 401, Msg: "Invalid API Key provided: sk_test_****"})
		require.ErrorIs(t, err, ErrAuthentication)

		var pe *ProviderError
		require.True(t, errors.As(err, &pe))
		assert.Equal(t, "Invalid API Key provided: sk_test_****", pe.Message)
	})

	t.Run("card declined", func(t *testing.T) {
		err := mapStripeError("op", &stripe.Error{HTTPStatusCode: 402, Type: stripe.ErrorTypeCard, Msg: "Your card has insufficient funds."})
		assert.ErrorIs(t, err, ErrInsufficientFunds)
	})

	t.Run("other api error", func(t *testing.T) {
		err := mapStripeError("op", &stripe.Error{HTTPStatusCode: 500, Type: stripe.ErrorTypeAPI, Msg: "boom"})
		assert.False(t, errors.Is(err, ErrAuthentication))
		assert.False(t, errors.Is(err, ErrInsufficientFunds))
	})

	t.Run("non stripe error", func(t *testing.T) {
		base := errors.New("dial tcp: timeout")
		err := mapStripeError("op", base)
		assert.ErrorIs(t, err, base)
	})
}

func TestStripeCharger_MissingCustomerIsDeclined(t *testing.T) {
	c := &StripeCharger{}
	err := c.Charge(context.Background(), ChargeParams{Amount: 100, Currency: "usd"})
	assert.ErrorIs(t, err, ErrInsufficientFunds)
}
