package payments

import (
	"context"
	"math"

	stripe "github.com/stripe/stripe-go/v82"
	"github.com/stripe/stripe-go/v82/paymentintent"
)

// IntentCreator produces a client secret the payer's client uses to
// authorize a card charge. Creating an intent has no storage side
// effects.
type IntentCreator interface {
	CreateIntent(ctx context.Context, amountMinorUnits int64, currency string) (string, error)
}

type StripeProvider struct{}

func NewStripeProvider(secretKey string) *StripeProvider {
	stripe.Key = secretKey
	return &StripeProvider{}
}

func (p *StripeProvider) CreateIntent(ctx context.Context, amountMinorUnits int64, currency string) (string, error) {
	params := &stripe.PaymentIntentParams{
		Amount:             stripe.Int64(amountMinorUnits),
		Currency:           stripe.String(currency),
		PaymentMethodTypes: stripe.StringSlice([]string{"card"}),
	}
	params.Context = ctx
	intent, err := paymentintent.New(params)
	if err != nil {
		return "", err
	}
	return intent.ClientSecret, nil
}

// AmountMinorUnits converts a decimal price into the smallest currency
// unit, e.g. 49.99 -> 4999.
func AmountMinorUnits(price float64) int64 {
	return int64(math.Round(price * 100))
}
