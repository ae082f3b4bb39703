// Package stripe adapts the Stripe refund API to the gateway port.
package stripe

import (
	"context"
	"fmt"

	stripego "github.com/stripe/stripe-go/v83"
	"github.com/stripe/stripe-go/v83/refund"

	"github.com/taskilo/storno-service/internal/domain/gateway"
)

var _ gateway.Provider = (*Gateway)(nil)

type Gateway struct {
	refunds refund.Client
}

func NewGateway(apiKey string) *Gateway {
	return &Gateway{
		refunds: refund.Client{
			B:   stripego.NewBackends(nil).API,
			Key: apiKey,
		},
	}
}

// Refund executes a refund against the original payment intent. The
// idempotency key makes retries safe: Stripe replays the first outcome
// instead of moving money twice.
func (g *Gateway) Refund(ctx context.Context, req gateway.RefundRequest) (gateway.RefundResult, error) {
	params := &stripego.RefundParams{
		PaymentIntent: stripego.String(req.TransactionReference),
		Amount:        stripego.Int64(req.Amount),
		Reason:        stripego.String(string(stripego.RefundReasonRequestedByCustomer)),
	}
	params.Context = ctx
	params.SetIdempotencyKey(req.IdempotencyKey)
	for k, v := range req.Metadata {
		params.AddMetadata(k, v)
	}

	res, err := g.refunds.New(params)
	if err != nil {
		return gateway.RefundResult{}, fmt.Errorf("stripe refund: %w", err)
	}

	return gateway.RefundResult{
		RefundID: res.ID,
		Status:   mapStatus(res.Status),
	}, nil
}

func mapStatus(s stripego.RefundStatus) gateway.RefundStatus {
	switch s {
	case stripego.RefundStatusSucceeded:
		return gateway.RefundStatusSucceeded
	case stripego.RefundStatusPending, stripego.RefundStatusRequiresAction:
		return gateway.RefundStatusPending
	default:
		return gateway.RefundStatusFailed
	}
}
