package opensearch

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/opensearch-project/opensearch-go"

	"github.com/taskilo/storno-service/internal/domain/storno"
)

var _ storno.DecisionSink = (*DecisionSink)(nil)

// DecisionSink writes an audit document for every resolved storno request,
// so support can answer "who decided this and why" without touching the
// transactional store.
type DecisionSink struct {
	client *opensearch.Client
	index  string
}

func NewDecisionSink(ctx context.Context, urls []string, index string) (*DecisionSink, error) {
	if len(urls) == 0 {
		return nil, errors.New("no OpenSearch addresses configured")
	}

	cfg := opensearch.Config{
		Addresses: urls,
		Transport: &http.Transport{
			MaxIdleConnsPerHost: 10,
		},
	}
	client, err := opensearch.NewClient(cfg)
	if err != nil {
		return nil, fmt.Errorf("opensearch client: %w", err)
	}

	sink := &DecisionSink{client: client, index: index}

	if err := sink.ensureIndex(ctx); err != nil {
		return nil, err
	}
	return sink, nil
}

func (s *DecisionSink) ensureIndex(ctx context.Context) error {
	res, err := s.client.Indices.Exists([]string{s.index}, s.client.Indices.Exists.WithContext(ctx))
	if err != nil {
		return fmt.Errorf("indices.exists: %w", err)
	}
	defer res.Body.Close()

	if res.StatusCode == http.StatusOK {
		return nil // already exists
	}

	body := map[string]any{
		"mappings": map[string]any{
			"properties": map[string]any{
				"request_id":       map[string]any{"type": "keyword"},
				"order_id":         map[string]any{"type": "keyword"},
				"customer_id":      map[string]any{"type": "keyword"},
				"provider_id":      map[string]any{"type": "keyword"},
				"storno_type":      map[string]any{"type": "keyword"},
				"status":           map[string]any{"type": "keyword"},
				"decided_by":       map[string]any{"type": "keyword"},
				"refund_amount":    map[string]any{"type": "long"},
				"refund_reference": map[string]any{"type": "keyword"},
				"rejection_reason": map[string]any{"type": "text"},
				"decided_at":       map[string]any{"type": "date"},
			},
		},
		"settings": map[string]any{
			"number_of_replicas": 0, // dev-friendly; change in prod
		},
	}
	buf, _ := json.Marshal(body)
	cr, err := s.client.Indices.Create(
		s.index,
		s.client.Indices.Create.WithBody(bytes.NewReader(buf)),
		s.client.Indices.Create.WithContext(ctx),
	)
	if err != nil {
		return fmt.Errorf("indices.create: %w", err)
	}
	defer cr.Body.Close()
	if cr.IsError() {
		return fmt.Errorf("indices.create error: %s", cr.String())
	}
	return nil
}

// internal doc stored in OpenSearch
type osDecisionDoc struct {
	RequestID       string    `json:"request_id"`
	OrderID         string    `json:"order_id"`
	CustomerID      string    `json:"customer_id"`
	ProviderID      string    `json:"provider_id"`
	Type            string    `json:"storno_type"`
	Status          string    `json:"status"`
	DecidedBy       string    `json:"decided_by,omitempty"`
	RefundAmount    *int64    `json:"refund_amount,omitempty"`
	RefundReference *string   `json:"refund_reference,omitempty"`
	RejectionReason *string   `json:"rejection_reason,omitempty"`
	DecidedAt       time.Time `json:"decided_at"`
}

func (s *DecisionSink) IndexDecision(ctx context.Context, req storno.Request) error {
	decidedBy := ""
	if req.ReviewedBy != nil {
		decidedBy = *req.ReviewedBy
	}
	decidedAt := req.LastUpdatedAt
	if req.CompletedAt != nil {
		decidedAt = *req.CompletedAt
	}

	doc := osDecisionDoc{
		RequestID:       req.ID,
		OrderID:         req.OrderID,
		CustomerID:      req.CustomerID,
		ProviderID:      req.ProviderID,
		Type:            string(req.Type),
		Status:          string(req.Status),
		DecidedBy:       decidedBy,
		RefundAmount:    req.RefundAmount,
		RefundReference: req.RefundReference,
		RejectionReason: req.RejectionReason,
		DecidedAt:       decidedAt.UTC(),
	}
	payload, _ := json.Marshal(doc)

	// The request id doubles as the document id, so a re-indexed decision
	// overwrites its own document instead of duplicating it.
	res, err := s.client.Index(
		s.index,
		bytes.NewReader(payload),
		s.client.Index.WithDocumentID(req.ID),
		s.client.Index.WithContext(ctx),
	)
	if err != nil {
		return fmt.Errorf("index: %w", err)
	}
	defer res.Body.Close()
	if res.IsError() {
		return fmt.Errorf("index error: %s", res.String())
	}
	return nil
}
