package storno

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/taskilo/storno-service/internal/apperror"
	"github.com/taskilo/storno-service/internal/domain/gateway"
	"github.com/taskilo/storno-service/internal/domain/order"
	"github.com/taskilo/storno-service/internal/domain/provider"
	"github.com/taskilo/storno-service/internal/messaging"
	"github.com/taskilo/storno-service/pkg/logger"
	"github.com/taskilo/storno-service/pkg/metrics"
)

// ReconcilerID is recorded as the reviewer on decisions finalized by the
// reconciliation path instead of an admin.
const ReconcilerID = "system:reconciliation"

// errLostDecisionRace marks a conditional status update that affected zero
// rows: another decision won the race after our precondition check.
var errLostDecisionRace = errors.New("lost decision race")

// Options groups the service configuration.
type Options struct {
	// ProcessingFee is the advisory fee for voluntary cancellations,
	// in minor currency units.
	ProcessingFee int64
	// GatewayTimeout bounds every payment gateway call.
	GatewayTimeout time.Duration
}

// Service drives the cancellation pipeline. All writes go through
// conditional updates so concurrent admin decisions cannot both reach the
// payment gateway.
type Service struct {
	requests  Repo
	orders    order.Repo
	providers provider.Repo
	gateway   gateway.Provider
	publisher messaging.Publisher
	sink      DecisionSink
	log       *logger.Logger
	opts      Options

	now func() time.Time
}

func NewService(
	requests Repo,
	orders order.Repo,
	providers provider.Repo,
	gw gateway.Provider,
	publisher messaging.Publisher,
	sink DecisionSink,
	l *logger.Logger,
	opts Options,
) *Service {
	return &Service{
		requests:  requests,
		orders:    orders,
		providers: providers,
		gateway:   gw,
		publisher: publisher,
		sink:      sink,
		log:       l,
		opts:      opts,
		now:       time.Now,
	}
}

// CheckEligibility evaluates the cancellation entitlement for the actor's
// order. Read-only.
func (s *Service) CheckEligibility(ctx context.Context, orderID, actorID string) (Eligibility, error) {
	o, err := s.loadOwnedOrder(ctx, orderID, actorID)
	if err != nil {
		return Eligibility{}, err
	}
	return EvaluateEligibility(*o, s.opts.ProcessingFee, s.now()), nil
}

// Submission is a customer cancellation request.
type Submission struct {
	OrderID string
	ActorID string
	Reason  string
}

// Submit validates the entitlement and creates a pending storno request
// with the order snapshot captured at this instant.
func (s *Service) Submit(ctx context.Context, sub Submission) (*Request, error) {
	if strings.TrimSpace(sub.Reason) == "" {
		return nil, apperror.ErrEmptyReason
	}

	o, err := s.loadOwnedOrder(ctx, sub.OrderID, sub.ActorID)
	if err != nil {
		return nil, err
	}

	// Entitlement is recomputed server-side; a client-supplied eligibility
	// result is never trusted.
	elig := EvaluateEligibility(*o, s.opts.ProcessingFee, s.now())
	if !elig.CanCancel {
		return nil, apperror.ErrNotEligible
	}

	var created *Request
	err = s.requests.InTransaction(ctx, func(tx TxRepo) error {
		open, err := tx.GetOpenRequestByOrderID(ctx, o.ID)
		if err != nil {
			return fmt.Errorf("check open request: %w", err)
		}
		if open != nil {
			return apperror.ErrOpenRequestExists
		}

		created, err = tx.CreateRequest(ctx, NewRequest{
			OrderID:    o.ID,
			CustomerID: o.CustomerID,
			ProviderID: o.ProviderID,
			Reason:     sub.Reason,
			Type:       elig.Type,
			Snapshot: OrderSnapshot{
				TotalAmount:      o.TotalAmount,
				PaymentReference: o.PaymentReference,
				DeliveryStart:    o.DeliveryStart,
				DeliveryEnd:      o.DeliveryEnd,
			},
			RequestedAt: s.now(),
		})
		if err != nil {
			return fmt.Errorf("create storno request: %w", err)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return created, nil
}

// ListResult is the admin review queue page.
type ListResult struct {
	Items []Request `json:"items"`
	Stats Stats     `json:"stats"`
}

const (
	defaultListLimit = 20
	maxListLimit     = 100
)

// List returns requests filtered by status (default pending) together with
// the aggregate queue statistics.
func (s *Service) List(ctx context.Context, query ListQuery) (ListResult, error) {
	if query.Status == nil {
		pending := StatusPending
		query.Status = &pending
	}
	if query.Limit <= 0 {
		query.Limit = defaultListLimit
	}
	if query.Limit > maxListLimit {
		query.Limit = maxListLimit
	}

	items, err := s.requests.ListRequests(ctx, query)
	if err != nil {
		return ListResult{}, fmt.Errorf("list storno requests: %w", err)
	}
	stats, err := s.requests.GetStats(ctx)
	if err != nil {
		return ListResult{}, fmt.Errorf("storno stats: %w", err)
	}

	if items == nil {
		items = []Request{}
	}
	return ListResult{Items: items, Stats: stats}, nil
}

// OpenReview moves a pending request under review by the given admin.
func (s *Service) OpenReview(ctx context.Context, id, adminID string) (*Request, error) {
	ok, err := s.requests.MarkUnderReview(ctx, id, adminID, s.now())
	if err != nil {
		return nil, fmt.Errorf("mark under review: %w", err)
	}
	if !ok {
		return nil, s.conflictFor(ctx, id)
	}
	return s.reload(ctx, id)
}

// Action is an admin decision verb.
type Action string

const (
	ActionApprove Action = "approve"
	ActionReject  Action = "reject"
)

func NewAction(raw string) (Action, error) {
	switch Action(raw) {
	case ActionApprove, ActionReject:
		return Action(raw), nil
	}
	return "", fmt.Errorf("invalid action %q: must be approve or reject", raw)
}

// Decision carries an admin verdict on an open request.
type Decision struct {
	RequestID       string
	Action          Action
	AdminID         string
	AdminNotes      *string
	RefundAmount    *int64
	RefundReason    *string
	RejectionReason *string
}

// DecisionResult is the resolved request plus the refund outcome on
// approval.
type DecisionResult struct {
	Request         Request `json:"request"`
	RefundAmount    *int64  `json:"refundAmount,omitempty"`
	RefundReference *string `json:"refundReference,omitempty"`
}

// Decide applies an admin decision. Only pending or under-review requests
// may be resolved; anything else yields a conflict naming the current
// status so a refund can never run twice.
func (s *Service) Decide(ctx context.Context, d Decision) (*DecisionResult, error) {
	req, err := s.requests.GetRequestByID(ctx, d.RequestID)
	if err != nil {
		return nil, fmt.Errorf("load storno request: %w", err)
	}
	if req == nil {
		return nil, apperror.ErrRequestNotFound
	}
	if !req.Status.Open() {
		return nil, &apperror.ConflictError{CurrentStatus: string(req.Status)}
	}

	switch d.Action {
	case ActionApprove:
		return s.approve(ctx, req, d)
	case ActionReject:
		return s.reject(ctx, req, d)
	default:
		return nil, fmt.Errorf("invalid action %q", d.Action)
	}
}

func (s *Service) reject(ctx context.Context, req *Request, d Decision) (*DecisionResult, error) {
	reason := ""
	switch {
	case d.RejectionReason != nil:
		reason = *d.RejectionReason
	case d.AdminNotes != nil:
		reason = *d.AdminNotes
	}

	ok, err := s.requests.Reject(ctx, RejectUpdate{
		ID:              req.ID,
		ReviewedBy:      d.AdminID,
		AdminNotes:      d.AdminNotes,
		RejectionReason: reason,
		Now:             s.now(),
	})
	if err != nil {
		return nil, fmt.Errorf("reject storno request: %w", err)
	}
	if !ok {
		return nil, s.conflictFor(ctx, req.ID)
	}

	updated, err := s.reload(ctx, req.ID)
	if err != nil {
		return nil, err
	}

	metrics.DecisionsTotal.WithLabelValues(string(StatusRejected)).Inc()
	s.publishDecision(ctx, *updated)
	s.indexDecision(ctx, *updated)

	return &DecisionResult{Request: *updated}, nil
}

func (s *Service) approve(ctx context.Context, req *Request, d Decision) (*DecisionResult, error) {
	amount := req.Snapshot.TotalAmount
	if d.RefundAmount != nil {
		amount = *d.RefundAmount
	}
	if amount <= 0 || amount > req.Snapshot.TotalAmount {
		return nil, apperror.ErrInvalidRefundAmount
	}

	// The attempt row pins the idempotency key and amount for this request.
	// A retried approval reuses both, so the gateway sees one refund no
	// matter how often the call is repeated.
	err := s.requests.RecordRefundAttempt(ctx, RefundAttempt{
		StornoRequestID: req.ID,
		OrderID:         req.OrderID,
		IdempotencyKey:  refundIdempotencyKey(req.ID),
		Amount:          amount,
		CreatedAt:       s.now(),
	})
	if err != nil {
		return nil, fmt.Errorf("record refund attempt: %w", err)
	}
	attempt, err := s.requests.GetRefundAttempt(ctx, req.ID)
	if err != nil {
		return nil, fmt.Errorf("load refund attempt: %w", err)
	}
	if attempt == nil {
		return nil, fmt.Errorf("refund attempt missing for request %s", req.ID)
	}
	if attempt.Amount != amount {
		s.log.WarnCtx(ctx, "refund amount %d ignored for request %s: earlier attempt pinned %d",
			amount, req.ID, attempt.Amount)
	}

	refundRef := ""
	if attempt.Completed() {
		// A previous run already refunded but crashed before the status
		// write. Finish the transition without touching the gateway again.
		refundRef = *attempt.RefundReference
	} else {
		result, err := s.callGateway(ctx, req, attempt)
		if err != nil {
			return nil, err
		}
		refundRef = result.RefundID
	}

	updated, err := s.finalizeApproval(ctx, req.ID, finalizeParams{
		ReviewedBy:      d.AdminID,
		AdminNotes:      d.AdminNotes,
		RefundAmount:    attempt.Amount,
		RefundReference: refundRef,
		RefundReason:    d.RefundReason,
	})
	if err != nil {
		return nil, err
	}

	return &DecisionResult{
		Request:         *updated,
		RefundAmount:    updated.RefundAmount,
		RefundReference: updated.RefundReference,
	}, nil
}

func (s *Service) callGateway(ctx context.Context, req *Request, attempt *RefundAttempt) (gateway.RefundResult, error) {
	gctx, cancel := context.WithTimeout(ctx, s.opts.GatewayTimeout)
	defer cancel()

	start := time.Now()
	result, err := s.gateway.Refund(gctx, gateway.RefundRequest{
		TransactionReference: req.Snapshot.PaymentReference,
		Amount:               attempt.Amount,
		IdempotencyKey:       attempt.IdempotencyKey,
		Metadata: map[string]string{
			"storno_request_id": req.ID,
			"order_id":          req.OrderID,
		},
	})
	metrics.GatewayRefundDuration.Observe(time.Since(start).Seconds())

	if err != nil {
		timeout := errors.Is(err, context.DeadlineExceeded)
		label := "failed"
		if timeout {
			label = "timeout"
		}
		metrics.GatewayRefundsTotal.WithLabelValues(label).Inc()
		s.log.ErrorCtx(ctx, "gateway refund failed for request %s: %v", req.ID, err)
		return gateway.RefundResult{}, &apperror.GatewayError{Err: err, Timeout: timeout}
	}
	if result.Status == gateway.RefundStatusFailed {
		metrics.GatewayRefundsTotal.WithLabelValues("failed").Inc()
		return gateway.RefundResult{}, &apperror.GatewayError{
			Err: fmt.Errorf("refund %s reported status %s", result.RefundID, result.Status),
		}
	}

	metrics.GatewayRefundsTotal.WithLabelValues("succeeded").Inc()
	return result, nil
}

type finalizeParams struct {
	ReviewedBy      string
	AdminNotes      *string
	RefundAmount    int64
	RefundReference string
	RefundReason    *string
}

// finalizeApproval records the gateway outcome and flips the request to
// approved in one transaction, then runs the idempotent follow-ups (order
// terminal status, provider score, events). The refund already happened, so
// follow-up failures are logged for reconciliation, never rolled back.
func (s *Service) finalizeApproval(ctx context.Context, requestID string, p finalizeParams) (*Request, error) {
	now := s.now()
	err := s.requests.InTransaction(ctx, func(tx TxRepo) error {
		if err := tx.CompleteRefundAttempt(ctx, requestID, p.RefundReference, now); err != nil {
			return fmt.Errorf("complete refund attempt: %w", err)
		}
		ok, err := tx.Approve(ctx, ApproveUpdate{
			ID:              requestID,
			ReviewedBy:      p.ReviewedBy,
			AdminNotes:      p.AdminNotes,
			RefundAmount:    p.RefundAmount,
			RefundReference: p.RefundReference,
			RefundReason:    p.RefundReason,
			Now:             now,
		})
		if err != nil {
			return fmt.Errorf("approve storno request: %w", err)
		}
		if !ok {
			return errLostDecisionRace
		}
		return nil
	})
	if errors.Is(err, errLostDecisionRace) {
		// Another decision resolved the request first. The refund attempt
		// keeps its reference, so nothing was paid twice.
		s.log.WarnCtx(ctx, "approval of request %s lost the decision race", requestID)
		return nil, s.conflictFor(ctx, requestID)
	}
	if err != nil {
		return nil, err
	}

	updated, err := s.reload(ctx, requestID)
	if err != nil {
		return nil, err
	}

	s.syncOrder(ctx, *updated)
	s.applyProviderScore(ctx, *updated)

	metrics.DecisionsTotal.WithLabelValues(string(StatusApproved)).Inc()
	s.publishDecision(ctx, *updated)
	s.indexDecision(ctx, *updated)

	return updated, nil
}

func (s *Service) syncOrder(ctx context.Context, req Request) {
	completedAt := s.now()
	if req.CompletedAt != nil {
		completedAt = *req.CompletedAt
	}
	if err := s.orders.SetCancelledByAdmin(ctx, req.OrderID, completedAt); err != nil {
		s.log.ErrorCtx(ctx, "order %s terminal status write failed, reconciliation will retry: %v",
			req.OrderID, err)
	}
}

func (s *Service) applyProviderScore(ctx context.Context, req Request) {
	profile, applied, err := s.providers.ApplyApprovedStorno(ctx, req.ID, req.ProviderID, s.now())
	if err != nil {
		// The refund cannot be undone; the score catches up through
		// reconciliation.
		s.log.ErrorCtx(ctx, "provider %s score update failed for request %s, reconciliation will retry: %v",
			req.ProviderID, req.ID, err)
		return
	}
	if !applied {
		s.log.DebugCtx(ctx, "request %s already counted against provider %s", req.ID, req.ProviderID)
		return
	}

	if !provider.ShouldAutoBlock(profile.Score.OverallScore) {
		return
	}

	reason := provider.AutoBlockReason(profile.Score.OverallScore)
	blocked, err := s.providers.Block(ctx, req.ProviderID, reason, s.now())
	if err != nil {
		s.log.ErrorCtx(ctx, "auto-block of provider %s failed: %v", req.ProviderID, err)
		return
	}
	if !blocked {
		return
	}

	metrics.ProviderAutoBlocksTotal.Inc()
	s.log.WarnCtx(ctx, "provider %s auto-blocked: %s", req.ProviderID, reason)
	s.publish(ctx, req.ProviderID, messaging.EventProviderBlocked, messaging.ProviderBlocked{
		ProviderID:   req.ProviderID,
		Reason:       reason,
		OverallScore: profile.Score.OverallScore,
		BlockedAt:    s.now(),
	})
}

// ReconcileReport summarizes one reconciliation run.
type ReconcileReport struct {
	RefundsFinalized int `json:"refundsFinalized"`
	ApprovalsSynced  int `json:"approvalsSynced"`
}

// Reconcile repairs the two gaps a crash can leave: refunds acknowledged by
// the gateway whose request is still open, and approved requests whose
// order status or provider score write failed. Every step is idempotent, so
// the operation is safe to run repeatedly.
func (s *Service) Reconcile(ctx context.Context) (ReconcileReport, error) {
	var report ReconcileReport

	attempts, err := s.requests.ListDanglingRefunds(ctx)
	if err != nil {
		return report, fmt.Errorf("list dangling refunds: %w", err)
	}
	for _, attempt := range attempts {
		if _, err := s.finalizeApproval(ctx, attempt.StornoRequestID, finalizeParams{
			ReviewedBy:      ReconcilerID,
			RefundAmount:    attempt.Amount,
			RefundReference: *attempt.RefundReference,
		}); err != nil {
			s.log.ErrorCtx(ctx, "reconcile of request %s failed: %v", attempt.StornoRequestID, err)
			continue
		}
		report.RefundsFinalized++
	}

	stale, err := s.requests.ListApprovedRequiringSync(ctx)
	if err != nil {
		return report, fmt.Errorf("list approvals requiring sync: %w", err)
	}
	for _, req := range stale {
		s.syncOrder(ctx, req)
		s.applyProviderScore(ctx, req)
		report.ApprovalsSynced++
	}

	return report, nil
}

func (s *Service) loadOwnedOrder(ctx context.Context, orderID, actorID string) (*order.Order, error) {
	o, err := s.orders.GetOrderByID(ctx, orderID)
	if err != nil {
		return nil, fmt.Errorf("load order: %w", err)
	}
	// A foreign order is reported as missing rather than forbidden.
	if o == nil || (actorID != "" && o.CustomerID != actorID) {
		return nil, apperror.ErrOrderNotFound
	}
	return o, nil
}

// conflictFor turns a failed conditional transition into the user-visible
// error: not found, or a conflict naming the current status.
func (s *Service) conflictFor(ctx context.Context, requestID string) error {
	req, err := s.requests.GetRequestByID(ctx, requestID)
	if err != nil {
		return fmt.Errorf("load storno request: %w", err)
	}
	if req == nil {
		return apperror.ErrRequestNotFound
	}
	return &apperror.ConflictError{CurrentStatus: string(req.Status)}
}

func (s *Service) reload(ctx context.Context, requestID string) (*Request, error) {
	req, err := s.requests.GetRequestByID(ctx, requestID)
	if err != nil {
		return nil, fmt.Errorf("reload storno request: %w", err)
	}
	if req == nil {
		return nil, apperror.ErrRequestNotFound
	}
	return req, nil
}

func (s *Service) publishDecision(ctx context.Context, req Request) {
	evType := messaging.EventCancellationRejected
	if req.Status == StatusApproved {
		evType = messaging.EventCancellationApproved
	}

	decidedBy := ""
	if req.ReviewedBy != nil {
		decidedBy = *req.ReviewedBy
	}
	decidedAt := req.LastUpdatedAt
	if req.CompletedAt != nil {
		decidedAt = *req.CompletedAt
	}

	s.publish(ctx, req.OrderID, evType, messaging.CancellationDecided{
		RequestID:       req.ID,
		OrderID:         req.OrderID,
		CustomerID:      req.CustomerID,
		ProviderID:      req.ProviderID,
		Status:          string(req.Status),
		RefundAmount:    req.RefundAmount,
		RefundReference: req.RefundReference,
		DecidedBy:       decidedBy,
		DecidedAt:       decidedAt,
	})
}

func (s *Service) publish(ctx context.Context, key, evType string, payload any) {
	env, err := messaging.NewEnvelope(key, evType, payload)
	if err != nil {
		s.log.ErrorCtx(ctx, "build %s envelope: %v", evType, err)
		return
	}
	// Fire and forget: notification failures never affect the financial
	// transition.
	if err := s.publisher.Publish(ctx, env); err != nil {
		s.log.ErrorCtx(ctx, "publish %s event: %v", evType, err)
	}
}

func (s *Service) indexDecision(ctx context.Context, req Request) {
	if err := s.sink.IndexDecision(ctx, req); err != nil {
		s.log.WarnCtx(ctx, "index decision %s: %v", req.ID, err)
	}
}

func refundIdempotencyKey(requestID string) string {
	return "storno-refund-" + requestID
}
