package storno

import (
	"math"
	"time"

	"github.com/taskilo/storno-service/internal/domain/order"
)

// Eligibility is the customer-facing cancellation entitlement. Pure data:
// repeated evaluation with a frozen clock yields identical results.
type Eligibility struct {
	IsOverdue          bool  `json:"isOverdue"`
	CanCancel          bool  `json:"canCancel"`
	Type               Type  `json:"stornoType,omitempty"`
	HoursUntilDeadline int64 `json:"hoursUntilDeadline"`
	// ProcessingFee is advisory (minor currency units): zero for overdue
	// cancellations, the configured flat fee otherwise.
	ProcessingFee int64 `json:"processingFee"`
}

// EvaluateEligibility decides whether the customer holds a cancellation
// right for the order at the given instant.
//
// The deadline is the end of day (23:59:59.999) of the delivery-window end
// date, falling back to the start date. Past the deadline the customer holds
// an unconditional right (overdue, full refund); before it, only orders in a
// voluntary-cancellation status may be cancelled, against the processing
// fee. Orders without any delivery window, or already cancelled, grant no
// right at all: entitlement fails closed.
func EvaluateEligibility(o order.Order, processingFee int64, now time.Time) Eligibility {
	if o.Status == order.StatusCancelledByAdmin {
		return Eligibility{}
	}

	windowEnd, ok := o.DeliveryWindowEnd()
	if !ok {
		return Eligibility{}
	}

	deadline := endOfDay(windowEnd)

	if now.After(deadline) {
		return Eligibility{
			IsOverdue: true,
			CanCancel: true,
			Type:      TypeOverdue,
		}
	}

	elig := Eligibility{
		HoursUntilDeadline: hoursUntil(deadline, now),
	}
	if o.Status.AllowsVoluntaryCancellation() {
		elig.CanCancel = true
		elig.Type = TypeNormal
		elig.ProcessingFee = processingFee
	}
	return elig
}

func endOfDay(t time.Time) time.Time {
	y, m, d := t.Date()
	return time.Date(y, m, d, 23, 59, 59, 999_000_000, t.Location())
}

func hoursUntil(deadline, now time.Time) int64 {
	hours := int64(math.Ceil(deadline.Sub(now).Hours()))
	if hours < 0 {
		return 0
	}
	return hours
}
