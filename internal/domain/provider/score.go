// Package provider models the composite reliability score kept on a
// provider profile and the automatic suspension rule attached to it.
package provider

import (
	"fmt"
	"math"
	"time"
)

// Sub-metric weights of the composite score. The storno rate dominates;
// the remaining sub-metrics are maintained elsewhere and only read here.
const (
	WeightStornoRate           = 0.4
	WeightDeliveryDelays       = 0.3
	WeightCustomerSatisfaction = 0.2
	WeightResponseTime         = 0.1
)

// AutoBlockFloor is the overall score at or below which a provider is
// suspended from receiving new orders.
const AutoBlockFloor = 10.0

type Score struct {
	TotalOrders          int64     `json:"totalOrders"`
	ApprovedStornos      int64     `json:"approvedStornos"`
	StornoRate           float64   `json:"stornoRate"`
	DeliveryDelays       float64   `json:"deliveryDelays"`
	CustomerSatisfaction float64   `json:"customerSatisfaction"`
	ResponseTime         float64   `json:"responseTime"`
	OverallScore         float64   `json:"overallScore"`
	LastUpdated          time.Time `json:"lastUpdated"`
}

type Profile struct {
	ID            string     `json:"providerId"`
	Blocked       bool       `json:"blocked"`
	BlockedReason *string    `json:"blockedReason,omitempty"`
	BlockedAt     *time.Time `json:"blockedAt,omitempty"`
	Score         Score      `json:"score"`
}

// RecalculateOnApproval returns the score after counting one more approved
// storno. overallScore is always derived from the weighted sub-metrics,
// never carried over.
func RecalculateOnApproval(s Score, now time.Time) Score {
	s.ApprovedStornos++
	s.StornoRate = stornoRate(s.ApprovedStornos, s.TotalOrders)
	s.OverallScore = Overall(s.StornoRate, s.DeliveryDelays, s.CustomerSatisfaction, s.ResponseTime)
	s.LastUpdated = now
	return s
}

// Overall computes the weighted composite score in [0,100].
func Overall(stornoRate, deliveryDelays, customerSatisfaction, responseTime float64) float64 {
	stornoRateScore := math.Max(0, 100-stornoRate)
	return stornoRateScore*WeightStornoRate +
		deliveryDelays*WeightDeliveryDelays +
		customerSatisfaction*WeightCustomerSatisfaction +
		responseTime*WeightResponseTime
}

// ShouldAutoBlock reports whether the score has crossed the suspension floor.
func ShouldAutoBlock(overallScore float64) bool {
	return overallScore <= AutoBlockFloor
}

// AutoBlockReason is the recorded reason for a score-triggered suspension.
func AutoBlockReason(overallScore float64) string {
	return fmt.Sprintf("reliability score %.1f fell to or below the floor of %.0f", overallScore, AutoBlockFloor)
}

func stornoRate(approvedStornos, totalOrders int64) float64 {
	if totalOrders <= 0 {
		return 0
	}
	return float64(approvedStornos) / float64(totalOrders) * 100
}
