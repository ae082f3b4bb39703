package provider

import (
	"context"
	"time"
)

// Repo persists provider profiles. The score update is a shared
// read-modify-write, so the implementation must apply it as an atomic
// increment, never as an overwrite of a previously read value.
type Repo interface {
	// GetProfile returns nil when the provider does not exist.
	GetProfile(ctx context.Context, providerID string) (*Profile, error)

	// ApplyApprovedStorno counts one approved storno request against the
	// provider and recomputes the derived score atomically. The request id
	// acts as an application ledger key: a request already counted returns
	// applied=false and the profile is untouched. Exactly-once per request.
	ApplyApprovedStorno(ctx context.Context, requestID, providerID string, now time.Time) (*Profile, bool, error)

	// Block suspends the provider with a reason and timestamp. Conditional
	// on the provider not being blocked yet; returns false when it already
	// was.
	Block(ctx context.Context, providerID, reason string, now time.Time) (bool, error)
}
