// Package experts keeps the admin-curated registry of expert identities.
//
// Every address starts unverified. The registry admin may verify or ban an
// expert; each change emits a status event. Bookings do not consult the
// registry.
package experts

import (
	"context"
	"errors"
	"time"

	"github.com/mbd888/sessionvault/internal/authz"
)

var (
	ErrNotInitialized     = errors.New("experts: registry not initialized")
	ErrAlreadyInitialized = errors.New("experts: registry already initialized")
	ErrNotAuthorized      = authz.ErrNotAuthorized
	ErrInvalidAddress     = errors.New("experts: address is required")
	ErrAlreadyVerified    = errors.New("experts: expert already verified")
	ErrAlreadyBanned      = errors.New("experts: expert already banned")
)

// Status of an expert identity.
type Status string

const (
	StatusUnverified Status = "unverified"
	StatusVerified   Status = "verified"
	StatusBanned     Status = "banned"
)

// Record is the stored state of one expert.
type Record struct {
	Expert    string    `json:"expert"`
	Status    Status    `json:"status"`
	UpdatedAt time.Time `json:"updatedAt"`
}

// Store persists the registry admin and expert records.
type Store interface {
	Atomic(ctx context.Context, fn func(ctx context.Context) error) error

	GetAdmin(ctx context.Context) (string, error)
	// InitAdmin fails with ErrAlreadyInitialized if an admin exists.
	InitAdmin(ctx context.Context, admin string, at time.Time) error

	// GetRecord returns nil, nil for an expert that was never written.
	GetRecord(ctx context.Context, expert string) (*Record, error)
	PutRecord(ctx context.Context, r *Record) error
	List(ctx context.Context, status Status, limit int) ([]*Record, error)
}

// Notifier receives committed status changes along with the admin that made
// them. Implementations must not block.
type Notifier interface {
	ExpertStatusChanged(expert string, from, to Status, admin string)
}

// InitializeRequest is the body of POST /v1/experts/initialize.
type InitializeRequest struct {
	Admin string `json:"admin" binding:"required"`
}
