package experts

import (
	"context"
	"strings"

	"github.com/mbd888/sessionvault/internal/authz"
	"github.com/mbd888/sessionvault/internal/clock"
	"github.com/mbd888/sessionvault/internal/logging"
	"github.com/mbd888/sessionvault/internal/traces"
)

// Service manages expert status.
type Service struct {
	store    Store
	auth     authz.Authorizer
	clock    clock.Clock
	notifier Notifier
}

// NewService creates an expert registry service.
func NewService(store Store) *Service {
	return &Service{
		store: store,
		auth:  authz.ContextAuthorizer{},
		clock: clock.Monotonic(clock.NewSystem()),
	}
}

// WithClock sets the clock used for record timestamps.
func (s *Service) WithClock(c clock.Clock) *Service {
	s.clock = clock.Monotonic(c)
	return s
}

// WithAuthorizer replaces the per-call authorization check.
func (s *Service) WithAuthorizer(a authz.Authorizer) *Service {
	s.auth = a
	return s
}

// WithNotifier adds a status change sink.
func (s *Service) WithNotifier(n Notifier) *Service {
	s.notifier = n
	return s
}

// Initialize records the registry admin. It succeeds once.
func (s *Service) Initialize(ctx context.Context, admin string) error {
	admin = normalize(admin)
	if admin == "" {
		return ErrInvalidAddress
	}
	if err := s.store.InitAdmin(ctx, admin, s.clock.Now()); err != nil {
		return err
	}
	logging.L(ctx).Info("expert registry initialized", "admin", admin)
	return nil
}

// Admin returns the registry admin.
func (s *Service) Admin(ctx context.Context) (string, error) {
	return s.store.GetAdmin(ctx)
}

// Verify marks expert as verified. Banned experts may be re-verified.
func (s *Service) Verify(ctx context.Context, expert string) error {
	return s.transition(ctx, "experts.Verify", expert, StatusVerified, ErrAlreadyVerified)
}

// Ban marks expert as banned. Unverified experts may be banned directly.
func (s *Service) Ban(ctx context.Context, expert string) error {
	return s.transition(ctx, "experts.Ban", expert, StatusBanned, ErrAlreadyBanned)
}

func (s *Service) transition(ctx context.Context, op, expert string, to Status, errSame error) (retErr error) {
	ctx, span := traces.StartSpan(ctx, op, traces.Principal(expert))
	defer func() { traces.End(span, retErr) }()

	expert = normalize(expert)
	if expert == "" {
		return ErrInvalidAddress
	}

	var from Status
	var admin string
	err := s.store.Atomic(ctx, func(ctx context.Context) error {
		var err error
		admin, err = s.store.GetAdmin(ctx)
		if err != nil {
			return err
		}
		if err := s.auth.Require(ctx, admin); err != nil {
			return err
		}

		from = StatusUnverified
		rec, err := s.store.GetRecord(ctx, expert)
		if err != nil {
			return err
		}
		if rec != nil {
			from = rec.Status
		}
		if from == to {
			return errSame
		}
		return s.store.PutRecord(ctx, &Record{Expert: expert, Status: to, UpdatedAt: s.clock.Now()})
	})
	if err != nil {
		return err
	}

	logging.L(ctx).Info("expert status changed", "expert", expert, "from", from, "to", to, "admin", admin)
	if s.notifier != nil {
		s.notifier.ExpertStatusChanged(expert, from, to, admin)
	}
	return nil
}

// Status returns the expert's status. Unknown experts are unverified.
func (s *Service) Status(ctx context.Context, expert string) (Status, error) {
	rec, err := s.store.GetRecord(ctx, normalize(expert))
	if err != nil {
		return "", err
	}
	if rec == nil {
		return StatusUnverified, nil
	}
	return rec.Status, nil
}

// List returns experts with the given status, or all written records when
// status is empty.
func (s *Service) List(ctx context.Context, status Status, limit int) ([]*Record, error) {
	if limit <= 0 || limit > 500 {
		limit = 100
	}
	return s.store.List(ctx, status, limit)
}

func normalize(addr string) string {
	return strings.ToLower(strings.TrimSpace(addr))
}
