package meeting

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/sourcegraph/conc"
)

// ServiceOptions configures a Service.
type ServiceOptions struct {
	AutoApprove bool          // request approval in the background after Create
	Owner       string        // recorded as confirmedBy for side-channel decisions
	JobTimeout  time.Duration // bound on a background approval
}

// Service implements the meeting API on top of Store and Approver.
type Service struct {
	store    *Store
	approver *Approver
	opts     ServiceOptions
	logger   zerolog.Logger
	now      func() time.Time

	ctx    context.Context
	cancel context.CancelFunc
	jobs   conc.WaitGroup
}

// NewService creates a meeting service. approver may be nil when no side
// channel is configured.
func NewService(store *Store, approver *Approver, opts ServiceOptions, logger zerolog.Logger) *Service {
	if opts.JobTimeout <= 0 {
		opts.JobTimeout = 2 * time.Minute
	}
	ctx, cancel := context.WithCancel(context.Background())
	return &Service{
		store:    store,
		approver: approver,
		opts:     opts,
		logger:   logger.With().Str("component", "meetings").Logger(),
		now:      time.Now,
		ctx:      ctx,
		cancel:   cancel,
	}
}

// Create stores a pending meeting, starting a background approval when enabled.
func (s *Service) Create(ctx context.Context, req Request) (*Meeting, error) {
	m, err := s.create(ctx, req)
	if err != nil {
		return nil, err
	}
	if s.opts.AutoApprove && s.approver != nil {
		s.jobs.Go(func() { s.approveInBackground(m.ID) })
	}
	return m, nil
}

// CreateAndApprove stores a pending meeting and waits for the owner's decision.
// Without an approver the meeting stays pending and the outcome is empty.
func (s *Service) CreateAndApprove(ctx context.Context, req Request) (*Meeting, Outcome, error) {
	m, err := s.create(ctx, req)
	if err != nil {
		return nil, "", err
	}
	if s.approver == nil {
		return m, "", nil
	}
	return s.RequestApproval(ctx, m.ID)
}

func (s *Service) create(ctx context.Context, req Request) (*Meeting, error) {
	if err := req.Validate(); err != nil {
		return nil, err
	}

	now := s.now().UTC()
	m := Meeting{
		ID:           uuid.NewString(),
		Title:        req.Title,
		Datetime:     req.Datetime.UTC(),
		Participants: nonNil(req.Participants),
		RequestedBy:  req.RequestedBy,
		Status:       StatusPending,
		CreatedAt:    now,
		UpdatedAt:    now,
	}
	if err := s.store.Create(ctx, m); err != nil {
		return nil, err
	}
	s.logger.Info().Str("meeting_id", m.ID).Str("requested_by", m.RequestedBy).Msg("meeting requested")
	return &m, nil
}

// Respond records the owner's decision.
func (s *Service) Respond(ctx context.Context, id string, status Status, confirmedBy string) (*Meeting, error) {
	if status != StatusConfirmed && status != StatusDeclined {
		return nil, fmt.Errorf("%w: got %q", ErrInvalidStatus, status)
	}
	if err := s.store.UpdateStatus(ctx, id, status, confirmedBy, s.now()); err != nil {
		return nil, err
	}
	return s.store.Get(ctx, id)
}

func (s *Service) Get(ctx context.Context, id string) (*Meeting, error) {
	return s.store.Get(ctx, id)
}

func (s *Service) List(ctx context.Context) ([]Meeting, error) {
	return s.store.List(ctx)
}

// RequestApproval asks the owner about meeting id and applies the decision.
// A timeout leaves the meeting pending.
func (s *Service) RequestApproval(ctx context.Context, id string) (*Meeting, Outcome, error) {
	if s.approver == nil {
		return nil, "", ErrNoApprover
	}
	m, err := s.store.Get(ctx, id)
	if err != nil {
		return nil, "", err
	}

	outcome, err := s.approver.RequestApproval(ctx, m.ID, m.Summary())
	if err != nil {
		return nil, "", err
	}
	if outcome == OutcomeTimeout {
		return m, outcome, nil
	}

	updated, err := s.Respond(ctx, m.ID, Status(outcome), s.opts.Owner)
	if err != nil {
		return nil, "", err
	}
	return updated, outcome, nil
}

func (s *Service) approveInBackground(id string) {
	ctx, cancel := context.WithTimeout(s.ctx, s.opts.JobTimeout)
	defer cancel()

	_, outcome, err := s.RequestApproval(ctx, id)
	if err != nil {
		s.logger.Error().Err(err).Str("meeting_id", id).Msg("background approval failed")
		return
	}
	s.logger.Debug().Str("meeting_id", id).Str("outcome", string(outcome)).Msg("background approval finished")
}

// Close cancels background approvals and waits for them.
func (s *Service) Close() {
	s.cancel()
	if r := s.jobs.WaitAndRecover(); r != nil {
		s.logger.Error().Str("panic", r.String()).Msg("background approval panicked")
	}
}

// Wait blocks until background approvals finish.
func (s *Service) Wait() {
	s.jobs.Wait()
}
