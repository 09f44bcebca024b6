package application

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"subway-cloud/internal/eventing"
	"subway-cloud/internal/lines/application/events"
	lines "subway-cloud/internal/lines/domain"
	"subway-cloud/internal/locking"
	"subway-cloud/internal/observability/metrics"
	stations "subway-cloud/internal/stations/domain"
)

// CreateLineRequest creates a line with its first section.
type CreateLineRequest struct {
	Name          string `json:"name"`
	Color         string `json:"color"`
	UpStationID   string `json:"upStationId"`
	DownStationID string `json:"downStationId"`
	Distance      int64  `json:"distance"`
}

// UpdateLineRequest renames a line.
type UpdateLineRequest struct {
	Name  string `json:"name"`
	Color string `json:"color"`
}

// AppendSectionRequest adds a section at the terminus of a line.
type AppendSectionRequest struct {
	UpStationID   string `json:"upStationId"`
	DownStationID string `json:"downStationId"`
	Distance      int64  `json:"distance"`
}

// EventPublisher publishes line events.
type EventPublisher interface {
	Publish(ctx context.Context, event any) error
}

// TransactionalRepository stores a line change together with its outbox
// envelopes.
type TransactionalRepository interface {
	SaveWithEvents(ctx context.Context, line *lines.Line, envs ...eventing.Envelope) error
	DeleteWithEvents(ctx context.Context, lineID string, envs ...eventing.Envelope) error
}

// Dispatcher delivers committed outbox records.
type Dispatcher interface {
	Dispatch(ctx context.Context, limit int) (int, error)
}

// Clock provides current time.
type Clock interface {
	Now() time.Time
}

type systemClock struct{}

func (systemClock) Now() time.Time { return time.Now().UTC() }

// Service runs line commands and queries.
type Service struct {
	repo      lines.Repository
	registry  stations.Registry
	query     *QueryService
	locker    locking.Locker
	publisher EventPublisher
	txRepo    TransactionalRepository
	dispatch  Dispatcher
	clock     Clock
	newID     func() string
}

// Option configures the Service.
type Option func(*Service)

// WithLocker overrides the write locker. Share it with the station service
// so station deletes and section writes exclude each other.
func WithLocker(locker locking.Locker) Option {
	return func(s *Service) {
		if locker != nil {
			s.locker = locker
		}
	}
}

// WithPublisher publishes events after successful changes.
func WithPublisher(publisher EventPublisher) Option {
	return func(s *Service) {
		s.publisher = publisher
	}
}

// WithOutbox records events in the repository transaction and hands them to
// dispatcher after commit. The repository must implement TransactionalRepository.
func WithOutbox(dispatcher Dispatcher) Option {
	return func(s *Service) {
		s.dispatch = dispatcher
	}
}

// WithClock overrides the clock.
func WithClock(clock Clock) Option {
	return func(s *Service) {
		if clock != nil {
			s.clock = clock
		}
	}
}

// WithIDGenerator overrides line and section id generation.
func WithIDGenerator(newID func() string) Option {
	return func(s *Service) {
		if newID != nil {
			s.newID = newID
		}
	}
}

// NewService constructs a line service.
func NewService(repo lines.Repository, registry stations.Registry, opts ...Option) (*Service, error) {
	if repo == nil {
		return nil, errors.New("line service: nil repository")
	}
	query, err := NewQueryService(registry)
	if err != nil {
		return nil, err
	}
	s := &Service{
		repo:     repo,
		registry: registry,
		query:    query,
		locker:   locking.NewKeyedLocker(),
		clock:    systemClock{},
		newID:    uuid.NewString,
	}
	for _, opt := range opts {
		opt(s)
	}
	if s.dispatch != nil {
		txRepo, ok := repo.(TransactionalRepository)
		if !ok {
			return nil, errors.New("line service: outbox needs a transactional repository")
		}
		s.txRepo = txRepo
	}
	return s, nil
}

// CreateLine creates a line whose chain holds one section between the given stations.
func (s *Service) CreateLine(ctx context.Context, req CreateLineRequest) (view *LineView, err error) {
	start := time.Now()
	defer func() { observe(metrics.OperationCreateLine, err, start) }()

	var line *lines.Line
	err = s.withStations(ctx, "", []string{req.UpStationID, req.DownStationID}, lines.ErrValidation, func() error {
		now := s.clock.Now()
		created, err := lines.NewLine(s.newID(), req.Name, req.Color, lines.SectionSpec{
			ID:            s.newID(),
			UpStationID:   req.UpStationID,
			DownStationID: req.DownStationID,
			Distance:      req.Distance,
		}, now)
		if err != nil {
			return err
		}
		first := created.Chain().Sections()[0]
		line = created
		return s.save(ctx, created, events.LineCreated{
			LineID:        created.ID(),
			Name:          created.Name(),
			Color:         created.Color(),
			SectionID:     first.ID(),
			UpStationID:   first.UpStationID(),
			DownStationID: first.DownStationID(),
			Distance:      first.Distance(),
			OccurredAt:    now,
		})
	})
	if err != nil {
		return nil, err
	}
	return s.query.View(ctx, line)
}

// GetLine returns the line with its ordered stations.
func (s *Service) GetLine(ctx context.Context, lineID string) (*LineView, error) {
	line, err := s.load(ctx, lineID)
	if err != nil {
		return nil, err
	}
	return s.query.View(ctx, line)
}

// ListLines returns every line with its ordered stations.
func (s *Service) ListLines(ctx context.Context) ([]LineView, error) {
	list, err := s.repo.List(ctx)
	if err != nil {
		return nil, err
	}
	return s.query.Views(ctx, list)
}

// UpdateLine renames a line.
func (s *Service) UpdateLine(ctx context.Context, lineID string, req UpdateLineRequest) (view *LineView, err error) {
	start := time.Now()
	defer func() { observe(metrics.OperationUpdateLine, err, start) }()

	var line *lines.Line
	err = s.withLine(ctx, lineID, func(loaded *lines.Line) error {
		now := s.clock.Now()
		if err := loaded.Rename(req.Name, req.Color, now); err != nil {
			return err
		}
		line = loaded
		return s.save(ctx, loaded, events.LineUpdated{
			LineID:     loaded.ID(),
			Name:       loaded.Name(),
			Color:      loaded.Color(),
			OccurredAt: now,
		})
	})
	if err != nil {
		return nil, err
	}
	return s.query.View(ctx, line)
}

// DeleteLine removes a line together with all of its sections.
func (s *Service) DeleteLine(ctx context.Context, lineID string) (err error) {
	start := time.Now()
	defer func() { observe(metrics.OperationDeleteLine, err, start) }()

	return s.withLine(ctx, lineID, func(line *lines.Line) error {
		return s.delete(ctx, line.ID(), events.LineDeleted{
			LineID:     line.ID(),
			Sections:   line.Chain().Len(),
			OccurredAt: s.clock.Now(),
		})
	})
}

// AppendSection adds a section at the line terminus.
func (s *Service) AppendSection(ctx context.Context, lineID string, req AppendSectionRequest) (err error) {
	start := time.Now()
	defer func() { observe(metrics.OperationAppendSection, err, start) }()

	if lineID == "" {
		return fmt.Errorf("%w: empty line id", lines.ErrValidation)
	}
	return s.withStations(ctx, lineID, []string{req.UpStationID, req.DownStationID}, lines.ErrNotFound, func() error {
		line, err := s.load(ctx, lineID)
		if err != nil {
			return err
		}
		now := s.clock.Now()
		section, err := line.AppendSection(lines.SectionSpec{
			ID:            s.newID(),
			UpStationID:   req.UpStationID,
			DownStationID: req.DownStationID,
			Distance:      req.Distance,
		}, now)
		if err != nil {
			return err
		}
		return s.save(ctx, line, events.SectionAppended{
			LineID:        line.ID(),
			SectionID:     section.ID(),
			UpStationID:   section.UpStationID(),
			DownStationID: section.DownStationID(),
			Distance:      section.Distance(),
			Sections:      line.Chain().Len(),
			OccurredAt:    now,
		})
	})
}

// RemoveSection removes the terminus section ending at stationID.
func (s *Service) RemoveSection(ctx context.Context, lineID, stationID string) (err error) {
	start := time.Now()
	defer func() { observe(metrics.OperationRemoveSection, err, start) }()

	if stationID == "" {
		return fmt.Errorf("%w: empty station id", lines.ErrValidation)
	}
	return s.withLine(ctx, lineID, func(line *lines.Line) error {
		now := s.clock.Now()
		removed, err := line.RemoveSection(stationID, now)
		if err != nil {
			return err
		}
		return s.save(ctx, line, events.SectionRemoved{
			LineID:     line.ID(),
			SectionID:  removed.ID(),
			StationID:  stationID,
			Sections:   line.Chain().Len(),
			OccurredAt: now,
		})
	})
}

// withLine loads the line under its write lock and runs fn. The lock covers
// the whole check-then-act sequence.
func (s *Service) withLine(ctx context.Context, lineID string, fn func(*lines.Line) error) error {
	if lineID == "" {
		return fmt.Errorf("%w: empty line id", lines.ErrValidation)
	}
	unlock, err := s.lock(ctx, locking.LineKey(lineID))
	if err != nil {
		return err
	}
	defer unlock()

	line, err := s.load(ctx, lineID)
	if err != nil {
		return err
	}
	return fn(line)
}

// withStations locks the line (when lineID is set) together with every
// station, resolves the stations and runs fn. Station deletes take the same
// station keys, so a resolved station stays until fn has saved.
func (s *Service) withStations(ctx context.Context, lineID string, stationIDs []string, missing error, fn func() error) error {
	keys := make([]string, 0, len(stationIDs)+1)
	if lineID != "" {
		keys = append(keys, locking.LineKey(lineID))
	}
	for _, id := range stationIDs {
		if id == "" {
			return fmt.Errorf("%w: empty station id", lines.ErrValidation)
		}
		keys = append(keys, locking.StationKey(id))
	}
	unlock, err := s.lock(ctx, keys...)
	if err != nil {
		return err
	}
	defer unlock()

	for _, id := range stationIDs {
		if err := s.requireStation(ctx, id, missing); err != nil {
			return err
		}
	}
	return fn()
}

func (s *Service) lock(ctx context.Context, keys ...string) (func(), error) {
	waitStart := time.Now()
	unlock, err := s.locker.Lock(ctx, keys...)
	if err != nil {
		return nil, err
	}
	metrics.ObserveLockWait(time.Since(waitStart))
	return unlock, nil
}

func (s *Service) load(ctx context.Context, lineID string) (*lines.Line, error) {
	if lineID == "" {
		return nil, fmt.Errorf("%w: empty line id", lines.ErrValidation)
	}
	line, err := s.repo.Load(ctx, lineID)
	if err != nil {
		return nil, err
	}
	if line == nil {
		return nil, fmt.Errorf("%w: line %s", lines.ErrNotFound, lineID)
	}
	return line, nil
}

// requireStation reports a missing station wrapped in missing.
func (s *Service) requireStation(ctx context.Context, stationID string, missing error) error {
	if stationID == "" {
		return fmt.Errorf("%w: empty station id", lines.ErrValidation)
	}
	station, err := s.registry.Get(ctx, stationID)
	if err != nil {
		return err
	}
	if station == nil {
		return fmt.Errorf("%w: station %s does not exist", missing, stationID)
	}
	return nil
}

// save stores line and emits event. With an outbox the event is committed
// with the line; otherwise it is published after the save.
func (s *Service) save(ctx context.Context, line *lines.Line, event any) error {
	if s.txRepo == nil {
		if err := s.repo.Save(ctx, line); err != nil {
			return err
		}
		return s.publish(ctx, event)
	}
	env, err := eventing.BuildEnvelope(event, eventing.MetaFromContext(ctx))
	if err != nil {
		return err
	}
	if err := s.txRepo.SaveWithEvents(ctx, line, env); err != nil {
		return err
	}
	s.flush(ctx)
	return nil
}

func (s *Service) delete(ctx context.Context, lineID string, event any) error {
	if s.txRepo == nil {
		if err := s.repo.Delete(ctx, lineID); err != nil {
			return err
		}
		return s.publish(ctx, event)
	}
	env, err := eventing.BuildEnvelope(event, eventing.MetaFromContext(ctx))
	if err != nil {
		return err
	}
	if err := s.txRepo.DeleteWithEvents(ctx, lineID, env); err != nil {
		return err
	}
	s.flush(ctx)
	return nil
}

// flush delivers committed events now. Failures stay in the outbox for the
// background dispatcher.
func (s *Service) flush(ctx context.Context) {
	_, _ = s.dispatch.Dispatch(ctx, 10)
}

func (s *Service) publish(ctx context.Context, event any) error {
	if s.publisher == nil {
		return nil
	}
	if err := s.publisher.Publish(ctx, event); err != nil {
		return fmt.Errorf("line service: publish: %w", err)
	}
	return nil
}

func observe(operation string, err error, start time.Time) {
	rejected := errors.Is(err, lines.ErrValidation) || errors.Is(err, lines.ErrNotFound) || lines.IsRuleViolation(err)
	if lines.IsRuleViolation(err) {
		metrics.IncRuleRejection(lines.ErrorKind(err))
	}
	metrics.ObserveOperation(operation, err, rejected, time.Since(start))
}
