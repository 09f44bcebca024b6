package application

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	"subway-cloud/internal/locking"
	"subway-cloud/internal/observability/metrics"
	stations "subway-cloud/internal/stations/domain"
)

// UsageChecker reports whether any line section references a station.
type UsageChecker interface {
	StationInUse(ctx context.Context, stationID string) (bool, error)
}

// CreateStationRequest creates a station.
type CreateStationRequest struct {
	Name string `json:"name"`
}

// Service manages stations.
type Service struct {
	repo   stations.Repository
	usage  UsageChecker
	locker locking.Locker
	newID  func() string
}

// Option configures the Service.
type Option func(*Service)

// WithLocker sets the locker shared with the line service. Deletes hold the
// station key while checking usage.
func WithLocker(locker locking.Locker) Option {
	return func(s *Service) {
		if locker != nil {
			s.locker = locker
		}
	}
}

// NewService constructs a station service.
func NewService(repo stations.Repository, usage UsageChecker, opts ...Option) (*Service, error) {
	if repo == nil {
		return nil, errors.New("station service: nil repository")
	}
	if usage == nil {
		return nil, errors.New("station service: nil usage checker")
	}
	s := &Service{repo: repo, usage: usage, locker: locking.NewKeyedLocker(), newID: uuid.NewString}
	for _, opt := range opts {
		opt(s)
	}
	return s, nil
}

// CreateStation stores a new station with a generated id.
func (s *Service) CreateStation(ctx context.Context, req CreateStationRequest) (station *stations.Station, err error) {
	start := time.Now()
	defer func() {
		metrics.ObserveOperation(metrics.OperationCreateStation, err, errors.Is(err, stations.ErrValidation), time.Since(start))
	}()

	station = &stations.Station{ID: s.newID(), Name: strings.TrimSpace(req.Name)}
	if err := station.Validate(); err != nil {
		return nil, err
	}
	if err := s.repo.Save(ctx, station); err != nil {
		return nil, err
	}
	return station, nil
}

// GetStation returns a station or ErrNotFound.
func (s *Service) GetStation(ctx context.Context, id string) (*stations.Station, error) {
	if id == "" {
		return nil, fmt.Errorf("%w: empty id", stations.ErrValidation)
	}
	station, err := s.repo.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	if station == nil {
		return nil, fmt.Errorf("%w: station %s", stations.ErrNotFound, id)
	}
	return station, nil
}

// ListStations returns all stations.
func (s *Service) ListStations(ctx context.Context) ([]stations.Station, error) {
	return s.repo.List(ctx)
}

// DeleteStation removes a station no line references.
func (s *Service) DeleteStation(ctx context.Context, id string) (err error) {
	start := time.Now()
	defer func() {
		rejected := errors.Is(err, stations.ErrNotFound) || errors.Is(err, stations.ErrStationInUse) || errors.Is(err, stations.ErrValidation)
		metrics.ObserveOperation(metrics.OperationDeleteStation, err, rejected, time.Since(start))
	}()

	if _, err := s.GetStation(ctx, id); err != nil {
		return err
	}
	unlock, err := s.locker.Lock(ctx, locking.StationKey(id))
	if err != nil {
		return err
	}
	defer unlock()

	inUse, err := s.usage.StationInUse(ctx, id)
	if err != nil {
		return err
	}
	if inUse {
		return fmt.Errorf("%w: station %s", stations.ErrStationInUse, id)
	}
	return s.repo.Delete(ctx, id)
}
