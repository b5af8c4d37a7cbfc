// Package catalog resolves watch targets against the person and vehicle
// registries.
package catalog

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/facilityops/watchpost/internal/datastore/entities"
	"github.com/facilityops/watchpost/internal/datastore/repository"
	"github.com/facilityops/watchpost/internal/logger"
	"github.com/patrickmn/go-cache"
)

// ErrNotFound is returned when an employee ID or plate number is unknown.
var ErrNotFound = errors.New("catalog entry not found")

// Catalog is the read-only lookup used when creating watch rules.
type Catalog interface {
	FindPerson(ctx context.Context, employeeID string) (*entities.Person, error)
	FindVehicle(ctx context.Context, plateNumber string) (*entities.Vehicle, error)
	ListPersons(ctx context.Context) ([]entities.Person, error)
	ListVehicles(ctx context.Context) ([]entities.Vehicle, error)
}

// Service is a read-through cache over a CatalogRepository.
type Service struct {
	repo  repository.CatalogRepository
	cache *cache.Cache
	log   logger.Logger
}

// NewService creates a Service. A non-positive ttl disables expiry.
func NewService(repo repository.CatalogRepository, ttl time.Duration, log logger.Logger) *Service {
	if log == nil {
		log = logger.NewNop()
	}
	expiration := ttl
	cleanup := 2 * ttl
	if ttl <= 0 {
		expiration = cache.NoExpiration
		cleanup = 0
	}
	return &Service{
		repo:  repo,
		cache: cache.New(expiration, cleanup),
		log:   log.With(logger.String("component", "catalog")),
	}
}

// FindPerson looks up a person by employee ID.
func (s *Service) FindPerson(ctx context.Context, employeeID string) (*entities.Person, error) {
	key := cacheKey(entities.TargetPerson, employeeID)
	if v, ok := s.cache.Get(key); ok {
		p := v.(entities.Person)
		return &p, nil
	}
	p, err := s.repo.GetPerson(ctx, employeeID)
	if err != nil {
		return nil, s.translate(err, "person", employeeID)
	}
	s.cache.SetDefault(key, *p)
	return p, nil
}

// FindVehicle looks up a vehicle by plate number.
func (s *Service) FindVehicle(ctx context.Context, plateNumber string) (*entities.Vehicle, error) {
	key := cacheKey(entities.TargetVehicle, plateNumber)
	if v, ok := s.cache.Get(key); ok {
		vehicle := v.(entities.Vehicle)
		return &vehicle, nil
	}
	vehicle, err := s.repo.GetVehicle(ctx, plateNumber)
	if err != nil {
		return nil, s.translate(err, "vehicle", plateNumber)
	}
	s.cache.SetDefault(key, *vehicle)
	return vehicle, nil
}

func (s *Service) ListPersons(ctx context.Context) ([]entities.Person, error) {
	return s.repo.ListPersons(ctx)
}

func (s *Service) ListVehicles(ctx context.Context) ([]entities.Vehicle, error) {
	return s.repo.ListVehicles(ctx)
}

// IDs returns every known identifier of the given target type. The simulator
// uses it to pick plausible subjects.
func (s *Service) IDs(ctx context.Context, targetType entities.TargetType) ([]string, error) {
	switch targetType {
	case entities.TargetPerson:
		persons, err := s.repo.ListPersons(ctx)
		if err != nil {
			return nil, err
		}
		ids := make([]string, len(persons))
		for i := range persons {
			ids[i] = persons[i].EmployeeID
		}
		return ids, nil
	case entities.TargetVehicle:
		vehicles, err := s.repo.ListVehicles(ctx)
		if err != nil {
			return nil, err
		}
		ids := make([]string, len(vehicles))
		for i := range vehicles {
			ids[i] = vehicles[i].PlateNumber
		}
		return ids, nil
	default:
		return nil, fmt.Errorf("unknown target type %q", targetType)
	}
}

func cacheKey(t entities.TargetType, id string) string {
	return string(t) + ":" + id
}

func (s *Service) translate(err error, kind, id string) error {
	if errors.Is(err, repository.ErrCatalogEntryNotFound) {
		return fmt.Errorf("%s %q: %w", kind, id, ErrNotFound)
	}
	s.log.Warn("catalog lookup failed",
		logger.String("kind", kind),
		logger.String("id", id),
		logger.Error(err))
	return fmt.Errorf("failed to look up %s %q: %w", kind, id, err)
}
