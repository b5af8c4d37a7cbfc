// Package watch owns the lifecycle of watch directives (布控): creation
// against the catalog, operator end, time-based expiry and detection
// bookkeeping.
package watch

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/facilityops/watchpost/internal/catalog"
	"github.com/facilityops/watchpost/internal/datastore/entities"
	"github.com/facilityops/watchpost/internal/datastore/repository"
	"github.com/facilityops/watchpost/internal/logger"
)

// Target identifies the subject of a watch directive.
type Target struct {
	Type entities.TargetType `json:"target_type"`
	ID   string              `json:"target_id"`
}

// Window is the half-open enforcement interval [Start, End).
type Window struct {
	Start time.Time `json:"start"`
	End   time.Time `json:"end"`
}

// CreateRequest holds the operator input for a new directive.
type CreateRequest struct {
	Target    Target `json:"target"`
	RuleText  string `json:"rule_text"`
	Reason    string `json:"reason"`
	Window    Window `json:"window"`
	CreatedBy string `json:"created_by"`
}

// Filter narrows ListRules. Zero values match everything.
type Filter struct {
	TargetType entities.TargetType
	Status     entities.RuleStatus
}

// Store serialises every mutation of watch rules behind one mutex.
type Store struct {
	mu      sync.Mutex
	repo    repository.WatchRuleRepository
	catalog catalog.Catalog
	log     logger.Logger
	now     func() time.Time
}

// Option configures a Store.
type Option func(*Store)

// WithClock replaces time.Now, mainly for tests.
func WithClock(now func() time.Time) Option {
	return func(s *Store) { s.now = now }
}

// WithLogger sets the store logger.
func WithLogger(l logger.Logger) Option {
	return func(s *Store) { s.log = l }
}

// NewStore creates a Store over repo, resolving targets through cat.
func NewStore(repo repository.WatchRuleRepository, cat catalog.Catalog, opts ...Option) *Store {
	s := &Store{
		repo:    repo,
		catalog: cat,
		log:     logger.NewNop(),
		now:     time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	s.log = s.log.With(logger.String("component", "watch.store"))
	return s
}

// Now returns the store clock in UTC.
func (s *Store) Now() time.Time {
	return s.now().UTC()
}

// CreateRule validates req, snapshots the target from the catalog and stores
// an active rule with a zero alert count.
func (s *Store) CreateRule(ctx context.Context, req CreateRequest) (*entities.WatchRule, error) {
	req.Target.ID = strings.TrimSpace(req.Target.ID)
	if !req.Target.Type.Valid() {
		return nil, fmt.Errorf("%w: unknown target type %q", ErrValidation, req.Target.Type)
	}
	if req.Window.Start.IsZero() || req.Window.End.IsZero() {
		return nil, fmt.Errorf("%w: window start and end are required", ErrValidation)
	}
	if !req.Window.Start.Before(req.Window.End) {
		return nil, fmt.Errorf("%w: window start %s must be before end %s",
			ErrValidation, req.Window.Start.Format(time.RFC3339), req.Window.End.Format(time.RFC3339))
	}

	ruleText := normalizeText(req.RuleText)
	reason := normalizeText(req.Reason)
	createdBy := normalizeText(req.CreatedBy)
	if err := checkLength("target id", req.Target.ID, maxTargetIDLen); err != nil {
		return nil, err
	}
	if err := checkLength("rule text", ruleText, maxRuleTextLen); err != nil {
		return nil, err
	}
	if err := checkLength("reason", reason, maxReasonLen); err != nil {
		return nil, err
	}
	if err := checkLength("created by", createdBy, maxCreatedByLen); err != nil {
		return nil, err
	}

	name, info, err := s.resolve(ctx, req.Target)
	if err != nil {
		return nil, err
	}
	name = truncateRunes(normalizeText(name), maxTargetNameLen)
	info = truncateRunes(normalizeText(info), maxTargetInfoLen)

	s.mu.Lock()
	defer s.mu.Unlock()

	rule := &entities.WatchRule{
		TargetType:  req.Target.Type,
		TargetID:    req.Target.ID,
		TargetName:  name,
		TargetInfo:  info,
		RuleText:    ruleText,
		Reason:      reason,
		WindowStart: req.Window.Start.UTC(),
		WindowEnd:   req.Window.End.UTC(),
		Status:      entities.StatusActive,
		CreatedBy:   createdBy,
		CreatedAt:   s.Now(),
	}
	if err := s.repo.CreateRule(ctx, rule); err != nil {
		return nil, err
	}

	s.log.Info("watch rule created",
		logger.Uint64("rule_id", uint64(rule.ID)),
		logger.String("target_type", string(rule.TargetType)),
		logger.String("target_id", rule.TargetID),
		logger.Time("window_end", rule.WindowEnd))
	return rule, nil
}

func (s *Store) resolve(ctx context.Context, target Target) (name, info string, err error) {
	switch target.Type {
	case entities.TargetPerson:
		p, err := s.catalog.FindPerson(ctx, target.ID)
		if err != nil {
			return "", "", s.lookupError(target, err)
		}
		return p.Name, p.Describe(), nil
	case entities.TargetVehicle:
		v, err := s.catalog.FindVehicle(ctx, target.ID)
		if err != nil {
			return "", "", s.lookupError(target, err)
		}
		return v.PlateNumber, v.Describe(), nil
	default:
		return "", "", fmt.Errorf("%w: unknown target type %q", ErrValidation, target.Type)
	}
}

func (s *Store) lookupError(target Target, err error) error {
	if errors.Is(err, catalog.ErrNotFound) {
		return &TargetNotFoundError{Target: target, Err: err}
	}
	return fmt.Errorf("failed to resolve watch target: %w", err)
}

// EndRule moves an active rule to ended. Rules that are already ended, or
// whose window has closed, fail with ErrInvalidState.
func (s *Store) EndRule(ctx context.Context, id uint, endedBy string) (*entities.WatchRule, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	rule, err := s.getLocked(ctx, id)
	if err != nil {
		return nil, err
	}
	if rule.Status.Terminal() {
		return nil, fmt.Errorf("%w: watch rule %d is %s", ErrInvalidState, id, rule.Status)
	}

	endedBy = truncateRunes(normalizeText(endedBy), maxCreatedByLen)
	if err := s.repo.EndRule(ctx, id, endedBy, s.Now()); err != nil {
		return nil, mapRepoError(id, err)
	}
	s.log.Info("watch rule ended",
		logger.Uint64("rule_id", uint64(id)),
		logger.String("ended_by", endedBy))
	return s.repo.GetRule(ctx, id)
}

// GetRule returns a single rule, expiring it first if its window has closed.
func (s *Store) GetRule(ctx context.Context, id uint) (*entities.WatchRule, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.getLocked(ctx, id)
}

// getLocked loads a rule and persists a due expiry. Callers hold s.mu.
func (s *Store) getLocked(ctx context.Context, id uint) (*entities.WatchRule, error) {
	rule, err := s.repo.GetRule(ctx, id)
	if err != nil {
		return nil, mapRepoError(id, err)
	}
	if rule.Status == entities.StatusActive && EffectiveStatus(rule, s.Now()) == entities.StatusExpired {
		if _, err := s.repo.MarkExpired(ctx, []uint{id}); err != nil {
			return nil, err
		}
		rule.Status = entities.StatusExpired
		s.log.Info("watch rule expired", logger.Uint64("rule_id", uint64(id)))
	}
	return rule, nil
}

// ListRules returns matching rules in creation order. Active rules whose
// window has closed are persisted as expired before the filter is applied,
// so an expired rule is never reported as active.
func (s *Store) ListRules(ctx context.Context, filter Filter) ([]entities.WatchRule, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, err := s.expireDueLocked(ctx); err != nil {
		return nil, err
	}
	return s.repo.ListRules(ctx, repository.WatchRuleFilter{
		TargetType: filter.TargetType,
		Status:     filter.Status,
	})
}

// ExpireDue persists the expiry of every active rule whose window has closed
// and reports how many rules changed.
func (s *Store) ExpireDue(ctx context.Context) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.expireDueLocked(ctx)
}

func (s *Store) expireDueLocked(ctx context.Context) (int64, error) {
	active, err := s.repo.ListRules(ctx, repository.WatchRuleFilter{Status: entities.StatusActive})
	if err != nil {
		return 0, err
	}
	now := s.Now()
	var due []uint
	for i := range active {
		if EffectiveStatus(&active[i], now) == entities.StatusExpired {
			due = append(due, active[i].ID)
		}
	}
	if len(due) == 0 {
		return 0, nil
	}
	n, err := s.repo.MarkExpired(ctx, due)
	if err != nil {
		return 0, err
	}
	s.log.Info("watch rules expired", logger.Int64("count", n))
	return n, nil
}

// RecordDetection applies one correlated detection to an active rule: the
// alert count grows by one and the last-seen fields move to the detection.
// Detections against non-active rules, or outside the rule window, fail with
// ErrInvalidState and leave the rule untouched.
func (s *Store) RecordDetection(ctx context.Context, id uint, location string, at time.Time, source string) (*entities.WatchRule, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	rule, err := s.getLocked(ctx, id)
	if err != nil {
		return nil, err
	}
	if rule.Status != entities.StatusActive {
		return nil, fmt.Errorf("%w: watch rule %d is %s", ErrInvalidState, id, rule.Status)
	}
	at = at.UTC()
	if !rule.InWindow(at) {
		return nil, fmt.Errorf("%w: detection at %s is outside the window of watch rule %d",
			ErrInvalidState, at.Format(time.RFC3339), id)
	}

	alert := &entities.WatchAlert{
		RuleID:     id,
		TargetType: rule.TargetType,
		TargetID:   rule.TargetID,
		Location:   location,
		Source:     source,
		DetectedAt: at,
	}
	if err := s.repo.RecordDetection(ctx, alert); err != nil {
		return nil, mapRepoError(id, err)
	}

	rule.AlertCount++
	rule.LastAlertAt = &at
	rule.LastSeenAt = &at
	rule.LastKnownLocation = location
	return rule, nil
}

// History returns recorded alerts, newest first, with the total count.
func (s *Store) History(ctx context.Context, filter repository.WatchAlertFilter) ([]entities.WatchAlert, int64, error) {
	return s.repo.ListHistory(ctx, filter)
}

func mapRepoError(id uint, err error) error {
	switch {
	case errors.Is(err, repository.ErrWatchRuleNotFound):
		return fmt.Errorf("%w: watch rule %d", ErrNotFound, id)
	case errors.Is(err, repository.ErrWatchRuleNotActive):
		return fmt.Errorf("%w: watch rule %d is not active", ErrInvalidState, id)
	default:
		return err
	}
}
