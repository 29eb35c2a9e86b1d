package catalog

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"
)

// offsetsSource reports how stale the runtime-offsets document of a product
// is. Implemented by the artifact store.
type offsetsSource interface {
	OffsetsAge(productID string, now time.Time) (time.Duration, error)
}

// Service answers catalog queries and derives per-product health. Derived
// status is cached for a short window because every connected launcher polls
// it on a timer.
type Service struct {
	store    Store
	offsets  offsetsSource
	now      func() time.Time
	cacheTTL time.Duration
	staleAge time.Duration

	mu          sync.Mutex
	cached      *Overall
	cachedUntil time.Time
}

// Option configures Service.
type Option func(*Service)

// WithClock overrides the time source (useful for tests).
func WithClock(fn func() time.Time) Option {
	return func(s *Service) {
		if fn != nil {
			s.now = fn
		}
	}
}

// WithCacheTTL overrides how long derived status is served from cache.
func WithCacheTTL(ttl time.Duration) Option {
	return func(s *Service) {
		if ttl > 0 {
			s.cacheTTL = ttl
		}
	}
}

// WithStaleOffsetsAge overrides the age past which offsets degrade a product
// to warning.
func WithStaleOffsetsAge(age time.Duration) Option {
	return func(s *Service) {
		if age > 0 {
			s.staleAge = age
		}
	}
}

// NewService constructs the catalog service.
func NewService(store Store, offsets offsetsSource, opts ...Option) *Service {
	s := &Service{
		store:    store,
		offsets:  offsets,
		now:      time.Now,
		cacheTTL: 2 * time.Second,
		staleAge: 48 * time.Hour,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// CreateProduct registers a new deliverable.
func (s *Service) CreateProduct(ctx context.Context, id, name, description string) (*Product, error) {
	id = strings.ToLower(strings.TrimSpace(id))
	name = strings.TrimSpace(name)
	if id == "" || name == "" {
		return nil, fmt.Errorf("%w: id and name are required", ErrInvalidInput)
	}
	for _, r := range id {
		if (r < 'a' || r > 'z') && (r < '0' || r > '9') && r != '-' && r != '_' {
			return nil, fmt.Errorf("%w: id may contain only a-z, 0-9, - and _", ErrInvalidInput)
		}
	}
	p := &Product{ID: id, Name: name, Description: strings.TrimSpace(description), CreatedAt: s.now().UTC()}
	if err := s.store.CreateProduct(ctx, p); err != nil {
		return nil, err
	}
	return p, nil
}

// Product loads one product.
func (s *Service) Product(ctx context.Context, id string) (*Product, error) {
	return s.store.Product(ctx, id)
}

// Products lists every product.
func (s *Service) Products(ctx context.Context) ([]*Product, error) {
	return s.store.Products(ctx)
}

// RegisterVersion records an uploaded build as the product's active version.
func (s *Service) RegisterVersion(ctx context.Context, v *Version) (*Version, error) {
	v.Version = strings.TrimSpace(v.Version)
	if v.ProductID == "" || v.Version == "" {
		return nil, fmt.Errorf("%w: product id and version are required", ErrInvalidInput)
	}
	if _, err := s.store.Product(ctx, v.ProductID); err != nil {
		return nil, err
	}
	v.IsActive = true
	v.CreatedAt = s.now().UTC()
	id, err := s.store.InsertVersion(ctx, v)
	if err != nil {
		return nil, err
	}
	v.ID = id
	s.invalidate()
	return v, nil
}

// LatestVersion returns the active build of a product.
func (s *Service) LatestVersion(ctx context.Context, productID string) (*Version, error) {
	return s.store.LatestVersion(ctx, productID)
}

// Versions lists every recorded build of a product, newest first.
func (s *Service) Versions(ctx context.Context, productID string) ([]*Version, error) {
	if _, err := s.store.Product(ctx, productID); err != nil {
		return nil, err
	}
	return s.store.VersionsByProduct(ctx, productID)
}

// VersionByNumber looks up one specific build.
func (s *Service) VersionByNumber(ctx context.Context, productID, version string) (*Version, error) {
	return s.store.VersionByNumber(ctx, productID, version)
}

// SetStatus records an operator override and drops the status cache so the
// change is visible on the next poll.
func (s *Service) SetStatus(ctx context.Context, productID string, status Status, message string) (*StatusRecord, error) {
	if !ValidStatus(status) {
		return nil, fmt.Errorf("%w: unknown status %q", ErrInvalidInput, status)
	}
	if _, err := s.store.Product(ctx, productID); err != nil {
		return nil, err
	}
	rec := &StatusRecord{
		ProductID: productID,
		Status:    status,
		Message:   strings.TrimSpace(message),
		UpdatedAt: s.now().UTC(),
	}
	if err := s.store.SetStatus(ctx, rec); err != nil {
		return nil, err
	}
	s.invalidate()
	return rec, nil
}

// ToggleStatus flips the operator override between operational and updating,
// the two states that alternate during a routine patch cycle.
func (s *Service) ToggleStatus(ctx context.Context, productID string) (*StatusRecord, error) {
	current := StatusOperational
	if rec, err := s.store.StatusByProduct(ctx, productID); err == nil {
		current = rec.Status
	} else if !errors.Is(err, ErrNotFound) {
		return nil, err
	}
	next, message := StatusOperational, "Update deployed and verified"
	if current == StatusOperational {
		next, message = StatusUpdating, "Game update detected, new build in progress"
	}
	return s.SetStatus(ctx, productID, next, message)
}

// Health derives current per-product status. Served from cache inside the TTL
// window.
func (s *Service) Health(ctx context.Context) (*Overall, error) {
	now := s.now()

	s.mu.Lock()
	if s.cached != nil && now.Before(s.cachedUntil) {
		cached := s.cached
		s.mu.Unlock()
		return cached, nil
	}
	s.mu.Unlock()

	overall, err := s.computeHealth(ctx, now)
	if err != nil {
		return nil, err
	}

	s.mu.Lock()
	s.cached = overall
	s.cachedUntil = now.Add(s.cacheTTL)
	s.mu.Unlock()
	return overall, nil
}

// ProductHealth derives status for one product.
func (s *Service) ProductHealth(ctx context.Context, productID string) (*ProductHealth, error) {
	p, err := s.store.Product(ctx, productID)
	if err != nil {
		return nil, err
	}
	h, err := s.healthOf(ctx, p, s.now())
	if err != nil {
		return nil, err
	}
	return &h, nil
}

func (s *Service) computeHealth(ctx context.Context, now time.Time) (*Overall, error) {
	products, err := s.store.Products(ctx)
	if err != nil {
		return nil, err
	}
	overall := &Overall{Status: StatusOperational, Products: make([]ProductHealth, 0, len(products))}
	for _, p := range products {
		h, err := s.healthOf(ctx, p, now)
		if err != nil {
			return nil, err
		}
		overall.Products = append(overall.Products, h)
		if severity(h.Status) > severity(overall.Status) {
			overall.Status = h.Status
		}
	}
	return overall, nil
}

func (s *Service) healthOf(ctx context.Context, p *Product, now time.Time) (ProductHealth, error) {
	h := ProductHealth{ProductID: p.ID, Name: p.Name, Status: StatusOperational, UpdatedAt: now.UTC()}

	if v, err := s.store.LatestVersion(ctx, p.ID); err == nil {
		h.LatestVersion = v.Version
	} else if !errors.Is(err, ErrNotFound) {
		return ProductHealth{}, err
	}

	// An operator override other than operational always wins.
	rec, err := s.store.StatusByProduct(ctx, p.ID)
	if err != nil && !errors.Is(err, ErrNotFound) {
		return ProductHealth{}, err
	}
	if rec != nil && rec.Status != StatusOperational {
		h.Status = rec.Status
		h.Message = rec.Message
		h.UpdatedAt = rec.UpdatedAt
		return h, nil
	}

	age, err := s.offsets.OffsetsAge(p.ID, now)
	switch {
	case h.LatestVersion == "" || err != nil:
		h.Status = StatusMaintenance
		h.Message = "Awaiting deployment"
	case age > s.staleAge:
		h.Status = StatusWarning
		h.Message = "Offsets may be outdated"
	}
	return h, nil
}

func (s *Service) invalidate() {
	s.mu.Lock()
	s.cached = nil
	s.mu.Unlock()
}

// Stats returns the operator dashboard counters.
func (s *Service) Stats(ctx context.Context) (Stats, error) {
	return s.store.Stats(ctx, s.now().UTC())
}

func severity(st Status) int {
	switch st {
	case StatusOffline:
		return 4
	case StatusMaintenance:
		return 3
	case StatusUpdating:
		return 2
	case StatusWarning:
		return 1
	default:
		return 0
	}
}
