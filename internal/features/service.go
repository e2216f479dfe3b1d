package features

import "context"

// RepositoryPort defines data access methods for the feature registry.
type RepositoryPort interface {
	List(ctx context.Context) ([]Feature, error)
	Ensure(ctx context.Context, f Feature) error
}

// Service exposes the authoritative list of gate-able capabilities.
type Service struct {
	repo RepositoryPort
}

// NewService builds Service instance.
func NewService(repo RepositoryPort) *Service {
	return &Service{repo: repo}
}

// List returns every registered feature.
func (s *Service) List(ctx context.Context) ([]Feature, error) {
	return s.repo.List(ctx)
}

// ListKeys returns the registered feature keys in stable order.
func (s *Service) ListKeys(ctx context.Context) ([]string, error) {
	feats, err := s.repo.List(ctx)
	if err != nil {
		return nil, err
	}
	keys := make([]string, len(feats))
	for i, f := range feats {
		keys[i] = f.Key
	}
	return keys, nil
}

// EnsureCatalog seeds the built-in catalog, skipping keys that already exist.
func (s *Service) EnsureCatalog(ctx context.Context) error {
	for _, f := range Catalog() {
		if err := s.repo.Ensure(ctx, f); err != nil {
			return err
		}
	}
	return nil
}
