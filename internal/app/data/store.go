package data

import (
	"context"
	"fmt"
	"sync"

	"github.com/rs/zerolog"
	"golang.org/x/sync/singleflight"

	"stickychat/internal/app/user"
	"stickychat/internal/pkg/logx"
)

// Store is the instance's home of the Services of players connected to it. Services are
// loaded from the Repository when a player connects and dropped when they leave; while
// tracked, a player never has two Service instances on this instance. Players connected
// elsewhere are read fresh from the Repository through Load.
type Store struct {
	// repo persists the state across restarts and shares it across instances.
	repo Repository

	// mu protects the services map.
	mu sync.RWMutex

	// services holds every tracked Service, keyed by owner.
	services map[user.ID]*Service

	// loads collapses concurrent first accesses for the same player into one repository load.
	loads singleflight.Group

	// structured logger with Store context.
	logger zerolog.Logger
}

// NewStore constructs a Store backed by repo.
func NewStore(repo Repository) *Store {
	return &Store{
		repo:     repo,
		services: make(map[user.ID]*Service),
		logger:   logx.Component("DataStore"),
	}
}

// Get returns the tracked Service for id, loading and tracking it on first access.
func (s *Store) Get(ctx context.Context, id user.ID) (*Service, error) {
	if svc, ok := s.Lookup(id); ok {
		return svc, nil
	}

	v, err, _ := s.loads.Do(id.String(), func() (any, error) {
		if svc, ok := s.Lookup(id); ok {
			return svc, nil
		}

		svc, found, err := s.load(ctx, id)
		if err != nil {
			return nil, err
		}

		s.mu.Lock()
		defer s.mu.Unlock()
		if existing, ok := s.services[id]; ok {
			return existing, nil
		}
		s.services[id] = svc

		s.logger.Debug().
			Str("user_id", id.String()).
			Bool("restored", found).
			Msg("Data service created.")
		return svc, nil
	})
	if err != nil {
		return nil, err
	}
	return v.(*Service), nil
}

// Reload refreshes the persisted part of id's Service from the Repository and tracks it.
// A tracked Service is updated in place so holders of it see the fresh state.
func (s *Store) Reload(ctx context.Context, id user.ID) (*Service, error) {
	rec, found, err := s.repo.Load(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("load data service %s: %w", id, err)
	}
	if !found {
		rec = Record{Owner: id, DirectMessagesEnabled: true}
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if svc, ok := s.services[id]; ok {
		svc.restore(rec)
		return svc, nil
	}
	svc := fromRecord(rec)
	s.services[id] = svc
	return svc, nil
}

// Load returns id's tracked Service, or a detached copy read from the Repository when the
// player is not tracked here. Detached copies are never tracked and must not be mutated.
func (s *Store) Load(ctx context.Context, id user.ID) (*Service, error) {
	if svc, ok := s.Lookup(id); ok {
		return svc, nil
	}
	svc, _, err := s.load(ctx, id)
	return svc, err
}

// Fresh reads id's state from the Repository into a detached Service, ignoring any
// tracked copy.
func (s *Store) Fresh(ctx context.Context, id user.ID) (*Service, error) {
	svc, _, err := s.load(ctx, id)
	return svc, err
}

func (s *Store) load(ctx context.Context, id user.ID) (*Service, bool, error) {
	rec, found, err := s.repo.Load(ctx, id)
	if err != nil {
		return nil, false, fmt.Errorf("load data service %s: %w", id, err)
	}
	if !found {
		return NewService(id), false, nil
	}
	return fromRecord(rec), true, nil
}

// Lookup returns the Service for id only if it is already tracked.
func (s *Store) Lookup(id user.ID) (*Service, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	svc, ok := s.services[id]
	return svc, ok
}

// Adopt tracks svc unless another Service is already tracked for its owner, and returns
// the tracked one.
func (s *Store) Adopt(svc *Service) *Service {
	s.mu.Lock()
	defer s.mu.Unlock()

	if existing, ok := s.services[svc.owner]; ok {
		return existing
	}
	s.services[svc.owner] = svc
	return svc
}

// Evict stops tracking svc. Persisted state is kept. A Service that has already been
// replaced by a newer one is ignored.
func (s *Store) Evict(svc *Service) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.services[svc.owner] == svc {
		delete(s.services, svc.owner)
		s.logger.Debug().Str("user_id", svc.owner.String()).Msg("Data service evicted.")
	}
}

// Services returns a snapshot of every tracked Service.
func (s *Store) Services() []*Service {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]*Service, 0, len(s.services))
	for _, svc := range s.services {
		out = append(out, svc)
	}
	return out
}

// SaveBlock persists one block change made on svc.
func (s *Store) SaveBlock(ctx context.Context, svc *Service, target user.ID, blocked bool) error {
	if err := s.repo.SetBlocked(ctx, svc.owner, target, blocked); err != nil {
		return fmt.Errorf("save block of %s by %s: %w", target, svc.owner, err)
	}
	return nil
}

// SaveDirectMessages persists svc's direct-message toggle.
func (s *Store) SaveDirectMessages(ctx context.Context, svc *Service) error {
	if err := s.repo.SetDirectMessages(ctx, svc.owner, svc.DirectMessagesEnabled()); err != nil {
		return fmt.Errorf("save direct messages of %s: %w", svc.owner, err)
	}
	return nil
}

// Forget stops tracking id and deletes its persisted state. It is used when a player
// is permanently removed from the platform.
func (s *Store) Forget(ctx context.Context, id user.ID) error {
	s.mu.Lock()
	delete(s.services, id)
	s.mu.Unlock()

	if err := s.repo.Delete(ctx, id); err != nil {
		return fmt.Errorf("delete data service %s: %w", id, err)
	}

	s.logger.Info().Str("user_id", id.String()).Msg("Data service forgotten.")
	return nil
}
