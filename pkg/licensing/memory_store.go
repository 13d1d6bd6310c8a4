package licensing

import (
	"context"
	"slices"
	"sync"

	"github.com/google/uuid"
)

type trialSlot struct {
	userID uuid.UUID
	number int
}

// MemoryStore is an in-memory Store with the same indexes and conditional
// update semantics as the durable stores. Suitable for development and tests.
type MemoryStore struct {
	mu sync.RWMutex

	subscriptions map[uuid.UUID]*Subscription
	subByExternal map[string]uuid.UUID
	subsByUser    map[uuid.UUID][]uuid.UUID

	licenses      map[uuid.UUID]*License
	licByKey      map[string]uuid.UUID
	licBySub      map[uuid.UUID]uuid.UUID
	licsByUser    map[uuid.UUID][]uuid.UUID
	licByTrialNum map[trialSlot]uuid.UUID
}

// NewMemoryStore creates an empty in-memory store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		subscriptions: make(map[uuid.UUID]*Subscription),
		subByExternal: make(map[string]uuid.UUID),
		subsByUser:    make(map[uuid.UUID][]uuid.UUID),
		licenses:      make(map[uuid.UUID]*License),
		licByKey:      make(map[string]uuid.UUID),
		licBySub:      make(map[uuid.UUID]uuid.UUID),
		licsByUser:    make(map[uuid.UUID][]uuid.UUID),
		licByTrialNum: make(map[trialSlot]uuid.UUID),
	}
}

func (s *MemoryStore) GetSubscription(_ context.Context, id uuid.UUID) (*Subscription, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	sub, ok := s.subscriptions[id]
	if !ok {
		return nil, ErrSubscriptionNotFound
	}
	return sub.Clone(), nil
}

func (s *MemoryStore) GetSubscriptionByExternalID(_ context.Context, externalID string) (*Subscription, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	id, ok := s.subByExternal[externalID]
	if !ok {
		return nil, ErrSubscriptionNotFound
	}
	return s.subscriptions[id].Clone(), nil
}

func (s *MemoryStore) ListSubscriptionsByUser(_ context.Context, userID uuid.UUID) ([]*Subscription, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	ids := s.subsByUser[userID]
	out := make([]*Subscription, 0, len(ids))
	for _, id := range ids {
		out = append(out, s.subscriptions[id].Clone())
	}
	return out, nil
}

func (s *MemoryStore) GetLicense(_ context.Context, id uuid.UUID) (*License, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	lic, ok := s.licenses[id]
	if !ok {
		return nil, ErrLicenseNotFound
	}
	return lic.Clone(), nil
}

func (s *MemoryStore) GetLicenseByKey(_ context.Context, key string) (*License, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	id, ok := s.licByKey[key]
	if !ok {
		return nil, ErrLicenseNotFound
	}
	return s.licenses[id].Clone(), nil
}

func (s *MemoryStore) GetLicenseBySubscription(_ context.Context, subscriptionID uuid.UUID) (*License, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	id, ok := s.licBySub[subscriptionID]
	if !ok {
		return nil, ErrLicenseNotFound
	}
	return s.licenses[id].Clone(), nil
}

func (s *MemoryStore) ListLicensesByUser(_ context.Context, userID uuid.UUID) ([]*License, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	ids := s.licsByUser[userID]
	out := make([]*License, 0, len(ids))
	for _, id := range ids {
		out = append(out, s.licenses[id].Clone())
	}
	return out, nil
}

// Apply checks every precondition before touching any map, so a failed
// change set leaves the store unchanged.
func (s *MemoryStore) Apply(ctx context.Context, cs ChangeSet) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if err := cs.Validate(); err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if err := s.check(cs); err != nil {
		return err
	}

	if sub := cs.NewSubscription; sub != nil {
		stored := sub.Clone()
		stored.Version = 1
		s.subscriptions[sub.ID] = stored
		s.subByExternal[sub.ExternalID] = sub.ID
		s.subsByUser[sub.UserID] = append(s.subsByUser[sub.UserID], sub.ID)
	}
	if sub := cs.Subscription; sub != nil {
		stored := sub.Clone()
		stored.Version = sub.Version + 1
		s.subscriptions[sub.ID] = stored
	}
	if lic := cs.NewLicense; lic != nil {
		stored := lic.Clone()
		stored.Version = 1
		s.licenses[lic.ID] = stored
		s.licByKey[lic.Key] = lic.ID
		s.licsByUser[lic.UserID] = append(s.licsByUser[lic.UserID], lic.ID)
		if lic.SubscriptionID != nil {
			s.licBySub[*lic.SubscriptionID] = lic.ID
		} else {
			s.licByTrialNum[trialSlot{lic.UserID, lic.TrialNumber}] = lic.ID
		}
	}
	if lic := cs.License; lic != nil {
		stored := lic.Clone()
		stored.Version = lic.Version + 1
		s.licenses[lic.ID] = stored
	}

	cs.Commit()
	return nil
}

func (s *MemoryStore) check(cs ChangeSet) error {
	var pendingSub *uuid.UUID

	if sub := cs.NewSubscription; sub != nil {
		if _, ok := s.subscriptions[sub.ID]; ok {
			return ErrDuplicate
		}
		if _, ok := s.subByExternal[sub.ExternalID]; ok {
			return ErrDuplicate
		}
		pendingSub = &sub.ID
	}

	if sub := cs.Subscription; sub != nil {
		stored, ok := s.subscriptions[sub.ID]
		if !ok || stored.Version != sub.Version {
			return ErrVersionConflict
		}
		if stored.ExternalID != sub.ExternalID || stored.UserID != sub.UserID {
			return ErrInvalidRecord
		}
	}

	if lic := cs.NewLicense; lic != nil {
		if _, ok := s.licenses[lic.ID]; ok {
			return ErrDuplicate
		}
		if _, ok := s.licByKey[lic.Key]; ok {
			return ErrDuplicate
		}
		if lic.SubscriptionID != nil {
			linked := *lic.SubscriptionID
			if _, ok := s.subscriptions[linked]; !ok && (pendingSub == nil || *pendingSub != linked) {
				return ErrSubscriptionNotFound
			}
			if _, ok := s.licBySub[linked]; ok {
				return ErrDuplicate
			}
		} else if _, ok := s.licByTrialNum[trialSlot{lic.UserID, lic.TrialNumber}]; ok {
			return ErrDuplicate
		}
	}

	if lic := cs.License; lic != nil {
		stored, ok := s.licenses[lic.ID]
		if !ok || stored.Version != lic.Version {
			return ErrVersionConflict
		}
		if stored.Key != lic.Key || stored.UserID != lic.UserID || !slices.Equal(idSlice(stored.SubscriptionID), idSlice(lic.SubscriptionID)) {
			return ErrInvalidRecord
		}
	}
	return nil
}

func idSlice(id *uuid.UUID) []uuid.UUID {
	if id == nil {
		return nil
	}
	return []uuid.UUID{*id}
}
