// Package index maintains the auxiliary, non-authoritative location and
// registration-status sets the audience filter would otherwise have to
// derive by scanning every cached user entity: non_registered:users,
// province:<P>:users, and city:<C>:users. These sets can drift after a
// crash mid-transition; the reconciler in this package restores the
// invariant from the authoritative user cache.
package index

import (
	"context"
	"fmt"

	"github.com/atlasdevji/prowhey-middleware/store"
)

const nonRegisteredKey = "non_registered:users"

func provinceKey(province string) string { return fmt.Sprintf("province:%s:users", province) }
func cityKey(city string) string         { return fmt.Sprintf("city:%s:users", city) }

// UserAttributes is the subset of a user's transformed payload the location
// and registration indexes key off.
type UserAttributes struct {
	UserID       string
	Province     string
	City         string
	IsRegistered bool
}

// Index maintains the secondary sets.
type Index struct {
	store *store.Store
}

// New builds an Index backed by s.
func New(s *store.Store) *Index {
	return &Index{store: s}
}

// Transition moves a user's membership from their previous attributes to
// their current ones, removing stale membership before adding new —
// satisfying "a user id is present exactly in the sets matching that user's
// current attributes".
func (idx *Index) Transition(ctx context.Context, prev, current UserAttributes) error {
	if prev.Province != "" && prev.Province != current.Province {
		if err := idx.store.SRem(ctx, provinceKey(prev.Province), prev.UserID); err != nil {
			return fmt.Errorf("index: remove %s from %s: %w", prev.UserID, provinceKey(prev.Province), err)
		}
	}
	if prev.City != "" && prev.City != current.City {
		if err := idx.store.SRem(ctx, cityKey(prev.City), prev.UserID); err != nil {
			return fmt.Errorf("index: remove %s from %s: %w", prev.UserID, cityKey(prev.City), err)
		}
	}
	// Registration-status membership is fully re-derived by Apply below from
	// current.IsRegistered, so no separate removal step is needed here.
	return idx.Apply(ctx, current)
}

// Apply adds u's membership to the sets matching its current attributes.
func (idx *Index) Apply(ctx context.Context, u UserAttributes) error {
	if u.Province != "" {
		if err := idx.store.SAdd(ctx, provinceKey(u.Province), u.UserID); err != nil {
			return fmt.Errorf("index: add %s to %s: %w", u.UserID, provinceKey(u.Province), err)
		}
	}
	if u.City != "" {
		if err := idx.store.SAdd(ctx, cityKey(u.City), u.UserID); err != nil {
			return fmt.Errorf("index: add %s to %s: %w", u.UserID, cityKey(u.City), err)
		}
	}
	if !u.IsRegistered {
		if err := idx.store.SAdd(ctx, nonRegisteredKey, u.UserID); err != nil {
			return fmt.Errorf("index: add %s to %s: %w", u.UserID, nonRegisteredKey, err)
		}
	} else {
		if err := idx.store.SRem(ctx, nonRegisteredKey, u.UserID); err != nil {
			return fmt.Errorf("index: remove %s from %s: %w", u.UserID, nonRegisteredKey, err)
		}
	}
	return nil
}

// ProvinceMembers returns the user ids currently indexed under province.
func (idx *Index) ProvinceMembers(ctx context.Context, province string) ([]string, error) {
	return idx.store.SMembers(ctx, provinceKey(province))
}

// CityMembers returns the user ids currently indexed under city.
func (idx *Index) CityMembers(ctx context.Context, city string) ([]string, error) {
	return idx.store.SMembers(ctx, cityKey(city))
}

// NonRegisteredMembers returns the user ids currently marked unregistered.
func (idx *Index) NonRegisteredMembers(ctx context.Context) ([]string, error) {
	return idx.store.SMembers(ctx, nonRegisteredKey)
}

// Reconcile rebuilds every set from the authoritative list of current user
// attributes, restoring the invariant after a crash mid-transition. Existing
// membership not present in users is dropped; this is a full resync, not an
// incremental transition.
func (idx *Index) Reconcile(ctx context.Context, users []UserAttributes) error {
	// Drop every existing location set first, so a province or city that no
	// user holds any more does not keep its stale members.
	for _, pattern := range []string{provinceKey("*"), cityKey("*")} {
		var cursor uint64
		for {
			keys, next, err := idx.store.Scan(ctx, cursor, pattern, 200)
			if err == nil && len(keys) > 0 {
				err = idx.store.Del(ctx, keys...)
			}
			if err != nil {
				return fmt.Errorf("index: clear stale %s sets: %w", pattern, err)
			}
			if cursor = next; cursor == 0 {
				break
			}
		}
	}

	provinces := map[string][]string{}
	cities := map[string][]string{}
	var nonRegistered []string

	for _, u := range users {
		if u.Province != "" {
			provinces[u.Province] = append(provinces[u.Province], u.UserID)
		}
		if u.City != "" {
			cities[u.City] = append(cities[u.City], u.UserID)
		}
		if !u.IsRegistered {
			nonRegistered = append(nonRegistered, u.UserID)
		}
	}

	if err := idx.resetSet(ctx, nonRegisteredKey, nonRegistered); err != nil {
		return err
	}
	for province, members := range provinces {
		if err := idx.resetSet(ctx, provinceKey(province), members); err != nil {
			return err
		}
	}
	for city, members := range cities {
		if err := idx.resetSet(ctx, cityKey(city), members); err != nil {
			return err
		}
	}
	return nil
}

func (idx *Index) resetSet(ctx context.Context, key string, members []string) error {
	existing, err := idx.store.SMembers(ctx, key)
	if err != nil {
		return fmt.Errorf("index: read %s: %w", key, err)
	}
	if len(existing) > 0 {
		if err := idx.store.SRem(ctx, key, existing...); err != nil {
			return fmt.Errorf("index: clear %s: %w", key, err)
		}
	}
	if len(members) > 0 {
		if err := idx.store.SAdd(ctx, key, members...); err != nil {
			return fmt.Errorf("index: populate %s: %w", key, err)
		}
	}
	return nil
}
