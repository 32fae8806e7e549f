// Package usage enforces per-user daily message quotas.
//
// Authenticated users are counted in the durable store. Guests, and every
// user when no store is configured, are counted in an in-process cache that
// forgets them at the next UTC midnight.
package usage

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/apkaapna007-a11y/nelson-gpt/internal/chat"
	"github.com/apkaapna007-a11y/nelson-gpt/internal/store"

	cache "github.com/patrickmn/go-cache"
)

const guestCacheCleanupInterval = 10 * time.Minute

type Limits struct {
	AuthDaily  int
	GuestDaily int
}

type Tracker struct {
	store  *store.Store
	limits Limits
	now    func() time.Time

	guestMu sync.Mutex
	guests  *cache.Cache
}

// NewTracker builds a tracker. A nil durable store disables persistence for
// every caller.
func NewTracker(durable *store.Store, limits Limits) *Tracker {
	return &Tracker{
		store:  durable,
		limits: limits,
		now:    time.Now,
		guests: cache.New(cache.NoExpiration, guestCacheCleanupInterval),
	}
}

// WithClock replaces the tracker clock. Intended for tests.
func (t *Tracker) WithClock(now func() time.Time) *Tracker {
	t.now = now
	return t
}

// ValidateAndTrackUsage checks the caller may send another message. It
// returns the store handle that downstream persistence should use, or nil
// when the turn must not be persisted. Nothing is counted here.
func (t *Tracker) ValidateAndTrackUsage(ctx context.Context, userID, model string, isAuthenticated bool) (*store.Store, error) {
	if userID == "" {
		return nil, chat.InvalidUser("User ID is required")
	}

	if t.store == nil || !isAuthenticated {
		if t.guestCount(userID) >= t.limits.GuestDaily {
			return nil, chat.QuotaExceeded("Daily message limit reached. Please sign in to keep chatting.")
		}
		return nil, nil
	}

	record, err := t.store.Usage(ctx, userID)
	if errors.Is(err, store.ErrNotFound) {
		return nil, chat.InvalidUser("User ID does not match an authenticated user")
	}
	if err != nil {
		return nil, fmt.Errorf("check usage for model %q: %w", model, err)
	}
	if record.Anonymous {
		return nil, chat.InvalidUser("User ID does not match an authenticated user")
	}
	if record.DailyCountOn(t.now()) >= t.limits.AuthDaily {
		return nil, chat.QuotaExceeded("Daily message limit reached. Please try again tomorrow.")
	}

	return t.store, nil
}

// IncrementMessageCount records one accepted message. A nil handle counts
// the user as a guest.
func (t *Tracker) IncrementMessageCount(ctx context.Context, handle *store.Store, userID string) error {
	if handle == nil {
		t.incrementGuest(userID)
		return nil
	}
	if err := handle.IncrementMessageCount(ctx, userID); err != nil {
		return fmt.Errorf("increment message count: %w", err)
	}
	return nil
}

// guestCount and incrementGuest lock separately, so concurrent turns from one
// guest can all pass the check before any increment lands.
func (t *Tracker) guestCount(userID string) int {
	t.guestMu.Lock()
	defer t.guestMu.Unlock()

	value, ok := t.guests.Get(t.guestKey(userID))
	if !ok {
		return 0
	}
	count, _ := value.(int)
	return count
}

func (t *Tracker) incrementGuest(userID string) {
	t.guestMu.Lock()
	defer t.guestMu.Unlock()

	key := t.guestKey(userID)
	next := 1
	if value, ok := t.guests.Get(key); ok {
		if count, ok := value.(int); ok {
			next = count + 1
		}
	}
	t.guests.Set(key, next, t.untilMidnight())
}

// Keys carry the UTC day so a stale entry never leaks into the next day even
// before the janitor evicts it.
func (t *Tracker) guestKey(userID string) string {
	return t.now().UTC().Format("2006-01-02") + ":" + userID
}

func (t *Tracker) untilMidnight() time.Duration {
	now := t.now().UTC()
	midnight := time.Date(now.Year(), now.Month(), now.Day()+1, 0, 0, 0, 0, time.UTC)
	return midnight.Sub(now)
}
