package checkout

import (
	"context"
	"time"

	"github.com/example/storefront/internal/infrastructure/storage"
)

// IntentKey is the storage key of the resumable login intent
const IntentKey = "intent"

type IntentType string

const (
	IntentCheckout IntentType = "checkout"
	IntentBuyNow   IntentType = "buy_now"
)

// Intent records where to resume after login
type Intent struct {
	Type       IntentType `json:"type"`
	RedirectTo string     `json:"redirectTo,omitempty"`
	UIDs       []string   `json:"uids,omitempty"`
	Timestamp  time.Time  `json:"timestamp"`
}

// IntentStore keeps at most one intent. Consume deletes it; intents older than
// maxAge are dropped on read.
type IntentStore struct {
	kv     storage.KV
	maxAge time.Duration
	now    func() time.Time
}

func NewIntentStore(kv storage.KV, maxAge time.Duration) *IntentStore {
	return &IntentStore{kv: kv, maxAge: maxAge, now: time.Now}
}

func (s *IntentStore) Save(ctx context.Context, in Intent) error {
	if in.Timestamp.IsZero() {
		in.Timestamp = s.now().UTC()
	}
	return storage.SetJSON(ctx, s.kv, IntentKey, in, s.maxAge)
}

func (s *IntentStore) Consume(ctx context.Context) (Intent, bool, error) {
	in, found, err := storage.TakeJSON[Intent](ctx, s.kv, IntentKey)
	if !found || err != nil {
		return Intent{}, false, err
	}
	if s.maxAge > 0 && s.now().Sub(in.Timestamp) > s.maxAge {
		return Intent{}, false, nil
	}
	return in, true, nil
}
