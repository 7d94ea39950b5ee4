package cart

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"time"
)

// StorageKey is the durable storage key holding the cart items
const StorageKey = "cart"

const snapshotVersion = 1

var ErrCorruptPayload = errors.New("cart payload is not valid JSON")

type snapshot struct {
	Version int               `json:"version"`
	Items   []json.RawMessage `json:"items"`
	SavedAt time.Time         `json:"savedAt"`
}

// Encode serializes items for durable storage. The selection is not persisted.
func Encode(items []LineItem, savedAt time.Time) ([]byte, error) {
	raw := make([]json.RawMessage, 0, len(items))
	for _, it := range items {
		b, err := json.Marshal(it)
		if err != nil {
			return nil, fmt.Errorf("failed to marshal line %s: %w", it.UID, err)
		}
		raw = append(raw, b)
	}
	return json.Marshal(snapshot{Version: snapshotVersion, Items: raw, SavedAt: savedAt.UTC()})
}

// Decode parses a stored payload, either a versioned snapshot or a bare array of
// lines. Entries that cannot be decoded are skipped and counted in dropped;
// semantic validation happens in Hydrate.
func Decode(data []byte) (items []LineItem, dropped int, err error) {
	trimmed := bytes.TrimSpace(data)

	var entries []json.RawMessage
	switch {
	case len(trimmed) > 0 && trimmed[0] == '[':
		if err := json.Unmarshal(trimmed, &entries); err != nil {
			return nil, 0, fmt.Errorf("%w: %v", ErrCorruptPayload, err)
		}
	default:
		var snap snapshot
		if err := json.Unmarshal(trimmed, &snap); err != nil {
			return nil, 0, fmt.Errorf("%w: %v", ErrCorruptPayload, err)
		}
		entries = snap.Items
	}

	items = make([]LineItem, 0, len(entries))
	for _, raw := range entries {
		var it LineItem
		if err := json.Unmarshal(raw, &it); err != nil {
			dropped++
			continue
		}
		items = append(items, it)
	}
	return items, dropped, nil
}
