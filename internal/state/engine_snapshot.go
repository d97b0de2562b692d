package state

import (
	"context"
	"encoding/json"
	"strings"
)

const EngineSnapshotKey = "engine:last_snapshot"

// EngineSnapshot is the durable slice of engine state: enough to keep
// client order ids monotonic and to sanity-check the reported position
// after a restart. Model state is deliberately not persisted; the models
// re-warm from live data.
type EngineSnapshot struct {
	LastClientID uint64  `json:"last_client_id"`
	Position     float64 `json:"position"`
	UpdatedAtMS  int64   `json:"updated_at_ms"`
}

func LoadEngineSnapshot(ctx context.Context, store Store) (EngineSnapshot, bool, error) {
	if store == nil {
		return EngineSnapshot{}, false, nil
	}
	raw, ok, err := store.Get(ctx, EngineSnapshotKey)
	if err != nil {
		return EngineSnapshot{}, false, err
	}
	if !ok || strings.TrimSpace(raw) == "" {
		return EngineSnapshot{}, false, nil
	}
	var snapshot EngineSnapshot
	if err := json.Unmarshal([]byte(raw), &snapshot); err != nil {
		return EngineSnapshot{}, false, err
	}
	return snapshot, true, nil
}

func SaveEngineSnapshot(ctx context.Context, store Store, snapshot EngineSnapshot) error {
	if store == nil {
		return nil
	}
	payload, err := json.Marshal(snapshot)
	if err != nil {
		return err
	}
	return store.Set(ctx, EngineSnapshotKey, string(payload))
}
