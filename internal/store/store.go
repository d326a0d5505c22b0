// Package store persists per-destination subscription records, the
// destination index, and operator session bindings on top of a key-value
// store.
//
// The backing store provides no cross-key transactions; every mutation is
// a read-modify-write of a single destination record. A command-driven
// write racing an in-flight sync run is an accepted eventual-consistency
// window: the next run observes it.
package store

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"feedrelay/internal/kv"
)

const (
	indexKey   = "destination-index"
	sessionTTL = 7 * 24 * time.Hour
)

func destinationKey(id string) string { return "destination:" + id }
func sessionKey(operatorID string) string {
	return "session:" + operatorID
}

// Config is one destination's subscription record: the ordered feed list
// and, per feed URL, the link of the most-recently-delivered item.
type Config struct {
	Feeds   []string          `json:"feeds"`
	Cursors map[string]string `json:"last"`
}

// Store manages subscription records in a key-value store.
type Store struct {
	kv kv.Store
}

// New creates a Store on top of the given key-value store.
func New(s kv.Store) *Store {
	return &Store{kv: s}
}

// GetConfig returns the destination's record, or a zero-value record if
// none exists. Malformed or missing fields are coerced to their zero
// shapes, never surfaced as errors.
func (s *Store) GetConfig(ctx context.Context, destinationID string) (Config, error) {
	raw, found, err := s.kv.Get(ctx, destinationKey(destinationID))
	if err != nil {
		return Config{}, fmt.Errorf("get destination %s: %w", destinationID, err)
	}
	if !found {
		return Config{Feeds: []string{}, Cursors: map[string]string{}}, nil
	}
	return decodeConfig([]byte(raw)), nil
}

// SaveConfig normalizes and persists the destination's record, and
// registers the destination in the index.
func (s *Store) SaveConfig(ctx context.Context, destinationID string, cfg Config) error {
	data, err := json.Marshal(normalize(cfg))
	if err != nil {
		return fmt.Errorf("marshal config: %w", err)
	}
	if err := s.kv.Set(ctx, destinationKey(destinationID), string(data)); err != nil {
		return fmt.Errorf("save destination %s: %w", destinationID, err)
	}
	if err := s.kv.AddToSet(ctx, indexKey, destinationID); err != nil {
		return fmt.Errorf("index destination %s: %w", destinationID, err)
	}
	return nil
}

// ListDestinationIDs returns the IDs of all destinations in the index.
// Order is not significant.
func (s *Store) ListDestinationIDs(ctx context.Context) ([]string, error) {
	ids, err := s.kv.SetMembers(ctx, indexKey)
	if err != nil {
		return nil, fmt.Errorf("list destinations: %w", err)
	}
	return ids, nil
}

// DeleteDestination removes the destination's record and its index entry.
// Deleting a non-existent destination is a no-op.
func (s *Store) DeleteDestination(ctx context.Context, destinationID string) error {
	if err := s.kv.Delete(ctx, destinationKey(destinationID)); err != nil {
		return fmt.Errorf("delete destination %s: %w", destinationID, err)
	}
	if err := s.kv.RemoveFromSet(ctx, indexKey, destinationID); err != nil {
		return fmt.Errorf("deindex destination %s: %w", destinationID, err)
	}
	return nil
}

// AddFeed appends feedURL to the destination's feed list and returns the
// updated record. Adding an already-present URL is a no-op.
func (s *Store) AddFeed(ctx context.Context, destinationID, feedURL string) (Config, error) {
	cfg, err := s.GetConfig(ctx, destinationID)
	if err != nil {
		return Config{}, err
	}
	present := false
	for _, u := range cfg.Feeds {
		if u == feedURL {
			present = true
			break
		}
	}
	if !present {
		cfg.Feeds = append(cfg.Feeds, feedURL)
	}
	if err := s.SaveConfig(ctx, destinationID, cfg); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// RemoveFeed removes feedURL from the destination's feed list and prunes
// its cursor entry. Removing an absent URL is a no-op.
func (s *Store) RemoveFeed(ctx context.Context, destinationID, feedURL string) (Config, error) {
	cfg, err := s.GetConfig(ctx, destinationID)
	if err != nil {
		return Config{}, err
	}
	feeds := cfg.Feeds[:0]
	for _, u := range cfg.Feeds {
		if u != feedURL {
			feeds = append(feeds, u)
		}
	}
	cfg.Feeds = feeds
	delete(cfg.Cursors, feedURL)
	if err := s.SaveConfig(ctx, destinationID, cfg); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

type session struct {
	Target string `json:"target"`
}

// BindSession maps the operator to a target destination, overwriting any
// prior binding, with a 7-day expiry.
func (s *Store) BindSession(ctx context.Context, operatorID, destinationID string) error {
	data, err := json.Marshal(session{Target: destinationID})
	if err != nil {
		return fmt.Errorf("marshal session: %w", err)
	}
	key := sessionKey(operatorID)
	if err := s.kv.Set(ctx, key, string(data)); err != nil {
		return fmt.Errorf("bind session %s: %w", operatorID, err)
	}
	if err := s.kv.Expire(ctx, key, sessionTTL); err != nil {
		return fmt.Errorf("expire session %s: %w", operatorID, err)
	}
	return nil
}

// BoundTarget returns the destination the operator is currently bound to,
// or "" if unbound or expired.
func (s *Store) BoundTarget(ctx context.Context, operatorID string) (string, error) {
	raw, found, err := s.kv.Get(ctx, sessionKey(operatorID))
	if err != nil {
		return "", fmt.Errorf("get session %s: %w", operatorID, err)
	}
	if !found {
		return "", nil
	}
	var v session
	if err := json.Unmarshal([]byte(raw), &v); err != nil {
		return "", nil
	}
	return v.Target, nil
}

// ClearBoundTarget removes the operator's session binding, if any.
func (s *Store) ClearBoundTarget(ctx context.Context, operatorID string) error {
	if err := s.kv.Delete(ctx, sessionKey(operatorID)); err != nil {
		return fmt.Errorf("clear session %s: %w", operatorID, err)
	}
	return nil
}

func normalize(cfg Config) Config {
	if cfg.Feeds == nil {
		cfg.Feeds = []string{}
	}
	if cfg.Cursors == nil {
		cfg.Cursors = map[string]string{}
	}
	return cfg
}

// decodeConfig tolerates records written by other tooling: unknown fields
// are ignored, and a field of the wrong shape degrades to its zero shape
// instead of failing the whole record.
func decodeConfig(raw []byte) Config {
	cfg := Config{Feeds: []string{}, Cursors: map[string]string{}}

	var fields map[string]json.RawMessage
	if err := json.Unmarshal(raw, &fields); err != nil {
		return cfg
	}

	if data, ok := fields["feeds"]; ok {
		var feeds []string
		if err := json.Unmarshal(data, &feeds); err == nil && feeds != nil {
			cfg.Feeds = feeds
		}
	}
	if data, ok := fields["last"]; ok {
		var cursors map[string]string
		if err := json.Unmarshal(data, &cursors); err == nil && cursors != nil {
			cfg.Cursors = cursors
		}
	}
	return cfg
}
