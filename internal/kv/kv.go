// Package kv is a small in-process key/value store with per-entry TTLs and
// an NX-style (set-if-absent) primitive. cmd/liquidator uses it to keep a
// TTL'd mirror of the latest DecisionTrace per user (SetEx from the trace
// store's record hook). The store lives in the process's own memory, so no
// other process can read it, and nothing in this repository uses SetNX as a
// lock: the orchestrator's in-flight guard is its own map. Values are
// msgpack-encoded on the way in and out,
// the same wire format aristath-sentinel's display bridge uses for its
// arduino-router RPC, so the store's contents would decode unchanged if this
// ever moved behind a real network KV.
package kv

import (
	"sync"
	"time"

	"github.com/vmihailenco/msgpack/v5"
)

type entry struct {
	value   []byte
	expires time.Time // zero means no expiry
}

// Store is a mutex-guarded key/value map with per-entry TTLs and an NX
// (set-if-absent) primitive, safe for concurrent use.
type Store struct {
	mu      sync.Mutex
	entries map[string]entry
}

// New builds an empty Store.
func New() *Store {
	return &Store{entries: make(map[string]entry)}
}

func (s *Store) liveLocked(key string, now time.Time) (entry, bool) {
	e, ok := s.entries[key]
	if !ok {
		return entry{}, false
	}
	if !e.expires.IsZero() && now.After(e.expires) {
		delete(s.entries, key)
		return entry{}, false
	}
	return e, true
}

// SetNX sets key to value with the given TTL only if key is not already
// present (or has expired), returning true if the set took effect. A key
// set this way stays held until it expires or is explicitly deleted.
func (s *Store) SetNX(key string, value any, ttl time.Duration) (bool, error) {
	data, err := msgpack.Marshal(value)
	if err != nil {
		return false, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	now := time.Now()
	if _, ok := s.liveLocked(key, now); ok {
		return false, nil
	}
	exp := time.Time{}
	if ttl > 0 {
		exp = now.Add(ttl)
	}
	s.entries[key] = entry{value: data, expires: exp}
	return true, nil
}

// SetEx unconditionally sets key to value with the given TTL, overwriting
// any existing entry. Used to mirror the latest DecisionTrace per user.
func (s *Store) SetEx(key string, value any, ttl time.Duration) error {
	data, err := msgpack.Marshal(value)
	if err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	exp := time.Time{}
	if ttl > 0 {
		exp = time.Now().Add(ttl)
	}
	s.entries[key] = entry{value: data, expires: exp}
	return nil
}

// Get decodes key's current value into dest, returning false if the key is
// absent or expired.
func (s *Store) Get(key string, dest any) (bool, error) {
	s.mu.Lock()
	e, ok := s.liveLocked(key, time.Now())
	s.mu.Unlock()
	if !ok {
		return false, nil
	}
	if err := msgpack.Unmarshal(e.value, dest); err != nil {
		return false, err
	}
	return true, nil
}

// Delete removes key, releasing a SetNX-held key early rather than waiting
// out its TTL.
func (s *Store) Delete(key string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.entries, key)
}

// Len reports the number of entries, live or expired-but-not-yet-swept; used
// only by diagnostics.
func (s *Store) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.entries)
}

// Sweep deletes every expired entry, bounding memory growth for a long-lived
// process that never calls Get/SetNX on a stale key again.
func (s *Store) Sweep() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	now := time.Now()
	removed := 0
	for k, e := range s.entries {
		if !e.expires.IsZero() && now.After(e.expires) {
			delete(s.entries, k)
			removed++
		}
	}
	return removed
}
