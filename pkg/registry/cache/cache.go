// Package cache stores registry manifests keyed by repository, tag and content
// variant.
//
// Entries carry the tag's last-updated date from the tag listing. An entry is
// only served while that date matches the caller's expectation; any mismatch
// deletes it from both tiers. Negative entries record that the registry had no
// usable manifest for the tag at that date.
package cache

import (
	"encoding/json"
	"errors"
	"fmt"

	lru "github.com/hashicorp/golang-lru/v2"
	"github.com/sirupsen/logrus"

	"github.com/nicholas-fedor/versiontower/pkg/metrics"
	"github.com/nicholas-fedor/versiontower/pkg/types"
)

// creationDateField is injected into positive payloads.
const creationDateField = "creation_date"

// DefaultMemoryEntries bounds the in-memory tier. Least recently used entries
// are evicted first and reloaded from the store on demand.
const DefaultMemoryEntries = 1024

// Errors for cache writes.
var (
	errEncodePayload = errors.New("failed to encode cache payload")
	errPersistEntry  = errors.New("failed to persist cache entry")
)

// Result is the outcome of a cache lookup.
type Result int

// Lookup results.
const (
	// Miss means the caller must go to the network.
	Miss Result = iota
	// HitValid means a fresh positive entry was found.
	HitValid
	// HitNegative means a fresh negative entry was found.
	HitNegative
)

func (r Result) String() string {
	switch r {
	case HitValid:
		return "hit"
	case HitNegative:
		return "negative_hit"
	default:
		return "miss"
	}
}

// Key identifies a cache entry.
type Key struct {
	Repository string // Repository path, e.g. "library/nginx".
	Tag        string
	Variant    string // Content variant, e.g. "vnd.docker.distribution.manifest.v2+json".
}

func (k Key) String() string {
	return k.Repository + "/" + k.Tag + "/" + k.Variant
}

// Store is the durable tier behind the in-memory LRU.
type Store interface {
	// Load returns the payload for key, reporting false when there is none.
	Load(key Key) ([]byte, bool, error)
	// Save replaces the payload for key.
	Save(key Key, payload []byte) error
	// Delete removes key. Deleting a missing key is not an error.
	Delete(key Key) error
}

// envelope is the part of a payload the cache itself reads.
type envelope struct {
	NegativeEntry bool    `json:"negative_entry"` //nolint:tagliatelle
	CreationDate  *string `json:"creation_date"`  //nolint:tagliatelle
}

// Cache is a two-tier manifest cache.
type Cache struct {
	store    Store
	observer types.RegistryObserver
	memory   *lru.Cache[Key, []byte]
}

// New returns a Cache backed by store holding up to DefaultMemoryEntries in
// memory. A nil store keeps entries in memory only.
func New(store Store, observer types.RegistryObserver) *Cache {
	return NewSized(store, observer, DefaultMemoryEntries)
}

// NewSized is New with the in-memory tier bounded to entries, or
// DefaultMemoryEntries when entries is not positive.
func NewSized(store Store, observer types.RegistryObserver, entries int) *Cache {
	if store == nil {
		store = nopStore{}
	}

	if entries <= 0 {
		entries = DefaultMemoryEntries
	}

	memory, _ := lru.New[Key, []byte](entries) // Only fails for a non-positive size.

	return &Cache{
		store:    store,
		observer: observer,
		memory:   memory,
	}
}

// Get looks up key. The payload is returned for HitValid only.
//
// A nil expectedDate always misses without consulting either tier.
func (c *Cache) Get(key Key, expectedDate *string) (Result, []byte) {
	if expectedDate == nil {
		c.observe(metrics.CacheMiss)

		return Miss, nil
	}

	fields := logrus.Fields{"key": key.String()}

	payload, ok := c.load(key)
	if !ok {
		c.observe(metrics.CacheMiss)

		return Miss, nil
	}

	var entry envelope
	if err := json.Unmarshal(payload, &entry); err != nil {
		logrus.WithError(err).WithFields(fields).Warn("Discarding unreadable cache entry")
		c.delete(key)
		c.observe(metrics.CacheMiss)

		return Miss, nil
	}

	if entry.CreationDate == nil || *entry.CreationDate != *expectedDate {
		cachedDate := ""
		if entry.CreationDate != nil {
			cachedDate = *entry.CreationDate
		}

		logrus.WithFields(fields).WithFields(logrus.Fields{
			"cached_date":   cachedDate,
			"expected_date": *expectedDate,
		}).Debug("Cache entry is stale")
		c.delete(key)
		c.observe(metrics.CacheStale)

		return Miss, nil
	}

	if entry.NegativeEntry {
		c.observe(metrics.CacheNegativeHit)

		return HitNegative, nil
	}

	c.observe(metrics.CacheHit)

	return HitValid, payload
}

// Put stores body under key with the given date. A nil body stores a negative entry.
//
// A positive body must be a JSON object; the date is injected into it.
func (c *Cache) Put(key Key, body []byte, date string) error {
	payload, err := encode(body, date)
	if err != nil {
		return err
	}

	c.memory.Add(key, payload)

	if err := c.store.Save(key, payload); err != nil {
		return fmt.Errorf("%w: %w", errPersistEntry, err)
	}

	return nil
}

func encode(body []byte, date string) ([]byte, error) {
	if body == nil {
		payload, err := json.Marshal(envelope{NegativeEntry: true, CreationDate: &date})
		if err != nil {
			return nil, fmt.Errorf("%w: %w", errEncodePayload, err)
		}

		return payload, nil
	}

	fields := map[string]json.RawMessage{}
	if err := json.Unmarshal(body, &fields); err != nil {
		return nil, fmt.Errorf("%w: %w", errEncodePayload, err)
	}

	encodedDate, err := json.Marshal(date)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", errEncodePayload, err)
	}

	fields[creationDateField] = encodedDate

	payload, err := json.Marshal(fields)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", errEncodePayload, err)
	}

	return payload, nil
}

func (c *Cache) load(key Key) ([]byte, bool) {
	if payload, ok := c.memory.Get(key); ok {
		return payload, true
	}

	payload, ok, err := c.store.Load(key)
	if err != nil {
		logrus.WithError(err).WithField("key", key.String()).Warn("Failed to read cache entry")

		return nil, false
	}

	if !ok {
		return nil, false
	}

	c.memory.Add(key, payload)

	return payload, true
}

func (c *Cache) delete(key Key) {
	c.memory.Remove(key)

	if err := c.store.Delete(key); err != nil {
		logrus.WithError(err).WithField("key", key.String()).Warn("Failed to delete cache entry")
	}
}

func (c *Cache) observe(result string) {
	if c.observer != nil {
		c.observer.CacheLookup(result)
	}
}
