// Package binding implements the device-id to MAC-address cache of
// spec.md §3: an in-process LRU keyed by device-id, with weak entries
// created from received I-Am frames. This cache is deliberately
// independent of pkg/mstp so it can sit above a second datalink front
// end unchanged, per spec.md §1.
package binding

import (
	lru "github.com/hashicorp/golang-lru/v2"
	log "github.com/sirupsen/logrus"
)

// MaxBindings bounds the in-process LRU; evicting the least-recently-
// used entry when exceeded, per §3.
const MaxBindings = 4096

// Segmentation describes a remote device's segmentation support, part of
// the binding record an I-Am frame supplies.
type Segmentation uint8

const (
	SegmentationBoth Segmentation = iota
	SegmentationTransmit
	SegmentationReceive
	SegmentationNone
)

// Entry is the cached mapping for one device-id, §3.
type Entry struct {
	DeviceID     uint32
	MAC          byte
	MaxAPDU      uint32
	Segmentation Segmentation
	LastSeen     int64 // unix seconds, caller-supplied
}

// Cache is an LRU-evicted device-id -> Entry map. The zero value is not
// usable; use New. Safe for single-goroutine use only, matching the rest
// of the datalink core's single-threaded-cooperative model (§5).
type Cache struct {
	lru *lru.Cache[uint32, Entry]
	Log *log.Entry

	// Store, when set, persists every Bind and is consulted by Lookup on
	// a local cache miss.
	Store Store
}

// Store is the optional persistence interface a Cache can be backed by,
// so bindings survive a process restart. pkg/binding/redis.go implements
// it over Redis; a Cache works purely in-memory with a nil Store.
type Store interface {
	Save(Entry) error
	Load(deviceID uint32) (Entry, bool, error)
}

// New creates a Cache with capacity MaxBindings.
func New() *Cache {
	c, err := lru.New[uint32, Entry](MaxBindings)
	if err != nil {
		// lru.New only errors on size <= 0, which MaxBindings never is.
		panic(err)
	}
	return &Cache{lru: c, Log: log.WithField("component", "binding")}
}

// Bind records or refreshes a device-id -> MAC binding from a received
// I-Am frame. An I-Am from an already-known device refreshes LastSeen
// only, per §3; other fields are left as first learned unless the
// device-id was not previously known.
func (c *Cache) Bind(e Entry) {
	if existing, ok := c.lru.Get(e.DeviceID); ok {
		existing.LastSeen = e.LastSeen
		e = existing
	}
	c.lru.Add(e.DeviceID, e)
	if c.Store != nil {
		if err := c.Store.Save(e); err != nil && c.Log != nil {
			c.Log.WithError(err).Warn("failed to persist binding")
		}
	}
}

// Lookup returns the cached binding for deviceID, consulting Store on a
// local miss when one is configured.
func (c *Cache) Lookup(deviceID uint32) (Entry, bool) {
	if e, ok := c.lru.Get(deviceID); ok {
		return e, true
	}
	if c.Store == nil {
		return Entry{}, false
	}
	e, ok, err := c.Store.Load(deviceID)
	if err != nil {
		if c.Log != nil {
			c.Log.WithError(err).Warn("failed to load binding from store")
		}
		return Entry{}, false
	}
	if ok {
		c.lru.Add(deviceID, e)
	}
	return e, ok
}

// Len reports how many bindings are cached locally.
func (c *Cache) Len() int { return c.lru.Len() }

// Remove evicts deviceID from the local cache.
func (c *Cache) Remove(deviceID uint32) { c.lru.Remove(deviceID) }
