package store

import (
	"errors"
	"sort"

	"go.uber.org/zap"
)

const (
	InitialBuckets = 256

	// growth is triggered once count exceeds buckets*loadNum/loadDen
	loadNum = 3
	loadDen = 4
)

var (
	ErrInvalidKey   = errors.New("invalid key")
	ErrInvalidValue = errors.New("invalid value: contains newline")
)

type entry struct {
	key   string
	value string
	next  *entry
}

// HashTable is a chained hash table from string keys to string values.
// It is not safe for concurrent use; callers serialize access.
type HashTable struct {
	buckets    []*entry
	count      int
	maxBuckets int
	logger     *zap.Logger
}

type Option func(*HashTable)

func WithLogger(logger *zap.Logger) Option {
	return func(h *HashTable) {
		if logger != nil {
			h.logger = logger
		}
	}
}

// WithMaxBuckets caps how far the bucket array may grow. Zero means no cap.
// Once the cap is reached inserts keep succeeding and chains get longer.
func WithMaxBuckets(n int) Option {
	return func(h *HashTable) {
		h.maxBuckets = n
	}
}

func NewHashTable(opts ...Option) *HashTable {
	h := &HashTable{
		buckets: make([]*entry, InitialBuckets),
		logger:  zap.NewNop(),
	}
	for _, opt := range opts {
		opt(h)
	}
	return h
}

func (h *HashTable) index(key string, n int) int {
	return int(hashKey(key) % uint64(n))
}

func (h *HashTable) Get(key string) (string, bool) {
	for e := h.buckets[h.index(key, len(h.buckets))]; e != nil; e = e.next {
		if e.key == key {
			return e.value, true
		}
	}
	return "", false
}

func (h *HashTable) Set(key, value string) error {
	if !ValidKey(key) {
		return ErrInvalidKey
	}
	if !ValidValue(value) {
		return ErrInvalidValue
	}

	idx := h.index(key, len(h.buckets))
	for e := h.buckets[idx]; e != nil; e = e.next {
		if e.key == key {
			e.value = value
			return nil
		}
	}

	h.buckets[idx] = &entry{key: key, value: value, next: h.buckets[idx]}
	h.count++

	if h.count > len(h.buckets)*loadNum/loadDen {
		h.grow()
	}
	return nil
}

// Delete removes key and reports whether it was present. Removing an absent
// key is not an error.
func (h *HashTable) Delete(key string) bool {
	idx := h.index(key, len(h.buckets))
	var prev *entry
	for e := h.buckets[idx]; e != nil; e = e.next {
		if e.key == key {
			if prev != nil {
				prev.next = e.next
			} else {
				h.buckets[idx] = e.next
			}
			h.count--
			return true
		}
		prev = e
	}
	return false
}

func (h *HashTable) Count() int {
	return h.count
}

// Capacity returns the current number of buckets.
func (h *HashTable) Capacity() int {
	return len(h.buckets)
}

// ForEach calls fn once per entry in bucket order, then chain order.
// fn must not mutate the table.
func (h *HashTable) ForEach(fn func(key, value string)) {
	for _, head := range h.buckets {
		for e := head; e != nil; e = e.next {
			fn(e.key, e.value)
		}
	}
}

// Keys returns every key sorted in byte order.
func (h *HashTable) Keys() []string {
	keys := make([]string, 0, h.count)
	h.ForEach(func(key, _ string) {
		keys = append(keys, key)
	})
	sort.Strings(keys)
	return keys
}

func (h *HashTable) Reset() {
	h.buckets = make([]*entry, InitialBuckets)
	h.count = 0
}

func (h *HashTable) grow() {
	size := len(h.buckets) * 2
	if h.maxBuckets > 0 && size > h.maxBuckets {
		h.logger.Warn("hash table resize refused",
			zap.Int("buckets", len(h.buckets)),
			zap.Int("max_buckets", h.maxBuckets),
			zap.Int("count", h.count),
		)
		return
	}
	h.rehash(size)
}

func (h *HashTable) rehash(size int) {
	buckets := make([]*entry, size)
	for _, head := range h.buckets {
		e := head
		for e != nil {
			next := e.next
			idx := h.index(e.key, size)
			e.next = buckets[idx]
			buckets[idx] = e
			e = next
		}
	}

	h.logger.Debug("hash table resized",
		zap.Int("from", len(h.buckets)),
		zap.Int("to", size),
		zap.Int("count", h.count),
	)
	h.buckets = buckets
}
