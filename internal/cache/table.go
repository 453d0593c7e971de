package cache

// Key is implemented by composite keys that cannot be Go map keys directly,
// such as keys holding an ordered slice of ids.
type Key[K any] interface {
	// Hash returns the bucket hash. Equal keys must hash equally.
	Hash() uint64
	// Equal reports whether two keys are identical.
	Equal(other K) bool
}

// entry is one key/value pair in a bucket.
type entry[K any, V any] struct {
	key   K
	value V
}

// Table is a hash-bucketed map from composite keys to values.
// Entries are never evicted individually; the whole table is dropped
// with Clear.
//
// Table is not safe for concurrent use. Callers serialize access.
type Table[K Key[K], V any] struct {
	buckets map[uint64][]entry[K, V]
	len     int

	hits   uint64
	misses uint64
}

// New creates an empty table.
func New[K Key[K], V any]() *Table[K, V] {
	return &Table[K, V]{
		buckets: make(map[uint64][]entry[K, V]),
	}
}

// find returns the bucket and index of key, or -1.
func (t *Table[K, V]) find(key K) (uint64, int) {
	h := key.Hash()
	for i, e := range t.buckets[h] {
		if e.key.Equal(key) {
			return h, i
		}
	}
	return h, -1
}

// Get retrieves a value.
// Returns (value, true) if found, (zero, false) otherwise.
func (t *Table[K, V]) Get(key K) (V, bool) {
	h, i := t.find(key)
	if i < 0 {
		t.misses++
		var zero V
		return zero, false
	}
	t.hits++
	return t.buckets[h][i].value, true
}

// Peek is Get without touching the hit and miss counters.
func (t *Table[K, V]) Peek(key K) (V, bool) {
	h, i := t.find(key)
	if i < 0 {
		var zero V
		return zero, false
	}
	return t.buckets[h][i].value, true
}

// Insert stores value under key unless the key is already present.
// It reports whether the value was stored; an existing entry is never
// replaced.
func (t *Table[K, V]) Insert(key K, value V) bool {
	h, i := t.find(key)
	if i >= 0 {
		return false
	}
	t.buckets[h] = append(t.buckets[h], entry[K, V]{key: key, value: value})
	t.len++
	return true
}

// GetOrCreate returns the cached value for key or creates it.
// If create fails nothing is stored and the error is returned.
// The created result reports whether create ran.
func (t *Table[K, V]) GetOrCreate(key K, create func() (V, error)) (value V, created bool, err error) {
	if v, ok := t.Get(key); ok {
		return v, false, nil
	}
	v, err := create()
	if err != nil {
		var zero V
		return zero, true, err
	}
	t.Insert(key, v)
	return v, true, nil
}

// Range calls fn for every entry until fn returns false.
// Iteration order is unspecified.
func (t *Table[K, V]) Range(fn func(key K, value V) bool) {
	for _, bucket := range t.buckets {
		for _, e := range bucket {
			if !fn(e.key, e.value) {
				return
			}
		}
	}
}

// Len returns the number of entries.
func (t *Table[K, V]) Len() int {
	return t.len
}

// Clear removes all entries and resets statistics.
func (t *Table[K, V]) Clear() {
	t.buckets = make(map[uint64][]entry[K, V])
	t.len = 0
	t.hits = 0
	t.misses = 0
}

// Stats returns table statistics.
func (t *Table[K, V]) Stats() Stats {
	var rate float64
	if total := t.hits + t.misses; total > 0 {
		rate = float64(t.hits) / float64(total)
	}
	return Stats{
		Len:     t.len,
		Buckets: len(t.buckets),
		Hits:    t.hits,
		Misses:  t.misses,
		HitRate: rate,
	}
}

// Stats contains table statistics.
type Stats struct {
	// Len is the current number of entries.
	Len int
	// Buckets is the number of distinct hashes; Len-Buckets counts collisions.
	Buckets int
	// Hits is the number of successful lookups.
	Hits uint64
	// Misses is the number of failed lookups.
	Misses uint64
	// HitRate is Hits/(Hits+Misses), 0 when there were no lookups.
	HitRate float64
}
