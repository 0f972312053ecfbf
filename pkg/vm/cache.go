package vm

import "fmt"

// PropCacheState represents the different states of inline cache
type PropCacheState uint8

const (
	CacheStateUninitialized PropCacheState = iota
	CacheStateMonomorphic                  // Single shape cached
	CacheStatePolymorphic                  // Several shapes cached, up to the site limit
	CacheStateMegamorphic                  // Too many shapes; permanent, always takes the slow path
)

func (s PropCacheState) String() string {
	switch s {
	case CacheStateUninitialized:
		return "uninitialized"
	case CacheStateMonomorphic:
		return "monomorphic"
	case CacheStatePolymorphic:
		return "polymorphic"
	case CacheStateMegamorphic:
		return "megamorphic"
	default:
		return fmt.Sprintf("state(%d)", s)
	}
}

const (
	DefaultPolymorphicLimit = 4
	MinPolymorphicLimit     = 2
	MaxPolymorphicLimit     = 8
)

// cacheKind is how a cached lookup was resolved.
type cacheKind uint8

const (
	cacheOwnData cacheKind = iota
	cacheOwnAccessor
	cacheProtoData
	cacheProtoAccessor
	cacheAbsent
	cacheAddTransition // put sites: shape -> next shape, value goes to offset
)

func (k cacheKind) String() string {
	switch k {
	case cacheOwnData:
		return "own-data"
	case cacheOwnAccessor:
		return "own-accessor"
	case cacheProtoData:
		return "proto-data"
	case cacheProtoAccessor:
		return "proto-accessor"
	case cacheAbsent:
		return "absent"
	case cacheAddTransition:
		return "add-transition"
	default:
		return fmt.Sprintf("kind(%d)", k)
	}
}

// dependsOnChain reports whether an entry's validity depends on objects
// other than the receiver, and therefore on the prototype epoch.
func (k cacheKind) dependsOnChain() bool {
	switch k {
	case cacheProtoData, cacheProtoAccessor, cacheAbsent, cacheAddTransition:
		return true
	}
	return false
}

// PropCacheEntry represents a single shape entry in the cache
type PropCacheEntry struct {
	shape  *Shape // The receiver shape this entry is valid for
	kind   cacheKind
	holder *Object // Prototype holding the property (proto kinds)
	offset int     // Slot offset in the receiver or holder
	attrs  Attributes
	next   *Shape  // Shape after an add transition
	epoch  uint64  // Prototype epoch at fill time (chain-dependent kinds)
}

func (e *PropCacheEntry) valid(shape *Shape, epoch uint64) bool {
	return e.shape == shape && (!e.kind.dependsOnChain() || e.epoch == epoch)
}

// PropInlineCache represents the inline cache for a property access site
type PropInlineCache struct {
	state      PropCacheState
	entries    [MaxPolymorphicLimit]PropCacheEntry
	entryCount int    // Number of active entries
	limit      int    // Polymorphic entry limit for this site
	hitCount   uint32 // For debugging/metrics
	missCount  uint32 // For debugging/metrics
}

// NewPropInlineCache returns an empty cache holding at most limit shapes
// before going megamorphic. Out-of-range limits are clamped.
func NewPropInlineCache(limit int) *PropInlineCache {
	return &PropInlineCache{limit: clampPolymorphicLimit(limit)}
}

func clampPolymorphicLimit(limit int) int {
	if limit < MinPolymorphicLimit {
		return MinPolymorphicLimit
	}
	if limit > MaxPolymorphicLimit {
		return MaxPolymorphicLimit
	}
	return limit
}

func (ic *PropInlineCache) State() PropCacheState { return ic.state }
func (ic *PropInlineCache) EntryCount() int       { return ic.entryCount }
func (ic *PropInlineCache) Hits() uint32          { return ic.hitCount }
func (ic *PropInlineCache) Misses() uint32        { return ic.missCount }

// lookupInCache returns the entry valid for shape at epoch.
func (ic *PropInlineCache) lookupInCache(shape *Shape, epoch uint64) (PropCacheEntry, bool) {
	switch ic.state {
	case CacheStateMonomorphic:
		if ic.entries[0].valid(shape, epoch) {
			ic.hitCount++
			return ic.entries[0], true
		}
	case CacheStatePolymorphic:
		for i := 0; i < ic.entryCount; i++ {
			if ic.entries[i].valid(shape, epoch) {
				ic.hitCount++
				// Move hit entry to front for better cache locality
				if i > 0 {
					entry := ic.entries[i]
					copy(ic.entries[1:i+1], ic.entries[0:i])
					ic.entries[0] = entry
				}
				return ic.entries[0], true
			}
		}
	}
	ic.missCount++
	return PropCacheEntry{}, false
}

// updateCache records entry. It reports whether the site just became
// megamorphic.
func (ic *PropInlineCache) updateCache(entry PropCacheEntry) bool {
	if ic.limit == 0 {
		ic.limit = DefaultPolymorphicLimit
	}
	switch ic.state {
	case CacheStateUninitialized:
		ic.state = CacheStateMonomorphic
		ic.entries[0] = entry
		ic.entryCount = 1
	case CacheStateMonomorphic, CacheStatePolymorphic:
		for i := 0; i < ic.entryCount; i++ {
			if ic.entries[i].shape == entry.shape {
				ic.entries[i] = entry
				return false
			}
		}
		if ic.entryCount == ic.limit {
			ic.evictStale(entry.epoch)
		}
		if ic.entryCount < ic.limit {
			ic.entries[ic.entryCount] = entry
			ic.entryCount++
			ic.state = CacheStateMonomorphic
			if ic.entryCount > 1 {
				ic.state = CacheStatePolymorphic
			}
			return false
		}
		ic.state = CacheStateMegamorphic
		ic.entryCount = 0
		ic.entries = [MaxPolymorphicLimit]PropCacheEntry{}
		return true
	case CacheStateMegamorphic:
		// Don't cache in megamorphic state
	}
	return false
}

// evictStale drops chain-dependent entries filled under an older epoch.
// They can never hit again, so they should not count toward the limit.
func (ic *PropInlineCache) evictStale(epoch uint64) {
	n := 0
	for i := 0; i < ic.entryCount; i++ {
		e := ic.entries[i]
		if e.kind.dependsOnChain() && e.epoch != epoch {
			continue
		}
		ic.entries[n] = e
		n++
	}
	for i := n; i < ic.entryCount; i++ {
		ic.entries[i] = PropCacheEntry{}
	}
	ic.entryCount = n
	if n == 0 {
		ic.state = CacheStateUninitialized
	}
}

// resetCache clears the inline cache. Megamorphic sites stay megamorphic.
func (ic *PropInlineCache) resetCache() {
	if ic.state == CacheStateMegamorphic {
		return
	}
	ic.state = CacheStateUninitialized
	ic.entryCount = 0
	ic.entries = [MaxPolymorphicLimit]PropCacheEntry{}
}

func (ic *PropInlineCache) String() string {
	return fmt.Sprintf("IC{%s, entries=%d, hits=%d, misses=%d}", ic.state, ic.entryCount, ic.hitCount, ic.missCount)
}
