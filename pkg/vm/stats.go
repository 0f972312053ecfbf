package vm

import (
	"fmt"
	"io"
	"sync/atomic"
)

// counters are the realm's live statistics. Readers on other goroutines
// may take a Snapshot at any time.
type counters struct {
	shapesCreated      atomic.Uint64
	transitionHits     atomic.Uint64
	transitionMisses   atomic.Uint64
	dictionaryShapes   atomic.Uint64
	dictionaryPromoted atomic.Uint64
	tablesMaterialized atomic.Uint64
	epochBumps         atomic.Uint64
	objectsCreated     atomic.Uint64

	cacheHits       atomic.Uint64
	cacheMisses     atomic.Uint64
	monomorphicHits atomic.Uint64
	polymorphicHits atomic.Uint64
	protoChainHits  atomic.Uint64
	megamorphicOps  atomic.Uint64
	sitesDemoted    atomic.Uint64

	enumeratorHits   atomic.Uint64
	enumeratorMisses atomic.Uint64

	collections     atomic.Uint64
	shapesCollected atomic.Uint64
}

// Stats is a point-in-time copy of a realm's counters.
type Stats struct {
	ShapesCreated        uint64 `json:"shapesCreated" cbor:"1,keyasint"`
	TransitionHits       uint64 `json:"transitionHits" cbor:"2,keyasint"`
	TransitionMisses     uint64 `json:"transitionMisses" cbor:"3,keyasint"`
	DictionaryShapes     uint64 `json:"dictionaryShapes" cbor:"4,keyasint"`
	DictionaryPromotions uint64 `json:"dictionaryPromotions" cbor:"5,keyasint"`
	TablesMaterialized   uint64 `json:"tablesMaterialized" cbor:"6,keyasint"`
	EpochBumps           uint64 `json:"epochBumps" cbor:"7,keyasint"`
	ObjectsCreated       uint64 `json:"objectsCreated" cbor:"8,keyasint"`

	CacheHits          uint64 `json:"cacheHits" cbor:"9,keyasint"`
	CacheMisses        uint64 `json:"cacheMisses" cbor:"10,keyasint"`
	MonomorphicHits    uint64 `json:"monomorphicHits" cbor:"11,keyasint"`
	PolymorphicHits    uint64 `json:"polymorphicHits" cbor:"12,keyasint"`
	ProtoChainHits     uint64 `json:"protoChainHits" cbor:"13,keyasint"`
	MegamorphicLookups uint64 `json:"megamorphicLookups" cbor:"14,keyasint"`
	SitesDemoted       uint64 `json:"sitesDemoted" cbor:"15,keyasint"`

	EnumeratorHits   uint64 `json:"enumeratorHits" cbor:"16,keyasint"`
	EnumeratorMisses uint64 `json:"enumeratorMisses" cbor:"17,keyasint"`

	Collections     uint64 `json:"collections" cbor:"18,keyasint"`
	ShapesCollected uint64 `json:"shapesCollected" cbor:"19,keyasint"`
	SlotsAllocated  uint64 `json:"slotsAllocated" cbor:"20,keyasint"`
	LiveShapes      uint64 `json:"liveShapes" cbor:"21,keyasint"`
}

func (c *counters) snapshot() Stats {
	return Stats{
		ShapesCreated:        c.shapesCreated.Load(),
		TransitionHits:       c.transitionHits.Load(),
		TransitionMisses:     c.transitionMisses.Load(),
		DictionaryShapes:     c.dictionaryShapes.Load(),
		DictionaryPromotions: c.dictionaryPromoted.Load(),
		TablesMaterialized:   c.tablesMaterialized.Load(),
		EpochBumps:           c.epochBumps.Load(),
		ObjectsCreated:       c.objectsCreated.Load(),
		CacheHits:            c.cacheHits.Load(),
		CacheMisses:          c.cacheMisses.Load(),
		MonomorphicHits:      c.monomorphicHits.Load(),
		PolymorphicHits:      c.polymorphicHits.Load(),
		ProtoChainHits:       c.protoChainHits.Load(),
		MegamorphicLookups:   c.megamorphicOps.Load(),
		SitesDemoted:         c.sitesDemoted.Load(),
		EnumeratorHits:       c.enumeratorHits.Load(),
		EnumeratorMisses:     c.enumeratorMisses.Load(),
		Collections:          c.collections.Load(),
		ShapesCollected:      c.shapesCollected.Load(),
	}
}

// Add returns the field-wise sum of s and o, for totals across realms.
func (s Stats) Add(o Stats) Stats {
	s.ShapesCreated += o.ShapesCreated
	s.TransitionHits += o.TransitionHits
	s.TransitionMisses += o.TransitionMisses
	s.DictionaryShapes += o.DictionaryShapes
	s.DictionaryPromotions += o.DictionaryPromotions
	s.TablesMaterialized += o.TablesMaterialized
	s.EpochBumps += o.EpochBumps
	s.ObjectsCreated += o.ObjectsCreated
	s.CacheHits += o.CacheHits
	s.CacheMisses += o.CacheMisses
	s.MonomorphicHits += o.MonomorphicHits
	s.PolymorphicHits += o.PolymorphicHits
	s.ProtoChainHits += o.ProtoChainHits
	s.MegamorphicLookups += o.MegamorphicLookups
	s.SitesDemoted += o.SitesDemoted
	s.EnumeratorHits += o.EnumeratorHits
	s.EnumeratorMisses += o.EnumeratorMisses
	s.Collections += o.Collections
	s.ShapesCollected += o.ShapesCollected
	s.SlotsAllocated += o.SlotsAllocated
	s.LiveShapes += o.LiveShapes
	return s
}

// HitRate returns the inline cache hit rate in percent.
func (s Stats) HitRate() float64 {
	total := s.CacheHits + s.CacheMisses
	if total == 0 {
		return 0
	}
	return float64(s.CacheHits) / float64(total) * 100.0
}

// WriteTo prints the statistics in the same layout as the IC debug dump.
func (s Stats) WriteTo(w io.Writer) (int64, error) {
	var n int64
	p := func(format string, args ...any) {
		k, _ := fmt.Fprintf(w, format, args...)
		n += int64(k)
	}
	total := s.CacheHits + s.CacheMisses
	if total == 0 {
		p("IC Stats: No cache activity\n")
	} else {
		p("IC Stats: Total: %d, Hits: %d (%.1f%%), Misses: %d\n", total, s.CacheHits, s.HitRate(), s.CacheMisses)
		p("  Monomorphic: %d, Polymorphic: %d, Proto chain: %d, Megamorphic lookups: %d\n",
			s.MonomorphicHits, s.PolymorphicHits, s.ProtoChainHits, s.MegamorphicLookups)
	}
	p("Shapes: live %d, created %d, collected %d, dictionary %d (promotions %d)\n",
		s.LiveShapes, s.ShapesCreated, s.ShapesCollected, s.DictionaryShapes, s.DictionaryPromotions)
	p("Transitions: hits %d, misses %d; epoch bumps %d; slots allocated %d\n",
		s.TransitionHits, s.TransitionMisses, s.EpochBumps, s.SlotsAllocated)
	return n, nil
}
