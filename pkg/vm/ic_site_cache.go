package vm

// SiteTable holds the inline caches of one code unit, indexed by access
// site number. Caches are allocated lazily on first use.
type SiteTable struct {
	limit       int
	caches      []*PropInlineCache
	enumerators []*EnumeratorCache
}

// NewSiteTable returns a table whose caches use the realm's polymorphic limit.
func (r *Realm) NewSiteTable(sites int) *SiteTable {
	t := &SiteTable{limit: r.opts.MaxPolymorphicEntries}
	if sites > 0 {
		t.caches = make([]*PropInlineCache, sites)
	}
	return t
}

// MaxSite is the highest site number backed by the table.
const MaxSite = 1 << 20

// Site returns the inline cache for a specific property access site.
func (t *SiteTable) Site(site int) *PropInlineCache {
	if site < 0 || site > MaxSite {
		// No stable location, return a throwaway cache.
		return NewPropInlineCache(t.limit)
	}
	if site >= len(t.caches) {
		grown := make([]*PropInlineCache, site+1)
		copy(grown, t.caches)
		t.caches = grown
	}
	ic := t.caches[site]
	if ic == nil {
		ic = NewPropInlineCache(t.limit)
		t.caches[site] = ic
	}
	return ic
}

// Enumerator returns the for-in enumerator cache for a site.
func (t *SiteTable) Enumerator(site int) *EnumeratorCache {
	if site < 0 || site > MaxSite {
		return &EnumeratorCache{}
	}
	if site >= len(t.enumerators) {
		grown := make([]*EnumeratorCache, site+1)
		copy(grown, t.enumerators)
		t.enumerators = grown
	}
	ec := t.enumerators[site]
	if ec == nil {
		ec = &EnumeratorCache{}
		t.enumerators[site] = ec
	}
	return ec
}

// Len returns the number of allocated site slots.
func (t *SiteTable) Len() int { return len(t.caches) }

// Range calls fn for each allocated inline cache in site order.
func (t *SiteTable) Range(fn func(site int, ic *PropInlineCache)) {
	for i, ic := range t.caches {
		if ic != nil {
			fn(i, ic)
		}
	}
}

// Reset clears every non-megamorphic cache in the table.
func (t *SiteTable) Reset() {
	for _, ic := range t.caches {
		if ic != nil {
			ic.resetCache()
		}
	}
	for _, ec := range t.enumerators {
		if ec != nil {
			ec.reset()
		}
	}
}
