package vm

// EnumeratorCache remembers the for-in key list of the last receiver shape
// seen at a site. Lists are only cached for receivers whose whole chain is
// described by shapes; the prototype epoch guards the inherited part.
type EnumeratorCache struct {
	shape  *Shape
	epoch  uint64
	keys   []PropertyKey
	hits   uint64
	misses uint64
}

func (ec *EnumeratorCache) Hits() uint64   { return ec.hits }
func (ec *EnumeratorCache) Misses() uint64 { return ec.misses }

func (ec *EnumeratorCache) reset() {
	ec.shape = nil
	ec.keys = nil
}

// EnumerateKeys returns the enumerable string keys of o and its prototypes
// in for-in order: own keys first in OwnPropertyKeys order, then each
// prototype's keys not already seen. Shadowed keys are skipped even when
// the shadowing property is not enumerable.
func (r *Realm) EnumerateKeys(cache *EnumeratorCache, o *Object) ([]PropertyKey, error) {
	var shape *Shape
	epoch := r.epoch.Load()
	if cache != nil {
		shape = o.Shape()
		if cache.shape == shape && cache.epoch == epoch {
			cache.hits++
			r.stats.enumeratorHits.Add(1)
			return cache.keys, nil
		}
		cache.misses++
		r.stats.enumeratorMisses.Add(1)
	}

	cacheable := cache != nil && !shape.dictionary
	var keys []PropertyKey
	visited := make(map[PropertyKey]struct{})
	depth := 0
	for cur := o; cur != nil; depth++ {
		if depth > r.opts.MaxPrototypeChainDepth {
			return nil, r.rangeError("Maximum prototype chain depth exceeded")
		}
		switch cur.kind {
		case KindOrdinary, KindFunction:
		default:
			cacheable = false
		}
		own, err := r.ownPropertyKeys(cur)
		if err != nil {
			return nil, err
		}
		for _, k := range own {
			if k.IsSymbol() {
				continue
			}
			if _, seen := visited[k]; seen {
				continue
			}
			visited[k] = struct{}{}
			p, ok, err := r.getOwnProperty(cur, k)
			if err != nil {
				return nil, err
			}
			if ok && p.attrs.Enumerable() {
				keys = append(keys, k)
			}
		}
		next, err := r.getPrototypeOf(cur)
		if err != nil {
			return nil, err
		}
		cur = next
	}

	if cacheable {
		cache.shape, cache.epoch, cache.keys = shape, epoch, keys
		shape.pinned.Store(r.generation.Load())
	}
	return keys, nil
}
