package book

import "sort"

// side is a sorted vector of price levels with binary-search upsert/remove.
// It is the recommended implementation for bounded L2 depths (spec §4.5,
// §9: "sorted vector + binary search for bounded L2 depths"). descending
// controls sort order: true for bids (best = highest price first), false
// for asks (best = lowest price first).
type side struct {
	levels     []Level
	descending bool
}

func newSide(descending bool) *side {
	return &side{descending: descending}
}

// less reports whether price a sorts before price b for this side.
func (s *side) less(a, b Level) bool {
	cmp := a.Price.Cmp(b.Price)
	if s.descending {
		return cmp > 0
	}
	return cmp < 0
}

// find returns the index of price, or the insertion point if absent, and
// whether it was found exactly.
func (s *side) find(price Level) (int, bool) {
	idx := sort.Search(len(s.levels), func(i int) bool {
		return !s.less(s.levels[i], price)
	})
	if idx < len(s.levels) && s.levels[idx].Price.Equal(price.Price) {
		return idx, true
	}
	return idx, false
}

// upsert inserts or updates a level with amount > 0, or removes the level
// at that price if amount == 0. Sides remain sorted and contain no
// duplicate prices and no zero-amount levels (spec §3 invariants).
func (s *side) upsert(l Level) {
	idx, found := s.find(l)
	if l.IsRemoval() {
		if found {
			s.levels = append(s.levels[:idx], s.levels[idx+1:]...)
		}
		return
	}
	if found {
		s.levels[idx] = l
		return
	}
	s.levels = append(s.levels, Level{})
	copy(s.levels[idx+1:], s.levels[idx:])
	s.levels[idx] = l
}

// best returns the first level (best price) on this side.
func (s *side) best() (Level, bool) {
	if len(s.levels) == 0 {
		return Level{}, false
	}
	return s.levels[0], true
}

// clone deep-copies the side's levels for publication to readers.
func (s *side) clone() *side {
	out := &side{descending: s.descending, levels: make([]Level, len(s.levels))}
	copy(out.levels, s.levels)
	return out
}
