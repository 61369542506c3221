package intersection

// PresenceSet is the set of roads flagged as holding an emergency vehicle.
// The zero value is an empty set.
type PresenceSet struct {
	roads map[Road]struct{}
}

// NewPresenceSet builds a set from the given roads.
func NewPresenceSet(roads ...Road) PresenceSet {
	p := PresenceSet{roads: make(map[Road]struct{}, len(roads))}
	for _, r := range roads {
		p.roads[r] = struct{}{}
	}
	return p
}

// Has reports whether road is flagged.
func (p PresenceSet) Has(road Road) bool {
	_, ok := p.roads[road]
	return ok
}

// Len returns the number of flagged roads.
func (p PresenceSet) Len() int { return len(p.roads) }

// Empty reports whether no road is flagged.
func (p PresenceSet) Empty() bool { return len(p.roads) == 0 }

// Ordered returns the flagged roads in the order they appear in roads.
// Flagged roads that are not in roads are dropped.
func (p PresenceSet) Ordered(roads []Road) []Road {
	out := make([]Road, 0, len(p.roads))
	for _, r := range roads {
		if p.Has(r) {
			out = append(out, r)
		}
	}
	return out
}
