package acoustic

import "github.com/ReadAlongs/soundswallower-go/pkg/model"

// ActiveList is the delta-compressed form of a per-frame active-senone
// bit-vector (§4.3 "Active-senone list"): instead of scanning every senone
// every frame, only the ids the search actually reached are scored. Gaps
// wider than 255 are bridged with placeholder deltas of 255, each adding one
// extra id to the list, trading a handful of harmless extra evaluations for
// keeping every delta in a single byte.
type ActiveList struct {
	base   model.SenoneID
	deltas []uint8
}

// BuildActiveList converts a sorted, deduplicated list of active senone ids
// into its delta-compressed form.
func BuildActiveList(ids []model.SenoneID) ActiveList {
	if len(ids) == 0 {
		return ActiveList{}
	}
	al := ActiveList{base: ids[0]}
	prev := ids[0]
	for _, id := range ids[1:] {
		gap := int(id - prev)
		for gap > 255 {
			al.deltas = append(al.deltas, 255) // bridge: one extra id, harmless
			gap -= 255
		}
		al.deltas = append(al.deltas, uint8(gap))
		prev = id
	}
	return al
}

// SenoneIDs expands the delta-compressed list back into senone ids.
func (a ActiveList) SenoneIDs() []model.SenoneID {
	if len(a.deltas) == 0 && a.base == 0 {
		return nil
	}
	out := make([]model.SenoneID, 0, len(a.deltas)+1)
	out = append(out, a.base)
	cur := a.base
	for _, d := range a.deltas {
		cur += model.SenoneID(d)
		out = append(out, cur)
	}
	return out
}

// Len reports the number of senone ids represented, including bridged
// placeholders.
func (a ActiveList) Len() int {
	if len(a.deltas) == 0 && a.base == 0 {
		return 0
	}
	return len(a.deltas) + 1
}
