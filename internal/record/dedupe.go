package record

// Dedupe merges lists into one collection unique by ID. An ID keeps the
// position where it was first seen and the field values of its last
// occurrence, so retried or repeated entries never reorder the list.
func Dedupe(lists ...[]Record) []Record {
	n := 0
	for _, l := range lists {
		n += len(l)
	}
	pos := make(map[string]int, n)
	out := make([]Record, 0, n)
	for _, l := range lists {
		for _, r := range l {
			if i, ok := pos[r.ID]; ok {
				out[i] = r
				continue
			}
			pos[r.ID] = len(out)
			out = append(out, r)
		}
	}
	return out
}
