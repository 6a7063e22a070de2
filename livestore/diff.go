package livestore

// Diff is the raw structural difference between two orderings of a query's
// matching records: positions of vanished records in the old ordering,
// positions of appeared records in the new ordering, and positions (in the
// new ordering) of surviving records whose payload was written in between.
// Position lists are ascending.
type Diff struct {
	Insertions    []int
	Deletions     []int
	Modifications []int
}

// IsEmpty reports whether the diff describes no change at all.
func (d Diff) IsEmpty() bool {
	return len(d.Insertions) == 0 && len(d.Deletions) == 0 && len(d.Modifications) == 0
}

// Range describes a contiguous run of positions.
type Range struct {
	Start  int
	Length int
}

// diffKeys computes the positional diff between two slot-ordered key slices.
// modified reports whether a record present in both orderings was written
// between the two snapshots; nil means no modification tracking.
func diffKeys(oldKeys []RowKeyUint, newKeys []RowKeyUint, modified func(key RowKeyUint) bool) Diff {
	oldPositions := make(map[RowKeyUint]int, len(oldKeys))
	for i, key := range oldKeys {
		oldPositions[key] = i
	}

	newPositions := make(map[RowKeyUint]int, len(newKeys))
	for i, key := range newKeys {
		newPositions[key] = i
	}

	var d Diff

	for i, key := range oldKeys {
		if _, survives := newPositions[key]; !survives {
			d.Deletions = append(d.Deletions, i)
		}
	}

	for i, key := range newKeys {
		if _, existed := oldPositions[key]; !existed {
			d.Insertions = append(d.Insertions, i)
			continue
		}

		if modified != nil && modified(key) {
			d.Modifications = append(d.Modifications, i)
		}
	}

	return d
}

// coalesceRanges folds an ascending position list into contiguous ranges:
// [0 1 2 5 7 8] becomes [{0 3} {5 1} {7 2}].
func coalesceRanges(positions []int) []Range {
	if len(positions) == 0 {
		return nil
	}

	ranges := make([]Range, 0, 1)
	current := Range{Start: positions[0], Length: 1}

	for _, p := range positions[1:] {
		if p == current.Start+current.Length {
			current.Length++
			continue
		}

		ranges = append(ranges, current)
		current = Range{Start: p, Length: 1}
	}

	return append(ranges, current)
}
