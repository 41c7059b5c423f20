package indicator

// Shift moves every defined value of seq by offset positions.
//
// The value at i lands at i+offset when that index is inside [0, len(seq));
// otherwise it is dropped. Positions nothing lands on are nil. A constant
// shift over a dense index range never maps two sources to one
// destination, so there is nothing to merge. offset 0 returns a copy.
func Shift[T any](seq []*T, offset int) []*T {
	out := make([]*T, len(seq))
	if offset == 0 {
		copy(out, seq)
		return out
	}
	for i, v := range seq {
		if v == nil {
			continue
		}
		j := i + offset
		if j < 0 || j >= len(seq) {
			continue
		}
		out[j] = v
	}
	return out
}
