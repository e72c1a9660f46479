package tlv

// List is an ordered sequence of TLVs. Duplicate types are permitted and
// order is preserved across all operations.
type List []TLV

// CopyList produces a new list containing deep copies of each element,
// preserving order.
func CopyList(l List) List {
	if l == nil {
		return nil
	}
	out := make(List, len(l))
	for i, v := range l {
		out[i] = v.Copy()
	}
	return out
}

// RemoveByType returns a new list with every element whose Type matches t
// removed, preserving the relative order of the remaining elements.
func RemoveByType(l List, t byte) List {
	if l == nil {
		return nil
	}
	out := make(List, 0, len(l))
	for _, v := range l {
		if v.Type == t {
			continue
		}
		out = append(out, v)
	}
	return out
}

// Equal reports whether two lists contain structurally equal elements in
// the same order.
func Equal(a, b List) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if !a[i].Equal(b[i]) {
			return false
		}
	}
	return true
}
