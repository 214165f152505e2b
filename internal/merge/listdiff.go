package merge

// OpKind is the kind of one edit operation.
type OpKind uint8

const (
	OpKeep OpKind = iota
	OpInsert
	OpSubstitute
	OpDelete
)

func (k OpKind) String() string {
	switch k {
	case OpKeep:
		return "keep"
	case OpInsert:
		return "insert"
	case OpSubstitute:
		return "substitute"
	case OpDelete:
		return "delete"
	}
	return "unknown"
}

// Op is one step of an edit script. Old and New index the input
// sequences, -1 when the operation has no element on that side.
type Op struct {
	Kind OpKind
	Old  int
	New  int
}

// Diff computes a minimal edit script turning old into new, comparing
// elements by key. Operations are returned in sequence order.
func Diff[T any, K comparable](old, new []T, key func(T) K) []Op {
	n, m := len(old), len(new)
	oldKeys := make([]K, n)
	for i, v := range old {
		oldKeys[i] = key(v)
	}
	newKeys := make([]K, m)
	for j, v := range new {
		newKeys[j] = key(v)
	}

	// d[i][j] is the edit distance between old[i:] and new[j:].
	d := make([][]int, n+1)
	for i := range d {
		d[i] = make([]int, m+1)
	}
	for i := n; i >= 0; i-- {
		for j := m; j >= 0; j-- {
			switch {
			case i == n:
				d[i][j] = m - j
			case j == m:
				d[i][j] = n - i
			case oldKeys[i] == newKeys[j]:
				d[i][j] = d[i+1][j+1]
			default:
				d[i][j] = 1 + min(d[i+1][j+1], d[i+1][j], d[i][j+1])
			}
		}
	}

	ops := make([]Op, 0, max(n, m))
	i, j := 0, 0
	for i < n || j < m {
		switch {
		case i < n && j < m && oldKeys[i] == newKeys[j] && d[i][j] == d[i+1][j+1]:
			ops = append(ops, Op{Kind: OpKeep, Old: i, New: j})
			i++
			j++
		// Deletions and insertions go before substitutions of equal cost so
		// that elements present on both sides are kept rather than replaced.
		case i < n && d[i][j] == 1+d[i+1][j]:
			ops = append(ops, Op{Kind: OpDelete, Old: i, New: -1})
			i++
		case j < m && d[i][j] == 1+d[i][j+1]:
			ops = append(ops, Op{Kind: OpInsert, Old: -1, New: j})
			j++
		default:
			ops = append(ops, Op{Kind: OpSubstitute, Old: i, New: j})
			i++
			j++
		}
	}
	return ops
}

// Sequence is an ordered list of children that an edit script can patch.
type Sequence[N comparable] interface {
	// InsertBefore inserts node before ref; a zero ref appends.
	InsertBefore(node, ref N)
	// Replace puts node in place of old.
	Replace(old, node N)
	// Remove takes node out of the sequence.
	Remove(node N)
}

// Retain decides whether an old node leaving the sequence stays in place
// for now. For deletions replacement is the zero value and substituted is false.
// Retained nodes are the caller's to remove later.
type Retain[N comparable] func(old, replacement N, substituted bool) bool

// Stats counts the applied operations.
type Stats struct {
	Kept        int
	Inserted    int
	Substituted int
	Deleted     int
	Retained    int
}

// Apply patches seq, currently holding old, so that it holds new.
func Apply[N comparable](seq Sequence[N], old, new []N, ops []Op, retain Retain[N]) Stats {
	var st Stats
	var zero N
	next := 0 // first old element not consumed yet
	anchor := func() N {
		if next < len(old) {
			return old[next]
		}
		return zero
	}

	for _, op := range ops {
		switch op.Kind {
		case OpKeep:
			st.Kept++
			next++
		case OpInsert:
			seq.InsertBefore(new[op.New], anchor())
			st.Inserted++
		case OpSubstitute:
			o, n := old[op.Old], new[op.New]
			if retain != nil && retain(o, n, true) {
				seq.InsertBefore(n, o)
				st.Retained++
			} else {
				seq.Replace(o, n)
			}
			st.Substituted++
			next++
		case OpDelete:
			o := old[op.Old]
			if retain != nil && retain(o, zero, false) {
				st.Retained++
			} else {
				seq.Remove(o)
			}
			st.Deleted++
			next++
		}
	}
	return st
}
