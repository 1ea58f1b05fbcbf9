package table

import (
	"errors"
	"fmt"
	"strings"

	"github.com/zeebo/xxh3"
)

// ErrMissingKey is returned when a join or dedup key column is not present.
var ErrMissingKey = errors.New("table: key column not found")

// JoinHow selects the join semantics.
type JoinHow string

const (
	JoinInner JoinHow = "inner"
	JoinLeft  JoinHow = "left"
	JoinRight JoinHow = "right"
	JoinOuter JoinHow = "outer"
)

// JoinOptions configures Join. When LeftOn/RightOn are empty, On is used for
// both sides. Suffixes disambiguate non-key columns present on both sides.
type JoinOptions struct {
	How      JoinHow
	On       []string
	LeftOn   []string
	RightOn  []string
	Suffixes [2]string
}

func (o JoinOptions) keys() (left, right []string, err error) {
	left, right = o.LeftOn, o.RightOn
	if len(left) == 0 {
		left = o.On
	}
	if len(right) == 0 {
		right = o.On
	}
	if len(left) == 0 || len(right) == 0 {
		return nil, nil, fmt.Errorf("table: join requires key columns")
	}
	if len(left) != len(right) {
		return nil, nil, fmt.Errorf("table: join has %d left keys and %d right keys", len(left), len(right))
	}
	return left, right, nil
}

// Join combines left and right on key columns. Row order follows the driving
// side: left rows in order for inner/left/outer (outer then appends unmatched
// right rows in right order), right rows in order for right joins. Every
// matching pair produces one output row.
//
// When both sides use the same key name, the key column appears once. When the
// names differ, both key columns are kept. Other columns present on both sides
// get the configured suffixes (default "_x", "_y").
func Join(left, right *Table, opts JoinOptions) (*Table, error) {
	lk, rk, err := opts.keys()
	if err != nil {
		return nil, err
	}
	how := opts.How
	if how == "" {
		how = JoinLeft
	}
	switch how {
	case JoinInner, JoinLeft, JoinRight, JoinOuter:
	default:
		return nil, fmt.Errorf("table: unknown join type %q", how)
	}
	sfx := opts.Suffixes
	if sfx[0] == "" && sfx[1] == "" {
		sfx = [2]string{"_x", "_y"}
	}

	lIdx, err := keyPositions(left, lk)
	if err != nil {
		return nil, fmt.Errorf("left side: %w", err)
	}
	rIdx, err := keyPositions(right, rk)
	if err != nil {
		return nil, fmt.Errorf("right side: %w", err)
	}

	// Shared key names collapse into the left column.
	sharedKey := make(map[string]int, len(rk)) // right key name -> left key position
	for i := range lk {
		if lk[i] == rk[i] {
			sharedKey[rk[i]] = lIdx[i]
		}
	}

	// Output layout.
	var (
		cols      []string
		fromLeft  = make([]int, left.Width())
		fromRight []int // output position for each right column, -1 when collapsed
	)
	for j, c := range left.columns {
		name := c
		if right.Has(c) {
			if _, shared := sharedKey[c]; !shared {
				name = c + sfx[0]
			}
		}
		fromLeft[j] = len(cols)
		cols = append(cols, name)
	}
	fromRight = make([]int, right.Width())
	for j, c := range right.columns {
		if _, shared := sharedKey[c]; shared {
			fromRight[j] = -1
			continue
		}
		name := c
		if left.Has(c) {
			name = c + sfx[1]
		}
		fromRight[j] = len(cols)
		cols = append(cols, name)
	}

	emit := func(l, r []any) []any {
		row := make([]any, len(cols))
		if l != nil {
			for j, v := range l {
				row[fromLeft[j]] = v
			}
		}
		if r != nil {
			for j, v := range r {
				if fromRight[j] >= 0 {
					row[fromRight[j]] = v
				}
			}
			// Fill collapsed keys from the right side when the left is absent.
			if l == nil {
				for j, c := range right.columns {
					if pos, shared := sharedKey[c]; shared {
						row[fromLeft[pos]] = r[j]
					}
				}
			}
		}
		return row
	}

	var out [][]any
	switch how {
	case JoinRight:
		lmap := bucket(left, lIdx)
		for _, r := range right.rows {
			matches := lmap.lookup(r, rIdx, left.rows, lIdx)
			if len(matches) == 0 {
				out = append(out, emit(nil, r))
				continue
			}
			for _, li := range matches {
				out = append(out, emit(left.rows[li], r))
			}
		}
	default:
		rmap := bucket(right, rIdx)
		used := make([]bool, right.Len())
		for _, l := range left.rows {
			matches := rmap.lookup(l, lIdx, right.rows, rIdx)
			if len(matches) == 0 {
				if how != JoinInner {
					out = append(out, emit(l, nil))
				}
				continue
			}
			for _, ri := range matches {
				used[ri] = true
				out = append(out, emit(l, right.rows[ri]))
			}
		}
		if how == JoinOuter {
			for ri, r := range right.rows {
				if !used[ri] {
					out = append(out, emit(nil, r))
				}
			}
		}
	}
	return New(cols, out), nil
}

// DropDuplicates keeps the first row for each distinct tuple of key values.
// It returns the deduplicated table and the number of rows removed.
func (t *Table) DropDuplicates(keys ...string) (*Table, int, error) {
	idx, err := keyPositions(t, keys)
	if err != nil {
		return nil, 0, err
	}
	seen := bucket(Empty(), nil)
	rows := make([][]any, 0, len(t.rows))
	for i, r := range t.rows {
		if len(seen.lookup(r, idx, t.rows, idx)) > 0 {
			continue
		}
		seen.add(r, idx, i)
		rows = append(rows, append([]any(nil), r...))
	}
	return New(t.columns, rows), len(t.rows) - len(rows), nil
}

func keyPositions(t *Table, keys []string) ([]int, error) {
	out := make([]int, len(keys))
	for i, k := range keys {
		j, ok := t.index[k]
		if !ok {
			return nil, fmt.Errorf("%w: %q", ErrMissingKey, k)
		}
		out[i] = j
	}
	return out, nil
}

// keyIndex maps the xxh3 hash of a key tuple to the row numbers carrying it.
// Hash collisions are resolved by comparing the tuples.
type keyIndex map[uint64][]int

func bucket(t *Table, idx []int) keyIndex {
	m := make(keyIndex, t.Len())
	for i, r := range t.rows {
		m.add(r, idx, i)
	}
	return m
}

func (m keyIndex) add(row []any, idx []int, i int) {
	h := xxh3.HashString(keyString(row, idx))
	m[h] = append(m[h], i)
}

func (m keyIndex) lookup(row []any, idx []int, other [][]any, otherIdx []int) []int {
	k := keyString(row, idx)
	cands := m[xxh3.HashString(k)]
	if len(cands) == 0 {
		return nil
	}
	out := cands[:0:0]
	for _, c := range cands {
		if keyString(other[c], otherIdx) == k {
			out = append(out, c)
		}
	}
	return out
}

// keyString joins the textual form of the key cells; missing cells encode as
// NUL so they match each other but never an empty string.
func keyString(row []any, idx []int) string {
	var b strings.Builder
	for n, j := range idx {
		if n > 0 {
			b.WriteByte('\x1f')
		}
		if IsMissing(row[j]) {
			b.WriteByte('\x00')
			continue
		}
		b.WriteString(String(row[j]))
	}
	return b.String()
}
