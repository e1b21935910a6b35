// Package ruleindex matches request paths against a Snapshot's compiled
// rule vectors and performs $1..$n capture-group substitution into a rule's
// target template. An Index wraps one immutable Snapshot; callers compare
// generations to decide when to fetch a fresher one, and anyone already
// holding an Index may keep matching against it indefinitely — rebuild never
// mutates a live Index.
package ruleindex

import (
	"strings"

	"github.com/wirelane/drawbridge/internal/snapshot"
)

// Index is a thin, immutable view over one Snapshot's rule vectors.
type Index struct {
	snap *snapshot.Snapshot
}

// FromSnapshot wraps a Snapshot for matching. Cheap; does no extra work
// since Snapshot already carries pre-compiled, priority-sorted rules.
func FromSnapshot(s *snapshot.Snapshot) *Index {
	return &Index{snap: s}
}

func (idx *Index) Generation() int64 {
	return idx.snap.Generation
}

// Listener returns the ListenerConfig bound to addr, and whether it exists.
func (idx *Index) Listener(addr string) (snapshot.ListenerConfig, bool) {
	lc, ok := idx.snap.Listeners[addr]
	return lc, ok
}

// Decision is the outcome of matching a request against an Index: where to
// forward it and what request-target to rewrite it to.
type Decision struct {
	Backend string
	Target  string // rewritten path[?query]
}

// Match walks addr's rule vector in priority order and returns the first
// rule whose pattern matches path. query, if non-empty, is appended to the
// rewritten target verbatim (it is never matched against rule patterns).
// When no rule matches, ok is false and callers fall back to high-speed or
// the default sentinel per §4.4.
func (idx *Index) Match(addr, path, query string) (Decision, bool) {
	lc, ok := idx.snap.Listeners[addr]
	if !ok {
		return Decision{}, false
	}
	for _, r := range lc.Rules {
		m := r.Pattern.FindStringSubmatch(path)
		if m == nil {
			continue
		}
		target := substitute(r.Target, m)
		if query != "" {
			target += "?" + query
		}
		return Decision{Backend: r.Backend, Target: target}, true
	}
	return Decision{}, false
}

// substitute replaces $1..$n in template with the corresponding capture
// group from m (m[0] is the whole match, m[1:] are the groups). A literal
// '$' not followed by one or more digits is preserved verbatim, and a
// reference past len(m)-1 is also preserved verbatim since it cannot name a
// real group.
func substitute(template string, m []string) string {
	var b strings.Builder
	b.Grow(len(template))
	for i := 0; i < len(template); i++ {
		c := template[i]
		if c != '$' {
			b.WriteByte(c)
			continue
		}
		j := i + 1
		for j < len(template) && template[j] >= '0' && template[j] <= '9' {
			j++
		}
		if j == i+1 {
			// '$' not followed by a digit: literal.
			b.WriteByte(c)
			continue
		}
		n := 0
		for k := i + 1; k < j; k++ {
			n = n*10 + int(template[k]-'0')
		}
		if n < len(m) {
			b.WriteString(m[n])
		} else {
			b.WriteString(template[i:j])
		}
		i = j - 1
	}
	return b.String()
}
