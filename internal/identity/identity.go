// Package identity models the people the gallery knows about and the per-frame
// sets of identities observed by the matcher.
package identity

import (
	"path/filepath"
	"sort"
	"strings"

	"golang.org/x/text/unicode/norm"
)

// Identity is the opaque id of a known person (an employee id).
type Identity string

// FromFilename derives an Identity from a reference image filename: the base
// name without its extension. Names are NFC-normalized so the same file copied
// between filesystems (macOS stores NFD) yields the same Identity.
func FromFilename(name string) Identity {
	base := filepath.Base(name)
	base = strings.TrimSuffix(base, filepath.Ext(base))
	return Identity(norm.NFC.String(base))
}

// Label is the outcome of classifying one face region: either a known
// Identity or Unknown. The zero value is Unknown.
type Label struct {
	id    Identity
	known bool
}

// Unknown is the label of a face that did not match the gallery.
var Unknown = Label{}

// Identified returns the label for a matched identity.
func Identified(id Identity) Label {
	return Label{id: id, known: true}
}

// Identity returns the matched identity and true, or "" and false for Unknown.
func (l Label) Identity() (Identity, bool) {
	return l.id, l.known
}

// IsUnknown reports whether the label is Unknown.
func (l Label) IsUnknown() bool {
	return !l.known
}

// String returns the identity, or "Unknown".
func (l Label) String() string {
	if !l.known {
		return "Unknown"
	}
	return string(l.id)
}

// Set is a set of identities. An ObservedSet is a Set computed for one frame;
// Unknown labels can never be members because Set only holds Identity values.
type Set map[Identity]struct{}

// NewSet returns a set holding ids.
func NewSet(ids ...Identity) Set {
	s := make(Set, len(ids))
	for _, id := range ids {
		s[id] = struct{}{}
	}
	return s
}

// AddLabel adds the label's identity to the set. Unknown labels are dropped.
// Returns true if the label was a known identity.
func (s Set) AddLabel(l Label) bool {
	id, ok := l.Identity()
	if !ok {
		return false
	}
	s[id] = struct{}{}
	return true
}

// Has reports whether id is a member.
func (s Set) Has(id Identity) bool {
	_, ok := s[id]
	return ok
}

// Minus returns the members of s that are not in other.
func (s Set) Minus(other Set) Set {
	out := make(Set)
	for id := range s {
		if !other.Has(id) {
			out[id] = struct{}{}
		}
	}
	return out
}

// Sorted returns the members in lexical order.
func (s Set) Sorted() []Identity {
	ids := make([]Identity, 0, len(s))
	for id := range s {
		ids = append(ids, id)
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
	return ids
}
