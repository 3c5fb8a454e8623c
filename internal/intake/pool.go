package intake

import "github.com/ledgerdesk/ledgerdesk/internal/masterdata/parties"

// Pool is the set of known parties a batch matches against. It starts as a
// directory snapshot and grows as the batch creates parties. A Pool belongs to
// a single batch run and is not safe for concurrent use.
type Pool struct {
	kind    parties.Kind
	entries []parties.Party
}

// NewPool copies entries into a new Pool for kind.
func NewPool(kind parties.Kind, entries []parties.Party) *Pool {
	cp := make([]parties.Party, len(entries))
	copy(cp, entries)
	return &Pool{kind: kind, entries: cp}
}

// Kind is the party kind held by the pool.
func (p *Pool) Kind() parties.Kind { return p.kind }

// Entries returns the current parties in insertion order. Callers must not modify it.
func (p *Pool) Entries() []parties.Party { return p.entries }

// Len returns the number of parties.
func (p *Pool) Len() int { return len(p.entries) }

// Add appends a party created during the batch.
func (p *Pool) Add(party parties.Party) {
	p.entries = append(p.entries, party)
}
