package intake

import (
	"github.com/agext/levenshtein"

	"github.com/ledgerdesk/ledgerdesk/internal/masterdata/parties"
)

const (
	// DefaultMatchThreshold is the minimum name score accepted as a match.
	DefaultMatchThreshold = 0.6
	// DefaultTieWindow is how close to the best score a candidate must be to
	// enter the tie break.
	DefaultTieWindow = 0.05
)

// MatchKind tags the outcome of a match.
type MatchKind int

const (
	MatchNone MatchKind = iota
	MatchExactID
	MatchFuzzyName
)

func (k MatchKind) String() string {
	switch k {
	case MatchExactID:
		return "exact_id"
	case MatchFuzzyName:
		return "fuzzy_name"
	default:
		return "none"
	}
}

// MarshalText renders the kind in reports.
func (k MatchKind) MarshalText() ([]byte, error) {
	return []byte(k.String()), nil
}

// UnmarshalText parses a rendered kind.
func (k *MatchKind) UnmarshalText(text []byte) error {
	switch string(text) {
	case "exact_id":
		*k = MatchExactID
	case "fuzzy_name":
		*k = MatchFuzzyName
	default:
		*k = MatchNone
	}
	return nil
}

// MatchResult is the matcher's decision. Party is set unless Kind is MatchNone.
// Score is the name similarity of the chosen (or best rejected) candidate.
type MatchResult struct {
	Kind  MatchKind
	Party parties.Party
	Score float64
}

// Found reports whether a party was matched.
func (r MatchResult) Found() bool { return r.Kind != MatchNone }

// Matcher finds the known party an extracted identity refers to.
type Matcher struct {
	Threshold float64
	TieWindow float64
}

// NewMatcher returns a Matcher, substituting defaults for non-positive values.
func NewMatcher(threshold, tieWindow float64) Matcher {
	if threshold <= 0 {
		threshold = DefaultMatchThreshold
	}
	if tieWindow < 0 {
		tieWindow = DefaultTieWindow
	}
	return Matcher{Threshold: threshold, TieWindow: tieWindow}
}

// Match picks the party in pool that name and taxID refer to.
//
// A known tax id equal to a pool entry's tax id wins outright. Otherwise every
// entry is scored by name; the best score must reach Threshold. Entries within
// TieWindow of the best are ordered by tax id similarity, then name score, then
// pool order.
func (m Matcher) Match(name, taxID string, pool []parties.Party) MatchResult {
	if len(pool) == 0 {
		return MatchResult{Kind: MatchNone}
	}

	knownID := parties.IsKnownTaxID(taxID)
	wantID := normalizeTaxID(taxID)
	if knownID {
		for _, p := range pool {
			if p.HasKnownTaxID() && normalizeTaxID(p.TaxID) == wantID {
				return MatchResult{Kind: MatchExactID, Party: p, Score: 1}
			}
		}
	}

	query := newNameKey(name)
	if query.full == "" {
		return MatchResult{Kind: MatchNone}
	}

	scores := make([]float64, len(pool))
	best := 0.0
	for i, p := range pool {
		scores[i] = nameScore(query, newNameKey(p.Name))
		if scores[i] > best {
			best = scores[i]
		}
	}
	if best < m.Threshold || best == 0 {
		return MatchResult{Kind: MatchNone, Score: best}
	}

	chosen := -1
	chosenID := -1.0
	for i, p := range pool {
		if scores[i] < best-m.TieWindow || scores[i] < m.Threshold {
			continue
		}
		idScore := 0.0
		if knownID && p.HasKnownTaxID() {
			idScore = levenshtein.Similarity(wantID, normalizeTaxID(p.TaxID), nil)
		}
		switch {
		case chosen < 0:
		case idScore > chosenID:
		case idScore == chosenID && scores[i] > scores[chosen]:
		default:
			continue
		}
		chosen, chosenID = i, idScore
	}
	return MatchResult{Kind: MatchFuzzyName, Party: pool[chosen], Score: scores[chosen]}
}

func nameScore(query, candidate nameKey) float64 {
	if candidate.full == "" {
		return 0
	}
	score := levenshtein.Match(query.full, candidate.full, nil)
	if query.core != "" && candidate.core != "" {
		if core := levenshtein.Match(query.core, candidate.core, nil); core > score {
			score = core
		}
	}
	return score
}
