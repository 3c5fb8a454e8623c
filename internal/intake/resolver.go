package intake

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/ledgerdesk/ledgerdesk/internal/extraction"
	"github.com/ledgerdesk/ledgerdesk/internal/masterdata/parties"
)

// UnrecognizedName is used for parties whose name could not be extracted.
const UnrecognizedName = "Unrecognized"

// ErrResolve wraps failures to find or create a document's party.
var ErrResolve = errors.New("resolve party")

// Identity is the counterparty as read from a document.
type Identity struct {
	Name       string
	TaxID      string
	PostalCode string
}

// IdentityOf extracts the counterparty identity from a document.
func IdentityOf(doc extraction.Document) Identity {
	return Identity{Name: doc.PartyName, TaxID: doc.TaxID, PostalCode: doc.PostalCode}
}

func (id Identity) withDefaults() Identity {
	id.Name = strings.TrimSpace(id.Name)
	if id.Name == "" {
		id.Name = UnrecognizedName
	}
	id.TaxID = strings.TrimSpace(id.TaxID)
	if !parties.IsKnownTaxID(id.TaxID) {
		id.TaxID = parties.UnknownTaxID
	}
	id.PostalCode = strings.TrimSpace(id.PostalCode)
	return id
}

// PartyCreator creates parties in the backend.
type PartyCreator interface {
	CreateParty(ctx context.Context, req parties.CreatePartyRequest) (parties.Party, error)
}

// Resolution is the party a document is booked against.
type Resolution struct {
	Party   parties.Party
	Match   MatchResult
	Created bool
}

// Resolver matches identities against a Pool and creates missing parties.
type Resolver struct {
	matcher Matcher
	creator PartyCreator
	logger  *slog.Logger
}

// NewResolver builds a Resolver.
func NewResolver(matcher Matcher, creator PartyCreator, logger *slog.Logger) *Resolver {
	if logger == nil {
		logger = slog.Default()
	}
	return &Resolver{matcher: matcher, creator: creator, logger: logger}
}

// Resolve returns the pool party matching id, creating and pooling a new one
// when nothing matches.
func (r *Resolver) Resolve(ctx context.Context, pool *Pool, id Identity) (Resolution, error) {
	id = id.withDefaults()
	match := r.matcher.Match(id.Name, id.TaxID, pool.Entries())
	if match.Found() {
		return Resolution{Party: match.Party, Match: match}, nil
	}

	party, err := r.creator.CreateParty(ctx, parties.CreatePartyRequest{
		Kind:       pool.Kind(),
		Name:       id.Name,
		TaxID:      id.TaxID,
		PostalCode: id.PostalCode,
	})
	if err != nil {
		return Resolution{Match: match}, fmt.Errorf("%w %q: %w", ErrResolve, id.Name, err)
	}
	pool.Add(party)
	r.logger.Info("party created for unmatched document",
		slog.Int64("party_id", party.ID),
		slog.String("kind", string(pool.Kind())),
		slog.String("name", party.Name),
		slog.Float64("best_score", match.Score),
	)
	return Resolution{Party: party, Match: match, Created: true}, nil
}
