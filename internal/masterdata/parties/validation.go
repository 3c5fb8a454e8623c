package parties

import (
	"fmt"
	"strings"

	"github.com/go-playground/validator/v10"

	"github.com/ledgerdesk/ledgerdesk/internal/platform/httpx"
	"github.com/ledgerdesk/ledgerdesk/internal/shared"
)

func normalizeRequest(req CreatePartyRequest) CreatePartyRequest {
	req.Name = strings.Join(strings.Fields(req.Name), " ")
	req.TaxID = strings.TrimSpace(req.TaxID)
	if !IsKnownTaxID(req.TaxID) {
		req.TaxID = UnknownTaxID
	}
	req.PostalCode = strings.TrimSpace(req.PostalCode)
	return req
}

func validateRequest(v *validator.Validate, req CreatePartyRequest) error {
	if err := v.Struct(req); err != nil {
		return fmt.Errorf("%w: %s", httpx.ErrValidation, shared.ValidationMessage(err))
	}
	return nil
}
