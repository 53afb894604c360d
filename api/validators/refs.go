package validators

import (
	"strings"

	pkgerrors "github.com/agaseke/agaseke-backend/pkg/errors"
)

// OrderRef canonicalises a purchase reference taken from a path or form:
// trimmed and upper-cased, and rejected when it cannot be a reference at all.
func OrderRef(raw string) (string, error) {
	ref := strings.ToUpper(strings.TrimSpace(raw))
	if ref == "" {
		return "", pkgerrors.New(pkgerrors.CodeValidation, "order id is required")
	}
	if !orderRefPattern.MatchString(ref) {
		return "", pkgerrors.New(pkgerrors.CodeValidation, "order id is malformed")
	}
	return ref, nil
}
