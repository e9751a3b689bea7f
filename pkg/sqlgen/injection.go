package sqlgen

import (
	"fmt"

	libinjection "github.com/corazawaf/libinjection-go"

	"github.com/reconlab/recon-engine/pkg/apperrors"
)

// screenFilterValue rejects filter literals carrying SQL injection patterns.
// Values are embedded as quoted literals, so the screen runs before any SQL
// is assembled.
func screenFilterValue(column, value string) error {
	isSQLi, fingerprint := libinjection.IsSQLi(value)
	if !isSQLi {
		return nil
	}
	return fmt.Errorf("filter value for %s matches injection fingerprint %s: %w",
		column, fingerprint, apperrors.ErrInvalidRequest)
}
