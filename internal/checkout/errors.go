package checkout

import (
	"errors"
	"fmt"
	"strings"

	"github.com/vishnucreator46/SmartTax-Hackthon/internal/domain"
)

var (
	ErrEmptyCart          = fmt.Errorf("%w: cart is empty", domain.ErrValidation)
	ErrCheckoutInProgress = errors.New("checkout already in progress for this idempotency key")
)

// InvalidCustomerError is a validation failure on the optional customer fields.
type InvalidCustomerError struct {
	Field  string
	Reason string
}

func (e *InvalidCustomerError) Error() string {
	return fmt.Sprintf("invalid %s: %s", e.Field, e.Reason)
}

func (e *InvalidCustomerError) Unwrap() error { return domain.ErrValidation }

// PersistenceError means the sale was not recorded. The cart is left intact.
type PersistenceError struct {
	Attempts int
	Err      error
}

func (e *PersistenceError) Error() string {
	return fmt.Sprintf("sale not recorded after %d attempt(s): %v", e.Attempts, e.Err)
}

func (e *PersistenceError) Unwrap() error { return e.Err }

type LineFailure struct {
	ProductID string `json:"product_id"`
	Quantity  int    `json:"quantity"`
	Reason    string `json:"reason"`
	Err       error  `json:"-"`
}

// InventoryAdjustmentError means the sale was recorded but stock for some
// lines was not decremented. It needs manual reconciliation.
type InventoryAdjustmentError struct {
	SaleID   string
	Failures []LineFailure
}

func (e *InventoryAdjustmentError) Error() string {
	ids := make([]string, 0, len(e.Failures))
	for _, f := range e.Failures {
		ids = append(ids, f.ProductID)
	}
	return fmt.Sprintf("sale %s recorded but inventory not adjusted for: %s", e.SaleID, strings.Join(ids, ", "))
}

// Unwrap exposes every per-line cause to errors.Is.
func (e *InventoryAdjustmentError) Unwrap() []error {
	errs := make([]error, 0, len(e.Failures))
	for _, f := range e.Failures {
		if f.Err != nil {
			errs = append(errs, f.Err)
		}
	}
	return errs
}
