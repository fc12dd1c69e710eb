package suppliers

import (
	"fmt"
	"strings"

	"github.com/odyssey-erp/odyssey-pos/internal/masterdata/shared"
)

func (s *Service) validate(sup Supplier) error {
	if strings.TrimSpace(sup.Name) == "" {
		return fmt.Errorf("%w: supplier name", shared.ErrRequiredField)
	}
	if !sup.Status.Valid() {
		return fmt.Errorf("%w: status must be active or inactive", shared.ErrValidation)
	}
	return nil
}
