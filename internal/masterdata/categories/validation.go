package categories

import (
	"fmt"
	"strings"

	"github.com/odyssey-erp/odyssey-pos/internal/masterdata/shared"
)

func (s *Service) validate(c Category) error {
	if strings.TrimSpace(c.Name) == "" {
		return fmt.Errorf("%w: category name", shared.ErrRequiredField)
	}
	if len(c.Name) > 100 {
		return fmt.Errorf("%w: category name exceeds 100 characters", shared.ErrValidation)
	}
	return nil
}
