package shared

import "github.com/odyssey-erp/odyssey-pos/internal/platform/httpx"

var (
	ErrNotFound      = httpx.NewError(httpx.ErrNotFound, "masterdata: resource not found")
	ErrDuplicate     = httpx.NewError(httpx.ErrDuplicate, "masterdata: duplicate entry")
	ErrValidation    = httpx.NewError(httpx.ErrValidation, "masterdata: validation failed")
	ErrInvalidID     = httpx.NewError(httpx.ErrValidation, "masterdata: invalid ID")
	ErrRequiredField = httpx.NewError(httpx.ErrValidation, "masterdata: field is required")
	ErrInUse         = httpx.NewError(httpx.ErrDuplicate, "masterdata: resource is still referenced")
)
