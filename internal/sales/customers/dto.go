package customers

type CreateCustomerRequest struct {
	Name    string  `json:"name" validate:"required,max=200"`
	Email   *string `json:"email,omitempty" validate:"omitempty,email,max=255"`
	Phone   string  `json:"phone" validate:"max=32"`
	Address string  `json:"address"`
	TaxID   string  `json:"tax_id" validate:"max=64"`
}

type UpdateCustomerRequest struct {
	Name     *string `json:"name,omitempty" validate:"omitempty,min=1,max=200"`
	Email    *string `json:"email,omitempty" validate:"omitempty,email,max=255"`
	Phone    *string `json:"phone,omitempty" validate:"omitempty,max=32"`
	Address  *string `json:"address,omitempty"`
	TaxID    *string `json:"tax_id,omitempty" validate:"omitempty,max=64"`
	IsActive *bool   `json:"is_active,omitempty"`
}

type ListCustomersRequest struct {
	IsActive *bool
	Search   string
	Limit    int
	Offset   int
}
