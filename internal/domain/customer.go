package domain

// Customer is a person or business that books services.
type Customer struct {
	Base
	SoftDelete
	Name    string `json:"name" validate:"required,max=200"`
	Email   string `json:"email" validate:"required,email"`
	Phone   string `json:"phone,omitempty" validate:"omitempty,max=32"`
	Address string `json:"address,omitempty" validate:"omitempty,max=500"`
}

// Validate checks the customer's field rules.
func (c *Customer) Validate() error {
	return Check(c)
}
