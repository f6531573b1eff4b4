package validate

// FieldError field error to be nested by other errors
type FieldError struct {
	Domain string `json:"domain"`
	Reason string `json:"reason"`
}

// NewFieldError create new field error
func NewFieldError(domain string, reason string) *FieldError {
	return &FieldError{domain, reason}
}

// Validator .
type Validator interface {
	// Struct validates tagged struct fields
	Struct(s interface{}) []*FieldError
	// Var validates a single value against tag, name is used in the reported error
	Var(name string, v interface{}, tag string) []*FieldError
}
