package order

import "errors"

// Stable error codes returned to API callers. These are part of the public
// contract; internal error text never is.
const (
	CodeOnlyOnePaymentType = "ONLY_ONE_PAYMENT_TYPE"
	CodeInvalidLocation    = "INVALID_LOCATION"
	CodeRateLimitExceeded  = "RATE_LIMIT_EXCEEDED"
	CodeInvalidProduct     = "INVALID_PRODUCT"
	CodeInvalidEmail       = "INVALID_EMAIL"
	CodeInvalidPaymentType = "INVALID_PAYMENT_TYPE"
)

// TokenError is a caller-facing rejection carrying one of the stable codes.
type TokenError struct {
	Code string
}

func (e *TokenError) Error() string {
	return e.Code
}

var (
	ErrOnlyOnePaymentType = &TokenError{Code: CodeOnlyOnePaymentType}
	ErrInvalidLocation    = &TokenError{Code: CodeInvalidLocation}
	ErrRateLimitExceeded  = &TokenError{Code: CodeRateLimitExceeded}
	ErrInvalidProduct     = &TokenError{Code: CodeInvalidProduct}
	ErrInvalidEmail       = &TokenError{Code: CodeInvalidEmail}
	ErrInvalidPaymentType = &TokenError{Code: CodeInvalidPaymentType}
)

// AsTokenError unwraps err into a TokenError if it carries one.
func AsTokenError(err error) (*TokenError, bool) {
	var te *TokenError
	if errors.As(err, &te) {
		return te, true
	}
	return nil, false
}
