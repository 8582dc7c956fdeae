// Package location validates buyer addresses and computes sales tax for the
// crypto rail. The card rail never uses it; Stripe handles both concerns
// remotely.
package location

// Location is a buyer address after validation. Fields hold the normalized
// values returned by the validation service when Valid is true, otherwise
// the caller's raw input.
type Location struct {
	Valid      bool
	City       string
	State      string
	PostalCode string
	Country    string
}

// InColorado reports whether sales tax collection applies. Tax is only
// collected for Colorado, US buyers.
func (l Location) InColorado() bool {
	return l.State == "CO" && l.Country == "US"
}
