package capture

import "strings"

// Dial is the result of asking to call a number.
type Dial struct {
	URL       string `json:"url"`
	Supported bool   `json:"supported"`
}

// Dialer builds tel: links for contact phones.
type Dialer struct{}

// Dial returns the tel: URL for phone. Supported is false, and URL empty,
// when the number cannot be dialed.
func (Dialer) Dial(phone string) Dial {
	n, ok := dialable(phone)
	if !ok {
		return Dial{}
	}
	return Dial{URL: "tel:" + n, Supported: true}
}

// dialable strips common separators and accepts an optional leading "+"
// followed by 3 to 15 digits.
func dialable(phone string) (string, bool) {
	var b strings.Builder
	for i, r := range strings.TrimSpace(phone) {
		switch {
		case r >= '0' && r <= '9':
			b.WriteRune(r)
		case r == '+' && i == 0:
			b.WriteRune(r)
		case r == ' ' || r == '-' || r == '.' || r == '(' || r == ')':
		default:
			return "", false
		}
	}
	n := b.String()
	digits := len(strings.TrimPrefix(n, "+"))
	if digits < 3 || digits > 15 {
		return "", false
	}
	return n, true
}
