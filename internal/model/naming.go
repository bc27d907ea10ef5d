package model

import (
	"errors"
	"regexp"
	"strings"
	"unicode"
	"unicode/utf8"

	"golang.org/x/text/cases"
	"golang.org/x/text/language"
)

const maxKeyLength = 191

var keySeparators = regexp.MustCompile(`[_-]+`)

// ErrInvalidKey is returned by ValidateKey for keys that cannot identify a module.
var ErrInvalidKey = errors.New("invalid module key")

// ValidateKey reports whether key can be used as a module key.
func ValidateKey(key string) error {
	if key == "" || len(key) > maxKeyLength {
		return ErrInvalidKey
	}
	if strings.IndexFunc(key, unicode.IsSpace) >= 0 {
		return ErrInvalidKey
	}
	return nil
}

// Identifier converts a module key into its conventional identifier:
// "payment_gateway" becomes "PaymentGateway".
func Identifier(key string) string {
	return strings.Join(titledSegments(key), "")
}

// DisplayName converts a module key into a human readable name:
// "payment_gateway" becomes "Payment Gateway".
func DisplayName(key string) string {
	return strings.Join(titledSegments(key), " ")
}

// ConventionalRef is the integration reference assumed for modules that
// declare none.
func ConventionalRef(key string) string {
	return "modules/" + Identifier(key)
}

func titledSegments(key string) []string {
	lower := cases.Lower(language.Und)
	var out []string
	for _, seg := range keySeparators.Split(key, -1) {
		if seg == "" {
			continue
		}
		seg = lower.String(seg)
		r, size := utf8.DecodeRuneInString(seg)
		out = append(out, string(unicode.ToUpper(r))+seg[size:])
	}
	return out
}
