package lastschrift

import (
	"errors"
	"math/big"
	"strings"
)

var ErrInvalidIBAN = errors.New("invalid IBAN")

var ninetySeven = big.NewInt(97)

// NormalizeIBAN strips spaces and upper-cases the account number.
func NormalizeIBAN(iban string) string {
	return strings.ToUpper(strings.ReplaceAll(iban, " ", ""))
}

// ValidateIBAN checks length, character set and the ISO 13616 mod-97
// checksum of an already normalized IBAN.
func ValidateIBAN(iban string) error {
	if len(iban) < 15 || len(iban) > 34 {
		return ErrInvalidIBAN
	}
	for _, r := range iban {
		if (r < 'A' || r > 'Z') && (r < '0' || r > '9') {
			return ErrInvalidIBAN
		}
	}
	if iban[0] < 'A' || iban[1] < 'A' {
		return ErrInvalidIBAN
	}

	// Move the country code and check digits to the end, then map
	// letters to 10..35 and take the whole number mod 97.
	rearranged := iban[4:] + iban[:4]
	var sb strings.Builder
	for _, r := range rearranged {
		if r >= 'A' && r <= 'Z' {
			sb.WriteString(big.NewInt(int64(r-'A'+10)).String())
		} else {
			sb.WriteRune(r)
		}
	}

	n, ok := new(big.Int).SetString(sb.String(), 10)
	if !ok {
		return ErrInvalidIBAN
	}
	if new(big.Int).Mod(n, ninetySeven).Int64() != 1 {
		return ErrInvalidIBAN
	}
	return nil
}
