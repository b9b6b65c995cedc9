package classifier

import (
	"fmt"
	"math/big"
	"net/netip"
	"strings"
)

const (
	validateLuhn = "luhn"
	validateIBAN = "iban"
	validateIP   = "ip"
)

// IBANLengths is the registered IBAN length per country code (ISO 13616).
var IBANLengths = map[string]int{
	"AD": 24, "AE": 23, "AT": 20, "AZ": 28, "BA": 20, "BE": 16, "BG": 22, "BH": 22,
	"BR": 29, "CH": 21, "CR": 22, "CY": 28, "CZ": 24, "DE": 22, "DK": 18, "DO": 28,
	"EE": 20, "EG": 29, "ES": 24, "FI": 18, "FO": 18, "FR": 27, "GB": 22, "GE": 22,
	"GI": 23, "GL": 18, "GR": 27, "GT": 28, "HR": 21, "HU": 28, "IE": 22, "IL": 23,
	"IS": 26, "IT": 27, "JO": 30, "KW": 30, "KZ": 20, "LB": 28, "LI": 21, "LT": 20,
	"LU": 20, "LV": 21, "MC": 27, "MD": 24, "ME": 22, "MK": 19, "MR": 27, "MT": 31,
	"MU": 30, "NL": 18, "NO": 15, "PK": 24, "PL": 28, "PS": 29, "PT": 25, "QA": 29,
	"RO": 24, "RS": 22, "SA": 24, "SE": 24, "SI": 19, "SK": 24, "SM": 27, "TN": 24,
	"TR": 26, "UA": 29, "VG": 24, "XK": 20,
}

// passesValidation applies the pattern's hard gate to a matched value.
func (p *PIIPattern) passesValidation(value string) bool {
	switch p.Validation {
	case validateLuhn:
		return luhnValid(stripNonDigits(value))
	case validateIBAN:
		clean := strings.ReplaceAll(value, " ", "")
		return validateIBANLength(clean) && validateIBANChecksum(clean)
	case validateIP:
		_, err := netip.ParseAddr(value)
		return err == nil
	default:
		return true
	}
}

// luhnValid checks whether a digit string passes the Luhn algorithm (ISO/IEC 7812).
func luhnValid(number string) bool {
	n := len(number)
	if n < 2 {
		return false
	}
	sum := 0
	alt := false
	for i := n - 1; i >= 0; i-- {
		d := int(number[i] - '0')
		if d < 0 || d > 9 {
			return false
		}
		if alt {
			d *= 2
			if d > 9 {
				d -= 9
			}
		}
		sum += d
		alt = !alt
	}
	return sum%10 == 0
}

// validateIBANChecksum verifies the MOD-97 check digits per ISO 13616.
// The IBAN is rearranged (country+check moved to end) and converted to digits
// (A=10, B=11, ..., Z=35) then checked: remainder must equal 1.
func validateIBANChecksum(iban string) bool {
	if len(iban) < 5 {
		return false
	}
	rearranged := iban[4:] + iban[:4]
	var numStr strings.Builder
	for _, ch := range rearranged {
		switch {
		case ch >= '0' && ch <= '9':
			numStr.WriteRune(ch)
		case ch >= 'A' && ch <= 'Z':
			numStr.WriteString(fmt.Sprintf("%d", ch-'A'+10))
		default:
			return false
		}
	}
	n := new(big.Int)
	if _, ok := n.SetString(numStr.String(), 10); !ok {
		return false
	}
	mod := new(big.Int)
	mod.Mod(n, big.NewInt(97))
	return mod.Int64() == 1
}

// validateIBANLength checks that the IBAN has the correct length for its country code.
func validateIBANLength(iban string) bool {
	if len(iban) < 2 {
		return false
	}
	expected, ok := IBANLengths[iban[:2]]
	if !ok {
		return false
	}
	return len(iban) == expected
}

// stripNonDigits removes all non-digit characters from s.
func stripNonDigits(s string) string {
	var b strings.Builder
	b.Grow(len(s))
	for _, ch := range s {
		if ch >= '0' && ch <= '9' {
			b.WriteRune(ch)
		}
	}
	return b.String()
}
