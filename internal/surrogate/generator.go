// Package surrogate produces synthetic stand-ins for detected entities and
// implements the delegated redaction path on top of them.
package surrogate

import (
	"crypto/hmac"
	"crypto/rand"
	"crypto/sha256"
	"encoding/binary"
	"fmt"
	"strings"
	"unicode"

	"github.com/brianvoe/gofakeit/v7"

	"github.com/TheNetJedi/pii-redaction-openmed/internal/redact"
)

// Reserved for documentation (RFC 2606), so synthetic addresses never reach
// a real mailbox.
var exampleDomains = []string{"example.com", "example.org", "example.net"}

var nationalities = []string{
	"Argentine", "Canadian", "Dutch", "Estonian", "Finnish", "Ghanaian", "Icelandic",
	"Kenyan", "Maltese", "Norwegian", "Peruvian", "Portuguese", "Uruguayan",
}

var bloodTypes = []string{"A+", "A-", "B+", "B-", "AB+", "AB-", "O+", "O-"}

// Generator derives synthetic values from a keyed hash of the entity text, so
// the same key, label and text always produce the same value. It implements
// redact.Generator.
type Generator struct {
	key []byte
}

// NewGenerator returns a Generator keyed by key. An empty key is replaced by
// a random one, which keeps values stable for the life of the process only.
func NewGenerator(key []byte) *Generator {
	if len(key) == 0 {
		key = make([]byte, 32)
		if _, err := rand.Read(key); err != nil {
			panic(fmt.Sprintf("surrogate: reading random key: %v", err))
		}
	}
	return &Generator{key: append([]byte(nil), key...)}
}

// Synthesize implements redact.Generator.
func (g *Generator) Synthesize(label, original string) string {
	return g.SynthesizeAttempt(label, original, 0)
}

// SynthesizeAttempt is Synthesize with a retry counter folded into the seed,
// used to step past collisions.
func (g *Generator) SynthesizeAttempt(label, original string, attempt int) string {
	f := gofakeit.New(g.seed(label, original, attempt))
	switch strings.ToLower(label) {
	case "first_name":
		return f.FirstName()
	case "last_name":
		return f.LastName()
	case "full_name":
		return f.FirstName() + " " + f.LastName()
	case "email":
		return strings.ToLower(f.FirstName()+"."+f.LastName()) + "@" + f.RandomString(exampleDomains)
	case "phone_number", "fax_number", "pager":
		return f.Numerify("(555) 555-01##")
	case "ssn":
		return fmt.Sprintf("9%02d-%02d-%04d", f.IntN(100), f.Number(1, 99), f.Number(1, 9999))
	case "credit_debit_card":
		return cardNumber(f)
	case "date", "date_of_birth":
		return syntheticDate(f, original)
	case "age":
		return fmt.Sprintf("%d", f.Number(18, 89))
	case "street_address":
		return f.Street()
	case "city":
		return f.City()
	case "state":
		return f.State()
	case "country":
		return f.Country()
	case "postcode":
		return f.Zip()
	case "organization":
		return f.Company()
	case "occupation":
		return f.JobTitle()
	case "nationality":
		return f.RandomString(nationalities)
	case "gender":
		return f.Gender()
	case "blood_type":
		return f.RandomString(bloodTypes)
	case "ipv4":
		return fmt.Sprintf("192.0.2.%d", f.Number(1, 254))
	case "ipv6":
		return fmt.Sprintf("2001:db8::%x", f.Number(1, 0xfffe))
	case "mac_address":
		return fmt.Sprintf("02:00:5e:%02x:%02x:%02x", f.IntN(256), f.IntN(256), f.IntN(256))
	case "url":
		return fmt.Sprintf("https://%s/%06x", f.RandomString(exampleDomains), f.IntN(1<<24))
	default:
		return reshape(f, original)
	}
}

// seed is never zero, since gofakeit treats zero as a request for a random
// seed.
func (g *Generator) seed(label, original string, attempt int) uint64 {
	mac := hmac.New(sha256.New, g.key)
	mac.Write([]byte(strings.ToLower(label)))
	mac.Write([]byte{0})
	mac.Write([]byte(original))
	var n [8]byte
	binary.BigEndian.PutUint64(n[:], uint64(attempt))
	mac.Write(n[:])
	s := binary.BigEndian.Uint64(mac.Sum(nil))
	if s == 0 {
		s = 1
	}
	return s
}

// cardNumber returns a Luhn-valid number in the 4000 00xx test range.
func cardNumber(f *gofakeit.Faker) string {
	digits := make([]int, 15)
	copy(digits, []int{4, 0, 0, 0, 0, 0})
	for i := 6; i < 15; i++ {
		digits[i] = f.IntN(10)
	}
	sum := 0
	for i := 14; i >= 0; i-- {
		d := digits[i]
		if (14-i)%2 == 0 {
			d *= 2
			if d > 9 {
				d -= 9
			}
		}
		sum += d
	}
	check := (10 - sum%10) % 10

	var b strings.Builder
	for i, d := range append(digits, check) {
		if i > 0 && i%4 == 0 {
			b.WriteByte(' ')
		}
		b.WriteByte(byte('0' + d))
	}
	return b.String()
}

// syntheticDate moves a parseable date by up to a year either way, keeping
// its layout. Unparseable text gets a fresh ISO date.
func syntheticDate(f *gofakeit.Faker, original string) string {
	days := f.Number(-365, 365)
	if days == 0 {
		days = 1
	}
	if shifted, err := (redact.DayShifter{Days: days}).Shift("date", original); err == nil {
		return shifted
	}
	return fmt.Sprintf("%04d-%02d-%02d", f.Number(1950, 2004), f.Number(1, 12), f.Number(1, 28))
}

// reshape keeps the character classes of s: letters become random letters of
// the same case, digits random digits, everything else is kept.
func reshape(f *gofakeit.Faker, s string) string {
	var b strings.Builder
	b.Grow(len(s))
	for _, c := range s {
		switch {
		case unicode.IsDigit(c):
			b.WriteByte(byte('0' + f.IntN(10)))
		case unicode.IsUpper(c):
			b.WriteByte(byte('A' + f.IntN(26)))
		case unicode.IsLetter(c):
			b.WriteByte(byte('a' + f.IntN(26)))
		default:
			b.WriteRune(c)
		}
	}
	return b.String()
}
