package identifier

import (
	"math/rand/v2"
	"strconv"
	"strings"
	"sync"
	"unicode"
	"unicode/utf8"

	"medhelper/internal/domain"
)

// npiLuhnPrefix is prepended to the nine NPI base digits before the Luhn
// check digit is computed (the health-industry card issuer prefix).
const npiLuhnPrefix = "80840"

var (
	deaRegistrantTypes  = []byte{'A', 'B', 'F'}
	ndeaRegistrantTypes = []byte{'M', 'P'}
)

// Generator produces identifier values. It is safe for concurrent use.
type Generator struct {
	mu  sync.Mutex
	rng *rand.Rand
}

// NewGenerator returns a Generator drawing from src, or from a randomly
// seeded source when src is nil.
func NewGenerator(src rand.Source) *Generator {
	if src == nil {
		src = rand.NewPCG(rand.Uint64(), rand.Uint64())
	}
	return &Generator{rng: rand.New(src)}
}

func (g *Generator) intN(n int) int {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.rng.IntN(n)
}

// number returns a decimal string of exactly n digits without a leading zero.
func (g *Generator) number(n int) string {
	low := pow10(n - 1)
	return strconv.Itoa(low + g.intN(9*low))
}

// DEA builds a registration number: registrant type, last-name initial,
// six digits and a check digit.
func (g *Generator) DEA(narcotic bool, lastName string) string {
	types := deaRegistrantTypes
	if narcotic {
		types = ndeaRegistrantTypes
	}
	six := g.number(6)
	var b strings.Builder
	b.WriteByte(types[g.intN(len(types))])
	b.WriteRune(initial(lastName))
	b.WriteString(six)
	b.WriteByte(byte('0' + DEAChecksum(six)))
	return b.String()
}

// License builds a state license number: state prefix, last-name initial,
// digits and a check digit.
func (g *Generator) License(stateCode, lastName string, licenseType domain.LicenseType) string {
	prefix, n := LicenseFormat(stateCode, licenseType)
	digits := g.number(n)
	var b strings.Builder
	b.WriteString(prefix)
	b.WriteRune(initial(lastName))
	b.WriteString(digits)
	b.WriteByte(byte('0' + LicenseChecksum(digits)))
	return b.String()
}

// NPI builds a ten-digit NPI. Organizations start with 2, individuals with 1.
func (g *Generator) NPI(isOrganization bool) string {
	var b strings.Builder
	if isOrganization {
		b.WriteByte('2')
	} else {
		b.WriteByte('1')
	}
	for range 8 {
		b.WriteByte(byte('0' + g.intN(10)))
	}
	base := b.String()
	return base + strconv.Itoa(NPICheckDigit(base))
}

// DEAChecksum is (d1+d3+d5 + 2*(d2+d4+d6)) mod 10 over six digits.
func DEAChecksum(six string) int {
	d := func(i int) int { return int(six[i] - '0') }
	return (d(0) + d(2) + d(4) + 2*(d(1)+d(3)+d(5))) % 10
}

// LicenseChecksum doubles digits at even positions, sums all, mod 10.
func LicenseChecksum(digits string) int {
	sum := 0
	for i := 0; i < len(digits); i++ {
		d := int(digits[i] - '0')
		if i%2 == 0 {
			d *= 2
		}
		sum += d
	}
	return sum % 10
}

// LicenseFormat returns the prefix and digit count used by stateCode.
func LicenseFormat(stateCode string, licenseType domain.LicenseType) (string, int) {
	state := strings.ToUpper(strings.TrimSpace(stateCode))
	if licenseType == domain.LicensePharmacy {
		switch state {
		case "CA":
			return "RPH", 5
		case "NY":
			return "", 6
		case "TX":
			return "P", 5
		case "FL":
			return "PH", 5
		default:
			return state + "PH", 6
		}
	}
	switch state {
	case "CA":
		return "A", 5
	case "NY":
		return "", 6
	case "TX":
		return "", 5
	case "FL":
		return "ME", 5
	default:
		return state, 6
	}
}

// NPICheckDigit computes the Luhn check digit of the nine base digits
// prefixed with 80840.
func NPICheckDigit(base string) int {
	s := npiLuhnPrefix + base
	sum := 0
	double := true
	for i := len(s) - 1; i >= 0; i-- {
		d := int(s[i] - '0')
		if double {
			d *= 2
			if d > 9 {
				d -= 9
			}
		}
		sum += d
		double = !double
	}
	return (10 - sum%10) % 10
}

func initial(name string) rune {
	r, _ := utf8.DecodeRuneInString(strings.TrimSpace(name))
	return unicode.ToUpper(r)
}

func pow10(n int) int {
	v := 1
	for range n {
		v *= 10
	}
	return v
}
