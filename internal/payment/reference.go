package payment

import (
	"fmt"
	"math/rand"
)

// DefaultRegistrationNumber prefixes references when no registration is known
const DefaultRegistrationNumber = "ETH202500003"

// ReferenceGenerator builds transaction references of the form
// {registration}{10..60}hvc{10..90}. References are not guaranteed unique;
// callers check them against persisted attempts.
type ReferenceGenerator struct {
	registration string
	intn         func(n int) int
}

// NewReferenceGenerator returns a generator for a registration number.
// An empty number falls back to DefaultRegistrationNumber.
func NewReferenceGenerator(registration string) *ReferenceGenerator {
	if registration == "" {
		registration = DefaultRegistrationNumber
	}
	return &ReferenceGenerator{registration: registration, intn: rand.Intn}
}

// Next returns a fresh reference
func (g *ReferenceGenerator) Next() string {
	return fmt.Sprintf("%s%dhvc%d", g.registration, g.between(10, 60), g.between(10, 90))
}

// between draws uniformly from [min, max]
func (g *ReferenceGenerator) between(min, max int) int {
	return g.intn(max-min+1) + min
}
