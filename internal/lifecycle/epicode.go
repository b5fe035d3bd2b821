package lifecycle

import (
	"strings"

	"github.com/google/uuid"
)

const (
	// EpicodePrefix starts every outbreak code.
	EpicodePrefix = "E"
	// EpicodeSep separates the code's parts.
	EpicodeSep = "_"

	tokenLength   = 11
	tokenAlphabet = "ABCDEFGHIJKLMNOPQRSTUVWXYZ0123456789"
)

// CodeGenerator mints outbreak codes.
type CodeGenerator interface {
	Generate(orgUnitCode string) string
}

// CodeGeneratorFunc adapts a function to CodeGenerator.
type CodeGeneratorFunc func(orgUnitCode string) string

func (f CodeGeneratorFunc) Generate(orgUnitCode string) string { return f(orgUnitCode) }

// RandomCodes mints codes of the form E_<orgUnitCode>_<token>, where token is
// 11 upper-case alphanumerics drawn from a v4 UUID. Without an org-unit code
// the middle part is omitted.
type RandomCodes struct{}

// Generate implements CodeGenerator.
func (RandomCodes) Generate(orgUnitCode string) string {
	return FormatEpicode(orgUnitCode, randomToken())
}

// FormatEpicode joins the parts of an outbreak code.
func FormatEpicode(orgUnitCode, token string) string {
	parts := []string{EpicodePrefix}
	if orgUnitCode != "" {
		parts = append(parts, orgUnitCode)
	}
	parts = append(parts, token)
	return strings.Join(parts, EpicodeSep)
}

func randomToken() string {
	id := uuid.New()
	var b strings.Builder
	b.Grow(tokenLength)
	for i := 0; i < tokenLength; i++ {
		b.WriteByte(tokenAlphabet[int(id[i])%len(tokenAlphabet)])
	}
	return b.String()
}
