package inventory

import (
	"fmt"
	"regexp"
	"sort"
	"strings"

	"golang.org/x/text/cases"
	"golang.org/x/text/language"
)

type MatchMode string

const (
	// MatchExact only tolerates case and separator differences. Used for display breakdowns.
	MatchExact MatchMode = "exact"
	// MatchFuzzy adds abbreviation and processing-type variants.
	MatchFuzzy MatchMode = "fuzzy"
)

type CalculationMethod string

const (
	MethodOutturn       CalculationMethod = "outturn-based"
	MethodVarietyString CalculationMethod = "variety-string"
)

const (
	processingRaw   = "RAW"
	processingSteam = "STEAM"
)

var separatorRun = regexp.MustCompile(`[\s_\-]+`)

// NormalizeText trims, collapses runs of space/underscore/hyphen to one space and uppercases.
func NormalizeText(s string) string {
	return strings.ToUpper(strings.TrimSpace(separatorRun.ReplaceAllString(strings.TrimSpace(s), " ")))
}

func CanonicalOutturnText(allottedVariety, processingType string) string {
	return NormalizeText(strings.TrimSpace(allottedVariety) + " " + strings.TrimSpace(processingType))
}

func titleCase(s string) string {
	return cases.Title(language.Und).String(strings.ToLower(s))
}

// VarietySelector names the variety a caller is asking about.
type VarietySelector struct {
	OutturnId *int   `json:"outturn_id,omitempty" form:"outturn_id"`
	Text      string `json:"variety,omitempty" form:"variety"`
}

func (v VarietySelector) IsEmpty() bool {
	return (v.OutturnId == nil || *v.OutturnId <= 0) && strings.TrimSpace(v.Text) == ""
}

// VarietyPredicate decides whether a ledger leg belongs to the selected variety.
type VarietyPredicate interface {
	// Matches is given the leg's variety reference and its canonical text.
	Matches(ref VarietyRef, canonical string) bool
	Method() CalculationMethod
	Label() string
}

type outturnPredicate struct {
	id    int
	label string
}

func (p outturnPredicate) Matches(ref VarietyRef, _ string) bool {
	return ref.IsOutturn() && *ref.OutturnId == p.id
}

func (p outturnPredicate) Method() CalculationMethod { return MethodOutturn }
func (p outturnPredicate) Label() string             { return p.label }

type aliasPredicate struct {
	label   string
	aliases []string
	set     map[string]struct{}
}

func (p aliasPredicate) Matches(_ VarietyRef, canonical string) bool {
	_, ok := p.set[NormalizeText(canonical)]
	return ok
}

func (p aliasPredicate) Method() CalculationMethod { return MethodVarietyString }
func (p aliasPredicate) Label() string             { return p.label }

// Aliases returns the set of strings that should match the given variety for mode.
// Only the returned strings are compared, after normalization.
func (p aliasPredicate) Aliases() []string { return p.aliases }

func newAliasPredicate(text string, aliases []string) aliasPredicate {
	set := make(map[string]struct{}, len(aliases))
	for _, a := range aliases {
		set[NormalizeText(a)] = struct{}{}
	}
	return aliasPredicate{label: NormalizeText(text), aliases: aliases, set: set}
}

// NewOutturnPredicate matches on outturn id only. Outturn ids produced by migration
// analysis are accepted as-is.
func NewOutturnPredicate(o Outturn) VarietyPredicate {
	return outturnPredicate{id: o.Id, label: o.CanonicalText()}
}

func (c *Catalog) NewTextPredicate(text string, mode MatchMode) (VarietyPredicate, error) {
	aliases := c.Aliases(text, mode)
	if len(aliases) == 0 {
		return nil, &ValidationError{Missing: []string{"variety"}}
	}
	return newAliasPredicate(text, aliases), nil
}

// Aliases generates the deduplicated alias set for raw.
//
// A variety carrying RAW only ever yields RAW-suffixed variants, and STEAM only STEAM ones;
// the bare base is not emitted for either so Raw and Steam stock never share a bucket.
func (c *Catalog) Aliases(raw string, mode MatchMode) []string {
	trimmed := strings.TrimSpace(raw)
	n := NormalizeText(raw)
	if n == "" {
		return nil
	}
	out := []string{
		trimmed,
		strings.ToLower(trimmed),
		strings.ToUpper(trimmed),
		titleCase(trimmed),
		n,
		strings.ToLower(n),
		titleCase(n),
	}
	if mode == MatchExact {
		return sortedUnique(out)
	}

	cores := []string{n}
	tokens := strings.Fields(n)
	switch {
	case hasToken(tokens, processingRaw):
		base := strings.Join(withoutTokens(tokens, processingRaw, processingSteam), " ")
		cores = append(cores, joinNonEmpty(base, processingRaw))
	case hasToken(tokens, processingSteam):
		base := strings.Join(withoutTokens(tokens, processingRaw, processingSteam), " ")
		cores = append(cores, joinNonEmpty(base, processingSteam))
	}

	if c != nil {
		for _, core := range append([]string(nil), cores...) {
			cores = append(cores, c.expandAbbreviations(core)...)
		}
	}
	for _, core := range uniqueStrings(cores) {
		out = append(out, spellings(core)...)
	}
	return sortedUnique(out)
}

func (c *Catalog) expandAbbreviations(core string) []string {
	variants := []string{core}
	for _, forms := range c.abbreviationForms(core) {
		var next []string
		for _, v := range variants {
			padded := " " + v + " "
			for _, from := range forms {
				if !strings.Contains(padded, " "+from+" ") {
					continue
				}
				for _, to := range forms {
					next = append(next, strings.TrimSpace(strings.ReplaceAll(padded, " "+from+" ", " "+to+" ")))
				}
			}
		}
		if len(next) > 0 {
			variants = uniqueStrings(append(variants, next...))
		}
	}
	return variants
}

// spellings yields separator and case variants of a normalized core.
func spellings(core string) []string {
	underscored := strings.ReplaceAll(core, " ", "_")
	hyphenated := strings.ReplaceAll(core, " ", "-")
	return []string{
		core,
		strings.ToLower(core),
		titleCase(core),
		underscored,
		strings.ToLower(underscored),
		hyphenated,
		strings.ToLower(hyphenated),
	}
}

func hasToken(tokens []string, tok string) bool {
	for _, t := range tokens {
		if t == tok {
			return true
		}
	}
	return false
}

func withoutTokens(tokens []string, drop ...string) []string {
	out := make([]string, 0, len(tokens))
	for _, t := range tokens {
		if hasToken(drop, t) {
			continue
		}
		out = append(out, t)
	}
	return out
}

func joinNonEmpty(parts ...string) string {
	return strings.Join(uniqueStrings(parts), " ")
}

func sortedUnique(in []string) []string {
	out := uniqueStrings(in)
	sort.Strings(out)
	return out
}

func describeSelector(sel VarietySelector) string {
	if sel.OutturnId != nil && *sel.OutturnId > 0 {
		return fmt.Sprintf("outturn:%d", *sel.OutturnId)
	}
	return NormalizeText(sel.Text)
}
