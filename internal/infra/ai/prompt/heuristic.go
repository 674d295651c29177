package prompt

import (
	"regexp"
	"strings"

	"github.com/bryanwahyu/defect-tracker/internal/domain/defects"
)

type rule struct {
	defectType string
	re         *regexp.Regexp
}

// Order matters: the first matching rule wins.
var typeRules = []rule{
	{"water damage", regexp.MustCompile(`\b(leak\w*|damp\w*|water|moist\w*|mou?ld\w*|stain\w*)\b`)},
	{"plumbing", regexp.MustCompile(`\b(pipe\w*|drain\w*|faucet|tap|toilet|valve|sewer)\b`)},
	{"electrical", regexp.MustCompile(`\b(wir(e|es|ing)|socket\w*|outlet\w*|switch\w*|breaker\w*|cable\w*|light\w*)\b`)},
	{"structural", regexp.MustCompile(`\b(beam\w*|column\w*|foundation\w*|load[- ]bearing|sag\w*|deflect\w*|settle\w*)\b`)},
	{"crack", regexp.MustCompile(`\b(crack\w*|fissure\w*|fracture\w*|split\w*)\b`)},
	{"finish", regexp.MustCompile(`\b(paint\w*|plaster\w*|tile\w*|scratch\w*|chip\w*|dent\w*|peel\w*|finish\w*)\b`)},
}

var (
	criticalRe = regexp.MustCompile(`\b(collaps\w*|unsafe|danger\w*|exposed wir\w*|fire|sparks?)\b`)
	highRe     = regexp.MustCompile(`\b(major|severe|large|wide|active leak|spreading|structural)\b`)
	lowRe      = regexp.MustCompile(`\b(minor|small|hairline|cosmetic|slight)\b`)
)

// Heuristic classifies a description by keyword. Used when the model answer
// cannot be parsed.
func Heuristic(description string) defects.Classification {
	lower := strings.ToLower(description)

	c := defects.Classification{DefectType: "unknown", Severity: "Medium"}
	for _, r := range typeRules {
		if r.re.MatchString(lower) {
			c.DefectType = r.defectType
			break
		}
	}
	switch {
	case criticalRe.MatchString(lower):
		c.Severity = "Critical"
	case highRe.MatchString(lower):
		c.Severity = "High"
	case lowRe.MatchString(lower):
		c.Severity = "Low"
	}
	return c.Normalize()
}
