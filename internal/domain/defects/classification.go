package defects

import "strings"

// Classification is the defect type and severity assigned to a defect.
type Classification struct {
	DefectType string `json:"defect_type"`
	Severity   string `json:"severity"`
}

// Defaults used by the persisted defect row.
const (
	DefaultType     = "Unknown"
	DefaultSeverity = "Medium"
	DefaultStatus   = "Reported"
)

var knownTypes = map[string]string{
	"crack":        "crack",
	"water damage": "water damage",
	"water_damage": "water damage",
	"structural":   "structural",
	"finish":       "finish",
	"electrical":   "electrical",
	"plumbing":     "plumbing",
	"unknown":      DefaultType,
}

var knownSeverities = map[string]string{
	"low":      "Low",
	"medium":   "Medium",
	"high":     "High",
	"critical": "Critical",
}

// Normalize maps free-form answers onto the known vocabulary.
func (c Classification) Normalize() Classification {
	t, ok := knownTypes[strings.ToLower(strings.TrimSpace(c.DefectType))]
	if !ok {
		t = DefaultType
	}
	s, ok := knownSeverities[strings.ToLower(strings.TrimSpace(c.Severity))]
	if !ok {
		s = DefaultSeverity
	}
	return Classification{DefectType: t, Severity: s}
}
