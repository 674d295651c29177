package prompt

import (
	"fmt"
	"strings"
)

// SystemPrompt fixes the vocabulary and the JSON shape the classifier must answer with.
func SystemPrompt() string {
	return `You are a building inspector triaging defects found in a 3D site scan. You must produce one valid JSON object only (no markdown, no commentary). Do not include code fences.

Requirements:
- defect_type is one of: crack, water damage, structural, finish, electrical, plumbing, unknown.
- severity is one of: Low, Medium, High, Critical.
- When the description is empty or ambiguous use "unknown" and "Medium".

Schema:
{"defect_type": "<string>", "severity": "<string>"}`
}

// UserPrompt wraps a single defect description.
func UserPrompt(description string) string {
	description = strings.TrimSpace(description)
	if description == "" {
		description = "(no description)"
	}
	return fmt.Sprintf("Classify this defect and respond with the JSON per schema. Description: %s", description)
}
