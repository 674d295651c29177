package httpserver

import (
	"encoding/json"
	"html/template"

	"github.com/tidwall/gjson"

	"github.com/bryanwahyu/defect-tracker/internal/domain/defects"
)

var templateFuncs = template.FuncMap{
	"coord": defects.FormatCoord,
	// raw prints a raw JSON scalar without quotes; null prints nothing.
	"raw": func(m json.RawMessage) string { return gjson.ParseBytes(m).String() },
	"deref": func(s *string) string {
		if s == nil {
			return ""
		}
		return *s
	},
}
