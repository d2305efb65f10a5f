// internal/workers/solvency/validate-questionnaire/coerce.go
package validatequestionnaire

import (
	"encoding/json"
	"strings"

	"github.com/shopspring/decimal"
)

var numericFields = []string{
	"annual_income",
	"monthly_expenses",
	"existing_loans",
	"employment_length",
	"credit_score",
	"bankruptcy_years",
	"default_years",
}

var textFields = []string{
	"employment_status",
	"industry",
	"job_title",
	"home_ownership",
	"education_level",
}

// incident flag -> years field
var incidentFields = map[string]string{
	"has_bankruptcies": "bankruptcy_years",
	"has_defaults":     "default_years",
}

// Normalize turns raw form answers into a record the questionnaire schema can
// judge. Values it cannot coerce are left alone so the schema reports them.
// The answers map is not modified.
func Normalize(answers map[string]interface{}) map[string]interface{} {
	out := make(map[string]interface{}, len(answers))
	for k, v := range answers {
		out[k] = v
	}

	for _, field := range textFields {
		if s, ok := out[field].(string); ok {
			out[field] = strings.TrimSpace(s)
		}
	}

	for _, field := range numericFields {
		v, present := out[field]
		if !present {
			continue
		}
		if v == nil {
			delete(out, field)
			continue
		}
		s, ok := v.(string)
		if !ok {
			continue
		}
		if n, ok := coerceNumber(s); ok {
			out[field] = n
		} else if strings.TrimSpace(s) == "" {
			delete(out, field)
		}
	}

	// an unticked checkbox is not posted at all
	for flag, yearsField := range incidentFields {
		reported, ok := coerceBool(out[flag])
		if !ok {
			continue
		}
		out[flag] = reported
		if !reported {
			delete(out, yearsField)
		}
	}

	return out
}

func coerceNumber(s string) (json.Number, bool) {
	cleaned := strings.NewReplacer(",", "", " ", "", "_", "").Replace(strings.TrimSpace(s))
	if cleaned == "" {
		return "", false
	}
	d, err := decimal.NewFromString(cleaned)
	if err != nil {
		return "", false
	}
	return json.Number(d.String()), true
}

func coerceBool(v interface{}) (bool, bool) {
	switch b := v.(type) {
	case nil:
		return false, true
	case bool:
		return b, true
	case string:
		switch strings.ToLower(strings.TrimSpace(b)) {
		case "true", "yes", "on", "1":
			return true, true
		case "false", "no", "off", "0", "":
			return false, true
		}
	}
	return false, false
}
