// internal/workers/solvency/validate-questionnaire/schema.go
package validatequestionnaire

import "solvency-workers/internal/common/validation"

const inputSchemaJSON = `{
	"$schema": "http://json-schema.org/draft-07/schema#",
	"type": "object",
	"required": ["userId", "answers"],
	"properties": {
		"userId": {"type": "string", "minLength": 1},
		"answers": {"type": "object"}
	}
}`

// QuestionnaireSchema describes a normalized questionnaire record.
const QuestionnaireSchema = `{
	"$schema": "http://json-schema.org/draft-07/schema#",
	"type": "object",
	"required": [
		"annual_income", "monthly_expenses", "existing_loans",
		"employment_status", "employment_length", "industry", "job_title",
		"credit_score", "has_bankruptcies", "has_defaults",
		"home_ownership", "education_level"
	],
	"properties": {
		"annual_income": {"type": "number", "minimum": 0},
		"monthly_expenses": {"type": "number", "minimum": 0},
		"existing_loans": {"type": "number", "minimum": 0},
		"employment_status": {"type": "string", "enum": ["employed", "self-employed", "unemployed", "retired"]},
		"employment_length": {"type": "integer", "minimum": 0},
		"industry": {"type": "string", "minLength": 1},
		"job_title": {"type": "string", "minLength": 1},
		"credit_score": {"type": "integer", "minimum": 300, "maximum": 850},
		"has_bankruptcies": {"type": "boolean"},
		"bankruptcy_years": {"type": "integer", "minimum": 0},
		"has_defaults": {"type": "boolean"},
		"default_years": {"type": "integer", "minimum": 0},
		"home_ownership": {"type": "string", "enum": ["own", "mortgage", "rent"]},
		"education_level": {"type": "string", "enum": ["high_school", "bachelors", "masters", "phd", "other"]}
	},
	"allOf": [
		{
			"if": {"properties": {"has_bankruptcies": {"const": true}}, "required": ["has_bankruptcies"]},
			"then": {"required": ["bankruptcy_years"]}
		},
		{
			"if": {"properties": {"has_defaults": {"const": true}}, "required": ["has_defaults"]},
			"then": {"required": ["default_years"]}
		}
	]
}`

var (
	inputSchema         = validation.MustCompile(inputSchemaJSON)
	questionnaireSchema = validation.MustCompile(QuestionnaireSchema)
)
