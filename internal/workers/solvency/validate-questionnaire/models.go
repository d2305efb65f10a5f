// internal/workers/solvency/validate-questionnaire/models.go
package validatequestionnaire

import (
	"solvency-workers/internal/common/validation"
	"solvency-workers/internal/solvency"
)

// Input carries the answers exactly as the web form posted them.
type Input struct {
	UserID  string                 `json:"userId"`
	Answers map[string]interface{} `json:"answers"`
}

// Output is routed on by the process: an invalid questionnaire is a normal
// outcome, not an incident.
type Output struct {
	QuestionnaireValid bool                         `json:"questionnaireValid"`
	Questionnaire      *solvency.Questionnaire      `json:"questionnaire,omitempty"`
	ValidationErrors   []validation.ValidationError `json:"validationErrors"`
}
