// internal/workers/solvency/save-assessment/models.go
package saveassessment

import (
	"time"

	"solvency-workers/internal/solvency"
)

type Input struct {
	UserID        string                  `json:"userId"`
	Questionnaire *solvency.Questionnaire `json:"questionnaire"`
	Rating        *solvency.Rating        `json:"rating"`
}

// Output carries the rating as it was read back after the commit.
type Output struct {
	Rating        solvency.Rating `json:"rating"`
	RatingSavedAt time.Time       `json:"ratingSavedAt"`
}
