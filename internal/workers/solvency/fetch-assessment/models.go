// internal/workers/solvency/fetch-assessment/models.go
package fetchassessment

import (
	"time"

	"solvency-workers/internal/solvency"
)

const (
	SourceCache    = "cache"
	SourceDatabase = "database"
)

type Input struct {
	UserID               string `json:"userId"`
	IncludeQuestionnaire bool   `json:"includeQuestionnaire"`
}

// Output tells the process whether the user may proceed to a loan
// application. Rating and RatingSource are unset when HasRating is false.
type Output struct {
	HasRating       bool                    `json:"hasRating"`
	Rating          *solvency.Rating        `json:"rating,omitempty"`
	Questionnaire   *solvency.Questionnaire `json:"questionnaire,omitempty"`
	RatingSource    string                  `json:"ratingSource,omitempty"`
	RatingUpdatedAt *time.Time              `json:"ratingUpdatedAt,omitempty"`
}
