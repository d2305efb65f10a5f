// internal/workers/solvency/calculate-rating/models.go
package calculaterating

import "solvency-workers/internal/solvency"

type Input struct {
	UserID        string                  `json:"userId"`
	Questionnaire *solvency.Questionnaire `json:"questionnaire"`
}

type Output struct {
	Rating solvency.Rating `json:"rating"`
}
