// internal/solvency/validate.go
package solvency

import (
	"errors"

	validation "github.com/go-ozzo/ozzo-validation/v4"
	"github.com/shopspring/decimal"
)

var (
	ErrMissingIncidentYears = errors.New("MISSING_INCIDENT_YEARS")

	errNegativeAmount = validation.NewError("validation_negative_amount", "must not be negative")
	errNegativeYears  = validation.NewError("validation_negative_years", "must not be negative")
)

var (
	employmentStatuses = []interface{}{EmploymentEmployed, EmploymentSelfEmployed, EmploymentUnemployed, EmploymentRetired}
	homeOwnerships     = []interface{}{HomeOwn, HomeMortgage, HomeRent}
	educationLevels    = []interface{}{EducationHighSchool, EducationBachelors, EducationMasters, EducationPhD, EducationOther}
)

// Validate checks the domain constraints ComputeRating relies on. The
// returned error is a validation.Errors keyed by record field name.
func (q Questionnaire) Validate() error {
	return validation.ValidateStruct(&q,
		validation.Field(&q.AnnualIncome, validation.By(nonNegativeAmount)),
		validation.Field(&q.MonthlyExpenses, validation.By(nonNegativeAmount)),
		validation.Field(&q.ExistingLoans, validation.By(nonNegativeAmount)),
		validation.Field(&q.EmploymentStatus, validation.Required, validation.In(employmentStatuses...)),
		validation.Field(&q.EmploymentLength, validation.Min(0)),
		validation.Field(&q.Industry, validation.Required),
		validation.Field(&q.JobTitle, validation.Required),
		validation.Field(&q.CreditScore, validation.Required, validation.Min(MinCreditScore), validation.Max(MaxCreditScore)),
		validation.Field(&q.Bankruptcy, validation.By(nonNegativeIncident)),
		validation.Field(&q.Default, validation.By(nonNegativeIncident)),
		validation.Field(&q.HomeOwnership, validation.Required, validation.In(homeOwnerships...)),
		validation.Field(&q.EducationLevel, validation.Required, validation.In(educationLevels...)),
	)
}

func nonNegativeAmount(value interface{}) error {
	d, ok := value.(decimal.Decimal)
	if !ok {
		return validation.ErrNil
	}
	if d.IsNegative() {
		return errNegativeAmount
	}
	return nil
}

func nonNegativeIncident(value interface{}) error {
	incident, ok := value.(Incident)
	if !ok {
		return validation.ErrNil
	}
	if years, reported := incident.YearsAgo(); reported && years < 0 {
		return errNegativeYears
	}
	return nil
}
