// internal/solvency/model.go
package solvency

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/shopspring/decimal"
)

type EmploymentStatus string

const (
	EmploymentEmployed     EmploymentStatus = "employed"
	EmploymentSelfEmployed EmploymentStatus = "self-employed"
	EmploymentUnemployed   EmploymentStatus = "unemployed"
	EmploymentRetired      EmploymentStatus = "retired"
)

type HomeOwnership string

const (
	HomeOwn      HomeOwnership = "own"
	HomeMortgage HomeOwnership = "mortgage"
	HomeRent     HomeOwnership = "rent"
)

type EducationLevel string

const (
	EducationHighSchool EducationLevel = "high_school"
	EducationBachelors  EducationLevel = "bachelors"
	EducationMasters    EducationLevel = "masters"
	EducationPhD        EducationLevel = "phd"
	EducationOther      EducationLevel = "other"
)

// Incident records whether an adverse credit event (bankruptcy or default)
// happened and, if so, how many years ago. The zero value means no incident.
type Incident struct {
	reported bool
	yearsAgo int
}

func NoIncident() Incident {
	return Incident{}
}

func IncidentYearsAgo(years int) Incident {
	return Incident{reported: true, yearsAgo: years}
}

func (i Incident) Reported() bool {
	return i.reported
}

// YearsAgo returns the age of the incident; ok is false when none was reported.
func (i Incident) YearsAgo() (years int, ok bool) {
	return i.yearsAgo, i.reported
}

func (i Incident) yearsPtr() *int {
	if !i.reported {
		return nil
	}
	y := i.yearsAgo
	return &y
}

// Questionnaire holds a user's self-reported solvency answers. The json tags
// name the flat record fields and are used for validation error keys; the
// encoding itself goes through questionnaireRecord.
type Questionnaire struct {
	AnnualIncome     decimal.Decimal  `json:"annual_income"`
	MonthlyExpenses  decimal.Decimal  `json:"monthly_expenses"`
	ExistingLoans    decimal.Decimal  `json:"existing_loans"`
	EmploymentStatus EmploymentStatus `json:"employment_status"`
	EmploymentLength int              `json:"employment_length"`
	Industry         string           `json:"industry"`
	JobTitle         string           `json:"job_title"`
	CreditScore      int              `json:"credit_score"`
	Bankruptcy       Incident         `json:"bankruptcy_years"`
	Default          Incident         `json:"default_years"`
	HomeOwnership    HomeOwnership    `json:"home_ownership"`
	EducationLevel   EducationLevel   `json:"education_level"`
}

type questionnaireRecord struct {
	AnnualIncome     decimal.Decimal  `json:"annual_income"`
	MonthlyExpenses  decimal.Decimal  `json:"monthly_expenses"`
	ExistingLoans    decimal.Decimal  `json:"existing_loans"`
	EmploymentStatus EmploymentStatus `json:"employment_status"`
	EmploymentLength int              `json:"employment_length"`
	Industry         string           `json:"industry"`
	JobTitle         string           `json:"job_title"`
	CreditScore      int              `json:"credit_score"`
	HasBankruptcies  bool             `json:"has_bankruptcies"`
	BankruptcyYears  *int             `json:"bankruptcy_years"`
	HasDefaults      bool             `json:"has_defaults"`
	DefaultYears     *int             `json:"default_years"`
	HomeOwnership    HomeOwnership    `json:"home_ownership"`
	EducationLevel   EducationLevel   `json:"education_level"`
}

func (q Questionnaire) MarshalJSON() ([]byte, error) {
	return json.Marshal(questionnaireRecord{
		AnnualIncome:     q.AnnualIncome,
		MonthlyExpenses:  q.MonthlyExpenses,
		ExistingLoans:    q.ExistingLoans,
		EmploymentStatus: q.EmploymentStatus,
		EmploymentLength: q.EmploymentLength,
		Industry:         q.Industry,
		JobTitle:         q.JobTitle,
		CreditScore:      q.CreditScore,
		HasBankruptcies:  q.Bankruptcy.Reported(),
		BankruptcyYears:  q.Bankruptcy.yearsPtr(),
		HasDefaults:      q.Default.Reported(),
		DefaultYears:     q.Default.yearsPtr(),
		HomeOwnership:    q.HomeOwnership,
		EducationLevel:   q.EducationLevel,
	})
}

func (q *Questionnaire) UnmarshalJSON(data []byte) error {
	var rec questionnaireRecord
	if err := json.Unmarshal(data, &rec); err != nil {
		return err
	}

	bankruptcy, err := incidentFromRecord("bankruptcy_years", rec.HasBankruptcies, rec.BankruptcyYears)
	if err != nil {
		return err
	}
	def, err := incidentFromRecord("default_years", rec.HasDefaults, rec.DefaultYears)
	if err != nil {
		return err
	}

	*q = Questionnaire{
		AnnualIncome:     rec.AnnualIncome,
		MonthlyExpenses:  rec.MonthlyExpenses,
		ExistingLoans:    rec.ExistingLoans,
		EmploymentStatus: rec.EmploymentStatus,
		EmploymentLength: rec.EmploymentLength,
		Industry:         rec.Industry,
		JobTitle:         rec.JobTitle,
		CreditScore:      rec.CreditScore,
		Bankruptcy:       bankruptcy,
		Default:          def,
		HomeOwnership:    rec.HomeOwnership,
		EducationLevel:   rec.EducationLevel,
	}
	return nil
}

// IncidentFromColumns rebuilds an Incident from its stored flag and years.
// A false flag always yields NoIncident, whatever the years hold.
func IncidentFromColumns(field string, reported bool, years *int) (Incident, error) {
	return incidentFromRecord(field, reported, years)
}

func incidentFromRecord(field string, reported bool, years *int) (Incident, error) {
	if !reported {
		return NoIncident(), nil
	}
	if years == nil {
		return Incident{}, fmt.Errorf("%w: %s is required when the incident is reported", ErrMissingIncidentYears, field)
	}
	return IncidentYearsAgo(*years), nil
}

// Rating is derived from a Questionnaire by ComputeRating.
type Rating struct {
	CreditScore         int `json:"credit_score"`
	EmploymentScore     int `json:"employment_score"`
	IncomeScore         int `json:"income_score"`
	DebtRatioScore      int `json:"debt_ratio_score"`
	PaymentHistoryScore int `json:"payment_history_score"`
	OverallRating       int `json:"overall_rating"`
}

// Assessment is the persisted questionnaire/rating pair for one user.
type Assessment struct {
	UserID        string        `json:"userId"`
	Questionnaire Questionnaire `json:"questionnaire"`
	Rating        Rating        `json:"rating"`
	UpdatedAt     time.Time     `json:"updatedAt"`
}
