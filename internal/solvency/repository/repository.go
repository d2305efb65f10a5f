// Package repository persists solvency questionnaires and ratings in Postgres.
package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"solvency-workers/internal/solvency"
)

var (
	ErrNotFound     = errors.New("ASSESSMENT_NOT_FOUND")
	ErrInsertFailed = errors.New("DATABASE_INSERT_FAILED")
	ErrQueryFailed  = errors.New("QUERY_EXECUTION_FAILED")
)

const upsertQuestionnaire = `
	INSERT INTO solvency_questionnaires (
		user_id, annual_income, monthly_expenses, existing_loans,
		employment_status, employment_length, industry, job_title, credit_score,
		has_bankruptcies, bankruptcy_years, has_defaults, default_years,
		home_ownership, education_level, updated_at
	) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16)
	ON CONFLICT (user_id) DO UPDATE SET
		annual_income = EXCLUDED.annual_income,
		monthly_expenses = EXCLUDED.monthly_expenses,
		existing_loans = EXCLUDED.existing_loans,
		employment_status = EXCLUDED.employment_status,
		employment_length = EXCLUDED.employment_length,
		industry = EXCLUDED.industry,
		job_title = EXCLUDED.job_title,
		credit_score = EXCLUDED.credit_score,
		has_bankruptcies = EXCLUDED.has_bankruptcies,
		bankruptcy_years = EXCLUDED.bankruptcy_years,
		has_defaults = EXCLUDED.has_defaults,
		default_years = EXCLUDED.default_years,
		home_ownership = EXCLUDED.home_ownership,
		education_level = EXCLUDED.education_level,
		updated_at = EXCLUDED.updated_at`

const upsertRating = `
	INSERT INTO user_ratings (
		user_id, credit_score, employment_score, income_score,
		debt_ratio_score, payment_history_score, overall_rating, updated_at
	) VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
	ON CONFLICT (user_id) DO UPDATE SET
		credit_score = EXCLUDED.credit_score,
		employment_score = EXCLUDED.employment_score,
		income_score = EXCLUDED.income_score,
		debt_ratio_score = EXCLUDED.debt_ratio_score,
		payment_history_score = EXCLUDED.payment_history_score,
		overall_rating = EXCLUDED.overall_rating,
		updated_at = EXCLUDED.updated_at`

const selectRating = `
	SELECT credit_score, employment_score, income_score,
		debt_ratio_score, payment_history_score, overall_rating
	FROM user_ratings
	WHERE user_id = $1`

const selectAssessment = `
	SELECT q.annual_income, q.monthly_expenses, q.existing_loans,
		q.employment_status, q.employment_length, q.industry, q.job_title, q.credit_score,
		q.has_bankruptcies, q.bankruptcy_years, q.has_defaults, q.default_years,
		q.home_ownership, q.education_level,
		r.credit_score, r.employment_score, r.income_score,
		r.debt_ratio_score, r.payment_history_score, r.overall_rating,
		r.updated_at
	FROM solvency_questionnaires q
	JOIN user_ratings r ON r.user_id = q.user_id
	WHERE q.user_id = $1`

// Repository stores one questionnaire and one rating per user.
type Repository struct {
	db  *sql.DB
	now func() time.Time
}

func New(db *sql.DB) *Repository {
	return &Repository{
		db:  db,
		now: func() time.Time { return time.Now().UTC() },
	}
}

// SaveAssessment upserts the questionnaire and its rating in one transaction
// and returns the timestamp written to both rows.
func (r *Repository) SaveAssessment(ctx context.Context, userID string, q solvency.Questionnaire, rating solvency.Rating) (time.Time, error) {
	savedAt := r.now()

	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return time.Time{}, fmt.Errorf("%w: begin transaction: %v", ErrInsertFailed, err)
	}
	defer tx.Rollback()

	_, err = tx.ExecContext(ctx, upsertQuestionnaire,
		userID,
		q.AnnualIncome,
		q.MonthlyExpenses,
		q.ExistingLoans,
		string(q.EmploymentStatus),
		q.EmploymentLength,
		q.Industry,
		q.JobTitle,
		q.CreditScore,
		q.Bankruptcy.Reported(),
		yearsArg(q.Bankruptcy),
		q.Default.Reported(),
		yearsArg(q.Default),
		string(q.HomeOwnership),
		string(q.EducationLevel),
		savedAt,
	)
	if err != nil {
		return time.Time{}, fmt.Errorf("%w: upsert questionnaire: %v", ErrInsertFailed, err)
	}

	_, err = tx.ExecContext(ctx, upsertRating,
		userID,
		rating.CreditScore,
		rating.EmploymentScore,
		rating.IncomeScore,
		rating.DebtRatioScore,
		rating.PaymentHistoryScore,
		rating.OverallRating,
		savedAt,
	)
	if err != nil {
		return time.Time{}, fmt.Errorf("%w: upsert rating: %v", ErrInsertFailed, err)
	}

	if err := tx.Commit(); err != nil {
		return time.Time{}, fmt.Errorf("%w: commit: %v", ErrInsertFailed, err)
	}

	return savedAt, nil
}

// GetRating returns ErrNotFound when the user has never been rated.
func (r *Repository) GetRating(ctx context.Context, userID string) (*solvency.Rating, error) {
	var rating solvency.Rating
	err := r.db.QueryRowContext(ctx, selectRating, userID).Scan(
		&rating.CreditScore,
		&rating.EmploymentScore,
		&rating.IncomeScore,
		&rating.DebtRatioScore,
		&rating.PaymentHistoryScore,
		&rating.OverallRating,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("%w: get rating: %v", ErrQueryFailed, err)
	}
	return &rating, nil
}

// GetAssessment loads the questionnaire together with its rating.
func (r *Repository) GetAssessment(ctx context.Context, userID string) (*solvency.Assessment, error) {
	var (
		a                             solvency.Assessment
		employment, home, education   string
		hasBankruptcies, hasDefaults  bool
		bankruptcyYears, defaultYears sql.NullInt64
	)

	err := r.db.QueryRowContext(ctx, selectAssessment, userID).Scan(
		&a.Questionnaire.AnnualIncome,
		&a.Questionnaire.MonthlyExpenses,
		&a.Questionnaire.ExistingLoans,
		&employment,
		&a.Questionnaire.EmploymentLength,
		&a.Questionnaire.Industry,
		&a.Questionnaire.JobTitle,
		&a.Questionnaire.CreditScore,
		&hasBankruptcies,
		&bankruptcyYears,
		&hasDefaults,
		&defaultYears,
		&home,
		&education,
		&a.Rating.CreditScore,
		&a.Rating.EmploymentScore,
		&a.Rating.IncomeScore,
		&a.Rating.DebtRatioScore,
		&a.Rating.PaymentHistoryScore,
		&a.Rating.OverallRating,
		&a.UpdatedAt,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("%w: get assessment: %v", ErrQueryFailed, err)
	}

	a.UserID = userID
	a.Questionnaire.EmploymentStatus = solvency.EmploymentStatus(employment)
	a.Questionnaire.HomeOwnership = solvency.HomeOwnership(home)
	a.Questionnaire.EducationLevel = solvency.EducationLevel(education)

	if a.Questionnaire.Bankruptcy, err = solvency.IncidentFromColumns("bankruptcy_years", hasBankruptcies, nullableYears(bankruptcyYears)); err != nil {
		return nil, fmt.Errorf("%w: corrupt questionnaire row: %v", ErrQueryFailed, err)
	}
	if a.Questionnaire.Default, err = solvency.IncidentFromColumns("default_years", hasDefaults, nullableYears(defaultYears)); err != nil {
		return nil, fmt.Errorf("%w: corrupt questionnaire row: %v", ErrQueryFailed, err)
	}

	return &a, nil
}

// Ping is used by the readiness probe.
func (r *Repository) Ping(ctx context.Context) error {
	return r.db.PingContext(ctx)
}

func yearsArg(i solvency.Incident) interface{} {
	if years, ok := i.YearsAgo(); ok {
		return int64(years)
	}
	return nil
}

func nullableYears(n sql.NullInt64) *int {
	if !n.Valid {
		return nil
	}
	v := int(n.Int64)
	return &v
}
