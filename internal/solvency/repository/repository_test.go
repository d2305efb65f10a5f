package repository

import (
	"context"
	"database/sql"
	"errors"
	"testing"
	"time"

	"solvency-workers/internal/solvency"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// ==========================
// Test Helper Functions
// ==========================

const testUserID = "7f1c0a52-8d1b-4d7e-9a55-1b2c3d4e5f60"

var fixedNow = time.Date(2025, 3, 14, 9, 30, 0, 0, time.UTC)

func newTestRepository(t *testing.T) (*Repository, sqlmock.Sqlmock) {
	t.Helper()
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })

	repo := New(db)
	repo.now = func() time.Time { return fixedNow }
	return repo, mock
}

func sampleQuestionnaire() solvency.Questionnaire {
	return solvency.Questionnaire{
		AnnualIncome:     decimal.NewFromInt(60000),
		MonthlyExpenses:  decimal.NewFromInt(2000),
		ExistingLoans:    decimal.NewFromInt(5000),
		EmploymentStatus: solvency.EmploymentEmployed,
		EmploymentLength: 5,
		Industry:         "Finance",
		JobTitle:         "Analyst",
		CreditScore:      720,
		Bankruptcy:       solvency.NoIncident(),
		Default:          solvency.IncidentYearsAgo(3),
		HomeOwnership:    solvency.HomeRent,
		EducationLevel:   solvency.EducationBachelors,
	}
}

func sampleRating() solvency.Rating {
	return solvency.Rating{
		CreditScore:         720,
		EmploymentScore:     50,
		IncomeScore:         63,
		DebtRatioScore:      92,
		PaymentHistoryScore: 65,
		OverallRating:       69,
	}
}

func expectQuestionnaireUpsert(mock sqlmock.Sqlmock) *sqlmock.ExpectedExec {
	return mock.ExpectExec(`INSERT INTO solvency_questionnaires`).
		WithArgs(
			testUserID, "60000", "2000", "5000",
			"employed", int64(5), "Finance", "Analyst", int64(720),
			false, nil, true, int64(3),
			"rent", "bachelors", fixedNow,
		)
}

func expectRatingUpsert(mock sqlmock.Sqlmock) *sqlmock.ExpectedExec {
	return mock.ExpectExec(`INSERT INTO user_ratings`).
		WithArgs(testUserID, int64(720), int64(50), int64(63), int64(92), int64(65), int64(69), fixedNow)
}

var assessmentColumns = []string{
	"annual_income", "monthly_expenses", "existing_loans",
	"employment_status", "employment_length", "industry", "job_title", "credit_score",
	"has_bankruptcies", "bankruptcy_years", "has_defaults", "default_years",
	"home_ownership", "education_level",
	"credit_score", "employment_score", "income_score",
	"debt_ratio_score", "payment_history_score", "overall_rating",
	"updated_at",
}

// ==========================
// SaveAssessment
// ==========================

func TestSaveAssessment_CommitsBothUpserts(t *testing.T) {
	repo, mock := newTestRepository(t)

	mock.ExpectBegin()
	expectQuestionnaireUpsert(mock).WillReturnResult(sqlmock.NewResult(0, 1))
	expectRatingUpsert(mock).WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectCommit()

	savedAt, err := repo.SaveAssessment(context.Background(), testUserID, sampleQuestionnaire(), sampleRating())

	require.NoError(t, err)
	assert.Equal(t, fixedNow, savedAt)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestSaveAssessment_RollsBack(t *testing.T) {
	tests := []struct {
		name  string
		setup func(mock sqlmock.Sqlmock)
	}{
		{
			name: "begin fails",
			setup: func(mock sqlmock.Sqlmock) {
				mock.ExpectBegin().WillReturnError(errors.New("too many connections"))
			},
		},
		{
			name: "questionnaire upsert fails",
			setup: func(mock sqlmock.Sqlmock) {
				mock.ExpectBegin()
				expectQuestionnaireUpsert(mock).WillReturnError(errors.New("deadlock detected"))
				mock.ExpectRollback()
			},
		},
		{
			name: "rating upsert fails after questionnaire",
			setup: func(mock sqlmock.Sqlmock) {
				mock.ExpectBegin()
				expectQuestionnaireUpsert(mock).WillReturnResult(sqlmock.NewResult(0, 1))
				expectRatingUpsert(mock).WillReturnError(errors.New("connection reset"))
				mock.ExpectRollback()
			},
		},
		{
			name: "commit fails",
			setup: func(mock sqlmock.Sqlmock) {
				mock.ExpectBegin()
				expectQuestionnaireUpsert(mock).WillReturnResult(sqlmock.NewResult(0, 1))
				expectRatingUpsert(mock).WillReturnResult(sqlmock.NewResult(0, 1))
				mock.ExpectCommit().WillReturnError(errors.New("serialization failure"))
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			repo, mock := newTestRepository(t)
			tt.setup(mock)

			_, err := repo.SaveAssessment(context.Background(), testUserID, sampleQuestionnaire(), sampleRating())

			require.Error(t, err)
			assert.True(t, errors.Is(err, ErrInsertFailed))
			assert.NoError(t, mock.ExpectationsWereMet())
		})
	}
}

// ==========================
// GetRating
// ==========================

func TestGetRating(t *testing.T) {
	t.Run("found", func(t *testing.T) {
		repo, mock := newTestRepository(t)
		rows := sqlmock.NewRows([]string{
			"credit_score", "employment_score", "income_score",
			"debt_ratio_score", "payment_history_score", "overall_rating",
		}).AddRow(720, 50, 63, 92, 65, 69)
		mock.ExpectQuery(`SELECT credit_score, employment_score`).
			WithArgs(testUserID).
			WillReturnRows(rows)

		rating, err := repo.GetRating(context.Background(), testUserID)

		require.NoError(t, err)
		assert.Equal(t, sampleRating(), *rating)
		assert.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("not found", func(t *testing.T) {
		repo, mock := newTestRepository(t)
		mock.ExpectQuery(`FROM user_ratings`).
			WithArgs(testUserID).
			WillReturnError(sql.ErrNoRows)

		_, err := repo.GetRating(context.Background(), testUserID)

		assert.ErrorIs(t, err, ErrNotFound)
	})

	t.Run("query error", func(t *testing.T) {
		repo, mock := newTestRepository(t)
		mock.ExpectQuery(`FROM user_ratings`).
			WithArgs(testUserID).
			WillReturnError(errors.New("connection refused"))

		_, err := repo.GetRating(context.Background(), testUserID)

		assert.ErrorIs(t, err, ErrQueryFailed)
	})
}

// ==========================
// GetAssessment
// ==========================

func TestGetAssessment_RebuildsQuestionnaire(t *testing.T) {
	repo, mock := newTestRepository(t)

	rows := sqlmock.NewRows(assessmentColumns).AddRow(
		"60000", "2000", "5000",
		"employed", 5, "Finance", "Analyst", 720,
		false, nil, true, 3,
		"rent", "bachelors",
		720, 50, 63, 92, 65, 69,
		fixedNow,
	)
	mock.ExpectQuery(`FROM solvency_questionnaires q\s+JOIN user_ratings r`).
		WithArgs(testUserID).
		WillReturnRows(rows)

	a, err := repo.GetAssessment(context.Background(), testUserID)

	require.NoError(t, err)
	assert.Equal(t, testUserID, a.UserID)
	assert.Equal(t, fixedNow, a.UpdatedAt)
	assert.Equal(t, sampleRating(), a.Rating)

	q := a.Questionnaire
	assert.True(t, q.AnnualIncome.Equal(decimal.NewFromInt(60000)))
	assert.Equal(t, solvency.EmploymentEmployed, q.EmploymentStatus)
	assert.Equal(t, solvency.HomeRent, q.HomeOwnership)
	assert.Equal(t, solvency.EducationBachelors, q.EducationLevel)
	assert.False(t, q.Bankruptcy.Reported())
	years, ok := q.Default.YearsAgo()
	assert.True(t, ok)
	assert.Equal(t, 3, years)

	assert.Equal(t, sampleRating(), solvency.ComputeRating(q), "stored rating must match the stored questionnaire")
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestGetAssessment_IgnoresYearsWhenFlagFalse(t *testing.T) {
	repo, mock := newTestRepository(t)

	rows := sqlmock.NewRows(assessmentColumns).AddRow(
		"60000", "2000", "5000",
		"employed", 5, "Finance", "Analyst", 720,
		false, 4, false, nil,
		"rent", "bachelors",
		720, 50, 63, 92, 100, 74,
		fixedNow,
	)
	mock.ExpectQuery(`FROM solvency_questionnaires`).WithArgs(testUserID).WillReturnRows(rows)

	a, err := repo.GetAssessment(context.Background(), testUserID)

	require.NoError(t, err)
	assert.False(t, a.Questionnaire.Bankruptcy.Reported())
}

func TestGetAssessment_Errors(t *testing.T) {
	t.Run("not found", func(t *testing.T) {
		repo, mock := newTestRepository(t)
		mock.ExpectQuery(`FROM solvency_questionnaires`).WithArgs(testUserID).WillReturnError(sql.ErrNoRows)

		_, err := repo.GetAssessment(context.Background(), testUserID)
		assert.ErrorIs(t, err, ErrNotFound)
	})

	t.Run("reported incident without years", func(t *testing.T) {
		repo, mock := newTestRepository(t)
		rows := sqlmock.NewRows(assessmentColumns).AddRow(
			"60000", "2000", "5000",
			"employed", 5, "Finance", "Analyst", 720,
			true, nil, false, nil,
			"rent", "bachelors",
			720, 50, 63, 92, 30, 63,
			fixedNow,
		)
		mock.ExpectQuery(`FROM solvency_questionnaires`).WithArgs(testUserID).WillReturnRows(rows)

		_, err := repo.GetAssessment(context.Background(), testUserID)
		assert.ErrorIs(t, err, ErrQueryFailed)
	})
}
