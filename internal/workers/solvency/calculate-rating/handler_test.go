// internal/workers/solvency/calculate-rating/handler_test.go
package calculaterating

import (
	"context"
	stderrors "errors"
	"testing"
	"time"

	"solvency-workers/internal/common/errors"
	"solvency-workers/internal/common/logger"
	"solvency-workers/internal/solvency"

	"github.com/camunda/zeebe/clients/go/v8/pkg/entities"
	"github.com/camunda/zeebe/clients/go/v8/pkg/pb"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// ==========================
// Test Helper Functions
// ==========================

func createTestHandler(t *testing.T) *Handler {
	return NewHandler(&Config{Timeout: 5 * time.Second}, nil, logger.NewTestLogger(t))
}

func createJob(variables string) entities.Job {
	return entities.Job{ActivatedJob: &pb.ActivatedJob{
		Key:       1,
		Type:      TaskType,
		Retries:   3,
		Variables: variables,
	}}
}

func sampleQuestionnaire() *solvency.Questionnaire {
	return &solvency.Questionnaire{
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

func requireCode(t *testing.T, err error, code errors.ErrorCode) {
	t.Helper()
	var stdErr *errors.StandardError
	require.True(t, stderrors.As(err, &stdErr), "expected StandardError, got %v", err)
	assert.Equal(t, code, stdErr.Code)
}

// ==========================
// Core Functionality Tests
// ==========================

func TestHandler_Execute_Success(t *testing.T) {
	handler := createTestHandler(t)

	output, err := handler.Execute(context.Background(), &Input{
		UserID:        "user-1",
		Questionnaire: sampleQuestionnaire(),
	})

	require.NoError(t, err)
	assert.Equal(t, solvency.Rating{
		CreditScore:         720,
		EmploymentScore:     50,
		IncomeScore:         63,
		DebtRatioScore:      92,
		PaymentHistoryScore: 65,
		OverallRating:       69,
	}, output.Rating)
}

func TestHandler_Execute_IsDeterministic(t *testing.T) {
	handler := createTestHandler(t)
	input := &Input{UserID: "user-1", Questionnaire: sampleQuestionnaire()}

	first, err := handler.Execute(context.Background(), input)
	require.NoError(t, err)
	second, err := handler.Execute(context.Background(), input)
	require.NoError(t, err)

	assert.Equal(t, first, second)
}

func TestHandler_Execute_ValidationFailure(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(q *solvency.Questionnaire)
		field  string
	}{
		{
			name:   "credit score above range",
			mutate: func(q *solvency.Questionnaire) { q.CreditScore = 900 },
			field:  "credit_score",
		},
		{
			name:   "negative income",
			mutate: func(q *solvency.Questionnaire) { q.AnnualIncome = decimal.NewFromInt(-1) },
			field:  "annual_income",
		},
		{
			name:   "unknown employment status",
			mutate: func(q *solvency.Questionnaire) { q.EmploymentStatus = "freelance" },
			field:  "employment_status",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			handler := createTestHandler(t)
			q := sampleQuestionnaire()
			tt.mutate(q)

			output, err := handler.Execute(context.Background(), &Input{UserID: "user-1", Questionnaire: q})

			assert.Nil(t, output)
			requireCode(t, err, errors.ErrCodeQuestionnaireValidationFailed)
			assert.Contains(t, err.(*errors.StandardError).Details, tt.field)
		})
	}
}

// ==========================
// Input Parsing Tests
// ==========================

func TestHandler_ParseInput(t *testing.T) {
	handler := createTestHandler(t)

	input, err := handler.parseInput(createJob(`{
		"userId": "user-1",
		"questionnaire": {
			"annual_income": 60000, "monthly_expenses": 2000, "existing_loans": 5000,
			"employment_status": "employed", "employment_length": 5,
			"industry": "Finance", "job_title": "Analyst", "credit_score": 720,
			"has_bankruptcies": false, "bankruptcy_years": null,
			"has_defaults": true, "default_years": 3,
			"home_ownership": "rent", "education_level": "bachelors"
		}
	}`))

	require.NoError(t, err)
	assert.Equal(t, "user-1", input.UserID)
	assert.True(t, decimal.NewFromInt(60000).Equal(input.Questionnaire.AnnualIncome))
	assert.Equal(t, solvency.EmploymentEmployed, input.Questionnaire.EmploymentStatus)
	assert.False(t, input.Questionnaire.Bankruptcy.Reported())
	years, ok := input.Questionnaire.Default.YearsAgo()
	assert.True(t, ok)
	assert.Equal(t, 3, years)
}

func TestHandler_ParseInput_Errors(t *testing.T) {
	tests := []struct {
		name      string
		variables string
		code      errors.ErrorCode
	}{
		{
			name:      "malformed variables",
			variables: `{"userId": 12}`,
			code:      errors.ErrCodeInvalidQuestionnaireInput,
		},
		{
			name:      "missing user id",
			variables: `{"questionnaire": {"credit_score": 700}}`,
			code:      errors.ErrCodeInvalidQuestionnaireInput,
		},
		{
			name:      "missing questionnaire",
			variables: `{"userId": "user-1"}`,
			code:      errors.ErrCodeInvalidQuestionnaireInput,
		},
		{
			name:      "reported default without years",
			variables: `{"userId": "user-1", "questionnaire": {"has_defaults": true}}`,
			code:      errors.ErrCodeQuestionnaireValidationFailed,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			handler := createTestHandler(t)
			_, err := handler.parseInput(createJob(tt.variables))
			requireCode(t, err, tt.code)
		})
	}
}
