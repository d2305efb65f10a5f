// internal/workers/solvency/save-assessment/handler_test.go
package saveassessment

import (
	"context"
	"database/sql"
	stderrors "errors"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"solvency-workers/internal/common/errors"
	"solvency-workers/internal/common/logger"
	"solvency-workers/internal/solvency"
	"solvency-workers/internal/solvency/cache"
	"solvency-workers/internal/solvency/repository"
	"solvency-workers/internal/solvency/search"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/alicebob/miniredis/v2"
	"github.com/camunda/zeebe/clients/go/v8/pkg/entities"
	"github.com/camunda/zeebe/clients/go/v8/pkg/pb"
	"github.com/elastic/go-elasticsearch/v8"
	"github.com/redis/go-redis/v9"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// ==========================
// Test Helper Functions
// ==========================

const testUserID = "7f1c0a52-8d1b-4d7e-9a55-1b2c3d4e5f60"

var storedAt = time.Date(2025, 3, 14, 9, 30, 0, 0, time.UTC)

var assessmentColumns = []string{
	"annual_income", "monthly_expenses", "existing_loans",
	"employment_status", "employment_length", "industry", "job_title", "credit_score",
	"has_bankruptcies", "bankruptcy_years", "has_defaults", "default_years",
	"home_ownership", "education_level",
	"r_credit_score", "employment_score", "income_score",
	"debt_ratio_score", "payment_history_score", "overall_rating",
	"updated_at",
}

type testEnv struct {
	handler *Handler
	mock    sqlmock.Sqlmock
	redis   *miniredis.Miniredis
}

func createTestEnv(t *testing.T, indexer *search.Indexer) *testEnv {
	t.Helper()

	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })

	mr := miniredis.RunT(t)
	redisClient := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { redisClient.Close() })

	handler := NewHandler(&Config{Timeout: 5 * time.Second}, Dependencies{
		Repository: repository.New(db),
		Cache:      cache.New(redisClient, cache.DefaultKeyspace, cache.DefaultTTL),
		Indexer:    indexer,
	}, logger.NewTestLogger(t))

	return &testEnv{handler: handler, mock: mock, redis: mr}
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

func sampleRating() *solvency.Rating {
	return &solvency.Rating{
		CreditScore:         720,
		EmploymentScore:     50,
		IncomeScore:         63,
		DebtRatioScore:      92,
		PaymentHistoryScore: 65,
		OverallRating:       69,
	}
}

func sampleInput() *Input {
	return &Input{UserID: testUserID, Questionnaire: sampleQuestionnaire(), Rating: sampleRating()}
}

func expectSave(mock sqlmock.Sqlmock) {
	mock.ExpectBegin()
	mock.ExpectExec(`INSERT INTO solvency_questionnaires`).WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec(`INSERT INTO user_ratings`).WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectCommit()
}

func expectReadBack(mock sqlmock.Sqlmock) {
	rows := sqlmock.NewRows(assessmentColumns).AddRow(
		"60000", "2000", "5000",
		"employed", 5, "Finance", "Analyst", 720,
		false, nil, true, 3,
		"rent", "bachelors",
		720, 50, 63, 92, 65, 69,
		storedAt,
	)
	mock.ExpectQuery(`FROM solvency_questionnaires q`).WithArgs(testUserID).WillReturnRows(rows)
}

func createJob(variables string) entities.Job {
	return entities.Job{ActivatedJob: &pb.ActivatedJob{
		Key:       11,
		Type:      TaskType,
		Retries:   3,
		Variables: variables,
	}}
}

func requireCode(t *testing.T, err error, code errors.ErrorCode) *errors.StandardError {
	t.Helper()
	var stdErr *errors.StandardError
	require.True(t, stderrors.As(err, &stdErr), "expected StandardError, got %v", err)
	assert.Equal(t, code, stdErr.Code)
	return stdErr
}

func fakeElasticsearch(t *testing.T, status int) (*elasticsearch.Client, *[]string) {
	t.Helper()
	var paths []string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = io.Copy(io.Discard, r.Body)
		paths = append(paths, r.Method+" "+r.URL.Path)
		w.Header().Set("X-Elastic-Product", "Elasticsearch")
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(status)
		_, _ = io.WriteString(w, `{"result":"created"}`)
	}))
	t.Cleanup(srv.Close)

	client, err := elasticsearch.NewClient(elasticsearch.Config{Addresses: []string{srv.URL}})
	require.NoError(t, err)
	return client, &paths
}

// ==========================
// Core Functionality Tests
// ==========================

func TestHandler_Execute_Success(t *testing.T) {
	env := createTestEnv(t, nil)
	expectSave(env.mock)
	expectReadBack(env.mock)

	output, err := env.handler.Execute(context.Background(), sampleInput())

	require.NoError(t, err)
	assert.Equal(t, *sampleRating(), output.Rating)
	assert.Equal(t, storedAt, output.RatingSavedAt)
	assert.True(t, env.redis.Exists(cache.DefaultKeyspace+":"+testUserID), "rating cache refreshed")
	assert.NoError(t, env.mock.ExpectationsWereMet())
}

func TestHandler_Execute_RejectsMismatchedRating(t *testing.T) {
	env := createTestEnv(t, nil)
	input := sampleInput()
	input.Rating.OverallRating = 90

	output, err := env.handler.Execute(context.Background(), input)

	assert.Nil(t, output)
	stdErr := requireCode(t, err, errors.ErrCodeRatingMismatch)
	assert.False(t, stdErr.Retryable)
	assert.Contains(t, stdErr.Details, "90")
	assert.NoError(t, env.mock.ExpectationsWereMet(), "nothing is written")
}

func TestHandler_Execute_RejectsInvalidQuestionnaire(t *testing.T) {
	env := createTestEnv(t, nil)
	input := sampleInput()
	input.Questionnaire.CreditScore = 200

	_, err := env.handler.Execute(context.Background(), input)

	requireCode(t, err, errors.ErrCodeQuestionnaireValidationFailed)
	assert.NoError(t, env.mock.ExpectationsWereMet())
}

func TestHandler_Execute_DatabaseFailureIsRetryable(t *testing.T) {
	env := createTestEnv(t, nil)
	env.mock.ExpectBegin()
	env.mock.ExpectExec(`INSERT INTO solvency_questionnaires`).WillReturnResult(sqlmock.NewResult(0, 1))
	env.mock.ExpectExec(`INSERT INTO user_ratings`).WillReturnError(fmt.Errorf("deadlock detected"))
	env.mock.ExpectRollback()

	output, err := env.handler.Execute(context.Background(), sampleInput())

	assert.Nil(t, output)
	stdErr := requireCode(t, err, errors.ErrCodeDatabaseInsertFailed)
	assert.True(t, stdErr.Retryable)
	assert.False(t, env.redis.Exists(cache.DefaultKeyspace+":"+testUserID), "no cache write without a commit")
	assert.NoError(t, env.mock.ExpectationsWereMet())
}

// ==========================
// Best-Effort Side Effects
// ==========================

func TestHandler_Execute_ReadBackFailureReturnsWrittenRating(t *testing.T) {
	env := createTestEnv(t, nil)
	expectSave(env.mock)
	env.mock.ExpectQuery(`FROM solvency_questionnaires q`).WillReturnError(sql.ErrConnDone)

	output, err := env.handler.Execute(context.Background(), sampleInput())

	require.NoError(t, err)
	assert.Equal(t, *sampleRating(), output.Rating)
	assert.False(t, output.RatingSavedAt.IsZero())
	assert.NoError(t, env.mock.ExpectationsWereMet())
}

func TestHandler_Execute_CacheOutageIsNotFatal(t *testing.T) {
	env := createTestEnv(t, nil)
	env.redis.Close()
	expectSave(env.mock)
	expectReadBack(env.mock)

	output, err := env.handler.Execute(context.Background(), sampleInput())

	require.NoError(t, err)
	assert.Equal(t, 69, output.Rating.OverallRating)
	assert.NoError(t, env.mock.ExpectationsWereMet())
}

func TestHandler_Execute_IndexesSnapshot(t *testing.T) {
	client, paths := fakeElasticsearch(t, http.StatusCreated)
	env := createTestEnv(t, search.NewIndexer(client, search.DefaultIndex))
	expectSave(env.mock)
	expectReadBack(env.mock)

	_, err := env.handler.Execute(context.Background(), sampleInput())

	require.NoError(t, err)
	assert.Equal(t, []string{"PUT /solvency-ratings/_doc/" + testUserID}, *paths)
}

func TestHandler_Execute_IndexingFailureIsNotFatal(t *testing.T) {
	client, paths := fakeElasticsearch(t, http.StatusInternalServerError)
	env := createTestEnv(t, search.NewIndexer(client, search.DefaultIndex))
	expectSave(env.mock)
	expectReadBack(env.mock)

	output, err := env.handler.Execute(context.Background(), sampleInput())

	require.NoError(t, err)
	assert.Equal(t, 69, output.Rating.OverallRating)
	assert.NotEmpty(t, *paths)
}

// ==========================
// Input Parsing Tests
// ==========================

func TestHandler_ParseInput_Errors(t *testing.T) {
	tests := []struct {
		name      string
		variables string
		code      errors.ErrorCode
	}{
		{
			name:      "missing rating",
			variables: `{"userId": "u", "questionnaire": {"credit_score": 700}}`,
			code:      errors.ErrCodeInvalidQuestionnaireInput,
		},
		{
			name:      "missing questionnaire",
			variables: `{"userId": "u", "rating": {"overall_rating": 70}}`,
			code:      errors.ErrCodeInvalidQuestionnaireInput,
		},
		{
			name:      "reported bankruptcy without years",
			variables: `{"userId": "u", "questionnaire": {"has_bankruptcies": true}, "rating": {}}`,
			code:      errors.ErrCodeQuestionnaireValidationFailed,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			env := createTestEnv(t, nil)
			job := createJob(tt.variables)
			_, err := env.handler.parseInput(job)
			requireCode(t, err, tt.code)
		})
	}
}
