// internal/workers/solvency/fetch-assessment/handler_test.go
package fetchassessment

import (
	"context"
	"database/sql"
	"encoding/json"
	stderrors "errors"
	"testing"
	"time"

	"solvency-workers/internal/common/errors"
	"solvency-workers/internal/common/logger"
	"solvency-workers/internal/solvency"
	"solvency-workers/internal/solvency/cache"
	"solvency-workers/internal/solvency/repository"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/alicebob/miniredis/v2"
	"github.com/camunda/zeebe/clients/go/v8/pkg/entities"
	"github.com/camunda/zeebe/clients/go/v8/pkg/pb"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// ==========================
// Test Helper Functions
// ==========================

const testUserID = "user-42"

var (
	storedAt = time.Date(2025, 3, 14, 9, 30, 0, 0, time.UTC)

	storedRating = solvency.Rating{
		CreditScore:         720,
		EmploymentScore:     50,
		IncomeScore:         63,
		DebtRatioScore:      92,
		PaymentHistoryScore: 65,
		OverallRating:       69,
	}

	ratingColumns = []string{
		"credit_score", "employment_score", "income_score",
		"debt_ratio_score", "payment_history_score", "overall_rating",
	}

	assessmentColumns = []string{
		"annual_income", "monthly_expenses", "existing_loans",
		"employment_status", "employment_length", "industry", "job_title", "credit_score",
		"has_bankruptcies", "bankruptcy_years", "has_defaults", "default_years",
		"home_ownership", "education_level",
		"r_credit_score", "employment_score", "income_score",
		"debt_ratio_score", "payment_history_score", "overall_rating",
		"updated_at",
	}
)

type testEnv struct {
	handler *Handler
	mock    sqlmock.Sqlmock
	redis   *miniredis.Miniredis
	cache   *cache.RatingCache
}

func createTestEnv(t *testing.T) *testEnv {
	t.Helper()

	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })

	mr := miniredis.RunT(t)
	redisClient := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { redisClient.Close() })

	ratingCache := cache.New(redisClient, cache.DefaultKeyspace, cache.DefaultTTL)
	handler := NewHandler(&Config{Timeout: 5 * time.Second}, Dependencies{
		Repository: repository.New(db),
		Cache:      ratingCache,
	}, logger.NewTestLogger(t))

	return &testEnv{handler: handler, mock: mock, redis: mr, cache: ratingCache}
}

func (e *testEnv) expectRatingRow() {
	e.mock.ExpectQuery(`FROM user_ratings`).
		WithArgs(testUserID).
		WillReturnRows(sqlmock.NewRows(ratingColumns).AddRow(720, 50, 63, 92, 65, 69))
}

// ==========================
// Core Functionality Tests
// ==========================

func TestHandler_Execute_CacheHit(t *testing.T) {
	env := createTestEnv(t)
	require.NoError(t, env.cache.Set(context.Background(), testUserID, storedRating))

	output, err := env.handler.Execute(context.Background(), &Input{UserID: testUserID})

	require.NoError(t, err)
	assert.True(t, output.HasRating)
	assert.Equal(t, SourceCache, output.RatingSource)
	assert.Equal(t, storedRating, *output.Rating)
	assert.NoError(t, env.mock.ExpectationsWereMet(), "database not queried on a hit")
}

func TestHandler_Execute_CacheMissReadsDatabaseAndFillsCache(t *testing.T) {
	env := createTestEnv(t)
	env.expectRatingRow()

	output, err := env.handler.Execute(context.Background(), &Input{UserID: testUserID})

	require.NoError(t, err)
	assert.True(t, output.HasRating)
	assert.Equal(t, SourceDatabase, output.RatingSource)
	assert.Equal(t, storedRating, *output.Rating)
	assert.Nil(t, output.Questionnaire)
	assert.True(t, env.redis.Exists(cache.DefaultKeyspace+":"+testUserID))
	assert.NoError(t, env.mock.ExpectationsWereMet())
}

func TestHandler_Execute_NoRating(t *testing.T) {
	env := createTestEnv(t)
	env.mock.ExpectQuery(`FROM user_ratings`).
		WithArgs(testUserID).
		WillReturnRows(sqlmock.NewRows(ratingColumns))

	output, err := env.handler.Execute(context.Background(), &Input{UserID: testUserID})

	require.NoError(t, err)
	assert.False(t, output.HasRating)
	assert.Nil(t, output.Rating)
	assert.Empty(t, output.RatingSource)

	data, err := json.Marshal(output)
	require.NoError(t, err)
	assert.JSONEq(t, `{"hasRating": false}`, string(data))
}

func TestHandler_Execute_CacheOutageFallsBackToDatabase(t *testing.T) {
	env := createTestEnv(t)
	env.redis.Close()
	env.expectRatingRow()

	output, err := env.handler.Execute(context.Background(), &Input{UserID: testUserID})

	require.NoError(t, err)
	assert.Equal(t, SourceDatabase, output.RatingSource)
	assert.Equal(t, 69, output.Rating.OverallRating)
	assert.NoError(t, env.mock.ExpectationsWereMet())
}

func TestHandler_Execute_DatabaseErrorIsRetryable(t *testing.T) {
	env := createTestEnv(t)
	env.mock.ExpectQuery(`FROM user_ratings`).WillReturnError(sql.ErrConnDone)

	output, err := env.handler.Execute(context.Background(), &Input{UserID: testUserID})

	assert.Nil(t, output)
	var stdErr *errors.StandardError
	require.True(t, stderrors.As(err, &stdErr))
	assert.Equal(t, errors.ErrCodeQueryExecutionFailed, stdErr.Code)
	assert.True(t, stdErr.Retryable)
	assert.Equal(t, testUserID, stdErr.Metadata["userId"])
}

func TestHandler_Execute_IncludeQuestionnaire(t *testing.T) {
	env := createTestEnv(t)
	// a cached rating must not short-circuit the full read
	require.NoError(t, env.cache.Set(context.Background(), testUserID, solvency.Rating{OverallRating: 1}))

	rows := sqlmock.NewRows(assessmentColumns).AddRow(
		"60000", "2000", "5000",
		"employed", 5, "Finance", "Analyst", 720,
		false, nil, true, 3,
		"rent", "bachelors",
		720, 50, 63, 92, 65, 69,
		storedAt,
	)
	env.mock.ExpectQuery(`FROM solvency_questionnaires q`).WithArgs(testUserID).WillReturnRows(rows)

	output, err := env.handler.Execute(context.Background(), &Input{UserID: testUserID, IncludeQuestionnaire: true})

	require.NoError(t, err)
	assert.True(t, output.HasRating)
	assert.Equal(t, SourceDatabase, output.RatingSource)
	assert.Equal(t, storedRating, *output.Rating)
	require.NotNil(t, output.Questionnaire)
	assert.Equal(t, "Finance", output.Questionnaire.Industry)
	assert.Equal(t, storedAt, *output.RatingUpdatedAt)

	cached, found, err := env.cache.Get(context.Background(), testUserID)
	require.NoError(t, err)
	assert.True(t, found)
	assert.Equal(t, 1, cached.OverallRating, "a database read never replaces a cached rating")
	assert.NoError(t, env.mock.ExpectationsWereMet())
}

func TestHandler_FillCache_DoesNotOverwriteNewerSave(t *testing.T) {
	env := createTestEnv(t)
	ctx := context.Background()

	// the save path wrote a newer rating after this fetch read the database
	newer := storedRating
	newer.OverallRating = 81
	require.NoError(t, env.cache.Set(ctx, testUserID, newer))

	env.handler.fillCache(ctx, testUserID, storedRating, logger.NewTestLogger(t))

	cached, found, err := env.cache.Get(ctx, testUserID)
	require.NoError(t, err)
	assert.True(t, found)
	assert.Equal(t, newer, *cached)
	assert.Equal(t, cache.DefaultTTL, env.redis.TTL(cache.DefaultKeyspace+":"+testUserID))
}

func TestHandler_Execute_IncludeQuestionnaireNotFound(t *testing.T) {
	env := createTestEnv(t)
	env.mock.ExpectQuery(`FROM solvency_questionnaires q`).
		WithArgs(testUserID).
		WillReturnRows(sqlmock.NewRows(assessmentColumns))

	output, err := env.handler.Execute(context.Background(), &Input{UserID: testUserID, IncludeQuestionnaire: true})

	require.NoError(t, err)
	assert.False(t, output.HasRating)
	assert.Nil(t, output.Questionnaire)
}

// ==========================
// Input Parsing Tests
// ==========================

func TestHandler_ParseInput(t *testing.T) {
	env := createTestEnv(t)
	job := entities.Job{ActivatedJob: &pb.ActivatedJob{
		Key:       3,
		Type:      TaskType,
		Variables: `{"userId": "user-42", "includeQuestionnaire": true}`,
	}}

	input, err := env.handler.parseInput(job)

	require.NoError(t, err)
	assert.Equal(t, "user-42", input.UserID)
	assert.True(t, input.IncludeQuestionnaire)

	job.Variables = `{"includeQuestionnaire": true}`
	_, err = env.handler.parseInput(job)
	assert.Error(t, err)
}
