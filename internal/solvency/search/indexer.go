// Package search maintains a per-user rating snapshot in Elasticsearch.
package search

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"time"

	"solvency-workers/internal/solvency"

	"github.com/elastic/go-elasticsearch/v8"
	"github.com/elastic/go-elasticsearch/v8/esapi"
)

const DefaultIndex = "solvency-ratings"

var ErrIndexingFailed = errors.New("INDEXING_FAILED")

// RatingDocument is the indexed snapshot. The document id is the user id.
type RatingDocument struct {
	UserID              string    `json:"userId"`
	OverallRating       int       `json:"overallRating"`
	CreditScore         int       `json:"creditScore"`
	EmploymentScore     int       `json:"employmentScore"`
	IncomeScore         int       `json:"incomeScore"`
	DebtRatioScore      int       `json:"debtRatioScore"`
	PaymentHistoryScore int       `json:"paymentHistoryScore"`
	EmploymentStatus    string    `json:"employmentStatus"`
	HomeOwnership       string    `json:"homeOwnership"`
	EducationLevel      string    `json:"educationLevel"`
	UpdatedAt           time.Time `json:"updatedAt"`
}

func NewRatingDocument(userID string, q solvency.Questionnaire, r solvency.Rating, updatedAt time.Time) RatingDocument {
	return RatingDocument{
		UserID:              userID,
		OverallRating:       r.OverallRating,
		CreditScore:         r.CreditScore,
		EmploymentScore:     r.EmploymentScore,
		IncomeScore:         r.IncomeScore,
		DebtRatioScore:      r.DebtRatioScore,
		PaymentHistoryScore: r.PaymentHistoryScore,
		EmploymentStatus:    string(q.EmploymentStatus),
		HomeOwnership:       string(q.HomeOwnership),
		EducationLevel:      string(q.EducationLevel),
		UpdatedAt:           updatedAt.UTC(),
	}
}

var indexMapping = map[string]interface{}{
	"mappings": map[string]interface{}{
		"properties": map[string]interface{}{
			"userId":              map[string]string{"type": "keyword"},
			"overallRating":       map[string]string{"type": "integer"},
			"creditScore":         map[string]string{"type": "integer"},
			"employmentScore":     map[string]string{"type": "integer"},
			"incomeScore":         map[string]string{"type": "integer"},
			"debtRatioScore":      map[string]string{"type": "integer"},
			"paymentHistoryScore": map[string]string{"type": "integer"},
			"employmentStatus":    map[string]string{"type": "keyword"},
			"homeOwnership":       map[string]string{"type": "keyword"},
			"educationLevel":      map[string]string{"type": "keyword"},
			"updatedAt":           map[string]string{"type": "date"},
		},
	},
}

type Indexer struct {
	client *elasticsearch.Client
	index  string
}

func NewIndexer(client *elasticsearch.Client, index string) *Indexer {
	if index == "" {
		index = DefaultIndex
	}
	return &Indexer{client: client, index: index}
}

func (i *Indexer) Index() string {
	return i.index
}

// EnsureIndex creates the index with its mapping when it does not exist yet.
func (i *Indexer) EnsureIndex(ctx context.Context) error {
	res, err := esapi.IndicesExistsRequest{Index: []string{i.index}}.Do(ctx, i.client)
	if err != nil {
		return fmt.Errorf("%w: exists %s: %v", ErrIndexingFailed, i.index, err)
	}
	res.Body.Close()

	if res.StatusCode == http.StatusOK {
		return nil
	}
	if res.StatusCode != http.StatusNotFound {
		return fmt.Errorf("%w: exists %s: %s", ErrIndexingFailed, i.index, res.Status())
	}

	body, _ := json.Marshal(indexMapping)
	res, err = esapi.IndicesCreateRequest{
		Index: i.index,
		Body:  bytes.NewReader(body),
	}.Do(ctx, i.client)
	if err != nil {
		return fmt.Errorf("%w: create %s: %v", ErrIndexingFailed, i.index, err)
	}
	defer res.Body.Close()

	if res.IsError() {
		return fmt.Errorf("%w: create %s: %s", ErrIndexingFailed, i.index, res.String())
	}
	return nil
}

// Put writes the snapshot, replacing any earlier one for the same user.
func (i *Indexer) Put(ctx context.Context, doc RatingDocument) error {
	body, err := json.Marshal(doc)
	if err != nil {
		return fmt.Errorf("%w: marshal: %v", ErrIndexingFailed, err)
	}

	res, err := esapi.IndexRequest{
		Index:      i.index,
		DocumentID: doc.UserID,
		Body:       bytes.NewReader(body),
	}.Do(ctx, i.client)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrIndexingFailed, err)
	}
	defer res.Body.Close()

	if res.IsError() {
		return fmt.Errorf("%w: %s", ErrIndexingFailed, res.String())
	}
	return nil
}

// SearchByMinimumRating returns snapshots with overallRating >= minRating,
// best first.
func (i *Indexer) SearchByMinimumRating(ctx context.Context, minRating, size int) ([]RatingDocument, error) {
	if size < 1 || size > 100 {
		size = 20
	}

	query := map[string]interface{}{
		"query": map[string]interface{}{
			"bool": map[string]interface{}{
				"filter": []interface{}{
					map[string]interface{}{
						"range": map[string]interface{}{
							"overallRating": map[string]interface{}{"gte": minRating},
						},
					},
				},
			},
		},
		"sort": []interface{}{
			map[string]interface{}{"overallRating": map[string]string{"order": "desc"}},
		},
	}
	body, _ := json.Marshal(query)

	res, err := esapi.SearchRequest{
		Index: []string{i.index},
		Body:  bytes.NewReader(body),
		Size:  &size,
	}.Do(ctx, i.client)
	if err != nil {
		return nil, fmt.Errorf("search %s: %w", i.index, err)
	}
	defer res.Body.Close()

	if res.IsError() {
		return nil, fmt.Errorf("search %s: %s", i.index, res.String())
	}

	var r struct {
		Hits struct {
			Hits []struct {
				Source RatingDocument `json:"_source"`
			} `json:"hits"`
		} `json:"hits"`
	}
	if err := json.NewDecoder(res.Body).Decode(&r); err != nil {
		return nil, fmt.Errorf("decode search response: %w", err)
	}

	docs := make([]RatingDocument, 0, len(r.Hits.Hits))
	for _, h := range r.Hits.Hits {
		docs = append(docs, h.Source)
	}
	return docs, nil
}
