package merge

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/google/go-github/v43/github"
	"github.com/itchyny/gojq"
)

// FilterQuery is a jq query that is evaluated against the JSON representation
// of a GitHub pull request. It must return exactly one boolean value.
type FilterQuery struct {
	query *gojq.Query
}

func ParseFilterQuery(jqQuery string) (*FilterQuery, error) {
	query, err := gojq.Parse(jqQuery)
	if err != nil {
		return nil, err
	}

	return &FilterQuery{query: query}, nil
}

func (q *FilterQuery) String() string {
	return q.query.String()
}

func goJQIterToSlice(iter gojq.Iter) ([]any, []error) {
	var result []any
	var errors []error

	for {
		res, ok := iter.Next()
		if !ok {
			return result, errors
		}

		if err, isErr := res.(error); isErr {
			errors = append(errors, err)
			continue
		}

		result = append(result, res)
	}
}

func errString(errs []error) string {
	var result strings.Builder

	for i, err := range errs {
		if i > 0 {
			result.WriteString("; ")
		}

		result.WriteString(fmt.Sprintf("error %d: %s", i, err))
	}

	return result.String()
}

// Match returns true if the query evaluates to true for pr.
func (q *FilterQuery) Match(ctx context.Context, pr *github.PullRequest) (bool, error) {
	var prUn any

	b, err := json.Marshal(pr)
	if err != nil {
		return false, fmt.Errorf("marshaling pull request to json failed: %w", err)
	}

	// gojq only operates on the types returned by json.Unmarshal
	if err := json.Unmarshal(b, &prUn); err != nil {
		return false, fmt.Errorf("unmarshaling json failed: %w", err)
	}

	result, errs := goJQIterToSlice(q.query.RunWithContext(ctx, prUn))
	if len(errs) != 0 {
		return false, fmt.Errorf("json query returned errors, query: %q, errors: %s", q.query.String(), errString(errs))
	}

	if len(result) != 1 {
		return false, fmt.Errorf("json query returned %d results, expected 1, query: %q", len(result), q.query.String())
	}

	val, ok := result[0].(bool)
	if !ok {
		return false, fmt.Errorf(
			"json query returned non-bool result: %+v (%T), query: %q",
			result[0], result[0], q.query.String(),
		)
	}

	return val, nil
}
