package githubclt

import (
	"context"
	"time"

	"github.com/shurcooL/githubv4"
	"go.uber.org/zap"
)

// RateLimit is the API quota of the client.
type RateLimit struct {
	Limit     int
	Remaining int
	ResetAt   time.Time
	// API is the API the quota applies to, "graphql" or "rest".
	API string
}

func (r *RateLimit) LogFields() []zap.Field {
	return []zap.Field{
		zap.String("github_api", r.API),
		zap.Int("github_api_rate_limit", r.Limit),
		zap.Int("github_api_rate_limit_remaining", r.Remaining),
		zap.Time("github_api_rate_limit_reset_time", r.ResetAt),
	}
}

// RateLimit returns the remaining API quota.
// For authenticated clients the GraphQL API is queried, anonymous clients can
// not access it and the quota of the REST core API is returned instead.
func (clt *Client) RateLimit(ctx context.Context) (*RateLimit, error) {
	if clt.authenticated {
		return clt.graphQLRateLimit(ctx)
	}

	limits, _, err := clt.restClt.RateLimits(ctx)
	if err != nil {
		return nil, clt.wrapRetryableErrors(err)
	}

	core := limits.GetCore()

	return &RateLimit{
		Limit:     core.Limit,
		Remaining: core.Remaining,
		ResetAt:   core.Reset.Time,
		API:       "rest",
	}, nil
}

func (clt *Client) graphQLRateLimit(ctx context.Context) (*RateLimit, error) {
	var q struct {
		RateLimit struct {
			Limit     githubv4.Int
			Remaining githubv4.Int
			ResetAt   githubv4.DateTime
		}
	}

	if err := clt.graphQLClt.Query(ctx, &q, nil); err != nil {
		return nil, clt.wrapGraphQLRetryableErrors(err)
	}

	return &RateLimit{
		Limit:     int(q.RateLimit.Limit),
		Remaining: int(q.RateLimit.Remaining),
		ResetAt:   q.RateLimit.ResetAt.Time,
		API:       "graphql",
	}, nil
}
