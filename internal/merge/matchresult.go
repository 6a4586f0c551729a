package merge

import "fmt"

// MatchResult represents the result of evaluating if a pull request is a merge
// candidate.
type MatchResult uint8

const (
	MatchResultUndefined MatchResult = iota
	BaseBranchMismatch
	NotIncluded
	Excluded
	FilterQueryMismatch
	Match
)

var matchResultString = [...]string{
	MatchResultUndefined: "undefined",
	BaseBranchMismatch:   "base branch mismatch",
	NotIncluded:          "author is not a public organization member and no include label is set",
	Excluded:             "exclude label is set",
	FilterQueryMismatch:  "filter query mismatch",
	Match:                "merge candidate",
}

func (m MatchResult) String() string {
	// it can not be <0 because it's type is uint8
	if int(m) > len(matchResultString)-1 {
		return fmt.Sprintf("unsupported MatchResult value: %d", m)
	}

	return matchResultString[m]
}

var matchResultMetricLabel = [...]string{
	MatchResultUndefined: "undefined",
	BaseBranchMismatch:   "base_branch_mismatch",
	NotIncluded:          "not_included",
	Excluded:             "excluded",
	FilterQueryMismatch:  "filter_query_mismatch",
	Match:                "match",
}

func (m MatchResult) metricLabel() string {
	if int(m) > len(matchResultMetricLabel)-1 {
		return "unsupported"
	}

	return matchResultMetricLabel[m]
}
