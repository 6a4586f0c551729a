package merge

import (
	"fmt"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const metricNamespace = "snoopycrimecop"

const (
	repositoryLabel = "repository"
	baseBranchLabel = "base_branch"
	reasonLabel     = "reason"
)

type metricCollector struct {
	merged      *prometheus.CounterVec
	mergeFailed *prometheus.CounterVec
	skipped     *prometheus.CounterVec
}

var metrics = newMetricCollector()

func newMetricCollector() *metricCollector {
	return &metricCollector{
		merged: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: metricNamespace,
				Name:      "merged_pull_requests_total",
				Help:      "count of merged pull requests",
			},
			[]string{repositoryLabel, baseBranchLabel},
		),
		mergeFailed: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: metricNamespace,
				Name:      "failed_merges_total",
				Help:      "count of pull requests that could not be merged",
			},
			[]string{repositoryLabel, baseBranchLabel},
		),
		skipped: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: metricNamespace,
				Name:      "skipped_pull_requests_total",
				Help:      "count of open pull requests that are not merge candidates",
			},
			[]string{repositoryLabel, baseBranchLabel, reasonLabel},
		),
	}
}

func repositoryLabels(mctx *MergeContext) prometheus.Labels {
	return prometheus.Labels{
		repositoryLabel: fmt.Sprintf("%s/%s", mctx.Organization, mctx.Repository),
		baseBranchLabel: mctx.Base,
	}
}

func (m *metricCollector) MergedInc(mctx *MergeContext) {
	m.merged.With(repositoryLabels(mctx)).Inc()
}

func (m *metricCollector) MergeFailedInc(mctx *MergeContext) {
	m.mergeFailed.With(repositoryLabels(mctx)).Inc()
}

func (m *metricCollector) SkippedInc(mctx *MergeContext, reason MatchResult) {
	labels := repositoryLabels(mctx)
	labels[reasonLabel] = reason.metricLabel()

	m.skipped.With(labels).Inc()
}
