package core

import (
	"context"
	"maps"
)

type discardMetrics struct{}

func (discardMetrics) IncCounter(context.Context, string, int64, map[string]string) {}

func (discardMetrics) ObserveHistogram(context.Context, string, float64, map[string]string) {}

// DiscardMetrics is the recorder used when none is configured.
var DiscardMetrics MetricsRecorder = discardMetrics{}

// copyTags hands recorders their own map so they may keep or mutate it.
func copyTags(tags map[string]string) map[string]string {
	if copied := maps.Clone(tags); copied != nil {
		return copied
	}
	return map[string]string{}
}
