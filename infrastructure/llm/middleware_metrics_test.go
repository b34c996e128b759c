package llm

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// recordingCollector captures metric calls for assertions.
type recordingCollector struct {
	mu         sync.Mutex
	counters   map[string]float64
	histograms map[string]int
	labels     map[string]map[string]string
}

func newRecordingCollector() *recordingCollector {
	return &recordingCollector{
		counters:   make(map[string]float64),
		histograms: make(map[string]int),
		labels:     make(map[string]map[string]string),
	}
}

func (r *recordingCollector) RecordLatency(string, time.Duration, map[string]string) {}

func (r *recordingCollector) RecordCounter(metric string, value float64, labels map[string]string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.counters[metric] += value
	r.labels[metric] = cloneLabels(labels)
}

func (r *recordingCollector) RecordGauge(string, float64, map[string]string) {}

func (r *recordingCollector) RecordHistogram(metric string, _ float64, labels map[string]string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.histograms[metric]++
	r.labels[metric] = cloneLabels(labels)
}

func cloneLabels(labels map[string]string) map[string]string {
	out := make(map[string]string, len(labels))
	for k, v := range labels {
		out[k] = v
	}
	return out
}

func TestMetricsMiddleware_RecordsSuccessfulRequest(t *testing.T) {
	mock := NewMockCoreLLM()
	mock.Model = "gpt-4o"
	collector := newRecordingCollector()

	wrapped := MetricsMiddleware(collector)(mock)

	_, err := wrapped.DoRequest(context.Background(), "prompt", nil)

	require.NoError(t, err)
	assert.Equal(t, float64(1), collector.counters["llm_requests_total"])
	assert.Equal(t, 1, collector.histograms["llm_latency_seconds"])
	// TokensIn (10) + TokensOut (20) accumulate under the same counter.
	assert.Equal(t, float64(30), collector.counters["llm_tokens_total"])
	assert.Equal(t, "openai", collector.labels["llm_latency_seconds"]["provider"])
	assert.Equal(t, "generation", collector.labels["llm_latency_seconds"]["phase"])
}

func TestMetricsMiddleware_LabelsEvaluationRequests(t *testing.T) {
	mock := NewMockCoreLLM()
	collector := newRecordingCollector()

	wrapped := MetricsMiddleware(collector)(mock)

	_, err := wrapped.DoRequest(context.Background(), "prompt", map[string]any{"logprobs": true})

	require.NoError(t, err)
	assert.Equal(t, "evaluation", collector.labels["llm_latency_seconds"]["phase"])
}

func TestMetricsMiddleware_RecordsFailureStatus(t *testing.T) {
	mock := NewMockCoreLLM()
	mock.Error = errors.New("provider down")
	collector := newRecordingCollector()

	wrapped := MetricsMiddleware(collector)(mock)

	_, err := wrapped.DoRequest(context.Background(), "prompt", nil)

	require.Error(t, err)
	assert.Equal(t, "error", collector.labels["llm_requests_total"]["status"])
	assert.Zero(t, collector.counters["llm_tokens_total"], "no token metrics on failure")
}

func TestMetricsMiddleware_RecordsCircuitOpenStatus(t *testing.T) {
	mock := NewMockCoreLLM()
	mock.Error = ErrCircuitOpen
	collector := newRecordingCollector()

	wrapped := MetricsMiddleware(collector)(mock)

	_, err := wrapped.DoRequest(context.Background(), "prompt", nil)

	require.Error(t, err)
	assert.Equal(t, "circuit_open", collector.labels["llm_requests_total"]["status"])
}
