// Package anomaly is the always-on statistical watcher over vetloop's metric
// streams (token cost, tool-call cost, wall-clock duration). It scores new
// samples against the rolling window of recent sessions and flags outliers
// and drift. Every output is advisory: nothing here ever touches tier,
// escalation, or loop state.
package anomaly

import (
	"context"
	"fmt"
	"math"

	"github.com/kberard/vetloop/internal/storage"
	"github.com/kberard/vetloop/internal/types"
)

// Flag is the advisory verdict for one scored sample or trend check.
type Flag int

const (
	// FlagNormal means the value is within the expected band.
	FlagNormal Flag = iota
	// FlagInsufficientData means the window holds fewer than the minimum
	// samples; no judgment is made rather than a false anomaly.
	FlagInsufficientData
	// FlagAnomaly means |z| exceeded the threshold.
	FlagAnomaly
	// FlagTrendAlert means the session aggregate exceeded the moving
	// average by the trend factor.
	FlagTrendAlert
)

func (f Flag) String() string {
	switch f {
	case FlagNormal:
		return "NORMAL"
	case FlagInsufficientData:
		return "INSUFFICIENT_DATA"
	case FlagAnomaly:
		return "ANOMALY"
	case FlagTrendAlert:
		return "TREND_ALERT"
	default:
		return fmt.Sprintf("UNKNOWN(%d)", int(f))
	}
}

// Defaults for the monitor's thresholds.
const (
	DefaultWindowSessions = 5
	DefaultZThreshold     = 2.0
	DefaultTrendFactor    = 1.5
	// MinWindowSamples is the minimum window size before z-scoring is
	// considered reliable.
	MinWindowSamples = 5
)

// Score is the result of scoring one sample.
type Score struct {
	Z    float64
	Flag Flag
	// Mean and StdDev describe the window the sample was scored against.
	Mean   float64
	StdDev float64
	Window int
}

// Config holds monitor thresholds.
type Config struct {
	// WindowSessions is the number of recent sessions aggregated into the
	// comparison window. Default: 5.
	WindowSessions int
	// ZThreshold flags a sample as anomalous when |z| exceeds it.
	ZThreshold float64
	// TrendFactor flags a session aggregate exceeding factor x the moving
	// average of prior sessions.
	TrendFactor float64
}

// DefaultConfig returns the default thresholds.
func DefaultConfig() Config {
	return Config{
		WindowSessions: DefaultWindowSessions,
		ZThreshold:     DefaultZThreshold,
		TrendFactor:    DefaultTrendFactor,
	}
}

// Monitor scores metric samples against the persisted rolling window. It is
// fully decoupled from the verification loop: it appends samples and
// computes advisory scores, nothing more.
type Monitor struct {
	store *storage.Store
	cfg   Config
}

// NewMonitor creates a monitor over the given store.
func NewMonitor(store *storage.Store, cfg Config) *Monitor {
	if cfg.WindowSessions <= 0 {
		cfg.WindowSessions = DefaultWindowSessions
	}
	if cfg.ZThreshold <= 0 {
		cfg.ZThreshold = DefaultZThreshold
	}
	if cfg.TrendFactor <= 0 {
		cfg.TrendFactor = DefaultTrendFactor
	}
	return &Monitor{store: store, cfg: cfg}
}

// Observe records the sample and scores it against the window of the most
// recent sessions (excluding the sample's own session, which the aggregate
// query would otherwise fold in).
func (m *Monitor) Observe(ctx context.Context, sample types.MetricSample) (Score, error) {
	window, err := m.store.SessionAggregates(ctx, sample.Metric, m.cfg.WindowSessions)
	if err != nil {
		return Score{Flag: FlagInsufficientData}, fmt.Errorf("loading window for %s: %w", sample.Metric, err)
	}
	score := m.scoreAgainst(window, sample.Value)

	if err := m.store.AppendSample(ctx, sample); err != nil {
		return score, fmt.Errorf("recording sample: %w", err)
	}
	return score, nil
}

// ScoreValue scores a value against the current window without recording it.
func (m *Monitor) ScoreValue(ctx context.Context, metric string, value float64) (Score, error) {
	window, err := m.store.SessionAggregates(ctx, metric, m.cfg.WindowSessions)
	if err != nil {
		return Score{Flag: FlagInsufficientData}, err
	}
	return m.scoreAgainst(window, value), nil
}

// scoreAgainst computes z = (value - mean) / stddev over the window. Fewer
// than MinWindowSamples window values yields INSUFFICIENT_DATA, never a
// false anomaly. A zero-variance window scores a deviating value as an
// infinite z (always anomalous) and an equal value as zero.
func (m *Monitor) scoreAgainst(window []float64, value float64) Score {
	score := Score{Window: len(window)}
	if len(window) < MinWindowSamples {
		score.Flag = FlagInsufficientData
		return score
	}

	mean, stddev := meanStdDev(window)
	score.Mean = mean
	score.StdDev = stddev

	switch {
	case stddev == 0 && value == mean:
		score.Z = 0
	case stddev == 0:
		score.Z = math.Inf(sign(value - mean))
	default:
		score.Z = (value - mean) / stddev
	}

	if math.Abs(score.Z) > m.cfg.ZThreshold {
		score.Flag = FlagAnomaly
	} else {
		score.Flag = FlagNormal
	}
	return score
}

// TrendCheck compares a session-level aggregate to the moving average of the
// window. The aggregate exceeding TrendFactor x the average raises
// TREND_ALERT; an empty window yields INSUFFICIENT_DATA.
func (m *Monitor) TrendCheck(ctx context.Context, metric string, sessionAggregate float64) (Flag, float64, error) {
	window, err := m.store.SessionAggregates(ctx, metric, m.cfg.WindowSessions)
	if err != nil {
		return FlagInsufficientData, 0, err
	}
	if len(window) == 0 {
		return FlagInsufficientData, 0, nil
	}

	var sum float64
	for _, v := range window {
		sum += v
	}
	avg := sum / float64(len(window))
	if avg > 0 && sessionAggregate > m.cfg.TrendFactor*avg {
		return FlagTrendAlert, avg, nil
	}
	return FlagNormal, avg, nil
}

// Prune enforces the bounded window for a metric, dropping samples beyond
// the retained sessions.
func (m *Monitor) Prune(ctx context.Context, metric string) (int64, error) {
	return m.store.PruneSamples(ctx, metric, m.cfg.WindowSessions)
}

func meanStdDev(values []float64) (float64, float64) {
	var sum float64
	for _, v := range values {
		sum += v
	}
	mean := sum / float64(len(values))

	var sq float64
	for _, v := range values {
		d := v - mean
		sq += d * d
	}
	return mean, math.Sqrt(sq / float64(len(values)))
}

func sign(v float64) int {
	if v < 0 {
		return -1
	}
	return 1
}
