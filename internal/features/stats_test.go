package features_test

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jonydevcode/mousetester/internal/features"
)

func samplesAt(times ...time.Duration) []features.MotionSample {
	samples := make([]features.MotionSample, 0, len(times))
	for _, t := range times {
		samples = append(samples, features.MotionSample{DX: 1, Time: t})
	}
	return samples
}

// サンプルが2件未満の場合、間隔統計は「算出不可」であってゼロではない
func TestSummarizeInsufficientData(t *testing.T) {
	summary := features.Summarize(nil, time.Second)
	assert.Equal(t, 0, summary.SampleCount)
	assert.Equal(t, time.Second, summary.Duration)
	assert.Nil(t, summary.Interval)

	summary = features.Summarize(samplesAt(5*time.Millisecond), time.Second)
	assert.Equal(t, 1, summary.SampleCount)
	assert.Nil(t, summary.Interval)
}

// 等間隔のサンプル列では最小・最大・平均が一致し、標準偏差はゼロになる
func TestSummarizeUniformIntervals(t *testing.T) {
	samples := samplesAt(0, 8*time.Millisecond, 16*time.Millisecond, 24*time.Millisecond)
	summary := features.Summarize(samples, 24*time.Millisecond)

	require.NotNil(t, summary.Interval)
	assert.Equal(t, 4, summary.SampleCount)
	assert.Equal(t, 8*time.Millisecond, summary.Interval.Min)
	assert.Equal(t, 8*time.Millisecond, summary.Interval.Max)
	assert.Equal(t, 8*time.Millisecond, summary.Interval.Mean)
	assert.Equal(t, time.Duration(0), summary.Interval.StdDev)
	assert.InDelta(t, 125.0, summary.Interval.Rate, 0.01)
}

// 不均一な間隔のジッターは母標準偏差として報告する
func TestSummarizeJitter(t *testing.T) {
	// 間隔は 5ms, 10ms, 15ms
	samples := samplesAt(0, 5*time.Millisecond, 15*time.Millisecond, 30*time.Millisecond)
	summary := features.Summarize(samples, 30*time.Millisecond)

	require.NotNil(t, summary.Interval)
	assert.Equal(t, 5*time.Millisecond, summary.Interval.Min)
	assert.Equal(t, 15*time.Millisecond, summary.Interval.Max)
	assert.Equal(t, 10*time.Millisecond, summary.Interval.Mean)
	// σ = sqrt((25+0+25)/3) ms ≈ 4.0825 ms
	assert.InDelta(t, 4.0825, float64(summary.Interval.StdDev)/float64(time.Millisecond), 0.001)
	assert.InDelta(t, 100.0, summary.Interval.Rate, 0.01)
}

// 全サンプルが同一時刻という退化ケースでレートを偽装しない
func TestSummarizeIdenticalTimestamps(t *testing.T) {
	samples := samplesAt(time.Millisecond, time.Millisecond, time.Millisecond)
	summary := features.Summarize(samples, time.Second)

	require.NotNil(t, summary.Interval)
	assert.Equal(t, time.Duration(0), summary.Interval.Mean)
	assert.Equal(t, 0.0, summary.Interval.Rate)
}
