package features

import (
	"math"
	"time"
)

// IntervalStats はサンプル間隔の統計量
// 平滑化や外れ値除去は行わない。ハードウェアの異常がそのまま見えることが目的のため
type IntervalStats struct {
	Min    time.Duration // 最小間隔
	Max    time.Duration // 最大間隔
	Mean   time.Duration // 平均間隔
	StdDev time.Duration // 間隔の標準偏差（ジッター）
	Rate   float64       // 推定ポーリングレート（1秒あたりのサンプル数 = 1/平均間隔）
}

// Summary は完了したセッションの集計結果
// サンプル列から計算される純粋なビューであり、独立した状態は持たない
type Summary struct {
	SampleCount int           // 確定したサンプル数
	Duration    time.Duration // セッションの実時間
	Interval    *IntervalStats // サンプルが2件未満の場合はnil（統計不能をゼロと偽らない）
}

// Summarize は確定済みサンプル列から統計を計算する
func Summarize(samples []MotionSample, duration time.Duration) Summary {
	summary := Summary{
		SampleCount: len(samples),
		Duration:    duration,
	}
	if len(samples) < 2 {
		return summary
	}

	// 隣接サンプル間のn-1個の間隔を集計する
	var (
		sum time.Duration
		min = time.Duration(math.MaxInt64)
		max time.Duration
	)
	deltas := make([]time.Duration, 0, len(samples)-1)
	for i := 1; i < len(samples); i++ {
		d := samples[i].Time - samples[i-1].Time
		deltas = append(deltas, d)
		sum += d
		if d < min {
			min = d
		}
		if d > max {
			max = d
		}
	}

	mean := sum / time.Duration(len(deltas))

	// 母標準偏差
	var variance float64
	for _, d := range deltas {
		diff := float64(d - mean)
		variance += diff * diff
	}
	variance /= float64(len(deltas))

	// すべてのサンプルが同一時刻という退化ケースではレートを出さない
	var rate float64
	if mean > 0 {
		rate = float64(time.Second) / float64(mean)
	}

	summary.Interval = &IntervalStats{
		Min:    min,
		Max:    max,
		Mean:   mean,
		StdDev: time.Duration(math.Sqrt(variance)),
		Rate:   rate,
	}
	return summary
}
