package plot

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/pkg/browser"

	"github.com/jonydevcode/mousetester/internal/features"
)

// ErrInsufficientData はプロットに必要なサンプル数に満たない場合のエラー
var ErrInsufficientData = errors.New("not enough samples to plot")

// 描画領域のサイズ
const (
	plotWidth  = 960
	plotHeight = 420
	marginLeft = 60
	marginTop  = 20
)

// Render はサンプル列からプロットページ（インラインSVGのHTML）を生成する
// X軸は最初のサンプルからの経過ミリ秒、Y軸は1サンプルあたりの移動量
// 横移動を青、縦移動を赤の点で描く
func Render(samples []features.MotionSample, summary features.Summary) ([]byte, error) {
	if len(samples) < 2 {
		return nil, fmt.Errorf("%w: got %d", ErrInsufficientData, len(samples))
	}

	origin := samples[0].Time
	maxMs := float64((samples[len(samples)-1].Time - origin) / time.Millisecond)
	if maxMs <= 0 {
		maxMs = 1
	}

	// 移動量の値域（ゼロ軸を必ず含める）
	var minDelta, maxDelta int32
	for _, s := range samples {
		for _, v := range []int32{s.DX, s.DY} {
			if v < minDelta {
				minDelta = v
			}
			if v > maxDelta {
				maxDelta = v
			}
		}
	}
	if minDelta == maxDelta {
		minDelta--
		maxDelta++
	}

	innerWidth := float64(plotWidth - marginLeft - 20)
	innerHeight := float64(plotHeight - marginTop - 40)

	toX := func(t time.Duration) float64 {
		ms := float64((t - origin) / time.Millisecond)
		return marginLeft + ms/maxMs*innerWidth
	}
	toY := func(v int32) float64 {
		span := float64(maxDelta - minDelta)
		return marginTop + (float64(maxDelta)-float64(v))/span*innerHeight
	}

	var svg strings.Builder
	fmt.Fprintf(&svg, `<svg xmlns="http://www.w3.org/2000/svg" width="%d" height="%d">`, plotWidth, plotHeight)
	svg.WriteString("\n")

	// 軸とゼロ線
	fmt.Fprintf(&svg, `<line x1="%d" y1="%d" x2="%d" y2="%.1f" stroke="#333"/>`,
		marginLeft, marginTop, marginLeft, marginTop+innerHeight)
	svg.WriteString("\n")
	fmt.Fprintf(&svg, `<line x1="%d" y1="%.1f" x2="%.1f" y2="%.1f" stroke="#333"/>`,
		marginLeft, marginTop+innerHeight, marginLeft+innerWidth, marginTop+innerHeight)
	svg.WriteString("\n")
	zeroY := toY(0)
	fmt.Fprintf(&svg, `<line x1="%d" y1="%.1f" x2="%.1f" y2="%.1f" stroke="#999" stroke-dasharray="4 4"/>`,
		marginLeft, zeroY, marginLeft+innerWidth, zeroY)
	svg.WriteString("\n")

	// 軸ラベル
	fmt.Fprintf(&svg, `<text x="%.1f" y="%d" font-size="12" text-anchor="middle">時間 (ms)</text>`,
		marginLeft+innerWidth/2, plotHeight-8)
	svg.WriteString("\n")
	fmt.Fprintf(&svg, `<text x="14" y="%.1f" font-size="12" text-anchor="middle" transform="rotate(-90 14 %.1f)">移動量 (counts)</text>`,
		marginTop+innerHeight/2, marginTop+innerHeight/2)
	svg.WriteString("\n")

	// 各サンプルの移動量を散布する
	for _, s := range samples {
		x := toX(s.Time)
		fmt.Fprintf(&svg, `<circle cx="%.1f" cy="%.1f" r="2" fill="blue"/>`, x, toY(s.DX))
		fmt.Fprintf(&svg, `<circle cx="%.1f" cy="%.1f" r="2" fill="red"/>`, x, toY(s.DY))
		svg.WriteString("\n")
	}
	svg.WriteString("</svg>")

	var page strings.Builder
	page.WriteString("<!DOCTYPE html>\n<html lang=\"ja\">\n<head>\n<meta charset=\"utf-8\">\n")
	page.WriteString("<title>Raw Mouse Movement</title>\n</head>\n<body>\n")
	page.WriteString("<h1>生マウス移動量の推移</h1>\n")
	page.WriteString("<p><span style=\"color:blue\">●</span> 横移動 (X) / <span style=\"color:red\">●</span> 縦移動 (Y)</p>\n")
	page.WriteString(svg.String())
	page.WriteString("\n")
	writeSummaryTable(&page, summary)
	page.WriteString("</body>\n</html>\n")

	return []byte(page.String()), nil
}

// writeSummaryTable は集計結果の表を書き出す
func writeSummaryTable(page *strings.Builder, summary features.Summary) {
	page.WriteString("<h2>集計</h2>\n<table border=\"1\" cellpadding=\"4\">\n")
	fmt.Fprintf(page, "<tr><td>サンプル数</td><td>%d</td></tr>\n", summary.SampleCount)
	fmt.Fprintf(page, "<tr><td>計測時間</td><td>%s</td></tr>\n", summary.Duration.Round(time.Millisecond))
	if summary.Interval != nil {
		fmt.Fprintf(page, "<tr><td>間隔 最小/最大/平均</td><td>%s / %s / %s</td></tr>\n",
			summary.Interval.Min, summary.Interval.Max, summary.Interval.Mean)
		fmt.Fprintf(page, "<tr><td>間隔の標準偏差</td><td>%s</td></tr>\n", summary.Interval.StdDev)
		fmt.Fprintf(page, "<tr><td>推定ポーリングレート</td><td>%.1f Hz</td></tr>\n", summary.Interval.Rate)
	} else {
		page.WriteString("<tr><td>間隔統計</td><td>サンプル不足のため算出不可</td></tr>\n")
	}
	page.WriteString("</table>\n")
}

// WriteFile はプロットページをファイルに書き出し、そのパスを返す
// pathが空の場合は一時ファイルを使用する
func WriteFile(path string, page []byte) (string, error) {
	if path == "" {
		f, err := os.CreateTemp("", "mousetester-*.html")
		if err != nil {
			return "", err
		}
		path = f.Name()
		f.Close()
	} else if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return "", err
		}
	}

	if err := os.WriteFile(path, page, 0644); err != nil {
		return "", err
	}
	return path, nil
}

// OpenInBrowser は生成したプロットをブラウザで開く
func OpenInBrowser(path string) error {
	return browser.OpenFile(path)
}
