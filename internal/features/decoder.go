package features

import (
	"time"

	"github.com/jonydevcode/mousetester/internal/event"
)

// MotionSample は同期マーカー1回分（物理ポーリング1回分）の移動量とボタン状態を表す
// 確定後は不変
type MotionSample struct {
	DX      int32         // X軸の相対移動量
	DY      int32         // Y軸の相対移動量
	Buttons uint16        // ボタン状態のビットセット（bit0=左, bit1=右, ...）
	Time    time.Duration // 同期マーカーのタイムスタンプ
}

// SampleDecoder は生イベント列をMotionSampleへ変換する
// 同期マーカーが来るまでの移動量とボタン状態を保留状態として明示的に保持する
// 物理デバイスは1回の移動でX・Yを別レコードとして送るため、
// ポーリングレートは個々のレコードではなく同期マーカー境界で数える必要がある
type SampleDecoder struct {
	pendingDX   int32
	pendingDY   int32
	buttons     uint16 // 現在のボタン状態
	lastButtons uint16 // 最後に確定したサンプル時点のボタン状態
	lastTime    time.Duration
	hasLast     bool
}

// NewSampleDecoder は新しいデコーダーを作成する
func NewSampleDecoder() *SampleDecoder {
	return &SampleDecoder{}
}

// Feed は生イベントを1件処理し、サンプルが確定した場合にそれを返す
// 移動もボタン変化もないバッチはサンプルにしない（空ポーリングが間隔統計を汚すため）
// 未知のタイプ・コードは無視する
func (d *SampleDecoder) Feed(ev event.Event) (MotionSample, bool) {
	switch ev.Type {
	case event.Rel:
		switch ev.Code {
		case event.RelX:
			d.pendingDX += ev.Value
		case event.RelY:
			d.pendingDY += ev.Value
		}

	case event.Key:
		bit, ok := buttonBit(ev.Code)
		if !ok {
			break
		}
		// オートリピート(値2)は状態変化ではないので無視する
		switch ev.Value {
		case event.BtnPressed:
			d.buttons |= bit
		case event.BtnReleased:
			d.buttons &^= bit
		}

	case event.Syn:
		if ev.Code != event.SynReport {
			break
		}
		if d.pendingDX == 0 && d.pendingDY == 0 && d.buttons == d.lastButtons {
			return MotionSample{}, false
		}

		ts := ev.Timestamp()
		// タイムスタンプの逆行を防ぐ（セッション内で非減少を保証する）
		if d.hasLast && ts < d.lastTime {
			ts = d.lastTime
		}

		sample := MotionSample{
			DX:      d.pendingDX,
			DY:      d.pendingDY,
			Buttons: d.buttons,
			Time:    ts,
		}
		d.pendingDX, d.pendingDY = 0, 0
		d.lastButtons = d.buttons
		d.lastTime = ts
		d.hasLast = true
		return sample, true
	}

	return MotionSample{}, false
}

// Reset は同期マーカー未到達の保留状態を破棄する
// キャンセル時点の読みかけデータはサンプルとして確定させない
func (d *SampleDecoder) Reset() {
	d.pendingDX, d.pendingDY = 0, 0
	d.buttons = d.lastButtons
}

// buttonBit はマウスボタンのイベントコードをビットセットの位置へ変換する
func buttonBit(code uint16) (uint16, bool) {
	if code < event.MouseBtnLeft || code > event.MouseBtnTask {
		return 0, false
	}
	return 1 << (code - event.MouseBtnLeft), true
}
