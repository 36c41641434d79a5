package event

import (
	"encoding/binary"
	"syscall"
	"time"
)

// イベントタイプの定数（input-event-codes.hより）
const (
	Syn = 0x00 // 同期イベント
	Key = 0x01 // キーイベント
	Rel = 0x02 // 相対座標イベント
	Abs = 0x03 // 絶対座標イベント

	RelX     = 0x0 // X軸の相対移動
	RelY     = 0x1 // Y軸の相対移動
	RelWheel = 0x8 // ホイールの相対移動

	SynReport = 0 // イベントバッチ完了の同期マーカー

	MouseBtnLeft    = 0x110 // マウス左ボタン
	MouseBtnRight   = 0x111 // マウス右ボタン
	MouseBtnMiddle  = 0x112 // マウス中ボタン
	MouseBtnSide    = 0x113 // サイドボタン
	MouseBtnExtra   = 0x114 // 拡張ボタン
	MouseBtnForward = 0x115 // 進むボタン
	MouseBtnBack    = 0x116 // 戻るボタン
	MouseBtnTask    = 0x117 // タスクボタン

	EvMax  = 0x1f // イベントタイプの最大値
	RelMax = 0x0f // 相対座標コードの最大値
)

// キーイベントの値
const (
	BtnReleased = 0 // ボタン解放
	BtnPressed  = 1 // ボタン押下
	BtnRepeated = 2 // オートリピート
)

// Event は入力イベントを表す構造体
type Event struct {
	Time  syscall.Timeval // イベント発生時刻
	Type  uint16          // イベントタイプ
	Code  uint16          // イベントコード
	Value int32           // イベント値
}

// Size はカーネルのinput_event構造体のバイト数
var Size = binary.Size(Event{})

// Unmarshal はデバイスから読み取ったバイト列をイベントに復元する
func Unmarshal(buf []byte) Event {
	var e Event
	e.Time.Sec = int64(binary.LittleEndian.Uint64(buf[0:8]))
	e.Time.Usec = int64(binary.LittleEndian.Uint64(buf[8:16]))
	e.Type = binary.LittleEndian.Uint16(buf[16:18])
	e.Code = binary.LittleEndian.Uint16(buf[18:20])
	e.Value = int32(binary.LittleEndian.Uint32(buf[20:24]))
	return e
}

// Timestamp はイベント発生時刻をDurationとして返す
func (e Event) Timestamp() time.Duration {
	return time.Duration(e.Time.Sec)*time.Second + time.Duration(e.Time.Usec)*time.Microsecond
}
