package features

import "errors"

// キャプチャ処理のエラー種別
// 呼び出し側は errors.Is で判別する
var (
	// ErrDeviceUnavailable はデバイスノードが存在しないか、他プロセスに使用されている場合のエラー
	ErrDeviceUnavailable = errors.New("device unavailable")
	// ErrPermissionDenied はデバイスを開く権限がない場合のエラー（root権限が必要）
	ErrPermissionDenied = errors.New("permission denied")
	// ErrGrabFailed はデバイスは開けたが排他制御の取得に失敗した場合のエラー
	ErrGrabFailed = errors.New("exclusive grab failed")
	// ErrDecodeInterrupted はキャプチャ中の読み取りエラー（デバイス切断など）
	// それまでに確定したサンプルは破棄されず結果に含まれる
	ErrDecodeInterrupted = errors.New("capture interrupted by read error")
	// ErrInvalidState は状態機械の誤用（二重の専有、未Armでの実行など）
	ErrInvalidState = errors.New("invalid state")
)
