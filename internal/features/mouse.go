package features

import (
	"errors"
	"fmt"
	"io"
	"log"
	"os"
	"syscall"
	"time"
	"unsafe"

	"golang.org/x/sys/unix"

	"github.com/jonydevcode/mousetester/internal/event"
	"github.com/jonydevcode/mousetester/internal/utils"
)

// マウス入力を扱うインターフェース
type Mouse interface {
	// デバイス名を取得する
	Name() string
	// デバイスノードのパスを取得する
	Path() string
	// マウス操作を専有する
	Grab() error
	// マウス操作の専有を解除する
	// クリーンアップ経路から呼ばれるため失敗しても伝播させない
	Release()
	// 専有中かどうかを返す
	Grabbed() bool
	// 生イベントを1件読み取る。期限切れの場合は os.ErrDeadlineExceeded を返す
	ReadEvent() (event.Event, error)
	// 読み取りの期限を設定する。別ゴルーチンからブロック中の読み取りに割り込める
	SetReadDeadline(t time.Time) error
	Close() error
}

type rawMouse struct {
	file    *os.File
	name    string
	path    string
	grabbed bool
	buf     []byte
}

// OpenMouse は指定されたパスのマウスデバイスを開く
func OpenMouse(path string) (Mouse, error) {
	f, err := os.OpenFile(path, os.O_RDONLY|syscall.O_NONBLOCK, 0)
	if err != nil {
		return nil, classifyOpenError(path, err)
	}

	m := &rawMouse{file: f, path: path, buf: make([]byte, event.Size)}

	// デバイス名の取得に失敗した場合はパスで代用する
	if name, err := deviceName(f); err == nil {
		m.name = name
	} else {
		m.name = path
	}

	// イベントのタイムスタンプを単調増加クロックに切り替える
	// 壁時計の調整でサンプル間隔が歪むのを避けるため。未対応カーネルでは無視する
	clockID := int32(unix.CLOCK_MONOTONIC)
	if err := utils.IOCtlPtr(f, utils.EVIOCSCLOCKID, unsafe.Pointer(&clockID)); err != nil {
		log.Printf("単調増加クロックへの切替に失敗しました（壁時計を使用します）: %v", err)
	}

	return m, nil
}

// classifyOpenError はopen失敗をエラー種別に振り分ける
func classifyOpenError(path string, err error) error {
	switch {
	case errors.Is(err, os.ErrPermission):
		return fmt.Errorf("%w: %s (run with root privileges)", ErrPermissionDenied, path)
	case errors.Is(err, os.ErrNotExist), errors.Is(err, unix.ENXIO),
		errors.Is(err, unix.ENODEV), errors.Is(err, unix.EBUSY):
		return fmt.Errorf("%w: %s", ErrDeviceUnavailable, path)
	default:
		return fmt.Errorf("failed to open device file %s: %w", path, err)
	}
}

func (m *rawMouse) Name() string { return m.name }

func (m *rawMouse) Path() string { return m.path }

func (m *rawMouse) Grab() error {
	if m.grabbed {
		return fmt.Errorf("%w: device already grabbed", ErrInvalidState)
	}
	if err := utils.IOCtl(m.file, utils.EVIOCGRAB, 1); err != nil {
		return fmt.Errorf("%w: %v", ErrGrabFailed, err)
	}
	m.grabbed = true
	return nil
}

func (m *rawMouse) Release() {
	if !m.grabbed {
		return
	}
	if err := utils.IOCtl(m.file, utils.EVIOCGRAB, 0); err != nil {
		log.Printf("デバイスの専有解除に失敗しました: %v", err)
	}
	m.grabbed = false
}

func (m *rawMouse) Grabbed() bool { return m.grabbed }

func (m *rawMouse) ReadEvent() (event.Event, error) {
	if _, err := io.ReadFull(m.file, m.buf); err != nil {
		return event.Event{}, err
	}
	return event.Unmarshal(m.buf), nil
}

func (m *rawMouse) SetReadDeadline(t time.Time) error {
	return m.file.SetReadDeadline(t)
}

func (m *rawMouse) Close() error {
	m.Release()
	return m.file.Close()
}
