package features

import (
	"bytes"
	"log"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"syscall"
	"time"
	"unsafe"

	"github.com/fsnotify/fsnotify"

	"github.com/jonydevcode/mousetester/internal/event"
	"github.com/jonydevcode/mousetester/internal/utils"
)

// Device は検出された入力デバイスを表す
type Device struct {
	Name string // デバイス名（EVIOCGNAMEで取得）
	Path string // デバイスノードのパス
}

// ScanDevices は /dev/input 以下を走査し、マウス系デバイスの一覧を返す
// 相対X軸とY軸の両方を持つデバイスをマウスと判定する
func ScanDevices() ([]Device, error) {
	entries, err := os.ReadDir("/dev/input")
	if err != nil {
		return nil, err
	}

	var devices []Device
	for _, entry := range entries {
		if !strings.HasPrefix(entry.Name(), "event") {
			continue
		}
		path := filepath.Join("/dev/input", entry.Name())

		// 権限不足や使用中で開けないデバイスはスキップする
		device, ok := probeDevice(path)
		if !ok {
			continue
		}
		devices = append(devices, device)
	}

	sort.Slice(devices, func(i, j int) bool {
		return devices[i].Path < devices[j].Path
	})
	return devices, nil
}

// probeDevice はデバイスのケイパビリティを調べ、マウスと判定できれば情報を返す
func probeDevice(path string) (Device, bool) {
	f, err := os.OpenFile(path, os.O_RDONLY|syscall.O_NONBLOCK, 0)
	if err != nil {
		return Device{}, false
	}
	defer f.Close()

	if !supportsRelMotion(f) {
		return Device{}, false
	}

	name, err := deviceName(f)
	if err != nil {
		name = path
	}
	return Device{Name: name, Path: path}, true
}

// deviceName はEVIOCGNAMEでデバイス名を取得する
func deviceName(f *os.File) (string, error) {
	buf := make([]byte, 256)
	if err := utils.IOCtlPtr(f, utils.EviocGName(len(buf)), unsafe.Pointer(&buf[0])); err != nil {
		return "", err
	}
	if i := bytes.IndexByte(buf, 0); i >= 0 {
		buf = buf[:i]
	}
	return string(buf), nil
}

// supportsRelMotion はデバイスが相対X/Y軸の両方を報告できるかを調べる
func supportsRelMotion(f *os.File) bool {
	// 対応イベントタイプのビットマップ
	types := make([]byte, event.EvMax/8+1)
	if err := utils.IOCtlPtr(f, utils.EviocGBit(0, len(types)), unsafe.Pointer(&types[0])); err != nil {
		return false
	}
	if !bitSet(types, event.Rel) {
		return false
	}

	// 相対座標コードのビットマップ
	rel := make([]byte, event.RelMax/8+1)
	if err := utils.IOCtlPtr(f, utils.EviocGBit(event.Rel, len(rel)), unsafe.Pointer(&rel[0])); err != nil {
		return false
	}
	return bitSet(rel, event.RelX) && bitSet(rel, event.RelY)
}

func bitSet(bits []byte, n int) bool {
	return bits[n/8]&(1<<(n%8)) != 0
}

// DeviceMonitor は /dev/input の変化を監視し、現在のマウスデバイス一覧を保持する
type DeviceMonitor struct {
	watcher  *fsnotify.Watcher
	mu       sync.RWMutex
	devices  []Device
	stopChan chan struct{}
	stopOnce sync.Once
}

// NewDeviceMonitor はデバイス監視を作成し、すぐに監視を開始する
func NewDeviceMonitor() (*DeviceMonitor, error) {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, err
	}
	if err := watcher.Add("/dev/input"); err != nil {
		watcher.Close()
		return nil, err
	}

	m := &DeviceMonitor{
		watcher:  watcher,
		stopChan: make(chan struct{}),
	}

	if devices, err := ScanDevices(); err == nil {
		m.devices = devices
	} else {
		log.Printf("初期デバイス走査に失敗しました: %v", err)
	}

	go m.watch()
	return m, nil
}

// Devices は現在接続されているマウスデバイスのスナップショットを返す
func (m *DeviceMonitor) Devices() []Device {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return append([]Device(nil), m.devices...)
}

// Stop はデバイス監視を停止する
func (m *DeviceMonitor) Stop() {
	m.stopOnce.Do(func() {
		close(m.stopChan)
		m.watcher.Close()
	})
}

// watch はファイルシステムイベントをデバウンスしつつデバイス一覧を再走査する
// 抜き差し直後はイベントが連続するため、まとめて1回の走査にする
func (m *DeviceMonitor) watch() {
	const debounce = 500 * time.Millisecond
	timer := time.NewTimer(debounce)
	if !timer.Stop() {
		<-timer.C
	}

	for {
		select {
		case <-m.stopChan:
			return

		case <-timer.C:
			m.rescan()

		case ev, ok := <-m.watcher.Events:
			if !ok {
				return
			}
			if ev.Op&(fsnotify.Create|fsnotify.Remove) == 0 {
				continue
			}
			if !strings.HasPrefix(filepath.Base(ev.Name), "event") {
				continue
			}
			timer.Reset(debounce)

		case err, ok := <-m.watcher.Errors:
			if !ok {
				return
			}
			log.Printf("デバイス監視エラー: %v", err)
		}
	}
}

func (m *DeviceMonitor) rescan() {
	devices, err := ScanDevices()
	if err != nil {
		log.Printf("デバイスの再走査に失敗しました: %v", err)
		return
	}

	m.mu.Lock()
	m.devices = devices
	m.mu.Unlock()
	log.Printf("デバイス一覧を更新しました: %d 台", len(devices))
}
