package api

import (
	"fmt"
	"log"
	"sync"
	"time"

	"github.com/jonydevcode/mousetester/internal/config"
	"github.com/jonydevcode/mousetester/internal/features"
)

// CaptureService は計測セッションの実行を管理する構造体
// デバイスを排他的に専有するため、同時に実行できるセッションは常に1つまで
type CaptureService struct {
	cfg     *config.Config
	monitor *features.DeviceMonitor

	mu      sync.RWMutex
	session *features.Session
	result  *features.Result
}

// NewCaptureService は新しい計測サービスを作成する
// monitorはnil可。nilの場合はリクエストのたびにデバイスを走査する
func NewCaptureService(cfg *config.Config, monitor *features.DeviceMonitor) *CaptureService {
	return &CaptureService{
		cfg:     cfg,
		monitor: monitor,
	}
}

// SetConfig はサービスが参照する設定を差し替える
// 以降に開始されるセッションのデフォルト計測時間や優先デバイスに反映される
func (s *CaptureService) SetConfig(cfg *config.Config) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.cfg = cfg
}

// Config は現在サービスが参照している設定を返す
func (s *CaptureService) Config() *config.Config {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.cfg
}

// Devices は現在接続されているマウスデバイスの一覧を返す
func (s *CaptureService) Devices() ([]features.Device, error) {
	if s.monitor != nil {
		return s.monitor.Devices(), nil
	}
	return features.ScanDevices()
}

// Start は指定されたデバイスで計測セッションを開始する
// devicePathが空の場合は設定の優先デバイス、なければ最初に検出されたデバイスを使用する
func (s *CaptureService) Start(devicePath string, duration time.Duration) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.session != nil {
		switch s.session.State() {
		case features.StateClosed, features.StateAborted:
			// 前回セッションは終了済み。新しいセッションを開始できる
		default:
			return fmt.Errorf("%w: a session is already running", features.ErrInvalidState)
		}
	}

	if devicePath == "" {
		path, err := s.defaultDevicePath()
		if err != nil {
			return err
		}
		devicePath = path
	}

	if duration <= 0 {
		duration = s.cfg.Session.Duration
	}

	mouse, err := features.OpenMouse(devicePath)
	if err != nil {
		return err
	}
	log.Printf("使用するマウス: %s (%s)", mouse.Name(), mouse.Path())

	session := features.NewSession(mouse, duration)
	if err := session.Arm(); err != nil {
		return err
	}

	s.session = session
	s.result = nil

	go func() {
		result, err := session.Run()
		if err != nil {
			log.Printf("セッションの実行に失敗しました: %v", err)
			return
		}
		if result.Err != nil {
			log.Printf("計測が途中で中断されました: %v", result.Err)
		}

		s.mu.Lock()
		s.result = result
		s.mu.Unlock()
		log.Printf("計測が完了しました: %d サンプル", result.Summary.SampleCount)
	}()

	return nil
}

// Cancel は実行中のセッションに停止を要求する
func (s *CaptureService) Cancel() error {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if s.session == nil {
		return fmt.Errorf("%w: no session", features.ErrInvalidState)
	}
	s.session.Cancel()
	return nil
}

// Status は現在のセッション状態と確定済みサンプル数を返す
func (s *CaptureService) Status() (features.State, int) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if s.session == nil {
		return features.StateIdle, 0
	}
	return s.session.State(), s.session.SampleCount()
}

// Result は直近に完了したセッションの結果を返す
func (s *CaptureService) Result() (*features.Result, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if s.result == nil {
		return nil, false
	}
	return s.result, true
}

// defaultDevicePath は設定の優先デバイス、なければ最初のデバイスのパスを返す
func (s *CaptureService) defaultDevicePath() (string, error) {
	devices, err := s.Devices()
	if err != nil {
		return "", err
	}
	if len(devices) == 0 {
		return "", fmt.Errorf("%w: no mouse devices found", features.ErrDeviceUnavailable)
	}

	if preferred := s.cfg.Device.PreferredMouseDevice; preferred != "" {
		for _, d := range devices {
			if d.Name == preferred {
				return d.Path, nil
			}
		}
		log.Printf("優先デバイス %q が見つかりません。最初のデバイスを使用します", preferred)
	}
	return devices[0].Path, nil
}
