package features

import (
	"errors"
	"fmt"
	"log"
	"os"
	"sync"
	"time"
)

// State はサンプリングセッションの状態
type State int

const (
	StateIdle       State = iota // デバイス未保持
	StateArmed                   // デバイス専有済み、読み取りループ未開始
	StateCapturing               // 読み取りループ実行中
	StateFinalizing              // デバイス解放とバッファ凍結の処理中
	StateClosed                  // 完了。サンプルと集計が参照可能
	StateAborted                 // 専有失敗などで中止
)

func (s State) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateArmed:
		return "armed"
	case StateCapturing:
		return "capturing"
	case StateFinalizing:
		return "finalizing"
	case StateClosed:
		return "closed"
	case StateAborted:
		return "aborted"
	default:
		return "unknown"
	}
}

// Result は完了したセッションの成果物
// Samplesは時系列順で、セッション完了後は変更されない
type Result struct {
	Samples []MotionSample
	Summary Summary
	// Err はキャプチャが読み取りエラーで途中終了した場合に設定される
	// その場合でもSamplesには最後に確定したサンプルまでが保持される
	Err error
}

// Session はデバイスの専有からサンプル収集・解放までを管理する状態機械
// デバイスの所有者はセッションのみで、どの終了経路でも解放が保証される
type Session struct {
	mouse    Mouse
	duration time.Duration

	mu      sync.Mutex
	state   State
	samples []MotionSample

	cancelChan chan struct{}
	cancelOnce sync.Once
}

// NewSession は新しいサンプリングセッションを作成する
// セッションはmouseの所有権を引き取り、終了時に必ずクローズする
func NewSession(mouse Mouse, duration time.Duration) *Session {
	return &Session{
		mouse:      mouse,
		duration:   duration,
		state:      StateIdle,
		cancelChan: make(chan struct{}),
	}
}

// State は現在の状態を返す
func (s *Session) State() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

// SampleCount は現在までに確定したサンプル数を返す
func (s *Session) SampleCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.samples)
}

// Arm はデバイスを専有し、キャプチャを開始できる状態にする
// カウントダウンなどの準備時間中もデバイスを確保しておくための状態
// 専有に失敗した場合はデバイスを閉じた上でAbortedになる
func (s *Session) Arm() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.state != StateIdle {
		return fmt.Errorf("%w: cannot arm session in state %s", ErrInvalidState, s.state)
	}

	if err := s.mouse.Grab(); err != nil {
		s.state = StateAborted
		if cerr := s.mouse.Close(); cerr != nil {
			log.Printf("デバイスのクローズに失敗しました: %v", cerr)
		}
		return err
	}

	s.state = StateArmed
	return nil
}

// Abort はキャプチャを開始せずにセッションを破棄し、デバイスを解放する
func (s *Session) Abort() {
	s.mu.Lock()
	defer s.mu.Unlock()

	switch s.state {
	case StateIdle, StateArmed:
		if s.state == StateArmed {
			s.mouse.Release()
			if err := s.mouse.Close(); err != nil {
				log.Printf("デバイスのクローズに失敗しました: %v", err)
			}
		}
		s.state = StateAborted
	}
}

// Cancel はキャプチャの停止を要求する
// ブロック中の読み取りにも読み取り期限の繰り上げで即座に割り込む
func (s *Session) Cancel() {
	s.cancelOnce.Do(func() {
		close(s.cancelChan)
	})
}

// Run はキャプチャループを実行し、セッション時間の満了・キャンセル・
// 読み取りエラーのいずれかで終了したあと結果を返す
// デバイスの専有解除とクローズはどの終了経路でも実行される
func (s *Session) Run() (*Result, error) {
	s.mu.Lock()
	if s.state != StateArmed {
		s.mu.Unlock()
		return nil, fmt.Errorf("%w: cannot run session in state %s", ErrInvalidState, s.state)
	}
	s.state = StateCapturing
	s.mu.Unlock()

	// どの終了経路（満了・キャンセル・エラー・パニック）でも専有解除とクローズを保証する
	defer s.finalize()

	start := time.Now()
	deadline := start.Add(s.duration)
	if err := s.mouse.SetReadDeadline(deadline); err != nil {
		log.Printf("読み取り期限の設定に失敗しました: %v", err)
	}

	// キャンセル要求をブロック中の読み取りへの割り込みに変換する
	done := make(chan struct{})
	defer close(done)
	go func() {
		select {
		case <-s.cancelChan:
			_ = s.mouse.SetReadDeadline(time.Unix(0, 1))
		case <-done:
		}
	}()

	decoder := NewSampleDecoder()
	var capErr error

	for {
		ev, err := s.mouse.ReadEvent()
		if err != nil {
			if errors.Is(err, os.ErrDeadlineExceeded) {
				// セッション時間の満了またはキャンセル
				// 同期マーカー未到達の保留データはサンプルにしない
				decoder.Reset()
				break
			}
			// デバイス切断などの読み取りエラー
			// ここまでに確定したサンプルは保持し、エラーは結果と併せて報告する
			capErr = fmt.Errorf("%w: %v", ErrDecodeInterrupted, err)
			break
		}

		if sample, ok := decoder.Feed(ev); ok {
			s.mu.Lock()
			s.samples = append(s.samples, sample)
			s.mu.Unlock()
		}
	}

	elapsed := time.Since(start)

	s.mu.Lock()
	samples := s.samples
	s.mu.Unlock()

	return &Result{
		Samples: samples,
		Summary: Summarize(samples, elapsed),
		Err:     capErr,
	}, nil
}

// finalize はデバイスの専有解除とクローズを行い、状態をClosedへ進める
func (s *Session) finalize() {
	s.setState(StateFinalizing)
	s.mouse.Release()
	if err := s.mouse.Close(); err != nil {
		log.Printf("デバイスのクローズに失敗しました: %v", err)
	}
	s.setState(StateClosed)
}

func (s *Session) setState(state State) {
	s.mu.Lock()
	s.state = state
	s.mu.Unlock()
}
