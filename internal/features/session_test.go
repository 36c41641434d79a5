package features_test

import (
	"errors"
	"fmt"
	"os"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jonydevcode/mousetester/internal/event"
	"github.com/jonydevcode/mousetester/internal/features"
)

// fakeMouse はスクリプト化されたイベント列を返すMouse実装
// イベントが尽きたあとは読み取り期限が切れるまでブロックする
type fakeMouse struct {
	mu       sync.Mutex
	events   []event.Event
	idx      int
	readErr  error // イベントが尽きたあとに返すエラー（nilなら期限までブロック）
	grabErr  error
	grabbed  bool
	released bool
	closed   bool
	deadline time.Time
}

func (m *fakeMouse) Name() string { return "fake mouse" }
func (m *fakeMouse) Path() string { return "/dev/input/event99" }

func (m *fakeMouse) Grab() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.grabErr != nil {
		return m.grabErr
	}
	m.grabbed = true
	return nil
}

func (m *fakeMouse) Release() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.grabbed = false
	m.released = true
}

func (m *fakeMouse) Grabbed() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.grabbed
}

func (m *fakeMouse) SetReadDeadline(t time.Time) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.deadline = t
	return nil
}

func (m *fakeMouse) ReadEvent() (event.Event, error) {
	for {
		m.mu.Lock()
		if m.idx < len(m.events) {
			ev := m.events[m.idx]
			m.idx++
			m.mu.Unlock()
			return ev, nil
		}
		readErr := m.readErr
		deadline := m.deadline
		m.mu.Unlock()

		if readErr != nil {
			return event.Event{}, readErr
		}
		if !deadline.IsZero() && time.Now().After(deadline) {
			return event.Event{}, os.ErrDeadlineExceeded
		}
		time.Sleep(time.Millisecond)
	}
}

func (m *fakeMouse) Close() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.closed = true
	return nil
}

func (m *fakeMouse) wasReleased() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.released
}

func (m *fakeMouse) wasClosed() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.closed
}

func TestSessionCapturesUntilDuration(t *testing.T) {
	mouse := &fakeMouse{
		events: []event.Event{
			relEvent(event.RelX, 5), relEvent(event.RelY, -3), synEvent(0),
			synEvent(8 * time.Millisecond),
			relEvent(event.RelX, 2), synEvent(16 * time.Millisecond),
		},
	}
	session := features.NewSession(mouse, 50*time.Millisecond)

	require.NoError(t, session.Arm())
	assert.Equal(t, features.StateArmed, session.State())
	assert.True(t, mouse.Grabbed())

	result, err := session.Run()
	require.NoError(t, err)
	require.NoError(t, result.Err)

	assert.Equal(t, features.StateClosed, session.State())
	require.Len(t, result.Samples, 2)
	assert.Equal(t, int32(5), result.Samples[0].DX)
	assert.Equal(t, int32(-3), result.Samples[0].DY)
	assert.Equal(t, int32(2), result.Samples[1].DX)

	// どの経路でも専有解除とクローズが保証される
	assert.False(t, mouse.Grabbed())
	assert.True(t, mouse.wasReleased())
	assert.True(t, mouse.wasClosed())

	require.NotNil(t, result.Summary.Interval)
	assert.InDelta(t, 62.5, result.Summary.Interval.Rate, 0.01)
}

// タイムスタンプはセッション内で非減少
func TestSessionTimestampsMonotonic(t *testing.T) {
	mouse := &fakeMouse{
		events: []event.Event{
			relEvent(event.RelX, 1), synEvent(10 * time.Millisecond),
			relEvent(event.RelX, 1), synEvent(4 * time.Millisecond),
			relEvent(event.RelX, 1), synEvent(20 * time.Millisecond),
		},
	}
	session := features.NewSession(mouse, 50*time.Millisecond)
	require.NoError(t, session.Arm())

	result, err := session.Run()
	require.NoError(t, err)

	for i := 1; i < len(result.Samples); i++ {
		assert.GreaterOrEqual(t, result.Samples[i].Time, result.Samples[i-1].Time)
	}
}

// ブロック中の読み取りでもキャンセルで即座に抜け、デバイスは解放される
func TestSessionCancelInterruptsBlockedRead(t *testing.T) {
	mouse := &fakeMouse{}
	session := features.NewSession(mouse, 10*time.Second)
	require.NoError(t, session.Arm())

	resultChan := make(chan *features.Result, 1)
	go func() {
		result, _ := session.Run()
		resultChan <- result
	}()

	time.Sleep(50 * time.Millisecond)
	session.Cancel()

	select {
	case result := <-resultChan:
		require.NotNil(t, result)
		assert.Empty(t, result.Samples)
		assert.NoError(t, result.Err)
	case <-time.After(2 * time.Second):
		t.Fatal("キャンセル後もキャプチャループが終了しない")
	}

	assert.Equal(t, features.StateClosed, session.State())
	assert.False(t, mouse.Grabbed())
	assert.True(t, mouse.wasReleased())
	assert.True(t, mouse.wasClosed())
}

// 専有に失敗した場合はAbortedになり、デバイスは閉じられる
func TestSessionGrabFailureAborts(t *testing.T) {
	mouse := &fakeMouse{
		grabErr: fmt.Errorf("%w: busy", features.ErrGrabFailed),
	}
	session := features.NewSession(mouse, time.Second)

	err := session.Arm()
	require.Error(t, err)
	assert.True(t, errors.Is(err, features.ErrGrabFailed))
	assert.Equal(t, features.StateAborted, session.State())
	assert.True(t, mouse.wasClosed())
}

// キャプチャ中の読み取りエラーでは確定済みサンプルを破棄せず、エラーを併記する
func TestSessionReadErrorTruncates(t *testing.T) {
	mouse := &fakeMouse{
		events: []event.Event{
			relEvent(event.RelX, 3), synEvent(time.Millisecond),
		},
		readErr: errors.New("no such device"),
	}
	session := features.NewSession(mouse, time.Second)
	require.NoError(t, session.Arm())

	result, err := session.Run()
	require.NoError(t, err)
	require.Error(t, result.Err)
	assert.True(t, errors.Is(result.Err, features.ErrDecodeInterrupted))

	require.Len(t, result.Samples, 1)
	assert.Equal(t, int32(3), result.Samples[0].DX)
	assert.Equal(t, features.StateClosed, session.State())
	assert.True(t, mouse.wasReleased())
	assert.True(t, mouse.wasClosed())
}

// サンプルゼロはエラーではない
func TestSessionZeroSamplesIsValid(t *testing.T) {
	mouse := &fakeMouse{}
	session := features.NewSession(mouse, 30*time.Millisecond)
	require.NoError(t, session.Arm())

	result, err := session.Run()
	require.NoError(t, err)
	require.NoError(t, result.Err)

	assert.Equal(t, 0, result.Summary.SampleCount)
	assert.Nil(t, result.Summary.Interval)
	assert.Equal(t, features.StateClosed, session.State())
}

// 状態機械の誤用はErrInvalidState
func TestSessionStateMisuse(t *testing.T) {
	mouse := &fakeMouse{}
	session := features.NewSession(mouse, time.Second)

	// Armせずに実行
	_, err := session.Run()
	assert.True(t, errors.Is(err, features.ErrInvalidState))

	// 二重Arm
	require.NoError(t, session.Arm())
	err = session.Arm()
	assert.True(t, errors.Is(err, features.ErrInvalidState))

	session.Abort()
	assert.Equal(t, features.StateAborted, session.State())
	assert.True(t, mouse.wasClosed())
}

// Armのまま破棄してもデバイスは解放される
func TestSessionAbortReleasesArmedDevice(t *testing.T) {
	mouse := &fakeMouse{}
	session := features.NewSession(mouse, time.Second)
	require.NoError(t, session.Arm())
	require.True(t, mouse.Grabbed())

	session.Abort()
	assert.Equal(t, features.StateAborted, session.State())
	assert.False(t, mouse.Grabbed())
	assert.True(t, mouse.wasReleased())
	assert.True(t, mouse.wasClosed())
}
