package console

import (
	"bufio"
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/schollz/progressbar/v3"
	"golang.org/x/term"

	"github.com/jonydevcode/mousetester/internal/features"
)

// ErrInterrupted はキー待ちがCtrl-Cで中断された場合のエラー
var ErrInterrupted = errors.New("interrupted")

// SelectDevice は検出されたデバイスの一覧を表示し、番号入力で選択させる
func SelectDevice(devices []features.Device) (features.Device, error) {
	fmt.Println("利用可能なマウスデバイス:")
	for i, d := range devices {
		fmt.Printf("  %d: %s (%s)\n", i+1, d.Name, d.Path)
	}

	reader := bufio.NewReader(os.Stdin)
	for {
		fmt.Print("使用するマウスの番号を入力してください: ")
		line, err := reader.ReadString('\n')
		if err != nil {
			return features.Device{}, err
		}

		n, err := strconv.Atoi(strings.TrimSpace(line))
		if err != nil || n < 1 || n > len(devices) {
			fmt.Printf("1 から %d の番号を入力してください\n", len(devices))
			continue
		}
		return devices[n-1], nil
	}
}

// Countdown は計測開始までのカウントダウンを表示する
// interruptが閉じられた場合（シグナル受信など）は残り時間を待たずに打ち切る
func Countdown(seconds int, interrupt <-chan struct{}) {
	if seconds <= 0 {
		return
	}

	bar := progressbar.NewOptions(seconds,
		progressbar.OptionSetDescription("計測開始まで"),
		progressbar.OptionSetWidth(30),
		progressbar.OptionClearOnFinish(),
	)
	ticker := time.NewTicker(time.Second)
	defer ticker.Stop()

	for i := 0; i < seconds; i++ {
		select {
		case <-interrupt:
			return
		case <-ticker.C:
			_ = bar.Add(1)
		}
	}
}

// CaptureProgress は計測完了までの進捗を1秒刻みで表示する
// doneが先に閉じられた場合（キャンセルなど）は途中で打ち切る
func CaptureProgress(duration time.Duration, done <-chan struct{}) {
	seconds := int(duration / time.Second)
	if seconds <= 0 {
		<-done
		return
	}

	bar := progressbar.NewOptions(seconds,
		progressbar.OptionSetDescription("計測中"),
		progressbar.OptionSetWidth(30),
		progressbar.OptionClearOnFinish(),
	)
	ticker := time.NewTicker(time.Second)
	defer ticker.Stop()

	for i := 0; i < seconds; i++ {
		select {
		case <-done:
			return
		case <-ticker.C:
			_ = bar.Add(1)
		}
	}
	<-done
}

// WaitForSpace はスペースキーが押されるまでブロックする
// Enter不要で1文字ずつ読むため端末をrawモードに切り替える
func WaitForSpace() error {
	fd := int(os.Stdin.Fd())
	oldState, err := term.MakeRaw(fd)
	if err != nil {
		return err
	}
	defer term.Restore(fd, oldState)

	buf := make([]byte, 1)
	for {
		if _, err := os.Stdin.Read(buf); err != nil {
			return err
		}
		switch buf[0] {
		case ' ':
			return nil
		case 0x03, 0x04: // Ctrl-C / Ctrl-D
			return ErrInterrupted
		}
	}
}
