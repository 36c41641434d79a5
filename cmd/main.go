package main

import (
	"errors"
	"flag"
	"fmt"
	"log"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/jonydevcode/mousetester/internal/api"
	"github.com/jonydevcode/mousetester/internal/config"
	"github.com/jonydevcode/mousetester/internal/console"
	"github.com/jonydevcode/mousetester/internal/features"
	"github.com/jonydevcode/mousetester/internal/plot"
)

func main() {
	// コマンドライン引数の解析
	useApi := flag.Bool("api", false, "APIサーバーモードで起動します")
	port := flag.Int("port", 8080, "APIサーバーのポート番号")
	configPath := flag.String("config", "", "設定ファイルのパス (指定しない場合はデフォルトパスを使用)")
	devicePath := flag.String("device", "", "使用するデバイスノードのパス (省略時は一覧から選択)")
	duration := flag.Duration("duration", 0, "計測時間 (省略時は設定ファイルの値)")
	listOnly := flag.Bool("list", false, "検出したマウスデバイスを表示して終了します")
	xcount := flag.Bool("xcount", false, "スペースキーで開始・停止し、X方向の合計移動量を計測します")
	flag.Parse()

	// デフォルト設定ファイルパスの設定
	defaultConfigPath := ""
	configDir, err := config.GetDefaultConfigDir()
	if err == nil {
		defaultConfigPath = filepath.Join(configDir, "config.toml")
	}

	// 設定ファイルパスの決定
	cfgPath := defaultConfigPath
	if *configPath != "" {
		cfgPath = *configPath
	}

	// 設定ファイルの読み込み
	var cfg *config.Config
	if cfgPath != "" {
		cfg, err = config.LoadConfig(cfgPath)
		if err != nil {
			fmt.Printf("設定ファイルの読み込みに失敗しました: %v\nデフォルト設定を使用します\n", err)
			cfg = config.DefaultConfig()
		}
	} else {
		cfg = config.DefaultConfig()
	}

	if *listOnly {
		runList()
		return
	}

	// 生イベントの読み取りとデバイスの専有にはroot権限が必要
	if os.Geteuid() != 0 {
		fmt.Fprintln(os.Stderr, "このプログラムは生マウスイベントの読み取りにroot権限が必要です")
		fmt.Fprintln(os.Stderr, "sudo で実行してください")
		os.Exit(1)
	}

	if *duration <= 0 {
		*duration = cfg.Session.Duration
	}

	switch {
	case *useApi:
		fmt.Printf("APIサーバーモードで起動します (ポート: %d)...\n", *port)
		runApiServer(cfg, *port)
	case *xcount:
		runXCount(cfg, *devicePath)
	default:
		runTracker(cfg, *devicePath, *duration)
	}
}

// デバイス一覧の表示のみ
func runList() {
	devices, err := features.ScanDevices()
	if err != nil {
		log.Fatalf("デバイスの走査に失敗しました: %v", err)
	}
	if len(devices) == 0 {
		fmt.Println("マウスデバイスが見つかりませんでした")
		return
	}
	for _, d := range devices {
		fmt.Printf("%s\t%s\n", d.Path, d.Name)
	}
}

// APIサーバーモードでの実行
func runApiServer(cfg *config.Config, port int) {
	// デバイスの抜き差しを監視して一覧を最新に保つ
	monitor, err := features.NewDeviceMonitor()
	if err != nil {
		log.Printf("デバイス監視の開始に失敗しました (都度走査に切り替えます): %v", err)
		monitor = nil
	} else {
		defer monitor.Stop()
	}

	service := api.NewCaptureService(cfg, monitor)
	server := api.NewServer(cfg, service, port)

	if err := server.Start(); err != nil {
		log.Fatalf("APIサーバーの起動に失敗しました: %v", err)
	}
}

// 一定時間の計測モード（デフォルト）での実行
func runTracker(cfg *config.Config, devicePath string, duration time.Duration) {
	session := openSession(cfg, devicePath, duration)

	// Ctrl-C や SIGTERM でもデバイス解放を保証する
	// カウントダウン中に受信した場合も残り時間を待たずに終了処理へ進む
	interrupted := watchSignals(session)

	console.Countdown(cfg.Session.Countdown, interrupted)
	fmt.Println("計測を開始します。マウスを動かしてください")

	resultChan := make(chan *features.Result, 1)
	done := make(chan struct{})
	go func() {
		defer close(done)
		result, err := session.Run()
		if err != nil {
			log.Fatalf("セッションの実行に失敗しました: %v", err)
		}
		resultChan <- result
	}()

	console.CaptureProgress(duration, done)
	result := <-resultChan

	if result.Err != nil {
		log.Printf("計測が途中で中断されました（ここまでの結果を表示します）: %v", result.Err)
	}
	printSummary(result.Summary)

	if result.Summary.SampleCount < 2 {
		fmt.Println("プロットに必要なサンプル数がありません")
		return
	}

	page, err := plot.Render(result.Samples, result.Summary)
	if err != nil {
		log.Fatalf("プロットの生成に失敗しました: %v", err)
	}
	path, err := plot.WriteFile(cfg.Plot.OutputPath, page)
	if err != nil {
		log.Fatalf("プロットの書き出しに失敗しました: %v", err)
	}
	fmt.Printf("プロットを書き出しました: %s\n", path)

	if cfg.Plot.OpenBrowser {
		if err := plot.OpenInBrowser(path); err != nil {
			log.Printf("ブラウザの起動に失敗しました: %v", err)
		}
	}
}

// スペースキーで開始・停止するX方向の移動量計測モード
func runXCount(cfg *config.Config, devicePath string) {
	if devicePath == "" {
		device, err := chooseDevice(cfg)
		if err != nil {
			log.Fatalf("デバイスの選択に失敗しました: %v", err)
		}
		devicePath = device.Path
	}

	fmt.Println("スペースキーで計測を開始します")
	if err := console.WaitForSpace(); err != nil {
		log.Fatalf("計測を中断しました: %v", err)
	}

	// 専有は計測開始の直前まで遅らせる
	// 開始待ちの間はマウスを通常どおり使えたままにしておく
	// キー入力で止めるまで動き続けるよう、十分長い時間を設定する
	session := openSession(cfg, devicePath, 24*time.Hour)
	watchSignals(session)
	fmt.Println("計測中... もう一度スペースキーで停止します")

	resultChan := make(chan *features.Result, 1)
	go func() {
		result, err := session.Run()
		if err != nil {
			log.Fatalf("セッションの実行に失敗しました: %v", err)
		}
		resultChan <- result
	}()

	if err := console.WaitForSpace(); err != nil {
		log.Printf("キー入力を中断しました: %v", err)
	}
	session.Cancel()
	result := <-resultChan

	if result.Err != nil {
		log.Printf("計測が途中で中断されました: %v", result.Err)
	}

	var totalX int64
	for _, s := range result.Samples {
		totalX += int64(s.DX)
	}
	fmt.Printf("\nX方向の合計移動量: %d counts (%d サンプル)\n", totalX, result.Summary.SampleCount)
}

// openSession はデバイスを決定して開き、専有済みのセッションを返す
func openSession(cfg *config.Config, devicePath string, duration time.Duration) *features.Session {
	if devicePath == "" {
		device, err := chooseDevice(cfg)
		if err != nil {
			log.Fatalf("デバイスの選択に失敗しました: %v", err)
		}
		devicePath = device.Path
	}

	mouse, err := features.OpenMouse(devicePath)
	if err != nil {
		if errors.Is(err, features.ErrPermissionDenied) {
			log.Fatalf("デバイスを開く権限がありません。sudo で実行してください: %v", err)
		}
		log.Fatalf("デバイスを開けませんでした: %v", err)
	}
	fmt.Printf("使用するマウス: %s (%s)\n", mouse.Name(), mouse.Path())

	session := features.NewSession(mouse, duration)
	if err := session.Arm(); err != nil {
		log.Fatalf("デバイスの専有に失敗しました: %v", err)
	}
	return session
}

// chooseDevice は設定の優先デバイスを探し、なければ対話的に選択させる
func chooseDevice(cfg *config.Config) (features.Device, error) {
	devices, err := features.ScanDevices()
	if err != nil {
		return features.Device{}, err
	}
	if len(devices) == 0 {
		return features.Device{}, fmt.Errorf("マウスデバイスが見つかりませんでした")
	}

	if preferred := cfg.Device.PreferredMouseDevice; preferred != "" {
		for _, d := range devices {
			if d.Name == preferred {
				return d, nil
			}
		}
		fmt.Printf("優先デバイス %q が見つかりません。一覧から選択してください\n", preferred)
	}

	if len(devices) == 1 {
		return devices[0], nil
	}
	return console.SelectDevice(devices)
}

// watchSignals はシグナル受信時にセッションのキャンセルを要求する
// キャンセル経由で止めることでデバイスの専有解除が必ず実行される
// 返すチャネルはシグナル受信時に閉じられ、カウントダウンの打ち切りに使える
func watchSignals(session *features.Session) <-chan struct{} {
	sigChan := make(chan os.Signal, 1)
	interrupted := make(chan struct{})
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		<-sigChan
		fmt.Println("\n中断します...")
		close(interrupted)
		session.Cancel()
	}()
	return interrupted
}

// printSummary は集計結果を表示する
func printSummary(summary features.Summary) {
	fmt.Printf("\nサンプル数: %d\n", summary.SampleCount)
	fmt.Printf("計測時間: %s\n", summary.Duration.Round(time.Millisecond))

	if summary.Interval == nil {
		fmt.Println("サンプル間隔の統計にはサンプルが2件以上必要です")
		return
	}

	iv := summary.Interval
	fmt.Printf("サンプル間隔 最小/最大/平均: %s / %s / %s\n", iv.Min, iv.Max, iv.Mean)
	fmt.Printf("間隔の標準偏差: %s\n", iv.StdDev)
	fmt.Printf("推定ポーリングレート: %.1f Hz\n", iv.Rate)
}
