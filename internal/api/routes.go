package api

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"path/filepath"
	"time"

	"github.com/jonydevcode/mousetester/internal/config"
	"github.com/jonydevcode/mousetester/internal/features"
	"github.com/jonydevcode/mousetester/internal/plot"
)

// ルートの設定
func (s *Server) setupRoutes(router *http.ServeMux) {
	// 設定関連のエンドポイント
	router.HandleFunc("GET /api/config", s.handleGetConfig)
	router.HandleFunc("PUT /api/config", s.handleUpdateConfig)
	router.HandleFunc("POST /api/config/save", s.handleSaveConfig)

	// デバイス関連のエンドポイント
	router.HandleFunc("GET /api/devices", s.handleGetDevices)

	// セッション関連のエンドポイント
	router.HandleFunc("POST /api/session/start", s.handleStartSession)
	router.HandleFunc("POST /api/session/cancel", s.handleCancelSession)
	router.HandleFunc("GET /api/session/status", s.handleSessionStatus)
	router.HandleFunc("GET /api/session/result", s.handleSessionResult)

	// プロット表示
	router.HandleFunc("GET /plot", s.handlePlot)

	// ヘルスチェック用エンドポイント
	router.HandleFunc("GET /api/health", s.handleHealthCheck)
}

// 設定取得ハンドラ
func (s *Server) handleGetConfig(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, s.GetConfig())
}

// 設定更新ハンドラ
func (s *Server) handleUpdateConfig(w http.ResponseWriter, r *http.Request) {
	var newConfig config.Config

	if err := json.NewDecoder(r.Body).Decode(&newConfig); err != nil {
		writeError(w, http.StatusBadRequest, "設定の解析に失敗しました")
		return
	}

	s.UpdateConfig(&newConfig)
	writeJSON(w, http.StatusOK, map[string]string{"status": "success"})
}

// 設定保存ハンドラ
func (s *Server) handleSaveConfig(w http.ResponseWriter, r *http.Request) {
	var saveRequest struct {
		Path string `json:"path"`
	}

	if err := json.NewDecoder(r.Body).Decode(&saveRequest); err != nil {
		writeError(w, http.StatusBadRequest, "リクエストの解析に失敗しました")
		return
	}

	configPath := saveRequest.Path
	if configPath == "" {
		// デフォルトパスを使用
		userConfigDir, err := config.GetDefaultConfigDir()
		if err != nil {
			writeError(w, http.StatusInternalServerError, "デフォルト設定ディレクトリの取得に失敗しました")
			return
		}
		configPath = filepath.Join(userConfigDir, "config.toml")
	}

	if err := config.SaveConfig(configPath, s.GetConfig()); err != nil {
		writeError(w, http.StatusInternalServerError, "設定の保存に失敗しました: "+err.Error())
		return
	}

	writeJSON(w, http.StatusOK, map[string]string{
		"status": "success",
		"path":   configPath,
	})
}

// デバイス一覧取得ハンドラ
func (s *Server) handleGetDevices(w http.ResponseWriter, r *http.Request) {
	devices, err := s.service.Devices()
	if err != nil {
		writeError(w, http.StatusInternalServerError, "デバイス一覧の取得に失敗しました: "+err.Error())
		return
	}

	writeJSON(w, http.StatusOK, devices)
}

// セッション開始ハンドラ
func (s *Server) handleStartSession(w http.ResponseWriter, r *http.Request) {
	var request struct {
		DevicePath string `json:"device_path"`
		DurationMs int64  `json:"duration_ms"`
	}

	if err := json.NewDecoder(r.Body).Decode(&request); err != nil {
		writeError(w, http.StatusBadRequest, "リクエストの解析に失敗しました")
		return
	}

	duration := time.Duration(request.DurationMs) * time.Millisecond
	if err := s.service.Start(request.DevicePath, duration); err != nil {
		writeError(w, statusForError(err), fmt.Sprintf("セッションの開始に失敗しました: %v", err))
		return
	}

	writeJSON(w, http.StatusOK, map[string]string{"status": "started"})
}

// セッション停止ハンドラ
func (s *Server) handleCancelSession(w http.ResponseWriter, r *http.Request) {
	if err := s.service.Cancel(); err != nil {
		writeError(w, statusForError(err), fmt.Sprintf("セッションの停止に失敗しました: %v", err))
		return
	}

	writeJSON(w, http.StatusOK, map[string]string{"status": "cancelling"})
}

// セッション状態取得ハンドラ
func (s *Server) handleSessionStatus(w http.ResponseWriter, r *http.Request) {
	state, count := s.service.Status()
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"state":   state.String(),
		"samples": count,
	})
}

// セッション結果取得ハンドラ
func (s *Server) handleSessionResult(w http.ResponseWriter, r *http.Request) {
	result, ok := s.service.Result()
	if !ok {
		writeError(w, http.StatusNotFound, "完了したセッションがありません")
		return
	}

	writeJSON(w, http.StatusOK, newResultResponse(result))
}

// プロット表示ハンドラ
func (s *Server) handlePlot(w http.ResponseWriter, r *http.Request) {
	result, ok := s.service.Result()
	if !ok {
		writeError(w, http.StatusNotFound, "完了したセッションがありません")
		return
	}

	page, err := plot.Render(result.Samples, result.Summary)
	if err != nil {
		if errors.Is(err, plot.ErrInsufficientData) {
			writeError(w, http.StatusUnprocessableEntity, "プロットに必要なサンプル数がありません")
			return
		}
		writeError(w, http.StatusInternalServerError, "プロットの生成に失敗しました: "+err.Error())
		return
	}

	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(page)
}

// ヘルスチェックハンドラ
func (s *Server) handleHealthCheck(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// statusForError はエラー種別をHTTPステータスコードへ変換する
func statusForError(err error) int {
	switch {
	case errors.Is(err, features.ErrPermissionDenied):
		return http.StatusForbidden
	case errors.Is(err, features.ErrDeviceUnavailable):
		return http.StatusNotFound
	case errors.Is(err, features.ErrInvalidState):
		return http.StatusConflict
	default:
		return http.StatusInternalServerError
	}
}

// sampleResponse は1サンプル分のレスポンス表現
type sampleResponse struct {
	DX      int32  `json:"dx"`
	DY      int32  `json:"dy"`
	Buttons uint16 `json:"buttons"`
	TimeNs  int64  `json:"time_ns"`
}

// intervalResponse はサンプル間隔統計のレスポンス表現
type intervalResponse struct {
	MinNs    int64   `json:"min_ns"`
	MaxNs    int64   `json:"max_ns"`
	MeanNs   int64   `json:"mean_ns"`
	StdDevNs int64   `json:"stddev_ns"`
	RateHz   float64 `json:"rate_hz"`
}

// resultResponse はセッション結果のレスポンス表現
type resultResponse struct {
	Samples     []sampleResponse  `json:"samples"`
	SampleCount int               `json:"sample_count"`
	DurationNs  int64             `json:"duration_ns"`
	Interval    *intervalResponse `json:"interval,omitempty"`
	Error       string            `json:"error,omitempty"`
}

func newResultResponse(result *features.Result) resultResponse {
	response := resultResponse{
		Samples:     make([]sampleResponse, 0, len(result.Samples)),
		SampleCount: result.Summary.SampleCount,
		DurationNs:  int64(result.Summary.Duration),
	}
	for _, s := range result.Samples {
		response.Samples = append(response.Samples, sampleResponse{
			DX:      s.DX,
			DY:      s.DY,
			Buttons: s.Buttons,
			TimeNs:  int64(s.Time),
		})
	}
	if iv := result.Summary.Interval; iv != nil {
		response.Interval = &intervalResponse{
			MinNs:    int64(iv.Min),
			MaxNs:    int64(iv.Max),
			MeanNs:   int64(iv.Mean),
			StdDevNs: int64(iv.StdDev),
			RateHz:   iv.Rate,
		}
	}
	if result.Err != nil {
		response.Error = result.Err.Error()
	}
	return response
}
