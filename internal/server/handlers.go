package server

import (
	"bytes"
	"errors"
	"fmt"
	"image/jpeg"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"

	"photobooth/internal/camera"
	"photobooth/internal/composite"
	"photobooth/internal/layout"
	"photobooth/internal/logger"
	"photobooth/internal/session"
)

const (
	defaultShutdownTimeout = 5 * time.Second
	previewJPEGQuality     = 80
	wsWriteTimeout         = 5 * time.Second
	wsEventBuffer          = 32
)

// ErrorResponse はエラー時のレスポンス
type ErrorResponse struct {
	Error     string    `json:"error"`
	Message   string    `json:"message"`
	Timestamp time.Time `json:"timestamp"`
}

// SessionResponse はセッション開始のレスポンス
type SessionResponse struct {
	Started bool             `json:"started"`
	Session session.Snapshot `json:"session"`
}

// TemplateInfo はテンプレートの概要
type TemplateInfo struct {
	Name   string        `json:"name"`
	Width  int           `json:"width"`
	Height int           `json:"height"`
	Slots  []layout.Slot `json:"slots"`
	Active bool          `json:"active"`
}

// CompositeResponse はData URI形式の合成画像レスポンス
type CompositeResponse struct {
	Filename string `json:"filename"`
	MIMEType string `json:"mime_type"`
	Template string `json:"template"`
	Width    int    `json:"width"`
	Height   int    `json:"height"`
	DataURI  string `json:"data_uri"`
}

type selectTemplateRequest struct {
	Name string `json:"name" binding:"required"`
}

// setupRoutes はHTTPルートを設定する
func (s *Server) setupRoutes() {
	// ヘルスチェックエンドポイント
	s.engine.GET("/health", s.handleHealth)
	if s.deps.Metrics != nil {
		s.engine.GET("/metrics", gin.WrapH(s.deps.Metrics.Handler()))
	}

	api := s.engine.Group("/api")
	api.GET("/status", s.handleStatus)

	cam := api.Group("/camera")
	cam.GET("/devices", s.handleDevices)
	cam.POST("/start", s.handleCameraStart)
	cam.POST("/stop", s.handleCameraStop)
	cam.GET("/stream", s.handleCameraStream)

	sess := api.Group("/session")
	sess.GET("", s.handleSession)
	sess.POST("/start", s.handleSessionStart)
	sess.GET("/ws", s.handleSessionWebSocket)
	sess.GET("/composite", s.handleComposite)

	tpl := api.Group("/templates")
	tpl.GET("", s.handleTemplates)
	tpl.PUT("/active", s.handleSelectTemplate)
	tpl.POST("/next", s.handleNextTemplate)
}

// handleHealth はヘルスチェックエンドポイント
func (s *Server) handleHealth(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"status":    "healthy",
		"timestamp": time.Now(),
	})
}

// handleStatus はステータス確認エンドポイント
func (s *Server) handleStatus(c *gin.Context) {
	snap := s.deps.Controller.Snapshot()
	c.JSON(http.StatusOK, gin.H{
		"status": "running",
		"server": gin.H{
			"host": s.config.Server.Host,
			"port": s.config.Server.Port,
		},
		"camera": gin.H{
			"device": s.config.Camera.Device,
			"status": s.deps.Camera.Status(),
		},
		"session": gin.H{
			"id":     snap.ID,
			"status": snap.Status,
		},
		"template":  s.deps.Catalog.Active().Name,
		"timestamp": time.Now(),
	})
}

// handleDevices は接続されているカメラデバイスの一覧を返す
func (s *Server) handleDevices(c *gin.Context) {
	devices := []camera.DeviceInfo{}
	if s.deps.Discovery == nil {
		c.JSON(http.StatusOK, gin.H{"devices": devices})
		return
	}

	paths, err := s.deps.Discovery.ScanDevices(c.Request.Context())
	if err != nil {
		s.writeError(c, err)
		return
	}
	for _, path := range paths {
		info, err := s.deps.Discovery.GetDeviceInfo(c.Request.Context(), path)
		if err != nil {
			logger.Warn("デバイス情報の取得に失敗しました", "device", path, "error", err)
			continue
		}
		devices = append(devices, *info)
	}
	c.JSON(http.StatusOK, gin.H{"devices": devices})
}

// handleCameraStart はプレビュー用にカメラを起動する
func (s *Server) handleCameraStart(c *gin.Context) {
	if err := s.deps.Controller.StartCamera(c.Request.Context()); err != nil {
		s.writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"status": s.deps.Camera.Status()})
}

// handleCameraStop はカメラを停止する。セッション実行中は409
func (s *Server) handleCameraStop(c *gin.Context) {
	if err := s.deps.Controller.StopCamera(c.Request.Context()); err != nil {
		s.writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"status": s.deps.Camera.Status()})
}

// handleCameraStream はMJPEGでプレビューを配信する
func (s *Server) handleCameraStream(c *gin.Context) {
	if s.deps.Camera.Status() != camera.StatusActive {
		s.writeError(c, fmt.Errorf("%w: カメラがアクティブではありません", camera.ErrCameraUnavailable))
		return
	}
	src, err := s.deps.Camera.Start(c.Request.Context())
	if err != nil {
		s.writeError(c, err)
		return
	}

	s.streamMJPEG(c, src)
}

// streamMJPEG はMJPEGストリームを配信する
func (s *Server) streamMJPEG(c *gin.Context, src camera.Source) {
	// レスポンスヘッダーを設定
	c.Header("Content-Type", "multipart/x-mixed-replace; boundary=frame")
	c.Header("Cache-Control", "no-cache")
	c.Header("Connection", "keep-alive")
	c.Header("Access-Control-Allow-Origin", "*")

	writer := c.Writer
	fps := s.config.Camera.FPS
	if fps <= 0 {
		fps = 15
	}
	ticker := time.NewTicker(time.Second / time.Duration(fps))
	defer ticker.Stop()

	// クライアント切断を検知するためのコンテキスト
	clientGone := c.Request.Context().Done()

	for {
		select {
		case <-clientGone:
			return
		case <-s.ctx.Done():
			return
		case <-ticker.C:
			if s.deps.Camera.Status() != camera.StatusActive {
				return
			}
			frame, err := previewFrame(src)
			if err != nil {
				logger.Debug("プレビューフレームを取得できませんでした", "error", err)
				continue
			}

			if _, err := fmt.Fprintf(writer, "--frame\r\nContent-Type: image/jpeg\r\nContent-Length: %d\r\n\r\n", len(frame)); err != nil {
				return
			}
			if _, err := writer.Write(frame); err != nil {
				return
			}
			if _, err := writer.Write([]byte("\r\n")); err != nil {
				return
			}

			// バッファをフラッシュ
			writer.Flush()
		}
	}
}

// previewFrame はソースの最新フレームをJPEGで返す
func previewFrame(src camera.Source) ([]byte, error) {
	if js, ok := src.(camera.JPEGSource); ok {
		if data := js.LatestJPEG(); len(data) > 0 {
			return data, nil
		}
	}

	frame := src.CurrentFrame()
	if frame == nil {
		return nil, camera.ErrNoSignal
	}
	var buf bytes.Buffer
	if err := jpeg.Encode(&buf, frame, &jpeg.Options{Quality: previewJPEGQuality}); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

// handleSession は現在のセッション状態を返す
func (s *Server) handleSession(c *gin.Context) {
	c.JSON(http.StatusOK, s.deps.Controller.Snapshot())
}

// handleSessionStart はセッションを開始する。実行中なら200で無視したことを返す
func (s *Server) handleSessionStart(c *gin.Context) {
	started := s.deps.Controller.Start(s.ctx)
	status := http.StatusOK
	if started {
		status = http.StatusAccepted
	}
	c.JSON(status, SessionResponse{
		Started: started,
		Session: s.deps.Controller.Snapshot(),
	})
}

// handleSessionWebSocket はセッションのイベントをWebSocketで配信する
func (s *Server) handleSessionWebSocket(c *gin.Context) {
	conn, err := s.upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		logger.Warn("WebSocketへのアップグレードに失敗しました", "remote", c.Request.RemoteAddr, "error", err)
		return
	}
	defer conn.Close()

	events, unsubscribe := s.deps.Controller.Subscribe(wsEventBuffer)
	defer unsubscribe()

	logger.Debug("WebSocket接続を確立しました", "remote", c.Request.RemoteAddr)

	// 接続直後に現在の状態を送る
	initial := session.Event{
		Type:     session.EventTransition,
		Snapshot: s.deps.Controller.Snapshot(),
		Time:     time.Now(),
	}
	if err := writeEvent(conn, initial); err != nil {
		return
	}

	// 受信は切断検知のためだけに読み捨てる
	closed := make(chan struct{})
	go func() {
		defer close(closed)
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}()

	for {
		select {
		case <-closed:
			return
		case <-s.ctx.Done():
			_ = conn.WriteControl(websocket.CloseMessage,
				websocket.FormatCloseMessage(websocket.CloseGoingAway, "shutdown"),
				time.Now().Add(wsWriteTimeout))
			return
		case ev, ok := <-events:
			if !ok {
				return
			}
			if err := writeEvent(conn, ev); err != nil {
				logger.Debug("WebSocketへの送信に失敗しました", "error", err)
				return
			}
		}
	}
}

func writeEvent(conn *websocket.Conn, ev session.Event) error {
	if err := conn.SetWriteDeadline(time.Now().Add(wsWriteTimeout)); err != nil {
		return err
	}
	return conn.WriteJSON(ev)
}

// handleTemplates はテンプレートの一覧を返す
func (s *Server) handleTemplates(c *gin.Context) {
	active := s.deps.Catalog.Active().Name
	templates := s.deps.Catalog.Templates()

	infos := make([]TemplateInfo, 0, len(templates))
	for _, tpl := range templates {
		bounds := tpl.Bounds()
		infos = append(infos, TemplateInfo{
			Name:   tpl.Name,
			Width:  bounds.Dx(),
			Height: bounds.Dy(),
			Slots:  tpl.Slots,
			Active: tpl.Name == active,
		})
	}
	c.JSON(http.StatusOK, gin.H{"templates": infos, "active": active})
}

// handleSelectTemplate は名前でアクティブなテンプレートを切り替える
func (s *Server) handleSelectTemplate(c *gin.Context) {
	var req selectTemplateRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, ErrorResponse{
			Error:     "invalid_request",
			Message:   fmt.Sprintf("リクエストが不正です: %v", err),
			Timestamp: time.Now(),
		})
		return
	}

	tpl, err := s.deps.Catalog.Select(req.Name)
	if err != nil {
		s.writeError(c, err)
		return
	}
	logger.Info("テンプレートを切り替えました", "template", tpl.Name)
	c.JSON(http.StatusOK, gin.H{"active": tpl.Name})
}

// handleNextTemplate は次のテンプレートに切り替える
func (s *Server) handleNextTemplate(c *gin.Context) {
	tpl := s.deps.Catalog.Next()
	logger.Info("テンプレートを切り替えました", "template", tpl.Name)
	c.JSON(http.StatusOK, gin.H{"active": tpl.Name})
}

// handleComposite は完了したセッションの合成画像を返す
//
// format=datauri ならJSONでData URIを、それ以外は添付ファイルとして返す。
func (s *Server) handleComposite(c *gin.Context) {
	snap := s.deps.Controller.Snapshot()
	if !snap.Complete() {
		s.writeError(c, fmt.Errorf("%w: status=%s", session.ErrNotComplete, snap.Status))
		return
	}

	result, err := s.compose(snap)
	if err != nil {
		s.writeError(c, err)
		return
	}

	filename := result.Filename(snap.StartedAt)
	if c.Query("format") == "datauri" {
		c.JSON(http.StatusOK, CompositeResponse{
			Filename: filename,
			MIMEType: result.MIMEType,
			Template: result.Template,
			Width:    result.Image.Bounds().Dx(),
			Height:   result.Image.Bounds().Dy(),
			DataURI:  result.DataURI(),
		})
		return
	}

	c.Header("Content-Disposition", fmt.Sprintf(`attachment; filename="%s"`, filename))
	c.Data(http.StatusOK, result.MIMEType, result.Data)
}

// compose はアクティブなテンプレートで合成する。要求のたびに作り直す
func (s *Server) compose(snap session.Snapshot) (*composite.Result, error) {
	tpl := s.deps.Catalog.Active()

	start := time.Now()
	result, err := s.deps.Builder.Compose(tpl, snap.Stills)
	if s.deps.Metrics != nil {
		s.deps.Metrics.ObserveCompose(tpl.Name, time.Since(start), err)
	}
	if err != nil {
		return nil, fmt.Errorf("合成に失敗: %w", err)
	}

	logger.Info("合成画像を作成しました", "session", snap.ID, "template", tpl.Name, "bytes", len(result.Data))
	return result, nil
}

// writeError はエラーの種類に応じたステータスコードでErrorResponseを返す
func (s *Server) writeError(c *gin.Context, err error) {
	status, code := classifyError(err)
	if status >= http.StatusInternalServerError && status != http.StatusServiceUnavailable {
		logger.Error("リクエストの処理に失敗しました", "path", c.FullPath(), "error", err)
	}
	c.JSON(status, ErrorResponse{
		Error:     code,
		Message:   err.Error(),
		Timestamp: time.Now(),
	})
}

func classifyError(err error) (int, string) {
	switch {
	case errors.Is(err, session.ErrSessionRunning):
		return http.StatusConflict, "session_running"
	case errors.Is(err, session.ErrNotComplete), errors.Is(err, composite.ErrIncomplete):
		return http.StatusConflict, "session_not_complete"
	case errors.Is(err, camera.ErrCameraUnavailable), errors.Is(err, camera.ErrNoSignal):
		return http.StatusServiceUnavailable, "camera_unavailable"
	case errors.Is(err, layout.ErrTemplateNotFound):
		return http.StatusNotFound, "template_not_found"
	case errors.Is(err, layout.ErrInvalidSlot):
		return http.StatusBadRequest, "invalid_template"
	default:
		return http.StatusInternalServerError, "internal_error"
	}
}
