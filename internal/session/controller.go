// Package session はフォトブースの撮影セッションを管理する
//
// Controllerは1台のブースにつき1つ作成し、カウントダウンと撮影を
// 決められた順序で進める状態機械を持つ。セッション状態の変更は
// シーケンスを実行する1本のゴルーチンだけが行う。
package session

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"

	"photobooth/internal/camera"
	"photobooth/internal/grabber"
	"photobooth/internal/logger"
)

// GrabFunc は映像ソースから静止画を切り出す関数
type GrabFunc func(src camera.Source, mirror bool) (grabber.Still, error)

// SleepFunc はctxがキャンセルされない限りdだけ待つ関数
type SleepFunc func(ctx context.Context, d time.Duration) error

// Option はControllerの任意設定
type Option func(*Controller)

// WithSleep は待ち時間の実装を差し替える
func WithSleep(sleep SleepFunc) Option {
	return func(c *Controller) { c.sleep = sleep }
}

// WithGrabber は静止画の切り出し処理を差し替える
func WithGrabber(grab GrabFunc) Option {
	return func(c *Controller) { c.grab = grab }
}

// WithObserver はシーケンスのゴルーチン上で同期的に呼ばれる通知先を設定する
func WithObserver(observer func(Event)) Option {
	return func(c *Controller) { c.observer = observer }
}

// WithRecorder は統計の記録先を設定する
func WithRecorder(recorder Recorder) Option {
	return func(c *Controller) { c.recorder = recorder }
}

// Controller は撮影セッションの状態機械
type Controller struct {
	config   Config
	camera   camera.Adapter
	grab     GrabFunc
	sleep    SleepFunc
	observer func(Event)
	recorder Recorder

	baseCtx context.Context
	cancel  context.CancelFunc
	wg      sync.WaitGroup

	mu      sync.RWMutex
	current Snapshot
	running bool
	closed  bool

	subMu   sync.Mutex
	subs    map[int]chan Event
	nextSub int
}

// NewController は新しいControllerを作成する
func NewController(cam camera.Adapter, cfg Config, opts ...Option) (*Controller, error) {
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("撮影設定が無効: %w", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	c := &Controller{
		config:   cfg,
		camera:   cam,
		grab:     grabber.Grab,
		sleep:    sleepContext,
		recorder: nopRecorder{},
		baseCtx:  ctx,
		cancel:   cancel,
		current: Snapshot{
			Status:    StatusIdle,
			ShotCount: cfg.ShotCount,
			Stills:    []grabber.Still{},
		},
		subs: make(map[int]chan Event),
	}
	for _, opt := range opts {
		opt(c)
	}
	if c.recorder == nil {
		c.recorder = nopRecorder{}
	}
	return c, nil
}

// Start は新しいセッションを開始する
//
// 実行中（IdleでもCompleteでもない）の場合は何もせずfalseを返す。
// ctxがキャンセルされるとセッションは破棄される。
func (c *Controller) Start(ctx context.Context) bool {
	c.mu.Lock()
	if c.closed || c.running {
		c.mu.Unlock()
		return false
	}
	c.running = true
	c.current = Snapshot{
		ID:        uuid.New().String(),
		Status:    StatusAwaitingCamera,
		ShotCount: c.config.ShotCount,
		Stills:    []grabber.Still{},
		StartedAt: time.Now(),
	}
	first := c.snapshotLocked()
	// Closeのwg.Waitより前に数えるためロック中に加算する
	c.wg.Add(1)
	c.mu.Unlock()

	loopCtx, cancel := context.WithCancel(c.baseCtx)
	stop := context.AfterFunc(ctx, cancel)

	go func() {
		defer c.wg.Done()
		defer cancel()
		defer stop()
		c.run(loopCtx, first)
	}()
	return true
}

// run は1セッション分のシーケンスを実行する
//
// 実行中フラグはCompleteへの遷移または破棄と同じロックの中で下ろす。
// そのため最後の通知を受けた側から次のStartを呼べる。
func (c *Controller) run(ctx context.Context, first Snapshot) {
	c.recorder.SessionStarted()
	logger.Info("セッションを開始しました", "session", first.ID, "shots", c.config.ShotCount)
	c.emit(EventTransition, first, false)

	src, err := c.camera.Start(ctx)
	if err != nil {
		c.abandon(err)
		return
	}

	var pending *grabber.Still
	for shot := 0; shot < c.config.ShotCount; shot++ {
		for tick := c.config.CountdownTicks; tick >= 1; tick-- {
			c.transition(StatusCounting, shot, tick, pending)
			pending = nil
			if err := c.sleep(ctx, c.config.TickInterval); err != nil {
				c.abandon(err)
				return
			}
		}

		c.transition(StatusCapturing, shot, 0, nil)
		still, err := c.grab(src, c.config.Mirror)
		if err != nil {
			c.abandon(fmt.Errorf("%d枚目の撮影に失敗: %w", shot+1, err))
			return
		}
		c.recorder.ShotCaptured()
		pending = &still

		c.flash(true)
		if err := c.sleep(ctx, c.config.FlashDuration); err != nil {
			c.abandon(err)
			return
		}
		c.flash(false)

		if shot+1 < c.config.ShotCount {
			if err := c.sleep(ctx, c.config.SettleDelay); err != nil {
				c.abandon(err)
				return
			}
		}
	}

	c.recorder.SessionCompleted(time.Since(first.StartedAt))
	logger.Info("セッションが完了しました", "session", first.ID, "stills", c.config.ShotCount)
	c.transition(StatusComplete, c.config.ShotCount-1, 0, pending)
}

// transition は状態を更新して通知する。stillがあれば同時に追加する
//
// 静止画の追加は次の状態への遷移と同時に行うため、
// stillsが撮影枚数に達するのはCompleteになった瞬間だけである。
func (c *Controller) transition(status Status, shot, tick int, still *grabber.Still) {
	c.mu.Lock()
	c.current.Status = status
	c.current.ShotIndex = shot
	c.current.Countdown = tick
	if still != nil {
		c.current.Stills = append(c.current.Stills, *still)
	}
	if status == StatusComplete {
		c.running = false
	}
	snap := c.snapshotLocked()
	c.mu.Unlock()

	logger.Debug("セッション状態が変わりました", "session", snap.ID, "status", snap.Status, "shot", shot, "countdown", tick)
	c.emit(EventTransition, snap, false)
}

// abandon はセッションを丸ごと破棄してIdleに戻す
func (c *Controller) abandon(reason error) {
	c.recorder.SessionFailed(reason.Error())

	c.mu.Lock()
	c.current.Status = StatusIdle
	c.current.ShotIndex = 0
	c.current.Countdown = 0
	c.current.Stills = []grabber.Still{}
	c.current.Error = reason.Error()
	c.running = false
	snap := c.snapshotLocked()
	c.mu.Unlock()

	logger.Warn("セッションを中断しました", "session", snap.ID, "error", reason)
	c.emit(EventTransition, snap, false)
}

func (c *Controller) flash(on bool) {
	c.emit(EventFlash, c.Snapshot(), on)
}

// emit は通知先と購読者にイベントを配る。購読者のバッファが一杯なら捨てる
func (c *Controller) emit(typ EventType, snap Snapshot, flash bool) {
	ev := Event{Type: typ, Snapshot: snap, Flash: flash, Time: time.Now()}

	if c.observer != nil {
		c.observer(ev)
	}

	c.subMu.Lock()
	defer c.subMu.Unlock()
	for id, ch := range c.subs {
		select {
		case ch <- ev:
		default:
			logger.Debug("購読者のバッファが一杯のためイベントを破棄しました", "subscriber", id, "type", typ)
		}
	}
}

// Subscribe はイベントを受け取るチャンネルと購読解除関数を返す
func (c *Controller) Subscribe(buffer int) (<-chan Event, func()) {
	ch := make(chan Event, buffer)

	c.subMu.Lock()
	id := c.nextSub
	c.nextSub++
	c.subs[id] = ch
	c.subMu.Unlock()

	unsubscribe := func() {
		c.subMu.Lock()
		defer c.subMu.Unlock()
		if sub, ok := c.subs[id]; ok {
			delete(c.subs, id)
			close(sub)
		}
	}
	return ch, unsubscribe
}

// Snapshot は現在のセッション状態のコピーを返す
func (c *Controller) Snapshot() Snapshot {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.snapshotLocked()
}

func (c *Controller) snapshotLocked() Snapshot {
	snap := c.current
	snap.Stills = make([]grabber.Still, len(c.current.Stills))
	copy(snap.Stills, c.current.Stills)
	return snap
}

// Stills は完了したセッションの静止画を撮影順で返す
func (c *Controller) Stills() ([]grabber.Still, error) {
	snap := c.Snapshot()
	if snap.Status != StatusComplete {
		return nil, fmt.Errorf("%w: status=%s", ErrNotComplete, snap.Status)
	}
	return snap.Stills, nil
}

// Running はセッションが実行中かを返す
func (c *Controller) Running() bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.running
}

// StartCamera はセッションを始めずにプレビュー用にカメラだけを開始する
func (c *Controller) StartCamera(ctx context.Context) error {
	if _, err := c.camera.Start(ctx); err != nil {
		return err
	}
	return nil
}

// StopCamera はカメラを停止する。セッション実行中は拒否する
func (c *Controller) StopCamera(ctx context.Context) error {
	if c.Running() {
		return ErrSessionRunning
	}
	return c.camera.Stop(ctx)
}

// CameraStatus はカメラの状態を返す
func (c *Controller) CameraStatus() camera.Status {
	return c.camera.Status()
}

// Close は実行中のシーケンスを破棄し、カメラを解放する
//
// ビューの破棄時に必ず呼ぶこと。セッションの状態に関係なくカメラを止める。
func (c *Controller) Close(ctx context.Context) error {
	c.mu.Lock()
	c.closed = true
	c.mu.Unlock()

	c.cancel()
	c.wg.Wait()

	c.subMu.Lock()
	for id, ch := range c.subs {
		delete(c.subs, id)
		close(ch)
	}
	c.subMu.Unlock()

	if err := c.camera.Stop(ctx); err != nil {
		return fmt.Errorf("カメラの停止に失敗: %w", err)
	}
	return nil
}

// sleepContext はctxのキャンセルを待ちながらdだけ待つ
func sleepContext(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}

	timer := time.NewTimer(d)
	defer timer.Stop()

	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
