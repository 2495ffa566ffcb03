package session

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"photobooth/internal/camera"
	"photobooth/internal/grabber"
)

func instantSleep(ctx context.Context, _ time.Duration) error {
	return ctx.Err()
}

// blockingSleep はctxがキャンセルされるまで戻らない
func blockingSleep(ctx context.Context, _ time.Duration) error {
	<-ctx.Done()
	return ctx.Err()
}

type eventLog struct {
	mu     sync.Mutex
	events []Event
}

func (l *eventLog) observe(ev Event) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.events = append(l.events, ev)
}

func (l *eventLog) transitions() []Snapshot {
	l.mu.Lock()
	defer l.mu.Unlock()
	var snaps []Snapshot
	for _, ev := range l.events {
		if ev.Type == EventTransition {
			snaps = append(snaps, ev.Snapshot)
		}
	}
	return snaps
}

// waitForLast は最後に観測した遷移が指定の状態になるまで待つ
func (l *eventLog) waitForLast(t *testing.T, status Status) {
	t.Helper()
	require.Eventually(t, func() bool {
		snaps := l.transitions()
		return len(snaps) > 0 && snaps[len(snaps)-1].Status == status
	}, 2*time.Second, time.Millisecond)
}

func (l *eventLog) all() []Event {
	l.mu.Lock()
	defer l.mu.Unlock()
	return append([]Event(nil), l.events...)
}

type countingRecorder struct {
	mu        sync.Mutex
	started   int
	completed int
	failed    []string
	shots     int
}

func (r *countingRecorder) SessionStarted() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.started++
}

func (r *countingRecorder) SessionCompleted(time.Duration) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.completed++
}

func (r *countingRecorder) SessionFailed(reason string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.failed = append(r.failed, reason)
}

func (r *countingRecorder) ShotCaptured() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.shots++
}

func testConfig() Config {
	cfg := DefaultConfig()
	cfg.ShotCount = 4
	cfg.CountdownTicks = 3
	return cfg
}

func newTestController(t *testing.T, cam camera.Adapter, cfg Config, opts ...Option) *Controller {
	t.Helper()
	opts = append([]Option{WithSleep(instantSleep)}, opts...)
	c, err := NewController(cam, cfg, opts...)
	require.NoError(t, err)
	t.Cleanup(func() {
		_ = c.Close(context.Background())
	})
	return c
}

func waitForStatus(t *testing.T, c *Controller, status Status) Snapshot {
	t.Helper()
	require.Eventually(t, func() bool {
		return c.Snapshot().Status == status && !c.Running()
	}, 2*time.Second, time.Millisecond)
	return c.Snapshot()
}

func TestNewController(t *testing.T) {
	t.Parallel()

	testCases := []struct {
		name    string
		modify  func(*Config)
		wantErr bool
	}{
		{name: "デフォルト設定", modify: func(*Config) {}},
		{name: "撮影枚数0", modify: func(c *Config) { c.ShotCount = 0 }, wantErr: true},
		{name: "カウント0", modify: func(c *Config) { c.CountdownTicks = 0 }, wantErr: true},
		{name: "負の待ち時間", modify: func(c *Config) { c.SettleDelay = -time.Second }, wantErr: true},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()
			cfg := DefaultConfig()
			tc.modify(&cfg)
			c, err := NewController(camera.NewMockAdapter(64, 48), cfg)
			if tc.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			snap := c.Snapshot()
			assert.Equal(t, StatusIdle, snap.Status)
			assert.Empty(t, snap.Stills)
			assert.Zero(t, snap.Countdown)
		})
	}
}

func TestController_FullSequence(t *testing.T) {
	t.Parallel()

	log := &eventLog{}
	rec := &countingRecorder{}
	cam := camera.NewMockAdapter(64, 48)
	c := newTestController(t, cam, testConfig(), WithObserver(log.observe), WithRecorder(rec))

	require.True(t, c.Start(context.Background()))
	snap := waitForStatus(t, c, StatusComplete)
	log.waitForLast(t, StatusComplete)

	type step struct {
		status    Status
		shot      int
		countdown int
	}
	want := []step{{StatusAwaitingCamera, 0, 0}}
	for shot := 0; shot < 4; shot++ {
		for tick := 3; tick >= 1; tick-- {
			want = append(want, step{StatusCounting, shot, tick})
		}
		want = append(want, step{StatusCapturing, shot, 0})
	}
	want = append(want, step{StatusComplete, 3, 0})

	var got []step
	for _, s := range log.transitions() {
		got = append(got, step{s.Status, s.ShotIndex, s.Countdown})
	}
	assert.Equal(t, want, got)

	assert.Len(t, snap.Stills, 4)
	for _, still := range snap.Stills {
		assert.Equal(t, 64, still.Width)
		assert.Equal(t, 48, still.Height)
		assert.True(t, still.Mirrored)
	}

	stills, err := c.Stills()
	require.NoError(t, err)
	assert.Len(t, stills, 4)

	assert.Equal(t, 1, rec.started)
	assert.Equal(t, 1, rec.completed)
	assert.Equal(t, 4, rec.shots)
	assert.Empty(t, rec.failed)
	assert.Equal(t, 1, cam.Acquisitions())
}

func TestController_SnapshotInvariants(t *testing.T) {
	t.Parallel()

	log := &eventLog{}
	cfg := testConfig()
	c := newTestController(t, camera.NewMockAdapter(32, 24), cfg, WithObserver(log.observe))

	require.True(t, c.Start(context.Background()))
	waitForStatus(t, c, StatusComplete)
	log.waitForLast(t, StatusComplete)

	events := log.all()
	require.NotEmpty(t, events)
	for _, ev := range events {
		s := ev.Snapshot
		assert.Equal(t, s.Status == StatusComplete, len(s.Stills) == cfg.ShotCount, "status=%s stills=%d", s.Status, len(s.Stills))
		assert.Equal(t, s.Status == StatusCounting, s.Countdown > 0, "status=%s countdown=%d", s.Status, s.Countdown)
		if s.Status == StatusCounting || s.Status == StatusCapturing {
			assert.Len(t, s.Stills, s.ShotIndex, "撮影中の枚数は撮影済みのshot数と一致する")
		}
	}
}

func TestController_FlashEvents(t *testing.T) {
	t.Parallel()

	log := &eventLog{}
	c := newTestController(t, camera.NewMockAdapter(32, 24), testConfig(), WithObserver(log.observe))

	require.True(t, c.Start(context.Background()))
	waitForStatus(t, c, StatusComplete)
	log.waitForLast(t, StatusComplete)

	var flashes []bool
	for _, ev := range log.all() {
		if ev.Type == EventFlash {
			flashes = append(flashes, ev.Flash)
		}
	}
	assert.Equal(t, []bool{true, false, true, false, true, false, true, false}, flashes)
}

func TestController_GrabHappensAfterLastTick(t *testing.T) {
	t.Parallel()

	var c *Controller
	var mu sync.Mutex
	var seen []Snapshot
	grab := func(src camera.Source, mirror bool) (grabber.Still, error) {
		mu.Lock()
		seen = append(seen, c.Snapshot())
		mu.Unlock()
		return grabber.Grab(src, mirror)
	}

	c = newTestController(t, camera.NewMockAdapter(32, 24), testConfig(), WithGrabber(grab))
	require.True(t, c.Start(context.Background()))
	waitForStatus(t, c, StatusComplete)

	mu.Lock()
	defer mu.Unlock()
	require.Len(t, seen, 4)
	for i, s := range seen {
		assert.Equal(t, StatusCapturing, s.Status)
		assert.Equal(t, i, s.ShotIndex)
		assert.Zero(t, s.Countdown)
	}
}

func TestController_CameraUnavailable(t *testing.T) {
	t.Parallel()

	log := &eventLog{}
	rec := &countingRecorder{}
	cam := camera.NewMockAdapter(32, 24)
	cam.SetShouldFailStart(true, "デバイスがありません")
	c := newTestController(t, cam, testConfig(), WithObserver(log.observe), WithRecorder(rec))

	require.True(t, c.Start(context.Background()))
	snap := waitForStatus(t, c, StatusIdle)
	log.waitForLast(t, StatusIdle)

	var statuses []Status
	for _, s := range log.transitions() {
		statuses = append(statuses, s.Status)
	}
	assert.Equal(t, []Status{StatusAwaitingCamera, StatusIdle}, statuses)
	assert.Empty(t, snap.Stills)
	assert.NotEmpty(t, snap.Error)
	assert.Contains(t, snap.Error, "デバイスがありません")
	assert.Len(t, rec.failed, 1)

	_, err := c.Stills()
	assert.ErrorIs(t, err, ErrNotComplete)
}

func TestController_GrabFailureAbandonsSession(t *testing.T) {
	t.Parallel()

	calls := 0
	grab := func(src camera.Source, mirror bool) (grabber.Still, error) {
		calls++
		if calls == 3 {
			return grabber.Still{}, grabber.ErrNoSignal
		}
		return grabber.Grab(src, mirror)
	}

	c := newTestController(t, camera.NewMockAdapter(32, 24), testConfig(), WithGrabber(grab))
	require.True(t, c.Start(context.Background()))
	snap := waitForStatus(t, c, StatusIdle)

	assert.Equal(t, 3, calls)
	assert.Empty(t, snap.Stills)
	assert.Contains(t, snap.Error, "3枚目")
	assert.Zero(t, snap.Countdown)
}

func TestController_ReentrantStartIgnored(t *testing.T) {
	t.Parallel()

	gate := make(chan struct{})
	sleep := func(ctx context.Context, _ time.Duration) error {
		select {
		case <-gate:
			return nil
		case <-ctx.Done():
			return ctx.Err()
		}
	}

	log := &eventLog{}
	cam := camera.NewMockAdapter(32, 24)
	c := newTestController(t, cam, testConfig(), WithSleep(sleep), WithObserver(log.observe))

	require.True(t, c.Start(context.Background()))
	require.Eventually(t, func() bool {
		return c.Snapshot().Status == StatusCounting
	}, 2*time.Second, time.Millisecond)
	first := c.Snapshot().ID

	assert.False(t, c.Start(context.Background()))
	assert.False(t, c.Start(context.Background()))
	assert.Equal(t, first, c.Snapshot().ID)

	close(gate)
	snap := waitForStatus(t, c, StatusComplete)
	log.waitForLast(t, StatusComplete)
	assert.Equal(t, first, snap.ID)
	assert.Len(t, snap.Stills, 4)
	assert.Equal(t, 1, cam.Acquisitions())

	awaiting := 0
	for _, s := range log.transitions() {
		if s.Status == StatusAwaitingCamera {
			awaiting++
		}
	}
	assert.Equal(t, 1, awaiting)
}

func TestController_RestartAfterComplete(t *testing.T) {
	t.Parallel()

	cam := camera.NewMockAdapter(32, 24)
	c := newTestController(t, cam, testConfig())

	require.True(t, c.Start(context.Background()))
	first := waitForStatus(t, c, StatusComplete)

	require.True(t, c.Start(context.Background()))
	// 開始直後はstillsがリセットされている
	restarted := c.Snapshot()
	assert.NotEqual(t, first.ID, restarted.ID)
	assert.Less(t, len(restarted.Stills), 4)

	second := waitForStatus(t, c, StatusComplete)
	assert.Len(t, second.Stills, 4)
	assert.NotEqual(t, first.ID, second.ID)
	// カメラは起動済みのものを再利用する
	assert.Equal(t, 1, cam.Acquisitions())
}

func TestController_StartFromCompleteObserver(t *testing.T) {
	t.Parallel()

	var c *Controller
	var mu sync.Mutex
	var restarted []bool
	var firstID string
	observe := func(ev Event) {
		if ev.Type != EventTransition || ev.Snapshot.Status != StatusComplete {
			return
		}
		mu.Lock()
		defer mu.Unlock()
		if len(restarted) == 0 {
			firstID = ev.Snapshot.ID
			restarted = append(restarted, c.Start(context.Background()))
		}
	}

	cam := camera.NewMockAdapter(32, 24)
	c = newTestController(t, cam, testConfig(), WithObserver(observe))
	require.True(t, c.Start(context.Background()))

	require.Eventually(t, func() bool {
		mu.Lock()
		defer mu.Unlock()
		return len(restarted) == 1
	}, 2*time.Second, time.Millisecond)
	mu.Lock()
	assert.True(t, restarted[0], "Completeを受けた通知先から次のセッションを開始できる")
	first := firstID
	mu.Unlock()

	snap := waitForStatus(t, c, StatusComplete)
	assert.NotEqual(t, first, snap.ID)
	assert.Len(t, snap.Stills, 4)
}

func TestController_StartAfterCloseKeepsCameraReleased(t *testing.T) {
	t.Parallel()

	testCases := []struct {
		name     string
		parallel int
	}{
		{name: "単発", parallel: 1},
		{name: "同時に複数回", parallel: 16},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()

			cam := camera.NewMockAdapter(32, 24)
			c, err := NewController(cam, testConfig(), WithSleep(instantSleep))
			require.NoError(t, err)

			var wg sync.WaitGroup
			for i := 0; i < tc.parallel; i++ {
				wg.Add(1)
				go func() {
					defer wg.Done()
					c.Start(context.Background())
				}()
			}
			require.NoError(t, c.Close(context.Background()))
			wg.Wait()

			// Closeが戻った後はカメラが取得されたままにならない
			assert.Equal(t, cam.Acquisitions(), cam.Releases())
			assert.Equal(t, camera.StatusInactive, cam.Status())
			assert.False(t, c.Start(context.Background()))
			assert.False(t, c.Running())
		})
	}
}

func TestController_ContextCancelAbandons(t *testing.T) {
	t.Parallel()

	c := newTestController(t, camera.NewMockAdapter(32, 24), testConfig(), WithSleep(blockingSleep))

	ctx, cancel := context.WithCancel(context.Background())
	require.True(t, c.Start(ctx))
	require.Eventually(t, func() bool {
		return c.Snapshot().Status == StatusCounting
	}, 2*time.Second, time.Millisecond)

	cancel()
	snap := waitForStatus(t, c, StatusIdle)
	assert.Empty(t, snap.Stills)
	assert.NotEmpty(t, snap.Error)
}

func TestController_StopCameraWhileRunning(t *testing.T) {
	t.Parallel()

	cam := camera.NewMockAdapter(32, 24)
	c := newTestController(t, cam, testConfig(), WithSleep(blockingSleep))

	require.True(t, c.Start(context.Background()))
	require.Eventually(t, func() bool {
		return c.Snapshot().Status == StatusCounting
	}, 2*time.Second, time.Millisecond)

	err := c.StopCamera(context.Background())
	assert.True(t, errors.Is(err, ErrSessionRunning))
	assert.Equal(t, camera.StatusActive, c.CameraStatus())
}

func TestController_CloseReleasesCameraOnce(t *testing.T) {
	t.Parallel()

	testCases := []struct {
		name  string
		sleep SleepFunc
		wait  Status
	}{
		{name: "完了後に破棄", sleep: instantSleep, wait: StatusComplete},
		{name: "カウントダウン中に破棄", sleep: blockingSleep, wait: StatusCounting},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()

			cam := camera.NewMockAdapter(32, 24)
			c, err := NewController(cam, testConfig(), WithSleep(tc.sleep))
			require.NoError(t, err)

			require.True(t, c.Start(context.Background()))
			require.Eventually(t, func() bool {
				return c.Snapshot().Status == tc.wait
			}, 2*time.Second, time.Millisecond)

			require.NoError(t, c.Close(context.Background()))
			require.NoError(t, c.Close(context.Background()))
			require.NoError(t, c.StopCamera(context.Background()))

			assert.Equal(t, 1, cam.Acquisitions())
			assert.Equal(t, 1, cam.Releases())
			assert.Equal(t, camera.StatusInactive, cam.Status())
			assert.False(t, c.Running())
			assert.False(t, c.Start(context.Background()), "破棄後は開始できない")
		})
	}
}

func TestController_StartCameraForPreview(t *testing.T) {
	t.Parallel()

	cam := camera.NewMockAdapter(32, 24)
	c := newTestController(t, cam, testConfig())

	require.NoError(t, c.StartCamera(context.Background()))
	require.NoError(t, c.StartCamera(context.Background()))
	assert.Equal(t, camera.StatusActive, c.CameraStatus())
	assert.Equal(t, 1, cam.Acquisitions())

	require.NoError(t, c.StopCamera(context.Background()))
	assert.Equal(t, camera.StatusInactive, c.CameraStatus())
	assert.Equal(t, 1, cam.Releases())
	assert.Equal(t, StatusIdle, c.Snapshot().Status)
}

func TestController_Subscribe(t *testing.T) {
	t.Parallel()

	c := newTestController(t, camera.NewMockAdapter(32, 24), testConfig())

	events, unsubscribe := c.Subscribe(64)
	require.True(t, c.Start(context.Background()))

	var last Event
	timeout := time.After(2 * time.Second)
	for last.Snapshot.Status != StatusComplete {
		select {
		case ev := <-events:
			last = ev
		case <-timeout:
			t.Fatal("完了イベントを受信できませんでした")
		}
	}
	assert.Len(t, last.Snapshot.Stills, 4)

	unsubscribe()
	unsubscribe()
	_, ok := <-events
	assert.False(t, ok, "購読解除でチャンネルが閉じる")
}
