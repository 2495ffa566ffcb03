package camera

import (
	"context"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"regexp"
	"sort"
	"strconv"
	"strings"
	"time"
)

var (
	videoDevicePattern = regexp.MustCompile(`^/dev/video\d+$`)
	deviceNumberRegexp = regexp.MustCompile(`video(\d+)`)
)

// LinuxDiscovery はLinux環境でのカメラデバイス検出を実装する
type LinuxDiscovery struct {
	pattern string
}

// NewLinuxDiscovery は新しいLinuxDiscoveryを作成する
func NewLinuxDiscovery() Discovery {
	return &LinuxDiscovery{pattern: "/dev/video*"}
}

// ScanDevices はシステム内の利用可能なカメラデバイスを番号順に返す
func (d *LinuxDiscovery) ScanDevices(ctx context.Context) ([]string, error) {
	matches, err := filepath.Glob(d.pattern)
	if err != nil {
		return nil, fmt.Errorf("デバイスのスキャンに失敗: %w", err)
	}

	sort.Slice(matches, func(i, j int) bool {
		return extractDeviceNumber(matches[i]) < extractDeviceNumber(matches[j])
	})

	devices := make([]string, 0, len(matches))
	for _, match := range matches {
		select {
		case <-ctx.Done():
			return devices, ctx.Err()
		default:
		}

		if d.IsDeviceAvailable(ctx, match) && d.supportsColor(ctx, match) {
			devices = append(devices, match)
		}
	}

	return devices, nil
}

// IsDeviceAvailable は指定されたデバイスを読み取りで開けるかチェックする
func (d *LinuxDiscovery) IsDeviceAvailable(_ context.Context, device string) bool {
	if !videoDevicePattern.MatchString(device) {
		return false
	}

	file, err := os.OpenFile(device, os.O_RDONLY, 0)
	if err != nil {
		return false
	}
	_ = file.Close()
	return true
}

// GetDeviceInfo はv4l2-ctlからデバイスの詳細情報を取得する
func (d *LinuxDiscovery) GetDeviceInfo(ctx context.Context, device string) (*DeviceInfo, error) {
	if !d.IsDeviceAvailable(ctx, device) {
		return nil, fmt.Errorf("デバイスが利用できません: %s", device)
	}

	info := &DeviceInfo{
		Device: device,
		Name:   fmt.Sprintf("カメラ %d", extractDeviceNumber(device)),
	}

	output, err := v4l2Ctl(ctx, device, "--info")
	if err == nil {
		fields := parseV4L2Info(output)
		if name := fields["Card type"]; name != "" {
			info.Name = name
		}
		info.Driver = fields["Driver name"]
	}

	if formats, err := v4l2Ctl(ctx, device, "--list-formats"); err == nil {
		info.Formats = parseFormats(formats)
	}

	return info, nil
}

// supportsColor はYUYVかMJPGを出せるデバイスのみを対象にする（IRカメラ等を除外）
func (d *LinuxDiscovery) supportsColor(ctx context.Context, device string) bool {
	output, err := v4l2Ctl(ctx, device, "--list-formats")
	if err != nil {
		return false
	}
	return strings.Contains(output, "YUYV") || strings.Contains(output, "MJPG")
}

// v4l2Ctl はv4l2-ctlを5秒のタイムアウト付きで実行する
func v4l2Ctl(ctx context.Context, device string, args ...string) (string, error) {
	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	cmdArgs := append([]string{"--device", device}, args...)
	output, err := exec.CommandContext(ctx, "v4l2-ctl", cmdArgs...).Output()
	if err != nil {
		return "", err
	}
	return string(output), nil
}

// parseV4L2Info は "key : value" 形式の行をマップにする
func parseV4L2Info(output string) map[string]string {
	info := make(map[string]string)
	for _, line := range strings.Split(output, "\n") {
		parts := strings.SplitN(line, ":", 2)
		if len(parts) != 2 {
			continue
		}
		key := strings.TrimSpace(parts[0])
		value := strings.TrimSpace(parts[1])
		if key != "" && value != "" {
			info[key] = value
		}
	}
	return info
}

// parseFormats は --list-formats の出力から "'MJPG'" 形式のフォーマット名を抜き出す
func parseFormats(output string) []string {
	var formats []string
	for _, line := range strings.Split(output, "\n") {
		start := strings.Index(line, "'")
		if start == -1 {
			continue
		}
		end := strings.Index(line[start+1:], "'")
		if end == -1 {
			continue
		}
		formats = append(formats, line[start+1:start+1+end])
	}
	return formats
}

// extractDeviceNumber はデバイスパスから番号を抽出する
func extractDeviceNumber(device string) int {
	matches := deviceNumberRegexp.FindStringSubmatch(device)
	if len(matches) < 2 {
		return 0
	}

	num, err := strconv.Atoi(matches[1])
	if err != nil {
		return 0
	}
	return num
}

// MockDiscovery はテスト用のモックDiscovery実装
type MockDiscovery struct {
	devices []string
}

// NewMockDiscovery は新しいMockDiscoveryを作成する
func NewMockDiscovery(devices []string) *MockDiscovery {
	return &MockDiscovery{devices: devices}
}

// ScanDevices はモックデバイス一覧を返す
func (m *MockDiscovery) ScanDevices(_ context.Context) ([]string, error) {
	return m.devices, nil
}

// IsDeviceAvailable はモックデバイスが登録済みかチェックする
func (m *MockDiscovery) IsDeviceAvailable(_ context.Context, device string) bool {
	for _, d := range m.devices {
		if d == device {
			return true
		}
	}
	return false
}

// GetDeviceInfo はモックデバイス情報を返す
func (m *MockDiscovery) GetDeviceInfo(ctx context.Context, device string) (*DeviceInfo, error) {
	if !m.IsDeviceAvailable(ctx, device) {
		return nil, fmt.Errorf("デバイスが見つかりません: %s", device)
	}
	return &DeviceInfo{
		Device:  device,
		Name:    fmt.Sprintf("テストカメラ %d", extractDeviceNumber(device)),
		Driver:  "mock",
		Formats: []string{"MJPG"},
	}, nil
}
