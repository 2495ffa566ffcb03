package camera

import (
	"bufio"
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/exec"
	"strconv"
	"strings"
)

var (
	jpegStart = []byte{0xFF, 0xD8}
	jpegEnd   = []byte{0xFF, 0xD9}
)

// V4L2Capturer はffmpegを使ってV4L2デバイスからMJPEGフレームを読み出す
type V4L2Capturer struct {
	devicePath string
	width      int
	height     int
	fps        int
}

// NewV4L2Capturer は新しいV4L2Capturerを作成する
func NewV4L2Capturer(devicePath string, width, height, fps int) *V4L2Capturer {
	return &V4L2Capturer{
		devicePath: devicePath,
		width:      width,
		height:     height,
		fps:        fps,
	}
}

// streamArgs はストリーミング用のffmpeg引数を返す
func (c *V4L2Capturer) streamArgs() []string {
	return []string{
		"-loglevel", "error",
		"-f", "v4l2",
		"-video_size", fmt.Sprintf("%dx%d", c.width, c.height),
		"-r", strconv.Itoa(c.fps),
		"-i", c.devicePath,
		"-f", "image2pipe",
		"-c:v", "mjpeg",
		"-q:v", "3",
		"-",
	}
}

// Stream はctxがキャンセルされるかffmpegが終了するまでフレームをonFrameに渡す
func (c *V4L2Capturer) Stream(ctx context.Context, onFrame func([]byte)) error {
	cmd := exec.CommandContext(ctx, "ffmpeg", c.streamArgs()...)

	stdout, err := cmd.StdoutPipe()
	if err != nil {
		return fmt.Errorf("stdoutパイプの作成に失敗: %w", err)
	}

	var stderr bytes.Buffer
	cmd.Stderr = &stderr

	if err := cmd.Start(); err != nil {
		return fmt.Errorf("ffmpegの起動に失敗: %w", err)
	}

	readErr := readFrames(stdout, onFrame)
	waitErr := cmd.Wait()

	if ctx.Err() != nil {
		return nil
	}
	if readErr != nil {
		return readErr
	}
	if waitErr != nil {
		return fmt.Errorf("ffmpegが異常終了: %w (stderr: %s)", waitErr, strings.TrimSpace(stderr.String()))
	}
	return nil
}

// readFrames はMJPEGバイト列をJPEGマーカーで分割してonFrameに渡す
func readFrames(r io.Reader, onFrame func([]byte)) error {
	reader := bufio.NewReaderSize(r, 1024*1024)
	buf := make([]byte, 256*1024)
	var pending []byte

	for {
		n, err := reader.Read(buf)
		if n > 0 {
			pending = append(pending, buf[:n]...)

			var frames [][]byte
			frames, pending = splitJPEGFrames(pending)
			for _, frame := range frames {
				onFrame(frame)
			}
		}
		if err != nil {
			if errors.Is(err, io.EOF) {
				return nil
			}
			return fmt.Errorf("フレーム読み取りエラー: %w", err)
		}
	}
}

// splitJPEGFrames は完全なJPEGフレームを切り出し、未完成の残りを返す
func splitJPEGFrames(data []byte) ([][]byte, []byte) {
	var frames [][]byte

	for {
		startIdx := bytes.Index(data, jpegStart)
		if startIdx == -1 {
			// 末尾の0xFFはマーカーの前半かもしれないので残す
			if len(data) > 0 && data[len(data)-1] == jpegStart[0] {
				return frames, []byte{jpegStart[0]}
			}
			return frames, nil
		}

		endIdx := bytes.Index(data[startIdx+2:], jpegEnd)
		if endIdx == -1 {
			// 開始マーカーより前のゴミは捨てる
			rest := make([]byte, len(data)-startIdx)
			copy(rest, data[startIdx:])
			return frames, rest
		}

		endIdx += startIdx + 2 + len(jpegEnd)
		frame := make([]byte, endIdx-startIdx)
		copy(frame, data[startIdx:endIdx])
		frames = append(frames, frame)

		data = data[endIdx:]
	}
}

// IsDeviceAvailable はデバイスを読み取りで開けるかチェックする
func (c *V4L2Capturer) IsDeviceAvailable() bool {
	file, err := os.OpenFile(c.devicePath, os.O_RDONLY, 0)
	if err != nil {
		return false
	}
	_ = file.Close()
	return true
}
