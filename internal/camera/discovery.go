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
	"sync"
	"time"
)

// CommandRunner は外部コマンドを実行して標準出力を返す
type CommandRunner func(ctx context.Context, name string, args ...string) ([]byte, error)

// execRunner は os/exec でコマンドを実行する
func execRunner(ctx context.Context, name string, args ...string) ([]byte, error) {
	return exec.CommandContext(ctx, name, args...).Output()
}

var (
	// depthFormats は深度を表すV4L2フォーマット
	depthFormats = map[string]bool{"Z16": true, "INVZ": true, "Y16": true}
	// colorFormats はカラー映像を表すV4L2フォーマット
	colorFormats = map[string]bool{"YUYV": true, "MJPG": true, "RGB3": true, "NV12": true}

	formatLine     = regexp.MustCompile(`\[\d+\]:\s*'([^']+)'`)
	resolutionLine = regexp.MustCompile(`Size:\s*Discrete\s*(\d+)x(\d+)`)
	deviceNumber   = regexp.MustCompile(`video(\d+)`)
)

// LinuxDiscovery はLinux環境でのカメラデバイス検出を実装する
//
// v4l2-ctl でフォーマット一覧を取得し、深度フォーマットを持つノードを
// 深度センサー、カラーフォーマットを持つノードを広角カメラとして扱う。
type LinuxDiscovery struct {
	pattern string
	run     CommandRunner
}

// NewLinuxDiscovery は新しいLinuxDiscoveryを作成する
func NewLinuxDiscovery() *LinuxDiscovery {
	return &LinuxDiscovery{pattern: "/dev/video*", run: execRunner}
}

// NewLinuxDiscoveryWithRunner はコマンド実行を差し替えたLinuxDiscoveryを作成する
func NewLinuxDiscoveryWithRunner(pattern string, run CommandRunner) *LinuxDiscovery {
	return &LinuxDiscovery{pattern: pattern, run: run}
}

// ScanDevices はシステム内の利用可能なカメラデバイスをスキャンする
func (d *LinuxDiscovery) ScanDevices(ctx context.Context) ([]DeviceDescriptor, error) {
	matches, err := filepath.Glob(d.pattern)
	if err != nil {
		return nil, fmt.Errorf("デバイスのスキャンに失敗: %w", err)
	}

	// デバイス番号でソート
	sort.Slice(matches, func(i, j int) bool {
		return extractDeviceNumber(matches[i]) < extractDeviceNumber(matches[j])
	})

	var devices []DeviceDescriptor
	for _, match := range matches {
		select {
		case <-ctx.Done():
			return devices, ctx.Err()
		default:
		}

		if !d.IsDeviceAvailable(ctx, match) {
			continue
		}

		desc, ok := d.describe(ctx, match)
		if !ok {
			continue
		}
		devices = append(devices, desc)
	}

	return devices, nil
}

// IsDeviceAvailable は指定されたデバイスが利用可能かチェックする
func (d *LinuxDiscovery) IsDeviceAvailable(_ context.Context, device string) bool {
	if _, err := os.Stat(device); os.IsNotExist(err) {
		return false
	}

	file, err := os.OpenFile(device, os.O_RDONLY, 0)
	if err != nil {
		return false
	}
	defer func() {
		_ = file.Close()
	}()

	return true
}

// describe はフォーマット一覧からデバイス情報を組み立てる
// メタデータ専用ノードなど、映像も深度も出さないノードは除外する
func (d *LinuxDiscovery) describe(ctx context.Context, device string) (DeviceDescriptor, bool) {
	output, err := d.run(ctx, "v4l2-ctl", "--device", device, "--list-formats-ext")
	if err != nil {
		return DeviceDescriptor{}, false
	}

	formats, resolutions := parseFormats(string(output))
	desc := DeviceDescriptor{
		ID:          device,
		Name:        d.deviceName(ctx, device),
		Device:      device,
		Position:    PositionUnspecified,
		Formats:     formats,
		Resolutions: resolutions,
	}
	for _, f := range formats {
		if depthFormats[f] {
			desc.SupportsDepth = true
		}
		if colorFormats[f] {
			desc.SupportsVideo = true
		}
	}

	switch {
	case desc.SupportsDepth:
		desc.Type = TypeTrueDepthCamera
	case desc.SupportsVideo:
		desc.Type = TypeWideAngleCamera
	default:
		return DeviceDescriptor{}, false
	}

	return desc, true
}

// deviceName は v4l2-ctl の "Card type" からカメラ名を取得する
func (d *LinuxDiscovery) deviceName(ctx context.Context, device string) string {
	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	output, err := d.run(ctx, "v4l2-ctl", "--device", device, "--info")
	if err == nil {
		for _, line := range strings.Split(string(output), "\n") {
			line = strings.TrimSpace(line)
			if !strings.HasPrefix(line, "Card type") {
				continue
			}
			parts := strings.SplitN(line, ":", 2)
			if len(parts) == 2 {
				if name := strings.TrimSpace(parts[1]); name != "" {
					return name
				}
			}
		}
	}

	// フォールバック: デバイス番号から生成
	return fmt.Sprintf("カメラ %d", extractDeviceNumber(device))
}

// parseFormats は --list-formats-ext の出力からフォーマットと解像度を抽出する
func parseFormats(output string) ([]string, []Resolution) {
	var formats []string
	var resolutions []Resolution
	seen := make(map[Resolution]bool)

	for _, line := range strings.Split(output, "\n") {
		if m := formatLine.FindStringSubmatch(line); m != nil {
			formats = append(formats, strings.TrimSpace(m[1]))
			continue
		}
		if m := resolutionLine.FindStringSubmatch(line); m != nil {
			w, _ := strconv.Atoi(m[1])
			h, _ := strconv.Atoi(m[2])
			r := Resolution{Width: w, Height: h}
			if !seen[r] {
				seen[r] = true
				resolutions = append(resolutions, r)
			}
		}
	}

	return formats, resolutions
}

// extractDeviceNumber はデバイスパスから番号を抽出する
func extractDeviceNumber(device string) int {
	matches := deviceNumber.FindStringSubmatch(device)
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
	mu      sync.Mutex
	devices []DeviceDescriptor
	err     error
	scans   int
}

// NewMockDiscovery は新しいMockDiscoveryを作成する
func NewMockDiscovery(devices ...DeviceDescriptor) *MockDiscovery {
	return &MockDiscovery{devices: devices}
}

// ScanDevices はモックデバイス一覧を返す
func (m *MockDiscovery) ScanDevices(_ context.Context) ([]DeviceDescriptor, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.scans++
	if m.err != nil {
		return nil, m.err
	}
	result := make([]DeviceDescriptor, len(m.devices))
	copy(result, m.devices)
	return result, nil
}

// AddDevice はテスト用にデバイスを追加する
func (m *MockDiscovery) AddDevice(d DeviceDescriptor) {
	m.mu.Lock()
	defer m.mu.Unlock()

	for _, existing := range m.devices {
		if existing.ID == d.ID {
			return
		}
	}
	m.devices = append(m.devices, d)
}

// SetError はスキャン時に返すエラーを設定する
func (m *MockDiscovery) SetError(err error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.err = err
}

// Scans はスキャンの回数を返す
func (m *MockDiscovery) Scans() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.scans
}
