package camera

import (
	"context"
	"errors"
	"fmt"

	"github.com/rs/zerolog"
)

// ErrNoDeviceFound は条件に合うデバイスがないことを示す
var ErrNoDeviceFound = errors.New("no camera device found")

// DefaultPreference はデフォルトのデバイス優先順位
var DefaultPreference = []DeviceType{TypeDualCamera, TypeWideAngleCamera, TypeUnspecified}

// Selector は優先順位に従ってデバイスを1台選ぶ
type Selector struct {
	discovery Discovery
	log       zerolog.Logger
}

// NewSelector は新しいSelectorを作成する
func NewSelector(discovery Discovery, logger zerolog.Logger) *Selector {
	return &Selector{discovery: discovery, log: logger}
}

// SelectDevice はメディアの種類と位置で絞り込んだデバイスから、
// 優先順位リストの先頭から順に最初に見つかったものを返す
//
// TypeUnspecified は任意の種類に一致する。見つからない場合は
// ErrNoDeviceFound を返す（リトライはしない）。
func (s *Selector) SelectDevice(ctx context.Context, preferred []DeviceType, kind MediaKind, position Position) (DeviceDescriptor, error) {
	devices, err := s.discovery.ScanDevices(ctx)
	if err != nil {
		return DeviceDescriptor{}, fmt.Errorf("デバイスのスキャンに失敗: %w", err)
	}

	candidates := make([]DeviceDescriptor, 0, len(devices))
	for _, d := range devices {
		if !d.Supports(kind) {
			continue
		}
		if position != "" && position != PositionUnspecified && d.Position != position {
			continue
		}
		candidates = append(candidates, d)
	}

	if len(candidates) == 0 {
		return DeviceDescriptor{}, fmt.Errorf("%w: kind=%s position=%s", ErrNoDeviceFound, kind, position)
	}

	if d, ok := Pick(candidates, preferred); ok {
		s.log.Info().
			Str("device", d.Device).
			Str("name", d.Name).
			Str("type", string(d.Type)).
			Msg("カメラデバイスを選択しました")
		return d, nil
	}

	return DeviceDescriptor{}, fmt.Errorf("%w: 優先順位 %v に一致するデバイスがありません", ErrNoDeviceFound, preferred)
}

// Pick は優先順位リストの先頭から順に、一致する最初のデバイスを返す
func Pick(devices []DeviceDescriptor, preferred []DeviceType) (DeviceDescriptor, bool) {
	for _, want := range preferred {
		for _, d := range devices {
			if want == TypeUnspecified || d.Type == want {
				return d, true
			}
		}
	}
	return DeviceDescriptor{}, false
}
