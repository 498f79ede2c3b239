package depth

import (
	"encoding/binary"
	"fmt"
	"math"
	"time"
)

// Point はフレーム内の座標
type Point struct {
	X int `yaml:"x" json:"x"`
	Y int `yaml:"y" json:"y"`
}

// Sample は正規化された診断用サンプル
type Sample struct {
	Depth     float32     `json:"depth"`     // サンプル座標の深度 (m)
	Timestamp time.Time   `json:"timestamp"` // フレームのキャプチャ時刻
	Format    PixelFormat `json:"-"`         // 常に Depth32
	Point     Point       `json:"point"`
	Source    Header      `json:"-"` // 変換前のフレーム情報
}

// Normalizer はフレームを Depth32 に変換し、サンプル座標の値を取り出す
type Normalizer struct {
	point Point
}

// NewNormalizer は新しいNormalizerを作成する
func NewNormalizer(point Point) *Normalizer {
	return &Normalizer{point: point}
}

// Point はサンプル座標を返す
func (n *Normalizer) Point() Point {
	return n.point
}

// Normalize はフレームを正規化してサンプルを返す
//
// バッファをロックできない場合は ErrBufferAccess を返す。
// フレームは独立して処理されるので、失敗しても次のフレームには影響しない。
func (n *Normalizer) Normalize(f Frame) (Sample, error) {
	converted, err := Convert(f)
	if err != nil {
		return Sample{}, fmt.Errorf("Depth32への変換に失敗: %w", err)
	}

	p := n.point
	if p.X < 0 || p.Y < 0 || p.X >= converted.Width || p.Y >= converted.Height {
		return Sample{}, fmt.Errorf("%w: (%d,%d) not in %dx%d", ErrSampleOutOfBounds, p.X, p.Y, converted.Width, converted.Height)
	}

	var value float32
	err = withReadAccess(converted.Buffer, func(data []byte) error {
		if err := converted.Header.validate(len(data)); err != nil {
			return err
		}
		off := p.Y*converted.BytesPerRow + p.X*4
		value = math.Float32frombits(binary.LittleEndian.Uint32(data[off : off+4]))
		return nil
	})
	if err != nil {
		return Sample{}, err
	}

	return Sample{
		Depth:     value,
		Timestamp: f.Timestamp,
		Format:    Depth32{},
		Point:     p,
		Source:    f.Header,
	}, nil
}
