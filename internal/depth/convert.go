package depth

import (
	"encoding/binary"
	"fmt"
	"math"

	"github.com/x448/float16"
)

// Convert はフレームを Depth32 表現に変換する
//
// Depth32 はそのまま返す。Disparity は逆数をとって深度にする（視差 0 は +Inf）。
// 変換後のフレームはパディングなし（BytesPerRow = Width*4）。
func Convert(f Frame) (Frame, error) {
	if err := f.Header.validateShape(); err != nil {
		return Frame{}, err
	}

	var decode func(b []byte) float32

	switch f.Format.(type) {
	case Depth32:
		return f, nil
	case Depth16:
		decode = func(b []byte) float32 {
			return half(b)
		}
	case Disparity16:
		decode = func(b []byte) float32 {
			return 1 / half(b)
		}
	case Disparity32:
		decode = func(b []byte) float32 {
			return 1 / single(b)
		}
	default:
		return Frame{}, fmt.Errorf("%w: %s", ErrUnsupportedFormat, formatName(f.Format))
	}

	out := Header{
		Format:      Depth32{},
		Width:       f.Width,
		Height:      f.Height,
		BytesPerRow: f.Width * 4,
		Timestamp:   f.Timestamp,
	}
	bpp := f.Format.BytesPerPixel()

	var dst []byte
	err := withReadAccess(f.Buffer, func(src []byte) error {
		if err := f.Header.validate(len(src)); err != nil {
			return err
		}
		dst = make([]byte, out.BytesPerRow*out.Height)
		for y := 0; y < f.Height; y++ {
			row := src[y*f.BytesPerRow:]
			for x := 0; x < f.Width; x++ {
				v := decode(row[x*bpp : x*bpp+bpp])
				binary.LittleEndian.PutUint32(dst[y*out.BytesPerRow+x*4:], math.Float32bits(v))
			}
		}
		return nil
	})
	if err != nil {
		return Frame{}, err
	}

	return Frame{Header: out, Buffer: NewMemoryBuffer(dst)}, nil
}

func half(b []byte) float32 {
	return float16.Frombits(binary.LittleEndian.Uint16(b)).Float32()
}

func single(b []byte) float32 {
	return math.Float32frombits(binary.LittleEndian.Uint32(b))
}

// EncodeDepth16 は深度値（m）を Depth16 のバイト列に書き込む
func EncodeDepth16(dst []byte, meters float32) {
	binary.LittleEndian.PutUint16(dst, float16.Fromfloat32(meters).Bits())
}

// EncodeDisparity16 は深度値（m）を Disparity16 のバイト列に書き込む
func EncodeDisparity16(dst []byte, meters float32) {
	binary.LittleEndian.PutUint16(dst, float16.Fromfloat32(1/meters).Bits())
}

// EncodeDepth32 は深度値（m）を Depth32 のバイト列に書き込む
func EncodeDepth32(dst []byte, meters float32) {
	binary.LittleEndian.PutUint32(dst, math.Float32bits(meters))
}

// EncodeDisparity32 は深度値（m）を Disparity32 のバイト列に書き込む
func EncodeDisparity32(dst []byte, meters float32) {
	binary.LittleEndian.PutUint32(dst, math.Float32bits(1/meters))
}

// Encode は指定フォーマットで深度値を書き込む
func Encode(format PixelFormat, dst []byte, meters float32) error {
	switch format.(type) {
	case Depth16:
		EncodeDepth16(dst, meters)
	case Depth32:
		EncodeDepth32(dst, meters)
	case Disparity16:
		EncodeDisparity16(dst, meters)
	case Disparity32:
		EncodeDisparity32(dst, meters)
	default:
		return fmt.Errorf("%w: %s", ErrUnsupportedFormat, formatName(format))
	}
	return nil
}
