package depth

import "fmt"

// PixelFormat は深度バッファのピクセルフォーマット
//
// Disparity16, Disparity32, Depth16, Depth32, Unknown の5種類に閉じている。
type PixelFormat interface {
	fmt.Stringer
	// BytesPerPixel は1ピクセルあたりのバイト数（Unknown は 0）
	BytesPerPixel() int
	pixelFormat()
}

// Disparity16 は半精度浮動小数点の視差 (1/m)
type Disparity16 struct{}

// Disparity32 は単精度浮動小数点の視差 (1/m)
type Disparity32 struct{}

// Depth16 は半精度浮動小数点の深度 (m)
type Depth16 struct{}

// Depth32 は単精度浮動小数点の深度 (m)。正規化後の標準表現
type Depth32 struct{}

// Unknown は解釈できないフォーマット
type Unknown struct{}

func (Disparity16) String() string { return "disparity16" }
func (Disparity32) String() string { return "disparity32" }
func (Depth16) String() string     { return "depth16" }
func (Depth32) String() string     { return "depth32" }
func (Unknown) String() string     { return "unknown" }

func (Disparity16) BytesPerPixel() int { return 2 }
func (Disparity32) BytesPerPixel() int { return 4 }
func (Depth16) BytesPerPixel() int     { return 2 }
func (Depth32) BytesPerPixel() int     { return 4 }
func (Unknown) BytesPerPixel() int     { return 0 }

func (Disparity16) pixelFormat() {}
func (Disparity32) pixelFormat() {}
func (Depth16) pixelFormat()     {}
func (Depth32) pixelFormat()     {}
func (Unknown) pixelFormat()     {}

// Formats は全フォーマットを列挙する
func Formats() []PixelFormat {
	return []PixelFormat{Disparity16{}, Disparity32{}, Depth16{}, Depth32{}, Unknown{}}
}

// ParseFormat は名前からフォーマットを解決する
// 解決できない名前は Unknown になる
func ParseFormat(name string) PixelFormat {
	for _, f := range Formats() {
		if f.String() == name {
			return f
		}
	}
	return Unknown{}
}

// formatName は nil を unknown として扱う
func formatName(f PixelFormat) string {
	if f == nil {
		return Unknown{}.String()
	}
	return f.String()
}
