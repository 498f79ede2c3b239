package depth

import "errors"

var (
	// ErrBufferAccess はバッファを読み取り用にロックできなかったことを示す
	ErrBufferAccess = errors.New("buffer access error")

	// ErrUnsupportedFormat は Depth32 に変換できないフォーマット
	ErrUnsupportedFormat = errors.New("unsupported pixel format")

	// ErrMalformedFrame はフレームのヘッダーとバッファが矛盾している
	ErrMalformedFrame = errors.New("malformed depth frame")

	// ErrSampleOutOfBounds はサンプル座標がフレーム外
	ErrSampleOutOfBounds = errors.New("sample point out of bounds")
)
