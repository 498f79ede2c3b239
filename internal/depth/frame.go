package depth

import (
	"errors"
	"fmt"
	"math"
	"sync"
	"time"
)

// Header はフレームのメタデータ
type Header struct {
	Format      PixelFormat // ピクセルフォーマット
	Width       int         // 幅（ピクセル）
	Height      int         // 高さ（ピクセル）
	BytesPerRow int         // 1行あたりのバイト数（パディングを含む）
	Timestamp   time.Time   // キャプチャ時刻
}

// Frame は配信された深度フレーム
//
// Buffer は配信処理の間だけ有効。処理が終わったら Release を呼び、
// それ以降は参照を保持しない。
type Frame struct {
	Header
	Buffer Buffer

	// release はプラットフォームにバッファを返却する（nil 可）
	release func()
}

// NewFrame は新しいFrameを作成する
func NewFrame(h Header, buf Buffer, release func()) Frame {
	return Frame{Header: h, Buffer: buf, release: release}
}

// Release はバッファをプラットフォームに返却する
func (f Frame) Release() {
	if f.release != nil {
		f.release()
	}
}

// Buffer は深度バッファへのスコープ付きアクセスを提供する
type Buffer interface {
	// LockReadOnly は読み取り専用でバッファをロックし、その内容を返す
	LockReadOnly() ([]byte, error)
	// UnlockReadOnly は LockReadOnly のロックを解放する
	UnlockReadOnly()
}

// MemoryBuffer はメモリ上のバイト列によるBuffer実装
type MemoryBuffer struct {
	data    []byte
	mu      sync.Mutex
	locks   int
	lockErr error
}

// NewMemoryBuffer は新しいMemoryBufferを作成する
func NewMemoryBuffer(data []byte) *MemoryBuffer {
	return &MemoryBuffer{data: data}
}

// LockReadOnly はバッファをロックする
func (b *MemoryBuffer) LockReadOnly() ([]byte, error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.lockErr != nil {
		return nil, b.lockErr
	}
	b.locks++
	return b.data, nil
}

// UnlockReadOnly はロックを解放する
func (b *MemoryBuffer) UnlockReadOnly() {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.locks > 0 {
		b.locks--
	}
}

// Locked は現在のロック数を返す
func (b *MemoryBuffer) Locked() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.locks
}

// SetLockError はロック時に返すエラーを設定する（nil で解除）
func (b *MemoryBuffer) SetLockError(err error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.lockErr = err
}

// withReadAccess はバッファをロックしてfnを実行し、必ずアンロックする
func withReadAccess(buf Buffer, fn func(data []byte) error) error {
	if buf == nil {
		return fmt.Errorf("%w: バッファがありません", ErrBufferAccess)
	}

	data, err := buf.LockReadOnly()
	if err != nil {
		return errors.Join(ErrBufferAccess, err)
	}
	defer buf.UnlockReadOnly()

	return fn(data)
}

// validateShape はバッファに触れずにヘッダー単体の整合性を検証する
//
// 割り当てや添字計算の前に呼ぶこと。サイズの積が int に収まることも確認する。
func (h Header) validateShape() error {
	bpp := 0
	if h.Format != nil {
		bpp = h.Format.BytesPerPixel()
	}
	if bpp == 0 {
		return fmt.Errorf("%w: %s", ErrUnsupportedFormat, formatName(h.Format))
	}
	if h.Width <= 0 || h.Height <= 0 {
		return fmt.Errorf("%w: 無効なサイズ %dx%d", ErrMalformedFrame, h.Width, h.Height)
	}
	if h.Width > math.MaxInt/4 {
		return fmt.Errorf("%w: 幅 %d が大きすぎます", ErrMalformedFrame, h.Width)
	}
	if h.BytesPerRow < h.Width*bpp {
		return fmt.Errorf("%w: 行バイト数 %d が幅 %d に対して不足", ErrMalformedFrame, h.BytesPerRow, h.Width)
	}
	if h.Height > math.MaxInt/h.BytesPerRow {
		return fmt.Errorf("%w: 高さ %d が大きすぎます", ErrMalformedFrame, h.Height)
	}
	return nil
}

// validate はヘッダーとバッファ長の整合性を検証する
func (h Header) validate(dataLen int) error {
	if err := h.validateShape(); err != nil {
		return err
	}
	need := (h.Height-1)*h.BytesPerRow + h.Width*h.Format.BytesPerPixel()
	if dataLen < need {
		return fmt.Errorf("%w: バッファ長 %d < %d", ErrMalformedFrame, dataLen, need)
	}
	return nil
}
