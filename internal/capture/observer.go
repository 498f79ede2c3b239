package capture

import "depthcap/internal/depth"

// SampleObserver は最新の深度サンプルを SampleStore に保存する
type SampleObserver struct {
	Store *depth.SampleStore
}

// StateChanged は何もしない
func (SampleObserver) StateChanged(_, _ State) {}

// FrameNormalized はサンプルを保存する
func (o SampleObserver) FrameNormalized(sample depth.Sample) {
	o.Store.Put(sample)
}

// FrameDropped は何もしない
func (SampleObserver) FrameDropped(_ depth.Header, _ error) {}
