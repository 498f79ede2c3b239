package depth

import "sync"

// SampleStore は最新のサンプルを保持する
type SampleStore struct {
	mu     sync.RWMutex
	sample Sample
	ok     bool
}

// NewSampleStore は新しいSampleStoreを作成する
func NewSampleStore() *SampleStore {
	return &SampleStore{}
}

// Put は最新サンプルを更新する
func (s *SampleStore) Put(sample Sample) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.sample = sample
	s.ok = true
}

// Latest は最新サンプルを返す
func (s *SampleStore) Latest() (Sample, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.sample, s.ok
}
