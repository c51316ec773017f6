package media

import "context"

// NoopAudioSplitter is the production-shaped AudioSplitter. Splitting
// audio/video into fixed-duration chunks needs an encoder (ffmpeg or
// similar); no such dependency exists anywhere in the pack, and "audio
// file splitting" is one of spec.md section 1's explicitly out-of-scope
// external collaborators, mirroring PDFRasterizer.RenderBatch's stub
// posture. Tests use FakeAudioSplitter instead.
type NoopAudioSplitter struct{}

// NewNoopAudioSplitter returns the stub AudioSplitter wired by
// cmd/docworker-worker when no real splitter is configured.
func NewNoopAudioSplitter() *NoopAudioSplitter {
	return &NoopAudioSplitter{}
}

var _ AudioSplitter = (*NoopAudioSplitter)(nil)

func (s *NoopAudioSplitter) Split(ctx context.Context, path string, chunkDurationSec int) ([]AudioChunk, error) {
	return nil, ErrNotImplemented
}
