package model

import (
	"context"
	"fmt"
)

// FakeClient is a deterministic in-memory Client for pipeline tests. It
// returns canned text keyed by a caller-supplied sequence; once no canned
// response remains it synthesizes "page text N" / "chunk text N", where N
// is the 1-based call count.
type FakeClient struct {
	OCRResponses      []string
	TranscribeResponses []string
	ocrCalls          int
	transcribeCalls   int
	Err               error
}

var _ Client = (*FakeClient)(nil)

func (f *FakeClient) OCRPage(ctx context.Context, image []byte, mimeType, prompt string) (string, error) {
	if f.Err != nil {
		return "", f.Err
	}
	idx := f.ocrCalls
	f.ocrCalls++
	if idx < len(f.OCRResponses) {
		return f.OCRResponses[idx], nil
	}
	return fmt.Sprintf("page text %d", idx+1), nil
}

func (f *FakeClient) TranscribeChunk(ctx context.Context, audio []byte, mimeType, prompt string) (string, error) {
	if f.Err != nil {
		return "", f.Err
	}
	idx := f.transcribeCalls
	f.transcribeCalls++
	if idx < len(f.TranscribeResponses) {
		return f.TranscribeResponses[idx], nil
	}
	return fmt.Sprintf("chunk text %d", idx+1), nil
}

func (f *FakeClient) Close() error { return nil }
