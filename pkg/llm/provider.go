package llm

import "context"

// Provider opens token streams against a model-serving endpoint.
// Implementations handle protocol-specific details such as request formatting,
// authentication, and transport.
type Provider interface {
	// Stream opens one upstream stream. The returned FrameStream yields raw
	// frames in arrival order until it is exhausted or fails.
	Stream(ctx context.Context, req Request) (FrameStream, error)
}

// FrameStream is an ongoing upstream stream.
type FrameStream interface {
	// Next advances to the next frame, returning false at the end of the
	// stream or on failure; Err distinguishes the two.
	Next() bool
	Frame() Frame
	Err() error
	Close() error
}

// Config holds common configuration for LLM providers.
type Config struct {
	BaseURL         string
	APIKey          string
	MaxOutputTokens int
	RetryAttempts   int
}

// SliceStream replays a fixed list of frames. It backs fakes and recorded
// sessions.
type SliceStream struct {
	frames []Frame
	pos    int
	err    error
	closed bool
}

// NewSliceStream returns a stream that yields frames and then err (nil for a
// clean end).
func NewSliceStream(frames []Frame, err error) *SliceStream {
	return &SliceStream{frames: frames, pos: -1, err: err}
}

func (s *SliceStream) Next() bool {
	if s.closed {
		return false
	}
	s.pos++
	return s.pos < len(s.frames)
}

func (s *SliceStream) Frame() Frame {
	if s.pos < 0 || s.pos >= len(s.frames) {
		return Frame{}
	}
	return s.frames[s.pos]
}

func (s *SliceStream) Err() error {
	if s.pos >= len(s.frames) {
		return s.err
	}
	return nil
}

func (s *SliceStream) Close() error {
	s.closed = true
	return nil
}
