package transcribe

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"strings"
	"sync"

	api "github.com/deepgram/deepgram-go-sdk/v3/pkg/api/listen/v1/websocket/interfaces"
	interfaces "github.com/deepgram/deepgram-go-sdk/v3/pkg/client/interfaces"
	client "github.com/deepgram/deepgram-go-sdk/v3/pkg/client/listen"
)

// Stream is one live transcription run. Audio frames are written while
// the speaker is recording; Final stops the stream and returns
// everything heard. Close abandons the run without finalizing.
type Stream interface {
	io.Writer
	Final(ctx context.Context) (Transcript, error)
	Close()
}

// Options configure the live Deepgram connection.
type Options struct {
	APIKey     string
	Model      string
	Language   string
	SampleRate int
}

// DeepgramFactory opens one live Deepgram websocket per recording run.
type DeepgramFactory struct {
	opts   Options
	logger *slog.Logger
}

func NewDeepgramFactory(opts Options, logger *slog.Logger) *DeepgramFactory {
	if opts.Model == "" {
		opts.Model = "nova-2"
	}
	if opts.Language == "" {
		opts.Language = "en-US"
	}
	if opts.SampleRate <= 0 {
		opts.SampleRate = 16000
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &DeepgramFactory{opts: opts, logger: logger}
}

func (f *DeepgramFactory) NewStream(ctx context.Context) (Stream, error) {
	handler := &liveHandler{
		buffer: NewWordBuffer(),
		closed: make(chan struct{}),
		logger: f.logger,
	}

	cOptions := &interfaces.ClientOptions{EnableKeepAlive: true}
	tOptions := &interfaces.LiveTranscriptionOptions{
		Model:       f.opts.Model,
		Language:    f.opts.Language,
		Diarize:     true,
		Punctuate:   true,
		SmartFormat: true,
		Encoding:    "linear16",
		SampleRate:  f.opts.SampleRate,
		Channels:    1,
	}

	dgClient, err := client.NewWSUsingCallback(ctx, f.opts.APIKey, cOptions, tOptions, handler)
	if err != nil {
		return nil, fmt.Errorf("deepgram client: %w", err)
	}
	if ok := dgClient.Connect(); !ok {
		return nil, errors.New("deepgram connect failed")
	}

	return &liveStream{conn: dgClient, handler: handler}, nil
}

// liveConn is the slice of the Deepgram websocket client the stream uses.
type liveConn interface {
	io.Writer
	Stop()
}

type liveStream struct {
	conn    liveConn
	handler *liveHandler
	stop    sync.Once
}

func (s *liveStream) Write(p []byte) (int, error) {
	return s.conn.Write(p)
}

// Final flushes the stream and returns the accumulated transcript. On
// timeout it returns whatever arrived so far alongside the context
// error, so callers can proceed with a partial transcript.
func (s *liveStream) Final(ctx context.Context) (Transcript, error) {
	s.stop.Do(func() { go s.conn.Stop() })

	select {
	case <-s.handler.closed:
		return Transcript{Words: s.handler.buffer.Snapshot()}, nil
	case <-ctx.Done():
		return Transcript{Words: s.handler.buffer.Snapshot()}, fmt.Errorf("finalize transcript: %w", ctx.Err())
	}
}

func (s *liveStream) Close() {
	s.stop.Do(func() { go s.conn.Stop() })
}

// liveHandler receives Deepgram callback events and accumulates final
// words for the whole run.
type liveHandler struct {
	buffer *WordBuffer
	logger *slog.Logger
	closed chan struct{}
	once   sync.Once
}

func (h *liveHandler) Message(mr *api.MessageResponse) error {
	if len(mr.Channel.Alternatives) == 0 {
		return nil
	}

	alt := mr.Channel.Alternatives[0]
	if strings.TrimSpace(alt.Transcript) == "" {
		return nil
	}

	// Interim results only keep the connection lively; final words are
	// what the coaching pipeline consumes.
	if !mr.IsFinal {
		return nil
	}

	words := make([]Word, 0, len(alt.Words))
	for _, w := range alt.Words {
		speaker := 0
		if w.Speaker != nil {
			speaker = *w.Speaker
		}
		words = append(words, Word{
			Speaker: speaker,
			Text:    w.PunctuatedWord,
			Start:   w.Start,
			End:     w.End,
		})
	}
	h.buffer.AddWords(words)
	return nil
}

func (h *liveHandler) Open(*api.OpenResponse) error {
	h.logger.Debug("deepgram stream open")
	return nil
}

func (h *liveHandler) Metadata(*api.MetadataResponse) error { return nil }

func (h *liveHandler) SpeechStarted(*api.SpeechStartedResponse) error { return nil }

func (h *liveHandler) UtteranceEnd(*api.UtteranceEndResponse) error { return nil }

func (h *liveHandler) Close(*api.CloseResponse) error {
	h.once.Do(func() { close(h.closed) })
	return nil
}

func (h *liveHandler) Error(er *api.ErrorResponse) error {
	h.logger.Warn("deepgram stream error", "code", er.ErrCode, "description", er.Description)
	return nil
}

func (h *liveHandler) UnhandledEvent([]byte) error { return nil }
