package transcribe

import "sync"

// WordBuffer accumulates words from is_final transcription messages for
// the duration of one recording run. The stream callback appends from its
// own goroutine while the owner snapshots, so access is guarded.
type WordBuffer struct {
	mu    sync.Mutex
	words []Word
}

// NewWordBuffer creates an empty word buffer.
func NewWordBuffer() *WordBuffer {
	return &WordBuffer{}
}

// AddWords appends words from an is_final message to the buffer.
func (b *WordBuffer) AddWords(words []Word) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.words = append(b.words, words...)
}

// Snapshot returns a copy of all accumulated words in arrival order.
func (b *WordBuffer) Snapshot() []Word {
	b.mu.Lock()
	defer b.mu.Unlock()
	if len(b.words) == 0 {
		return nil
	}
	out := make([]Word, len(b.words))
	copy(out, b.words)
	return out
}

// Len returns the number of words currently in the buffer.
func (b *WordBuffer) Len() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.words)
}
