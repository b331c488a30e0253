package session

import (
	"bytes"
	"strings"
	"sync"

	"github.com/rs/zerolog/log"
)

// stderrBuffer is a thread-safe ring buffer of the last N stderr lines of
// a CLI process. It implements io.Writer so it can be used as cmd.Stderr.
type stderrBuffer struct {
	mu       sync.Mutex
	lines    []string
	maxLines int
	partial  []byte
	pid      int
}

func newStderrBuffer(maxLines int) *stderrBuffer {
	return &stderrBuffer{
		lines:    make([]string, 0, maxLines),
		maxLines: maxLines,
	}
}

func (b *stderrBuffer) Write(p []byte) (int, error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.partial = append(b.partial, p...)
	for {
		i := bytes.IndexByte(b.partial, '\n')
		if i < 0 {
			break
		}
		b.appendLine(string(b.partial[:i]))
		b.partial = b.partial[i+1:]
	}
	return len(p), nil
}

func (b *stderrBuffer) appendLine(line string) {
	line = strings.TrimRight(line, "\r")
	if line == "" {
		return
	}
	if len(b.lines) >= b.maxLines {
		// Drop oldest line
		b.lines = b.lines[1:]
	}
	b.lines = append(b.lines, line)
	log.Debug().Int("pid", b.pid).Str("stream", "stderr").Msg(line)
}

func (b *stderrBuffer) setPID(pid int) {
	b.mu.Lock()
	b.pid = pid
	b.mu.Unlock()
}

// Tail returns the buffered lines joined by newlines, including any
// unterminated final line.
func (b *stderrBuffer) Tail() string {
	b.mu.Lock()
	defer b.mu.Unlock()

	lines := b.lines
	if len(b.partial) > 0 {
		lines = append(append([]string(nil), lines...), string(b.partial))
	}
	return strings.Join(lines, "\n")
}
