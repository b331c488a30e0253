package provider

import (
	"context"
	"io"
	"sync"

	"github.com/agentoven/orchestrator/pkg/models"
)

// streamBuffer bounds how far a producer may run ahead of its consumer.
const streamBuffer = 16

// EmitFunc hands one message to the consumer. It blocks while the buffer
// is full and returns the context error once the stream is closed.
type EmitFunc func(models.Message) error

// Stream is a lazily produced, cancellable sequence of messages.
type Stream struct {
	ch     chan models.Message
	err    error
	cancel context.CancelFunc
	done   chan struct{}
	once   sync.Once
}

// NewStream starts produce in its own goroutine. The producer's return
// value is reported by Recv after every emitted message was received.
func NewStream(ctx context.Context, produce func(ctx context.Context, emit EmitFunc) error) *Stream {
	ctx, cancel := context.WithCancel(ctx)
	s := &Stream{
		ch:     make(chan models.Message, streamBuffer),
		cancel: cancel,
		done:   make(chan struct{}),
	}

	emit := func(m models.Message) error {
		select {
		case s.ch <- m:
			return nil
		case <-ctx.Done():
			return ctx.Err()
		}
	}

	go func() {
		defer close(s.done)
		defer close(s.ch)
		s.err = produce(ctx, emit)
	}()
	return s
}

// Failed returns a stream that yields no messages and ends with err.
func Failed(err error) *Stream {
	return NewStream(context.Background(), func(context.Context, EmitFunc) error {
		return err
	})
}

// Recv returns the next message, io.EOF when the producer finished
// cleanly, or the producer's error.
func (s *Stream) Recv() (models.Message, error) {
	m, ok := <-s.ch
	if ok {
		return m, nil
	}
	if s.err != nil {
		return models.Message{}, s.err
	}
	return models.Message{}, io.EOF
}

// Close cancels the producer and waits for it to exit.
func (s *Stream) Close() {
	s.once.Do(func() {
		s.cancel()
		for range s.ch {
		}
		<-s.done
	})
}

// Collect drains s. On error it returns the messages received before the
// failure together with the error.
func Collect(s *Stream) ([]models.Message, error) {
	defer s.Close()

	var out []models.Message
	for {
		m, err := s.Recv()
		if err == io.EOF {
			return out, nil
		}
		if err != nil {
			return out, err
		}
		out = append(out, m)
	}
}
