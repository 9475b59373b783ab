package aisdk

import (
	"context"
	"errors"
	"io"
	"sync"
)

// StreamInterface defines the interface for reading streaming responses.
type StreamInterface interface {
	// Read returns the next item, or io.EOF when the stream is exhausted.
	Read() (*StreamItem, error)
	Close() error
}

// StreamCallback is a function called for each item in a stream.
type StreamCallback func(item *StreamItem) error

// StreamToCallback reads a stream and calls the callback for each item.
func StreamToCallback(stream StreamInterface, callback StreamCallback) error {
	defer stream.Close()

	for {
		item, err := stream.Read()
		if err != nil {
			if errors.Is(err, io.EOF) {
				return nil
			}
			return err
		}
		if item == nil {
			return nil
		}
		if err := callback(item); err != nil {
			return err
		}
	}
}

// StreamResult represents a result from a streaming operation.
type StreamResult struct {
	Item  *StreamItem
	Error error
}

// ChannelStream adapts a producer goroutine to StreamInterface. Providers
// push items with Send and finish with Finish.
type ChannelStream struct {
	ch     chan StreamResult
	ctx    context.Context
	cancel context.CancelFunc
	once   sync.Once
}

// NewChannelStream creates a stream whose producer stops when Close is called.
func NewChannelStream(ctx context.Context, buffer int) *ChannelStream {
	ctx, cancel := context.WithCancel(ctx)
	return &ChannelStream{
		ch:     make(chan StreamResult, buffer),
		ctx:    ctx,
		cancel: cancel,
	}
}

// Context is cancelled once the consumer closes the stream.
func (s *ChannelStream) Context() context.Context {
	return s.ctx
}

// Send delivers an item to the consumer. It returns false once the stream is closed.
func (s *ChannelStream) Send(item *StreamItem) bool {
	select {
	case s.ch <- StreamResult{Item: item}:
		return true
	case <-s.ctx.Done():
		return false
	}
}

// Finish ends the stream, optionally with an error. It must be called exactly once by the producer.
func (s *ChannelStream) Finish(err error) {
	if err != nil {
		select {
		case s.ch <- StreamResult{Error: err}:
		case <-s.ctx.Done():
		}
	}
	close(s.ch)
}

// Read implements StreamInterface.
func (s *ChannelStream) Read() (*StreamItem, error) {
	select {
	case res, ok := <-s.ch:
		if !ok {
			return nil, io.EOF
		}
		if res.Error != nil {
			return nil, res.Error
		}
		return res.Item, nil
	case <-s.ctx.Done():
		return nil, s.ctx.Err()
	}
}

// Close implements StreamInterface.
func (s *ChannelStream) Close() error {
	s.once.Do(s.cancel)
	return nil
}

// SliceStream replays a fixed list of items. Useful for scripted models.
type SliceStream struct {
	items []StreamItem
	err   error
	pos   int
}

// NewSliceStream returns a stream that yields items and then err (or io.EOF when err is nil).
func NewSliceStream(err error, items ...StreamItem) *SliceStream {
	return &SliceStream{items: items, err: err}
}

// Read implements StreamInterface.
func (s *SliceStream) Read() (*StreamItem, error) {
	if s.pos >= len(s.items) {
		if s.err != nil {
			return nil, s.err
		}
		return nil, io.EOF
	}
	item := s.items[s.pos]
	s.pos++
	return &item, nil
}

// Close implements StreamInterface.
func (s *SliceStream) Close() error {
	return nil
}
