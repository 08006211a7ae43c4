/*
Copyright © 2025 Acronis International GmbH.

Released under MIT license.
*/

package worker

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"sync"

	"go.uber.org/atomic"
)

// Channel is a bidirectional message transport between a dispatcher and a worker.
// Send and Receive may be called concurrently.
type Channel interface {
	// Send delivers the message to the other side.
	Send(ctx context.Context, msg *Message) error

	// Receive blocks until a message arrives, ctx is done or the channel is closed (ErrChannelClosed).
	Receive(ctx context.Context) (*Message, error)

	// Close releases the channel. Pending and subsequent Send and Receive calls fail with ErrChannelClosed.
	Close() error
}

const pipeBufferSize = 64

// pipeEnd is one side of an in-memory pipe. Messages cross it as encoded bytes, so the sides never share memory.
type pipeEnd struct {
	in   <-chan []byte
	out  chan<- []byte
	done chan struct{}
	once *sync.Once
}

// NewPipe creates a connected pair of in-memory channels: what is sent to one end is received from the other.
// Closing either end closes both.
func NewPipe() (Channel, Channel) {
	aToB := make(chan []byte, pipeBufferSize)
	bToA := make(chan []byte, pipeBufferSize)
	done := make(chan struct{})
	once := &sync.Once{}
	return &pipeEnd{in: bToA, out: aToB, done: done, once: once},
		&pipeEnd{in: aToB, out: bToA, done: done, once: once}
}

func (p *pipeEnd) Send(ctx context.Context, msg *Message) error {
	data, err := EncodeMessage(msg)
	if err != nil {
		return fmt.Errorf("encode message: %w", err)
	}
	select {
	case <-p.done:
		return ErrChannelClosed
	default:
	}
	select {
	case p.out <- data:
		return nil
	case <-p.done:
		return ErrChannelClosed
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (p *pipeEnd) Receive(ctx context.Context) (*Message, error) {
	select {
	case data := <-p.in:
		return DecodeMessage(data)
	case <-p.done:
		return nil, ErrChannelClosed
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

func (p *pipeEnd) Close() error {
	p.once.Do(func() { close(p.done) })
	return nil
}

// maxStreamMessageSize limits the size of a single newline-delimited message.
const maxStreamMessageSize = 16 * 1024 * 1024

type streamFrame struct {
	msg *Message
	err error
}

// StreamChannel transfers newline-delimited JSON messages over a byte stream (e.g. stdin/stdout of a process).
type StreamChannel struct {
	writeMu sync.Mutex
	w       io.Writer

	frames chan streamFrame
	done   chan struct{}
	closed atomic.Bool
	once   sync.Once
}

var _ Channel = (*StreamChannel)(nil)

// NewStreamChannel creates a StreamChannel reading messages from r and writing them to w.
// If w implements io.Closer, it is closed on Close.
func NewStreamChannel(r io.Reader, w io.Writer) *StreamChannel {
	c := &StreamChannel{
		w:      w,
		frames: make(chan streamFrame),
		done:   make(chan struct{}),
	}
	go c.readLoop(r)
	return c
}

func (c *StreamChannel) readLoop(r io.Reader) {
	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 0, 64*1024), maxStreamMessageSize)
	for scanner.Scan() {
		line := scanner.Bytes()
		if len(line) == 0 {
			continue
		}
		msg, err := DecodeMessage(line)
		if !c.deliver(streamFrame{msg: msg, err: err}) {
			return
		}
	}
	err := scanner.Err()
	if err == nil {
		err = io.EOF
	}
	c.deliver(streamFrame{err: err})
}

func (c *StreamChannel) deliver(f streamFrame) bool {
	select {
	case c.frames <- f:
		return true
	case <-c.done:
		return false
	}
}

// Send writes the message as a single JSON line.
func (c *StreamChannel) Send(ctx context.Context, msg *Message) error {
	if c.closed.Load() {
		return ErrChannelClosed
	}
	if err := ctx.Err(); err != nil {
		return err
	}
	data, err := EncodeMessage(msg)
	if err != nil {
		return fmt.Errorf("encode message: %w", err)
	}
	data = append(data, '\n')

	c.writeMu.Lock()
	defer c.writeMu.Unlock()
	if _, err = c.w.Write(data); err != nil {
		return fmt.Errorf("write message: %w", err)
	}
	return nil
}

// Receive returns the next message. A malformed line results in an error wrapping ErrMalformedMessage,
// the following lines are still readable. The end of the input stream results in ErrChannelClosed.
func (c *StreamChannel) Receive(ctx context.Context) (*Message, error) {
	if c.closed.Load() {
		return nil, ErrChannelClosed
	}
	select {
	case f, ok := <-c.frames:
		if !ok {
			return nil, ErrChannelClosed
		}
		if errors.Is(f.err, io.EOF) {
			c.markEOF()
			return nil, ErrChannelClosed
		}
		if f.err != nil && !errors.Is(f.err, ErrMalformedMessage) {
			c.markEOF()
			return nil, fmt.Errorf("read message: %w", f.err)
		}
		return f.msg, f.err
	case <-c.done:
		return nil, ErrChannelClosed
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

// markEOF makes subsequent Receive calls fail fast once the read loop has exited.
func (c *StreamChannel) markEOF() {
	c.once.Do(func() { close(c.done) })
}

// Close stops the channel and closes the underlying writer if it is closable.
func (c *StreamChannel) Close() error {
	if !c.closed.CompareAndSwap(false, true) {
		return nil
	}
	c.once.Do(func() { close(c.done) })
	if closer, ok := c.w.(io.Closer); ok {
		c.writeMu.Lock()
		defer c.writeMu.Unlock()
		return closer.Close()
	}
	return nil
}
