package net

import (
	"bufio"
	"bytes"
	"encoding/json"
	"io"
	"math"
	"sync"

	"github.com/mosaicnetworks/maelnode/src/message"
	"github.com/sirupsen/logrus"
)

const (
	bufSize = math.MaxUint16
)

/*
StreamTransport carries one JSON envelope per line over a pair of byte
streams, typically the process's stdin and stdout. There is no batching and no
length prefix: a newline terminates every envelope.

Reads happen on the goroutine running Listen. Writes may come from any number
of goroutines; each envelope is written and flushed as a whole so that lines
never interleave.
*/
type StreamTransport struct {
	logger *logrus.Entry

	r *bufio.Reader

	w         *bufio.Writer
	writeLock sync.Mutex

	consumeCh chan message.Envelope

	shutdown     bool
	shutdownCh   chan struct{}
	shutdownLock sync.Mutex
}

// NewStreamTransport creates a transport reading envelopes from r and
// writing them to w.
func NewStreamTransport(r io.Reader, w io.Writer, logger *logrus.Entry) *StreamTransport {
	if logger == nil {
		log := logrus.New()
		log.Level = logrus.DebugLevel
		logger = logrus.NewEntry(log)
	}

	return &StreamTransport{
		logger:     logger,
		r:          bufio.NewReaderSize(r, bufSize),
		w:          bufio.NewWriterSize(w, bufSize),
		consumeCh:  make(chan message.Envelope),
		shutdownCh: make(chan struct{}),
	}
}

// Consumer implements the Transport interface.
func (s *StreamTransport) Consumer() <-chan message.Envelope {
	return s.consumeCh
}

// IsShutdown is used to check if the transport is shutdown.
func (s *StreamTransport) IsShutdown() bool {
	select {
	case <-s.shutdownCh:
		return true
	default:
		return false
	}
}

// Listen implements the Transport interface. Lines that do not decode into an
// envelope are logged and skipped. The consumer channel is closed on EOF.
func (s *StreamTransport) Listen() {
	defer close(s.consumeCh)

	for {
		line, err := s.r.ReadBytes('\n')

		if len(bytes.TrimSpace(line)) > 0 {
			if !s.deliver(line) {
				return
			}
		}

		if err != nil {
			if err != io.EOF {
				s.logger.WithError(err).Error("Failed to read input")
			} else {
				s.logger.Debug("Input closed")
			}
			return
		}
	}
}

// deliver decodes one line and pushes it to the consumer. It returns false
// if the transport was shut down while waiting.
func (s *StreamTransport) deliver(line []byte) bool {
	s.logger.WithField("line", string(bytes.TrimSpace(line))).Debug("input")

	var env message.Envelope
	if err := json.Unmarshal(line, &env); err != nil {
		s.logger.WithError(err).Error("Failed to decode envelope")
		return true
	}
	if len(env.Body) == 0 {
		s.logger.WithField("src", env.Src).Error("Envelope without body")
		return true
	}

	select {
	case s.consumeCh <- env:
		return true
	case <-s.shutdownCh:
		return false
	}
}

// Send implements the Transport interface.
func (s *StreamTransport) Send(env message.Envelope) error {
	if s.IsShutdown() {
		return ErrTransportShutdown
	}

	data, err := json.Marshal(env)
	if err != nil {
		return err
	}

	s.writeLock.Lock()
	defer s.writeLock.Unlock()

	if _, err := s.w.Write(data); err != nil {
		return err
	}
	if err := s.w.WriteByte('\n'); err != nil {
		return err
	}
	if err := s.w.Flush(); err != nil {
		return err
	}

	s.logger.WithField("line", string(data)).Debug("output")

	return nil
}

// Close is used to stop the stream transport. It does not close the
// underlying streams, which belong to the caller.
func (s *StreamTransport) Close() error {
	s.shutdownLock.Lock()
	defer s.shutdownLock.Unlock()

	if !s.shutdown {
		close(s.shutdownCh)
		s.shutdown = true
	}
	return nil
}
