package ingest

import (
	"context"
	"errors"
	"fmt"
	"sync/atomic"
	"syscall"
	"time"

	"github.com/fxamacker/cbor/v2"
	"github.com/pebbe/zmq4"
	"github.com/rs/zerolog/log"

	"tofmap-go/internal/logging"
	"tofmap-go/internal/metrics"
	"tofmap-go/internal/types"
)

const (
	TypeStart = "start"
	TypeChunk = "chunk"
	TypeEnd   = "end"

	// DefaultMaxSeriesBytes bounds one assembled series.
	DefaultMaxSeriesBytes = 1 << 30
	// DefaultMaxOpenSeries bounds series started but not yet ended. Starting
	// one more evicts the oldest.
	DefaultMaxOpenSeries = 16

	recvTimeout = 500 * time.Millisecond
)

var (
	ErrUnknownSeries = errors.New("ingest: message for unknown series")
	ErrSeriesTooBig  = errors.New("ingest: series exceeds size limit")
	ErrMessageType   = errors.New("ingest: unsupported message type")
)

var decodeFailures atomic.Uint64

// DecodeFailures returns the number of messages dropped since start.
func DecodeFailures() uint64 {
	return decodeFailures.Load()
}

// RawRecorder receives every message as received, before decoding.
type RawRecorder interface {
	Record(payload []byte) error
}

type Options struct {
	LogEvery       int
	MaxSeriesBytes int
	MaxOpenSeries  int
	Recorder       RawRecorder
}

// Message is the wire envelope. A series is a start message, any number of
// chunk messages carrying stream bytes in order, and an end message.
type Message struct {
	Type   string `cbor:"type"`
	Series string `cbor:"series"`
	Name   string `cbor:"name,omitempty"`
	Data   []byte `cbor:"data,omitempty"`
}

// Stream connects a PULL socket to endpoint and emits each completed series.
func Stream(ctx context.Context, endpoint string, opts Options) (<-chan types.Series, error) {
	socket, err := zmq4.NewSocket(zmq4.PULL)
	if err != nil {
		return nil, err
	}
	if err := socket.SetRcvtimeo(recvTimeout); err != nil {
		_ = socket.Close()
		return nil, err
	}
	if err := socket.Connect(endpoint); err != nil {
		_ = socket.Close()
		return nil, err
	}
	log.Info().Str("endpoint", endpoint).Msg("ingest connected")

	out := make(chan types.Series, 4)
	go func() {
		defer close(out)
		defer socket.Close()

		throttle := &logging.EveryN{N: opts.LogEvery}
		asm := newAssembler(opts.MaxSeriesBytes, opts.MaxOpenSeries)
		for {
			select {
			case <-ctx.Done():
				return
			default:
			}

			msg, err := socket.RecvBytes(0)
			if err != nil {
				if zmq4.AsErrno(err) == zmq4.Errno(syscall.EAGAIN) {
					continue
				}
				throttle.Log(func() { log.Warn().Err(err).Msg("ingest recv error") })
				continue
			}
			if opts.Recorder != nil {
				if err := opts.Recorder.Record(msg); err != nil {
					throttle.Log(func() { log.Warn().Err(err).Msg("raw log write failed") })
				}
			}

			series, done, err := asm.handle(msg)
			if err != nil {
				decodeFailures.Add(1)
				metrics.RecordIngestFailure()
				throttle.Log(func() { log.Warn().Err(err).Msg("ingest message skipped") })
				continue
			}
			if !done {
				continue
			}

			select {
			case <-ctx.Done():
				return
			case out <- series:
			}
		}
	}()

	return out, nil
}

func decodeMessage(payload []byte) (Message, error) {
	var msg Message
	if err := cbor.Unmarshal(payload, &msg); err != nil {
		return Message{}, fmt.Errorf("ingest CBOR decode: %w", err)
	}
	metrics.RecordIngestMessage(msg.Type)
	if msg.Series == "" {
		return Message{}, fmt.Errorf("ingest %q message without series", msg.Type)
	}
	return msg, nil
}

type partial struct {
	name string
	seq  uint64
	data []byte
}

// assembler joins chunk messages into series. It is owned by one goroutine.
type assembler struct {
	maxBytes int
	maxOpen  int
	seq      uint64
	open     map[string]*partial
}

func newAssembler(maxBytes, maxOpen int) *assembler {
	if maxBytes <= 0 {
		maxBytes = DefaultMaxSeriesBytes
	}
	if maxOpen <= 0 {
		maxOpen = DefaultMaxOpenSeries
	}
	return &assembler{
		maxBytes: maxBytes,
		maxOpen:  maxOpen,
		open:     make(map[string]*partial),
	}
}

// evictOldest drops the series that started first.
func (a *assembler) evictOldest() {
	var oldest string
	var seq uint64
	first := true
	for id, p := range a.open {
		if first || p.seq < seq {
			oldest, seq, first = id, p.seq, false
		}
	}
	if first {
		return
	}
	log.Warn().
		Str("series", oldest).
		Int("bytes", len(a.open[oldest].data)).
		Int("open", len(a.open)).
		Msg("too many open series; dropping oldest")
	delete(a.open, oldest)
	decodeFailures.Add(1)
	metrics.RecordIngestFailure()
}

// handle consumes one encoded message and returns the series it completes.
func (a *assembler) handle(payload []byte) (types.Series, bool, error) {
	msg, err := decodeMessage(payload)
	if err != nil {
		return types.Series{}, false, err
	}

	switch msg.Type {
	case TypeStart:
		if _, ok := a.open[msg.Series]; ok {
			log.Warn().Str("series", msg.Series).Msg("series restarted before end; dropping partial data")
			delete(a.open, msg.Series)
		}
		for len(a.open) >= a.maxOpen {
			a.evictOldest()
		}
		name := msg.Name
		if name == "" {
			name = msg.Series
		}
		a.seq++
		a.open[msg.Series] = &partial{name: name, seq: a.seq}
		return types.Series{}, false, nil
	case TypeChunk:
		p, ok := a.open[msg.Series]
		if !ok {
			return types.Series{}, false, fmt.Errorf("%w: chunk for %q", ErrUnknownSeries, msg.Series)
		}
		if len(p.data)+len(msg.Data) > a.maxBytes {
			delete(a.open, msg.Series)
			return types.Series{}, false, fmt.Errorf("%w: %q", ErrSeriesTooBig, msg.Series)
		}
		p.data = append(p.data, msg.Data...)
		return types.Series{}, false, nil
	case TypeEnd:
		p, ok := a.open[msg.Series]
		if !ok {
			return types.Series{}, false, fmt.Errorf("%w: end for %q", ErrUnknownSeries, msg.Series)
		}
		delete(a.open, msg.Series)
		return types.Series{ID: msg.Series, Name: p.name, Data: p.data}, true, nil
	default:
		return types.Series{}, false, fmt.Errorf("%w: %q", ErrMessageType, msg.Type)
	}
}

// Encode builds the wire messages for one series, splitting data into
// chunks of at most chunkSize bytes.
func Encode(series types.Series, chunkSize int) ([][]byte, error) {
	if chunkSize < 1 {
		chunkSize = 1 << 20
	}
	msgs := []Message{{Type: TypeStart, Series: series.ID, Name: series.Name}}
	for off := 0; off < len(series.Data); off += chunkSize {
		end := off + chunkSize
		if end > len(series.Data) {
			end = len(series.Data)
		}
		msgs = append(msgs, Message{Type: TypeChunk, Series: series.ID, Data: series.Data[off:end]})
	}
	msgs = append(msgs, Message{Type: TypeEnd, Series: series.ID})

	out := make([][]byte, 0, len(msgs))
	for _, m := range msgs {
		payload, err := cbor.Marshal(m)
		if err != nil {
			return nil, err
		}
		out = append(out, payload)
	}
	return out, nil
}

// Push sends series to a PUSH socket bound or connected at endpoint.
func Push(ctx context.Context, endpoint string, bind bool, series types.Series, chunkSize int) error {
	msgs, err := Encode(series, chunkSize)
	if err != nil {
		return err
	}
	socket, err := zmq4.NewSocket(zmq4.PUSH)
	if err != nil {
		return err
	}
	defer socket.Close()
	if bind {
		err = socket.Bind(endpoint)
	} else {
		err = socket.Connect(endpoint)
	}
	if err != nil {
		return err
	}
	for _, m := range msgs {
		if err := ctx.Err(); err != nil {
			return err
		}
		if _, err := socket.SendBytes(m, 0); err != nil {
			return err
		}
	}
	return nil
}
