package transfer

import (
	"encoding/binary"
	"log/slog"
	"slices"
	"strconv"
	"sync"
	"time"
)

// State names the receiver's position in the metadata/chunk sequence.
type State int

const (
	AwaitingName State = iota
	AwaitingType
	AwaitingSize
	AwaitingChecksum
	ReceivingChunks
)

func (s State) String() string {
	switch s {
	case AwaitingName:
		return "awaiting-name"
	case AwaitingType:
		return "awaiting-type"
	case AwaitingSize:
		return "awaiting-size"
	case AwaitingChecksum:
		return "awaiting-checksum"
	case ReceivingChunks:
		return "receiving-chunks"
	}
	return "unknown"
}

// Metadata is declared once per transfer, before its chunks.
type Metadata struct {
	Name     string
	MimeType string
	Size     int64
	Checksum uint32
}

// ReceivedTransfer is a reassembled file. A checksum mismatch does not stop
// delivery; call Verify to find out.
type ReceivedTransfer struct {
	Name              string
	MimeType          string
	Size              int64
	Data              []byte
	DeclaredChecksum  uint32
	GeneratedChecksum uint32
	ReceivedAt        time.Time
}

// Verify reports ErrChecksumMismatch when the reassembled bytes do not hash
// to the declared checksum.
func (t *ReceivedTransfer) Verify() error {
	if t.DeclaredChecksum != t.GeneratedChecksum {
		return &TransferError{
			Op:      "verify",
			File:    t.Name,
			Err:     ErrChecksumMismatch,
			Details: "declared " + formatChecksum(t.DeclaredChecksum) + ", got " + formatChecksum(t.GeneratedChecksum),
		}
	}
	return nil
}

// record copies t without its bytes.
func (t *ReceivedTransfer) record() *ReceivedTransfer {
	rec := *t
	rec.Data = nil
	return &rec
}

// receiveState is one variant of the receive state machine. Each variant
// holds only what has been declared so far.
type receiveState interface {
	state() State
}

type awaitingName struct{}

type awaitingType struct {
	name string
}

type awaitingSize struct {
	name     string
	mimeType string
}

type awaitingChecksum struct {
	name     string
	mimeType string
	size     int64
}

type receivingChunks struct {
	meta   Metadata
	chunks map[uint32][]byte
	bytes  int64
}

func (awaitingName) state() State     { return AwaitingName }
func (awaitingType) state() State     { return AwaitingType }
func (awaitingSize) state() State     { return AwaitingSize }
func (awaitingChecksum) state() State { return AwaitingChecksum }
func (*receivingChunks) state() State { return ReceivingChunks }

// Receiver reassembles sequential transfers arriving on one channel.
type Receiver struct {
	mu        sync.Mutex
	current   receiveState
	progress  Progress
	completed []*ReceivedTransfer
	logger    *slog.Logger

	// OnStart is called, outside the lock, once a transfer's metadata is
	// complete and its chunks are about to arrive.
	OnStart func(Metadata)
	// OnComplete is called, outside the lock, for every finished transfer.
	OnComplete func(*ReceivedTransfer)
	// OnProgress is called, outside the lock, after every accepted chunk.
	OnProgress func(Progress)
}

func NewReceiver(logger *slog.Logger) *Receiver {
	if logger == nil {
		logger = slog.Default()
	}
	return &Receiver{current: awaitingName{}, logger: logger}
}

// Attach feeds every message of ch into the receiver.
func (r *Receiver) Attach(ch Channel) {
	ch.OnMessage(func(m Message) {
		if err := r.Handle(m); err != nil {
			r.logger.Warn("dropping transfer message", "error", err)
		}
	})
}

// Handle advances the state machine by one message. Out-of-order metadata
// aborts the transfer in flight and returns the receiver to AwaitingName;
// a chunk too short to carry a sequence number is dropped.
func (r *Receiver) Handle(m Message) error {
	r.mu.Lock()
	_, declaring := r.current.(awaitingChecksum)
	next, done, err := r.step(m)
	if err != nil && next == nil {
		r.current = awaitingName{}
		r.progress = Progress{}
	} else if next != nil {
		r.current = next
	}
	progress := r.progress
	r.mu.Unlock()

	if err != nil {
		return err
	}
	if s, ok := next.(*receivingChunks); ok && declaring && r.OnStart != nil {
		r.OnStart(s.meta)
	}
	if done != nil {
		if r.OnProgress != nil {
			r.OnProgress(progress)
		}
		if r.OnComplete != nil {
			r.OnComplete(done)
		}
		return nil
	}
	if _, chunk := next.(*receivingChunks); chunk && !m.IsString && r.OnProgress != nil {
		r.OnProgress(progress)
	}
	return nil
}

// step returns the next state. A nil state with an error means the
// transfer was aborted; a non-nil state with an error means the message
// was dropped.
func (r *Receiver) step(m Message) (receiveState, *ReceivedTransfer, error) {
	switch s := r.current.(type) {
	case awaitingName:
		if !m.IsString {
			return nil, nil, WrapError("receive", ErrUnexpectedMessage, "binary frame before metadata")
		}
		name := string(m.Data)
		if name == "" {
			name = FallbackName
		}
		return awaitingType{name: name}, nil, nil

	case awaitingType:
		if !m.IsString {
			return nil, nil, NewFileError("receive type", s.name, ErrUnexpectedMessage)
		}
		mimeType := string(m.Data)
		if mimeType == "" {
			mimeType = FallbackMimeType
		}
		return awaitingSize{name: s.name, mimeType: mimeType}, nil, nil

	case awaitingSize:
		if !m.IsString {
			return nil, nil, NewFileError("receive size", s.name, ErrUnexpectedMessage)
		}
		size, err := strconv.ParseInt(string(m.Data), 10, 64)
		if err != nil || size < 0 {
			return nil, nil, &TransferError{Op: "receive size", File: s.name, Err: ErrInvalidMetadata, Details: strconv.Quote(string(m.Data))}
		}
		r.progress = newProgress(size)
		return awaitingChecksum{name: s.name, mimeType: s.mimeType, size: size}, nil, nil

	case awaitingChecksum:
		if !m.IsString {
			return nil, nil, NewFileError("receive checksum", s.name, ErrUnexpectedMessage)
		}
		sum, err := parseChecksum(string(m.Data))
		if err != nil {
			return nil, nil, &TransferError{Op: "receive checksum", File: s.name, Err: ErrInvalidMetadata, Details: strconv.Quote(string(m.Data))}
		}
		return &receivingChunks{
			meta:   Metadata{Name: s.name, MimeType: s.mimeType, Size: s.size, Checksum: sum},
			chunks: make(map[uint32][]byte),
		}, nil, nil

	case *receivingChunks:
		if m.IsString {
			if string(m.Data) != DoneMarker {
				return nil, nil, NewFileError("receive chunk", s.meta.Name, ErrUnexpectedMessage)
			}
			done := s.finish()
			r.completed = append(r.completed, done.record())
			r.progress.set(s.bytes)
			r.logger.Debug("transfer complete", "name", done.Name, "size", done.Size, "checksum_ok", done.Verify() == nil)
			return awaitingName{}, done, nil
		}

		if len(m.Data) < SeqSize {
			return s, nil, NewFileError("receive chunk", s.meta.Name, ErrMalformedChunk)
		}
		seq := binary.BigEndian.Uint32(m.Data)
		payload := slices.Clone(m.Data[SeqSize:])
		if prev, ok := s.chunks[seq]; ok {
			s.bytes -= int64(len(prev))
		}
		s.chunks[seq] = payload
		s.bytes += int64(len(payload))
		r.progress.set(s.bytes)
		return s, nil, nil
	}
	return nil, nil, ErrUnexpectedMessage
}

// finish concatenates the chunks in sequence order and releases them.
func (s *receivingChunks) finish() *ReceivedTransfer {
	seqs := make([]uint32, 0, len(s.chunks))
	for seq := range s.chunks {
		seqs = append(seqs, seq)
	}
	slices.Sort(seqs)

	data := make([]byte, 0, s.bytes)
	for _, seq := range seqs {
		data = append(data, s.chunks[seq]...)
	}
	s.chunks = nil

	return &ReceivedTransfer{
		Name:              s.meta.Name,
		MimeType:          s.meta.MimeType,
		Size:              int64(len(data)),
		Data:              data,
		DeclaredChecksum:  s.meta.Checksum,
		GeneratedChecksum: ChecksumBytes(data),
		ReceivedAt:        time.Now(),
	}
}

// State returns the current state.
func (r *Receiver) State() State {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.current.state()
}

// Metadata returns what has been declared for the transfer in flight, once
// all four fields are known.
func (r *Receiver) Metadata() (Metadata, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if s, ok := r.current.(*receivingChunks); ok {
		return s.meta, true
	}
	return Metadata{}, false
}

// Progress returns the progress of the transfer in flight, or of the last
// completed one.
func (r *Receiver) Progress() Progress {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.progress
}

// Completed returns a record of every transfer finished so far, oldest
// first. Records keep metadata and both checksums but not the bytes, which
// are only handed to OnComplete.
func (r *Receiver) Completed() []*ReceivedTransfer {
	r.mu.Lock()
	defer r.mu.Unlock()
	return slices.Clone(r.completed)
}

// Reset drops any transfer in flight.
func (r *Receiver) Reset() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.current = awaitingName{}
	r.progress = Progress{}
}
