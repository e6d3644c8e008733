package transfer

import (
	"context"
	"encoding/binary"
	"errors"
	"io"
	"log/slog"
	"strconv"
	"time"
)

// File is an outbound file of known size.
type File struct {
	Name     string
	MimeType string
	Size     int64
	Reader   io.ReaderAt
}

// Sender streams files over a Channel, one at a time.
type Sender struct {
	channel Channel
	logger  *slog.Logger
	resume  chan struct{}
	buffer  []byte

	// OnProgress is called after every chunk handed to the channel.
	OnProgress func(Progress)
}

// NewSender arms the channel's buffered-amount-low callback; it must be the
// only user of that callback on ch.
func NewSender(ch Channel, logger *slog.Logger) *Sender {
	if logger == nil {
		logger = slog.Default()
	}

	s := &Sender{
		channel: ch,
		logger:  logger,
		resume:  make(chan struct{}, 1),
		buffer:  make([]byte, SeqSize+ChunkSize),
	}

	ch.SetBufferedAmountLowThreshold(LowWaterMark)
	ch.OnBufferedAmountLow(func() {
		select {
		case s.resume <- struct{}{}:
		default:
		}
	})
	return s
}

// Send writes name, mime type, size and checksum, then the chunks and the
// done marker. It blocks while the channel is above the high-water mark.
func (s *Sender) Send(ctx context.Context, f File) error {
	if f.Reader == nil || f.Size < 0 {
		return NewFileError("send", f.Name, ErrInvalidFile)
	}

	name := f.Name
	if name == "" {
		name = FallbackName
	}
	mimeType := f.MimeType
	if mimeType == "" {
		mimeType = FallbackMimeType
	}

	sum, err := Checksum(io.NewSectionReader(f.Reader, 0, f.Size))
	if err != nil {
		return NewFileError("checksum", name, err)
	}

	s.logger.Debug("sending metadata", "name", name, "type", mimeType, "size", f.Size, "checksum", sum)
	for _, field := range []string{name, mimeType, strconv.FormatInt(f.Size, 10), formatChecksum(sum)} {
		if err := s.channel.SendText(field); err != nil {
			return NewFileError("send metadata", name, err)
		}
	}

	progress := newProgress(f.Size)
	var seq uint32
	for offset := int64(0); offset < f.Size; seq++ {
		if err := s.waitForWindow(ctx); err != nil {
			return NewFileError("send", name, err)
		}

		n := int(min(int64(ChunkSize), f.Size-offset))
		chunk := s.buffer[:SeqSize+n]
		binary.BigEndian.PutUint32(chunk, seq)
		if read, err := f.Reader.ReadAt(chunk[SeqSize:], offset); read < n {
			if err == nil || errors.Is(err, io.EOF) {
				err = io.ErrUnexpectedEOF
			}
			return NewFileError("read", name, err)
		}

		if err := s.channel.Send(chunk); err != nil {
			return WrapError("send chunk", err, "seq "+strconv.FormatUint(uint64(seq), 10))
		}

		offset += int64(n)
		progress.set(offset)
		if s.OnProgress != nil {
			s.OnProgress(progress)
		}
	}

	if err := s.channel.SendText(DoneMarker); err != nil {
		return NewFileError("send done", name, err)
	}
	if f.Size == 0 {
		progress.set(0)
		if s.OnProgress != nil {
			s.OnProgress(progress)
		}
	}

	s.logger.Debug("file sent", "name", name, "chunks", seq)
	return nil
}

// waitForWindow blocks until the buffered amount is at most HighWaterMark.
func (s *Sender) waitForWindow(ctx context.Context) error {
	for s.channel.BufferedAmount() > HighWaterMark {
		select {
		case <-s.resume:
		case <-ctx.Done():
			return ctx.Err()
		}
	}
	return nil
}

// WaitForDrain waits until the channel has flushed everything it buffered,
// giving up after timeout.
func (s *Sender) WaitForDrain(ctx context.Context, timeout time.Duration) error {
	ticker := time.NewTicker(50 * time.Millisecond)
	defer ticker.Stop()

	deadline := time.After(timeout)
	for s.channel.BufferedAmount() > 0 {
		select {
		case <-ticker.C:
		case <-deadline:
			return ErrDrainTimeout
		case <-ctx.Done():
			return ctx.Err()
		}
	}
	return nil
}
