package ui

import (
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/charmbracelet/bubbles/spinner"
)

// Spinner animates a status line for the phases before the live
// transfer view takes over.
type Spinner struct {
	frames   spinner.Spinner
	interval time.Duration
	done     chan struct{}
	exited   chan struct{}
	stopOnce sync.Once
	started  atomic.Bool

	mu      sync.Mutex
	message string
}

// NewConnectionSpinner is used while talking to the relay.
func NewConnectionSpinner(message string) *Spinner {
	return newSpinner(message, spinner.Globe, 180*time.Millisecond)
}

// NewWaitingSpinner is used while waiting on the other participant.
func NewWaitingSpinner(message string) *Spinner {
	return newSpinner(message, spinner.Points, 100*time.Millisecond)
}

func newSpinner(message string, frames spinner.Spinner, interval time.Duration) *Spinner {
	return &Spinner{
		frames:   frames,
		interval: interval,
		message:  message,
		done:     make(chan struct{}),
		exited:   make(chan struct{}),
	}
}

func (s *Spinner) Start() *Spinner {
	s.started.Store(true)
	go func() {
		defer close(s.exited)
		ticker := time.NewTicker(s.interval)
		defer ticker.Stop()

		for i := 0; ; i++ {
			s.mu.Lock()
			msg := s.message
			s.mu.Unlock()

			frame := SpinnerStyle.Render(s.frames.Frames[i%len(s.frames.Frames)])
			fmt.Printf("\r\033[K%s %s", frame, msg)

			select {
			case <-s.done:
				return
			case <-ticker.C:
			}
		}
	}()
	return s
}

func (s *Spinner) SetMessage(message string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.message = message
}

func (s *Spinner) Stop() {
	s.stopOnce.Do(func() {
		close(s.done)
		if s.started.Load() {
			<-s.exited
		}
		fmt.Print("\r\033[K")
	})
}

func (s *Spinner) Success(message string) {
	s.Stop()
	PrintSuccess(message)
}

func (s *Spinner) Error(message string) {
	s.Stop()
	PrintError(message)
}
