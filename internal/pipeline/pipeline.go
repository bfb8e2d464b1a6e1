// Package pipeline runs capture and publisher with one lifecycle:
// Created > Initialized > Running > Stopping > Stopped
package pipeline

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/rs/zerolog"
	"github.com/zcrtsp/zcrtsp/pkg/camera"
	"github.com/zcrtsp/zcrtsp/pkg/capture"
)

type State int32

const (
	StateCreated State = iota
	StateInitialized
	StateRunning
	StateStopping
	StateStopped

	// Created > Initialized in progress
	stateInitializing
)

func (s State) String() string {
	switch s {
	case StateCreated:
		return "created"
	case StateInitialized:
		return "initialized"
	case StateRunning:
		return "running"
	case StateStopping:
		return "stopping"
	case StateStopped:
		return "stopped"
	case stateInitializing:
		return "initializing"
	}
	return "unknown"
}

var ErrInvalidState = errors.New("pipeline: invalid state")

// Publisher - frames sink with own network endpoint
type Publisher interface {
	capture.Publisher

	Prepare(width, height, fps int, format camera.PixelFormat)
	Listen() error
	URL() string
	Fatal() <-chan error
	Close() error
}

type Pipeline struct {
	capture *capture.Capture
	pub     Publisher
	log     zerolog.Logger

	mu      sync.Mutex
	state   State
	done    chan struct{}
	stopped chan struct{}

	// Stop called during Initialize
	cancelled bool
}

func New(capture *capture.Capture, pub Publisher, log zerolog.Logger) *Pipeline {
	return &Pipeline{
		capture: capture,
		pub:     pub,
		log:     log,
		done:    make(chan struct{}),
		stopped: make(chan struct{}),
	}
}

func (p *Pipeline) State() State {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.state
}

// transit - change state if current state is from
func (p *Pipeline) transit(from, to State) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.state != from {
		return fmt.Errorf("%w: %s => %s, current %s", ErrInvalidState, from, to, p.state)
	}

	p.log.Debug().Msgf("[pipeline] %s => %s", from, to)
	p.state = to
	return nil
}

func (p *Pipeline) setState(state State) {
	p.mu.Lock()
	p.log.Debug().Msgf("[pipeline] %s => %s", p.state, state)
	p.state = state
	p.mu.Unlock()
}

// Initialize - acquire camera, map buffers and prepare publisher, no traffic
func (p *Pipeline) Initialize() error {
	if err := p.transit(StateCreated, stateInitializing); err != nil {
		return err
	}

	err := p.capture.Initialize()
	if err == nil {
		s := p.capture.Stream()
		p.pub.Prepare(s.Width, s.Height, s.FPS, s.PixelFormat)
	}

	p.mu.Lock()
	if err == nil && !p.cancelled {
		p.log.Debug().Msgf("[pipeline] %s => %s", p.state, StateInitialized)
		p.state = StateInitialized
		p.mu.Unlock()
		return nil
	}
	p.mu.Unlock()

	if err == nil {
		// stopped during initialize
		err = errors.Join(fmt.Errorf("%w: stopped during initialize", ErrInvalidState), p.capture.Close())
	}

	p.mu.Lock()
	p.state = StateStopped
	close(p.done)
	close(p.stopped)
	p.mu.Unlock()

	return err
}

// Start - publisher listen first, then capture
func (p *Pipeline) Start() error {
	if err := p.transit(StateInitialized, StateRunning); err != nil {
		return err
	}

	if err := p.pub.Listen(); err != nil {
		return errors.Join(err, p.Stop())
	}

	if err := p.capture.Start(p.pub); err != nil {
		return errors.Join(err, p.Stop())
	}

	p.log.Info().Str("url", p.pub.URL()).Msg("[pipeline] running")

	return nil
}

// Run - block until context cancelled, Stop called or fatal runtime error.
// Pipeline is stopped on return.
func (p *Pipeline) Run(ctx context.Context) error {
	if state := p.State(); state != StateRunning {
		return fmt.Errorf("%w: run in %s", ErrInvalidState, state)
	}

	var err error

	select {
	case <-ctx.Done():
		p.log.Debug().Msg("[pipeline] context done")
	case <-p.done:
	case err = <-p.capture.Fatal():
		p.log.Error().Err(err).Msg("[pipeline] capture failed")
	case err = <-p.pub.Fatal():
		p.log.Error().Err(err).Msg("[pipeline] publisher failed")
	}

	return errors.Join(err, p.Stop())
}

// Stop - stop capture with cancel of all requests, close publisher,
// then unmap buffers and release camera. Can be called many times,
// returns after pipeline stopped.
func (p *Pipeline) Stop() error {
	p.mu.Lock()
	state := p.state
	switch state {
	case StateStopping, StateStopped:
		p.mu.Unlock()
		<-p.stopped
		return nil
	case stateInitializing:
		// Initialize finishes the stop
		p.cancelled = true
		p.mu.Unlock()
		<-p.stopped
		return nil
	case StateCreated:
		p.state = StateStopped
		close(p.done)
		close(p.stopped)
		p.mu.Unlock()
		return nil
	}
	p.state = StateStopping
	close(p.done)
	p.mu.Unlock()

	p.log.Debug().Msgf("[pipeline] %s => %s", state, StateStopping)

	var errs []error

	if state == StateRunning {
		errs = append(errs, p.capture.Stop())

		stats := p.capture.Stats()
		p.log.Info().Msgf(
			"[pipeline] stop frames=%d delivered=%d dropped=%d failed=%d",
			stats.Completed, stats.Delivered, stats.Dropped, stats.Failed,
		)

		errs = append(errs, p.pub.Close())
	}

	errs = append(errs, p.capture.Close())

	p.setState(StateStopped)
	close(p.stopped)

	return errors.Join(errs...)
}
