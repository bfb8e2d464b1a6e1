package capture

import (
	"errors"
	"fmt"

	"github.com/rs/zerolog"
	"github.com/zcrtsp/zcrtsp/pkg/camera"
)

// Capture - camera, its buffer pool and request cycle
type Capture struct {
	cfg VideoConfig
	log zerolog.Logger

	cam    camera.Camera
	stream camera.StreamConfig
	pool   *BufferPool
	cycle  *RequestCycle
}

func New(cfg VideoConfig, log zerolog.Logger) *Capture {
	return &Capture{cfg: cfg, log: log}
}

// Initialize - acquire camera, allocate and map buffers
func (c *Capture) Initialize() (err error) {
	if err = c.cfg.Validate(); err != nil {
		return err
	}

	format, ok := c.cfg.Format()
	if !ok {
		c.log.Warn().Msgf("[capture] unknown pixel_format=%q, use %s", c.cfg.PixelFormat, format)
	}
	if c.cfg.BufferCount < 3 {
		c.log.Warn().Msgf("[capture] buffer_count=%d, frames will be lost, use 3 or more", c.cfg.BufferCount)
	}

	if c.cam, err = camera.Open(c.cfg.Device); err != nil {
		return err
	}
	if err = c.cam.Acquire(); err != nil {
		return fmt.Errorf("capture: acquire %s: %w", c.cam.ID(), err)
	}

	defer func() {
		if err != nil {
			err = errors.Join(err, c.Close())
		}
	}()

	c.stream = camera.StreamConfig{
		Width:       c.cfg.Width,
		Height:      c.cfg.Height,
		PixelFormat: format,
		FPS:         c.cfg.FPS,
		BufferCount: c.cfg.BufferCount,
	}
	if err = c.cam.Configure(&c.stream); err != nil {
		return err
	}

	if c.stream.Width != c.cfg.Width || c.stream.Height != c.cfg.Height {
		c.log.Warn().Msgf(
			"[capture] device changed size %dx%d => %dx%d",
			c.cfg.Width, c.cfg.Height, c.stream.Width, c.stream.Height,
		)
	}

	if c.pool, err = Allocate(c.cam, c.cfg.BufferCount); err != nil {
		return err
	}
	if err = c.pool.MapAll(); err != nil {
		return err
	}

	c.log.Info().Msgf(
		"[capture] camera=%s size=%dx%d format=%s fps=%d buffers=%d",
		c.cam.ID(), c.stream.Width, c.stream.Height, format, c.stream.FPS, c.pool.Len(),
	)

	return nil
}

// Camera - nil before Initialize
func (c *Capture) Camera() camera.Camera {
	return c.cam
}

// Stream - final stream config after device adjustments
func (c *Capture) Stream() camera.StreamConfig {
	return c.stream
}

func (c *Capture) Pool() *BufferPool {
	return c.pool
}

func (c *Capture) Start(pub Publisher) error {
	if c.pool == nil {
		return ErrNotRunning
	}

	c.cycle = NewRequestCycle(c.cam, c.pool, pub, c.log)
	c.cycle.LogEvery = uint64(c.stream.FPS * 5)

	return c.cycle.Start()
}

// Stop - stop capture and wait all requests return
func (c *Capture) Stop() error {
	if c.cycle == nil {
		return nil
	}
	return c.cycle.Stop()
}

// Close - unmap and free buffers, release camera
func (c *Capture) Close() error {
	var errs []error
	if c.pool != nil {
		errs = append(errs, c.pool.Free())
		c.pool = nil
	}
	if c.cam != nil {
		errs = append(errs, c.cam.Release())
	}
	return errors.Join(errs...)
}

// Fatal - nil channel before Start
func (c *Capture) Fatal() <-chan error {
	if c.cycle == nil {
		return nil
	}
	return c.cycle.Fatal()
}

func (c *Capture) Stats() Stats {
	if c.cycle == nil {
		return Stats{}
	}
	return c.cycle.Stats()
}

func (c *Capture) Cycle() *RequestCycle {
	return c.cycle
}
