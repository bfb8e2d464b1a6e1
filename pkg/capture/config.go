package capture

import (
	"errors"
	"fmt"

	"github.com/zcrtsp/zcrtsp/pkg/camera"
)

type VideoConfig struct {
	Width       int    `yaml:"width"`
	Height      int    `yaml:"height"`
	FPS         int    `yaml:"fps"`
	PixelFormat string `yaml:"pixel_format"`
	BufferCount int    `yaml:"buffer_count"`
	Device      string `yaml:"device"`
}

func DefaultVideoConfig() VideoConfig {
	return VideoConfig{
		Width:       1920,
		Height:      1080,
		FPS:         30,
		PixelFormat: string(camera.DefaultPixelFormat),
		BufferCount: 8,
	}
}

func (c *VideoConfig) Validate() error {
	if c.Width <= 0 || c.Height <= 0 {
		return fmt.Errorf("capture: wrong size: %dx%d", c.Width, c.Height)
	}
	if c.FPS <= 0 {
		return fmt.Errorf("capture: wrong fps: %d", c.FPS)
	}
	if c.BufferCount < 1 {
		return errors.New("capture: buffer_count should be positive")
	}
	return nil
}

// Format - parsed pixel format, false if value unknown and default was used
func (c *VideoConfig) Format() (camera.PixelFormat, bool) {
	format, err := camera.ParsePixelFormat(c.PixelFormat)
	if err != nil {
		return camera.DefaultPixelFormat, false
	}
	return format, true
}
