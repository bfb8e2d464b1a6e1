package v4l2

import (
	"fmt"

	"github.com/zcrtsp/zcrtsp/pkg/camera"
	"github.com/zcrtsp/zcrtsp/pkg/v4l2/device"
)

// Source - one capture format of device, Format is empty if capture can't use it
type Source struct {
	Device string   `yaml:"device"`
	Card   string   `yaml:"card,omitempty"`
	FourCC string   `yaml:"fourcc"`
	Format string   `yaml:"pixel_format,omitempty"`
	Sizes  []string `yaml:"sizes,omitempty"`
}

func newSource(path, card string, fourCC uint32, sizes [][2]uint32) *Source {
	source := &Source{
		Device: path,
		Card:   card,
		FourCC: device.FourCC(fourCC),
	}

	for _, format := range camera.PixelFormats {
		if format.FourCC() == fourCC {
			source.Format = string(format)
			break
		}
	}

	for _, size := range sizes {
		source.Sizes = append(source.Sizes, fmt.Sprintf("%dx%d", size[0], size[1]))
	}

	return source
}
