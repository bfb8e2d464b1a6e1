package v4l2

import (
	"github.com/zcrtsp/zcrtsp/pkg/camera"
	"github.com/zcrtsp/zcrtsp/pkg/v4l2/device"
)

// Sources - formats and discrete sizes of all capture devices
func Sources() ([]*Source, error) {
	paths, err := camera.Devices()
	if err != nil {
		return nil, err
	}

	var sources []*Source

	for _, path := range paths {
		dev, err := device.Open(path)
		if err != nil {
			continue
		}

		caps, err := dev.Capability()
		if err != nil || !caps.CanStream() {
			_ = dev.Close()
			continue
		}

		dev.SetMultiPlanar(caps.MultiPlanar())

		formats, _ := dev.ListFormats()
		for _, fourCC := range formats {
			sizes, _ := dev.ListSizes(fourCC)
			sources = append(sources, newSource(path, caps.Card, fourCC, sizes))
		}

		_ = dev.Close()
	}

	return sources, nil
}
