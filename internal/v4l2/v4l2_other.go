//go:build !linux

package v4l2

import "github.com/zcrtsp/zcrtsp/pkg/camera"

func Sources() ([]*Source, error) {
	return nil, camera.ErrNoCamera
}
