//go:build !linux

package camera

const VirtualID = "virtual"

func Open(string) (Camera, error) {
	return nil, ErrNoCamera
}
