package camera

const VirtualID = "virtual"

// Open - empty device means first available capture device
func Open(device string) (Camera, error) {
	switch device {
	case "":
		return First()
	case VirtualID:
		return NewVirtual(), nil
	}
	return NewV4L2(device), nil
}
