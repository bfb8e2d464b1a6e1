package mdns

import (
	"net"
	"strings"

	"github.com/hashicorp/mdns"
)

const ServiceRTSP = "_rtsp._tcp"

// NewService - zone for one RTSP endpoint, name is used as instance and host name
func NewService(name string, port int, ips []net.IP, txt []string) (*mdns.MDNSService, error) {
	if ips == nil || ips[0] == nil {
		ips = LocalIPs()
	}

	name = strings.ReplaceAll(name, ".", "-")

	// important to set hostName manually with `.local.` tail
	// important to set ips manually
	return mdns.NewMDNSService(
		name, ServiceRTSP, "", name+".local.", port, ips, txt,
	)
}

func NewServer(name string, port int, ips []net.IP, txt []string) (*mdns.Server, error) {
	service, err := NewService(name, port, ips, txt)
	if err != nil {
		return nil, err
	}

	return mdns.NewServer(&mdns.Config{Zone: service})
}

func LocalIPs() []net.IP {
	ifaces, err := net.Interfaces()
	if err != nil {
		return nil
	}

	var ips []net.IP
	for _, iface := range ifaces {
		if iface.Flags&net.FlagUp == 0 {
			continue // interface down
		}
		if iface.Flags&net.FlagLoopback != 0 {
			continue // loopback interface
		}

		var addrs []net.Addr
		if addrs, err = iface.Addrs(); err != nil {
			continue
		}
		for _, addr := range addrs {
			switch addr := addr.(type) {
			case *net.IPNet:
				ips = append(ips, addr.IP)
			case *net.IPAddr:
				ips = append(ips, addr.IP)
			}
		}
	}
	return ips
}
