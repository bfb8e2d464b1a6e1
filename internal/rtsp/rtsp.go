package rtsp

import (
	"errors"
	"fmt"
	"net"
	"strconv"
	"strings"
	"time"

	"github.com/zcrtsp/zcrtsp/pkg/ffmpeg"
)

type Config struct {
	Port       int    `yaml:"port" json:"port"`
	MountPoint string `yaml:"mount_point" json:"mount_point"`
	Bitrate    int    `yaml:"bitrate" json:"bitrate"`
	Encoder    string `yaml:"encoder" json:"encoder"`
	Pipeline   string `yaml:"pipeline" json:"pipeline"`

	Listen        string        `yaml:"listen" json:"listen"`
	Username      string        `yaml:"username" json:"-"`
	Password      string        `yaml:"password" json:"-"`
	AcceptTimeout time.Duration `yaml:"accept_timeout" json:"accept_timeout"`
	Queue         int           `yaml:"queue" json:"queue,omitempty"`
	MDNS          bool          `yaml:"mdns" json:"mdns"`
	PacketSize    uint16        `yaml:"pkt_size" json:"pkt_size,omitempty"`
}

func DefaultConfig() Config {
	return Config{
		Port:          8554,
		MountPoint:    "/stream",
		Bitrate:       2000000,
		Encoder:       "libx264",
		AcceptTimeout: 2 * time.Second,
		PacketSize:    1500,
	}
}

// Template - pipeline from config or FFmpeg command for encoder
func (c *Config) Template() string {
	if c.Pipeline != "" {
		return c.Pipeline
	}
	return ffmpeg.NewArgs(c.Encoder).String()
}

func (c *Config) Address() string {
	return net.JoinHostPort(c.Listen, strconv.Itoa(c.Port))
}

func (c *Config) Validate() error {
	if c.Port < 0 || c.Port > 65535 {
		return fmt.Errorf("rtsp: wrong port: %d", c.Port)
	}
	if !strings.HasPrefix(c.MountPoint, "/") || len(c.MountPoint) < 2 {
		return fmt.Errorf("rtsp: wrong mount_point: %q", c.MountPoint)
	}
	if c.Bitrate <= 0 {
		return fmt.Errorf("rtsp: wrong bitrate: %d", c.Bitrate)
	}
	if !strings.Contains(c.Template(), "mysrc") {
		return errors.New("rtsp: pipeline without mysrc source")
	}
	if c.Queue < 0 {
		return fmt.Errorf("rtsp: wrong queue: %d", c.Queue)
	}
	if c.PacketSize != 0 && c.PacketSize < 128 {
		return fmt.Errorf("rtsp: wrong pkt_size: %d", c.PacketSize)
	}
	return nil
}
