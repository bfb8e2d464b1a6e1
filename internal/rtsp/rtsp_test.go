package rtsp

import (
	"bufio"
	"encoding/binary"
	"io"
	"net"
	"strconv"
	"sync"
	"testing"
	"time"

	"github.com/pion/rtp"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/require"
	"github.com/zcrtsp/zcrtsp/pkg/camera"
	"github.com/zcrtsp/zcrtsp/pkg/capture"
	"github.com/zcrtsp/zcrtsp/pkg/tcp"
)

// access unit with SPS, PPS and IDR slice
var keyframe = []byte("\x00\x00\x00\x01\x67\x64\x00\x28\x00\x00\x00\x01\x68\xEE\x3C\x80\x00\x00\x00\x01\x65\x88\x84\x21")

func testConfig() Config {
	cfg := DefaultConfig()
	cfg.Listen = "127.0.0.1"
	cfg.Port = 0
	// echo encoder, raw frames are already H264
	cfg.Pipeline = "sh -c cat {mysrc}"
	cfg.AcceptTimeout = time.Second
	return cfg
}

func newTestPublisher(t *testing.T, cfg Config) *Publisher {
	p, err := NewPublisher(cfg, zerolog.Nop())
	require.Nil(t, err)
	p.Prepare(320, 240, 25, camera.BGR888)
	return p
}

type client struct {
	t    *testing.T
	conn net.Conn
	rd   *bufio.Reader
	cseq int
}

func dial(t *testing.T, p *Publisher) *client {
	conn, err := net.Dial("tcp", p.ln.Addr().String())
	require.Nil(t, err)
	return &client{t: t, conn: conn, rd: bufio.NewReader(conn)}
}

func (c *client) request(method, path, header string) *tcp.Response {
	c.cseq++
	s := method + " rtsp://" + c.conn.RemoteAddr().String() + path + " RTSP/1.0\r\n" +
		"CSeq: " + strconv.Itoa(c.cseq) + "\r\n" + header + "\r\n"
	_, err := io.WriteString(c.conn, s)
	require.Nil(c.t, err)

	_ = c.conn.SetReadDeadline(time.Now().Add(10 * time.Second))
	res, err := tcp.ReadResponse(c.rd)
	require.Nil(c.t, err)
	return res
}

func (c *client) readRTP() (byte, *rtp.Packet) {
	b := make([]byte, 4)
	_, err := io.ReadFull(c.rd, b)
	require.Nil(c.t, err)
	require.Equal(c.t, byte('$'), b[0])

	payload := make([]byte, binary.BigEndian.Uint16(b[2:]))
	_, err = io.ReadFull(c.rd, payload)
	require.Nil(c.t, err)

	packet := &rtp.Packet{}
	require.Nil(c.t, packet.Unmarshal(payload))
	return b[1], packet
}

// feed - capture side emulation, frames are sent only when publisher ready
func feed(p *Publisher) (stop func()) {
	done := make(chan struct{})
	var wg sync.WaitGroup
	wg.Add(1)

	go func() {
		defer wg.Done()
		for i := uint32(0); ; i++ {
			select {
			case <-done:
				return
			case <-time.After(20 * time.Millisecond):
			}
			_ = capture.Deliver(p, capture.Frame{Data: keyframe, Sequence: i})
		}
	}()

	return func() {
		close(done)
		wg.Wait()
	}
}

func TestPublisher(t *testing.T) {
	p := newTestPublisher(t, testConfig())
	require.False(t, p.IsReady())
	require.Nil(t, p.Listen())
	defer p.Close()

	require.Contains(t, p.URL(), "/stream")

	stop := feed(p)
	defer stop()

	c := dial(t, p)
	defer c.conn.Close()

	res := c.request("OPTIONS", "/stream", "")
	require.Equal(t, 200, res.StatusCode)

	res = c.request("DESCRIBE", "/stream", "Accept: application/sdp\r\n")
	require.Equal(t, 200, res.StatusCode)
	require.Contains(t, string(res.Body), "a=rtpmap:96 H264/90000")
	require.Contains(t, string(res.Body), "sprop-parameter-sets=Z2QAKA==,aO48gA==")
	require.True(t, p.IsReady())

	res = c.request("SETUP", "/stream/trackID=0", "Transport: RTP/AVP/TCP;unicast;interleaved=0-1\r\n")
	require.Equal(t, 200, res.StatusCode)
	session := res.Header.Get("Session")
	require.NotEmpty(t, session)

	res = c.request("PLAY", "/stream", "Session: "+session+"\r\n")
	require.Equal(t, 200, res.StatusCode)

	channel, packet := c.readRTP()
	require.Equal(t, byte(0), channel)
	require.Equal(t, uint8(96), packet.PayloadType)

	// close last client stops encoder
	_ = c.conn.Close()
	require.Eventually(t, func() bool {
		return !p.IsReady()
	}, 5*time.Second, 10*time.Millisecond)
}

func TestUnknownMountPoint(t *testing.T) {
	p := newTestPublisher(t, testConfig())
	require.Nil(t, p.Listen())
	defer p.Close()

	c := dial(t, p)
	defer c.conn.Close()

	res := c.request("DESCRIBE", "/other", "")
	require.Equal(t, 404, res.StatusCode)
	require.False(t, p.IsReady())
}

func TestConfigureExpectedFormat(t *testing.T) {
	p := newTestPublisher(t, testConfig())

	require.Nil(t, p.ConfigureExpectedFormat(320, 240, 25, camera.BGR888))
	require.Nil(t, p.ConfigureExpectedFormat(320, 240, 25, camera.BGR888))
	require.ErrorIs(t, p.ConfigureExpectedFormat(640, 480, 25, camera.BGR888), ErrWrongCaps)
}

func TestAcceptWithoutEncoder(t *testing.T) {
	p := newTestPublisher(t, testConfig())

	err := p.Accept(capture.Frame{Data: keyframe})

	var flowErr *capture.FlowError
	require.ErrorAs(t, err, &flowErr)
	require.ErrorIs(t, err, ErrNoEncoder)

	require.ErrorIs(t, capture.Deliver(p, capture.Frame{Data: keyframe}), capture.ErrNotReady)
}

func TestAcceptQueue(t *testing.T) {
	cfg := testConfig()
	cfg.Queue = 1

	p := newTestPublisher(t, cfg)

	data := []byte{1, 2, 3}
	require.Nil(t, p.Accept(capture.Frame{Data: data}))

	// queue owns a copy
	data[0] = 9

	err := p.Accept(capture.Frame{Data: data})
	require.ErrorIs(t, err, ErrQueueFull)

	frame := <-p.queue.Frames()
	require.Equal(t, []byte{1, 2, 3}, frame.Data)
	require.Equal(t, uint64(1), p.queue.Dropped())
}

func TestConfigValidate(t *testing.T) {
	cfg := DefaultConfig()
	require.Nil(t, cfg.Validate())
	require.Contains(t, cfg.Template(), "-c:v libx264")

	cfg.MountPoint = "stream"
	require.NotNil(t, cfg.Validate())

	cfg = DefaultConfig()
	cfg.Pipeline = "ffmpeg -i pipe:0 -f h264 -"
	require.NotNil(t, cfg.Validate())

	cfg = DefaultConfig()
	cfg.Port = 70000
	require.NotNil(t, cfg.Validate())

	_, err := NewPublisher(cfg, zerolog.Nop())
	require.NotNil(t, err)
}

func TestRTPTime(t *testing.T) {
	require.Equal(t, uint32(90000), rtpTime(time.Second))
	require.Equal(t, uint32(3600), rtpTime(40*time.Millisecond))
}
