package rtsp

import (
	"bufio"
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"net"
	"net/url"
	"strconv"
	"sync"
	"sync/atomic"
	"time"

	"github.com/pion/rtcp"
	"github.com/pion/rtp"
	"github.com/zcrtsp/zcrtsp/pkg/core"
	"github.com/zcrtsp/zcrtsp/pkg/tcp"
)

const (
	ProtoRTSP          = "RTSP/1.0"
	MethodOptions      = "OPTIONS"
	MethodDescribe     = "DESCRIBE"
	MethodSetup        = "SETUP"
	MethodPlay         = "PLAY"
	MethodPause        = "PAUSE"
	MethodTeardown     = "TEARDOWN"
	MethodGetParameter = "GET_PARAMETER"
	MethodSetParameter = "SET_PARAMETER"
)

type State byte

const (
	StateNone State = iota
	StateSetup
	StatePlay
	StateClosed
)

func (s State) String() string {
	switch s {
	case StateNone:
		return "none"
	case StateSetup:
		return "setup"
	case StatePlay:
		return "play"
	case StateClosed:
		return "closed"
	}
	return "unknown"
}

// Conn - server side RTSP connection with TCP interleaved transport
type Conn struct {
	core.Listener

	SessionName string
	Session     string
	URL         *url.URL
	UserAgent   string

	// SDP - body for DESCRIBE response, should be set by listener on MethodDescribe event,
	// empty SDP means 404 Not Found
	SDP []byte

	// WriteTimeout - for RTP and RTCP writes, zero means no timeout
	WriteTimeout time.Duration

	auth   *tcp.Auth
	conn   net.Conn
	reader *bufio.Reader

	mu      sync.Mutex
	state   State
	channel byte

	send atomic.Int64
	recv atomic.Int64
}

type RTCP struct {
	Channel byte
	Packets []rtcp.Packet
}

func (c *Conn) Auth(username, password string) {
	c.auth = tcp.NewAuth("zcrtsp", username, password)
}

func (c *Conn) State() State {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

func (c *Conn) setState(state State) {
	c.mu.Lock()
	if c.state != StateClosed {
		c.state = state
	}
	c.mu.Unlock()
}

func (c *Conn) RemoteAddr() string {
	return c.conn.RemoteAddr().String()
}

// Send - bytes of RTP and RTCP written to client
func (c *Conn) Send() int64 {
	return c.send.Load()
}

// Recv - bytes of interleaved data from client
func (c *Conn) Recv() int64 {
	return c.recv.Load()
}

func (c *Conn) Response(res *tcp.Response) error {
	if res.Proto == "" {
		res.Proto = ProtoRTSP
	}

	if res.Status == "" {
		res.Status = "200 OK"
	}

	if res.Header == nil {
		res.Header = make(map[string][]string)
	}

	if res.Request != nil && res.Request.Header != nil {
		if seq := res.Request.Header.Get("CSeq"); seq != "" {
			res.Header.Set("CSeq", seq)
		}
	}

	if c.Session != "" {
		res.Header.Set("Session", c.Session+";timeout=60")
	}

	if res.Body != nil {
		res.Header.Set("Content-Length", strconv.Itoa(len(res.Body)))
	}

	c.Fire(res)

	c.mu.Lock()
	defer c.mu.Unlock()

	return res.Write(c.conn)
}

// WriteRTP - write packets in one interleaved chunk, nothing is written before PLAY
func (c *Conn) WriteRTP(packets ...*rtp.Packet) error {
	var size int
	for _, packet := range packets {
		size += 4 + packet.MarshalSize()
	}

	data := make([]byte, size)

	var n int
	for _, packet := range packets {
		i, err := packet.MarshalTo(data[n+4:])
		if err != nil {
			return err
		}
		data[n] = '$'
		data[n+1] = c.channel
		binary.BigEndian.PutUint16(data[n+2:], uint16(i))
		n += 4 + i
	}

	return c.write(data)
}

func (c *Conn) WriteRTCP(packets ...rtcp.Packet) error {
	b, err := rtcp.Marshal(packets)
	if err != nil {
		return err
	}

	data := make([]byte, 4+len(b))
	data[0] = '$'
	data[1] = c.channel + 1
	binary.BigEndian.PutUint16(data[2:], uint16(len(b)))
	copy(data[4:], b)

	return c.write(data)
}

func (c *Conn) write(data []byte) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.state != StatePlay {
		return nil
	}

	if c.WriteTimeout > 0 {
		if err := c.conn.SetWriteDeadline(time.Now().Add(c.WriteTimeout)); err != nil {
			return err
		}
	}

	n, err := c.conn.Write(data)
	c.send.Add(int64(n))
	return err
}

// Handle - process client messages after PLAY until TEARDOWN or disconnect
func (c *Conn) Handle() error {
	for {
		// we can read:
		// 1. RTCP interleaved: `$` + 1B channel number + 2B size
		// 2. RTSP request:     GET_PARAMETER ...
		buf4, err := c.reader.Peek(4)
		if err != nil {
			if c.State() == StateClosed || errors.Is(err, io.EOF) {
				return nil
			}
			return err
		}

		if buf4[0] != '$' {
			req, err := tcp.ReadRequest(c.reader)
			if err != nil {
				return err
			}

			c.Fire(req)

			if err = c.handleRequest(req); err != nil {
				return err
			}

			if c.State() == StateClosed {
				return nil
			}
			continue
		}

		channel := buf4[1]
		size := int(binary.BigEndian.Uint16(buf4[2:]))

		if _, err = c.reader.Discard(4); err != nil {
			return err
		}

		buf := make([]byte, size)
		if _, err = io.ReadFull(c.reader, buf); err != nil {
			return err
		}

		c.recv.Add(int64(4 + size))

		// odd channels are RTCP, client shouldn't send RTP
		if channel&1 == 0 {
			continue
		}

		packets, err := rtcp.Unmarshal(buf)
		if err != nil {
			return fmt.Errorf("rtsp: wrong RTCP data: %w", err)
		}

		c.Fire(&RTCP{Channel: channel, Packets: packets})
	}
}

func (c *Conn) handleRequest(req *tcp.Request) error {
	if !c.auth.Validate(req) {
		return c.unauthorized(req)
	}

	res := &tcp.Response{Request: req}

	switch req.Method {
	case MethodOptions, MethodGetParameter, MethodSetParameter:
		if req.Method == MethodOptions {
			res.Header = map[string][]string{"Public": {public}}
		}
		return c.Response(res)

	case MethodPlay:
		if err := c.Response(res); err != nil {
			return err
		}
		c.setState(StatePlay)
		c.Fire(MethodPlay)
		return nil

	case MethodPause:
		c.setState(StateSetup)
		c.Fire(MethodPause)
		return c.Response(res)

	case MethodTeardown:
		c.Fire(MethodTeardown)
		_ = c.Response(res)
		return c.Close()
	}

	res.Status = "405 Method Not Allowed"
	res.Header = map[string][]string{"Allow": {public}}
	return c.Response(res)
}

func (c *Conn) unauthorized(req *tcp.Request) error {
	res := &tcp.Response{
		Status:  "401 Unauthorized",
		Header:  map[string][]string{"Www-Authenticate": {c.auth.Challenge()}},
		Request: req,
	}
	return c.Response(res)
}

// Close - close connection, can be called many times
func (c *Conn) Close() error {
	c.mu.Lock()
	if c.state == StateClosed {
		c.mu.Unlock()
		return nil
	}
	c.state = StateClosed
	c.mu.Unlock()

	return c.conn.Close()
}
