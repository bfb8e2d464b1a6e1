package rtsp

import (
	"bufio"
	"fmt"
	"net"
	"strconv"
	"strings"

	"github.com/google/uuid"
	"github.com/zcrtsp/zcrtsp/pkg/tcp"
)

const public = "OPTIONS, DESCRIBE, SETUP, PLAY, PAUSE, TEARDOWN, GET_PARAMETER, SET_PARAMETER"

const transport = "RTP/AVP/TCP"

func NewServer(conn net.Conn) *Conn {
	return &Conn{
		conn:   conn,
		reader: bufio.NewReader(conn),
	}
}

// Accept - process client requests until PLAY: OPTIONS > DESCRIBE > SETUP > PLAY
func (c *Conn) Accept() error {
	for {
		req, err := tcp.ReadRequest(c.reader)
		if err != nil {
			return err
		}

		if c.URL == nil {
			c.URL = req.URL
			c.UserAgent = req.Header.Get("User-Agent")
		}

		c.Fire(req)

		if !c.auth.Validate(req) {
			if err = c.unauthorized(req); err != nil {
				return err
			}
			continue
		}

		switch req.Method {
		case MethodDescribe:
			c.URL = req.URL
			c.Fire(MethodDescribe)

			if c.SDP == nil {
				res := &tcp.Response{
					Status:  "404 Not Found",
					Request: req,
				}
				_ = c.Response(res)
				return fmt.Errorf("rtsp: no stream for path: %s", req.URL.Path)
			}

			res := &tcp.Response{
				Header: map[string][]string{
					"Content-Type": {"application/sdp"},
					"Content-Base": {strings.TrimSuffix(req.URL.String(), "/") + "/"},
				},
				Body:    c.SDP,
				Request: req,
			}
			if err = c.Response(res); err != nil {
				return err
			}

		case MethodSetup:
			res := &tcp.Response{
				Header:  map[string][]string{},
				Request: req,
			}

			channel, ok := parseInterleaved(req.Header.Get("Transport"))
			if ok {
				if c.Session == "" {
					c.Session = uuid.NewString()
				}
				c.channel = channel
				c.setState(StateSetup)
				res.Header.Set("Transport", fmt.Sprintf(
					"%s;unicast;interleaved=%d-%d", transport, channel, channel+1,
				))
			} else {
				res.Status = "461 Unsupported Transport"
			}

			if err = c.Response(res); err != nil {
				return err
			}

		case MethodPlay:
			if c.State() != StateSetup {
				res := &tcp.Response{
					Status:  "455 Method Not Valid in This State",
					Request: req,
				}
				if err = c.Response(res); err != nil {
					return err
				}
				continue
			}

			res := &tcp.Response{
				Header:  map[string][]string{"Range": {"npt=0.000-"}},
				Request: req,
			}
			if err = c.Response(res); err != nil {
				return err
			}

			c.setState(StatePlay)
			c.Fire(MethodPlay)
			return nil

		case MethodTeardown:
			c.Fire(MethodTeardown)
			_ = c.Response(&tcp.Response{Request: req})
			return c.Close()

		default:
			if err = c.handleRequest(req); err != nil {
				return err
			}
		}
	}
}

// parseInterleaved - RTP channel from Transport header:
// RTP/AVP/TCP;unicast;interleaved=0-1
func parseInterleaved(s string) (byte, bool) {
	if !strings.HasPrefix(s, transport) {
		return 0, false
	}

	for _, param := range strings.Split(s, ";") {
		if v, ok := strings.CutPrefix(param, "interleaved="); ok {
			if i := strings.IndexByte(v, '-'); i > 0 {
				v = v[:i]
			}
			ch, err := strconv.Atoi(v)
			if err != nil || ch < 0 || ch > 254 {
				return 0, false
			}
			return byte(ch), true
		}
	}

	// interleaved is optional, server choose channels
	return 0, true
}
