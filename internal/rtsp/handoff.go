package rtsp

import (
	"io"
	"os"
	"time"

	"github.com/zcrtsp/zcrtsp/pkg/camera"
	"github.com/zcrtsp/zcrtsp/pkg/capture"
	"github.com/zcrtsp/zcrtsp/pkg/encoder"
	"github.com/zcrtsp/zcrtsp/pkg/h264"
	"github.com/zcrtsp/zcrtsp/pkg/rtsp"
)

// ConfigureExpectedFormat - raw caps for encoder input, same params can be set many times
func (p *Publisher) ConfigureExpectedFormat(width, height, fps int, format camera.PixelFormat) error {
	f := encoder.Format{
		Width:       width,
		Height:      height,
		FPS:         fps,
		PixelFormat: format,
		Bitrate:     p.cfg.Bitrate,
	}

	p.mu.Lock()
	defer p.mu.Unlock()

	if p.format != nil {
		if *p.format != f {
			return ErrWrongCaps
		}
		return nil
	}

	p.format = &f

	p.log.Info().Msgf("[rtsp] caps %s %dx%d@%d bitrate=%d", format, width, height, fps, p.cfg.Bitrate)

	return nil
}

// IsReady - encoder running and has at least one client
func (p *Publisher) IsReady() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.enc != nil && len(p.sessions) > 0
}

// Accept - write frame to encoder input or copy it to queue
func (p *Publisher) Accept(frame capture.Frame) error {
	if p.queue != nil {
		if !p.queue.Push(frame) {
			return &capture.FlowError{Err: ErrQueueFull}
		}
		return nil
	}

	return p.write(frame.Data)
}

func (p *Publisher) write(data []byte) error {
	p.mu.Lock()
	enc := p.enc
	p.mu.Unlock()

	if enc == nil {
		return &capture.FlowError{Err: ErrNoEncoder}
	}

	n, err := enc.Write(data, p.cfg.AcceptTimeout)
	if err == nil {
		return nil
	}

	// partial frame breaks raw stream alignment
	if n > 0 {
		p.log.Warn().Err(err).Msgf("[rtsp] partial frame %d/%d bytes, restart encoder", n, len(data))
		p.restartEncoder(enc)
	}

	return &capture.FlowError{Err: err}
}

func (p *Publisher) attach(conn *rtsp.Conn) (*session, error) {
	if p.width == 0 {
		return nil, ErrNoFormat
	}

	if err := p.ConfigureExpectedFormat(p.width, p.height, p.fps, p.pixFmt); err != nil {
		return nil, err
	}

	p.mu.Lock()
	defer p.mu.Unlock()

	if p.closed {
		return nil, ErrClosed
	}

	if p.enc == nil {
		if err := p.startEncoder(); err != nil {
			return nil, err
		}
	}

	s := newSession(conn, p.cfg.PacketSize)
	p.sessions[s] = struct{}{}

	p.log.Debug().Str("addr", conn.RemoteAddr()).Int("sessions", len(p.sessions)).Msg("[rtsp] new consumer")

	return s, nil
}

// detach - remove session, encoder stops with last session
func (p *Publisher) detach(s *session) {
	p.mu.Lock()
	delete(p.sessions, s)

	n := len(p.sessions)

	var enc encoder.Encoder
	if n == 0 && p.enc != nil {
		enc = p.enc
		p.enc = nil
		p.resetParams()
	}
	p.mu.Unlock()

	p.log.Debug().Str("addr", s.conn.RemoteAddr()).Int("sessions", n).Msg("[rtsp] consumer closed")

	if enc != nil {
		p.log.Debug().Msg("[rtsp] stop encoder")
		_ = enc.Close()
	}
}

// startEncoder - should be called under lock
func (p *Publisher) startEncoder() error {
	if p.format == nil {
		return ErrNoFormat
	}

	var stderr io.Writer
	if p.log.Debug().Enabled() {
		stderr = os.Stderr
	}

	enc, err := encoder.New(p.template, *p.format, p.onAccessUnit, stderr)
	if err != nil {
		return err
	}

	p.enc = enc

	p.log.Debug().Msgf("[rtsp] start encoder: %s", encoder.Expand(p.template, *p.format))

	go p.watchEncoder(enc, time.Now())

	return nil
}

func (p *Publisher) restartEncoder(enc encoder.Encoder) {
	p.mu.Lock()
	if p.enc != enc {
		p.mu.Unlock()
		return
	}

	p.enc = nil
	p.resetParams()

	if !p.closed && len(p.sessions) > 0 {
		if err := p.startEncoder(); err != nil {
			p.log.Error().Err(err).Msg("[rtsp] restart encoder")
		}
	}
	p.mu.Unlock()

	_ = enc.Close()
}

// watchEncoder - handle encoder exit not caused by publisher
func (p *Publisher) watchEncoder(enc encoder.Encoder, started time.Time) {
	<-enc.Done()

	p.mu.Lock()
	if p.enc != enc {
		p.mu.Unlock()
		return
	}

	p.enc = nil
	p.resetParams()

	p.log.Error().Err(enc.Err()).Msg("[rtsp] encoder stopped")

	var sessions []*session

	if !p.closed && len(p.sessions) > 0 {
		if time.Since(started) > restartMinUptime {
			if err := p.startEncoder(); err != nil {
				p.log.Error().Err(err).Msg("[rtsp] restart encoder")
				sessions = p.snapshot()
			}
		} else {
			sessions = p.snapshot()
		}
	}
	p.mu.Unlock()

	// encoder fails on start, clients can reconnect later
	for _, s := range sessions {
		_ = s.conn.Close()
	}
}

// resetParams - should be called under lock
func (p *Publisher) resetParams() {
	p.sps = nil
	p.pps = nil
	p.spsReady = make(chan struct{})
}

// onAccessUnit - encoder output, au is valid only inside call
func (p *Publisher) onAccessUnit(au []byte) {
	ts := rtpTime(time.Since(p.epoch))

	p.mu.Lock()
	if p.sps == nil {
		if sps, pps := h264.GetParameterSet(au); sps != nil && pps != nil {
			p.sps = append([]byte(nil), sps...)
			p.pps = append([]byte(nil), pps...)
			close(p.spsReady)

			p.checkResolution()
		}
	}
	sps, pps := p.sps, p.pps
	sessions := p.snapshot()
	p.mu.Unlock()

	for _, s := range sessions {
		if err := s.write(au, sps, pps, ts); err != nil {
			p.log.Debug().Err(err).Str("addr", s.conn.RemoteAddr()).Msg("[rtsp] write")
			_ = s.conn.Close()
		}
	}
}

// checkResolution - should be called under lock
func (p *Publisher) checkResolution() {
	width, height, err := h264.GetResolution(p.sps, p.pps)
	if err != nil {
		p.log.Warn().Err(err).Msg("[rtsp] parse sps")
		return
	}

	if width != p.format.Width || height != p.format.Height {
		p.log.Warn().Msgf("[rtsp] encoder output %dx%d, expected %dx%d", width, height, p.format.Width, p.format.Height)
	}
}
