package rtsp

import (
	"errors"
	"io"
	"net"
	"os"
	"strings"
	"sync"
	"time"

	"github.com/hashicorp/mdns"
	"github.com/rs/zerolog"
	"github.com/zcrtsp/zcrtsp/internal/app"
	"github.com/zcrtsp/zcrtsp/pkg/camera"
	"github.com/zcrtsp/zcrtsp/pkg/capture"
	"github.com/zcrtsp/zcrtsp/pkg/core"
	"github.com/zcrtsp/zcrtsp/pkg/encoder"
	"github.com/zcrtsp/zcrtsp/pkg/h264"
	zcmdns "github.com/zcrtsp/zcrtsp/pkg/mdns"
	"github.com/zcrtsp/zcrtsp/pkg/rtsp"
	"github.com/zcrtsp/zcrtsp/pkg/tcp"
)

var (
	ErrClosed     = errors.New("rtsp: publisher closed")
	ErrNoFormat   = errors.New("rtsp: capture format not prepared")
	ErrNoEncoder  = errors.New("rtsp: encoder not running")
	ErrQueueFull  = errors.New("rtsp: queue full")
	ErrWrongCaps  = errors.New("rtsp: format already configured with other params")
	ErrNotStarted = errors.New("rtsp: publisher not listening")
)

const (
	// parameter sets wait on DESCRIBE
	describeTimeout = 5 * time.Second
	// encoder restarts only if it worked longer
	restartMinUptime = time.Second
	reportInterval   = 5 * time.Second
	writeTimeout     = 5 * time.Second
)

// Publisher - RTSP server for one mount point, raw frames go to encoder
// while at least one client attached
type Publisher struct {
	cfg      Config
	log      zerolog.Logger
	template string

	// capture format from Prepare
	width, height, fps int
	pixFmt             camera.PixelFormat

	mu       sync.Mutex
	format   *encoder.Format
	enc      encoder.Encoder
	sessions map[*session]struct{}
	sps, pps []byte
	spsReady chan struct{}
	closed   bool

	epoch  time.Time
	ln     net.Listener
	mdns   *mdns.Server
	queue  *capture.Queue
	worker *core.Worker
	done   chan struct{}
	fatal  chan error
	wg     sync.WaitGroup
}

func NewPublisher(cfg Config, log zerolog.Logger) (*Publisher, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	if cfg.PacketSize == 0 {
		cfg.PacketSize = DefaultConfig().PacketSize
	}

	p := &Publisher{
		cfg:      cfg,
		log:      log,
		template: cfg.Template(),
		sessions: map[*session]struct{}{},
		spsReady: make(chan struct{}),
		done:     make(chan struct{}),
		fatal:    make(chan error, 1),
	}

	if cfg.Queue > 0 {
		p.queue = capture.NewQueue(cfg.Queue)
	}

	return p, nil
}

// Prepare - raw frames format from capture, no traffic before Listen
func (p *Publisher) Prepare(width, height, fps int, format camera.PixelFormat) {
	p.width, p.height, p.fps, p.pixFmt = width, height, fps, format
}

func (p *Publisher) Listen() error {
	ln, err := net.Listen("tcp", p.cfg.Address())
	if err != nil {
		return err
	}

	p.ln = ln
	p.epoch = time.Now()

	p.log.Info().Str("addr", ln.Addr().String()).Str("url", p.URL()).Msg("[rtsp] listen")

	if p.cfg.MDNS {
		p.startMDNS()
	}

	p.worker = core.NewWorker(reportInterval, p.sendReports)

	if p.queue != nil {
		p.wg.Add(1)
		go p.queueWriter()
	}

	p.wg.Add(1)
	go p.acceptLoop()

	return nil
}

func (p *Publisher) URL() string {
	if p.ln == nil {
		return ""
	}

	host, port, _ := net.SplitHostPort(p.ln.Addr().String())
	if ip := net.ParseIP(host); ip == nil || ip.IsUnspecified() {
		if host, _ = os.Hostname(); host == "" {
			host = "localhost"
		}
	}

	return "rtsp://" + net.JoinHostPort(host, port) + p.cfg.MountPoint
}

// Fatal - runtime errors of publisher, like broken listener
func (p *Publisher) Fatal() <-chan error {
	return p.fatal
}

func (p *Publisher) Close() error {
	p.mu.Lock()
	if p.closed {
		p.mu.Unlock()
		return nil
	}
	p.closed = true
	enc := p.enc
	p.enc = nil
	sessions := p.snapshot()
	p.mu.Unlock()

	close(p.done)

	var errs []error

	if p.ln != nil {
		errs = append(errs, p.ln.Close())
	}

	if p.mdns != nil {
		errs = append(errs, p.mdns.Shutdown())
	}

	p.worker.Stop()

	for _, s := range sessions {
		_ = s.conn.Close()
	}

	if enc != nil {
		errs = append(errs, enc.Close())
	}

	p.wg.Wait()

	p.log.Debug().Msg("[rtsp] closed")

	return errors.Join(errs...)
}

func (p *Publisher) startMDNS() {
	host, _ := os.Hostname()
	if host == "" {
		host = "zcrtsp"
	}

	txt := []string{"path=" + p.cfg.MountPoint}
	if p.cfg.Username != "" {
		txt = append(txt, "auth=basic")
	}

	port := p.ln.Addr().(*net.TCPAddr).Port

	var ips []net.IP
	if ip := net.ParseIP(p.cfg.Listen); ip != nil && !ip.IsUnspecified() {
		ips = []net.IP{ip}
	}

	server, err := zcmdns.NewServer(host, port, ips, txt)
	if err != nil {
		p.log.Warn().Err(err).Msg("[rtsp] mdns")
		return
	}

	p.mdns = server
	p.log.Debug().Str("name", host).Msg("[rtsp] mdns advertise")
}

func (p *Publisher) acceptLoop() {
	defer p.wg.Done()

	for {
		conn, err := p.ln.Accept()
		if err != nil {
			if p.isClosed() {
				return
			}
			p.log.Error().Err(err).Msg("[rtsp] accept")
			select {
			case p.fatal <- err:
			default:
			}
			return
		}

		c := rtsp.NewServer(conn)
		c.SessionName = app.UserAgent
		c.WriteTimeout = writeTimeout
		if p.cfg.Username != "" {
			c.Auth(p.cfg.Username, p.cfg.Password)
		}

		p.wg.Add(1)
		go p.tcpHandler(c)
	}
}

func (p *Publisher) tcpHandler(conn *rtsp.Conn) {
	defer p.wg.Done()

	var s *session

	trace := p.log.Trace().Enabled()

	conn.Listen(func(msg any) {
		if trace {
			switch msg := msg.(type) {
			case *tcp.Request:
				p.log.Trace().Msgf("[rtsp] server request:\n%s", msg)
			case *tcp.Response:
				p.log.Trace().Msgf("[rtsp] server response:\n%s", msg)
			case *rtsp.RTCP:
				p.log.Trace().Msgf("[rtsp] rtcp channel=%d packets=%d", msg.Channel, len(msg.Packets))
			}
		}

		switch msg {
		case rtsp.MethodDescribe:
			if path := strings.TrimSuffix(conn.URL.Path, "/"); path != p.cfg.MountPoint {
				p.log.Warn().Str("path", path).Msg("[rtsp] unknown mount point")
				return
			}

			if s == nil {
				var err error
				if s, err = p.attach(conn); err != nil {
					p.log.Warn().Err(err).Msg("[rtsp] attach")
					return
				}
			}

			sdp, err := p.sdp()
			if err != nil {
				p.log.Warn().Err(err).Msg("[rtsp] sdp")
				return
			}
			conn.SDP = sdp

		case rtsp.MethodPlay:
			p.log.Debug().Str("addr", conn.RemoteAddr()).Str("agent", conn.UserAgent).Msg("[rtsp] play")
		}
	})

	err := conn.Accept()
	if err == nil {
		err = conn.Handle()
	}

	if err != nil && !errors.Is(err, io.EOF) && !errors.Is(err, net.ErrClosed) {
		p.log.Debug().Err(err).Str("addr", conn.RemoteAddr()).Msg("[rtsp] session")
	}

	if s != nil {
		p.detach(s)
	}

	_ = conn.Close()
}

func (p *Publisher) isClosed() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.closed
}

// snapshot - sessions list, should be called under lock
func (p *Publisher) snapshot() []*session {
	sessions := make([]*session, 0, len(p.sessions))
	for s := range p.sessions {
		sessions = append(sessions, s)
	}
	return sessions
}

func (p *Publisher) sdp() ([]byte, error) {
	p.mu.Lock()
	ready := p.spsReady
	p.mu.Unlock()

	select {
	case <-ready:
	case <-time.After(describeTimeout):
		p.log.Warn().Msg("[rtsp] no parameter sets from encoder")
	case <-p.done:
		return nil, ErrClosed
	}

	p.mu.Lock()
	fmtp := h264.GetFmtpLine(p.sps, p.pps)
	p.mu.Unlock()

	return rtsp.MarshalSDP(app.UserAgent, fmtp)
}

func (p *Publisher) sendReports() time.Duration {
	now := time.Now()
	ts := rtpTime(now.Sub(p.epoch))

	p.mu.Lock()
	sessions := p.snapshot()
	p.mu.Unlock()

	for _, s := range sessions {
		if err := s.sendReport(ts, now); err != nil {
			p.log.Debug().Err(err).Msg("[rtsp] sender report")
		}
	}

	return reportInterval
}

func (p *Publisher) queueWriter() {
	defer p.wg.Done()

	for {
		select {
		case frame := <-p.queue.Frames():
			if err := p.write(frame.Data); err != nil {
				p.log.Debug().Err(err).Uint32("seq", frame.Sequence).Msg("[rtsp] queue write")
			}
			p.queue.Release(frame)
		case <-p.done:
			return
		}
	}
}
