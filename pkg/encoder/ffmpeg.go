package encoder

import (
	"io"
	"os"
	"time"

	"github.com/zcrtsp/zcrtsp/pkg/h264"
	"github.com/zcrtsp/zcrtsp/pkg/shell"
)

const closeTimeout = 2 * time.Second

type ffmpegEncoder struct {
	cmd    *shell.Command
	stdin  *os.File
	stdout *os.File
	done   chan struct{}
}

func newFFmpeg(s string, handler Handler, stderr io.Writer) (*ffmpegEncoder, error) {
	cmd, err := shell.NewCommand(s)
	if err != nil {
		return nil, err
	}

	// os.Pipe instead of cmd.StdinPipe for write deadline support
	inR, inW, err := os.Pipe()
	if err != nil {
		return nil, err
	}

	outR, outW, err := os.Pipe()
	if err != nil {
		_ = inR.Close()
		_ = inW.Close()
		return nil, err
	}

	cmd.Stdin = inR
	cmd.Stdout = outW
	if stderr != nil {
		cmd.Stderr = stderr
	}

	err = cmd.Start()

	// child has own copies
	_ = inR.Close()
	_ = outW.Close()

	if err != nil {
		_ = inW.Close()
		_ = outR.Close()
		return nil, err
	}

	e := &ffmpegEncoder{
		cmd:    cmd,
		stdin:  inW,
		stdout: outR,
		done:   make(chan struct{}),
	}

	go e.read(handler)

	return e, nil
}

func (e *ffmpegEncoder) read(handler Handler) {
	rd := h264.NewReader(e.stdout)
	for {
		au, err := rd.ReadAccessUnit()
		if err != nil {
			break
		}
		handler(au)
	}

	_ = e.stdout.Close()
	_ = e.cmd.Wait()
	close(e.done)
}

func (e *ffmpegEncoder) Write(frame []byte, timeout time.Duration) (int, error) {
	var deadline time.Time
	if timeout > 0 {
		deadline = time.Now().Add(timeout)
	}
	if err := e.stdin.SetWriteDeadline(deadline); err != nil {
		return 0, err
	}
	return e.stdin.Write(frame)
}

func (e *ffmpegEncoder) Done() <-chan struct{} {
	return e.done
}

func (e *ffmpegEncoder) Err() error {
	return e.cmd.Wait()
}

// Close - EOF on stdin lets the encoder flush output, SIGINT if it doesn't exit
func (e *ffmpegEncoder) Close() error {
	_ = e.stdin.Close()

	select {
	case <-e.done:
		return nil
	case <-time.After(closeTimeout):
	}

	_ = e.cmd.Close()
	<-e.done
	return nil
}
