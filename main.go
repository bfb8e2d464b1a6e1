package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/zcrtsp/zcrtsp/internal/app"
	"github.com/zcrtsp/zcrtsp/internal/pipeline"
	"github.com/zcrtsp/zcrtsp/internal/rtsp"
	"github.com/zcrtsp/zcrtsp/pkg/capture"
)

func main() {
	app.Init() // init config and logs

	var cfg struct {
		Video capture.VideoConfig `yaml:"video"`
		RTSP  rtsp.Config         `yaml:"rtsp"`
	}

	cfg.Video = capture.DefaultVideoConfig()
	cfg.RTSP = rtsp.DefaultConfig()

	app.LoadConfig(&cfg)

	app.Info["video"] = cfg.Video
	app.Info["rtsp"] = cfg.RTSP

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, cfg.Video, cfg.RTSP); err != nil {
		app.Logger.Error().Err(err).Msg("[main] exit")
		stop()
		os.Exit(1)
	}

	app.Logger.Info().Msg("[main] exit")
}

func run(ctx context.Context, video capture.VideoConfig, conf rtsp.Config) error {
	pub, err := rtsp.NewPublisher(conf, app.GetLogger("rtsp"))
	if err != nil {
		return err
	}

	capt := capture.New(video, app.GetLogger("capture"))

	p := pipeline.New(capt, pub, app.GetLogger("pipeline"))

	if err = p.Initialize(); err != nil {
		return err
	}

	if err = p.Start(); err != nil {
		return err
	}

	return p.Run(ctx)
}
