package app

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/require"
)

func TestParseConfString(t *testing.T) {
	require.Equal(t, "{rtsp: {port: 8555}}", string(parseConfString("rtsp.port=8555")))
	require.Equal(t, "{log: {capture: debug}}", string(parseConfString("log.capture=debug")))
	require.Nil(t, parseConfString("zcrtsp.yaml"))
	require.Nil(t, parseConfString("port=8555"))
	require.Nil(t, parseConfString("rtsp..port=8555"))
	require.Equal(t, "{rtsp: {mount_point: /cam}}", string(parseConfString("rtsp.mount_point=/cam")))
}

func TestLoadConfig(t *testing.T) {
	t.Cleanup(func() {
		configs = nil
		ConfigPath = ""
	})

	t.Setenv("ZC_TEST_USER", "admin")

	path := filepath.Join(t.TempDir(), "zcrtsp.yaml")
	data := "rtsp:\n  port: 8555\n  username: ${ZC_TEST_USER}\n  password: ${ZC_TEST_PASS:secret}\nvideo:\n  fps: 25\n"
	require.Nil(t, os.WriteFile(path, []byte(data), 0644))

	initConfig(flagConfig{
		path,
		"{video: {width: 640, height: 480}}",
		"rtsp.port=8556",
		"",
	})
	require.Equal(t, path, ConfigPath)
	require.Len(t, configs, 3)
	require.Equal(t, "rtsp.port=8556", configs[2].name)

	var cfg struct {
		RTSP struct {
			Port     int    `yaml:"port"`
			Username string `yaml:"username"`
			Password string `yaml:"password"`
		} `yaml:"rtsp"`
		Video struct {
			Width  int `yaml:"width"`
			Height int `yaml:"height"`
			FPS    int `yaml:"fps"`
		} `yaml:"video"`
	}
	cfg.Video.Width = 1920

	LoadConfig(&cfg)

	require.Equal(t, 8556, cfg.RTSP.Port)
	require.Equal(t, "admin", cfg.RTSP.Username)
	require.Equal(t, "secret", cfg.RTSP.Password)
	require.Equal(t, 640, cfg.Video.Width)
	require.Equal(t, 480, cfg.Video.Height)
	require.Equal(t, 25, cfg.Video.FPS)
}

func TestMissingConfigFile(t *testing.T) {
	t.Cleanup(func() {
		configs = nil
		skipped = nil
		ConfigPath = ""
	})

	initConfig(nil)
	require.True(t, filepath.IsAbs(ConfigPath))
	require.Equal(t, "zcrtsp.yaml", filepath.Base(ConfigPath))
	require.Len(t, configs, 0)
	// default file is optional
	require.Len(t, skipped, 0)

	ConfigPath = ""

	path := filepath.Join(t.TempDir(), "missing.yaml")
	initConfig(flagConfig{path})
	require.Equal(t, path, ConfigPath)
	require.Equal(t, []string{path}, skipped)
}

func TestGetLogger(t *testing.T) {
	t.Cleanup(func() {
		delete(modules, "rtsp")
		delete(modules, "capture")
		Logger = zerolog.Nop()
	})

	Logger = NewLogger(map[string]string{"output": "stderr", "format": "json", "level": "info"})
	require.Equal(t, zerolog.InfoLevel, Logger.GetLevel())

	modules["rtsp"] = "trace"
	modules["capture"] = "wrong"

	require.Equal(t, zerolog.TraceLevel, GetLogger("rtsp").GetLevel())
	require.Equal(t, zerolog.InfoLevel, GetLogger("capture").GetLevel())
	require.Equal(t, zerolog.InfoLevel, GetLogger("pipeline").GetLevel())
}

func TestNewLogger(t *testing.T) {
	tests := []struct {
		mod   map[string]string
		level zerolog.Level
	}{
		{map[string]string{"output": "stdout", "format": "json", "level": "warn"}, zerolog.WarnLevel},
		{map[string]string{"output": "stderr", "format": "text", "level": "debug"}, zerolog.DebugLevel},
		{map[string]string{"output": "stderr", "level": "unknown"}, zerolog.InfoLevel},
		{map[string]string{"output": ""}, zerolog.Disabled},
	}

	for _, test := range tests {
		logger := NewLogger(test.mod)
		require.Equal(t, test.level, logger.GetLevel())
	}
}
