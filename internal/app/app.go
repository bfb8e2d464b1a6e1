package app

import (
	"flag"
	"fmt"
	"os"
	"runtime"
	"runtime/debug"

	"github.com/rs/zerolog/log"
)

var Version = "0.3.0"
var UserAgent = "zcrtsp/" + Version

var Info = map[string]any{
	"version": Version,
}

// Init - parse command line flags, load config and setup logger
func Init() {
	var confs flagConfig
	var version bool

	flag.Var(&confs, "config", "zcrtsp config (path to file, raw YAML or key.sub=value), support multiple")
	flag.BoolVar(&version, "version", false, "Print the version of the application and exit")
	flag.Parse()

	if version {
		fmt.Printf("zcrtsp version %s%s %s/%s\n", Version, revision(), runtime.GOOS, runtime.GOARCH)
		os.Exit(0)
	}

	initConfig(confs)
	initLogger()

	log.Logger = Logger

	platform := fmt.Sprintf("%s/%s", runtime.GOOS, runtime.GOARCH)
	Logger.Info().Str("version", Version).Str("platform", platform).Msg("zcrtsp")
	Logger.Debug().Str("version", runtime.Version()).Msg("build")

	if ConfigPath != "" {
		Logger.Info().Str("path", ConfigPath).Msg("config")
	}
	for _, path := range skipped {
		Logger.Warn().Str("path", path).Msg("[app] can't read config file")
	}
}

func revision() string {
	info, ok := debug.ReadBuildInfo()
	if !ok {
		return ""
	}
	for _, setting := range info.Settings {
		if setting.Key == "vcs.revision" {
			if len(setting.Value) > 7 {
				return " (" + setting.Value[:7] + ")"
			}
			return " (" + setting.Value + ")"
		}
	}
	return ""
}
