package app

import (
	"os"
	"path/filepath"
	"slices"
	"strings"

	"github.com/zcrtsp/zcrtsp/pkg/shell"
	"github.com/zcrtsp/zcrtsp/pkg/yaml"
)

const defaultConfig = "zcrtsp.yaml"

// ConfigPath - absolute path of first config file, empty if no file in flags
var ConfigPath string

// configSource - one -config flag: file, inline YAML or key.sub=value
type configSource struct {
	name string
	data []byte
}

var (
	configs []configSource
	// explicit config files that can't be read, logged after logger init
	skipped []string
)

// LoadConfig - unmarshal all configs in flags order, later values override earlier.
// Broken source is logged and skipped.
func LoadConfig(v any) {
	for _, src := range configs {
		if err := yaml.Unmarshal(src.data, v); err != nil {
			Logger.Warn().Err(err).Str("source", src.name).Msg("[app] read config")
		}
	}
}

type flagConfig []string

func (c *flagConfig) String() string {
	return strings.Join(*c, " ")
}

func (c *flagConfig) Set(value string) error {
	*c = append(*c, value)
	return nil
}

func initConfig(confs flagConfig) {
	// default file is optional
	optional := confs == nil
	if optional {
		confs = flagConfig{defaultConfig}
	}

	for _, conf := range confs {
		switch {
		case conf == "":
		case conf[0] == '{':
			// config as raw YAML or JSON
			configs = append(configs, configSource{name: "inline", data: []byte(conf)})
		case parseConfString(conf) != nil:
			configs = append(configs, configSource{name: conf, data: parseConfString(conf)})
		default:
			readConfigFile(conf, optional)
		}
	}

	if ConfigPath == "" {
		return
	}
	if abs, err := filepath.Abs(ConfigPath); err == nil {
		ConfigPath = abs
	}
	Info["config_path"] = ConfigPath
}

func readConfigFile(path string, optional bool) {
	if ConfigPath == "" {
		ConfigPath = path
	}

	data, err := os.ReadFile(path)
	if err != nil {
		if !optional {
			skipped = append(skipped, path)
		}
		return
	}

	data = []byte(shell.ReplaceEnvVars(string(data)))
	configs = append(configs, configSource{name: path, data: data})
}

// parseConfString - `rtsp.port=8555` => `{rtsp: {port: 8555}}`
func parseConfString(s string) []byte {
	key, value, ok := strings.Cut(s, "=")
	if !ok {
		return nil
	}

	items := strings.Split(key, ".")
	if len(items) < 2 || slices.Contains(items, "") {
		return nil
	}

	return []byte("{" + strings.Join(items, ": {") + ": " + value + strings.Repeat("}", len(items)))
}
