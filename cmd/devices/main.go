// Command devices prints capture devices with formats and sizes as YAML
package main

import (
	"fmt"
	"os"

	"github.com/zcrtsp/zcrtsp/internal/v4l2"
	"github.com/zcrtsp/zcrtsp/pkg/yaml"
)

func main() {
	sources, err := v4l2.Sources()
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}

	b, err := yaml.Encode(map[string]any{"devices": sources}, 2)
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}

	_, _ = os.Stdout.Write(b)
}
