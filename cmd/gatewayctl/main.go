// Command gatewayctl follows the log of an RF 433 MHz MQTT gateway and
// manages its settings, debug flags, firmware and system commands.
package main

import (
	"fmt"
	"os"

	"github.com/spf13/afero"
)

// Version is set at build time via ldflags.
var Version = "dev"

func main() {
	a := &app{
		fs:     afero.NewOsFs(),
		stdin:  os.Stdin,
		stdout: os.Stdout,
		stderr: os.Stderr,
	}
	if err := newRootCmd(a).Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "gatewayctl: %v\n", err)
		os.Exit(1)
	}
}
