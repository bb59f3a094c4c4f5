// Command p1streamd is the broadcaster daemon: it loads a YAML pipeline
// configuration, wires the VideoMixer/AudioMixer/Connection fixed
// subsystems into a Context, and runs until signalled to stop.
package main

import (
	"fmt"
	"os"

	"github.com/p1stream/p1stream-go/cmd/p1streamd/cmd"
)

func main() {
	if err := cmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
