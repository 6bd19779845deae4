// Executable device-verification bot. It accepts SAS verification
// handshakes from peers and bridges the human confirmation step to a
// loopback HTTP endpoint an operator can reach over port-forwarding.
package main

import (
	"github.com/sasbridge/sasbridge-go/cli/sasbot/internal/cmd"
)

func main() {
	cmd.Execute()
}
