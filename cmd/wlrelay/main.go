// Command wlrelay runs one half of a transparent Wayland forwarding proxy:
// it bridges a local AF_UNIX Wayland connection (a real client or a real
// compositor, depending on the config file's on_display_side) to a single peer wlrelay
// process over a tunnel connection, rewriting protocol messages and
// coalescing buffer damage on the way. A full deployment pairs two
// instances, one on each side of whatever network link separates them;
// launching that pair and supervising reconnection is left to the
// surrounding system, per the relay package's own scope.
package main

import (
	"fmt"
	"os"
)

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "wlrelay: %v\n", err)
		os.Exit(1)
	}
}
