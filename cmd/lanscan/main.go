// Lanscan discovers devices on the local network.
//
// It enumerates the host's interfaces, resolves the default gateway and
// probes the local subnet with mDNS, reverse DNS, HTTP/UPnP banners and
// smart-device handshakes, then prints a merged device inventory.
//
// Usage:
//
//	lanscan [command] [flags]
//
// See 'lanscan --help' for available commands.
package main

import (
	"fmt"
	"os"
)

// Set at build time with -ldflags "-X main.version=...".
var (
	version = "dev"
	commit  = "none"
)

func main() {
	if err := newRootCmd().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, errorStyle.Render("Error: "+err.Error()))
		os.Exit(1)
	}
}
