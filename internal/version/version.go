// ABOUTME: Build version information
// ABOUTME: Product identity reported in client/hello and the TUI status line
package version

// Version is overridden at link time with -ldflags "-X .../internal/version.Version=...".
var Version = "0.3.0"

const (
	Product      = "dozclock"
	Manufacturer = "Dozenal Clock"
)
