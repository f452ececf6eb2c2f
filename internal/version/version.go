// ABOUTME: Version information for playloop
// ABOUTME: Product identity printed by --version and logged at startup
package version

const (
	// Product is the program name
	Product = "playloop"

	// Manufacturer identifies the authors
	Manufacturer = "Resonate Protocol"
)

// Version is set via ldflags at build time
var Version = "dev"
