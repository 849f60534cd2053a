package theme

import (
	"fmt"
)

const (
	cyan    = "\033[36m"
	magenta = "\033[35m"
	yellow  = "\033[33m"
	dim     = "\033[2m"
	reset   = "\033[0m"
)

// Banner returns the CLI banner.
func Banner() string {
	art := "" +
		magenta + "   ▄▀▀ ▀█▀ █ █ █▀▄ █   █ █\n" + reset +
		cyan + "   ▄██  █  ▀▄▀ █▄▀ █▄▄  █\n" + reset +
		yellow + "   ───────────────────────\n" + reset +
		"   your campus feed, in the terminal\n"
	return art
}

// PrintBanner prints the banner to stdout.
func PrintBanner() {
	fmt.Print(Banner())
}
