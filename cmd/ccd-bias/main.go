// Command ccd-bias toggles the substrate bias through the battery box
// relay.
package main

import (
	"flag"
	"fmt"
	"os"
	"strconv"

	"github.com/ccdlab/leachgo/leach"
)

var relayDev = flag.String("relay", "/dev/ttyUSB0", "serial device of the substrate bias battery box")

func usage() {
	fmt.Fprintln(os.Stderr, "Usage: ccd-bias [-relay dev] <on|off> [<volts=4.88>]")
	os.Exit(1)
}

func main() {
	flag.Parse()
	args := flag.Args()
	if len(args) < 1 {
		usage()
	}

	var on bool
	switch args[0] {
	case "on", "1":
		on = true
	case "off", "0":
		on = false
	default:
		usage()
	}

	volts := leach.DefaultBattRelayVolts
	if len(args) > 1 {
		var err error
		volts, err = strconv.ParseFloat(args[1], 64)
		if err != nil {
			usage()
		}
	}

	state := "off"
	if on {
		state = "on"
	}
	fmt.Printf("Switching relay bias %s...", state)

	relay, err := leach.OpenBatteryBoxRelay(*relayDev)
	if err != nil {
		fmt.Println()
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
	defer relay.Close()

	if err := relay.Switch(on, volts); err != nil {
		fmt.Println()
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
	fmt.Println(" OK!")
}
