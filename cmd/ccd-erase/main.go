// Command ccd-erase performs the CCD erase procedure and restarts idle
// clocking, after checking that the settings on disk are the settings
// the controller is actually running.
package main

import (
	"flag"
	"fmt"
	"log"
	"os"
	"time"

	"github.com/theckman/yacspin"

	"github.com/ccdlab/leachgo/arc"
	"github.com/ccdlab/leachgo/leach"
)

var (
	gateway  = flag.String("gateway", "localhost:2001", "address of the ARC gateway, or serial device with -serial")
	serial   = flag.Bool("serial", false, "gateway is a serial line, not TCP")
	relayDev = flag.String("relay", "/dev/ttyUSB0", "serial device of the substrate bias battery box")
	settings = flag.String("settings", "config/settings.yml", "CCD settings file")
)

// countdown gives the operator a window to walk away from the dewar
// before anything switches
func countdown(d time.Duration) {
	spinner, err := yacspin.New(yacspin.Config{
		Frequency:       250 * time.Millisecond,
		CharSet:         yacspin.CharSets[59],
		Suffix:          " waiting before starting the erase procedure",
		StopCharacter:   "✓",
		SuffixAutoColon: true})
	if err != nil {
		// no spinner on a dumb terminal, just wait
		time.Sleep(d)
		return
	}
	spinner.Start()
	for remaining := d; remaining > 0; remaining -= time.Second {
		spinner.Message(fmt.Sprintf("%v", remaining))
		time.Sleep(time.Second)
	}
	spinner.Stop()
}

func main() {
	flag.Parse()

	fmt.Println("This will perform an erase procedure.")
	fmt.Println("The process starts in 10 seconds.")
	countdown(10 * time.Second)

	dev := arc.NewRemoteDevice(*gateway, *serial)
	if err := dev.Open(); err != nil {
		log.Fatal(err)
	}
	defer dev.Close()

	relay, err := leach.OpenBatteryBoxRelay(*relayDev)
	if err != nil {
		log.Fatal(err)
	}
	defer relay.Close()

	ctl := leach.NewController(dev, relay)
	configChanged, sequencerChanged, err := ctl.LoadAndCheckForSettingsChange(*settings)
	if err != nil {
		log.Fatal(err)
	}
	if configChanged || sequencerChanged {
		if configChanged {
			fmt.Println("Error: the settings file has changed but the new settings were not uploaded.")
		}
		if sequencerChanged {
			fmt.Println("Error: the sequencer has changed but it was not uploaded.")
		}
		fmt.Println("Erase procedure was not performed. Please resolve the conflicts in the config section first.")
		os.Exit(1)
	}

	time.Sleep(5 * time.Second)
	if err := ctl.PerformEraseProcedure(); err != nil {
		log.Fatal(err)
	}
	if err := ctl.IdleClockToggle(); err != nil {
		log.Fatal(err)
	}
	fmt.Println("Leach system is now ready to take data.")
}
