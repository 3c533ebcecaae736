// Command leachsrv exposes one ARC CCD controller over HTTP, so the DAQ
// scripts can set timing parameters and run the erase procedure from any
// language with an HTTP client.
package main

import (
	"fmt"
	"log"
	"net/http"
	"os"
	"strings"

	"github.com/knadh/koanf"
	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/providers/structs"

	yml "gopkg.in/yaml.v2"

	"github.com/go-chi/chi"
	"github.com/go-chi/chi/middleware"

	"github.com/ccdlab/leachgo/arc"
	"github.com/ccdlab/leachgo/leach"
	"github.com/ccdlab/leachgo/server"
)

var (
	// Version is the version number.  Typically injected via ldflags with git build
	Version = "1"

	// ConfigFileName is what it sounds like
	ConfigFileName = "leachsrv.yml"
	k              = koanf.New(".")
)

// Config holds the initialization parameters for the server and the
// controller it wraps
type Config struct {
	// Addr is the address to listen at
	Addr string `koanf:"Addr" yaml:"Addr"`

	// Gateway is the network address of the ARC gateway, or the serial
	// device file when Serial is true
	Gateway string `koanf:"Gateway" yaml:"Gateway"`
	Serial  bool   `koanf:"Serial" yaml:"Serial"`

	// Relay is the serial device of the substrate bias battery box;
	// leave empty if not cabled
	Relay string `koanf:"Relay" yaml:"Relay"`

	// Settings is the CCD settings file to load at startup; leave empty
	// to start with defaults
	Settings string `koanf:"Settings" yaml:"Settings"`
}

func setupconfig() {
	k.Load(structs.Provider(Config{
		Addr:    ":8000",
		Gateway: "localhost:2001"}, "koanf"), nil)
	if err := k.Load(file.Provider(ConfigFileName), yaml.Parser()); err != nil {
		errtxt := err.Error()
		if !strings.Contains(errtxt, "no such") { // file missing, who cares
			log.Fatalf("error loading config: %v", err)
		}
	}
}

func root() {
	str := `leachsrv exposes an ARC (Leach) CCD controller over HTTP.

Usage:
	leachsrv <command>

Commands:
	run
	help
	mkconf
	conf
	version`
	fmt.Println(str)
}

func help() {
	str := `leachsrv is configured via its .yml file, see mkconf for a template.

The server wraps a single controller.  Timing parameters are set with
POST requests carrying {"f64": <microseconds>} bodies; see the
route-list endpoint for the full set of routes.

Gateway points at the machine that owns the PCIe interface card; Relay
at the serial line of the substrate bias battery box.`
	fmt.Println(str)
}

func mkconf() {
	c := Config{}
	err := k.Unmarshal("", &c)
	if err != nil {
		log.Fatal(err)
	}
	f, err := os.Create(ConfigFileName)
	if err != nil {
		log.Fatal(err)
	}
	defer f.Close()
	err = yml.NewEncoder(f).Encode(c)
	if err != nil {
		log.Fatal(err)
	}
}

func printconf() {
	c := Config{}
	k.Unmarshal("", &c)
	err := yml.NewEncoder(os.Stdout).Encode(c)
	if err != nil {
		log.Fatal(err)
	}
}

func pversion() {
	fmt.Printf("leachsrv version %v\n", Version)
}

func run() {
	c := Config{}
	err := k.Unmarshal("", &c)
	if err != nil {
		log.Fatal(err)
	}

	dev := arc.NewRemoteDevice(c.Gateway, c.Serial)
	if err := dev.Open(); err != nil {
		log.Fatal(err)
	}
	defer dev.Close()

	var relay leach.Relay
	if c.Relay != "" {
		r, err := leach.OpenBatteryBoxRelay(c.Relay)
		if err != nil {
			log.Fatal(err)
		}
		defer r.Close()
		relay = r
	}

	ctl := leach.NewController(dev, relay)
	if c.Settings != "" {
		if err := ctl.LoadSettings(c.Settings); err != nil {
			log.Fatal(err)
		}
	}

	mux := chi.NewRouter()
	mux.Use(middleware.Logger)
	server.Bind(mux, leach.NewHTTPWrapper(ctl))

	log.Println("now listening for requests at", c.Addr)
	log.Fatal(http.ListenAndServe(c.Addr, mux))
}

func main() {
	args := os.Args
	if len(args) == 1 {
		root()
		return
	}
	setupconfig()
	cmd := strings.ToLower(args[1])
	switch cmd {
	case "run":
		run()
	case "help":
		help()
	case "mkconf":
		mkconf()
	case "conf":
		printconf()
	case "version":
		pversion()
	default:
		root()
	}
}
