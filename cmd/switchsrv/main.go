package main

import (
	"fmt"
	"log"
	"net/http"
	"os"
	"strings"
	"time"

	"github.com/knadh/koanf"
	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/providers/structs"
	"github.com/theckman/yacspin"

	yml "gopkg.in/yaml.v2"
)

var (
	// Version is the version number.  Typically injected via ldflags with git build
	Version = "1"

	// ConfigFileName is what it sounds like
	ConfigFileName = "switchsrv.yml"
	k              = koanf.New(".")
)

func setupconfig() {
	k.Load(structs.Provider(DefaultConfig(), "koanf"), nil)
	if err := k.Load(file.Provider(ConfigFileName), yaml.Parser()); err != nil {
		errtxt := err.Error()
		if !strings.Contains(errtxt, "no such") { // file missing, who cares
			log.Fatalf("error loading config: %v", err)
		}
	}
}

func loadconfig() Config {
	c := Config{}
	err := k.Unmarshal("", &c)
	if err != nil {
		log.Fatal(err)
	}
	return c
}

func root() {
	str := `switchsrv exposes control of a Keithley 3706A system switch over HTTP
This enables a server-client architecture, and the clients can leverage the
excellent HTTP libraries for any programming language.

Usage:
	switchsrv <command>

Commands:
	run
	channels
	help
	mkconf
	conf
	version`
	fmt.Println(str)
}

func help() {
	str := `switchsrv is amenable to configuration via its .yaml file.  For a primer on YAML, see
https://yaml.org/start.html

When no configuration is provided, the defaults are used.
The command mkconf generates the configuration file with the default values.

Instrument.Addr is host:port for the LAN interface (the 3706A takes raw
commands on port 5025), or a device such as /dev/ttyUSB0 with Serial: true.

Durations (Timeout, IdleTimeout, CommandInterval) are written like 5s or 250ms.
A nonzero CommandInterval paces commands for slow links.

Mock: true serves a simulated mainframe with a 3730 in slot 1 and a 3732 in
slot 3, for trying out clients without hardware.

channels prints the connection banner and every matrix channel, one per line.

Routes are served under Root; GET /endpoints lists them.  POST <Root>/lock
with {"bool": true} rejects every non-GET request with 423 until unlocked.`
	fmt.Println(str)
}

func mkconf() {
	c := loadconfig()
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
	c := loadconfig()
	err := yml.NewEncoder(os.Stdout).Encode(c)
	if err != nil {
		log.Fatal(err)
	}
}

func pversion() {
	fmt.Printf("switchsrv version %v\n", Version)
}

func channels() {
	c := loadconfig()
	sw, closer, err := BuildSwitch(c)
	if err != nil {
		log.Fatal(err)
	}
	defer closer()
	banner, err := sw.ConnectMessage()
	if err != nil {
		log.Fatal(err)
	}
	for _, l := range banner {
		fmt.Println(l)
	}

	spinner, err := yacspin.New(yacspin.Config{
		Frequency:         100 * time.Millisecond,
		CharSet:           yacspin.CharSets[14],
		Suffix:            " enumerating matrix channels",
		StopCharacter:     "✓",
		StopColors:        []string{"fgGreen"},
		StopFailCharacter: "✗",
		StopFailColors:    []string{"fgRed"},
		Writer:            os.Stderr,
	})
	if err != nil {
		log.Fatal(err)
	}
	spinner.Start()
	chs, err := sw.Channels()
	if err != nil {
		spinner.StopFailMessage(err.Error())
		spinner.StopFail()
		closer()
		os.Exit(1)
	}
	spinner.StopMessage(fmt.Sprintf("%d channels", len(chs)))
	spinner.Stop()
	for _, ch := range chs {
		fmt.Println(ch)
	}
}

func run() {
	c := loadconfig()
	sw, closer, err := BuildSwitch(c)
	if err != nil {
		log.Fatal(err)
	}
	defer closer()
	banner, err := sw.ConnectMessage()
	if err != nil {
		log.Println("switch did not identify, serving anyway:", err)
	}
	for _, l := range banner {
		log.Println(l)
	}
	mux := BuildMux(c, sw)
	log.Println("now listening for requests at ", c.Addr+c.Root)
	log.Fatal(http.ListenAndServe(c.Addr, mux))
}

func main() {
	var cmd string
	args := os.Args
	if len(args) == 1 {
		root()
		return
	}
	setupconfig()
	cmd = args[1]
	cmd = strings.ToLower(cmd)
	switch cmd {
	case "help":
		help()
	case "mkconf":
		mkconf()
	case "conf":
		printconf()
	case "version":
		pversion()
	case "channels":
		channels()
	case "run":
		run()
	default:
		log.Fatal("unknown command")
	}
}
