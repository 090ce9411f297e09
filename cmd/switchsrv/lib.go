package main

import (
	"fmt"
	"log"
	"net/http"
	"time"

	"github.com/nasa-jpl/golab-switch/comm"
	"github.com/nasa-jpl/golab-switch/generichttp"
	"github.com/nasa-jpl/golab-switch/keithley"
	"github.com/nasa-jpl/golab-switch/server/middleware/locker"
	"github.com/nasa-jpl/golab-switch/tsp"

	"github.com/go-chi/chi"
	"github.com/go-chi/chi/middleware"
	"github.com/tarm/serial"
	"golang.org/x/time/rate"
)

// Instrument holds the parameters used to connect to the switch
type Instrument struct {
	// Addr holds the network or filesystem address of the switch,
	// e.g. 192.168.0.2:5025 for the LAN port or /dev/ttyUSB0 for RS-232
	Addr string `yaml:"Addr" koanf:"Addr"`

	// Serial determines if the connection is serial/RS232 (True) or TCP (False)
	Serial bool `yaml:"Serial" koanf:"Serial"`

	// Baud is the serial baud rate, unused for TCP
	Baud int `yaml:"Baud" koanf:"Baud"`

	// Timeout bounds each read and write, e.g. "5s"
	Timeout string `yaml:"Timeout" koanf:"Timeout"`

	// IdleTimeout is how long the connection is held open after the last command
	IdleTimeout string `yaml:"IdleTimeout" koanf:"IdleTimeout"`

	// CommandInterval is the minimum time between commands; "0s" for no pacing
	CommandInterval string `yaml:"CommandInterval" koanf:"CommandInterval"`
}

// Config is a struct that holds the initialization parameters for the server.
type Config struct {
	// Addr is the address to listen at
	Addr string `yaml:"Addr" koanf:"Addr"`

	// Root is the URL stem the routes are served under, e.g. /switch
	Root string `yaml:"Root" koanf:"Root"`

	// Mock serves a simulated switch instead of connecting to hardware
	Mock bool `yaml:"Mock" koanf:"Mock"`

	Instrument Instrument `yaml:"Instrument" koanf:"Instrument"`
}

// DefaultConfig is used for any value missing from the config file
func DefaultConfig() Config {
	return Config{
		Addr: ":8000",
		Root: "/switch",
		Instrument: Instrument{
			Addr:            "192.168.0.2:5025",
			Baud:            9600,
			Timeout:         "5s",
			IdleTimeout:     "10s",
			CommandInterval: "0s",
		},
	}
}

func parseDurations(strs ...string) ([]time.Duration, error) {
	out := make([]time.Duration, len(strs))
	for i, s := range strs {
		d, err := time.ParseDuration(s)
		if err != nil {
			return nil, fmt.Errorf("invalid duration %q: %w", s, err)
		}
		out[i] = d
	}
	return out, nil
}

// BuildSwitch connects the switch described by c.  When c.Mock is true a
// mock instrument is started on a loopback port and its address is used.
// closer releases the connection pool and stops the mock, if any.
func BuildSwitch(c Config) (sw *keithley.Switch, closer func(), err error) {
	inst := c.Instrument
	durs, err := parseDurations(inst.Timeout, inst.IdleTimeout, inst.CommandInterval)
	if err != nil {
		return nil, nil, err
	}
	timeout, idle, interval := durs[0], durs[1], durs[2]

	addr := inst.Addr
	var mock *keithley.MockInstrument
	if c.Mock {
		mock = keithley.NewMockInstrument()
		addr, err = mock.Listen("127.0.0.1:0")
		if err != nil {
			return nil, nil, err
		}
		log.Println("serving a mock 3706A at", addr)
	}

	var maker comm.CreationFunc
	if inst.Serial && !c.Mock {
		maker = comm.SerialConnMaker(&serial.Config{
			Name:        addr,
			Baud:        inst.Baud,
			Size:        8,
			Parity:      serial.ParityNone,
			StopBits:    serial.Stop1,
			ReadTimeout: timeout})
	} else {
		maker = comm.BackingOffTCPConnMaker(addr, timeout)
	}
	pool := comm.NewPool(1, idle, maker)
	t := &tsp.TSP{Pool: pool, Timeout: timeout}
	if interval > 0 {
		t.Limiter = rate.NewLimiter(rate.Every(interval), 1)
	}
	closer = func() {
		pool.Close()
		if mock != nil {
			mock.Close()
		}
	}
	return keithley.New(t), closer, nil
}

// BuildMux makes the root handler, with the switch's routes mounted at c.Root.
// The routes may be locked against changes with POST <root>/lock.
func BuildMux(c Config, sw *keithley.Switch) chi.Router {
	root := chi.NewRouter()
	root.Use(middleware.Logger)

	httper := keithley.NewHTTPSwitch(sw)
	lock := locker.New()
	locker.Inject(httper, lock)

	sub := chi.NewRouter()
	sub.Use(lock.Check)
	httper.RT().Bind(sub)
	root.Mount(generichttp.SubMuxSanitize(c.Root), sub)

	root.Get("/endpoints", func(w http.ResponseWriter, r *http.Request) {
		stem := generichttp.SubMuxSanitize(c.Root)
		eps := httper.RT().Endpoints()
		for i := range eps {
			eps[i] = prefixPath(eps[i], stem)
		}
		respondLines(w, eps)
	})
	return root
}

// prefixPath turns "GET /idn" into "GET /switch/idn"
func prefixPath(ep, stem string) string {
	for i := 0; i < len(ep); i++ {
		if ep[i] == ' ' {
			return ep[:i+1] + stem + ep[i+1:]
		}
	}
	return ep
}

func respondLines(w http.ResponseWriter, lines []string) {
	w.Header().Set("Content-Type", "text/plain")
	w.WriteHeader(http.StatusOK)
	for _, l := range lines {
		fmt.Fprintln(w, l)
	}
}
