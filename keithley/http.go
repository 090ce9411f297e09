package keithley

import (
	"encoding/json"
	"net/http"

	"github.com/go-chi/chi"
	"github.com/nasa-jpl/golab-switch/generichttp"
	"github.com/nasa-jpl/golab-switch/generichttp/ascii"
	"github.com/nasa-jpl/golab-switch/server"
)

// HTTPSwitch provides HTTP bindings on top of the underlying Go interface
type HTTPSwitch struct {
	// Switch is the underlying switch that is wrapped
	Switch *Switch

	// RouteTable maps method-path pairs to http handlers
	RouteTable generichttp.RouteTable
}

// NewHTTPSwitch returns a new HTTP wrapper with the route table pre-configured
func NewHTTPSwitch(s *Switch) HTTPSwitch {
	w := HTTPSwitch{Switch: s}
	get := func(p string) generichttp.MethodPath { return generichttp.MethodPath{Method: http.MethodGet, Path: p} }
	post := func(p string) generichttp.MethodPath { return generichttp.MethodPath{Method: http.MethodPost, Path: p} }
	rt := generichttp.RouteTable{
		get("/idn"):      generichttp.GetJSON(func() (interface{}, error) { return s.Identify() }),
		get("/cards"):    generichttp.GetJSON(func() (interface{}, error) { return s.SwitchCards() }),
		get("/channels"): generichttp.GetJSON(func() (interface{}, error) { return s.Channels() }),
		get("/memory"):   generichttp.GetJSON(func() (interface{}, error) { return s.AvailableMemory() }),
		get("/errors"):   w.HTTPErrors,

		get("/gpib/enable"):   generichttp.GetBool(s.GPIBEnabled),
		post("/gpib/enable"):  generichttp.SetBool(s.SetGPIBEnabled),
		get("/gpib/address"):  generichttp.GetInt(s.GPIBAddress),
		post("/gpib/address"): w.HTTPSetGPIBAddress,
		get("/lan/enable"):    generichttp.GetBool(s.LANEnabled),
		post("/lan/enable"):   generichttp.SetBool(s.SetLANEnabled),
		get("/lan/ip"):        generichttp.GetString(s.IPAddress),
		post("/lan/reset"):    generichttp.Do(s.ResetLAN),

		post("/setup/save"):        generichttp.SetString(s.SaveSetup),
		post("/setup/recall"):      generichttp.SetInt(s.RecallSetup),
		post("/setup/recall-file"): generichttp.SetString(s.RecallSetupFile),

		get("/channels/closed"):     generichttp.GetJSON(func() (interface{}, error) { return s.ClosedChannels() }),
		post("/channels/open-all"):  generichttp.Do(s.OpenAll),
		post("/channel/{ch}/close"): w.HTTPCloseChannel,
		post("/channel/{ch}/open"):  w.HTTPOpenChannel,
	}
	w.RouteTable = rt
	ascii.InjectRawComm(w, s)
	return w
}

// RT satisfies the generichttp.HTTPer interface
func (h HTTPSwitch) RT() generichttp.RouteTable {
	return h.RouteTable
}

// HTTPSetGPIBAddress sets the GPIB address from {"int": addr}, answering
// 400 for an address outside 1..30
func (h HTTPSwitch) HTTPSetGPIBAddress(w http.ResponseWriter, r *http.Request) {
	i := server.IntT{}
	err := json.NewDecoder(r.Body).Decode(&i)
	defer r.Body.Close()
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	err = h.Switch.SetGPIBAddress(i.Int)
	if err == ErrGPIBAddressRange {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	w.WriteHeader(http.StatusOK)
}

// HTTPCloseChannel closes the channel named in the URL
func (h HTTPSwitch) HTTPCloseChannel(w http.ResponseWriter, r *http.Request) {
	generichttp.Do(func() error { return h.Switch.CloseChannel(chi.URLParam(r, "ch")) })(w, r)
}

// HTTPOpenChannel opens the channel named in the URL
func (h HTTPSwitch) HTTPOpenChannel(w http.ResponseWriter, r *http.Request) {
	generichttp.Do(func() error { return h.Switch.OpenChannel(chi.URLParam(r, "ch")) })(w, r)
}

// HTTPErrors drains the error queue and returns the messages as a JSON array of strings
func (h HTTPSwitch) HTTPErrors(w http.ResponseWriter, r *http.Request) {
	generichttp.GetJSON(func() (interface{}, error) {
		errs, err := h.Switch.Errors()
		if err != nil {
			return nil, err
		}
		strs := make([]string, len(errs))
		for i, e := range errs {
			strs[i] = e.Error()
		}
		return strs, nil
	})(w, r)
}
