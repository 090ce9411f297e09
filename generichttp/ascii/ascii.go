// Package ascii contains injectable HTTP routes for hardware that speaks a
// line based text protocol
package ascii

import (
	"encoding/json"
	"go/types"
	"net/http"
	"strings"

	"github.com/nasa-jpl/golab-switch/generichttp"
	"github.com/nasa-jpl/golab-switch/server"
)

// RawCommunicator sends one line to the device and returns its reply,
// which is empty when the line was not a query
type RawCommunicator interface {
	Raw(string) (string, error)
}

// Raw returns a handler which decodes {"str": "..."} and passes the line to
// dev.  Embedded newlines are rejected, one request is one line.
func Raw(dev RawCommunicator) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		defer r.Body.Close()
		cmd := server.StrT{}
		if err := json.NewDecoder(r.Body).Decode(&cmd); err != nil {
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}
		line := strings.TrimRight(cmd.Str, "\r\n")
		if line == "" || strings.ContainsAny(line, "\r\n") {
			http.Error(w, "raw command must be a single nonempty line", http.StatusBadRequest)
			return
		}
		resp, err := dev.Raw(line)
		if err != nil {
			http.Error(w, err.Error(), http.StatusInternalServerError)
			return
		}
		hp := server.HumanPayload{T: types.String, String: resp}
		hp.EncodeAndRespond(w, r)
	}
}

// InjectRawComm adds POST /raw to the route table of other
func InjectRawComm(other generichttp.HTTPer, dev RawCommunicator) {
	other.RT()[generichttp.MethodPath{Method: http.MethodPost, Path: "/raw"}] = Raw(dev)
}
