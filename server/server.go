// Package server contains misc server utilities.
package server

import (
	"encoding/json"
	"fmt"
	"go/types"
	"log"
	"net/http"
)

// BoolT is a struct with a single Bool field
type BoolT struct {
	Bool bool `json:"bool"`
}

// StrT is a struct with a single Str field
type StrT struct {
	Str string `json:"str"`
}

// IntT is a struct with a single Int field
type IntT struct {
	Int int `json:"int"`
}

// FloatT is a struct with a single F64 field
type FloatT struct {
	F64 float64 `json:"f64"`
}

// HumanPayload is a struct containing the basic types a device may work with,
// and T, which says which one is populated
type HumanPayload struct {
	// T is the type of data the payload holds
	T types.BasicKind

	Bool   bool
	String string
	Int    int
	Float  float64
}

// EncodeAndRespond encodes the payload as JSON, {"bool": value} and so on,
// and writes it to w
func (hp *HumanPayload) EncodeAndRespond(w http.ResponseWriter, r *http.Request) {
	var v interface{}
	switch hp.T {
	case types.Bool:
		v = BoolT{hp.Bool}
	case types.String:
		v = StrT{hp.String}
	case types.Int:
		v = IntT{hp.Int}
	case types.Float64:
		v = FloatT{hp.Float}
	default:
		fstr := fmt.Sprintf("unsupported payload type %v", hp.T)
		log.Println(fstr)
		http.Error(w, fstr, http.StatusInternalServerError)
		return
	}
	RespondJSON(w, v)
}

// RespondJSON writes v to w as JSON with a 200 status
func RespondJSON(w http.ResponseWriter, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	err := json.NewEncoder(w).Encode(v)
	if err != nil {
		fstr := fmt.Sprintf("error encoding data to json %q", err)
		log.Println(fstr)
		http.Error(w, fstr, http.StatusInternalServerError)
	}
}
