package generichttp_test

import (
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/go-chi/chi"
	"github.com/google/go-cmp/cmp"
	"github.com/nasa-jpl/golab-switch/generichttp"
)

func TestSubMuxSanitize(t *testing.T) {
	cases := map[string]string{
		"omc/switch":    "/omc/switch",
		"/omc/switch/":  "/omc/switch",
		"/omc/switch/*": "/omc/switch",
		"":              "/",
	}
	for in, want := range cases {
		if got := generichttp.SubMuxSanitize(in); got != want {
			t.Errorf("%q: expected %q got %q", in, want, got)
		}
	}
}

func TestEndpointsSorted(t *testing.T) {
	rt := generichttp.RouteTable{
		{Method: http.MethodPost, Path: "/lan/enable"}: nil,
		{Method: http.MethodGet, Path: "/lan/enable"}:  nil,
		{Method: http.MethodGet, Path: "/idn"}:         nil,
	}
	want := []string{"GET /idn", "GET /lan/enable", "POST /lan/enable"}
	if diff := cmp.Diff(want, rt.Endpoints()); diff != "" {
		t.Errorf("endpoints mismatch (-want +got):\n%s", diff)
	}
}

func TestBoundHandlers(t *testing.T) {
	var set bool
	rt := generichttp.RouteTable{
		{Method: http.MethodGet, Path: "/ok"}:   generichttp.GetBool(func() (bool, error) { return true, nil }),
		{Method: http.MethodPost, Path: "/ok"}:  generichttp.SetBool(func(b bool) error { set = b; return nil }),
		{Method: http.MethodGet, Path: "/bad"}:  generichttp.GetInt(func() (int, error) { return 0, errors.New("i/o timeout") }),
		{Method: http.MethodPost, Path: "/do"}:  generichttp.Do(func() error { return nil }),
		{Method: http.MethodGet, Path: "/json"}: generichttp.GetJSON(func() (interface{}, error) { return []string{"1101"}, nil }),
	}
	r := chi.NewRouter()
	rt.Bind(r)

	do := func(method, path, body string) *httptest.ResponseRecorder {
		w := httptest.NewRecorder()
		r.ServeHTTP(w, httptest.NewRequest(method, path, strings.NewReader(body)))
		return w
	}
	if w := do(http.MethodGet, "/ok", ""); w.Body.String() != "{\"bool\":true}\n" {
		t.Errorf("unexpected GET /ok body %q", w.Body.String())
	}
	if w := do(http.MethodPost, "/ok", `{"bool": true}`); w.Code != http.StatusOK || !set {
		t.Errorf("expected POST /ok to set true, code %d", w.Code)
	}
	if w := do(http.MethodPost, "/ok", `not json`); w.Code != http.StatusBadRequest {
		t.Errorf("expected 400 for bad json, got %d", w.Code)
	}
	if w := do(http.MethodGet, "/bad", ""); w.Code != http.StatusInternalServerError {
		t.Errorf("expected 500 when the device errors, got %d", w.Code)
	}
	if w := do(http.MethodPost, "/do", ""); w.Code != http.StatusOK {
		t.Errorf("expected 200, got %d", w.Code)
	}
	if w := do(http.MethodGet, "/json", ""); w.Body.String() != "[\"1101\"]\n" {
		t.Errorf("unexpected GET /json body %q", w.Body.String())
	}
	if w := do(http.MethodGet, "/endpoints", ""); !strings.Contains(w.Body.String(), "GET /json") {
		t.Errorf("expected /endpoints to list routes, got %q", w.Body.String())
	}
}
