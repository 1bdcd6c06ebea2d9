package http

import (
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	perr "otprelay/internal/platform/errors"
	pnet "otprelay/internal/platform/net"
)

func decode(t *testing.T, rr *httptest.ResponseRecorder) Envelope {
	t.Helper()
	var env Envelope
	if err := json.Unmarshal(rr.Body.Bytes(), &env); err != nil {
		t.Fatalf("decode %q: %v", rr.Body.String(), err)
	}
	return env
}

func serve(h http.HandlerFunc, reqID string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(http.MethodGet, "/x", nil)
	req = req.WithContext(pnet.WithRequest(req.Context(), reqID))
	rr := httptest.NewRecorder()
	h.ServeHTTP(rr, req)
	return rr
}

func TestHandle_OK(t *testing.T) {
	t.Parallel()

	rr := serve(Handle(func(*http.Request) Response { return OK(map[string]int{"n": 1}) }), "r1")
	if rr.Code != http.StatusOK {
		t.Fatalf("code = %d", rr.Code)
	}
	if ct := rr.Header().Get("Content-Type"); ct != "application/json; charset=utf-8" {
		t.Fatalf("content type = %q", ct)
	}
	env := decode(t, rr)
	if env.StatusCode != 200 || env.Status != "OK" || env.RequestID != "r1" || env.Data == nil {
		t.Fatalf("envelope = %+v", env)
	}
}

func TestHandle_ErrorMapsStatus(t *testing.T) {
	t.Parallel()

	cases := []struct {
		err  error
		want int
		code perr.ErrorCode
	}{
		{perr.NotFoundf("no ledger"), http.StatusNotFound, perr.ErrorCodeNotFound},
		{perr.Unavailablef("panel down"), http.StatusServiceUnavailable, perr.ErrorCodeUnavailable},
		{errors.New("plain"), http.StatusInternalServerError, perr.ErrorCodeUnknown},
	}
	for _, tc := range cases {
		rr := serve(Handle(func(*http.Request) Response { return Error(tc.err) }), "")
		if rr.Code != tc.want {
			t.Fatalf("%v: code = %d want %d", tc.err, rr.Code, tc.want)
		}
		env := decode(t, rr)
		if env.Code != tc.code || env.Error == "" || env.Data != nil {
			t.Fatalf("%v: envelope = %+v", tc.err, env)
		}
	}
}

func TestHandle_PinnedStatusAndHeaders(t *testing.T) {
	t.Parallel()

	rr := serve(Handle(func(*http.Request) Response {
		resp := Unavailable(map[string]string{"pg": "down"})
		resp.Header = http.Header{"X-Probe": []string{"ready"}}
		return resp
	}), "")
	if rr.Code != http.StatusServiceUnavailable || rr.Header().Get("X-Probe") != "ready" {
		t.Fatalf("code = %d headers = %v", rr.Code, rr.Header())
	}
	if env := decode(t, rr); env.Data == nil {
		t.Fatalf("503 should keep its data: %+v", env)
	}

	rr = serve(Handle(func(*http.Request) Response { return Response{Status: http.StatusNoContent} }), "")
	if rr.Code != http.StatusNoContent || rr.Body.Len() != 0 {
		t.Fatalf("204 code = %d body = %q", rr.Code, rr.Body.String())
	}

	rr = serve(Handle(func(*http.Request) Response { return Response{Body: "x"} }), "")
	if rr.Code != http.StatusOK {
		t.Fatalf("zero status should default to 200, got %d", rr.Code)
	}
}
