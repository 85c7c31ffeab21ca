package testutil

import (
	"net/http"
	"testing"
)

func TestGet(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("/healthz", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusTeapot)
	})
	AssertStatusCode(t, Get(mux, "/healthz").Code, http.StatusTeapot)
	AssertStatusCode(t, Get(mux, "/missing").Code, http.StatusNotFound)
}

func TestAssertRouted(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("/debug/runs", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusForbidden)
	})
	AssertRouted(t, mux, "/debug/runs")
}
