// Package testutil holds HTTP assertions shared by the admin and serve
// route tests.
package testutil

import (
	"net/http"
	"net/http/httptest"
	"testing"
)

// AssertStatusCode checks that the response status code matches expected.
func AssertStatusCode(t *testing.T, got, want int) {
	t.Helper()
	if got != want {
		t.Errorf("status code = %d, want %d", got, want)
	}
}

// Get serves a GET for path through h and returns the recorded response.
func Get(h http.Handler, path string) *httptest.ResponseRecorder {
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, path, nil))
	return rec
}

// AssertRouted fails for every path h answers with 404. tsweb debug routes
// refuse non-local callers with 403, which still proves registration.
func AssertRouted(t *testing.T, h http.Handler, paths ...string) {
	t.Helper()
	for _, p := range paths {
		if code := Get(h, p).Code; code == http.StatusNotFound {
			t.Errorf("endpoint %s should be registered, got 404", p)
		}
	}
}
