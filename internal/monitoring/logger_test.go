package monitoring

import (
	"fmt"
	"testing"
)

// capture swaps in a recording logger for the duration of the test.
func capture(t *testing.T) *[]string {
	t.Helper()
	original := Logf
	t.Cleanup(func() { Logf = original })
	var lines []string
	SetLogger(func(format string, v ...interface{}) {
		lines = append(lines, fmt.Sprintf(format, v...))
	})
	return &lines
}

func TestSetLogger(t *testing.T) {
	lines := capture(t)
	Logf("scene %s: %d pixels masked", "S2_20200101_T55KDA", 12)
	if len(*lines) != 1 || (*lines)[0] != "scene S2_20200101_T55KDA: 12 pixels masked" {
		t.Fatalf("got %q", *lines)
	}

	SetLogger(nil)
	Logf("muted")
	if len(*lines) != 1 {
		t.Errorf("muted logger still recorded: %q", *lines)
	}
}

func TestLogf_Default(t *testing.T) {
	if Logf == nil {
		t.Fatal("Logf should not be nil by default")
	}
}

func TestPrefixed(t *testing.T) {
	lines := capture(t)
	p := Prefixed("[migrate] ")
	p.Printf("applied %d", 2)
	if len(*lines) != 1 || (*lines)[0] != "[migrate] applied 2" {
		t.Errorf("got %q", *lines)
	}
	if p.Verbose() {
		t.Error("Prefixed should not be verbose")
	}
}
