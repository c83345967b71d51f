//go:build linux

package device

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
)

const sampleMeminfo = `MemTotal:       16318540 kB
MemFree:          912344 kB
MemAvailable:    9876543 kB
Buffers:          204800 kB
Cached:          8123456 kB
`

func TestParseMemAvailable(t *testing.T) {
	t.Parallel()

	got, ok := parseMemAvailable(strings.NewReader(sampleMeminfo))
	if !ok {
		t.Fatal("MemAvailable not found")
	}
	if want := uint64(9876543) * 1024; got != want {
		t.Fatalf("got %d want %d", got, want)
	}

	for name, in := range map[string]string{
		"missing": "MemTotal: 100 kB\nMemFree: 50 kB\n",
		"garbage": "MemAvailable: lots kB\n",
		"empty":   "",
	} {
		if _, ok := parseMemAvailable(strings.NewReader(in)); ok {
			t.Errorf("%s: parsed a value from %q", name, in)
		}
	}
}

func TestHostProviderPrefersMeminfo(t *testing.T) {
	t.Parallel()

	path := filepath.Join(t.TempDir(), "meminfo")
	if err := os.WriteFile(path, []byte(sampleMeminfo), 0o644); err != nil {
		t.Fatal(err)
	}
	st, err := sysinfoProvider{meminfo: path}.Stats()
	if err != nil {
		t.Fatalf("Stats: %v", err)
	}
	if want := uint64(9876543) * 1024; st.AvailableMemory != want {
		t.Fatalf("AvailableMemory: got %d want %d", st.AvailableMemory, want)
	}
	if st.TotalMemory == 0 || st.Cores <= 0 {
		t.Fatalf("got %+v", st)
	}
}

func TestHostProviderFallsBackToSysinfo(t *testing.T) {
	t.Parallel()

	st, err := sysinfoProvider{meminfo: filepath.Join(t.TempDir(), "absent")}.Stats()
	if err != nil {
		t.Fatalf("Stats: %v", err)
	}
	if st.AvailableMemory == 0 || st.AvailableMemory > st.TotalMemory {
		t.Fatalf("fallback available memory: got %d of %d total", st.AvailableMemory, st.TotalMemory)
	}
}
