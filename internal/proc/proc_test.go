package proc

import (
	"io"
	"log/slog"
	"reflect"
	"testing"
)

func testRegistry() *Registry {
	return NewRegistry(slog.New(slog.NewTextHandler(io.Discard, nil)))
}

func TestTrackUntrackNames(t *testing.T) {
	r := testRegistry()
	r.Track("watch-phone-to-local", 101)
	r.Track("continuous-sync", 102)
	r.Track("watch-local-to-phone", 103)

	want := []string{"continuous-sync", "watch-local-to-phone", "watch-phone-to-local"}
	if got := r.Names(); !reflect.DeepEqual(got, want) {
		t.Errorf("Names = %v, want %v", got, want)
	}

	r.Untrack("continuous-sync")
	if got := r.Names(); len(got) != 2 {
		t.Errorf("after Untrack, Names = %v", got)
	}
}

func TestTrackReplacesPid(t *testing.T) {
	r := testRegistry()
	r.Track("continuous-sync", 200)
	r.Track("continuous-sync", 201)
	if got := r.Names(); len(got) != 1 {
		t.Errorf("re-tracking the same name must not duplicate it: %v", got)
	}
}

func TestStopAllClearsRegistry(t *testing.T) {
	r := testRegistry()
	// Pids that certainly do not exist; StopAll must swallow the signal
	// failures and still clear every entry.
	r.Track("watch-phone-to-local", 4194000)
	r.Track("watch-local-to-phone", 4194001)

	r.StopAll()

	if got := r.Names(); len(got) != 0 {
		t.Errorf("StopAll must empty the registry, left %v", got)
	}
	// A second StopAll on an empty registry is a no-op.
	r.StopAll()
}
