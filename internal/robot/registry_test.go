package robot

import (
	"testing"

	"arenad/internal/arena"
)

// stubSender records nothing; identity is what the registry cares about.
type stubSender struct {
	closed bool
}

func (s *stubSender) Send(any) error { return nil }
func (s *stubSender) Close()         { s.closed = true }

func TestBeginUniqueness(t *testing.T) {
	r := NewRegistry()
	conn1 := &stubSender{}
	conn2 := &stubSender{}

	fresh, err := r.Begin("Gamma", "CRASH_SITE", 42, "", conn1)
	if err != nil || !fresh {
		t.Fatalf("first begin: fresh=%v err=%v", fresh, err)
	}

	if _, err := r.Begin("Gamma", "CRASH_SITE", 42, "", conn2); err == nil {
		t.Fatal("second live connection with the same name must be rejected")
	}

	// Same connection again is a no-op, not a rejection.
	fresh, err = r.Begin("Gamma", "CRASH_SITE", 43, "", conn1)
	if err != nil {
		t.Fatalf("re-begin on same connection: %v", err)
	}
	if fresh {
		t.Fatal("re-begin should not count as a fresh connection")
	}
	if id, _ := r.ArucoOf("Gamma"); id != 43 {
		t.Fatalf("re-begin should update the marker id, got %d", id)
	}
}

func TestDisconnectKeepsRecord(t *testing.T) {
	r := NewRegistry()
	conn := &stubSender{}
	r.Begin("Alpha", "MINES", 7, "esp32", conn)

	other := &stubSender{}
	if r.Disconnect("Alpha", other) != nil {
		t.Fatal("a foreign connection must not disconnect the record")
	}

	closing := r.Disconnect("Alpha", conn)
	if closing != conn {
		t.Fatal("disconnect should hand back the bound sender")
	}

	snap := r.Snapshot()
	if len(snap) != 1 || snap[0].Name != "Alpha" || snap[0].Connected {
		t.Fatalf("record after disconnect: %+v", snap)
	}
	// Begin on a new connection revives the same record.
	fresh, err := r.Begin("Alpha", "MINES", 7, "", &stubSender{})
	if err != nil || !fresh {
		t.Fatalf("rebind after disconnect: fresh=%v err=%v", fresh, err)
	}
}

func TestPoseHistoryWindow(t *testing.T) {
	r := NewRegistry()
	r.Begin("Beta", "", 42, "", &stubSender{})

	seen := PoseSample{Pose: arena.Pose{X: 1.00, Y: 0.50, Theta: 0}, Visible: true}
	gone := PoseSample{Pose: arena.NotVisible, Visible: false}

	for i := 0; i < 5; i++ {
		r.PushPose("Beta", seen)
	}
	if pose, ok := r.LatestValid("Beta"); !ok || pose.X != 1.00 || pose.Y != 0.50 {
		t.Fatalf("pose while visible: %+v ok=%v", pose, ok)
	}

	// Four invisible samples: the old fix is still inside the window.
	for i := 0; i < 4; i++ {
		r.PushPose("Beta", gone)
	}
	if pose, ok := r.LatestValid("Beta"); !ok || pose.X != 1.00 {
		t.Fatalf("pose within blink window: %+v ok=%v", pose, ok)
	}

	// Fifth invisible sample evicts it.
	r.PushPose("Beta", gone)
	if pose, ok := r.LatestValid("Beta"); ok || pose != arena.NotVisible {
		t.Fatalf("pose after full blink: %+v ok=%v", pose, ok)
	}
}

func TestLatestValidUnknownTeam(t *testing.T) {
	r := NewRegistry()
	if pose, ok := r.LatestValid("nobody"); ok || pose != arena.NotVisible {
		t.Fatalf("unknown team: %+v ok=%v", pose, ok)
	}
}

func TestSnapshotSortsCaseInsensitively(t *testing.T) {
	r := NewRegistry()
	for _, name := range []string{"charlie", "Alpha", "beta"} {
		r.Begin(name, "", 1, "", &stubSender{})
	}
	snap := r.Snapshot()
	want := []string{"Alpha", "beta", "charlie"}
	for i, e := range snap {
		if e.Name != want[i] {
			t.Fatalf("roster order %v, want %v", snap, want)
		}
	}
}

func TestCountMissedPingThreshold(t *testing.T) {
	r := NewRegistry()
	r.Begin("Delta", "", 1, "", &stubSender{})

	for i := 1; i < MaxMissedPings; i++ {
		if r.CountMissedPing("Delta") {
			t.Fatalf("timed out after %d pings", i)
		}
	}
	if !r.CountMissedPing("Delta") {
		t.Fatalf("no timeout after %d pings", MaxMissedPings)
	}

	// An inbound ping resets the clock.
	r.Begin("Echo", "", 2, "", &stubSender{})
	for i := 0; i < MaxMissedPings-1; i++ {
		r.CountMissedPing("Echo")
	}
	r.ResetPings("Echo")
	if r.CountMissedPing("Echo") {
		t.Fatal("counter should restart after a reset")
	}
}

func TestIsRobotMarker(t *testing.T) {
	r := NewRegistry()
	r.Begin("Alpha", "", 42, "", &stubSender{})
	if !r.IsRobotMarker(42) {
		t.Fatal("marker 42 belongs to Alpha")
	}
	if r.IsRobotMarker(7) {
		t.Fatal("marker 7 belongs to nobody")
	}
}
