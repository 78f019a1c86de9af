package camera

import (
	"math"
	"testing"
	"time"

	"edgevision-worker-go/internal/models"
)

func TestStatsInitialState(t *testing.T) {
	s := NewStats(0, "rtsp://cam/stream", "rtsp")
	snap := s.Snapshot()
	if snap.State != models.CameraStateConnecting {
		t.Errorf("state = %s, want connecting", snap.State)
	}
	if snap.Tag != "rtsp" || snap.Source != "rtsp://cam/stream" {
		t.Errorf("snapshot = %+v", snap)
	}
}

func TestStatsEWMA(t *testing.T) {
	s := NewStats(0, "0", "cam0")

	base := time.Unix(1700000000, 0)
	// Steady 30fps: the estimate converges to ~30.
	for i := 0; i < 200; i++ {
		s.ObserveFrame(base.Add(time.Duration(i)*33333*time.Microsecond), 0)
	}
	if fps := s.FPS(); math.Abs(fps-30) > 1 {
		t.Errorf("fps = %.2f, want ~30", fps)
	}

	// A single slow frame moves the estimate by at most the smoothing
	// factor's worth.
	before := s.FPS()
	s.ObserveFrame(base.Add(200*33333*time.Microsecond).Add(time.Second), 0)
	after := s.FPS()
	if after >= before {
		t.Errorf("fps did not drop after slow frame: %v -> %v", before, after)
	}
	if after < before*0.8 {
		t.Errorf("single sample moved EWMA too far: %v -> %v", before, after)
	}
}

func TestStatsSnapshotFields(t *testing.T) {
	s := NewStats(2, "0", "cam2")
	s.SetState(models.CameraStateOnline)

	ts := time.Unix(1700000000, 0)
	s.ObserveFrame(ts, 3)

	snap := s.Snapshot()
	if snap.Index != 2 || snap.State != models.CameraStateOnline {
		t.Errorf("snapshot = %+v", snap)
	}
	if snap.LastDetectionCount != 3 || snap.FrameCount != 1 {
		t.Errorf("counters = %+v", snap)
	}
	if !snap.LastFrameTime.Equal(ts) {
		t.Errorf("last frame time = %v", snap.LastFrameTime)
	}
}
