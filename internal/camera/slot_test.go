package camera

import (
	"sync"
	"testing"
)

func TestSlotEmpty(t *testing.T) {
	slot := &LatestFrameSlot{}
	if _, _, ok := slot.Get(); ok {
		t.Error("empty slot returned a frame")
	}
}

func TestSlotNewestWins(t *testing.T) {
	slot := &LatestFrameSlot{}
	slot.Set([]byte("first"))
	slot.Set([]byte("second"))

	jpeg, seq, ok := slot.Get()
	if !ok || string(jpeg) != "second" {
		t.Errorf("got %q, want the newest frame", jpeg)
	}
	if seq != 2 {
		t.Errorf("seq = %d, want 2", seq)
	}
}

func TestSlotGetReturnsCopy(t *testing.T) {
	slot := &LatestFrameSlot{}
	slot.Set([]byte("frame"))

	jpeg, _, _ := slot.Get()
	jpeg[0] = 'X'

	again, _, _ := slot.Get()
	if string(again) != "frame" {
		t.Error("reader mutation leaked into the slot")
	}
}

func TestSlotConcurrent(t *testing.T) {
	slot := &LatestFrameSlot{}
	var wg sync.WaitGroup

	wg.Add(2)
	go func() {
		defer wg.Done()
		for i := 0; i < 1000; i++ {
			slot.Set([]byte{byte(i), byte(i), byte(i)})
		}
	}()
	go func() {
		defer wg.Done()
		for i := 0; i < 1000; i++ {
			if jpeg, _, ok := slot.Get(); ok {
				// A whole frame is three identical bytes; a torn one
				// would mix writes.
				if jpeg[0] != jpeg[1] || jpeg[1] != jpeg[2] {
					t.Error("observed torn frame")
					return
				}
			}
		}
	}()
	wg.Wait()

	if got := slot.Seq(); got != 1000 {
		t.Errorf("seq = %d, want 1000", got)
	}
}
