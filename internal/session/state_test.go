package session

import (
	"context"
	"sync"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/require"
	"pgregory.net/rapid"
)

type countingCanceler struct {
	n atomic.Int32
}

func (c *countingCanceler) Cancel() error {
	c.n.Add(1)
	return nil
}

func TestBegin_SecondClaimIsBusy(t *testing.T) {
	s := New(context.Background())

	slot, err := s.Begin("wake")
	require.NoError(t, err)
	require.Equal(t, "wake", s.Active())

	_, err = s.Begin("record")
	require.ErrorIs(t, err, ErrWorkerBusy)

	slot.Release()
	require.Equal(t, "", s.Active())

	slot2, err := s.Begin("record")
	require.NoError(t, err)
	require.Equal(t, "record", slot2.Phase())
}

func TestRelease_Twice_DoesNotFreeOtherHolder(t *testing.T) {
	s := New(context.Background())

	first, err := s.Begin("boot")
	require.NoError(t, err)
	first.Release()

	second, err := s.Begin("record")
	require.NoError(t, err)

	first.Release()
	require.Equal(t, "record", s.Active())
	_, err = s.Begin("process")
	require.ErrorIs(t, err, ErrWorkerBusy)
	second.Release()
}

func TestStop_CancelsBoundWorkerOnce(t *testing.T) {
	s := New(context.Background())
	w := &countingCanceler{}

	slot, err := s.Begin("process")
	require.NoError(t, err)
	slot.Bind(w)

	var wg sync.WaitGroup
	for i := 0; i < 16; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			s.Stop()
		}()
	}
	wg.Wait()

	require.Equal(t, int32(1), w.n.Load())
	require.False(t, s.Running())
	select {
	case <-s.Done():
	default:
		t.Fatal("Done should be closed after Stop")
	}
}

func TestBind_AfterStop_CancelsImmediately(t *testing.T) {
	s := New(context.Background())
	slot, err := s.Begin("wake")
	require.NoError(t, err)

	s.Stop()

	w := &countingCanceler{}
	slot.Bind(w)
	require.Equal(t, int32(1), w.n.Load())
}

func TestBegin_AfterStop_ReturnsStopped(t *testing.T) {
	s := New(context.Background())
	s.Stop()

	_, err := s.Begin("wake")
	require.ErrorIs(t, err, ErrStopped)
}

func TestParentCancel_StopsSession(t *testing.T) {
	parent, cancel := context.WithCancel(context.Background())
	s := New(parent)
	cancel()

	<-s.Done()
	require.False(t, s.Running())
	_, err := s.Begin("wake")
	require.ErrorIs(t, err, ErrStopped)
}

func TestID_IsUniquePerSession(t *testing.T) {
	require.NotEqual(t, New(context.Background()).ID(), New(context.Background()).ID())
}

// TestProperty_AtMostOneSlotHeld drives random Begin/Release/Stop sequences and
// checks the slot against a simple model.
func TestProperty_AtMostOneSlotHeld(t *testing.T) {
	rapid.Check(t, func(t *rapid.T) {
		s := New(context.Background())
		var held *Slot
		stopped := false

		steps := rapid.IntRange(1, 40).Draw(t, "steps")
		for i := 0; i < steps; i++ {
			switch rapid.IntRange(0, 9).Draw(t, "op") {
			case 0:
				s.Stop()
				stopped = true
			case 1, 2, 3:
				if held != nil {
					held.Release()
					held = nil
				}
			default:
				slot, err := s.Begin("phase")
				switch {
				case stopped:
					if err != ErrStopped {
						t.Fatalf("Begin after Stop: got %v", err)
					}
				case held != nil:
					if err != ErrWorkerBusy {
						t.Fatalf("Begin while held: got %v", err)
					}
				default:
					if err != nil {
						t.Fatalf("Begin on free slot: %v", err)
					}
					held = slot
				}
			}

			wantActive := held != nil
			if (s.Active() != "") != wantActive {
				t.Fatalf("active=%q but model held=%v", s.Active(), wantActive)
			}
		}
	})
}
