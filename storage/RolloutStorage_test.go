package storage

import (
	"math"
	"testing"

	"github.com/vecrl/vecrl/spec"
)

const tolerance float64 = 1e-12

// newTestStorage returns a RolloutStorage for a discrete two-action
// problem with scalar observations and no recurrent state
func newTestStorage(t *testing.T, numSteps, numProcesses int) *RolloutStorage {
	t.Helper()
	s, err := New(numSteps, numProcesses, []int{1}, spec.NewDiscrete(2), 0)
	if err != nil {
		t.Fatalf("could not create storage: %v", err)
	}
	return s
}

func TestNewValidatesArguments(t *testing.T) {
	if _, err := New(0, 2, []int{1}, spec.NewDiscrete(2), 0); err == nil {
		t.Error("expected error for non-positive numSteps")
	}
	if _, err := New(2, 0, []int{1}, spec.NewDiscrete(2), 0); err == nil {
		t.Error("expected error for non-positive numProcesses")
	}
	if _, err := New(2, 2, []int{}, spec.NewDiscrete(2), 0); err == nil {
		t.Error("expected error for empty observation shape")
	}
	if _, err := New(2, 2, []int{-1}, spec.NewDiscrete(2), 0); err == nil {
		t.Error("expected error for negative observation dimension")
	}
	if _, err := New(2, 2, []int{1}, spec.NewDiscrete(2), -1); err == nil {
		t.Error("expected error for negative hidden size")
	}
}

func TestMasksStartOngoing(t *testing.T) {
	s := newTestStorage(t, 3, 2)
	for i, m := range s.Masks() {
		if m != 1.0 {
			t.Fatalf("mask %d should start at 1 \n\thave(%v)", i, m)
		}
	}
}

func TestInsertWritesSlots(t *testing.T) {
	s := newTestStorage(t, 2, 2)

	if err := s.SetFirstObservation([]float64{10, 20}); err != nil {
		t.Fatalf("could not set first observation: %v", err)
	}

	err := s.Insert(
		[]float64{11, 21},     // obs entering step 1
		[]float64{},           // no recurrent state
		[]float64{0, 1},       // actions
		[]float64{-0.5, -0.7}, // log probs
		[]float64{1.5, 2.5},   // value predictions
		[]float64{1, 0},       // rewards
		[]float64{1, 0},       // masks entering step 1
	)
	if err != nil {
		t.Fatalf("insert failed: %v", err)
	}

	obs := s.Observations()
	if obs[0] != 10 || obs[1] != 20 {
		t.Errorf("slot 0 observations overwritten \n\thave(%v)", obs[:2])
	}
	if obs[2] != 11 || obs[3] != 21 {
		t.Errorf("obs should land in the next slot \n\thave(%v)", obs[2:4])
	}

	if got := s.Actions()[:2]; got[0] != 0 || got[1] != 1 {
		t.Errorf("actions should land in the current slot \n\thave(%v)", got)
	}
	if got := s.ValuePreds()[:2]; got[0] != 1.5 || got[1] != 2.5 {
		t.Errorf("value preds should land in the current slot "+
			"\n\thave(%v)", got)
	}
	if got := s.Rewards()[:2]; got[0] != 1 || got[1] != 0 {
		t.Errorf("rewards should land in the current slot \n\thave(%v)", got)
	}
	if got := s.Masks()[2:4]; got[0] != 1 || got[1] != 0 {
		t.Errorf("masks should land in the next slot \n\thave(%v)", got)
	}

	if s.Step() != 1 {
		t.Errorf("cursor should advance \n\twant(1)\n\thave(%d)", s.Step())
	}
}

func TestInsertCursorWraps(t *testing.T) {
	s := newTestStorage(t, 2, 1)

	args := func() ([]float64, []float64, []float64, []float64, []float64,
		[]float64, []float64) {
		return []float64{1}, []float64{}, []float64{0}, []float64{-0.1},
			[]float64{0.5}, []float64{1}, []float64{1}
	}

	for i := 0; i < 2; i++ {
		if err := s.Insert(args()); err != nil {
			t.Fatalf("insert %d failed: %v", i, err)
		}
	}
	if s.Step() != 0 {
		t.Errorf("cursor should wrap to 0 after numSteps inserts "+
			"\n\thave(%d)", s.Step())
	}
}

func TestInsertValidatesLengths(t *testing.T) {
	s := newTestStorage(t, 2, 2)

	good := func() ([]float64, []float64, []float64, []float64, []float64,
		[]float64, []float64) {
		return []float64{1, 2}, []float64{}, []float64{0, 1},
			[]float64{-0.1, -0.2}, []float64{0.5, 0.5}, []float64{1, 0},
			[]float64{1, 1}
	}

	obs, hidden, action, logProb, value, reward, mask := good()
	if err := s.Insert(obs[:1], hidden, action, logProb, value, reward,
		mask); err == nil {
		t.Error("expected error for short obs")
	}
	if err := s.Insert(obs, hidden, action[:1], logProb, value, reward,
		mask); err == nil {
		t.Error("expected error for short action")
	}
	if err := s.Insert(obs, hidden, action, logProb, value, reward,
		[]float64{1, 0.5}); err == nil {
		t.Error("expected error for non-binary mask")
	}
	if s.Step() != 0 {
		t.Errorf("failed inserts must not advance the cursor "+
			"\n\thave(%d)", s.Step())
	}
}

func TestComputeReturnsDiscounted(t *testing.T) {
	s := newTestStorage(t, 3, 1)

	for i := 0; i < 3; i++ {
		err := s.Insert([]float64{1}, []float64{}, []float64{0},
			[]float64{-0.1}, []float64{0.5}, []float64{1}, []float64{1})
		if err != nil {
			t.Fatalf("insert failed: %v", err)
		}
	}
	if err := s.ComputeReturns([]float64{2}, false, 0.9, 0.0); err != nil {
		t.Fatalf("could not compute returns: %v", err)
	}

	// returns[t] = 1 + 0.9*returns[t+1], seeded with returns[3] = 2
	expected := []float64{4.168, 3.52, 2.8, 2}
	for t_, want := range expected {
		if have := s.Returns()[t_]; math.Abs(have-want) > tolerance {
			t.Errorf("wrong return at step %d \n\twant(%v)\n\thave(%v)",
				t_, want, have)
		}
	}
}

func TestComputeReturnsMaskStopsLeak(t *testing.T) {
	s := newTestStorage(t, 2, 1)

	// The episode ends after step 0
	err := s.Insert([]float64{1}, []float64{}, []float64{0},
		[]float64{-0.1}, []float64{0.5}, []float64{1}, []float64{0})
	if err != nil {
		t.Fatalf("insert failed: %v", err)
	}
	err = s.Insert([]float64{1}, []float64{}, []float64{0},
		[]float64{-0.1}, []float64{0.5}, []float64{5}, []float64{1})
	if err != nil {
		t.Fatalf("insert failed: %v", err)
	}

	if err := s.ComputeReturns([]float64{100}, false, 0.9, 0.0); err != nil {
		t.Fatalf("could not compute returns: %v", err)
	}

	if want, have := 95.0, s.Returns()[1]; math.Abs(have-want) > tolerance {
		t.Errorf("wrong return after boundary \n\twant(%v)\n\thave(%v)",
			want, have)
	}
	// Nothing from the next episode may leak across the zero mask
	if want, have := 1.0, s.Returns()[0]; math.Abs(have-want) > tolerance {
		t.Errorf("return leaked across episode boundary "+
			"\n\twant(%v)\n\thave(%v)", want, have)
	}
}

func TestGAEWithFullTraceMatchesDiscounted(t *testing.T) {
	fill := func(s *RolloutStorage) {
		rewards := [][]float64{{1, -1}, {0.5, 2}, {-0.25, 0}}
		values := [][]float64{{0.3, 0.9}, {-0.2, 0.4}, {1.1, -0.6}}
		masks := [][]float64{{1, 1}, {0, 1}, {1, 0}}
		for i := 0; i < 3; i++ {
			err := s.Insert([]float64{1, 2}, []float64{}, []float64{0, 1},
				[]float64{-0.1, -0.2}, values[i], rewards[i], masks[i])
			if err != nil {
				t.Fatalf("insert failed: %v", err)
			}
		}
	}

	discounted := newTestStorage(t, 3, 2)
	gae := newTestStorage(t, 3, 2)
	fill(discounted)
	fill(gae)

	nextValue := []float64{0.7, -0.3}
	if err := discounted.ComputeReturns(nextValue, false, 0.9, 0.0); err != nil {
		t.Fatalf("could not compute discounted returns: %v", err)
	}
	// With a full trace the advantage recursion telescopes into the
	// plain discounted returns
	if err := gae.ComputeReturns(nextValue, true, 0.9, 1.0); err != nil {
		t.Fatalf("could not compute advantage returns: %v", err)
	}

	for i := 0; i < 3*2; i++ {
		want := discounted.Returns()[i]
		have := gae.Returns()[i]
		if math.Abs(have-want) > 1e-10 {
			t.Errorf("returns differ at index %d \n\twant(%v)\n\thave(%v)",
				i, want, have)
		}
	}
}

func TestComputeReturnsGAE(t *testing.T) {
	s := newTestStorage(t, 2, 1)

	err := s.Insert([]float64{1}, []float64{}, []float64{0},
		[]float64{-0.1}, []float64{1.0}, []float64{2}, []float64{1})
	if err != nil {
		t.Fatalf("insert failed: %v", err)
	}
	err = s.Insert([]float64{1}, []float64{}, []float64{0},
		[]float64{-0.1}, []float64{0.5}, []float64{1}, []float64{1})
	if err != nil {
		t.Fatalf("insert failed: %v", err)
	}

	gamma, tau := 0.9, 0.5
	if err := s.ComputeReturns([]float64{2.0}, true, gamma, tau); err != nil {
		t.Fatalf("could not compute returns: %v", err)
	}

	// delta[1] = 1 + 0.9*2.0 - 0.5 = 2.3; gae = 2.3
	// returns[1] = 2.3 + 0.5 = 2.8
	// delta[0] = 2 + 0.9*0.5 - 1.0 = 1.45
	// gae = 1.45 + 0.45*2.3 = 2.485; returns[0] = 2.485 + 1.0 = 3.485
	if want, have := 2.8, s.Returns()[1]; math.Abs(have-want) > tolerance {
		t.Errorf("wrong return at step 1 \n\twant(%v)\n\thave(%v)", want,
			have)
	}
	if want, have := 3.485, s.Returns()[0]; math.Abs(have-want) > tolerance {
		t.Errorf("wrong return at step 0 \n\twant(%v)\n\thave(%v)", want,
			have)
	}
}

func TestAfterUpdateRecyclesBootstrapSlot(t *testing.T) {
	s := newTestStorage(t, 2, 2)

	if err := s.SetFirstObservation([]float64{1, 2}); err != nil {
		t.Fatalf("could not set first observation: %v", err)
	}
	err := s.Insert([]float64{3, 4}, []float64{}, []float64{0, 1},
		[]float64{-0.1, -0.2}, []float64{0.5, 0.5}, []float64{1, 0},
		[]float64{1, 1})
	if err != nil {
		t.Fatalf("insert failed: %v", err)
	}
	err = s.Insert([]float64{5, 6}, []float64{}, []float64{1, 0},
		[]float64{-0.3, -0.4}, []float64{0.5, 0.5}, []float64{0, 1},
		[]float64{0, 1})
	if err != nil {
		t.Fatalf("insert failed: %v", err)
	}

	s.AfterUpdate()

	obs := s.Observations()
	if obs[0] != 5 || obs[1] != 6 {
		t.Errorf("bootstrap observations should move to slot 0 "+
			"\n\thave(%v)", obs[:2])
	}
	masks := s.Masks()
	if masks[0] != 0 || masks[1] != 1 {
		t.Errorf("bootstrap masks should move to slot 0 \n\thave(%v)",
			masks[:2])
	}

	// The recycled window continues seamlessly: the next insert writes
	// its observation into slot 1
	err = s.Insert([]float64{7, 8}, []float64{}, []float64{0, 0},
		[]float64{-0.1, -0.1}, []float64{0.5, 0.5}, []float64{0, 0},
		[]float64{1, 1})
	if err != nil {
		t.Fatalf("insert failed: %v", err)
	}
	if obs[2] != 7 || obs[3] != 8 {
		t.Errorf("next insert should write observation slot 1 "+
			"\n\thave(%v)", obs[2:4])
	}
}
