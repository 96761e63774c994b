package environment

import (
	"testing"

	"github.com/vecrl/vecrl/spec"
	"github.com/vecrl/vecrl/timestep"
)

// scripted is an Environment whose episodes last a fixed number of
// steps and whose observations count the steps taken, offset so that
// every instance is distinguishable
type scripted struct {
	offset       float64
	episodeSteps int
	steps        int
	resets       int
}

func (s *scripted) Reset() (timestep.TimeStep, error) {
	s.steps = 0
	s.resets++
	return timestep.New([]float64{s.offset}, 0, false, 0), nil
}

func (s *scripted) Step(action []float64) (timestep.TimeStep, error) {
	s.steps++
	done := s.steps >= s.episodeSteps
	obs := []float64{s.offset + float64(s.steps)}
	return timestep.New(obs, action[0], done, s.steps), nil
}

func (s *scripted) ObservationSpec() spec.Space {
	return spec.NewContinuous(1)
}

func (s *scripted) ActionSpec() spec.Space {
	return spec.NewDiscrete(2)
}

// wideScripted is a scripted environment with a wider action space
type wideScripted struct {
	scripted
}

func (w *wideScripted) ActionSpec() spec.Space {
	return spec.NewDiscrete(3)
}

func TestNewVectorizedValidatesEnvironments(t *testing.T) {
	if _, err := NewVectorized(nil); err == nil {
		t.Error("expected error for empty environment batch")
	}

	mixed := []Environment{
		&scripted{episodeSteps: 5},
		&wideScripted{scripted{episodeSteps: 5}},
	}
	if _, err := NewVectorized(mixed); err == nil {
		t.Error("expected error for mismatched action spaces")
	}
}

func TestVectorizedStepBatches(t *testing.T) {
	envs := []Environment{
		&scripted{offset: 10, episodeSteps: 5},
		&scripted{offset: 20, episodeSteps: 5},
	}
	v, err := NewVectorized(envs)
	if err != nil {
		t.Fatalf("could not create vectorized environment: %v", err)
	}

	obs, err := v.Reset()
	if err != nil {
		t.Fatalf("could not reset: %v", err)
	}
	if len(obs) != 2 || obs[0] != 10 || obs[1] != 20 {
		t.Fatalf("wrong first observation batch \n\thave(%v)", obs)
	}

	obs, rewards, masks, err := v.Step([]float64{1, 0})
	if err != nil {
		t.Fatalf("could not step: %v", err)
	}
	if obs[0] != 11 || obs[1] != 21 {
		t.Errorf("wrong observation batch \n\thave(%v)", obs)
	}
	if rewards[0] != 1 || rewards[1] != 0 {
		t.Errorf("wrong reward batch \n\thave(%v)", rewards)
	}
	if masks[0] != 1 || masks[1] != 1 {
		t.Errorf("wrong mask batch \n\thave(%v)", masks)
	}

	if _, _, _, err := v.Step([]float64{1}); err == nil {
		t.Error("expected error for short action batch")
	}
}

func TestVectorizedAutoResets(t *testing.T) {
	first := &scripted{offset: 10, episodeSteps: 1}
	second := &scripted{offset: 20, episodeSteps: 5}
	v, err := NewVectorized([]Environment{first, second})
	if err != nil {
		t.Fatalf("could not create vectorized environment: %v", err)
	}
	if _, err := v.Reset(); err != nil {
		t.Fatalf("could not reset: %v", err)
	}

	obs, _, masks, err := v.Step([]float64{0, 0})
	if err != nil {
		t.Fatalf("could not step: %v", err)
	}

	// The first instance finished its episode: its slot must hold the
	// first observation of the new episode and a mask of 0
	if masks[0] != 0 || masks[1] != 1 {
		t.Errorf("wrong masks at episode boundary \n\thave(%v)", masks)
	}
	if obs[0] != 10 {
		t.Errorf("finished instance should be reset in place "+
			"\n\twant(10)\n\thave(%v)", obs[0])
	}
	if first.resets != 2 {
		t.Errorf("finished instance should have been reset "+
			"\n\twant(2 resets)\n\thave(%d)", first.resets)
	}
	if second.resets != 1 {
		t.Errorf("ongoing instance should not have been reset "+
			"\n\thave(%d resets)", second.resets)
	}
}
