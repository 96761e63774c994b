// Package storage implements fixed-capacity rollout buffers for
// synchronous training over vectorized environments
package storage

import (
	"fmt"

	"gonum.org/v1/gonum/mat"

	"github.com/vecrl/vecrl/spec"
)

// RolloutStorage accumulates one fixed-length trajectory batch
// collected from numProcesses parallel environment instances and
// derives bootstrapped returns from it.
//
// All data is kept in flat, pre-allocated float64 buffers laid out
// step-major: the rows of a buffer with per-process width w are
// addressed as [t*numProcesses*w : (t+1)*numProcesses*w]. Buffers with
// numSteps+1 slots reserve the final slot for bootstrap data.
// Observation slot t holds the observation seen before acting at step
// t; mask slot t is 1 if the episode was still ongoing entering step t
// and 0 if it had just terminated.
//
// The buffer is filled by numSteps calls to Insert, consumed by
// ComputeReturns and the update step, and recycled in place by
// AfterUpdate. It is never reallocated.
type RolloutStorage struct {
	numSteps     int
	numProcesses int
	obsDim       int
	actionDim    int
	hiddenSize   int

	// Write cursor for the next timestep, in [0, numSteps)
	step int

	observations   []float64 // (numSteps+1) x numProcesses x obsDim
	hiddenStates   []float64 // (numSteps+1) x numProcesses x hiddenSize
	actions        []float64 // numSteps x numProcesses x actionDim
	actionLogProbs []float64 // numSteps x numProcesses
	valuePreds     []float64 // (numSteps+1) x numProcesses
	rewards        []float64 // numSteps x numProcesses
	masks          []float64 // (numSteps+1) x numProcesses
	returns        []float64 // (numSteps+1) x numProcesses
}

// New creates and returns a new RolloutStorage holding numSteps
// timesteps for numProcesses parallel environments. The observation
// shape, the action space, and the size of the policy's recurrent
// hidden state determine the per-process widths of the buffers.
func New(numSteps, numProcesses int, obsShape []int,
	actionSpace spec.Space, hiddenSize int) (*RolloutStorage, error) {
	if numSteps <= 0 {
		return nil, fmt.Errorf("new: numSteps must be positive "+
			"\n\thave(%d)", numSteps)
	}
	if numProcesses <= 0 {
		return nil, fmt.Errorf("new: numProcesses must be positive "+
			"\n\thave(%d)", numProcesses)
	}
	if hiddenSize < 0 {
		return nil, fmt.Errorf("new: hiddenSize cannot be negative "+
			"\n\thave(%d)", hiddenSize)
	}
	if err := actionSpace.Validate(); err != nil {
		return nil, fmt.Errorf("new: invalid action space: %v", err)
	}

	obsDim := 1
	for _, dim := range obsShape {
		if dim <= 0 {
			return nil, fmt.Errorf("new: illegal observation dimension "+
				"size %d", dim)
		}
		obsDim *= dim
	}
	if len(obsShape) == 0 {
		return nil, fmt.Errorf("new: observation shape cannot be empty")
	}

	s := &RolloutStorage{
		numSteps:     numSteps,
		numProcesses: numProcesses,
		obsDim:       obsDim,
		actionDim:    actionSpace.Dims(),
		hiddenSize:   hiddenSize,

		observations:   make([]float64, (numSteps+1)*numProcesses*obsDim),
		hiddenStates:   make([]float64, (numSteps+1)*numProcesses*hiddenSize),
		actions:        make([]float64, numSteps*numProcesses*actionSpace.Dims()),
		actionLogProbs: make([]float64, numSteps*numProcesses),
		valuePreds:     make([]float64, (numSteps+1)*numProcesses),
		rewards:        make([]float64, numSteps*numProcesses),
		masks:          make([]float64, (numSteps+1)*numProcesses),
		returns:        make([]float64, (numSteps+1)*numProcesses),
	}

	// Episodes are ongoing until a terminal mask is inserted
	for i := range s.masks {
		s.masks[i] = 1.0
	}

	return s, nil
}

// SetFirstObservation seeds observation slot 0 with the initial
// observation of every process before the first Insert of a run.
func (s *RolloutStorage) SetFirstObservation(obs []float64) error {
	if len(obs) != s.numProcesses*s.obsDim {
		return fmt.Errorf("setfirstobservation: illegal obs length "+
			"\n\twant(%d)\n\thave(%d)", s.numProcesses*s.obsDim, len(obs))
	}
	copy(s.observations[:s.numProcesses*s.obsDim], obs)
	return nil
}

// Insert records one timestep for all processes simultaneously at the
// current write cursor and advances the cursor by one, wrapping at
// numSteps. The obs, hiddenState, and mask arguments describe the
// situation entering the next step and are written to the following
// slot; action, actionLogProb, valuePred, and reward belong to the
// current step.
func (s *RolloutStorage) Insert(obs, hiddenState, action, actionLogProb,
	valuePred, reward, mask []float64) error {
	P := s.numProcesses

	if len(obs) != P*s.obsDim {
		return fmt.Errorf("insert: illegal obs length \n\twant(%d)"+
			"\n\thave(%d)", P*s.obsDim, len(obs))
	}
	if len(hiddenState) != P*s.hiddenSize {
		return fmt.Errorf("insert: illegal hidden state length "+
			"\n\twant(%d)\n\thave(%d)", P*s.hiddenSize, len(hiddenState))
	}
	if len(action) != P*s.actionDim {
		return fmt.Errorf("insert: illegal action length \n\twant(%d)"+
			"\n\thave(%d)", P*s.actionDim, len(action))
	}
	if len(actionLogProb) != P {
		return fmt.Errorf("insert: illegal action log prob length "+
			"\n\twant(%d)\n\thave(%d)", P, len(actionLogProb))
	}
	if len(valuePred) != P {
		return fmt.Errorf("insert: illegal value prediction length "+
			"\n\twant(%d)\n\thave(%d)", P, len(valuePred))
	}
	if len(reward) != P {
		return fmt.Errorf("insert: illegal reward length \n\twant(%d)"+
			"\n\thave(%d)", P, len(reward))
	}
	if len(mask) != P {
		return fmt.Errorf("insert: illegal mask length \n\twant(%d)"+
			"\n\thave(%d)", P, len(mask))
	}
	for _, m := range mask {
		if m != 0.0 && m != 1.0 {
			return fmt.Errorf("insert: masks must be binary "+
				"\n\thave(%v)", m)
		}
	}

	t := s.step
	copy(s.observations[(t+1)*P*s.obsDim:(t+2)*P*s.obsDim], obs)
	copy(s.hiddenStates[(t+1)*P*s.hiddenSize:(t+2)*P*s.hiddenSize],
		hiddenState)
	copy(s.masks[(t+1)*P:(t+2)*P], mask)

	copy(s.actions[t*P*s.actionDim:(t+1)*P*s.actionDim], action)
	copy(s.actionLogProbs[t*P:(t+1)*P], actionLogProb)
	copy(s.valuePreds[t*P:(t+1)*P], valuePred)
	copy(s.rewards[t*P:(t+1)*P], reward)

	s.step = (s.step + 1) % s.numSteps
	return nil
}

// ComputeReturns fills the returns buffer backward from the bootstrap
// slot. nextValue holds the value estimate of the observation in slot
// numSteps, one entry per process, and terminates the backward
// recursion.
//
// When useGAE is false, returns follow the plain discounted recursion
//
//	returns[t] = rewards[t] + gamma * masks[t+1] * returns[t+1]
//
// seeded with returns[numSteps] = nextValue. When useGAE is true, a
// generalized advantage accumulator is maintained instead:
//
//	delta      = rewards[t] + gamma*valuePreds[t+1]*masks[t+1] - valuePreds[t]
//	gae        = delta + gamma*tau*masks[t+1]*gae
//	returns[t] = gae + valuePreds[t]
//
// In both modes a zero mask at t+1 stops any value or return
// information from leaking backward across the episode boundary.
func (s *RolloutStorage) ComputeReturns(nextValue []float64, useGAE bool,
	gamma, tau float64) error {
	P := s.numProcesses
	if len(nextValue) != P {
		return fmt.Errorf("computereturns: illegal next value length "+
			"\n\twant(%d)\n\thave(%d)", P, len(nextValue))
	}

	if !useGAE {
		copy(s.returns[s.numSteps*P:], nextValue)

		scratch := mat.NewVecDense(P, nil)
		for t := s.numSteps - 1; t >= 0; t-- {
			scratch.MulElemVec(s.returnsRow(t+1), s.masksRow(t+1))

			ret := s.returnsRow(t)
			ret.AddScaledVec(s.rewardsRow(t), gamma, scratch)
		}
		return nil
	}

	copy(s.valuePreds[s.numSteps*P:], nextValue)

	gae := mat.NewVecDense(P, nil)
	delta := mat.NewVecDense(P, nil)
	for t := s.numSteps - 1; t >= 0; t-- {
		// delta = rewards[t] + gamma*valuePreds[t+1]*masks[t+1]
		//         - valuePreds[t]
		delta.MulElemVec(s.valuePredsRow(t+1), s.masksRow(t+1))
		delta.AddScaledVec(s.rewardsRow(t), gamma, delta)
		delta.SubVec(delta, s.valuePredsRow(t))

		// gae = delta + gamma*tau*masks[t+1]*gae
		gae.MulElemVec(gae, s.masksRow(t+1))
		gae.AddScaledVec(delta, gamma*tau, gae)

		ret := s.returnsRow(t)
		ret.AddVec(gae, s.valuePredsRow(t))
	}
	return nil
}

// AfterUpdate recycles the buffer for the next rollout window: the
// bootstrap slot of the observations, hidden states, and masks is
// copied into slot 0 so that the next rollout continues the trajectory
// seamlessly. The next Insert writes its observation into slot 1.
func (s *RolloutStorage) AfterUpdate() {
	P := s.numProcesses
	N := s.numSteps

	copy(s.observations[:P*s.obsDim],
		s.observations[N*P*s.obsDim:(N+1)*P*s.obsDim])
	copy(s.hiddenStates[:P*s.hiddenSize],
		s.hiddenStates[N*P*s.hiddenSize:(N+1)*P*s.hiddenSize])
	copy(s.masks[:P], s.masks[N*P:(N+1)*P])
}

// Observations returns the full observation buffer, including the
// bootstrap slot. The returned slice is a view of the buffer's backing
// data and must not be modified.
func (s *RolloutStorage) Observations() []float64 { return s.observations }

// HiddenStates returns the full hidden state buffer, including the
// bootstrap slot. The returned slice must not be modified.
func (s *RolloutStorage) HiddenStates() []float64 { return s.hiddenStates }

// Actions returns the action buffer. The returned slice must not be
// modified.
func (s *RolloutStorage) Actions() []float64 { return s.actions }

// ActionLogProbs returns the action log probability buffer. The
// returned slice must not be modified.
func (s *RolloutStorage) ActionLogProbs() []float64 {
	return s.actionLogProbs
}

// ValuePreds returns the value prediction buffer, including the
// bootstrap slot. The returned slice must not be modified.
func (s *RolloutStorage) ValuePreds() []float64 { return s.valuePreds }

// Rewards returns the reward buffer. The returned slice must not be
// modified.
func (s *RolloutStorage) Rewards() []float64 { return s.rewards }

// Masks returns the full mask buffer, including the bootstrap slot.
// The returned slice must not be modified.
func (s *RolloutStorage) Masks() []float64 { return s.masks }

// Returns returns the returns buffer, including the bootstrap slot.
// Only valid after ComputeReturns has run on the current rollout. The
// returned slice must not be modified.
func (s *RolloutStorage) Returns() []float64 { return s.returns }

// NumSteps returns the number of timesteps the buffer holds per rollout
func (s *RolloutStorage) NumSteps() int { return s.numSteps }

// NumProcesses returns the number of parallel environment instances
func (s *RolloutStorage) NumProcesses() int { return s.numProcesses }

// ObsDim returns the flattened per-process observation width
func (s *RolloutStorage) ObsDim() int { return s.obsDim }

// ActionDim returns the per-process action width
func (s *RolloutStorage) ActionDim() int { return s.actionDim }

// HiddenSize returns the per-process recurrent hidden state width
func (s *RolloutStorage) HiddenSize() int { return s.hiddenSize }

// Step returns the timestep index the next Insert will write to
func (s *RolloutStorage) Step() int { return s.step }

// returnsRow returns returns slot t as a vector aliasing the backing
// buffer
func (s *RolloutStorage) returnsRow(t int) *mat.VecDense {
	P := s.numProcesses
	return mat.NewVecDense(P, s.returns[t*P:(t+1)*P])
}

func (s *RolloutStorage) masksRow(t int) *mat.VecDense {
	P := s.numProcesses
	return mat.NewVecDense(P, s.masks[t*P:(t+1)*P])
}

func (s *RolloutStorage) rewardsRow(t int) *mat.VecDense {
	P := s.numProcesses
	return mat.NewVecDense(P, s.rewards[t*P:(t+1)*P])
}

func (s *RolloutStorage) valuePredsRow(t int) *mat.VecDense {
	P := s.numProcesses
	return mat.NewVecDense(P, s.valuePreds[t*P:(t+1)*P])
}
