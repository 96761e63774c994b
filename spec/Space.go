// Package spec implements specifications for the observation and
// action spaces of vectorized environments
package spec

import "fmt"

// Cardinality determines whether points in a space are drawn from a
// finite set or from a continuum
type Cardinality int

const (
	Discrete Cardinality = iota
	Continuous
)

// String implements the fmt.Stringer interface
func (c Cardinality) String() string {
	switch c {
	case Discrete:
		return "Discrete"
	case Continuous:
		return "Continuous"
	}
	return fmt.Sprintf("Cardinality(%d)", int(c))
}

// Space describes the layout of observations or actions: the kind of
// values it holds together with their shape. A Discrete space has a
// single shape entry holding the number of available choices. A
// Continuous space may have any number of dimensions.
type Space struct {
	Kind  Cardinality
	Shape []int
}

// NewDiscrete returns a Space of n distinct choices
func NewDiscrete(n int) Space {
	return Space{Kind: Discrete, Shape: []int{n}}
}

// NewContinuous returns a continuous Space with the given dimensions
func NewContinuous(dims ...int) Space {
	return Space{Kind: Continuous, Shape: dims}
}

// Validate returns an error if the Space is degenerate
func (s Space) Validate() error {
	if len(s.Shape) == 0 {
		return fmt.Errorf("validate: space must have a shape")
	}
	for _, dim := range s.Shape {
		if dim <= 0 {
			return fmt.Errorf("validate: illegal dimension size %d", dim)
		}
	}
	if s.Kind == Discrete && len(s.Shape) != 1 {
		return fmt.Errorf("validate: discrete space must have a single "+
			"shape entry \n\twant(1) \n\thave(%d)", len(s.Shape))
	}
	return nil
}

// Dims returns the per-sample width of points stored for this space.
// A Discrete space stores a single index per sample regardless of how
// many choices it offers.
func (s Space) Dims() int {
	if s.Kind == Discrete {
		return 1
	}
	dims := 1
	for _, dim := range s.Shape {
		dims *= dim
	}
	return dims
}
