package neural

import (
	"fmt"

	"github.com/chewxy/math32"
)

type ActivationType int

const (
	Tanh ActivationType = iota
	Sigmoid
)

func (a ActivationType) String() string {
	switch a {
	case Tanh:
		return "tanh"
	case Sigmoid:
		return "sigmoid"
	default:
		return fmt.Sprintf("ActivationType(%d)", int(a))
	}
}

// ParseActivation maps a flag value to an ActivationType.
func ParseActivation(s string) (ActivationType, error) {
	switch s {
	case "tanh":
		return Tanh, nil
	case "sigmoid":
		return Sigmoid, nil
	default:
		return 0, fmt.Errorf("unknown activation %q", s)
	}
}

func (a ActivationType) fn() func(float32) float32 {
	switch a {
	case Tanh:
		return math32.Tanh
	case Sigmoid:
		return sigmoid
	default:
		panic("unhandled activation function")
	}
}

func sigmoid(z float32) float32 {
	return 1 / (1 + math32.Exp(-z))
}

// outputDerivative is the activation derivative used by Backpropagate,
// expressed in terms of the activated output a.  It is a*(1-a) regardless of
// the configured activation; that is exact for Sigmoid only.
func outputDerivative(a float32) float32 {
	return a * (1 - a)
}
