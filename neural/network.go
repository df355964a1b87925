package neural

import (
	"fmt"
	"math/rand"

	"github.com/ahmedtd/mlp/blas"
)

type Network struct {
	Layers []*Layer

	// signal is the error vector threaded backwards by Train.  It is reused
	// across calls.
	signal *blas.Vector[float32]
}

// MakeNetwork builds one dense layer per consecutive pair of widths, so
// widths [n0, n1, ..., nk] give k layers with layer i mapping n_i to
// n_{i+1}.
func MakeNetwork(activation ActivationType, r *rand.Rand, widths ...int) (*Network, error) {
	if len(widths) < 2 {
		return nil, fmt.Errorf("got %d widths: %w", len(widths), ErrTooFewWidths)
	}
	for i, w := range widths {
		if w <= 0 {
			return nil, fmt.Errorf("width %d is %d: %w", i, w, ErrInvalidWidth)
		}
	}

	net := &Network{}
	for i := 0; i+1 < len(widths); i++ {
		lay, err := MakeDense(activation, widths[i], widths[i+1], r)
		if err != nil {
			return nil, fmt.Errorf("while making layer %d: %w", i, err)
		}
		net.Layers = append(net.Layers, lay)
	}
	return net, nil
}

// InputSize is the width the first layer expects.
func (net *Network) InputSize() int {
	return net.Layers[0].InputSize
}

// OutputSize is the width of the last layer's output.
func (net *Network) OutputSize() int {
	return net.Layers[len(net.Layers)-1].OutputSize
}

// FeedForward threads x through every layer in order and returns the last
// layer's cached output.  The returned vector is owned by the network and
// overwritten by the next FeedForward or Train.
func (net *Network) FeedForward(x *blas.Vector[float32]) (*blas.Vector[float32], error) {
	in := x
	for l, lay := range net.Layers {
		if err := lay.FeedForward(in); err != nil {
			return nil, fmt.Errorf("layer %d: %w", l, err)
		}
		in = lay.Output()
	}
	return in, nil
}

// Train runs one stochastic gradient descent step on a single sample.
//
// The error fed to the output layer is (out - target)^2 elementwise.
func (net *Network) Train(x, target *blas.Vector[float32], learningRate float32) error {
	if target.Size() != net.OutputSize() {
		return fmt.Errorf("Network.Train: got %d targets, want %d: %w", target.Size(), net.OutputSize(), ErrTargetSize)
	}

	out, err := net.FeedForward(x)
	if err != nil {
		return err
	}

	if net.signal == nil {
		net.signal = &blas.Vector[float32]{}
	}
	e := net.signal
	if err := e.CopyFrom(out); err != nil {
		return err
	}
	if err := e.SubInPlace(target); err != nil {
		return err
	}
	if err := e.MulInPlace(e); err != nil {
		return err
	}

	// Backprop.  Layer l's input is layer l-1's output, or x for layer 0.
	for l := len(net.Layers) - 1; l >= 1; l-- {
		if err := net.Layers[l].Backpropagate(net.Layers[l-1].Output(), e, learningRate); err != nil {
			return fmt.Errorf("layer %d: %w", l, err)
		}
	}
	if err := net.Layers[0].Backpropagate(x, e, learningRate); err != nil {
		return fmt.Errorf("layer 0: %w", err)
	}

	return nil
}

// Predict returns the index of the largest network output for x.
func (net *Network) Predict(x *blas.Vector[float32]) (int, error) {
	out, err := net.FeedForward(x)
	if err != nil {
		return 0, err
	}
	return out.ArgMax()
}

// SquaredError returns the sum over i of (a[i] - y[i])^2.
//
// y is the ground truth output.  Shape (n)
// a is the network output.  Shape (n)
func SquaredError(y, a *blas.Vector[float32]) (float32, error) {
	diff, err := a.Sub(y)
	if err != nil {
		return 0, err
	}
	defer diff.Release()
	return blas.InnerProduct(diff, diff)
}
