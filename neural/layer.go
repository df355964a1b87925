// Package neural implements a fully-connected feedforward network trained by
// per-sample stochastic gradient descent.
package neural

import (
	"errors"
	"fmt"
	"math/rand"

	"github.com/ahmedtd/mlp/blas"
)

var (
	ErrTooFewWidths = errors.New("neural: a network needs at least two layer widths")
	ErrInvalidWidth = errors.New("neural: layer widths must be positive")
	ErrInputSize    = errors.New("neural: input length does not match layer input size")
	ErrSignalSize   = errors.New("neural: error signal length does not match layer output size")
	ErrTargetSize   = errors.New("neural: target length does not match network output size")
)

type Layer struct {
	Activation ActivationType

	W *blas.Matrix[float32] // Shape (OutputSize, InputSize)
	B *blas.Vector[float32] // Shape (OutputSize)

	InputSize  int
	OutputSize int

	// output is the post-activation result of the most recent FeedForward.
	// Backpropagate reads it instead of recomputing.
	output *blas.Vector[float32]

	// scratch holds the temporaries of one Backpropagate call.
	scratch *blas.Arena[float32]
}

// MakeDense returns a layer mapping inputSize values to outputSize values,
// with weights and biases drawn uniformly from [-1, 1].
func MakeDense(activation ActivationType, inputSize, outputSize int, r *rand.Rand) (*Layer, error) {
	if inputSize <= 0 || outputSize <= 0 {
		return nil, fmt.Errorf("dense layer %dx%d: %w", outputSize, inputSize, ErrInvalidWidth)
	}

	w, err := blas.NewMatrix[float32](outputSize, inputSize)
	if err != nil {
		return nil, fmt.Errorf("while allocating weights: %w", err)
	}
	b, err := blas.NewVector[float32](outputSize)
	if err != nil {
		return nil, fmt.Errorf("while allocating biases: %w", err)
	}
	out, err := blas.NewVector[float32](outputSize)
	if err != nil {
		return nil, fmt.Errorf("while allocating layer output: %w", err)
	}

	l := &Layer{
		Activation: activation,
		W:          w,
		B:          b,
		InputSize:  inputSize,
		OutputSize: outputSize,
		output:     out,
	}

	for i := 0; i < outputSize; i++ {
		for j := 0; j < inputSize; j++ {
			l.W.Set(i, j, r.Float32()*2-1)
		}
		l.B.Set(i, r.Float32()*2-1)
	}

	return l, nil
}

// Output returns the cached output of the most recent FeedForward.  The
// vector is owned by the layer and overwritten by the next call.
func (lay *Layer) Output() *blas.Vector[float32] {
	if lay.output == nil {
		lay.output = &blas.Vector[float32]{}
	}
	return lay.output
}

// FeedForward computes act(W*x + B) and caches it as the layer output.
//
// x (input) is the layer input.  Shape (lay.InputSize)
func (lay *Layer) FeedForward(x *blas.Vector[float32]) error {
	if x.Size() != lay.InputSize {
		return fmt.Errorf("Layer.FeedForward: got %d values, want %d: %w", x.Size(), lay.InputSize, ErrInputSize)
	}

	out := lay.Output()
	if err := blas.MulVecInto(out, lay.W, x); err != nil {
		return fmt.Errorf("while applying weights: %w", err)
	}
	if err := out.AddInPlace(lay.B); err != nil {
		return fmt.Errorf("while applying biases: %w", err)
	}
	out.Apply(lay.Activation.fn())
	return nil
}

func (lay *Layer) scratchArena() *blas.Arena[float32] {
	// Transposed weights, the weight update, delta and gradient.
	need := 2*lay.InputSize*lay.OutputSize + lay.InputSize + lay.OutputSize
	if lay.scratch == nil || lay.scratch.Cap() < need {
		lay.scratch = blas.NewArena[float32](need)
	}
	lay.scratch.Reset()
	return lay.scratch
}

// Backpropagate updates W and B in place from the error signal e, then
// overwrites e with the signal for the layer feeding this one.
//
// x (input) is the input given to the matching FeedForward.  Shape (lay.InputSize)
// e (input/output) is the error signal.  Shape (lay.OutputSize) on entry, (lay.InputSize) on return.
//
// The gradient uses out*(1-out) as the activation derivative for every
// activation type.
func (lay *Layer) Backpropagate(x, e *blas.Vector[float32], learningRate float32) error {
	if x.Size() != lay.InputSize {
		return fmt.Errorf("Layer.Backpropagate: got %d inputs, want %d: %w", x.Size(), lay.InputSize, ErrInputSize)
	}
	if e.Size() != lay.OutputSize {
		return fmt.Errorf("Layer.Backpropagate: got %d error values, want %d: %w", e.Size(), lay.OutputSize, ErrSignalSize)
	}
	if lay.Output().Size() != lay.OutputSize {
		return fmt.Errorf("Layer.Backpropagate: no cached output, FeedForward must run first")
	}

	scratch := lay.scratchArena()

	// delta = W^T * e, computed before W changes.
	wT, err := blas.NewMatrixWith[float32](scratch, lay.InputSize, lay.OutputSize)
	if err != nil {
		return err
	}
	if err := blas.TransposeInto(wT, lay.W); err != nil {
		return err
	}
	delta, err := blas.NewVectorWith[float32](scratch, lay.InputSize)
	if err != nil {
		return err
	}
	if err := blas.MulVecInto(delta, wT, e); err != nil {
		return err
	}

	// gradient = out * (1 - out) * e
	gradient, err := blas.NewVectorWith[float32](scratch, lay.OutputSize)
	if err != nil {
		return err
	}
	if err := gradient.CopyFrom(lay.Output()); err != nil {
		return err
	}
	gradient.Apply(outputDerivative)
	if err := gradient.MulInPlace(e); err != nil {
		return err
	}

	// W += outer(gradient, x) * learningRate
	dw, err := blas.NewMatrixWith[float32](scratch, lay.OutputSize, lay.InputSize)
	if err != nil {
		return err
	}
	if err := blas.OuterProductInto(dw, gradient, x); err != nil {
		return err
	}
	dw.MulScalarInPlace(learningRate)
	if err := lay.W.AddInPlace(dw); err != nil {
		return err
	}

	// B += gradient * learningRate
	gradient.MulScalarInPlace(learningRate)
	if err := lay.B.AddInPlace(gradient); err != nil {
		return err
	}

	return e.CopyFrom(delta)
}
