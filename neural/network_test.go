package neural

import (
	"math/rand"
	"testing"

	"github.com/ahmedtd/mlp/blas"
	"github.com/chewxy/math32"
	"github.com/google/go-cmp/cmp"
	"github.com/google/go-cmp/cmp/cmpopts"
	"github.com/stretchr/testify/require"
)

func TestMakeNetworkShapes(t *testing.T) {
	net, err := MakeNetwork(Tanh, rand.New(rand.NewSource(12345)), 784, 32, 16, 10)
	require.NoError(t, err)

	require.Len(t, net.Layers, 3)
	require.Equal(t, 784, net.InputSize())
	require.Equal(t, 10, net.OutputSize())

	wantShapes := [][2]int{{784, 32}, {32, 16}, {16, 10}}
	for l, lay := range net.Layers {
		got := [2]int{lay.InputSize, lay.OutputSize}
		if got != wantShapes[l] {
			t.Errorf("layer %d is %v, want %v", l, got, wantShapes[l])
		}
	}
}

func TestMakeNetworkErrors(t *testing.T) {
	r := rand.New(rand.NewSource(12345))

	_, err := MakeNetwork(Tanh, r)
	require.ErrorIs(t, err, ErrTooFewWidths)

	_, err = MakeNetwork(Tanh, r, 10)
	require.ErrorIs(t, err, ErrTooFewWidths)

	_, err = MakeNetwork(Tanh, r, 10, 0, 2)
	require.ErrorIs(t, err, ErrInvalidWidth)
}

func TestNetworkEndToEnd(t *testing.T) {
	net, err := MakeNetwork(Tanh, rand.New(rand.NewSource(12345)), 2, 2, 1)
	require.NoError(t, err)

	w1 := []float32{
		0.1, 0.2,
		-0.3, 0.4,
	}
	b1 := []float32{0.05, -0.05}
	w2 := []float32{0.7, -0.6}
	b2 := []float32{0.2}

	copy(net.Layers[0].W.Data(), w1)
	copy(net.Layers[0].B.Data(), b1)
	copy(net.Layers[1].W.Data(), w2)
	copy(net.Layers[1].B.Data(), b2)

	x := []float32{1.0, 0.0}
	out, err := net.FeedForward(blas.VectorOf(x...))
	require.NoError(t, err)
	require.Equal(t, 1, out.Size())

	h := []float32{
		math32.Tanh(w1[0]*x[0] + w1[1]*x[1] + b1[0]),
		math32.Tanh(w1[2]*x[0] + w1[3]*x[1] + b1[1]),
	}
	want := []float32{math32.Tanh(w2[0]*h[0] + w2[1]*h[1] + b2[0])}

	if diff := cmp.Diff(out.Data(), want, cmpopts.EquateApprox(0, 1e-6)); diff != "" {
		t.Errorf("Wrong output; diff (-got +want)\n%s", diff)
	}
}

func TestNetworkFeedForwardWrongInput(t *testing.T) {
	net, err := MakeNetwork(Tanh, rand.New(rand.NewSource(12345)), 3, 2)
	require.NoError(t, err)

	_, err = net.FeedForward(blas.VectorOf[float32](1, 2))
	require.ErrorIs(t, err, ErrInputSize)
}

func TestTrainDecreasesError(t *testing.T) {
	net, err := MakeNetwork(Tanh, rand.New(rand.NewSource(12345)), 2, 3, 1)
	require.NoError(t, err)
	for _, lay := range net.Layers {
		lay.W.Fill(0.1)
		lay.B.Fill(0)
	}

	x := blas.VectorOf[float32](1, 0.5)
	target := blas.VectorOf[float32](1)

	out, err := net.FeedForward(x)
	require.NoError(t, err)
	prev, err := SquaredError(target, out)
	require.NoError(t, err)

	for step := 0; step < 50; step++ {
		require.NoError(t, net.Train(x, target, 0.05))

		out, err := net.FeedForward(x)
		require.NoError(t, err)
		cur, err := SquaredError(target, out)
		require.NoError(t, err)

		if !(cur < prev) {
			t.Fatalf("step %d: error went from %v to %v", step, prev, cur)
		}
		prev = cur
	}
}

func TestTrainWrongTarget(t *testing.T) {
	net, err := MakeNetwork(Tanh, rand.New(rand.NewSource(12345)), 2, 3, 2)
	require.NoError(t, err)

	before, err := net.Layers[1].W.Clone()
	require.NoError(t, err)

	err = net.Train(blas.VectorOf[float32](1, 2), blas.VectorOf[float32](1), 0.1)
	require.ErrorIs(t, err, ErrTargetSize)
	require.True(t, net.Layers[1].W.Equal(before))
}

// TestAgreesWithHandcodedBackprop trains a [2, 3, 2] network for a few
// steps and compares it with the same update written out with plain slices.
func TestAgreesWithHandcodedBackprop(t *testing.T) {
	net, err := MakeNetwork(Tanh, rand.New(rand.NewSource(12345)), 2, 3, 2)
	require.NoError(t, err)

	w1 := append([]float32(nil), net.Layers[0].W.Data()...)
	b1 := append([]float32(nil), net.Layers[0].B.Data()...)
	w2 := append([]float32(nil), net.Layers[1].W.Data()...)
	b2 := append([]float32(nil), net.Layers[1].B.Data()...)

	x := []float32{0.3, -0.7}
	y := []float32{0.2, -0.4}
	lr := float32(0.1)

	for step := 0; step < 10; step++ {
		require.NoError(t, net.Train(blas.VectorOf(x...), blas.VectorOf(y...), lr))
		handcodedTrainStep(w1, b1, w2, b2, x, y, lr)
	}

	approx := cmpopts.EquateApprox(0, 1e-5)
	if diff := cmp.Diff(net.Layers[0].W.Data(), w1, approx); diff != "" {
		t.Errorf("Disagreement on layer 0 weights; diff (-got +want)\n%s", diff)
	}
	if diff := cmp.Diff(net.Layers[0].B.Data(), b1, approx); diff != "" {
		t.Errorf("Disagreement on layer 0 biases; diff (-got +want)\n%s", diff)
	}
	if diff := cmp.Diff(net.Layers[1].W.Data(), w2, approx); diff != "" {
		t.Errorf("Disagreement on layer 1 weights; diff (-got +want)\n%s", diff)
	}
	if diff := cmp.Diff(net.Layers[1].B.Data(), b2, approx); diff != "" {
		t.Errorf("Disagreement on layer 1 biases; diff (-got +want)\n%s", diff)
	}
}

// handcodedTrainStep is one Train call for a [2, 3, 2] tanh network.  w1 is
// (3, 2) and w2 is (2, 3), both row-major.
func handcodedTrainStep(w1, b1, w2, b2, x, y []float32, lr float32) {
	h := make([]float32, 3)
	for i := 0; i < 3; i++ {
		z := b1[i]
		for j := 0; j < 2; j++ {
			z += w1[i*2+j] * x[j]
		}
		h[i] = math32.Tanh(z)
	}

	o := make([]float32, 2)
	for k := 0; k < 2; k++ {
		z := b2[k]
		for i := 0; i < 3; i++ {
			z += w2[k*3+i] * h[i]
		}
		o[k] = math32.Tanh(z)
	}

	e := make([]float32, 2)
	for k := range e {
		e[k] = (o[k] - y[k]) * (o[k] - y[k])
	}

	// Output layer.
	delta := make([]float32, 3)
	for i := 0; i < 3; i++ {
		for k := 0; k < 2; k++ {
			delta[i] += w2[k*3+i] * e[k]
		}
	}
	for k := 0; k < 2; k++ {
		g := o[k] * (1 - o[k]) * e[k]
		for i := 0; i < 3; i++ {
			w2[k*3+i] += g * h[i] * lr
		}
		b2[k] += g * lr
	}

	// Hidden layer.
	for i := 0; i < 3; i++ {
		g := h[i] * (1 - h[i]) * delta[i]
		for j := 0; j < 2; j++ {
			w1[i*2+j] += g * x[j] * lr
		}
		b1[i] += g * lr
	}
}

func TestPredict(t *testing.T) {
	net, err := MakeNetwork(Tanh, rand.New(rand.NewSource(12345)), 2, 3)
	require.NoError(t, err)

	lay := net.Layers[0]
	lay.W.Fill(0)
	copy(lay.B.Data(), []float32{-0.5, 0.9, 0.1})

	got, err := net.Predict(blas.VectorOf[float32](0.2, 0.4))
	require.NoError(t, err)
	require.Equal(t, 1, got)
}

func TestSquaredError(t *testing.T) {
	got, err := SquaredError(blas.VectorOf[float32](1, 0, 0), blas.VectorOf[float32](0.5, 0.5, 0))
	require.NoError(t, err)
	require.InDelta(t, 0.5, got, 1e-6)

	_, err = SquaredError(blas.VectorOf[float32](1), blas.VectorOf[float32](1, 2))
	require.ErrorIs(t, err, blas.ErrSizeMismatch)
}
