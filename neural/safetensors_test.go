package neural

import (
	"bytes"
	"encoding/binary"
	"encoding/json"
	"math"
	"math/rand"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/require"
)

func TestSafeTensorsRoundTrip(t *testing.T) {
	net, err := MakeNetwork(Tanh, rand.New(rand.NewSource(12345)), 6, 4, 3)
	require.NoError(t, err)

	tensors := map[string]*Tensor{}
	net.DumpTensors(tensors)
	require.Len(t, tensors, 4)
	require.Equal(t, []int{4, 6}, tensors["net.0.weights"].Shape)
	require.Equal(t, []int{3}, tensors["net.1.biases"].Shape)

	buf := &bytes.Buffer{}
	require.NoError(t, WriteSafeTensors(buf, tensors))

	read, err := ReadSafeTensors(bytes.NewReader(buf.Bytes()))
	require.NoError(t, err)
	if diff := cmp.Diff(read, tensors); diff != "" {
		t.Fatalf("Wrong tensors after round trip; diff (-got +want)\n%s", diff)
	}

	restored, err := MakeNetwork(Tanh, rand.New(rand.NewSource(999)), 6, 4, 3)
	require.NoError(t, err)
	require.NoError(t, restored.LoadTensors(read))

	for l := range net.Layers {
		require.True(t, restored.Layers[l].W.Equal(net.Layers[l].W), "layer %d weights", l)
		require.True(t, restored.Layers[l].B.Equal(net.Layers[l].B), "layer %d biases", l)
	}
}

func TestLoadTensorsRejectsWrongShape(t *testing.T) {
	src, err := MakeNetwork(Tanh, rand.New(rand.NewSource(12345)), 6, 4, 3)
	require.NoError(t, err)
	tensors := map[string]*Tensor{}
	src.DumpTensors(tensors)

	dst, err := MakeNetwork(Tanh, rand.New(rand.NewSource(1)), 6, 5, 3)
	require.NoError(t, err)
	before, err := dst.Layers[0].W.Clone()
	require.NoError(t, err)

	require.Error(t, dst.LoadTensors(tensors))
	require.True(t, dst.Layers[0].W.Equal(before), "a rejected load modified layer 0")
}

func TestLoadTensorsMissingKey(t *testing.T) {
	net, err := MakeNetwork(Tanh, rand.New(rand.NewSource(12345)), 2, 2)
	require.NoError(t, err)

	err = net.LoadTensors(map[string]*Tensor{
		"net.0.weights": {V: make([]float32, 4), Shape: []int{2, 2}},
	})
	require.ErrorContains(t, err, "net.0.biases")
}

func TestReadSafeTensorsTruncated(t *testing.T) {
	tensors := map[string]*Tensor{
		"a": {V: []float32{1, 2, 3}, Shape: []int{3}},
	}
	buf := &bytes.Buffer{}
	require.NoError(t, WriteSafeTensors(buf, tensors))

	data := buf.Bytes()
	_, err := ReadSafeTensors(bytes.NewReader(data[:len(data)-4]))
	require.Error(t, err)

	_, err = ReadSafeTensors(bytes.NewReader(data[:5]))
	require.Error(t, err)
}

func TestWriteSafeTensorsLayout(t *testing.T) {
	tensors := map[string]*Tensor{
		"b": {V: []float32{4, 5}, Shape: []int{2}},
		"a": {V: []float32{1, 2, 3}, Shape: []int{3, 1}},
	}
	buf := &bytes.Buffer{}
	require.NoError(t, WriteSafeTensors(buf, tensors))

	data := buf.Bytes()
	headerLen := binary.LittleEndian.Uint64(data[:8])
	require.Zero(t, headerLen%8, "header is not padded to 8 bytes")

	// Data follows in sorted key order.
	values := make([]float32, 5)
	require.NoError(t, binary.Read(bytes.NewReader(data[8+headerLen:]), binary.LittleEndian, values))
	require.Equal(t, []float32{1, 2, 3, 4, 5}, values)

	read, err := ReadSafeTensors(bytes.NewReader(data))
	require.NoError(t, err)
	if diff := cmp.Diff(read, tensors); diff != "" {
		t.Errorf("Wrong tensors after round trip; diff (-got +want)\n%s", diff)
	}
}

func TestWriteSafeTensorsRejectsShapeMismatch(t *testing.T) {
	buf := &bytes.Buffer{}
	err := WriteSafeTensors(buf, map[string]*Tensor{
		"w": {V: make([]float32, 5), Shape: []int{2, 3}},
	})
	require.ErrorContains(t, err, "w")
	require.Zero(t, buf.Len(), "a rejected write produced output")
}

func TestReadSafeTensorsHugeShape(t *testing.T) {
	for _, shape := range [][]int{
		{math.MaxInt32, math.MaxInt32, math.MaxInt32},
		{math.MaxInt, 2},
		{2, 0},
		{-1, -1},
	} {
		header, err := json.Marshal(map[string]SafeTensorInfo{
			"x": {DType: "F32", Shape: shape, DataOffsets: []int{0, 0}},
		})
		require.NoError(t, err)

		buf := &bytes.Buffer{}
		require.NoError(t, binary.Write(buf, binary.LittleEndian, uint64(len(header))))
		buf.Write(header)
		buf.Write(make([]byte, 16))

		_, err = ReadSafeTensors(bytes.NewReader(buf.Bytes()))
		require.ErrorContains(t, err, "bad shape", "shape %v", shape)
	}
}
