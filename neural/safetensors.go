package neural

import (
	"bufio"
	"bytes"
	"encoding/binary"
	"encoding/json"
	"fmt"
	"io"
	"maps"
	"slices"
)

// Tensor is a flat float32 array with a shape, as stored in a safetensors
// file.
type Tensor struct {
	V     []float32
	Shape []int
}

type SafeTensorInfo struct {
	DType       string `json:"dtype"`
	Shape       []int  `json:"shape"`
	DataOffsets []int  `json:"data_offsets"`
}

// WriteSafeTensors writes tensors in the safetensors format.  Tensors are
// laid out in sorted key order and the JSON header is space-padded to a
// multiple of 8 bytes so the data section stays aligned.
func WriteSafeTensors(w io.Writer, tensors map[string]*Tensor) error {
	keys := slices.Sorted(maps.Keys(tensors))

	header := make(map[string]SafeTensorInfo, len(keys))
	offset := 0
	for _, k := range keys {
		size := 1
		for _, s := range tensors[k].Shape {
			size *= s
		}
		if size != len(tensors[k].V) {
			return fmt.Errorf("tensor %s has %d values for shape %v", k, len(tensors[k].V), tensors[k].Shape)
		}

		n := 4 * len(tensors[k].V)
		header[k] = SafeTensorInfo{
			DType:       "F32",
			Shape:       tensors[k].Shape,
			DataOffsets: []int{offset, offset + n},
		}
		offset += n
	}

	headerBytes, err := json.Marshal(header)
	if err != nil {
		return fmt.Errorf("while marshaling header: %w", err)
	}
	if pad := len(headerBytes) % 8; pad != 0 {
		headerBytes = append(headerBytes, bytes.Repeat([]byte{' '}, 8-pad)...)
	}

	bw := bufio.NewWriter(w)
	if err := binary.Write(bw, binary.LittleEndian, uint64(len(headerBytes))); err != nil {
		return fmt.Errorf("while writing header length: %w", err)
	}
	if _, err := bw.Write(headerBytes); err != nil {
		return fmt.Errorf("while writing header: %w", err)
	}
	for _, k := range keys {
		if err := binary.Write(bw, binary.LittleEndian, tensors[k].V); err != nil {
			return fmt.Errorf("while writing %s values: %w", k, err)
		}
	}
	if err := bw.Flush(); err != nil {
		return fmt.Errorf("while flushing tensors: %w", err)
	}
	return nil
}

// ReadSafeTensors reads a safetensors stream holding only F32 tensors.
func ReadSafeTensors(r io.Reader) (map[string]*Tensor, error) {
	var headerLen uint64
	if err := binary.Read(r, binary.LittleEndian, &headerLen); err != nil {
		return nil, fmt.Errorf("while reading header length: %w", err)
	}
	if headerLen > 100<<20 {
		return nil, fmt.Errorf("header length %d is implausibly large", headerLen)
	}

	headerBytes := make([]byte, int(headerLen))
	if _, err := io.ReadFull(r, headerBytes); err != nil {
		return nil, fmt.Errorf("while reading header: %w", err)
	}

	header := map[string]SafeTensorInfo{}
	if err := json.Unmarshal(headerBytes, &header); err != nil {
		return nil, fmt.Errorf("while reading header: %w", err)
	}

	data, err := io.ReadAll(r)
	if err != nil {
		return nil, fmt.Errorf("while reading tensor data: %w", err)
	}

	tensors := map[string]*Tensor{}
	for k, hdr := range header {
		if k == "__metadata__" {
			continue
		}
		if hdr.DType != "F32" {
			return nil, fmt.Errorf("unsupported dtype %s", hdr.DType)
		}

		// Bounding by the bytes actually present keeps size from
		// overflowing on a crafted shape.
		size := 1
		for _, s := range hdr.Shape {
			if s < 1 || size > len(data)/4/s {
				return nil, fmt.Errorf("bad shape %v for %s with %d data bytes", hdr.Shape, k, len(data))
			}
			size *= s
		}

		if len(hdr.DataOffsets) != 2 {
			return nil, fmt.Errorf("bad data offsets %v for %s", hdr.DataOffsets, k)
		}
		begin, end := hdr.DataOffsets[0], hdr.DataOffsets[1]
		if begin < 0 || end > len(data) || end-begin != size*4 {
			return nil, fmt.Errorf("data offsets %v for %s do not match shape %v", hdr.DataOffsets, k, hdr.Shape)
		}

		tensor := &Tensor{
			V:     make([]float32, size),
			Shape: hdr.Shape,
		}
		if err := binary.Read(bytes.NewReader(data[begin:end]), binary.LittleEndian, tensor.V); err != nil {
			return nil, fmt.Errorf("while decoding %s: %w", k, err)
		}

		tensors[k] = tensor
	}

	return tensors, nil
}

// DumpTensors adds copies of every layer's weights and biases to tensors.
func (net *Network) DumpTensors(tensors map[string]*Tensor) {
	for l, lay := range net.Layers {
		tensors[fmt.Sprintf("net.%d.weights", l)] = &Tensor{
			V:     slices.Clone(lay.W.Data()),
			Shape: []int{lay.OutputSize, lay.InputSize},
		}
		tensors[fmt.Sprintf("net.%d.biases", l)] = &Tensor{
			V:     slices.Clone(lay.B.Data()),
			Shape: []int{lay.OutputSize},
		}
	}
}

// LoadTensors overwrites every layer's weights and biases from tensors.  All
// shapes are checked before any layer is modified.
func (net *Network) LoadTensors(tensors map[string]*Tensor) error {
	lookup := func(key string, wantShape []int) (*Tensor, error) {
		tensor, ok := tensors[key]
		if !ok {
			return nil, fmt.Errorf("no entry for %s", key)
		}
		if !slices.Equal(tensor.Shape, wantShape) {
			return nil, fmt.Errorf("wrong shape for %s; got %v want %v", key, tensor.Shape, wantShape)
		}
		return tensor, nil
	}

	weights := make([]*Tensor, len(net.Layers))
	biases := make([]*Tensor, len(net.Layers))
	for l, lay := range net.Layers {
		var err error
		weights[l], err = lookup(fmt.Sprintf("net.%d.weights", l), []int{lay.OutputSize, lay.InputSize})
		if err != nil {
			return err
		}
		biases[l], err = lookup(fmt.Sprintf("net.%d.biases", l), []int{lay.OutputSize})
		if err != nil {
			return err
		}
	}

	for l, lay := range net.Layers {
		copy(lay.W.Data(), weights[l].V)
		copy(lay.B.Data(), biases[l].V)
	}
	return nil
}
