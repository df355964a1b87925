// Package mnist loads the MNIST handwritten digit data set as float32
// vectors ready for a network with 784 inputs and 10 outputs.
package mnist

import (
	"bufio"
	"compress/gzip"
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"

	"github.com/ahmedtd/mlp/blas"
)

const (
	imageMagic = 2051
	labelMagic = 2049

	// Classes is the number of digit classes.
	Classes = 10

	// maxImagePixels bounds rows*cols so a corrupt header cannot request an
	// arbitrarily large image buffer.
	maxImagePixels = 1 << 24
)

var (
	ErrBadMagic      = errors.New("mnist: bad IDX magic number")
	ErrCountMismatch = errors.New("mnist: image and label counts differ")
	ErrBadLabel      = errors.New("mnist: label out of range")
	ErrBadHeader     = errors.New("mnist: bad IDX dimensions")
)

// Dataset holds one split of the data set.  Inputs[i] has one value in [0, 1]
// per pixel, Targets[i] is the one-hot encoding of Labels[i].
type Dataset struct {
	Inputs  []*blas.Vector[float32]
	Targets []*blas.Vector[float32]
	Labels  []int
}

func (d *Dataset) Len() int {
	return len(d.Labels)
}

func makeDataset(inputs []*blas.Vector[float32], labels []uint8) (*Dataset, error) {
	if len(inputs) != len(labels) {
		return nil, fmt.Errorf("%d images, %d labels: %w", len(inputs), len(labels), ErrCountMismatch)
	}

	d := &Dataset{
		Inputs:  inputs,
		Targets: make([]*blas.Vector[float32], len(labels)),
		Labels:  make([]int, len(labels)),
	}
	for i, l := range labels {
		target, err := OneHot(int(l), Classes)
		if err != nil {
			return nil, fmt.Errorf("sample %d: %w", i, err)
		}
		d.Targets[i] = target
		d.Labels[i] = int(l)
	}
	return d, nil
}

// OneHot returns a vector of the given number of classes that is 1 at label
// and 0 elsewhere.
func OneHot(label, classes int) (*blas.Vector[float32], error) {
	if label < 0 || label >= classes {
		return nil, fmt.Errorf("label %d with %d classes: %w", label, classes, ErrBadLabel)
	}
	v, err := blas.NewVector[float32](classes)
	if err != nil {
		return nil, err
	}
	v.Set(label, 1)
	return v, nil
}

// ReadImages reads an IDX3 image file.  Every image is flattened row by row
// and each pixel byte is scaled to [0, 1].
func ReadImages(r io.Reader) ([]*blas.Vector[float32], error) {
	var header [4]uint32
	if err := binary.Read(r, binary.BigEndian, &header); err != nil {
		return nil, fmt.Errorf("while reading image header: %w", noEOF(err))
	}
	if header[0] != imageMagic {
		return nil, fmt.Errorf("image file magic %d, want %d: %w", header[0], imageMagic, ErrBadMagic)
	}

	count := int(header[1])
	rows, cols := uint64(header[2]), uint64(header[3])
	if rows == 0 || cols == 0 || rows*cols > maxImagePixels {
		return nil, fmt.Errorf("images of %dx%d pixels: %w", rows, cols, ErrBadHeader)
	}
	pixels := int(rows * cols)

	images := make([]*blas.Vector[float32], 0, min(count, 1<<16))
	raw := make([]byte, pixels)
	for i := 0; i < count; i++ {
		if _, err := io.ReadFull(r, raw); err != nil {
			return nil, fmt.Errorf("while reading image %d of %d: %w", i, count, noEOF(err))
		}

		img, err := blas.NewVector[float32](pixels)
		if err != nil {
			return nil, err
		}
		for j, p := range raw {
			img.Set(j, float32(p)/255)
		}
		images = append(images, img)
	}

	return images, nil
}

// ReadLabels reads an IDX1 label file.
func ReadLabels(r io.Reader) ([]uint8, error) {
	var header [2]uint32
	if err := binary.Read(r, binary.BigEndian, &header); err != nil {
		return nil, fmt.Errorf("while reading label header: %w", noEOF(err))
	}
	if header[0] != labelMagic {
		return nil, fmt.Errorf("label file magic %d, want %d: %w", header[0], labelMagic, ErrBadMagic)
	}

	labels, err := io.ReadAll(io.LimitReader(r, int64(header[1])))
	if err != nil {
		return nil, fmt.Errorf("while reading labels: %w", err)
	}
	if len(labels) != int(header[1]) {
		return nil, fmt.Errorf("got %d of %d labels: %w", len(labels), header[1], io.ErrUnexpectedEOF)
	}
	return labels, nil
}

// A file that ends inside a header or record is truncated, not empty.
func noEOF(err error) error {
	if err == io.EOF {
		return io.ErrUnexpectedEOF
	}
	return err
}

// Read decodes a matched pair of image and label streams.
func Read(images, labels io.Reader) (*Dataset, error) {
	inputs, err := ReadImages(images)
	if err != nil {
		return nil, err
	}
	ls, err := ReadLabels(labels)
	if err != nil {
		return nil, err
	}
	return makeDataset(inputs, ls)
}

// LoadIDX loads <prefix>-images-idx3-ubyte and <prefix>-labels-idx1-ubyte
// from dir.  prefix is "train" or "t10k" for the standard distribution.
// Either file may instead be present gzipped with a .gz suffix.
func LoadIDX(dir, prefix string) (*Dataset, error) {
	imgFile, err := openIDX(filepath.Join(dir, prefix+"-images-idx3-ubyte"))
	if err != nil {
		return nil, err
	}
	defer imgFile.Close()

	lblFile, err := openIDX(filepath.Join(dir, prefix+"-labels-idx1-ubyte"))
	if err != nil {
		return nil, err
	}
	defer lblFile.Close()

	d, err := Read(imgFile, lblFile)
	if err != nil {
		return nil, fmt.Errorf("while loading %s set from %s: %w", prefix, dir, err)
	}
	return d, nil
}

type idxFile struct {
	io.Reader
	f  *os.File
	gz *gzip.Reader
}

func (i *idxFile) Close() error {
	if i.gz != nil {
		i.gz.Close()
	}
	return i.f.Close()
}

// openIDX opens path, or path.gz if path does not exist.  Content starting
// with the gzip magic bytes is decompressed whatever the file name.
func openIDX(path string) (*idxFile, error) {
	f, err := os.Open(path)
	if errors.Is(err, os.ErrNotExist) {
		f, err = os.Open(path + ".gz")
	}
	if err != nil {
		return nil, fmt.Errorf("while opening %s: %w", path, err)
	}

	br := bufio.NewReader(f)
	magic, err := br.Peek(2)
	if err == nil && magic[0] == 0x1f && magic[1] == 0x8b {
		gz, err := gzip.NewReader(br)
		if err != nil {
			f.Close()
			return nil, fmt.Errorf("while opening gzip stream in %s: %w", f.Name(), err)
		}
		return &idxFile{Reader: bufio.NewReader(gz), f: f, gz: gz}, nil
	}

	return &idxFile{Reader: br, f: f}, nil
}
