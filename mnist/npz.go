package mnist

import (
	"fmt"

	"github.com/ahmedtd/mlp/blas"
	"github.com/sbinet/npyio/npz"
)

// LoadNPZ loads the train and test splits from an mnist.npz archive holding
// the uint8 arrays x_train (n, 28, 28), y_train (n), x_test and y_test.
func LoadNPZ(path string) (train, test *Dataset, err error) {
	r, err := npz.Open(path)
	if err != nil {
		return nil, nil, fmt.Errorf("while opening mnist data file: %w", err)
	}
	defer r.Close()

	// numpy always writes C-order arrays, so each image is contiguous.

	train, err = loadSplit(r, "x_train.npy", "y_train.npy")
	if err != nil {
		return nil, nil, err
	}
	test, err = loadSplit(r, "x_test.npy", "y_test.npy")
	if err != nil {
		return nil, nil, err
	}
	return train, test, nil
}

func loadSplit(r *npz.Reader, imagesName, labelsName string) (*Dataset, error) {
	images, err := loadImages(r, imagesName)
	if err != nil {
		return nil, fmt.Errorf("while reading %s: %w", imagesName, err)
	}
	labels, err := loadLabels(r, labelsName)
	if err != nil {
		return nil, fmt.Errorf("while reading %s: %w", labelsName, err)
	}
	return makeDataset(images, labels)
}

func loadImages(r *npz.Reader, name string) ([]*blas.Vector[float32], error) {
	var raw []uint8
	if err := r.Read(name, &raw); err != nil {
		return nil, fmt.Errorf("while reading uint8 array: %w", err)
	}

	shape := r.Header(name).Descr.Shape
	if len(shape) != 3 {
		return nil, fmt.Errorf("image array has shape %v, want (n, rows, cols)", shape)
	}

	count, pixels := shape[0], shape[1]*shape[2]
	if len(raw) != count*pixels {
		return nil, fmt.Errorf("got %d bytes for shape %v", len(raw), shape)
	}

	images := make([]*blas.Vector[float32], count)
	for i := range images {
		img, err := blas.NewVector[float32](pixels)
		if err != nil {
			return nil, err
		}
		for j, p := range raw[i*pixels : (i+1)*pixels] {
			img.Set(j, float32(p)/255)
		}
		images[i] = img
	}
	return images, nil
}

func loadLabels(r *npz.Reader, name string) ([]uint8, error) {
	var raw []uint8
	if err := r.Read(name, &raw); err != nil {
		return nil, fmt.Errorf("while reading uint8 array: %w", err)
	}
	return raw, nil
}
