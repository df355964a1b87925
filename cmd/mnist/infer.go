package main

import (
	"context"
	"flag"
	"fmt"
	"image"
	"image/color"
	"log"
	"math/rand"
	"os"

	"github.com/ahmedtd/mlp/blas"
	"github.com/ahmedtd/mlp/neural"
	"github.com/google/subcommands"

	_ "image/jpeg"
	_ "image/png"
)

type InferCommand struct {
	weightsFile string
	layers      string
	activation  string
	imageFile   string
}

var _ subcommands.Command = (*InferCommand)(nil)

func (*InferCommand) Name() string {
	return "infer"
}

func (*InferCommand) Synopsis() string {
	return "Infer using the model weights"
}

func (*InferCommand) Usage() string {
	return ``
}

func (c *InferCommand) SetFlags(f *flag.FlagSet) {
	f.StringVar(&c.weightsFile, "weights", "mnist.safetensors", "Path to the weights produced by the train command")
	f.StringVar(&c.layers, "layers", "784,10", "Comma-separated layer widths the weights were trained with")
	f.StringVar(&c.activation, "activation", "tanh", "Activation function the weights were trained with")
	f.StringVar(&c.imageFile, "image", "", "Path to the 28x28 grayscale image to predict")
}

func (c *InferCommand) Execute(ctx context.Context, f *flag.FlagSet, _ ...interface{}) subcommands.ExitStatus {
	if err := c.executeErr(ctx); err != nil {
		log.Printf("Error: %v", err)
		return subcommands.ExitFailure
	}
	return subcommands.ExitSuccess
}

func (c *InferCommand) executeErr(ctx context.Context) error {
	widths, err := parseLayers(c.layers)
	if err != nil {
		return err
	}
	activation, err := neural.ParseActivation(c.activation)
	if err != nil {
		return err
	}

	// The random initialization is overwritten by the loaded weights.
	net, err := neural.MakeNetwork(activation, rand.New(rand.NewSource(12345)), widths...)
	if err != nil {
		return fmt.Errorf("while building network: %w", err)
	}

	if err := loadWeights(net, c.weightsFile); err != nil {
		return fmt.Errorf("while loading weights: %w", err)
	}

	x, err := loadImage(c.imageFile)
	if err != nil {
		return fmt.Errorf("while loading image: %w", err)
	}

	digit, err := net.Predict(x)
	if err != nil {
		return fmt.Errorf("while predicting: %w", err)
	}

	log.Printf("Prediction: %d", digit)
	return nil
}

// loadImage decodes a PNG or JPEG file into grayscale values in [0, 1], row
// by row.
func loadImage(path string) (*blas.Vector[float32], error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("while opening image file: %w", err)
	}
	defer f.Close()

	rawImg, _, err := image.Decode(f)
	if err != nil {
		return nil, fmt.Errorf("while decoding image: %w", err)
	}

	bounds := rawImg.Bounds()

	out, err := blas.NewVector[float32](bounds.Dx() * bounds.Dy())
	if err != nil {
		return nil, err
	}

	for y := bounds.Min.Y; y < bounds.Max.Y; y++ {
		for x := bounds.Min.X; x < bounds.Max.X; x++ {
			v := float32(color.GrayModel.Convert(rawImg.At(x, y)).(color.Gray).Y) / float32(255)
			out.Set((y-bounds.Min.Y)*bounds.Dx()+(x-bounds.Min.X), v)
		}
	}

	return out, nil
}
