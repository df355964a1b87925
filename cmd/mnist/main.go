// Command mnist trains and runs a multilayer perceptron on the MNIST data set.
//
// To train: `go run ./cmd/mnist train --data-dir=dataset/`
//
// To train from the npz distribution: `go run ./cmd/mnist train --data-file=cmd/mnist/data/mnist.npz`
//
// To infer: `go run ./cmd/mnist infer --weights=mnist-out.safetensors --image=cmd/mnist/data/five.png`
package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"math/rand"
	"os"
	"runtime/pprof"
	"strconv"
	"strings"
	"time"

	"github.com/ahmedtd/mlp/mnist"
	"github.com/ahmedtd/mlp/neural"
	"github.com/google/subcommands"
)

func main() {
	subcommands.Register(subcommands.HelpCommand(), "")
	subcommands.Register(subcommands.FlagsCommand(), "")
	subcommands.Register(subcommands.CommandsCommand(), "")

	subcommands.Register(&TrainCommand{}, "")
	subcommands.Register(&InferCommand{}, "")

	flag.Parse()
	ctx := context.Background()
	os.Exit(int(subcommands.Execute(ctx)))
}

type TrainCommand struct {
	dataDir  string
	dataFile string

	layers       string
	activation   string
	epochs       int
	learningRate float64
	seed         int64
	shuffle      bool

	evalCount int
	logEvery  int

	fromCheckpointFile string
	outputWeightFile   string

	cpuProfileFile string
}

var _ subcommands.Command = (*TrainCommand)(nil)

func (*TrainCommand) Name() string {
	return "train"
}

func (*TrainCommand) Synopsis() string {
	return "Train the model"
}

func (*TrainCommand) Usage() string {
	return `train [--data-dir=DIR | --data-file=mnist.npz] [--layers=784,10] [--epochs=5]
`
}

func (c *TrainCommand) SetFlags(f *flag.FlagSet) {
	f.StringVar(&c.dataDir, "data-dir", "dataset", "Directory holding train-images-idx3-ubyte and train-labels-idx1-ubyte (optionally gzipped)")
	f.StringVar(&c.dataFile, "data-file", "", "Path to an mnist.npz input file; overrides --data-dir")

	f.StringVar(&c.layers, "layers", "784,10", "Comma-separated layer widths, input first")
	f.StringVar(&c.activation, "activation", "tanh", "Activation function (tanh or sigmoid)")
	f.IntVar(&c.epochs, "epochs", 5, "Number of passes over the training set")
	f.Float64Var(&c.learningRate, "learning-rate", 0.1, "Learning rate for each per-sample update")
	f.Int64Var(&c.seed, "seed", 12345, "Seed for weight initialization and shuffling")
	f.BoolVar(&c.shuffle, "shuffle", false, "Shuffle the training samples before each epoch")

	f.IntVar(&c.evalCount, "eval-count", 0, "Number of samples to evaluate accuracy on; 0 means all")
	f.IntVar(&c.logEvery, "log-every", 10000, "Log training progress every this many samples")

	f.StringVar(&c.fromCheckpointFile, "from-checkpoint", "", "Path to initial weights to load for training")
	f.StringVar(&c.outputWeightFile, "output-weight-file", "", "Path to save trained weights (safetensors format)")

	f.StringVar(&c.cpuProfileFile, "cpu-profile", "", "Write a CPU profile")
}

func (c *TrainCommand) Execute(ctx context.Context, f *flag.FlagSet, _ ...interface{}) subcommands.ExitStatus {
	if err := c.executeErr(ctx); err != nil {
		log.Printf("Error: %v", err)
		return subcommands.ExitFailure
	}
	return subcommands.ExitSuccess
}

func (c *TrainCommand) executeErr(ctx context.Context) error {
	if c.cpuProfileFile != "" {
		f, err := os.Create(c.cpuProfileFile)
		if err != nil {
			return fmt.Errorf("while creating CPU profile file: %w", err)
		}
		defer f.Close()
		if err := pprof.StartCPUProfile(f); err != nil {
			return fmt.Errorf("while starting CPU profile: %w", err)
		}
		defer pprof.StopCPUProfile()
	}

	widths, err := parseLayers(c.layers)
	if err != nil {
		return err
	}
	activation, err := neural.ParseActivation(c.activation)
	if err != nil {
		return err
	}

	train, eval, err := c.loadData()
	if err != nil {
		return fmt.Errorf("while loading MNIST data set: %w", err)
	}
	log.Printf("Data loaded: %d training samples, %d evaluation samples", train.Len(), eval.Len())

	r := rand.New(rand.NewSource(c.seed))

	net, err := neural.MakeNetwork(activation, r, widths...)
	if err != nil {
		return fmt.Errorf("while building network: %w", err)
	}

	if c.fromCheckpointFile != "" {
		if err := loadWeights(net, c.fromCheckpointFile); err != nil {
			return fmt.Errorf("while loading initial checkpoint: %w", err)
		}
	}

	order := make([]int, train.Len())
	for i := range order {
		order[i] = i
	}

	lr := float32(c.learningRate)
	for epoch := 0; epoch < c.epochs; epoch++ {
		if c.shuffle {
			r.Shuffle(len(order), func(i, j int) {
				order[i], order[j] = order[j], order[i]
			})
		}

		start := time.Now()
		for n, i := range order {
			if err := net.Train(train.Inputs[i], train.Targets[i], lr); err != nil {
				return fmt.Errorf("while training on sample %d: %w", i, err)
			}
			if c.logEvery > 0 && (n+1)%c.logEvery == 0 {
				log.Printf("epoch %d training: %d/%d", epoch+1, n+1, len(order))
			}
		}

		loss, pct, err := evaluate(net, eval, c.evalCount)
		if err != nil {
			return fmt.Errorf("while evaluating: %w", err)
		}
		log.Printf("epoch %d loss=%f pct=%.1f elapsed=%.1fs", epoch+1, loss, pct, time.Since(start).Seconds())

		if c.outputWeightFile != "" {
			if err := writeWeights(net, c.outputWeightFile); err != nil {
				return fmt.Errorf("while writing checkpoint: %w", err)
			}
		}
	}

	_, pct, err := evaluate(net, eval, c.evalCount)
	if err != nil {
		return fmt.Errorf("while evaluating: %w", err)
	}
	log.Printf("accuracy: %.2f%%", pct)

	return nil
}

// loadData returns the training split and the split accuracy is measured on.
// Without a t10k test split next to the IDX training files, accuracy is
// measured on the training split.
func (c *TrainCommand) loadData() (train, eval *mnist.Dataset, err error) {
	if c.dataFile != "" {
		return mnist.LoadNPZ(c.dataFile)
	}

	train, err = mnist.LoadIDX(c.dataDir, "train")
	if err != nil {
		return nil, nil, err
	}

	eval, err = mnist.LoadIDX(c.dataDir, "t10k")
	if err != nil {
		log.Printf("No test split (%v); evaluating on the training split", err)
		return train, train, nil
	}
	return train, eval, nil
}

// evaluate returns the mean squared error and the percentage of correct
// arg-max predictions over the first count samples of d, or all of them if
// count is 0.
func evaluate(net *neural.Network, d *mnist.Dataset, count int) (loss, pct float32, err error) {
	n := d.Len()
	if count > 0 && count < n {
		n = count
	}
	if n == 0 {
		return 0, 0, nil
	}

	correct := 0
	for i := 0; i < n; i++ {
		out, err := net.FeedForward(d.Inputs[i])
		if err != nil {
			return 0, 0, err
		}
		l, err := neural.SquaredError(d.Targets[i], out)
		if err != nil {
			return 0, 0, err
		}
		loss += l

		digit, err := out.ArgMax()
		if err != nil {
			return 0, 0, err
		}
		if digit == d.Labels[i] {
			correct++
		}
	}

	return loss / float32(n), float32(correct) / float32(n) * 100, nil
}

func parseLayers(s string) ([]int, error) {
	widths := []int{}
	for _, part := range strings.Split(s, ",") {
		w, err := strconv.Atoi(strings.TrimSpace(part))
		if err != nil {
			return nil, fmt.Errorf("while parsing --layers=%q: %w", s, err)
		}
		widths = append(widths, w)
	}
	return widths, nil
}

func loadWeights(net *neural.Network, path string) error {
	f, err := os.Open(path)
	if err != nil {
		return fmt.Errorf("while opening weights file: %w", err)
	}
	defer f.Close()

	tensors, err := neural.ReadSafeTensors(f)
	if err != nil {
		return fmt.Errorf("while reading weight tensors: %w", err)
	}

	if err := net.LoadTensors(tensors); err != nil {
		return fmt.Errorf("while restoring network: %w", err)
	}

	return nil
}

func writeWeights(net *neural.Network, path string) error {
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("while creating checkpoint file: %w", err)
	}
	defer f.Close()

	tensors := map[string]*neural.Tensor{}
	net.DumpTensors(tensors)

	if err := neural.WriteSafeTensors(f, tensors); err != nil {
		return fmt.Errorf("while writing checkpoint tensors: %w", err)
	}

	return f.Close()
}
