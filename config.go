package charrnn

import (
	"encoding/json"
	"errors"
	"fmt"

	"github.com/unixpickle/essentials"
	"github.com/unixpickle/serializer"
)

func init() {
	var c Config
	serializer.RegisterTypedDeserializer(c.SerializerType(), DeserializeConfig)
}

const (
	DefaultNumSeqs       = 64
	DefaultNumSteps      = 50
	DefaultLSTMSize      = 128
	DefaultNumLayers     = 2
	DefaultLearningRate  = 0.001
	DefaultGradClip      = 5
	DefaultTrainKeepProb = 0.5
	DefaultEmbeddingSize = 128
)

// Config describes the shape and the optimization
// hyper-parameters of a Model.
type Config struct {
	NumClasses int
	NumSeqs    int
	NumSteps   int
	LSTMSize   int
	NumLayers  int

	LearningRate  float64
	GradClip      float64
	TrainKeepProb float64

	UseEmbedding  bool
	EmbeddingSize int
}

// DefaultConfig returns the default configuration for a
// vocabulary of numClasses characters.
func DefaultConfig(numClasses int) Config {
	return Config{
		NumClasses:    numClasses,
		NumSeqs:       DefaultNumSeqs,
		NumSteps:      DefaultNumSteps,
		LSTMSize:      DefaultLSTMSize,
		NumLayers:     DefaultNumLayers,
		LearningRate:  DefaultLearningRate,
		GradClip:      DefaultGradClip,
		TrainKeepProb: DefaultTrainKeepProb,
		EmbeddingSize: DefaultEmbeddingSize,
	}
}

func DeserializeConfig(d []byte) (*Config, error) {
	var res Config
	if err := json.Unmarshal(d, &res); err != nil {
		return nil, essentials.AddCtx("deserialize config", err)
	}
	return &res, nil
}

// Sampling returns a copy of the config for generating
// one character at a time.
// The batch shape is always forced to 1x1.
func (c Config) Sampling() Config {
	c.NumSeqs = 1
	c.NumSteps = 1
	return c
}

// Validate checks that every size and hyper-parameter is
// usable.
func (c Config) Validate() error {
	positive := []struct {
		name  string
		value int
	}{
		{"num_classes", c.NumClasses},
		{"num_seqs", c.NumSeqs},
		{"num_steps", c.NumSteps},
		{"lstm_size", c.LSTMSize},
		{"num_layers", c.NumLayers},
	}
	for _, p := range positive {
		if p.value <= 0 {
			return fmt.Errorf("invalid config: %s must be positive (got %d)", p.name, p.value)
		}
	}
	if c.UseEmbedding && c.EmbeddingSize <= 0 {
		return fmt.Errorf("invalid config: embedding_size must be positive (got %d)",
			c.EmbeddingSize)
	}
	if !(c.LearningRate > 0) {
		return fmt.Errorf("invalid config: learning_rate must be positive (got %v)",
			c.LearningRate)
	}
	if !(c.GradClip > 0) {
		return fmt.Errorf("invalid config: grad_clip must be positive (got %v)", c.GradClip)
	}
	if !(c.TrainKeepProb > 0 && c.TrainKeepProb <= 1) {
		return fmt.Errorf("invalid config: train_keep_prob must be in (0, 1] (got %v)",
			c.TrainKeepProb)
	}
	return nil
}

// Compatible checks that parameters created for c can be
// used with other.
func (c Config) Compatible(other Config) error {
	switch {
	case c.NumClasses != other.NumClasses:
		return fmt.Errorf("num_classes mismatch: %d vs %d", c.NumClasses, other.NumClasses)
	case c.LSTMSize != other.LSTMSize:
		return fmt.Errorf("lstm_size mismatch: %d vs %d", c.LSTMSize, other.LSTMSize)
	case c.NumLayers != other.NumLayers:
		return fmt.Errorf("num_layers mismatch: %d vs %d", c.NumLayers, other.NumLayers)
	case c.UseEmbedding != other.UseEmbedding:
		return errors.New("use_embedding mismatch")
	case c.UseEmbedding && c.EmbeddingSize != other.EmbeddingSize:
		return fmt.Errorf("embedding_size mismatch: %d vs %d", c.EmbeddingSize,
			other.EmbeddingSize)
	}
	return nil
}

// inputSize is the width of the vectors fed to the first
// LSTM layer.
func (c Config) inputSize() int {
	if c.UseEmbedding {
		return c.EmbeddingSize
	}
	return c.NumClasses
}

func (c *Config) SerializerType() string {
	return "github.com/BoragoCode/my-text-generator.Config"
}

func (c *Config) Serialize() ([]byte, error) {
	return json.Marshal(c)
}
