package charrnn

import (
	"errors"
	"fmt"
	"math/rand/v2"
	"time"

	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/stat/distuv"
)

// DefaultTopN is the default number of candidates the
// Sampler chooses between.
const DefaultTopN = 5

// PickTopN draws an index from the topN most likely
// entries of probs, weighted by their renormalized
// probabilities.
func PickTopN(probs []float64, topN int, src rand.Source) (int, error) {
	if topN <= 0 {
		return 0, fmt.Errorf("top_n must be positive (got %d)", topN)
	}
	if len(probs) == 0 {
		return 0, errors.New("empty probability vector")
	}
	if topN > len(probs) {
		topN = len(probs)
	}

	sorted := append([]float64{}, probs...)
	indices := make([]int, len(probs))
	floats.Argsort(sorted, indices)

	weights := make([]float64, len(probs))
	for _, idx := range indices[len(indices)-topN:] {
		weights[idx] = probs[idx]
	}
	sum := floats.Sum(weights)
	if !(sum > 0) {
		return 0, errors.New("no probability mass among the top candidates")
	}
	floats.Scale(1/sum, weights)

	idx := int(distuv.NewCategorical(weights, src).Rand())
	if weights[idx] == 0 {
		// A draw of exactly zero lands on index 0.
		idx = floats.MaxIdx(weights)
	}
	return idx, nil
}

// A Sampler generates text from a Model one character at
// a time.
type Sampler struct {
	// Model must be in sampling shape; see Config.Sampling.
	Model *Model

	// TopN defaults to DefaultTopN.
	TopN int

	// Source defaults to a time-seeded PCG source.
	Source rand.Source
}

// Sample feeds prime through the model and then generates
// nSamples more character ids.
// The result starts with prime.
func (s *Sampler) Sample(nSamples int, prime []int, vocabSize int) ([]int, error) {
	c := s.Model.Config
	if c.NumSeqs != 1 || c.NumSteps != 1 {
		return nil, fmt.Errorf("sample: model has batch shape %dx%d (expected 1x1)",
			c.NumSeqs, c.NumSteps)
	}
	if len(prime) == 0 {
		return nil, errors.New("sample: empty prime")
	}
	if nSamples < 0 {
		return nil, fmt.Errorf("sample: negative sample count %d", nSamples)
	}
	if vocabSize != c.NumClasses {
		return nil, fmt.Errorf("sample: vocab size %d does not match model (%d classes)",
			vocabSize, c.NumClasses)
	}
	topN := s.TopN
	if topN == 0 {
		topN = DefaultTopN
	}
	src := s.Source
	if src == nil {
		src = rand.NewPCG(uint64(time.Now().UnixNano()), 0)
	}

	samples := append([]int{}, prime...)
	state := s.Model.ZeroState()
	var probs []float64
	for _, id := range prime {
		var err error
		probs, state, err = s.step(id, state)
		if err != nil {
			return nil, err
		}
	}

	for i := 0; i < nSamples; i++ {
		if i > 0 {
			var err error
			probs, state, err = s.step(samples[len(samples)-1], state)
			if err != nil {
				return nil, err
			}
		}
		next, err := PickTopN(probs, topN, src)
		if err != nil {
			return nil, err
		}
		samples = append(samples, next)
	}
	return samples, nil
}

func (s *Sampler) step(id int, state State) ([]float64, State, error) {
	pass, err := s.Model.Forward([][]int{{id}}, state, false)
	if err != nil {
		return nil, nil, err
	}
	return pass.Probabilities()[0], pass.State, nil
}
