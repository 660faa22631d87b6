package charrnn

import (
	"errors"
	"fmt"
	"math"

	"github.com/unixpickle/anydiff"
	"github.com/unixpickle/anydiff/anyseq"
	"github.com/unixpickle/anynet"
	"github.com/unixpickle/anynet/anyrnn"
	"github.com/unixpickle/anyvec"
	"github.com/unixpickle/anyvec/anyvec32"
	"github.com/unixpickle/anyvec/anyvecsave"
	"github.com/unixpickle/essentials"
	"github.com/unixpickle/serializer"
)

func init() {
	var m Model
	serializer.RegisterTypedDeserializer(m.SerializerType(), DeserializeModel)
}

// A Model is a stack of LSTM layers between an input
// encoding and a softmax output layer.
//
// A Model holds parameters only. The recurrent state is
// passed in and out of Forward explicitly.
type Model struct {
	Config Config

	// Embedding is a NumClasses x EmbeddingSize table, or nil
	// if inputs are one-hot encoded.
	Embedding *anydiff.Var

	Layers []*anyrnn.LSTM
	Output *anynet.FC
}

// NewModel creates a randomly initialized model.
func NewModel(c Config) (*Model, error) {
	if err := c.Validate(); err != nil {
		return nil, err
	}
	creator := anyvec32.CurrentCreator()
	res := &Model{Config: c}
	if c.UseEmbedding {
		table := creator.MakeVector(c.NumClasses * c.EmbeddingSize)
		anyvec.Rand(table, anyvec.Normal, nil)
		res.Embedding = anydiff.NewVar(table)
	}
	inSize := c.inputSize()
	for i := 0; i < c.NumLayers; i++ {
		layer := anyrnn.NewLSTM(creator, inSize, c.LSTMSize)
		if i == 0 && !c.UseEmbedding {
			// One-hot inputs have far less variance than the
			// initialization assumes.
			layer.ScaleInWeights(creator.MakeNumeric(math.Sqrt(float64(inSize))))
		}
		res.Layers = append(res.Layers, layer)
		inSize = c.LSTMSize
	}
	res.Output = anynet.NewFC(creator, c.LSTMSize, c.NumClasses)
	return res, nil
}

// DeserializeModel decodes a model produced by Serialize.
func DeserializeModel(d []byte) (*Model, error) {
	objs, err := serializer.DeserializeSlice(d)
	if err != nil {
		return nil, essentials.AddCtx("deserialize model", err)
	}
	if len(objs) < 2 {
		return nil, errors.New("deserialize model: missing fields")
	}
	config, ok := objs[0].(*Config)
	if !ok {
		return nil, fmt.Errorf("deserialize model: expected config but got %T", objs[0])
	}
	res := &Model{Config: *config}
	objs = objs[1:]

	if config.UseEmbedding {
		vec, ok := objs[0].(*anyvecsave.S)
		if !ok {
			return nil, fmt.Errorf("deserialize model: expected embedding but got %T", objs[0])
		}
		res.Embedding = anydiff.NewVar(vec.Vector)
		objs = objs[1:]
	}
	if len(objs) != config.NumLayers+1 {
		return nil, fmt.Errorf("deserialize model: expected %d layers but got %d",
			config.NumLayers, len(objs)-1)
	}
	for _, obj := range objs[:config.NumLayers] {
		layer, ok := obj.(*anyrnn.LSTM)
		if !ok {
			return nil, fmt.Errorf("deserialize model: expected LSTM but got %T", obj)
		}
		res.Layers = append(res.Layers, layer)
	}
	res.Output, ok = objs[config.NumLayers].(*anynet.FC)
	if !ok {
		return nil, fmt.Errorf("deserialize model: expected FC but got %T",
			objs[config.NumLayers])
	}
	if err := res.Config.Validate(); err != nil {
		return nil, essentials.AddCtx("deserialize model", err)
	}
	return res, nil
}

// WithConfig creates a model that shares m's parameters
// but uses a different batch shape or hyper-parameters.
//
// It fails if c describes differently shaped parameters.
func (m *Model) WithConfig(c Config) (*Model, error) {
	if err := c.Validate(); err != nil {
		return nil, err
	}
	if err := m.Config.Compatible(c); err != nil {
		return nil, essentials.AddCtx("incompatible config", err)
	}
	res := *m
	res.Config = c
	return &res, nil
}

// Parameters returns every trainable variable.
//
// The start-state variables of the LSTM layers are left
// out, since Forward always starts from a given State.
func (m *Model) Parameters() []*anydiff.Var {
	var res []*anydiff.Var
	if m.Embedding != nil {
		res = append(res, m.Embedding)
	}
	for _, l := range m.Layers {
		for _, g := range []*anyrnn.LSTMGate{l.InValue, l.In, l.Remember, l.Output} {
			res = append(res, g.Parameters()...)
		}
	}
	return append(res, m.Output.Parameters()...)
}

// ZeroState returns the all-zero state for a batch of
// Config.NumSeqs sequences.
func (m *Model) ZeroState() State {
	res := make(State, m.Config.NumLayers)
	size := m.Config.NumSeqs * m.Config.LSTMSize
	for i := range res {
		res[i] = LayerState{
			Cell:   anyvec32.MakeVector(size),
			Hidden: anyvec32.MakeVector(size),
		}
	}
	return res
}

// Forward runs the model over a batch of character ids
// starting from the given state.
//
// The inputs must be a NumSeqs x NumSteps matrix.
// While training, the output of every LSTM layer goes
// through dropout; otherwise it is scaled by the keep
// probability, which is the expected dropout output.
func (m *Model) Forward(inputs [][]int, s State, training bool) (*Pass, error) {
	c := m.Config
	if err := checkIDs("inputs", inputs, c.NumSeqs, c.NumSteps, c.NumClasses); err != nil {
		return nil, err
	}
	if err := s.check(c.NumLayers, c.NumSeqs*c.LSTMSize); err != nil {
		return nil, err
	}

	present := make([]bool, c.NumSeqs)
	for i := range present {
		present[i] = true
	}
	var steps []*anyseq.Batch
	for t := 0; t < c.NumSteps; t++ {
		steps = append(steps, &anyseq.Batch{
			Packed:  oneHot(column(inputs, t), c.NumClasses),
			Present: present,
		})
	}
	in := anyseq.ConstSeq(anyvec32.CurrentCreator(), steps)
	if m.Embedding != nil {
		in = anyseq.Map(in, m.embed)
	}

	stack := m.stack(training)
	block := &carriedBlock{Stack: stack, start: startState(stack, s, present)}
	out := anyrnn.Map(in, block)

	return &Pass{
		Outputs:    out,
		State:      endState(block.end),
		numSeqs:    c.NumSeqs,
		numSteps:   c.NumSteps,
		numClasses: c.NumClasses,
	}, nil
}

// Cost computes the mean cross-entropy between the pass
// outputs and the target character ids.
func (m *Model) Cost(p *Pass, targets [][]int) (anydiff.Res, error) {
	if err := checkIDs("targets", targets, p.numSeqs, p.numSteps, p.numClasses); err != nil {
		return nil, err
	}
	var steps []*anyseq.Batch
	for t, out := range p.Outputs.Output() {
		steps = append(steps, &anyseq.Batch{
			Packed:  oneHot(column(targets, t), p.numClasses),
			Present: out.Present,
		})
	}
	creator := p.Outputs.Creator()
	desired := anyseq.ConstSeq(creator, steps)
	costs := anyseq.MapN(func(n int, v ...anydiff.Res) anydiff.Res {
		return anynet.DotCost{}.Cost(v[0], v[1], n)
	}, desired, p.Outputs)
	rows := p.numSeqs * p.numSteps
	return anydiff.Scale(anyseq.Sum(costs), creator.MakeNumeric(1/float64(rows))), nil
}

func (m *Model) SerializerType() string {
	return "github.com/BoragoCode/my-text-generator.Model"
}

func (m *Model) Serialize() ([]byte, error) {
	config := m.Config
	objs := []serializer.Serializer{&config}
	if m.Embedding != nil {
		objs = append(objs, &anyvecsave.S{Vector: m.Embedding.Vector})
	}
	for _, l := range m.Layers {
		objs = append(objs, l)
	}
	objs = append(objs, m.Output)
	return serializer.SerializeSlice(objs)
}

// stack arranges the layers into one RNN block. Every
// LSTM is followed by dropout, and the last block produces
// log-probabilities.
func (m *Model) stack(training bool) anyrnn.Stack {
	dropout := &anynet.Dropout{Enabled: training, KeepProb: m.Config.TrainKeepProb}
	var res anyrnn.Stack
	for _, l := range m.Layers {
		res = append(res, l, &anyrnn.LayerBlock{Layer: dropout})
	}
	return append(res, &anyrnn.LayerBlock{
		Layer: anynet.Net{m.Output, anynet.LogSoftmax},
	})
}

func (m *Model) embed(hot anydiff.Res, n int) anydiff.Res {
	c := m.Config
	return anydiff.MatMul(false, false,
		&anydiff.Matrix{Data: hot, Rows: n, Cols: c.NumClasses},
		&anydiff.Matrix{Data: m.Embedding, Rows: c.NumClasses, Cols: c.EmbeddingSize},
	).Data
}

// A Pass is the result of running a Model over a batch.
type Pass struct {
	// Outputs has one batch per time step, each holding
	// NumSeqs rows of log-probabilities.
	Outputs anyseq.Seq

	// State is the recurrent state after the last time step.
	State State

	numSeqs    int
	numSteps   int
	numClasses int
}

// Probabilities returns the predicted distribution for
// every position of the batch.
// Row seq*NumSteps+step holds the prediction made after
// reading inputs[seq][step].
func (p *Pass) Probabilities() [][]float64 {
	res := make([][]float64, p.numSeqs*p.numSteps)
	for t, out := range p.Outputs.Output() {
		data := out.Packed.Data().([]float32)
		for s := 0; s < p.numSeqs; s++ {
			row := make([]float64, p.numClasses)
			for i, x := range data[s*p.numClasses : (s+1)*p.numClasses] {
				row[i] = math.Exp(float64(x))
			}
			res[s*p.numSteps+t] = row
		}
	}
	return res
}

func checkIDs(name string, ids [][]int, rows, cols, numClasses int) error {
	if len(ids) != rows {
		return fmt.Errorf("%s: expected %d sequences but got %d", name, rows, len(ids))
	}
	for i, row := range ids {
		if len(row) != cols {
			return fmt.Errorf("%s: sequence %d has %d steps (expected %d)", name, i,
				len(row), cols)
		}
		for _, id := range row {
			if id < 0 || id >= numClasses {
				return fmt.Errorf("%s: id %d out of range [0, %d)", name, id, numClasses)
			}
		}
	}
	return nil
}

func column(ids [][]int, t int) []int {
	res := make([]int, len(ids))
	for i, row := range ids {
		res[i] = row[t]
	}
	return res
}

func oneHot(ids []int, numClasses int) anyvec.Vector {
	data := make([]float32, len(ids)*numClasses)
	for i, id := range ids {
		data[i*numClasses+id] = 1
	}
	return anyvec32.MakeVectorData(data)
}
