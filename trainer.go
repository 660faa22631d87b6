package charrnn

import (
	"errors"
	"fmt"
	"io"
	"log"
	"os"
	"time"

	"github.com/unixpickle/anydiff"
	"github.com/unixpickle/anynet/anysgd"
	"github.com/unixpickle/anyvec/anyvec32"
	"github.com/unixpickle/essentials"
)

// A Recorder is notified of training progress.
type Recorder interface {
	RecordStep(step int, loss float64, elapsed time.Duration) error
	RecordCheckpoint(step int, path string) error
}

// A Trainer trains a Model on batches from a BatchSource.
//
// The recurrent state at the end of one batch is the
// initial state of the next, so the source should yield
// batches which continue each other.
type Trainer struct {
	Model  *Model
	Source BatchSource

	// MaxSteps is the step number at which training ends.
	MaxSteps int

	// SaveDir is the checkpoint directory. A checkpoint is
	// written every SaveEvery steps and when training ends.
	SaveDir   string
	SaveEvery int

	// LogEvery is the number of steps between log lines.
	LogEvery int

	// Logger defaults to the standard logger.
	Logger *log.Logger

	// Recorder, if non-nil, receives every step and every
	// checkpoint.
	Recorder Recorder

	// Stop ends training before the next step once it is
	// closed or receives a value.
	Stop <-chan struct{}

	// StartStep is the number of steps already taken, e.g.
	// by the checkpoint training is resumed from.
	StartStep int

	adam *anysgd.Adam
}

// Run trains until MaxSteps is reached, the source is
// exhausted, or Stop fires. It always writes a final
// checkpoint unless a step fails.
func (t *Trainer) Run() error {
	if t.SaveDir == "" {
		return errors.New("train: no checkpoint directory")
	}
	logger := t.Logger
	if logger == nil {
		logger = log.Default()
	}

	state := t.Model.ZeroState()
	step := t.StartStep
	lastSaved := -1

StepLoop:
	for step < t.MaxSteps {
		select {
		case <-t.Stop:
			logger.Println("Training stopped.")
			break StepLoop
		default:
		}

		batch, err := t.Source.NextBatch()
		if err == io.EOF {
			logger.Println("Batch source exhausted.")
			break
		} else if err != nil {
			return essentials.AddCtx("train", err)
		}

		step++
		start := time.Now()
		loss, next, err := t.Step(batch, state)
		if err != nil {
			return essentials.AddCtx(fmt.Sprintf("train step %d", step), err)
		}
		state = next
		elapsed := time.Since(start)

		if t.Recorder != nil {
			if err := t.Recorder.RecordStep(step, loss, elapsed); err != nil {
				return essentials.AddCtx("train", err)
			}
		}
		if t.LogEvery > 0 && step%t.LogEvery == 0 {
			logger.Printf("step %d/%d batch_loss=%v use_time=%v", step, t.MaxSteps, loss,
				elapsed.Round(time.Millisecond))
		}
		if t.SaveEvery > 0 && step%t.SaveEvery == 0 {
			if err := t.save(step); err != nil {
				return err
			}
			lastSaved = step
		}
	}

	if lastSaved != step {
		return t.save(step)
	}
	return nil
}

// Step performs one optimization step on a batch,
// starting from the given recurrent state.
//
// It returns the loss before the update and the state at
// the end of the batch.
func (t *Trainer) Step(b *Batch, s State) (float64, State, error) {
	c := t.Model.Config
	pass, err := t.Model.Forward(b.Inputs, s, true)
	if err != nil {
		return 0, nil, err
	}
	cost, err := t.Model.Cost(pass, b.Targets)
	if err != nil {
		return 0, nil, err
	}
	loss := float64(cost.Output().Data().([]float32)[0])

	params := t.Model.Parameters()
	grad := anydiff.NewGrad(params...)
	cost.Propagate(anyvec32.MakeVectorData([]float32{1}), grad)
	ClipGlobalNorm(grad, c.GradClip)

	if t.adam == nil {
		t.adam = &anysgd.Adam{Vars: params}
	}
	grad = t.adam.Transform(grad)
	grad.Scale(anyvec32.MakeNumeric(-c.LearningRate))
	grad.AddToVars()

	return loss, pass.State, nil
}

// ResumeOptimizer restores the Adam state saved with a
// checkpoint, so that training continues where it left
// off. It reports false if the checkpoint has no saved
// optimizer state, in which case Adam starts over.
func (t *Trainer) ResumeOptimizer(checkpoint string) (bool, error) {
	if _, err := os.Stat(OptimizerPath(checkpoint)); os.IsNotExist(err) {
		return false, nil
	}
	adam, err := LoadOptimizer(checkpoint, t.Model.Parameters())
	if err != nil {
		return false, err
	}
	t.adam = adam
	return true, nil
}

func (t *Trainer) save(step int) error {
	path, err := SaveCheckpoint(t.SaveDir, step, t.Model)
	if err != nil {
		return err
	}
	if t.adam != nil {
		if err := SaveOptimizer(path, t.adam); err != nil {
			return err
		}
	}
	if t.Recorder != nil {
		if err := t.Recorder.RecordCheckpoint(step, path); err != nil {
			return essentials.AddCtx("train", err)
		}
	}
	return nil
}
