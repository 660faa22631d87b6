package charrnn

import (
	"fmt"

	"github.com/unixpickle/anydiff"
	"github.com/unixpickle/anynet/anyrnn"
	"github.com/unixpickle/anyvec"
)

// LayerState is the state of one LSTM layer for a batch
// of sequences, stored row-major (one row per sequence).
type LayerState struct {
	Cell   anyvec.Vector
	Hidden anyvec.Vector
}

// State is the recurrent state of a Model, one entry per
// layer.
type State []LayerState

func (s State) check(layers, size int) error {
	if len(s) != layers {
		return fmt.Errorf("state has %d layers (expected %d)", len(s), layers)
	}
	for i, l := range s {
		if l.Cell == nil || l.Hidden == nil {
			return fmt.Errorf("state layer %d is missing", i)
		}
		if l.Cell.Len() != size || l.Hidden.Len() != size {
			return fmt.Errorf("state layer %d has size %d/%d (expected %d)", i,
				l.Cell.Len(), l.Hidden.Len(), size)
		}
	}
	return nil
}

// carriedBlock runs a Stack from a given start state and
// remembers the state after the last time step.
//
// Gradients stop at the start state, which truncates
// back-propagation at the batch boundary.
type carriedBlock struct {
	anyrnn.Stack

	start anyrnn.State
	end   anyrnn.State
}

func (c *carriedBlock) Start(n int) anyrnn.State {
	return c.start
}

func (c *carriedBlock) PropagateStart(s anyrnn.StateGrad, g anydiff.Grad) {
}

func (c *carriedBlock) Step(s anyrnn.State, in anyvec.Vector) anyrnn.Res {
	res := c.Stack.Step(s, in)
	c.end = res.State()
	return res
}

// startState converts s into a state for stack, in which
// LSTM blocks hold the layer states in order and every
// other block is stateless.
func startState(stack anyrnn.Stack, s State, present anyrnn.PresentMap) anyrnn.StackState {
	res := make(anyrnn.StackState, len(stack))
	var layer int
	for i, block := range stack {
		if _, ok := block.(*anyrnn.LSTM); ok {
			res[i] = &anyrnn.LSTMState{
				LastOut:  &anyrnn.VecState{Vector: s[layer].Hidden, PresentMap: present},
				Internal: &anyrnn.VecState{Vector: s[layer].Cell, PresentMap: present},
			}
			layer++
		} else {
			res[i] = block.Start(len(present))
		}
	}
	return res
}

// endState copies the LSTM states out of a stack state.
func endState(s anyrnn.State) State {
	var res State
	for _, x := range s.(anyrnn.StackState) {
		if ls, ok := x.(*anyrnn.LSTMState); ok {
			res = append(res, LayerState{
				Cell:   ls.Internal.Vector.Copy(),
				Hidden: ls.LastOut.Vector.Copy(),
			})
		}
	}
	return res
}
