package charrnn

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/unixpickle/anydiff"
	"github.com/unixpickle/anynet/anysgd"
	"github.com/unixpickle/essentials"
	"github.com/unixpickle/serializer"
)

const (
	checkpointPrefix = "model-"
	optimizerSuffix  = ".adam"

	OutputPermissions = 0755
)

// ErrNoCheckpoint is returned by LatestCheckpoint when a
// directory holds no checkpoints.
var ErrNoCheckpoint = errors.New("no checkpoint found")

// CheckpointPath returns the path of the checkpoint for a
// training step.
func CheckpointPath(dir string, step int) string {
	return filepath.Join(dir, checkpointPrefix+strconv.Itoa(step))
}

// CheckpointStep parses the step out of a checkpoint path.
func CheckpointStep(path string) (int, error) {
	name := filepath.Base(path)
	if !strings.HasPrefix(name, checkpointPrefix) {
		return 0, fmt.Errorf("not a checkpoint name: %s", name)
	}
	step, err := strconv.Atoi(strings.TrimPrefix(name, checkpointPrefix))
	if err != nil || step < 0 {
		return 0, fmt.Errorf("not a checkpoint name: %s", name)
	}
	return step, nil
}

// SaveCheckpoint writes the model to the checkpoint for a
// training step and returns its path.
func SaveCheckpoint(dir string, step int, m *Model) (string, error) {
	if err := os.MkdirAll(dir, OutputPermissions); err != nil {
		return "", essentials.AddCtx("save checkpoint", err)
	}
	encoded, err := serializer.SerializeWithType(m)
	if err != nil {
		return "", essentials.AddCtx("save checkpoint", err)
	}
	path := CheckpointPath(dir, step)
	if err := os.WriteFile(path, encoded, OutputPermissions); err != nil {
		return "", essentials.AddCtx("save checkpoint", err)
	}
	return path, nil
}

// LoadCheckpoint reads a model from a checkpoint file.
func LoadCheckpoint(path string) (*Model, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, essentials.AddCtx("load checkpoint", err)
	}
	x, err := serializer.DeserializeWithType(data)
	if err != nil {
		return nil, essentials.AddCtx("load checkpoint", err)
	}
	model, ok := x.(*Model)
	if !ok {
		return nil, fmt.Errorf("load checkpoint: loaded type was not a model but a %T", x)
	}
	return model, nil
}

// LatestCheckpoint finds the checkpoint with the highest
// step in a directory.
func LatestCheckpoint(dir string) (path string, step int, err error) {
	contents, err := os.ReadDir(dir)
	if err != nil {
		return "", 0, essentials.AddCtx("latest checkpoint", err)
	}
	step = -1
	for _, item := range contents {
		if item.IsDir() {
			continue
		}
		s, parseErr := CheckpointStep(item.Name())
		if parseErr != nil {
			continue
		}
		if s > step {
			step = s
			path = filepath.Join(dir, item.Name())
		}
	}
	if step < 0 {
		return "", 0, ErrNoCheckpoint
	}
	return path, step, nil
}

// OptimizerPath returns the path of the optimizer state
// saved alongside a checkpoint.
func OptimizerPath(checkpoint string) string {
	return checkpoint + optimizerSuffix
}

// SaveOptimizer writes Adam's moments next to a
// checkpoint. a.Vars must list the model parameters in
// the order of Model.Parameters.
func SaveOptimizer(checkpoint string, a *anysgd.Adam) error {
	data, err := a.MarshalBinary()
	if err != nil {
		return essentials.AddCtx("save optimizer", err)
	}
	if err := os.WriteFile(OptimizerPath(checkpoint), data, OutputPermissions); err != nil {
		return essentials.AddCtx("save optimizer", err)
	}
	return nil
}

// LoadOptimizer reads the Adam state saved next to a
// checkpoint and binds it to vars.
func LoadOptimizer(checkpoint string, vars []*anydiff.Var) (*anysgd.Adam, error) {
	data, err := os.ReadFile(OptimizerPath(checkpoint))
	if err != nil {
		return nil, essentials.AddCtx("load optimizer", err)
	}
	res := &anysgd.Adam{Vars: vars}
	if err := res.UnmarshalBinary(data); err != nil {
		return nil, essentials.AddCtx("load optimizer", err)
	}
	return res, nil
}
