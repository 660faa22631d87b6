package charrnn

import (
	"bytes"
	"log"
	"math"
	"math/rand"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"testing"
	"time"
)

type testRecorder struct {
	steps       []int
	losses      []float64
	checkpoints []string
}

func (t *testRecorder) RecordStep(step int, loss float64, elapsed time.Duration) error {
	t.steps = append(t.steps, step)
	t.losses = append(t.losses, loss)
	return nil
}

func (t *testRecorder) RecordCheckpoint(step int, path string) error {
	t.checkpoints = append(t.checkpoints, path)
	return nil
}

func syntheticBatches(seed int64, n int, c Config) []*Batch {
	r := rand.New(rand.NewSource(seed))
	var res []*Batch
	for i := 0; i < n; i++ {
		res = append(res, &Batch{
			Inputs:  randomIDs(r, c.NumSeqs, c.NumSteps, c.NumClasses),
			Targets: randomIDs(r, c.NumSeqs, c.NumSteps, c.NumClasses),
		})
	}
	return res
}

func TestTrainerEndToEnd(t *testing.T) {
	c := testConfig()
	c.TrainKeepProb = 0.5
	m, err := NewModel(c)
	if err != nil {
		t.Fatal(err)
	}
	dir := t.TempDir()
	var logs bytes.Buffer
	recorder := &testRecorder{}
	trainer := &Trainer{
		Model:     m,
		Source:    &SliceSource{Batches: syntheticBatches(1, 5, c)},
		MaxSteps:  5,
		SaveDir:   dir,
		SaveEvery: 5,
		LogEvery:  1,
		Logger:    log.New(&logs, "", 0),
		Recorder:  recorder,
	}
	if err := trainer.Run(); err != nil {
		t.Fatal(err)
	}

	var stepLines []string
	for _, line := range strings.Split(strings.TrimSpace(logs.String()), "\n") {
		if strings.HasPrefix(line, "step ") {
			stepLines = append(stepLines, line)
		}
	}
	if len(stepLines) != 5 {
		t.Fatalf("expected 5 step lines but got %d: %q", len(stepLines), logs.String())
	}
	for i, line := range stepLines {
		fields := strings.Fields(line)
		if len(fields) != 4 || fields[1] != strconv.Itoa(i+1)+"/5" {
			t.Fatalf("unexpected log line: %s", line)
		}
		if !strings.HasPrefix(fields[3], "use_time=") {
			t.Errorf("missing use_time: %s", line)
		}
		loss, err := strconv.ParseFloat(strings.TrimPrefix(fields[2], "batch_loss="), 64)
		if err != nil {
			t.Fatalf("bad loss in %s: %v", line, err)
		}
		if math.IsNaN(loss) || math.IsInf(loss, 0) || loss < 0 {
			t.Errorf("bad loss: %f", loss)
		}
	}

	entries, err := os.ReadDir(dir)
	if err != nil {
		t.Fatal(err)
	}
	var names []string
	for _, e := range entries {
		names = append(names, e.Name())
	}
	if len(names) != 2 || names[0] != "model-5" || names[1] != "model-5.adam" {
		t.Errorf("expected model-5 and its optimizer state but got %v", names)
	}

	if len(recorder.steps) != 5 || len(recorder.checkpoints) != 1 {
		t.Errorf("recorder saw %d steps and %d checkpoints", len(recorder.steps),
			len(recorder.checkpoints))
	}
}

func TestTrainerExhaustion(t *testing.T) {
	c := testConfig()
	m, err := NewModel(c)
	if err != nil {
		t.Fatal(err)
	}
	dir := t.TempDir()
	trainer := &Trainer{
		Model:     m,
		Source:    &SliceSource{Batches: syntheticBatches(2, 3, c)},
		MaxSteps:  10,
		SaveDir:   dir,
		SaveEvery: 2,
		Logger:    log.New(&bytes.Buffer{}, "", 0),
	}
	if err := trainer.Run(); err != nil {
		t.Fatal(err)
	}
	for _, name := range []string{"model-2", "model-3"} {
		if _, err := os.Stat(filepath.Join(dir, name)); err != nil {
			t.Errorf("missing checkpoint %s: %v", name, err)
		}
	}
}

func TestTrainerStop(t *testing.T) {
	c := testConfig()
	m, err := NewModel(c)
	if err != nil {
		t.Fatal(err)
	}
	stop := make(chan struct{})
	close(stop)
	dir := t.TempDir()
	recorder := &testRecorder{}
	trainer := &Trainer{
		Model:     m,
		Source:    &SliceSource{Batches: syntheticBatches(3, 3, c)},
		MaxSteps:  10,
		SaveDir:   dir,
		Logger:    log.New(&bytes.Buffer{}, "", 0),
		Recorder:  recorder,
		Stop:      stop,
		StartStep: 7,
	}
	if err := trainer.Run(); err != nil {
		t.Fatal(err)
	}
	if len(recorder.steps) != 0 {
		t.Errorf("expected no steps but got %v", recorder.steps)
	}
	if _, err := os.Stat(filepath.Join(dir, "model-7")); err != nil {
		t.Error(err)
	}
}

func TestTrainerBadBatch(t *testing.T) {
	c := testConfig()
	m, err := NewModel(c)
	if err != nil {
		t.Fatal(err)
	}
	dir := t.TempDir()
	batches := syntheticBatches(4, 2, c)
	batches[1].Targets = batches[1].Targets[:1]
	trainer := &Trainer{
		Model:    m,
		Source:   &SliceSource{Batches: batches},
		MaxSteps: 10,
		SaveDir:  dir,
		Logger:   log.New(&bytes.Buffer{}, "", 0),
	}
	if err := trainer.Run(); err == nil {
		t.Fatal("expected error")
	}
	if entries, _ := os.ReadDir(dir); len(entries) != 0 {
		t.Errorf("expected no checkpoints after a failed step, got %d", len(entries))
	}
}

func TestTrainerCheckpointRoundTrip(t *testing.T) {
	c := testConfig()
	m, err := NewModel(c)
	if err != nil {
		t.Fatal(err)
	}
	batches := syntheticBatches(5, 4, c)
	dir := t.TempDir()
	original := &Trainer{
		Model:    m,
		Source:   &SliceSource{Batches: batches[:3]},
		MaxSteps: 3,
		SaveDir:  dir,
		Logger:   log.New(&bytes.Buffer{}, "", 0),
	}
	if err := original.Run(); err != nil {
		t.Fatal(err)
	}

	loaded, err := LoadCheckpoint(CheckpointPath(dir, 3))
	if err != nil {
		t.Fatal(err)
	}
	restored := &Trainer{Model: loaded}

	next := batches[3]
	expected, _, err := original.Step(next, original.Model.ZeroState())
	if err != nil {
		t.Fatal(err)
	}
	actual, _, err := restored.Step(next, restored.Model.ZeroState())
	if err != nil {
		t.Fatal(err)
	}
	if math.Abs(expected-actual) > 1e-6 {
		t.Errorf("expected loss %f but got %f", expected, actual)
	}
}

func TestTrainerLearns(t *testing.T) {
	c := testConfig()
	c.LearningRate = 0.05
	m, err := NewModel(c)
	if err != nil {
		t.Fatal(err)
	}
	var ids []int
	for i := 0; i < 600; i++ {
		ids = append(ids, i%4)
	}
	source, err := NewStreamSource(ids, c.NumSeqs, c.NumSteps, rand.New(rand.NewSource(6)))
	if err != nil {
		t.Fatal(err)
	}
	recorder := &testRecorder{}
	trainer := &Trainer{
		Model:    m,
		Source:   source,
		MaxSteps: 80,
		SaveDir:  t.TempDir(),
		Logger:   log.New(&bytes.Buffer{}, "", 0),
		Recorder: recorder,
	}
	if err := trainer.Run(); err != nil {
		t.Fatal(err)
	}
	mean := func(l []float64) float64 {
		var sum float64
		for _, x := range l {
			sum += x
		}
		return sum / float64(len(l))
	}
	first := mean(recorder.losses[:5])
	last := mean(recorder.losses[len(recorder.losses)-5:])
	if !(last < first) {
		t.Errorf("loss did not decrease: %f -> %f", first, last)
	}
}

func TestTrainerResumeOptimizer(t *testing.T) {
	c := testConfig()
	c.LearningRate = 0.01
	m, err := NewModel(c)
	if err != nil {
		t.Fatal(err)
	}
	batches := syntheticBatches(7, 5, c)
	dir := t.TempDir()

	continuous := &Trainer{Model: m, SaveDir: dir}
	for i, b := range batches[:3] {
		if _, _, err := continuous.Step(b, m.ZeroState()); err != nil {
			t.Fatalf("step %d: %v", i+1, err)
		}
	}
	if err := continuous.save(3); err != nil {
		t.Fatal(err)
	}

	loaded, err := LoadCheckpoint(CheckpointPath(dir, 3))
	if err != nil {
		t.Fatal(err)
	}
	resumed := &Trainer{Model: loaded}
	ok, err := resumed.ResumeOptimizer(CheckpointPath(dir, 3))
	if err != nil {
		t.Fatal(err)
	} else if !ok {
		t.Fatal("optimizer state was not found")
	}

	// The second step after resuming depends on the Adam
	// moments, not only on the parameters.
	for i, b := range batches[3:] {
		expected, _, err := continuous.Step(b, continuous.Model.ZeroState())
		if err != nil {
			t.Fatal(err)
		}
		actual, _, err := resumed.Step(b, resumed.Model.ZeroState())
		if err != nil {
			t.Fatal(err)
		}
		if math.Abs(expected-actual) > 1e-5 {
			t.Errorf("step %d: expected loss %f but got %f", i+4, expected, actual)
		}
	}

	t.Run("Missing", func(t *testing.T) {
		fresh := &Trainer{Model: loaded}
		ok, err := fresh.ResumeOptimizer(filepath.Join(t.TempDir(), "model-1"))
		if err != nil || ok {
			t.Errorf("expected a fresh optimizer, got %v, %v", ok, err)
		}
	})
}
