package main

import (
	"errors"
	"fmt"
	"log"
	"math/rand/v2"
	"os"
	"os/signal"
	"path/filepath"

	charrnn "github.com/BoragoCode/my-text-generator"
	"github.com/BoragoCode/my-text-generator/journal"
	"github.com/unixpickle/essentials"
	"gopkg.in/urfave/cli.v1"
)

func main() {
	app := cli.NewApp()
	app.Name = "char-rnn"
	app.Usage = "train and sample character-level LSTM language models"
	app.Version = "0.1.0"
	app.Commands = []cli.Command{
		{
			Name:   "train",
			Usage:  "Train a model on a text corpus",
			Flags:  trainFlags,
			Action: trainCommand,
		},
		{
			Name:   "sample",
			Usage:  "Generate text from a checkpoint",
			Flags:  sampleFlags,
			Action: sampleCommand,
		},
		{
			Name:   "history",
			Usage:  "Print the steps of the latest journaled run",
			Flags:  historyFlags,
			Action: historyCommand,
		},
	}
	if err := app.Run(os.Args); err != nil {
		essentials.Die(err)
	}
}

func trainCommand(c *cli.Context) error {
	if c.String("input") == "" {
		return errors.New("missing -input")
	}
	saveDir := filepath.Join(c.String("save-dir"), c.String("name"))
	if err := os.MkdirAll(saveDir, charrnn.OutputPermissions); err != nil {
		return err
	}

	if !c.Bool("resume") {
		if err := checkFreshDir(saveDir); err != nil {
			return err
		}
	}

	text, err := charrnn.ReadCorpus(c.String("input"))
	if err != nil {
		return err
	}
	vocab, err := trainingVocab(saveDir, text, c.Int("max-vocab"), c.Bool("resume"))
	if err != nil {
		return err
	}
	log.Printf("Corpus: %d characters, vocabulary: %d ids", len(text), vocab.Size())

	cfg := charrnn.DefaultConfig(vocab.Size())
	cfg.NumSeqs = c.Int("num-seqs")
	cfg.NumSteps = c.Int("num-steps")
	cfg.LSTMSize = c.Int("lstm-size")
	cfg.NumLayers = c.Int("num-layers")
	cfg.UseEmbedding = c.Bool("use-embedding")
	cfg.EmbeddingSize = c.Int("embedding-size")
	cfg.LearningRate = c.Float64("learning-rate")
	cfg.GradClip = c.Float64("grad-clip")
	cfg.TrainKeepProb = c.Float64("keep-prob")

	model, checkpoint, startStep, err := trainingModel(saveDir, cfg, c.Bool("resume"))
	if err != nil {
		return err
	}

	source, err := charrnn.NewStreamSource(vocab.Encode(text), cfg.NumSeqs, cfg.NumSteps, nil)
	if err != nil {
		return err
	}

	trainer := &charrnn.Trainer{
		Model:     model,
		Source:    source,
		MaxSteps:  c.Int("max-steps"),
		SaveDir:   saveDir,
		SaveEvery: c.Int("save-every"),
		LogEvery:  c.Int("log-every"),
		Stop:      interruptChan(),
		StartStep: startStep,
	}
	if checkpoint != "" {
		resumed, err := trainer.ResumeOptimizer(checkpoint)
		if err != nil {
			return err
		} else if !resumed {
			log.Println("No optimizer state saved; Adam starts over.")
		}
	}

	if path := c.String("journal"); path != "" {
		j, err := journal.Open(path)
		if err != nil {
			return err
		}
		defer j.Close()
		run, err := j.BeginRun(cfg)
		if err != nil {
			return err
		}
		trainer.Recorder = run
		log.Printf("Journaling to %s (run %d)", path, run.ID)
	}

	log.Printf("Training on %s backend (ctrl+c to stop)...", backendName)
	return trainer.Run()
}

func trainingVocab(saveDir, text string, maxVocab int, resume bool) (*charrnn.Vocab, error) {
	path := filepath.Join(saveDir, charrnn.VocabFile)
	if resume {
		if _, err := os.Stat(path); err == nil {
			return charrnn.LoadVocab(path)
		}
	}
	vocab := charrnn.NewVocab(text, maxVocab)
	return vocab, vocab.Save(path)
}

// checkFreshDir fails if saveDir already holds checkpoints,
// which a new run would mix with its own.
func checkFreshDir(saveDir string) error {
	path, _, err := charrnn.LatestCheckpoint(saveDir)
	if err == charrnn.ErrNoCheckpoint {
		return nil
	} else if err != nil {
		return err
	}
	return fmt.Errorf("%s already exists (pass -resume or choose another -name)", path)
}

func trainingModel(saveDir string, cfg charrnn.Config,
	resume bool) (*charrnn.Model, string, int, error) {
	if resume {
		path, step, err := charrnn.LatestCheckpoint(saveDir)
		if err == nil {
			loaded, err := charrnn.LoadCheckpoint(path)
			if err != nil {
				return nil, "", 0, err
			}
			model, err := loaded.WithConfig(cfg)
			if err != nil {
				return nil, "", 0, essentials.AddCtx(path, err)
			}
			log.Println("Loaded model from", path)
			return model, path, step, nil
		} else if err != charrnn.ErrNoCheckpoint {
			return nil, "", 0, err
		}
	}
	model, err := charrnn.NewModel(cfg)
	if err != nil {
		return nil, "", 0, err
	}
	log.Println("Created new model.")
	return model, "", 0, nil
}

func interruptChan() <-chan struct{} {
	sigs := make(chan os.Signal, 1)
	signal.Notify(sigs, os.Interrupt)
	res := make(chan struct{})
	go func() {
		<-sigs
		signal.Stop(sigs)
		close(res)
	}()
	return res
}

func sampleCommand(c *cli.Context) error {
	path := c.String("checkpoint")
	if info, err := os.Stat(path); err != nil {
		return err
	} else if info.IsDir() {
		path, _, err = charrnn.LatestCheckpoint(path)
		if err != nil {
			return err
		}
	}

	vocabPath := c.String("vocab")
	if vocabPath == "" {
		vocabPath = filepath.Join(filepath.Dir(path), charrnn.VocabFile)
	}
	vocab, err := charrnn.LoadVocab(vocabPath)
	if err != nil {
		return err
	}

	loaded, err := charrnn.LoadCheckpoint(path)
	if err != nil {
		return err
	}
	model, err := loaded.WithConfig(loaded.Config.Sampling())
	if err != nil {
		return err
	}
	log.Println("Restored from", path)

	prime := vocab.Encode(c.String("start"))
	if len(prime) == 0 {
		return errors.New("missing -start text")
	}
	sampler := &charrnn.Sampler{Model: model, TopN: c.Int("top-n")}
	if c.IsSet("seed") {
		sampler.Source = rand.NewPCG(uint64(c.Int64("seed")), 0)
	}
	ids, err := sampler.Sample(c.Int("max-length"), prime, vocab.Size())
	if err != nil {
		return err
	}
	fmt.Println(vocab.Decode(ids))
	return nil
}

func historyCommand(c *cli.Context) error {
	if c.String("journal") == "" {
		return errors.New("missing -journal")
	}
	j, err := journal.Open(c.String("journal"))
	if err != nil {
		return err
	}
	defer j.Close()
	run, err := j.LatestRun()
	if err != nil {
		return err
	}
	steps, err := run.Steps()
	if err != nil {
		return err
	}
	for _, s := range steps {
		fmt.Printf("step %d batch_loss=%v use_time=%v\n", s.Step, s.Loss, s.Elapsed)
	}
	checkpoints, err := run.Checkpoints()
	if err != nil {
		return err
	}
	for _, p := range checkpoints {
		fmt.Println("checkpoint", p)
	}
	return nil
}
