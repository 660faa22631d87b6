package main

import "gopkg.in/urfave/cli.v1"

var trainFlags = []cli.Flag{
	cli.StringFlag{
		Name:  "input",
		Usage: "training text `file` or directory",
	},
	cli.StringFlag{
		Name:  "name",
		Value: "default",
		Usage: "model `name`; checkpoints go to <save-dir>/<name>",
	},
	cli.StringFlag{
		Name:   "save-dir",
		Value:  "model",
		Usage:  "checkpoint root `directory`",
		EnvVar: "CHARRNN_SAVE_DIR",
	},
	cli.IntFlag{
		Name:   "num-seqs",
		Value:  100,
		Usage:  "sequences per batch",
		EnvVar: "CHARRNN_NUM_SEQS",
	},
	cli.IntFlag{
		Name:   "num-steps",
		Value:  100,
		Usage:  "characters per sequence",
		EnvVar: "CHARRNN_NUM_STEPS",
	},
	cli.IntFlag{
		Name:  "lstm-size",
		Value: 128,
		Usage: "LSTM hidden width",
	},
	cli.IntFlag{
		Name:  "num-layers",
		Value: 2,
		Usage: "number of LSTM layers",
	},
	cli.BoolFlag{
		Name:  "use-embedding",
		Usage: "learn a character embedding instead of one-hot inputs",
	},
	cli.IntFlag{
		Name:  "embedding-size",
		Value: 128,
		Usage: "embedding width",
	},
	cli.Float64Flag{
		Name:  "learning-rate",
		Value: 0.001,
		Usage: "Adam step size",
	},
	cli.Float64Flag{
		Name:  "grad-clip",
		Value: 5,
		Usage: "maximum global gradient norm",
	},
	cli.Float64Flag{
		Name:  "keep-prob",
		Value: 0.5,
		Usage: "dropout keep probability (1=no dropout)",
	},
	cli.IntFlag{
		Name:  "max-steps",
		Value: 100000,
		Usage: "number of training steps",
	},
	cli.IntFlag{
		Name:  "save-every",
		Value: 1000,
		Usage: "steps between checkpoints",
	},
	cli.IntFlag{
		Name:  "log-every",
		Value: 10,
		Usage: "steps between log lines",
	},
	cli.IntFlag{
		Name:  "max-vocab",
		Value: 3500,
		Usage: "maximum number of distinct characters",
	},
	cli.BoolFlag{
		Name:  "resume",
		Usage: "continue from the latest checkpoint in the model directory",
	},
	cli.StringFlag{
		Name:   "journal",
		Usage:  "SQLite `file` to record steps and checkpoints in",
		EnvVar: "CHARRNN_JOURNAL",
	},
}

var sampleFlags = []cli.Flag{
	cli.StringFlag{
		Name:  "checkpoint",
		Value: "model/default",
		Usage: "checkpoint `path`, or a directory to use its latest checkpoint",
	},
	cli.StringFlag{
		Name:  "vocab",
		Usage: "vocabulary `file` (default: vocab.json next to the checkpoint)",
	},
	cli.StringFlag{
		Name:  "start",
		Usage: "text to prime the model with",
	},
	cli.IntFlag{
		Name:  "max-length",
		Value: 30,
		Usage: "number of characters to generate",
	},
	cli.IntFlag{
		Name:  "top-n",
		Value: 5,
		Usage: "number of most likely characters to choose from",
	},
	cli.Int64Flag{
		Name:  "seed",
		Usage: "random seed",
	},
}

var historyFlags = []cli.Flag{
	cli.StringFlag{
		Name:   "journal",
		Usage:  "SQLite `file` written by train -journal",
		EnvVar: "CHARRNN_JOURNAL",
	},
}
