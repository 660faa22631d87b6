//go:build cuda

package main

import (
	"github.com/unixpickle/anyvec/anyvec32"
	"github.com/unixpickle/anyvec/cuda"
	"github.com/unixpickle/essentials"
)

const backendName = "cuda"

// Parameters and states are anyvec32 vectors, so switching
// the creator moves the whole model to the GPU.
func init() {
	handle, err := cuda.NewHandle()
	if err != nil {
		essentials.Die("init cuda:", err)
	}
	anyvec32.Use(cuda.NewCreator32(handle))
}
