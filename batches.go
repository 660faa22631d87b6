package charrnn

import (
	"errors"
	"fmt"
	"io"
	"math/rand"
)

// A Batch is a pair of NumSeqs x NumSteps matrices of
// character ids.
// Targets[i][j] is the character that should be predicted
// after reading Inputs[i][j].
type Batch struct {
	Inputs  [][]int
	Targets [][]int
}

// A BatchSource produces training batches.
//
// NextBatch returns io.EOF once the source is exhausted.
type BatchSource interface {
	NextBatch() (*Batch, error)
}

// SliceSource is a BatchSource that yields a fixed list
// of batches once.
type SliceSource struct {
	Batches []*Batch
	idx     int
}

func (s *SliceSource) NextBatch() (*Batch, error) {
	if s.idx >= len(s.Batches) {
		return nil, io.EOF
	}
	s.idx++
	return s.Batches[s.idx-1], nil
}

// StreamSource is an endless BatchSource over one long
// stream of character ids.
//
// The stream is cut into NumSeqs rows which are read
// NumSteps columns at a time, so consecutive batches
// continue the same sequences. Rows are shuffled at the
// start of every pass.
type StreamSource struct {
	rows     [][]int
	numSteps int
	offset   int
	rand     *rand.Rand
}

// NewStreamSource creates a StreamSource.
// If r is nil, the global random source is used.
func NewStreamSource(ids []int, numSeqs, numSteps int, r *rand.Rand) (*StreamSource, error) {
	if numSeqs <= 0 || numSteps <= 0 {
		return nil, fmt.Errorf("invalid batch shape %dx%d", numSeqs, numSteps)
	}
	perBatch := numSeqs * numSteps
	numBatches := len(ids) / perBatch
	if numBatches == 0 {
		return nil, errors.New("corpus is too short for a single batch")
	}
	rowLen := numBatches * numSteps
	res := &StreamSource{numSteps: numSteps, rand: r}
	for i := 0; i < numSeqs; i++ {
		res.rows = append(res.rows, append([]int{}, ids[i*rowLen:(i+1)*rowLen]...))
	}
	res.shuffle()
	return res, nil
}

func (s *StreamSource) NextBatch() (*Batch, error) {
	if s.offset >= len(s.rows[0]) {
		s.offset = 0
		s.shuffle()
	}
	res := &Batch{}
	for _, row := range s.rows {
		in := append([]int{}, row[s.offset:s.offset+s.numSteps]...)
		target := append(append([]int{}, in[1:]...), in[0])
		res.Inputs = append(res.Inputs, in)
		res.Targets = append(res.Targets, target)
	}
	s.offset += s.numSteps
	return res, nil
}

func (s *StreamSource) shuffle() {
	swap := func(i, j int) {
		s.rows[i], s.rows[j] = s.rows[j], s.rows[i]
	}
	if s.rand != nil {
		s.rand.Shuffle(len(s.rows), swap)
	} else {
		rand.Shuffle(len(s.rows), swap)
	}
}
