package charrnn

import (
	"io"
	"math/rand"
	"testing"
)

func TestSliceSource(t *testing.T) {
	batches := []*Batch{{}, {}}
	s := &SliceSource{Batches: batches}
	for i := range batches {
		b, err := s.NextBatch()
		if err != nil {
			t.Fatal(err)
		}
		if b != batches[i] {
			t.Errorf("batch %d: wrong batch", i)
		}
	}
	if _, err := s.NextBatch(); err != io.EOF {
		t.Errorf("expected io.EOF but got %v", err)
	}
}

func TestStreamSource(t *testing.T) {
	ids := make([]int, 50)
	for i := range ids {
		ids[i] = i
	}
	s, err := NewStreamSource(ids, 2, 4, rand.New(rand.NewSource(1)))
	if err != nil {
		t.Fatal(err)
	}

	// 50 ids make 6 batches of 2x4; each row holds 24 ids.
	rowStarts := map[int]bool{}
	for i := 0; i < 6; i++ {
		b, err := s.NextBatch()
		if err != nil {
			t.Fatal(err)
		}
		if err := checkIDs("inputs", b.Inputs, 2, 4, 50); err != nil {
			t.Fatal(err)
		}
		if err := checkIDs("targets", b.Targets, 2, 4, 50); err != nil {
			t.Fatal(err)
		}
		for r, in := range b.Inputs {
			if i == 0 {
				rowStarts[in[0]] = true
			}
			for j := 1; j < len(in); j++ {
				if in[j] != in[j-1]+1 {
					t.Fatalf("batch %d row %d is not contiguous: %v", i, r, in)
				}
			}
			target := b.Targets[r]
			for j := 0; j < len(in)-1; j++ {
				if target[j] != in[j+1] {
					t.Fatalf("batch %d row %d: target %v does not follow %v", i, r, target, in)
				}
			}
			if target[len(in)-1] != in[0] {
				t.Errorf("batch %d row %d: last target should wrap to %d", i, r, in[0])
			}
			if in[0]%24 != i*4 {
				t.Errorf("batch %d row %d starts at %d", i, r, in[0])
			}
		}
	}
	if !rowStarts[0] || !rowStarts[24] {
		t.Errorf("unexpected row starts %v", rowStarts)
	}

	// The next pass starts from the beginning of the rows.
	b, err := s.NextBatch()
	if err != nil {
		t.Fatal(err)
	}
	for _, in := range b.Inputs {
		if in[0] != 0 && in[0] != 24 {
			t.Errorf("second pass starts at %d", in[0])
		}
	}

	t.Run("Short", func(t *testing.T) {
		if _, err := NewStreamSource(ids[:7], 2, 4, nil); err == nil {
			t.Error("expected error")
		}
		if _, err := NewStreamSource(ids, 0, 4, nil); err == nil {
			t.Error("expected error")
		}
	})
}
