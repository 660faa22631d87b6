package charrnn

import (
	"encoding/json"
	"errors"
	"os"
	"sort"

	"github.com/unixpickle/essentials"
)

// VocabFile is the name of the vocabulary file written
// next to checkpoints.
const VocabFile = "vocab.json"

// A Vocab maps characters to ids and back.
//
// Characters are ordered by decreasing frequency in the
// text the vocabulary was built from. Characters outside
// the vocabulary share one extra id, Unknown().
type Vocab struct {
	Chars []rune

	index map[rune]int
}

// NewVocab builds a vocabulary from text, keeping at most
// maxVocab characters (all of them if maxVocab <= 0).
func NewVocab(text string, maxVocab int) *Vocab {
	counts := map[rune]int{}
	for _, ch := range text {
		counts[ch]++
	}
	chars := make([]rune, 0, len(counts))
	for ch := range counts {
		chars = append(chars, ch)
	}
	sort.Slice(chars, func(i, j int) bool {
		if counts[chars[i]] != counts[chars[j]] {
			return counts[chars[i]] > counts[chars[j]]
		}
		return chars[i] < chars[j]
	})
	if maxVocab > 0 && len(chars) > maxVocab {
		chars = chars[:maxVocab]
	}
	return newVocab(chars)
}

// LoadVocab reads a vocabulary saved with Save.
func LoadVocab(path string) (*Vocab, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, essentials.AddCtx("load vocab", err)
	}
	var chars []string
	if err := json.Unmarshal(data, &chars); err != nil {
		return nil, essentials.AddCtx("load vocab", err)
	}
	runes := make([]rune, len(chars))
	for i, s := range chars {
		r := []rune(s)
		if len(r) != 1 {
			return nil, errors.New("load vocab: entries must be single characters")
		}
		runes[i] = r[0]
	}
	return newVocab(runes), nil
}

func newVocab(chars []rune) *Vocab {
	res := &Vocab{Chars: chars, index: map[rune]int{}}
	for i, ch := range chars {
		res.index[ch] = i
	}
	return res
}

// Save writes the vocabulary as a JSON list of strings.
func (v *Vocab) Save(path string) error {
	chars := make([]string, len(v.Chars))
	for i, ch := range v.Chars {
		chars[i] = string(ch)
	}
	data, err := json.Marshal(chars)
	if err != nil {
		return essentials.AddCtx("save vocab", err)
	}
	if err := os.WriteFile(path, data, 0644); err != nil {
		return essentials.AddCtx("save vocab", err)
	}
	return nil
}

// Size is the number of ids, including Unknown().
func (v *Vocab) Size() int {
	return len(v.Chars) + 1
}

// Unknown is the id shared by every character outside the
// vocabulary.
func (v *Vocab) Unknown() int {
	return len(v.Chars)
}

// Encode converts text to ids.
func (v *Vocab) Encode(text string) []int {
	var res []int
	for _, ch := range text {
		if id, ok := v.index[ch]; ok {
			res = append(res, id)
		} else {
			res = append(res, v.Unknown())
		}
	}
	return res
}

// Decode converts ids to text.
// The unknown id decodes to the empty string.
func (v *Vocab) Decode(ids []int) string {
	var res []rune
	for _, id := range ids {
		if id >= 0 && id < len(v.Chars) {
			res = append(res, v.Chars[id])
		}
	}
	return string(res)
}
