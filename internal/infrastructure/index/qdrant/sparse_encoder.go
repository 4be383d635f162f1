package qdrant

import (
	"hash/fnv"
	"sort"
	"strings"
)

// sparseVector is the qdrant wire form of a sparse embedding: parallel
// term-hash and weight slices.
type sparseVector struct {
	Indices []uint32  `json:"indices"`
	Values  []float32 `json:"values"`
}

const (
	docBM25K1      = 1.2
	maxSparseTerms = 256
)

// encodeSparseDocument produces BM25-style saturated term weights for a
// stored chunk. Hash collisions across terms are tolerated; they only
// merge weights.
func encodeSparseDocument(text string) sparseVector {
	freqs := termFrequencies(text)
	if len(freqs) == 0 {
		return sparseVector{Indices: []uint32{}, Values: []float32{}}
	}

	type term struct {
		hash   uint32
		weight float32
	}
	terms := make([]term, 0, len(freqs))
	for tok, tf := range freqs {
		// BM25 term saturation without document-length normalization;
		// chunks are near-uniform in size after splitting.
		w := float32(tf) * (docBM25K1 + 1) / (float32(tf) + docBM25K1)
		terms = append(terms, term{hash: hashToken(tok), weight: w})
	}
	sort.Slice(terms, func(i, j int) bool { return terms[i].weight > terms[j].weight })
	if len(terms) > maxSparseTerms {
		terms = terms[:maxSparseTerms]
	}

	out := sparseVector{
		Indices: make([]uint32, 0, len(terms)),
		Values:  make([]float32, 0, len(terms)),
	}
	for _, t := range terms {
		out.Indices = append(out.Indices, t.hash)
		out.Values = append(out.Values, t.weight)
	}
	return out
}

// encodeSparseQuery weights every query term equally; saturation only
// matters on the document side.
func encodeSparseQuery(text string) sparseVector {
	freqs := termFrequencies(text)
	out := sparseVector{
		Indices: make([]uint32, 0, len(freqs)),
		Values:  make([]float32, 0, len(freqs)),
	}
	for tok := range freqs {
		out.Indices = append(out.Indices, hashToken(tok))
		out.Values = append(out.Values, 1.0)
	}
	return out
}

func hashToken(tok string) uint32 {
	h := fnv.New32a()
	h.Write([]byte(tok))
	return h.Sum32()
}

func termFrequencies(text string) map[string]int {
	freqs := make(map[string]int)
	for _, tok := range tokenizeAlphaNum(text) {
		if len(tok) < 2 {
			continue
		}
		freqs[tok]++
	}
	return freqs
}

// tokenizeAlphaNum splits on anything outside lowercase a-z and 0-9
// after folding to lower case.
func tokenizeAlphaNum(text string) []string {
	lower := strings.ToLower(text)
	tokens := make([]string, 0, 32)
	var b strings.Builder
	for _, r := range lower {
		if (r >= 'a' && r <= 'z') || (r >= '0' && r <= '9') {
			b.WriteRune(r)
			continue
		}
		if b.Len() > 0 {
			tokens = append(tokens, b.String())
			b.Reset()
		}
	}
	if b.Len() > 0 {
		tokens = append(tokens, b.String())
	}
	return tokens
}
