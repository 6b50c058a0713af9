package ocrengine

import "math"

// decodedSequence holds CTC-decoded indices and per-character probabilities
// after blank removal and repeat collapsing.
type decodedSequence struct {
	Indices []int
	Probs   []float64
}

func argmax(v []float32) (int, float32) {
	if len(v) == 0 {
		return -1, 0
	}
	idx := 0
	maxVal := v[0]
	for i := 1; i < len(v); i++ {
		if v[i] > maxVal {
			maxVal = v[i]
			idx = i
		}
	}
	return idx, maxVal
}

// softmaxProbOfIndex computes the softmax probability of v[idx] among v. When
// values already look like probabilities (sum~1, all in [0,1]) it returns
// v[idx] directly.
func softmaxProbOfIndex(v []float32, idx int) float64 {
	if len(v) == 0 || idx < 0 || idx >= len(v) {
		return 0
	}
	var sum float64
	minV, maxV := v[0], v[0]
	for _, x := range v {
		sum += float64(x)
		if x < minV {
			minV = x
		}
		if x > maxV {
			maxV = x
		}
	}
	if sum > 0.99 && sum < 1.01 && minV >= 0 && maxV <= 1 {
		return float64(v[idx])
	}
	m := v[0]
	for _, x := range v {
		if x > m {
			m = x
		}
	}
	var denom float64
	for _, x := range v {
		denom += math.Exp(float64(x - m))
	}
	if denom == 0 {
		return 0
	}
	return math.Exp(float64(v[idx]-m)) / denom
}

// ctcCollapse removes blanks and repeated consecutive indices.
func ctcCollapse(indices []int, probs []float64, blank int) ([]int, []float64) {
	outIdx := make([]int, 0, len(indices))
	outProb := make([]float64, 0, len(probs))
	prev := -1
	for i, idx := range indices {
		if idx == blank {
			prev = idx
			continue
		}
		if idx == prev {
			continue
		}
		outIdx = append(outIdx, idx)
		if i < len(probs) {
			outProb = append(outProb, probs[i])
		} else {
			outProb = append(outProb, 0)
		}
		prev = idx
	}
	return outIdx, outProb
}

// decodeCTCGreedy decodes [N, T, C] logits with greedy CTC decoding,
// blank = class 0 (the PaddleOCR convention).
func decodeCTCGreedy(logits []float32, shape []int64) []decodedSequence {
	if len(shape) < 3 {
		return nil
	}
	n := int(shape[0])
	tDim := int(shape[1])
	cDim := int(shape[2])
	if n <= 0 || tDim <= 0 || cDim <= 0 || len(logits) < n*tDim*cDim {
		return nil
	}

	out := make([]decodedSequence, n)
	perBatch := tDim * cDim
	for b := 0; b < n; b++ {
		start := b * perBatch
		indices := make([]int, tDim)
		probs := make([]float64, tDim)
		for t := 0; t < tDim; t++ {
			off := start + t*cDim
			cls := logits[off : off+cDim]
			idx, _ := argmax(cls)
			indices[t] = idx
			probs[t] = softmaxProbOfIndex(cls, idx)
		}
		collIdx, collProb := ctcCollapse(indices, probs, 0)
		out[b] = decodedSequence{Indices: collIdx, Probs: collProb}
	}
	return out
}

// sequenceConfidence is the mean of per-character probabilities, 0 if empty.
func sequenceConfidence(probs []float64) float64 {
	if len(probs) == 0 {
		return 0
	}
	var s float64
	for _, p := range probs {
		s += p
	}
	return s / float64(len(probs))
}
