package usecase

import (
	"sort"

	"github.com/kirillkom/screen-assistant/internal/core/domain"
)

// FusionWeights tunes the contribution of each retrieval signal and the
// reciprocal-rank smoothing constant. Raw retriever scores are never mixed;
// their scales are not comparable across schemes.
type FusionWeights struct {
	DenseWeight    float64
	SparseWeight   float64
	RankConstant   int
	RelevanceFloor float64
}

func (w FusionWeights) normalize() FusionWeights {
	out := w
	if out.DenseWeight <= 0 && out.SparseWeight <= 0 {
		out.DenseWeight = 1.0
		out.SparseWeight = 1.0
	}
	if out.DenseWeight < 0 {
		out.DenseWeight = 0
	}
	if out.SparseWeight < 0 {
		out.SparseWeight = 0
	}
	if out.RankConstant <= 0 {
		out.RankConstant = 60
	}
	if out.RelevanceFloor < 0 {
		out.RelevanceFloor = 0
	}
	return out
}

// FuseRRF merges dense and sparse result lists by reciprocal rank fusion.
// A passage present in both lists carries both rank terms. Output is
// descending by fused score, tie-broken by dense-presence then passage id,
// truncated to kFinal and filtered by the relevance floor. An empty result
// is a valid outcome, not an error.
func FuseRRF(dense, sparse []domain.PassageRef, weights FusionWeights, kFinal int) []domain.FusedPassage {
	w := weights.normalize()

	acc := make(map[string]*domain.FusedPassage, len(dense)+len(sparse))
	ordered := make([]*domain.FusedPassage, 0, len(dense)+len(sparse))

	add := func(list []domain.PassageRef, isDense bool) {
		for i, ref := range list {
			rank := i + 1
			fp, ok := acc[ref.ID]
			if !ok {
				fp = &domain.FusedPassage{Passage: ref}
				acc[ref.ID] = fp
				ordered = append(ordered, fp)
			}
			if isDense {
				if fp.DenseRank == 0 {
					fp.DenseRank = rank
					fp.FusedScore += w.DenseWeight / float64(w.RankConstant+rank)
				}
			} else {
				if fp.SparseRank == 0 {
					fp.SparseRank = rank
					fp.FusedScore += w.SparseWeight / float64(w.RankConstant+rank)
				}
			}
		}
	}
	add(dense, true)
	add(sparse, false)

	out := make([]domain.FusedPassage, 0, len(ordered))
	for _, fp := range ordered {
		if fp.FusedScore < w.RelevanceFloor {
			continue
		}
		out = append(out, *fp)
	}

	sort.SliceStable(out, func(i, j int) bool {
		if out[i].FusedScore != out[j].FusedScore {
			return out[i].FusedScore > out[j].FusedScore
		}
		iDense := out[i].DenseRank > 0
		jDense := out[j].DenseRank > 0
		if iDense != jDense {
			return iDense
		}
		return out[i].Passage.ID < out[j].Passage.ID
	})

	if kFinal > 0 && len(out) > kFinal {
		out = out[:kFinal]
	}
	return out
}
