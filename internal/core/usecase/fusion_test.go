package usecase

import (
	"math"
	"reflect"
	"testing"

	"github.com/kirillkom/screen-assistant/internal/core/domain"
)

func passages(ids ...string) []domain.PassageRef {
	out := make([]domain.PassageRef, 0, len(ids))
	for _, id := range ids {
		out = append(out, domain.PassageRef{ID: id, DocumentID: "doc-" + id, Text: "text " + id})
	}
	return out
}

func TestFuseRRFTwoSignalPassageBeatsSingleTopDense(t *testing.T) {
	// A sits at dense rank 2 and sparse rank 5: 1/62 + 1/65 ≈ 0.0315.
	// B sits at dense rank 1 only: 1/61 ≈ 0.0164. A must win.
	dense := passages("B", "A")
	sparse := passages("x1", "x2", "x3", "x4", "A")

	weights := FusionWeights{DenseWeight: 1, SparseWeight: 1, RankConstant: 60}
	fused := FuseRRF(dense, sparse, weights, 0)

	if fused[0].Passage.ID != "A" {
		t.Fatalf("expected A first, got %s", fused[0].Passage.ID)
	}
	wantA := 1.0/62.0 + 1.0/65.0
	if math.Abs(fused[0].FusedScore-wantA) > 1e-12 {
		t.Fatalf("expected A score %v, got %v", wantA, fused[0].FusedScore)
	}
	for _, fp := range fused {
		if fp.Passage.ID == "B" {
			wantB := 1.0 / 61.0
			if math.Abs(fp.FusedScore-wantB) > 1e-12 {
				t.Fatalf("expected B score %v, got %v", wantB, fp.FusedScore)
			}
		}
	}
	if fused[0].DenseRank != 2 || fused[0].SparseRank != 5 {
		t.Fatalf("expected A ranks (2,5), got (%d,%d)", fused[0].DenseRank, fused[0].SparseRank)
	}
}

func TestFuseRRFDeterministic(t *testing.T) {
	dense := passages("p3", "p1", "p2")
	sparse := passages("p2", "p4")
	weights := FusionWeights{DenseWeight: 1, SparseWeight: 1, RankConstant: 60}

	first := FuseRRF(dense, sparse, weights, 0)
	second := FuseRRF(dense, sparse, weights, 0)
	if !reflect.DeepEqual(first, second) {
		t.Fatalf("expected identical output on identical input\nfirst:  %v\nsecond: %v", first, second)
	}
}

func TestFuseRRFDeduplicatesAcrossLists(t *testing.T) {
	dense := passages("p1", "p2")
	sparse := passages("p2", "p3")

	fused := FuseRRF(dense, sparse, FusionWeights{}, 0)
	if len(fused) != 3 {
		t.Fatalf("expected 3 fused passages, got %d", len(fused))
	}
	if fused[0].Passage.ID != "p2" {
		t.Fatalf("expected two-signal p2 first, got %s", fused[0].Passage.ID)
	}
	if fused[0].DenseRank != 2 || fused[0].SparseRank != 1 {
		t.Fatalf("expected p2 to carry both ranks, got (%d,%d)", fused[0].DenseRank, fused[0].SparseRank)
	}
}

func TestFuseRRFEmptyInputsYieldEmptyOutput(t *testing.T) {
	if fused := FuseRRF(nil, nil, FusionWeights{}, 5); len(fused) != 0 {
		t.Fatalf("expected empty fusion, got %d passages", len(fused))
	}
}

func TestFuseRRFRelevanceFloorCanEmptyTheResult(t *testing.T) {
	dense := passages("p1")
	weights := FusionWeights{DenseWeight: 1, SparseWeight: 1, RankConstant: 60, RelevanceFloor: 1.0}

	fused := FuseRRF(dense, nil, weights, 5)
	if len(fused) != 0 {
		t.Fatalf("expected floor to drop everything, got %d passages", len(fused))
	}
}

func TestFuseRRFTieBreakPrefersDensePresenceThenID(t *testing.T) {
	// Same single rank on each side with equal weights: identical scores.
	dense := passages("zz")
	sparse := passages("aa")

	fused := FuseRRF(dense, sparse, FusionWeights{DenseWeight: 1, SparseWeight: 1, RankConstant: 60}, 0)
	if len(fused) != 2 {
		t.Fatalf("expected 2 fused passages, got %d", len(fused))
	}
	if fused[0].Passage.ID != "zz" {
		t.Fatalf("expected dense-present passage first on tie, got %s", fused[0].Passage.ID)
	}

	// Zero dense weight makes every dense-only passage score 0: passage id
	// ascending decides.
	fused = FuseRRF(passages("p2", "p1"), nil, FusionWeights{DenseWeight: 0, SparseWeight: 1, RankConstant: 60}, 0)
	if len(fused) != 2 || fused[0].Passage.ID != "p1" {
		t.Fatalf("expected id-ascending tie-break, got %v", fused)
	}
}

func TestFuseRRFTruncatesToFinalK(t *testing.T) {
	dense := passages("p1", "p2", "p3", "p4", "p5")
	fused := FuseRRF(dense, nil, FusionWeights{}, 2)
	if len(fused) != 2 {
		t.Fatalf("expected k_final=2 truncation, got %d", len(fused))
	}
	if fused[0].Passage.ID != "p1" || fused[1].Passage.ID != "p2" {
		t.Fatalf("expected top dense order preserved, got %v", fused)
	}
}
