package config

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

// Tuning carries the retrieval fusion knobs that change more often than the
// deployment environment does. They live in a YAML file so operators can
// redeploy new weights without touching the service env.
type Tuning struct {
	DenseWeight    float64 `yaml:"dense_weight"`
	SparseWeight   float64 `yaml:"sparse_weight"`
	RankConstant   int     `yaml:"rank_constant"`
	RelevanceFloor float64 `yaml:"relevance_floor"`
}

func DefaultTuning() Tuning {
	return Tuning{
		DenseWeight:  1,
		SparseWeight: 1,
		RankConstant: 60,
	}
}

// LoadTuning reads the tuning file at path. An empty path yields defaults;
// a path that is set but unreadable or malformed is a startup error, since
// silently falling back would mask an operator mistake.
func LoadTuning(path string) (Tuning, error) {
	if path == "" {
		return DefaultTuning(), nil
	}

	raw, err := os.ReadFile(path)
	if err != nil {
		return Tuning{}, fmt.Errorf("read tuning file: %w", err)
	}

	tuning := DefaultTuning()
	if err := yaml.Unmarshal(raw, &tuning); err != nil {
		return Tuning{}, fmt.Errorf("parse tuning file: %w", err)
	}
	if tuning.DenseWeight < 0 || tuning.SparseWeight < 0 {
		return Tuning{}, fmt.Errorf("tuning weights must be non-negative")
	}
	if tuning.RelevanceFloor < 0 {
		return Tuning{}, fmt.Errorf("relevance floor must be non-negative")
	}
	return tuning, nil
}
