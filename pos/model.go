// Package pos is a local maximum entropy tagger over WordPiece tokens.
package pos

import (
	"encoding/json"
	"fmt"
	"io/ioutil"
	"math"
)

type Context struct {
	Outcomes   []int     `json:"outcomes"`
	Parameters []float64 `json:"parameters"`
}

type EvalParameters struct {
	Params        []Context `json:"params"`
	NumOfOutcomes int       `json:"numOfOutcomes"`
}

type Model struct {
	Probs      []float64      `json:"probs"`
	Outcomes   []string       `json:"outcomes"`
	PMap       map[string]int `json:"pmap"`
	EvalParams EvalParameters `json:"evalParams"`
	// TagDictionary optionally restricts the labels a piece may receive.
	TagDictionary map[string][]string `json:"tagDictionary,omitempty"`
}

// Eval returns the label distribution for the given context predicates.
// Unknown predicates are ignored.
func (m Model) Eval(context []string) []float64 {
	outsums := make([]float64, m.EvalParams.NumOfOutcomes)
	copy(outsums, m.Probs)

	params := m.EvalParams.Params
	for _, predicate := range context {
		ci, isOk := m.PMap[predicate]
		if !isOk {
			continue
		}

		predParam := params[ci]
		for ai, oid := range predParam.Outcomes {
			outsums[oid] += predParam.Parameters[ai]
		}
	}

	normal := 0.0
	for oid := range outsums {
		outsums[oid] = math.Exp(outsums[oid])
		normal += outsums[oid]
	}

	for oid := range outsums {
		outsums[oid] /= normal
	}

	return outsums
}

func (m Model) validate() error {
	if m.EvalParams.NumOfOutcomes == 0 {
		return fmt.Errorf("model has no outcomes")
	}
	if len(m.Outcomes) != m.EvalParams.NumOfOutcomes {
		return fmt.Errorf("model declares %d outcomes but names %d", m.EvalParams.NumOfOutcomes, len(m.Outcomes))
	}
	for predicate, ci := range m.PMap {
		if ci < 0 || ci >= len(m.EvalParams.Params) {
			return fmt.Errorf("predicate %q points to missing parameters %d", predicate, ci)
		}
	}
	for ci, p := range m.EvalParams.Params {
		if len(p.Outcomes) != len(p.Parameters) {
			return fmt.Errorf("parameters %d: %d outcomes for %d weights", ci, len(p.Outcomes), len(p.Parameters))
		}
		for _, oid := range p.Outcomes {
			if oid < 0 || oid >= m.EvalParams.NumOfOutcomes {
				return fmt.Errorf("parameters %d: outcome %d out of range", ci, oid)
			}
		}
	}
	return nil
}

func LoadModelFromFile(modelFilePath string) (Model, error) {
	var m Model
	buf, err := ioutil.ReadFile(modelFilePath)
	if err != nil {
		return m, err
	}

	if err = json.Unmarshal(buf, &m); err != nil {
		return m, err
	}
	return m, m.validate()
}
