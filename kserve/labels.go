package kserve

import (
	"encoding/json"
	"fmt"
	"io/ioutil"
	"strconv"
)

type labelConfig struct {
	ID2Label map[string]string `json:"id2label"`
}

// LoadLabels reads the id2label table of a token classification config.json
// and returns the labels ordered by id.
func LoadLabels(filePath string) ([]string, error) {
	buf, err := ioutil.ReadFile(filePath)
	if err != nil {
		return nil, err
	}
	return ParseLabels(buf)
}

func ParseLabels(buf []byte) ([]string, error) {
	var cfg labelConfig
	if err := json.Unmarshal(buf, &cfg); err != nil {
		return nil, err
	}
	if len(cfg.ID2Label) == 0 {
		return nil, fmt.Errorf("id2label is empty")
	}

	labels := make([]string, len(cfg.ID2Label))
	for key, label := range cfg.ID2Label {
		id, err := strconv.Atoi(key)
		if err != nil {
			return nil, fmt.Errorf("label id %q: %w", key, err)
		}
		if id < 0 || id >= len(labels) {
			return nil, fmt.Errorf("label ids are not contiguous: %d", id)
		}
		if len(labels[id]) > 0 {
			return nil, fmt.Errorf("label id %d is listed twice", id)
		}
		labels[id] = label
	}
	for id, label := range labels {
		if len(label) == 0 {
			return nil, fmt.Errorf("label id %d has no label", id)
		}
	}
	return labels, nil
}
