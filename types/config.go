package types

import (
	"errors"
	"fmt"
	"io/ioutil"
	"os"
	"path"
	"sort"
	"strings"
	"sync"
	"time"

	"gopkg.in/yaml.v3"
	"text2phenotype.com/postag/logger"
	"text2phenotype.com/postag/utils"
)

const (
	// backends
	BackendMaxent = "maxent"
	BackendKServe = "kserve"

	// resource kinds
	ResourceLocal  = "local"
	ResourceRemote = "remote"
	ResourceS3     = "s3"
	ResourceHub    = "hub"

	DefaultMaxSequenceLength = 512
	DefaultBatchSize         = 8
	DefaultBeamSize          = 3
)

// Resource locates one model file. For hub resources Repo is the Hugging Face
// repository id and Location the file name inside it.
type Resource struct {
	Kind     string `yaml:"kind" json:"kind"`
	Repo     string `yaml:"repo,omitempty" json:"repo,omitempty"`
	Location string `yaml:"location" json:"location"`
}

func (r Resource) IsEmpty() bool {
	return len(r.Location) == 0
}

func (r Resource) String() string {
	if len(r.Repo) > 0 {
		return r.Kind + ":" + r.Repo + "/" + r.Location
	}
	return r.Kind + ":" + r.Location
}

type Resources struct {
	Vocab  Resource `yaml:"vocab" json:"vocab"`
	Config Resource `yaml:"config" json:"config"`
	Model  Resource `yaml:"model" json:"model"`
}

type Configuration struct {
	Name              string            `yaml:"-" json:"name"`
	FilePath          string            `yaml:"-" json:"file_path"`
	ModelIdentity     string            `yaml:"model" json:"model"`
	Backend           string            `yaml:"backend" json:"backend"`
	Endpoint          string            `yaml:"endpoint" json:"endpoint"`
	Device            Device            `yaml:"device" json:"device"`
	LowerCase         bool              `yaml:"lower_case" json:"lower_case"`
	StripAccents      bool              `yaml:"strip_accents" json:"strip_accents"`
	Aggregation       AggregationOption `yaml:"aggregation" json:"aggregation"`
	MaxSequenceLength int               `yaml:"max_sequence_length" json:"max_sequence_length"`
	BatchSize         int               `yaml:"batch_size" json:"batch_size"`
	BeamSize          int               `yaml:"beam_size" json:"beam_size"`
	Timeout           time.Duration     `yaml:"timeout" json:"timeout"`
	Resources         Resources         `yaml:"resources" json:"resources"`
}

// DefaultConfiguration is the English MobileBERT POS profile served by a
// local Triton server.
func DefaultConfiguration() Configuration {
	const repo = "mrm8488/mobilebert-finetuned-pos"
	return Configuration{
		Name:              "default",
		ModelIdentity:     "mobilebert-finetuned-pos",
		Backend:           BackendKServe,
		Endpoint:          "http://localhost:8000",
		Device:            DeviceAuto,
		LowerCase:         true,
		StripAccents:      true,
		Aggregation:       AggregationFirst,
		MaxSequenceLength: DefaultMaxSequenceLength,
		BatchSize:         DefaultBatchSize,
		BeamSize:          DefaultBeamSize,
		Resources: Resources{
			Vocab:  Resource{Kind: ResourceHub, Repo: repo, Location: "vocab.txt"},
			Config: Resource{Kind: ResourceHub, Repo: repo, Location: "config.json"},
		},
	}
}

// WithDefaults fills zero values and normalizes the spelling of the device
// and aggregation options. Invalid values are left for Validate to report.
func (cfg Configuration) WithDefaults() Configuration {
	if d, err := ParseDevice(string(cfg.Device)); err == nil {
		cfg.Device = d
	}
	if o, err := ParseAggregationOption(string(cfg.Aggregation)); err == nil {
		cfg.Aggregation = o
	}
	if cfg.MaxSequenceLength == 0 {
		cfg.MaxSequenceLength = DefaultMaxSequenceLength
	}
	if cfg.BatchSize == 0 {
		cfg.BatchSize = DefaultBatchSize
	}
	if cfg.BeamSize == 0 {
		cfg.BeamSize = DefaultBeamSize
	}
	for _, r := range []*Resource{&cfg.Resources.Vocab, &cfg.Resources.Config, &cfg.Resources.Model} {
		if !r.IsEmpty() && len(r.Kind) == 0 {
			r.Kind = ResourceLocal
		}
	}
	return cfg
}

func (cfg Configuration) Validate() error {
	if len(cfg.ModelIdentity) == 0 {
		return &ConfigurationError{Op: "validate", Err: errors.New("model identity is empty")}
	}
	if _, err := ParseDevice(string(cfg.Device)); err != nil {
		return &ConfigurationError{Op: "validate", Err: err}
	}
	if _, err := ParseAggregationOption(string(cfg.Aggregation)); err != nil {
		return &ConfigurationError{Op: "validate", Err: err}
	}
	if cfg.MaxSequenceLength < 3 {
		return &ConfigurationError{Op: "validate", Err: fmt.Errorf("max sequence length %d is too small", cfg.MaxSequenceLength)}
	}
	if cfg.BatchSize < 1 {
		return &ConfigurationError{Op: "validate", Err: fmt.Errorf("batch size %d is too small", cfg.BatchSize)}
	}
	if cfg.Timeout < 0 {
		return &ConfigurationError{Op: "validate", Err: fmt.Errorf("timeout %s is negative", cfg.Timeout)}
	}
	if cfg.Resources.Vocab.IsEmpty() {
		return &ConfigurationError{Op: "validate", Err: errors.New("vocabulary resource is not set")}
	}

	switch cfg.Backend {
	case BackendMaxent:
		if cfg.Resources.Model.IsEmpty() {
			return &ConfigurationError{Op: "validate", Err: errors.New("maxent backend requires a model resource")}
		}
	case BackendKServe:
		if len(cfg.Endpoint) == 0 {
			return &ConfigurationError{Op: "validate", Err: errors.New("kserve backend requires an endpoint")}
		}
		if cfg.Resources.Config.IsEmpty() {
			return &ConfigurationError{Op: "validate", Err: errors.New("kserve backend requires a label config resource")}
		}
	default:
		return &ConfigurationError{Op: "validate", Err: fmt.Errorf("unknown backend %q", cfg.Backend)}
	}

	for _, r := range []Resource{cfg.Resources.Vocab, cfg.Resources.Config, cfg.Resources.Model} {
		if r.IsEmpty() {
			continue
		}
		switch r.Kind {
		case ResourceLocal, ResourceRemote, ResourceS3:
		case ResourceHub:
			if len(r.Repo) == 0 {
				return &ConfigurationError{Op: "validate", Err: fmt.Errorf("hub resource %s has no repo", r.Location)}
			}
		default:
			return &ConfigurationError{Op: "validate", Err: fmt.Errorf("unknown resource kind %q for %s", r.Kind, r.Location)}
		}
	}
	return nil
}

// Fingerprint identifies the settings that change tagger output.
func (cfg Configuration) Fingerprint() uint64 {
	key := strings.Join([]string{
		cfg.ModelIdentity,
		cfg.Backend,
		fmt.Sprintf("lc=%t", cfg.LowerCase),
		fmt.Sprintf("sa=%t", cfg.StripAccents),
		string(cfg.Aggregation),
		fmt.Sprintf("msl=%d", cfg.MaxSequenceLength),
		fmt.Sprintf("beam=%d", cfg.BeamSize),
		cfg.Resources.Vocab.String(),
		cfg.Resources.Config.String(),
		cfg.Resources.Model.String(),
	}, "|")
	return utils.HashString(key)
}

func LoadConfiguration(filePath string) (Configuration, error) {
	name := strings.TrimSuffix(path.Base(filePath), path.Ext(filePath))
	cfg := Configuration{Name: name, FilePath: filePath}
	buf, err := ioutil.ReadFile(filePath)
	if err != nil {
		return cfg, &IOError{Path: filePath, Err: err}
	}
	if err := yaml.Unmarshal(buf, &cfg); err != nil {
		return cfg, &ConfigurationError{Op: "parse " + filePath, Err: err}
	}
	cfg = cfg.WithDefaults()
	return cfg, cfg.Validate()
}

// LoadConfigurations reads every *.yaml profile in dirPath. Broken profiles
// are logged and skipped.
func LoadConfigurations(dirPath string) ([]Configuration, error) {
	postagLogger := logger.NewLogger("LoadConfigurations")

	files, err := ioutil.ReadDir(dirPath)
	if err != nil {
		return nil, &IOError{Path: dirPath, Err: err}
	}

	var wg sync.WaitGroup
	configChan := make(chan Configuration, len(files))
	for _, f := range files {
		if f.IsDir() || !strings.HasSuffix(f.Name(), ".yaml") {
			continue
		}

		wg.Add(1)
		go func(file os.FileInfo) {
			defer wg.Done()
			cfg, err := LoadConfiguration(path.Join(dirPath, file.Name()))
			if err != nil {
				postagLogger.Err(err).Str("file", file.Name()).Msg("Skipping tagger profile")
				return
			}
			configChan <- cfg
		}(f)
	}

	go func() {
		wg.Wait()
		close(configChan)
	}()

	configs := make([]Configuration, 0, len(configChan))
	for cfg := range configChan {
		configs = append(configs, cfg)
	}
	sort.Slice(configs, func(i, j int) bool {
		return configs[i].Name < configs[j].Name
	})
	return configs, nil
}

func FindConfiguration(cfgs []Configuration, name string) (Configuration, bool) {
	for _, cfg := range cfgs {
		if cfg.Name == name {
			return cfg, true
		}
	}
	return Configuration{}, false
}
