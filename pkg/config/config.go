package config

import (
	"os"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/juju/errors"
	"gopkg.in/yaml.v3"
)

type Config struct {
	Index   IndexConfig   `yaml:"index"`
	Encoder EncoderConfig `yaml:"encoder"`
	Shards  ShardConfig   `yaml:"shards"`
	Log     LogConfig     `yaml:"log"`
	Source  SourceConfig  `yaml:"source"`
}

type IndexConfig struct {
	Strategy       string  `yaml:"strategy" validate:"oneof=ordered nary inverted prefix"`
	Degree         int     `yaml:"degree" validate:"gte=2"`    // btree degree (ordered)
	Branching      int     `yaml:"branching" validate:"gte=2"` // max children per index node (nary)
	Policy         string  `yaml:"policy" validate:"oneof=strict lenient"`
	Tolerance      int64   `yaml:"tolerance" validate:"gte=0"`
	Refine         bool    `yaml:"refine"`
	BloomSize      uint    `yaml:"bloom_size" validate:"gt=0"`
	BloomFalseProb float64 `yaml:"bloom_false_prob" validate:"gt=0,lt=1"`
}

type EncoderConfig struct {
	K      int   `yaml:"k" validate:"gte=1"`
	Dims   int   `yaml:"dims" validate:"gte=1"`
	Window int64 `yaml:"window" validate:"gte=0"`
}

type ShardConfig struct {
	Count        int           `yaml:"count" validate:"gte=1"`
	Workers      int           `yaml:"workers" validate:"gte=1"`
	QueryTimeout time.Duration `yaml:"query_timeout" validate:"gte=0"` // 0 disables the timeout
}

type LogConfig struct {
	Level       string `yaml:"level" validate:"oneof=debug info warn error"`
	Development bool   `yaml:"development"`
}

// SourceConfig points at an optional SQLite table to bulk load from.
type SourceConfig struct {
	Path  string `yaml:"path"`
	Table string `yaml:"table" validate:"required_with=Path"`
}

// Default returns the configuration used when no file overrides it.
func Default() *Config {
	return &Config{
		Index: IndexConfig{
			Strategy:       "ordered",
			Degree:         32,
			Branching:      8,
			Policy:         "strict",
			BloomSize:      1 << 16,
			BloomFalseProb: 0.01,
		},
		Encoder: EncoderConfig{
			K:    4,
			Dims: 64,
		},
		Shards: ShardConfig{
			Count:   4,
			Workers: 4,
		},
		Log: LogConfig{
			Level: "info",
		},
		Source: SourceConfig{
			Table: "records",
		},
	}
}

func Load(configPath string) (*Config, error) {
	cfg := Default()

	if configPath == "" {
		for _, p := range []string{"configs/seqindex.yaml", "seqindex.yaml"} {
			data, err := os.ReadFile(p)
			if err == nil {
				return cfg, decode(cfg, data)
			}
		}
		applyDefaults(cfg)
		return cfg, nil // no file found: use defaults
	}

	data, err := os.ReadFile(configPath)
	if err != nil {
		return cfg, errors.Annotatef(err, "read config %s", configPath)
	}
	return cfg, decode(cfg, data)
}

func decode(cfg *Config, data []byte) error {
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return errors.Annotate(err, "parse config")
	}
	applyDefaults(cfg)
	return cfg.Validate()
}

func (c *Config) Validate() error {
	if err := validator.New().Struct(c); err != nil {
		return errors.Annotate(err, "invalid config")
	}
	return nil
}

// applyDefaults fills zero values left by a partial file.
func applyDefaults(cfg *Config) {
	def := Default()
	if cfg.Index.Strategy == "" {
		cfg.Index.Strategy = def.Index.Strategy
	}
	if cfg.Index.Degree == 0 {
		cfg.Index.Degree = def.Index.Degree
	}
	if cfg.Index.Branching == 0 {
		cfg.Index.Branching = def.Index.Branching
	}
	if cfg.Index.Policy == "" {
		cfg.Index.Policy = def.Index.Policy
	}
	if cfg.Index.BloomSize == 0 {
		cfg.Index.BloomSize = def.Index.BloomSize
	}
	if cfg.Index.BloomFalseProb == 0 {
		cfg.Index.BloomFalseProb = def.Index.BloomFalseProb
	}
	if cfg.Encoder.K == 0 {
		cfg.Encoder.K = def.Encoder.K
	}
	if cfg.Encoder.Dims == 0 {
		cfg.Encoder.Dims = def.Encoder.Dims
	}
	if cfg.Shards.Count == 0 {
		cfg.Shards.Count = def.Shards.Count
	}
	if cfg.Shards.Workers == 0 {
		cfg.Shards.Workers = cfg.Shards.Count
	}
	if cfg.Log.Level == "" {
		cfg.Log.Level = def.Log.Level
	}
	if cfg.Source.Table == "" {
		cfg.Source.Table = def.Source.Table
	}
}
