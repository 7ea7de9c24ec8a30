package config

import (
	"fmt"
	"os"
	"time"

	"github.com/kelseyhightower/envconfig"
	"sigs.k8s.io/yaml"
)

var singleConfig *Config = nil

type Config struct {
	Database *dbConfig  `json:"database"`
	Service  *svcConfig `json:"service"`
}

type dbConfig struct {
	Type     string `envconfig:"DB_TYPE" default:"pgsql" json:"type"`
	Hostname string `envconfig:"DB_HOST" default:"localhost" json:"hostname"`
	Port     string `envconfig:"DB_PORT" default:"5432" json:"port"`
	Name     string `envconfig:"DB_NAME" default:"trainer" json:"name"`
	User     string `envconfig:"DB_USER" default:"admin" json:"user"`
	Password string `envconfig:"DB_PASS" default:"adminpass" json:"-"`
}

type svcConfig struct {
	Address        string        `envconfig:"TRAINER_ADDRESS" default:":3443" json:"address"`
	MetricsAddress string        `envconfig:"TRAINER_METRICS_ADDRESS" default:":8080" json:"metricsAddress"`
	LogLevel       string        `envconfig:"TRAINER_LOG_LEVEL" default:"info" json:"logLevel"`
	InferenceURL   string        `envconfig:"TRAINER_INFERENCE_URL" default:"inference:5000" json:"inferenceUrl"`
	Trainer        trainerConfig `json:"trainer"`
	Worker         WorkerConfig  `json:"worker"`
}

type trainerConfig struct {
	Endpoint       string `envconfig:"TRAINER_CV_ENDPOINT" default:"" json:"endpoint"`
	TrainingKey    string `envconfig:"TRAINER_CV_TRAINING_KEY" default:"" json:"-"`
	ExportPlatform string `envconfig:"TRAINER_CV_EXPORT_PLATFORM" default:"ONNX" json:"exportPlatform"`
}

// WorkerConfig tunes the training orchestration and the status reconciliation loop.
type WorkerConfig struct {
	PollInterval     time.Duration `envconfig:"TRAINER_POLL_INTERVAL" default:"1s" json:"pollInterval"`
	PollJitter       time.Duration `envconfig:"TRAINER_POLL_JITTER" default:"0s" json:"pollJitter"`
	MaxPrepareWaits  int           `envconfig:"TRAINER_MAX_PREPARE_WAITS" default:"60" json:"maxPrepareWaits"`
	PartWaitAttempts int           `envconfig:"TRAINER_PART_WAIT_ATTEMPTS" default:"10" json:"partWaitAttempts"`
	PartWaitInterval time.Duration `envconfig:"TRAINER_PART_WAIT_INTERVAL" default:"1s" json:"partWaitInterval"`
	UploadBatchSize  int           `envconfig:"TRAINER_UPLOAD_BATCH_SIZE" default:"5" json:"uploadBatchSize"`
	MaxIterations    int           `envconfig:"TRAINER_MAX_ITERATIONS" default:"2" json:"maxIterations"`
}

func New() (*Config, error) {
	if singleConfig == nil {
		singleConfig = new(Config)
		if err := envconfig.Process("", singleConfig); err != nil {
			return nil, err
		}
	}
	return singleConfig, nil
}

// Load resolves defaults and the environment, then applies the YAML file at path
// on top of them. An empty path behaves like New.
func Load(path string) (*Config, error) {
	if path == "" {
		return New()
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading config file %s: %w", path, err)
	}

	cfg := new(Config)
	if err := envconfig.Process("", cfg); err != nil {
		return nil, err
	}

	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("decoding config file %s: %w", path, err)
	}

	singleConfig = cfg
	return cfg, nil
}

// NewDefault returns a configuration backed by an in-memory sqlite database.
func NewDefault() *Config {
	return &Config{
		Database: &dbConfig{
			Type: "sqlite",
			Name: "file::memory:?cache=shared",
		},
		Service: &svcConfig{
			Address:        ":3443",
			MetricsAddress: ":8080",
			LogLevel:       "info",
			InferenceURL:   "inference:5000",
			Trainer: trainerConfig{
				ExportPlatform: "ONNX",
			},
			Worker: WorkerConfig{
				PollInterval:     time.Second,
				MaxPrepareWaits:  60,
				PartWaitAttempts: 10,
				PartWaitInterval: time.Second,
				UploadBatchSize:  5,
				MaxIterations:    2,
			},
		},
	}
}

func (c *Config) String() string {
	val, _ := yaml.Marshal(c)
	return string(val)
}
