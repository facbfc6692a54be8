package vectorstackai

import (
	"encoding/json"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/hashicorp/go-hclog"
	"gopkg.in/yaml.v3"
)

// Environment variables read by NewClient when the matching NewClientParams field is empty.
const (
	EnvApiKey            = "VECTORSTACKAI_API_KEY"
	EnvBaseURL           = "VECTORSTACKAI_BASE_URL"
	EnvConfigFile        = "VECTORSTACKAI_CONFIG_FILE"
	EnvAdditionalHeaders = "VECTORSTACKAI_ADDITIONAL_HEADERS"
)

const (
	DefaultBaseURL        = "https://api.vectorstack.ai"
	DefaultRequestTimeout = 30 * time.Second
)

// FileConfig is the YAML configuration file accepted through NewClientParams.ConfigFile or the
// VECTORSTACKAI_CONFIG_FILE environment variable. Every field is optional.
//
// Example:
//
//	api_key: "YOUR_API_KEY"
//	request_timeout: 45s
//	max_retries: 5
//	source_tag: my_app
//	headers:
//	  X-Team: search
type FileConfig struct {
	ApiKey         string            `yaml:"api_key"`
	BaseURL        string            `yaml:"base_url"`
	RequestTimeout string            `yaml:"request_timeout"`
	MaxRetries     int               `yaml:"max_retries"`
	SourceTag      string            `yaml:"source_tag"`
	Headers        map[string]string `yaml:"headers"`
}

// LoadConfigFile reads and parses a YAML configuration file.
func LoadConfigFile(path string) (*FileConfig, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config file: %w", err)
	}

	var cfg FileConfig
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("parse config yaml: %w", err)
	}
	if cfg.RequestTimeout != "" {
		if _, err := time.ParseDuration(cfg.RequestTimeout); err != nil {
			return nil, fmt.Errorf("parse config yaml: request_timeout: %w", err)
		}
	}
	return &cfg, nil
}

// clientConfig is the resolved, immutable connection configuration of a Client.
type clientConfig struct {
	apiKey         string
	baseURL        string
	requestTimeout time.Duration
	maxRetries     int
	sourceTag      string
	headers        map[string]string
}

// resolveConfig merges explicit parameters, the optional config file and the environment, in that order of
// precedence.
func resolveConfig(in NewClientParams, logger hclog.Logger) (*clientConfig, error) {
	file := &FileConfig{}
	if path := valueOrFallback(in.ConfigFile, os.Getenv(EnvConfigFile)); path != "" {
		loaded, err := LoadConfigFile(path)
		if err != nil {
			return nil, err
		}
		file = loaded
	}

	apiKey := valueOrFallback(in.ApiKey, valueOrFallback(file.ApiKey, os.Getenv(EnvApiKey)))
	if apiKey == "" {
		return nil, &APIError{
			Kind: KindAuthentication,
			Message: "No API key provided. Pass an API key through NewClientParams.ApiKey, set api_key in the " +
				"config file, or set the " + EnvApiKey + " environment variable.",
		}
	}

	baseURL := valueOrFallback(in.BaseURL, valueOrFallback(file.BaseURL, os.Getenv(EnvBaseURL)))
	baseURL, err := ensureURLScheme(valueOrFallback(baseURL, DefaultBaseURL))
	if err != nil {
		return nil, err
	}

	fileTimeout := time.Duration(0)
	if file.RequestTimeout != "" {
		fileTimeout, _ = time.ParseDuration(file.RequestTimeout)
	}

	headers := make(map[string]string)
	if envHeaders, ok := os.LookupEnv(EnvAdditionalHeaders); ok {
		if err := json.Unmarshal([]byte(envHeaders), &headers); err != nil {
			logger.Warn("failed to parse "+EnvAdditionalHeaders, "error", err)
			headers = make(map[string]string)
		}
	}
	for key, value := range file.Headers {
		headers[key] = value
	}
	for key, value := range in.Headers {
		headers[key] = value
	}

	return &clientConfig{
		apiKey:         apiKey,
		baseURL:        strings.TrimRight(baseURL, "/"),
		requestTimeout: valueOrFallback(in.RequestTimeout, valueOrFallback(fileTimeout, DefaultRequestTimeout)),
		maxRetries:     valueOrFallback(in.MaxRetries, valueOrFallback(file.MaxRetries, DefaultMaxRetries)),
		sourceTag:      valueOrFallback(in.SourceTag, file.SourceTag),
		headers:        headers,
	}, nil
}
