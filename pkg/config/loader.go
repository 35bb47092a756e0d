package config

import (
	"os"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/ajitpratap0/multisql/pkg/errors"
)

// Load reads a YAML file into v after substituting ${VAR} and
// ${VAR:-default} references with environment values.
func Load(filePath string, v interface{}) error {
	data, err := os.ReadFile(filePath) //nolint:gosec // path comes from the operator
	if err != nil {
		return errors.Wrap(err, errors.ErrorTypeConfig, "failed to read config file").
			WithDetail("path", filePath)
	}

	if err := yaml.Unmarshal([]byte(substituteEnvVars(string(data))), v); err != nil {
		return errors.Wrap(err, errors.ErrorTypeConfig, "failed to parse YAML").
			WithDetail("path", filePath)
	}
	return nil
}

// LoadJob reads and validates a job configuration. Fields missing from the
// file keep the defaults of NewJobConfig.
func LoadJob(filePath string) (*JobConfig, error) {
	cfg := NewJobConfig("")
	if err := Load(filePath, cfg); err != nil {
		return nil, err
	}
	if cfg.ReferenceName == "" {
		cfg.ReferenceName = cfg.Name
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Save writes v as YAML.
func Save(filePath string, v interface{}) error {
	data, err := yaml.Marshal(v)
	if err != nil {
		return errors.Wrap(err, errors.ErrorTypeConfig, "failed to marshal YAML")
	}
	if err := os.WriteFile(filePath, data, 0o600); err != nil {
		return errors.Wrap(err, errors.ErrorTypeFile, "failed to write config file").
			WithDetail("path", filePath)
	}
	return nil
}

// substituteEnvVars replaces ${NAME} and ${NAME:-default}. Unterminated
// references are left as they are.
func substituteEnvVars(content string) string {
	var b strings.Builder
	for {
		start := strings.Index(content, "${")
		if start == -1 {
			b.WriteString(content)
			return b.String()
		}
		end := strings.Index(content[start:], "}")
		if end == -1 {
			b.WriteString(content)
			return b.String()
		}
		end += start

		b.WriteString(content[:start])
		name, def, hasDefault := strings.Cut(content[start+2:end], ":-")
		value, ok := os.LookupEnv(name)
		if (!ok || value == "") && hasDefault {
			value = def
		}
		b.WriteString(value)
		content = content[end+1:]
	}
}
