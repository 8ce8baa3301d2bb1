package config

import (
	"fmt"
	"log/slog"
	"os"

	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/v2"
	"github.com/sweetpotato0/travel-router/errors"
	"github.com/sweetpotato0/travel-router/llm"
)

// LoadGovernance reads the admin-pinned model parameters. The file is JSON or YAML, keyed
// either <backend>.<role>.<param> or, for a single-backend file, <role>.<param>; the
// latter applies to backend. A missing file yields no governance.
func LoadGovernance(path, backend string, logger *slog.Logger) (llm.Governance, error) {
	if path == "" {
		return nil, nil
	}
	k := koanf.New(".")
	// YAML is a superset of JSON, so one parser serves both.
	if err := k.Load(file.Provider(path), yaml.Parser()); err != nil {
		if errors.Is(err, os.ErrNotExist) {
			if logger != nil {
				logger.Warn("model config not found, using defaults", "path", path)
			}
			return nil, nil
		}
		return nil, fmt.Errorf("load model config %s: %w", path, err)
	}

	roleKeyed := k.Exists(string(llm.RoleClassifier)) || k.Exists(string(llm.RoleGenerator))
	if roleKeyed {
		var roles map[string]llm.RoleParams
		if err := k.Unmarshal("", &roles); err != nil {
			return nil, fmt.Errorf("parse model config %s: %w", path, err)
		}
		return llm.Governance{backend: roles}, nil
	}

	var gov llm.Governance
	if err := k.Unmarshal("", &gov); err != nil {
		return nil, fmt.Errorf("parse model config %s: %w", path, err)
	}
	return gov, nil
}
