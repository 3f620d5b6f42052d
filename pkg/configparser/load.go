package configparser

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

var ErrNoFilePath = errors.New("no file path provided")

// LoadAndParseYaml loads an optional .env file and the YAML file into the
// environment, then fills cfg from its env tags.
// Variables already present in the environment always win.
func LoadAndParseYaml(filepath string, cfg any) error {
	if err := LoadDotEnv(".env"); err != nil {
		return err
	}

	if err := LoadYamlFile(filepath); err != nil && !errors.Is(err, os.ErrNotExist) {
		return err
	}

	return Parse(cfg)
}

// LoadDotEnv loads key=value pairs from path when the file exists.
func LoadDotEnv(path string) error {
	if _, err := os.Stat(path); err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil
		}
		return fmt.Errorf("could not stat env file: %w", err)
	}
	if err := godotenv.Load(path); err != nil {
		return fmt.Errorf("could not load env file: %w", err)
	}
	return nil
}

// LoadYamlFile reads a YAML file and loads variables into the environment.
// Nested keys are joined with "_" and upper-cased: pooling.max_seats -> POOLING_MAX_SEATS.
func LoadYamlFile(filepath string) error {
	if filepath == "" {
		return ErrNoFilePath
	}

	data, err := os.ReadFile(filepath)
	if err != nil {
		return fmt.Errorf("could not open YAML file: %w", err)
	}

	var root map[string]any
	if err := yaml.Unmarshal(data, &root); err != nil {
		return fmt.Errorf("error reading YAML file: %w", err)
	}

	vars := make(map[string]string)
	flatten("", root, vars)

	for key, value := range vars {
		// Set the environment variable only if it's not already set
		if os.Getenv(key) != "" {
			continue
		}
		if err := os.Setenv(key, expand(value)); err != nil {
			return fmt.Errorf("could not set env var %s: %w", key, err)
		}
	}

	return nil
}

func flatten(prefix string, node map[string]any, out map[string]string) {
	for k, v := range node {
		key := strings.ToUpper(k)
		if prefix != "" {
			key = prefix + "_" + key
		}

		switch val := v.(type) {
		case map[string]any:
			flatten(key, val, out)
		case []any:
			parts := make([]string, 0, len(val))
			for _, item := range val {
				parts = append(parts, fmt.Sprint(item))
			}
			out[key] = strings.Join(parts, ",")
		case nil:
			// "key:" without a value does not represent a variable
		default:
			out[key] = fmt.Sprint(val)
		}
	}
}

// expand resolves the ${VAR:-default} substitution syntax.
func expand(value string) string {
	if !strings.HasPrefix(value, "${") || !strings.HasSuffix(value, "}") {
		return value
	}

	inner := value[2 : len(value)-1]
	name, def, found := strings.Cut(inner, ":-")
	if env := os.Getenv(strings.TrimSpace(name)); env != "" {
		return env
	}
	if found {
		return strings.TrimSpace(def)
	}
	return ""
}

// parseBool accepts the spellings operators tend to put in YAML.
func parseBool(s string) (bool, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "yes", "on":
		return true, nil
	case "no", "off":
		return false, nil
	}
	return strconv.ParseBool(s)
}
