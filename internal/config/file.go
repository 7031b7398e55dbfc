package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"

	"gopkg.in/yaml.v3"
)

// readFile loads a YAML config file and flattens it into environment-style keys.
//
//	database:
//	  url: postgres://...      -> DATABASE_URL
//	cors:
//	  allowed_origins:         -> CORS_ALLOWED_ORIGINS ("a,b")
//	    - https://punktual.app
//
// Top-level scalar keys are used as-is (upper-cased), so a file may also
// carry plain env names like TRUSTED_PROXY_CIDRS.
func readFile(path string) (map[string]string, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config file: %w", err)
	}

	var doc map[string]any
	if err := yaml.Unmarshal(data, &doc); err != nil {
		return nil, fmt.Errorf("parse config file %s: %w", path, err)
	}

	out := make(map[string]string)
	flatten("", doc, out)
	return out, nil
}

func flatten(prefix string, node map[string]any, out map[string]string) {
	for key, value := range node {
		name := strings.ToUpper(strings.ReplaceAll(key, "-", "_"))
		if prefix != "" {
			name = prefix + "_" + name
		}
		switch v := value.(type) {
		case map[string]any:
			flatten(name, v, out)
		case []any:
			items := make([]string, 0, len(v))
			for _, item := range v {
				items = append(items, scalar(item))
			}
			out[name] = strings.Join(items, ",")
		default:
			out[name] = scalar(v)
		}
	}
}

func scalar(value any) string {
	switch v := value.(type) {
	case nil:
		return ""
	case string:
		return v
	case bool:
		return strconv.FormatBool(v)
	case int:
		return strconv.Itoa(v)
	case float64:
		return strconv.FormatFloat(v, 'f', -1, 64)
	default:
		return fmt.Sprint(v)
	}
}
