package config

import (
	"os"
	"strings"
)

// Secrets resolves named credentials. Absence means "not configured", never an error.
type Secrets interface {
	Lookup(value, envName string) (string, bool)
}

// EnvSecrets prefers an explicit value and falls back to the named environment variable.
type EnvSecrets struct {
	LookupEnv func(string) (string, bool)
}

func (s EnvSecrets) Lookup(value, envName string) (string, bool) {
	if v := strings.TrimSpace(value); v != "" {
		return v, true
	}
	if envName == "" {
		return "", false
	}
	lookup := s.LookupEnv
	if lookup == nil {
		lookup = os.LookupEnv
	}
	v, ok := lookup(envName)
	v = strings.TrimSpace(v)
	return v, ok && v != ""
}
