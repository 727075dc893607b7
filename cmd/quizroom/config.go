package main

import (
	"fmt"
	"os"
	"strconv"

	"gopkg.in/yaml.v3"
)

// Config is the yaml settings file. Everything has a sensible default so
// the file is optional.
type Config struct {
	Game struct {
		MaxPlayers      int `yaml:"max_players"`
		QuestionBatch   int `yaml:"question_batch"`
		QuestionSeconds int `yaml:"question_seconds"`
	} `yaml:"game"`
	Server struct {
		AllowedOrigins []string `yaml:"allowed_origins"`
	} `yaml:"server"`
}

func defaultConfig() *Config {
	cfg := &Config{}
	cfg.Game.MaxPlayers = 10
	cfg.Game.QuestionBatch = 10
	cfg.Game.QuestionSeconds = 15
	return cfg
}

func loadConfig(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	config := defaultConfig()
	if err := yaml.Unmarshal(data, config); err != nil {
		return nil, fmt.Errorf("failed to parse config: %w", err)
	}
	return config, nil
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvAsInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if intValue, err := strconv.Atoi(value); err == nil {
			return intValue
		}
	}
	return defaultValue
}
