package server

import (
	"encoding/json"
	"fmt"
	"os"
	"time"

	"movemate/oracle"
)

type Config struct {
	Addr             string `json:"addr"`
	OraclePath       string `json:"oracle_path"`
	OracleMoveTimeMs int    `json:"oracle_move_time_ms"`
	OracleEvalDepth  int    `json:"oracle_eval_depth"`
	// ThinkTimeMs and MaxDepth override the negamax bots' limits when > 0.
	ThinkTimeMs int   `json:"think_time_ms"`
	MaxDepth    int   `json:"max_depth"`
	Seed        int64 `json:"seed"`
}

func DefaultConfig() Config {
	return Config{
		Addr:             ":8080",
		OraclePath:       oracle.DefaultPath,
		OracleMoveTimeMs: int(oracle.DefaultMoveTime / time.Millisecond),
		OracleEvalDepth:  oracle.DefaultEvalDepth,
	}
}

// LoadConfig reads a JSON config file on top of DefaultConfig. An empty path
// returns the defaults.
func LoadConfig(path string) (Config, error) {
	cfg := DefaultConfig()
	if path == "" {
		return cfg, nil
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return cfg, fmt.Errorf("read config: %w", err)
	}
	if err := json.Unmarshal(data, &cfg); err != nil {
		return cfg, fmt.Errorf("parse config %s: %w", path, err)
	}
	return cfg, nil
}

func (c Config) oracleOptions() oracle.Options {
	return oracle.Options{
		Path:     c.OraclePath,
		MoveTime: time.Duration(c.OracleMoveTimeMs) * time.Millisecond,
	}
}
