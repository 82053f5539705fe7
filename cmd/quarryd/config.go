package main

import (
	"errors"
	"fmt"
	"os"

	"gopkg.in/yaml.v2"
)

type config struct {
	Name       string `yaml:"name"`
	MaxPlayers int    `yaml:"max_players"`
	OnlineMode bool   `yaml:"online_mode"`

	Network struct {
		PortV4               uint16 `yaml:"port_v4"`
		PortV6               uint16 `yaml:"port_v6"`
		Compression          string `yaml:"compression"`
		CompressionThreshold uint16 `yaml:"compression_threshold"`
	} `yaml:"network"`

	World struct {
		Name           string `yaml:"name"`
		GameMode       string `yaml:"gamemode"`
		Seed           uint64 `yaml:"seed"`
		MaxChunkRadius int32  `yaml:"max_chunk_radius"`
	} `yaml:"world"`
}

func defaultConfig() config {
	var c config
	c.Name = "Quarry Server"
	c.MaxPlayers = 20
	c.OnlineMode = true
	c.Network.PortV4 = 19132
	c.Network.PortV6 = 19133
	c.Network.Compression = "flate"
	c.Network.CompressionThreshold = 256
	c.World.Name = "world"
	c.World.GameMode = "Survival"
	c.World.MaxChunkRadius = 8
	return c
}

// loadConfig reads the YAML config, writing the defaults out first
// if no file exists yet.
func loadConfig(path string) (config, error) {
	cfg := defaultConfig()

	data, err := os.ReadFile(path)
	if errors.Is(err, os.ErrNotExist) {
		out, err := yaml.Marshal(cfg)
		if err != nil {
			return cfg, err
		}
		if err := os.WriteFile(path, out, 0644); err != nil {
			return cfg, fmt.Errorf("write default config: %w", err)
		}
		return cfg, nil
	}
	if err != nil {
		return cfg, err
	}

	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return cfg, fmt.Errorf("parse config: %w", err)
	}
	return cfg, nil
}
