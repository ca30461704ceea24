package main

import (
	"github.com/BurntSushi/toml"
)

// fileConfig mirrors the CLI flags that make sense to persist in a
// config file. Only fields actually present in the TOML file
// override the flag/built-in defaults; toml.MetaData.IsDefined does
// the overlay check.
type fileConfig struct {
	Port      string `toml:"port"`
	SSH       string `toml:"ssh"`
	Baud      int    `toml:"baud"`
	DataBits  int    `toml:"data_bits"`
	Parity    string `toml:"parity"`
	StopBits  int    `toml:"stop_bits"`
	ByteDelay int    `toml:"byte_delay"`
	TimeoutMS int    `toml:"timeout_ms"`
	Debug     bool   `toml:"debug"`
}

// loadFileConfig reads path and applies any fields it defines onto
// cfg, leaving fields absent from the file untouched.
func loadFileConfig(path string, cfg *cliConfig) error {
	var raw fileConfig
	meta, err := toml.DecodeFile(path, &raw)
	if err != nil {
		return err
	}

	if meta.IsDefined("port") {
		cfg.Port = raw.Port
	}
	if meta.IsDefined("ssh") {
		cfg.SSH = raw.SSH
	}
	if meta.IsDefined("baud") {
		cfg.Baud = raw.Baud
	}
	if meta.IsDefined("data_bits") {
		cfg.DataBits = raw.DataBits
	}
	if meta.IsDefined("parity") {
		cfg.Parity = raw.Parity
	}
	if meta.IsDefined("stop_bits") {
		cfg.StopBits = raw.StopBits
	}
	if meta.IsDefined("byte_delay") {
		cfg.ByteDelay = raw.ByteDelay
	}
	if meta.IsDefined("timeout_ms") {
		cfg.TimeoutMS = raw.TimeoutMS
	}
	if meta.IsDefined("debug") {
		cfg.Debug = raw.Debug
	}
	return nil
}
