package config

import (
	"github.com/dmitrijs2005/gophvault/internal/flagx"
	"github.com/dmitrijs2005/gophvault/internal/timex"
)

type fileS3 struct {
	Bucket    string `json:"bucket" yaml:"bucket"`
	Prefix    string `json:"prefix" yaml:"prefix"`
	Region    string `json:"region" yaml:"region"`
	Endpoint  string `json:"endpoint" yaml:"endpoint"`
	AccessKey string `json:"access_key" yaml:"access_key"`
	SecretKey string `json:"secret_key" yaml:"secret_key"`
	PathStyle bool   `json:"path_style" yaml:"path_style"`
}

// fileConfig is the on-disk shape of the client config.
type fileConfig struct {
	Store              string         `json:"store" yaml:"store"`
	SQLitePath         string         `json:"sqlite_path" yaml:"sqlite_path"`
	ServerEndpointAddr string         `json:"server_endpoint_addr" yaml:"server_endpoint_addr"`
	S3                 fileS3         `json:"s3" yaml:"s3"`
	IdleWindow         timex.Duration `json:"idle_window" yaml:"idle_window"`
	ClipboardClear     timex.Duration `json:"clipboard_clear" yaml:"clipboard_clear"`
	Iterations         int            `json:"iterations" yaml:"iterations"`
	Cipher             string         `json:"cipher" yaml:"cipher"`
	StrictKeyCheck     bool           `json:"strict_key_check" yaml:"strict_key_check"`
	LogLevel           string         `json:"log_level" yaml:"log_level"`
}

// parseFile overlays the non-empty fields of the config file named by
// -c/-config. Without the flag nothing is loaded.
func parseFile(config *Config, args []string) error {
	path := flagx.ConfigFileFlagFrom(args)
	if path == "" {
		return nil
	}

	c := &fileConfig{}
	if err := flagx.DecodeConfigFile(path, c); err != nil {
		return err
	}

	setString(&config.Store, c.Store)
	setString(&config.SQLitePath, c.SQLitePath)
	setString(&config.ServerEndpointAddr, c.ServerEndpointAddr)
	setString(&config.S3.Bucket, c.S3.Bucket)
	setString(&config.S3.Prefix, c.S3.Prefix)
	setString(&config.S3.Region, c.S3.Region)
	setString(&config.S3.Endpoint, c.S3.Endpoint)
	setString(&config.S3.AccessKey, c.S3.AccessKey)
	setString(&config.S3.SecretKey, c.S3.SecretKey)
	setString(&config.Cipher, c.Cipher)
	setString(&config.LogLevel, c.LogLevel)

	if c.S3.PathStyle {
		config.S3.PathStyle = true
	}
	if c.StrictKeyCheck {
		config.StrictKeyCheck = true
	}
	if c.IdleWindow.Duration != 0 {
		config.IdleWindow = c.IdleWindow.Duration
	}
	if c.ClipboardClear.Duration != 0 {
		config.ClipboardClear = c.ClipboardClear.Duration
	}
	if c.Iterations != 0 {
		config.Iterations = c.Iterations
	}
	return nil
}

func setString(dst *string, v string) {
	if v != "" {
		*dst = v
	}
}
