// Copyright (c) 2020, Cloudflare. All rights reserved.
//
// Redistribution and use in source and binary forms, with or without
// modification, are permitted provided that the following conditions are met:
// 1. Redistributions of source code must retain the above copyright notice,
// this list of conditions and the following disclaimer.
// 2. Redistributions in binary form must reproduce the above copyright notice,
// this list of conditions and the following disclaimer in the documentation
// and/or other materials provided with the distribution.
// 3. Neither the name of the copyright holder nor the names of its contributors
// may be used to endorse or promote products derived from this software without
// specific prior written permission.
//
// THIS SOFTWARE IS PROVIDED BY THE COPYRIGHT HOLDERS AND CONTRIBUTORS "AS IS"
// AND ANY EXPRESS OR IMPLIED WARRANTIES, INCLUDING, BUT NOT LIMITED TO, THE
// IMPLIED WARRANTIES OF MERCHANTABILITY AND FITNESS FOR A PARTICULAR PURPOSE
// ARE DISCLAIMED. IN NO EVENT SHALL THE COPYRIGHT HOLDER OR CONTRIBUTORS BE
// LIABLE FOR ANY DIRECT, INDIRECT, INCIDENTAL, SPECIAL, EXEMPLARY, OR
// CONSEQUENTIAL DAMAGES (INCLUDING, BUT NOT LIMITED TO, PROCUREMENT OF
// SUBSTITUTE GOODS OR SERVICES; LOSS OF USE, DATA, OR PROFITS; OR BUSINESS
// INTERRUPTION) HOWEVER CAUSED AND ON ANY THEORY OF LIABILITY, WHETHER IN
// CONTRACT, STRICT LIABILITY, OR TORT (INCLUDING NEGLIGENCE OR OTHERWISE)
// ARISING IN ANY WAY OUT OF THE USE OF THIS SOFTWARE, EVEN IF ADVISED OF THE
// POSSIBILITY OF SUCH DAMAGE.

// Package config holds the constants that tie the layers to one particular
// onion, and the settings of the driver and the peel service.
//
// The defaults are the values for the published puzzle instance. They were
// found by inspecting that instance and are not derived by any algorithm.
package config

import (
	"io"
	"net/netip"
	"strings"

	"github.com/cloudflare/data-onion/src/common"
	"github.com/pkg/errors"
	"github.com/spf13/viper"
	"gopkg.in/yaml.v3"
)

// Puzzle instance constants.
const (
	// DefaultStreamKeyOffset is the position of a 32 byte run of "=" in the
	// plaintext of the XOR layer.
	DefaultStreamKeyOffset = 109 * 32
	// DefaultStreamKeyLength is the length of the repeating XOR key.
	DefaultStreamKeyLength = 32
	// DefaultKnownPlaintext is the byte repeated across the key window.
	DefaultKnownPlaintext = "="

	DefaultFilterSource          = "10.1.1.10"
	DefaultFilterDestination     = "10.1.1.200"
	DefaultFilterDestinationPort = 42069
)

// Driver and service defaults.
const (
	DefaultOutputDir     = "."
	DefaultOutputPattern = "payload%d.txt"
	DefaultServerAddr    = "localhost:8080"
	DefaultCacheSize     = 256

	// EnvPrefix prefixes environment overrides, e.g. ONION_SERVER_ADDR.
	EnvPrefix = "ONION"
)

// Config is the full configuration.
type Config struct {
	Layers LayersConfig `mapstructure:"layers" yaml:"layers"`
	Output OutputConfig `mapstructure:"output" yaml:"output"`
	Server ServerConfig `mapstructure:"server" yaml:"server"`
}

// LayersConfig holds the per instance constants of the layers.
type LayersConfig struct {
	StreamKey StreamKeyConfig `mapstructure:"stream_key" yaml:"stream_key"`
	Filter    FilterConfig    `mapstructure:"filter" yaml:"filter"`
}

// StreamKeyConfig locates the known plaintext the XOR layer derives its key
// from.
type StreamKeyConfig struct {
	Offset         int    `mapstructure:"offset" yaml:"offset"`
	Length         int    `mapstructure:"length" yaml:"length"`
	KnownPlaintext string `mapstructure:"known_plaintext" yaml:"known_plaintext"`
}

// FilterConfig selects the traffic kept by the network layer.
type FilterConfig struct {
	Source          string `mapstructure:"source" yaml:"source"`
	Destination     string `mapstructure:"destination" yaml:"destination"`
	DestinationPort uint16 `mapstructure:"destination_port" yaml:"destination_port"`
}

// OutputConfig controls where the driver writes each peeled layer.
type OutputConfig struct {
	Dir     string `mapstructure:"dir" yaml:"dir"`
	Pattern string `mapstructure:"pattern" yaml:"pattern"`
}

// ServerConfig configures the peel service.
type ServerConfig struct {
	Addr      string `mapstructure:"addr" yaml:"addr"`
	CacheSize int    `mapstructure:"cache_size" yaml:"cache_size"`
	CORS      bool   `mapstructure:"cors" yaml:"cors"`
}

// Default returns the configuration for the published onion.
func Default() *Config {
	return &Config{
		Layers: LayersConfig{
			StreamKey: StreamKeyConfig{
				Offset:         DefaultStreamKeyOffset,
				Length:         DefaultStreamKeyLength,
				KnownPlaintext: DefaultKnownPlaintext,
			},
			Filter: FilterConfig{
				Source:          DefaultFilterSource,
				Destination:     DefaultFilterDestination,
				DestinationPort: DefaultFilterDestinationPort,
			},
		},
		Output: OutputConfig{
			Dir:     DefaultOutputDir,
			Pattern: DefaultOutputPattern,
		},
		Server: ServerConfig{
			Addr:      DefaultServerAddr,
			CacheSize: DefaultCacheSize,
			CORS:      true,
		},
	}
}

// NewViper returns a viper instance preloaded with the defaults and reading
// ONION_* environment overrides.
func NewViper() *viper.Viper {
	v := viper.New()

	d := Default()
	v.SetDefault("layers.stream_key.offset", d.Layers.StreamKey.Offset)
	v.SetDefault("layers.stream_key.length", d.Layers.StreamKey.Length)
	v.SetDefault("layers.stream_key.known_plaintext", d.Layers.StreamKey.KnownPlaintext)
	v.SetDefault("layers.filter.source", d.Layers.Filter.Source)
	v.SetDefault("layers.filter.destination", d.Layers.Filter.Destination)
	v.SetDefault("layers.filter.destination_port", d.Layers.Filter.DestinationPort)
	v.SetDefault("output.dir", d.Output.Dir)
	v.SetDefault("output.pattern", d.Output.Pattern)
	v.SetDefault("server.addr", d.Server.Addr)
	v.SetDefault("server.cache_size", d.Server.CacheSize)
	v.SetDefault("server.cors", d.Server.CORS)

	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	return v
}

// FromViper reads path into v, if path is not empty, and decodes the result.
func FromViper(v *viper.Viper, path string) (*Config, error) {
	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return nil, common.ErrorInvalidConfig.Wrap(err)
		}
	}

	cfg := &Config{}
	if err := v.Unmarshal(cfg); err != nil {
		return nil, common.ErrorInvalidConfig.Wrap(err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return cfg, nil
}

// Load returns the defaults overridden by the file at path (YAML, JSON or
// TOML, by extension) and by the environment. An empty path skips the file.
func Load(path string) (*Config, error) {
	return FromViper(NewViper(), path)
}

// Validate checks that the configuration can be used to build the layers.
func (c *Config) Validate() error {
	sk := c.Layers.StreamKey
	if sk.Offset < 0 || sk.Length <= 0 {
		return errors.Wrapf(common.ErrorInvalidConfig, "stream key window %d+%d", sk.Offset, sk.Length)
	}

	if len(sk.KnownPlaintext) != 1 {
		return errors.Wrapf(common.ErrorInvalidConfig, "known plaintext %q must be a single byte", sk.KnownPlaintext)
	}

	if _, err := c.Layers.Filter.SourceAddr(); err != nil {
		return err
	}

	if _, err := c.Layers.Filter.DestinationAddr(); err != nil {
		return err
	}

	if !strings.Contains(c.Output.Pattern, "%d") {
		return errors.Wrapf(common.ErrorInvalidConfig, "output pattern %q has no %%d verb", c.Output.Pattern)
	}

	if c.Server.CacheSize <= 0 {
		return errors.Wrapf(common.ErrorInvalidConfig, "cache size %d", c.Server.CacheSize)
	}

	return nil
}

// KnownPlaintextWindow returns the plaintext expected under the key window.
func (s StreamKeyConfig) KnownPlaintextWindow() []byte {
	return []byte(strings.Repeat(s.KnownPlaintext, s.Length))
}

// SourceAddr parses the source address.
func (f FilterConfig) SourceAddr() (netip.Addr, error) {
	return parseIPv4(f.Source)
}

// DestinationAddr parses the destination address.
func (f FilterConfig) DestinationAddr() (netip.Addr, error) {
	return parseIPv4(f.Destination)
}

func parseIPv4(s string) (netip.Addr, error) {
	addr, err := netip.ParseAddr(s)
	if err != nil {
		return netip.Addr{}, common.ErrorInvalidConfig.Wrap(err)
	}

	if !addr.Is4() {
		return netip.Addr{}, errors.Wrapf(common.ErrorInvalidConfig, "%s is not an IPv4 address", s)
	}

	return addr, nil
}

// Dump writes c as YAML.
func (c *Config) Dump(w io.Writer) error {
	enc := yaml.NewEncoder(w)
	enc.SetIndent(2)

	if err := enc.Encode(c); err != nil {
		return errors.Wrap(err, "encode config")
	}

	return enc.Close()
}
