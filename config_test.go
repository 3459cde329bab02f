package vtex

import (
	"errors"
	"testing"

	"github.com/gogpu/gputypes"
)

func TestDefaultConfig(t *testing.T) {
	cfg := DefaultConfig()
	if err := cfg.Validate(); err != nil {
		t.Fatalf("DefaultConfig().Validate() = %v", err)
	}
	if cfg.VirtualSize != 16384 || cfg.PageSize != 128 {
		t.Errorf("DefaultConfig() sizes = %d/%d, want 16384/128", cfg.VirtualSize, cfg.PageSize)
	}
}

func TestConfig_Validate(t *testing.T) {
	tests := []struct {
		name   string
		modify func(*Config)
		field  string
	}{
		{"virtual not pow2", func(c *Config) { c.VirtualSize = 1000 }, "VirtualSize"},
		{"virtual zero", func(c *Config) { c.VirtualSize = 0 }, "VirtualSize"},
		{"page not pow2", func(c *Config) { c.PageSize = 100 }, "PageSize"},
		{"page larger than virtual", func(c *Config) { c.VirtualSize = 64; c.PageSize = 128 }, "PageSize"},
		{"no slots", func(c *Config) { c.MaxResident = 0 }, "MaxResident"},
		{"cache grid too large", func(c *Config) { c.MaxResident = 256*256 + 1 }, "MaxResident"},
		{"no formats", func(c *Config) { c.Formats = nil }, "Formats"},
		{"unsupported format", func(c *Config) {
			c.Formats = []gputypes.TextureFormat{gputypes.TextureFormatUndefined}
		}, "Formats"},
		{"bad corner", func(c *Config) { c.StartCorner = 7 }, "StartCorner"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := DefaultConfig()
			tt.modify(&cfg)
			err := cfg.Validate()
			var cerr *ConfigError
			if !errors.As(err, &cerr) {
				t.Fatalf("Validate() = %v, want *ConfigError", err)
			}
			if cerr.Field != tt.field {
				t.Errorf("ConfigError.Field = %q, want %q", cerr.Field, tt.field)
			}
		})
	}
}

func TestConfig_ValidateCacheFormats(t *testing.T) {
	formats := []gputypes.TextureFormat{
		gputypes.TextureFormatRGBA8Unorm,
		gputypes.TextureFormatRGBA8UnormSrgb,
		gputypes.TextureFormatBGRA8Unorm,
		gputypes.TextureFormatBGRA8UnormSrgb,
		gputypes.TextureFormatR8Unorm,
	}
	for _, f := range formats {
		cfg := DefaultConfig()
		cfg.Formats = []gputypes.TextureFormat{f}
		if err := cfg.Validate(); err != nil {
			t.Errorf("Validate() with format %v = %v, want nil", f, err)
		}
	}
}

func TestConfig_ValidateLargestGrid(t *testing.T) {
	cfg := DefaultConfig()
	cfg.MaxResident = 256 * 256
	if err := cfg.Validate(); err != nil {
		t.Errorf("Validate() with a 256x256 grid = %v, want nil", err)
	}
}

func TestCacheSide(t *testing.T) {
	tests := []struct{ n, want int }{
		{1, 1},
		{2, 2},
		{4, 2},
		{5, 3},
		{256, 16},
		{257, 17},
		{65536, 256},
	}
	for _, tt := range tests {
		if got := cacheSide(tt.n); got != tt.want {
			t.Errorf("cacheSide(%d) = %d, want %d", tt.n, got, tt.want)
		}
	}
}

func TestConfigError(t *testing.T) {
	err := &ConfigError{Field: "PageSize", Reason: "must be power of 2"}
	if got, want := err.Error(), "vtex: invalid config.PageSize: must be power of 2"; got != want {
		t.Errorf("Error() = %q, want %q", got, want)
	}
}
