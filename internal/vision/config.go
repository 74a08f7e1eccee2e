package vision

import (
	"strings"
	"time"

	"github.com/femi-ajayi/transfer-extractor/constants"
)

// Config tunes the vision backend. Zero values fall back to the documented
// defaults; the API key is validated at wiring time.
type Config struct {
	APIKey    string
	BaseURL   string // default https://api.anthropic.com
	Model     string // default claude-3-5-sonnet-20241022
	MaxTokens int
	// Timeout bounds a single HTTP exchange as a backstop. Attempt
	// deadlines come from the caller's ctx.
	Timeout    time.Duration
	MaxRetries int // extra attempts on 429/5xx and transport errors
	RPM        int // client-side requests per minute
	MaxImageMB int // payload gate before base64 encoding
}

func (c Config) withDefaults() Config {
	if c.BaseURL == "" {
		c.BaseURL = "https://api.anthropic.com"
	}
	c.BaseURL = strings.TrimRight(c.BaseURL, "/")
	if c.Model == "" {
		c.Model = "claude-3-5-sonnet-20241022"
	}
	if c.MaxTokens <= 0 {
		c.MaxTokens = 1024
	}
	if c.Timeout <= 0 {
		c.Timeout = 45 * time.Second
	}
	if c.MaxRetries <= 0 {
		c.MaxRetries = 2
	}
	if c.RPM <= 0 {
		c.RPM = 60
	}
	if c.MaxImageMB <= 0 {
		c.MaxImageMB = constants.MaxImageMBDefault
	}
	return c
}
