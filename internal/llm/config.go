package llm

import (
	"strings"
	"time"

	"github.com/femi-ajayi/transfer-extractor/constants"
)

// Config tunes the chat-completions backend. Zero values fall back to the
// documented defaults; the API key has no default and is validated at
// wiring time.
type Config struct {
	APIKey      string
	BaseURL     string  // default https://api.openai.com/v1
	Model       string  // default gpt-4o-mini
	Temperature float64 // 0..2
	// Timeout bounds a single HTTP exchange as a backstop. Attempt
	// deadlines come from the caller's ctx.
	Timeout    time.Duration
	MaxRetries int // send attempts on 429/5xx and transport errors
	RPM        int // client-side requests per minute
	MaxImageMB int // inline data-URL size gate
}

func (c Config) withDefaults() Config {
	if c.BaseURL == "" {
		c.BaseURL = "https://api.openai.com/v1"
	}
	c.BaseURL = strings.TrimRight(c.BaseURL, "/")
	if c.Model == "" {
		c.Model = "gpt-4o-mini"
	}
	if c.Timeout <= 0 {
		c.Timeout = 45 * time.Second
	}
	if c.MaxRetries <= 0 {
		c.MaxRetries = 3
	}
	if c.RPM <= 0 {
		c.RPM = 60
	}
	if c.MaxImageMB <= 0 {
		c.MaxImageMB = constants.MaxImageMBDefault
	}
	return c
}
