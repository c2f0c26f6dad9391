package config

import (
	"time"

	"github.com/lgc202/llmx/dispatch"
)

// ProviderSettings configures one provider adapter.
type ProviderSettings struct {
	APIKey  string `mapstructure:"api_key" json:"api_key"`
	BaseURL string `mapstructure:"base_url" json:"base_url"`
	Model   string `mapstructure:"model" json:"model"`
}

// DispatchSettings is the file-shaped form of dispatch.Policy. Durations are
// parsed from strings ("200ms", "3s").
type DispatchSettings struct {
	MaxAttempts       int           `mapstructure:"max_attempts" json:"max_attempts"`
	MaxElapsed        time.Duration `mapstructure:"max_elapsed" json:"max_elapsed"`
	BackoffBase       time.Duration `mapstructure:"backoff_base" json:"backoff_base"`
	BackoffMax        time.Duration `mapstructure:"backoff_max" json:"backoff_max"`
	BackoffJitter     float64       `mapstructure:"backoff_jitter" json:"backoff_jitter"`
	RespectRetryAfter bool          `mapstructure:"respect_retry_after" json:"respect_retry_after"`
	MaxRetryAfter     time.Duration `mapstructure:"max_retry_after" json:"max_retry_after"`
	AttemptTimeout    time.Duration `mapstructure:"attempt_timeout" json:"attempt_timeout"`
	MaxToolRounds     int           `mapstructure:"max_tool_rounds" json:"max_tool_rounds"`
	MaxReprompts      int           `mapstructure:"max_reprompts" json:"max_reprompts"`
}

// Settings is the top-level llmx configuration block.
type Settings struct {
	OpenAI    ProviderSettings `mapstructure:"openai" json:"openai"`
	Anthropic ProviderSettings `mapstructure:"anthropic" json:"anthropic"`
	Dispatch  DispatchSettings `mapstructure:"dispatch" json:"dispatch"`
}

func Default() Settings {
	p := dispatch.DefaultPolicy()
	return Settings{
		Dispatch: DispatchSettings{
			MaxAttempts:       p.MaxAttempts,
			MaxElapsed:        p.MaxElapsed,
			BackoffBase:       200 * time.Millisecond,
			BackoffMax:        3 * time.Second,
			BackoffJitter:     0.2,
			RespectRetryAfter: p.RespectRetryAfter,
			MaxRetryAfter:     p.MaxRetryAfter,
			AttemptTimeout:    p.AttemptTimeout,
			MaxToolRounds:     p.MaxToolRounds,
			MaxReprompts:      p.MaxReprompts,
		},
	}
}

// LoadSettings loads Settings from path with the standard defaults and
// LLMX_* environment bindings applied.
func LoadSettings(path string) (*Config[Settings], error) {
	return Load(path,
		WithDefaults[Settings](defaultsMap()),
		WithEnv[Settings]("LLMX"),
	)
}

func defaultsMap() map[string]any {
	d := Default().Dispatch
	return map[string]any{
		"dispatch.max_attempts":        d.MaxAttempts,
		"dispatch.backoff_base":        d.BackoffBase.String(),
		"dispatch.backoff_max":         d.BackoffMax.String(),
		"dispatch.backoff_jitter":      d.BackoffJitter,
		"dispatch.respect_retry_after": d.RespectRetryAfter,
		"dispatch.max_retry_after":     d.MaxRetryAfter.String(),
		"dispatch.max_tool_rounds":     d.MaxToolRounds,
		"dispatch.max_reprompts":       d.MaxReprompts,
	}
}

// Policy converts the file-shaped settings into a dispatch.Policy, filling
// zero fields from the defaults.
func (s Settings) Policy() dispatch.Policy {
	p := dispatch.DefaultPolicy()
	ds := s.Dispatch
	if ds.MaxAttempts > 0 {
		p.MaxAttempts = ds.MaxAttempts
	}
	if ds.MaxElapsed > 0 {
		p.MaxElapsed = ds.MaxElapsed
	}
	if ds.BackoffBase > 0 || ds.BackoffMax > 0 || ds.BackoffJitter > 0 {
		b := dispatch.ExponentialBackoff{
			Base:   ds.BackoffBase,
			Max:    ds.BackoffMax,
			Jitter: ds.BackoffJitter,
		}
		if b.Base <= 0 {
			b.Base = 200 * time.Millisecond
		}
		if b.Max <= 0 {
			b.Max = 3 * time.Second
		}
		p.Backoff = b
	}
	p.RespectRetryAfter = ds.RespectRetryAfter
	if ds.MaxRetryAfter > 0 {
		p.MaxRetryAfter = ds.MaxRetryAfter
	}
	if ds.AttemptTimeout > 0 {
		p.AttemptTimeout = ds.AttemptTimeout
	}
	if ds.MaxToolRounds > 0 {
		p.MaxToolRounds = ds.MaxToolRounds
	}
	if ds.MaxReprompts > 0 {
		p.MaxReprompts = ds.MaxReprompts
	}
	return p
}
