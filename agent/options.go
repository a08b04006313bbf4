package agent

import (
	"log/slog"
	"net/http"
	"time"

	"github.com/spetersoncode/difybridge/dify"
)

// StepName is the name of the single step wrapping a Dify run.
const StepName = "chat"

// Options contains configuration for a Dify agent.
type Options struct {
	// BaseURL is the Dify API root. Default is https://api.dify.ai/v1.
	BaseURL string

	// FixEventIDs passes every emitted event through agui.FixEventIDs.
	// Default is true.
	FixEventIDs bool

	// DebugMode logs de-duplication and tool pairing decisions.
	DebugMode bool

	// Timeout bounds each upstream exchange. Default is 60 seconds.
	// Ignored when HTTPClient is set.
	Timeout time.Duration

	// HTTPClient overrides the client used to reach Dify.
	HTTPClient *http.Client

	// Logger receives diagnostic output. Default is slog.Default().
	Logger *slog.Logger

	// BufferSize is the capacity of the channel between the upstream
	// reader and the translator. Default is 64.
	BufferSize int
}

// Option is a functional option for configuring an agent.
type Option func(*Options)

// WithBaseURL sets the Dify API root.
func WithBaseURL(url string) Option {
	return func(o *Options) {
		o.BaseURL = url
	}
}

// WithFixEventIDs enables or disables event id normalisation.
func WithFixEventIDs(enabled bool) Option {
	return func(o *Options) {
		o.FixEventIDs = enabled
	}
}

// WithDebugMode enables translator decision logging.
func WithDebugMode(enabled bool) Option {
	return func(o *Options) {
		o.DebugMode = enabled
	}
}

// WithTimeout sets the upstream HTTP timeout.
func WithTimeout(d time.Duration) Option {
	return func(o *Options) {
		o.Timeout = d
	}
}

// WithHTTPClient sets the HTTP client used to reach Dify.
func WithHTTPClient(c *http.Client) Option {
	return func(o *Options) {
		o.HTTPClient = c
	}
}

// WithLogger sets the logger.
func WithLogger(l *slog.Logger) Option {
	return func(o *Options) {
		o.Logger = l
	}
}

// WithBufferSize sets the reader channel capacity.
func WithBufferSize(n int) Option {
	return func(o *Options) {
		o.BufferSize = n
	}
}

// ApplyOptions applies the given options to a default Options struct.
func ApplyOptions(opts ...Option) *Options {
	o := &Options{
		BaseURL:     dify.DefaultBaseURL,
		FixEventIDs: true,
		Timeout:     dify.DefaultTimeout,
		BufferSize:  64,
	}
	for _, opt := range opts {
		opt(o)
	}
	if o.Logger == nil {
		o.Logger = slog.Default()
	}
	if o.BufferSize <= 0 {
		o.BufferSize = 1
	}
	return o
}
