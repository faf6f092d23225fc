package telegram

import (
	"context"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"golang.org/x/time/rate"

	"github.com/dwizi/region-relay/internal/dispatch"
	"github.com/dwizi/region-relay/internal/gateway"
	"github.com/dwizi/region-relay/internal/heartbeat"
)

const component = "connector:telegram"

type MessageHandler interface {
	HandleMessage(ctx context.Context, message gateway.Message) error
}

type Dispatcher interface {
	Enqueue(job dispatch.Job) (dispatch.Job, error)
}

type Connector struct {
	token       string
	apiBase     string
	pollSeconds int
	commandSync bool
	maxRetries  int
	retryUnit   time.Duration
	limiter     *rate.Limiter
	handler     MessageHandler
	dispatcher  Dispatcher
	httpClient  *http.Client
	logger      *slog.Logger
	botUsername string
	offset      int64
	reporter    heartbeat.Reporter
}

type Option func(*Connector)

func WithCommandSync(enabled bool) Option {
	return func(connector *Connector) {
		connector.commandSync = enabled
	}
}

// WithRateLimit caps outbound Bot API calls per second.
func WithRateLimit(perSecond float64, burst int) Option {
	return func(connector *Connector) {
		if perSecond <= 0 {
			connector.limiter = rate.NewLimiter(rate.Inf, 1)
			return
		}
		if burst < 1 {
			burst = 1
		}
		connector.limiter = rate.NewLimiter(rate.Limit(perSecond), burst)
	}
}

// WithMaxSendRetries bounds how many retry_after pauses one call may take.
func WithMaxSendRetries(retries int) Option {
	return func(connector *Connector) {
		if retries >= 0 {
			connector.maxRetries = retries
		}
	}
}

// WithDispatcher routes inbound messages through per-chat lanes instead of
// handling them on the polling goroutine.
func WithDispatcher(dispatcher Dispatcher) Option {
	return func(connector *Connector) {
		connector.dispatcher = dispatcher
	}
}

func New(token, apiBase string, pollSeconds int, logger *slog.Logger, opts ...Option) *Connector {
	if strings.TrimSpace(apiBase) == "" {
		apiBase = "https://api.telegram.org"
	}
	if pollSeconds < 1 {
		pollSeconds = 25
	}
	connector := &Connector{
		token:       strings.TrimSpace(token),
		apiBase:     strings.TrimRight(strings.TrimSpace(apiBase), "/"),
		pollSeconds: pollSeconds,
		commandSync: true,
		maxRetries:  5,
		retryUnit:   time.Second,
		limiter:     rate.NewLimiter(rate.Limit(25), 5),
		httpClient: &http.Client{
			Timeout: time.Duration(pollSeconds+10) * time.Second,
		},
		logger: logger.With("connector", "telegram"),
	}
	for _, opt := range opts {
		if opt != nil {
			opt(connector)
		}
	}
	return connector
}

func (c *Connector) Name() string {
	return "telegram"
}

func (c *Connector) SetHeartbeatReporter(reporter heartbeat.Reporter) {
	c.reporter = reporter
}

// SetHandler wires the gateway after construction; the gateway itself needs
// the connector as its Sender.
func (c *Connector) SetHandler(handler MessageHandler) {
	c.handler = handler
}

func (c *Connector) Enabled() bool {
	return c.token != ""
}
