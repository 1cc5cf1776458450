package push

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"strings"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/sony/gobreaker"
	"go.uber.org/zap"
)

// MaxBatch is the largest number of messages the Expo push API accepts in
// one request.
const MaxBatch = 100

// Message is one outbound push to one device.
type Message struct {
	To       string            `json:"to"`
	Title    string            `json:"title,omitempty"`
	Body     string            `json:"body,omitempty"`
	Data     map[string]string `json:"data,omitempty"`
	Sound    string            `json:"sound,omitempty"`
	Priority string            `json:"priority,omitempty"`
}

// Ticket is the gateway's per-message answer, in request order.
type Ticket struct {
	ID      string `json:"id,omitempty"`
	Status  string `json:"status"`
	Message string `json:"message,omitempty"`
	Details struct {
		Error string `json:"error,omitempty"`
	} `json:"details,omitempty"`
}

const (
	TicketOK                 = "ok"
	TicketError              = "error"
	ErrorDeviceNotRegistered = "DeviceNotRegistered"
)

//go:generate mockgen -destination=mocks/mock_gateway.go -package=mocks github.com/peteat123/Peteat-sub001/internal/push Gateway,Sender

// Gateway submits one batch of at most MaxBatch messages.
type Gateway interface {
	Send(ctx context.Context, msgs []Message) ([]Ticket, error)
}

type ExpoConfig struct {
	Endpoint             string
	AccessToken          string
	Timeout              time.Duration
	RetryInitialInterval time.Duration
	RetryMaxElapsed      time.Duration
	BreakerFailures      uint32
	BreakerOpen          time.Duration
}

type ExpoGateway struct {
	cfg  ExpoConfig
	http *http.Client
	cb   *gobreaker.CircuitBreaker
	log  *zap.Logger
}

type statusError struct {
	code int
	body string
}

func (e *statusError) Error() string {
	return fmt.Sprintf("push gateway status %d: %s", e.code, e.body)
}

func NewExpoGateway(cfg ExpoConfig, log *zap.Logger) *ExpoGateway {
	if cfg.Timeout <= 0 {
		cfg.Timeout = 10 * time.Second
	}
	if cfg.RetryInitialInterval <= 0 {
		cfg.RetryInitialInterval = 200 * time.Millisecond
	}
	if cfg.RetryMaxElapsed <= 0 {
		cfg.RetryMaxElapsed = 5 * time.Second
	}
	if cfg.BreakerFailures == 0 {
		cfg.BreakerFailures = 5
	}
	if cfg.BreakerOpen <= 0 {
		cfg.BreakerOpen = 30 * time.Second
	}
	tr := &http.Transport{
		DialContext:     (&net.Dialer{Timeout: 5 * time.Second}).DialContext,
		MaxIdleConns:    20,
		IdleConnTimeout: 90 * time.Second,
	}
	st := gobreaker.Settings{
		Name:        "expo-push",
		MaxRequests: 1,
		Timeout:     cfg.BreakerOpen,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= cfg.BreakerFailures
		},
		// 4xx means we sent something bad, not that the gateway is down
		IsSuccessful: func(err error) bool {
			var se *statusError
			return err == nil || (errors.As(err, &se) && se.code < 500 && se.code != http.StatusTooManyRequests)
		},
		OnStateChange: func(name string, from gobreaker.State, to gobreaker.State) {
			log.Info("circuit breaker state", zap.String("name", name), zap.String("from", from.String()), zap.String("to", to.String()))
		},
	}
	return &ExpoGateway{
		cfg:  cfg,
		http: &http.Client{Transport: tr, Timeout: cfg.Timeout},
		cb:   gobreaker.NewCircuitBreaker(st),
		log:  log,
	}
}

func (g *ExpoGateway) Send(ctx context.Context, msgs []Message) ([]Ticket, error) {
	if len(msgs) == 0 {
		return nil, nil
	}
	if len(msgs) > MaxBatch {
		return nil, fmt.Errorf("batch of %d exceeds gateway limit %d", len(msgs), MaxBatch)
	}
	body, err := json.Marshal(msgs)
	if err != nil {
		return nil, err
	}
	out, err := g.cb.Execute(func() (interface{}, error) {
		return g.postWithRetry(ctx, body)
	})
	if err != nil {
		return nil, err
	}
	return out.([]Ticket), nil
}

// postWithRetry retries network errors, 429 and 5xx with exponential backoff.
func (g *ExpoGateway) postWithRetry(ctx context.Context, body []byte) ([]Ticket, error) {
	var tickets []Ticket
	operation := func() error {
		req, err := http.NewRequestWithContext(ctx, http.MethodPost, g.cfg.Endpoint, bytes.NewReader(body))
		if err != nil {
			return backoff.Permanent(err)
		}
		req.Header.Set("Content-Type", "application/json")
		req.Header.Set("Accept", "application/json")
		if g.cfg.AccessToken != "" {
			req.Header.Set("Authorization", "Bearer "+g.cfg.AccessToken)
		}

		resp, err := g.http.Do(req)
		if err != nil {
			return err
		}
		defer resp.Body.Close()

		if resp.StatusCode >= 400 {
			b, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
			se := &statusError{code: resp.StatusCode, body: strings.TrimSpace(string(b))}
			if resp.StatusCode >= 500 || resp.StatusCode == http.StatusTooManyRequests {
				return se
			}
			return backoff.Permanent(se)
		}

		var decoded struct {
			Data   []Ticket `json:"data"`
			Errors []struct {
				Code    string `json:"code"`
				Message string `json:"message"`
			} `json:"errors"`
		}
		if err := json.NewDecoder(resp.Body).Decode(&decoded); err != nil {
			return backoff.Permanent(fmt.Errorf("decode push response: %w", err))
		}
		if len(decoded.Errors) > 0 && len(decoded.Data) == 0 {
			return backoff.Permanent(fmt.Errorf("push request rejected: %s %s", decoded.Errors[0].Code, decoded.Errors[0].Message))
		}
		tickets = decoded.Data
		return nil
	}

	b := backoff.NewExponentialBackOff()
	b.InitialInterval = g.cfg.RetryInitialInterval
	b.MaxElapsedTime = g.cfg.RetryMaxElapsed
	notify := func(err error, wait time.Duration) {
		g.log.Warn("push gateway retry", zap.Error(err), zap.Duration("wait", wait))
	}
	if err := backoff.RetryNotify(operation, backoff.WithContext(b, ctx), notify); err != nil {
		return nil, err
	}
	return tickets, nil
}
