package connect

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"time"

	"github.com/cenkalti/backoff"
	"github.com/gorilla/websocket"

	"github.com/golang/glog"
)

type DialSettings struct {
	HandshakeTimeout time.Duration
	Password         string
	AuthTokenTtl     time.Duration

	RetryInitialInterval time.Duration
	RetryMaxInterval     time.Duration
	// zero retries until the context is done
	RetryMaxElapsedTime time.Duration

	EndpointSettings *EndpointSettings
}

func DefaultDialSettings() *DialSettings {
	return &DialSettings{
		HandshakeTimeout:     2 * time.Second,
		AuthTokenTtl:         DefaultAuthTokenTtl,
		RetryInitialInterval: 200 * time.Millisecond,
		RetryMaxInterval:     5 * time.Second,
		RetryMaxElapsedTime:  0,
		EndpointSettings:     DefaultEndpointSettings(),
	}
}

// (ctx, host:port)
// the returned channel is not listening yet
type DialFunction func(ctx context.Context, address string) (Channel, error)

type Dialer struct {
	settings *DialSettings
}

func NewDialerWithDefaults() *Dialer {
	return NewDialer(DefaultDialSettings())
}

func NewDialer(settings *DialSettings) *Dialer {
	return &Dialer{
		settings: settings,
	}
}

// one attempt
func (self *Dialer) Dial(ctx context.Context, address string) (Channel, error) {
	u := url.URL{
		Scheme: "ws",
		Host:   address,
		Path:   WebsocketPath,
	}

	header := http.Header{}
	if self.settings.Password != "" {
		token, err := NewAuthToken(self.settings.Password, address, self.settings.AuthTokenTtl)
		if err != nil {
			return nil, err
		}
		SetAuthHeader(header, token)
	}

	wsDialer := &websocket.Dialer{
		HandshakeTimeout: self.settings.HandshakeTimeout,
	}
	ws, resp, err := wsDialer.DialContext(ctx, u.String(), header)
	if err != nil {
		if resp != nil && resp.StatusCode == http.StatusUnauthorized {
			return nil, fmt.Errorf("dial %s: %w", address, ErrAuthInvalid)
		}
		return nil, fmt.Errorf("dial %s: %w", address, err)
	}

	// the endpoint outlives the dial context
	return NewEndpoint(context.Background(), ws, address, self.settings.EndpointSettings), nil
}

// retries with exponential backoff until connected, the max elapsed time passes, or the context is done
func (self *Dialer) DialWithRetry(ctx context.Context, address string) (Channel, error) {
	b := backoff.NewExponentialBackOff()
	b.InitialInterval = self.settings.RetryInitialInterval
	b.MaxInterval = self.settings.RetryMaxInterval
	b.MaxElapsedTime = self.settings.RetryMaxElapsedTime

	var channel Channel
	dial := func() error {
		var err error
		if glog.V(LogLevelTrace) {
			channel, err = TraceWithReturnError(fmt.Sprintf("[d]dial %s", address), func() (Channel, error) {
				return self.Dial(ctx, address)
			})
		} else {
			channel, err = self.Dial(ctx, address)
		}
		if err != nil {
			glog.Infof("[d]dial %s error = %s\n", address, err)
			if errors.Is(err, ErrAuthInvalid) {
				// a retry would present the same token
				return backoff.Permanent(err)
			}
		}
		return err
	}
	if err := backoff.Retry(dial, backoff.WithContext(b, ctx)); err != nil {
		return nil, err
	}
	return channel, nil
}
