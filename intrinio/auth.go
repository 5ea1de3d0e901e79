package intrinio

import (
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/intrinio/equities-feed-go/logger"
)

const sdkClientInfo = "equities-feed-go/1.0.0"

// ErrUnauthorized is returned when the auth endpoint rejects the access
// key with HTTP 401. The initial authentication in New returns it to the
// caller; token refreshes during reconnect retry it through the backoff
// driver like any other failure.
var ErrUnauthorized = fmt.Errorf("intrinio: unauthorized")

// authURL returns the provider's auth endpoint. MANUAL substitutes the
// caller-supplied host over plaintext HTTP.
func authURL(provider Provider, ipAddress string) (string, error) {
	switch provider {
	case ProviderRealtime, "":
		return "https://realtime-mx.intrinio.com/auth", nil
	case ProviderDelayedSIP:
		return "https://realtime-delayed-sip.intrinio.com/auth", nil
	case ProviderNasdaqBasic:
		return "https://realtime-nasdaq-basic.intrinio.com/auth", nil
	case ProviderCboeOne:
		return "https://realtime-cboe-one.intrinio.com/auth", nil
	case ProviderManual:
		if ipAddress == "" {
			return "", fmt.Errorf("intrinio: ip address required for MANUAL provider")
		}
		return fmt.Sprintf("http://%s/auth", ipAddress), nil
	default:
		return "", fmt.Errorf("intrinio: unrecognized provider %q", provider)
	}
}

// authClient acquires short-lived session tokens from the provider's auth
// endpoint. It holds no state beyond the HTTP client and provider/key pair.
type authClient struct {
	provider    Provider
	ipAddress   string
	accessKey   string
	isPublicKey bool
	delayed     bool
	httpClient  *http.Client
	log         *logger.Log
}

func newAuthClient(provider Provider, ipAddress, accessKey string, isPublicKey, delayed bool) *authClient {
	return &authClient{
		provider:    provider,
		ipAddress:   ipAddress,
		accessKey:   accessKey,
		isPublicKey: isPublicKey,
		delayed:     delayed,
		httpClient:  &http.Client{Timeout: 15 * time.Second},
		log:         logger.GetLogger(),
	}
}

// fetchToken acquires a token. A 401 returns ErrUnauthorized; any other
// failure (timeout, 5xx, transport error) returns a wrapped error. Both are
// retried by the backoff driver when they occur during a reconnect.
func (a *authClient) fetchToken() (string, error) {
	log := a.log.WithComponent("auth")

	endpoint, err := authURL(a.provider, a.ipAddress)
	if err != nil {
		return "", err
	}

	if !a.isPublicKey {
		endpoint = endpoint + "?api_key=" + a.accessKey
		if a.delayed {
			endpoint += "&delayed=true"
		}
	} else if a.delayed {
		endpoint += "?delayed=true"
	}

	req, err := http.NewRequest(http.MethodGet, endpoint, nil)
	if err != nil {
		return "", fmt.Errorf("intrinio: building auth request: %w", err)
	}
	req.Header.Set("Client-Information", sdkClientInfo)
	if a.isPublicKey {
		req.Header.Set("Authorization", "Public "+a.accessKey)
	}

	resp, err := a.httpClient.Do(req)
	if err != nil {
		log.WithError(err).Warn("auth request failed; transient")
		return "", fmt.Errorf("intrinio: auth request: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", fmt.Errorf("intrinio: reading auth response: %w", err)
	}

	switch resp.StatusCode {
	case http.StatusOK:
		return string(body), nil
	case http.StatusUnauthorized:
		log.Warn("auth endpoint returned 401")
		return "", ErrUnauthorized
	default:
		return "", fmt.Errorf("intrinio: auth endpoint returned status %d", resp.StatusCode)
	}
}

// websocketURL builds the session WebSocket URL per the provider's host,
// the acquired token, and the wire query parameters the server expects.
func websocketURL(provider Provider, ipAddress, token string) (string, error) {
	scheme := "wss"
	var host string
	switch provider {
	case ProviderRealtime, "":
		host = "realtime-mx.intrinio.com"
	case ProviderDelayedSIP:
		host = "realtime-delayed-sip.intrinio.com"
	case ProviderNasdaqBasic:
		host = "realtime-nasdaq-basic.intrinio.com"
	case ProviderCboeOne:
		host = "realtime-cboe-one.intrinio.com"
	case ProviderManual:
		if ipAddress == "" {
			return "", fmt.Errorf("intrinio: ip address required for MANUAL provider")
		}
		scheme = "ws"
		host = ipAddress
	default:
		return "", fmt.Errorf("intrinio: unrecognized provider %q", provider)
	}

	return fmt.Sprintf("%s://%s/socket/websocket?vsn=1.0.0&token=%s&Client-Information=%s&UseNewEquitiesFormat=v2",
		scheme, host, token, sdkClientInfo), nil
}
