package intrinio

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
)

func TestAuthURLPerProvider(t *testing.T) {
	cases := []struct {
		provider Provider
		want     string
	}{
		{ProviderRealtime, "https://realtime-mx.intrinio.com/auth"},
		{ProviderDelayedSIP, "https://realtime-delayed-sip.intrinio.com/auth"},
		{ProviderNasdaqBasic, "https://realtime-nasdaq-basic.intrinio.com/auth"},
		{ProviderCboeOne, "https://realtime-cboe-one.intrinio.com/auth"},
	}
	for _, c := range cases {
		got, err := authURL(c.provider, "")
		if err != nil || got != c.want {
			t.Fatalf("authURL(%s) = %q, %v; want %q", c.provider, got, err, c.want)
		}
	}
}

func TestAuthURLManualRequiresIP(t *testing.T) {
	if _, err := authURL(ProviderManual, ""); err == nil {
		t.Fatal("expected error for MANUAL provider without ip address")
	}
	got, err := authURL(ProviderManual, "10.0.0.1:8080")
	if err != nil || got != "http://10.0.0.1:8080/auth" {
		t.Fatalf("got %q, %v", got, err)
	}
}

func TestFetchTokenSuccess(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if !strings.Contains(r.URL.RawQuery, "api_key=mykey") {
			t.Errorf("expected api_key query param, got %s", r.URL.RawQuery)
		}
		w.WriteHeader(http.StatusOK)
		w.Write([]byte("abc123token"))
	}))
	defer srv.Close()

	a := newAuthClient(ProviderManual, strings.TrimPrefix(srv.URL, "http://"), "mykey", false, false)
	token, err := a.fetchToken()
	if err != nil || token != "abc123token" {
		t.Fatalf("got %q, %v", token, err)
	}
}

func TestFetchTokenUnauthorized(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusUnauthorized)
	}))
	defer srv.Close()

	a := newAuthClient(ProviderManual, strings.TrimPrefix(srv.URL, "http://"), "badkey", false, false)
	_, err := a.fetchToken()
	if err != ErrUnauthorized {
		t.Fatalf("expected ErrUnauthorized, got %v", err)
	}
}

func TestFetchTokenPublicKeyHeader(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Header.Get("Authorization") != "Public mykey" {
			t.Errorf("expected Authorization header, got %q", r.Header.Get("Authorization"))
		}
		w.WriteHeader(http.StatusOK)
		w.Write([]byte("tok"))
	}))
	defer srv.Close()

	a := newAuthClient(ProviderManual, strings.TrimPrefix(srv.URL, "http://"), "mykey", true, false)
	if _, err := a.fetchToken(); err != nil {
		t.Fatal(err)
	}
}

func TestWebsocketURLManualUsesPlaintext(t *testing.T) {
	got, err := websocketURL(ProviderManual, "10.0.0.1:8080", "tok")
	if err != nil {
		t.Fatal(err)
	}
	if !strings.HasPrefix(got, "ws://10.0.0.1:8080/socket/websocket") {
		t.Fatalf("got %q", got)
	}
	if !strings.Contains(got, "UseNewEquitiesFormat=v2") {
		t.Fatalf("expected v2 marker in %q", got)
	}
}
