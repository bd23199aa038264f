package quoteapi

import (
	"context"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	xerr "equisense/pkg/error"
	"equisense/pkg/provider/core"
	"equisense/pkg/resilience"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const sampleQuote = `[{"symbol":"600000.SH","name":"Shanghai Pudong Development Bank","price":10.5,"open":10.48,
"dayHigh":10.6,"dayLow":10.4,"previousClose":10.45,"volume":12345600,"change":0.05,"changesPercentage":0.48,
"marketCap":308850000000,"pe":5.1,"eps":2.06,"timestamp":1735801200}]`

func newTestProvider(t *testing.T, apiKey string, handler http.HandlerFunc) (*Provider, *int32) {
	t.Helper()
	var hits int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&hits, 1)
		handler(w, r)
	}))
	t.Cleanup(srv.Close)

	rc := resilience.DefaultConfig(Name)
	rc.Retry.BaseDelay = time.Millisecond
	rc.Retry.MaxDelay = time.Millisecond
	p := NewProvider(Config{
		Base:    core.BaseConfig{Name: Name, Priority: 1, APIKey: apiKey},
		BaseURL: srv.URL + "/",
	}, resilience.New(rc), nil)
	return p, &hits
}

func TestProvider_FetchCompanyData(t *testing.T) {
	p, hits := newTestProvider(t, "secret", func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/quote/600000", r.URL.Path)
		assert.Equal(t, "secret", r.URL.Query().Get("apikey"))
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(sampleQuote))
	})

	result := p.FetchCompanyData(context.Background(), "600000")
	require.True(t, result.OK(), result.Reason())
	assert.Equal(t, int32(1), atomic.LoadInt32(hits))
	assert.InDelta(t, 1.0, result.Quality(), 1e-9)

	payload := result.Payload()
	assert.Equal(t, "600000", payload[core.FieldSymbol])
	assert.Equal(t, 10.5, payload[core.FieldPrice])
	assert.Equal(t, 308850000000.0, payload[core.FieldMarketCap])
	assert.Equal(t, "2025-01-02T15:00:00+08:00", payload[core.FieldQuoteTime])
}

func TestProvider_PartialQuoteLowersQuality(t *testing.T) {
	p, _ := newTestProvider(t, "secret", func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`[{"symbol":"AAPL","price":190.1,"pe":null}]`))
	})

	result := p.FetchCompanyData(context.Background(), "aapl")
	require.True(t, result.OK())
	assert.InDelta(t, 2.0/14.0, result.Quality(), 1e-9)
	assert.Equal(t, []string{core.FieldPrice, core.FieldSymbol}, result.Fields())
}

func TestProvider_MissingAPIKey(t *testing.T) {
	p, hits := newTestProvider(t, "", func(w http.ResponseWriter, r *http.Request) {})

	result := p.FetchCompanyData(context.Background(), "600000")
	assert.False(t, result.OK())
	assert.Equal(t, xerr.CodeMissingCredentials, result.Code())
	assert.Zero(t, atomic.LoadInt32(hits))
	assert.Zero(t, p.Client().Limiter().Stats().Granted)
}

func TestProvider_Unauthorized(t *testing.T) {
	p, hits := newTestProvider(t, "bad", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusUnauthorized)
	})

	result := p.FetchCompanyData(context.Background(), "600000")
	assert.False(t, result.OK())
	assert.Equal(t, xerr.CodeUpstreamStatus, result.Code())
	assert.Equal(t, int32(1), atomic.LoadInt32(hits))
}

func TestProvider_EmptyResultAndBadJSON(t *testing.T) {
	p, _ := newTestProvider(t, "secret", func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "/quote/BAD" {
			_, _ = w.Write([]byte(`<html>`))
			return
		}
		_, _ = w.Write([]byte(`[]`))
	})

	assert.Equal(t, xerr.CodeValidationFailed, p.FetchCompanyData(context.Background(), "ZZZZ").Code())
	assert.Equal(t, xerr.CodeValidationFailed, p.FetchCompanyData(context.Background(), "BAD").Code())
}
