package providers

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"sort"
	"strings"

	"github.com/sony/gobreaker"
	"golang.org/x/oauth2"

	"github.com/i474232898/templog/internal/series"
)

// RealtimeDBProvider implements series.Provider on a Firebase-style realtime
// database REST API. Each reading lives at {path}/{date}.
type RealtimeDBProvider struct {
	name    string
	baseURL string
	path    string
	tokens  oauth2.TokenSource
	httpCfg HTTPClientConfig
	circuit *gobreaker.CircuitBreaker
}

func NewRealtimeDBProvider(client *http.Client, tokens oauth2.TokenSource, baseURL, path string) *RealtimeDBProvider {
	if path == "" {
		path = "temperatures"
	}
	return &RealtimeDBProvider{
		name:    "realtimedb",
		baseURL: strings.TrimRight(baseURL, "/"),
		path:    strings.Trim(path, "/"),
		tokens:  tokens,
		httpCfg: HTTPClientConfig{
			Client:  client,
			Backoff: DefaultBackoff,
		},
		circuit: newCircuit("realtimedb"),
	}
}

func (p *RealtimeDBProvider) Name() string {
	return p.name
}

func (p *RealtimeDBProvider) List(ctx context.Context) ([]series.Record, error) {
	buildRequest := func() (*http.Request, error) {
		return p.newRequest(http.MethodGet, p.path, nil)
	}

	resp, err := doRequestWithResilience(ctx, p.httpCfg, p.circuit, buildRequest)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	// An empty node decodes as JSON null, leaving the map nil.
	var payload map[string]series.Record
	if err := json.NewDecoder(resp.Body).Decode(&payload); err != nil {
		return nil, err
	}

	keys := make([]string, 0, len(payload))
	for k := range payload {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	records := make([]series.Record, 0, len(keys))
	for _, k := range keys {
		r := payload[k]
		if r.Date == "" {
			r.Date = k
		}
		records = append(records, r)
	}
	return records, nil
}

func (p *RealtimeDBProvider) Upsert(ctx context.Context, e series.Entry) error {
	temp := e.Temperature
	body, err := json.Marshal(series.Record{Date: e.Date.String(), Temperature: &temp})
	if err != nil {
		return err
	}
	return p.mutate(ctx, http.MethodPut, e.Date, body)
}

func (p *RealtimeDBProvider) Delete(ctx context.Context, date series.Date) error {
	return p.mutate(ctx, http.MethodDelete, date, nil)
}

func (p *RealtimeDBProvider) mutate(ctx context.Context, method string, date series.Date, body []byte) error {
	buildRequest := func() (*http.Request, error) {
		return p.newRequest(method, p.path+"/"+date.String(), body)
	}

	resp, err := doRequestWithResilience(ctx, mutationConfig(p.httpCfg), p.circuit, buildRequest)
	if err != nil {
		return err
	}
	drainAndClose(resp)
	return nil
}

func (p *RealtimeDBProvider) newRequest(method, path string, body []byte) (*http.Request, error) {
	values := url.Values{}
	token, err := bearerToken(p.tokens)
	if err != nil {
		return nil, err
	}
	if token != "" {
		values.Set("access_token", token)
	}

	u := fmt.Sprintf("%s/%s.json", p.baseURL, path)
	if len(values) > 0 {
		u += "?" + values.Encode()
	}

	req, err := http.NewRequest(method, u, bytes.NewReader(body))
	if err != nil {
		return nil, err
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	return req, nil
}
