package providers

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"strings"

	"github.com/sony/gobreaker"
	"golang.org/x/oauth2"

	"github.com/i474232898/templog/internal/common"
	"github.com/i474232898/templog/internal/series"
)

const defaultSheetsBaseURL = "https://sheets.googleapis.com/v4/spreadsheets"

// SheetsProvider implements series.Provider on a Google Sheets spreadsheet.
// Column A holds the date, column B the temperature. Sheets written by
// append-only clients may hold several rows for one date; the last one wins.
type SheetsProvider struct {
	name          string
	baseURL       string
	spreadsheetID string
	sheet         string
	tokens        oauth2.TokenSource
	httpCfg       HTTPClientConfig
	circuit       *gobreaker.CircuitBreaker
}

// NewSheetsProvider creates a provider for the given spreadsheet and sheet.
// An empty baseURL selects the public Sheets API.
func NewSheetsProvider(client *http.Client, tokens oauth2.TokenSource, baseURL, spreadsheetID, sheet string) *SheetsProvider {
	if baseURL == "" {
		baseURL = defaultSheetsBaseURL
	}
	if sheet == "" {
		sheet = "Sheet1"
	}
	return &SheetsProvider{
		name:          "sheets",
		baseURL:       strings.TrimRight(baseURL, "/"),
		spreadsheetID: spreadsheetID,
		sheet:         sheet,
		tokens:        tokens,
		httpCfg: HTTPClientConfig{
			Client:  client,
			Backoff: DefaultBackoff,
		},
		circuit: newCircuit("sheets"),
	}
}

func (p *SheetsProvider) Name() string {
	return p.name
}

type sheetRow struct {
	number int // 1-based spreadsheet row
	date   string
	temp   *float64
}

// List returns every non-empty row that is not a header.
func (p *SheetsProvider) List(ctx context.Context) ([]series.Record, error) {
	rows, err := p.rows(ctx)
	if err != nil {
		return nil, err
	}
	records := make([]series.Record, 0, len(rows))
	for _, r := range rows {
		records = append(records, series.Record{Date: r.date, Temperature: r.temp})
	}
	return records, nil
}

// Upsert overwrites the last row holding e.Date, or appends a new row.
// Older rows for the same date, left by append-only writers, are cleared so
// a later List sees only the new reading.
func (p *SheetsProvider) Upsert(ctx context.Context, e series.Entry) error {
	rows, err := p.rows(ctx)
	if err != nil {
		return err
	}

	body := valueRange{Values: [][]interface{}{{e.Date.String(), e.Temperature}}}

	matches := findRows(rows, e.Date)
	if len(matches) == 0 {
		q := url.Values{
			"valueInputOption": {"RAW"},
			"insertDataOption": {"INSERT_ROWS"},
		}
		return p.send(ctx, http.MethodPost, p.valuesURL(p.columns(), ":append", q), body)
	}

	last := matches[len(matches)-1]
	rng := p.rowRange(last.number)
	body.Range = rng
	if err := p.send(ctx, http.MethodPut, p.valuesURL(rng, "", url.Values{"valueInputOption": {"RAW"}}), body); err != nil {
		return err
	}
	return p.clearRows(ctx, matches[:len(matches)-1])
}

// Delete clears every row holding date. Rows are left blank rather than
// removed so other rows keep their numbers.
func (p *SheetsProvider) Delete(ctx context.Context, date series.Date) error {
	rows, err := p.rows(ctx)
	if err != nil {
		return err
	}
	matches := findRows(rows, date)
	if len(matches) == 0 {
		return series.ErrNotFound
	}
	return p.clearRows(ctx, matches)
}

func (p *SheetsProvider) clearRows(ctx context.Context, rows []sheetRow) error {
	for _, r := range rows {
		if err := p.send(ctx, http.MethodPost, p.valuesURL(p.rowRange(r.number), ":clear", nil), struct{}{}); err != nil {
			return err
		}
	}
	return nil
}

type valueRange struct {
	Range  string          `json:"range,omitempty"`
	Values [][]interface{} `json:"values"`
}

func (p *SheetsProvider) rows(ctx context.Context) ([]sheetRow, error) {
	buildRequest := func() (*http.Request, error) {
		return p.newRequest(http.MethodGet, p.valuesURL(p.columns(), "", nil), nil)
	}

	resp, err := doRequestWithResilience(ctx, p.httpCfg, p.circuit, buildRequest)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	var payload valueRange
	if err := json.NewDecoder(resp.Body).Decode(&payload); err != nil {
		return nil, err
	}

	rows := make([]sheetRow, 0, len(payload.Values))
	for i, cells := range payload.Values {
		if len(cells) == 0 {
			continue
		}
		date := strings.TrimSpace(cellString(cells[0]))
		if date == "" || common.HasAny(date, "date", "datum") {
			continue
		}
		row := sheetRow{number: i + 1, date: date}
		if len(cells) > 1 {
			row.temp = cellFloat(cells[1])
		}
		rows = append(rows, row)
	}
	return rows, nil
}

func (p *SheetsProvider) send(ctx context.Context, method, u string, body interface{}) error {
	payload, err := json.Marshal(body)
	if err != nil {
		return err
	}
	buildRequest := func() (*http.Request, error) {
		return p.newRequest(method, u, payload)
	}

	resp, err := doRequestWithResilience(ctx, mutationConfig(p.httpCfg), p.circuit, buildRequest)
	if err != nil {
		return err
	}
	drainAndClose(resp)
	return nil
}

func (p *SheetsProvider) newRequest(method, u string, body []byte) (*http.Request, error) {
	req, err := http.NewRequest(method, u, bytes.NewReader(body))
	if err != nil {
		return nil, err
	}
	token, err := bearerToken(p.tokens)
	if err != nil {
		return nil, err
	}
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	return req, nil
}

func (p *SheetsProvider) valuesURL(rng, action string, q url.Values) string {
	u := fmt.Sprintf("%s/%s/values/%s%s", p.baseURL, url.PathEscape(p.spreadsheetID), url.PathEscape(rng), action)
	if len(q) > 0 {
		u += "?" + q.Encode()
	}
	return u
}

func (p *SheetsProvider) columns() string {
	return p.sheet + "!A:B"
}

func (p *SheetsProvider) rowRange(n int) string {
	return fmt.Sprintf("%s!A%d:B%d", p.sheet, n, n)
}

// findRows returns the rows holding date in sheet order.
func findRows(rows []sheetRow, date series.Date) []sheetRow {
	var out []sheetRow
	for _, r := range rows {
		if d, err := series.ParseDate(r.date); err == nil && d == date {
			out = append(out, r)
		}
	}
	return out
}

func cellString(v interface{}) string {
	switch c := v.(type) {
	case string:
		return c
	case float64:
		return strconv.FormatFloat(c, 'f', -1, 64)
	case nil:
		return ""
	default:
		return fmt.Sprint(c)
	}
}

// cellFloat reads a temperature cell. Blank or non-numeric cells are nil.
func cellFloat(v interface{}) *float64 {
	if f, ok := v.(float64); ok {
		return &f
	}
	s := cellString(v)
	if strings.TrimSpace(s) == "" {
		return nil
	}
	f, err := series.ParseTemperature(s)
	if err != nil {
		return nil
	}
	return &f
}
