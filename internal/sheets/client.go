package sheets

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"time"
)

// Gateway is the raw spreadsheet transport.
type Gateway interface {
	ReadRange(ctx context.Context, rangeName string) ([][]string, error)
	UpdateRow(ctx context.Context, sheet string, rowIndex int, values []string) error
	AppendRow(ctx context.Context, sheet string, values []string) error
}

// Client talks to the spreadsheet API gateway over HTTP with API key auth.
type Client struct {
	httpClient *http.Client
	baseURL    string
	apiKey     string
}

// NewClient constructs a gateway client.
func NewClient(baseURL, apiKey string) *Client {
	return &Client{
		httpClient: &http.Client{Timeout: 15 * time.Second},
		baseURL:    baseURL,
		apiKey:     apiKey,
	}
}

type valuesResponse struct {
	Values [][]string `json:"values"`
}

type rowRequest struct {
	Values []string `json:"values"`
}

// ReadRange fetches raw cell values for a range like "Customers!A:I".
func (c *Client) ReadRange(ctx context.Context, rangeName string) ([][]string, error) {
	endpoint := c.baseURL + "/values/" + url.PathEscape(rangeName)
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return nil, err
	}
	var payload valuesResponse
	if err := c.do(req, &payload); err != nil {
		return nil, fmt.Errorf("sheets: read %s: %w", rangeName, err)
	}
	return payload.Values, nil
}

// UpdateRow replaces one data row of a sheet. Row index 1 is the first row
// below the header.
func (c *Client) UpdateRow(ctx context.Context, sheet string, rowIndex int, values []string) error {
	if rowIndex < 1 {
		return fmt.Errorf("sheets: row index %d out of range", rowIndex)
	}
	body, err := json.Marshal(rowRequest{Values: values})
	if err != nil {
		return err
	}
	endpoint := c.baseURL + "/values/" + url.PathEscape(sheet) + "/" + strconv.Itoa(rowIndex)
	req, err := http.NewRequestWithContext(ctx, http.MethodPut, endpoint, bytes.NewReader(body))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	if err := c.do(req, nil); err != nil {
		return fmt.Errorf("sheets: update %s row %d: %w", sheet, rowIndex, err)
	}
	return nil
}

// AppendRow appends one data row to a sheet.
func (c *Client) AppendRow(ctx context.Context, sheet string, values []string) error {
	body, err := json.Marshal(rowRequest{Values: values})
	if err != nil {
		return err
	}
	endpoint := c.baseURL + "/values/" + url.PathEscape(sheet) + ":append"
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader(body))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	if err := c.do(req, nil); err != nil {
		return fmt.Errorf("sheets: append %s: %w", sheet, err)
	}
	return nil
}

func (c *Client) do(req *http.Request, dest any) error {
	req.Header.Set("X-API-Key", c.apiKey)
	res, err := c.httpClient.Do(req)
	if err != nil {
		return err
	}
	defer res.Body.Close()

	if res.StatusCode < 200 || res.StatusCode >= 300 {
		snippet, _ := io.ReadAll(io.LimitReader(res.Body, 512))
		return fmt.Errorf("gateway status %d: %s", res.StatusCode, snippet)
	}
	if dest == nil {
		_, _ = io.Copy(io.Discard, res.Body)
		return nil
	}
	return json.NewDecoder(res.Body).Decode(dest)
}

var _ Gateway = (*Client)(nil)
