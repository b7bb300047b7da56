// Package sheets adapts the Google Sheets values API for enrollment
// exports.
package sheets

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"

	"github.com/Souzaab/crm-multi-acesso-sub000/internal/provider"
)

const sheetsBaseURL = "https://sheets.googleapis.com/v4"

// Adapter performs row-level operations against Google Sheets.
type Adapter struct {
	client  *provider.Client
	baseURL string
}

// New creates a Sheets adapter using the shared provider client.
func New(client *provider.Client) *Adapter {
	return &Adapter{client: client, baseURL: sheetsBaseURL}
}

// NewWithBaseURL creates an adapter against an alternate API host.
func NewWithBaseURL(client *provider.Client, baseURL string) *Adapter {
	return &Adapter{client: client, baseURL: baseURL}
}

// AppendRow appends one row of values to the given range. The sheet
// grows as needed; USER_ENTERED lets Sheets coerce dates and numbers.
func (a *Adapter) AppendRow(
	ctx context.Context,
	tokens provider.TokenSource,
	spreadsheetID, sheetRange string,
	values []any,
) error {
	payload, err := json.Marshal(map[string]any{
		"values": [][]any{values},
	})
	if err != nil {
		return err
	}

	endpoint := fmt.Sprintf("%s/spreadsheets/%s/values/%s:append?valueInputOption=USER_ENTERED",
		a.baseURL, url.PathEscape(spreadsheetID), url.PathEscape(sheetRange))

	_, err = a.client.Do(ctx, tokens, &provider.Request{
		Method: http.MethodPost,
		URL:    endpoint,
		Body:   payload,
	})
	return err
}

// ReadRange returns the cell values of a range.
func (a *Adapter) ReadRange(
	ctx context.Context,
	tokens provider.TokenSource,
	spreadsheetID, sheetRange string,
) ([][]any, error) {
	endpoint := fmt.Sprintf("%s/spreadsheets/%s/values/%s",
		a.baseURL, url.PathEscape(spreadsheetID), url.PathEscape(sheetRange))

	body, err := a.client.Do(ctx, tokens, &provider.Request{
		Method: http.MethodGet,
		URL:    endpoint,
	})
	if err != nil {
		return nil, err
	}

	var result struct {
		Values [][]any `json:"values"`
	}
	if err := json.Unmarshal(body, &result); err != nil {
		return nil, fmt.Errorf("sheets: malformed values response: %w", err)
	}
	return result.Values, nil
}

// SpreadsheetTitle fetches the spreadsheet's title, used to verify the
// connection during setup.
func (a *Adapter) SpreadsheetTitle(
	ctx context.Context,
	tokens provider.TokenSource,
	spreadsheetID string,
) (string, error) {
	endpoint := fmt.Sprintf("%s/spreadsheets/%s?fields=properties.title",
		a.baseURL, url.PathEscape(spreadsheetID))

	body, err := a.client.Do(ctx, tokens, &provider.Request{
		Method: http.MethodGet,
		URL:    endpoint,
	})
	if err != nil {
		return "", err
	}

	var result struct {
		Properties struct {
			Title string `json:"title"`
		} `json:"properties"`
	}
	if err := json.Unmarshal(body, &result); err != nil {
		return "", fmt.Errorf("sheets: malformed spreadsheet response: %w", err)
	}
	return result.Properties.Title, nil
}
