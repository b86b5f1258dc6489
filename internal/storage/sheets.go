package storage

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"golang.org/x/oauth2/google"
	"golang.org/x/oauth2/jwt"
	"google.golang.org/api/option"
	"google.golang.org/api/sheets/v4"
)

// SheetsCredentials selects how the service account authenticates. A
// credentials file wins over the inline email/key pair.
type SheetsCredentials struct {
	File        string
	ClientEmail string
	PrivateKey  string
}

// SheetsTable stores regions as tabs of one Google spreadsheet.
type SheetsTable struct {
	values        *sheets.SpreadsheetsValuesService
	spreadsheetID string
}

func NewSheetsTable(ctx context.Context, spreadsheetID string, creds SheetsCredentials) (*SheetsTable, error) {
	if spreadsheetID == "" {
		return nil, errors.New("missing spreadsheet id")
	}

	var opts []option.ClientOption
	switch {
	case creds.File != "":
		opts = append(opts, option.WithCredentialsFile(creds.File), option.WithScopes(sheets.SpreadsheetsScope))
	case creds.ClientEmail != "" && creds.PrivateKey != "":
		conf := &jwt.Config{
			Email:      creds.ClientEmail,
			PrivateKey: []byte(strings.ReplaceAll(creds.PrivateKey, `\n`, "\n")),
			Scopes:     []string{sheets.SpreadsheetsScope},
			TokenURL:   google.JWTTokenURL,
		}
		opts = append(opts, option.WithTokenSource(conf.TokenSource(ctx)))
	default:
		return nil, errors.New("missing google service account credentials")
	}

	service, err := sheets.NewService(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("create sheets service: %w", err)
	}
	return &SheetsTable{values: service.Spreadsheets.Values, spreadsheetID: spreadsheetID}, nil
}

func (s *SheetsTable) Get(ctx context.Context, region string) ([][]string, error) {
	resp, err := s.values.Get(s.spreadsheetID, region).Context(ctx).Do()
	if err != nil {
		return nil, wrap("get", region, err)
	}
	out := make([][]string, 0, len(resp.Values))
	for _, row := range resp.Values {
		cells := make([]string, len(row))
		for i, v := range row {
			if v != nil {
				cells[i] = fmt.Sprint(v)
			}
		}
		out = append(out, cells)
	}
	return out, nil
}

func (s *SheetsTable) Append(ctx context.Context, region string, rows [][]string) error {
	if len(rows) == 0 {
		return nil
	}
	_, err := s.values.Append(s.spreadsheetID, region, toValueRange(rows)).
		ValueInputOption("RAW").
		InsertDataOption("INSERT_ROWS").
		Context(ctx).
		Do()
	return wrap("append", region, err)
}

func (s *SheetsTable) Update(ctx context.Context, region string, row int, rows [][]string) error {
	if row < 0 {
		return wrap("update", region, errors.New("negative row offset"))
	}
	if len(rows) == 0 {
		return nil
	}
	rng := fmt.Sprintf("%s!A%d", region, row+1)
	_, err := s.values.Update(s.spreadsheetID, rng, toValueRange(rows)).
		ValueInputOption("RAW").
		Context(ctx).
		Do()
	return wrap("update", region, err)
}

func (s *SheetsTable) Clear(ctx context.Context, region string) error {
	_, err := s.values.Clear(s.spreadsheetID, region, &sheets.ClearValuesRequest{}).Context(ctx).Do()
	return wrap("clear", region, err)
}

func toValueRange(rows [][]string) *sheets.ValueRange {
	values := make([][]interface{}, len(rows))
	for i, row := range rows {
		cells := make([]interface{}, len(row))
		for j, v := range row {
			cells[j] = v
		}
		values[i] = cells
	}
	return &sheets.ValueRange{Values: values}
}
