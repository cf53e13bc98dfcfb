// Package platform is a client for the hosted record platform that stores
// tasks and categories. It speaks the generic record contract from package
// records over HTTPS.
package platform

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/bytedance/sonic"
	log "github.com/sirupsen/logrus"

	"taskboard/records"
)

const (
	headerProjectID = "X-Project-Id"
	headerPublicKey = "X-Public-Key"

	defaultTimeout  = 30 * time.Second
	maxResponseSize = 8 << 20
)

// Options configures a Client.
type Options struct {
	BaseURL    string
	ProjectID  string
	PublicKey  string
	Timeout    time.Duration
	HTTPClient *http.Client
	Logger     *log.Logger
}

// Client calls the record platform.
type Client struct {
	baseURL   string
	projectID string
	publicKey string
	http      *http.Client
	logger    *log.Logger
}

// New validates opts and returns a Client.
func New(opts Options) (*Client, error) {
	if opts.BaseURL == "" || opts.ProjectID == "" || opts.PublicKey == "" {
		return nil, errors.New("platform: base URL, project id and public key are required")
	}
	if _, err := url.Parse(opts.BaseURL); err != nil {
		return nil, fmt.Errorf("platform: invalid base URL: %w", err)
	}
	hc := opts.HTTPClient
	if hc == nil {
		timeout := opts.Timeout
		if timeout <= 0 {
			timeout = defaultTimeout
		}
		hc = &http.Client{Timeout: timeout}
	}
	logger := opts.Logger
	if logger == nil {
		logger = log.StandardLogger()
	}
	return &Client{
		baseURL:   strings.TrimRight(opts.BaseURL, "/"),
		projectID: opts.ProjectID,
		publicKey: opts.PublicKey,
		http:      hc,
		logger:    logger,
	}, nil
}

// envelope is the response body of every platform call.
type envelope struct {
	Success bool                   `json:"success"`
	Message string                 `json:"message,omitempty"`
	Data    sonic.NoCopyRawMessage `json:"data,omitempty"`
	Results []records.Result       `json:"results,omitempty"`
}

type writeRequest struct {
	Records []records.Record `json:"records"`
}

type deleteRequest struct {
	RecordIDs []int64 `json:"RecordIds"`
}

// FetchRecords lists a collection.
func (c *Client) FetchRecords(ctx context.Context, collection string, q records.Query) ([]records.Record, error) {
	env, err := c.call(ctx, "fetch", collection, http.MethodPost, c.collectionURL(collection)+"/fetch", q)
	if err != nil {
		return nil, err
	}
	out := []records.Record{}
	if len(env.Data) == 0 || string(env.Data) == "null" {
		return out, nil
	}
	if err := sonic.Unmarshal(env.Data, &out); err != nil {
		return nil, fmt.Errorf("platform: decode %s records: %w", collection, err)
	}
	return out, nil
}

// GetRecordByID loads one record. A missing record yields records.ErrNotFound.
func (c *Client) GetRecordByID(ctx context.Context, collection string, id int64, q records.Query) (records.Record, error) {
	target := c.collectionURL(collection) + "/" + strconv.FormatInt(id, 10) + "/fetch"
	env, err := c.call(ctx, "get", collection, http.MethodPost, target, records.Query{Fields: q.Fields})
	if err != nil {
		return nil, err
	}
	if len(env.Data) == 0 || string(env.Data) == "null" {
		return nil, records.ErrNotFound
	}
	var rec records.Record
	if err := sonic.Unmarshal(env.Data, &rec); err != nil {
		return nil, fmt.Errorf("platform: decode %s record: %w", collection, err)
	}
	return rec, nil
}

// CreateRecords inserts recs and returns one result per record.
func (c *Client) CreateRecords(ctx context.Context, collection string, recs []records.Record) ([]records.Result, error) {
	env, err := c.call(ctx, "create", collection, http.MethodPost, c.collectionURL(collection), writeRequest{Records: recs})
	if err != nil {
		return nil, err
	}
	return env.Results, nil
}

// UpdateRecords merges recs, each identified by its Id field.
func (c *Client) UpdateRecords(ctx context.Context, collection string, recs []records.Record) ([]records.Result, error) {
	env, err := c.call(ctx, "update", collection, http.MethodPut, c.collectionURL(collection), writeRequest{Records: recs})
	if err != nil {
		return nil, err
	}
	return env.Results, nil
}

// DeleteRecords removes the listed ids.
func (c *Client) DeleteRecords(ctx context.Context, collection string, ids []int64) ([]records.Result, error) {
	env, err := c.call(ctx, "delete", collection, http.MethodDelete, c.collectionURL(collection), deleteRequest{RecordIDs: ids})
	if err != nil {
		return nil, err
	}
	return env.Results, nil
}

func (c *Client) collectionURL(collection string) string {
	return c.baseURL + "/records/" + url.PathEscape(collection)
}

func (c *Client) call(ctx context.Context, op, collection, method, target string, body any) (*envelope, error) {
	payload, err := sonic.Marshal(body)
	if err != nil {
		return nil, fmt.Errorf("platform: encode %s request: %w", op, err)
	}
	req, err := http.NewRequestWithContext(ctx, method, target, bytes.NewReader(payload))
	if err != nil {
		return nil, fmt.Errorf("platform: create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")
	req.Header.Set(headerProjectID, c.projectID)
	req.Header.Set(headerPublicKey, c.publicKey)

	start := time.Now()
	resp, err := c.http.Do(req)
	if err != nil {
		c.logger.WithError(err).WithFields(log.Fields{"op": op, "collection": collection}).Error("platform request failed")
		return nil, fmt.Errorf("platform: %s %s: %w", op, collection, err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseSize))
	if err != nil {
		return nil, fmt.Errorf("platform: read %s response: %w", op, err)
	}
	c.logger.WithFields(log.Fields{
		"op":         op,
		"collection": collection,
		"status":     resp.StatusCode,
		"elapsed_ms": float64(time.Since(start)) / float64(time.Millisecond),
	}).Debug("platform call")

	var env envelope
	decodeErr := sonic.Unmarshal(raw, &env)

	if resp.StatusCode == http.StatusNotFound && op == "get" {
		return nil, records.ErrNotFound
	}
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		msg := env.Message
		if decodeErr != nil || msg == "" {
			msg = strings.TrimSpace(string(raw))
		}
		return nil, &records.PlatformError{Operation: op, Collection: collection, StatusCode: resp.StatusCode, Message: msg}
	}
	if decodeErr != nil {
		return nil, fmt.Errorf("platform: decode %s response: %w", op, decodeErr)
	}
	if !env.Success {
		return nil, &records.PlatformError{Operation: op, Collection: collection, Message: env.Message}
	}
	return &env, nil
}

var _ records.Store = (*Client)(nil)
