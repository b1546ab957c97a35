// Package remote is a RecordStore backed by the hosted entity-instances
// service reached over HTTP.
package remote

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/quantumauth-io/quantum-go-utils/log"
	"github.com/sony/gobreaker"

	"github.com/quantumauth-io/dao-agent/internal/apperr"
	"github.com/quantumauth-io/dao-agent/internal/metrics"
	"github.com/quantumauth-io/dao-agent/internal/walletstore"
)

const (
	defaultPageSize = 50
	defaultMaxPages = 100
	dbType          = "TIDB"
)

type Config struct {
	// BaseURL is the schema instances endpoint, e.g.
	// https://host/pi-entity-instances-service/v2.0/schemas/<id>/instances
	BaseURL  string
	Token    string
	Timeout  time.Duration
	PageSize int
	MaxPages int
	// HTTPClient overrides the default client, mostly for tests.
	HTTPClient *http.Client
}

type Client struct {
	httpClient *http.Client
	baseURL    string
	token      string
	pageSize   int
	maxPages   int
	breaker    *gobreaker.CircuitBreaker
}

var _ walletstore.RecordStore = (*Client)(nil)

func NewClient(cfg Config) (*Client, error) {
	base := strings.TrimRight(strings.TrimSpace(cfg.BaseURL), "/")
	if base == "" {
		return nil, fmt.Errorf("remote record store: base url is empty")
	}
	if _, err := url.Parse(base); err != nil {
		return nil, fmt.Errorf("remote record store: invalid base url: %w", err)
	}

	httpClient := cfg.HTTPClient
	if httpClient == nil {
		timeout := cfg.Timeout
		if timeout <= 0 {
			timeout = 10 * time.Second
		}
		httpClient = &http.Client{Timeout: timeout}
	}

	pageSize := cfg.PageSize
	if pageSize <= 0 {
		pageSize = defaultPageSize
	}
	maxPages := cfg.MaxPages
	if maxPages <= 0 {
		maxPages = defaultMaxPages
	}

	breaker := gobreaker.NewCircuitBreaker(gobreaker.Settings{
		Name:    "remote-record-store",
		Timeout: 30 * time.Second,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= 5
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			log.Warn("circuit breaker state change", "name", name, "from", from.String(), "to", to.String())
		},
		IsSuccessful: func(err error) bool {
			// a definitive answer from the store is not an outage
			return err == nil || errors.Is(err, walletstore.ErrRecordExists) || errors.Is(err, errRejected)
		},
	})

	return &Client{
		httpClient: httpClient,
		baseURL:    base,
		token:      cfg.Token,
		pageSize:   pageSize,
		maxPages:   maxPages,
		breaker:    breaker,
	}, nil
}

var errRejected = errors.New("request rejected by record store")

func (c *Client) Insert(ctx context.Context, rec walletstore.WalletRecord) error {
	body := insertRequest{Data: []wireRecord{toWire(rec)}}

	_, err := c.do(ctx, "insert", http.MethodPost, c.baseURL, body)
	return err
}

func (c *Client) FindByAgent(ctx context.Context, agentID string) (walletstore.WalletRecord, error) {
	return c.findOne(ctx, map[string]string{"agentId": agentID})
}

func (c *Client) FindByAddress(ctx context.Context, address string) (walletstore.WalletRecord, error) {
	return c.findOne(ctx, map[string]string{"agentAddress": address})
}

// findOne pages through the filtered list until a record is found or the
// store reports the last page.
func (c *Client) findOne(ctx context.Context, filter map[string]string) (walletstore.WalletRecord, error) {
	for page := 0; page < c.maxPages; page++ {
		q := url.Values{}
		q.Set("page", strconv.Itoa(page))
		q.Set("size", strconv.Itoa(c.pageSize))
		q.Set("showDBaaSReservedKeywords", "true")
		q.Set("showPageableMetaData", "true")

		raw, err := c.do(ctx, "list", http.MethodPost, c.baseURL+"/list?"+q.Encode(),
			listRequest{DBType: dbType, Filter: filter})
		if err != nil {
			return walletstore.WalletRecord{}, err
		}

		var out listResponse
		if err := json.Unmarshal(raw, &out); err != nil {
			return walletstore.WalletRecord{}, fmt.Errorf("decode list response: %w", err)
		}

		for _, w := range out.Content {
			if matches(w, filter) {
				return fromWire(w), nil
			}
		}

		if len(out.Content) < c.pageSize {
			break
		}
		if out.Last != nil && *out.Last {
			break
		}
		if out.TotalPages != nil && page+1 >= *out.TotalPages {
			break
		}
	}
	return walletstore.WalletRecord{}, walletstore.ErrNotFound
}

func (c *Client) do(ctx context.Context, op, method, endpoint string, payload any) ([]byte, error) {
	if strings.TrimSpace(c.token) == "" {
		return nil, apperr.New(apperr.KindInfrastructure, apperr.CodeMissingSecret, "record store token is not configured")
	}

	b, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("marshal %s request: %w", op, err)
	}

	started := time.Now()
	res, err := c.breaker.Execute(func() (interface{}, error) {
		req, err := http.NewRequestWithContext(ctx, method, endpoint, bytes.NewReader(b))
		if err != nil {
			return nil, err
		}
		req.Header.Set("Content-Type", "application/json")
		req.Header.Set("Authorization", "Bearer "+c.token)

		resp, err := c.httpClient.Do(req)
		if err != nil {
			return nil, err
		}
		defer resp.Body.Close()

		body, _ := io.ReadAll(io.LimitReader(resp.Body, 4<<20))

		switch {
		case resp.StatusCode == http.StatusConflict:
			return nil, walletstore.ErrRecordExists
		case resp.StatusCode >= 500:
			return nil, fmt.Errorf("%s: status %d: %s", op, resp.StatusCode, snippet(body))
		case resp.StatusCode >= 300:
			return nil, errors.Wrapf(errRejected, "%s: status %d: %s", op, resp.StatusCode, snippet(body))
		}
		return body, nil
	})
	metrics.ObserveStoreOp("remote", op, started, err)

	if err != nil {
		return nil, err
	}
	return res.([]byte), nil
}

func matches(w wireRecord, filter map[string]string) bool {
	for k, v := range filter {
		switch k {
		case "agentId":
			if w.AgentID != v {
				return false
			}
		case "agentAddress":
			if !strings.EqualFold(w.AgentAddress, v) {
				return false
			}
		}
	}
	return true
}

func toWire(r walletstore.WalletRecord) wireRecord {
	return wireRecord{
		AgentID:         r.AgentID,
		AgentAddress:    r.WalletAddress,
		AgentPrivateKey: r.EncryptedKey,
		IV:              r.IV,
		Tag:             r.Tag,
	}
}

func fromWire(w wireRecord) walletstore.WalletRecord {
	return walletstore.WalletRecord{
		AgentID:       w.AgentID,
		WalletAddress: w.AgentAddress,
		EncryptedKey:  w.AgentPrivateKey,
		IV:            w.IV,
		Tag:           w.Tag,
	}
}

func snippet(b []byte) string {
	s := strings.TrimSpace(string(b))
	if len(s) > 256 {
		return s[:256] + "..."
	}
	return s
}
