// Package remote implements the XML-RPC client for customer instances:
// authentication against the common endpoint and generic typed calls against
// the object endpoint, with a bounded timeout and optional TLS verification
// skip for self-signed development endpoints.
package remote

import (
	"context"
	"crypto/tls"
	"fmt"
	"net"
	"net/http"
	"strings"
	"time"

	"github.com/kolo/xmlrpc"
	"github.com/spf13/cast"

	"github.com/supplyline/catalog-service/internal/metrics"
)

// DefaultUsername is used when a connection has no explicit username.
const DefaultUsername = "apiuser"

// Config holds everything needed to reach one remote instance.
type Config struct {
	URL       string
	Database  string
	APIKey    string
	Username  string
	VerifySSL bool
	Timeout   time.Duration
}

// Client talks to one remote instance over XML-RPC.
type Client struct {
	cfg    Config
	common *xmlrpc.Client
	object *xmlrpc.Client
}

// Session is the authenticated call surface consumed by the preview generator
// and the sync executor. Implemented by *LoginSession and by test fakes.
type Session interface {
	ExecuteKw(ctx context.Context, model, method string, args []interface{}, kw map[string]interface{}) (interface{}, error)
}

// LoginSession is an authenticated Session bound to a remote user id.
type LoginSession struct {
	client *Client
	uid    int64
}

// NewClient validates the configuration and builds the endpoint proxies.
func NewClient(cfg Config) (*Client, error) {
	if !strings.HasPrefix(cfg.URL, "http://") && !strings.HasPrefix(cfg.URL, "https://") {
		return nil, fmt.Errorf("remote URL must start with http:// or https://, got %q", cfg.URL)
	}
	if cfg.Username == "" {
		cfg.Username = DefaultUsername
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 60 * time.Second
	}

	transport := newTransport(cfg)

	common, err := xmlrpc.NewClient(strings.TrimRight(cfg.URL, "/")+"/xmlrpc/2/common", transport)
	if err != nil {
		return nil, fmt.Errorf("creating common endpoint client: %w", err)
	}
	object, err := xmlrpc.NewClient(strings.TrimRight(cfg.URL, "/")+"/xmlrpc/2/object", transport)
	if err != nil {
		common.Close()
		return nil, fmt.Errorf("creating object endpoint client: %w", err)
	}

	return &Client{cfg: cfg, common: common, object: object}, nil
}

func newTransport(cfg Config) *http.Transport {
	transport := &http.Transport{
		DialContext: (&net.Dialer{
			Timeout: cfg.Timeout,
		}).DialContext,
		ResponseHeaderTimeout: cfg.Timeout,
		TLSHandshakeTimeout:   cfg.Timeout,
	}
	if !cfg.VerifySSL && strings.HasPrefix(cfg.URL, "https://") {
		transport.TLSClientConfig = &tls.Config{InsecureSkipVerify: true}
	}
	return transport
}

// Close releases both endpoint proxies.
func (c *Client) Close() {
	if c.common != nil {
		c.common.Close()
	}
	if c.object != nil {
		c.object.Close()
	}
}

// Authenticate logs in against the common endpoint. The remote returns the
// user id on success and a falsy value on bad credentials.
func (c *Client) Authenticate(ctx context.Context) (*LoginSession, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	var result interface{}
	err := c.common.Call("authenticate", []interface{}{
		c.cfg.Database, c.cfg.Username, c.cfg.APIKey, map[string]interface{}{},
	}, &result)
	if err != nil {
		return nil, &CallError{Model: "common", Method: "authenticate", Err: err}
	}

	uid := cast.ToInt64(result)
	if uid == 0 {
		return nil, &AuthError{URL: c.cfg.URL, Database: c.cfg.Database, Username: c.cfg.Username}
	}

	return &LoginSession{client: c, uid: uid}, nil
}

// ExecuteKw performs a generic typed call against the object endpoint.
func (s *LoginSession) ExecuteKw(ctx context.Context, model, method string, args []interface{}, kw map[string]interface{}) (interface{}, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if args == nil {
		args = []interface{}{}
	}
	if kw == nil {
		kw = map[string]interface{}{}
	}

	started := time.Now()
	var result interface{}
	call := func() error {
		result = nil
		return s.client.object.Call("execute_kw", []interface{}{
			s.client.cfg.Database, s.uid, s.client.cfg.APIKey, model, method, args, kw,
		}, &result)
	}
	var err error
	if retryableMethod(method) {
		err = withRetry(ctx, DefaultRetryConfig(), call)
	} else {
		// a create or write may have committed before the connection died;
		// re-issuing it would duplicate the remote record
		err = call()
	}
	metrics.RecordRemoteCall(model, method, time.Since(started), err)
	if err != nil {
		return nil, &CallError{Model: model, Method: method, Err: err}
	}
	return result, nil
}

// UID returns the remote user id of the session.
func (s *LoginSession) UID() int64 {
	return s.uid
}

// TestResult describes the outcome of a connection test.
type TestResult struct {
	Status   string // "ok" or "error"
	Error    string
	TestedAt time.Time
}

// TestConnection authenticates and probes read access to the remote product
// model. It never returns an error: failures are folded into the result so
// the caller can persist and render them.
func (c *Client) TestConnection(ctx context.Context) TestResult {
	now := time.Now().UTC()

	session, err := c.Authenticate(ctx)
	if err != nil {
		return TestResult{Status: "error", Error: err.Error(), TestedAt: now}
	}

	_, err = session.ExecuteKw(ctx, "product.template", "check_access_rights",
		[]interface{}{"read"}, map[string]interface{}{"raise_exception": false})
	if err != nil {
		return TestResult{Status: "error", Error: err.Error(), TestedAt: now}
	}

	return TestResult{Status: "ok", TestedAt: now}
}

// Search returns the ids of remote records matching the domain.
func Search(ctx context.Context, s Session, model string, domain []interface{}) ([]int64, error) {
	result, err := s.ExecuteKw(ctx, model, "search", []interface{}{domain}, nil)
	if err != nil {
		return nil, err
	}
	return toInt64Slice(result), nil
}

// Read fetches the named fields of the given remote records.
func Read(ctx context.Context, s Session, model string, ids []int64, fields []string) ([]map[string]interface{}, error) {
	idArgs := make([]interface{}, len(ids))
	for i, id := range ids {
		idArgs[i] = id
	}
	result, err := s.ExecuteKw(ctx, model, "read", []interface{}{idArgs},
		map[string]interface{}{"fields": fields})
	if err != nil {
		return nil, err
	}
	return toRecordSlice(result), nil
}

// SearchRead combines search and read in a single round trip.
func SearchRead(ctx context.Context, s Session, model string, domain []interface{}, fields []string, limit int) ([]map[string]interface{}, error) {
	kw := map[string]interface{}{"fields": fields}
	if limit > 0 {
		kw["limit"] = limit
	}
	result, err := s.ExecuteKw(ctx, model, "search_read", []interface{}{domain}, kw)
	if err != nil {
		return nil, err
	}
	return toRecordSlice(result), nil
}

// Create creates one remote record and returns its id.
func Create(ctx context.Context, s Session, model string, vals map[string]interface{}) (int64, error) {
	result, err := s.ExecuteKw(ctx, model, "create", []interface{}{vals}, nil)
	if err != nil {
		return 0, err
	}
	return cast.ToInt64(result), nil
}

// Write updates the given remote records.
func Write(ctx context.Context, s Session, model string, ids []int64, vals map[string]interface{}) error {
	idArgs := make([]interface{}, len(ids))
	for i, id := range ids {
		idArgs[i] = id
	}
	_, err := s.ExecuteKw(ctx, model, "write", []interface{}{idArgs, vals}, nil)
	return err
}

func toInt64Slice(v interface{}) []int64 {
	raw, ok := v.([]interface{})
	if !ok {
		return nil
	}
	out := make([]int64, 0, len(raw))
	for _, item := range raw {
		out = append(out, cast.ToInt64(item))
	}
	return out
}

func toRecordSlice(v interface{}) []map[string]interface{} {
	raw, ok := v.([]interface{})
	if !ok {
		return nil
	}
	out := make([]map[string]interface{}, 0, len(raw))
	for _, item := range raw {
		if rec, ok := item.(map[string]interface{}); ok {
			out = append(out, rec)
		}
	}
	return out
}

// RelationID extracts the id from an XML-RPC many2one value, which arrives as
// [id, display_name] or as a bare id.
func RelationID(v interface{}) int64 {
	if pair, ok := v.([]interface{}); ok {
		if len(pair) > 0 {
			return cast.ToInt64(pair[0])
		}
		return 0
	}
	return cast.ToInt64(v)
}
