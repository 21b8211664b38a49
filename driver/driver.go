package driver

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/vmihailenco/msgpack/v5"
)

// TransactionType specifies the intended mode of a transaction.
type TransactionType int

const (
	// Read transactions are for data retrieval only.
	Read TransactionType = 0
	// Write transactions allow data modification.
	Write TransactionType = 1
	// Schema transactions allow schema modification.
	Schema TransactionType = 2
)

func (t TransactionType) wire() string {
	switch t {
	case Write:
		return "write"
	case Schema:
		return "schema"
	default:
		return "read"
	}
}

// Config holds connection settings for Open.
type Config struct {
	// Address is the server's base URL, e.g. "http://localhost:8000".
	Address  string
	Username string
	Password string
	// HTTPClient overrides the default client (30s timeout).
	HTTPClient *http.Client
}

// Driver is an authenticated connection to one TypeDB server.
type Driver struct {
	base   *url.URL
	client *http.Client

	mu     sync.Mutex
	token  string
	closed bool
}

// Open connects and authenticates against the server at address.
func Open(address, username, password string) (*Driver, error) {
	return OpenWithConfig(Config{Address: address, Username: username, Password: password})
}

// OpenWithConfig connects using explicit configuration.
func OpenWithConfig(cfg Config) (*Driver, error) {
	base, err := url.Parse(strings.TrimSuffix(cfg.Address, "/"))
	if err != nil {
		return nil, fmt.Errorf("driver: parse address %q: %w", cfg.Address, err)
	}
	client := cfg.HTTPClient
	if client == nil {
		client = &http.Client{Timeout: 30 * time.Second}
	}
	d := &Driver{base: base, client: client}

	if err := d.signIn(cfg.Username, cfg.Password); err != nil {
		return nil, err
	}
	return d, nil
}

func (d *Driver) signIn(username, password string) error {
	body, err := json.Marshal(map[string]string{"username": username, "password": password})
	if err != nil {
		return fmt.Errorf("driver: encode credentials: %w", err)
	}
	req, err := http.NewRequest(http.MethodPost, d.endpoint("v1", "signin"), bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("driver: sign in: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("X-Request-ID", uuid.NewString())

	resp, err := d.client.Do(req)
	if err != nil {
		return fmt.Errorf("driver: sign in: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return responseError(resp)
	}
	var payload struct {
		Token string `json:"token"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&payload); err != nil {
		return fmt.Errorf("driver: decode sign-in response: %w", err)
	}
	if payload.Token == "" {
		return &DriverError{Message: "sign-in response carried no token"}
	}

	d.mu.Lock()
	d.token = payload.Token
	d.mu.Unlock()
	return nil
}

func (d *Driver) endpoint(parts ...string) string {
	u := *d.base
	escaped := make([]string, len(parts))
	for i, p := range parts {
		escaped[i] = url.PathEscape(p)
	}
	u.Path = strings.TrimSuffix(u.Path, "/") + "/" + strings.Join(escaped, "/")
	return u.String()
}

// do performs one authenticated request. Request bodies go out as JSON;
// responses are negotiated as MessagePack with a JSON fallback. Every
// request carries a fresh correlation id for server-side log matching.
func (d *Driver) do(ctx context.Context, method string, pathParts []string, body any) (*http.Response, error) {
	d.mu.Lock()
	if d.closed {
		d.mu.Unlock()
		return nil, ErrNotConnected
	}
	token := d.token
	d.mu.Unlock()

	var reader io.Reader
	if body != nil {
		encoded, err := json.Marshal(body)
		if err != nil {
			return nil, fmt.Errorf("driver: encode request: %w", err)
		}
		reader = bytes.NewReader(encoded)
	}

	req, err := http.NewRequestWithContext(ctx, method, d.endpoint(pathParts...), reader)
	if err != nil {
		return nil, fmt.Errorf("driver: build request: %w", err)
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	req.Header.Set("Accept", "application/x-msgpack, application/json")
	req.Header.Set("Authorization", "Bearer "+token)
	req.Header.Set("X-Request-ID", uuid.NewString())

	resp, err := d.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("driver: %s %s: %w", method, strings.Join(pathParts, "/"), err)
	}
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		defer resp.Body.Close()
		return nil, responseError(resp)
	}
	return resp, nil
}

// decodeBody decodes a response body into out according to its content
// type. MessagePack bodies use loose interface decoding so integers do not
// arrive as unexpected widths.
func decodeBody(resp *http.Response, out *map[string]any) error {
	defer resp.Body.Close()
	if strings.Contains(resp.Header.Get("Content-Type"), "msgpack") {
		dec := msgpack.NewDecoder(resp.Body)
		dec.UseLooseInterfaceDecoding(true)
		if err := dec.Decode(out); err != nil {
			return &DriverError{Message: "decode msgpack response: " + err.Error()}
		}
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return &DriverError{Message: "decode json response: " + err.Error()}
	}
	return nil
}

// IsOpen reports whether the driver has not been closed.
func (d *Driver) IsOpen() bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	return !d.closed
}

// Close invalidates the driver. In-flight requests finish; new ones fail
// with ErrNotConnected.
func (d *Driver) Close() {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.closed = true
	d.token = ""
}

// Transaction opens a server-side transaction on the named database.
func (d *Driver) Transaction(databaseName string, txType TransactionType) (*Transaction, error) {
	return d.TransactionWithContext(context.Background(), databaseName, txType)
}

// TransactionWithContext opens a server-side transaction, honoring ctx for
// the open request.
func (d *Driver) TransactionWithContext(ctx context.Context, databaseName string, txType TransactionType) (*Transaction, error) {
	resp, err := d.do(ctx, http.MethodPost, []string{"v1", "transactions", "open"}, map[string]string{
		"databaseName":    databaseName,
		"transactionType": txType.wire(),
	})
	if err != nil {
		return nil, err
	}
	var payload map[string]any
	if err := decodeBody(resp, &payload); err != nil {
		return nil, err
	}
	id, _ := payload["transactionId"].(string)
	if id == "" {
		return nil, &DriverError{Message: "transaction open response carried no id"}
	}
	return &Transaction{driver: d, id: id, open: true}, nil
}

// Databases returns the database administration surface.
func (d *Driver) Databases() *DatabaseManager {
	return &DatabaseManager{driver: d}
}
