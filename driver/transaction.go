package driver

import (
	"context"
	"net/http"
	"sync"
)

// Transaction is one server-side unit of work. It must end in exactly one
// of Commit, Rollback, or Close; afterwards all methods fail or no-op.
type Transaction struct {
	driver *Driver
	id     string

	mu   sync.Mutex
	open bool
}

// ID returns the server-assigned transaction id.
func (t *Transaction) ID() string { return t.id }

// IsOpen reports whether the transaction can still execute queries.
func (t *Transaction) IsOpen() bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.open
}

// Query executes one TypeQL query and returns its answer rows.
func (t *Transaction) Query(query string) ([]map[string]any, error) {
	return t.QueryWithContext(context.Background(), query)
}

// QueryWithContext executes one TypeQL query; cancelling ctx aborts the
// HTTP request. The transaction itself stays open on cancellation and the
// caller decides whether to roll back.
func (t *Transaction) QueryWithContext(ctx context.Context, query string) ([]map[string]any, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	t.mu.Lock()
	if !t.open {
		t.mu.Unlock()
		return nil, ErrTransactionClosed
	}
	t.mu.Unlock()

	resp, err := t.driver.do(ctx, http.MethodPost, []string{"v1", "transactions", t.id, "query"}, map[string]string{
		"query": query,
	})
	if err != nil {
		return nil, err
	}
	var payload map[string]any
	if err := decodeBody(resp, &payload); err != nil {
		return nil, err
	}
	return answerRows(payload), nil
}

// answerRows extracts the answer list from a query response, tolerating
// both the document ("answers") and row ("rows") payload shapes.
func answerRows(payload map[string]any) []map[string]any {
	raw, ok := payload["answers"].([]any)
	if !ok {
		raw, _ = payload["rows"].([]any)
	}
	rows := make([]map[string]any, 0, len(raw))
	for _, el := range raw {
		if row, ok := el.(map[string]any); ok {
			rows = append(rows, row)
		}
	}
	return rows
}

func (t *Transaction) finish(path string) error {
	t.mu.Lock()
	if !t.open {
		t.mu.Unlock()
		return ErrTransactionClosed
	}
	t.open = false
	t.mu.Unlock()

	resp, err := t.driver.do(context.Background(), http.MethodPost, []string{"v1", "transactions", t.id, path}, nil)
	if err != nil {
		return err
	}
	resp.Body.Close()
	return nil
}

// Commit persists the transaction's changes and closes it.
func (t *Transaction) Commit() error {
	return t.finish("commit")
}

// Rollback discards the transaction's changes and closes it.
func (t *Transaction) Rollback() error {
	return t.finish("rollback")
}

// Close releases the transaction without committing. Safe to defer after a
// Commit; closing twice is a no-op.
func (t *Transaction) Close() {
	t.mu.Lock()
	if !t.open {
		t.mu.Unlock()
		return
	}
	t.open = false
	t.mu.Unlock()

	resp, err := t.driver.do(context.Background(), http.MethodPost, []string{"v1", "transactions", t.id, "close"}, nil)
	if err == nil {
		resp.Body.Close()
	}
}
