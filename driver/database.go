package driver

import (
	"context"
	"fmt"
	"io"
	"net/http"
)

// DatabaseManager performs administrative operations: creating, deleting,
// listing databases and fetching their schema text.
type DatabaseManager struct {
	driver *Driver
}

// All returns the names of every database on the server.
func (dm *DatabaseManager) All() ([]string, error) {
	resp, err := dm.driver.do(context.Background(), http.MethodGet, []string{"v1", "databases"}, nil)
	if err != nil {
		return nil, err
	}
	var payload map[string]any
	if err := decodeBody(resp, &payload); err != nil {
		return nil, err
	}

	raw, _ := payload["databases"].([]any)
	names := make([]string, 0, len(raw))
	for _, el := range raw {
		switch v := el.(type) {
		case string:
			names = append(names, v)
		case map[string]any:
			if name, ok := v["name"].(string); ok {
				names = append(names, name)
			}
		}
	}
	return names, nil
}

// Create makes a new database with the given name.
func (dm *DatabaseManager) Create(name string) error {
	resp, err := dm.driver.do(context.Background(), http.MethodPost, []string{"v1", "databases", name}, nil)
	if err != nil {
		return err
	}
	resp.Body.Close()
	return nil
}

// Contains reports whether the named database exists.
func (dm *DatabaseManager) Contains(name string) (bool, error) {
	names, err := dm.All()
	if err != nil {
		return false, err
	}
	for _, n := range names {
		if n == name {
			return true, nil
		}
	}
	return false, nil
}

// Schema returns the database's schema as TypeQL define text.
func (dm *DatabaseManager) Schema(name string) (string, error) {
	resp, err := dm.driver.do(context.Background(), http.MethodGet, []string{"v1", "databases", name, "schema"}, nil)
	if err != nil {
		return "", err
	}
	defer resp.Body.Close()
	text, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", fmt.Errorf("driver: read schema response: %w", err)
	}
	return string(text), nil
}

// Delete permanently removes the named database.
func (dm *DatabaseManager) Delete(name string) error {
	resp, err := dm.driver.do(context.Background(), http.MethodDelete, []string{"v1", "databases", name}, nil)
	if err != nil {
		return err
	}
	resp.Body.Close()
	return nil
}
