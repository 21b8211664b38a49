package driver

import (
	"github.com/typebridge/typebridge/bridge"
)

// Session adapts a Driver to the bridge connection interface.
type Session struct {
	d *Driver
}

var _ bridge.Conn = (*Session)(nil)

// NewSession wraps an open driver.
func NewSession(d *Driver) *Session {
	return &Session{d: d}
}

// Connect opens a driver and returns it wrapped as a Session.
func Connect(address, username, password string) (*Session, error) {
	d, err := Open(address, username, password)
	if err != nil {
		return nil, err
	}
	return NewSession(d), nil
}

// Driver returns the underlying driver.
func (s *Session) Driver() *Driver { return s.d }

func (s *Session) Transaction(dbName string, txType int) (bridge.Tx, error) {
	return s.d.Transaction(dbName, TransactionType(txType))
}

func (s *Session) Schema(dbName string) (string, error) {
	return s.d.Databases().Schema(dbName)
}

func (s *Session) DatabaseCreate(name string) error {
	return s.d.Databases().Create(name)
}

func (s *Session) DatabaseDelete(name string) error {
	return s.d.Databases().Delete(name)
}

func (s *Session) DatabaseContains(name string) (bool, error) {
	return s.d.Databases().Contains(name)
}

func (s *Session) DatabaseAll() ([]string, error) {
	return s.d.Databases().All()
}

func (s *Session) Close() { s.d.Close() }

func (s *Session) IsOpen() bool { return s.d.IsOpen() }
