package engine

import (
	"errors"
	"fmt"
	"strings"

	"github.com/seantiz/modreg/internal/model"
)

var (
	ErrNotFound               = errors.New("module not found")
	ErrDuplicateKey           = errors.New("module already installed")
	ErrCoreModuleImmutable    = errors.New("core module cannot be changed")
	ErrUnmetDependencies      = errors.New("unmet dependencies")
	ErrHasDependents          = errors.New("enabled modules depend on it")
	ErrInvalidSettingsPayload = errors.New("invalid settings payload")
	ErrInvalidVersion         = errors.New("invalid module version")
	ErrInvalidKey             = model.ErrInvalidKey
)

// Error is returned for every rejected registry operation. It unwraps to one
// of the sentinel errors above and carries the keys that blocked the
// operation, if any.
type Error struct {
	Op   string
	Key  string
	Keys []string
	Err  error
}

func (e *Error) Error() string {
	msg := fmt.Sprintf("%s %q: %v", e.Op, e.Key, e.Err)
	if len(e.Keys) > 0 {
		msg += ": " + strings.Join(e.Keys, ", ")
	}
	return msg
}

func (e *Error) Unwrap() error {
	return e.Err
}

// BlockingKeys returns the keys carried by a registry error, or nil.
func BlockingKeys(err error) []string {
	var re *Error
	if errors.As(err, &re) {
		return re.Keys
	}
	return nil
}

func opError(op, key string, err error, keys ...string) *Error {
	return &Error{Op: op, Key: key, Keys: keys, Err: err}
}
