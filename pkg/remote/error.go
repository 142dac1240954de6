package remote

import (
	"errors"
	"fmt"
	"io/fs"

	"github.com/pkg/sftp"
)

// ErrNotConnected is returned by every operation after the session closed.
var ErrNotConnected = errors.New("sftp session is not connected")

// RemoteError records the SFTP operation and path that failed.
type RemoteError struct {
	Op   string
	Path string
	Err  error
}

func (e *RemoteError) Error() string {
	return fmt.Sprintf("sftp %s %s: %v", e.Op, e.Path, e.Err)
}

func (e *RemoteError) Unwrap() error {
	return e.Err
}

func newRemoteError(op, path string, err error) error {
	return &RemoteError{Op: op, Path: path, Err: err}
}

// IsRemoteError checks if err came from an SFTP operation.
func IsRemoteError(err error) bool {
	var re *RemoteError
	return errors.As(err, &re)
}

// IsNotFound reports whether the remote path did not exist.
func IsNotFound(err error) bool {
	return errors.Is(err, fs.ErrNotExist)
}

// GetStatusCode extracts the raw SFTP status code, 0 if err carries none.
func GetStatusCode(err error) uint32 {
	var statusErr *sftp.StatusError
	if errors.As(err, &statusErr) {
		return statusErr.Code
	}
	return 0
}
