//go:generate go run go.uber.org/mock/mockgen -source=session.go -destination=../../mocks/mock_remote_session.go -package=mocks
package transfer

import "context"

// ProgressFunc receives the completed percentage (0-100) of the whole file.
type ProgressFunc func(percent float64)

type RemoteFileInfo struct {
	Size int64
}

// RemoteSession is the byte-moving capability of a connected SFTP session.
// Both range primitives must honour an arbitrary start offset and stop at
// their next checkpoint once ctx is cancelled.
type RemoteSession interface {
	Stat(ctx context.Context, remotePath string) (RemoteFileInfo, error)
	UploadRange(ctx context.Context, localPath, remotePath string, offset int64, onProgress ProgressFunc) error
	DownloadRange(ctx context.Context, remotePath, localPath string, offset int64, onProgress ProgressFunc) error
}
