package remote

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"os"
	"path"
	"strconv"
	"sync"
	"time"

	"sshmanager/pkg/localfs"
	"sshmanager/pkg/transfer"

	"github.com/pkg/sftp"
	"github.com/sirupsen/logrus"
	"golang.org/x/crypto/ssh"
	"golang.org/x/crypto/ssh/knownhosts"
)

// Session is one connected SFTP channel plus the local filesystem it moves
// bytes to and from. It is not safe to run two transfers on it at once.
type Session struct {
	sshClient  *ssh.Client
	client     *sftp.Client
	local      *localfs.FS
	bufferSize int

	done      chan struct{}
	closeOnce sync.Once
	mu        sync.Mutex
	closed    bool
}

var _ transfer.RemoteSession = (*Session)(nil)

// Dial opens an SSH connection and starts the SFTP subsystem on it.
func Dial(ctx context.Context, cfg Config, local *localfs.FS) (*Session, error) {
	if cfg.Port == 0 {
		cfg.Port = DefaultPort
	}
	if cfg.DialTimeout <= 0 {
		cfg.DialTimeout = DefaultDialTimeout
	}

	clientConfig, err := clientConfig(cfg)
	if err != nil {
		return nil, err
	}

	addr := net.JoinHostPort(cfg.Host, strconv.Itoa(cfg.Port))
	logrus.WithFields(logrus.Fields{
		"function": "Dial",
		"addr":     addr,
		"user":     cfg.Username,
	}).Info("Establishing SSH connection")

	dialCtx, cancel := context.WithTimeout(ctx, cfg.DialTimeout)
	defer cancel()

	var d net.Dialer
	conn, err := d.DialContext(dialCtx, "tcp", addr)
	if err != nil {
		return nil, fmt.Errorf("failed to dial %s: %w", addr, err)
	}

	if deadline, ok := dialCtx.Deadline(); ok {
		conn.SetDeadline(deadline)
	}
	sshConn, chans, reqs, err := ssh.NewClientConn(conn, addr, clientConfig)
	if err != nil {
		conn.Close()
		return nil, fmt.Errorf("ssh handshake with %s failed: %w", addr, err)
	}
	conn.SetDeadline(time.Time{})
	sshClient := ssh.NewClient(sshConn, chans, reqs)

	client, err := sftp.NewClient(sshClient)
	if err != nil {
		sshClient.Close()
		return nil, fmt.Errorf("failed to start sftp subsystem: %w", err)
	}

	s := NewSession(client, local, cfg.BufferSize)
	s.sshClient = sshClient

	logrus.WithFields(logrus.Fields{
		"function": "Dial",
		"addr":     addr,
	}).Info("SFTP session established")

	return s, nil
}

func clientConfig(cfg Config) (*ssh.ClientConfig, error) {
	var auth []ssh.AuthMethod
	if cfg.KeyPath != "" {
		keyBytes, err := os.ReadFile(cfg.KeyPath)
		if err != nil {
			return nil, fmt.Errorf("failed to read private key %s: %w", cfg.KeyPath, err)
		}
		var signer ssh.Signer
		if cfg.KeyPassphrase != "" {
			signer, err = ssh.ParsePrivateKeyWithPassphrase(keyBytes, []byte(cfg.KeyPassphrase))
		} else {
			signer, err = ssh.ParsePrivateKey(keyBytes)
		}
		if err != nil {
			return nil, fmt.Errorf("failed to parse private key %s: %w", cfg.KeyPath, err)
		}
		auth = append(auth, ssh.PublicKeys(signer))
	}
	if cfg.Password != "" {
		auth = append(auth, ssh.Password(cfg.Password))
	}
	if len(auth) == 0 {
		return nil, errors.New("no ssh authentication method configured")
	}

	var hostKeyCallback ssh.HostKeyCallback
	switch {
	case cfg.InsecureIgnoreHostKey:
		logrus.WithField("function", "clientConfig").Warn("Host key verification disabled")
		hostKeyCallback = ssh.InsecureIgnoreHostKey()
	case cfg.KnownHostsPath != "":
		cb, err := knownhosts.New(cfg.KnownHostsPath)
		if err != nil {
			return nil, fmt.Errorf("failed to load known hosts %s: %w", cfg.KnownHostsPath, err)
		}
		hostKeyCallback = cb
	default:
		return nil, errors.New("no known_hosts file configured and host key checking not disabled")
	}

	return &ssh.ClientConfig{
		User:            cfg.Username,
		Auth:            auth,
		HostKeyCallback: hostKeyCallback,
		Timeout:         cfg.DialTimeout,
	}, nil
}

// NewSession wraps an already connected SFTP client.
func NewSession(client *sftp.Client, local *localfs.FS, bufferSize int) *Session {
	if bufferSize <= 0 {
		bufferSize = DefaultBufferSize
	}
	s := &Session{
		client:     client,
		local:      local,
		bufferSize: bufferSize,
		done:       make(chan struct{}),
	}

	go func() {
		err := client.Wait()
		s.markClosed()
		if err != nil {
			logrus.WithFields(logrus.Fields{
				"function": "NewSession",
				"error":    err.Error(),
			}).Warn("SFTP connection lost")
		}
	}()

	return s
}

// Done is closed once the underlying connection is gone.
func (s *Session) Done() <-chan struct{} {
	return s.done
}

func (s *Session) IsConnected() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return !s.closed
}

func (s *Session) Stat(ctx context.Context, remotePath string) (transfer.RemoteFileInfo, error) {
	if err := s.check(ctx); err != nil {
		return transfer.RemoteFileInfo{}, err
	}

	info, err := s.client.Stat(remotePath)
	if err != nil {
		return transfer.RemoteFileInfo{}, newRemoteError("stat", remotePath, err)
	}
	if info.IsDir() {
		return transfer.RemoteFileInfo{}, newRemoteError("stat", remotePath, errors.New("is a directory"))
	}
	return transfer.RemoteFileInfo{Size: info.Size()}, nil
}

// UploadRange sends localPath from offset onwards into remotePath, creating
// the remote directory when needed. Offset zero replaces the remote file.
func (s *Session) UploadRange(ctx context.Context, localPath, remotePath string, offset int64, onProgress transfer.ProgressFunc) error {
	if err := s.check(ctx); err != nil {
		return err
	}

	total, err := s.local.Size(localPath)
	if err != nil {
		return err
	}
	if offset < 0 || offset > total {
		return fmt.Errorf("upload offset %d outside of %s (%d bytes)", offset, localPath, total)
	}

	src, err := s.local.OpenRead(localPath, offset)
	if err != nil {
		return err
	}
	defer src.Close()

	if err := s.client.MkdirAll(path.Dir(remotePath)); err != nil {
		return newRemoteError("mkdir", path.Dir(remotePath), err)
	}

	flags := os.O_WRONLY | os.O_CREATE
	if offset == 0 {
		flags |= os.O_TRUNC
	}
	dst, err := s.client.OpenFile(remotePath, flags)
	if err != nil {
		return newRemoteError("open", remotePath, err)
	}
	if offset > 0 {
		if _, err := dst.Seek(offset, io.SeekStart); err != nil {
			dst.Close()
			return newRemoteError("seek", remotePath, err)
		}
	}

	logrus.WithFields(logrus.Fields{
		"function": "UploadRange",
		"local":    localPath,
		"remote":   remotePath,
		"offset":   offset,
		"total":    total,
	}).Debug("Uploading")

	copyErr := s.copy(ctx, dst, src, offset, total, onProgress)
	closeErr := dst.Close()
	if copyErr != nil {
		return copyErr
	}
	if closeErr != nil {
		return newRemoteError("close", remotePath, closeErr)
	}
	return nil
}

// DownloadRange fetches remotePath from offset onwards into localPath.
// Offset zero truncates the local file.
func (s *Session) DownloadRange(ctx context.Context, remotePath, localPath string, offset int64, onProgress transfer.ProgressFunc) error {
	if err := s.check(ctx); err != nil {
		return err
	}

	src, err := s.client.Open(remotePath)
	if err != nil {
		return newRemoteError("open", remotePath, err)
	}
	defer src.Close()

	info, err := src.Stat()
	if err != nil {
		return newRemoteError("stat", remotePath, err)
	}
	total := info.Size()
	if offset < 0 || offset > total {
		return fmt.Errorf("download offset %d outside of %s (%d bytes)", offset, remotePath, total)
	}
	if offset > 0 {
		if _, err := src.Seek(offset, io.SeekStart); err != nil {
			return newRemoteError("seek", remotePath, err)
		}
	}

	dst, err := s.local.OpenWrite(localPath, offset)
	if err != nil {
		return err
	}

	logrus.WithFields(logrus.Fields{
		"function": "DownloadRange",
		"remote":   remotePath,
		"local":    localPath,
		"offset":   offset,
		"total":    total,
	}).Debug("Downloading")

	copyErr := s.copy(ctx, dst, src, offset, total, onProgress)
	closeErr := dst.Close()
	if copyErr != nil {
		return copyErr
	}
	if closeErr != nil {
		return fmt.Errorf("failed to close %s: %w", localPath, closeErr)
	}
	return nil
}

func (s *Session) copy(ctx context.Context, dst io.Writer, src io.Reader, offset, total int64, onProgress transfer.ProgressFunc) error {
	pw := newProgressWriter(ctx, dst, offset, total, onProgress)
	buf := make([]byte, s.bufferSize)

	// The plain reader keeps io.CopyBuffer on the progress writer instead of
	// handing the copy to the sftp file's WriteTo/ReadFrom.
	if _, err := io.CopyBuffer(pw, struct{ io.Reader }{src}, buf); err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return ctxErr
		}
		return fmt.Errorf("copy failed after %d bytes: %w", offset+pw.written, err)
	}
	if err := ctx.Err(); err != nil {
		return err
	}

	pw.finish()
	return nil
}

// TestConnection round-trips a request to prove the channel is usable.
func (s *Session) TestConnection() error {
	if !s.IsConnected() {
		return ErrNotConnected
	}
	wd, err := s.client.Getwd()
	if err != nil {
		return newRemoteError("getwd", ".", err)
	}
	logrus.WithFields(logrus.Fields{
		"function": "TestConnection",
		"cwd":      wd,
	}).Info("SFTP connection verified")
	return nil
}

// Close shuts the SFTP channel and the SSH connection beneath it.
func (s *Session) Close() error {
	var err error
	s.closeOnce.Do(func() {
		err = s.client.Close()
		if s.sshClient != nil {
			if sshErr := s.sshClient.Close(); sshErr != nil && err == nil {
				err = sshErr
			}
		}
		s.markClosed()
		logrus.WithField("function", "Close").Info("SFTP session closed")
	})
	return err
}

func (s *Session) markClosed() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.closed {
		s.closed = true
		close(s.done)
	}
}

func (s *Session) check(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if !s.IsConnected() {
		return ErrNotConnected
	}
	return nil
}

// progressWriter counts bytes, stops writing once ctx is cancelled and
// reports whole-file percentages at most every progressInterval.
type progressWriter struct {
	ctx         context.Context
	writer      io.Writer
	offset      int64
	total       int64
	written     int64
	lastEmitted time.Time
	onProgress  transfer.ProgressFunc
}

func newProgressWriter(ctx context.Context, w io.Writer, offset, total int64, onProgress transfer.ProgressFunc) *progressWriter {
	return &progressWriter{
		ctx:        ctx,
		writer:     w,
		offset:     offset,
		total:      total,
		onProgress: onProgress,
	}
}

func (pw *progressWriter) Write(p []byte) (int, error) {
	if err := pw.ctx.Err(); err != nil {
		return 0, err
	}

	n, err := pw.writer.Write(p)
	if n > 0 {
		pw.written += int64(n)
		now := time.Now()
		if now.Sub(pw.lastEmitted) >= progressInterval {
			pw.report(pw.percent())
			pw.lastEmitted = now
		}
	}
	return n, err
}

func (pw *progressWriter) percent() float64 {
	if pw.total <= 0 {
		return 0
	}
	return float64(pw.offset+pw.written) * 100 / float64(pw.total)
}

func (pw *progressWriter) finish() {
	pw.report(100)
}

func (pw *progressWriter) report(percent float64) {
	if pw.onProgress != nil {
		pw.onProgress(percent)
	}
}
