package remote

import "time"

type Config struct {
	Host     string
	Port     int
	Username string
	Password string
	// KeyPath points at a private key used instead of, or besides, Password.
	KeyPath       string
	KeyPassphrase string
	// KnownHostsPath is checked unless InsecureIgnoreHostKey is set.
	KnownHostsPath        string
	InsecureIgnoreHostKey bool
	DialTimeout           time.Duration
	BufferSize            int
}

const (
	DefaultPort        = 22
	DefaultDialTimeout = 15 * time.Second
	DefaultBufferSize  = 32 * 1024

	// progressInterval throttles progress callbacks.
	progressInterval = 150 * time.Millisecond
)
