package transfer_test

import (
	"bytes"
	"context"
	"io"
	"net"
	"testing"

	"sshmanager/pkg/localfs"
	"sshmanager/pkg/remote"
	"sshmanager/pkg/transfer"

	"github.com/pkg/sftp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// sftpPair runs the queue against a real SFTP client talking to an
// in-memory server.
func sftpPair(t *testing.T) (*remote.Session, *sftp.Client, *localfs.FS) {
	t.Helper()

	serverConn, clientConn := net.Pipe()
	server := sftp.NewRequestServer(serverConn, sftp.InMemHandler())
	go server.Serve()

	client, err := sftp.NewClientPipe(clientConn, clientConn)
	require.NoError(t, err)

	local := localfs.NewInMemory()
	session := remote.NewSession(client, local, 16)
	t.Cleanup(func() {
		session.Close()
		server.Close()
	})
	return session, client, local
}

func putRemote(t *testing.T, client *sftp.Client, dir, name string, data []byte) {
	t.Helper()
	require.NoError(t, client.MkdirAll(dir))
	f, err := client.Create(dir + "/" + name)
	require.NoError(t, err)
	_, err = f.Write(data)
	require.NoError(t, err)
	require.NoError(t, f.Close())
}

func getRemote(t *testing.T, client *sftp.Client, p string) []byte {
	t.Helper()
	f, err := client.Open(p)
	require.NoError(t, err)
	defer f.Close()
	data, err := io.ReadAll(struct{ io.Reader }{f})
	require.NoError(t, err)
	return data
}

func TestIntegration_UploadAndDownload(t *testing.T) {
	session, client, local := sftpPair(t)
	tq := transfer.NewTransferQueue(transfer.QueueConfig{}, session, local)

	alpha := bytes.Repeat([]byte("alpha-"), 50)
	beta := bytes.Repeat([]byte("beta-"), 70)
	require.NoError(t, local.WriteFile("/home/user/alpha.txt", alpha))
	require.NoError(t, local.WriteFile("/home/user/beta.txt", beta))
	putRemote(t, client, "/srv/data", "gamma.bin", []byte("gamma payload"))

	uploads, err := tq.EnqueueUploads(context.Background(), []string{"/home/user/alpha.txt", "/home/user/beta.txt"}, "/srv/incoming", nil)
	require.NoError(t, err)
	require.Len(t, uploads, 2)

	downloads, err := tq.EnqueueDownloads(context.Background(), []string{"/srv/data/gamma.bin"}, "/home/user/downloads", nil)
	require.NoError(t, err)
	require.Len(t, downloads, 1)

	waitIdle(t, tq)

	for _, item := range tq.Items() {
		assert.Equal(t, transfer.StatusCompleted, item.Status, item.FileName)
		assert.Equal(t, float64(100), item.Progress)
	}
	assert.Equal(t, alpha, getRemote(t, client, "/srv/incoming/alpha.txt"))
	assert.Equal(t, beta, getRemote(t, client, "/srv/incoming/beta.txt"))

	data, err := local.ReadFile("/home/user/downloads/gamma.bin")
	require.NoError(t, err)
	assert.Equal(t, "gamma payload", string(data))
}

func TestIntegration_ResumeUpload(t *testing.T) {
	session, client, local := sftpPair(t)
	tq := transfer.NewTransferQueue(transfer.QueueConfig{}, session, local)

	payload := []byte("0123456789abcdefghijklmnopqrstuvwxyz")
	require.NoError(t, local.WriteFile("/home/user/seq.txt", payload))
	putRemote(t, client, "/srv", "seq.txt", payload[:10])

	var conflicts []transfer.Conflict
	added, err := tq.EnqueueUploads(context.Background(), []string{"/home/user/seq.txt"}, "/srv",
		func(_ context.Context, c transfer.Conflict) (transfer.ConflictDecision, bool) {
			conflicts = append(conflicts, c)
			return transfer.ConflictDecision{Resolution: transfer.ResolutionResume}, true
		})
	require.NoError(t, err)
	require.Len(t, conflicts, 1)
	assert.Equal(t, int64(10), conflicts[0].ExistingSize)
	assert.True(t, conflicts[0].CanResume)
	require.Len(t, added, 1)
	assert.Equal(t, int64(10), added[0].ResumeOffset)

	waitIdle(t, tq)

	item, ok := tq.Item(added[0].ID)
	require.True(t, ok)
	assert.Equal(t, transfer.StatusCompleted, item.Status)
	assert.Equal(t, payload, getRemote(t, client, "/srv/seq.txt"))
}

func TestIntegration_KeepBothUpload(t *testing.T) {
	session, client, local := sftpPair(t)
	tq := transfer.NewTransferQueue(transfer.QueueConfig{}, session, local)

	require.NoError(t, local.WriteFile("/home/user/notes.md", []byte("new notes")))
	putRemote(t, client, "/srv", "notes.md", []byte("old notes"))

	added, err := tq.EnqueueUploads(context.Background(), []string{"/home/user/notes.md"}, "/srv",
		transfer.WithPolicy(transfer.ResolutionKeepBoth))
	require.NoError(t, err)
	require.Len(t, added, 1)
	assert.Equal(t, "/srv/notes (1).md", added[0].RemotePath)

	waitIdle(t, tq)

	assert.Equal(t, "old notes", string(getRemote(t, client, "/srv/notes.md")))
	assert.Equal(t, "new notes", string(getRemote(t, client, "/srv/notes (1).md")))
}
