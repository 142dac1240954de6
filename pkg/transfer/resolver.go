package transfer

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"path"
	"path/filepath"
	"strings"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
)

// DefaultKeepBothLimit is the highest " (N)" suffix probed before falling
// back to a random one.
const DefaultKeepBothLimit = 999

// transferPair is one source/destination pair on its way into the queue.
type transferPair struct {
	localPath    string
	remotePath   string
	totalBytes   int64
	resumeOffset int64
}

// ConflictResolver decides what happens to pairs whose destination already
// has content.
type ConflictResolver struct {
	session       RemoteSession
	local         LocalFS
	keepBothLimit int
}

func NewConflictResolver(session RemoteSession, local LocalFS, keepBothLimit int) *ConflictResolver {
	if keepBothLimit <= 0 {
		keepBothLimit = DefaultKeepBothLimit
	}
	return &ConflictResolver{
		session:       session,
		local:         local,
		keepBothLimit: keepBothLimit,
	}
}

// CanResume reports whether a partial destination of existingSize bytes can
// be continued towards totalBytes.
func CanResume(existingSize, totalBytes int64) bool {
	return existingSize > 0 && totalBytes > 0 && existingSize < totalBytes
}

// resolveBatch walks pairs in order and returns the ones that should be
// transferred. The apply-to-all policy lives only for this call.
func (cr *ConflictResolver) resolveBatch(ctx context.Context, direction Direction, pairs []transferPair, onConflict ConflictFunc) ([]transferPair, error) {
	var (
		policy   *Resolution
		resolved = make([]transferPair, 0, len(pairs))
	)

	for i, pair := range pairs {
		if err := ctx.Err(); err != nil {
			return resolved, err
		}

		existingSize, exists := cr.probeDestination(ctx, direction, pair)
		if !exists {
			pair.resumeOffset = 0
			resolved = append(resolved, pair)
			continue
		}

		conflict := Conflict{
			Direction:    direction,
			LocalPath:    pair.localPath,
			RemotePath:   pair.remotePath,
			ExistingSize: existingSize,
			TotalBytes:   pair.totalBytes,
			CanResume:    CanResume(existingSize, pair.totalBytes),
		}

		resolution, err := cr.decide(ctx, conflict, policy, onConflict)
		if errors.Is(err, ErrBatchAborted) {
			logrus.WithFields(logrus.Fields{
				"function":  "resolveBatch",
				"direction": direction,
				"remaining": len(pairs) - i,
			}).Info("Conflict prompt declined, stopping batch")
			return resolved, nil
		}
		if err != nil {
			return resolved, err
		}
		if policy == nil && resolution.ApplyToAll {
			r := resolution.Resolution
			policy = &r
		}

		if next, keep := cr.apply(ctx, direction, pair, conflict, resolution.Resolution); keep {
			resolved = append(resolved, next)
		}
	}

	return resolved, nil
}

func (cr *ConflictResolver) decide(ctx context.Context, c Conflict, policy *Resolution, onConflict ConflictFunc) (ConflictDecision, error) {
	if policy != nil {
		return ConflictDecision{Resolution: *policy}, nil
	}

	if onConflict == nil {
		logrus.WithFields(logrus.Fields{
			"function":    "decide",
			"destination": destinationOf(c),
		}).Warn("No conflict handler for batch, skipping existing destination")
		return ConflictDecision{Resolution: ResolutionSkip}, nil
	}

	decision, ok := onConflict(ctx, c)
	if !ok {
		return ConflictDecision{}, ErrBatchAborted
	}
	return decision, nil
}

func (cr *ConflictResolver) apply(ctx context.Context, direction Direction, pair transferPair, c Conflict, r Resolution) (transferPair, bool) {
	fields := logrus.Fields{
		"function":      "apply",
		"destination":   destinationOf(c),
		"existing_size": c.ExistingSize,
		"total_bytes":   c.TotalBytes,
		"resolution":    r,
	}

	switch r {
	case ResolutionSkip:
		logrus.WithFields(fields).Debug("Skipping conflicting destination")
		return pair, false

	case ResolutionResume:
		switch {
		case c.TotalBytes > 0 && c.ExistingSize >= c.TotalBytes:
			logrus.WithFields(fields).Info("Destination already complete, skipping instead of resuming")
			return pair, false
		case c.ExistingSize <= 0 || c.TotalBytes <= 0:
			logrus.WithFields(fields).Info("Destination not resumable, overwriting instead")
			pair.resumeOffset = 0
			return pair, true
		}
		pair.resumeOffset = c.ExistingSize
		return pair, true

	case ResolutionKeepBoth:
		pair.resumeOffset = 0
		if direction == DirectionUpload {
			pair.remotePath = cr.uniqueRemotePath(ctx, pair.remotePath)
		} else {
			pair.localPath = cr.uniqueLocalPath(pair.localPath)
		}
		return pair, true

	default:
		pair.resumeOffset = 0
		return pair, true
	}
}

// probeDestination reports the size of an existing destination. Lookup
// failures count as "absent".
func (cr *ConflictResolver) probeDestination(ctx context.Context, direction Direction, pair transferPair) (int64, bool) {
	if direction == DirectionUpload {
		info, err := cr.session.Stat(ctx, pair.remotePath)
		if err != nil {
			logProbeError("probeDestination", pair.remotePath, err)
			return 0, false
		}
		return info.Size, true
	}

	size, err := cr.local.Size(pair.localPath)
	if err != nil {
		logProbeError("probeDestination", pair.localPath, err)
		return 0, false
	}
	return size, true
}

// destinationSize re-probes a destination after a run or before a resume.
func (cr *ConflictResolver) destinationSize(ctx context.Context, item TransferItem) (int64, error) {
	if item.Direction == DirectionUpload {
		info, err := cr.session.Stat(ctx, item.RemotePath)
		if err != nil {
			return 0, fmt.Errorf("stat remote %s: %w", item.RemotePath, err)
		}
		return info.Size, nil
	}

	size, err := cr.local.Size(item.LocalPath)
	if err != nil {
		return 0, fmt.Errorf("stat local %s: %w", item.LocalPath, err)
	}
	return size, nil
}

// sourceSize returns the length of the file being sent, 0 when unknown.
func (cr *ConflictResolver) sourceSize(ctx context.Context, direction Direction, localPath, remotePath string) int64 {
	if direction == DirectionUpload {
		size, err := cr.local.Size(localPath)
		if err != nil {
			logProbeError("sourceSize", localPath, err)
			return 0
		}
		return size
	}

	info, err := cr.session.Stat(ctx, remotePath)
	if err != nil {
		logProbeError("sourceSize", remotePath, err)
		return 0
	}
	return info.Size
}

func (cr *ConflictResolver) uniqueRemotePath(ctx context.Context, remotePath string) string {
	return uniqueName(remotePath, path.Split, path.Join, cr.keepBothLimit, func(candidate string) bool {
		_, err := cr.session.Stat(ctx, candidate)
		return err == nil
	})
}

func (cr *ConflictResolver) uniqueLocalPath(localPath string) string {
	return uniqueName(localPath, filepath.Split, filepath.Join, cr.keepBothLimit, func(candidate string) bool {
		exists, err := cr.local.Exists(candidate)
		if err != nil {
			logProbeError("uniqueLocalPath", candidate, err)
			return false
		}
		return exists
	})
}

// uniqueName returns "stem (N)ext" for the first N in 1..limit that exists
// reports free, then a random suffix.
func uniqueName(p string, split func(string) (string, string), join func(...string) string, limit int, exists func(string) bool) string {
	dir, base := split(p)
	ext := path.Ext(base)
	stem := strings.TrimSuffix(base, ext)
	if stem == "" {
		stem, ext = base, ""
	}

	for n := 1; n <= limit; n++ {
		candidate := join(dir, fmt.Sprintf("%s (%d)%s", stem, n, ext))
		if !exists(candidate) {
			return candidate
		}
	}

	return join(dir, fmt.Sprintf("%s (%s)%s", stem, strings.ReplaceAll(uuid.NewString(), "-", "")[:12], ext))
}

func destinationOf(c Conflict) string {
	if c.Direction == DirectionUpload {
		return c.RemotePath
	}
	return c.LocalPath
}

func logProbeError(function, p string, err error) {
	entry := logrus.WithFields(logrus.Fields{
		"function": function,
		"path":     p,
		"error":    err.Error(),
	})
	if errors.Is(err, fs.ErrNotExist) {
		entry.Debug("Path does not exist")
		return
	}
	entry.Warn("Existence probe failed, treating path as absent")
}
