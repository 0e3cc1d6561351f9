// Package storage mirrors interview artifacts to remote storage.
package storage

import "context"

// Uploader uploads a local file under remoteName and returns a shareable URL.
type Uploader interface {
	Upload(ctx context.Context, localPath, remoteName string) (string, error)
}

// Nop is used when no remote storage is configured. It never produces a link.
type Nop struct{}

// Upload implements Uploader.
func (Nop) Upload(context.Context, string, string) (string, error) {
	return "", nil
}

var _ Uploader = Nop{}
