// Package persist writes interview transcripts and timing data to disk and
// mirrors them to remote storage.
package persist

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/zhouzirui/z-interview/backend/internal/model/interview"
	"github.com/zhouzirui/z-interview/backend/internal/service/storage"
)

// Dirs are the local directories artifacts are written to.
type Dirs struct {
	Transcripts string
	Times       string
	Backups     string
}

// Ensure creates all directories.
func (d Dirs) Ensure() error {
	for _, dir := range []string{d.Transcripts, d.Times, d.Backups} {
		if dir == "" {
			continue
		}
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("persist: create %q: %w", dir, err)
		}
	}
	return nil
}

// Snapshot is the state of a session at the time it is persisted.
type Snapshot struct {
	SessionID string
	Username  string
	StartTime time.Time
	Messages  []interview.Message
}

// SnapshotOf copies the persisted fields out of s.
func SnapshotOf(s *interview.Session) Snapshot {
	return Snapshot{
		SessionID: s.ID,
		Username:  s.Username,
		StartTime: s.StartTime,
		Messages:  append([]interview.Message(nil), s.Messages...),
	}
}

// Target selects where a snapshot is written.
type Target int

const (
	// Primary writes {username}.txt into the transcripts and times directories.
	Primary Target = iota
	// Backup writes start-time tagged copies into the backups directory.
	Backup
)

func (t Target) String() string {
	if t == Backup {
		return "backup"
	}
	return "primary"
}

// Artifact describes the files produced by a save.
type Artifact struct {
	TranscriptPath string
	TimePath       string
	// Link is the shareable transcript URL, empty when no upload succeeded.
	Link string
}

// Error reports a failed local write.
type Error struct {
	Target Target
	Path   string
	Err    error
}

func (e *Error) Error() string {
	return fmt.Sprintf("persist: %s write %q: %v", e.Target, e.Path, e.Err)
}

func (e *Error) Unwrap() error { return e.Err }

// Options tune the writer.
type Options struct {
	// UploadTimeFile also mirrors the timing file to remote storage.
	UploadTimeFile bool
	// Now overrides the clock used for the elapsed time.
	Now func() time.Time
}

// Writer produces the transcript and time files for a session.
type Writer struct {
	dirs     Dirs
	uploader storage.Uploader
	opts     Options
}

// NewWriter creates a Writer. A nil uploader disables remote mirroring.
func NewWriter(dirs Dirs, uploader storage.Uploader, opts Options) *Writer {
	if uploader == nil {
		uploader = storage.Nop{}
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}
	return &Writer{dirs: dirs, uploader: uploader, opts: opts}
}

// Save writes both files for snap and uploads them.
//
// Only local write failures are returned, as *Error. Upload failures are
// logged and leave Artifact.Link empty.
func (w *Writer) Save(ctx context.Context, snap Snapshot, target Target) (Artifact, error) {
	art := w.paths(snap, target)

	if err := writeFile(art.TranscriptPath, FormatTranscript(snap)); err != nil {
		return Artifact{}, &Error{Target: target, Path: art.TranscriptPath, Err: err}
	}
	if err := writeFile(art.TimePath, FormatTiming(snap, w.opts.Now())); err != nil {
		return Artifact{}, &Error{Target: target, Path: art.TimePath, Err: err}
	}

	transcriptName, timeName := remoteNames(snap.Username, art, target)
	art.Link = w.upload(ctx, art.TranscriptPath, transcriptName)
	if w.opts.UploadTimeFile {
		w.upload(ctx, art.TimePath, timeName)
	}

	return art, nil
}

// Exists reports whether the primary transcript and time files for username are on disk.
func (w *Writer) Exists(username string) bool {
	art := w.paths(Snapshot{Username: username}, Primary)
	return fileExists(art.TranscriptPath) && fileExists(art.TimePath)
}

// Completed reports whether a primary time file exists for username, which
// marks a finished interview.
func (w *Writer) Completed(username string) bool {
	return fileExists(filepath.Join(w.dirs.Times, safeName(username)+".txt"))
}

func (w *Writer) upload(ctx context.Context, path, name string) string {
	link, err := w.uploader.Upload(ctx, path, name)
	if err != nil {
		log.Warn().Str("component", "persist").Err(err).Str("file", name).Msg("upload failed, continuing without link")
		return ""
	}
	return link
}

func (w *Writer) paths(snap Snapshot, target Target) Artifact {
	user := safeName(snap.Username)
	if target == Backup {
		stamp := interview.StartStamp(snap.StartTime)
		return Artifact{
			TranscriptPath: filepath.Join(w.dirs.Backups, user+"_transcript_started_"+stamp+".txt"),
			TimePath:       filepath.Join(w.dirs.Backups, user+"_time_started_"+stamp+".txt"),
		}
	}
	return Artifact{
		TranscriptPath: filepath.Join(w.dirs.Transcripts, user+".txt"),
		TimePath:       filepath.Join(w.dirs.Times, user+".txt"),
	}
}

func remoteNames(username string, art Artifact, target Target) (string, string) {
	if target == Backup {
		return filepath.Base(art.TranscriptPath), filepath.Base(art.TimePath)
	}
	user := safeName(username)
	return user + "_transcript.txt", user + "_time.txt"
}

// FormatTranscript renders the session id header followed by every message as "role: content".
func FormatTranscript(snap Snapshot) string {
	var b strings.Builder
	fmt.Fprintf(&b, "Session ID: %s\n\n", snap.SessionID)
	for _, m := range snap.Messages {
		fmt.Fprintf(&b, "%s: %s\n", m.Role, m.Content)
	}
	return b.String()
}

// FormatTiming renders the session id, start time and elapsed minutes at now.
func FormatTiming(snap Snapshot, now time.Time) string {
	minutes := now.Sub(snap.StartTime).Minutes()
	return fmt.Sprintf("Session ID: %s\nStart time (UTC): %s\nInterview duration (minutes): %.2f",
		snap.SessionID,
		snap.StartTime.UTC().Format("02/01/2006 15:04:05"),
		minutes,
	)
}

// writeFile replaces path atomically so a concurrent existence check never
// sees a half-written artifact.
func writeFile(path, content string) error {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return err
	}

	tmp, err := os.CreateTemp(dir, ".tmp-*")
	if err != nil {
		return err
	}
	tmpName := tmp.Name()

	if _, err := tmp.WriteString(content); err != nil {
		tmp.Close()
		os.Remove(tmpName)
		return err
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpName)
		return err
	}
	if err := os.Rename(tmpName, path); err != nil {
		os.Remove(tmpName)
		return err
	}
	return nil
}

func fileExists(path string) bool {
	info, err := os.Stat(path)
	if err != nil {
		return false
	}
	return info.Mode().IsRegular()
}

// safeName keeps usernames from escaping the artifact directories.
func safeName(username string) string {
	name := strings.Map(func(r rune) rune {
		switch r {
		case '/', '\\', 0:
			return '_'
		}
		return r
	}, username)
	if name == "" || name == "." || name == ".." {
		return "_"
	}
	return name
}
