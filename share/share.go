// Package share hands an exported document to a share target and falls
// back to saving it locally when sharing is unavailable or fails.
package share

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"github.com/wudi/pdfmark/observability"
)

const (
	DefaultFileName = "edited_document.pdf"
	MIMEType        = "application/pdf"
	Title           = "Edited PDF"
	Text            = "Here is the edited PDF document."

	PromptUnsupported = "Sharing files is not supported here. Download the file instead?"
	PromptFailed      = "Sharing failed. Do you want to download the file instead?"
)

var (
	// ErrCanceled is returned by a Target when the user dismissed the share.
	ErrCanceled = errors.New("share canceled")
	// ErrUnsupported is returned by a Target that cannot share files.
	ErrUnsupported = errors.New("sharing not supported")
)

// ShareError reports a failed share whose download fallback also failed.
type ShareError struct {
	// Cause is the share failure that triggered the fallback.
	Cause error
	Err   error
}

func (e *ShareError) Error() string {
	return fmt.Sprintf("share: %v; download fallback: %v", e.Cause, e.Err)
}

func (e *ShareError) Unwrap() error { return e.Err }

// File is a document ready to share.
type File struct {
	Name     string
	MIMEType string
	Data     []byte
}

// NewFile wraps exported PDF bytes under DefaultFileName.
func NewFile(data []byte) File {
	return File{Name: DefaultFileName, MIMEType: MIMEType, Data: data}
}

// Message accompanies a shared file.
type Message struct {
	Title string
	Text  string
}

// Target is a platform share facility.
type Target interface {
	CanShare(f File) bool
	Share(ctx context.Context, f File, msg Message) error
}

// Downloader stores a file locally and returns where it went.
type Downloader interface {
	Download(ctx context.Context, f File) (string, error)
}

// DirDownloader writes files into Dir.
type DirDownloader struct {
	Dir string
}

func (d DirDownloader) Download(ctx context.Context, f File) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	dir := d.Dir
	if dir == "" {
		dir = "."
	}
	path := filepath.Join(dir, filepath.Base(f.Name))
	if err := os.WriteFile(path, f.Data, 0o644); err != nil {
		return "", err
	}
	return path, nil
}

// Outcome is what became of a Share call.
type Outcome int

const (
	Shared Outcome = iota + 1
	Downloaded
	Canceled
	Declined
)

func (o Outcome) String() string {
	switch o {
	case Shared:
		return "shared"
	case Downloaded:
		return "downloaded"
	case Canceled:
		return "canceled"
	case Declined:
		return "declined"
	}
	return "unknown"
}

// Result describes a completed Share.
type Result struct {
	Outcome Outcome
	// Path is set for Downloaded.
	Path string
}

// Sharer shares files with a download fallback.
type Sharer struct {
	target   Target
	download Downloader
	confirm  func(prompt string) bool
	log      observability.Logger
}

// Option configures a Sharer.
type Option func(*Sharer)

// WithTarget sets the share target; without one every share falls back.
func WithTarget(t Target) Option { return func(s *Sharer) { s.target = t } }

// WithDownloader replaces the current-directory downloader.
func WithDownloader(d Downloader) Option { return func(s *Sharer) { s.download = d } }

// WithConfirm sets the yes/no prompt for the fallback. The default
// declines.
func WithConfirm(fn func(prompt string) bool) Option { return func(s *Sharer) { s.confirm = fn } }

func WithLogger(l observability.Logger) Option {
	return func(s *Sharer) { s.log = observability.OrNop(l) }
}

func New(opts ...Option) *Sharer {
	s := &Sharer{
		download: DirDownloader{},
		confirm:  func(string) bool { return false },
		log:      observability.NopLogger{},
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Share offers f to the target. A user cancel is silent. When the target is
// missing, cannot share f, or fails, the user is asked whether to download
// instead.
func (s *Sharer) Share(ctx context.Context, f File) (Result, error) {
	var err error
	if s.target == nil || !s.target.CanShare(f) {
		err = ErrUnsupported
	} else {
		err = s.target.Share(ctx, f, Message{Title: Title, Text: Text})
	}
	switch {
	case err == nil:
		s.log.Info("document shared", observability.String("file", f.Name))
		return Result{Outcome: Shared}, nil
	case errors.Is(err, ErrCanceled):
		s.log.Debug("share canceled")
		return Result{Outcome: Canceled}, nil
	}

	prompt := PromptFailed
	if errors.Is(err, ErrUnsupported) {
		prompt = PromptUnsupported
	}
	s.log.Warn("share unavailable, offering download", observability.Error("error", err))
	if !s.confirm(prompt) {
		return Result{Outcome: Declined}, nil
	}
	path, derr := s.download.Download(ctx, f)
	if derr != nil {
		return Result{}, &ShareError{Cause: err, Err: derr}
	}
	s.log.Info("document downloaded", observability.String("path", path))
	return Result{Outcome: Downloaded, Path: path}, nil
}
