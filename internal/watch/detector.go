// Package watch triggers guide updates when commits land in a repository.
//
// A CommitDetector follows the HEAD reflog with fsnotify and reports each
// new commit once. A Watcher turns those commits into serialised runs of the
// head scope.
package watch

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
)

var (
	// ErrNotGitRepo indicates the directory is not a Git repository
	ErrNotGitRepo = errors.New("not a git repository")

	// ErrWatcherFailed indicates the filesystem watcher failed to initialize
	ErrWatcherFailed = errors.New("failed to initialize filesystem watcher")
)

// Commit is a commit recorded in the HEAD reflog.
type Commit struct {
	Hash    string
	Message string
	Time    time.Time
}

// CommitDetector reports new commits appended to .git/logs/HEAD.
type CommitDetector struct {
	gitDir  string
	watcher *fsnotify.Watcher
	commits chan Commit
	errs    chan error
	stop    chan struct{}

	mu   sync.Mutex
	last string
}

// NewCommitDetector creates a detector for the repository at root. Commits
// already in the reflog are not reported.
func NewCommitDetector(root string) (*CommitDetector, error) {
	gitDir, err := DetectGitDir(root)
	if err != nil {
		return nil, fmt.Errorf("detecting git directory: %w", err)
	}

	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrWatcherFailed, err)
	}

	d := &CommitDetector{
		gitDir:  gitDir,
		watcher: watcher,
		commits: make(chan Commit, 10),
		errs:    make(chan error, 1),
		stop:    make(chan struct{}),
	}
	if c, ok := d.readLast(); ok {
		d.last = c.Hash
	}
	return d, nil
}

// Start begins watching. The logs directory is created by git on the first
// commit, so until it exists the git directory itself is watched.
func (d *CommitDetector) Start(ctx context.Context) error {
	if err := d.watcher.Add(d.gitDir); err != nil {
		return fmt.Errorf("watching %s: %w", d.gitDir, err)
	}
	d.watchLogs()
	go d.processEvents(ctx)
	return nil
}

// Stop stops the detector and releases the watcher.
func (d *CommitDetector) Stop() {
	select {
	case <-d.stop:
		return
	default:
		close(d.stop)
		_ = d.watcher.Close()
	}
}

// Commits returns the channel of detected commits.
func (d *CommitDetector) Commits() <-chan Commit {
	return d.commits
}

// Errors returns watcher errors. Watching continues after an error.
func (d *CommitDetector) Errors() <-chan error {
	return d.errs
}

func (d *CommitDetector) logsDir() string {
	return filepath.Join(d.gitDir, "logs")
}

func (d *CommitDetector) watchLogs() {
	if info, err := os.Stat(d.logsDir()); err == nil && info.IsDir() {
		_ = d.watcher.Add(d.logsDir())
	}
}

func (d *CommitDetector) processEvents(ctx context.Context) {
	for {
		select {
		case <-d.stop:
			return
		case <-ctx.Done():
			return
		case event, ok := <-d.watcher.Events:
			if !ok {
				return
			}
			switch {
			case event.Name == d.logsDir() && event.Op.Has(fsnotify.Create):
				d.watchLogs()
				d.check()
			case filepath.Base(event.Name) == "HEAD" && filepath.Dir(event.Name) == d.logsDir():
				if event.Op.Has(fsnotify.Write) || event.Op.Has(fsnotify.Create) {
					d.check()
				}
			}
		case err, ok := <-d.watcher.Errors:
			if !ok {
				return
			}
			select {
			case d.errs <- err:
			default:
			}
		}
	}
}

// check emits the latest reflog entry if it is a commit not seen before.
func (d *CommitDetector) check() {
	c, ok := d.readLast()
	if !ok || !isCommit(c.Message) {
		return
	}

	d.mu.Lock()
	if c.Hash == d.last {
		d.mu.Unlock()
		return
	}
	d.last = c.Hash
	d.mu.Unlock()

	select {
	case d.commits <- c:
	default:
		// a run is pending already; the head scope only sees the latest commit
	}
}

func (d *CommitDetector) readLast() (Commit, bool) {
	content, err := os.ReadFile(filepath.Join(d.logsDir(), "HEAD"))
	if err != nil {
		return Commit{}, false
	}
	return parseReflogLine(lastLine(string(content)))
}

func lastLine(s string) string {
	s = strings.TrimRight(s, "\n")
	if i := strings.LastIndexByte(s, '\n'); i >= 0 {
		return s[i+1:]
	}
	return s
}

// parseReflogLine parses "<old> <new> <name> <email> <unix> <tz>\t<message>".
func parseReflogLine(line string) (Commit, bool) {
	head, msg, _ := strings.Cut(line, "\t")
	fields := strings.Fields(head)
	if len(fields) < 2 {
		return Commit{}, false
	}
	c := Commit{Hash: fields[1], Message: strings.TrimSpace(msg)}
	if len(fields) >= 4 {
		var sec int64
		if _, err := fmt.Sscanf(fields[len(fields)-2], "%d", &sec); err == nil {
			c.Time = time.Unix(sec, 0)
		}
	}
	return c, true
}

// isCommit reports whether a reflog message records a new commit, including
// amends, merges and the initial commit. Checkouts and resets do not count.
func isCommit(msg string) bool {
	return strings.HasPrefix(msg, "commit")
}

// DetectGitDir returns the git directory for root. It handles both main
// repositories (.git directory) and worktrees (.git file pointing elsewhere).
func DetectGitDir(root string) (string, error) {
	gitPath := filepath.Join(root, ".git")

	info, err := os.Stat(gitPath)
	if err != nil {
		if os.IsNotExist(err) {
			return "", fmt.Errorf("%w: %s", ErrNotGitRepo, root)
		}
		return "", fmt.Errorf("stat .git: %w", err)
	}
	if info.IsDir() {
		return gitPath, nil
	}

	content, err := os.ReadFile(gitPath)
	if err != nil {
		return "", fmt.Errorf("reading .git file: %w", err)
	}
	dir, ok := strings.CutPrefix(strings.TrimSpace(string(content)), "gitdir:")
	if !ok || strings.TrimSpace(dir) == "" {
		return "", fmt.Errorf("%w: invalid .git file format", ErrNotGitRepo)
	}
	dir = strings.TrimSpace(dir)
	if !filepath.IsAbs(dir) {
		dir = filepath.Join(root, dir)
	}
	return dir, nil
}
