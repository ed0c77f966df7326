// Package facade exposes the caller-facing download operations: submit,
// pause/resume/cancel, and progress/status queries. It owns the
// TaskId-to-engine-handle binding the engine itself has no concept of,
// and translates the engine's ad hoc status strings into a small fixed
// vocabulary. Method decomposition (one focused method per operation,
// each returning a plain error) follows the teacher's
// internal/engine/downloads.go; unlike that file, nothing here touches
// a database; the binding map is the facade's only state, and it does
// not survive a restart.
package facade

import (
	"context"
	"encoding/base64"
	"fmt"
	"io"
	"net/http"
	"path/filepath"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"burncloud-aria2/internal/aerrors"
	"burncloud-aria2/internal/rpc"
)

// DownloadKind classifies a submitted URL.
type DownloadKind int

const (
	Http DownloadKind = iota
	Torrent
	Metalink
	Magnet
)

// DetectKind classifies url by the rules: magnet prefix, .torrent
// suffix, .metalink/.meta4 suffix, then http/https/ftp scheme.
func DetectKind(url string) (DownloadKind, error) {
	lower := strings.ToLower(url)
	switch {
	case strings.HasPrefix(lower, "magnet:"):
		return Magnet, nil
	case strings.HasSuffix(lower, ".torrent"):
		return Torrent, nil
	case strings.HasSuffix(lower, ".metalink"), strings.HasSuffix(lower, ".meta4"):
		return Metalink, nil
	case strings.HasPrefix(lower, "http://"), strings.HasPrefix(lower, "https://"), strings.HasPrefix(lower, "ftp://"):
		return Http, nil
	default:
		return 0, aerrors.ErrUnsupportedType
	}
}

// Status is the normalized task state surfaced to callers.
type Status int

const (
	Waiting Status = iota
	Downloading
	Paused
	Completed
	Failed
)

// TaskSnapshot is a point-in-time view of one submitted download.
type TaskSnapshot struct {
	TaskID         string
	URL            string
	DestinationDir string
	Filename       string
	Status         Status
	FailureReason  string
	CreatedAt      time.Time
}

// ProgressSnapshot is a point-in-time view of one download's transfer rate.
type ProgressSnapshot struct {
	DownloadedBytes uint64
	TotalBytes      uint64
	HasTotal        bool
	SpeedBps        uint64
	EtaSeconds      uint64
	HasEta          bool
}

type binding struct {
	handle    string
	url       string
	destDir   string
	filename  string
	createdAt time.Time
}

// Facade is the download-management surface exposed to the host.
// TaskBinding is its only state; it is never written to disk.
type Facade struct {
	client *rpc.Client

	mu       sync.RWMutex
	bindings map[string]*binding

	httpClient *http.Client
}

// New builds a Facade over an already-connected RpcClient. httpClient
// fetches torrent/metalink bodies ahead of submission.
func New(client *rpc.Client, httpClient *http.Client) *Facade {
	return &Facade{
		client:     client,
		bindings:   make(map[string]*binding),
		httpClient: httpClient,
	}
}

// AddDownload submits url for download to targetPath, returning a
// freshly minted TaskId. If the dedup scan finds url already bound to a
// task the engine still knows, that existing TaskId is returned instead
// and nothing is submitted.
func (f *Facade) AddDownload(ctx context.Context, url, targetPath string) (string, error) {
	kind, err := DetectKind(url)
	if err != nil {
		return "", err
	}

	if existing := f.findExistingBinding(ctx, url); existing != "" {
		return existing, nil
	}

	destDir := filepath.Dir(targetPath)
	filename := filepath.Base(targetPath)
	options := map[string]string{"dir": destDir}
	if filename != "." && filename != "/" {
		options["out"] = filename
	}

	var handle string
	switch kind {
	case Http, Magnet:
		handle, err = f.client.AddURI(ctx, []string{url}, options)
	case Torrent:
		body, fetchErr := f.fetchBody(url)
		if fetchErr != nil {
			return "", fetchErr
		}
		handle, err = f.client.AddTorrent(ctx, body, options)
	case Metalink:
		body, fetchErr := f.fetchBody(url)
		if fetchErr != nil {
			return "", fetchErr
		}
		handle, err = f.client.AddMetalink(ctx, body, options)
	}
	if err != nil {
		return "", err
	}

	taskID := uuid.NewString()
	f.mu.Lock()
	f.bindings[taskID] = &binding{
		handle:    handle,
		url:       url,
		destDir:   destDir,
		filename:  filename,
		createdAt: time.Now(),
	}
	f.mu.Unlock()

	return taskID, nil
}

// findExistingBinding performs the best-effort dedup scan across
// active, waiting, and the first 1000 stopped engine tasks, returning
// the TaskId already bound to a matching URL if one is found.
func (f *Facade) findExistingBinding(ctx context.Context, url string) string {
	var all []rpc.StatusFields
	if active, err := f.client.TellActive(ctx); err == nil {
		all = append(all, active...)
	}
	if waiting, err := f.client.TellWaiting(ctx, 0, 1000); err == nil {
		all = append(all, waiting...)
	}
	if stopped, err := f.client.TellStopped(ctx, 0, 1000); err == nil {
		all = append(all, stopped...)
	}

	matchingHandles := make(map[string]bool)
	for _, task := range all {
		if task.GID == "" {
			continue
		}
		// The engine does not return file URIs in the fields this
		// package parses out of tellStatus; the facade instead treats
		// a dedup match as "this GID is already bound", checked below
		// by scanning the binding table for the URL directly.
		matchingHandles[task.GID] = true
	}

	f.mu.RLock()
	defer f.mu.RUnlock()
	for taskID, b := range f.bindings {
		if b.url == url && matchingHandles[b.handle] {
			return taskID
		}
	}
	return ""
}

func (f *Facade) fetchBody(url string) (string, error) {
	resp, err := f.httpClient.Get(url)
	if err != nil {
		return "", fmt.Errorf("%w: %v", aerrors.ErrTransport, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("%w: unexpected status %d fetching %s", aerrors.ErrTransport, resp.StatusCode, url)
	}

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", fmt.Errorf("%w: %v", aerrors.ErrTransport, err)
	}
	return base64.StdEncoding.EncodeToString(data), nil
}

// PauseDownload pauses the engine-side transfer for taskID.
func (f *Facade) PauseDownload(ctx context.Context, taskID string) error {
	b, err := f.lookup(taskID)
	if err != nil {
		return err
	}
	return f.client.Pause(ctx, b.handle)
}

// ResumeDownload resumes the engine-side transfer for taskID.
func (f *Facade) ResumeDownload(ctx context.Context, taskID string) error {
	b, err := f.lookup(taskID)
	if err != nil {
		return err
	}
	return f.client.Unpause(ctx, b.handle)
}

// CancelDownload removes the engine-side transfer and its binding.
func (f *Facade) CancelDownload(ctx context.Context, taskID string) error {
	b, err := f.lookup(taskID)
	if err != nil {
		return err
	}
	if err := f.client.Remove(ctx, b.handle); err != nil {
		return err
	}
	f.mu.Lock()
	delete(f.bindings, taskID)
	f.mu.Unlock()
	return nil
}

// GetProgress reports the current transfer rate for taskID.
func (f *Facade) GetProgress(ctx context.Context, taskID string) (ProgressSnapshot, error) {
	b, err := f.lookup(taskID)
	if err != nil {
		return ProgressSnapshot{}, err
	}

	status, err := f.client.TellStatus(ctx, b.handle)
	if err != nil {
		return ProgressSnapshot{}, err
	}

	return progressFromStatus(status), nil
}

func progressFromStatus(status *rpc.StatusFields) ProgressSnapshot {
	downloaded := parseUint(status.CompletedLength)
	total := parseUint(status.TotalLength)
	speed := parseUint(status.DownloadSpeed)

	snap := ProgressSnapshot{
		DownloadedBytes: downloaded,
		SpeedBps:        speed,
	}
	if status.TotalLength != "" {
		snap.TotalBytes = total
		snap.HasTotal = true
	}

	if speed > 0 && total > downloaded {
		snap.EtaSeconds = (total - downloaded) / speed
		snap.HasEta = true
	}

	return snap
}

// GetTask reports the normalized status and metadata for taskID.
func (f *Facade) GetTask(ctx context.Context, taskID string) (TaskSnapshot, error) {
	b, err := f.lookup(taskID)
	if err != nil {
		return TaskSnapshot{}, err
	}

	status, err := f.client.TellStatus(ctx, b.handle)
	if err != nil {
		return TaskSnapshot{}, err
	}

	return f.snapshotFrom(taskID, b, status), nil
}

func (f *Facade) snapshotFrom(taskID string, b *binding, status *rpc.StatusFields) TaskSnapshot {
	snap := TaskSnapshot{
		TaskID:         taskID,
		URL:            b.url,
		DestinationDir: b.destDir,
		Filename:       b.filename,
		CreatedAt:      b.createdAt,
	}
	snap.Status, snap.FailureReason = normalizeStatus(status)
	return snap
}

// normalizeStatus maps the engine's status vocabulary onto the fixed
// Status set defined by this package.
func normalizeStatus(status *rpc.StatusFields) (Status, string) {
	switch status.Status {
	case "active":
		return Downloading, ""
	case "waiting":
		return Waiting, ""
	case "paused":
		return Paused, ""
	case "complete":
		return Completed, ""
	case "error":
		reason := status.ErrorMessage
		if reason == "" && status.ErrorCode != "" {
			reason = "Error code: " + status.ErrorCode
		}
		if reason == "" {
			reason = "unknown"
		}
		return Failed, reason
	case "removed":
		return Failed, "Download cancelled"
	default:
		return Failed, "Unknown status: " + status.Status
	}
}

// ListTasks returns a snapshot for every bound task the engine still
// knows about, drawn from its active, waiting, and first-1000-stopped
// lists.
func (f *Facade) ListTasks(ctx context.Context) ([]TaskSnapshot, error) {
	var all []rpc.StatusFields
	if active, err := f.client.TellActive(ctx); err == nil {
		all = append(all, active...)
	}
	if waiting, err := f.client.TellWaiting(ctx, 0, 1000); err == nil {
		all = append(all, waiting...)
	}
	if stopped, err := f.client.TellStopped(ctx, 0, 1000); err == nil {
		all = append(all, stopped...)
	}

	f.mu.RLock()
	handleToTaskID := make(map[string]string, len(f.bindings))
	bindingsCopy := make(map[string]*binding, len(f.bindings))
	for taskID, b := range f.bindings {
		handleToTaskID[b.handle] = taskID
		bindingsCopy[taskID] = b
	}
	f.mu.RUnlock()

	var snapshots []TaskSnapshot
	for _, status := range all {
		taskID, ok := handleToTaskID[status.GID]
		if !ok {
			continue
		}
		snapshots = append(snapshots, f.snapshotFrom(taskID, bindingsCopy[taskID], &status))
	}
	return snapshots, nil
}

// ActiveDownloadCount returns the number of downloads the engine
// currently considers active.
func (f *Facade) ActiveDownloadCount(ctx context.Context) (int, error) {
	active, err := f.client.TellActive(ctx)
	if err != nil {
		return 0, err
	}
	return len(active), nil
}

func (f *Facade) lookup(taskID string) (*binding, error) {
	f.mu.RLock()
	defer f.mu.RUnlock()
	b, ok := f.bindings[taskID]
	if !ok {
		return nil, aerrors.ErrTaskNotFound
	}
	return b, nil
}

func parseUint(s string) uint64 {
	if s == "" {
		return 0
	}
	v, err := strconv.ParseUint(s, 10, 64)
	if err != nil {
		return 0
	}
	return v
}
