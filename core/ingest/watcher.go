package ingest

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/earchibald/yoto-smart-stream-sub004/logger"
	"github.com/earchibald/yoto-smart-stream-sub004/model"
	"github.com/earchibald/yoto-smart-stream-sub004/repository"
	"github.com/earchibald/yoto-smart-stream-sub004/storage"

	"github.com/fsnotify/fsnotify"
	"github.com/google/uuid"
)

// settleDelay is how long a file must stay quiet after the last write event
// before it is considered fully copied.
const settleDelay = 2 * time.Second

var audioContentTypes = map[string]string{
	".mp3":  "audio/mpeg",
	".m4a":  "audio/mp4",
	".aac":  "audio/aac",
	".flac": "audio/flac",
	".ogg":  "audio/ogg",
	".wav":  "audio/wav",
}

// Watcher monitors an inbox directory and ingests dropped audio files:
// upload to object storage, register a track row, delete the local file.
type Watcher struct {
	dir     string
	ownerID int64
	tracks  repository.TrackRepository
	watcher *fsnotify.Watcher

	mu      sync.Mutex
	pending map[string]*time.Timer

	stop chan struct{}
	done chan struct{}
}

// NewWatcher creates a Watcher for dir. Ingested tracks are owned by
// ownerID, the account the inbox belongs to.
func NewWatcher(dir string, ownerID int64, tracks repository.TrackRepository) (*Watcher, error) {
	fsw, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, fmt.Errorf("failed to create fs watcher: %w", err)
	}
	return &Watcher{
		dir:     dir,
		ownerID: ownerID,
		tracks:  tracks,
		watcher: fsw,
		pending: make(map[string]*time.Timer),
		stop:    make(chan struct{}),
		done:    make(chan struct{}),
	}, nil
}

// Start begins watching the inbox. Files already present are ingested first.
func (w *Watcher) Start() error {
	if err := os.MkdirAll(w.dir, 0o755); err != nil {
		return fmt.Errorf("failed to create inbox dir %s: %w", w.dir, err)
	}
	if err := w.watcher.Add(w.dir); err != nil {
		return fmt.Errorf("failed to watch inbox dir %s: %w", w.dir, err)
	}

	go w.run()
	go w.ingestExisting()

	logger.Info("audio inbox watcher started", logger.String("dir", w.dir))
	return nil
}

// Stop terminates the watcher and waits for the event loop to exit.
func (w *Watcher) Stop() {
	close(w.stop)
	w.watcher.Close()
	<-w.done

	w.mu.Lock()
	for path, timer := range w.pending {
		timer.Stop()
		delete(w.pending, path)
	}
	w.mu.Unlock()
}

func (w *Watcher) run() {
	defer close(w.done)

	for {
		select {
		case event, ok := <-w.watcher.Events:
			if !ok {
				return
			}
			if event.Op&(fsnotify.Create|fsnotify.Write) != 0 {
				w.schedule(event.Name)
			}

		case err, ok := <-w.watcher.Errors:
			if !ok {
				return
			}
			logger.Warn("inbox watcher error", logger.ErrorField(err))

		case <-w.stop:
			return
		}
	}
}

// schedule (re)arms the settle timer for a path. Each write event pushes the
// ingest back, so a file is only picked up once copying stops.
func (w *Watcher) schedule(path string) {
	if _, ok := audioContentTypes[strings.ToLower(filepath.Ext(path))]; !ok {
		return
	}

	w.mu.Lock()
	defer w.mu.Unlock()

	if timer, ok := w.pending[path]; ok {
		timer.Reset(settleDelay)
		return
	}
	w.pending[path] = time.AfterFunc(settleDelay, func() {
		w.mu.Lock()
		delete(w.pending, path)
		w.mu.Unlock()

		select {
		case <-w.stop:
			return
		default:
		}
		if err := w.ingestFile(path); err != nil {
			logger.Error("failed to ingest audio file",
				logger.ErrorField(err),
				logger.String("path", path))
		}
	})
}

func (w *Watcher) ingestExisting() {
	entries, err := os.ReadDir(w.dir)
	if err != nil {
		logger.Warn("failed to scan inbox dir", logger.ErrorField(err), logger.String("dir", w.dir))
		return
	}
	for _, entry := range entries {
		if entry.IsDir() {
			continue
		}
		w.schedule(filepath.Join(w.dir, entry.Name()))
	}
}

func (w *Watcher) ingestFile(path string) error {
	ext := strings.ToLower(filepath.Ext(path))
	contentType, ok := audioContentTypes[ext]
	if !ok {
		return nil
	}

	f, err := os.Open(path)
	if err != nil {
		return fmt.Errorf("failed to open %s: %w", path, err)
	}
	defer f.Close()

	info, err := f.Stat()
	if err != nil {
		return fmt.Errorf("failed to stat %s: %w", path, err)
	}
	if info.Size() == 0 {
		return nil
	}

	ctx, cancel := context.WithTimeout(context.Background(), time.Minute)
	defer cancel()

	objectName := fmt.Sprintf("audio/%s%s", uuid.New().String(), ext)
	if _, err := storage.UploadObject(ctx, objectName, f, info.Size(), contentType); err != nil {
		return err
	}

	title := strings.TrimSuffix(filepath.Base(path), ext)
	track := &model.Track{
		UserID:     w.ownerID,
		Title:      title,
		ObjectPath: objectName,
		Status:     model.TrackStatusReady,
	}
	id, err := w.tracks.CreateTrack(track)
	if err != nil {
		// Keep the object; the row can be created on a later retry.
		return fmt.Errorf("failed to register track for %s: %w", path, err)
	}

	if err := os.Remove(path); err != nil {
		logger.Warn("failed to remove ingested file",
			logger.ErrorField(err),
			logger.String("path", path))
	}

	logger.Info("ingested audio file",
		logger.String("file", filepath.Base(path)),
		logger.String("object", objectName),
		logger.Int64("track", id))
	return nil
}
