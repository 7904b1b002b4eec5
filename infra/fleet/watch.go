package fleet

import (
	"context"
	"path/filepath"
	"sync"

	"github.com/fsnotify/fsnotify"

	"github.com/kilianp07/induction/core/logger"
	"github.com/kilianp07/induction/core/snapshot"
)

// WatchedFileSource keeps the parsed fleet file in memory and reloads it
// when the file is written or replaced. A reload that fails to parse or
// holds no depot keeps the last good content.
type WatchedFileSource struct {
	path    string
	log     logger.Logger
	watcher *fsnotify.Watcher

	mu   sync.RWMutex
	file *File

	done chan struct{}
}

var _ snapshot.Source = (*WatchedFileSource)(nil)

// WatchFile loads path and starts watching its directory, so editors that
// replace the file through a rename are noticed too.
func WatchFile(path string, log logger.Logger) (*WatchedFileSource, error) {
	f, err := Load(path)
	if err != nil {
		return nil, err
	}
	w, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, err
	}
	if err := w.Add(filepath.Dir(path)); err != nil {
		_ = w.Close()
		return nil, err
	}
	s := &WatchedFileSource{
		path:    filepath.Clean(path),
		log:     logger.OrNop(log),
		watcher: w,
		file:    f,
		done:    make(chan struct{}),
	}
	go s.loop()
	return s, nil
}

func (s *WatchedFileSource) loop() {
	defer close(s.done)
	for {
		select {
		case ev, ok := <-s.watcher.Events:
			if !ok {
				return
			}
			if filepath.Clean(ev.Name) != s.path || !ev.Has(fsnotify.Write|fsnotify.Create) {
				continue
			}
			s.reload()
		case err, ok := <-s.watcher.Errors:
			if !ok {
				return
			}
			s.log.Warnf("fleet file watch: %v", err)
		}
	}
}

func (s *WatchedFileSource) reload() {
	f, err := Load(s.path)
	if err != nil {
		s.log.Warnf("fleet file %s not reloaded: %v", s.path, err)
		return
	}
	// Writers truncate before writing; an empty read is not a fleet.
	if len(f.Depots) == 0 {
		return
	}
	s.mu.Lock()
	s.file = f
	s.mu.Unlock()
	s.log.Infof("fleet file %s reloaded: %d depots", s.path, len(f.Depots))
}

func (s *WatchedFileSource) depot(id string) (Depot, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.file.depot(id)
}

// Trainsets returns the trainset records of a depot.
func (s *WatchedFileSource) Trainsets(_ context.Context, depotID string) ([]snapshot.TrainsetRecord, error) {
	d, err := s.depot(depotID)
	if err != nil {
		return nil, err
	}
	return append([]snapshot.TrainsetRecord(nil), d.Trainsets...), nil
}

// Topology returns the bay layout of a depot.
func (s *WatchedFileSource) Topology(_ context.Context, depotID string) (snapshot.Topology, error) {
	d, err := s.depot(depotID)
	if err != nil {
		return snapshot.Topology{}, err
	}
	return d.topology(), nil
}

// Close stops watching the file.
func (s *WatchedFileSource) Close() error {
	err := s.watcher.Close()
	<-s.done
	return err
}
