// This file implements a file system watcher for the input directory.
// It uses OS-level file system events plus a periodic sweep to start a
// conversion run automatically when new HEIC files settle.

package watcher

import (
	"log"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/go-co-op/gocron"

	"github.com/heiftools/heifconv/internal/config"
	"github.com/heiftools/heifconv/internal/runner"
)

// runStarter is the slice of the controller the watcher needs.
type runStarter interface {
	Start(req runner.Request) error
	State() runner.State
}

// Service watches the configured input directory and triggers a
// conversion run with the configured settings once new files stop
// arriving. A periodic sweep catches files that appeared while a run
// was active or while events were missed.
type Service struct {
	cfg  *config.Config
	ctrl runStarter

	watcher       *fsnotify.Watcher
	scheduler     *gocron.Scheduler
	debounceDelay time.Duration
	stopChan      chan struct{}

	mu            sync.Mutex
	debounceTimer *time.Timer
}

// New creates a watcher service for the given controller and config.
func New(ctrl runStarter, cfg *config.Config) *Service {
	return &Service{
		cfg:           cfg,
		ctrl:          ctrl,
		debounceDelay: 2 * time.Second, // Wait 2 seconds after last change before converting
		stopChan:      make(chan struct{}),
	}
}

// SetDebounceDelay overrides the settle delay (used by tests).
func (s *Service) SetDebounceDelay(d time.Duration) {
	s.debounceDelay = d
}

// Start begins watching the input directory and schedules the periodic
// sweep.
func (s *Service) Start() error {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return err
	}
	s.watcher = watcher

	if err := watcher.Add(s.cfg.InputDir); err != nil {
		watcher.Close()
		return err
	}
	log.Printf("File watcher started for input directory: %s", s.cfg.InputDir)

	go s.processEvents()

	if s.cfg.Watch.SweepInterval > 0 {
		s.scheduler = gocron.NewScheduler(time.UTC)
		s.scheduler.SingletonModeAll()
		_, err := s.scheduler.Every(s.cfg.Watch.SweepInterval).Minutes().Do(func() {
			log.Println("Periodic input sweep triggered")
			s.trigger()
		})
		if err != nil {
			log.Printf("Error scheduling input sweep: %v", err)
		} else {
			s.scheduler.StartAsync()
		}
	}

	return nil
}

// Stop stops the watcher and the sweep scheduler.
func (s *Service) Stop() error {
	close(s.stopChan)
	if s.scheduler != nil {
		s.scheduler.Stop()
	}
	if s.watcher != nil {
		return s.watcher.Close()
	}
	return nil
}

func (s *Service) processEvents() {
	for {
		select {
		case event, ok := <-s.watcher.Events:
			if !ok {
				return
			}
			s.handleEvent(event)

		case err, ok := <-s.watcher.Errors:
			if !ok {
				return
			}
			log.Printf("File watcher error: %v", err)

		case <-s.stopChan:
			return
		}
	}
}

func (s *Service) handleEvent(event fsnotify.Event) {
	// Only new or rewritten files matter; Chmod fires when directories
	// are merely browsed.
	if event.Op&(fsnotify.Create|fsnotify.Write) == 0 {
		return
	}

	ext := strings.ToLower(filepath.Ext(event.Name))
	if ext != ".heic" && ext != ".heif" {
		return
	}

	// Debounce: restart the settle timer on every relevant event so a
	// batch of copied files triggers a single run.
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.debounceTimer != nil {
		s.debounceTimer.Stop()
	}
	s.debounceTimer = time.AfterFunc(s.debounceDelay, s.trigger)
}

// trigger starts a run with the configured settings. A run already in
// progress or an empty directory is not an error here; the periodic
// sweep will retry later.
func (s *Service) trigger() {
	switch s.ctrl.State() {
	case runner.StateValidating, runner.StateRunning:
		return
	}

	req := runner.Request{
		SourceDir: s.cfg.InputDir,
		DestDir:   s.cfg.OutputDir,
		Format:    s.cfg.Format,
		Quality:   s.cfg.Quality,
		Workers:   s.cfg.Workers,
		BatchSize: s.cfg.BatchSize,
	}
	if err := s.ctrl.Start(req); err != nil {
		log.Printf("Watcher could not start conversion run: %v", err)
	}
}
