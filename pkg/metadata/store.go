package metadata

import (
	"context"
	"sync"

	"k8s.io/klog/v2"
)

type EventType int

const (
	EventUpdate EventType = iota
	EventDelete
)

type UpdateEvent struct {
	Type      EventType
	ProjectID ProjectID
	Info      VolumeInfo
}

// AsyncStore keeps the project id -> volume mapping the metrics exporter uses
// for labels. Writers never block: events go through a buffered channel that
// Run drains.
type AsyncStore struct {
	data     map[ProjectID]VolumeInfo
	mu       sync.RWMutex
	updateCh chan UpdateEvent
}

func NewAsyncStore(bufferSize int) *AsyncStore {
	return &AsyncStore{
		data:     make(map[ProjectID]VolumeInfo),
		updateCh: make(chan UpdateEvent, bufferSize),
	}
}

func (s *AsyncStore) TriggerUpdate(id ProjectID, info VolumeInfo) {
	select {
	case s.updateCh <- UpdateEvent{Type: EventUpdate, ProjectID: id, Info: info}:
	default:
		klog.ErrorS(nil, "Metadata update channel full, dropping event", "id", id)
	}
}

func (s *AsyncStore) TriggerDelete(id ProjectID) {
	select {
	case s.updateCh <- UpdateEvent{Type: EventDelete, ProjectID: id}:
	default:
		klog.ErrorS(nil, "Metadata update channel full, dropping delete", "id", id)
	}
}

// Restore seeds the store synchronously from registry records loaded at startup.
func (s *AsyncStore) Restore(records []VolumeRecord) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, rec := range records {
		s.data[rec.ProjectID] = rec.Info()
	}
	klog.InfoS("[Restore Metrics] volume metadata restored", "volumes", len(records))
}

func (s *AsyncStore) Run(ctx context.Context) {
	klog.Info("Async metadata store worker started")

	for {
		select {
		case <-ctx.Done():
			klog.Info("Async store worker stopped")
			return
		case event := <-s.updateCh:
			s.handleEvent(event)
		}
	}
}

func (s *AsyncStore) handleEvent(e UpdateEvent) {
	s.mu.Lock()
	defer s.mu.Unlock()

	switch e.Type {
	case EventUpdate:
		s.data[e.ProjectID] = e.Info
		klog.V(4).InfoS("Async updated metadata", "id", e.ProjectID, "volume", e.Info.VolumeID)

	case EventDelete:
		delete(s.data, e.ProjectID)
		klog.V(4).InfoS("Async deleted metadata", "id", e.ProjectID)
	}
}

func (s *AsyncStore) Get(id ProjectID) (VolumeInfo, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	val, ok := s.data[id]
	return val, ok
}

func (s *AsyncStore) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.data)
}
