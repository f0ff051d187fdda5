// Package syncer runs the four-phase reconciliation between the local
// detection store and the sync server: pull reconcile, local soft-delete
// propagation, remote soft-delete propagation and note merge.
package syncer

import (
	"context"
	"fmt"
	"io"
	"log"
	"log/slog"
	"os"
	"path/filepath"
	"sync"
	"sync/atomic"
	"time"

	"github.com/bedjamahdi/scanpest-go/internal/conf"
	"github.com/bedjamahdi/scanpest-go/internal/datastore"
	"github.com/bedjamahdi/scanpest-go/internal/errors"
	"github.com/bedjamahdi/scanpest-go/internal/imagefetch"
	"github.com/bedjamahdi/scanpest-go/internal/logging"
	"github.com/bedjamahdi/scanpest-go/internal/session"
	"github.com/bedjamahdi/scanpest-go/internal/syncapi"
)

// Package-level logger specific to the sync orchestrator
var (
	serviceLogger *slog.Logger
	closeLogger   func() error
)

func init() {
	var err error
	logFilePath := filepath.Join("logs", "syncer.log")

	serviceLogger, closeLogger, err = logging.NewFileLogger(logFilePath, "syncer", slog.LevelDebug)
	if err != nil {
		log.Printf("Failed to initialize syncer file logger at %s: %v. Service logging disabled.", logFilePath, err)
		serviceLogger = slog.New(slog.NewJSONHandler(io.Discard, nil))
		closeLogger = func() error { return nil }
	}
}

// Phase names one step of the sync state machine.
type Phase string

const (
	PhasePullReconcile    Phase = "pull_reconcile"
	PhaseSoftDeleteLocal  Phase = "soft_delete_local"
	PhaseSoftDeleteRemote Phase = "soft_delete_remote"
	PhaseNoteMerge        Phase = "note_merge"
	PhaseDone             Phase = "done"
)

// ErrSyncInProgress is returned when a sync invocation is dropped
// because another run holds the syncing flag.
var ErrSyncInProgress = errors.Newf("sync already in progress").
	Component("syncer").
	Category(errors.CategoryState).
	Build()

// Service orchestrates the sync phases. Phases run strictly in order
// and the run stops at the first failing phase. Every phase is
// idempotent, so re-running the whole sync is the recovery path.
type Service struct {
	ds       datastore.Interface
	api      *syncapi.Client
	fetcher  *imagefetch.Fetcher
	session  *session.Session
	events   *Broadcaster
	language string

	syncing atomic.Bool
	now     func() time.Time
}

// New creates the sync orchestrator.
func New(ds datastore.Interface, api *syncapi.Client, fetcher *imagefetch.Fetcher, sess *session.Session, settings *conf.Settings) *Service {
	return &Service{
		ds:       ds,
		api:      api,
		fetcher:  fetcher,
		session:  sess,
		events:   NewBroadcaster(),
		language: settings.Sync.Language,
		now:      time.Now,
	}
}

// Close flushes and closes the service log file.
func (s *Service) Close() {
	if closeLogger != nil {
		if err := closeLogger(); err != nil {
			log.Printf("Failed to close syncer log file: %v", err)
		}
	}
}

// Subscribe registers a listener for terminal sync events.
func (s *Service) Subscribe() (<-chan Event, func()) {
	return s.events.Subscribe()
}

// IsSyncing reports whether a sync run is currently in flight.
func (s *Service) IsSyncing() bool {
	return s.syncing.Load()
}

type syncStep struct {
	phase Phase
	key   ErrorKey
	run   func(ctx context.Context, bg *sync.WaitGroup) error
}

// RunSync executes all phases in order and publishes exactly one
// terminal event. A second invocation while one is in flight is
// dropped with ErrSyncInProgress and publishes nothing.
func (s *Service) RunSync(ctx context.Context) error {
	if !s.syncing.CompareAndSwap(false, true) {
		serviceLogger.Debug("Dropping sync invocation, another run is in flight")
		return ErrSyncInProgress
	}
	defer s.syncing.Store(false)

	// Background pushes started by the pull phase are awaited before
	// the run returns, but their failures never fail the run.
	var bg sync.WaitGroup
	defer bg.Wait()

	steps := []syncStep{
		{PhasePullReconcile, KeyFailedSyncCloud, s.pullReconcile},
		{PhaseSoftDeleteLocal, KeyFailedSoftDeletes, s.propagateLocalDeletes},
		{PhaseSoftDeleteRemote, KeyFailedSyncDeleted, s.applyRemoteDeletes},
		{PhaseNoteMerge, KeyFailedSyncNotes, s.mergeNotes},
	}

	serviceLogger.Info("Starting sync run")
	for _, step := range steps {
		serviceLogger.Debug("Entering sync phase", "phase", string(step.phase))
		if err := step.run(ctx, &bg); err != nil {
			serviceLogger.Error("Sync phase failed",
				"phase", string(step.phase), "error", err)
			s.events.Publish(Event{
				Kind:    EventFailure,
				Key:     step.key,
				Message: LocalizedMessage(s.language, step.key),
			})
			return err
		}
	}

	serviceLogger.Info("Sync run completed", "phase", string(PhaseDone))
	s.events.Publish(Event{Kind: EventSuccess})
	return nil
}

// pullReconcile sends the local serverId set and stores every record
// the server returns. A record whose image cannot be downloaded is
// skipped and logged; the phase continues with the rest. Records the
// server wants from the device are pushed as a background task.
func (s *Service) pullReconcile(ctx context.Context, bg *sync.WaitGroup) error {
	userID, err := s.session.UserID()
	if err != nil {
		return err
	}

	localIDs, err := s.ds.ServerIDsForUser(userID)
	if err != nil {
		return err
	}

	resp, err := s.api.FetchDetections(ctx, localIDs)
	if err != nil {
		return err
	}

	stored := 0
	for i := range resp.DetectionsToSend {
		rec := &resp.DetectionsToSend[i]

		localPath, err := s.fetcher.Materialize(ctx, rec.Detection.ImageURI)
		if err != nil {
			serviceLogger.Warn("Skipping pulled detection, image download failed",
				"server_id", rec.Detection.ServerID,
				"image", rec.Detection.ImageURI,
				"error", err)
			continue
		}

		det := &datastore.Detection{
			UserID:        rec.Detection.UserID,
			ServerID:      rec.Detection.ServerID,
			ImageURI:      localPath,
			Timestamp:     rec.Detection.Timestamp,
			IsSynced:      rec.Detection.IsSynced,
			DetectionDate: rec.Detection.DetectionDate,
			Note:          rec.Detection.Note,
			UpdatedAt:     s.now().UnixMilli(),
		}

		boxes := make([]datastore.BoundingBox, 0, len(rec.BoundingBoxes))
		for _, box := range rec.BoundingBoxes {
			boxes = append(boxes, datastore.BoundingBox{
				X1: box.X1, Y1: box.Y1, X2: box.X2, Y2: box.Y2,
				CX: box.CX, CY: box.CY, W: box.W, H: box.H,
				Cnf: box.Cnf, Cls: box.Cls, ClsName: box.ClsName,
			})
		}

		if err := s.ds.Save(det, boxes); err != nil {
			return err
		}
		stored++
	}

	serviceLogger.Info("Pull reconciliation stored detections",
		"stored", stored,
		"received", len(resp.DetectionsToSend))

	if len(resp.NeededFromPhone) > 0 {
		needed := resp.NeededFromPhone
		bg.Add(1)
		go func() {
			defer bg.Done()
			s.pushNeededDetections(ctx, needed, userID)
		}()
	}
	return nil
}

// pushNeededDetections uploads the records the server asked for. This
// runs off the phase path; failures are logged only.
func (s *Service) pushNeededDetections(ctx context.Context, serverIDs []string, userID int) {
	detections, err := s.ds.DetectionsByServerIDs(serverIDs, userID)
	if err != nil {
		serviceLogger.Error("Failed to load detections needed by server", "error", err)
		return
	}

	uploads, images := buildUploadPayload(detections)
	if len(uploads) == 0 {
		serviceLogger.Debug("No uploadable detections among those needed by server",
			"requested", len(serverIDs))
		return
	}

	if err := s.api.UploadDetections(ctx, uploads, images); err != nil {
		serviceLogger.Error("Failed to upload detections needed by server", "error", err)
		return
	}
	serviceLogger.Info("Uploaded detections needed by server", "count", len(uploads))
}

// buildUploadPayload converts local records into the upload shape. A
// record whose image file cannot be read is skipped and logged.
func buildUploadPayload(detections []datastore.Detection) ([]syncapi.UploadDetection, map[string]string) {
	uploads := make([]syncapi.UploadDetection, 0, len(detections))
	images := make(map[string]string, len(detections))

	for i := range detections {
		det := &detections[i]

		if _, err := os.Stat(det.ImageURI); err != nil {
			serviceLogger.Warn("Skipping upload, image file unreadable",
				"server_id", det.ServerID,
				"image", det.ImageURI,
				"error", err)
			continue
		}

		boxes := make([]syncapi.UploadBoundingBox, 0, len(det.Boxes))
		for _, box := range det.Boxes {
			boxes = append(boxes, syncapi.UploadBoundingBox{
				X1: box.X1, Y1: box.Y1, X2: box.X2, Y2: box.Y2,
				CX: box.CX, CY: box.CY, W: box.W, H: box.H,
				Cnf: box.Cnf, Cls: box.Cls, ClsName: box.ClsName,
			})
		}

		imageKey := fmt.Sprintf("image_%d", i)
		images[imageKey] = det.ImageURI
		uploads = append(uploads, syncapi.UploadDetection{
			ServerID:      det.ServerID,
			Timestamp:     det.Timestamp,
			DetectionDate: det.DetectionDate,
			Note:          det.Note,
			Image:         imageKey,
			BoundingBoxes: boxes,
			UpdatedAt:     det.UpdatedAt,
		})
	}
	return uploads, images
}

// propagateLocalDeletes pushes locally flagged serverIds to the server
// and hard-deletes the rows once the server confirms. Succeeds
// trivially when nothing is flagged.
func (s *Service) propagateLocalDeletes(ctx context.Context, _ *sync.WaitGroup) error {
	userID, err := s.session.UserID()
	if err != nil {
		return err
	}

	serverIDs, err := s.ds.SoftDeletedServerIDs(userID)
	if err != nil {
		return err
	}
	if len(serverIDs) == 0 {
		serviceLogger.Debug("No local soft deletes to propagate")
		return nil
	}

	if err := s.api.SoftDeleteDetections(ctx, serverIDs); err != nil {
		return err
	}
	if err := s.ds.DeleteByServerIDs(serverIDs); err != nil {
		return err
	}
	serviceLogger.Info("Propagated local soft deletes", "count", len(serverIDs))
	return nil
}

// applyRemoteDeletes removes local rows for records deleted on the
// server.
func (s *Service) applyRemoteDeletes(ctx context.Context, _ *sync.WaitGroup) error {
	deletedIDs, err := s.api.SoftDeleted(ctx)
	if err != nil {
		return err
	}
	if len(deletedIDs) == 0 {
		return nil
	}

	if err := s.ds.DeleteByServerIDs(deletedIDs); err != nil {
		return err
	}
	serviceLogger.Info("Applied remote soft deletes", "count", len(deletedIDs))
	return nil
}

// mergeNotes pushes local note state and applies the server's merged
// answer. The server response is authoritative: every returned entry
// with a note and timestamp overwrites the local row.
func (s *Service) mergeNotes(ctx context.Context, _ *sync.WaitGroup) error {
	userID, err := s.session.UserID()
	if err != nil {
		return err
	}

	local, err := s.ds.NotesForSync(userID)
	if err != nil {
		return err
	}

	updates := make([]syncapi.NoteUpdate, 0, len(local))
	for _, note := range local {
		updates = append(updates, syncapi.NoteUpdate{
			ServerID:  note.ServerID,
			UpdatedAt: note.UpdatedAt,
			Note:      note.Note,
		})
	}

	merged, err := s.api.SyncNotes(ctx, updates)
	if err != nil {
		return err
	}

	applied := 0
	for _, entry := range merged {
		if entry.Note == nil || entry.UpdatedAt == nil {
			continue
		}
		if err := s.ds.UpdateNoteByServerID(entry.ServerID, *entry.Note, *entry.UpdatedAt); err != nil {
			return err
		}
		applied++
	}
	serviceLogger.Info("Merged notes with server", "pushed", len(updates), "applied", applied)
	return nil
}
