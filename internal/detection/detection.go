// Package detection is the facade for saving and querying pest
// detections on the device. The actual model inference happens behind
// the Detector interface.
package detection

import (
	"context"
	"log/slog"
	"os"
	"sort"
	"time"

	"github.com/google/uuid"

	"github.com/bedjamahdi/scanpest-go/internal/datastore"
	"github.com/bedjamahdi/scanpest-go/internal/errors"
	"github.com/bedjamahdi/scanpest-go/internal/logging"
	"github.com/bedjamahdi/scanpest-go/internal/session"
)

// Detector runs pest detection on an image and returns the boxes found
// plus the inference duration. Implementations wrap the external model
// runtime.
type Detector interface {
	Detect(ctx context.Context, imagePath string) ([]datastore.BoundingBox, time.Duration, error)
}

// Service saves and queries detection records for the session's user.
type Service struct {
	ds      datastore.Interface
	session *session.Session
	logger  *slog.Logger
	now     func() time.Time
}

// NewService creates a detection facade over the given store and session.
func NewService(ds datastore.Interface, sess *session.Session) *Service {
	return &Service{
		ds:      ds,
		session: sess,
		logger:  logging.ForService("detection"),
		now:     time.Now,
	}
}

// Save stores a detection with its boxes for the current user. The
// record gets a client-generated serverId so it can be reconciled with
// the server before ever being uploaded. An unreadable image reference
// is logged but does not block the insert.
func (s *Service) Save(ctx context.Context, imageRef string, boxes []datastore.BoundingBox) (*datastore.Detection, error) {
	userID, err := s.session.UserID()
	if err != nil {
		return nil, err
	}

	if _, statErr := os.Stat(imageRef); statErr != nil {
		s.logger.Warn("Saving detection with unreadable image reference",
			"image", imageRef, "error", statErr)
	}

	nowMillis := s.now().UnixMilli()
	det := &datastore.Detection{
		UserID:        userID,
		ServerID:      uuid.NewString(),
		ImageURI:      imageRef,
		Timestamp:     nowMillis,
		DetectionDate: nowMillis,
		UpdatedAt:     nowMillis,
	}

	if err := s.ds.Save(det, boxes); err != nil {
		return nil, errors.New(err).
			Category(errors.CategoryDatabase).
			Context("server_id", det.ServerID).
			Build()
	}

	s.logger.Info("Saved detection", "server_id", det.ServerID, "boxes", len(boxes))
	return det, nil
}

// QuerySorted returns the user's detections ordered by detection date.
func (s *Service) QuerySorted(ctx context.Context, descending bool) ([]datastore.Detection, error) {
	return s.query(ctx, "", descending)
}

// QueryByPestName returns detections having at least one box whose
// class name matches pestName, ordered by detection date.
func (s *Service) QueryByPestName(ctx context.Context, pestName string, descending bool) ([]datastore.Detection, error) {
	return s.query(ctx, pestName, descending)
}

// Recent returns the newest detections, capped at limit.
func (s *Service) Recent(ctx context.Context, limit int) ([]datastore.Detection, error) {
	detections, err := s.query(ctx, "", true)
	if err != nil {
		return nil, err
	}
	if limit > 0 && len(detections) > limit {
		detections = detections[:limit]
	}
	return detections, nil
}

// query loads the full non-deleted set and filters and sorts in memory.
// Result sets are device-sized, so this mirrors how the records are
// browsed rather than pushing predicates into SQL.
func (s *Service) query(_ context.Context, pestName string, descending bool) ([]datastore.Detection, error) {
	userID, err := s.session.UserID()
	if err != nil {
		return nil, err
	}

	detections, err := s.ds.GetDetectionsByUser(userID)
	if err != nil {
		return nil, errors.New(err).
			Category(errors.CategoryDatabase).
			Context("user_id", userID).
			Build()
	}

	if pestName != "" {
		filtered := detections[:0]
		for _, det := range detections {
			if hasPest(&det, pestName) {
				filtered = append(filtered, det)
			}
		}
		detections = filtered
	}

	sort.SliceStable(detections, func(i, j int) bool {
		if descending {
			return detections[i].DetectionDate > detections[j].DetectionDate
		}
		return detections[i].DetectionDate < detections[j].DetectionDate
	})

	return detections, nil
}

func hasPest(det *datastore.Detection, pestName string) bool {
	for i := range det.Boxes {
		if det.Boxes[i].ClsName == pestName {
			return true
		}
	}
	return false
}

// SoftDelete flags one detection as deleted.
func (s *Service) SoftDelete(ctx context.Context, id uint) error {
	if err := s.ds.SoftDelete(id); err != nil {
		return errors.New(err).
			Category(errors.CategoryDatabase).
			Context("detection_id", id).
			Build()
	}
	s.logger.Info("Soft deleted detection", "detection_id", id)
	return nil
}

// SoftDeleteAll flags every detection of the current user as deleted.
func (s *Service) SoftDeleteAll(ctx context.Context) error {
	userID, err := s.session.UserID()
	if err != nil {
		return err
	}
	if err := s.ds.SoftDeleteAllForUser(userID); err != nil {
		return errors.New(err).
			Category(errors.CategoryDatabase).
			Context("user_id", userID).
			Build()
	}
	s.logger.Info("Soft deleted all detections", "user_id", userID)
	return nil
}

// SoftDeleteByPestName flags the user's detections of one pest as deleted.
func (s *Service) SoftDeleteByPestName(ctx context.Context, pestName string) error {
	userID, err := s.session.UserID()
	if err != nil {
		return err
	}
	if err := s.ds.SoftDeleteByPestName(userID, pestName); err != nil {
		return errors.New(err).
			Category(errors.CategoryDatabase).
			Context("user_id", userID).
			Context("pest", pestName).
			Build()
	}
	s.logger.Info("Soft deleted detections by pest", "user_id", userID, "pest", pestName)
	return nil
}

// SetNote attaches or replaces the note on a detection and bumps its
// update timestamp so the next note merge carries it.
func (s *Service) SetNote(ctx context.Context, id uint, note string) error {
	if err := s.ds.SetNote(id, note, s.now().UnixMilli()); err != nil {
		return errors.New(err).
			Category(errors.CategoryDatabase).
			Context("detection_id", id).
			Build()
	}
	return nil
}

// ClearNote removes the note from a detection.
func (s *Service) ClearNote(ctx context.Context, id uint) error {
	if err := s.ds.ClearNote(id); err != nil {
		return errors.New(err).
			Category(errors.CategoryDatabase).
			Context("detection_id", id).
			Build()
	}
	return nil
}

// Get returns a single non-deleted detection with its boxes.
func (s *Service) Get(ctx context.Context, id uint) (datastore.Detection, error) {
	det, err := s.ds.GetDetection(id)
	if err != nil {
		return datastore.Detection{}, errors.New(err).
			Category(errors.CategoryDatabase).
			Context("detection_id", id).
			Build()
	}
	return det, nil
}
