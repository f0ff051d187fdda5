// interfaces.go: this code defines the interface for the database operations
package datastore

import (
	"fmt"
	"log"
	"os"
	"time"

	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"github.com/bedjamahdi/scanpest-go/internal/conf"
	"github.com/bedjamahdi/scanpest-go/internal/errors"
)

// Interface abstracts the underlying database implementation and defines the
// operations the detection facade and the sync orchestrator rely on.
type Interface interface {
	Open() error
	Close() error
	Save(detection *Detection, boxes []BoundingBox) error
	GetDetectionsByUser(userID int) ([]Detection, error)
	GetDetection(id uint) (Detection, error)
	SoftDelete(id uint) error
	SoftDeleteAllForUser(userID int) error
	SoftDeleteByPestName(userID int, pestName string) error
	SetNote(id uint, note string, updatedAt int64) error
	ClearNote(id uint) error
	UpdateSyncStatus(id uint, synced bool) error
	// sync support
	ServerIDsForUser(userID int) ([]string, error)
	SoftDeletedServerIDs(userID int) ([]string, error)
	DeleteByServerIDs(serverIDs []string) error
	DetectionsByServerIDs(serverIDs []string, userID int) ([]Detection, error)
	NotesForSync(userID int) ([]NoteSync, error)
	UpdateNoteByServerID(serverID, note string, updatedAt int64) error
}

// DataStore implements Interface using a GORM database.
type DataStore struct {
	DB *gorm.DB // GORM database instance
}

// New creates a new store instance based on the provided configuration.
func New(settings *conf.Settings) Interface {
	switch {
	case settings.Output.SQLite.Enabled:
		return &SQLiteStore{
			Settings: settings,
		}
	case settings.Output.MySQL.Enabled:
		return &MySQLStore{
			Settings: settings,
		}
	default:
		return nil
	}
}

// Save stores a detection and its bounding boxes as a single transaction.
// Inserts are idempotent on ServerID: an existing row with the same serverId
// is replaced together with its boxes, so sync ingestion never duplicates
// records.
func (ds *DataStore) Save(detection *Detection, boxes []BoundingBox) error {
	if detection.ServerID == "" {
		return errors.Newf("detection has no serverId").
			Component("datastore").
			Category(errors.CategoryValidation).
			Build()
	}

	return ds.DB.Transaction(func(tx *gorm.DB) error {
		var existing Detection
		err := tx.Where("server_id = ?", detection.ServerID).First(&existing).Error
		switch {
		case err == nil:
			// Replace the existing row and its boxes.
			detection.ID = existing.ID
			if err := tx.Where("detection_id = ?", existing.ID).Delete(&BoundingBox{}).Error; err != nil {
				return fmt.Errorf("replacing bounding boxes: %w", err)
			}
			if err := tx.Save(detection).Error; err != nil {
				return fmt.Errorf("replacing detection: %w", err)
			}
		case errors.Is(err, gorm.ErrRecordNotFound):
			if err := tx.Create(detection).Error; err != nil {
				return fmt.Errorf("saving detection: %w", err)
			}
		default:
			return fmt.Errorf("looking up detection by serverId: %w", err)
		}

		for i := range boxes {
			boxes[i].ID = 0
			boxes[i].DetectionID = detection.ID
			if err := tx.Create(&boxes[i]).Error; err != nil {
				return fmt.Errorf("saving bounding box: %w", err)
			}
		}
		return nil
	})
}

// GetDetectionsByUser retrieves all non-deleted detections for a user with
// their bounding boxes preloaded.
func (ds *DataStore) GetDetectionsByUser(userID int) ([]Detection, error) {
	var detections []Detection
	err := ds.DB.Preload("Boxes").
		Where("user_id = ? AND is_deleted = ?", userID, false).
		Find(&detections).Error
	if err != nil {
		return nil, fmt.Errorf("getting detections for user %d: %w", userID, err)
	}
	return detections, nil
}

// GetDetection retrieves one non-deleted detection by its local id.
func (ds *DataStore) GetDetection(id uint) (Detection, error) {
	var detection Detection
	err := ds.DB.Preload("Boxes").
		Where("id = ? AND is_deleted = ?", id, false).
		First(&detection).Error
	if err != nil {
		return Detection{}, fmt.Errorf("getting detection with ID %d: %w", id, err)
	}
	return detection, nil
}

// SoftDelete marks one detection deleted without removing data.
func (ds *DataStore) SoftDelete(id uint) error {
	err := ds.DB.Model(&Detection{}).Where("id = ?", id).Update("is_deleted", true).Error
	if err != nil {
		return fmt.Errorf("soft deleting detection %d: %w", id, err)
	}
	return nil
}

// SoftDeleteAllForUser marks all of a user's detections deleted.
func (ds *DataStore) SoftDeleteAllForUser(userID int) error {
	err := ds.DB.Model(&Detection{}).Where("user_id = ?", userID).Update("is_deleted", true).Error
	if err != nil {
		return fmt.Errorf("soft deleting detections for user %d: %w", userID, err)
	}
	return nil
}

// SoftDeleteByPestName marks deleted every detection of the user that owns at
// least one bounding box with the given class name.
func (ds *DataStore) SoftDeleteByPestName(userID int, pestName string) error {
	subquery := ds.DB.Model(&BoundingBox{}).
		Select("detection_id").
		Where("cls_name = ?", pestName)

	err := ds.DB.Model(&Detection{}).
		Where("user_id = ? AND id IN (?)", userID, subquery).
		Update("is_deleted", true).Error
	if err != nil {
		return fmt.Errorf("soft deleting detections by pest name %q: %w", pestName, err)
	}
	return nil
}

// SetNote updates the note text and its update timestamp.
func (ds *DataStore) SetNote(id uint, note string, updatedAt int64) error {
	err := ds.DB.Model(&Detection{}).Where("id = ?", id).
		Updates(map[string]any{"note": note, "updated_at": updatedAt}).Error
	if err != nil {
		return fmt.Errorf("setting note for detection %d: %w", id, err)
	}
	return nil
}

// ClearNote removes the note from a detection.
func (ds *DataStore) ClearNote(id uint) error {
	err := ds.DB.Model(&Detection{}).Where("id = ?", id).Update("note", nil).Error
	if err != nil {
		return fmt.Errorf("clearing note for detection %d: %w", id, err)
	}
	return nil
}

// UpdateSyncStatus flips the synced flag on a detection.
func (ds *DataStore) UpdateSyncStatus(id uint, synced bool) error {
	err := ds.DB.Model(&Detection{}).Where("id = ?", id).Update("is_synced", synced).Error
	if err != nil {
		return fmt.Errorf("updating sync status for detection %d: %w", id, err)
	}
	return nil
}

// ServerIDsForUser returns the serverIds of all non-deleted detections for a
// user, the client's half of pull reconciliation.
func (ds *DataStore) ServerIDsForUser(userID int) ([]string, error) {
	var ids []string
	err := ds.DB.Model(&Detection{}).
		Where("user_id = ? AND is_deleted = ? AND server_id != ''", userID, false).
		Pluck("server_id", &ids).Error
	if err != nil {
		return nil, fmt.Errorf("getting serverIds for user %d: %w", userID, err)
	}
	return ids, nil
}

// SoftDeletedServerIDs returns the serverIds of locally soft-deleted rows
// awaiting remote confirmation.
func (ds *DataStore) SoftDeletedServerIDs(userID int) ([]string, error) {
	var ids []string
	err := ds.DB.Model(&Detection{}).
		Where("user_id = ? AND is_deleted = ?", userID, true).
		Pluck("server_id", &ids).Error
	if err != nil {
		return nil, fmt.Errorf("getting soft deleted serverIds for user %d: %w", userID, err)
	}
	return ids, nil
}

// DeleteByServerIDs hard-deletes detections by serverId, cascading to their
// bounding boxes. The cascade is explicit so it holds on every backend
// regardless of foreign key enforcement.
func (ds *DataStore) DeleteByServerIDs(serverIDs []string) error {
	if len(serverIDs) == 0 {
		return nil
	}
	return ds.DB.Transaction(func(tx *gorm.DB) error {
		var ids []uint
		if err := tx.Model(&Detection{}).
			Where("server_id IN ?", serverIDs).
			Pluck("id", &ids).Error; err != nil {
			return fmt.Errorf("resolving local ids for hard delete: %w", err)
		}
		if len(ids) == 0 {
			return nil
		}
		if err := tx.Where("detection_id IN ?", ids).Delete(&BoundingBox{}).Error; err != nil {
			return fmt.Errorf("deleting bounding boxes: %w", err)
		}
		if err := tx.Where("id IN ?", ids).Delete(&Detection{}).Error; err != nil {
			return fmt.Errorf("deleting detections: %w", err)
		}
		return nil
	})
}

// DetectionsByServerIDs loads full non-deleted records with boxes for the
// given serverIds, the payload for the push half of reconciliation.
func (ds *DataStore) DetectionsByServerIDs(serverIDs []string, userID int) ([]Detection, error) {
	if len(serverIDs) == 0 {
		return nil, nil
	}
	var detections []Detection
	err := ds.DB.Preload("Boxes").
		Where("server_id IN ? AND user_id = ? AND is_deleted = ?", serverIDs, userID, false).
		Find(&detections).Error
	if err != nil {
		return nil, fmt.Errorf("getting detections by serverIds: %w", err)
	}
	return detections, nil
}

// NotesForSync returns (serverId, updatedAt, note) triples for all
// non-deleted, server-known records of the user.
func (ds *DataStore) NotesForSync(userID int) ([]NoteSync, error) {
	var notes []NoteSync
	err := ds.DB.Model(&Detection{}).
		Select("server_id, updated_at, note").
		Where("user_id = ? AND is_deleted = ? AND server_id != ''", userID, false).
		Scan(&notes).Error
	if err != nil {
		return nil, fmt.Errorf("getting notes for sync: %w", err)
	}
	return notes, nil
}

// UpdateNoteByServerID overwrites note and updatedAt for the record with the
// given serverId. The remote view is authoritative after a note-merge round
// trip, so no local timestamp comparison is made.
func (ds *DataStore) UpdateNoteByServerID(serverID, note string, updatedAt int64) error {
	err := ds.DB.Model(&Detection{}).Where("server_id = ?", serverID).
		Updates(map[string]any{"note": note, "updated_at": updatedAt}).Error
	if err != nil {
		return fmt.Errorf("updating note for serverId %s: %w", serverID, err)
	}
	return nil
}

// performAutoMigration automates database migrations with error handling.
func performAutoMigration(db *gorm.DB, debug bool, dbType, connectionInfo string) error {
	if err := db.AutoMigrate(&Detection{}, &BoundingBox{}); err != nil {
		return fmt.Errorf("failed to auto-migrate %s database: %w", dbType, err)
	}

	if debug {
		log.Printf("%s database connection initialized: %s", dbType, connectionInfo)
	}

	return nil
}

// createGormLogger configures and returns a new GORM logger instance.
func createGormLogger() logger.Interface {
	return logger.New(
		log.New(os.Stdout, "\r\n", log.LstdFlags),
		logger.Config{
			SlowThreshold: 200 * time.Millisecond,
			LogLevel:      logger.Warn,
			Colorful:      true,
		},
	)
}
