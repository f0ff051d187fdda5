// model.go this code defines the data model for the application
package datastore

// Detection represents a single saved inference event: one captured image
// plus its detected pests.
type Detection struct {
	ID            uint   `gorm:"primaryKey"`
	UserID        int    `gorm:"index:idx_detection_results_user"`
	ServerID      string `gorm:"uniqueIndex;not null"` // stable id correlating local and remote copies
	ImageURI      string
	Timestamp     int64 // capture/inference timestamp, milliseconds
	IsSynced      bool
	DetectionDate int64 `gorm:"index:idx_detection_results_date"` // sort/filter key, milliseconds
	Note          *string
	UpdatedAt     int64 `gorm:"autoUpdateTime:false"` // last note update, used for merge tie-breaking
	IsDeleted     bool  `gorm:"index"`                // soft delete, pending remote confirmation

	Boxes []BoundingBox `gorm:"foreignKey:DetectionID;constraint:OnDelete:CASCADE"`
}

// TableName keeps the table name used by the mobile schema.
func (Detection) TableName() string { return "detection_results" }

// BoundingBox is one detected pest instance within a detection's image.
// Coordinates carry both the corner and the center/size encoding produced
// by the detector.
type BoundingBox struct {
	ID          uint `gorm:"primaryKey"`
	DetectionID uint `gorm:"index;not null"`
	X1          float32
	Y1          float32
	X2          float32
	Y2          float32
	CX          float32
	CY          float32
	W           float32
	H           float32
	Cnf         float32 // confidence score, 0..1
	Cls         int     // numeric class id
	ClsName     string  `gorm:"index"`
}

// TableName keeps the table name used by the mobile schema.
func (BoundingBox) TableName() string { return "bounding_boxes" }

// NoteSync is the (serverId, updatedAt, note) triple exchanged during the
// note-merge sync phase.
type NoteSync struct {
	ServerID  string
	UpdatedAt *int64
	Note      *string
}
