package syncapi

// ServerIDsRequest carries the serverIds already present on the device.
type ServerIDsRequest struct {
	IDs []string `json:"ids"`
}

// FetchResponse is the reconciliation answer for a fetch request.
type FetchResponse struct {
	DetectionsToSend []DetectionToSend `json:"detections_to_send"`
	NeededFromPhone  []string          `json:"detections_needed_from_phone"`
}

// DetectionToSend is one record the server wants the device to store.
type DetectionToSend struct {
	Detection     RemoteDetection     `json:"detection"`
	BoundingBoxes []RemoteBoundingBox `json:"boundingBoxes"`
}

// RemoteDetection mirrors the server-side detection representation.
type RemoteDetection struct {
	ID            int     `json:"id"`
	UserID        int     `json:"userId"`
	ServerID      string  `json:"serverId"`
	ImageURI      string  `json:"imageUri"`
	Timestamp     int64   `json:"timestamp"`
	IsSynced      bool    `json:"isSynced"`
	DetectionDate int64   `json:"detectionDate"`
	Note          *string `json:"note"`
}

// RemoteBoundingBox mirrors the server-side box representation.
type RemoteBoundingBox struct {
	ID          int     `json:"id"`
	DetectionID int     `json:"detectionId"`
	X1          float32 `json:"x1"`
	Y1          float32 `json:"y1"`
	X2          float32 `json:"x2"`
	Y2          float32 `json:"y2"`
	CX          float32 `json:"cx"`
	CY          float32 `json:"cy"`
	W           float32 `json:"w"`
	H           float32 `json:"h"`
	Cnf         float32 `json:"cnf"`
	Cls         int     `json:"cls"`
	ClsName     string  `json:"clsName"`
}

// UploadDetection is one entry of the "detections" part in an upload.
// Image names the multipart file part carrying the record's image.
type UploadDetection struct {
	ServerID      string              `json:"serverid"`
	Timestamp     int64               `json:"timestamp"`
	DetectionDate int64               `json:"detection_date"`
	Note          *string             `json:"note"`
	Image         string              `json:"image"`
	BoundingBoxes []UploadBoundingBox `json:"bounding_boxes"`
	UpdatedAt     int64               `json:"updated_at1"`
}

// UploadBoundingBox is the box shape the upload endpoint accepts.
type UploadBoundingBox struct {
	X1      float32 `json:"x1"`
	Y1      float32 `json:"y1"`
	X2      float32 `json:"x2"`
	Y2      float32 `json:"y2"`
	CX      float32 `json:"cx"`
	CY      float32 `json:"cy"`
	W       float32 `json:"w"`
	H       float32 `json:"h"`
	Cnf     float32 `json:"cnf"`
	Cls     int     `json:"cls"`
	ClsName string  `json:"cls_name"`
}

// DeleteBatchRequest carries serverIds flagged deleted on the device.
type DeleteBatchRequest struct {
	ServerIDs []string `json:"server_ids"`
}

// SoftDeletedResponse lists serverIds deleted on the server side.
type SoftDeletedResponse struct {
	DeletedIDs []string `json:"deleted_ids"`
}

// NoteUpdate is a single note state exchanged during the note merge.
type NoteUpdate struct {
	ServerID  string  `json:"serverId"`
	UpdatedAt *int64  `json:"updatedAt"`
	Note      *string `json:"note"`
}

// NotesSyncRequest pushes the device's note state to the server.
type NotesSyncRequest struct {
	Detections []NoteUpdate `json:"detections"`
}

// NotesSyncResponse returns the authoritative note state after merging.
type NotesSyncResponse struct {
	Detections []NoteUpdate `json:"detections"`
}
