package files

import (
	"slices"
	"time"

	"github.com/google/uuid"
)

// File is the metadata of a medical document. The bytes live in a BlobStore under ObjectKey.
type File struct {
	ID          uuid.UUID
	PatientID   uuid.UUID
	FileName    string
	ObjectKey   string
	ContentType string
	SizeBytes   int64
	Description string
	SharedWith  []uuid.UUID
	UploadedAt  time.Time
}

func (f *File) SharedWithDoctor(doctorID uuid.UUID) bool {
	return slices.Contains(f.SharedWith, doctorID)
}
