package files

import (
	"context"
	"errors"
	"io"
	"path"
	"strings"

	"github.com/google/uuid"

	"github.com/hackgods/clinic-booking/internal/apperr"
	"github.com/hackgods/clinic-booking/internal/identity"
	"github.com/hackgods/clinic-booking/internal/logging"
	"github.com/hackgods/clinic-booking/internal/tenant"
)

const MaxUploadBytes = 20 << 20

var (
	ErrEmptyFile        = apperr.Validation("file is empty")
	ErrFileTooLarge     = apperr.Validation("file exceeds the 20 MiB limit")
	ErrUnsupportedType  = apperr.Validation("only PDF, PNG, JPEG and plain text files are accepted")
	ErrMissingFileName  = apperr.Validation("file name is required")
	ErrBlobMissing      = apperr.NotFound("file content")
	allowedContentTypes = map[string]bool{
		"application/pdf": true,
		"image/png":       true,
		"image/jpeg":      true,
		"text/plain":      true,
	}
)

// Doctors confirms the doctor a file is shared with.
type Doctors interface {
	RequireRole(ctx context.Context, id uuid.UUID, role identity.Role) (*identity.User, error)
}

type UploadInput struct {
	PatientID   uuid.UUID
	FileName    string
	ContentType string
	Size        int64
	Description string
	Body        io.Reader
}

type Service struct {
	repo    Repository
	blobs   BlobStore
	doctors Doctors
}

func NewService(repo Repository, blobs BlobStore, doctors Doctors) *Service {
	return &Service{repo: repo, blobs: blobs, doctors: doctors}
}

// Upload stores the blob, then its metadata. A failed metadata write removes the blob again.
func (s *Service) Upload(ctx context.Context, in UploadInput) (*File, error) {
	name := path.Base(strings.TrimSpace(in.FileName))
	if name == "" || name == "." || name == "/" {
		return nil, ErrMissingFileName
	}
	if in.Size <= 0 {
		return nil, ErrEmptyFile
	}
	if in.Size > MaxUploadBytes {
		return nil, ErrFileTooLarge
	}
	contentType := strings.TrimSpace(strings.Split(in.ContentType, ";")[0])
	if !allowedContentTypes[contentType] {
		return nil, ErrUnsupportedType
	}

	f := &File{
		ID:          uuid.New(),
		PatientID:   in.PatientID,
		FileName:    name,
		ContentType: contentType,
		SizeBytes:   in.Size,
		Description: strings.TrimSpace(in.Description),
	}
	f.ObjectKey = objectKey(tenant.FromContext(ctx), f)

	if err := s.blobs.Put(ctx, f.ObjectKey, io.LimitReader(in.Body, in.Size), in.Size, contentType); err != nil {
		return nil, apperr.Storage("store file content", err)
	}

	if err := s.repo.Create(ctx, f); err != nil {
		if delErr := s.blobs.Delete(context.WithoutCancel(ctx), f.ObjectKey); delErr != nil {
			logging.FromContext(ctx).Error().Err(delErr).Str("object_key", f.ObjectKey).Msg("failed to remove orphaned blob")
		}
		return nil, apperr.Storage("save file metadata", err)
	}
	return f, nil
}

func (s *Service) Get(ctx context.Context, id uuid.UUID) (*File, error) {
	f, err := s.repo.GetByID(ctx, id)
	if err != nil {
		if errors.Is(err, ErrFileNotFound) {
			return nil, err
		}
		return nil, apperr.Storage("load file", err)
	}
	return f, nil
}

// Share gives doctorID read access to the file.
func (s *Service) Share(ctx context.Context, id, doctorID uuid.UUID) (*File, error) {
	if s.doctors != nil {
		if _, err := s.doctors.RequireRole(ctx, doctorID, identity.RoleDoctor); err != nil {
			return nil, err
		}
	}

	f, err := s.repo.Share(ctx, id, doctorID)
	if err != nil {
		if errors.Is(err, ErrFileNotFound) {
			return nil, err
		}
		return nil, apperr.Storage("share file", err)
	}
	return f, nil
}

func (s *Service) ListOwn(ctx context.Context, patientID uuid.UUID) ([]File, error) {
	list, err := s.repo.ListByPatient(ctx, patientID)
	if err != nil {
		return nil, apperr.Storage("list files", err)
	}
	return list, nil
}

func (s *Service) ListSharedWith(ctx context.Context, patientID, doctorID uuid.UUID) ([]File, error) {
	list, err := s.repo.ListSharedWith(ctx, patientID, doctorID)
	if err != nil {
		return nil, apperr.Storage("list shared files", err)
	}
	return list, nil
}

// Open returns the file's content. The caller closes it.
func (s *Service) Open(ctx context.Context, f *File) (io.ReadCloser, error) {
	rc, err := s.blobs.Get(ctx, f.ObjectKey)
	if err != nil {
		if errors.Is(err, ErrBlobNotFound) {
			return nil, ErrBlobMissing
		}
		return nil, apperr.Storage("read file content", err)
	}
	return rc, nil
}

func objectKey(tenantID string, f *File) string {
	if tenantID == "" {
		tenantID = "default"
	}
	return path.Join(tenantID, f.PatientID.String(), f.ID.String()+"-"+f.FileName)
}
