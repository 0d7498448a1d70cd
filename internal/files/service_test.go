package files

import (
	"context"
	"errors"
	"io"
	"strings"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hackgods/clinic-booking/internal/tenant"
)

type failingRepo struct{ Repository }

func (failingRepo) Create(context.Context, *File) error { return errors.New("db down") }

func upload(body, contentType string) UploadInput {
	return UploadInput{
		FileName:    "../../lab results.pdf",
		ContentType: contentType,
		Size:        int64(len(body)),
		Body:        strings.NewReader(body),
	}
}

func TestUploadShareOpen(t *testing.T) {
	ctx := tenant.WithID(context.Background(), "north")
	svc := NewService(NewMemoryRepository(), NewMemoryBlobStore(), nil)
	patient, doctor := uuid.New(), uuid.New()

	in := upload("%PDF-1.4 hello", "application/pdf; charset=binary")
	in.PatientID = patient
	f, err := svc.Upload(ctx, in)
	require.NoError(t, err)
	assert.Equal(t, "lab results.pdf", f.FileName)
	assert.Equal(t, "application/pdf", f.ContentType)
	assert.True(t, strings.HasPrefix(f.ObjectKey, "north/"+patient.String()+"/"))

	shared, err := svc.ListSharedWith(ctx, patient, doctor)
	require.NoError(t, err)
	assert.Empty(t, shared)

	_, err = svc.Share(ctx, f.ID, doctor)
	require.NoError(t, err)
	again, err := svc.Share(ctx, f.ID, doctor)
	require.NoError(t, err)
	assert.Equal(t, []uuid.UUID{doctor}, again.SharedWith, "sharing is idempotent")

	shared, err = svc.ListSharedWith(ctx, patient, doctor)
	require.NoError(t, err)
	assert.Len(t, shared, 1)

	rc, err := svc.Open(ctx, f)
	require.NoError(t, err)
	defer rc.Close()
	data, err := io.ReadAll(rc)
	require.NoError(t, err)
	assert.Equal(t, "%PDF-1.4 hello", string(data))
}

func TestUpload_Rejects(t *testing.T) {
	svc := NewService(NewMemoryRepository(), NewMemoryBlobStore(), nil)
	ctx := context.Background()

	_, err := svc.Upload(ctx, upload("MZ", "application/x-msdownload"))
	assert.ErrorIs(t, err, ErrUnsupportedType)

	_, err = svc.Upload(ctx, upload("", "text/plain"))
	assert.ErrorIs(t, err, ErrEmptyFile)

	big := upload("x", "text/plain")
	big.Size = MaxUploadBytes + 1
	_, err = svc.Upload(ctx, big)
	assert.ErrorIs(t, err, ErrFileTooLarge)
}

func TestUpload_MetadataFailureRemovesBlob(t *testing.T) {
	blobs := NewMemoryBlobStore()
	svc := NewService(failingRepo{NewMemoryRepository()}, blobs, nil)

	_, err := svc.Upload(context.Background(), upload("hello", "text/plain"))
	require.Error(t, err)
	assert.Empty(t, blobs.blobs)
}

func TestShare_UnknownFile(t *testing.T) {
	svc := NewService(NewMemoryRepository(), NewMemoryBlobStore(), nil)
	_, err := svc.Share(context.Background(), uuid.New(), uuid.New())
	assert.ErrorIs(t, err, ErrFileNotFound)
}
