package api

import (
	"fmt"
	"io"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/hackgods/clinic-booking/internal/access"
	"github.com/hackgods/clinic-booking/internal/apperr"
	"github.com/hackgods/clinic-booking/internal/files"
	"github.com/hackgods/clinic-booking/internal/logging"
)

const multipartMemory = 8 << 20

func uploadFileHandler(svc *files.Service, gate *access.Gate) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		actor := access.ActorFromContext(r.Context())
		if err := gate.Authorize(actor, access.FileUpload, access.Resource{PatientID: actorID(actor)}); err != nil {
			writeError(w, r, err)
			return
		}

		r.Body = http.MaxBytesReader(w, r.Body, files.MaxUploadBytes+multipartMemory)
		if err := r.ParseMultipartForm(multipartMemory); err != nil {
			writeError(w, r, apperr.Validation("request must be multipart/form-data with a file under 20 MiB"))
			return
		}
		defer func() { _ = r.MultipartForm.RemoveAll() }()

		file, header, err := r.FormFile("file")
		if err != nil {
			writeError(w, r, apperr.Validation("file is required"))
			return
		}
		defer file.Close()

		contentType := header.Header.Get("Content-Type")
		if contentType == "" || contentType == "application/octet-stream" {
			sniff := make([]byte, 512)
			n, _ := io.ReadFull(file, sniff)
			contentType = http.DetectContentType(sniff[:n])
			if _, err := file.Seek(0, io.SeekStart); err != nil {
				writeError(w, r, apperr.Storage("rewind upload", err))
				return
			}
		}

		f, err := svc.Upload(r.Context(), files.UploadInput{
			PatientID:   actor.UserID,
			FileName:    header.Filename,
			ContentType: contentType,
			Size:        header.Size,
			Description: r.FormValue("description"),
			Body:        file,
		})
		if err != nil {
			writeError(w, r, err)
			return
		}

		writeJSON(w, http.StatusCreated, map[string]any{
			"success": true,
			"file":    toFile(f),
		})
	}
}

func listOwnFilesHandler(svc *files.Service, gate *access.Gate) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		actor := access.ActorFromContext(r.Context())
		if err := gate.Authorize(actor, access.FileRead, access.Resource{PatientID: actorID(actor)}); err != nil {
			writeError(w, r, err)
			return
		}

		list, err := svc.ListOwn(r.Context(), actor.UserID)
		if err != nil {
			writeError(w, r, err)
			return
		}
		writeFiles(w, list)
	}
}

func listSharedFilesHandler(svc *files.Service, gate *access.Gate) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		actor := access.ActorFromContext(r.Context())
		// only a doctor can appear in a share list
		if err := gate.Authorize(actor, access.FileRead, access.Resource{SharedWith: []uuid.UUID{actorID(actor)}}); err != nil {
			writeError(w, r, err)
			return
		}

		patientID, err := uuid.Parse(r.URL.Query().Get("patientId"))
		if err != nil {
			writeError(w, r, apperr.Validation("patientId must be a valid UUID"))
			return
		}

		list, err := svc.ListSharedWith(r.Context(), patientID, actor.UserID)
		if err != nil {
			writeError(w, r, err)
			return
		}
		writeFiles(w, list)
	}
}

func shareFileHandler(svc *files.Service, gate *access.Gate) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		f, ok := loadFile(w, r, svc)
		if !ok {
			return
		}
		if err := gate.Authorize(access.ActorFromContext(r.Context()), access.FileShare, access.Resource{PatientID: f.PatientID}); err != nil {
			writeError(w, r, err)
			return
		}

		var req ShareFileRequest
		if err := decode(r, &req); err != nil {
			writeError(w, r, err)
			return
		}

		shared, err := svc.Share(r.Context(), f.ID, uuid.MustParse(req.DoctorID))
		if err != nil {
			writeError(w, r, err)
			return
		}

		writeJSON(w, http.StatusOK, map[string]any{
			"success": true,
			"file":    toFile(shared),
		})
	}
}

func downloadFileHandler(svc *files.Service, gate *access.Gate) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		f, ok := loadFile(w, r, svc)
		if !ok {
			return
		}
		res := access.Resource{PatientID: f.PatientID, SharedWith: f.SharedWith}
		if err := gate.Authorize(access.ActorFromContext(r.Context()), access.FileRead, res); err != nil {
			writeError(w, r, err)
			return
		}

		body, err := svc.Open(r.Context(), f)
		if err != nil {
			writeError(w, r, err)
			return
		}
		defer body.Close()

		w.Header().Set("Content-Type", f.ContentType)
		w.Header().Set("Content-Length", strconv.FormatInt(f.SizeBytes, 10))
		w.Header().Set("Content-Disposition", fmt.Sprintf("attachment; filename=%q", f.FileName))
		w.WriteHeader(http.StatusOK)
		if _, err := io.Copy(w, body); err != nil {
			logging.FromContext(r.Context()).Warn().Err(err).Str("file_id", f.ID.String()).Msg("download interrupted")
		}
	}
}

func loadFile(w http.ResponseWriter, r *http.Request, svc *files.Service) (*files.File, bool) {
	if access.ActorFromContext(r.Context()) == nil {
		writeError(w, r, access.ErrMissingToken)
		return nil, false
	}

	id, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		writeError(w, r, errInvalidID)
		return nil, false
	}

	f, err := svc.Get(r.Context(), id)
	if err != nil {
		writeError(w, r, err)
		return nil, false
	}
	return f, true
}

func writeFiles(w http.ResponseWriter, list []files.File) {
	out := make([]FileResponse, 0, len(list))
	for i := range list {
		out = append(out, toFile(&list[i]))
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"success": true,
		"files":   out,
	})
}
