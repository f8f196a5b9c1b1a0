// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package server

import (
	"errors"
	"io"
	"mime"
	"mime/multipart"
	"net/http"
	"strings"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/go-chi/chi/v5/middleware"
	"go.uber.org/zap"

	"github.com/pdiddy/extract-server/internal/convert"
	"github.com/pdiddy/extract-server/internal/staging"
	"github.com/pdiddy/extract-server/pkg/types"
)

const (
	fileField         = "file"
	msgNoFilePart     = "No file part in the request"
	msgNoFileSelected = "No file selected"
	msgProcessingErr  = "Error processing file: "
)

var (
	errNoFilePart     = errors.New(msgNoFilePart)
	errNoFileSelected = errors.New(msgNoFileSelected)
)

// handleExtract stages the uploaded file, converts it and returns the
// Markdown. The staged file is released on every path out of the handler.
func (s *Server) handleExtract(w http.ResponseWriter, r *http.Request) {
	start := time.Now()
	id := middleware.GetReqID(r.Context())
	rec := types.ConversionRecord{ID: id, CreatedAt: start}

	if s.cfg.MaxUploadBytes > 0 {
		r.Body = http.MaxBytesReader(w, r.Body, s.cfg.MaxUploadBytes)
	}

	part, filename, err := filePart(r)
	if err != nil {
		status, msg := s.rejection(err)
		s.finish(r, rec, types.ConversionRejected, msg, start)
		writeError(w, status, msg)
		return
	}
	rec.Filename = staging.BaseName(filename)

	file, err := s.stager.Stage(r.Context(), id, filename, part)
	if err != nil {
		if isTooLarge(err) {
			_, msg := s.rejection(err)
			s.finish(r, rec, types.ConversionRejected, msg, start)
			writeError(w, http.StatusRequestEntityTooLarge, msg)
			return
		}
		s.finish(r, rec, types.ConversionFailed, err.Error(), start)
		writeError(w, http.StatusInternalServerError, msgProcessingErr+err.Error())
		return
	}
	defer file.Release()
	rec.SizeBytes = file.Size

	ctx, cancel := convert.WithTimeout(r.Context(), s.timeout)
	defer cancel()

	doc, err := s.conv.Convert(ctx, file.Path)
	if err != nil {
		rec.Backend = backendFor(s.conv, file.Path)
		s.finish(r, rec, types.ConversionFailed, err.Error(), start)
		writeError(w, http.StatusInternalServerError, msgProcessingErr+err.Error())
		return
	}

	rec.Backend = doc.Backend
	rec.Title = doc.Title
	if rec.Title == "" {
		rec.Title = strings.TrimSuffix(file.Name, file.Ext)
	}
	s.finish(r, rec, types.ConversionDone, "", start)
	writeJSON(w, http.StatusOK, markdownResponse{Markdown: doc.ExportMarkdown()})
}

// rejection maps a request validation error to its status and message.
func (s *Server) rejection(err error) (int, string) {
	switch {
	case isTooLarge(err):
		return http.StatusRequestEntityTooLarge,
			"File exceeds the maximum upload size of " + humanize.Bytes(uint64(s.cfg.MaxUploadBytes))
	case errors.Is(err, errNoFileSelected):
		return http.StatusBadRequest, msgNoFileSelected
	default:
		return http.StatusBadRequest, msgNoFilePart
	}
}

// finish logs the outcome and writes the audit record. Audit failures are
// logged and never change the response.
func (s *Server) finish(r *http.Request, rec types.ConversionRecord, status types.ConversionStatus, errMsg string, start time.Time) {
	rec.Status = status
	rec.Error = errMsg
	rec.Duration = time.Since(start)

	fields := []zap.Field{
		zap.String("id", rec.ID),
		zap.String("filename", rec.Filename),
		zap.String("size", humanize.Bytes(uint64(rec.SizeBytes))),
		zap.String("backend", rec.Backend),
		zap.String("status", string(status)),
		zap.Duration("duration", rec.Duration),
	}
	if errMsg != "" {
		s.log.Warn("conversion not completed", append(fields, zap.String("error", errMsg))...)
	} else {
		s.log.Info("conversion completed", fields...)
	}

	if err := s.audit.Record(r.Context(), rec); err != nil {
		s.log.Warn("recording audit entry", zap.String("id", rec.ID), zap.Error(err))
	}
}

// filePart walks the multipart body to the first part named "file" that
// carries a filename parameter. It returns the part positioned at its
// content and the client-supplied filename.
func filePart(r *http.Request) (*multipart.Part, string, error) {
	mr, err := r.MultipartReader()
	if err != nil {
		return nil, "", errNoFilePart
	}
	for {
		p, err := mr.NextPart()
		if err == io.EOF {
			return nil, "", errNoFilePart
		}
		if err != nil {
			if isTooLarge(err) {
				return nil, "", err
			}
			return nil, "", errNoFilePart
		}
		if p.FormName() != fileField {
			continue
		}
		_, params, err := mime.ParseMediaType(p.Header.Get("Content-Disposition"))
		if err != nil {
			continue
		}
		name, ok := params["filename"]
		if !ok {
			continue
		}
		if name == "" {
			return nil, "", errNoFileSelected
		}
		return p, name, nil
	}
}

// backendFor names the backend conv routes path to. A chain reports the
// backend it picked; an unsupported format keeps the chain's own name.
func backendFor(conv convert.Converter, path string) string {
	router, ok := conv.(interface {
		For(format string) convert.Converter
	})
	if !ok {
		return conv.Name()
	}
	if b := router.For(convert.FormatOf(path)); b != nil {
		return b.Name()
	}
	return conv.Name()
}

func isTooLarge(err error) bool {
	var mbe *http.MaxBytesError
	return errors.As(err, &mbe)
}
