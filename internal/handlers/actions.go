package handlers

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"

	"github.com/Brownie44l1/trapcam/internal/gallery"
)

const (
	actionPrevious = "previous"
	actionNext     = "next"
	actionPredict  = "predict"
	actionFolder   = "folder"
)

var errUnknownAction = errors.New("unknown action")

type folderRequest struct {
	Folder string `json:"folder"`
}

// apply runs a gallery action on s. Paging past either end is not an error.
func (h *Handler) apply(r *http.Request, s *gallery.Session, action string) error {
	switch action {
	case actionPrevious:
		s.Previous()
	case actionNext:
		s.Next()
	case actionPredict:
		s.Predict(r.Context())
	case actionFolder:
		folder, err := folderParam(r)
		if err != nil {
			return err
		}
		if err := s.SetFolder(r.Context(), folder); err != nil {
			h.log.WithField("folder", folder).WithError(err).Warn("folder switch failed")
		}
	default:
		return fmt.Errorf("%w %q", errUnknownAction, action)
	}
	return nil
}

func folderParam(r *http.Request) (string, error) {
	var folder string
	if strings.HasPrefix(r.Header.Get("Content-Type"), "application/json") {
		var req folderRequest
		if err := json.NewDecoder(io.LimitReader(r.Body, 1<<16)).Decode(&req); err != nil {
			return "", fmt.Errorf("invalid JSON: %w", err)
		}
		folder = req.Folder
	} else {
		folder = r.FormValue("folder")
	}

	folder = strings.TrimSpace(folder)
	if strings.ContainsAny(folder, "/\\") || folder == "." || folder == ".." {
		return "", fmt.Errorf("invalid folder %q", folder)
	}
	return folder, nil
}
