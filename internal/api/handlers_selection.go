// handlers_selection.go - File selection handlers
package api

import (
	"errors"
	"io"
	"net/http"

	"github.com/labstack/echo/v4"

	"github.com/apk-scanner/client/internal/models"
	"github.com/apk-scanner/client/internal/storage"
)

// SelectionHandlerImpl implements the SelectionHandler interface
type SelectionHandlerImpl struct {
	store storage.Store
}

// NewSelectionHandler creates a new selection handler instance
func NewSelectionHandler(store storage.Store) SelectionHandler {
	return &SelectionHandlerImpl{store: store}
}

// HandleAddFiles appends every file part of a multipart body to the
// selection, in the order the parts arrive
func (h *SelectionHandlerImpl) HandleAddFiles(c echo.Context) error {
	reader, err := c.Request().MultipartReader()
	if err != nil {
		return NewBadRequestError("expected multipart/form-data body", err)
	}

	added := make([]*models.StagedFile, 0)
	for {
		part, err := reader.NextPart()
		if err == io.EOF {
			break
		}
		if err != nil {
			return NewBadRequestError("invalid multipart body", err)
		}

		name := part.FileName()
		if name == "" {
			// Plain form fields are ignored; files may also be sent with the
			// part name carrying the filename and no filename parameter.
			if part.FormName() == "" {
				part.Close()
				continue
			}
			name = part.FormName()
		}

		info, err := h.store.Save(name, part)
		part.Close()
		if err != nil {
			return NewInternalError("failed to stage file", err)
		}
		added = append(added, info)
	}

	if len(added) == 0 {
		return NewValidationError("files")
	}
	return c.JSON(http.StatusCreated, added)
}

// HandleListFiles returns the current selection in selection order
func (h *SelectionHandlerImpl) HandleListFiles(c echo.Context) error {
	return c.JSON(http.StatusOK, h.store.List())
}

// HandleGetFile returns one staged file
func (h *SelectionHandlerImpl) HandleGetFile(c echo.Context) error {
	id := c.Param("id")
	info, err := h.store.Get(id)
	if err != nil {
		return NewNotFoundError("file", id)
	}
	return c.JSON(http.StatusOK, info)
}

// HandleRemoveFile removes one file from the selection
func (h *SelectionHandlerImpl) HandleRemoveFile(c echo.Context) error {
	id := c.Param("id")
	if id == "" {
		return NewValidationError("id")
	}

	if err := h.store.Delete(id); err != nil {
		if errors.Is(err, storage.ErrFileNotFound) {
			return NewNotFoundError("file", id)
		}
		return NewInternalError("failed to remove file", err)
	}
	return c.NoContent(http.StatusNoContent)
}

// HandleClearFiles empties the selection
func (h *SelectionHandlerImpl) HandleClearFiles(c echo.Context) error {
	if err := h.store.Clear(); err != nil {
		return NewInternalError("failed to clear selection", err)
	}
	return c.NoContent(http.StatusNoContent)
}
