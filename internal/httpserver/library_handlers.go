package httpserver

import (
	"errors"
	"fmt"
	"net/http"
	"strconv"

	"github.com/gorilla/mux"

	"scholarmind/portal/internal/library"
)

func (h *handlers) registerLibraryHandlers(r *mux.Router) {
	r.HandleFunc("/libraries", h.listLibraries).Methods(http.MethodGet)
	r.HandleFunc("/libraries/{id}", h.getLibrary).Methods(http.MethodGet)
	r.HandleFunc("/papers/search/{term}", h.searchPapers).Methods(http.MethodGet)
	r.HandleFunc("/papers/{id}", h.getPaper).Methods(http.MethodGet)
}

// queryInt reads a non-negative integer query parameter.
func queryInt(r *http.Request, name string, fallback int) (int, error) {
	raw := r.URL.Query().Get(name)
	if raw == "" {
		return fallback, nil
	}
	n, err := strconv.Atoi(raw)
	if err != nil || n < 0 {
		return 0, fmt.Errorf("invalid %s", name)
	}
	return n, nil
}

func pageParams(r *http.Request) (offset, limit int, err error) {
	if limit, err = queryInt(r, "limit", library.DefaultListLimit); err != nil {
		return 0, 0, err
	}
	if offset, err = queryInt(r, "offset", 0); err != nil {
		return 0, 0, err
	}
	return offset, limit, nil
}

func (h *handlers) listLibraries(w http.ResponseWriter, r *http.Request) {
	if _, _, ok := h.requireSession(w, r); !ok {
		return
	}
	offset, limit, err := pageParams(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	folders := h.deps.Catalogue.Folders()
	writeJSON(w, http.StatusOK, map[string]any{
		"items": library.Window(folders, offset, limit),
		"total": len(folders),
	})
}

func (h *handlers) getLibrary(w http.ResponseWriter, r *http.Request) {
	if _, _, ok := h.requireSession(w, r); !ok {
		return
	}
	offset, limit, err := pageParams(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	id := mux.Vars(r)["id"]
	folder, err := h.deps.Catalogue.Folder(id)
	if err != nil {
		if errors.Is(err, library.ErrNotFound) {
			writeError(w, http.StatusNotFound, "Library not found")
			return
		}
		writeError(w, http.StatusInternalServerError, "load library failed")
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"library": folder,
		"papers":  library.Window(h.deps.Catalogue.PapersIn(id), offset, limit),
	})
}

func (h *handlers) searchPapers(w http.ResponseWriter, r *http.Request) {
	if _, _, ok := h.requireSession(w, r); !ok {
		return
	}
	limit, err := queryInt(r, "limit", library.DefaultSearchLimit)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"items": h.deps.Catalogue.Search(mux.Vars(r)["term"], limit),
	})
}

func (h *handlers) getPaper(w http.ResponseWriter, r *http.Request) {
	if _, _, ok := h.requireSession(w, r); !ok {
		return
	}
	paper, err := h.deps.Catalogue.Paper(mux.Vars(r)["id"])
	if err != nil {
		if errors.Is(err, library.ErrNotFound) {
			writeError(w, http.StatusNotFound, "Paper not found")
			return
		}
		writeError(w, http.StatusInternalServerError, "load paper failed")
		return
	}
	writeJSON(w, http.StatusOK, paper)
}
