package api

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/seantiz/modreg/internal/engine"
	"github.com/seantiz/modreg/internal/manifest"
	"github.com/seantiz/modreg/internal/model"
)

const maxBodySize = 1 << 20 // 1 MB

type listModulesResponse struct {
	Modules []engine.ModuleStatus `json:"modules"`
}

type enabledModulesResponse struct {
	Modules []model.Config `json:"modules"`
}

type errorResponse struct {
	Error string   `json:"error"`
	Keys  []string `json:"keys,omitempty"`
}

func (s *Server) handleListModules(w http.ResponseWriter, r *http.Request) {
	statuses, err := s.registry.Status(r.Context())
	if err != nil {
		s.writeRegistryError(w, err)
		return
	}
	s.writeJSON(w, http.StatusOK, listModulesResponse{Modules: statuses})
}

func (s *Server) handleGetStats(w http.ResponseWriter, r *http.Request) {
	stats, err := s.registry.Statistics(r.Context())
	if err != nil {
		s.writeRegistryError(w, err)
		return
	}
	s.writeJSON(w, http.StatusOK, stats)
}

func (s *Server) handleListEnabled(w http.ResponseWriter, r *http.Request) {
	configs, err := s.registry.EnabledModules(r.Context())
	if err != nil {
		s.writeRegistryError(w, err)
		return
	}
	if configs == nil {
		configs = []model.Config{}
	}
	s.writeJSON(w, http.StatusOK, enabledModulesResponse{Modules: configs})
}

func (s *Server) handleGetModule(w http.ResponseWriter, r *http.Request) {
	m, err := s.registry.Module(r.Context(), chi.URLParam(r, "key"))
	if err != nil {
		s.writeRegistryError(w, err)
		return
	}
	s.writeJSON(w, http.StatusOK, m)
}

func (s *Server) handleInstallModule(w http.ResponseWriter, r *http.Request) {
	if !s.opts.AllowInstall {
		s.writeError(w, http.StatusForbidden, "module installation is disabled")
		return
	}

	var req engine.InstallRequest
	r.Body = http.MaxBytesReader(w, r.Body, maxBodySize)
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.writeError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}

	m, err := s.registry.Install(r.Context(), req)
	if err != nil {
		s.writeRegistryError(w, err)
		return
	}
	s.writeJSON(w, http.StatusCreated, m)
}

func (s *Server) handleUninstallModule(w http.ResponseWriter, r *http.Request) {
	if !s.opts.AllowUninstall {
		s.writeError(w, http.StatusForbidden, "module uninstallation is disabled")
		return
	}

	if err := s.registry.Uninstall(r.Context(), chi.URLParam(r, "key")); err != nil {
		s.writeRegistryError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handleEnableModule(w http.ResponseWriter, r *http.Request) {
	key := chi.URLParam(r, "key")
	if err := s.registry.Enable(r.Context(), key); err != nil {
		s.writeRegistryError(w, err)
		return
	}
	s.writeModule(w, r, key)
}

func (s *Server) handleDisableModule(w http.ResponseWriter, r *http.Request) {
	key := chi.URLParam(r, "key")
	if err := s.registry.Disable(r.Context(), key); err != nil {
		s.writeRegistryError(w, err)
		return
	}
	s.writeModule(w, r, key)
}

func (s *Server) handleUpdateSettings(w http.ResponseWriter, r *http.Request) {
	key := chi.URLParam(r, "key")

	var partial map[string]any
	r.Body = http.MaxBytesReader(w, r.Body, maxBodySize)
	if err := json.NewDecoder(r.Body).Decode(&partial); err != nil {
		s.writeError(w, http.StatusBadRequest, "settings must be a JSON object")
		return
	}

	if err := s.registry.UpdateSettings(r.Context(), key, partial); err != nil {
		s.writeRegistryError(w, err)
		return
	}
	s.writeModule(w, r, key)
}

func (s *Server) handleSync(w http.ResponseWriter, r *http.Request) {
	declared, err := manifest.Load(s.opts.Manifest)
	if err != nil {
		s.logger.Error("load manifest", "path", s.opts.Manifest, "error", err)
		s.writeError(w, http.StatusUnprocessableEntity, err.Error())
		return
	}
	s.writeJSON(w, http.StatusOK, s.registry.Sync(r.Context(), declared))
}

func (s *Server) handleClearCache(w http.ResponseWriter, r *http.Request) {
	s.registry.ClearCache(r.Context())
	s.writeJSON(w, http.StatusOK, map[string]string{"status": "cleared"})
}

// writeModule responds with the current record for key after a mutation.
func (s *Server) writeModule(w http.ResponseWriter, r *http.Request, key string) {
	m, err := s.registry.Module(r.Context(), key)
	if err != nil {
		s.writeRegistryError(w, err)
		return
	}
	s.writeJSON(w, http.StatusOK, m)
}

// writeRegistryError maps registry errors onto HTTP statuses. Unexpected
// failures are logged and reported generically.
func (s *Server) writeRegistryError(w http.ResponseWriter, err error) {
	var status int
	switch {
	case errors.Is(err, engine.ErrNotFound):
		status = http.StatusNotFound
	case errors.Is(err, engine.ErrCoreModuleImmutable):
		status = http.StatusForbidden
	case errors.Is(err, engine.ErrDuplicateKey),
		errors.Is(err, engine.ErrUnmetDependencies),
		errors.Is(err, engine.ErrHasDependents):
		status = http.StatusConflict
	case errors.Is(err, engine.ErrInvalidSettingsPayload),
		errors.Is(err, engine.ErrInvalidVersion),
		errors.Is(err, engine.ErrInvalidKey):
		status = http.StatusBadRequest
	default:
		s.logger.Error("registry operation failed", "error", err)
		s.writeError(w, http.StatusInternalServerError, "internal error")
		return
	}
	s.writeJSON(w, status, errorResponse{Error: err.Error(), Keys: engine.BlockingKeys(err)})
}

// writeJSON writes a JSON response with the given status code.
func (s *Server) writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		s.logger.Error("encode response", "error", err)
	}
}

// writeError writes a JSON error response.
func (s *Server) writeError(w http.ResponseWriter, status int, message string) {
	s.writeJSON(w, status, errorResponse{Error: message})
}
