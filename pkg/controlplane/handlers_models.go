package controlplane

import (
	"net/http"

	"github.com/crtx-sg/iotix/pkg/model"
)

func (s *Server) handleListModels(w http.ResponseWriter, r *http.Request) {
	models := s.engine.ListModels()
	writeJSON(w, http.StatusOK, listModelsResponse{Models: models, Count: len(models)})
}

func (s *Server) handleCreateModel(w http.ResponseWriter, r *http.Request) {
	limitedBody(w, r)
	var spec model.DeviceModel
	if err := decodeJSONBody(r, &spec); err != nil {
		writeDecodeError(w, err)
		return
	}

	created, err := s.engine.RegisterModel(&spec)
	if err != nil {
		writeEngineError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, created)
}

func (s *Server) handleGetModel(w http.ResponseWriter, r *http.Request) {
	got, err := s.engine.GetModel(r.PathValue("id"))
	if err != nil {
		writeEngineError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, got)
}

func (s *Server) handleDeleteModel(w http.ResponseWriter, r *http.Request) {
	if err := s.engine.DeleteModel(r.PathValue("id")); err != nil {
		writeEngineError(w, err)
		return
	}
	writeJSON(w, http.StatusNoContent, nil)
}
