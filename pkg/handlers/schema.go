package handlers

import (
	"net/http"
	"strings"

	"go.uber.org/zap"

	"github.com/meridianmed/insight-engine/pkg/catalog"
	"github.com/meridianmed/insight-engine/pkg/embedding"
	"github.com/meridianmed/insight-engine/pkg/models"
	"github.com/meridianmed/insight-engine/pkg/registry"
	"github.com/meridianmed/insight-engine/pkg/services"
	"github.com/meridianmed/insight-engine/pkg/vecindex"
)

// TablesResponse lists the catalog's table names.
type TablesResponse struct {
	Tables []string `json:"tables"`
	Count  int      `json:"count"`
}

// SchemaResponse carries full descriptors for the requested tables.
type SchemaResponse struct {
	Tables []*models.TableDescriptor `json:"tables"`
}

// DomainsResponse groups table names by registry domain.
type DomainsResponse struct {
	Domains map[string][]string `json:"domains"`
}

// DatasetInfo describes one queryable dataset.
type DatasetInfo struct {
	Project string `json:"project,omitempty"`
	Dataset string `json:"dataset"`
	Dialect string `json:"dialect"`
	Tables  int    `json:"tables"`
}

// SchemaHandler exposes the schema catalog and the table registry.
type SchemaHandler struct {
	catalog  *catalog.Catalog
	registry *registry.Registry
	embedder embedding.Provider
	index    *vecindex.Index
	project  string
	dataset  string
	dialect  string
	logger   *zap.Logger
}

// NewSchemaHandler creates a new SchemaHandler.
func NewSchemaHandler(cat *catalog.Catalog, reg *registry.Registry, embedder embedding.Provider, index *vecindex.Index, project, dataset, dialect string, logger *zap.Logger) *SchemaHandler {
	return &SchemaHandler{
		catalog:  cat,
		registry: reg,
		embedder: embedder,
		index:    index,
		project:  project,
		dataset:  dataset,
		dialect:  dialect,
		logger:   logger,
	}
}

// RegisterRoutes registers the schema routes on the given mux.
func (h *SchemaHandler) RegisterRoutes(mux *http.ServeMux) {
	mux.HandleFunc("GET /datasets", h.Datasets)
	mux.HandleFunc("GET /tables", h.ListTables)
	mux.HandleFunc("GET /table/{name}/schema", h.TableSchema)
	mux.HandleFunc("GET /tables/{name}/schema", h.TableSchema)
	mux.HandleFunc("GET /schema", h.Schema)
	mux.HandleFunc("GET /domains", h.Domains)
	mux.HandleFunc("POST /schema/refresh", h.Refresh)
}

// Datasets handles GET /datasets. A single warehouse connection serves
// one dataset, so the list has one entry.
func (h *SchemaHandler) Datasets(w http.ResponseWriter, r *http.Request) {
	datasets := []DatasetInfo{{
		Project: h.project,
		Dataset: h.dataset,
		Dialect: h.dialect,
		Tables:  h.catalog.Len(),
	}}
	if err := WriteJSON(w, http.StatusOK, map[string][]DatasetInfo{"datasets": datasets}); err != nil {
		h.logger.Error("Failed to encode datasets response", zap.Error(err))
	}
}

// ListTables handles GET /tables.
func (h *SchemaHandler) ListTables(w http.ResponseWriter, r *http.Request) {
	tables := h.catalog.ListTables()
	if err := WriteJSON(w, http.StatusOK, TablesResponse{Tables: tables, Count: len(tables)}); err != nil {
		h.logger.Error("Failed to encode tables response", zap.Error(err))
	}
}

// TableSchema handles GET /table/{name}/schema and its plural alias.
func (h *SchemaHandler) TableSchema(w http.ResponseWriter, r *http.Request) {
	name := r.PathValue("name")
	desc, err := h.catalog.Describe(name)
	if err != nil {
		_ = WriteError(w, err)
		return
	}
	if err := WriteJSON(w, http.StatusOK, desc); err != nil {
		h.logger.Error("Failed to encode table schema response", zap.Error(err))
	}
}

// Schema handles GET /schema?tables=a,b,c. Without the parameter it
// returns every table.
func (h *SchemaHandler) Schema(w http.ResponseWriter, r *http.Request) {
	param := strings.TrimSpace(r.URL.Query().Get("tables"))
	if param == "" {
		if err := WriteJSON(w, http.StatusOK, SchemaResponse{Tables: h.catalog.DescribeAll()}); err != nil {
			h.logger.Error("Failed to encode schema response", zap.Error(err))
		}
		return
	}

	var tables []*models.TableDescriptor
	for _, name := range strings.Split(param, ",") {
		name = strings.TrimSpace(name)
		if name == "" {
			continue
		}
		desc, err := h.catalog.Describe(name)
		if err != nil {
			_ = WriteError(w, err)
			return
		}
		tables = append(tables, desc)
	}
	if err := WriteJSON(w, http.StatusOK, SchemaResponse{Tables: tables}); err != nil {
		h.logger.Error("Failed to encode schema response", zap.Error(err))
	}
}

// Domains handles GET /domains: table names grouped by registry domain.
func (h *SchemaHandler) Domains(w http.ResponseWriter, r *http.Request) {
	grouped := make(map[string][]string)
	for _, name := range h.catalog.ListTables() {
		domain := string(h.registry.Classify(name))
		grouped[domain] = append(grouped[domain], name)
	}
	if err := WriteJSON(w, http.StatusOK, DomainsResponse{Domains: grouped}); err != nil {
		h.logger.Error("Failed to encode domains response", zap.Error(err))
	}
}

// Refresh handles POST /schema/refresh: re-introspect the warehouse and
// rebuild the vector index so new tables become retrievable and dropped
// ones stop matching.
func (h *SchemaHandler) Refresh(w http.ResponseWriter, r *http.Request) {
	if err := h.catalog.Refresh(r.Context()); err != nil {
		_ = WriteError(w, err)
		return
	}
	if err := services.BuildIndex(r.Context(), h.catalog, h.embedder, h.index, h.logger); err != nil {
		_ = WriteError(w, err)
		return
	}
	if err := WriteJSON(w, http.StatusOK, map[string]int{"tables": h.catalog.Len()}); err != nil {
		h.logger.Error("Failed to encode refresh response", zap.Error(err))
	}
}
