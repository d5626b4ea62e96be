package http

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strconv"

	"github.com/custodia-labs/xmlcat/internal/core/domain"
	"github.com/custodia-labs/xmlcat/internal/core/ports/driving"
	"github.com/custodia-labs/xmlcat/internal/logger"
)

// ErrorResponse represents an API error response
// @Description API error response
type ErrorResponse struct {
	Error string `json:"error" example:"invalid input: unexpected \"]\" at offset 17"`
}

// StatusResponse represents a simple status response
// @Description Simple status response
type StatusResponse struct {
	Status string `json:"status" example:"ok"`
}

// QueryRequest is the body of POST /query
type QueryRequest struct {
	Query string `json:"query"`
	Full  bool   `json:"full"`
}

// QueryResponse lists the matching documents in result order
type QueryResponse struct {
	Count     int                 `json:"count"`
	Results   []*domain.ResultRow `json:"results"`
	Resources []*domain.Resource  `json:"resources,omitempty"`
}

// CreatePackageRequest is the body of POST /packages
type CreatePackageRequest struct {
	ID          string `json:"id"`
	Description string `json:"description,omitempty"`
}

// RenameRequest is the body of POST .../rename
type RenameRequest struct {
	Name string `json:"name"`
}

// Health endpoints

// handleHealth godoc
// @Summary      Health check
// @Tags         Health
// @Success      200  {object}  StatusResponse
// @Router       /health [get]
func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, StatusResponse{Status: "ok"})
}

// handleReady godoc
// @Summary      Readiness check
// @Description  Checks the database and the task queue
// @Tags         Health
// @Success      200  {object}  StatusResponse
// @Failure      503  {object}  map[string]string
// @Router       /ready [get]
func (s *Server) handleReady(w http.ResponseWriter, r *http.Request) {
	checks := map[string]string{}
	ready := true
	for name, p := range map[string]Pinger{"postgres": s.db, "queue": s.queue} {
		if p == nil {
			continue
		}
		if err := p.Ping(r.Context()); err != nil {
			checks[name] = err.Error()
			ready = false
			continue
		}
		checks[name] = "ok"
	}
	if !ready {
		checks["status"] = "unavailable"
		writeJSON(w, http.StatusServiceUnavailable, checks)
		return
	}
	checks["status"] = "ready"
	writeJSON(w, http.StatusOK, checks)
}

func (s *Server) handleVersion(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"version": s.version})
}

// Package endpoints

// handleCreatePackage godoc
// @Summary      Create package
// @Tags         Packages
// @Accept       json
// @Param        request  body      CreatePackageRequest  true  "Package"
// @Success      201      {object}  domain.Package
// @Failure      400      {object}  ErrorResponse
// @Failure      409      {object}  ErrorResponse
// @Router       /packages [post]
func (s *Server) handleCreatePackage(w http.ResponseWriter, r *http.Request) {
	var req CreatePackageRequest
	if !s.decode(w, r, &req) {
		return
	}
	pkg, err := s.catalog.CreatePackage(r.Context(), req.ID, req.Description)
	if err != nil {
		s.writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, pkg)
}

func (s *Server) handleListPackages(w http.ResponseWriter, r *http.Request) {
	pkgs, err := s.catalog.ListPackages(r.Context())
	if err != nil {
		s.writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, nonNil(pkgs))
}

func (s *Server) handleDeletePackage(w http.ResponseWriter, r *http.Request) {
	if err := s.catalog.DeletePackage(r.Context(), r.PathValue("pkg")); err != nil {
		s.writeServiceError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handleCreateResourceType(w http.ResponseWriter, r *http.Request) {
	var req driving.CreateResourceTypeRequest
	if !s.decode(w, r, &req) {
		return
	}
	rt, err := s.catalog.CreateResourceType(r.Context(), r.PathValue("pkg"), req)
	if err != nil {
		s.writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, rt)
}

func (s *Server) handleListResourceTypes(w http.ResponseWriter, r *http.Request) {
	rts, err := s.catalog.ListResourceTypes(r.Context(), r.PathValue("pkg"))
	if err != nil {
		s.writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, nonNil(rts))
}

func (s *Server) handleDeleteResourceType(w http.ResponseWriter, r *http.Request) {
	if err := s.catalog.DeleteResourceType(r.Context(), r.PathValue("pkg"), r.PathValue("rt")); err != nil {
		s.writeServiceError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// Resource endpoints

// handleAddResource godoc
// @Summary      Add resource
// @Description  Stores and indexes an XML document. The name defaults to a UUID.
// @Tags         Resources
// @Accept       xml
// @Param        pkg   path   string  true   "Package"
// @Param        rt    path   string  true   "Resource type"
// @Param        name  query  string  false  "Resource name"
// @Success      201   {object}  domain.Resource
// @Failure      400   {object}  ErrorResponse  "Invalid XML or name"
// @Failure      404   {object}  ErrorResponse  "Unknown package or resource type"
// @Failure      409   {object}  ErrorResponse  "Name already taken"
// @Router       /resources/{pkg}/{rt} [post]
func (s *Server) handleAddResource(w http.ResponseWriter, r *http.Request) {
	data, ok := s.readBody(w, r)
	if !ok {
		return
	}
	res, err := s.catalog.AddResource(r.Context(), r.PathValue("pkg"), r.PathValue("rt"), r.URL.Query().Get("name"), data)
	if err != nil {
		s.writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, res)
}

func (s *Server) handleListResources(w http.ResponseWriter, r *http.Request) {
	resources, err := s.catalog.ListResources(r.Context(), r.PathValue("pkg"), r.PathValue("rt"))
	if err != nil {
		s.writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, nonNil(resources))
}

// handleGetResource godoc
// @Summary      Get resource
// @Description  Returns the raw XML of one revision; the latest unless revision is given
// @Tags         Resources
// @Produce      xml
// @Param        revision  query  int  false  "Revision"
// @Router       /resources/{pkg}/{rt}/{name} [get]
func (s *Server) handleGetResource(w http.ResponseWriter, r *http.Request) {
	revision := 0
	if v := r.URL.Query().Get("revision"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < 1 {
			writeError(w, http.StatusBadRequest, "invalid revision")
			return
		}
		revision = n
	}

	res, err := s.catalog.GetResource(r.Context(), r.PathValue("pkg"), r.PathValue("rt"), r.PathValue("name"), revision)
	if err != nil {
		s.writeServiceError(w, r, err)
		return
	}
	if res.Document == nil {
		writeError(w, http.StatusNotFound, "resource has no document")
		return
	}
	w.Header().Set("Content-Type", "application/xml; charset=utf-8")
	w.Header().Set("X-Resource-Revision", strconv.Itoa(res.Document.Revision))
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(res.Document.Data)
}

func (s *Server) handleModifyResource(w http.ResponseWriter, r *http.Request) {
	data, ok := s.readBody(w, r)
	if !ok {
		return
	}
	res, err := s.catalog.ModifyResource(r.Context(), r.PathValue("pkg"), r.PathValue("rt"), r.PathValue("name"), data)
	if err != nil {
		s.writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, res)
}

func (s *Server) handleRenameResource(w http.ResponseWriter, r *http.Request) {
	var req RenameRequest
	if !s.decode(w, r, &req) {
		return
	}
	err := s.catalog.RenameResource(r.Context(), r.PathValue("pkg"), r.PathValue("rt"), r.PathValue("name"), req.Name)
	if err != nil {
		s.writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, StatusResponse{Status: "renamed"})
}

func (s *Server) handleDeleteResource(w http.ResponseWriter, r *http.Request) {
	if err := s.catalog.DeleteResource(r.Context(), r.PathValue("pkg"), r.PathValue("rt"), r.PathValue("name")); err != nil {
		s.writeServiceError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handleResourceHistory(w http.ResponseWriter, r *http.Request) {
	docs, err := s.catalog.GetResourceHistory(r.Context(), r.PathValue("pkg"), r.PathValue("rt"), r.PathValue("name"))
	if err != nil {
		s.writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, nonNil(docs))
}

// handleGetIndexData godoc
// @Summary      Index values of a resource
// @Description  Every index value of the latest revision, keyed by index label
// @Tags         Resources
// @Router       /resources/{pkg}/{rt}/{name}/index [get]
func (s *Server) handleGetIndexData(w http.ResponseWriter, r *http.Request) {
	data, err := s.catalog.GetIndexData(r.Context(), r.PathValue("pkg"), r.PathValue("rt"), r.PathValue("name"))
	if err != nil {
		s.writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, data)
}

func (s *Server) handleIndexResource(w http.ResponseWriter, r *http.Request) {
	task, err := s.catalog.IndexResourceAsync(r.Context(), r.PathValue("pkg"), r.PathValue("rt"), r.PathValue("name"))
	if err != nil {
		s.writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusAccepted, task)
}

// Index endpoints

// handleRegisterIndex godoc
// @Summary      Register index
// @Description  Registers an index from an expression ("/pkg/rt/station/XY#X") or explicit fields
// @Tags         Indexes
// @Accept       json
// @Param        request  body      driving.RegisterIndexRequest  true  "Index definition"
// @Success      201      {object}  domain.IndexDefinition
// @Failure      400      {object}  ErrorResponse
// @Failure      409      {object}  ErrorResponse  "XPath or label already registered"
// @Router       /indexes [post]
func (s *Server) handleRegisterIndex(w http.ResponseWriter, r *http.Request) {
	var req driving.RegisterIndexRequest
	if !s.decode(w, r, &req) {
		return
	}
	def, err := s.catalog.RegisterIndex(r.Context(), req)
	if err != nil {
		s.writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, def)
}

func (s *Server) handleListIndexes(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	filter := domain.IndexFilter{
		PackageID:      q.Get("package_id"),
		ResourceTypeID: q.Get("resourcetype_id"),
		XPath:          q.Get("xpath"),
		Label:          q.Get("label"),
		Type:           domain.IndexType(q.Get("type")),
	}
	defs, err := s.catalog.ListIndexes(r.Context(), filter)
	if err != nil {
		s.writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, nonNil(defs))
}

func (s *Server) handleGetIndex(w http.ResponseWriter, r *http.Request) {
	id, ok := indexID(w, r)
	if !ok {
		return
	}
	def, err := s.catalog.GetIndex(r.Context(), id)
	if err != nil {
		s.writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, def)
}

func (s *Server) handleRemoveIndex(w http.ResponseWriter, r *http.Request) {
	id, ok := indexID(w, r)
	if !ok {
		return
	}
	if err := s.catalog.RemoveIndex(r.Context(), id); err != nil {
		s.writeServiceError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handleFlushIndex(w http.ResponseWriter, r *http.Request) {
	id, ok := indexID(w, r)
	if !ok {
		return
	}
	n, err := s.catalog.FlushIndex(r.Context(), id)
	if err != nil {
		s.writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]int64{"flushed": n})
}

func (s *Server) handleDeleteAllIndexes(w http.ResponseWriter, r *http.Request) {
	n, err := s.catalog.DeleteAllIndexes(r.Context(), r.PathValue("pkg"), r.URL.Query().Get("resourcetype_id"))
	if err != nil {
		s.writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]int{"deleted": n})
}

// handleReindex godoc
// @Summary      Reindex
// @Description  Recomputes the elements of every index matching the filter body.
// @Description  With async=true the run is queued and the task is returned.
// @Tags         Indexes
// @Param        async  query  bool  false  "Queue the run"
// @Success      200  {object}  domain.ReindexResult
// @Success      202  {object}  domain.Task
// @Failure      409  {object}  ErrorResponse  "Index is being reindexed"
// @Router       /indexes/reindex [post]
func (s *Server) handleReindex(w http.ResponseWriter, r *http.Request) {
	var filter domain.IndexFilter
	if r.ContentLength != 0 {
		if !s.decode(w, r, &filter) {
			return
		}
	}

	if async, _ := strconv.ParseBool(r.URL.Query().Get("async")); async {
		task, err := s.catalog.ReindexAsync(r.Context(), filter)
		if err != nil {
			s.writeServiceError(w, r, err)
			return
		}
		writeJSON(w, http.StatusAccepted, task)
		return
	}

	result, err := s.catalog.Reindex(r.Context(), filter)
	if err != nil {
		s.writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, result)
}

// View endpoints

func (s *Server) handleCreateView(w http.ResponseWriter, r *http.Request) {
	if err := s.catalog.CreateIndexView(r.Context(), r.PathValue("pkg"), r.PathValue("rt")); err != nil {
		s.writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, StatusResponse{Status: "created"})
}

func (s *Server) handleDropView(w http.ResponseWriter, r *http.Request) {
	if err := s.catalog.DropIndexView(r.Context(), r.PathValue("pkg"), r.PathValue("rt")); err != nil {
		s.writeServiceError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// Query endpoints

// handleQuery godoc
// @Summary      Query documents
// @Description  Runs a restricted XPath query such as
// @Description  /seismology/station/*[lat < 51 and not(code)] order by lat desc limit 10
// @Tags         Query
// @Param        q     query  string  false  "Query (GET)"
// @Param        full  query  bool    false  "Include the matched resources"
// @Success      200   {object}  QueryResponse
// @Failure      400   {object}  ErrorResponse  "Syntax error"
// @Failure      404   {object}  ErrorResponse  "Path without index"
// @Router       /query [get]
// @Router       /query [post]
func (s *Server) handleQuery(w http.ResponseWriter, r *http.Request) {
	var req QueryRequest
	if r.Method == http.MethodPost {
		if !s.decode(w, r, &req) {
			return
		}
	} else {
		req.Query = r.URL.Query().Get("q")
		req.Full, _ = strconv.ParseBool(r.URL.Query().Get("full"))
	}
	if req.Query == "" {
		writeError(w, http.StatusBadRequest, "query is required")
		return
	}

	result, err := s.catalog.Query(r.Context(), req.Query, req.Full)
	if err != nil {
		s.writeServiceError(w, r, err)
		return
	}

	resp := QueryResponse{Results: make([]*domain.ResultRow, 0, len(result.Ordered)), Resources: result.Resources}
	for _, id := range result.Ordered {
		if row, ok := result.Rows[id]; ok {
			resp.Results = append(resp.Results, row)
		}
	}
	resp.Count = len(resp.Results)
	writeJSON(w, http.StatusOK, resp)
}

// Task endpoints

func (s *Server) handleGetTask(w http.ResponseWriter, r *http.Request) {
	task, err := s.catalog.GetTask(r.Context(), r.PathValue("id"))
	if err != nil {
		s.writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, task)
}

// Helper functions

func (s *Server) decode(w http.ResponseWriter, r *http.Request, v any) bool {
	r.Body = http.MaxBytesReader(w, r.Body, s.maxBody)
	if err := json.NewDecoder(r.Body).Decode(v); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return false
	}
	return true
}

func (s *Server) readBody(w http.ResponseWriter, r *http.Request) ([]byte, bool) {
	data, err := io.ReadAll(http.MaxBytesReader(w, r.Body, s.maxBody))
	if err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			writeError(w, http.StatusRequestEntityTooLarge, fmt.Sprintf("body exceeds %d bytes", tooLarge.Limit))
			return nil, false
		}
		writeError(w, http.StatusBadRequest, "failed to read request body")
		return nil, false
	}
	if len(data) == 0 {
		writeError(w, http.StatusBadRequest, "request body is empty")
		return nil, false
	}
	return data, true
}

func indexID(w http.ResponseWriter, r *http.Request) (int64, bool) {
	id, err := strconv.ParseInt(r.PathValue("id"), 10, 64)
	if err != nil || id <= 0 {
		writeError(w, http.StatusBadRequest, "invalid index id")
		return 0, false
	}
	return id, true
}

// statusFor maps domain errors to HTTP status codes
func statusFor(err error) int {
	switch {
	case errors.Is(err, domain.ErrInvalidInput), errors.Is(err, domain.ErrInvalidDocument):
		return http.StatusBadRequest
	case errors.Is(err, domain.ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, domain.ErrAlreadyExists), errors.Is(err, domain.ErrInUse), errors.Is(err, domain.ErrLockNotAcquired):
		return http.StatusConflict
	case errors.Is(err, domain.ErrNotConfigured):
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}

func (s *Server) writeServiceError(w http.ResponseWriter, r *http.Request, err error) {
	status := statusFor(err)
	if status == http.StatusInternalServerError {
		logger.FromContext(r.Context()).Error("request failed", "path", r.URL.Path, "error", err)
		writeError(w, status, "internal server error")
		return
	}
	writeError(w, status, err.Error())
}

// nonNil keeps empty lists encoding as [] rather than null
func nonNil[T any](items []T) []T {
	if items == nil {
		return []T{}
	}
	return items
}

func writeJSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(data)
}

func writeError(w http.ResponseWriter, status int, message string) {
	writeJSON(w, status, ErrorResponse{Error: message})
}
