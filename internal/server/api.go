// ABOUTME: HTTP API handlers for cached records, monitored regions and location input
// ABOUTME: Includes the SSE record stream and JSON request/response types

package server

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/2389/regionsync/internal/geo"
	"github.com/2389/regionsync/internal/geofence"
	"github.com/2389/regionsync/internal/store"
)

// RecordResponse is the JSON form of a cached record.
type RecordResponse struct {
	Token       string    `json:"token"`
	OwnerID     string    `json:"owner_id"`
	OwnerName   string    `json:"owner_name"`
	Title       string    `json:"title"`
	Description *string   `json:"description,omitempty"`
	ImageRef    *string   `json:"image_ref,omitempty"`
	VideoRef    *string   `json:"video_ref,omitempty"`
	Latitude    *float64  `json:"latitude,omitempty"`
	Longitude   *float64  `json:"longitude,omitempty"`
	Bookmarked  bool      `json:"bookmarked"`
	FetchedAt   time.Time `json:"fetched_at"`
}

// PatchRecordRequest is the body for PATCH /api/records/{token}.
type PatchRecordRequest struct {
	Bookmarked *bool `json:"bookmarked"`
}

// RegionStateResponse is the JSON form of a region's persisted occupancy.
type RegionStateResponse struct {
	RegionID    string     `json:"region_id"`
	IsInside    bool       `json:"is_inside"`
	LastEnterAt *time.Time `json:"last_enter_at,omitempty"`
}

// RegionResponse describes a monitored region and its persisted state.
type RegionResponse struct {
	ID           string               `json:"id"`
	Lat          float64              `json:"lat"`
	Lon          float64              `json:"lon"`
	RadiusMeters float64              `json:"radius_meters"`
	TriggerOn    []string             `json:"trigger_on"`
	State        *RegionStateResponse `json:"state,omitempty"`
}

// PutRegionRequest is the body for PUT /api/regions/{id}.
// RadiusMeters and TriggerOn fall back to configured defaults when omitted.
type PutRegionRequest struct {
	Lat          float64  `json:"lat"`
	Lon          float64  `json:"lon"`
	RadiusMeters float64  `json:"radius_meters,omitempty"`
	TriggerOn    []string `json:"trigger_on,omitempty"`
}

// PutRegionResponse reports whether the region is now monitored.
// Registered is false when location permission is not granted.
type PutRegionResponse struct {
	Registered bool            `json:"registered"`
	Region     *RegionResponse `json:"region,omitempty"`
}

// LocationRequest is the body for POST /api/locations.
type LocationRequest struct {
	Lat float64 `json:"lat"`
	Lon float64 `json:"lon"`
}

// LocationResponse lists the transitions produced by a location update.
type LocationResponse struct {
	Events []geofence.Event `json:"events"`
}

// EventAcceptedResponse acknowledges a raw platform event.
type EventAcceptedResponse struct {
	ID string `json:"id"`
}

// ResyncResponse reports how many occupied regions were re-synced.
type ResyncResponse struct {
	Synced int `json:"synced"`
}

func toRecordResponse(r *store.Record) RecordResponse {
	return RecordResponse{
		Token:       r.Token,
		OwnerID:     r.OwnerID,
		OwnerName:   r.OwnerName,
		Title:       r.Title,
		Description: r.Description,
		ImageRef:    r.ImageRef,
		VideoRef:    r.VideoRef,
		Latitude:    r.Latitude,
		Longitude:   r.Longitude,
		Bookmarked:  r.Bookmarked,
		FetchedAt:   r.FetchedAt,
	}
}

func toRecordResponses(recs []store.Record) []RecordResponse {
	out := make([]RecordResponse, 0, len(recs))
	for i := range recs {
		out = append(out, toRecordResponse(&recs[i]))
	}
	return out
}

func toRegionStateResponse(st *store.RegionState) *RegionStateResponse {
	return &RegionStateResponse{
		RegionID:    st.RegionID,
		IsInside:    st.IsInside,
		LastEnterAt: st.LastEnterTimestamp,
	}
}

func toRegionResponse(r geofence.Region) RegionResponse {
	var triggers []string
	for _, k := range []geofence.Kind{geofence.KindEnter, geofence.KindExit} {
		if r.TriggerOn.Has(k) {
			triggers = append(triggers, k.String())
		}
	}
	return RegionResponse{
		ID:           r.ID,
		Lat:          r.Center.Lat,
		Lon:          r.Center.Lon,
		RadiusMeters: r.RadiusMeters,
		TriggerOn:    triggers,
	}
}

// parseTriggers converts ["enter","exit"] into a mask. An empty list yields
// zero, which the registry treats as both directions.
func parseTriggers(names []string) (geofence.TriggerMask, error) {
	var mask geofence.TriggerMask
	for _, name := range names {
		kind, err := geofence.ParseKind(name)
		if err != nil {
			return 0, err
		}
		switch kind {
		case geofence.KindEnter:
			mask |= geofence.TriggerEnter
		case geofence.KindExit:
			mask |= geofence.TriggerExit
		}
	}
	return mask, nil
}

// handleListRecords handles GET /api/records.
func (s *Server) handleListRecords(w http.ResponseWriter, r *http.Request) {
	recs, err := s.records.ListAll(r.Context())
	if err != nil {
		s.logger.Error("failed to list records", "error", err)
		s.sendJSONError(w, http.StatusInternalServerError, "internal server error")
		return
	}
	s.sendJSON(w, http.StatusOK, toRecordResponses(recs))
}

// handleGetRecord handles GET /api/records/{token}.
func (s *Server) handleGetRecord(w http.ResponseWriter, r *http.Request) {
	token := r.PathValue("token")

	rec, err := s.records.Get(r.Context(), token)
	if errors.Is(err, store.ErrNotFound) {
		s.sendJSONError(w, http.StatusNotFound, "record not found")
		return
	}
	if err != nil {
		s.logger.Error("failed to get record", "error", err, "token", token)
		s.sendJSONError(w, http.StatusInternalServerError, "internal server error")
		return
	}
	s.sendJSON(w, http.StatusOK, toRecordResponse(rec))
}

// handlePatchRecord handles PATCH /api/records/{token}. Only the bookmark
// flag is client-editable.
func (s *Server) handlePatchRecord(w http.ResponseWriter, r *http.Request) {
	token := r.PathValue("token")

	var req PatchRecordRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.sendJSONError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}
	if req.Bookmarked == nil {
		s.sendJSONError(w, http.StatusBadRequest, "bookmarked is required")
		return
	}

	rec, err := s.records.SetBookmarked(r.Context(), token, *req.Bookmarked)
	if errors.Is(err, store.ErrNotFound) {
		s.sendJSONError(w, http.StatusNotFound, "record not found")
		return
	}
	if err != nil {
		s.logger.Error("failed to update record", "error", err, "token", token)
		s.sendJSONError(w, http.StatusInternalServerError, "internal server error")
		return
	}
	s.sendJSON(w, http.StatusOK, toRecordResponse(rec))
}

// handleDeleteRecord handles DELETE /api/records/{token}.
func (s *Server) handleDeleteRecord(w http.ResponseWriter, r *http.Request) {
	token := r.PathValue("token")

	if err := s.records.DeleteByToken(r.Context(), token); err != nil {
		s.logger.Error("failed to delete record", "error", err, "token", token)
		s.sendJSONError(w, http.StatusInternalServerError, "internal server error")
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// handleStreamRecords handles GET /api/records/stream. The first event holds
// the current list; each later event holds the full list after a change.
func (s *Server) handleStreamRecords(w http.ResponseWriter, r *http.Request) {
	flusher, ok := w.(http.Flusher)
	if !ok {
		s.sendJSONError(w, http.StatusInternalServerError, "streaming not supported")
		return
	}

	snapshots, err := s.records.Watch(r.Context())
	if err != nil {
		s.logger.Error("failed to watch records", "error", err)
		s.sendJSONError(w, http.StatusInternalServerError, "internal server error")
		return
	}

	// Set SSE headers
	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.Header().Set("X-Accel-Buffering", "no")
	w.WriteHeader(http.StatusOK)
	flusher.Flush()

	for {
		select {
		case <-r.Context().Done():
			return
		case snap, ok := <-snapshots:
			if !ok {
				s.writeSSEEvent(w, "closed", map[string]string{"reason": "server shutting down"})
				flusher.Flush()
				return
			}
			s.writeSSEEvent(w, "records", toRecordResponses(snap))
			flusher.Flush()
		}
	}
}

// handleListRegions handles GET /api/regions.
func (s *Server) handleListRegions(w http.ResponseWriter, r *http.Request) {
	states, err := s.store.ListRegionStates(r.Context())
	if err != nil {
		s.logger.Error("failed to list region states", "error", err)
		s.sendJSONError(w, http.StatusInternalServerError, "internal server error")
		return
	}
	byID := make(map[string]*store.RegionState, len(states))
	for i := range states {
		byID[states[i].RegionID] = &states[i]
	}

	regions := s.registry.Regions()
	response := make([]RegionResponse, 0, len(regions))
	for _, reg := range regions {
		resp := toRegionResponse(reg)
		if st, ok := byID[reg.ID]; ok {
			resp.State = toRegionStateResponse(st)
		}
		response = append(response, resp)
	}
	s.sendJSON(w, http.StatusOK, response)
}

// handlePutRegion handles PUT /api/regions/{id}. Re-registering an id
// replaces the region.
func (s *Server) handlePutRegion(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")

	var req PutRegionRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.sendJSONError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}

	mask, err := parseTriggers(req.TriggerOn)
	if err != nil {
		s.sendJSONError(w, http.StatusBadRequest, err.Error())
		return
	}

	reg := geofence.Region{
		ID:           id,
		Center:       geo.Location{Lat: req.Lat, Lon: req.Lon},
		RadiusMeters: req.RadiusMeters,
		TriggerOn:    mask,
	}
	if reg.RadiusMeters < 0 {
		s.sendJSONError(w, http.StatusBadRequest, "radius_meters must not be negative")
		return
	}
	if err := reg.Center.Validate(); err != nil {
		s.sendJSONError(w, http.StatusBadRequest, err.Error())
		return
	}

	if err := s.registry.Register(r.Context(), reg); err != nil {
		s.logger.Error("failed to register region", "error", err, "region_id", id)
		s.sendJSONError(w, http.StatusInternalServerError, "internal server error")
		return
	}

	registered, ok := s.registry.Get(id)
	if !ok {
		s.sendJSON(w, http.StatusOK, PutRegionResponse{Registered: false})
		return
	}
	resp := toRegionResponse(registered)
	s.sendJSON(w, http.StatusOK, PutRegionResponse{Registered: true, Region: &resp})
}

// handleDeleteRegion handles DELETE /api/regions/{id}. Persisted state is kept.
func (s *Server) handleDeleteRegion(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	if _, ok := s.registry.Get(id); !ok {
		s.sendJSONError(w, http.StatusNotFound, "region not found")
		return
	}
	s.registry.Unregister(id)
	w.WriteHeader(http.StatusNoContent)
}

// handleRegionState handles GET /api/regions/{id}/state.
func (s *Server) handleRegionState(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")

	st, err := s.store.GetRegionState(r.Context(), id)
	if errors.Is(err, store.ErrNotFound) {
		s.sendJSONError(w, http.StatusNotFound, "no state recorded for region")
		return
	}
	if err != nil {
		s.logger.Error("failed to get region state", "error", err, "region_id", id)
		s.sendJSONError(w, http.StatusInternalServerError, "internal server error")
		return
	}
	s.sendJSON(w, http.StatusOK, toRegionStateResponse(st))
}

// handleResync handles POST /api/regions/resync.
func (s *Server) handleResync(w http.ResponseWriter, r *http.Request) {
	n, err := s.Resync(r.Context())
	if err != nil {
		s.logger.Error("resync failed", "error", err)
		s.sendJSONError(w, http.StatusInternalServerError, "internal server error")
		return
	}
	s.sendJSON(w, http.StatusOK, ResyncResponse{Synced: n})
}

// handlePostLocation handles POST /api/locations. The location is evaluated
// against every monitored region and the resulting transitions are queued.
func (s *Server) handlePostLocation(w http.ResponseWriter, r *http.Request) {
	var req LocationRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.sendJSONError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}

	loc := geo.Location{Lat: req.Lat, Lon: req.Lon}
	if err := loc.Validate(); err != nil {
		s.sendJSONError(w, http.StatusBadRequest, err.Error())
		return
	}

	events, err := s.monitor.UpdateLocation(r.Context(), loc)
	if errors.Is(err, geofence.ErrClosed) {
		s.sendJSONError(w, http.StatusServiceUnavailable, "shutting down")
		return
	}
	if err != nil {
		s.logger.Error("failed to update location", "error", err)
		s.sendJSONError(w, http.StatusInternalServerError, "internal server error")
		return
	}
	if events == nil {
		events = []geofence.Event{}
	}
	s.sendJSON(w, http.StatusOK, LocationResponse{Events: events})
}

// handlePostEvent handles POST /api/events. The event is queued as-is;
// malformed events are accepted here and dropped by the dispatcher.
func (s *Server) handlePostEvent(w http.ResponseWriter, r *http.Request) {
	var ev geofence.Event
	if err := json.NewDecoder(r.Body).Decode(&ev); err != nil {
		s.sendJSONError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}
	if strings.TrimSpace(ev.ID) == "" {
		ev.ID = uuid.New().String()
	}

	if err := s.monitor.Deliver(r.Context(), ev); err != nil {
		if errors.Is(err, geofence.ErrClosed) {
			s.sendJSONError(w, http.StatusServiceUnavailable, "shutting down")
			return
		}
		s.logger.Error("failed to deliver event", "error", err, "event_id", ev.ID)
		s.sendJSONError(w, http.StatusInternalServerError, "internal server error")
		return
	}
	s.sendJSON(w, http.StatusAccepted, EventAcceptedResponse{ID: ev.ID})
}

// writeSSEEvent writes a single SSE event to the response writer.
func (s *Server) writeSSEEvent(w http.ResponseWriter, event string, data interface{}) {
	dataJSON, err := json.Marshal(data)
	if err != nil {
		s.logger.Error("failed to marshal SSE data", "error", err)
		return
	}

	fmt.Fprintf(w, "event: %s\n", event)
	fmt.Fprintf(w, "data: %s\n\n", dataJSON)
}

func (s *Server) sendJSON(w http.ResponseWriter, status int, body interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(body); err != nil {
		s.logger.Debug("failed to write response", "error", err)
	}
}

// sendJSONError writes a JSON error response.
func (s *Server) sendJSONError(w http.ResponseWriter, status int, message string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(map[string]string{"error": message})
}
