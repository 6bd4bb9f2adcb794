package handlers

import (
	"errors"
	"fmt"
	"net/http"

	"github.com/unl5k/race-timing-system/middleware"
	"github.com/unl5k/race-timing-system/models"
	"github.com/unl5k/race-timing-system/services"
)

type RegistrationHandler struct {
	registrationService services.RegistrationService
	requireFullBatch    bool
}

func NewRegistrationHandler(registrationService services.RegistrationService, requireFullBatch bool) *RegistrationHandler {
	return &RegistrationHandler{
		registrationService: registrationService,
		requireFullBatch:    requireFullBatch,
	}
}

type registerRecordsRequest struct {
	Record  *services.RecordInput  `json:"record"`
	Records []services.RecordInput `json:"records"`
}

func (h *RegistrationHandler) RegisterRecords(w http.ResponseWriter, r *http.Request) {
	judgeID, err := middleware.GetJudgeIDFromContext(r.Context())
	if err != nil {
		unauthorizedResponse(w, r, err.Error())
		return
	}

	teamID, err := getIDFromURL(r, "teamID")
	if err != nil {
		badRequestResponse(w, r, err)
		return
	}

	var input registerRecordsRequest
	if err := readJSON(w, r, &input); err != nil {
		badRequestResponse(w, r, err)
		return
	}

	switch {
	case input.Record != nil && input.Records != nil:
		badRequestResponse(w, r, errors.New("body must contain either 'record' or 'records', not both"))
	case input.Records != nil:
		h.registerBatch(w, r, judgeID, teamID, input.Records)
	case input.Record != nil:
		h.registerSingle(w, r, judgeID, teamID, *input.Record)
	default:
		badRequestResponse(w, r, errors.New("body must contain 'record' or 'records'"))
	}
}

func (h *RegistrationHandler) registerSingle(w http.ResponseWriter, r *http.Request, judgeID, teamID int, input services.RecordInput) {
	result, err := h.registrationService.Register(r.Context(), judgeID, teamID, input)
	if err != nil {
		mapServiceErrorToHTTP(w, r, err)
		return
	}

	status := http.StatusCreated
	if result.Duplicate {
		status = http.StatusOK
	}

	response := jsonResponse{
		"record":    result.Record,
		"duplicate": result.Duplicate,
	}
	if err := writeJSON(w, status, response, nil); err != nil {
		serverErrorResponse(w, r, err)
	}
}

func (h *RegistrationHandler) registerBatch(w http.ResponseWriter, r *http.Request, judgeID, teamID int, inputs []services.RecordInput) {
	if h.requireFullBatch && len(inputs) != models.MaxRecordsPerTeam {
		badRequestResponse(w, r, fmt.Errorf("batch must contain exactly %d records, got %d", models.MaxRecordsPerTeam, len(inputs)))
		return
	}

	result, err := h.registrationService.RegisterBatch(r.Context(), judgeID, teamID, inputs)
	if err != nil {
		mapServiceErrorToHTTP(w, r, err)
		return
	}

	status := http.StatusCreated
	if result.TotalSaved == 0 {
		status = http.StatusOK
	}

	response := jsonResponse{"result": result}
	if err := writeJSON(w, status, response, nil); err != nil {
		serverErrorResponse(w, r, err)
	}
}

func (h *RegistrationHandler) RecordsStatus(w http.ResponseWriter, r *http.Request) {
	judgeID, err := middleware.GetJudgeIDFromContext(r.Context())
	if err != nil {
		unauthorizedResponse(w, r, err.Error())
		return
	}

	teamID, err := getIDFromURL(r, "teamID")
	if err != nil {
		badRequestResponse(w, r, err)
		return
	}

	status, err := h.registrationService.Status(r.Context(), judgeID, teamID)
	if err != nil {
		mapServiceErrorToHTTP(w, r, err)
		return
	}

	response := jsonResponse{"status": status}
	if err := writeJSON(w, http.StatusOK, response, nil); err != nil {
		serverErrorResponse(w, r, err)
	}
}
