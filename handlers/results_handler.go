package handlers

import (
	"net/http"

	"github.com/unl5k/race-timing-system/services"
)

type ResultsHandler struct {
	resultsService services.ResultsService
}

func NewResultsHandler(resultsService services.ResultsService) *ResultsHandler {
	return &ResultsHandler{
		resultsService: resultsService,
	}
}

func (h *ResultsHandler) CompetitionResults(w http.ResponseWriter, r *http.Request) {
	competitionID, err := getIDFromURL(r, "competitionID")
	if err != nil {
		badRequestResponse(w, r, err)
		return
	}

	category := r.URL.Query().Get("category")

	results, err := h.resultsService.CompetitionResults(r.Context(), competitionID, category)
	if err != nil {
		mapServiceErrorToHTTP(w, r, err)
		return
	}

	response := jsonResponse{"results": results}
	if err := writeJSON(w, http.StatusOK, response, nil); err != nil {
		serverErrorResponse(w, r, err)
	}
}

func (h *ResultsHandler) TeamDetail(w http.ResponseWriter, r *http.Request) {
	teamID, err := getIDFromURL(r, "teamID")
	if err != nil {
		badRequestResponse(w, r, err)
		return
	}

	detail, err := h.resultsService.TeamDetail(r.Context(), teamID)
	if err != nil {
		mapServiceErrorToHTTP(w, r, err)
		return
	}

	response := jsonResponse{"team": detail}
	if err := writeJSON(w, http.StatusOK, response, nil); err != nil {
		serverErrorResponse(w, r, err)
	}
}
