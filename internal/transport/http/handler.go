package http

import (
	"encoding/json"
	"errors"
	"log"
	"net/http"
	"strconv"

	"github.com/google/uuid"

	"quiz-admin-service/internal/app"
	"quiz-admin-service/internal/authz"
	"quiz-admin-service/internal/domain"
)

// principalHeader carries the authenticated subject id, set by the upstream
// auth gateway after token verification. An absent or empty header means the
// request is anonymous.
const principalHeader = "X-Principal-ID"

// Handler exposes the admin CRUD surface over JSON.
type Handler struct {
	service *app.AdminService
}

func NewHandler(service *app.AdminService) *Handler {
	return &Handler{service: service}
}

// Register wires all routes onto mux.
func (h *Handler) Register(mux *http.ServeMux) {
	mux.HandleFunc("GET /api/profile", h.getProfile)
	mux.HandleFunc("PUT /api/profile", h.updateProfile)

	mux.HandleFunc("GET /api/roles", h.listRoleGrants)
	mux.HandleFunc("POST /api/roles", h.grantRole)
	mux.HandleFunc("DELETE /api/roles", h.revokeRole)

	mux.HandleFunc("GET /api/quizzes", h.listQuizzes)
	mux.HandleFunc("POST /api/quizzes", h.createQuiz)
	mux.HandleFunc("GET /api/quizzes/{id}", h.getQuiz)
	mux.HandleFunc("PUT /api/quizzes/{id}", h.updateQuiz)
	mux.HandleFunc("DELETE /api/quizzes/{id}", h.deleteQuiz)

	mux.HandleFunc("GET /api/quizzes/{quizID}/questions", h.listQuestions)
	mux.HandleFunc("POST /api/quizzes/{quizID}/questions", h.addQuestion)
	mux.HandleFunc("PUT /api/quizzes/{quizID}/questions/{id}", h.updateQuestion)
	mux.HandleFunc("DELETE /api/quizzes/{quizID}/questions/{id}", h.deleteQuestion)

	mux.HandleFunc("GET /api/quizzes/{quizID}/leaderboard", h.listEntries)
	mux.HandleFunc("POST /api/quizzes/{quizID}/leaderboard", h.addEntry)
	mux.HandleFunc("PUT /api/quizzes/{quizID}/leaderboard/{id}", h.updateEntry)
	mux.HandleFunc("DELETE /api/quizzes/{quizID}/leaderboard/{id}", h.deleteEntry)
}

// principal extracts the caller identity from the gateway header.
func principal(r *http.Request) (authz.Principal, error) {
	raw := r.Header.Get(principalHeader)
	if raw == "" {
		return authz.Anonymous, nil
	}
	id, err := uuid.Parse(raw)
	if err != nil {
		return authz.Anonymous, err
	}
	return authz.Authenticated(id), nil
}

func pathID(r *http.Request, name string) (int64, error) {
	return strconv.ParseInt(r.PathValue(name), 10, 64)
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if v != nil {
		if err := json.NewEncoder(w).Encode(v); err != nil {
			log.Printf("write response: %v", err)
		}
	}
}

type errorResponse struct {
	Error string `json:"error"`
}

func writeError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, domain.ErrPermissionDenied):
		writeJSON(w, http.StatusForbidden, errorResponse{Error: "forbidden"})
	case errors.Is(err, domain.ErrNotFound), errors.Is(err, domain.ErrQuizNotFound):
		writeJSON(w, http.StatusNotFound, errorResponse{Error: "not found"})
	case errors.Is(err, domain.ErrInvalidRole), errors.Is(err, domain.ErrInvalidPoints):
		writeJSON(w, http.StatusBadRequest, errorResponse{Error: err.Error()})
	case errors.Is(err, domain.ErrDuplicateProfile):
		writeJSON(w, http.StatusConflict, errorResponse{Error: err.Error()})
	default:
		log.Printf("internal error: %v", err)
		writeJSON(w, http.StatusInternalServerError, errorResponse{Error: "internal error"})
	}
}

func writeBadRequest(w http.ResponseWriter, msg string) {
	writeJSON(w, http.StatusBadRequest, errorResponse{Error: msg})
}

// --- profile ---

func (h *Handler) getProfile(w http.ResponseWriter, r *http.Request) {
	p, err := principal(r)
	if err != nil {
		writeBadRequest(w, "invalid principal header")
		return
	}
	profile, err := h.service.GetProfile(r.Context(), p)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, profile)
}

type profileRequest struct {
	DisplayName string `json:"displayName"`
	Email       string `json:"email"`
}

func (h *Handler) updateProfile(w http.ResponseWriter, r *http.Request) {
	p, err := principal(r)
	if err != nil {
		writeBadRequest(w, "invalid principal header")
		return
	}
	var req profileRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeBadRequest(w, "invalid body")
		return
	}
	profile, err := h.service.UpdateProfile(r.Context(), p, req.DisplayName, req.Email)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, profile)
}

// --- role grants ---

type roleGrantRequest struct {
	PrincipalID uuid.UUID   `json:"principalId"`
	Role        domain.Role `json:"role"`
}

func (h *Handler) listRoleGrants(w http.ResponseWriter, r *http.Request) {
	p, err := principal(r)
	if err != nil {
		writeBadRequest(w, "invalid principal header")
		return
	}
	grants, err := h.service.ListRoleGrants(r.Context(), p)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, grants)
}

func (h *Handler) grantRole(w http.ResponseWriter, r *http.Request) {
	p, err := principal(r)
	if err != nil {
		writeBadRequest(w, "invalid principal header")
		return
	}
	var req roleGrantRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeBadRequest(w, "invalid body")
		return
	}
	if err := h.service.GrantRole(r.Context(), p, req.PrincipalID, req.Role); err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusNoContent, nil)
}

func (h *Handler) revokeRole(w http.ResponseWriter, r *http.Request) {
	p, err := principal(r)
	if err != nil {
		writeBadRequest(w, "invalid principal header")
		return
	}
	var req roleGrantRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeBadRequest(w, "invalid body")
		return
	}
	if err := h.service.RevokeRole(r.Context(), p, req.PrincipalID, req.Role); err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusNoContent, nil)
}

// --- quizzes ---

type quizRequest struct {
	Title       string `json:"title"`
	Description string `json:"description"`
	Active      bool   `json:"active"`
}

func (h *Handler) listQuizzes(w http.ResponseWriter, r *http.Request) {
	p, err := principal(r)
	if err != nil {
		writeBadRequest(w, "invalid principal header")
		return
	}
	quizzes, err := h.service.ListQuizzes(r.Context(), p)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, quizzes)
}

func (h *Handler) createQuiz(w http.ResponseWriter, r *http.Request) {
	p, err := principal(r)
	if err != nil {
		writeBadRequest(w, "invalid principal header")
		return
	}
	var req quizRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeBadRequest(w, "invalid body")
		return
	}
	if req.Title == "" {
		writeBadRequest(w, "title is required")
		return
	}
	quiz := &domain.Quiz{Title: req.Title, Description: req.Description, Active: req.Active}
	if err := h.service.CreateQuiz(r.Context(), p, quiz); err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, quiz)
}

func (h *Handler) getQuiz(w http.ResponseWriter, r *http.Request) {
	p, err := principal(r)
	if err != nil {
		writeBadRequest(w, "invalid principal header")
		return
	}
	id, err := pathID(r, "id")
	if err != nil {
		writeBadRequest(w, "invalid quiz id")
		return
	}
	quiz, err := h.service.GetQuiz(r.Context(), p, id)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, quiz)
}

func (h *Handler) updateQuiz(w http.ResponseWriter, r *http.Request) {
	p, err := principal(r)
	if err != nil {
		writeBadRequest(w, "invalid principal header")
		return
	}
	id, err := pathID(r, "id")
	if err != nil {
		writeBadRequest(w, "invalid quiz id")
		return
	}
	var req quizRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeBadRequest(w, "invalid body")
		return
	}
	quiz := &domain.Quiz{ID: id, Title: req.Title, Description: req.Description, Active: req.Active}
	updated, err := h.service.UpdateQuiz(r.Context(), p, quiz)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, updated)
}

func (h *Handler) deleteQuiz(w http.ResponseWriter, r *http.Request) {
	p, err := principal(r)
	if err != nil {
		writeBadRequest(w, "invalid principal header")
		return
	}
	id, err := pathID(r, "id")
	if err != nil {
		writeBadRequest(w, "invalid quiz id")
		return
	}
	if err := h.service.DeleteQuiz(r.Context(), p, id); err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusNoContent, nil)
}

// --- questions ---

type questionRequest struct {
	Text          string `json:"question"`
	CorrectAnswer string `json:"correctAnswer"`
	OptionA       string `json:"optionA"`
	OptionB       string `json:"optionB"`
	OptionC       string `json:"optionC"`
	OptionD       string `json:"optionD"`
	OrderIndex    int    `json:"orderIndex"`
	Points        int    `json:"points"`
}

func (h *Handler) listQuestions(w http.ResponseWriter, r *http.Request) {
	p, err := principal(r)
	if err != nil {
		writeBadRequest(w, "invalid principal header")
		return
	}
	quizID, err := pathID(r, "quizID")
	if err != nil {
		writeBadRequest(w, "invalid quiz id")
		return
	}
	questions, err := h.service.ListQuestions(r.Context(), p, quizID)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, questions)
}

func (h *Handler) addQuestion(w http.ResponseWriter, r *http.Request) {
	p, err := principal(r)
	if err != nil {
		writeBadRequest(w, "invalid principal header")
		return
	}
	quizID, err := pathID(r, "quizID")
	if err != nil {
		writeBadRequest(w, "invalid quiz id")
		return
	}
	var req questionRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeBadRequest(w, "invalid body")
		return
	}
	if req.Text == "" || req.CorrectAnswer == "" {
		writeBadRequest(w, "question and correctAnswer are required")
		return
	}
	if req.Points < 0 {
		writeBadRequest(w, "points must be positive")
		return
	}
	question := &domain.Question{
		QuizID:        quizID,
		Text:          req.Text,
		CorrectAnswer: req.CorrectAnswer,
		OptionA:       req.OptionA,
		OptionB:       req.OptionB,
		OptionC:       req.OptionC,
		OptionD:       req.OptionD,
		OrderIndex:    req.OrderIndex,
		Points:        req.Points,
	}
	if err := h.service.AddQuestion(r.Context(), p, question); err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, question)
}

func (h *Handler) updateQuestion(w http.ResponseWriter, r *http.Request) {
	p, err := principal(r)
	if err != nil {
		writeBadRequest(w, "invalid principal header")
		return
	}
	quizID, err := pathID(r, "quizID")
	if err != nil {
		writeBadRequest(w, "invalid quiz id")
		return
	}
	id, err := pathID(r, "id")
	if err != nil {
		writeBadRequest(w, "invalid question id")
		return
	}
	var req questionRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeBadRequest(w, "invalid body")
		return
	}
	question := &domain.Question{
		ID:            id,
		QuizID:        quizID,
		Text:          req.Text,
		CorrectAnswer: req.CorrectAnswer,
		OptionA:       req.OptionA,
		OptionB:       req.OptionB,
		OptionC:       req.OptionC,
		OptionD:       req.OptionD,
		OrderIndex:    req.OrderIndex,
		Points:        req.Points,
	}
	updated, err := h.service.UpdateQuestion(r.Context(), p, question)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, updated)
}

func (h *Handler) deleteQuestion(w http.ResponseWriter, r *http.Request) {
	p, err := principal(r)
	if err != nil {
		writeBadRequest(w, "invalid principal header")
		return
	}
	id, err := pathID(r, "id")
	if err != nil {
		writeBadRequest(w, "invalid question id")
		return
	}
	if err := h.service.DeleteQuestion(r.Context(), p, id); err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusNoContent, nil)
}

// --- leaderboard ---

type entryRequest struct {
	ParticipantName string `json:"participantName"`
	Score           int    `json:"score"`
	Position        *int   `json:"position"`
	Notes           string `json:"notes"`
}

func (h *Handler) listEntries(w http.ResponseWriter, r *http.Request) {
	p, err := principal(r)
	if err != nil {
		writeBadRequest(w, "invalid principal header")
		return
	}
	quizID, err := pathID(r, "quizID")
	if err != nil {
		writeBadRequest(w, "invalid quiz id")
		return
	}
	entries, err := h.service.ListEntries(r.Context(), p, quizID)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, entries)
}

func (h *Handler) addEntry(w http.ResponseWriter, r *http.Request) {
	p, err := principal(r)
	if err != nil {
		writeBadRequest(w, "invalid principal header")
		return
	}
	quizID, err := pathID(r, "quizID")
	if err != nil {
		writeBadRequest(w, "invalid quiz id")
		return
	}
	var req entryRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeBadRequest(w, "invalid body")
		return
	}
	if req.ParticipantName == "" {
		writeBadRequest(w, "participantName is required")
		return
	}
	entry := &domain.LeaderboardEntry{
		QuizID:          quizID,
		ParticipantName: req.ParticipantName,
		Score:           req.Score,
		Position:        req.Position,
		Notes:           req.Notes,
	}
	if err := h.service.AddEntry(r.Context(), p, entry); err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, entry)
}

func (h *Handler) updateEntry(w http.ResponseWriter, r *http.Request) {
	p, err := principal(r)
	if err != nil {
		writeBadRequest(w, "invalid principal header")
		return
	}
	quizID, err := pathID(r, "quizID")
	if err != nil {
		writeBadRequest(w, "invalid quiz id")
		return
	}
	id, err := pathID(r, "id")
	if err != nil {
		writeBadRequest(w, "invalid entry id")
		return
	}
	var req entryRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeBadRequest(w, "invalid body")
		return
	}
	entry := &domain.LeaderboardEntry{
		ID:              id,
		QuizID:          quizID,
		ParticipantName: req.ParticipantName,
		Score:           req.Score,
		Position:        req.Position,
		Notes:           req.Notes,
	}
	updated, err := h.service.UpdateEntry(r.Context(), p, entry)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, updated)
}

func (h *Handler) deleteEntry(w http.ResponseWriter, r *http.Request) {
	p, err := principal(r)
	if err != nil {
		writeBadRequest(w, "invalid principal header")
		return
	}
	quizID, err := pathID(r, "quizID")
	if err != nil {
		writeBadRequest(w, "invalid quiz id")
		return
	}
	id, err := pathID(r, "id")
	if err != nil {
		writeBadRequest(w, "invalid entry id")
		return
	}
	if err := h.service.DeleteEntry(r.Context(), p, quizID, id); err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusNoContent, nil)
}
