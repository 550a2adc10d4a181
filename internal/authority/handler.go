package authority

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"sort"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"

	"minerva/internal/identity/kyc"
	walletclient "minerva/internal/identity/wallet"
	"minerva/internal/platform/middleware"
	dErrors "minerva/pkg/domain-errors"
	"minerva/pkg/requestcontext"
)

// statusByCode maps service error codes to HTTP statuses. The wire error
// string is the upper-cased code, e.g. KYC_REQUIRED.
var statusByCode = map[dErrors.Code]int{
	dErrors.CodeValidation:         http.StatusBadRequest,
	dErrors.CodeBadRequest:         http.StatusBadRequest,
	dErrors.CodeInvalidCredentials: http.StatusUnauthorized,
	dErrors.CodeExpiredSession:     http.StatusUnauthorized,
	dErrors.CodeSignatureInvalid:   http.StatusUnauthorized,
	dErrors.CodeUnauthorized:       http.StatusUnauthorized,
	dErrors.CodeKycRequired:        http.StatusForbidden,
	dErrors.CodeConflict:           http.StatusConflict,
	dErrors.CodeNotFound:           http.StatusNotFound,
}

type response struct {
	Success bool              `json:"success"`
	Data    any               `json:"data,omitempty"`
	Error   string            `json:"error,omitempty"`
	Message string            `json:"message,omitempty"`
	Fields  map[string]string `json:"fields,omitempty"`
}

// Handler serves the KYC and wallet endpoints.
type Handler struct {
	svc    *Service
	logger *slog.Logger
}

func NewHandler(svc *Service, logger *slog.Logger) *Handler {
	return &Handler{svc: svc, logger: logger}
}

// Register mounts the authority routes on r.
func (h *Handler) Register(r chi.Router) {
	router := chi.NewRouter()
	router.Use(middleware.Recovery(h.logger))
	router.Use(middleware.RequestID)
	router.Use(middleware.Logger(h.logger))

	router.Post("/kyc/register", h.handleRegister)
	router.Post("/kyc/login", h.handleLogin)
	router.Post("/kyc/refresh-token", h.handleRefresh)
	router.Post("/kyc/logout", h.handleLogout)
	router.Get("/auth/nonce", h.handleNonce)
	router.Post("/auth/verify", h.handleVerify)
	router.Get("/health", h.handleHealth)

	r.Mount("/", router)
}

// NewRouter returns a router serving only the authority routes.
func NewRouter(h *Handler) http.Handler {
	r := chi.NewRouter()
	h.Register(r)
	return r
}

func (h *Handler) handleRegister(w http.ResponseWriter, r *http.Request) {
	var req kyc.RegisterRequest
	if !h.decode(w, r, &req) {
		return
	}
	res, err := h.svc.Register(r.Context(), req)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, res)
}

func (h *Handler) handleLogin(w http.ResponseWriter, r *http.Request) {
	var req kyc.LoginRequest
	if !h.decode(w, r, &req) {
		return
	}
	res, err := h.svc.Login(r.Context(), req)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, res)
}

func (h *Handler) handleRefresh(w http.ResponseWriter, r *http.Request) {
	var req struct {
		RefreshToken string `json:"refreshToken"`
	}
	if !h.decode(w, r, &req) {
		return
	}
	res, err := h.svc.Refresh(r.Context(), req.RefreshToken)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, res)
}

func (h *Handler) handleLogout(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Type         kyc.LogoutType `json:"type"`
		RefreshToken string         `json:"refreshToken"`
	}
	if !h.decode(w, r, &req) {
		return
	}
	if err := h.svc.Logout(r.Context(), req.Type, req.RefreshToken, h.bearerUser(r)); err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"message": "Logged out"})
}

func (h *Handler) handleNonce(w http.ResponseWriter, r *http.Request) {
	res, err := h.svc.Nonce(r.Context(), r.URL.Query().Get("wallet"))
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, res)
}

func (h *Handler) handleVerify(w http.ResponseWriter, r *http.Request) {
	var req walletclient.VerifyRequest
	if !h.decode(w, r, &req) {
		return
	}
	res, err := h.svc.Verify(r.Context(), req)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, res)
}

func (h *Handler) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{
		"status": "ok",
		"time":   requestcontext.Now(r.Context()).UTC().Format(time.RFC3339),
	})
}

// bearerUser returns the account behind a valid KYC bearer token, or "".
func (h *Handler) bearerUser(r *http.Request) string {
	token, ok := strings.CutPrefix(r.Header.Get("Authorization"), "Bearer ")
	if !ok || token == "" {
		return ""
	}
	claims, err := h.svc.tokens.Validate(token)
	if err != nil || claims.Kind != KindKYC {
		return ""
	}
	return claims.UserID
}

func (h *Handler) decode(w http.ResponseWriter, r *http.Request, v any) bool {
	if err := json.NewDecoder(r.Body).Decode(v); err != nil {
		h.logger.WarnContext(r.Context(), "invalid request body",
			"request_id", requestcontext.RequestID(r.Context()),
			"error", err.Error(),
		)
		h.writeError(w, r, dErrors.New(dErrors.CodeBadRequest, "Invalid request body"))
		return false
	}
	return true
}

func (h *Handler) writeError(w http.ResponseWriter, r *http.Request, err error) {
	code := dErrors.CodeOf(err)
	status, ok := statusByCode[code]
	if !ok {
		code = dErrors.CodeInternal
		status = http.StatusInternalServerError
		h.logger.ErrorContext(r.Context(), "request failed",
			"request_id", requestcontext.RequestID(r.Context()),
			"error", err.Error(),
		)
	}
	resp := response{Error: strings.ToUpper(string(code)), Message: "Internal server error"}
	var de *dErrors.Error
	if status != http.StatusInternalServerError && errors.As(err, &de) {
		resp.Message = de.Message
		resp.Fields = de.Fields
		if len(de.Fields) > 0 {
			resp.Message = joinFields(de.Fields)
		}
	}
	writeBody(w, status, resp)
}

func joinFields(fields map[string]string) string {
	keys := make([]string, 0, len(fields))
	for k := range fields {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	msgs := make([]string, 0, len(keys))
	for _, k := range keys {
		msgs = append(msgs, fields[k])
	}
	return strings.Join(msgs, "; ")
}

func writeJSON(w http.ResponseWriter, status int, data any) {
	writeBody(w, status, response{Success: true, Data: data})
}

func writeBody(w http.ResponseWriter, status int, body response) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(body)
}
