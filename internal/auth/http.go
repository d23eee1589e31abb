// Copyright (c) 2026 Marketschool. All rights reserved.
// Author: tai.buivan.jp@gmail.com

package auth

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/taibuivan/marketschool/internal/platform/middleware"
	requestutil "github.com/taibuivan/marketschool/internal/platform/request"
	"github.com/taibuivan/marketschool/internal/platform/respond"
	"github.com/taibuivan/marketschool/internal/platform/validate"
)

// Handler implements the authentication HTTP endpoints.
//
// It must be mounted behind the session middleware; the handler never touches
// cookies itself.
type Handler struct {
	authService *Service
}

// NewHandler constructs a new [Handler] with its service dependency.
func NewHandler(service *Service) *Handler {
	return &Handler{authService: service}
}

// Routes returns a [chi.Router] configured with the authentication routes.
//
// # Endpoints
//   - POST /login   : Starts a session.
//   - POST /logout  : Ends the session, if any.
//   - GET  /verify  : Reports the session's user without renewing it.
//   - POST /refresh : Slides the session expiry.
func (handler *Handler) Routes() chi.Router {
	router := chi.NewRouter()

	router.Post("/login", handler.login)
	router.Post("/logout", handler.logout)
	router.Get("/verify", handler.verify)
	router.Post("/refresh", handler.refresh)

	return router
}

type okResponse struct {
	OK bool `json:"ok"`
}

/*
Login authenticates a user and establishes a session.

POST /api/auth/login

Request:
  - Body: {"user_id": string, "id_token"?: string, ...additional}

Response:
  - 200: {"userId"}
  - 400: VALIDATION_ERROR
  - 401: INVALID_CREDENTIALS
  - 429: RATE_LIMITED
*/
func (handler *Handler) login(writer http.ResponseWriter, request *http.Request) {
	var body map[string]any

	if err := requestutil.DecodeJSON(writer, request, &body); err != nil || body == nil {
		respond.Error(writer, request, validate.ErrInvalidJSON)
		return
	}

	userID, userIDOK := body[FieldUserID].(string)
	idToken, idTokenOK := body[FieldIDToken].(string)

	validator := &validate.Validator{}
	validator.Custom(FieldUserID, body[FieldUserID] != nil && !userIDOK, "Must be a string").
		Custom(FieldIDToken, body[FieldIDToken] != nil && !idTokenOK, "Must be a string")

	if err := validator.Err(); err != nil {
		respond.Error(writer, request, err)
		return
	}

	delete(body, FieldUserID)
	delete(body, FieldIDToken)

	identity, err := handler.authService.Login(request.Context(), LoginInput{
		UserID:     userID,
		Credential: idToken,
		Additional: body,
		IPAddress:  middleware.RealIP(request),
		UserAgent:  request.UserAgent(),
	})
	if err != nil {
		respond.Error(writer, request, err)
		return
	}

	respond.OK(writer, identity)
}

/*
Logout ends the current session.

POST /api/auth/logout

Response:
  - 200: {"ok": true}, with or without a session
*/
func (handler *Handler) logout(writer http.ResponseWriter, request *http.Request) {
	if err := handler.authService.Logout(request.Context()); err != nil {
		respond.Error(writer, request, err)
		return
	}
	respond.OK(writer, okResponse{OK: true})
}

/*
Verify reports the authenticated user.

GET /api/auth/verify

Response:
  - 200: {"userId"}
  - 401: UNAUTHORIZED
*/
func (handler *Handler) verify(writer http.ResponseWriter, request *http.Request) {
	identity, err := handler.authService.Verify(request.Context())
	if err != nil {
		respond.Error(writer, request, err)
		return
	}
	respond.OK(writer, identity)
}

/*
Refresh slides the session expiry.

POST /api/auth/refresh

Response:
  - 200: {"ok": true}
  - 401: NO_SESSION
*/
func (handler *Handler) refresh(writer http.ResponseWriter, request *http.Request) {
	if _, err := handler.authService.Refresh(request.Context()); err != nil {
		respond.Error(writer, request, err)
		return
	}
	respond.OK(writer, okResponse{OK: true})
}
