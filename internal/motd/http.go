// Copyright (c) 2026 Marketschool. All rights reserved.
// Author: tai.buivan.jp@gmail.com

package motd

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/taibuivan/marketschool/internal/platform/middleware"
	"github.com/taibuivan/marketschool/internal/platform/respond"
)

// Handler serves the message of the day.
type Handler struct {
	motdService *Service
}

// NewHandler constructs a new [Handler].
func NewHandler(service *Service) *Handler {
	return &Handler{motdService: service}
}

// Routes returns a [chi.Router] for /api/motd. Every route requires a session.
func (handler *Handler) Routes() chi.Router {
	router := chi.NewRouter()
	router.Use(middleware.RequireAuth)
	router.Get("/", handler.current)
	return router
}

/*
Current returns the message of the day.

GET /api/motd

Response:
  - 200: {"message"}
  - 401: UNAUTHORIZED
  - 404: NOT_FOUND when the table is empty
*/
func (handler *Handler) current(writer http.ResponseWriter, request *http.Request) {
	message, err := handler.motdService.Current(request.Context())
	if err != nil {
		respond.Error(writer, request, err)
		return
	}
	respond.OK(writer, message)
}
