// Copyright (c) 2026 Marketschool. All rights reserved.
// Author: tai.buivan.jp@gmail.com

/*
Package motd serves the message of the day from the motd reference table.

It is the reference example of a data endpoint gated by the session layer:
the route is only reachable with a live session.
*/
package motd

import (
	"context"
	"time"
)

// Message is one row of the motd table.
type Message struct {
	ID        int       `json:"-"`
	Message   string    `json:"message"`
	CreatedAt time.Time `json:"-"`
}

// Repository reads the motd table.
type Repository interface {

	/*
		Latest returns the most recently created message.

		Returns:
		  - error: apperr NOT_FOUND when the table is empty
	*/
	Latest(ctx context.Context) (*Message, error)
}

// Service implements the message-of-the-day use case.
type Service struct {
	repository Repository
}

// NewService constructs a new [Service].
func NewService(repository Repository) *Service {
	return &Service{repository: repository}
}

// Current returns the message to display.
func (service *Service) Current(ctx context.Context) (*Message, error) {
	return service.repository.Latest(ctx)
}
