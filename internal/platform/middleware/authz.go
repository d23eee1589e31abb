// Copyright (c) 2026 Marketschool. All rights reserved.
// Author: tai.buivan.jp@gmail.com

package middleware

import (
	"net/http"

	requestutil "github.com/taibuivan/marketschool/internal/platform/request"
	"github.com/taibuivan/marketschool/internal/platform/respond"
)

// RequireAuth blocks requests that carry no valid session.
//
// # Usage
//
// Must be registered in the router AFTER the session middleware, which is the
// only component that attaches a principal to the request context.
func RequireAuth(next http.Handler) http.Handler {
	return http.HandlerFunc(func(writer http.ResponseWriter, request *http.Request) {
		if _, err := requestutil.RequiredUserID(request); err != nil {
			respond.Error(writer, request, err)
			return
		}
		next.ServeHTTP(writer, request)
	})
}
