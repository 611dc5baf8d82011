package handlers

import (
	"context"
	"net/http"
	"strings"

	"github.com/huddlehq/huddle/internal/response"
	"github.com/huddlehq/huddle/internal/service"
	"github.com/huddlehq/huddle/internal/signaling"
	"github.com/huddlehq/huddle/pkg/auth"
	"github.com/huddlehq/huddle/pkg/logger"
)

type claimsKey struct{}

type Handlers struct {
	meetings   service.MeetingService
	admissions service.AdmissionService
	ws         *signaling.Server

	jwtSecret     string
	webhookSecret string
}

func New(meetings service.MeetingService, admissions service.AdmissionService, ws *signaling.Server, jwtSecret, webhookSecret string) *Handlers {
	return &Handlers{
		meetings:      meetings,
		admissions:    admissions,
		ws:            ws,
		jwtSecret:     jwtSecret,
		webhookSecret: webhookSecret,
	}
}

// RequireJWT authenticates the bearer token and stashes the claims.
func (h *Handlers) RequireJWT(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		authHeader := r.Header.Get("Authorization")
		if !strings.HasPrefix(authHeader, "Bearer ") {
			response.Unauthorized(w, "missing or invalid authorization header")
			return
		}

		token := strings.TrimPrefix(authHeader, "Bearer ")
		claims, err := auth.Parse(token, h.jwtSecret)
		if err != nil {
			response.Unauthorized(w, "invalid token")
			return
		}

		ctx := context.WithValue(r.Context(), logger.UserIDKey, claims.Sub)
		ctx = context.WithValue(ctx, claimsKey{}, claims)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

func getClaims(r *http.Request) *auth.Claims {
	if claims, ok := r.Context().Value(claimsKey{}).(*auth.Claims); ok {
		return claims
	}
	return nil
}

// HandleWS authenticates via query parameter (browsers cannot set headers
// on websocket upgrades) and hands off to the signaling server.
func (h *Handlers) HandleWS(w http.ResponseWriter, r *http.Request) {
	token := r.URL.Query().Get("token")
	if token == "" {
		response.Unauthorized(w, "token query parameter required")
		return
	}

	claims, err := auth.Parse(token, h.jwtSecret)
	if err != nil {
		response.Unauthorized(w, "invalid token")
		return
	}

	h.ws.HandleWS(w, r, claims.Sub, claims.Name)
}
