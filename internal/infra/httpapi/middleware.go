package httpapi

import (
	"context"
	"errors"
	"net/http"
	"strings"
	"time"

	"stockpile_manager/internal/app"

	chimiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/golang-jwt/jwt/v5"
	"github.com/sirupsen/logrus"
)

type contextKey string

const identityKey contextKey = "identity"

var errUnauthorized = errors.New("unauthorized")

// requestLogger writes one access log line per request.
func (s *Server) requestLogger(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		ww := chimiddleware.NewWrapResponseWriter(w, r.ProtoMajor)

		next.ServeHTTP(ww, r)

		entry := s.log.WithFields(logrus.Fields{
			"request_id":  chimiddleware.GetReqID(r.Context()),
			"method":      r.Method,
			"path":        r.URL.Path,
			"status":      ww.Status(),
			"bytes":       ww.BytesWritten(),
			"duration_ms": time.Since(start).Milliseconds(),
		})
		switch {
		case ww.Status() >= http.StatusInternalServerError:
			entry.Error("Request failed")
		case ww.Status() >= http.StatusBadRequest:
			entry.Warn("Request rejected")
		default:
			entry.Info("Request handled")
		}
	})
}

// authenticate verifies an HS256 bearer token and stores the caller identity
// in the request context. Tokens are issued elsewhere; only sub is required.
func (s *Server) authenticate(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		id, err := s.parseIdentity(r.Header.Get("Authorization"))
		if err != nil {
			s.log.WithError(err).WithField("path", r.URL.Path).Debug("Rejected bearer token")
			writeError(w, http.StatusUnauthorized, "Unauthorized")
			return
		}
		ctx := context.WithValue(r.Context(), identityKey, id)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

func (s *Server) parseIdentity(header string) (app.Identity, error) {
	raw, ok := bearerToken(header)
	if !ok {
		return app.Identity{}, errUnauthorized
	}

	claims := jwt.MapClaims{}
	_, err := jwt.ParseWithClaims(raw, claims, func(t *jwt.Token) (interface{}, error) {
		return []byte(s.opts.JWTSecret), nil
	}, jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}))
	if err != nil {
		return app.Identity{}, err
	}

	sub, err := claims.GetSubject()
	if err != nil || sub == "" {
		return app.Identity{}, errUnauthorized
	}
	name, _ := claims["name"].(string)
	email, _ := claims["email"].(string)
	return app.Identity{UserID: sub, DisplayName: name, Email: email}, nil
}

func bearerToken(header string) (string, bool) {
	scheme, token, ok := strings.Cut(header, " ")
	if !ok || !strings.EqualFold(scheme, "Bearer") {
		return "", false
	}
	token = strings.TrimSpace(token)
	return token, token != ""
}

func identityFrom(ctx context.Context) app.Identity {
	id, _ := ctx.Value(identityKey).(app.Identity)
	return id
}
