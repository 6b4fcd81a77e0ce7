package httpapi

import (
	"context"
	"database/sql"
	"net/http"

	"github.com/haontuhcmut/lab-services/internal/auth"
	"github.com/haontuhcmut/lab-services/internal/detect"
	"github.com/haontuhcmut/lab-services/internal/obs"
	"github.com/haontuhcmut/lab-services/internal/store"
)

const apiPrefix = "/api/v1"

// healthChecker is anything the readiness probe can ask about.
type healthChecker interface {
	CheckHealth(ctx context.Context) error
}

// ReadyProbe checks the external collaborators the service depends on.
type ReadyProbe struct {
	DB    *sql.DB
	Model healthChecker
}

func (rp ReadyProbe) Check(ctx context.Context) error {
	if rp.DB != nil {
		if err := rp.DB.PingContext(ctx); err != nil {
			return err
		}
	}
	if rp.Model != nil {
		if err := rp.Model.CheckHealth(ctx); err != nil {
			return err
		}
	}
	return nil
}

// API is the HTTP layer.
type API struct {
	mux        *http.ServeMux
	auth       *auth.Service
	detections store.DetectionStore
	detector   detect.Detector
	readyProbe ReadyProbe
	version    string

	rateBurst  int
	ratePerSec int
}

func New(authSvc *auth.Service, detections store.DetectionStore, detector detect.Detector, rp ReadyProbe, version string) *API {
	a := &API{
		mux:        http.NewServeMux(),
		auth:       authSvc,
		detections: detections,
		detector:   detector,
		readyProbe: rp,
		version:    version,
		rateBurst:  20,
		ratePerSec: 10,
	}

	// auth
	a.mux.HandleFunc("POST "+apiPrefix+"/auth/signup", a.handleSignup)
	a.mux.HandleFunc("GET "+apiPrefix+"/auth/verify/{token}", a.handleVerifyAccount)
	a.mux.HandleFunc("POST "+apiPrefix+"/auth/login", a.handleLogin)
	a.mux.HandleFunc("GET "+apiPrefix+"/auth/refresh_token",
		a.requireToken(auth.GateRefresh, a.handleRefresh))
	a.mux.HandleFunc("GET "+apiPrefix+"/auth/me",
		a.requireToken(auth.GateAccess, a.handleMe))
	a.mux.HandleFunc("GET "+apiPrefix+"/auth/logout",
		a.requireToken(auth.GateAccess, a.handleLogout))
	a.mux.HandleFunc("POST "+apiPrefix+"/auth/password-reset-request", a.handlePasswordResetRequest)
	a.mux.HandleFunc("POST "+apiPrefix+"/auth/password-reset-confirm/{token}", a.handlePasswordResetConfirm)

	// object detection
	a.mux.HandleFunc("POST "+apiPrefix+"/obj/detection",
		a.requireToken(auth.GateAccess, a.requireRoles(a.handleDetect, store.RoleAdmin, store.RoleUser)))
	a.mux.HandleFunc("POST "+apiPrefix+"/obj/detection/image",
		a.requireToken(auth.GateAccess, a.requireRoles(a.handleDetectImage, store.RoleAdmin, store.RoleUser)))
	a.mux.HandleFunc("GET "+apiPrefix+"/obj/history",
		a.requireToken(auth.GateAccess, a.requireRoles(a.handleHistory, store.RoleAdmin, store.RoleUser)))
	a.mux.HandleFunc("GET "+apiPrefix+"/obj/history/all",
		a.requireToken(auth.GateAccess, a.requireRoles(a.handleHistoryAll, store.RoleAdmin)))

	// health/ready/metrics
	a.mux.HandleFunc("/healthz", a.Healthz)
	a.mux.HandleFunc("/readyz", a.Ready)
	a.mux.Handle("/metrics", obs.Handler())

	return a
}

// Handler returns the fully wrapped http.Handler for the server.
func (a *API) Handler() http.Handler {
	var h http.Handler = a.mux
	h = MaxBodyBytes(h, 10<<20) // detection uploads are image files
	h = RateLimit(h, a.rateBurst, a.ratePerSec)
	h = CORS(h)
	h = SecurityHeaders(h)
	h = Logging(h)
	h = RequestID(h)
	return obs.Instrument(h)
}

func (a *API) Healthz(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{
		"status":  "ok",
		"service": "lab-services",
		"version": a.version,
	})
}

func (a *API) Ready(w http.ResponseWriter, r *http.Request) {
	if err := a.readyProbe.Check(r.Context()); err != nil {
		obs.SetReady(false)
		writeJSON(w, http.StatusServiceUnavailable, map[string]any{
			"status": "not_ready",
			"error":  err.Error(),
		})
		return
	}
	obs.SetReady(true)
	writeJSON(w, http.StatusOK, map[string]any{"status": "ready"})
}
