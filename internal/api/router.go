package api

import (
	"database/sql"
	"net/http"

	"github.com/erazemk/skener/internal/model"
)

// NewRouter creates the API router with all endpoints registered.
func NewRouter(db *sql.DB, jwtSecret string, sessions *Sessions) http.Handler {
	mux := http.NewServeMux()

	authHandler := &AuthHandler{DB: db, JWTSecret: jwtSecret, Sessions: sessions}
	usersHandler := &UsersHandler{DB: db, Sessions: sessions}
	itemsHandler := &ItemsHandler{DB: db}
	captureHandler := &CaptureHandler{DB: db, JWTSecret: jwtSecret, Sessions: sessions}
	scanHandler := &ScanHandler{DB: db, Sessions: sessions}

	authMW := AuthMiddleware(jwtSecret, db)
	requireAdmin := RequireRole(model.RoleAdmin)
	requireManager := RequireRole(model.RoleManager)

	// Public: login, and the feed which authenticates by ticket.
	mux.HandleFunc("POST /api/auth/login", authHandler.Login)
	mux.HandleFunc("GET /api/capture/feed", captureHandler.Feed)

	// Authenticated routes.
	mux.Handle("PUT /api/auth/password", authMW(http.HandlerFunc(authHandler.ChangePassword)))
	mux.Handle("POST /api/auth/logout", authMW(http.HandlerFunc(authHandler.Logout)))

	// Users (admin only).
	mux.Handle("GET /api/users", authMW(requireAdmin(http.HandlerFunc(usersHandler.List))))
	mux.Handle("POST /api/users", authMW(requireAdmin(http.HandlerFunc(usersHandler.Create))))
	mux.Handle("DELETE /api/users/{id}", authMW(requireAdmin(http.HandlerFunc(usersHandler.Delete))))

	// Items: read (all roles), write (manager+).
	mux.Handle("GET /api/items", authMW(http.HandlerFunc(itemsHandler.List)))
	mux.Handle("POST /api/items", authMW(requireManager(http.HandlerFunc(itemsHandler.Create))))
	mux.Handle("GET /api/items/lookup", authMW(http.HandlerFunc(itemsHandler.Lookup)))
	mux.Handle("GET /api/items/catalog", authMW(http.HandlerFunc(itemsHandler.Catalog)))
	mux.Handle("GET /api/items/{id}", authMW(http.HandlerFunc(itemsHandler.Get)))
	mux.Handle("DELETE /api/items/{id}", authMW(requireManager(http.HandlerFunc(itemsHandler.Delete))))
	mux.Handle("GET /api/items/{id}/usage", authMW(http.HandlerFunc(itemsHandler.History)))

	// Capture (all roles).
	mux.Handle("GET /api/capture", authMW(http.HandlerFunc(captureHandler.Status)))
	mux.Handle("POST /api/capture/start", authMW(http.HandlerFunc(captureHandler.Start)))
	mux.Handle("POST /api/capture/stop", authMW(http.HandlerFunc(captureHandler.Stop)))
	mux.Handle("POST /api/capture/torch", authMW(http.HandlerFunc(captureHandler.Torch)))
	mux.Handle("POST /api/capture/ticket", authMW(http.HandlerFunc(captureHandler.Ticket)))

	// Scanning dialog (all roles).
	mux.Handle("POST /api/scan", authMW(http.HandlerFunc(scanHandler.Scan)))
	mux.Handle("GET /api/search", authMW(http.HandlerFunc(scanHandler.Search)))
	mux.Handle("POST /api/search/select", authMW(http.HandlerFunc(scanHandler.Select)))
	mux.Handle("POST /api/resolve", authMW(http.HandlerFunc(scanHandler.Resolve)))
	mux.Handle("POST /api/dismiss", authMW(http.HandlerFunc(scanHandler.Dismiss)))
	mux.Handle("GET /api/resolved", authMW(http.HandlerFunc(scanHandler.Resolved)))
	mux.Handle("POST /api/usage", authMW(http.HandlerFunc(scanHandler.Usage)))

	return mux
}
