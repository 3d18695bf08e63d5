package routes

import (
	"net/http"

	"github.com/gorilla/mux"
	"github.com/nikhil/creatortent/internal/app"
	"github.com/nikhil/creatortent/internal/httputil"
	"github.com/nikhil/creatortent/internal/middleware"
	authRoute "github.com/nikhil/creatortent/internal/routes/Auth"
	tentroutes "github.com/nikhil/creatortent/internal/routes/TentRoutes"
	emailRoutes "github.com/nikhil/creatortent/internal/routes/email"
	invoiceRoutes "github.com/nikhil/creatortent/internal/routes/invoices"
	notificationRoutes "github.com/nikhil/creatortent/internal/routes/notifications"
	rateRoutes "github.com/nikhil/creatortent/internal/routes/rates"
	userRoutes "github.com/nikhil/creatortent/internal/routes/user"
)

// List of all route registration functions
var routeModules = []func(*mux.Router, *app.Container){
	authRoute.RegisterAuthRoutes,
	userRoutes.UserProfileRoutes,
	invoiceRoutes.InvoiceRoutes,
	tentroutes.TentRoutes,
	rateRoutes.RateRoutes,
	notificationRoutes.NotificationRoutes,
	emailRoutes.EmailRoutes,
	RegisterWebSocketRoutes,
}

// RegisterAllRoutes builds the router. The result is wrapped in CORS so
// preflight requests are answered before route matching.
func RegisterAllRoutes(c *app.Container) http.Handler {
	router := mux.NewRouter()
	router.Use(middleware.LoggingMiddleware(c.Log), middleware.MetricsMiddleware(c.Metrics))

	router.HandleFunc("/healthz", func(w http.ResponseWriter, r *http.Request) {
		if err := c.Store.Ping(r.Context()); err != nil {
			httputil.RespondWithError(w, http.StatusServiceUnavailable, "Database unavailable")
			return
		}
		httputil.RespondWithJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	}).Methods(http.MethodGet)
	router.Handle("/metrics", c.Metrics.Handler()).Methods(http.MethodGet)

	for _, register := range routeModules {
		register(router, c)
	}

	return middleware.CORSMiddleware(c.Config.PublicBaseURL)(router)
}
