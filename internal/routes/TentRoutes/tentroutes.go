package tentroutes

import (
	"net/http"

	"github.com/gorilla/mux"
	"github.com/nikhil/creatortent/internal/app"
	"github.com/nikhil/creatortent/internal/middleware"
	tentService "github.com/nikhil/creatortent/internal/service/tent"
)

func TentRoutes(router *mux.Router, c *app.Container) {
	tentService := tentService.NewTentService(c.Store, c.Notifications)

	protectedRouter := router.PathPrefix("/tent").Subrouter()
	protectedRouter.Use(middleware.AuthMiddleware(c.JWT), c.Limiter.Handler, middleware.ResponseWrapperMiddleware)
	protectedRouter.HandleFunc("/create", tentService.CreateTent).Methods(http.MethodPost)
	protectedRouter.HandleFunc("/join", tentService.JoinTent).Methods(http.MethodPost)
	protectedRouter.HandleFunc("/all", tentService.GetUserTents).Methods(http.MethodGet)
	protectedRouter.HandleFunc("/get/{id}", tentService.GetTent).Methods(http.MethodGet)
	protectedRouter.HandleFunc("/update/{id}", tentService.UpdateTent).Methods(http.MethodPut)
	protectedRouter.HandleFunc("/delete/{id}", tentService.DeleteTent).Methods(http.MethodDelete)
	protectedRouter.HandleFunc("/leave/{id}", tentService.LeaveTent).Methods(http.MethodPost)
	protectedRouter.HandleFunc("/regenerate-code/{id}", tentService.RegenerateInviteCode).Methods(http.MethodPost)
}
