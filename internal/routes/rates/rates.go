package rateRoutes

import (
	"net/http"

	"github.com/gorilla/mux"
	"github.com/nikhil/creatortent/internal/app"
	"github.com/nikhil/creatortent/internal/middleware"
	rateService "github.com/nikhil/creatortent/internal/service/rates"
)

func RateRoutes(router *mux.Router, c *app.Container) {
	rateService := rateService.NewRateService(c.Store)

	protectedRouter := router.PathPrefix("/rates").Subrouter()
	protectedRouter.Use(middleware.AuthMiddleware(c.JWT), c.Limiter.Handler, middleware.ResponseWrapperMiddleware)
	protectedRouter.HandleFunc("", rateService.ListRates).Methods(http.MethodGet)
	protectedRouter.HandleFunc("", rateService.UpsertRate).Methods(http.MethodPut)
	protectedRouter.HandleFunc("/{id}", rateService.DeleteRate).Methods(http.MethodDelete)
}
