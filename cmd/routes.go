package main

import (
	"net/http"

	"github.com/bmizerany/pat"
	"github.com/justinas/alice"
)

func (app *application) routes() http.Handler {
	standardMiddleware := alice.New(app.recoverPanic, app.logRequest, secureHeaders, makeResponseJSON)
	authMiddleware := standardMiddleware.Append(app.JWTMiddleware)
	wsMiddleware := alice.New(app.recoverPanic, app.logRequest, app.JWTMiddleware)

	mux := pat.New()

	// In-app purchases
	mux.Get("/iap/products", authMiddleware.ThenFunc(app.purchaseHandler.GetProducts))
	mux.Post("/iap/purchase", authMiddleware.ThenFunc(app.purchaseHandler.Purchase))
	mux.Post("/iap/refresh", authMiddleware.ThenFunc(app.purchaseHandler.Refresh))
	mux.Get("/iap/premium", authMiddleware.ThenFunc(app.purchaseHandler.PremiumStatus))
	mux.Get("/iap/consumables", authMiddleware.ThenFunc(app.purchaseHandler.Consumables))
	mux.Post("/iap/subscriptions/manage", authMiddleware.ThenFunc(app.purchaseHandler.ManageSubscriptions))
	mux.Post("/iap/notify-token", authMiddleware.ThenFunc(app.purchaseHandler.RegisterNotifyToken))

	// Billing bridge
	mux.Get("/ws/billing", wsMiddleware.ThenFunc(app.BillingWebSocketHandler))

	mux.Get("/healthz", standardMiddleware.ThenFunc(app.healthz))

	return mux
}
