package main

import (
	"context"
	"encoding/json"
	"net/http"
	"time"

	"github.com/gorilla/websocket"

	"matchBack/internal/iap/billing"
	"matchBack/internal/models"
)

var billingUpgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin:     func(r *http.Request) bool { return true },
}

// BillingWebSocketHandler accepts the native billing bridge of a device and
// keeps the user's purchase session alive for as long as it stays connected.
func (app *application) BillingWebSocketHandler(w http.ResponseWriter, r *http.Request) {
	userID, _ := r.Context().Value("user_id").(int)
	if userID == 0 {
		app.clientError(w, http.StatusUnauthorized)
		return
	}
	platform, err := models.ParsePlatform(r.URL.Query().Get("platform"))
	if err != nil {
		app.clientError(w, http.StatusBadRequest)
		return
	}

	conn, err := billingUpgrader.Upgrade(w, r, nil)
	if err != nil {
		app.errorLog.Printf("billing WS upgrade error: %v", err)
		return
	}

	logger := stdLogger{infoLog: app.infoLog, errorLog: app.errorLog}
	bridge := billing.NewBridge(conn, platform, logger)
	sess := app.purchases.OpenSession(int64(userID), bridge)
	app.infoLog.Printf("billing bridge: user %d connected (%s)", userID, platform)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	go func() {
		select {
		case <-bridge.Ready():
		case <-bridge.Done():
			return
		}
		if err := sess.Manager.Initialize(ctx); err != nil {
			app.errorLog.Printf("billing bridge: user %d: %v", userID, err)
		}
	}()

	if err := bridge.Run(ctx); err != nil {
		app.infoLog.Printf("billing bridge: user %d disconnected: %v", userID, err)
	}
	app.purchases.CloseSession(sess)
}

func (app *application) healthz(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
	defer cancel()
	if err := app.db.PingContext(ctx); err != nil {
		app.serverError(w, err)
		return
	}
	resp := map[string]any{
		"status":   "ok",
		"sessions": len(app.purchases.Sessions().All()),
	}
	if n, err := app.purchases.PendingLedgerFailures(ctx); err != nil {
		app.errorLog.Printf("healthz: ledger journal: %v", err)
		resp["ledger_failures"] = nil
	} else {
		resp["ledger_failures"] = n
	}
	_ = json.NewEncoder(w).Encode(resp)
}
