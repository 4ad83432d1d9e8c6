package present

import (
	"errors"

	"matchBack/internal/iap/reconcile"
	"matchBack/internal/models"
)

// Message is what the app shows for an outcome.
type Message struct {
	Show  bool   `json:"show"`
	Title string `json:"title,omitempty"`
	Body  string `json:"body,omitempty"`
}

var categoryNames = map[models.ProductCategory]string{
	models.CategorySubscription: "Premium",
	models.CategoryBoost:        "Boost",
	models.CategorySuperLike:    "Super Likes",
	models.CategoryCredit:       "Credits",
}

// ForOutcome maps a buy outcome to a user message. Cancellation shows nothing.
func ForOutcome(o reconcile.Outcome) Message {
	name := categoryNames[o.Category]
	if name == "" {
		name = "This item"
	}
	switch o.Kind {
	case reconcile.OutcomeSuccess:
		return Message{Show: true, Title: "Purchase started", Body: name + " will be added as soon as the store confirms your payment."}
	case reconcile.OutcomeCancelled:
		return Message{}
	case reconcile.OutcomeRecoverable:
		return Message{Show: true, Title: "Connection problem", Body: "We could not reach the store. Check your connection and try again."}
	default:
		if errors.Is(o.Err, models.ErrProductNotFound) {
			return Message{Show: true, Title: "Not available", Body: name + " is not available in your store right now."}
		}
		return Message{Show: true, Title: "Purchase failed", Body: "Something went wrong with the store. You have not been charged."}
	}
}

// ForResult maps a reconciled delivery to the notice pushed to the device.
// Successful grants and ledger failures both notify; the latter tells the
// user that support has the transaction.
func ForResult(r reconcile.Result) Message {
	name := categoryNames[r.Category]
	if name == "" {
		name = "Your purchase"
	}
	if r.Granted() {
		return Message{Show: true, Title: "Thank you!", Body: name + " is now active."}
	}
	return Message{
		Show:  true,
		Title: "Payment received",
		Body:  "We are still applying " + name + ". It will appear shortly; contact support with order " + r.TransactionID + " if it does not.",
	}
}
