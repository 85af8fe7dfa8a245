package tracking

import (
	"fmt"

	"github.com/BearBump/TrackRisk/internal/models"
)

type templateKey struct {
	risk   models.RiskLevel
	status models.TrackingStatus
}

type templateText struct {
	subject string
	body    string
	tone    models.Tone
}

// Тексты черновиков для покупателя; %[1]s: номер заказа.
var templateTable = map[templateKey]templateText{
	{models.RiskRed, models.StatusException}: {
		subject: "Update on your order %[1]s: delivery exception",
		body: "Hi! The carrier has reported a problem with the delivery of order %[1]s. " +
			"I'm contacting them right now and will update you as soon as I hear back. " +
			"Thank you for your patience.",
		tone: models.ToneUrgent,
	},
	{models.RiskRed, models.StatusDeliveryFailed}: {
		subject: "Delivery attempt failed for order %[1]s",
		body: "Hi! The carrier tried to deliver order %[1]s but couldn't complete the delivery. " +
			"Please check for a notice from the carrier, or let me know if the address needs to be corrected.",
		tone: models.ToneUrgent,
	},
	{models.RiskRed, models.StatusLost}: {
		subject: "We're looking into your order %[1]s",
		body: "Hi! Tracking for order %[1]s has stopped updating and the carrier may have lost the package. " +
			"I've opened a claim and will make this right, whether that's a replacement or a refund.",
		tone: models.ToneUrgent,
	},
	{models.RiskRed, models.StatusInTransit}: {
		subject: "Your order %[1]s is delayed",
		body: "Hi! Order %[1]s is still in transit, but the carrier hasn't posted an update in a few days. " +
			"I'm keeping a close eye on it and will reach out to the carrier if it doesn't move soon.",
		tone: models.ToneUrgent,
	},
	{models.RiskYellow, models.StatusInTransit}: {
		subject: "Your order %[1]s is on its way",
		body: "Hi! Just a quick note that order %[1]s is in transit. Tracking has been a little quiet, " +
			"which is normal during busy periods. I'll let you know if anything changes.",
		tone: models.ToneReassuring,
	},
	{models.RiskYellow, models.StatusUnknown}: {
		subject: "Checking on your order %[1]s",
		body: "Hi! The tracking for order %[1]s hasn't updated yet. Carriers sometimes take a day or two " +
			"to scan a package. I'm monitoring it and will follow up.",
		tone: models.ToneReassuring,
	},
	{models.RiskGreen, models.StatusDelivered}: {
		subject: "Your order %[1]s has been delivered!",
		body: "Hi! Order %[1]s has been delivered. I hope you love it! " +
			"If anything isn't right, just reply to this message.",
		tone: models.TonePositive,
	},
	{models.RiskGreen, models.StatusOutForDelivery}: {
		subject: "Your order %[1]s is out for delivery",
		body:    "Hi! Good news: order %[1]s is out for delivery and should arrive today.",
		tone:    models.TonePositive,
	},
	{models.RiskGreen, models.StatusInTransit}: {
		subject: "Your order %[1]s is in transit",
		body:    "Hi! Order %[1]s is moving through the carrier's network. I'll keep an eye on it for you.",
		tone:    models.ToneNeutral,
	},
	{models.RiskGreen, models.StatusPreTransit}: {
		subject: "Your order %[1]s is ready to ship",
		body:    "Hi! Order %[1]s has a shipping label and is waiting for the carrier to pick it up.",
		tone:    models.ToneNeutral,
	},
}

var fallbackTemplate = templateText{
	subject: "Update on your order %[1]s",
	body:    "Hi! Here's a quick update on order %[1]s. I'm keeping track of the shipment and will let you know if anything changes.",
	tone:    models.ToneNeutral,
}

// SelectTemplate picks a customer message draft for the order.
func SelectTemplate(status models.TrackingStatus, risk models.RiskLevel, orderID string) models.MessageTemplate {
	tt, ok := templateTable[templateKey{risk: risk, status: status}]
	if !ok {
		tt = fallbackTemplate
	}
	return models.MessageTemplate{
		Subject:  fmt.Sprintf(tt.subject, orderID),
		Message:  fmt.Sprintf(tt.body, orderID),
		Tone:     tt.tone,
		Copyable: true,
	}
}
