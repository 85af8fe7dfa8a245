package models

import "time"

// TrackingStatus — универсальный статус отправления, не зависящий от провайдера.
type TrackingStatus string

const (
	StatusPreTransit     TrackingStatus = "pre_transit"
	StatusInTransit      TrackingStatus = "in_transit"
	StatusOutForDelivery TrackingStatus = "out_for_delivery"
	StatusDelivered      TrackingStatus = "delivered"
	StatusException      TrackingStatus = "exception"
	StatusDeliveryFailed TrackingStatus = "delivery_failed"
	StatusLost           TrackingStatus = "lost"
	StatusUnknown        TrackingStatus = "unknown"
)

// AllStatuses lists the closed status set in display order.
var AllStatuses = []TrackingStatus{
	StatusPreTransit,
	StatusInTransit,
	StatusOutForDelivery,
	StatusDelivered,
	StatusException,
	StatusDeliveryFailed,
	StatusLost,
	StatusUnknown,
}

func (s TrackingStatus) Valid() bool {
	for _, v := range AllStatuses {
		if v == s {
			return true
		}
	}
	return false
}

// RiskLevel — грубая оценка вероятности проблемы с доставкой.
type RiskLevel string

const (
	RiskGreen  RiskLevel = "green"
	RiskYellow RiskLevel = "yellow"
	RiskRed    RiskLevel = "red"
)

func (r RiskLevel) Valid() bool {
	return r == RiskGreen || r == RiskYellow || r == RiskRed
}

const CarrierUnknown = "unknown"

type TrackingQuery struct {
	TrackingNumber string
	CarrierHint    string
}

// NormalizedTracking is the provider-neutral result of one tracking check.
// It is rebuilt on every check and never merged with stored state.
type NormalizedTracking struct {
	Status       TrackingStatus `json:"status"`
	RiskLevel    RiskLevel      `json:"riskLevel"`
	Carrier      string         `json:"carrier"`
	LastUpdate   time.Time      `json:"lastUpdate"`
	Location     *string        `json:"location"`
	Message      *string        `json:"message"`
	DeliveryDate *time.Time     `json:"deliveryDate"`
	Error        *string        `json:"error,omitempty"`
}

type Tone string

const (
	ToneUrgent     Tone = "urgent"
	ToneReassuring Tone = "reassuring"
	TonePositive   Tone = "positive"
	ToneNeutral    Tone = "neutral"
)

type MessageTemplate struct {
	Subject  string `json:"subject"`
	Message  string `json:"message"`
	Tone     Tone   `json:"tone"`
	Copyable bool   `json:"copyable"`
}
