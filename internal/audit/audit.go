package audit

import (
	"encoding/json"
	"log"
	"time"
)

// Event is a structured audit record for every money movement in the ledger.
type Event struct {
	Timestamp  time.Time `json:"timestamp"`
	EventType  string    `json:"event_type"`
	CampaignID string    `json:"campaign_id"`
	UserID     int       `json:"user_id,omitempty"`
	Amount     int64     `json:"amount"`
	Status     string    `json:"status"`
	Details    any       `json:"details"`
}

type Logger struct{}

func NewLogger() *Logger {
	return &Logger{}
}

func (a *Logger) LogPledge(campaignID string, userID int, amount, creditUsed, cashAmount int64) {
	event := Event{
		Timestamp:  time.Now(),
		EventType:  "PLEDGE",
		CampaignID: campaignID,
		UserID:     userID,
		Amount:     amount,
		Status:     "SUCCESS",
		Details: map[string]int64{
			"credit_used": creditUsed,
			"cash_amount": cashAmount,
		},
	}
	a.log(event)
}

func (a *Logger) LogSettlement(campaignID, outcome string, fundedTotal int64, pledgeCount int) {
	event := Event{
		Timestamp:  time.Now(),
		EventType:  "SETTLEMENT",
		CampaignID: campaignID,
		Amount:     fundedTotal,
		Status:     outcome,
		Details:    map[string]int{"pledges": pledgeCount},
	}
	a.log(event)
}

func (a *Logger) LogWithdrawal(campaignID string, userID int, amount int64) {
	event := Event{
		Timestamp:  time.Now(),
		EventType:  "WITHDRAWAL",
		CampaignID: campaignID,
		UserID:     userID,
		Amount:     amount,
		Status:     "SUCCESS",
	}
	a.log(event)
}

func (a *Logger) LogError(campaignID string, userID int, err error) {
	event := Event{
		Timestamp:  time.Now(),
		EventType:  "ERROR",
		CampaignID: campaignID,
		UserID:     userID,
		Status:     "FAILED",
		Details:    map[string]string{"error": err.Error()},
	}
	a.log(event)
}

func (a *Logger) log(event Event) {
	data, _ := json.Marshal(event)
	log.Printf("AUDIT: %s", string(data))
}
