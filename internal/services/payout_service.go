package services

import (
	"encoding/xml"
	"fmt"
	"log"
	"time"

	"github.com/bidcast/backend/internal/config"
	"github.com/google/uuid"
	"github.com/moov-io/iso20022/pkg/common"
	"github.com/moov-io/iso20022/pkg/pacs_v08"
)

// Payout is a cash-out instruction to the banking rail: a creator payout
// after a successful campaign or a backer refund after a credit withdrawal.
type Payout struct {
	PayoutID    string
	Reference   string // campaign ID
	Beneficiary string
	Amount      int64 // in cents
	Currency    string
}

// PayoutService renders payouts as ISO 20022 messages and hands them to the
// settlement rail.
type PayoutService struct {
	config *config.CrowdfundConfig
}

func NewPayoutService(cfg *config.CrowdfundConfig) *PayoutService {
	if cfg == nil {
		cfg = config.LoadCrowdfundConfig()
	}
	return &PayoutService{config: cfg}
}

func (po *PayoutService) SendCreatorPayout(campaignID string, creatorID int, amount int64) error {
	return po.send(&Payout{
		PayoutID:    uuid.New().String(),
		Reference:   campaignID,
		Beneficiary: fmt.Sprintf("creator-%d", creatorID),
		Amount:      amount,
		Currency:    po.config.PayoutCurrency,
	})
}

func (po *PayoutService) SendRefundPayout(campaignID string, backerID int, amount int64) error {
	return po.send(&Payout{
		PayoutID:    uuid.New().String(),
		Reference:   campaignID,
		Beneficiary: fmt.Sprintf("backer-%d", backerID),
		Amount:      amount,
		Currency:    po.config.PayoutCurrency,
	})
}

func (po *PayoutService) send(payout *Payout) error {
	doc, err := po.CreatePacs008(payout)
	if err != nil {
		return err
	}
	return po.SendToRail(doc)
}

// CreatePacs008 creates a pacs.008 FIToFICustomerCreditTransfer message for a payout
func (po *PayoutService) CreatePacs008(payout *Payout) (*pacs_v08.FIToFICustomerCreditTransferV08, error) {
	if payout.Amount <= 0 {
		return nil, fmt.Errorf("payout amount must be positive")
	}

	msgId := uuid.New().String()
	creDtTm := time.Now()
	settlementDate := time.Now()
	value := float64(payout.Amount) / 100

	doc := &pacs_v08.FIToFICustomerCreditTransferV08{
		GrpHdr: pacs_v08.GroupHeader93{
			MsgId:   common.Max35Text(msgId),
			CreDtTm: common.ISODateTime(creDtTm),
			NbOfTxs: "1",
			TtlIntrBkSttlmAmt: &pacs_v08.ActiveCurrencyAndAmount{
				Ccy:   common.ActiveCurrencyCode(payout.Currency),
				Value: value,
			},
			IntrBkSttlmDt: (*common.ISODate)(&settlementDate),
			SttlmInf: pacs_v08.SettlementInstruction7{
				SttlmMtd: "CLRG", // Clearing
			},
		},
		CdtTrfTxInf: []pacs_v08.CreditTransferTransaction39{
			{
				PmtId: pacs_v08.PaymentIdentification7{
					InstrId:    &[]common.Max35Text{common.Max35Text(payout.PayoutID)}[0],
					EndToEndId: common.Max35Text(payout.Reference),
					TxId:       &[]common.Max35Text{common.Max35Text(payout.PayoutID)}[0],
				},
				IntrBkSttlmAmt: pacs_v08.ActiveCurrencyAndAmount{
					Ccy:   common.ActiveCurrencyCode(payout.Currency),
					Value: value,
				},
				IntrBkSttlmDt: (*common.ISODate)(&settlementDate),
				ChrgBr:        "SLEV",
				DbtrAgt: pacs_v08.BranchAndFinancialInstitutionIdentification6{
					FinInstnId: pacs_v08.FinancialInstitutionIdentification18{
						BICFI: &[]common.BICFIDec2014Identifier{common.BICFIDec2014Identifier(po.config.InstitutionBIC)}[0],
					},
				},
				Dbtr: pacs_v08.PartyIdentification135{
					Nm: &[]common.Max140Text{common.Max140Text("BIDCAST ESCROW")}[0],
				},
				CdtrAgt: pacs_v08.BranchAndFinancialInstitutionIdentification6{
					FinInstnId: pacs_v08.FinancialInstitutionIdentification18{
						ClrSysMmbId: &pacs_v08.ClearingSystemMemberIdentification2{
							MmbId: common.Max35Text(po.config.InstitutionBIC),
						},
					},
				},
				Cdtr: pacs_v08.PartyIdentification135{
					Nm: &[]common.Max140Text{common.Max140Text(payout.Beneficiary)}[0],
				},
			},
		},
	}

	return doc, nil
}

// CreatePacs002 creates a pacs.002 status report for a payout
func (po *PayoutService) CreatePacs002(payout *Payout, status string) (*pacs_v08.FIToFIPaymentStatusReportV08, error) {
	msgId := uuid.New().String()
	creDtTm := time.Now()

	doc := &pacs_v08.FIToFIPaymentStatusReportV08{
		GrpHdr: pacs_v08.GroupHeader53{
			MsgId:   common.Max35Text(msgId),
			CreDtTm: common.ISODateTime(creDtTm),
		},
		TxInfAndSts: []pacs_v08.PaymentTransaction80{
			{
				OrgnlInstrId:    &[]common.Max35Text{common.Max35Text(payout.PayoutID)}[0],
				OrgnlEndToEndId: &[]common.Max35Text{common.Max35Text(payout.Reference)}[0],
				OrgnlTxId:       &[]common.Max35Text{common.Max35Text(payout.PayoutID)}[0],
				TxSts:           &[]pacs_v08.ExternalPaymentTransactionStatus1Code{pacs_v08.ExternalPaymentTransactionStatus1Code(status)}[0], // ACCP, RJCT, ACSC, etc.
			},
		},
	}

	return doc, nil
}

// SendToRail serializes the document and hands it to the banking rail.
func (po *PayoutService) SendToRail(doc interface{}) error {
	xmlData, err := xml.MarshalIndent(doc, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal XML: %w", err)
	}

	// TODO: deliver over the bank SFTP drop once credentials are provisioned
	log.Printf("[PAYOUT] Sending to rail: %s", string(xmlData))
	return nil
}

// ConvertToXML converts an ISO 20022 document to an XML string
func (po *PayoutService) ConvertToXML(doc interface{}) (string, error) {
	xmlData, err := xml.MarshalIndent(doc, "", "  ")
	if err != nil {
		return "", fmt.Errorf("failed to marshal XML: %w", err)
	}
	return xml.Header + string(xmlData), nil
}
