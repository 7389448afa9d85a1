package lastschrift

import (
	"encoding/xml"
	"fmt"
	"time"

	"github.com/shopspring/decimal"
)

// Creditor identifies the association on the receiving end of every
// direct debit batch.
type Creditor struct {
	Name string
	IBAN string
	BIC  string
	ID   string
}

// pain.008.001.02 document structure. Only the elements the schema
// marks mandatory for CORE direct debits are emitted.

type PainDocument struct {
	XMLName    xml.Name       `xml:"Document"`
	Xmlns      string         `xml:"xmlns,attr"`
	Initiation PaymentCstmrDD `xml:"CstmrDrctDbtInitn"`
}

type PaymentCstmrDD struct {
	GrpHdr  GroupHeader   `xml:"GrpHdr"`
	PmtInfs []PaymentInfo `xml:"PmtInf"`
}

type GroupHeader struct {
	MsgID    string `xml:"MsgId"`
	CreDtTm  string `xml:"CreDtTm"`
	NbOfTxs  int    `xml:"NbOfTxs"`
	CtrlSum  string `xml:"CtrlSum"`
	InitgPty Party  `xml:"InitgPty"`
}

type Party struct {
	Name string `xml:"Nm"`
}

type PaymentInfo struct {
	PmtInfID     string      `xml:"PmtInfId"`
	PmtMtd       string      `xml:"PmtMtd"`
	NbOfTxs      int         `xml:"NbOfTxs"`
	CtrlSum      string      `xml:"CtrlSum"`
	PmtTpInf     PaymentType `xml:"PmtTpInf"`
	ReqdColltnDt string      `xml:"ReqdColltnDt"`
	Cdtr         Party       `xml:"Cdtr"`
	CdtrAcct     Account     `xml:"CdtrAcct"`
	CdtrAgt      Agent       `xml:"CdtrAgt"`
	CdtrSchmeID  SchemeID    `xml:"CdtrSchmeId"`
	Txs          []DebitTx   `xml:"DrctDbtTxInf"`
}

type PaymentType struct {
	SvcLvl    CodeWrapper `xml:"SvcLvl"`
	LclInstrm CodeWrapper `xml:"LclInstrm"`
	SeqTp     string      `xml:"SeqTp"`
}

type CodeWrapper struct {
	Cd string `xml:"Cd"`
}

type Account struct {
	IBAN string `xml:"Id>IBAN"`
}

type Agent struct {
	BIC string `xml:"FinInstnId>BIC"`
}

type SchemeID struct {
	ID string `xml:"Id>PrvtId>Othr>Id"`
}

type DebitTx struct {
	EndToEndID  string      `xml:"PmtId>EndToEndId"`
	InstdAmt    Amount      `xml:"InstdAmt"`
	MndtRltdInf MandateInfo `xml:"DrctDbtTx>MndtRltdInf"`
	DbtrAgt     OtherAgent  `xml:"DbtrAgt"`
	Dbtr        Party       `xml:"Dbtr"`
	DbtrAcct    Account     `xml:"DbtrAcct"`
	RmtInf      Remittance  `xml:"RmtInf"`
}

type Amount struct {
	Ccy   string `xml:"Ccy,attr"`
	Value string `xml:",chardata"`
}

type MandateInfo struct {
	MndtID    string `xml:"MndtId"`
	DtOfSgntr string `xml:"DtOfSgntr"`
}

type OtherAgent struct {
	Othr string `xml:"FinInstnId>Othr>Id"`
}

type Remittance struct {
	Ustrd string `xml:"Ustrd"`
}

func endToEndID(transactionID int) string {
	return fmt.Sprintf("kassenwart-tx-%d", transactionID)
}

func mandateID(id int) string {
	return fmt.Sprintf("kassenwart-mandate-%d", id)
}

// BuildPain008 serializes open transactions into one direct debit
// initiation document. Transactions whose mandate has no prior
// successful collection go into a FRST payment block, all others into
// RCUR. CtrlSum is the exact decimal sum of the included amounts.
func BuildPain008(rows []debitRow, creditor Creditor, now time.Time) *PainDocument {
	first := []debitRow{}
	recurring := []debitRow{}
	for _, row := range rows {
		if row.PriorSuccess {
			recurring = append(recurring, row)
		} else {
			first = append(first, row)
		}
	}

	doc := &PainDocument{
		Xmlns: "urn:iso:std:iso:20022:tech:xsd:pain.008.001.02",
	}

	total := decimal.Zero
	for _, row := range rows {
		total = total.Add(row.Amount)
	}

	doc.Initiation.GrpHdr = GroupHeader{
		MsgID:    fmt.Sprintf("kassenwart-%s", now.UTC().Format("20060102-150405")),
		CreDtTm:  now.UTC().Format("2006-01-02T15:04:05Z"),
		NbOfTxs:  len(rows),
		CtrlSum:  total.StringFixed(2),
		InitgPty: Party{Name: creditor.Name},
	}

	if len(first) > 0 {
		doc.Initiation.PmtInfs = append(doc.Initiation.PmtInfs, buildPaymentInfo("FRST", first, creditor))
	}
	if len(recurring) > 0 {
		doc.Initiation.PmtInfs = append(doc.Initiation.PmtInfs, buildPaymentInfo("RCUR", recurring, creditor))
	}

	return doc
}

func buildPaymentInfo(seqTp string, rows []debitRow, creditor Creditor) PaymentInfo {
	sum := decimal.Zero
	collectionDate := rows[0].PaymentDate
	txs := make([]DebitTx, 0, len(rows))

	for _, row := range rows {
		sum = sum.Add(row.Amount)
		if row.PaymentDate.After(collectionDate) {
			collectionDate = row.PaymentDate
		}
		txs = append(txs, DebitTx{
			EndToEndID: endToEndID(row.TransactionID),
			InstdAmt:   Amount{Ccy: "EUR", Value: row.Amount.StringFixed(2)},
			MndtRltdInf: MandateInfo{
				MndtID:    mandateID(row.MandateID),
				DtOfSgntr: row.GrantedAt.Format("2006-01-02"),
			},
			DbtrAgt:  OtherAgent{Othr: "NOTPROVIDED"},
			Dbtr:     Party{Name: row.AccountOwner},
			DbtrAcct: Account{IBAN: row.IBAN},
			RmtInf: Remittance{
				Ustrd: fmt.Sprintf("Mitgliedsbeitrag und Spende %s %s", row.GivenName, row.FamilyName),
			},
		})
	}

	return PaymentInfo{
		PmtInfID: fmt.Sprintf("kassenwart-%s", seqTp),
		PmtMtd:   "DD",
		NbOfTxs:  len(rows),
		CtrlSum:  sum.StringFixed(2),
		PmtTpInf: PaymentType{
			SvcLvl:    CodeWrapper{Cd: "SEPA"},
			LclInstrm: CodeWrapper{Cd: "CORE"},
			SeqTp:     seqTp,
		},
		ReqdColltnDt: collectionDate.Format("2006-01-02"),
		Cdtr:         Party{Name: creditor.Name},
		CdtrAcct:     Account{IBAN: creditor.IBAN},
		CdtrAgt:      Agent{BIC: creditor.BIC},
		CdtrSchmeID:  SchemeID{ID: creditor.ID},
		Txs:          txs,
	}
}

// EncodePain008 renders the document with the XML header banks expect.
func EncodePain008(doc *PainDocument) ([]byte, error) {
	body, err := xml.MarshalIndent(doc, "", "  ")
	if err != nil {
		return nil, err
	}
	return append([]byte(xml.Header), body...), nil
}
