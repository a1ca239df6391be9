package vmachine

import (
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/beevik/etree"
)

const (
	soapEnvNS    = "http://schemas.xmlsoap.org/soap/envelope/"
	vendingNS    = "http://multiclubes.com.br/retail/vendingmachine"
	authHeaderNS = "ns"
	actionPrefix = vendingNS + "/IService/"
)

// ErrEnvelope reports a request that could not be rendered.
var ErrEnvelope = errors.New("vmachine: build envelope")

// SOAPAction returns the quoted action header value for op.
func SOAPAction(op string) string {
	return `"` + actionPrefix + op + `"`
}

// operation is a request that knows its wire name and how to render its body.
type operation interface {
	opName() string
	writeBody(body *etree.Element)
}

// buildEnvelope renders op inside a SOAP 1.1 envelope carrying authKey in the
// header. All text goes through etree, so markup in field values is escaped.
func buildEnvelope(authKey string, op operation) ([]byte, error) {
	doc := etree.NewDocument()
	doc.CreateProcInst("xml", `version="1.0" encoding="utf-8"`)

	env := doc.CreateElement("soapenv:Envelope")
	env.CreateAttr("xmlns:soapenv", soapEnvNS)
	env.CreateAttr("xmlns:ven", vendingNS)

	auth := env.CreateElement("soapenv:Header").CreateElement("_AuthenticationKey")
	auth.CreateAttr("xmlns", authHeaderNS)
	auth.SetText(xmlText(authKey))

	op.writeBody(env.CreateElement("soapenv:Body"))

	doc.Indent(2)

	out, err := doc.WriteToBytes()
	if err != nil {
		return nil, fmt.Errorf("%w: write %s envelope: %w", ErrEnvelope, op.opName(), err)
	}

	return out, nil
}

func (r ConsumptionRequest) opName() string { return OpPerformConsumption }

func (r ConsumptionRequest) writeBody(body *etree.Element) {
	data := body.CreateElement("ven:" + OpPerformConsumption).CreateElement("ven:data")

	addText(data, "ven:ConsumptionAccount", r.TagNumber)
	addText(data, "ven:ConsumptionUid", r.TransactionID)

	items := data.CreateElement("ven:Items")
	for _, p := range r.Products {
		item := items.CreateElement("ven:ConsumptionItemData")
		addText(item, "ven:Product", p.Code)
		addText(item, "ven:Quantity", strconv.Itoa(p.Quantity))
		addText(item, "ven:UnitPrice", p.UnitPrice.String())
	}

	addText(data, "ven:PosEid", r.MachineNumber)
}

func (r ReverseRequest) opName() string { return OpReverseConsumption }

func (r ReverseRequest) writeBody(body *etree.Element) {
	data := body.CreateElement("ven:" + OpReverseConsumption).CreateElement("ven:data")
	addText(data, "ven:ConsumptionUid", r.TransactionID)
}

func (r BalanceRequest) opName() string { return OpGetBalance }

func (r BalanceRequest) writeBody(body *etree.Element) {
	data := body.CreateElement("ven:" + OpGetBalance).CreateElement("ven:data")
	addText(data, "ven:ConsumptionAccount", r.TagNumber)
	addText(data, "ven:PosEid", r.MachineNumber)
}

func (r SaleRequest) opName() string { return OpPerformSale }

func (r SaleRequest) writeBody(body *etree.Element) {
	op := defaultNSElement(body, OpPerformSale)

	addText(op, "IdTransaction", r.TransactionID)
	addText(op, "TagNumber", r.TagNumber)
	addText(op, "MachineNumber", r.MachineNumber)

	products := op.CreateElement("Products")
	for _, p := range r.Products {
		item := products.CreateElement("ProductItem")
		addText(item, "Code", p.Code)
		addText(item, "Quantity", strconv.Itoa(p.Quantity))
		addText(item, "Price", p.UnitPrice.String())
	}

	addText(op, "Date", formatDate(r.Date))
}

func (r CancelSaleRequest) opName() string { return OpCancelSale }

func (r CancelSaleRequest) writeBody(body *etree.Element) {
	op := defaultNSElement(body, OpCancelSale)

	addText(op, "IdTransaction", r.TransactionID)
	addText(op, "MachineNumber", r.MachineNumber)

	if !r.Date.IsZero() {
		addText(op, "Date", formatDate(r.Date))
	}
}

func (r SearchAccountsRequest) opName() string { return OpSearchAccounts }

func (r SearchAccountsRequest) writeBody(body *etree.Element) {
	op := defaultNSElement(body, OpSearchAccounts)

	for _, f := range []struct{ tag, value string }{
		{"TagNumber", r.TagNumber},
		{"Name", r.Name},
		{"Document", r.Document},
	} {
		if f.value != "" {
			addText(op, f.tag, f.value)
		}
	}
}

func defaultNSElement(parent *etree.Element, tag string) *etree.Element {
	el := parent.CreateElement(tag)
	el.CreateAttr("xmlns", vendingNS)

	return el
}

func addText(parent *etree.Element, tag, value string) {
	parent.CreateElement(tag).SetText(xmlText(value))
}

func formatDate(t time.Time) string {
	if t.IsZero() {
		return ""
	}

	return t.Format(time.RFC3339)
}

// xmlText drops runes XML 1.0 cannot carry even when escaped.
func xmlText(s string) string {
	return strings.Map(func(r rune) rune {
		switch {
		case r == '\t' || r == '\n' || r == '\r':
			return r
		case r < 0x20, r == utf8.RuneError, r == 0xFFFE, r == 0xFFFF:
			return -1
		case r >= 0xD800 && r <= 0xDFFF:
			return -1
		default:
			return r
		}
	}, s)
}
