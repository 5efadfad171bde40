package gateway

import (
	"context"
	"fmt"
	"strconv"
	"strings"

	"github.com/marcus/erpsync/internal/decode"
	"github.com/marcus/erpsync/internal/report"
)

// Company is one entry from the Gateway's open-company list.
type Company struct {
	Name      string `json:"name"`
	Number    string `json:"number"`
	BooksFrom string `json:"books_from"`
	BooksTo   string `json:"books_to"`
}

// CompanyInfo describes the Gateway's active company.
type CompanyInfo struct {
	Name            string `json:"company_name"`
	BooksFrom       string `json:"books_from"`
	LastVoucherDate string `json:"last_voucher_date"`
	GUID            string `json:"guid"`
	AlterID         int64  `json:"alterid"`
}

// AlterIDs is the pair of change high-water marks the Gateway tracks per
// company: one covering master data, one covering transactions.
type AlterIDs struct {
	Master      int64 `json:"master"`
	Transaction int64 `json:"transaction"`
}

// ListCompanies returns every company currently open on the Gateway.
func (c *Client) ListCompanies(ctx context.Context) ([]Company, error) {
	doc, err := c.Send(ctx, report.ListCompanies)
	if err != nil {
		return nil, err
	}
	doc = decode.StripBOM(doc)

	names := decode.TagValues(doc, "FLDCOMPANYNAME")
	numbers := decode.TagValues(doc, "FLDCOMPANYNUMBER")
	from := decode.TagValues(doc, "FLDBOOKSFROM")
	to := decode.TagValues(doc, "FLDBOOKSTO")

	companies := make([]Company, 0, len(names))
	for i, name := range names {
		name = strings.TrimSpace(name)
		if name == "" {
			continue
		}
		co := Company{Name: name}
		if i < len(numbers) {
			co.Number = strings.TrimSpace(numbers[i])
		}
		if i < len(from) {
			if iso, ok := decode.ParseDate(from[i]); ok {
				co.BooksFrom = iso
			}
		}
		if i < len(to) {
			if iso, ok := decode.ParseDate(to[i]); ok {
				co.BooksTo = iso
			}
		}
		companies = append(companies, co)
	}
	return companies, nil
}

// ActiveCompany returns identity and book range of the Gateway's active
// company.
func (c *Client) ActiveCompany(ctx context.Context) (CompanyInfo, error) {
	doc, err := c.Send(ctx, report.CompanyInfo)
	if err != nil {
		return CompanyInfo{}, err
	}
	doc = decode.StripBOM(doc)

	var info CompanyInfo
	if v, ok := decode.FirstTag(doc, "FLDCOMPANYNAME"); ok {
		info.Name = strings.TrimSpace(v)
	}
	if v, ok := decode.FirstTag(doc, "FLDBOOKSFROM"); ok {
		if iso, ok := decode.ParseDate(v); ok {
			info.BooksFrom = iso
		}
	}
	if v, ok := decode.FirstTag(doc, "FLDLASTVOUCHERDATE"); ok {
		if iso, ok := decode.ParseDate(v); ok {
			info.LastVoucherDate = iso
		}
	}
	if v, ok := decode.FirstTag(doc, "FLDGUID"); ok {
		info.GUID = strings.TrimSpace(v)
	}
	if v, ok := decode.FirstTag(doc, "FLDALTERID"); ok {
		info.AlterID, _ = strconv.ParseInt(strings.TrimSpace(v), 10, 64)
	}
	if info.Name == "" {
		return CompanyInfo{}, fmt.Errorf("%w: no company info in response", decode.ErrDecode)
	}
	return info, nil
}

// LastAlterIDs returns the company's current alter-id high-water marks.
// The report comes back as a single CSV line: master,transaction.
func (c *Client) LastAlterIDs(ctx context.Context, company string) (AlterIDs, error) {
	doc, err := c.Send(ctx, report.AlterIDsFor(company))
	if err != nil {
		return AlterIDs{}, err
	}
	line := strings.ReplaceAll(strings.TrimSpace(decode.StripBOM(doc)), `"`, "")
	if line == "" {
		return AlterIDs{}, fmt.Errorf("%w: empty alter-id response", decode.ErrDecode)
	}
	parts := strings.Split(line, ",")
	if len(parts) < 2 {
		return AlterIDs{}, fmt.Errorf("%w: alter-id response %q", decode.ErrDecode, line)
	}
	var ids AlterIDs
	ids.Master, _ = strconv.ParseInt(strings.TrimSpace(parts[0]), 10, 64)
	ids.Transaction, _ = strconv.ParseInt(strings.TrimSpace(parts[1]), 10, 64)
	return ids, nil
}
