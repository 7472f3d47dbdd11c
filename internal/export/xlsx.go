// Package export writes ledger contents to spreadsheets and reads mirror
// records back from them.
package export

import (
	"math/big"
	"strconv"
	"strings"

	"github.com/rotisserie/eris"
	"github.com/tealeg/xlsx/v2"

	"github.com/sells-group/floodcover/internal/model"
)

// Sheet names used in exported workbooks.
const (
	PoliciesSheet = "policies"
	MirrorSheet   = "mirror"
)

var (
	policyHeader = []string{"policy_id", "policyholder", "premium", "coverage", "purchase_time", "active", "paid_out", "status"}
	mirrorHeader = []string{"policy_id", "policyholder_eth", "premium_wei", "coverage_wei", "purchase_time", "active", "paid_out"}
)

// Workbook builds a workbook with a policies sheet and a mirror sheet. Amounts
// are written as text so arbitrary-precision values survive.
func Workbook(policies []model.Policy, mirror []model.MirrorPolicy) (*xlsx.File, error) {
	f := xlsx.NewFile()

	ps, err := f.AddSheet(PoliciesSheet)
	if err != nil {
		return nil, eris.Wrap(err, "xlsx: add policies sheet")
	}
	addHeader(ps, policyHeader)
	for _, p := range policies {
		row := ps.AddRow()
		row.AddCell().SetInt64(int64(p.PolicyID))
		row.AddCell().SetString(string(p.Policyholder))
		row.AddCell().SetString(amountText(p.Premium))
		row.AddCell().SetString(amountText(p.Coverage))
		row.AddCell().SetInt64(int64(p.PurchaseTime))
		row.AddCell().SetBool(p.Active)
		row.AddCell().SetBool(p.PaidOut)
		row.AddCell().SetString(string(p.Status()))
	}

	ms, err := f.AddSheet(MirrorSheet)
	if err != nil {
		return nil, eris.Wrap(err, "xlsx: add mirror sheet")
	}
	addHeader(ms, mirrorHeader)
	for _, m := range mirror {
		row := ms.AddRow()
		row.AddCell().SetInt64(int64(m.PolicyID))
		row.AddCell().SetString(m.PolicyholderEth)
		row.AddCell().SetString(amountText(m.PremiumWei))
		row.AddCell().SetString(amountText(m.CoverageWei))
		row.AddCell().SetInt64(int64(m.PurchaseTime))
		row.AddCell().SetBool(m.Active)
		row.AddCell().SetBool(m.PaidOut)
	}

	return f, nil
}

// WriteFile saves the workbook for policies and mirror to path.
func WriteFile(path string, policies []model.Policy, mirror []model.MirrorPolicy) error {
	f, err := Workbook(policies, mirror)
	if err != nil {
		return err
	}
	if err := f.Save(path); err != nil {
		return eris.Wrapf(err, "xlsx: save %s", path)
	}
	return nil
}

// ReadSheet returns the raw cell values of the named sheet, header included.
func ReadSheet(path, name string) ([][]string, error) {
	f, err := xlsx.OpenFile(path)
	if err != nil {
		return nil, eris.Wrap(err, "xlsx: open file")
	}
	sheet, ok := f.Sheet[name]
	if !ok {
		return nil, eris.Errorf("xlsx: sheet %q not found", name)
	}

	rows := make([][]string, 0, len(sheet.Rows))
	for _, row := range sheet.Rows {
		rows = append(rows, rowValues(row))
	}
	return rows, nil
}

// ReadMirror parses the mirror sheet at path. Columns are located by header
// name; rows with a blank policy id are skipped.
func ReadMirror(path string) ([]model.MirrorPolicy, error) {
	rows, err := ReadSheet(path, MirrorSheet)
	if err != nil {
		return nil, err
	}
	if len(rows) == 0 {
		return nil, nil
	}

	col := make(map[string]int, len(rows[0]))
	for i, h := range rows[0] {
		col[strings.ToLower(strings.TrimSpace(h))] = i
	}
	if _, ok := col["policy_id"]; !ok {
		return nil, eris.New("xlsx: mirror sheet has no policy_id column")
	}

	out := make([]model.MirrorPolicy, 0, len(rows)-1)
	for n, row := range rows[1:] {
		get := func(name string) string {
			i, ok := col[name]
			if !ok || i >= len(row) {
				return ""
			}
			return strings.TrimSpace(row[i])
		}
		if get("policy_id") == "" {
			continue
		}

		line := n + 2
		m, err := parseMirrorRow(get)
		if err != nil {
			return nil, eris.Wrapf(err, "xlsx: mirror row %d", line)
		}
		out = append(out, m)
	}
	return out, nil
}

func parseMirrorRow(get func(string) string) (model.MirrorPolicy, error) {
	var m model.MirrorPolicy

	id, err := strconv.ParseUint(get("policy_id"), 10, 64)
	if err != nil {
		return m, eris.Wrap(err, "policy_id")
	}
	m.PolicyID = model.PolicyID(id)
	m.PolicyholderEth = get("policyholder_eth")

	if m.PremiumWei, err = parseAmount(get("premium_wei")); err != nil {
		return m, eris.Wrap(err, "premium_wei")
	}
	if m.CoverageWei, err = parseAmount(get("coverage_wei")); err != nil {
		return m, eris.Wrap(err, "coverage_wei")
	}
	if v := get("purchase_time"); v != "" {
		if m.PurchaseTime, err = strconv.ParseUint(v, 10, 64); err != nil {
			return m, eris.Wrap(err, "purchase_time")
		}
	}
	if m.Active, err = parseFlag(get("active")); err != nil {
		return m, eris.Wrap(err, "active")
	}
	if m.PaidOut, err = parseFlag(get("paid_out")); err != nil {
		return m, eris.Wrap(err, "paid_out")
	}
	return m, nil
}

func parseAmount(s string) (*big.Int, error) {
	if s == "" {
		return new(big.Int), nil
	}
	v, ok := new(big.Int).SetString(s, 10)
	if !ok || v.Sign() < 0 {
		return nil, eris.Errorf("invalid amount %q", s)
	}
	return v, nil
}

func parseFlag(s string) (bool, error) {
	if s == "" {
		return false, nil
	}
	return strconv.ParseBool(s)
}

func addHeader(sheet *xlsx.Sheet, cols []string) {
	row := sheet.AddRow()
	for _, c := range cols {
		row.AddCell().SetString(c)
	}
}

// rowValues uses raw cell values rather than formatted text so large integers
// are not rendered in scientific notation.
func rowValues(row *xlsx.Row) []string {
	cells := make([]string, len(row.Cells))
	for j, cell := range row.Cells {
		cells[j] = cell.Value
	}
	return cells
}

func amountText(v *big.Int) string {
	if v == nil {
		return "0"
	}
	return v.String()
}
