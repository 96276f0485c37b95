package transform

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/shopspring/decimal"

	"finance-etl/internal/identity"
	"finance-etl/internal/normalize"
	"finance-etl/internal/storage"
)

const (
	infoSuffix       = "_info.json"
	statementsSuffix = "_financials.json"
	officersKey      = "companyOfficers"
)

var (
	infoReserved    = map[string]struct{}{ColInstrumentID: {}, ColSource: {}, ColDataType: {}, ColSymbol: {}, officersKey: {}}
	officerReserved = map[string]struct{}{ColInstrumentID: {}, ColSymbol: {}, ColName: {}}
)

// CompanyInfo is the flat attribute bag of a company info document.
type CompanyInfo struct {
	InstrumentID string
	Symbol       string
	Attributes   map[string]string
}

// CompanyOfficer is one entry of the info document's officer list.
type CompanyOfficer struct {
	InstrumentID string
	Symbol       string
	Name         string
	Attributes   map[string]string
}

// StatementRow holds the line items a financial statement reported for one period.
type StatementRow struct {
	InstrumentID string
	Symbol       string
	Date         string
	Items        map[string]decimal.NullDecimal
}

// FinancialsOutput collects company rows for one or more symbols.
type FinancialsOutput struct {
	Info       []CompanyInfo
	Officers   []CompanyOfficer
	Statements []StatementRow
}

func (o *FinancialsOutput) add(other *FinancialsOutput) {
	if other == nil {
		return
	}
	o.Info = append(o.Info, other.Info...)
	o.Officers = append(o.Officers, other.Officers...)
	o.Statements = append(o.Statements, other.Statements...)
}

// Tables materialises the sparse records into the information, company_officers
// and financials tables. Columns are the union of attributes seen in the batch.
func (o *FinancialsOutput) Tables() []Table {
	info := storage.NewTable(ColInstrumentID, ColSource, ColDataType, ColSymbol)
	for _, rec := range o.Info {
		row := storage.Row{
			ColInstrumentID: rec.InstrumentID,
			ColSource:       identity.SourceYahooFinance,
			ColDataType:     string(DataTypeFinancials),
			ColSymbol:       rec.Symbol,
		}
		for k, v := range rec.Attributes {
			row[k] = v
		}
		info.Append(row)
	}

	officers := storage.NewTable(ColInstrumentID, ColSymbol, ColName)
	for _, rec := range o.Officers {
		row := storage.Row{ColInstrumentID: rec.InstrumentID, ColSymbol: rec.Symbol, ColName: rec.Name}
		for k, v := range rec.Attributes {
			row[k] = v
		}
		officers.Append(row)
	}

	statements := storage.NewTable(append([]string{ColInstrumentID, ColSymbol, ColDate}, lineItems(o.Statements)...)...)
	for _, rec := range o.Statements {
		row := storage.Row{ColInstrumentID: rec.InstrumentID, ColSymbol: rec.Symbol, ColDate: rec.Date}
		for k, v := range rec.Items {
			row[k] = normalize.FormatNumber(v)
		}
		statements.Append(row)
	}

	return []Table{
		{Name: TableInformation, Key: instrumentKey, Rows: info},
		{Name: TableCompanyOfficers, Key: officerKey, Rows: officers},
		{Name: TableFinancials, Key: datedKey, Rows: statements},
	}
}

// FinancialsPair names the documents found for one symbol. Either path may be empty.
type FinancialsPair struct {
	Symbol         string
	InfoPath       string
	StatementsPath string
}

// PairFinancialFiles groups <SYMBOL>_info.json and <SYMBOL>_financials.json by symbol.
// Paths matching neither suffix are returned as unmatched.
func PairFinancialFiles(paths []string) ([]FinancialsPair, []string) {
	bySymbol := make(map[string]*FinancialsPair)
	var unmatched []string

	for _, path := range paths {
		base := filepath.Base(path)
		switch {
		case strings.HasSuffix(base, infoSuffix):
			symbol := strings.TrimSuffix(base, infoSuffix)
			pairFor(bySymbol, symbol).InfoPath = path
		case strings.HasSuffix(base, statementsSuffix):
			symbol := strings.TrimSuffix(base, statementsSuffix)
			pairFor(bySymbol, symbol).StatementsPath = path
		default:
			unmatched = append(unmatched, path)
		}
	}

	pairs := make([]FinancialsPair, 0, len(bySymbol))
	for _, p := range bySymbol {
		pairs = append(pairs, *p)
	}
	sort.Slice(pairs, func(i, j int) bool { return pairs[i].Symbol < pairs[j].Symbol })
	return pairs, unmatched
}

func pairFor(m map[string]*FinancialsPair, symbol string) *FinancialsPair {
	p, ok := m[symbol]
	if !ok {
		p = &FinancialsPair{Symbol: symbol}
		m[symbol] = p
	}
	return p
}

// Financials aggregates every company document pair under dir. Symbols whose
// documents fail are reported as joined *FileError values; the returned output
// still holds the rows of everything that succeeded.
func (t *Transformer) Financials(dir string) (*FinancialsOutput, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, fmt.Errorf("read financials dir: %w", err)
	}

	var paths []string
	for _, entry := range entries {
		if entry.IsDir() || filepath.Ext(entry.Name()) != ".json" {
			continue
		}
		paths = append(paths, filepath.Join(dir, entry.Name()))
	}

	pairs, unmatched := PairFinancialFiles(paths)
	for _, path := range unmatched {
		t.logger.Warn().Str("domain", string(DomainFinancials)).Str("path", path).Msg("skipping file that is neither an info nor a financials document")
	}

	out := &FinancialsOutput{}
	var failures []error
	for _, pair := range pairs {
		res, errs := t.financialsPair(pair)
		out.add(res)
		failures = append(failures, errs...)
	}

	t.logger.Info().
		Int("symbols", len(pairs)).
		Int("info", len(out.Info)).
		Int("officers", len(out.Officers)).
		Int("statements", len(out.Statements)).
		Int("failed", len(failures)).
		Msg("financials aggregated")
	return out, errors.Join(failures...)
}

func (t *Transformer) financialsPair(pair FinancialsPair) (*FinancialsOutput, []error) {
	id := financialsID(pair.Symbol)
	out := &FinancialsOutput{}
	var failures []error

	fail := func(path string, err error) {
		failures = append(failures, &FileError{Domain: DomainFinancials, Path: path, Entity: pair.Symbol, Err: err})
	}

	if pair.InfoPath != "" {
		if raw, err := os.ReadFile(pair.InfoPath); err != nil {
			fail(pair.InfoPath, err)
		} else if info, officers, err := t.companyInfo(pair.Symbol, id, raw); err != nil {
			fail(pair.InfoPath, err)
		} else {
			out.Info = append(out.Info, info)
			out.Officers = append(out.Officers, officers...)
		}
	}

	if pair.StatementsPath != "" {
		if raw, err := os.ReadFile(pair.StatementsPath); err != nil {
			fail(pair.StatementsPath, err)
		} else if rows, err := t.statements(pair.Symbol, id, raw); err != nil {
			fail(pair.StatementsPath, err)
		} else {
			out.Statements = rows
		}
	}

	return out, failures
}

// CompanyFinancials transforms one symbol's documents; a nil document is treated as absent.
// When one document fails the rows of the other are still returned alongside the error.
func (t *Transformer) CompanyFinancials(symbol string, info, statements []byte) (*FinancialsOutput, error) {
	id := financialsID(symbol)
	out := &FinancialsOutput{}
	var errs []error

	if info != nil {
		rec, officers, err := t.companyInfo(symbol, id, info)
		if err != nil {
			errs = append(errs, err)
		} else {
			out.Info = append(out.Info, rec)
			out.Officers = officers
		}
	}
	if statements != nil {
		rows, err := t.statements(symbol, id, statements)
		if err != nil {
			errs = append(errs, err)
		} else {
			out.Statements = rows
		}
	}
	return out, errors.Join(errs...)
}

func financialsID(symbol string) string {
	return identity.Hash(identity.SourceYahooFinance, string(DataTypeFinancials), symbol)
}

func (t *Transformer) companyInfo(symbol, id string, raw []byte) (CompanyInfo, []CompanyOfficer, error) {
	payload, err := decodeObject(DomainFinancials, raw)
	if err != nil {
		return CompanyInfo{}, nil, err
	}

	info := CompanyInfo{InstrumentID: id, Symbol: symbol, Attributes: scalarAttributes(payload, infoReserved)}

	var officers []CompanyOfficer
	if list, ok := payload[officersKey].([]any); ok {
		for _, item := range list {
			entry, ok := item.(object)
			if !ok {
				continue
			}
			name := stringify(entry[ColName])
			if name == "" {
				t.logger.Debug().Str("symbol", symbol).Msg("dropping officer without name")
				continue
			}
			officers = append(officers, CompanyOfficer{
				InstrumentID: id,
				Symbol:       symbol,
				Name:         name,
				Attributes:   scalarAttributes(entry, officerReserved),
			})
		}
	}
	return info, officers, nil
}

// scalarAttributes keeps string, number and bool values; nested values are not flattened.
func scalarAttributes(obj object, reserved map[string]struct{}) map[string]string {
	attrs := make(map[string]string, len(obj))
	for k, v := range obj {
		if _, skip := reserved[k]; skip {
			continue
		}
		switch v.(type) {
		case string, bool, json.Number:
			attrs[k] = stringify(v)
		}
	}
	return attrs
}

func (t *Transformer) statements(symbol, id string, raw []byte) ([]StatementRow, error) {
	payload, err := decodeObject(DomainFinancials, raw)
	if err != nil {
		return nil, err
	}

	rows := make([]StatementRow, 0, len(payload))
	for _, rawDate := range sortedKeys(payload) {
		date, err := normalize.ISODate(rawDate)
		if err != nil {
			t.logger.Debug().Err(err).Str("symbol", symbol).Msg("dropping statement with unparsable date")
			continue
		}
		entry, ok := payload[rawDate].(object)
		if !ok {
			t.logger.Debug().Str("symbol", symbol).Str("date", rawDate).Msg("dropping statement that is not an object")
			continue
		}

		items := make(map[string]decimal.NullDecimal, len(entry))
		for item, value := range entry {
			items[item] = t.norm.Number(item, value)
		}
		rows = append(rows, StatementRow{InstrumentID: id, Symbol: symbol, Date: date, Items: items})
	}

	return t.pruneAndFill(symbol, rows), nil
}

// pruneAndFill drops rows missing more than MaxMissingRatio of the batch's line
// items, then fills remaining gaps with the column mean over the surviving rows.
// The mean depends on which periods happen to be in the batch.
func (t *Transformer) pruneAndFill(symbol string, rows []StatementRow) []StatementRow {
	columns := lineItems(rows)
	if len(columns) == 0 {
		return nil
	}

	kept := rows[:0]
	for _, row := range rows {
		missing := 0
		for _, c := range columns {
			if !row.Items[c].Valid {
				missing++
			}
		}
		ratio := float64(missing) / float64(len(columns))
		if ratio > t.opts.MaxMissingRatio {
			t.logger.Debug().Str("symbol", symbol).Str("date", row.Date).Float64("missing_ratio", ratio).Msg("dropping sparse statement row")
			continue
		}
		kept = append(kept, row)
	}

	if !t.opts.FillMean {
		return kept
	}

	for _, c := range columns {
		sum := decimal.Zero
		count := int64(0)
		for _, row := range kept {
			if v := row.Items[c]; v.Valid {
				sum = sum.Add(v.Decimal)
				count++
			}
		}
		if count == 0 {
			continue
		}
		mean := decimal.NewNullDecimal(sum.Div(decimal.NewFromInt(count)))
		for _, row := range kept {
			if !row.Items[c].Valid {
				row.Items[c] = mean
			}
		}
	}
	return kept
}

func lineItems(rows []StatementRow) []string {
	seen := make(map[string]struct{})
	for _, row := range rows {
		for item := range row.Items {
			seen[item] = struct{}{}
		}
	}
	items := make([]string, 0, len(seen))
	for item := range seen {
		items = append(items, item)
	}
	sort.Strings(items)
	return items
}
