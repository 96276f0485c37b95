// Package transform maps raw provider payloads onto the canonical tables.
//
// Alpha Vantage payloads (stocks, forex, cryptocurrencies, commodities and
// exchange rates) are transformed one file at a time. Yahoo Finance company
// documents come in pairs per symbol and are handled by the financials
// aggregator, which works on a whole directory.
//
// Every instrument gets a content-addressed id from the identity package,
// computed once per file so all points of a file share it. Row-level problems
// (unparsable dates, numbers that do not coerce) degrade or drop the row; a
// missing required block fails the file with a *MissingDataBlockError.
package transform
