package utils

import (
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"os"
	"sort"
	"strconv"
	"strings"
	"time"

	"equityBot/internal/domain"
)

var barHeader = []string{"open_time", "close_time", "symbol", "timeframe", "open", "high", "low", "close", "volume", "taker_buy_volume"}

// WriteBarsToCSV writes bars with a header row.
func WriteBarsToCSV(bars []*domain.Bar, filename string) error {
	file, err := os.Create(filename)
	if err != nil {
		return err
	}
	defer file.Close()
	return WriteBars(file, bars)
}

// WriteBars writes bars as CSV to w.
func WriteBars(w io.Writer, bars []*domain.Bar) error {
	writer := csv.NewWriter(w)
	if err := writer.Write(barHeader); err != nil {
		return err
	}
	for _, b := range bars {
		if err := writer.Write([]string{
			b.OpenTime.UTC().Format(time.RFC3339),
			b.CloseTime.UTC().Format(time.RFC3339),
			b.Symbol,
			string(b.Timeframe),
			strconv.FormatFloat(b.Open, 'f', -1, 64),
			strconv.FormatFloat(b.High, 'f', -1, 64),
			strconv.FormatFloat(b.Low, 'f', -1, 64),
			strconv.FormatFloat(b.Close, 'f', -1, 64),
			strconv.FormatFloat(b.Volume, 'f', -1, 64),
			strconv.FormatFloat(b.TakerBuyVolume, 'f', -1, 64),
		}); err != nil {
			return err
		}
	}
	writer.Flush()
	return writer.Error()
}

// ReadBarsFromCSV loads a bar file written by WriteBarsToCSV or any CSV with
// time/open/high/low/close/volume headers.
func ReadBarsFromCSV(filename string) ([]*domain.Bar, error) {
	file, err := os.Open(filename)
	if err != nil {
		return nil, err
	}
	defer file.Close()
	return ReadBars(file)
}

// ReadBars parses bars from r. Headers are case-insensitive and unknown columns are
// ignored. Times may be RFC3339 or Unix seconds or milliseconds. Bars come back
// sorted by open time.
func ReadBars(r io.Reader) ([]*domain.Bar, error) {
	reader := csv.NewReader(r)
	reader.FieldsPerRecord = -1

	headers, err := reader.Read()
	if err != nil {
		if errors.Is(err, io.EOF) {
			return nil, nil
		}
		return nil, fmt.Errorf("read header: %w", err)
	}
	index := make(map[string]int, len(headers))
	for i, h := range headers {
		index[strings.ToLower(strings.TrimSpace(h))] = i
	}
	field := func(rec []string, names ...string) string {
		for _, n := range names {
			if i, ok := index[n]; ok && i < len(rec) {
				return strings.TrimSpace(rec[i])
			}
		}
		return ""
	}

	var bars []*domain.Bar
	line := 1
	for {
		rec, err := reader.Read()
		if errors.Is(err, io.EOF) {
			break
		}
		line++
		if err != nil {
			return nil, fmt.Errorf("line %d: %w", line, err)
		}

		openTime, err := parseTime(field(rec, "open_time", "time", "timestamp", "date"))
		if err != nil {
			return nil, fmt.Errorf("line %d: %w", line, err)
		}
		b := &domain.Bar{
			OpenTime:  openTime,
			Symbol:    field(rec, "symbol"),
			Timeframe: domain.Timeframe(field(rec, "timeframe", "interval")),
			IsFinal:   true,
		}
		if ct := field(rec, "close_time"); ct != "" {
			if b.CloseTime, err = parseTime(ct); err != nil {
				return nil, fmt.Errorf("line %d: %w", line, err)
			}
		}
		values := []struct {
			dst      *float64
			names    []string
			required bool
		}{
			{&b.Open, []string{"open"}, true},
			{&b.High, []string{"high"}, true},
			{&b.Low, []string{"low"}, true},
			{&b.Close, []string{"close"}, true},
			{&b.Volume, []string{"volume", "vol"}, false},
			{&b.TakerBuyVolume, []string{"taker_buy_volume"}, false},
		}
		for _, v := range values {
			raw := field(rec, v.names...)
			if raw == "" {
				if v.required {
					return nil, fmt.Errorf("line %d: missing %s", line, v.names[0])
				}
				continue
			}
			if *v.dst, err = strconv.ParseFloat(raw, 64); err != nil {
				return nil, fmt.Errorf("line %d: parse %s: %w", line, v.names[0], err)
			}
		}
		bars = append(bars, b)
	}

	sort.SliceStable(bars, func(i, j int) bool { return bars[i].OpenTime.Before(bars[j].OpenTime) })
	return bars, nil
}

func parseTime(s string) (time.Time, error) {
	if s == "" {
		return time.Time{}, errors.New("missing time")
	}
	if t, err := time.Parse(time.RFC3339, s); err == nil {
		return t.UTC(), nil
	}
	if t, err := time.Parse("2006-01-02", s); err == nil {
		return t.UTC(), nil
	}
	n, err := strconv.ParseInt(s, 10, 64)
	if err != nil {
		return time.Time{}, fmt.Errorf("unrecognised time %q", s)
	}
	if n > 1e12 {
		return time.UnixMilli(n).UTC(), nil
	}
	return time.Unix(n, 0).UTC(), nil
}
