package reader

import (
	"fmt"
	"strconv"
	"strings"

	"eurexflow/config"
	"eurexflow/models"
)

// Eurex DI update action codes. New, Change and Overlay all carry a full
// price/size pair; Overlay repairs an occupied slot and therefore folds into
// Add on the normalized side.
const (
	actionNew     = 0
	actionChange  = 1
	actionDelete  = 2
	actionOverlay = 5
)

// ExtractEntries returns the token lists of every balanced {...} block in a
// DI line. Inner content is split by comma with empties preserved, so a
// missing field stays addressable by its column index.
func ExtractEntries(line string) [][]string {
	var entries [][]string
	i := 0
	for i < len(line) {
		if line[i] != '{' {
			i++
			continue
		}
		start := i + 1
		depth := 1
		i++
		for i < len(line) && depth > 0 {
			switch line[i] {
			case '{':
				depth++
			case '}':
				depth--
			}
			i++
		}
		if depth != 0 {
			break
		}
		inner := line[start : i-1]
		entries = append(entries, splitTokens(inner))
	}
	return entries
}

func splitTokens(inner string) []string {
	raw := make([]string, 0, 16)
	start := 0
	for i := 0; i <= len(inner); i++ {
		if i == len(inner) || inner[i] == ',' {
			raw = append(raw, strings.TrimSpace(inner[start:i]))
			start = i + 1
		}
	}
	return raw
}

func token(tokens []string, idx int) string {
	if idx < 0 || idx >= len(tokens) {
		return ""
	}
	return tokens[idx]
}

// ToUpdate converts one entry's tokens into a normalized DepthUpdate using
// the configured column mapping. The sequence number column is optional in
// the feed; when absent the caller assigns a running per-instrument counter.
func ToUpdate(tokens []string, m config.MappingConfig) (models.DepthUpdate, error) {
	var u models.DepthUpdate

	actTok := token(tokens, m.UpdateAction)
	act, err := strconv.Atoi(actTok)
	if err != nil {
		return u, fmt.Errorf("unparseable update action %q", actTok)
	}
	switch act {
	case actionNew, actionOverlay:
		u.Action = models.Add
	case actionChange:
		u.Action = models.Change
	case actionDelete:
		u.Action = models.Delete
	default:
		return u, fmt.Errorf("unknown update action %d", act)
	}

	sideTok := token(tokens, m.EntryType)
	switch sideTok {
	case "0":
		u.Side = models.Bid
	case "1":
		u.Side = models.Ask
	default:
		return u, fmt.Errorf("unknown entry type %q", sideTok)
	}

	lvlTok := token(tokens, m.PriceLevel)
	lvl, err := strconv.Atoi(lvlTok)
	if err != nil {
		return u, fmt.Errorf("unparseable price level %q", lvlTok)
	}
	u.PriceLevel = lvl

	secTok := token(tokens, m.SecurityID)
	sec, err := strconv.ParseInt(secTok, 10, 64)
	if err != nil {
		return u, fmt.Errorf("unparseable security id %q", secTok)
	}
	u.InstrumentID = sec

	tsTok := token(tokens, m.TsNs)
	ts, err := strconv.ParseInt(tsTok, 10, 64)
	if err != nil {
		return u, fmt.Errorf("unparseable timestamp %q", tsTok)
	}
	u.EventTime = ts

	if p := token(tokens, m.Price); p != "" {
		price, err := strconv.ParseFloat(p, 64)
		if err != nil {
			return u, fmt.Errorf("unparseable price %q", p)
		}
		u.Price = price
		u.HasPrice = true
	}
	if s := token(tokens, m.Size); s != "" {
		size, err := strconv.ParseFloat(s, 64)
		if err != nil {
			return u, fmt.Errorf("unparseable size %q", s)
		}
		if size < 0 {
			return u, fmt.Errorf("negative size %q", s)
		}
		u.Size = size
		u.HasSize = true
	}

	if u.Action != models.Delete && !u.HasPrice && !u.HasSize {
		return u, fmt.Errorf("action %s without price or size", u.Action)
	}

	if q := token(tokens, m.SequenceNum); q != "" {
		seq, err := strconv.ParseInt(q, 10, 64)
		if err != nil {
			return u, fmt.Errorf("unparseable sequence number %q", q)
		}
		u.SequenceNumber = seq
	}

	return u, nil
}
