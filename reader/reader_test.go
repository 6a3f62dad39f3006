package reader

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	appconfig "eurexflow/config"
	"eurexflow/internal/channel"
	"eurexflow/models"
)

func defaultMapping() appconfig.MappingConfig {
	return appconfig.MappingConfig{
		UpdateAction: 0,
		PriceLevel:   1,
		EntryType:    2,
		SecurityID:   3,
		Price:        5,
		Size:         6,
		TsNs:         7,
		SequenceNum:  8,
	}
}

func TestExtractEntries(t *testing.T) {
	line := "header {0,0,0,1001,M,99.5,10,1000} tail {2,1,1,1001,M,,,2000}"
	entries := ExtractEntries(line)
	if len(entries) != 2 {
		t.Fatalf("got %d entries, want 2", len(entries))
	}
	if entries[0][3] != "1001" || entries[0][5] != "99.5" {
		t.Errorf("first entry tokens = %v", entries[0])
	}
	// Empty fields stay addressable.
	if entries[1][5] != "" || entries[1][6] != "" {
		t.Errorf("second entry should keep empty price/size slots: %v", entries[1])
	}
}

func TestExtractEntriesTrimsWhitespace(t *testing.T) {
	entries := ExtractEntries("{ 0 ,\t0, 0 , 1001 , M , 99.5 ,10 ,\t1000\t}")
	if len(entries) != 1 {
		t.Fatalf("got %d entries, want 1", len(entries))
	}
	want := []string{"0", "0", "0", "1001", "M", "99.5", "10", "1000"}
	for i, tok := range entries[0] {
		if tok != want[i] {
			t.Errorf("token %d = %q, want %q", i, tok, want[i])
		}
	}
}

func TestExtractEntriesUnbalanced(t *testing.T) {
	entries := ExtractEntries("{0,0,0,1001,M,99.5,10,1000} {2,1,1")
	if len(entries) != 1 {
		t.Errorf("got %d entries, want 1 (unterminated block ignored)", len(entries))
	}
	if got := ExtractEntries("no braces here"); got != nil {
		t.Errorf("line without entries should yield nil, got %v", got)
	}
}

func TestToUpdateActions(t *testing.T) {
	m := defaultMapping()

	cases := []struct {
		name   string
		tokens []string
		action models.Action
	}{
		{"new", []string{"0", "0", "0", "1001", "M", "99.5", "10", "1000", ""}, models.Add},
		{"change", []string{"1", "0", "0", "1001", "M", "", "15", "1000", ""}, models.Change},
		{"delete", []string{"2", "0", "0", "1001", "M", "", "", "1000", ""}, models.Delete},
		{"overlay", []string{"5", "0", "0", "1001", "M", "99.6", "12", "1000", ""}, models.Add},
	}
	for _, tc := range cases {
		u, err := ToUpdate(tc.tokens, m)
		if err != nil {
			t.Fatalf("%s: %v", tc.name, err)
		}
		if u.Action != tc.action {
			t.Errorf("%s: action = %v, want %v", tc.name, u.Action, tc.action)
		}
	}
}

func TestToUpdateFields(t *testing.T) {
	m := defaultMapping()
	u, err := ToUpdate([]string{"0", "2", "1", "2205045", "M", "101.25", "40", "1700000000123456789", "77"}, m)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if u.InstrumentID != 2205045 {
		t.Errorf("instrument = %d", u.InstrumentID)
	}
	if u.Side != models.Ask || u.PriceLevel != 2 {
		t.Errorf("side/level = %v/%d", u.Side, u.PriceLevel)
	}
	if !u.HasPrice || u.Price != 101.25 || !u.HasSize || u.Size != 40 {
		t.Errorf("price/size = %v/%v", u.Price, u.Size)
	}
	if u.EventTime != 1700000000123456789 {
		t.Errorf("event time = %d", u.EventTime)
	}
	if u.SequenceNumber != 77 {
		t.Errorf("sequence = %d", u.SequenceNumber)
	}
}

func TestToUpdateRejectsMalformed(t *testing.T) {
	m := defaultMapping()
	bad := [][]string{
		{"x", "0", "0", "1001", "M", "99.5", "10", "1000"}, // bad action
		{"9", "0", "0", "1001", "M", "99.5", "10", "1000"}, // unknown action
		{"0", "0", "7", "1001", "M", "99.5", "10", "1000"}, // bad side
		{"0", "z", "0", "1001", "M", "99.5", "10", "1000"}, // bad level
		{"0", "0", "0", "abc", "M", "99.5", "10", "1000"},  // bad security id
		{"0", "0", "0", "1001", "M", "99.5", "10", "ts"},   // bad timestamp
		{"0", "0", "0", "1001", "M", "99.5", "-3", "1000"}, // negative size
		{"0", "0", "0", "1001", "M", "", "", "1000"},       // add without price/size
		{"0", "0"}, // truncated
	}
	for i, tokens := range bad {
		if _, err := ToUpdate(tokens, m); err == nil {
			t.Errorf("case %d: expected error for %v", i, tokens)
		}
	}
}

func TestToUpdateDeleteWithoutPriceSize(t *testing.T) {
	m := defaultMapping()
	u, err := ToUpdate([]string{"2", "0", "0", "1001", "M", "", "", "1000"}, m)
	if err != nil {
		t.Fatalf("delete without price/size must parse: %v", err)
	}
	if u.HasPrice || u.HasSize {
		t.Errorf("delete should carry no price/size, got %+v", u)
	}
}

func writeDepthFile(t *testing.T, dir, name string, lines []string) string {
	t.Helper()
	path := filepath.Join(dir, name)
	var data []byte
	for _, l := range lines {
		data = append(data, l...)
		data = append(data, '\n')
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		t.Fatalf("write %s: %v", name, err)
	}
	return path
}

func readerConfig(dir string) *appconfig.Config {
	return &appconfig.Config{
		Reader: appconfig.ReaderConfig{
			DataDir:   dir,
			BatchSize: 100,
			Mapping:   defaultMapping(),
		},
	}
}

func TestFileReaderEmitsPerInstrumentBatches(t *testing.T) {
	dir := t.TempDir()
	writeDepthFile(t, dir, "depth.csv", []string{
		"{0,0,0,1001,M,99.5,10,1000} {0,0,1,1001,M,100.0,8,1000}",
		"{0,0,0,2002,M,50.0,5,1500}",
		"not an entry line",
		"{1,0,0,1001,M,,15,2000}",
	})

	cfg := readerConfig(dir)
	channels := channel.NewChannels(8, 8)
	r := NewFileReader(cfg, channels)

	if err := r.Start(context.Background()); err != nil {
		t.Fatalf("start: %v", err)
	}

	byInstrument := make(map[int64][]models.DepthUpdate)
	for batch := range channels.Raw {
		if batch.RecordCount != len(batch.Updates) {
			t.Errorf("record count %d != len %d", batch.RecordCount, len(batch.Updates))
		}
		byInstrument[batch.InstrumentID] = append(byInstrument[batch.InstrumentID], batch.Updates...)
	}
	r.Wait()

	if len(byInstrument[1001]) != 3 {
		t.Errorf("instrument 1001 updates = %d, want 3", len(byInstrument[1001]))
	}
	if len(byInstrument[2002]) != 1 {
		t.Errorf("instrument 2002 updates = %d, want 1", len(byInstrument[2002]))
	}

	// File order is preserved per instrument via synthesized sequences.
	seqs := make([]int64, 0, 3)
	for _, u := range byInstrument[1001] {
		seqs = append(seqs, u.SequenceNumber)
	}
	for i, want := range []int64{1, 2, 3} {
		if seqs[i] != want {
			t.Errorf("sequence[%d] = %d, want %d", i, seqs[i], want)
		}
	}
}

func TestFileReaderBatchSizeSplits(t *testing.T) {
	dir := t.TempDir()
	writeDepthFile(t, dir, "depth.csv", []string{
		"{0,0,0,1001,M,99.5,10,1000}",
		"{1,0,0,1001,M,,11,2000}",
		"{1,0,0,1001,M,,12,3000}",
	})

	cfg := readerConfig(dir)
	cfg.Reader.BatchSize = 2
	channels := channel.NewChannels(8, 8)
	r := NewFileReader(cfg, channels)

	if err := r.Start(context.Background()); err != nil {
		t.Fatalf("start: %v", err)
	}

	var batches int
	var total int
	for batch := range channels.Raw {
		batches++
		total += batch.RecordCount
	}
	r.Wait()

	if batches != 2 || total != 3 {
		t.Errorf("batches=%d total=%d, want 2 batches covering 3 updates", batches, total)
	}
}

func TestFileReaderNoFiles(t *testing.T) {
	cfg := readerConfig(t.TempDir())
	channels := channel.NewChannels(1, 1)
	r := NewFileReader(cfg, channels)
	if err := r.Start(context.Background()); err == nil {
		t.Fatalf("expected error for empty data dir")
	}
}

func TestFileReaderExplicitFileList(t *testing.T) {
	dir := t.TempDir()
	path := writeDepthFile(t, dir, "part.txt", []string{"{0,0,0,1001,M,99.5,10,1000}"})

	cfg := readerConfig(dir)
	cfg.Reader.DataDir = ""
	cfg.Reader.Files = []string{path}

	channels := channel.NewChannels(4, 4)
	r := NewFileReader(cfg, channels)
	if err := r.Start(context.Background()); err != nil {
		t.Fatalf("start: %v", err)
	}

	var got int
	for batch := range channels.Raw {
		got += batch.RecordCount
		if batch.SourceFile != path {
			t.Errorf("source file = %s, want %s", batch.SourceFile, path)
		}
	}
	r.Wait()
	if got != 1 {
		t.Errorf("updates = %d, want 1", got)
	}
}
