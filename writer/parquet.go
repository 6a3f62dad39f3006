package writer

import (
	"bytes"
	"fmt"

	"github.com/xitongsys/parquet-go/parquet"
	"github.com/xitongsys/parquet-go/source"
	"github.com/xitongsys/parquet-go/writer"

	"eurexflow/models"
)

// MetricsParquetRecord is the columnar schema of one metric row. Optional
// columns are pointers; nil survives the round trip as a true null. Depth
// columns are fixed at the feed maximum of five levels; with a smaller
// configured depth the deeper columns stay null.
type MetricsParquetRecord struct {
	InstrumentID int64 `parquet:"name=instrument_id, type=INT64"`
	BucketStart  int64 `parquet:"name=bucket_start, type=INT64"`

	BestBid     *float64 `parquet:"name=best_bid, type=DOUBLE, repetitiontype=OPTIONAL"`
	BestBidSize *float64 `parquet:"name=best_bid_size, type=DOUBLE, repetitiontype=OPTIONAL"`
	BestAsk     *float64 `parquet:"name=best_ask, type=DOUBLE, repetitiontype=OPTIONAL"`
	BestAskSize *float64 `parquet:"name=best_ask_size, type=DOUBLE, repetitiontype=OPTIONAL"`
	Midprice    *float64 `parquet:"name=midprice, type=DOUBLE, repetitiontype=OPTIONAL"`
	Spread      *float64 `parquet:"name=spread, type=DOUBLE, repetitiontype=OPTIONAL"`
	RelSpread   *float64 `parquet:"name=rel_spread, type=DOUBLE, repetitiontype=OPTIONAL"`
	Microprice  *float64 `parquet:"name=microprice, type=DOUBLE, repetitiontype=OPTIONAL"`

	BidVolL1 *float64 `parquet:"name=bid_vol_l1, type=DOUBLE, repetitiontype=OPTIONAL"`
	BidVolL2 *float64 `parquet:"name=bid_vol_l2, type=DOUBLE, repetitiontype=OPTIONAL"`
	BidVolL3 *float64 `parquet:"name=bid_vol_l3, type=DOUBLE, repetitiontype=OPTIONAL"`
	BidVolL4 *float64 `parquet:"name=bid_vol_l4, type=DOUBLE, repetitiontype=OPTIONAL"`
	BidVolL5 *float64 `parquet:"name=bid_vol_l5, type=DOUBLE, repetitiontype=OPTIONAL"`
	AskVolL1 *float64 `parquet:"name=ask_vol_l1, type=DOUBLE, repetitiontype=OPTIONAL"`
	AskVolL2 *float64 `parquet:"name=ask_vol_l2, type=DOUBLE, repetitiontype=OPTIONAL"`
	AskVolL3 *float64 `parquet:"name=ask_vol_l3, type=DOUBLE, repetitiontype=OPTIONAL"`
	AskVolL4 *float64 `parquet:"name=ask_vol_l4, type=DOUBLE, repetitiontype=OPTIONAL"`
	AskVolL5 *float64 `parquet:"name=ask_vol_l5, type=DOUBLE, repetitiontype=OPTIONAL"`

	CumBidVolume float64 `parquet:"name=cum_bid_volume, type=DOUBLE"`
	CumAskVolume float64 `parquet:"name=cum_ask_volume, type=DOUBLE"`

	ImbalanceL1 *float64 `parquet:"name=imbalance_l1, type=DOUBLE, repetitiontype=OPTIONAL"`
	ImbalanceL2 *float64 `parquet:"name=imbalance_l2, type=DOUBLE, repetitiontype=OPTIONAL"`
	ImbalanceL3 *float64 `parquet:"name=imbalance_l3, type=DOUBLE, repetitiontype=OPTIONAL"`
	ImbalanceL4 *float64 `parquet:"name=imbalance_l4, type=DOUBLE, repetitiontype=OPTIONAL"`
	ImbalanceL5 *float64 `parquet:"name=imbalance_l5, type=DOUBLE, repetitiontype=OPTIONAL"`

	MsgCount    int64 `parquet:"name=msg_count, type=INT64"`
	UpdateCount int64 `parquet:"name=update_count, type=INT64"`
	CancelCount int64 `parquet:"name=cancel_count, type=INT64"`

	Volatility *float64 `parquet:"name=price_volatility, type=DOUBLE, repetitiontype=OPTIONAL"`
	Crossed    bool     `parquet:"name=crossed, type=BOOLEAN"`
}

func pick(vals []*float64, i int) *float64 {
	if i < len(vals) {
		return vals[i]
	}
	return nil
}

func toParquetRecord(row models.MetricsRow) MetricsParquetRecord {
	return MetricsParquetRecord{
		InstrumentID: row.InstrumentID,
		BucketStart:  row.BucketStart,
		BestBid:      row.BestBid,
		BestBidSize:  row.BestBidSize,
		BestAsk:      row.BestAsk,
		BestAskSize:  row.BestAskSize,
		Midprice:     row.Midprice,
		Spread:       row.Spread,
		RelSpread:    row.RelSpread,
		Microprice:   row.Microprice,
		BidVolL1:     pick(row.BidVolumes, 0),
		BidVolL2:     pick(row.BidVolumes, 1),
		BidVolL3:     pick(row.BidVolumes, 2),
		BidVolL4:     pick(row.BidVolumes, 3),
		BidVolL5:     pick(row.BidVolumes, 4),
		AskVolL1:     pick(row.AskVolumes, 0),
		AskVolL2:     pick(row.AskVolumes, 1),
		AskVolL3:     pick(row.AskVolumes, 2),
		AskVolL4:     pick(row.AskVolumes, 3),
		AskVolL5:     pick(row.AskVolumes, 4),
		CumBidVolume: row.CumBidVolume,
		CumAskVolume: row.CumAskVolume,
		ImbalanceL1:  pick(row.Imbalances, 0),
		ImbalanceL2:  pick(row.Imbalances, 1),
		ImbalanceL3:  pick(row.Imbalances, 2),
		ImbalanceL4:  pick(row.Imbalances, 3),
		ImbalanceL5:  pick(row.Imbalances, 4),
		MsgCount:     row.MsgCount,
		UpdateCount:  row.UpdateCount,
		CancelCount:  row.CancelCount,
		Volatility:   row.Volatility,
		Crossed:      row.Crossed,
	}
}

// memoryFileWriter implements the ParquetFile interface for in-memory writing
type memoryFileWriter struct {
	buffer *bytes.Buffer
}

func newMemoryFileWriter() *memoryFileWriter {
	return &memoryFileWriter{
		buffer: &bytes.Buffer{},
	}
}

func (mfw *memoryFileWriter) Create(name string) (source.ParquetFile, error) {
	return mfw, nil
}

func (mfw *memoryFileWriter) Open(name string) (source.ParquetFile, error) {
	return mfw, nil
}

func (mfw *memoryFileWriter) Seek(offset int64, whence int) (int64, error) {
	// Write-only usage; the parquet writer never seeks backwards here.
	return int64(mfw.buffer.Len()), nil
}

func (mfw *memoryFileWriter) Read(b []byte) (int, error) {
	return mfw.buffer.Read(b)
}

func (mfw *memoryFileWriter) Write(b []byte) (int, error) {
	return mfw.buffer.Write(b)
}

func (mfw *memoryFileWriter) Close() error {
	return nil
}

func (mfw *memoryFileWriter) Bytes() []byte {
	return mfw.buffer.Bytes()
}

// createParquetFile serializes rows into an in-memory parquet file and
// returns the bytes and their size.
func createParquetFile(rows []models.MetricsRow, compression string) ([]byte, int64, error) {
	fw := newMemoryFileWriter()

	pw, err := writer.NewParquetWriter(fw, new(MetricsParquetRecord), 4)
	if err != nil {
		return nil, 0, fmt.Errorf("failed to create parquet writer: %w", err)
	}

	switch compression {
	case "snappy":
		pw.CompressionType = parquet.CompressionCodec_SNAPPY
	case "gzip":
		pw.CompressionType = parquet.CompressionCodec_GZIP
	default:
		pw.CompressionType = parquet.CompressionCodec_UNCOMPRESSED
	}

	for _, row := range rows {
		if err := pw.Write(toParquetRecord(row)); err != nil {
			pw.WriteStop()
			return nil, 0, fmt.Errorf("failed to write parquet record: %w", err)
		}
	}

	if err := pw.WriteStop(); err != nil {
		return nil, 0, fmt.Errorf("failed to finalize parquet file: %w", err)
	}

	data := fw.Bytes()
	return data, int64(len(data)), nil
}
