package main

import (
	"encoding/csv"
	"flag"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/xitongsys/parquet-go-source/writerfile"
	"github.com/xitongsys/parquet-go/parquet"
	"github.com/xitongsys/parquet-go/writer"
)

type snapshotRow struct {
	Rank       int32  `parquet:"name=rank, type=INT32"`
	Wallet     string `parquet:"name=wallet, type=BYTE_ARRAY, convertedtype=UTF8"`
	Address    string `parquet:"name=address, type=BYTE_ARRAY, convertedtype=UTF8"`
	Score      string `parquet:"name=score, type=BYTE_ARRAY, convertedtype=UTF8"`
	ExportedAt int64  `parquet:"name=exported_at, type=INT64, convertedtype=TIMESTAMP_MILLIS"`
}

func runExportCommand(args []string, stdout, stderr io.Writer) int {
	fs := flag.NewFlagSet("export", flag.ContinueOnError)
	fs.SetOutput(stderr)
	var out, format string
	fs.StringVar(&out, "out", "", "output file path")
	fs.StringVar(&format, "format", "", "parquet or csv (defaults from the file extension)")
	if err := fs.Parse(args); err != nil {
		return 1
	}
	out = strings.TrimSpace(out)
	if out == "" {
		fmt.Fprintln(stderr, "Error: --out is required")
		return 1
	}
	format = strings.ToLower(strings.TrimSpace(format))
	if format == "" {
		format = strings.TrimPrefix(strings.ToLower(filepath.Ext(out)), ".")
	}
	if format != "parquet" && format != "csv" {
		fmt.Fprintf(stderr, "Error: unsupported export format %q\n", format)
		return 1
	}

	entries, rpcErr, err := fetchBoard(0)
	if err != nil {
		return handleRPCCallError(stderr, err)
	}
	if rpcErr != nil {
		return handleRPCError(stderr, rpcErr)
	}
	rows := snapshotRows(entries, nowFunc())
	if format == "csv" {
		err = writeSnapshotCSV(out, rows)
	} else {
		err = writeSnapshotParquet(out, rows)
	}
	if err != nil {
		fmt.Fprintf(stderr, "Error: %v\n", err)
		return 1
	}
	fmt.Fprintf(stdout, "wrote %d entries to %s\n", len(rows), out)
	return 0
}

func snapshotRows(entries []boardEntry, at time.Time) []snapshotRow {
	rows := make([]snapshotRow, len(entries))
	for i, entry := range entries {
		rows[i] = snapshotRow{
			Rank:       int32(entry.Rank),
			Wallet:     entry.Wallet,
			Address:    entry.Address,
			Score:      entry.Score,
			ExportedAt: at.UTC().UnixMilli(),
		}
	}
	return rows
}

func writeSnapshotCSV(path string, rows []snapshotRow) error {
	file, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("export: create csv: %w", err)
	}
	defer file.Close()
	w := csv.NewWriter(file)
	if err := w.Write([]string{"rank", "wallet", "address", "score", "exported_at"}); err != nil {
		return fmt.Errorf("export: write csv header: %w", err)
	}
	for _, row := range rows {
		record := []string{
			strconv.Itoa(int(row.Rank)),
			row.Wallet,
			row.Address,
			row.Score,
			time.UnixMilli(row.ExportedAt).UTC().Format(time.RFC3339),
		}
		if err := w.Write(record); err != nil {
			return fmt.Errorf("export: write csv row: %w", err)
		}
	}
	w.Flush()
	if err := w.Error(); err != nil {
		return fmt.Errorf("export: flush csv: %w", err)
	}
	return nil
}

func writeSnapshotParquet(path string, rows []snapshotRow) error {
	file, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("export: create parquet: %w", err)
	}
	fw := writerfile.NewWriterFile(file)
	pw, err := writer.NewParquetWriter(fw, new(snapshotRow), 1)
	if err != nil {
		file.Close()
		return fmt.Errorf("export: parquet schema: %w", err)
	}
	pw.RowGroupSize = 16 * 1024 * 1024
	pw.CompressionType = parquet.CompressionCodec_SNAPPY
	for i := range rows {
		if err := pw.Write(&rows[i]); err != nil {
			pw.WriteStop()
			file.Close()
			return fmt.Errorf("export: write parquet row: %w", err)
		}
	}
	if err := pw.WriteStop(); err != nil {
		file.Close()
		return fmt.Errorf("export: finalize parquet: %w", err)
	}
	return file.Close()
}
