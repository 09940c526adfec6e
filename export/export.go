// Package export serialises catalog listings for download.
package export

import (
	"encoding/csv"
	"encoding/json"
	"fmt"
	"io"
	"strconv"
	"time"

	"github.com/marcusbell/bookcat/models"
)

// WriteCSV streams listings as CSV with a header row.
func WriteCSV(w io.Writer, listings []models.ProductListing) error {
	writer := csv.NewWriter(w)
	header := []string{"source_id", "title", "author", "price_value", "currency", "image_url", "publisher", "condition", "categories", "last_seen_at"}
	if err := writer.Write(header); err != nil {
		return fmt.Errorf("write csv header: %w", err)
	}

	for i := range listings {
		listing := &listings[i]
		lastSeen := ""
		if listing.LastSeenAt != nil {
			lastSeen = listing.LastSeenAt.Format(time.RFC3339)
		}
		record := []string{
			listing.SourceID,
			listing.Title,
			listing.Author,
			strconv.FormatFloat(listing.PriceValue, 'f', 2, 64),
			listing.Currency,
			listing.ImageURL,
			listing.Publisher,
			listing.Condition,
			strconv.Itoa(len(listing.CategoryURLs)),
			lastSeen,
		}
		if err := writer.Write(record); err != nil {
			return fmt.Errorf("write csv record: %w", err)
		}
	}

	writer.Flush()
	if err := writer.Error(); err != nil {
		return fmt.Errorf("flush csv records: %w", err)
	}
	return nil
}

// WriteJSON streams listings in JSONL format, one listing per line.
func WriteJSON(w io.Writer, listings []models.ProductListing) error {
	encoder := json.NewEncoder(w)
	for i := range listings {
		if err := encoder.Encode(&listings[i]); err != nil {
			return fmt.Errorf("encode json record: %w", err)
		}
	}
	return nil
}
