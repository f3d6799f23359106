// Package utils holds small shared helpers with no home elsewhere.
package utils

import (
	"encoding/csv"
	"os"
	"strconv"
	"time"

	"candlebot/internal/domain"
)

// WriteCandlesToCSV exports closed candles for offline analysis.
func WriteCandlesToCSV(candles []*domain.Candle, pair domain.CurrencyPair, interval domain.Interval, filename string) error {
	file, err := os.Create(filename)
	if err != nil {
		return err
	}
	defer file.Close()

	writer := csv.NewWriter(file)
	defer writer.Flush()

	// Write header
	writer.Write([]string{"open_time", "close_time", "pair", "interval", "open", "high", "low", "close", "volume"})

	for _, c := range candles {
		writer.Write([]string{
			c.OpenTime.Format(time.RFC3339),
			c.CloseTime.Format(time.RFC3339),
			pair.String(),
			string(interval),
			strconv.FormatFloat(c.Open, 'f', -1, 64),
			strconv.FormatFloat(c.High, 'f', -1, 64),
			strconv.FormatFloat(c.Low, 'f', -1, 64),
			strconv.FormatFloat(c.Close, 'f', -1, 64),
			strconv.FormatFloat(c.Volume, 'f', -1, 64),
		})
	}
	return writer.Error()
}
