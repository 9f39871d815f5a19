// tdx-quote-generator requests a signed attestation quote from the platform,
// binding caller-supplied report data into the measurement report, and writes
// the raw quote to a file.
package main

import (
	"context"
	"fmt"
	"os"

	"github.com/kierr/chutes-tdx-tools/quote"
	"github.com/kierr/chutes-tdx-tools/tdx"
	"github.com/sirupsen/logrus"
	"github.com/urfave/cli/v3"
)

var log = logrus.WithField("service", "tdx-quote-generator")

const (
	reportDataFlag = "report-data"
	hexFlag        = "hex"
	outputFlag     = "output"

	defaultOutputFile = "quote.bin"
)

type config struct {
	reportData string
	isHex      bool
	output     string
}

// quoteProvider obtains a raw quote for the given report data.
// The real provider talks to the TDX guest device; tests inject a fake.
type quoteProvider func(userData []byte) ([]byte, error)

func main() {
	cmd := &cli.Command{
		Name:  "tdx-quote-generator",
		Usage: "Generate a TDX attestation quote with caller-supplied report data",
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:    reportDataFlag,
				Aliases: []string{"d"},
				Usage:   fmt.Sprintf("Include user data in the quote (max %d bytes)", quote.ReportDataSize),
			},
			&cli.BoolFlag{
				Name:    hexFlag,
				Aliases: []string{"x"},
				Usage:   "Treat user data as a hex string",
			},
			&cli.StringFlag{
				Name:    outputFlag,
				Aliases: []string{"o"},
				Usage:   "Output quote to `FILE`",
				Value:   defaultOutputFile,
			},
		},
		Action: func(_ context.Context, cmd *cli.Command) error {
			return run(getConfig(cmd), platformQuote)
		},
	}

	if err := cmd.Run(context.Background(), os.Args); err != nil {
		log.Fatalf("%v", err)
	}
}

func getConfig(cmd *cli.Command) config {
	return config{
		reportData: cmd.String(reportDataFlag),
		isHex:      cmd.Bool(hexFlag),
		output:     cmd.String(outputFlag),
	}
}

// platformQuote obtains a quote from the guest device, letting the platform
// pick its default signing key.
func platformQuote(userData []byte) ([]byte, error) {
	handle, err := tdx.Open()
	if err != nil {
		return nil, err
	}
	defer handle.Close()

	return tdx.GenerateQuote(handle, userData)
}

func run(c config, getQuote quoteProvider) error {
	reportData, truncated, err := quote.EncodeReportData(c.reportData, c.isHex)
	if err != nil {
		return fmt.Errorf("encoding report data: %w", err)
	}
	if truncated {
		log.Warnf("User data (%d bytes) truncated to %d bytes", len(c.reportData), quote.ReportDataSize)
	}

	rawQuote, err := getQuote(reportData[:])
	if err != nil {
		return fmt.Errorf("requesting quote: %w", err)
	}

	if err := writeQuote(c.output, rawQuote); err != nil {
		return err
	}

	log.Infof("Quote generated: %d bytes, saved to %s", len(rawQuote), c.output)
	return nil
}

// writeQuote persists the quote verbatim. A short write is fatal and reports
// written-vs-expected byte counts; no cleanup or retry is attempted.
func writeQuote(path string, rawQuote []byte) error {
	f, err := os.OpenFile(path, os.O_WRONLY|os.O_CREATE|os.O_TRUNC, 0o644)
	if err != nil {
		return fmt.Errorf("opening output file %s: %w", path, err)
	}
	defer f.Close()

	written, err := f.Write(rawQuote)
	if err != nil {
		return fmt.Errorf("writing quote to %s (wrote %d/%d bytes): %w", path, written, len(rawQuote), err)
	}
	if written != len(rawQuote) {
		return fmt.Errorf("failed to write quote to %s: wrote %d/%d bytes", path, written, len(rawQuote))
	}
	return nil
}
