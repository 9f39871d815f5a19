// tdx-quote-extract loads a persisted TDX quote, validates its structure and
// prints the trust-relevant fields (nonce, MRTD, RTMR0-3) in human-readable
// or JSON form.
package main

import (
	"context"
	"fmt"
	"io"
	"os"

	"github.com/kierr/chutes-tdx-tools/quote"
	"github.com/sirupsen/logrus"
	"github.com/urfave/cli/v3"
)

var log = logrus.WithField("service", "tdx-quote-extract")

const (
	jsonFlag  = "json"
	inputFlag = "in"

	defaultQuoteFile = "quote.bin"
)

type config struct {
	json  bool
	input string
}

func main() {
	cmd := &cli.Command{
		Name:  "tdx-quote-extract",
		Usage: "Extract measurement registers and nonce from a TDX quote file",
		Flags: []cli.Flag{
			&cli.BoolFlag{
				Name:  jsonFlag,
				Usage: "Emit the extracted fields as JSON",
			},
			&cli.StringFlag{
				Name:  inputFlag,
				Usage: "Quote `FILE` to parse",
				Value: defaultQuoteFile,
			},
		},
		Action: func(_ context.Context, cmd *cli.Command) error {
			c := config{
				json:  cmd.Bool(jsonFlag),
				input: cmd.String(inputFlag),
			}
			return run(c, os.Stdout)
		},
	}

	if err := cmd.Run(context.Background(), os.Args); err != nil {
		log.Fatalf("%v", err)
	}
}

func run(c config, out io.Writer) error {
	rawQuote, err := os.ReadFile(c.input)
	if err != nil {
		return fmt.Errorf("reading quote file: %w", err)
	}

	parsedQuote, err := quote.ParseQuote(rawQuote)
	if err != nil {
		return fmt.Errorf("parsing %s: %w", c.input, err)
	}

	if c.json {
		rendered, err := quote.RenderJSON(parsedQuote)
		if err != nil {
			return err
		}
		fmt.Fprintln(out, string(rendered))
		return nil
	}

	fmt.Fprint(out, quote.RenderHuman(parsedQuote))
	return nil
}
