// tdx-measure prints the live MRTD and RTMR values of the trust domain it
// runs in, optionally extending an RTMR first.
package main

import (
	"context"
	"fmt"
	"io"
	"os"

	"github.com/kierr/chutes-tdx-tools/quote"
	"github.com/kierr/chutes-tdx-tools/tdx"
	"github.com/sirupsen/logrus"
	"github.com/urfave/cli/v3"
)

var log = logrus.WithField("service", "tdx-measure")

const (
	extendDataFlag = "extend-data"
	rtmrFlag       = "rtmr"
)

type config struct {
	extendData string
	rtmrIndex  uint64
}

// measurementProvider reads MRTD and RTMR0-3, extending the RTMR with the
// given index first when extendData is non-empty. The real provider talks to
// the TDX guest device; tests inject a fake.
type measurementProvider func(extendData []byte, index uint8) ([5][48]byte, error)

func main() {
	cmd := &cli.Command{
		Name:  "tdx-measure",
		Usage: "Read the MRTD and RTMRs of the current trust domain",
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:  extendDataFlag,
				Usage: "Extend an RTMR with the SHA384 digest of `DATA` before reading",
			},
			&cli.UintFlag{
				Name:  rtmrFlag,
				Usage: "RTMR `INDEX` to extend",
				Value: 2,
			},
		},
		Action: func(_ context.Context, cmd *cli.Command) error {
			c := config{
				extendData: cmd.String(extendDataFlag),
				rtmrIndex:  uint64(cmd.Uint(rtmrFlag)),
			}
			return run(c, platformMeasurements, os.Stdout)
		},
	}

	if err := cmd.Run(context.Background(), os.Args); err != nil {
		log.Fatalf("%v", err)
	}
}

// platformMeasurements reads the measurement registers through the guest
// device, extending first when requested.
func platformMeasurements(extendData []byte, index uint8) ([5][48]byte, error) {
	handle, err := tdx.Open()
	if err != nil {
		return [5][48]byte{}, err
	}
	defer handle.Close()

	if len(extendData) > 0 {
		if err := tdx.ExtendRTMR(handle, extendData, index); err != nil {
			return [5][48]byte{}, err
		}
		log.Infof("Extended RTMR%d", index)
	}

	return tdx.ReadMeasurements(handle)
}

func run(c config, getMeasurements measurementProvider, out io.Writer) error {
	if c.extendData != "" && c.rtmrIndex > 3 {
		return fmt.Errorf("invalid RTMR index %d (only 0-3 exist)", c.rtmrIndex)
	}

	measurements, err := getMeasurements([]byte(c.extendData), uint8(c.rtmrIndex))
	if err != nil {
		return err
	}

	fmt.Fprint(out, quote.FormatMeasurement("MRTD", measurements[0]))
	for i := 0; i < 4; i++ {
		fmt.Fprint(out, quote.FormatMeasurement(fmt.Sprintf("RTMR%d", i), measurements[i+1]))
	}
	return nil
}
