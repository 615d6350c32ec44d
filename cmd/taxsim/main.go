// taxsim runs the import tax comparison from the command line.
//
// Usage:
//
//	taxsim compute --fob 1000 --freight 100 --insurance 50 [rate flags] [--variant flat]
//	taxsim nfe [rate flags] --output xlsx --out itens.xlsx nota1.xml nota2.xml
package main

import (
	"fmt"
	"io"
	"os"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/urfave/cli/v2"
	"go.uber.org/zap"

	"github.com/Simplici0/simulador-reforma/internal/logger"
	"github.com/Simplici0/simulador-reforma/internal/nfe"
	"github.com/Simplici0/simulador-reforma/internal/report"
	"github.com/Simplici0/simulador-reforma/internal/seed"
	"github.com/Simplici0/simulador-reforma/internal/taxcalc"
)

var version = "dev"

// errItemsFailed signals a batch where at least one item could not be computed.
var errItemsFailed = errors.New("one or more items failed")

func main() {
	if err := newApp(os.Stdout, os.Stderr).Run(os.Args); err != nil {
		if !errors.Is(err, errItemsFailed) {
			fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		}
		os.Exit(1)
	}
}

func newApp(stdout, stderr io.Writer) *cli.App {
	return &cli.App{
		Name:      "taxsim",
		Usage:     "Compare import taxes before and after the tax reform",
		Version:   version,
		Writer:    stdout,
		ErrWriter: stderr,
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:    "log-level",
				Value:   "warn",
				Usage:   "Log level (debug, info, warn, error)",
				EnvVars: []string{"LOG_LEVEL"},
			},
		},
		Before: func(c *cli.Context) error {
			log, err := logger.NewConsole(c.String("log-level"))
			if err != nil {
				return errors.Wrap(err, "init logger")
			}
			zap.ReplaceGlobals(log)
			return nil
		},
		After: func(c *cli.Context) error {
			_ = zap.L().Sync()
			return nil
		},
		Commands: []*cli.Command{
			computeCommand(),
			nfeCommand(),
		},
	}
}

func rateFlags() []cli.Flag {
	d := seed.DefaultRates
	return []cli.Flag{
		&cli.Float64Flag{Name: "ii", Value: d.II, Usage: "II rate (%)"},
		&cli.Float64Flag{Name: "pis", Value: d.PIS, Usage: "PIS rate (%)"},
		&cli.Float64Flag{Name: "cofins", Value: d.COFINS, Usage: "COFINS rate (%)"},
		&cli.Float64Flag{Name: "ipi", Value: d.IPI, Usage: "IPI rate (%)"},
		&cli.Float64Flag{Name: "is", Value: d.IS, Usage: "IS rate (%)"},
		&cli.Float64Flag{Name: "ibs", Value: d.IBS, Usage: "IBS rate (%)"},
		&cli.Float64Flag{Name: "cbs", Value: d.CBS, Usage: "CBS rate (%)"},
		&cli.Float64Flag{Name: "icms", Value: d.ICMS, Usage: "ICMS rate (%)"},
	}
}

func outputFlags(formats string) []cli.Flag {
	return []cli.Flag{
		&cli.StringFlag{
			Name:    "output",
			Aliases: []string{"o"},
			Value:   "text",
			Usage:   "Output format (" + formats + ")",
		},
		&cli.StringFlag{
			Name:  "out",
			Usage: "Write output to `FILE` instead of stdout (required for xlsx and pdf)",
		},
	}
}

func ratesFromFlags(c *cli.Context) (taxcalc.RateSet, error) {
	return taxcalc.NewRateSet(
		c.Float64("ii"), c.Float64("pis"), c.Float64("cofins"), c.Float64("ipi"),
		c.Float64("is"), c.Float64("ibs"), c.Float64("cbs"), c.Float64("icms"),
	)
}

func computeCommand() *cli.Command {
	flags := []cli.Flag{
		&cli.Float64Flag{Name: "fob", Usage: "FOB value of the goods (R$)", Required: true},
		&cli.Float64Flag{Name: "freight", Usage: "International freight (R$)"},
		&cli.Float64Flag{Name: "insurance", Usage: "International insurance (R$)"},
		&cli.Float64Flag{Name: "other", Usage: "Other customs costs (R$)"},
		&cli.StringFlag{Name: "variant", Value: "cascading", Usage: "Base variant (flat, cascading)", EnvVars: []string{"BASE_VARIANT"}},
		&cli.BoolFlag{Name: "double-count-other", Value: true, Usage: "Add other customs costs again to the IBS/CBS and ICMS bases", EnvVars: []string{"DOUBLE_COUNT_OTHER"}},
	}
	flags = append(flags, rateFlags()...)
	flags = append(flags, outputFlags("text, json, xlsx, pdf")...)

	return &cli.Command{
		Name:   "compute",
		Usage:  "Compute the tax comparison for one import",
		Flags:  flags,
		Action: runCompute,
	}
}

func runCompute(c *cli.Context) error {
	rates, err := ratesFromFlags(c)
	if err != nil {
		return err
	}
	costs, err := taxcalc.NewCostComponents(c.Float64("fob"), c.Float64("freight"), c.Float64("insurance"), c.Float64("other"))
	if err != nil {
		return err
	}
	variant, err := taxcalc.ParseBaseVariant(c.String("variant"))
	if err != nil {
		return err
	}

	breakdown, err := taxcalc.ComputeDetailed(rates, costs, variant, taxcalc.WithDoubleCountOther(c.Bool("double-count-other")))
	if err != nil {
		return errors.Wrap(err, "compute")
	}
	zap.S().Debugw("computed", "variant", variant.String(), "customs_value", breakdown.CustomsValue)

	format := c.String("output")
	return withOutput(c, format, func(w io.Writer) error {
		switch format {
		case "text":
			return writeBreakdownText(w, breakdown)
		case "json":
			return writeJSON(w, newResultJSON(breakdown))
		case "xlsx":
			return report.WriteComparisonXLSX(w, breakdown.Result)
		case "pdf":
			return report.WriteComparisonPDF(w, breakdown.Result, report.Meta{Variant: variant, GeneratedAt: time.Now()})
		default:
			return errors.Newf("unsupported output %q", format)
		}
	})
}

func nfeCommand() *cli.Command {
	flags := []cli.Flag{
		&cli.IntFlag{Name: "workers", Usage: "Goroutines per batch (0 = GOMAXPROCS)", EnvVars: []string{"BATCH_WORKERS"}},
	}
	flags = append(flags, rateFlags()...)
	flags = append(flags, outputFlags("text, json, xlsx")...)

	return &cli.Command{
		Name:      "nfe",
		Usage:     "Extract NF-e XML files and compute taxes per item",
		ArgsUsage: "FILE...",
		Flags:     flags,
		Action:    runNFe,
	}
}

func runNFe(c *cli.Context) error {
	if c.NArg() == 0 {
		return errors.New("at least one NF-e XML file is required")
	}
	rates, err := ratesFromFlags(c)
	if err != nil {
		return err
	}

	var (
		files      []nfe.File
		openErrors []nfe.FileError
	)
	for _, path := range c.Args().Slice() {
		f, err := os.Open(path)
		if err != nil {
			openErrors = append(openErrors, nfe.FileError{Name: path, Err: err})
			continue
		}
		defer f.Close()
		files = append(files, nfe.File{Name: path, Reader: f})
	}

	records, fileErrors := nfe.ParseFiles(files)
	for _, fe := range append(openErrors, fileErrors...) {
		zap.S().Warnw("skipping nf-e file", "file", fe.Name, "error", fe.Err)
		fmt.Fprintf(c.App.ErrWriter, "skipping %s: %v\n", fe.Name, fe.Err)
	}
	if len(records) == 0 {
		return errors.New("no NF-e items found")
	}

	batch := taxcalc.ComputeBatch(rates, nfe.LineItems(records), c.Int("workers"))
	zap.S().Infow("nf-e batch computed", "items", len(batch.Outcomes), "failed", batch.Failed)

	format := c.String("output")
	err = withOutput(c, format, func(w io.Writer) error {
		switch format {
		case "text":
			return writeBatchText(w, batch)
		case "json":
			return writeJSON(w, newBatchJSON(batch))
		case "xlsx":
			return report.WriteBatchXLSX(w, batch)
		default:
			return errors.Newf("unsupported output %q", format)
		}
	})
	if err != nil {
		return err
	}

	if batch.Failed > 0 {
		fmt.Fprintf(c.App.ErrWriter, "%d of %d items failed\n", batch.Failed, len(batch.Outcomes))
		return errItemsFailed
	}
	return nil
}

// withOutput runs write against --out or stdout. Binary formats must go to a file.
func withOutput(c *cli.Context, format string, write func(io.Writer) error) error {
	path := c.String("out")
	if path == "" {
		if format == "xlsx" || format == "pdf" {
			return errors.Newf("--out is required for %s output", format)
		}
		return write(c.App.Writer)
	}

	f, err := os.Create(path)
	if err != nil {
		return errors.Wrapf(err, "create %s", path)
	}
	if err := write(f); err != nil {
		_ = f.Close()
		return err
	}
	return errors.Wrapf(f.Close(), "close %s", path)
}
