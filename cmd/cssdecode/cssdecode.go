package main

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"

	"github.com/jessevdk/go-flags"
	"github.com/lestrrat-go/cssdecode"
	"golang.org/x/term"
)

type cmdopts struct {
	Protocol string `long:"protocol" description:"encoding given by the protocol (e.g. Content-Type charset)"`
	Linking  string `long:"linking" description:"encoding given by the linking mechanism (e.g. <link charset>)"`
	Document string `long:"document" description:"encoding of the referring document"`
	Detect   bool   `long:"detect" description:"print the detected encoding instead of the text"`
	Verbose  bool   `short:"v" long:"verbose" description:"trace every encoding that is tried to stderr"`
	Version  bool   `long:"version"`
}

type input struct {
	name string
	rdr  io.Reader
}

func main() {
	os.Exit(_main(os.Args[1:], os.Stdin, os.Stdout, os.Stderr))
}

func showVersion(out io.Writer) {
	fmt.Fprintf(out, "cssdecode: using cssdecode version %s\n", cssdecode.Version)
}

func showUsage(out io.Writer) {
	fmt.Fprintf(out, `Usage : cssdecode [options] CSSfiles ...
	Decode the stylesheets and output the resulting text
	--protocol=ENC : encoding given by the protocol
	--linking=ENC  : encoding given by the linking mechanism
	--document=ENC : encoding of the referring document
	--detect       : only report the encoding that was used
	--verbose      : trace the encodings that are tried
	--version      : display the version of the library used
`)
}

func isTty(r io.Reader) bool {
	f, ok := r.(*os.File)
	if !ok {
		return false
	}
	return term.IsTerminal(int(f.Fd()))
}

func _main(argv []string, stdin io.Reader, stdout, stderr io.Writer) int {
	opts := cmdopts{}
	args, err := flags.ParseArgs(&opts, argv)
	if err != nil {
		showUsage(stderr)
		return 1
	}

	if opts.Version {
		showVersion(stdout)
		return 0
	}

	inputCh := make(chan input)
	errCh := make(chan error, 1)
	switch {
	case len(args) > 0: // filename present
		go func() {
			defer close(inputCh)
			for _, f := range args {
				fh, err := os.Open(f)
				if err != nil {
					errCh <- err
					return
				}
				inputCh <- input{name: f, rdr: fh}
			}
		}()
	case !isTty(stdin):
		go func() {
			defer close(inputCh)
			inputCh <- input{name: "-", rdr: stdin}
		}()
	default:
		showUsage(stderr)
		return 1
	}

	ctx := context.Background()
	if opts.Verbose {
		tlog := slog.New(slog.NewTextHandler(stderr, &slog.HandlerOptions{Level: slog.LevelDebug}))
		ctx = cssdecode.WithTraceLogger(ctx, tlog)
	}

	var options []cssdecode.DecodeOption
	if opts.Protocol != "" {
		options = append(options, cssdecode.WithProtocolEncoding(opts.Protocol))
	}
	if opts.Linking != "" {
		options = append(options, cssdecode.WithLinkingEncoding(opts.Linking))
	}
	if opts.Document != "" {
		options = append(options, cssdecode.WithDocumentEncoding(opts.Document))
	}

	status := 0
	for in := range inputCh {
		buf, err := io.ReadAll(in.rdr)
		if c, ok := in.rdr.(io.Closer); ok && in.rdr != stdin {
			_ = c.Close()
		}
		if err != nil {
			fmt.Fprintf(stderr, "%s: %s\n", in.name, err)
			status = 1
			continue
		}

		res, err := cssdecode.DecodeResult(ctx, buf, options...)
		if err != nil {
			fmt.Fprintf(stderr, "%s: %s\n", in.name, err)
			status = 1
			continue
		}

		if opts.Detect {
			fmt.Fprintf(stdout, "%s: %s (%s)\n", in.name, res.Encoding, res.Source)
			continue
		}
		fmt.Fprint(stdout, res.Text)
	}

	select {
	case err := <-errCh:
		fmt.Fprintf(stderr, "%s\n", err)
		return 1
	default:
	}

	return status
}
