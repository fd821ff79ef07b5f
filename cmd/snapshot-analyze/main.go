// snapshot-analyze runs the full pipeline once: fetch a snapshot, decrypt it
// if needed, aggregate, and write the report to a file or stdout.
package main

import (
	"context"
	"encoding/hex"
	"encoding/json"
	"flag"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/ahstewart/signal-snapshot/internal/analytics"
	"github.com/ahstewart/signal-snapshot/internal/crypto"
	"github.com/ahstewart/signal-snapshot/internal/export"
	"github.com/ahstewart/signal-snapshot/internal/snapshot"
	"github.com/ahstewart/signal-snapshot/internal/source"
)

func main() {
	var (
		in            = flag.String("in", "", "Snapshot location: a file path or s3://bucket/key")
		out           = flag.String("out", "", "Output file (default stdout)")
		secret        = flag.String("secret", "", "Hex key material for encrypted snapshots")
		wrappedKey    = flag.String("wrapped-key", "", "Hex-encoded wrapped database key (v10/v11 envelope)")
		masterKeyHex  = flag.String("master-key", "", "Hex-encoded master key for unwrapping")
		conversations = flag.String("conversations", "", "Comma-separated conversation ids to restrict the report to")
		flat          = flag.Bool("flat", false, "Write the flat dotted-key form instead of the nested document")
		showProgress  = flag.Bool("progress", false, "Print pipeline progress to stderr")
		timeout       = flag.Duration("timeout", 10*time.Minute, "Overall pipeline timeout")
		s3Endpoint    = flag.String("s3-endpoint", "", "Custom S3 endpoint for s3:// locations")
		s3Region      = flag.String("s3-region", "us-east-1", "S3 region for s3:// locations")
		verbose       = flag.Bool("verbose", false, "Enable verbose logging")
	)

	flag.Parse()

	logger := logrus.New()
	logger.SetOutput(os.Stderr)
	if *verbose {
		logger.SetLevel(logrus.DebugLevel)
	} else {
		logger.SetLevel(logrus.WarnLevel)
	}

	if *in == "" {
		fmt.Fprintln(os.Stderr, "missing -in: nothing to analyze")
		flag.Usage()
		os.Exit(2)
	}

	ctx, cancel := context.WithTimeout(context.Background(), *timeout)
	defer cancel()

	if err := run(ctx, logger, options{
		in:            *in,
		out:           *out,
		secret:        *secret,
		wrappedKey:    *wrappedKey,
		masterKeyHex:  *masterKeyHex,
		conversations: *conversations,
		flat:          *flat,
		showProgress:  *showProgress,
		s3Endpoint:    *s3Endpoint,
		s3Region:      *s3Region,
	}); err != nil {
		fmt.Fprintf(os.Stderr, "snapshot-analyze: %v\n", err)
		os.Exit(1)
	}
}

type options struct {
	in            string
	out           string
	secret        string
	wrappedKey    string
	masterKeyHex  string
	conversations string
	flat          bool
	showProgress  bool
	s3Endpoint    string
	s3Region      string
}

func run(ctx context.Context, logger *logrus.Logger, opts options) error {
	secret, err := resolveSecret(opts)
	if err != nil {
		return err
	}

	var s3cfg *source.S3Config
	if strings.HasPrefix(opts.in, "s3://") {
		s3cfg = &source.S3Config{
			Endpoint:  opts.s3Endpoint,
			Region:    opts.s3Region,
			AccessKey: os.Getenv("AWS_ACCESS_KEY_ID"),
			SecretKey: os.Getenv("AWS_SECRET_ACCESS_KEY"),
		}
	}

	raw, err := source.NewFetcher(s3cfg).Fetch(ctx, opts.in)
	if err != nil {
		return fmt.Errorf("failed to fetch snapshot: %w", err)
	}

	onProgress := progressPrinter(opts.showProgress)

	plaintext := raw
	if !snapshot.IsPlaintext(raw) {
		if secret == "" {
			return crypto.ErrMissingKey
		}
		plaintext, err = crypto.NewDecryptor(logger).Decrypt(ctx, raw, secret, onProgress)
		if err != nil {
			return err
		}
	}

	snap, err := snapshot.Open(ctx, plaintext)
	if err != nil {
		return err
	}
	defer snap.Close()

	var filter []string
	for _, id := range strings.Split(opts.conversations, ",") {
		if id = strings.TrimSpace(id); id != "" {
			filter = append(filter, id)
		}
	}

	report, err := analytics.NewAggregator(logger).Aggregate(ctx, snap.DB(), filter, onProgress)
	if err != nil {
		return err
	}

	dst := os.Stdout
	if opts.out != "" {
		f, err := os.Create(opts.out)
		if err != nil {
			return fmt.Errorf("failed to create output file: %w", err)
		}
		defer f.Close()
		dst = f
	}

	if opts.flat {
		flatMap, err := export.Flatten(report)
		if err != nil {
			return err
		}
		enc := json.NewEncoder(dst)
		enc.SetIndent("", "  ")
		return enc.Encode(flatMap)
	}
	return export.Write(dst, report)
}

// resolveSecret prefers an explicit secret, falling back to unwrapping a
// wrapped database key with the master key.
func resolveSecret(opts options) (string, error) {
	if opts.secret != "" {
		return opts.secret, nil
	}
	if opts.wrappedKey == "" {
		return "", nil
	}
	if opts.masterKeyHex == "" {
		return "", fmt.Errorf("-wrapped-key requires -master-key")
	}
	masterKey, err := hex.DecodeString(strings.TrimSpace(opts.masterKeyHex))
	if err != nil {
		return "", fmt.Errorf("invalid master key: %w", err)
	}
	secret, err := crypto.UnwrapDatabaseKey(opts.wrappedKey, masterKey)
	if err != nil {
		return "", fmt.Errorf("failed to unwrap database key: %w", err)
	}
	return secret, nil
}

// progressPrinter writes coarse progress lines to stderr. Repeated updates
// for the same integer percent are dropped to keep the output readable.
func progressPrinter(enabled bool) func(float64, string) {
	if !enabled {
		return nil
	}
	last := -1
	return func(percent float64, message string) {
		p := int(percent)
		if p == last {
			return
		}
		last = p
		fmt.Fprintf(os.Stderr, "[%3d%%] %s\n", p, message)
	}
}
