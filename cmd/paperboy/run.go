package main

import (
	"context"
	"errors"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"

	"github.com/ldiehl/paperboy/internal/config"
	"github.com/ldiehl/paperboy/internal/crossref"
	"github.com/ldiehl/paperboy/internal/digest"
	"github.com/ldiehl/paperboy/internal/email"
	"github.com/ldiehl/paperboy/internal/history"
	"github.com/ldiehl/paperboy/internal/logging"
	"github.com/ldiehl/paperboy/internal/paper"
	"github.com/ldiehl/paperboy/internal/pipeline"
	"github.com/ldiehl/paperboy/internal/score"
	"github.com/ldiehl/paperboy/internal/source"
	"github.com/ldiehl/paperboy/internal/summarize"
	"github.com/ldiehl/paperboy/internal/verify"
)

var (
	runPeriod string
	runSend   bool
)

var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Collect, verify, and assemble one digest",
	RunE: func(cmd *cobra.Command, args []string) error {
		period := paper.Period(runPeriod)
		if period != paper.Daily && period != paper.Weekly {
			exitWithError(ExitError, "invalid period %q (want daily or weekly)", runPeriod)
		}

		cfg := loadConfig()
		d, err := executeRun(cmd.Context(), cfg, period)
		if err != nil {
			if errors.Is(err, pipeline.ErrNoCandidates) {
				exitWithError(ExitNoPapers, "no candidates collected from any source")
			}
			if errors.Is(err, pipeline.ErrNoConfirmed) {
				exitWithError(ExitNoPapers, "no candidates confirmed by the registry")
			}
			exitWithError(ExitError, "digest run failed: %v", err)
		}

		if runSend {
			if err := sendDigest(cmd.Context(), cfg, d); err != nil {
				exitWithError(ExitSendError, "sending digest: %v", err)
			}
		}

		printDigest(d)
		return nil
	},
}

func init() {
	runCmd.Flags().StringVar(&runPeriod, "period", "daily", "Digest period: daily or weekly")
	runCmd.Flags().BoolVar(&runSend, "send", false, "Email the digest after assembly")
	rootCmd.AddCommand(runCmd)
}

// loadConfig reads the config file, overlays environment keys, and
// builds the logger. Exits on an unusable configuration.
func loadConfig() *config.Config {
	godotenv.Load()

	path := configPath
	if path == "" {
		path = config.DefaultPath()
	}
	cfg, err := config.Load(path)
	if err != nil {
		exitWithError(ExitConfigError, "%v", err)
	}
	cfg.ApplyEnv()
	return cfg
}

// executeRun wires the pipeline from config and runs it once.
func executeRun(ctx context.Context, cfg *config.Config, period paper.Period) (*paper.Digest, error) {
	log := logging.New(cfg.LogLevel)

	var adapters []source.Adapter
	if cfg.Sources.ArXiv.Enabled {
		adapters = append(adapters, source.NewArxiv(cfg.Sources.ArXiv.Categories, cfg.Sources.ArXiv.MaxResults))
	}
	if cfg.Sources.OpenAlex.Enabled {
		adapters = append(adapters, source.NewOpenAlex(cfg.Sources.OpenAlex.Journals, cfg.Sources.OpenAlex.Mailto, cfg.Sources.OpenAlex.MaxResults))
	}
	if cfg.Sources.NBER.Enabled {
		adapters = append(adapters, source.NewNBER(cfg.Sources.NBER.MaxResults))
	}

	registry := crossref.NewClient(crossref.WithMailto(cfg.Verify.RegistryMailto))
	verifier := verify.New(registry, log,
		verify.WithRetry(cfg.Verify.MaxAttempts,
			time.Duration(cfg.Verify.BackoffBaseMS)*time.Millisecond,
			time.Duration(cfg.Verify.BackoffMaxMS)*time.Millisecond),
		verify.WithConcurrency(cfg.Verify.Concurrency),
		verify.WithMinSimilarity(cfg.Verify.MinSimilarity))

	scorer := score.New(cfg.Profile.Groups, cfg.Profile.TitleMultiplier)

	assemblerOpts := []digest.Option{
		digest.WithMaxEntries(cfg.MaxEntriesFor(string(period))),
		digest.WithSummaryTimeout(time.Duration(cfg.Digest.SummaryTimeout) * time.Second),
		digest.WithFallbackLength(cfg.Digest.FallbackLength),
	}
	if cfg.SummarizerAPIKey != "" {
		assemblerOpts = append(assemblerOpts, digest.WithSummarizer(
			summarize.NewClient(cfg.SummarizerAPIKey, summarize.WithModel(cfg.Digest.SummaryModel))))
	} else {
		log.Warn("no summarizer API key configured, entries will use truncated abstracts")
	}
	assembler := digest.New(log, assemblerOpts...)

	var opts []pipeline.Option
	store, err := history.Open(cfg.HistoryPath)
	if err != nil {
		log.Error("opening digest history failed, continuing without archive", "error", err)
	} else {
		defer store.Close()
		opts = append(opts, pipeline.WithArchive(store))
	}

	p := pipeline.New(cfg, adapters, verifier, scorer, assembler, log, opts...)
	return p.Run(ctx, period)
}

func sendDigest(ctx context.Context, cfg *config.Config, d *paper.Digest) error {
	if cfg.Email.To == "" {
		return errors.New("email.to not configured")
	}
	sender := email.NewSender(cfg.SendGridAPIKey, cfg.Email.From)
	return sender.Send(ctx, cfg.Email.To, email.Subject(d),
		email.FormatPlaintext(d), email.FormatHTML(d))
}

func printDigest(d *paper.Digest) {
	if !humanOutput {
		outputJSON(d)
		return
	}

	outputHuman("%s digest, %d entries (%d confirmed, %d rejected)\n",
		d.Period, len(d.Entries), d.Stats.TotalConfirmed, d.TotalRejected)
	if d.Partial {
		outputHuman("note: partial digest, run hit its time limit\n")
	}
	if d.Intro != "" {
		outputHuman("\n%s\n", d.Intro)
	}
	for i, e := range d.Entries {
		outputHuman("\n%d. [%.2f] %s\n", i+1, e.Score, truncateString(e.Candidate.Title, ListTitleMaxLen))
		if len(e.Candidate.Authors) > 0 {
			outputHuman("   %s\n", formatAuthors(e.Candidate.Authors, 3))
		}
		outputHuman("   %s\n", e.Summary)
		outputHuman("   doi:%s\n", e.Identifier)
	}
}
