package main

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"strconv"
	"syscall"

	"github.com/gofrs/flock"
	"github.com/pkg/errors"
	"github.com/spf13/cobra"

	"github.com/Denni-Wild/Subs-bot-sub000/config"
	"github.com/Denni-Wild/Subs-bot-sub000/handlers/api"
	"github.com/Denni-Wild/Subs-bot-sub000/models"
	"github.com/Denni-Wild/Subs-bot-sub000/services/mindmap"
	"github.com/Denni-Wild/Subs-bot-sub000/services/summary"
	"github.com/Denni-Wild/Subs-bot-sub000/services/voice"
	"github.com/Denni-Wild/Subs-bot-sub000/utils"
	"github.com/Denni-Wild/Subs-bot-sub000/validation"
)

const lockFileName = "subs-bot.lock"

func newRootCommand() *cobra.Command {
	var cfg *config.Config

	rootCmd := &cobra.Command{
		Use:           "subs-bot",
		Short:         "YouTube subtitles, summaries and voice transcription",
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			loaded, err := config.Load()
			if err != nil {
				return errors.Wrap(err, "load configuration")
			}
			cfg = loaded
			return nil
		},
		RunE: func(cmd *cobra.Command, args []string) error {
			return cmd.Help()
		},
	}

	configValue := func() *config.Config { return cfg }

	rootCmd.AddCommand(newServeCommand(configValue))
	rootCmd.AddCommand(newSubtitlesCommand(configValue))
	rootCmd.AddCommand(newSummarizeCommand(configValue))
	rootCmd.AddCommand(newMindMapCommand(configValue))
	rootCmd.AddCommand(newModelsCommand(configValue))
	rootCmd.AddCommand(newStatsCommand(configValue))

	return rootCmd
}

func newServeCommand(configValue func() *config.Config) *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Run the HTTP API",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg := configValue()

			lock := flock.New(filepath.Join(cfg.DataDir, lockFileName))
			locked, err := lock.TryLock()
			if err != nil {
				return errors.Wrap(err, "acquire data directory lock")
			}
			if !locked {
				return fmt.Errorf("another subs-bot server is already using %s", cfg.DataDir)
			}
			defer lock.Unlock()

			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			a, err := newApp(ctx, cfg, appOptions{database: true, attachments: true})
			if err != nil {
				return err
			}
			defer a.Close()

			if cfg.RateLimit.Enabled {
				a.limiter.StartSweeper(ctx, cfg.RateLimit.SweepInterval)
			}

			queue := voice.NewQueue(cfg.Voice.Workers, cfg.Voice.QueueSize)
			queue.Start(a.voice.Transcribe)
			defer queue.Close()

			opts := []api.ServerOption{
				api.WithLogger(a.log),
				api.WithServices(a.transcripts, a.summaries),
				api.WithMindMaps(a.mindmaps),
				api.WithVoiceQueue(queue),
				api.WithLimiter(a.limiter),
			}
			if a.runs != nil {
				opts = append(opts, api.WithRepository(a.runs))
			}
			if a.attachments != nil {
				opts = append(opts, api.WithAttachments(a.attachments))
			}
			server := api.NewServer(cfg, opts...)

			serverErr := make(chan error, 1)
			go func() {
				serverErr <- server.Start()
			}()

			select {
			case err := <-serverErr:
				if err != nil && err != http.ErrServerClosed {
					return errors.Wrap(err, "server error")
				}
				return nil
			case <-ctx.Done():
			}

			shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
			defer cancel()
			if err := server.Shutdown(shutdownCtx); err != nil {
				a.log.WithError(err).Error("Server shutdown error")
			}
			a.log.Info("Server stopped")
			return nil
		},
	}
}

func newSubtitlesCommand(configValue func() *config.Config) *cobra.Command {
	var (
		lang     string
		withTime bool
		list     bool
	)

	cmd := &cobra.Command{
		Use:   "subtitles <video>",
		Short: "Print the subtitles of a YouTube video",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg := configValue()
			a, err := newApp(cmd.Context(), cfg, appOptions{console: cmd.ErrOrStderr()})
			if err != nil {
				return err
			}
			defer a.Close()

			validator := validation.NewValidator(cfg)
			videoID, err := validator.ExtractVideoID(args[0])
			if err != nil {
				return err
			}

			if list {
				tracks, err := a.transcripts.ListTracks(cmd.Context(), videoID)
				if err != nil {
					return err
				}
				rows := make([][]string, 0, len(tracks))
				for _, t := range tracks {
					rows = append(rows, []string{t.LanguageCode, t.LanguageName, strconv.FormatBool(t.Generated)})
				}
				fmt.Fprintln(cmd.OutOrStdout(), renderTable([]string{"Code", "Language", "Generated"}, rows, nil))
				return nil
			}

			if err := validator.ValidateLanguage(lang); err != nil {
				return err
			}
			if lang == "" {
				lang = cfg.Transcript.DefaultLanguage
			}
			transcript, ok, err := a.transcripts.Fetch(cmd.Context(), videoID, []string{lang})
			if err != nil {
				return err
			}
			if !ok || transcript.IsEmpty() {
				return fmt.Errorf("no subtitles for %s", videoID)
			}
			if transcript.Fallback {
				fmt.Fprintf(cmd.ErrOrStderr(), "%s subtitles are not available, showing %s\n", lang, transcript.LanguageCode)
			}
			fmt.Fprintln(cmd.OutOrStdout(), utils.FormatSubtitles(transcript.Lines, withTime))
			return nil
		},
	}

	cmd.Flags().StringVarP(&lang, "lang", "l", "", "Preferred subtitle language")
	cmd.Flags().BoolVarP(&withTime, "time", "t", false, "Prefix lines with [MM:SS]")
	cmd.Flags().BoolVar(&list, "list", false, "List available tracks instead")
	return cmd
}

func newSummarizeCommand(configValue func() *config.Config) *cobra.Command {
	var (
		video     string
		lang      string
		prompt    string
		translate bool
	)

	cmd := &cobra.Command{
		Use:   "summarize [file]",
		Short: "Summarize a text file, stdin or a YouTube video",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg := configValue()
			a, err := newApp(cmd.Context(), cfg, appOptions{database: true, console: cmd.ErrOrStderr()})
			if err != nil {
				return err
			}
			defer a.Close()

			text, source, err := readInput(cmd, a, video, lang, args)
			if err != nil {
				return err
			}

			result, err := a.summaries.Summarize(cmd.Context(), text, summary.Options{
				Prompt:             prompt,
				TranslateToRussian: translate,
				CallerKey:          "cli",
				Source:             source,
			})
			if err != nil {
				if result != nil {
					fmt.Fprintln(cmd.ErrOrStderr(), renderSummaryStats(result))
				}
				return err
			}

			fmt.Fprintln(cmd.OutOrStdout(), result.Text)
			fmt.Fprintln(cmd.ErrOrStderr(), renderSummaryStats(result))
			return nil
		},
	}

	cmd.Flags().StringVarP(&video, "video", "v", "", "Summarize the subtitles of this video")
	cmd.Flags().StringVarP(&lang, "lang", "l", "", "Preferred subtitle language for --video")
	cmd.Flags().StringVar(&prompt, "prompt", "", "Custom prompt for each fragment")
	cmd.Flags().BoolVar(&translate, "translate", false, "Translate the summary to Russian")
	return cmd
}

// readInput returns the subtitles of video when it is set, otherwise the
// named file or stdin.
func readInput(cmd *cobra.Command, a *app, video, lang string, args []string) (string, string, error) {
	switch {
	case video != "":
		videoID, err := validation.NewValidator(a.cfg).ExtractVideoID(video)
		if err != nil {
			return "", "", err
		}
		if lang == "" {
			lang = a.cfg.Transcript.DefaultLanguage
		}
		transcript, ok, err := a.transcripts.Fetch(cmd.Context(), videoID, []string{lang})
		if err != nil {
			return "", "", err
		}
		if !ok {
			return "", "", fmt.Errorf("no subtitles for %s", videoID)
		}
		return transcript.Text(), "youtube:" + videoID, nil
	case len(args) == 1:
		data, err := os.ReadFile(args[0])
		if err != nil {
			return "", "", errors.Wrapf(err, "read %s", args[0])
		}
		return string(data), "file:" + filepath.Base(args[0]), nil
	default:
		data, err := io.ReadAll(cmd.InOrStdin())
		if err != nil {
			return "", "", errors.Wrap(err, "read stdin")
		}
		return string(data), "stdin", nil
	}
}

func newMindMapCommand(configValue func() *config.Config) *cobra.Command {
	var (
		video  string
		lang   string
		format string
		output string
	)

	cmd := &cobra.Command{
		Use:   "mindmap [file]",
		Short: "Build a mind map of a text file, stdin or a YouTube video",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			f, err := mindmap.ParseFormat(format)
			if err != nil {
				return err
			}
			if f == mindmap.FormatAll {
				return fmt.Errorf("choose one of markdown, mermaid or html")
			}

			a, err := newApp(cmd.Context(), configValue(), appOptions{console: cmd.ErrOrStderr()})
			if err != nil {
				return err
			}
			defer a.Close()

			text, _, err := readInput(cmd, a, video, lang, args)
			if err != nil {
				return err
			}
			result, err := a.mindmaps.Generate(cmd.Context(), text, f)
			if err != nil {
				return err
			}

			rendered := result.Markdown
			switch f {
			case mindmap.FormatMermaid:
				rendered = result.Mermaid
			case mindmap.FormatHTML:
				rendered = result.HTML
			}
			if output != "" {
				if err := os.WriteFile(output, []byte(rendered), 0o644); err != nil {
					return errors.Wrapf(err, "write %s", output)
				}
				fmt.Fprintf(cmd.ErrOrStderr(), "Mind map written to %s\n", output)
				return nil
			}
			fmt.Fprint(cmd.OutOrStdout(), rendered)
			return nil
		},
	}

	cmd.Flags().StringVarP(&video, "video", "v", "", "Map the subtitles of this video")
	cmd.Flags().StringVarP(&lang, "lang", "l", "", "Preferred subtitle language for --video")
	cmd.Flags().StringVarP(&format, "format", "f", string(mindmap.FormatMarkdown), "markdown, mermaid or html")
	cmd.Flags().StringVarP(&output, "output", "o", "", "Write to this file instead of stdout")
	return cmd
}

func renderSummaryStats(result *models.SummaryResult) string {
	s := result.Stats
	rows := [][]string{
		{"Run", s.RunID},
		{"State", string(result.State)},
		{"Model", s.Model},
		{"Chunks", fmt.Sprintf("%d/%d", s.ProcessedChunks, s.Chunks)},
		{"Length", fmt.Sprintf("%d → %d", s.OriginalLength, s.SummaryLength)},
		{"Language", s.SourceLanguage},
		{"Translated", strconv.FormatBool(s.Translated)},
	}
	return renderTable([]string{"Field", "Value"}, rows, nil)
}

func newModelsCommand(configValue func() *config.Config) *cobra.Command {
	return &cobra.Command{
		Use:   "models",
		Short: "List the summarization model pool",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := newApp(cmd.Context(), configValue(), appOptions{console: cmd.ErrOrStderr()})
			if err != nil {
				return err
			}
			defer a.Close()

			rows := make([][]string, 0, a.pool.Len())
			for i, m := range a.pool.Models() {
				rows = append(rows, []string{strconv.Itoa(i + 1), m.Name, m.ID})
			}
			fmt.Fprintln(cmd.OutOrStdout(), renderTable([]string{"#", "Name", "ID"}, rows, []columnAlignment{alignRight}))
			return nil
		},
	}
}

func newStatsCommand(configValue func() *config.Config) *cobra.Command {
	return &cobra.Command{
		Use:   "stats",
		Short: "Show runs and feedback per model",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := newApp(cmd.Context(), configValue(), appOptions{database: true, console: cmd.ErrOrStderr()})
			if err != nil {
				return err
			}
			defer a.Close()
			if err := a.requireRuns(); err != nil {
				return err
			}

			stats, err := a.runs.ModelStats(cmd.Context())
			if err != nil {
				return err
			}
			if len(stats) == 0 {
				fmt.Fprintln(cmd.OutOrStdout(), "No runs recorded yet.")
				return nil
			}

			rows := make([][]string, 0, len(stats))
			for _, st := range stats {
				rows = append(rows, []string{
					st.Model,
					strconv.Itoa(st.Runs),
					strconv.Itoa(st.DegradedRuns),
					strconv.Itoa(st.FailedRuns),
					strconv.Itoa(st.Positive),
					strconv.Itoa(st.Negative),
					fmt.Sprintf("%.0f%%", st.Satisfaction()*100),
				})
			}
			headers := []string{"Model", "Runs", "Degraded", "Failed", "Positive", "Negative", "Satisfaction"}
			aligns := []columnAlignment{alignLeft, alignRight, alignRight, alignRight, alignRight, alignRight, alignRight}
			fmt.Fprintln(cmd.OutOrStdout(), renderTable(headers, rows, aligns))
			return nil
		},
	}
}
