package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"os/signal"
	"strconv"
	"strings"
	"syscall"
	"time"

	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/rs/zerolog"
	"github.com/spf13/afero"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"golang.org/x/sync/errgroup"
	"gopkg.in/yaml.v3"

	"meetline/internal/app"
	"meetline/internal/config"
	"meetline/internal/domain"
	"meetline/internal/logging"
	"meetline/internal/meeting"
	"meetline/internal/metrics"
	"meetline/internal/server"
	"meetline/internal/speech"
	meetlinesdk "meetline/sdk/go"
)

var rootCmd = &cobra.Command{
	Use:   "ml",
	Short: "Meetline CLI",
	Long: `Meetline captures meetings: their lifecycle, notes typed or dictated while
they run, AI summaries, and tasks converted from notes.
- Meeting: planned -> in_progress -> completed, or cancelled before it ends.
- Notes: manual, voice (dictation) or ai (accepted suggestions); a note can become one task.
- Dictation: speech lines become voice notes; the capture restarts itself until you stop it.
- Analysis: an external service summarizes notes into summary, tasks, decisions and questions.
Commands run against the workspace database, or against a running 'ml serve' with --server.`,
	SilenceUsage: true,
}

func main() {
	cobra.OnInitialize(initConfig)
	addPersistentFlags()
	registerCommands()
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "error:", err)
		os.Exit(1)
	}
}

func initConfig() {
	app.BindEnv(viper.GetViper())
}

func addPersistentFlags() {
	rootCmd.PersistentFlags().StringP("workspace", "w", ".", "workspace directory")
	rootCmd.PersistentFlags().Bool("json", false, "output JSON")
	rootCmd.PersistentFlags().String("server", "", "API base URL, e.g. http://127.0.0.1:8080/v0 (default: use the workspace directly)")
	rootCmd.PersistentFlags().String("log-level", "", "log level (debug, info, warn, error)")
	_ = viper.BindPFlag("workspace", rootCmd.PersistentFlags().Lookup("workspace"))
	_ = viper.BindPFlag("json", rootCmd.PersistentFlags().Lookup("json"))
	_ = viper.BindPFlag("server", rootCmd.PersistentFlags().Lookup("server"))
	_ = viper.BindPFlag("log.level", rootCmd.PersistentFlags().Lookup("log-level"))
}

func registerCommands() {
	rootCmd.AddCommand(meetingCmd())
	rootCmd.AddCommand(noteCmd())
	rootCmd.AddCommand(taskCmd())
	rootCmd.AddCommand(dictateCmd())
	rootCmd.AddCommand(configCmd())
	rootCmd.AddCommand(serveCmd())
}

func meetingCmd() *cobra.Command {
	m := &cobra.Command{Use: "meeting", Short: "Manage meetings"}
	m.AddCommand(meetingListCmd())
	m.AddCommand(meetingCreateCmd())
	m.AddCommand(meetingShowCmd())
	m.AddCommand(meetingTransitionCmd("start", "Start a planned meeting"))
	m.AddCommand(meetingTransitionCmd("end", "End a running meeting"))
	m.AddCommand(meetingTransitionCmd("cancel", "Cancel a meeting that has not ended"))
	m.AddCommand(meetingSummaryCmd())
	m.AddCommand(meetingAnalyzeCmd())
	return m
}

func meetingListCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "list",
		Short: "List meetings",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withDesk(cmd.Context(), meeting.Config{}, func(ctx context.Context, d *meeting.Desk) error {
				items, err := d.Refresh(ctx)
				if err != nil {
					return err
				}
				return printJSONOrTable(items)
			})
		},
	}
}

func meetingCreateCmd() *cobra.Command {
	var title, date, at, typeID, projectID, agenda string
	var duration int
	var participants []string
	cmd := &cobra.Command{
		Use:   "create",
		Short: "Plan a meeting",
		RunE: func(cmd *cobra.Command, args []string) error {
			draft := domain.MeetingDraft{
				Title:           title,
				Date:            date,
				Time:            at,
				DurationMinutes: duration,
				TypeID:          optionalString(typeID),
				ProjectID:       optionalString(projectID),
				ParticipantIDs:  participants,
				Agenda:          agenda,
			}
			return withBackend(cmd.Context(), func(ctx context.Context, b app.Backend) error {
				m, err := b.CreateMeeting(ctx, draft)
				if err != nil {
					return err
				}
				return printJSONOrTable(m)
			})
		},
	}
	cmd.Flags().StringVar(&title, "title", "", "meeting title")
	cmd.Flags().StringVar(&date, "date", "", "date (YYYY-MM-DD)")
	cmd.Flags().StringVar(&at, "time", "", "start time (HH:MM)")
	cmd.Flags().IntVar(&duration, "duration", 0, "planned duration in minutes")
	cmd.Flags().StringVar(&typeID, "type", "", "meeting type id")
	cmd.Flags().StringVar(&projectID, "project", "", "project id")
	cmd.Flags().StringSliceVar(&participants, "participant", nil, "participant id (repeatable)")
	cmd.Flags().StringVar(&agenda, "agenda", "", "agenda")
	_ = cmd.MarkFlagRequired("title")
	return cmd
}

func meetingShowCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "show <meeting-id>",
		Short: "Show a meeting with its notes",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withDesk(cmd.Context(), meeting.Config{}, func(ctx context.Context, d *meeting.Desk) error {
				m, err := d.Open(ctx, args[0])
				if err != nil {
					return err
				}
				return printJSONOrTable(m)
			})
		},
	}
}

func meetingTransitionCmd(action, short string) *cobra.Command {
	return &cobra.Command{
		Use:   action + " <meeting-id>",
		Short: short,
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withDesk(cmd.Context(), meeting.Config{}, func(ctx context.Context, d *meeting.Desk) error {
				if _, err := d.Open(ctx, args[0]); err != nil {
					return err
				}
				var (
					m   domain.Meeting
					err error
				)
				switch action {
				case "start":
					m, err = d.Lifecycle.Start(ctx, args[0])
				case "cancel":
					m, err = d.Lifecycle.Cancel(ctx, args[0])
				case "end":
					var res meeting.EndResult
					res, err = d.Lifecycle.End(ctx, args[0])
					m = res.Meeting
					if err == nil && res.PromptSummary && !viper.GetBool("json") {
						defer fmt.Printf("Add a summary with: ml meeting summary %s --text ... (or ml meeting analyze %s --apply)\n", m.ID, m.ID)
					}
				}
				if err != nil {
					return err
				}
				return printJSONOrTable(m)
			})
		},
	}
}

func meetingSummaryCmd() *cobra.Command {
	var text string
	cmd := &cobra.Command{
		Use:   "summary <meeting-id>",
		Short: "Save the meeting summary",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withDesk(cmd.Context(), meeting.Config{}, func(ctx context.Context, d *meeting.Desk) error {
				if _, err := d.Open(ctx, args[0]); err != nil {
					return err
				}
				if err := d.Summaries.Apply(args[0], text); err != nil {
					return err
				}
				m, err := d.Summaries.Save(ctx, args[0])
				if err != nil {
					return err
				}
				return printJSONOrTable(m)
			})
		},
	}
	cmd.Flags().StringVar(&text, "text", "", "summary text")
	_ = cmd.MarkFlagRequired("text")
	return cmd
}

func meetingAnalyzeCmd() *cobra.Command {
	var apply, convert bool
	cmd := &cobra.Command{
		Use:   "analyze <meeting-id>",
		Short: "Summarize the meeting notes with the analysis service",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withDesk(cmd.Context(), meeting.Config{}, func(ctx context.Context, d *meeting.Desk) error {
				if _, err := d.Open(ctx, args[0]); err != nil {
					return err
				}
				res, err := d.Analyze(ctx)
				if err != nil {
					return analysisFailure(err)
				}
				if apply && res.Summary != "" {
					if err := d.Summaries.Apply(args[0], res.Summary); err != nil {
						return err
					}
					if _, err := d.Summaries.Save(ctx, args[0]); err != nil {
						return err
					}
				}
				if convert {
					for _, suggestion := range res.Tasks {
						if _, _, err := d.Converter.ConvertSuggestion(ctx, args[0], suggestion); err != nil {
							return fmt.Errorf("convert %q: %w", suggestion, err)
						}
					}
				}
				return printJSONOrTable(res)
			})
		},
	}
	cmd.Flags().BoolVar(&apply, "apply", false, "save the proposed summary on the meeting")
	cmd.Flags().BoolVar(&convert, "convert-tasks", false, "turn every suggested task into an ai note and a task")
	return cmd
}

func noteCmd() *cobra.Command {
	n := &cobra.Command{Use: "note", Short: "Manage meeting notes"}
	n.AddCommand(noteListCmd())
	n.AddCommand(noteAddCmd())
	n.AddCommand(noteEditCmd())
	n.AddCommand(noteDeleteCmd())
	n.AddCommand(noteConvertCmd())
	return n
}

func noteListCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "list <meeting-id>",
		Short: "List notes of a meeting",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withDesk(cmd.Context(), meeting.Config{}, func(ctx context.Context, d *meeting.Desk) error {
				if _, err := d.Open(ctx, args[0]); err != nil {
					return err
				}
				notes, err := d.Notes.List(args[0])
				if err != nil {
					return err
				}
				return printJSONOrTable(notes)
			})
		},
	}
}

func noteAddCmd() *cobra.Command {
	var source string
	cmd := &cobra.Command{
		Use:   "add <meeting-id> <text>",
		Short: "Add a note",
		Args:  cobra.MinimumNArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			text := strings.Join(args[1:], " ")
			return withDesk(cmd.Context(), meeting.Config{}, func(ctx context.Context, d *meeting.Desk) error {
				if _, err := d.Open(ctx, args[0]); err != nil {
					return err
				}
				note, err := d.Notes.Add(ctx, args[0], text, domain.NoteSource(source))
				if err != nil {
					return err
				}
				return printJSONOrTable(note)
			})
		},
	}
	cmd.Flags().StringVar(&source, "source", string(domain.SourceManual), "note source (manual, voice, ai)")
	return cmd
}

func noteEditCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "edit <meeting-id> <note-id> <text>",
		Short: "Replace the text of a note",
		Args:  cobra.MinimumNArgs(3),
		RunE: func(cmd *cobra.Command, args []string) error {
			noteID, err := parseNoteID(args[1])
			if err != nil {
				return err
			}
			text := strings.Join(args[2:], " ")
			return withDesk(cmd.Context(), meeting.Config{}, func(ctx context.Context, d *meeting.Desk) error {
				if _, err := d.Open(ctx, args[0]); err != nil {
					return err
				}
				note, err := d.Notes.Edit(ctx, args[0], noteID, text)
				if err != nil {
					return err
				}
				return printJSONOrTable(note)
			})
		},
	}
}

func noteDeleteCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "delete <meeting-id> <note-id>",
		Short: "Delete a note",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			noteID, err := parseNoteID(args[1])
			if err != nil {
				return err
			}
			return withDesk(cmd.Context(), meeting.Config{}, func(ctx context.Context, d *meeting.Desk) error {
				if _, err := d.Open(ctx, args[0]); err != nil {
					return err
				}
				if err := d.Notes.Delete(ctx, args[0], noteID); err != nil {
					return err
				}
				if viper.GetBool("json") {
					return printJSON(map[string]any{"deleted": noteID})
				}
				fmt.Printf("Deleted note %d\n", noteID)
				return nil
			})
		},
	}
}

func noteConvertCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "convert <meeting-id> <note-id>",
		Short: "Turn a note into a task",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			noteID, err := parseNoteID(args[1])
			if err != nil {
				return err
			}
			return withDesk(cmd.Context(), meeting.Config{}, func(ctx context.Context, d *meeting.Desk) error {
				if _, err := d.Open(ctx, args[0]); err != nil {
					return err
				}
				task, err := d.Converter.ConvertNote(ctx, args[0], noteID)
				if err != nil {
					return err
				}
				return printJSONOrTable(task)
			})
		},
	}
}

func taskCmd() *cobra.Command {
	t := &cobra.Command{Use: "task", Short: "Inspect tasks created from notes"}
	t.AddCommand(&cobra.Command{
		Use:   "show <task-id>",
		Short: "Show a task",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withBackend(cmd.Context(), func(ctx context.Context, b app.Backend) error {
				task, err := b.GetTask(ctx, args[0])
				if err != nil {
					return err
				}
				return printJSONOrTable(task)
			})
		},
	})
	return t
}

func dictateCmd() *cobra.Command {
	var script, locale string
	cmd := &cobra.Command{
		Use:   "dictate <meeting-id>",
		Short: "Turn speech lines into voice notes",
		Long: `Reads recognition lines from stdin (or --script) and stores each final line
as a voice note of the meeting. Lines starting with ~ are interim text, !deny
simulates a denied microphone, "!error msg" a dropped channel, and a blank line
ends the current capture channel. Capture restarts until input ends or Ctrl-C.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			var in io.Reader = os.Stdin
			if script != "" {
				f, err := os.Open(script)
				if err != nil {
					return err
				}
				defer f.Close()
				in = f
			}
			rec := speech.NewLineRecognizer(in)
			cfg, err := loadConfig()
			if err != nil {
				return err
			}
			if locale == "" {
				locale = cfg.Dictation.Locale
			}
			log := newLogger(cfg, "dictation")
			deskCfg := meeting.Config{
				Recognizer: rec,
				Locale:     locale,
				Policy:     meeting.RestartPolicyFromConfig(cfg.Dictation),
				Metrics:    metrics.NewDictation(prometheus.NewRegistry()),
				Log:        log,
			}
			return withDesk(ctx, deskCfg, func(ctx context.Context, d *meeting.Desk) error {
				m, err := d.Open(ctx, args[0])
				if err != nil {
					return err
				}
				stopped := make(chan error, 1)
				d.Notes.OnAdded = func(n domain.Note) {
					if n.Source == domain.SourceVoice {
						fmt.Printf("+ [%d] %s\n", n.ID, n.Text)
					}
				}
				d.Dictation.OnInterim = func(text string) {
					log.Debug().Str("interim", text).Msg("hearing")
				}
				d.Dictation.OnError = func(err error) {
					log.Warn().Err(err).Msg("dictation hiccup, restarting")
				}
				d.Dictation.OnStopped = func(err error) {
					stopped <- err
				}
				if err := d.Listen(ctx); err != nil {
					return err
				}
				log.Info().Str("meeting_id", m.ID).Str("locale", locale).Msg("dictation started")

				g, gctx := errgroup.WithContext(ctx)
				g.Go(func() error {
					select {
					case <-rec.Drained():
					case <-gctx.Done():
					case err := <-stopped:
						return err
					}
					d.Dictation.StopListening()
					return nil
				})
				if err := g.Wait(); err != nil {
					return fmt.Errorf("dictation stopped: %w", err)
				}
				notes, _ := d.Notes.List(m.ID)
				log.Info().Int("notes", len(notes)).Msg("dictation finished")
				return nil
			})
		},
	}
	cmd.Flags().StringVar(&script, "script", "", "read recognition lines from a file instead of stdin")
	cmd.Flags().StringVar(&locale, "locale", "", "recognition locale (default from config)")
	return cmd
}

func configCmd() *cobra.Command {
	c := &cobra.Command{Use: "config", Short: "Manage meetline.yml"}
	c.AddCommand(configInitCmd())
	c.AddCommand(configShowCmd())
	c.AddCommand(configValidateCmd())
	return c
}

func configInitCmd() *cobra.Command {
	var force bool
	cmd := &cobra.Command{
		Use:   "init",
		Short: "Write the default meetline.yml into the workspace",
		RunE: func(cmd *cobra.Command, args []string) error {
			fs := afero.NewOsFs()
			workspace := viper.GetString("workspace")
			path := config.Path(workspace)
			if ok, _ := afero.Exists(fs, path); ok && !force {
				return fmt.Errorf("%s already exists (use --force to overwrite)", path)
			}
			if err := fs.MkdirAll(workspace, 0o755); err != nil {
				return err
			}
			if err := afero.WriteFile(fs, path, []byte(config.GenerateDefault()), 0o644); err != nil {
				return err
			}
			fmt.Printf("Wrote %s\n", path)
			return nil
		},
	}
	cmd.Flags().BoolVar(&force, "force", false, "overwrite an existing file")
	return cmd
}

func configShowCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "show",
		Short: "Show the effective configuration",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig()
			if err != nil {
				return err
			}
			if viper.GetBool("json") {
				return printJSON(cfg)
			}
			out, err := yaml.Marshal(cfg)
			if err != nil {
				return err
			}
			fmt.Print(string(out))
			return nil
		},
	}
}

func configValidateCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "validate",
		Short: "Validate meetline.yml",
		RunE: func(cmd *cobra.Command, args []string) error {
			if _, err := config.Load(afero.NewOsFs(), viper.GetString("workspace")); err != nil {
				return err
			}
			fmt.Println("config ok")
			return nil
		},
	}
}

func serveCmd() *cobra.Command {
	var addr, basePath string
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Start HTTP API server",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig()
			if err != nil {
				return err
			}
			if cmd.Flags().Changed("addr") {
				cfg.Server.Addr = addr
			}
			if cmd.Flags().Changed("base-path") {
				cfg.Server.BasePath = basePath
			}
			log := newLogger(cfg, "server")

			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			reg := prometheus.NewRegistry()
			reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
			rt, err := app.Open(ctx, viper.GetString("workspace"), cfg, log, reg)
			if err != nil {
				return err
			}
			defer rt.Close()

			handler, err := server.New(server.Config{
				Engine:   rt.Engine,
				BasePath: cfg.Server.BasePath,
				Logger:   log,
				Gatherer: reg,
			})
			if err != nil {
				return err
			}
			srv := &http.Server{Addr: cfg.Server.Addr, Handler: handler, ReadHeaderTimeout: 10 * time.Second}

			g, gctx := errgroup.WithContext(ctx)
			g.Go(func() error {
				log.Info().
					Str("addr", cfg.Server.Addr).
					Str("base_path", cfg.Server.BasePath).
					Msg("serving meetline API (OpenAPI at /openapi.json, Swagger UI at /docs)")
				if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
					return err
				}
				return nil
			})
			g.Go(func() error {
				<-gctx.Done()
				shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
				defer cancel()
				return srv.Shutdown(shutdownCtx)
			})
			return g.Wait()
		},
	}
	cmd.Flags().StringVar(&addr, "addr", "127.0.0.1:8080", "listen address (overrides server.addr)")
	cmd.Flags().StringVar(&basePath, "base-path", "/v0", "API base path (overrides server.base_path)")
	return cmd
}

func loadConfig() (*config.Config, error) {
	return app.LoadConfig(afero.NewOsFs(), viper.GetString("workspace"), viper.GetViper())
}

func newLogger(cfg *config.Config, component string) zerolog.Logger {
	return logging.New(logging.Config{
		Level:     cfg.Log.Level,
		Format:    cfg.Log.Format,
		Component: component,
	})
}

// withBackend talks to --server when set, otherwise opens the workspace.
func withBackend(ctx context.Context, fn func(context.Context, app.Backend) error) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	if base := viper.GetString("server"); base != "" {
		client := meetlinesdk.New(base)
		client.Timeout = cfg.Client.Timeout
		return fn(ctx, client)
	}
	rt, err := app.Open(ctx, viper.GetString("workspace"), cfg, newLogger(cfg, "engine"), nil)
	if err != nil {
		return err
	}
	defer rt.Close()
	return fn(ctx, app.LocalBackend{Engine: rt.Engine})
}

func withDesk(ctx context.Context, deskCfg meeting.Config, fn func(context.Context, *meeting.Desk) error) error {
	return withBackend(ctx, func(ctx context.Context, b app.Backend) error {
		d := meeting.NewDesk(b, deskCfg)
		defer d.Close()
		return fn(ctx, d)
	})
}

// analysisFailure shows the analysis service's own reason, or the hint when it
// gave none.
func analysisFailure(err error) error {
	var aerr *domain.AnalysisError
	if errors.As(err, &aerr) {
		return errors.New(aerr.Message())
	}
	return err
}

func parseNoteID(s string) (int64, error) {
	id, err := strconv.ParseInt(s, 10, 64)
	if err != nil || id <= 0 {
		return 0, fmt.Errorf("invalid note id %q", s)
	}
	return id, nil
}

func printJSONOrTable(v any) error {
	if viper.GetBool("json") {
		return printJSON(v)
	}
	switch x := v.(type) {
	case []domain.MeetingBrief:
		tw := newTable()
		tw.AppendHeader(table.Row{"ID", "Title", "Status", "Date", "Time"})
		for _, m := range x {
			tw.AppendRow(table.Row{m.ID, m.Title, m.Status, m.Date, m.Time})
		}
		fmt.Println(tw.Render())
	case domain.Meeting:
		tw := newTable()
		tw.AppendRow(table.Row{"ID", x.ID})
		tw.AppendRow(table.Row{"Title", x.Title})
		tw.AppendRow(table.Row{"Status", x.Status})
		tw.AppendRow(table.Row{"When", strings.TrimSpace(x.Date + " " + x.Time)})
		tw.AppendRow(table.Row{"Participants", strings.Join(x.ParticipantIDs, ", ")})
		tw.AppendRow(table.Row{"Agenda", x.Agenda})
		tw.AppendRow(table.Row{"Summary", x.Summary})
		tw.AppendRow(table.Row{"Tasks", strings.Join(x.RelatedTaskIDs, ", ")})
		if x.StartedAt != nil {
			tw.AppendRow(table.Row{"Started", x.StartedAt.Local().Format(time.DateTime)})
		}
		if x.EndedAt != nil {
			tw.AppendRow(table.Row{"Ended", x.EndedAt.Local().Format(time.DateTime)})
		}
		fmt.Println(tw.Render())
		if len(x.Notes) > 0 {
			return printJSONOrTable(x.Notes)
		}
	case []domain.Note:
		tw := newTable()
		tw.AppendHeader(table.Row{"ID", "Source", "Text", "Task", "Created"})
		for _, n := range x {
			task := ""
			if n.TaskID != nil {
				task = *n.TaskID
			}
			tw.AppendRow(table.Row{n.ID, n.Source, n.Text, task, n.CreatedAt.Local().Format(time.DateTime)})
		}
		fmt.Println(tw.Render())
	case domain.Note:
		return printJSONOrTable([]domain.Note{x})
	case domain.Task:
		tw := newTable()
		tw.AppendHeader(table.Row{"ID", "Title", "Status", "Meeting"})
		tw.AppendRow(table.Row{x.ID, x.Title, x.Status, x.MeetingID})
		fmt.Println(tw.Render())
	case domain.SummaryResult:
		if x.Empty() {
			fmt.Println("The analysis returned nothing.")
			return nil
		}
		if x.Summary != "" {
			fmt.Printf("Summary:\n  %s\n", x.Summary)
		}
		printSection("Tasks", x.Tasks)
		printSection("Decisions", x.Decisions)
		printSection("Questions", x.Questions)
	default:
		b, _ := json.MarshalIndent(v, "", "  ")
		fmt.Println(string(b))
	}
	return nil
}

func newTable() table.Writer {
	tw := table.NewWriter()
	tw.SetStyle(table.StyleLight)
	return tw
}

func printSection(title string, items []string) {
	if len(items) == 0 {
		return
	}
	fmt.Printf("%s:\n", title)
	for _, item := range items {
		fmt.Printf("  - %s\n", item)
	}
}

func printJSON(v any) error {
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

func optionalString(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}
