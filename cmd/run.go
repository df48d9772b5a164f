// File: cmd/run.go
package cmd

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"strings"

	"github.com/hpcloud/tail"
	"github.com/mitchellh/go-homedir"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/xkilldash9x/polyplug/internal/observability"
)

// maxMessageSize bounds one line of the message feed.
const maxMessageSize = 16 * 1024 * 1024

type runOptions struct {
	htmlPath     string
	messagesPath string
	follow       bool
	poll         bool
	fires        []string
	dump         bool
}

func newRunCmd() *cobra.Command {
	opts := runOptions{}
	cmd := &cobra.Command{
		Use:   "run",
		Short: "Feed JSON messages to a bridge over an HTML page and print its output signals",
		Long: `Loads an HTML page, then feeds it one JSON message per line from --messages
(stdin when omitted or "-"). Every output signal is printed to stdout as one JSON line.
After the feed ends, each --fire QUERY:EVENT is dispatched and --dump prints the final HTML.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg := configFrom(cmd.Context())
			// Flags bound through viper win over the raw flag values.
			opts.follow = cfg.Run.Follow
			opts.poll = cfg.Run.Poll
			opts.dump = cfg.Run.Dump
			return runBridge(cmd.Context(), cmd, opts)
		},
	}

	cmd.Flags().StringVar(&opts.htmlPath, "html", "", "HTML page to load")
	cmd.Flags().StringVarP(&opts.messagesPath, "messages", "m", "-", "file of JSON messages, one per line (- for stdin)")
	cmd.Flags().Bool("follow", false, "keep reading appended messages until interrupted")
	cmd.Flags().Bool("poll", false, "with --follow, poll for changes instead of using inotify")
	cmd.Flags().StringArrayVar(&opts.fires, "fire", nil, "dispatch EVENT on nodes matching QUERY after the feed (QUERY:EVENT, repeatable)")
	cmd.Flags().Bool("dump", false, "print the final HTML after the feed")
	_ = cmd.MarkFlagRequired("html")
	return cmd
}

func runBridge(ctx context.Context, cmd *cobra.Command, opts runOptions) error {
	logger := observability.GetLogger().Named("run")
	cfg := configFrom(ctx)

	specs, err := parseFireSpecs(opts.fires)
	if err != nil {
		return err
	}
	if opts.follow && opts.messagesPath == "-" {
		return fmt.Errorf("--follow requires a --messages file")
	}

	doc, err := loadDocument(opts.htmlPath, logger)
	if err != nil {
		return err
	}
	br, err := newBridge(doc, cfg, logger)
	if err != nil {
		return err
	}

	out := cmd.OutOrStdout()
	printer := newSignalPrinter(out, logger)
	unsubscribe := br.Subscribe(printer.Print)
	defer unsubscribe()

	lines := make(chan string)
	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		defer close(lines)
		if opts.follow {
			return followMessages(gctx, opts.messagesPath, opts.poll, lines, logger)
		}
		return readMessages(gctx, cmd.InOrStdin(), opts.messagesPath, lines)
	})

	count := 0
	g.Go(func() error {
		// The bridge is fed from this goroutine only.
		for line := range lines {
			if strings.TrimSpace(line) == "" {
				continue
			}
			br.ReceiveMessage(line)
			count++
		}
		return nil
	})

	if err := g.Wait(); err != nil {
		return err
	}
	logger.Info("Message feed finished", zap.Int("messages", count), zap.Int("listeners", br.Listeners()))

	for _, spec := range specs {
		ran, err := fire(doc, br, spec, logger)
		if err != nil {
			return fmt.Errorf("failed to fire %s on %s: %w", spec.eventType, spec.query, err)
		}
		logger.Debug("Fired event", zap.String("query", spec.query.String()), zap.String("event", spec.eventType), zap.Int("listeners", ran))
	}

	if opts.dump {
		if err := doc.Render(out); err != nil {
			return fmt.Errorf("failed to render document: %w", err)
		}
		fmt.Fprintln(out)
	}
	return nil
}

// readMessages sends each line of the feed until EOF.
func readMessages(ctx context.Context, stdin io.Reader, path string, lines chan<- string) error {
	in := stdin
	if path != "-" {
		f, err := openPath(path)
		if err != nil {
			return err
		}
		defer f.Close()
		in = f
	}

	scanner := bufio.NewScanner(in)
	scanner.Buffer(make([]byte, 64*1024), maxMessageSize)
	for scanner.Scan() {
		select {
		case lines <- scanner.Text():
		case <-ctx.Done():
			return ctx.Err()
		}
	}
	if err := scanner.Err(); err != nil {
		return fmt.Errorf("failed to read messages: %w", err)
	}
	return nil
}

// followMessages tails path until ctx ends. Cancellation is the normal way
// out, so it is not reported as an error.
func followMessages(ctx context.Context, path string, poll bool, lines chan<- string, logger *zap.Logger) error {
	expanded, err := homedir.Expand(path)
	if err != nil {
		return fmt.Errorf("failed to expand path %q: %w", path, err)
	}
	t, err := tail.TailFile(expanded, tail.Config{
		Follow:    true,
		ReOpen:    true,
		MustExist: true,
		Poll:      poll,
		Logger:    tail.DiscardingLogger,
	})
	if err != nil {
		return fmt.Errorf("failed to follow %q: %w", path, err)
	}
	defer t.Cleanup()
	defer func() { _ = t.Stop() }()

	logger.Info("Following message file", zap.String("path", expanded))
	for {
		select {
		case <-ctx.Done():
			return nil
		case line, ok := <-t.Lines:
			if !ok {
				return t.Err()
			}
			if line.Err != nil {
				return fmt.Errorf("failed to follow %q: %w", path, line.Err)
			}
			select {
			case lines <- line.Text:
			case <-ctx.Done():
				return nil
			}
		}
	}
}
