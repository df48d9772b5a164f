// File: cmd/script.go
package cmd

import (
	"fmt"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/xkilldash9x/polyplug/internal/jsexec"
	"github.com/xkilldash9x/polyplug/internal/observability"
)

type scriptOptions struct {
	htmlPath   string
	scriptPath string
	fires      []string
	dump       bool
}

func newScriptCmd() *cobra.Command {
	opts := scriptOptions{}
	cmd := &cobra.Command{
		Use:   "script SCRIPT.js",
		Short: "Run a JavaScript program against a bridge over an HTML page",
		Long: `Runs SCRIPT.js in an embedded JavaScript runtime. The script talks to the page
through polyplug.send(message) and receives event forwards through polyplug.onEvent(fn).
After the script finishes, each --fire QUERY:EVENT is dispatched and its handlers run.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			opts.scriptPath = args[0]
			opts.dump = configFrom(cmd.Context()).Run.Dump
			return runScript(cmd, opts)
		},
	}

	cmd.Flags().StringVar(&opts.htmlPath, "html", "", "HTML page to load")
	cmd.Flags().StringArrayVar(&opts.fires, "fire", nil, "dispatch EVENT on nodes matching QUERY after the script (QUERY:EVENT, repeatable)")
	cmd.Flags().Bool("dump", false, "print the final HTML")
	cmd.Flags().Duration("timeout", 0, "limit for each script run (default from script.timeout)")
	_ = cmd.MarkFlagRequired("html")
	return cmd
}

func runScript(cmd *cobra.Command, opts scriptOptions) error {
	ctx := cmd.Context()
	cfg := configFrom(ctx)
	logger := observability.GetLogger().Named("script")

	specs, err := parseFireSpecs(opts.fires)
	if err != nil {
		return err
	}
	source, err := readPath(opts.scriptPath)
	if err != nil {
		return err
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

	host := jsexec.NewHost(br, logger, jsexec.WithTimeout(cfg.Script.Timeout))
	defer host.Close()

	if err := host.Run(ctx, string(source)); err != nil {
		return fmt.Errorf("script %s failed: %w", opts.scriptPath, err)
	}

	for _, spec := range specs {
		var fireErr error
		err := host.Fire(ctx, func() {
			_, fireErr = fire(doc, br, spec, logger)
		})
		if err == nil {
			err = fireErr
		}
		if err != nil {
			return fmt.Errorf("failed to fire %s on %s: %w", spec.eventType, spec.query, err)
		}
	}
	logger.Debug("Script finished", zap.Int("listeners", br.Listeners()))

	if opts.dump {
		if err := doc.Render(out); err != nil {
			return fmt.Errorf("failed to render document: %w", err)
		}
		fmt.Fprintln(out)
	}
	return nil
}
