// File: cmd/encode.go
package cmd

import (
	"fmt"
	"strings"

	json "github.com/json-iterator/go"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/xkilldash9x/polyplug/api/schemas"
	"github.com/xkilldash9x/polyplug/internal/codec"
	"github.com/xkilldash9x/polyplug/internal/locator"
	"github.com/xkilldash9x/polyplug/internal/observability"
)

func newEncodeCmd() *cobra.Command {
	var htmlPath, query string
	cmd := &cobra.Command{
		Use:   "encode",
		Short: "Print the portable JSON form of every node matching a query",
		Long: `Prints one JSON line per node matching --query. The query is either shorthand
("#id", ".class", "tag" or a css selector) or a JSON query object such as {"tag":"li"}.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			logger := observability.GetLogger().Named("encode")

			q, err := parseQueryArg(query)
			if err != nil {
				return err
			}
			doc, err := loadDocument(htmlPath, logger)
			if err != nil {
				return err
			}

			nodes, err := locator.New(doc, logger).Resolve(q)
			if err != nil {
				return err
			}
			c := codec.New(doc, logger)
			out := cmd.OutOrStdout()
			for _, n := range nodes {
				text, err := c.Serialize(n)
				if err != nil {
					return fmt.Errorf("failed to encode %s: %w", n.NodeName(), err)
				}
				fmt.Fprintln(out, text)
			}
			logger.Debug("Encoded matches", zap.String("query", q.String()), zap.Int("count", len(nodes)))
			return nil
		},
	}

	cmd.Flags().StringVar(&htmlPath, "html", "", "HTML page to load")
	cmd.Flags().StringVarP(&query, "query", "q", "", "query shorthand or JSON query object")
	_ = cmd.MarkFlagRequired("html")
	_ = cmd.MarkFlagRequired("query")
	return cmd
}

func parseQueryArg(s string) (*schemas.Query, error) {
	if strings.HasPrefix(strings.TrimSpace(s), "{") {
		var q schemas.Query
		if err := json.UnmarshalFromString(s, &q); err != nil {
			return nil, fmt.Errorf("invalid query object: %w", err)
		}
		return &q, nil
	}
	return schemas.ParseQuery(s)
}
