package cmd

import (
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"

	"github.com/spf13/cobra"

	"github.com/bnema/procure-cli/internal/gateway"
)

func newRequestCmd(app *app) *cobra.Command {
	var method string
	var data string
	var contentType string
	var queryPairs []string
	var skipAuth bool

	cmd := &cobra.Command{
		Use:   "request <path>",
		Short: "Send an authenticated API request through the gateway",
		Long:  "request sends one API call with the stored bearer token attached. An expired token is renewed silently and the call replayed, so a valid refresh token means the request just works.",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			// Renewal outcomes from this call must reach the lifecycle
			// manager so a rejected refresh token ends the session.
			manager, err := app.newManager()
			if err != nil {
				return err
			}
			if err := manager.Start(cmd.Context()); err != nil {
				return err
			}

			query, err := parseQueryPairs(queryPairs)
			if err != nil {
				return err
			}

			resp, err := app.gateway.Do(cmd.Context(), gateway.Request{
				Method:      strings.ToUpper(method),
				Path:        args[0],
				Query:       query,
				Body:        []byte(data),
				ContentType: contentType,
				SkipAuth:    skipAuth,
			})
			if err != nil {
				return err
			}
			defer func() { _ = resp.Body.Close() }()

			if _, err := io.Copy(cmd.OutOrStdout(), resp.Body); err != nil {
				return fmt.Errorf("read response body: %w", err)
			}

			if resp.StatusCode >= http.StatusBadRequest {
				return fmt.Errorf("request failed: %s", resp.Status)
			}
			return nil
		},
	}

	cmd.Flags().StringVarP(&method, "method", "X", http.MethodGet, "HTTP method")
	cmd.Flags().StringVarP(&data, "data", "d", "", "Request body")
	cmd.Flags().StringVar(&contentType, "content-type", "application/json", "Request body content type")
	cmd.Flags().StringArrayVarP(&queryPairs, "query", "q", nil, "Query parameter as key=value (repeatable)")
	cmd.Flags().BoolVar(&skipAuth, "skip-auth", false, "Send without a bearer token")

	return cmd
}

func parseQueryPairs(pairs []string) (url.Values, error) {
	if len(pairs) == 0 {
		return nil, nil
	}

	query := url.Values{}
	for _, pair := range pairs {
		key, value, found := strings.Cut(pair, "=")
		if !found || key == "" {
			return nil, fmt.Errorf("invalid query parameter %q: want key=value", pair)
		}
		query.Add(key, value)
	}
	return query, nil
}
