package main

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"os"
	"strings"
	"time"

	"github.com/spf13/cobra"

	leads "github.com/osr-alliance/backend-lib-leads"
)

type importRequest struct {
	Leads []leads.Input `json:"leads"`
}

func newImportCmd() *cobra.Command {
	var (
		server  string
		dryRun  bool
		timeout time.Duration
	)

	cmd := &cobra.Command{
		Use:   "import FILE",
		Short: "Normalize a csv file and import it into a running leadsvc",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			client := &http.Client{Timeout: timeout}
			return runImport(cmd.Context(), cmd.OutOrStdout(), client, server, args[0], dryRun)
		},
	}

	flags := cmd.Flags()
	flags.StringVar(&server, "server", envOr("LEADS_SERVER", "http://127.0.0.1:8000"), "base url of the leadsvc to import into")
	flags.BoolVar(&dryRun, "dry-run", false, "print the normalized leads instead of importing them")
	flags.DurationVar(&timeout, "timeout", 30*time.Second, "http timeout")
	return cmd
}

func runImport(ctx context.Context, out io.Writer, client *http.Client, server, path string, dryRun bool) error {
	f, err := os.Open(path)
	if err != nil {
		return err
	}
	defer f.Close()

	ins, err := leads.ReadInputs(f, leads.NewNormalizer())
	if err != nil {
		return fmt.Errorf("%s: %w", path, err)
	}

	body, err := json.Marshal(&importRequest{Leads: ins})
	if err != nil {
		return err
	}

	if dryRun {
		var buf bytes.Buffer
		if err := json.Indent(&buf, body, "", "  "); err != nil {
			return err
		}
		buf.WriteByte('\n')
		_, err = buf.WriteTo(out)
		return err
	}

	url := strings.TrimRight(server, "/") + "/api/leads/import"
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := client.Do(req)
	if err != nil {
		return fmt.Errorf("posting to %s: %w", url, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusCreated {
		msg := &messageResponse{}
		if err := json.NewDecoder(resp.Body).Decode(msg); err != nil || msg.Message == "" {
			return fmt.Errorf("import failed: %s", resp.Status)
		}
		if len(msg.Errors) > 0 {
			return fmt.Errorf("import failed: %s: %s %v", resp.Status, msg.Message, msg.Errors)
		}
		return fmt.Errorf("import failed: %s: %s", resp.Status, msg.Message)
	}

	res := &importResponse{}
	if err := json.NewDecoder(resp.Body).Decode(res); err != nil {
		return fmt.Errorf("decoding response: %w", err)
	}

	fmt.Fprintln(out, res.Message)
	return nil
}
