package main

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"path/filepath"
	"time"

	"github.com/spf13/cobra"
)

// newWatchCmd manages the inbox directories of a running server over HTTP.
func newWatchCmd(_ *rootOptions) *cobra.Command {
	var serverURL string
	cmd := &cobra.Command{
		Use:   "watch",
		Short: "Manage inbox directories of a running server",
	}
	cmd.PersistentFlags().StringVar(&serverURL, "server", "http://localhost:8080", "server URL")
	client := &http.Client{Timeout: 30 * time.Second}

	cmd.AddCommand(&cobra.Command{
		Use:   "add <path>",
		Short: "Add an inbox directory and import what it holds",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			path, err := filepath.Abs(args[0])
			if err != nil {
				return err
			}
			body, _ := json.Marshal(map[string]interface{}{"path": path, "sync": true})
			resp, err := client.Post(serverURL+"/api/v1/watch/directories", "application/json", bytes.NewReader(body))
			if err != nil {
				return fmt.Errorf("request failed: %w", err)
			}
			defer resp.Body.Close()
			if err := expectStatus(resp, http.StatusCreated); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Added: %s\n", path)
			return nil
		},
	})

	cmd.AddCommand(&cobra.Command{
		Use:   "remove <path>",
		Short: "Stop watching an inbox directory",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			path, err := filepath.Abs(args[0])
			if err != nil {
				return err
			}
			req, err := http.NewRequest(http.MethodDelete,
				serverURL+"/api/v1/watch/directories?path="+url.QueryEscape(path), nil)
			if err != nil {
				return err
			}
			resp, err := client.Do(req)
			if err != nil {
				return fmt.Errorf("request failed: %w", err)
			}
			defer resp.Body.Close()
			if err := expectStatus(resp, http.StatusOK); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Removed: %s\n", path)
			return nil
		},
	})

	cmd.AddCommand(&cobra.Command{
		Use:   "list",
		Short: "List inbox directories",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			resp, err := client.Get(serverURL + "/api/v1/watch/directories")
			if err != nil {
				return fmt.Errorf("request failed: %w", err)
			}
			defer resp.Body.Close()
			if err := expectStatus(resp, http.StatusOK); err != nil {
				return err
			}
			var out struct {
				Directories []string `json:"directories"`
			}
			if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
				return fmt.Errorf("parse failed: %w", err)
			}
			for _, d := range out.Directories {
				fmt.Fprintln(cmd.OutOrStdout(), d)
			}
			return nil
		},
	})
	return cmd
}

func expectStatus(resp *http.Response, want int) error {
	if resp.StatusCode == want {
		return nil
	}
	b, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
	return fmt.Errorf("server returned %d: %s", resp.StatusCode, bytes.TrimSpace(b))
}
