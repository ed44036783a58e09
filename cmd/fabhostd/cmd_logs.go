package main

import (
	"fmt"
	"net/url"
	"strings"

	"github.com/gorilla/websocket"
	"github.com/spf13/cobra"
)

// logFrame mirrors internal/api's wire envelope without importing the
// package (the CLI talks to the management API as an external client, the
// same contract any third-party tool would use).
type logFrame struct {
	Type  string   `json:"type"`
	Lines []string `json:"lines,omitempty"`
	Line  string   `json:"line,omitempty"`
}

func newLogsCmd() *cobra.Command {
	var addr string
	var follow bool
	var tail int
	var level string

	cmd := &cobra.Command{
		Use:   "logs",
		Short: "Stream the inference process's log history",
		RunE: func(cmd *cobra.Command, args []string) error {
			u, err := url.Parse(addr)
			if err != nil {
				return fmt.Errorf("invalid --addr %q: %w", addr, err)
			}
			switch u.Scheme {
			case "http":
				u.Scheme = "ws"
			case "https":
				u.Scheme = "wss"
			case "ws", "wss":
			default:
				u.Scheme = "ws"
			}
			u.Path = "/ws/logs"

			conn, _, err := websocket.DefaultDialer.Dial(u.String(), nil)
			if err != nil {
				return fmt.Errorf("connecting to management api at %s: %w", u.String(), err)
			}
			defer conn.Close()

			for {
				var frame logFrame
				if err := conn.ReadJSON(&frame); err != nil {
					return nil
				}
				switch frame.Type {
				case "history":
					lines := frame.Lines
					if level != "" {
						lines = filterByLevel(lines, level)
					}
					if tail > 0 && len(lines) > tail {
						lines = lines[len(lines)-tail:]
					}
					fmt.Println(strings.Join(lines, "\n"))
					if !follow {
						return nil
					}
				case "log":
					if level == "" || strings.Contains(strings.ToUpper(frame.Line), strings.ToUpper(level)) {
						fmt.Println(frame.Line)
					}
				}
			}
		},
	}

	cmd.Flags().StringVar(&addr, "addr", "http://127.0.0.1:8090", "management API address")
	cmd.Flags().BoolVar(&follow, "follow", false, "keep streaming new log lines")
	cmd.Flags().IntVar(&tail, "tail", 0, "only print the last N lines of history")
	cmd.Flags().StringVar(&level, "level", "", "only show lines containing this level marker (e.g. ERROR, WARN)")
	return cmd
}

func filterByLevel(lines []string, level string) []string {
	level = strings.ToUpper(level)
	out := make([]string, 0, len(lines))
	for _, line := range lines {
		if strings.Contains(strings.ToUpper(line), level) {
			out = append(out, line)
		}
	}
	return out
}
