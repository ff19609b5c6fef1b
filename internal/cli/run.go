package cli

import (
	"bufio"
	"bytes"
	"context"
	"crypto/tls"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"strings"

	"github.com/bufbuild/connect-go"
	"github.com/spf13/cobra"
	"golang.org/x/net/http2"

	"github.com/patchpilot/patchpilot/internal/rpc"
	coderpc "github.com/patchpilot/patchpilot/internal/rpc/code"
	"github.com/patchpilot/patchpilot/internal/rpc/connectjson"
	"github.com/patchpilot/patchpilot/internal/stream"
)

// NewRunCmd wires the run command to stream a coding session from the daemon.
func NewRunCmd(opts *Options) *cobra.Command {
	var repoURL string
	var modelOverride string

	cmd := &cobra.Command{
		Use:   "run \"<prompt>\"",
		Short: "Run a coding session against a repository and stream progress",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig(opts)
			if err != nil {
				return err
			}

			prompt := args[0]
			if strings.TrimSpace(prompt) == "" {
				return fmt.Errorf("prompt cannot be empty")
			}
			if strings.TrimSpace(repoURL) == "" {
				return fmt.Errorf("--repo is required")
			}

			ctx, cancel := context.WithCancel(cmd.Context())
			defer cancel()

			reqBody := rpc.CodeRequest{
				RepoURL: repoURL,
				Prompt:  prompt,
				Model:   modelOverride,
			}

			baseURL := daemonURL(cfg.Server.Addr)
			switch strings.ToLower(strings.TrimSpace(cfg.Server.Transport)) {
			case "connect":
				return runConnect(ctx, cmd, baseURL+coderpc.ConnectCodeProcedure, reqBody)
			case "ndjson":
				return runHTTPStream(ctx, cmd, baseURL+"/code", reqBody, decodeNDJSON)
			default:
				return runHTTPStream(ctx, cmd, baseURL+"/code", reqBody, decodeSSE)
			}
		},
	}

	cmd.Flags().StringVar(&repoURL, "repo", "", "HTTPS GitHub URL of the repository to change")
	cmd.Flags().StringVar(&modelOverride, "model", "", "Override model id for this session")
	return cmd
}

func daemonURL(addr string) string {
	if strings.HasPrefix(addr, "http://") || strings.HasPrefix(addr, "https://") {
		return addr
	}
	if strings.HasPrefix(addr, ":") {
		return "http://localhost" + addr
	}
	return "http://" + addr
}

// lineDecoder turns one transport line into an event, skipping blanks.
type lineDecoder func(line []byte) (stream.Event, bool, error)

func decodeNDJSON(line []byte) (stream.Event, bool, error) {
	if len(bytes.TrimSpace(line)) == 0 {
		return stream.Event{}, false, nil
	}
	var ev stream.Event
	if err := json.Unmarshal(line, &ev); err != nil {
		return stream.Event{}, false, fmt.Errorf("decode event: %w", err)
	}
	return ev, true, nil
}

func decodeSSE(line []byte) (stream.Event, bool, error) {
	trimmed := bytes.TrimSpace(line)
	if len(trimmed) == 0 || !bytes.HasPrefix(trimmed, []byte("data: ")) {
		return stream.Event{}, false, nil
	}
	var ev stream.Event
	if err := json.Unmarshal(bytes.TrimPrefix(trimmed, []byte("data: ")), &ev); err != nil {
		return stream.Event{}, false, fmt.Errorf("decode event: %w", err)
	}
	return ev, true, nil
}

func runHTTPStream(ctx context.Context, cmd *cobra.Command, url string, reqBody rpc.CodeRequest, decode lineDecoder) error {
	data, err := json.Marshal(reqBody)
	if err != nil {
		return err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(data))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 300 {
		return fmt.Errorf("daemon returned status %d", resp.StatusCode)
	}

	scanner := bufio.NewScanner(resp.Body)
	scanner.Buffer(make([]byte, 64*1024), stream.MaxRecordSize)
	for scanner.Scan() {
		ev, ok, err := decode(scanner.Bytes())
		if err != nil {
			return err
		}
		if !ok {
			continue
		}
		if err := renderEvent(cmd, ev); err != nil {
			return err
		}
	}
	return scanner.Err()
}

func runConnect(ctx context.Context, cmd *cobra.Command, url string, reqBody rpc.CodeRequest) error {
	client := connect.NewClient[rpc.CodeStreamRequest, stream.Event](buildH2CClient(), url, connect.WithCodec(connectjson.Codec{}))
	bidi := client.CallBidiStream(ctx)

	if err := bidi.Send(&rpc.CodeStreamRequest{Run: &reqBody}); err != nil {
		return err
	}

	// propagate cancellation to the daemon.
	go func() {
		<-ctx.Done()
		_ = bidi.Send(&rpc.CodeStreamRequest{Cancel: true})
		_ = bidi.CloseRequest()
	}()

	for {
		ev, err := bidi.Receive()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return err
		}
		if err := renderEvent(cmd, *ev); err != nil {
			return err
		}
	}
	_ = bidi.CloseRequest()
	return bidi.CloseResponse()
}

func renderEvent(cmd *cobra.Command, ev stream.Event) error {
	out := cmd.OutOrStdout()
	switch ev.Type {
	case stream.KindStatus, stream.KindSandbox, stream.KindInfo:
		fmt.Fprintf(out, "[%s] %s\n", ev.Type, ev.Message)
	case stream.KindAnalysis, stream.KindAIAnalysis:
		fmt.Fprintf(out, "[analysis] %s\n", ev.Message)
	case stream.KindGit:
		fmt.Fprintf(out, "[git] %s\n", ev.Message)
	case stream.KindFileWrite:
		fmt.Fprintf(out, "[write] %s\n", ev.File)
	case stream.KindFileWriteComplete, stream.KindAIToolResult:
		// write completions render with the write itself
	case stream.KindCompletedChange:
		fmt.Fprintf(out, "[change] %s: %s\n", ev.File, ev.Message)
	case stream.KindCommand:
		fmt.Fprintf(out, "[cmd] %s\n", ev.Command)
	case stream.KindCommandOutput:
		fmt.Fprintln(out, ev.Output)
	case stream.KindCommandError:
		fmt.Fprintf(out, "[cmd stderr] %s\n", ev.Output)
	case stream.KindCompletion:
		fmt.Fprintf(out, "\n%s\n", ev.Message)
	case stream.KindError:
		if ev.Fatal {
			return fmt.Errorf("session failed: %s", ev.Message)
		}
		fmt.Fprintf(out, "[warn] %s\n", ev.Message)
	}
	return nil
}

func buildH2CClient() *http.Client {
	return &http.Client{
		Transport: &http2.Transport{
			AllowHTTP: true,
			DialTLSContext: func(ctx context.Context, network, addr string, _ *tls.Config) (net.Conn, error) {
				var d net.Dialer
				return d.DialContext(ctx, network, addr)
			},
		},
	}
}
