package app

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/ggonzalez94/insights-mcp/internal/dispatch"
	clierr "github.com/ggonzalez94/insights-mcp/internal/errors"
	"github.com/ggonzalez94/insights-mcp/internal/model"
	"github.com/ggonzalez94/insights-mcp/internal/snippet"
	"github.com/ggonzalez94/insights-mcp/internal/transport"
)

func (s *runtimeState) newServeCommand() *cobra.Command {
	var callTimeout time.Duration
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Serve the MCP tools over stdio, sse or http",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			e, err := s.ensureEngine()
			if err != nil {
				return err
			}
			ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			srv := transport.New(e.dispatcher, transport.Options{
				Metrics:     e.metrics,
				Logger:      s.log,
				CallTimeout: callTimeout,
			})
			if err := srv.Serve(ctx, s.settings.Transport, s.settings.Addr, s.runner.stdin, s.runner.stdout); err != nil {
				return clierr.Wrap(clierr.CodeNetwork, "serve "+s.settings.Transport, err)
			}
			return nil
		},
	}
	cmd.Flags().StringVar(&s.flags.Transport, "transport", "", "Transport: stdio, sse or http")
	cmd.Flags().StringVar(&s.flags.Addr, "addr", "", "Listen address for sse and http")
	cmd.Flags().DurationVar(&callTimeout, "call-timeout", 0, "Deadline for each invoke_resource_action call (0 disables)")
	return cmd
}

func (s *runtimeState) newResourcesCommand() *cobra.Command {
	root := &cobra.Command{Use: "resources", Short: "Browse resources, actions and input schemas"}

	var topic string
	list := &cobra.Command{
		Use:   "list",
		Short: "List available resources",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			e, err := s.ensureEngine()
			if err != nil {
				return err
			}
			data, err := e.dispatcher.ListResources(topic)
			if err != nil {
				return describe(err)
			}
			return s.emitSuccess(trimRootPath(cmd.CommandPath()), data, nil)
		},
	}
	list.Flags().StringVar(&topic, "topic", "", "Only resources in this topic")

	actions := &cobra.Command{
		Use:   "actions <resource>",
		Short: "List the actions of a resource",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			e, err := s.ensureEngine()
			if err != nil {
				return err
			}
			data, err := e.dispatcher.ListResourceActions(args[0])
			if err != nil {
				return describe(err)
			}
			return s.emitSuccess(trimRootPath(cmd.CommandPath()), data, nil)
		},
	}

	schema := &cobra.Command{
		Use:   "schema <resource> <action>",
		Short: "Print the input schema of an action",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			e, err := s.ensureEngine()
			if err != nil {
				return err
			}
			data, err := e.dispatcher.GetResourceActionSchema(args[0], args[1])
			if err != nil {
				return describe(err)
			}
			return s.emitSuccess(trimRootPath(cmd.CommandPath()), data, nil)
		},
	}

	root.AddCommand(list)
	root.AddCommand(actions)
	root.AddCommand(schema)
	return root
}

func (s *runtimeState) newInvokeCommand() *cobra.Command {
	var payloadArg, payloadFile string
	cmd := &cobra.Command{
		Use:   "invoke <resource> <action>",
		Short: "Invoke an action once and print the upstream result",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			payload, err := s.readPayload(payloadArg, payloadFile)
			if err != nil {
				return err
			}
			e, err := s.ensureEngine()
			if err != nil {
				return err
			}

			res := e.dispatcher.Invoke(cmd.Context(), args[0], args[1], payload)
			s.lastInvocation = &model.InvocationMeta{
				Resource:  args[0],
				Action:    args[1],
				Executor:  res.Executor,
				Status:    res.Status,
				LatencyMS: res.Latency.Milliseconds(),
			}
			if res.IsError {
				return clierr.New(res.Code, res.Text)
			}
			return s.emitSuccess(trimRootPath(cmd.CommandPath()), model.InvokeResult{
				Status: res.Status,
				Body:   decodeBody(res.Body),
			}, nil)
		},
	}
	cmd.Flags().StringVar(&payloadArg, "payload", "{}", "Payload as a JSON object")
	cmd.Flags().StringVar(&payloadFile, "payload-file", "", "Read the payload from a file (- for stdin)")
	return cmd
}

func (s *runtimeState) newSnippetCommand() *cobra.Command {
	var language, payloadArg string
	cmd := &cobra.Command{
		Use:   "snippet <resource> <action>",
		Short: "Generate example client code for an action",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			payload, err := s.readPayload(payloadArg, "")
			if err != nil {
				return err
			}
			e, err := s.ensureEngine()
			if err != nil {
				return err
			}
			code, err := e.dispatcher.Snippet(args[0], args[1], language, payload)
			if err != nil {
				return describe(err)
			}
			path := trimRootPath(cmd.CommandPath())
			if s.settings.OutputMode == "plain" && s.settings.ResultsOnly {
				return s.emitSuccess(path, code, nil)
			}
			lang, _ := snippet.NormalizeLanguage(language)
			return s.emitSuccess(path, model.Snippet{
				Resource: args[0],
				Action:   args[1],
				Language: lang,
				Code:     code,
			}, nil)
		},
	}
	cmd.Flags().StringVar(&language, "language", snippet.LangCurl, "Language: "+strings.Join(snippet.Languages(), ", "))
	cmd.Flags().StringVar(&payloadArg, "payload", "{}", "Example payload as a JSON object")
	return cmd
}

func (s *runtimeState) newChainsCommand() *cobra.Command {
	root := &cobra.Command{Use: "chains", Short: "Chain endpoint commands"}
	list := &cobra.Command{
		Use:   "list",
		Short: "List known chains with their effective endpoints",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			e, err := s.ensureEngine()
			if err != nil {
				return err
			}
			chains := e.chains.Chains()
			data := make([]model.ChainInfo, 0, len(chains))
			for _, c := range chains {
				data = append(data, model.ChainInfo{
					ChainID:    c.CosmosID,
					EVMChainID: c.EVMID,
					CAIP2:      c.CAIP2(),
					Name:       c.Name,
					EVMRPC:     c.EVMRPC,
					CosmosRPC:  c.CosmosRPC,
					CosmosLCD:  c.CosmosLCD,
					Gateway:    c.Gateway,
				})
			}
			return s.emitSuccess(trimRootPath(cmd.CommandPath()), data, nil)
		},
	}
	root.AddCommand(list)
	return root
}

func (s *runtimeState) newHistoryCommand() *cobra.Command {
	root := &cobra.Command{Use: "history", Short: "Inspect the invocation journal"}
	var limit int
	list := &cobra.Command{
		Use:   "list",
		Short: "List recent invocations, newest first",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if !s.settings.JournalEnabled {
				return clierr.New(clierr.CodeConfig, "journal is disabled")
			}
			e, err := s.ensureEngine()
			if err != nil {
				return err
			}
			if e.journal == nil {
				return clierr.New(clierr.CodeConfig, "journal is unavailable")
			}
			entries, err := e.journal.Recent(cmd.Context(), limit)
			if err != nil {
				return clierr.Wrap(clierr.CodeInternal, "read journal", err)
			}
			if entries == nil {
				return s.emitSuccess(trimRootPath(cmd.CommandPath()), []any{}, nil)
			}
			return s.emitSuccess(trimRootPath(cmd.CommandPath()), entries, nil)
		},
	}
	list.Flags().IntVar(&limit, "limit", 20, "Maximum entries to return")
	root.AddCommand(list)
	return root
}

// readPayload decodes a JSON payload from the flag or a file. A file wins.
func (s *runtimeState) readPayload(arg, file string) (map[string]any, error) {
	raw := []byte(arg)
	if file != "" {
		var err error
		if file == "-" {
			raw, err = io.ReadAll(s.runner.stdin)
		} else {
			raw, err = os.ReadFile(file)
		}
		if err != nil {
			return nil, clierr.Wrap(clierr.CodeUsage, "read payload file", err)
		}
	}
	if strings.TrimSpace(string(raw)) == "" {
		return map[string]any{}, nil
	}
	var payload map[string]any
	if err := json.Unmarshal(raw, &payload); err != nil {
		return nil, clierr.Wrap(clierr.CodeUsage, "parse payload", fmt.Errorf("payload must be a JSON object: %w", err))
	}
	if payload == nil {
		return nil, clierr.New(clierr.CodeUsage, "payload must be a JSON object, got null")
	}
	return payload, nil
}

// describe flattens a dispatcher error into the same diagnostic an MCP client receives.
func describe(err error) error {
	return clierr.New(clierr.CodeOf(err), dispatch.Describe(err))
}

// decodeBody returns parsed JSON when the body is JSON and the raw text otherwise.
func decodeBody(body string) any {
	trimmed := strings.TrimSpace(body)
	if trimmed == "" {
		return nil
	}
	var v any
	if err := json.Unmarshal([]byte(trimmed), &v); err != nil {
		return body
	}
	return v
}
