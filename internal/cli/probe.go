package cli

import (
	"context"
	"crypto/tls"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"slices"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"

	"github.com/raskyld/ipywire"
	"github.com/raskyld/ipywire/pkg/comm"
	"github.com/raskyld/ipywire/pkg/commquic"
	"github.com/raskyld/ipywire/pkg/commws"
)

type probeOptions struct {
	url      string
	quicAddr string
	insecure bool
	timeout  time.Duration
	json     bool
}

type bulkState struct {
	Method      string                     `json:"method"`
	States      map[string]json.RawMessage `json:"states"`
	BufferPaths [][]any                    `json:"buffer_paths"`
}

func newProbeCmd() *cobra.Command {
	opts := probeOptions{}

	cmd := &cobra.Command{
		Use:   "probe",
		Short: "Connect as a frontend and print the state of every widget",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			if (opts.url == "") == (opts.quicAddr == "") {
				return errors.New("exactly one of --url and --quic is required")
			}
			logger := loggerFromContext(cmd.Context(), cmd.ErrOrStderr(), "warn")
			return probe(cmd.Context(), cmd.OutOrStdout(), opts, slog.New(slogHandler(logger)))
		},
	}

	cmd.Flags().StringVar(&opts.url, "url", "", "WebSocket URL of a kernel, e.g. ws://127.0.0.1:8888/ws")
	cmd.Flags().StringVar(&opts.quicAddr, "quic", "", "QUIC address of a kernel")
	cmd.Flags().BoolVar(&opts.insecure, "insecure", false, "skip the verification of the QUIC certificate")
	cmd.Flags().DurationVar(&opts.timeout, "timeout", 10*time.Second, "give up after this long")
	cmd.Flags().BoolVar(&opts.json, "json", false, "print the raw states as JSON")
	return cmd
}

func probe(ctx context.Context, out io.Writer, opts probeOptions, logger *slog.Logger) error {
	ctx, cancel := context.WithTimeout(ctx, opts.timeout)
	defer cancel()

	// The kernel publishes its widgets as soon as the session starts, they
	// must not be rejected before the control comm is up.
	commOpts := []comm.Option{
		comm.WithLog(logger.Handler()),
		comm.WithTarget(ipywire.TargetWidget, func(comm.Comm, comm.Message) (comm.Handler, error) {
			return comm.HandlerFuncs{}, nil
		}),
	}

	var (
		ep  *comm.Endpoint
		err error
	)
	if opts.url != "" {
		ep, err = commws.Dial(ctx, opts.url, commOpts...)
	} else {
		ep, err = commquic.Dial(ctx, opts.quicAddr, &tls.Config{
			InsecureSkipVerify: opts.insecure,
			MinVersion:         tls.VersionTLS13,
		}, commOpts...)
	}
	if err != nil {
		return err
	}
	defer ep.Close()

	states, err := requestStates(ctx, ep)
	if err != nil {
		return err
	}
	if opts.json {
		enc := json.NewEncoder(out)
		enc.SetIndent("", "  ")
		return enc.Encode(states)
	}
	return printStates(out, states)
}

// requestStates asks the kernel for the state of all its widgets.
func requestStates(ctx context.Context, ep *comm.Endpoint) (map[string]json.RawMessage, error) {
	replies := make(chan comm.Message, 1)
	control, err := ep.Open(ctx, ipywire.TargetControl, comm.Message{}, comm.HandlerFuncs{
		OnMessage: func(_ comm.Comm, msg comm.Message) {
			select {
			case replies <- msg:
			default:
			}
		},
	})
	if err != nil {
		return nil, err
	}
	defer control.Close(context.Background(), comm.Message{})

	if err := control.Send(ctx, comm.JSON(map[string]any{"method": "request_states"})); err != nil {
		return nil, err
	}

	select {
	case msg := <-replies:
		var reply bulkState
		if err := json.Unmarshal(msg.Data, &reply); err != nil {
			return nil, fmt.Errorf("malformed reply: %w", err)
		}
		if reply.Method != "update_states" {
			return nil, fmt.Errorf("unexpected reply %q", reply.Method)
		}
		return reply.States, nil
	case <-ep.Done():
		return nil, errors.New("kernel closed the session")
	case <-ctx.Done():
		return nil, fmt.Errorf("no reply from the kernel: %w", ctx.Err())
	}
}

func printStates(out io.Writer, states map[string]json.RawMessage) error {
	ids := make([]string, 0, len(states))
	for id := range states {
		ids = append(ids, id)
	}
	slices.Sort(ids)

	tw := tabwriter.NewWriter(out, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "MODEL ID\tMODEL\tPROPERTIES")
	for _, id := range ids {
		var state map[string]any
		if err := json.Unmarshal(states[id], &state); err != nil {
			return fmt.Errorf("widget %s: %w", id, err)
		}
		name, _ := state["_model_name"].(string)
		fmt.Fprintf(tw, "%s\t%s\t%d\n", id, name, len(state))
	}
	return tw.Flush()
}
