package cmd

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"strconv"
	"strings"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/luma/resplite/client"
	"github.com/luma/resplite/internal/env"
	"github.com/luma/resplite/protocol"
)

var (
	// The server to send to, overrides RESPLITE_ADDR
	sendAddr string

	// Round trip timeout, overrides RESPLITE_TIMEOUT
	sendTimeout time.Duration

	sendTrace bool
)

func init() {
	flags := SendCmd.Flags()

	flags.StringVarP(&sendAddr, "addr", "a", "", "The server to send the command to (default $RESPLITE_ADDR)")
	flags.DurationVar(&sendTimeout, "timeout", 0, "How long to wait for the reply (default $RESPLITE_TIMEOUT)")
	flags.BoolVar(&sendTrace, "trace", false, "Log the raw request and reply")
}

var SendCmd = &cobra.Command{
	Use:   "send COMMAND [ARGS...]",
	Short: "Send one command and print the reply",
	Long: `Send one command and print the reply

Every argument is sent as one bulk string, so quote arguments that contain
spaces. Replies are printed the way redis-cli prints them.

Usage
	resplite send --addr 127.0.0.1:6379 SET greeting "hello world"

`,
	Args: cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, signalStop := signal.NotifyContext(context.Background(), os.Interrupt)
		defer signalStop()

		conf, err := env.LoadConfig(ctx)
		if err != nil {
			return err
		}

		opts := ResolveSendOptions(cmd, conf)
		addr, timeout, trace := opts.Addr, opts.Timeout, opts.Trace

		log, err := env.MakeLogger(conf.Debug || trace)
		if err != nil {
			return err
		}

		dialCtx := ctx
		if timeout > 0 {
			var cancel context.CancelFunc
			dialCtx, cancel = context.WithTimeout(ctx, timeout)
			defer cancel()
		}

		conn, err := client.Dial(dialCtx, addr, client.Options{
			Trace:          trace,
			Timeout:        timeout,
			ReadBufferSize: conf.ReadBufferSize,
			MaxFrameSize:   conf.MaxFrameSize,
			Log:            log.Named("client"),
		})
		if err != nil {
			return err
		}
		defer conn.Close()

		request := make([][]byte, len(args))
		for i, arg := range args {
			request[i] = []byte(arg)
		}

		reply, err := conn.DoArgs(request...)

		var serverErr *protocol.ServerError
		if errors.As(err, &serverErr) {
			fmt.Fprintln(cmd.OutOrStdout(), FormatError(serverErr))
			return nil
		}

		if err != nil {
			log.Debug("Round trip failed", zap.String("addr", addr), zap.Error(err))
			return err
		}

		fmt.Fprintln(cmd.OutOrStdout(), FormatReply(reply))
		return nil
	},
}

// SendOptions are the settings of the send command once flags have been
// applied over the environment.
type SendOptions struct {
	Addr    string
	Timeout time.Duration
	Trace   bool
}

// ResolveSendOptions starts from conf and overrides every value whose flag
// was set on the command line, including flags explicitly set to their zero
// value.
func ResolveSendOptions(cmd *cobra.Command, conf *env.Config) SendOptions {
	opts := SendOptions{
		Addr:    conf.Addr,
		Timeout: conf.Timeout,
		Trace:   conf.Trace,
	}

	flags := cmd.Flags()
	if flags.Changed("addr") {
		opts.Addr = sendAddr
	}
	if flags.Changed("timeout") {
		opts.Timeout = sendTimeout
	}
	if flags.Changed("trace") {
		opts.Trace = sendTrace
	}

	return opts
}

// FormatReply renders a reply like redis-cli does. Nested multibulks are
// numbered and indented under their parent element.
func FormatReply(r protocol.Reply) string {
	return strings.Join(formatLines(r), "\n")
}

func FormatError(err *protocol.ServerError) string {
	return "(error) " + err.Message
}

func formatLines(r protocol.Reply) []string {
	switch r.Kind() {
	case protocol.KindStatus:
		s, _ := r.Str()
		return []string{s}

	case protocol.KindInteger:
		n, _ := r.Int64()
		return []string{"(integer) " + strconv.FormatInt(n, 10)}

	case protocol.KindBulk:
		if r.IsNil() {
			return []string{"(nil)"}
		}
		b, _ := r.Bytes()
		return []string{strconv.Quote(string(b))}

	case protocol.KindMultiBulk:
		if r.IsNil() {
			return []string{"(nil)"}
		}

		elems, _ := r.Elems()
		if len(elems) == 0 {
			return []string{"(empty array)"}
		}

		width := len(strconv.Itoa(len(elems)))
		lines := make([]string, 0, len(elems))

		for i, elem := range elems {
			prefix := fmt.Sprintf("%*d) ", width, i+1)
			indent := strings.Repeat(" ", len(prefix))

			for j, line := range formatLines(elem) {
				if j == 0 {
					lines = append(lines, prefix+line)
				} else {
					lines = append(lines, indent+line)
				}
			}
		}

		return lines
	}

	return []string{"(invalid)"}
}
