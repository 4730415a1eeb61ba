package main

import (
	"context"
	"fmt"
	"io"
	"sync"
	"time"

	"github.com/pkg/errors"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"google.golang.org/protobuf/encoding/protojson"
	"google.golang.org/protobuf/types/known/structpb"

	"github.com/code-payments/billing-bridge/billing/memory"
	"github.com/code-payments/billing-bridge/bridge"
	"github.com/code-payments/billing-bridge/config"
	"github.com/code-payments/billing-bridge/event"
)

const streamBufferSize = 64

var productsCmd = &cobra.Command{
	Use:   "products KIND ID...",
	Short: "Load products into the catalog",
	Args:  cobra.MinimumNArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		return execute(cmd, loadStep(args[0], args[1:]...))
	},
}

var purchaseCmd = &cobra.Command{
	Use:   "purchase ID",
	Short: "Load a product and launch its purchase flow",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return execute(cmd,
			loadStep(kindFlag, args[0]),
			step{name: bridge.CommandPurchase, args: []any{args[0]}, await: true},
		)
	},
}

var restoreCmd = &cobra.Command{
	Use:   "restore",
	Short: "Restore owned purchases",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		return execute(cmd, step{name: bridge.CommandRestore})
	},
}

var acknowledgeCmd = &cobra.Command{
	Use:   "acknowledge ID",
	Short: "Restore owned purchases and acknowledge one",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return execute(cmd,
			step{name: bridge.CommandRestore},
			step{name: bridge.CommandAcknowledge, args: []any{args[0]}, await: true},
		)
	},
}

var consumeCmd = &cobra.Command{
	Use:   "consume ID",
	Short: "Restore owned purchases and consume one",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return execute(cmd,
			step{name: bridge.CommandRestore},
			step{name: bridge.CommandConsume, args: []any{args[0]}, await: true},
		)
	},
}

var manageCmd = &cobra.Command{
	Use:   "manage",
	Short: "Open subscription management",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		return execute(cmd, step{name: bridge.CommandManage, await: true})
	},
}

var watchCmd = &cobra.Command{
	Use:   "watch",
	Short: "Restore owned purchases and stream purchase updates",
	Long: `watch restores owned purchases and then prints every purchase update the
provider publishes until interrupted or the --for duration elapses.`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		return withSession(cmd, func(ctx context.Context, session *bridge.Session, log *zap.Logger) error {
			stream := event.NewChannelStream[*bridge.PurchaseResponse](log, streamBufferSize, timeout)
			defer stream.Close()

			session.SubscribePurchaseUpdated(stream)
			session.Restore()

			if watchFor > 0 {
				var cancel context.CancelFunc
				ctx, cancel = context.WithTimeout(ctx, watchFor)
				defer cancel()
			}

			p := newPrinter(cmd.OutOrStdout())
			printUpdate := p.reply("purchaseUpdated")
			for {
				select {
				case resp, ok := <-stream.Channel():
					if !ok {
						return errors.Wrap(stream.Err(), "purchase update stream closed")
					}
					printUpdate(resp.ToValue())
				case <-ctx.Done():
					session.UnsubscribePurchaseUpdated()
					return nil
				}
			}
		})
	},
}

// step is one dispatched host command. Steps that await block until their
// first reply; the rest are given the settle period to complete.
type step struct {
	name  string
	args  []any
	await bool
}

func loadStep(kind string, ids ...string) step {
	list := make([]any, 0, len(ids))
	for _, id := range ids {
		list = append(list, id)
	}
	return step{name: bridge.CommandLoadProducts, args: []any{list, kind}, await: true}
}

func execute(cmd *cobra.Command, steps ...step) error {
	return withSession(cmd, func(ctx context.Context, session *bridge.Session, _ *zap.Logger) error {
		return runSteps(ctx, session, newPrinter(cmd.OutOrStdout()), steps)
	})
}

// withSession runs fn against a session backed by a fixture-seeded memory
// provider, stopping the session once fn returns.
func withSession(cmd *cobra.Command, fn func(ctx context.Context, session *bridge.Session, log *zap.Logger) error) error {
	cfg, err := config.Load()
	if err != nil {
		return err
	}

	log := zap.NewNop()
	if verbose {
		if log, err = cfg.Logger(); err != nil {
			return errors.Wrap(err, "failed to create logger")
		}
		defer log.Sync()
	}

	provider := memory.NewProvider(cfg.PackageName)
	defer provider.Close()

	if fixturePath != "" {
		fixture, err := LoadFixture(fixturePath)
		if err != nil {
			return err
		}
		if err := fixture.Apply(provider, cfg.PackageName); err != nil {
			return err
		}
	}

	opts := cfg.Options()
	if strict {
		opts = append(opts, bridge.WithStrictMode(true))
	}

	store := memory.NewInMemory()
	session := bridge.NewSession(log, provider, store, store, opts...)

	ctx, cancel := context.WithCancel(cmd.Context())
	go func() {
		_ = session.Run(ctx)
	}()
	defer func() {
		cancel()
		<-session.Done()
	}()

	return fn(ctx, session, log)
}

func runSteps(ctx context.Context, session *bridge.Session, p *printer, steps []step) error {
	session.Dispatch(bridge.CommandSubscribeProductLoaded, nil, p.reply("productLoaded"))
	session.Dispatch(bridge.CommandSubscribePurchaseUpdated, nil, p.reply("purchaseUpdated"))

	for _, st := range steps {
		args, err := structpb.NewList(st.args)
		if err != nil {
			return errors.Wrapf(err, "invalid arguments for %s", st.name)
		}

		if !st.await {
			session.Dispatch(st.name, args, p.reply(st.name))
			if err := sleep(ctx, settle); err != nil {
				return err
			}
			continue
		}

		replied := make(chan struct{})
		var once sync.Once
		printReply := p.reply(st.name)
		session.Dispatch(st.name, args, func(v *structpb.Value, err error) {
			printReply(v, err)
			once.Do(func() { close(replied) })
		})

		select {
		case <-replied:
		case <-time.After(timeout):
			return errors.Errorf("timed out waiting for %s", st.name)
		case <-ctx.Done():
			return ctx.Err()
		}
	}

	flushCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()
	return session.Flush(flushCtx)
}

func sleep(ctx context.Context, d time.Duration) error {
	select {
	case <-time.After(d):
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// printer writes one line per reply or event.
type printer struct {
	mu sync.Mutex
	w  io.Writer
}

func newPrinter(w io.Writer) *printer {
	return &printer{w: w}
}

func (p *printer) reply(name string) bridge.Reply {
	return func(v *structpb.Value, err error) {
		p.mu.Lock()
		defer p.mu.Unlock()

		switch {
		case err != nil:
			fmt.Fprintf(p.w, "%s: error: %v\n", name, err)
		case v == nil:
			fmt.Fprintf(p.w, "%s: ok\n", name)
		default:
			data, err := protojson.Marshal(v)
			if err != nil {
				fmt.Fprintf(p.w, "%s: error: %v\n", name, err)
				return
			}
			fmt.Fprintf(p.w, "%s: %s\n", name, data)
		}
	}
}
