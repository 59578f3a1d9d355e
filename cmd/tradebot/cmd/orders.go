package cmd

import (
	"context"
	"fmt"
	"io"
	"strconv"

	"github.com/spf13/cobra"

	"github.com/rustyeddy/tradebot/market"
	"github.com/rustyeddy/tradebot/order"
	"github.com/rustyeddy/tradebot/risk"
)

var ordersCmd = &cobra.Command{
	Use:   "orders",
	Short: "Manage orders on the bridge",
	Long: `Place, list, modify and cancel orders directly on the MT5 bridge. These
commands bypass the strategy and the risk limiter.

Subcommands:
  list   - List resting (pending) orders
  place  - Place a market, limit or stop order
  modify - Move a pending order's price, stop-loss or take-profit
  cancel - Remove a pending order

Examples:
  tradebot orders list
  tradebot orders place EURUSD --side buy --kind limit --volume 0.1 --price 1.0950 --sl 1.0900
  tradebot orders place EURUSD --side sell --volume 10000 --unit eur
  tradebot orders modify 50123456 --sl 1.0920
  tradebot orders cancel 50123456`,
}

var ordersListCmd = &cobra.Command{
	Use:   "list",
	Short: "List pending orders",
	Args:  cobra.NoArgs,
	RunE:  runOrdersList,
}

var ordersPlaceCmd = &cobra.Command{
	Use:   "place <symbol>",
	Short: "Place an order",
	Args:  cobra.ExactArgs(1),
	RunE:  runOrdersPlace,
}

var ordersModifyCmd = &cobra.Command{
	Use:   "modify <ticket>",
	Short: "Modify a pending order",
	Args:  cobra.ExactArgs(1),
	RunE:  runOrdersModify,
}

var ordersCancelCmd = &cobra.Command{
	Use:   "cancel <ticket>",
	Short: "Cancel a pending order",
	Args:  cobra.ExactArgs(1),
	RunE:  runOrdersCancel,
}

var (
	placeSide   string
	placeKind   string
	placeUnit   string
	placeVolume float64

	levelPrice float64
	levelSL    float64
	levelTP    float64
)

func init() {
	rootCmd.AddCommand(ordersCmd)
	ordersCmd.AddCommand(ordersListCmd)
	ordersCmd.AddCommand(ordersPlaceCmd)
	ordersCmd.AddCommand(ordersModifyCmd)
	ordersCmd.AddCommand(ordersCancelCmd)

	ordersPlaceCmd.Flags().StringVar(&placeSide, "side", "", "buy or sell (required)")
	ordersPlaceCmd.Flags().StringVar(&placeKind, "kind", "market", "market, limit or stop")
	ordersPlaceCmd.Flags().StringVar(&placeUnit, "unit", "lots", "volume unit: lots or a currency code")
	ordersPlaceCmd.Flags().Float64Var(&placeVolume, "volume", 0, "order volume in --unit (required)")
	ordersPlaceCmd.MarkFlagRequired("side")
	ordersPlaceCmd.MarkFlagRequired("volume")

	for _, c := range []*cobra.Command{ordersPlaceCmd, ordersModifyCmd} {
		c.Flags().Float64Var(&levelPrice, "price", 0, "entry price of a limit or stop order")
		c.Flags().Float64Var(&levelSL, "sl", 0, "stop-loss price")
		c.Flags().Float64Var(&levelTP, "tp", 0, "take-profit price")
	}
}

// translator builds an order translator on the configured bridge.
func translator() (*order.Translator, error) {
	cfg, log, err := loadConfig()
	if err != nil {
		return nil, err
	}
	client, err := newBridge(cfg, log)
	if err != nil {
		return nil, fmt.Errorf("broker: %w", err)
	}
	return order.NewTranslator(client, client, translatorOptions(cfg), log), nil
}

// optional returns &v when the flag was given on the command line.
func optional(cmd *cobra.Command, name string, v float64) *float64 {
	if !cmd.Flags().Changed(name) {
		return nil
	}
	return &v
}

func parseTicket(s string) (uint64, error) {
	n, err := strconv.ParseUint(s, 10, 64)
	if err != nil || n == 0 {
		return 0, fmt.Errorf("ticket %q: not a positive number", s)
	}
	return n, nil
}

// buildIntent turns command line words into an order intent. Levels left
// nil are not sent.
func buildIntent(symbol, side, kind, unit string, volume float64, price, sl, tp *float64) (order.Intent, error) {
	s, err := order.ParseSide(side)
	if err != nil {
		return order.Intent{}, err
	}
	k, err := order.ParseKind(kind)
	if err != nil {
		return order.Intent{}, err
	}
	u, err := market.ParseVolumeUnit(unit)
	if err != nil {
		return order.Intent{}, err
	}
	return order.Intent{
		Symbol:     symbol,
		Side:       s,
		Kind:       k,
		Volume:     volume,
		Unit:       u,
		Price:      price,
		StopLoss:   sl,
		TakeProfit: tp,
	}, nil
}

func runOrdersList(cmd *cobra.Command, args []string) error {
	t, err := translator()
	if err != nil {
		return err
	}
	return listPending(cmd.Context(), t, cmd.OutOrStdout())
}

func runOrdersPlace(cmd *cobra.Command, args []string) error {
	in, err := buildIntent(args[0], placeSide, placeKind, placeUnit, placeVolume,
		optional(cmd, "price", levelPrice), optional(cmd, "sl", levelSL), optional(cmd, "tp", levelTP))
	if err != nil {
		return err
	}
	t, err := translator()
	if err != nil {
		return err
	}
	return placeOrder(cmd.Context(), t, in, cmd.OutOrStdout())
}

func runOrdersModify(cmd *cobra.Command, args []string) error {
	ticket, err := parseTicket(args[0])
	if err != nil {
		return err
	}
	ch := order.Changes{
		Price:      optional(cmd, "price", levelPrice),
		StopLoss:   optional(cmd, "sl", levelSL),
		TakeProfit: optional(cmd, "tp", levelTP),
	}
	t, err := translator()
	if err != nil {
		return err
	}
	return modifyOrder(cmd.Context(), t, ticket, ch, cmd.OutOrStdout())
}

func runOrdersCancel(cmd *cobra.Command, args []string) error {
	ticket, err := parseTicket(args[0])
	if err != nil {
		return err
	}
	t, err := translator()
	if err != nil {
		return err
	}
	return cancelOrder(cmd.Context(), t, ticket, cmd.OutOrStdout())
}

func listPending(ctx context.Context, t *order.Translator, w io.Writer) error {
	orders, err := t.PendingOrders(ctx)
	if err != nil {
		return fmt.Errorf("pending orders: %w", err)
	}
	if len(orders) == 0 {
		fmt.Fprintln(w, "no pending orders")
		return nil
	}
	fmt.Fprintf(w, "%10s %-8s %-10s %7s %10s %10s %10s  %s\n", "TICKET", "SYMBOL", "TYPE", "LOTS", "PRICE", "SL", "TP", "SETUP")
	for _, o := range orders {
		fmt.Fprintf(w, "%10d %-8s %-10s %7.2f %10.5f %10.5f %10.5f  %s\n",
			o.Ticket, o.Symbol, o.Type, o.Volume, o.Price, o.StopLoss, o.TakeProfit,
			o.SetupTime.UTC().Format("2006-01-02 15:04:05"))
	}
	return nil
}

func placeOrder(ctx context.Context, t *order.Translator, in order.Intent, w io.Writer) error {
	res, err := t.Place(ctx, in)
	if err != nil {
		return err
	}
	if err := printResult(w, res); err != nil {
		return err
	}
	entry := res.FilledPrice
	if in.Price != nil {
		entry = *in.Price
	}
	if in.StopLoss != nil && in.TakeProfit != nil && entry > 0 {
		fmt.Fprintf(w, "  R:R %.2f\n", risk.RR(entry, *in.StopLoss, *in.TakeProfit))
	}
	return nil
}

func modifyOrder(ctx context.Context, t *order.Translator, ticket uint64, ch order.Changes, w io.Writer) error {
	res, err := t.Modify(ctx, ticket, ch)
	if err != nil {
		return err
	}
	if err := printResult(w, res); err != nil {
		return err
	}
	if res.Old != nil && res.New != nil {
		fmt.Fprintf(w, "  price %.5f -> %.5f\n", res.Old.Price, res.New.Price)
		fmt.Fprintf(w, "  sl    %.5f -> %.5f\n", res.Old.StopLoss, res.New.StopLoss)
		fmt.Fprintf(w, "  tp    %.5f -> %.5f\n", res.Old.TakeProfit, res.New.TakeProfit)
	}
	return nil
}

func cancelOrder(ctx context.Context, t *order.Translator, ticket uint64, w io.Writer) error {
	res, err := t.Cancel(ctx, ticket)
	if err != nil {
		return err
	}
	return printResult(w, res)
}

// printResult reports res and turns a broker rejection into an error so
// the command exits non-zero.
func printResult(w io.Writer, res order.Result) error {
	if !res.Success {
		fmt.Fprintf(w, "✗ %s rejected: %s (code %d)\n", res.Action, res.Comment, res.ResultCode)
		return fmt.Errorf("%s: broker code %d", res.Action, res.ResultCode)
	}
	fmt.Fprintf(w, "✓ %s ticket %d", res.Action, res.Ticket)
	if res.FilledVolume > 0 {
		fmt.Fprintf(w, ": %.2f lots", res.FilledVolume)
		if res.FilledPrice > 0 {
			fmt.Fprintf(w, " at %.5f", res.FilledPrice)
		}
	}
	fmt.Fprintln(w)
	return nil
}
