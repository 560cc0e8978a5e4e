package main

import (
	"context"
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"io"
	"os"
	"sort"
	"strings"
	"time"

	storefrontv1 "github.com/vladislavdragonenkov/storefront/api/storefront/v1"
)

const (
	envGRPCAddr     = "STOREFRONT_GRPC_ADDR"
	defaultGRPCAddr = "localhost:50051"
	defaultTimeout  = 5 * time.Second
)

type clientFlags struct {
	addr    string
	timeout time.Duration
}

func newFlagSet(name string, out io.Writer) (*flag.FlagSet, *clientFlags) {
	fs := flag.NewFlagSet(name, flag.ContinueOnError)
	fs.SetOutput(out)

	addr := defaultGRPCAddr
	if value := strings.TrimSpace(os.Getenv(envGRPCAddr)); value != "" {
		addr = value
	}

	cf := &clientFlags{}
	fs.StringVar(&cf.addr, "addr", addr, "gRPC address of storefront-service (fallback: "+envGRPCAddr+")")
	fs.DurationVar(&cf.timeout, "timeout", defaultTimeout, "timeout of a single unary call")
	return fs, cf
}

func parseFlags(fs *flag.FlagSet, args []string) error {
	if err := fs.Parse(args); err != nil {
		return fmt.Errorf("%w: %v", errUsage, err)
	}
	if fs.NArg() > 0 {
		return fmt.Errorf("%w: unexpected arguments %v", errUsage, fs.Args())
	}
	return nil
}

func required(name, value string) error {
	if strings.TrimSpace(value) == "" {
		return fmt.Errorf("%w: -%s is required", errUsage, name)
	}
	return nil
}

func runList(ctx context.Context, args []string, out io.Writer) error {
	fs, cf := newFlagSet("list", out)
	shopID := fs.String("shop", "", "shop id")
	if err := parseFlags(fs, args); err != nil {
		return err
	}
	if err := required("shop", *shopID); err != nil {
		return err
	}

	client, closeConn, err := dialOrders(cf.addr)
	if err != nil {
		return err
	}
	defer closeConn()

	ctx, cancel := context.WithTimeout(ctx, cf.timeout)
	defer cancel()

	resp, err := client.ListOrders(ctx, &storefrontv1.ListOrdersRequest{ShopID: *shopID})
	if err != nil {
		return fmt.Errorf("list orders: %w", err)
	}
	return writeJSON(out, resp)
}

func runGet(ctx context.Context, args []string, out io.Writer) error {
	fs, cf := newFlagSet("get", out)
	orderID := fs.String("order", "", "order id")
	if err := parseFlags(fs, args); err != nil {
		return err
	}
	if err := required("order", *orderID); err != nil {
		return err
	}

	client, closeConn, err := dialOrders(cf.addr)
	if err != nil {
		return err
	}
	defer closeConn()

	ctx, cancel := context.WithTimeout(ctx, cf.timeout)
	defer cancel()

	resp, err := client.GetOrder(ctx, &storefrontv1.GetOrderRequest{OrderID: *orderID})
	if err != nil {
		return fmt.Errorf("get order: %w", err)
	}
	return writeJSON(out, resp)
}

func runSetStatus(ctx context.Context, args []string, out io.Writer) error {
	fs, cf := newFlagSet("set-status", out)
	orderID := fs.String("order", "", "order id")
	status := fs.String("status", "", "new status: pending|in-progress|complete|cancelled")
	if err := parseFlags(fs, args); err != nil {
		return err
	}
	if err := required("order", *orderID); err != nil {
		return err
	}
	if err := required("status", *status); err != nil {
		return err
	}

	client, closeConn, err := dialOrders(cf.addr)
	if err != nil {
		return err
	}
	defer closeConn()

	ctx, cancel := context.WithTimeout(ctx, cf.timeout)
	defer cancel()

	resp, err := client.ChangeOrderStatus(ctx, &storefrontv1.ChangeOrderStatusRequest{OrderID: *orderID, Status: *status})
	if err != nil {
		return fmt.Errorf("change status: %w", err)
	}
	return writeJSON(out, resp.Order)
}

// runWatch печатает по строке на каждый снимок. -count=0 ждёт до отмены ctx.
func runWatch(ctx context.Context, args []string, out io.Writer) error {
	fs, cf := newFlagSet("watch", out)
	shopID := fs.String("shop", "", "shop id")
	count := fs.Int("count", 0, "stop after N snapshots (0 = until interrupted)")
	if err := parseFlags(fs, args); err != nil {
		return err
	}
	if err := required("shop", *shopID); err != nil {
		return err
	}

	client, closeConn, err := dialOrders(cf.addr)
	if err != nil {
		return err
	}
	defer closeConn()

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	stream, err := client.SubscribeOrders(ctx, &storefrontv1.SubscribeOrdersRequest{ShopID: *shopID})
	if err != nil {
		return fmt.Errorf("subscribe: %w", err)
	}

	for received := 0; *count == 0 || received < *count; received++ {
		snapshot, err := stream.Recv()
		if err != nil {
			if errors.Is(err, io.EOF) || ctx.Err() != nil {
				return nil
			}
			return fmt.Errorf("receive snapshot: %w", err)
		}
		if _, err := fmt.Fprintln(out, formatSnapshot(snapshot)); err != nil {
			return err
		}
	}
	return nil
}

func formatSnapshot(snapshot *storefrontv1.OrdersSnapshot) string {
	at := snapshot.At.UTC().Format(time.RFC3339)
	if snapshot.Error != nil {
		return fmt.Sprintf("%s shop=%s error=%s: %s", at, snapshot.ShopID, snapshot.Error.Code, snapshot.Error.Message)
	}

	parts := make([]string, 0, len(snapshot.Orders))
	for _, order := range snapshot.Orders {
		parts = append(parts, order.ID+":"+order.Status)
	}
	sort.Strings(parts)
	return fmt.Sprintf("%s shop=%s orders=%d [%s]", at, snapshot.ShopID, len(snapshot.Orders), strings.Join(parts, " "))
}

func writeJSON(out io.Writer, value any) error {
	encoder := json.NewEncoder(out)
	encoder.SetIndent("", "  ")
	return encoder.Encode(value)
}
