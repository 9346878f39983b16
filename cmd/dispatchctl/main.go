// Command dispatchctl is the operator console for orders and dispatch. It
// talks to the database directly and acts as an admin or as the given courier.
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"

	"dispatch-be/internal/config"
	"dispatch-be/internal/db"
	"dispatch-be/internal/dispatch"
	"dispatch-be/internal/establishment"
	"dispatch-be/internal/fee"
	"dispatch-be/internal/logger"
	"dispatch-be/internal/neighborhood"
	"dispatch-be/internal/order"
)

func main() {
	cfg := config.LoadConfig()
	logger.Init(cfg.AppEnv)
	defer logger.Sync()

	database := db.InitDB(cfg)
	defer database.Close()

	schedule, err := fee.LoadSchedule(cfg.FeeSchedulePath)
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}

	zones := neighborhood.NewRepository(database)
	establishments := establishment.NewRepository(database)
	var router fee.Router
	switch cfg.RouterProvider {
	case "osrm":
		router = fee.NewOSRMRouter(cfg.RouterURL)
	case "haversine":
		router = fee.HaversineRouter{}
	}
	calculator := fee.NewCalculator(router, zones, schedule, cfg.DefaultDeliveryFee)

	orders := order.NewRepository(database)
	lifecycle := order.NewService(orders, establishments, calculator, nil)

	c := &cli{
		out:            os.Stdout,
		orders:         lifecycle,
		dispatcher:     dispatch.NewDispatcher(orders, lifecycle, nil),
		establishments: establishments,
		zones:          zones,
		quoter:         calculator,
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()

	if err := c.run(ctx, os.Args[1:]); err != nil {
		fmt.Fprintln(os.Stderr, "dispatchctl:", err)
		os.Exit(1)
	}
}
