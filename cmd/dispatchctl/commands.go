package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"strconv"

	"dispatch-be/internal/auth"
	"dispatch-be/internal/dispatch"
	"dispatch-be/internal/establishment"
	"dispatch-be/internal/fee"
	"dispatch-be/internal/neighborhood"
	"dispatch-be/internal/order"
	"dispatch-be/internal/utils"

	"github.com/google/uuid"
	"github.com/olekukonko/tablewriter"
)

const usage = `usage: dispatchctl <command> [flags]

commands:
  orders          list an establishment's orders in a status
  history         show an order's status changes
  establishments  list establishments
  zones           list a city's neighborhoods and their fees
  quote           price a delivery
  claim           claim a ready order as a courier
  deliver         deliver the courier's held order`

var errUsage = errors.New(usage)

type establishmentStore interface {
	GetByID(ctx context.Context, id uuid.UUID) (*establishment.Establishment, error)
	List(ctx context.Context, onlyOpen bool) ([]*establishment.Establishment, error)
}

type zoneLister interface {
	ListByCity(ctx context.Context, cityID uuid.UUID) ([]*neighborhood.Neighborhood, error)
}

type cli struct {
	out            io.Writer
	orders         order.Service
	dispatcher     *dispatch.Dispatcher
	establishments establishmentStore
	zones          zoneLister
	quoter         order.Quoter
}

// operator is the admin identity the console acts with. Its audit rows
// carry no actor id.
var operator = auth.Actor{ID: uuid.Nil, Role: auth.RoleAdmin}

func (c *cli) run(ctx context.Context, args []string) error {
	if len(args) == 0 {
		return errUsage
	}
	cmd, rest := args[0], args[1:]

	switch cmd {
	case "orders":
		return c.listOrders(ctx, rest)
	case "history":
		return c.history(ctx, rest)
	case "establishments":
		return c.listEstablishments(ctx, rest)
	case "zones":
		return c.listZones(ctx, rest)
	case "quote":
		return c.quote(ctx, rest)
	case "claim":
		return c.claim(ctx, rest)
	case "deliver":
		return c.deliver(ctx, rest)
	}
	return fmt.Errorf("unknown command %q\n%w", cmd, errUsage)
}

func (c *cli) flags(name string) *flag.FlagSet {
	fs := flag.NewFlagSet(name, flag.ContinueOnError)
	fs.SetOutput(c.out)
	return fs
}

// uuidFlag parses a required id flag value.
func uuidFlag(name, value string) (uuid.UUID, error) {
	if value == "" {
		return uuid.Nil, fmt.Errorf("-%s is required", name)
	}
	id, err := uuid.Parse(value)
	if err != nil {
		return uuid.Nil, fmt.Errorf("-%s: %w", name, err)
	}
	return id, nil
}

func (c *cli) listOrders(ctx context.Context, args []string) error {
	fs := c.flags("orders")
	est := fs.String("establishment", "", "establishment id")
	status := fs.String("status", string(order.StatusPending), "order status")
	if err := fs.Parse(args); err != nil {
		return err
	}
	estID, err := uuidFlag("establishment", *est)
	if err != nil {
		return err
	}
	st, err := order.ParseStatus(*status)
	if err != nil {
		return err
	}

	list, err := c.orders.ListByStatus(ctx, estID, st, operator)
	if err != nil {
		return err
	}

	table := tablewriter.NewWriter(c.out)
	table.Header("Number", "ID", "Status", "Total", "Fee", "Driver", "Created")
	for _, o := range list {
		driver := "-"
		if o.DriverID != nil {
			driver = o.DriverID.String()
		}
		if err := table.Append([]string{
			strconv.FormatInt(o.OrderNumber, 10),
			o.ID.String(),
			string(o.Status),
			formatMoney(o.Total),
			formatMoney(o.DeliveryFee),
			driver,
			o.CreatedAt.Format("2006-01-02 15:04"),
		}); err != nil {
			return err
		}
	}
	return table.Render()
}

func (c *cli) history(ctx context.Context, args []string) error {
	fs := c.flags("history")
	id := fs.String("order", "", "order id")
	if err := fs.Parse(args); err != nil {
		return err
	}
	orderID, err := uuidFlag("order", *id)
	if err != nil {
		return err
	}

	changes, err := c.orders.History(ctx, orderID, operator)
	if err != nil {
		return err
	}

	table := tablewriter.NewWriter(c.out)
	table.Header("At", "From", "To", "Role", "Note")
	for _, ch := range changes {
		from := "-"
		if ch.FromStatus != nil {
			from = string(*ch.FromStatus)
		}
		note := utils.PtrString(ch.Note)
		if note == "" {
			note = "-"
		}
		if err := table.Append([]string{
			ch.ChangedAt.Format("2006-01-02 15:04:05"),
			from,
			string(ch.ToStatus),
			string(ch.ActorRole),
			note,
		}); err != nil {
			return err
		}
	}
	return table.Render()
}

func (c *cli) listEstablishments(ctx context.Context, args []string) error {
	fs := c.flags("establishments")
	open := fs.Bool("open", false, "only establishments accepting orders")
	if err := fs.Parse(args); err != nil {
		return err
	}

	list, err := c.establishments.List(ctx, *open)
	if err != nil {
		return err
	}

	table := tablewriter.NewWriter(c.out)
	table.Header("ID", "Name", "Open", "Location")
	for _, e := range list {
		loc := "-"
		if p := e.Location(); p != nil {
			loc = fmt.Sprintf("%.5f,%.5f", p.Lat, p.Lng)
		}
		if err := table.Append([]string{e.ID.String(), e.Name, strconv.FormatBool(e.IsOpen), loc}); err != nil {
			return err
		}
	}
	return table.Render()
}

func (c *cli) listZones(ctx context.Context, args []string) error {
	fs := c.flags("zones")
	city := fs.String("city", "", "city id")
	if err := fs.Parse(args); err != nil {
		return err
	}
	cityID, err := uuidFlag("city", *city)
	if err != nil {
		return err
	}

	list, err := c.zones.ListByCity(ctx, cityID)
	if err != nil {
		return err
	}

	table := tablewriter.NewWriter(c.out)
	table.Header("ID", "Name", "Fee", "Active")
	for _, n := range list {
		if err := table.Append([]string{n.ID.String(), n.Name, formatMoney(n.DeliveryFee), strconv.FormatBool(n.Active)}); err != nil {
			return err
		}
	}
	return table.Render()
}

func (c *cli) quote(ctx context.Context, args []string) error {
	fs := c.flags("quote")
	est := fs.String("establishment", "", "establishment id")
	lat := fs.Float64("lat", 0, "destination latitude")
	lng := fs.Float64("lng", 0, "destination longitude")
	zone := fs.String("neighborhood", "", "destination neighborhood id")
	if err := fs.Parse(args); err != nil {
		return err
	}
	estID, err := uuidFlag("establishment", *est)
	if err != nil {
		return err
	}

	e, err := c.establishments.GetByID(ctx, estID)
	if err != nil {
		return err
	}

	var dest fee.Destination
	fs.Visit(func(f *flag.Flag) {
		if f.Name == "lat" || f.Name == "lng" {
			dest.Point = &fee.Point{Lat: *lat, Lng: *lng}
		}
	})
	if *zone != "" {
		id, err := uuidFlag("neighborhood", *zone)
		if err != nil {
			return err
		}
		dest.NeighborhoodID = &id
	}

	q := c.quoter.Quote(ctx, e.Location(), dest)
	fmt.Fprintf(c.out, "fee: %s (%s)\n", formatMoney(q.Fee), q.Source)
	if q.DistanceKm != nil {
		fmt.Fprintf(c.out, "distance: %.2f km, about %.0f min\n", *q.DistanceKm, *q.DurationMin)
	}
	return nil
}

func (c *cli) courier(ctx context.Context, fs *flag.FlagSet, args []string, extra func() error) (*dispatch.Courier, error) {
	id := fs.String("courier", "", "courier id")
	if err := fs.Parse(args); err != nil {
		return nil, err
	}
	courierID, err := uuidFlag("courier", *id)
	if err != nil {
		return nil, err
	}
	if extra != nil {
		if err := extra(); err != nil {
			return nil, err
		}
	}
	return c.dispatcher.Session(ctx, courierID)
}

func (c *cli) claim(ctx context.Context, args []string) error {
	fs := c.flags("claim")
	id := fs.String("order", "", "order id")
	var orderID uuid.UUID
	courier, err := c.courier(ctx, fs, args, func() (err error) {
		orderID, err = uuidFlag("order", *id)
		return err
	})
	if err != nil {
		return err
	}

	res, err := courier.Claim(ctx, orderID)
	if err != nil {
		return err
	}
	if res.Outcome == dispatch.ClaimLost {
		fmt.Fprintln(c.out, "claim lost: the order was taken or is no longer ready")
		return nil
	}
	fmt.Fprintf(c.out, "claim won: order #%d is out for delivery\n", res.Order.OrderNumber)
	return nil
}

func (c *cli) deliver(ctx context.Context, args []string) error {
	courier, err := c.courier(ctx, c.flags("deliver"), args, nil)
	if err != nil {
		return err
	}

	o, err := courier.Deliver(ctx)
	if err != nil {
		return err
	}
	fmt.Fprintf(c.out, "order #%d delivered\n", o.OrderNumber)
	return nil
}

// formatMoney renders minor units with two decimals.
func formatMoney(minor int64) string {
	sign := ""
	if minor < 0 {
		sign, minor = "-", -minor
	}
	return fmt.Sprintf("%s%d.%02d", sign, minor/100, minor%100)
}
