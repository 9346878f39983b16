package order

import (
	"context"
	"errors"
	"testing"
	"time"

	"dispatch-be/internal/auth"
	"dispatch-be/internal/establishment"
	"dispatch-be/internal/fee"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

type MockRepository struct {
	mock.Mock
}

func (m *MockRepository) Create(ctx context.Context, p NewOrderParams, actor auth.Actor) (*Order, error) {
	args := m.Called(ctx, p, actor)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*Order), args.Error(1)
}

func (m *MockRepository) GetByID(ctx context.Context, id uuid.UUID) (*Order, error) {
	args := m.Called(ctx, id)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*Order), args.Error(1)
}

func (m *MockRepository) ListByStatus(ctx context.Context, establishmentID uuid.UUID, status Status) ([]*Order, error) {
	args := m.Called(ctx, establishmentID, status)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]*Order), args.Error(1)
}

func (m *MockRepository) ListAvailable(ctx context.Context, limit int) ([]*Order, error) {
	args := m.Called(ctx, limit)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]*Order), args.Error(1)
}

func (m *MockRepository) GetActiveForDriver(ctx context.Context, driverID uuid.UUID) (*Order, error) {
	args := m.Called(ctx, driverID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*Order), args.Error(1)
}

func (m *MockRepository) History(ctx context.Context, orderID uuid.UUID) ([]*StatusChange, error) {
	args := m.Called(ctx, orderID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]*StatusChange), args.Error(1)
}

func (m *MockRepository) UpdateStatus(ctx context.Context, w StatusWrite) (*Order, error) {
	args := m.Called(ctx, w)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*Order), args.Error(1)
}

func (m *MockRepository) Claim(ctx context.Context, orderID, driverID uuid.UUID) (*Order, error) {
	args := m.Called(ctx, orderID, driverID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*Order), args.Error(1)
}

type MockEstablishments struct {
	mock.Mock
}

func (m *MockEstablishments) GetByID(ctx context.Context, id uuid.UUID) (*establishment.Establishment, error) {
	args := m.Called(ctx, id)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*establishment.Establishment), args.Error(1)
}

type MockQuoter struct {
	mock.Mock
}

func (m *MockQuoter) Quote(ctx context.Context, est *fee.Point, dest fee.Destination) fee.Quote {
	args := m.Called(ctx, est, dest)
	return args.Get(0).(fee.Quote)
}

type MockPublisher struct {
	mock.Mock
}

func (m *MockPublisher) PublishStatus(ctx context.Context, ev StatusEvent) error {
	return m.Called(ctx, ev).Error(0)
}

func ptr[T any](v T) *T { return &v }

func TestService_Create(t *testing.T) {
	ctx := context.Background()
	estID := uuid.New()
	customer := auth.Actor{ID: uuid.New(), Role: auth.RoleCustomer}
	openShop := &establishment.Establishment{ID: estID, IsOpen: true, Lat: ptr(-23.55), Lng: ptr(-46.63)}

	validInput := func() CreateOrderInput {
		return CreateOrderInput{
			EstablishmentID: estID,
			Subtotal:        4000,
			Discount:        500,
			PaymentMethod:   PaymentCard,
			DeliveryAddress: "Rua Oscar Freire 10",
			DeliveryLat:     ptr(-23.56),
			DeliveryLng:     ptr(-46.67),
		}
	}

	t.Run("Prices with quote and stamps customer", func(t *testing.T) {
		repo := new(MockRepository)
		ests := new(MockEstablishments)
		quoter := new(MockQuoter)
		svc := NewService(repo, ests, quoter, nil)

		dist, dur := 4.1, 14.0
		ests.On("GetByID", ctx, estID).Return(openShop, nil)
		quoter.On("Quote", ctx, openShop.Location(), fee.Destination{Point: &fee.Point{Lat: -23.56, Lng: -46.67}}).
			Return(fee.Quote{Fee: 700, DistanceKm: &dist, DurationMin: &dur, Source: fee.SourceRoute})
		repo.On("Create", ctx, mock.MatchedBy(func(p NewOrderParams) bool {
			return p.DeliveryFee == 700 &&
				p.Total == 4000+700-500 &&
				p.FeeSource == fee.SourceRoute &&
				p.CustomerID != nil && *p.CustomerID == customer.ID
		}), customer).Return(&Order{ID: uuid.New(), Status: StatusPending, DeliveryFee: 700, FeeSource: fee.SourceRoute}, nil)

		o, err := svc.Create(ctx, validInput(), customer)
		require.NoError(t, err)
		assert.Equal(t, StatusPending, o.Status)
		repo.AssertExpectations(t)
	})

	t.Run("Validation errors", func(t *testing.T) {
		svc := NewService(new(MockRepository), new(MockEstablishments), new(MockQuoter), nil)

		cases := map[string]func(*CreateOrderInput){
			"no establishment":  func(in *CreateOrderInput) { in.EstablishmentID = uuid.Nil },
			"negative subtotal": func(in *CreateOrderInput) { in.Subtotal = -1 },
			"discount too big":  func(in *CreateOrderInput) { in.Discount = 5000 },
			"bad payment":       func(in *CreateOrderInput) { in.PaymentMethod = "cheque" },
			"blank address":     func(in *CreateOrderInput) { in.DeliveryAddress = "  " },
			"half coordinates":  func(in *CreateOrderInput) { in.DeliveryLng = nil },
			"out of range":      func(in *CreateOrderInput) { in.DeliveryLat = ptr(123.0) },
		}
		for name, mutate := range cases {
			in := validInput()
			mutate(&in)
			_, err := svc.Create(ctx, in, customer)
			assert.ErrorIs(t, err, ErrValidation, name)
		}
	})

	t.Run("Courier may not place orders", func(t *testing.T) {
		svc := NewService(new(MockRepository), new(MockEstablishments), new(MockQuoter), nil)
		_, err := svc.Create(ctx, validInput(), auth.Actor{ID: uuid.New(), Role: auth.RoleCourier})
		assert.ErrorIs(t, err, ErrForbidden)
	})

	t.Run("Unknown establishment", func(t *testing.T) {
		ests := new(MockEstablishments)
		ests.On("GetByID", ctx, estID).Return(nil, establishment.ErrNotFound)
		svc := NewService(new(MockRepository), ests, new(MockQuoter), nil)

		_, err := svc.Create(ctx, validInput(), customer)
		assert.ErrorIs(t, err, ErrEstablishmentNotFound)
	})

	t.Run("Closed establishment", func(t *testing.T) {
		ests := new(MockEstablishments)
		ests.On("GetByID", ctx, estID).Return(&establishment.Establishment{ID: estID}, nil)
		svc := NewService(new(MockRepository), ests, new(MockQuoter), nil)

		_, err := svc.Create(ctx, validInput(), customer)
		assert.ErrorIs(t, err, ErrValidation)
	})
}

func TestService_Transition(t *testing.T) {
	ctx := context.Background()
	estID := uuid.New()
	orderID := uuid.New()
	operator := auth.Actor{ID: uuid.New(), Role: auth.RoleEstablishment, EstablishmentID: &estID}

	t.Run("Writes guarded edge and publishes", func(t *testing.T) {
		repo := new(MockRepository)
		pub := new(MockPublisher)
		svc := NewService(repo, nil, nil, pub)

		confirmedAt := time.Now()
		repo.On("GetByID", ctx, orderID).Return(&Order{ID: orderID, EstablishmentID: estID, Status: StatusPending}, nil)
		repo.On("UpdateStatus", ctx, StatusWrite{OrderID: orderID, From: StatusPending, To: StatusConfirmed, Actor: operator}).
			Return(&Order{ID: orderID, OrderNumber: 7, EstablishmentID: estID, Status: StatusConfirmed, ConfirmedAt: &confirmedAt}, nil)
		pub.On("PublishStatus", ctx, mock.MatchedBy(func(ev StatusEvent) bool {
			return ev.OldStatus == StatusPending && ev.NewStatus == StatusConfirmed && ev.ChangedAt.Equal(confirmedAt)
		})).Return(nil)

		o, err := svc.Transition(ctx, orderID, StatusConfirmed, operator)
		require.NoError(t, err)
		assert.Equal(t, StatusConfirmed, o.Status)
		pub.AssertExpectations(t)
	})

	t.Run("Publisher failure is absorbed", func(t *testing.T) {
		repo := new(MockRepository)
		pub := new(MockPublisher)
		svc := NewService(repo, nil, nil, pub)

		repo.On("GetByID", ctx, orderID).Return(&Order{ID: orderID, EstablishmentID: estID, Status: StatusConfirmed}, nil)
		repo.On("UpdateStatus", ctx, mock.Anything).Return(&Order{ID: orderID, Status: StatusPreparing}, nil)
		pub.On("PublishStatus", ctx, mock.Anything).Return(errors.New("broker down"))

		_, err := svc.Transition(ctx, orderID, StatusPreparing, operator)
		assert.NoError(t, err)
	})

	t.Run("Not found", func(t *testing.T) {
		repo := new(MockRepository)
		repo.On("GetByID", ctx, orderID).Return(nil, ErrNotFound)

		_, err := NewService(repo, nil, nil, nil).Transition(ctx, orderID, StatusConfirmed, operator)
		assert.ErrorIs(t, err, ErrNotFound)
	})

	t.Run("Skipping forward is invalid", func(t *testing.T) {
		repo := new(MockRepository)
		repo.On("GetByID", ctx, orderID).Return(&Order{ID: orderID, EstablishmentID: estID, Status: StatusPending}, nil)

		_, err := NewService(repo, nil, nil, nil).Transition(ctx, orderID, StatusPreparing, operator)
		assert.ErrorIs(t, err, ErrInvalidTransition)
		repo.AssertNotCalled(t, "UpdateStatus", mock.Anything, mock.Anything)
	})

	t.Run("Pickup requires claim", func(t *testing.T) {
		repo := new(MockRepository)
		repo.On("GetByID", ctx, orderID).Return(&Order{ID: orderID, EstablishmentID: estID, Status: StatusReady}, nil)

		courier := auth.Actor{ID: uuid.New(), Role: auth.RoleCourier}
		_, err := NewService(repo, nil, nil, nil).Transition(ctx, orderID, StatusOutForDelivery, courier)
		assert.ErrorIs(t, err, ErrInvalidTransition)
	})

	t.Run("Other establishment is forbidden", func(t *testing.T) {
		repo := new(MockRepository)
		repo.On("GetByID", ctx, orderID).Return(&Order{ID: orderID, EstablishmentID: uuid.New(), Status: StatusPending}, nil)

		_, err := NewService(repo, nil, nil, nil).Transition(ctx, orderID, StatusConfirmed, operator)
		assert.ErrorIs(t, err, ErrForbidden)
	})

	t.Run("Customer may not confirm", func(t *testing.T) {
		customerID := uuid.New()
		repo := new(MockRepository)
		repo.On("GetByID", ctx, orderID).Return(&Order{ID: orderID, CustomerID: &customerID, Status: StatusPending}, nil)

		_, err := NewService(repo, nil, nil, nil).Transition(ctx, orderID, StatusConfirmed, auth.Actor{ID: customerID, Role: auth.RoleCustomer})
		assert.ErrorIs(t, err, ErrForbidden)
	})

	t.Run("Concurrent move is a conflict", func(t *testing.T) {
		repo := new(MockRepository)
		repo.On("GetByID", ctx, orderID).Return(&Order{ID: orderID, EstablishmentID: estID, Status: StatusPending}, nil).Once()
		repo.On("UpdateStatus", ctx, mock.Anything).Return(nil, nil)
		repo.On("GetByID", ctx, orderID).Return(&Order{ID: orderID, EstablishmentID: estID, Status: StatusCancelled}, nil).Once()

		_, err := NewService(repo, nil, nil, nil).Transition(ctx, orderID, StatusConfirmed, operator)
		assert.ErrorIs(t, err, ErrConflict)
		assert.Contains(t, err.Error(), "cancelled")
	})

	t.Run("Courier delivery is guarded by driver", func(t *testing.T) {
		driverID := uuid.New()
		courier := auth.Actor{ID: driverID, Role: auth.RoleCourier}
		repo := new(MockRepository)
		repo.On("GetByID", ctx, orderID).Return(&Order{ID: orderID, DriverID: &driverID, Status: StatusOutForDelivery}, nil)
		repo.On("UpdateStatus", ctx, mock.MatchedBy(func(w StatusWrite) bool {
			return w.DriverID != nil && *w.DriverID == driverID && w.To == StatusDelivered
		})).Return(&Order{ID: orderID, DriverID: &driverID, Status: StatusDelivered}, nil)

		o, err := NewService(repo, nil, nil, nil).Transition(ctx, orderID, StatusDelivered, courier)
		require.NoError(t, err)
		assert.Equal(t, StatusDelivered, o.Status)
	})
}

func TestService_Cancel(t *testing.T) {
	ctx := context.Background()
	estID := uuid.New()
	orderID := uuid.New()
	operator := auth.Actor{ID: uuid.New(), Role: auth.RoleEstablishment, EstablishmentID: &estID}

	t.Run("Blank reason never reaches the store", func(t *testing.T) {
		repo := new(MockRepository)
		svc := NewService(repo, nil, nil, nil)

		for _, reason := range []string{"", "   "} {
			_, err := svc.Cancel(ctx, orderID, reason, operator)
			assert.ErrorIs(t, err, ErrValidation)
		}
		repo.AssertNotCalled(t, "GetByID", mock.Anything, mock.Anything)
	})

	t.Run("Transition to cancelled needs Cancel", func(t *testing.T) {
		_, err := NewService(new(MockRepository), nil, nil, nil).Transition(ctx, orderID, StatusCancelled, operator)
		assert.ErrorIs(t, err, ErrValidation)
	})

	t.Run("Reason is trimmed and written", func(t *testing.T) {
		repo := new(MockRepository)
		repo.On("GetByID", ctx, orderID).Return(&Order{ID: orderID, EstablishmentID: estID, Status: StatusReady}, nil)
		repo.On("UpdateStatus", ctx, mock.MatchedBy(func(w StatusWrite) bool {
			return w.To == StatusCancelled && w.Reason != nil && *w.Reason == "out of stock"
		})).Return(&Order{ID: orderID, Status: StatusCancelled}, nil)

		_, err := NewService(repo, nil, nil, nil).Cancel(ctx, orderID, "  out of stock ", operator)
		assert.NoError(t, err)
	})

	t.Run("Only admin cancels after pickup", func(t *testing.T) {
		repo := new(MockRepository)
		repo.On("GetByID", ctx, orderID).Return(&Order{ID: orderID, EstablishmentID: estID, Status: StatusOutForDelivery}, nil)

		_, err := NewService(repo, nil, nil, nil).Cancel(ctx, orderID, "customer unreachable", operator)
		assert.ErrorIs(t, err, ErrForbidden)
	})
}

func TestService_Reads(t *testing.T) {
	ctx := context.Background()
	estID := uuid.New()
	orderID := uuid.New()
	customerID := uuid.New()
	o := &Order{ID: orderID, EstablishmentID: estID, CustomerID: &customerID, Status: StatusReady}

	repo := new(MockRepository)
	repo.On("GetByID", ctx, orderID).Return(o, nil)
	repo.On("History", ctx, orderID).Return([]*StatusChange{{ToStatus: StatusPending}}, nil)
	repo.On("ListByStatus", ctx, estID, StatusPending).Return([]*Order{o}, nil)
	svc := NewService(repo, nil, nil, nil)

	allowed := []auth.Actor{
		{ID: customerID, Role: auth.RoleCustomer},
		{ID: uuid.New(), Role: auth.RoleEstablishment, EstablishmentID: &estID},
		{ID: uuid.New(), Role: auth.RoleCourier},
		{ID: uuid.New(), Role: auth.RoleAdmin},
	}
	for _, a := range allowed {
		_, err := svc.Get(ctx, orderID, a)
		assert.NoError(t, err, a.Role)
	}

	_, err := svc.Get(ctx, orderID, auth.Actor{ID: uuid.New(), Role: auth.RoleCustomer})
	assert.ErrorIs(t, err, ErrForbidden)

	history, err := svc.History(ctx, orderID, allowed[0])
	require.NoError(t, err)
	assert.Len(t, history, 1)

	_, err = svc.ListByStatus(ctx, estID, StatusPending, allowed[0])
	assert.ErrorIs(t, err, ErrForbidden)
	list, err := svc.ListByStatus(ctx, estID, StatusPending, allowed[1])
	require.NoError(t, err)
	assert.Len(t, list, 1)
}
