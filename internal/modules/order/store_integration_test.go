package order

import (
	"context"
	"os"
	"testing"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/stretchr/testify/suite"
	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/modules/postgres"
	"github.com/testcontainers/testcontainers-go/wait"

	"parcel/internal/types"
)

// StoreIntegrationTestSuite runs Store against a throwaway PostgreSQL container.
type StoreIntegrationTestSuite struct {
	suite.Suite
	container *postgres.PostgresContainer
	db        *pgxpool.Pool
	store     *Store
}

func (s *StoreIntegrationTestSuite) SetupSuite() {
	ctx := context.Background()

	container, err := postgres.Run(ctx,
		"postgres:15-alpine",
		postgres.WithDatabase("parcel"),
		postgres.WithUsername("parcel"),
		postgres.WithPassword("parcel"),
		testcontainers.WithWaitStrategy(
			wait.ForLog("database system is ready to accept connections").
				WithOccurrence(2).
				WithStartupTimeout(30*time.Second),
		),
	)
	s.Require().NoError(err)
	s.container = container

	connStr, err := container.ConnectionString(ctx, "sslmode=disable")
	s.Require().NoError(err)

	db, err := pgxpool.New(ctx, connStr)
	s.Require().NoError(err)
	s.db = db

	s.Require().NoError(applyMigration(ctx, db))
}

func (s *StoreIntegrationTestSuite) SetupTest() {
	ctx := context.Background()
	s.Require().NoError(truncateAll(ctx, s.db))
	s.Require().NoError(seedPeople(ctx, s.db))
	s.store = NewStore(s.db)
}

func (s *StoreIntegrationTestSuite) TearDownSuite() {
	if s.db != nil {
		s.db.Close()
	}
	if s.container != nil {
		s.Require().NoError(s.container.Terminate(context.Background()))
	}
}

func (s *StoreIntegrationTestSuite) newOrder(number string) *Order {
	now := time.Now().UTC().Truncate(time.Microsecond)
	return &Order{
		ID:                 types.NewID(),
		OrderNumber:        number,
		OrgID:              testOrg,
		CustomerID:         testCustomer,
		RiderID:            testRider,
		Status:             StatusPending,
		PackageDescription: "integration parcel",
		AssignedAt:         now,
		CreatedAt:          now,
		UpdatedAt:          now,
	}
}

func (s *StoreIntegrationTestSuite) TestCreateAndGet() {
	ctx := context.Background()
	o := s.newOrder("ORD-261017094512-0001")
	s.Require().NoError(s.store.Create(ctx, o))

	got, err := s.store.Get(ctx, o.ID)
	s.Require().NoError(err)
	s.Equal(o.OrderNumber, got.OrderNumber)
	s.Equal(StatusPending, got.Status)
	s.Equal(0, got.StatusVersion)
	s.Nil(got.RiderCurrentLocation)
	s.True(o.AssignedAt.Equal(got.AssignedAt))
}

func (s *StoreIntegrationTestSuite) TestGetMissing() {
	_, err := s.store.Get(context.Background(), "missing")
	s.ErrorIs(err, ErrNotFound)
}

func (s *StoreIntegrationTestSuite) TestDuplicateOrderNumber() {
	ctx := context.Background()
	s.Require().NoError(s.store.Create(ctx, s.newOrder("ORD-261017094512-0002")))
	err := s.store.Create(ctx, s.newOrder("ORD-261017094512-0002"))
	s.ErrorIs(err, ErrDuplicateNumber)
}

func (s *StoreIntegrationTestSuite) TestUpdateStatusCompareAndSet() {
	ctx := context.Background()
	o := s.newOrder("ORD-261017094512-0003")
	s.Require().NoError(s.store.Create(ctx, o))

	now := time.Now()
	ok, err := s.store.UpdateStatus(ctx, o.ID, StatusPending, StatusRiderAccepted, 0, Patch{RiderAcceptedAt: &now})
	s.Require().NoError(err)
	s.True(ok)

	// Same expectation again: the row moved on, nothing is written.
	ok, err = s.store.UpdateStatus(ctx, o.ID, StatusPending, StatusCustomerLocationSet, 0, Patch{})
	s.Require().NoError(err)
	s.False(ok)

	label, precise := "Home", homePrecise
	ok, err = s.store.UpdateStatus(ctx, o.ID, StatusRiderAccepted, StatusConfirmed, 1, Patch{
		CustomerLocationSetAt:   &now,
		CustomerLocationLabel:   &label,
		CustomerLocationPrecise: &precise,
	})
	s.Require().NoError(err)
	s.True(ok)

	got, err := s.store.Get(ctx, o.ID)
	s.Require().NoError(err)
	s.Equal(StatusConfirmed, got.Status)
	s.Equal(2, got.StatusVersion)
	s.NotNil(got.RiderAcceptedAt)
	s.NotNil(got.CustomerLocationSetAt)
	s.Equal(homePrecise, *got.CustomerLocationPrecise)
}

func (s *StoreIntegrationTestSuite) TestSetRiderLocationSkipsTerminal() {
	ctx := context.Background()
	o := s.newOrder("ORD-261017094512-0004")
	s.Require().NoError(s.store.Create(ctx, o))

	ok, err := s.store.SetRiderLocation(ctx, o.ID, "1,2")
	s.Require().NoError(err)
	s.True(ok)

	by := testCustomer
	ok, err = s.store.UpdateStatus(ctx, o.ID, StatusPending, StatusCancelled, 0, Patch{CancelledBy: &by})
	s.Require().NoError(err)
	s.Require().True(ok)

	ok, err = s.store.SetRiderLocation(ctx, o.ID, "3,4")
	s.Require().NoError(err)
	s.False(ok)

	got, err := s.store.Get(ctx, o.ID)
	s.Require().NoError(err)
	s.Equal("1,2", *got.RiderCurrentLocation)
	s.Equal(testCustomer, *got.CancelledBy)
}

func (s *StoreIntegrationTestSuite) TestListFilters() {
	ctx := context.Background()
	first := s.newOrder("ORD-261017094512-0005")
	second := s.newOrder("ORD-261017094512-0006")
	second.CreatedAt = first.CreatedAt.Add(time.Second)
	s.Require().NoError(s.store.Create(ctx, first))
	s.Require().NoError(s.store.Create(ctx, second))

	org := testOrg
	got, err := s.store.List(ctx, Filter{OrgID: &org, Limit: 10})
	s.Require().NoError(err)
	s.Require().Len(got, 2)
	s.Equal(second.ID, got[0].ID)

	pending := StatusPending
	rider := testRider
	got, err = s.store.List(ctx, Filter{RiderID: &rider, Status: &pending, Limit: 1, Offset: 1})
	s.Require().NoError(err)
	s.Require().Len(got, 1)
	s.Equal(first.ID, got[0].ID)
}

func (s *StoreIntegrationTestSuite) TestAppendEvent() {
	ctx := context.Background()
	o := s.newOrder("ORD-261017094512-0007")
	s.Require().NoError(s.store.Create(ctx, o))

	actor := testOwner
	s.Require().NoError(s.store.AppendEvent(ctx, &Event{
		OrderID:    o.ID,
		FromStatus: StatusNone,
		ToStatus:   StatusPending,
		ActorRole:  types.RoleOwner,
		ActorID:    &actor,
		CreatedAt:  time.Now(),
	}))

	var n int
	s.Require().NoError(s.db.QueryRow(ctx, `SELECT COUNT(*) FROM order_state_events WHERE order_id = $1`, string(o.ID)).Scan(&n))
	s.Equal(1, n)
}

func TestStoreIntegrationTestSuite(t *testing.T) {
	if os.Getenv("PARCEL_TESTCONTAINERS") != "1" {
		t.Skip("PARCEL_TESTCONTAINERS not set; skipping container-backed store tests")
	}
	suite.Run(t, new(StoreIntegrationTestSuite))
}
