package tools

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	sq "github.com/Masterminds/squirrel"
	"github.com/aschepis/backscratcher/travel/memory"
)

const dateLayout = "2006-01-02"

// ErrBookingNotFound is returned when no booking has the requested id.
var ErrBookingNotFound = errors.New("booking not found")

// Booking is a hotel reservation.
type Booking struct {
	ID       int64
	Created  string
	CheckIn  string
	CheckOut string
	Hotel    string
	City     string
	Country  string
	Price    float64
	Paid     bool
}

var bookingColumns = []string{
	"booking_id", "created_date", "checkin_date", "checkout_date",
	"hotel_name", "hotel_city", "hotel_country", "booking_price", "is_paid",
}

// String renders the booking the way it is shown to the user.
func (b Booking) String() string {
	paid := "No"
	if b.Paid {
		paid = "Yes"
	}
	return fmt.Sprintf("Booking %d: %s in %s, %s\nCreated: %s\nCheck-in: %s\nCheck-out: %s\nPrice: €%.2f\nPaid: %s",
		b.ID, b.Hotel, b.City, b.Country, b.Created, b.CheckIn, b.CheckOut, b.Price, paid)
}

// BookingStore reads and writes the bookings table.
type BookingStore struct {
	db  *sql.DB
	now func() time.Time
}

// NewBookingStore creates a BookingStore over db.
func NewBookingStore(db *sql.DB) *BookingStore {
	return &BookingStore{db: db, now: time.Now}
}

// Get returns the booking with the given id.
func (s *BookingStore) Get(ctx context.Context, id int64) (*Booking, error) {
	query, params, err := memory.StatementBuilder().
		Select(bookingColumns...).
		From("bookings").
		Where(sq.Eq{"booking_id": id}).
		ToSql()
	if err != nil {
		return nil, fmt.Errorf("build query: %w", err)
	}

	var b Booking
	var paid int
	err = s.db.QueryRowContext(ctx, query, params...).Scan(
		&b.ID, &b.Created, &b.CheckIn, &b.CheckOut, &b.Hotel, &b.City, &b.Country, &b.Price, &paid)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrBookingNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("query booking: %w", err)
	}
	b.Paid = paid != 0
	return &b, nil
}

// Create inserts b and returns it with its id and created date set.
func (s *BookingStore) Create(ctx context.Context, b Booking) (*Booking, error) {
	b.Created = s.now().Format(dateLayout)
	query, params, err := memory.StatementBuilder().
		Insert("bookings").
		Columns(bookingColumns[1:]...).
		Values(b.Created, b.CheckIn, b.CheckOut, b.Hotel, b.City, b.Country, b.Price, boolInt(b.Paid)).
		ToSql()
	if err != nil {
		return nil, fmt.Errorf("build insert: %w", err)
	}
	res, err := s.db.ExecContext(ctx, query, params...)
	if err != nil {
		return nil, fmt.Errorf("insert booking: %w", err)
	}
	b.ID, err = res.LastInsertId()
	if err != nil {
		return nil, fmt.Errorf("booking id: %w", err)
	}
	return &b, nil
}

// SetPaid updates the payment status of a booking.
func (s *BookingStore) SetPaid(ctx context.Context, id int64, paid bool) error {
	query, params, err := memory.StatementBuilder().
		Update("bookings").
		Set("is_paid", boolInt(paid)).
		Where(sq.Eq{"booking_id": id}).
		ToSql()
	if err != nil {
		return fmt.Errorf("build update: %w", err)
	}
	res, err := s.db.ExecContext(ctx, query, params...)
	if err != nil {
		return fmt.Errorf("update booking: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("rows affected: %w", err)
	}
	if n == 0 {
		return ErrBookingNotFound
	}
	return nil
}

func boolInt(b bool) int {
	if b {
		return 1
	}
	return 0
}

func parseBookingID(raw string) (int64, bool) {
	id, err := strconv.ParseInt(strings.TrimSpace(raw), 10, 64)
	return id, err == nil
}

// LookupBooking returns the user-facing description of a booking. Bad input
// produces a message, not an error.
func (s *BookingStore) LookupBooking(ctx context.Context, rawID string) (string, error) {
	id, ok := parseBookingID(rawID)
	if !ok {
		return "Booking ID must be an integer.", nil
	}
	b, err := s.Get(ctx, id)
	if errors.Is(err, ErrBookingNotFound) {
		return fmt.Sprintf("No booking found for ID %d.", id), nil
	}
	if err != nil {
		return "", err
	}
	return b.String(), nil
}

// RegisterBookingTools registers lookup, creation and payment tools.
func (r *Registry) RegisterBookingTools(store *BookingStore) {
	r.Register("lookup_booking", func(ctx context.Context, sessionID string, raw json.RawMessage) (any, error) {
		a, err := decodeArgs(raw)
		if err != nil {
			return err.Error(), nil
		}
		return store.LookupBooking(ctx, a.str("booking_id"))
	})

	r.Register("create_booking", func(ctx context.Context, sessionID string, raw json.RawMessage) (any, error) {
		a, err := decodeArgs(raw)
		if err != nil {
			return err.Error(), nil
		}
		b, problem := bookingFromArgs(a)
		if problem != "" {
			return problem, nil
		}
		created, err := store.Create(ctx, b)
		if err != nil {
			return nil, err
		}
		return "Booking created.\n" + created.String(), nil
	})

	r.Register("update_payment_status", func(ctx context.Context, sessionID string, raw json.RawMessage) (any, error) {
		a, err := decodeArgs(raw)
		if err != nil {
			return err.Error(), nil
		}
		id, ok := parseBookingID(a.str("booking_id"))
		if !ok {
			return "Booking ID must be an integer.", nil
		}
		paid := a.boolean("is_paid", true)
		err = store.SetPaid(ctx, id, paid)
		if errors.Is(err, ErrBookingNotFound) {
			return fmt.Sprintf("No booking found for ID %d.", id), nil
		}
		if err != nil {
			return nil, err
		}
		status := "paid"
		if !paid {
			status = "unpaid"
		}
		return fmt.Sprintf("Booking %d marked as %s.", id, status), nil
	})
}

// bookingFromArgs validates create_booking input. A non-empty problem string
// describes what the model must fix.
func bookingFromArgs(a args) (Booking, string) {
	b := Booking{
		Hotel:    a.str("hotel_name"),
		City:     a.str("hotel_city"),
		Country:  a.str("hotel_country"),
		CheckIn:  a.str("checkin_date"),
		CheckOut: a.str("checkout_date"),
		Paid:     a.boolean("is_paid", false),
	}
	var missing []string
	for _, f := range []struct{ name, val string }{
		{"hotel_name", b.Hotel}, {"hotel_city", b.City}, {"hotel_country", b.Country},
		{"checkin_date", b.CheckIn}, {"checkout_date", b.CheckOut}, {"booking_price", a.str("booking_price")},
	} {
		if f.val == "" {
			missing = append(missing, f.name)
		}
	}
	if len(missing) > 0 {
		return b, "Missing booking details: " + strings.Join(missing, ", ") + "."
	}

	in, err := time.Parse(dateLayout, b.CheckIn)
	if err != nil {
		return b, "Check-in date must be in YYYY-MM-DD format."
	}
	out, err := time.Parse(dateLayout, b.CheckOut)
	if err != nil {
		return b, "Check-out date must be in YYYY-MM-DD format."
	}
	if !out.After(in) {
		return b, "Check-out date must be after check-in date."
	}

	price, err := strconv.ParseFloat(strings.TrimPrefix(a.str("booking_price"), "€"), 64)
	if err != nil || price <= 0 {
		return b, "Booking price must be a positive number."
	}
	b.Price = price
	return b, ""
}
