package tools

import (
	"context"
	"database/sql"
	"encoding/json"
	"strings"
	"testing"
	"time"

	"github.com/aschepis/backscratcher/travel/migrations"
	"github.com/rs/zerolog"

	_ "github.com/mattn/go-sqlite3"
)

func setupTestDB(t *testing.T) *sql.DB {
	t.Helper()
	db, err := sql.Open("sqlite3", ":memory:")
	if err != nil {
		t.Fatalf("open sqlite: %v", err)
	}
	db.SetMaxOpenConns(1)
	t.Cleanup(func() { _ = db.Close() })
	if err := migrations.RunMigrations(db, zerolog.Nop()); err != nil {
		t.Fatalf("failed to run migrations: %v", err)
	}
	return db
}

func call(t *testing.T, reg *Registry, tool string, payload map[string]any) string {
	t.Helper()
	raw, err := json.Marshal(payload)
	if err != nil {
		t.Fatalf("marshal args: %v", err)
	}
	out, err := reg.Handle(context.Background(), tool, "s1", raw)
	if err != nil {
		t.Fatalf("%s returned error: %v", tool, err)
	}
	s, ok := out.(string)
	if !ok {
		t.Fatalf("%s returned %T, want string", tool, out)
	}
	return s
}

func newBookingRegistry(t *testing.T) (*Registry, *BookingStore) {
	store := NewBookingStore(setupTestDB(t))
	store.now = func() time.Time { return time.Date(2025, 5, 1, 10, 0, 0, 0, time.UTC) }
	reg := NewRegistry(zerolog.Nop(), nil)
	reg.RegisterBookingTools(store)
	return reg, store
}

func TestLookupBooking(t *testing.T) {
	reg, _ := newBookingRegistry(t)

	tests := []struct {
		name string
		id   any
		want string
	}{
		{
			name: "seeded booking",
			id:   "3",
			want: "Booking 3: Valverde Hotel in Lisbon, Portugal\nCreated: 2025-04-03\nCheck-in: 2025-08-20\nCheck-out: 2025-08-25\nPrice: €280.00\nPaid: Yes",
		},
		{name: "numeric id", id: 2, want: "Booking 2: The Lumiares Hotel & Spa in Lisbon, Portugal"},
		{name: "padded id", id: " 4 ", want: "Booking 4: Santiago de Alfama"},
		{name: "missing", id: "99", want: "No booking found for ID 99."},
		{name: "not an integer", id: "abc", want: "Booking ID must be an integer."},
		{name: "empty", id: "", want: "Booking ID must be an integer."},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := call(t, reg, "lookup_booking", map[string]any{"booking_id": tt.id})
			if !strings.HasPrefix(got, tt.want) {
				t.Errorf("lookup = %q, want prefix %q", got, tt.want)
			}
		})
	}
}

func TestCreateBooking(t *testing.T) {
	reg, store := newBookingRegistry(t)

	got := call(t, reg, "create_booking", map[string]any{
		"hotel_name":    "Pestana Palace",
		"hotel_city":    "Lisbon",
		"hotel_country": "Portugal",
		"checkin_date":  "2025-11-01",
		"checkout_date": "2025-11-04",
		"booking_price": 410.5,
	})
	if !strings.Contains(got, "Booking 6: Pestana Palace in Lisbon, Portugal") {
		t.Fatalf("unexpected result: %q", got)
	}
	if !strings.Contains(got, "Created: 2025-05-01") || !strings.Contains(got, "Price: €410.50") || !strings.Contains(got, "Paid: No") {
		t.Errorf("unexpected details: %q", got)
	}

	b, err := store.Get(context.Background(), 6)
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if b.Hotel != "Pestana Palace" || b.Paid {
		t.Errorf("stored booking = %+v", b)
	}
}

func TestCreateBooking_Validation(t *testing.T) {
	reg, _ := newBookingRegistry(t)
	base := func() map[string]any {
		return map[string]any{
			"hotel_name": "H", "hotel_city": "C", "hotel_country": "P",
			"checkin_date": "2025-11-01", "checkout_date": "2025-11-04", "booking_price": "200",
		}
	}

	tests := []struct {
		name   string
		mutate func(map[string]any)
		want   string
	}{
		{name: "missing fields", mutate: func(m map[string]any) { delete(m, "hotel_city"); delete(m, "booking_price") }, want: "Missing booking details: hotel_city, booking_price."},
		{name: "bad checkin", mutate: func(m map[string]any) { m["checkin_date"] = "01/11/2025" }, want: "Check-in date must be in YYYY-MM-DD format."},
		{name: "bad checkout", mutate: func(m map[string]any) { m["checkout_date"] = "soon" }, want: "Check-out date must be in YYYY-MM-DD format."},
		{name: "reversed dates", mutate: func(m map[string]any) { m["checkout_date"] = "2025-10-30" }, want: "Check-out date must be after check-in date."},
		{name: "bad price", mutate: func(m map[string]any) { m["booking_price"] = "cheap" }, want: "Booking price must be a positive number."},
		{name: "negative price", mutate: func(m map[string]any) { m["booking_price"] = -5 }, want: "Booking price must be a positive number."},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			args := base()
			tt.mutate(args)
			if got := call(t, reg, "create_booking", args); got != tt.want {
				t.Errorf("create_booking = %q, want %q", got, tt.want)
			}
		})
	}
}

func TestUpdatePaymentStatus(t *testing.T) {
	reg, store := newBookingRegistry(t)
	ctx := context.Background()

	if got := call(t, reg, "update_payment_status", map[string]any{"booking_id": "2"}); got != "Booking 2 marked as paid." {
		t.Errorf("update = %q", got)
	}
	b, err := store.Get(ctx, 2)
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if !b.Paid {
		t.Error("booking 2 should be paid")
	}

	if got := call(t, reg, "update_payment_status", map[string]any{"booking_id": 1, "is_paid": false}); got != "Booking 1 marked as unpaid." {
		t.Errorf("update = %q", got)
	}
	if got := call(t, reg, "update_payment_status", map[string]any{"booking_id": "42"}); got != "No booking found for ID 42." {
		t.Errorf("update missing = %q", got)
	}
	if got := call(t, reg, "update_payment_status", map[string]any{"booking_id": "x"}); got != "Booking ID must be an integer." {
		t.Errorf("update bad id = %q", got)
	}
}
