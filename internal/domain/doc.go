// Package domain contains the business entities of the booking service: customers,
// the bookings they make, the repairs and payments recorded against a booking, and
// the staff users operating the system. Entities carry their own field rules and
// are independent of any specific storage or delivery mechanism.
package domain
