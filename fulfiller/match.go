package fulfiller

import "strings"

// Matches reports whether a notification event satisfies an order's
// acceptance criteria. All three conditions must hold:
//   - the order's provider tag contains the event's provider tag
//     (case-insensitive; the order side is the superstring)
//   - amounts are exactly equal, no tolerance
//   - after normalization one phone is a suffix of the other, which covers
//     country-code and leading-zero variance in either direction
func Matches(order Order, ev NotificationEvent) bool {
	if !strings.Contains(strings.ToLower(order.Provider), strings.ToLower(ev.Provider)) {
		return false
	}
	if !order.Amount.Equal(ev.Amount) {
		return false
	}
	orderPhone := NormalizePhone(order.UserPhone)
	eventPhone := NormalizePhone(ev.SenderPhone)
	return strings.HasSuffix(orderPhone, eventPhone) || strings.HasSuffix(eventPhone, orderPhone)
}

// NormalizePhone strips everything but digits and keeps the last 10 digits
// when the number is longer, dropping country codes and trunk prefixes.
func NormalizePhone(phone string) string {
	var b strings.Builder
	for _, r := range phone {
		if r >= '0' && r <= '9' {
			b.WriteRune(r)
		}
	}
	digits := b.String()
	if len(digits) > 10 {
		return digits[len(digits)-10:]
	}
	return digits
}
