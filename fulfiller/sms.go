package fulfiller

import (
	"regexp"
	"strings"

	"github.com/shopspring/decimal"
)

// Provider tags as they appear in orders and in parsed events.
const (
	ProviderAsiacell = "Asiacell"
	ProviderZain     = "Zain"
)

// Inbound transfer notifications, per provider. Asiacell: "إستلمت <amount>
// ... من الرقم <phone>". Zain: "... بتحويل <amount> ... المشترك <phone>".
var (
	asiacellAmountRe = regexp.MustCompile(`إستلمت\s*([\d,،]+)`)
	asiacellPhoneRe  = regexp.MustCompile(`من الرقم\s*(\d+)`)
	zainAmountRe     = regexp.MustCompile(`بتحويل\s*([\d,،]+)`)
	zainPhoneRe      = regexp.MustCompile(`المشترك\s*(\d+)`)
)

var arabicDigits = strings.NewReplacer(
	"٠", "0", "١", "1", "٢", "2", "٣", "3", "٤", "4",
	"٥", "5", "٦", "6", "٧", "7", "٨", "8", "٩", "9",
)

// ParseInboundSMS extracts a notification event from a raw inbound message.
// The sending address decides which provider's format applies; unparseable
// or non-transfer messages return ok == false.
func ParseInboundSMS(sender, body string) (NotificationEvent, bool) {
	// messages may carry Arabic-Indic digits; normalize before matching
	body = arabicDigits.Replace(body)

	lowerSender := strings.ToLower(sender)
	switch {
	case strings.Contains(lowerSender, "asiacell"):
		return parseTransfer(body, asiacellAmountRe, asiacellPhoneRe, ProviderAsiacell)
	case strings.Contains(lowerSender, "zain"), strings.Contains(lowerSender, "iq"):
		return parseTransfer(body, zainAmountRe, zainPhoneRe, ProviderZain)
	}
	return NotificationEvent{}, false
}

func parseTransfer(body string, amountRe, phoneRe *regexp.Regexp, provider string) (NotificationEvent, bool) {
	amountMatch := amountRe.FindStringSubmatch(body)
	phoneMatch := phoneRe.FindStringSubmatch(body)
	if amountMatch == nil || phoneMatch == nil {
		return NotificationEvent{}, false
	}

	amount, ok := parseAmount(amountMatch[1])
	if !ok {
		return NotificationEvent{}, false
	}

	return NotificationEvent{
		Amount:      amount,
		SenderPhone: phoneMatch[1],
		Provider:    provider,
	}, true
}

// parseAmount strips Western and Arabic thousands separators and requires a
// positive value.
func parseAmount(raw string) (decimal.Decimal, bool) {
	clean := strings.ReplaceAll(raw, ",", "")
	clean = strings.ReplaceAll(clean, "،", "")
	clean = strings.TrimSpace(clean)

	amount, err := decimal.NewFromString(clean)
	if err != nil || !amount.IsPositive() {
		return decimal.Decimal{}, false
	}
	return amount, true
}
