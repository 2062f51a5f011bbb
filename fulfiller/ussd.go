package fulfiller

import "strings"

// DialStatus is the classification of a dial-session screen text.
type DialStatus int

const (
	DialUnknown DialStatus = iota
	DialSuccess
	DialFailure
)

func (s DialStatus) String() string {
	switch s {
	case DialSuccess:
		return "success"
	case DialFailure:
		return "failure"
	}
	return "unknown"
}

// Keyword lists recognized in USSD session screens. Success wins over
// failure when a text somehow contains both.
var (
	ussdSuccessKeywords = []string{"تم تعبئة", "رصيدك الحالي", "success", "recharged"}
	ussdFailureKeywords = []string{"خطأ", "فشل", "error", "failed", "غير صحيح"}
)

// ClassifyDialText decides whether a dial-session text reports success or
// failure. Unknown texts mean the session is still mid-flow and should be
// ignored rather than resolved.
func ClassifyDialText(text string) DialStatus {
	lower := strings.ToLower(text)
	for _, kw := range ussdSuccessKeywords {
		if strings.Contains(lower, kw) {
			return DialSuccess
		}
	}
	for _, kw := range ussdFailureKeywords {
		if strings.Contains(lower, kw) {
			return DialFailure
		}
	}
	return DialUnknown
}
