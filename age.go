package httpcache

import (
	"log/slog"
	"math"
	"net/http"
	"strconv"
	"strings"
	"time"
)

// timer abstracts the wall clock so tests can control "now" deterministically.
type timer interface {
	now() time.Time
	since(t time.Time) time.Duration
}

type realClock struct{}

func (realClock) now() time.Time                  { return time.Now() }
func (realClock) since(t time.Time) time.Duration { return time.Since(t) }

var clock timer = realClock{}

// Date parses and returns the value of the Date header.
func Date(respHeaders http.Header) (time.Time, error) {
	dateHeader := respHeaders.Get(headerDate)
	if dateHeader == "" {
		return time.Time{}, ErrNoDateHeader
	}
	return time.Parse(time.RFC1123, dateHeader)
}

// parseAgeHeader parses the Age header per RFC 9111 §5.1: the first value
// wins on duplicates. present reports whether an Age header was sent at
// all; valid reports whether that value parsed as a non-negative integer.
// A present-but-invalid header (malformed or negative) is distinct from an
// absent one: calculateAge treats the former as an infinite age rather than
// as though no Age header were sent at all.
func parseAgeHeader(headers http.Header, log *slog.Logger) (age time.Duration, present bool, valid bool) {
	ageValues := headers.Values(headerAge)
	if len(ageValues) == 0 {
		return 0, false, false
	}

	ageStr := strings.TrimSpace(ageValues[0])
	if len(ageValues) > 1 {
		log.Warn("multiple Age headers detected, using first value",
			"count", len(ageValues), "first", ageStr)
	}

	ageInt, err := strconv.ParseInt(ageStr, 10, 64)
	if err != nil {
		log.Warn("invalid Age header value, treating as infinite age", "value", ageStr, "error", err)
		return 0, true, false
	}
	if ageInt < 0 {
		log.Warn("negative Age header value, treating as infinite age", "value", ageInt)
		return 0, true, false
	}

	return time.Duration(ageInt) * time.Second, true, true
}

// calculateAge implements the Age calculation algorithm from RFC 9111
// §4.2.3, using the entry's own recorded exchange timestamps rather than
// synthetic headers:
//
//	apparent_age          = max(0, response_time - date_value)
//	corrected_received_age = max(apparent_age, age_value)
//	response_delay        = response_time - request_time
//	corrected_initial_age = corrected_received_age + response_delay
//	resident_time         = now - response_time
//	current_age           = corrected_initial_age + resident_time
//
// A malformed or negative Age header is treated as an infinite age value
// (spec.md §4.3): the entry is reported as maximally old rather than as
// though it carried no Age header at all.
func calculateAge(respHeaders http.Header, requestInstant, responseInstant time.Time, log *slog.Logger) (time.Duration, error) {
	dateValue, err := Date(respHeaders)
	if err != nil {
		return 0, err
	}

	apparentAge := time.Duration(0)
	if responseInstant.After(dateValue) {
		apparentAge = responseInstant.Sub(dateValue)
	}

	ageValue, present, valid := parseAgeHeader(respHeaders, log)
	if present && !valid {
		return time.Duration(math.MaxInt64), nil
	}

	correctedReceivedAge := apparentAge
	if ageValue > correctedReceivedAge {
		correctedReceivedAge = ageValue
	}

	responseDelay := time.Duration(0)
	if !requestInstant.IsZero() && responseInstant.After(requestInstant) {
		responseDelay = responseInstant.Sub(requestInstant)
	}

	correctedInitialAge := correctedReceivedAge + responseDelay

	residentTime := clock.since(responseInstant)
	return correctedInitialAge + residentTime, nil
}

// formatAge formats a duration as an Age header value (whole seconds,
// never negative).
func formatAge(age time.Duration) string {
	seconds := int64(age.Seconds())
	if seconds < 0 {
		seconds = 0
	}
	return strconv.FormatInt(seconds, 10)
}
