package httpcache

import (
	"net/http"
	"net/http/httptest"
	"strconv"
	"testing"
	"time"
)

// TestAgeHeader verifies the Age header is absent on a fresh origin response
// and present, with a realistic value, once served from cache.
func TestAgeHeader(t *testing.T) {
	counter := 0
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		counter++
		w.Header().Set("Cache-Control", "max-age=3600")
		w.Header().Set("Date", time.Now().UTC().Format(time.RFC1123))
		w.Write([]byte("test")) //nolint:errcheck
	}))
	defer ts.Close()

	client, _ := newCachingClient(t, WithMarkCachedResponses(true))

	req, _ := http.NewRequest(http.MethodGet, ts.URL, nil)
	resp, err := client.Do(req)
	if err != nil {
		t.Fatal(err)
	}
	drainAndClose(t, resp)

	if resp.Header.Get(XCache) != "" {
		t.Fatal("first request should not be from cache")
	}
	if resp.Header.Get(headerAge) != "" {
		t.Fatal("first request should not have an Age header")
	}

	clock = &fakeClock{elapsed: 2 * time.Second}
	defer func() { clock = realClock{} }()

	resp2, err := client.Do(req)
	if err != nil {
		t.Fatal(err)
	}
	drainAndClose(t, resp2)

	if resp2.Header.Get(XCache) != "HIT" {
		t.Fatal("second request should be served from cache")
	}

	ageStr := resp2.Header.Get(headerAge)
	if ageStr == "" {
		t.Fatal("Age header should be present on cached response")
	}
	age, err := strconv.ParseInt(ageStr, 10, 64)
	if err != nil {
		t.Fatalf("failed to parse Age header: %v", err)
	}
	if age < 1 || age > 4 {
		t.Fatalf("Age should be ~2 seconds, got %d", age)
	}
	if counter != 1 {
		t.Fatalf("expected 1 server hit, got %d", counter)
	}
}

// TestAgeHeaderWithRevalidation verifies Age is recomputed after a
// synchronous 304 revalidation.
func TestAgeHeaderWithRevalidation(t *testing.T) {
	counter := 0
	etag := `"test-etag"`
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		counter++
		if r.Header.Get("If-None-Match") == etag {
			w.WriteHeader(http.StatusNotModified)
			return
		}
		w.Header().Set("Cache-Control", "max-age=1")
		w.Header().Set("ETag", etag)
		w.Header().Set("Date", time.Now().UTC().Format(time.RFC1123))
		w.Write([]byte("test")) //nolint:errcheck
	}))
	defer ts.Close()

	client, _ := newCachingClient(t, WithMarkCachedResponses(true))

	req, _ := http.NewRequest(http.MethodGet, ts.URL, nil)
	resp, err := client.Do(req)
	if err != nil {
		t.Fatal(err)
	}
	drainAndClose(t, resp)

	clock = &fakeClock{elapsed: 2 * time.Second}
	defer func() { clock = realClock{} }()

	resp2, err := client.Do(req)
	if err != nil {
		t.Fatal(err)
	}
	drainAndClose(t, resp2)

	if resp2.Header.Get(XCache) != "HIT" {
		t.Fatal("second request should be served from cache")
	}
	if resp2.Header.Get(XCacheFreshness) != freshnessStringFresh {
		t.Fatalf("expected fresh marker after revalidation, got %q", resp2.Header.Get(XCacheFreshness))
	}

	ageStr := resp2.Header.Get(headerAge)
	if ageStr == "" {
		t.Fatal("Age header should be present after revalidation")
	}
	if counter != 2 {
		t.Fatalf("expected 2 server hits (initial + revalidation), got %d", counter)
	}
}

// TestCalculateAge tests calculateAge directly against RFC 9111 §4.2.3.
func TestCalculateAge(t *testing.T) {
	now := time.Now().UTC()

	tests := []struct {
		name        string
		dateHeader  string
		reqOffset   time.Duration
		respOffset  time.Duration
		ageHeader   string
		expectedMin int64
		expectedMax int64
		shouldError bool
	}{
		{
			name:        "no Date header",
			dateHeader:  "",
			shouldError: true,
		},
		{
			name:        "fresh response",
			dateHeader:  now.Add(-10 * time.Second).Format(time.RFC1123),
			respOffset:  -10 * time.Second,
			expectedMin: 9,
			expectedMax: 11,
		},
		{
			name:        "with request and response instants",
			dateHeader:  now.Add(-20 * time.Second).Format(time.RFC1123),
			reqOffset:   -20 * time.Second,
			respOffset:  -10 * time.Second,
			expectedMin: 9,
			expectedMax: 11,
		},
		{
			name:        "with existing Age header",
			dateHeader:  now.Add(-10 * time.Second).Format(time.RFC1123),
			ageHeader:   "5",
			respOffset:  -5 * time.Second,
			expectedMin: 9,
			expectedMax: 11,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			headers := http.Header{}
			if tt.dateHeader != "" {
				headers.Set("Date", tt.dateHeader)
			}
			if tt.ageHeader != "" {
				headers.Set(headerAge, tt.ageHeader)
			}

			var reqInstant, respInstant time.Time
			if tt.reqOffset != 0 {
				reqInstant = now.Add(tt.reqOffset)
			}
			if tt.respOffset != 0 {
				respInstant = now.Add(tt.respOffset)
			} else {
				respInstant = now
			}

			age, err := calculateAge(headers, reqInstant, respInstant, GetLogger())

			if tt.shouldError {
				if err == nil {
					t.Fatal("expected error, got nil")
				}
				return
			}
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}

			ageSeconds := int64(age.Seconds())
			if ageSeconds < tt.expectedMin || ageSeconds > tt.expectedMax {
				t.Fatalf("age %d not in expected range [%d, %d]", ageSeconds, tt.expectedMin, tt.expectedMax)
			}
		})
	}
}

func TestFormatAge(t *testing.T) {
	tests := []struct {
		duration time.Duration
		expected string
	}{
		{0, "0"},
		{1 * time.Second, "1"},
		{10 * time.Second, "10"},
		{3600 * time.Second, "3600"},
		{-5 * time.Second, "0"},
	}

	for _, tt := range tests {
		result := formatAge(tt.duration)
		if result != tt.expected {
			t.Errorf("formatAge(%v) = %q, want %q", tt.duration, result, tt.expected)
		}
	}
}

// TestAgeHeaderNotOnFreshResponse verifies a fresh origin response carries
// no Age header before it is ever cached.
func TestAgeHeaderNotOnFreshResponse(t *testing.T) {
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Cache-Control", "max-age=3600")
		w.Header().Set("Date", time.Now().UTC().Format(time.RFC1123))
		w.Write([]byte("test")) //nolint:errcheck
	}))
	defer ts.Close()

	client, _ := newCachingClient(t)

	req, _ := http.NewRequest(http.MethodGet, ts.URL, nil)
	resp, err := client.Do(req)
	if err != nil {
		t.Fatal(err)
	}
	drainAndClose(t, resp)

	if resp.Header.Get(headerAge) != "" {
		t.Fatal("fresh response from server should not have an Age header")
	}
}

func TestParseAgeHeaderValid(t *testing.T) {
	tests := []struct {
		name     string
		ageValue string
		want     time.Duration
	}{
		{name: "zero age", ageValue: "0", want: 0},
		{name: "positive age", ageValue: "3600", want: 3600 * time.Second},
		{name: "large age", ageValue: "86400", want: 86400 * time.Second},
		{name: "age with whitespace", ageValue: "  300  ", want: 300 * time.Second},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			headers := http.Header{}
			headers.Set(headerAge, tt.ageValue)

			got, _, valid := parseAgeHeader(headers, GetLogger())
			if !valid {
				t.Errorf("parseAgeHeader() valid = %v, want true", valid)
				return
			}
			if got != tt.want {
				t.Errorf("parseAgeHeader() = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestParseAgeHeaderInvalid(t *testing.T) {
	tests := []struct {
		name     string
		ageValue string
	}{
		{name: "negative age", ageValue: "-100"},
		{name: "non-numeric age", ageValue: "invalid"},
		{name: "float age", ageValue: "3600.5"},
		{name: "empty age", ageValue: ""},
		{name: "whitespace only", ageValue: "   "},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			headers := http.Header{}
			if tt.ageValue != "" {
				headers.Set(headerAge, tt.ageValue)
			}

			got, _, valid := parseAgeHeader(headers, GetLogger())
			if valid {
				t.Errorf("parseAgeHeader() valid = true, want false for value %q", tt.ageValue)
			}
			if got != 0 {
				t.Errorf("parseAgeHeader() = %v, want 0 for invalid value", got)
			}
		})
	}
}

func TestParseAgeHeaderMultipleValues(t *testing.T) {
	headers := http.Header{}
	headers.Add(headerAge, "300")
	headers.Add(headerAge, "600")
	headers.Add(headerAge, "900")

	got, _, valid := parseAgeHeader(headers, GetLogger())
	if !valid {
		t.Errorf("parseAgeHeader() valid = false, want true")
		return
	}
	want := 300 * time.Second
	if got != want {
		t.Errorf("parseAgeHeader() = %v, want %v (first value)", got, want)
	}
}

func TestParseAgeHeaderNoAgeHeader(t *testing.T) {
	headers := http.Header{}

	got, present, valid := parseAgeHeader(headers, GetLogger())
	if present {
		t.Errorf("parseAgeHeader() present = true, want false for missing header")
	}
	if valid {
		t.Errorf("parseAgeHeader() valid = true, want false for missing header")
	}
	if got != 0 {
		t.Errorf("parseAgeHeader() = %v, want 0 for missing header", got)
	}
}

// TestCalculateAgeWithRequestAndResponseTime exercises the full RFC 9111
// correction formula end to end.
func TestCalculateAgeWithRequestAndResponseTime(t *testing.T) {
	now := time.Now().UTC()
	requestInstant := now.Add(-10 * time.Second)
	responseInstant := now.Add(-8 * time.Second)
	dateValue := now.Add(-12 * time.Second)

	headers := http.Header{}
	headers.Set("Date", dateValue.Format(time.RFC1123))
	headers.Set(headerAge, "5")

	age, err := calculateAge(headers, requestInstant, responseInstant, GetLogger())
	if err != nil {
		t.Fatalf("calculateAge() error = %v", err)
	}

	// apparent_age = max(0, -8 - (-12)) = 4s; response_delay = -8 - (-10) = 2s
	// corrected_age_value = 5 + 2 = 7s; corrected_initial_age = max(4, 7) = 7s
	// resident_time ~= 8s; current_age ~= 15s
	expectedAge := 15 * time.Second
	if age < expectedAge-time.Second || age > expectedAge+time.Second {
		t.Errorf("calculateAge() = %v, want ~%v", age, expectedAge)
	}
}

// TestCalculateAgeCorrectionOrder pins the order of the RFC 9111 §4.2.3
// correction: corrected_received_age = max(apparent_age, age_value) must be
// computed before response_delay is added, not after. With apparent_age
// dominating both age_value and age_value+response_delay, the two orderings
// diverge (100s vs 150s here), so this test fails under the wrong grouping.
func TestCalculateAgeCorrectionOrder(t *testing.T) {
	now := time.Now().UTC()
	responseInstant := now
	requestInstant := now.Add(-50 * time.Second)
	dateValue := now.Add(-100 * time.Second)

	headers := http.Header{}
	headers.Set("Date", dateValue.Format(time.RFC1123))
	headers.Set(headerAge, "0")

	age, err := calculateAge(headers, requestInstant, responseInstant, GetLogger())
	if err != nil {
		t.Fatalf("calculateAge() error = %v", err)
	}

	// apparent_age = 100s; age_value = 0; response_delay = 50s
	// corrected_received_age = max(100, 0) = 100s
	// corrected_initial_age = 100 + 50 = 150s; resident_time ~= 0s
	expectedAge := 150 * time.Second
	if age < expectedAge-time.Second || age > expectedAge+time.Second {
		t.Errorf("calculateAge() = %v, want ~%v", age, expectedAge)
	}
}

// TestCalculateAgeMalformedHeaderIsInfinite verifies that a malformed or
// negative Age header is treated as an effectively infinite age rather than
// as though no Age header were present at all.
func TestCalculateAgeMalformedHeaderIsInfinite(t *testing.T) {
	now := time.Now().UTC()
	responseInstant := now.Add(-1 * time.Second)
	dateValue := now.Add(-1 * time.Second)

	headers := http.Header{}
	headers.Set("Date", dateValue.Format(time.RFC1123))
	headers.Set(headerAge, "-5")

	age, err := calculateAge(headers, time.Time{}, responseInstant, GetLogger())
	if err != nil {
		t.Fatalf("calculateAge() error = %v", err)
	}
	if age < 365*24*time.Hour {
		t.Errorf("calculateAge() = %v, want an effectively infinite age for a negative Age header", age)
	}
}

func TestCalculateAgeWithoutRequestTime(t *testing.T) {
	now := time.Now().UTC()
	responseInstant := now.Add(-10 * time.Second)
	dateValue := now.Add(-15 * time.Second)

	headers := http.Header{}
	headers.Set("Date", dateValue.Format(time.RFC1123))
	headers.Set(headerAge, "3")

	age, err := calculateAge(headers, time.Time{}, responseInstant, GetLogger())
	if err != nil {
		t.Fatalf("calculateAge() error = %v", err)
	}

	// response_delay = 0; apparent_age = max(0, -10-(-15)) = 5s
	// corrected_initial_age = max(5, 3) = 5s; resident_time ~= 10s; current_age ~= 15s
	expectedAge := 15 * time.Second
	if age < expectedAge-time.Second || age > expectedAge+time.Second {
		t.Errorf("calculateAge() = %v, want ~%v", age, expectedAge)
	}
}

func TestCalculateAgeClockSkew(t *testing.T) {
	now := time.Now().UTC()
	responseInstant := now.Add(-5 * time.Second)
	dateValue := now // Date after response instant: clock skew

	headers := http.Header{}
	headers.Set("Date", dateValue.Format(time.RFC1123))
	headers.Set(headerAge, "0")

	age, err := calculateAge(headers, time.Time{}, responseInstant, GetLogger())
	if err != nil {
		t.Fatalf("calculateAge() error = %v", err)
	}
	if age < 0 {
		t.Errorf("calculateAge() = %v, must not be negative", age)
	}
}

func TestCalculateAgeResponseDelayCalculation(t *testing.T) {
	now := time.Now().UTC()
	requestInstant := now.Add(-10 * time.Second)
	responseInstant := now.Add(-7 * time.Second)
	dateValue := now.Add(-8 * time.Second)

	headers := http.Header{}
	headers.Set("Date", dateValue.Format(time.RFC1123))
	headers.Set(headerAge, "0")

	age, err := calculateAge(headers, requestInstant, responseInstant, GetLogger())
	if err != nil {
		t.Fatalf("calculateAge() error = %v", err)
	}

	// apparent_age = max(0, -7-(-8)) = 1s; response_delay = -7-(-10) = 3s
	// corrected_received_age = max(1, 0) = 1s
	// corrected_initial_age = 1 + 3 = 4s; resident_time ~= 7s; current_age ~= 11s
	expectedAge := 11 * time.Second
	if age < expectedAge-time.Second || age > expectedAge+time.Second {
		t.Errorf("calculateAge() = %v, want ~%v (response_delay should be included)", age, expectedAge)
	}
}
