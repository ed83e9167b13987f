package validation

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/gin-gonic/gin"
)

func intPtr(v int) *int { return &v }

func TestIsValidValidatorID(t *testing.T) {
	tests := []struct {
		id    string
		valid bool
	}{
		{"validator_1", true},
		{"01a35887f3962a6a232e8e11fa7d4567b6866d68850974aad7289ef287676825f6", true},
		{"node-7.eu:west", true},
		{strings.Repeat("a", MaxValidatorIDLength), true},

		{"", false},
		{strings.Repeat("a", MaxValidatorIDLength+1), false},
		{"has space", false},
		{"slash/inside", false},
		{"emoji😀", false},
	}

	for _, tc := range tests {
		if got := IsValidValidatorID(tc.id); got != tc.valid {
			t.Errorf("IsValidValidatorID(%q) = %v, want %v", tc.id, got, tc.valid)
		}
	}
}

func TestValidScore(t *testing.T) {
	tests := []struct {
		name  string
		value *int
		ok    bool
	}{
		{"zero", intPtr(0), true},
		{"max", intPtr(255), true},
		{"missing", nil, false},
		{"negative", intPtr(-1), false},
		{"overflow", intPtr(256), false},
	}

	for _, tc := range tests {
		err := ValidScore("score", tc.value)()
		if (err == nil) != tc.ok {
			t.Errorf("%s: ValidScore error = %v, want ok=%v", tc.name, err, tc.ok)
		}
	}
}

func TestParseScore(t *testing.T) {
	if v, err := ParseScore(" 200 "); err != nil || v != 200 {
		t.Errorf("ParseScore(200) = %d, %v", v, err)
	}
	for _, bad := range []string{"", "-1", "256", "1.5", "high"} {
		if _, err := ParseScore(bad); err == nil {
			t.Errorf("ParseScore(%q) should fail", bad)
		}
	}
}

func TestValidate_CollectsErrors(t *testing.T) {
	errs := Validate(
		Required("validator", ""),
		ValidValidatorID("validator", "bad id"),
		ValidScore("score", intPtr(999)),
	)
	if len(errs) != 3 {
		t.Fatalf("expected 3 errors, got %d: %v", len(errs), errs)
	}
	if errs.Error() != "validator: is required" {
		t.Errorf("unexpected first error %q", errs.Error())
	}
	if ValidationErrors(nil).Error() != "validation failed" {
		t.Error("empty errors should have generic message")
	}
}

func TestValidatorParamMiddleware(t *testing.T) {
	gin.SetMode(gin.TestMode)
	r := gin.New()
	r.GET("/v1/risk/:validator", ValidatorParamMiddleware(), func(c *gin.Context) {
		c.String(http.StatusOK, c.Param("validator"))
	})

	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest("GET", "/v1/risk/validator_1", nil))
	if w.Code != http.StatusOK {
		t.Errorf("valid id: status %d", w.Code)
	}

	w = httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest("GET", "/v1/risk/bad%20id", nil))
	if w.Code != http.StatusBadRequest {
		t.Errorf("invalid id: status %d, want 400", w.Code)
	}
	if !strings.Contains(w.Body.String(), "invalid_request") {
		t.Errorf("unexpected body %s", w.Body.String())
	}
}
