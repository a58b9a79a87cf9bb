package form

import (
	"encoding/json"
	"errors"
	"net/url"
	"testing"

	"github.com/google/go-cmp/cmp"

	"manual-polling-tool/internal/registry"
)

func testSchema() registry.ProviderSchema {
	return registry.ProviderSchema{
		ID:       "applovin",
		Title:    "AppLovin",
		Endpoint: "/api/poll/applovin",
		Fields: []registry.Field{
			{Key: "api_key", Label: "API Key", Role: registry.RoleSecret, Required: true},
			{Key: "start_date", Role: registry.RoleStartDate},
			{Key: "end_date", Role: registry.RoleEndDate},
			{Key: "ad_type", Role: registry.RoleSelect, Options: []string{"all", "banner"}},
		},
		Dimensions: []string{"day", "country", "package_name"},
		Metrics:    []string{"revenue", "impressions"},
	}
}

func TestInputIDAndFieldKey(t *testing.T) {
	s := testSchema()
	if got := InputID("applovin", "start_date"); got != "applovin-start-date" {
		t.Errorf("InputID = %q", got)
	}
	key, ok := FieldKey(s, "applovin-api-key")
	if !ok || key != "api_key" {
		t.Errorf("FieldKey = %q, %v", key, ok)
	}
	if _, ok := FieldKey(s, "gam-api-key"); ok {
		t.Error("FieldKey matched another provider's input")
	}
}

func TestStateFromValues(t *testing.T) {
	s := testSchema()
	values := url.Values{
		"applovin-api-key":    {"secret"},
		"applovin-start-date": {"2024-01-01"},
		"applovin-dimensions": {"day", "country"},
		"applovin-stray":      {"x"},
		"gam-network-code":    {"123"},
	}

	st := StateFromValues(s, values)
	want := FormState{
		Values:     map[string]string{"api_key": "secret", "start_date": "2024-01-01"},
		Dimensions: []string{"day", "country"},
		Metrics:    []string{},
	}
	if diff := cmp.Diff(want, st); diff != "" {
		t.Errorf("state mismatch (-want +got):\n%s", diff)
	}
}

func TestBuildPayload(t *testing.T) {
	s := testSchema()
	st := FormState{
		Values: map[string]string{
			"api_key":    "k",
			"start_date": "2024-01-01",
			"end_date":   "2024-01-08",
			"ad_type":    "banner",
			"injected":   "drop me",
		},
		Dimensions: []string{"package_name", "day", "bogus"},
		Metrics:    []string{"revenue"},
	}

	p, err := BuildPayload(s, st)
	if err != nil {
		t.Fatalf("BuildPayload error: %v", err)
	}

	b, err := json.Marshal(p)
	if err != nil {
		t.Fatal(err)
	}
	var got map[string]any
	if err := json.Unmarshal(b, &got); err != nil {
		t.Fatal(err)
	}
	want := map[string]any{
		"api_key":    "k",
		"start_date": "2024-01-01",
		"end_date":   "2024-01-08",
		"ad_type":    "banner",
		"dimensions": []any{"day", "package_name"},
		"metrics":    []any{"revenue"},
	}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Errorf("payload mismatch (-want +got):\n%s", diff)
	}
}

func TestBuildPayload_EmptySelectionsStayArrays(t *testing.T) {
	s := testSchema()
	p, err := BuildPayload(s, FormState{Values: map[string]string{"api_key": "k"}})
	if err != nil {
		t.Fatal(err)
	}

	b, _ := json.Marshal(p)
	var got map[string]json.RawMessage
	if err := json.Unmarshal(b, &got); err != nil {
		t.Fatal(err)
	}
	if string(got["dimensions"]) != "[]" || string(got["metrics"]) != "[]" {
		t.Errorf("dimensions=%s metrics=%s, want []", got["dimensions"], got["metrics"])
	}
	if string(got["end_date"]) != `""` {
		t.Errorf("declared field missing from payload: %s", b)
	}

	// The zero Payload still encodes arrays.
	b, _ = json.Marshal(Payload{})
	if string(b) != `{"dimensions":[],"metrics":[]}` {
		t.Errorf("zero payload = %s", b)
	}
}

func TestBuildPayload_MissingRequired(t *testing.T) {
	_, err := BuildPayload(testSchema(), FormState{Values: map[string]string{"api_key": "  "}})
	if !errors.Is(err, ErrMissingField) {
		t.Fatalf("error = %v, want ErrMissingField", err)
	}
	if got := FailureMessage(err); got != "Polling failed: missing required field: API Key" {
		t.Errorf("FailureMessage = %q", got)
	}
}

func TestFormRoundTrip(t *testing.T) {
	seeder := &DateSeeder{LookbackDays: 7, Now: fixedClock("2024-03-15")}
	f := NewForm(testSchema(), seeder)

	st := f.State()
	want := FormState{
		Values: map[string]string{
			"api_key":    "",
			"start_date": "2024-03-08",
			"end_date":   "2024-03-15",
			"ad_type":    "all",
		},
		Dimensions: []string{"day", "country", "package_name"},
		Metrics:    []string{"revenue", "impressions"},
	}
	if diff := cmp.Diff(want, st); diff != "" {
		t.Errorf("fresh form state (-want +got):\n%s", diff)
	}

	f.Apply(FormState{
		Values:     map[string]string{"api_key": "k", "start_date": "2024-01-01"},
		Dimensions: []string{"country"},
		Metrics:    []string{},
	})
	seeder.Seed(f.Inputs)

	in, _ := f.Input("start_date")
	if in.Value != "2024-01-01" || !in.Touched() {
		t.Errorf("applied start date = %q touched=%v", in.Value, in.Touched())
	}
	if diff := cmp.Diff([]string{"country"}, f.Dimensions.Checked()); diff != "" {
		t.Errorf("dimensions (-want +got):\n%s", diff)
	}
	if got := f.Metrics.Checked(); len(got) != 0 {
		t.Errorf("metrics = %v, want none", got)
	}
}

func TestStatusMessages(t *testing.T) {
	if got := SuccessMessage(2); got != "Polling successful! Fetched 2 rows." {
		t.Errorf("SuccessMessage = %q", got)
	}
	if got := FailureMessage(errors.New("boom")); got != "Polling failed: boom" {
		t.Errorf("FailureMessage = %q", got)
	}
}
