package validation

import "testing"

func TestRequire(t *testing.T) {
	ve := &Errors{}
	Require(ve, "title", "something")
	Require(ve, "empty", "")
	Require(ve, "spaces", "   ")
	if len(ve.Errors) != 2 {
		t.Errorf("errors = %+v", ve.Errors)
	}
}

func TestEnumEmptyPasses(t *testing.T) {
	ve := &Errors{}
	Enum(ve, "priority", "", ValidPriorities)
	Enum(ve, "priority", "high", ValidPriorities)
	if ve.HasErrors() {
		t.Errorf("errors = %+v", ve.Errors)
	}
	Enum(ve, "priority", "urgent", ValidPriorities)
	if !ve.HasErrors() {
		t.Error("expected an error for an unknown value")
	}
}

func TestDateFormats(t *testing.T) {
	for _, v := range []string{"", "2027-01-15", "2027-01-15 10:30:00", "2027-01-15T10:30:00Z"} {
		ve := &Errors{}
		Date(ve, "due_date", v)
		if ve.HasErrors() {
			t.Errorf("%q rejected: %v", v, ve.Error())
		}
	}
	ve := &Errors{}
	Date(ve, "due_date", "15/01/2027")
	if !ve.HasErrors() {
		t.Error("expected an error for a slash-formatted date")
	}
}

func TestEmail(t *testing.T) {
	ve := &Errors{}
	Email(ve, "email", "user@example.com")
	Email(ve, "email", "")
	if ve.HasErrors() {
		t.Errorf("errors = %+v", ve.Errors)
	}
	Email(ve, "email", "not-an-email")
	if !ve.HasErrors() {
		t.Error("expected an error for a malformed address")
	}
}

func TestIntRange(t *testing.T) {
	ve := &Errors{}
	IntRange(ve, "status", 0, 0, 3)
	IntRange(ve, "status", 3, 0, 3)
	if ve.HasErrors() {
		t.Errorf("errors = %+v", ve.Errors)
	}
	IntRange(ve, "status", 4, 0, 3)
	IntRange(ve, "status", -1, 0, 3)
	if len(ve.Errors) != 2 {
		t.Errorf("errors = %+v", ve.Errors)
	}
}

func TestErrorStringJoinsFields(t *testing.T) {
	ve := &Errors{}
	ve.Add("title", "is required")
	ve.Add("status", "must be between 0 and 3")
	want := "title: is required; status: must be between 0 and 3"
	if ve.Error() != want {
		t.Errorf("Error() = %q", ve.Error())
	}
}

func TestPriorityRank(t *testing.T) {
	order := []string{"critical", "high", "medium", "low"}
	for i := 1; i < len(order); i++ {
		if PriorityRank(order[i-1]) >= PriorityRank(order[i]) {
			t.Errorf("%s should rank before %s", order[i-1], order[i])
		}
	}
	if PriorityRank("unknown") <= PriorityRank("low") {
		t.Error("unknown priorities sort last")
	}
}

func TestGapStatusValid(t *testing.T) {
	for _, s := range []int{0, 1, 2, 3} {
		if !GapStatusValid(s) {
			t.Errorf("%d should be valid", s)
		}
	}
	for _, s := range []int{-1, 4} {
		if GapStatusValid(s) {
			t.Errorf("%d should be invalid", s)
		}
	}
}
