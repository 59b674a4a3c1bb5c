package command

import "testing"

func TestParseMessage(t *testing.T) {
	cases := []struct {
		text  string
		image string
		want  Command
	}{
		{"/start", "", Start{}},
		{"/spent", "", ReportExpense{}},
		{"/received@buhgalteriya_bot", "", ReportIncome{}},
		{"  /GIVE  ", "", GiveMoney{}},
		{"/pending@buhgalteriya_bot", "", Pending{}},
		{"/unknown", "", Input{Text: "/unknown"}},
		{"250,50", "", Input{Text: "250,50"}},
		{"/start", "photo-1", Input{Text: "/start", ImageFileID: "photo-1"}},
		{"", "photo-2", Input{ImageFileID: "photo-2"}},
	}
	for _, tc := range cases {
		if got := ParseMessage(tc.text, tc.image); got != tc.want {
			t.Fatalf("ParseMessage(%q, %q) = %#v, want %#v", tc.text, tc.image, got, tc.want)
		}
	}
}

func TestParseCallback(t *testing.T) {
	cases := []struct {
		data string
		want Command
	}{
		{DataReportExpense, ReportExpense{}},
		{DataStats, Stats{}},
		{DataPending, Pending{}},
		{SettleData("abc"), Settle{ExpenseID: "abc"}},
		{DeferData("abc"), Defer{ExpenseID: "abc"}},
		{CategoryData("Work.ua"), ChooseCategory{Name: "Work.ua"}},
	}
	for _, tc := range cases {
		got, ok := ParseCallback(tc.data)
		if !ok || got != tc.want {
			t.Fatalf("ParseCallback(%q) = %#v, %v", tc.data, got, ok)
		}
	}

	for _, data := range []string{"", "admin:paid:", "category:", "something"} {
		if _, ok := ParseCallback(data); ok {
			t.Fatalf("expected %q to be rejected", data)
		}
	}
}

func TestAdminOnly(t *testing.T) {
	if !AdminOnly(Settle{ExpenseID: "x"}) || !AdminOnly(GiveMoney{}) || !AdminOnly(Pending{}) {
		t.Fatalf("approver commands must be admin only")
	}
	if AdminOnly(ReportExpense{}) || AdminOnly(Input{}) {
		t.Fatalf("member commands must not be admin only")
	}
}
